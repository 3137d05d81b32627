package config

// Redis backs the distributed rate limiter and the response cache.  If the
// server cannot be reached at startup NewRedisClient returns nil and both
// middlewares degrade to pass-through; reservations never depend on Redis.

import (
    "context"
    "crypto/tls"
    "strconv"
    "time"

    "github.com/redis/go-redis/v9"
)

// RedisOptions builds client options from the environment.
//   REDIS_URL – redis:// or rediss:// URL (takes precedence over everything below)
//   REDIS_HOST and REDIS_PORT, or REDIS_ADDR – server address
//   REDIS_PASSWORD – optional password
//   REDIS_DB – database number (default 0)
//   REDIS_TLS – enable TLS when true
func RedisOptions() (*redis.Options, error) {
    if u := envStr("REDIS_URL", ""); u != "" {
        return redis.ParseURL(u)
    }
    addr := envStr("REDIS_ADDR", "localhost:6379")
    if host, port := envStr("REDIS_HOST", ""), envStr("REDIS_PORT", ""); host != "" && port != "" {
        addr = host + ":" + port
    }
    opts := &redis.Options{
        Addr:     addr,
        Password: envStr("REDIS_PASSWORD", ""),
        DB:       envInt("REDIS_DB", 0),
    }
    if envBool("REDIS_TLS", false) {
        opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
    }
    return opts, nil
}

// NewRedisClient connects using RedisOptions and pings with a short
// timeout.  The returned client is nil when Redis is unreachable or
// misconfigured.
func NewRedisClient() *redis.Client {
    opts, err := RedisOptions()
    if err != nil {
        return nil
    }
    client := redis.NewClient(opts)
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    if err := client.Ping(ctx).Err(); err != nil {
        _ = client.Close()
        return nil
    }
    return client
}

// RedisAddr is used in startup logs.
func RedisAddr(c *redis.Client) string {
    if c == nil {
        return "disabled"
    }
    o := c.Options()
    return o.Addr + "/" + strconv.Itoa(o.DB)
}

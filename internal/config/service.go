package config

import (
    "fmt"
    "time"

    "github.com/caarlos0/env/v11"
)

// Store drivers accepted by STORE_DRIVER.
const (
    StoreMemory = "memory"
    StoreMySQL  = "mysql"
)

// ServiceConfig configures the reservation engine and its collaborators.
type ServiceConfig struct {
    StoreDriver            string        `env:"STORE_DRIVER" envDefault:"mysql"`
    CatalogURL             string        `env:"CATALOG_URL" envDefault:"http://localhost:8081"`
    CatalogTimeout         time.Duration `env:"CATALOG_TIMEOUT" envDefault:"3s"`
    RabbitMQURL            string        `env:"RABBITMQ_URL"`
    EventsConsumerEnabled  bool          `env:"EVENTS_CONSUMER_ENABLED" envDefault:"false"`
    EventLogPath           string        `env:"EVENT_LOG_PATH" envDefault:"logs/reservation-events.log"`
    UsageEarlyStart        time.Duration `env:"USAGE_EARLY_START" envDefault:"15m"`
    PublishTimeout         time.Duration `env:"EVENT_PUBLISH_TIMEOUT" envDefault:"3s"`
    MissedUsageSweepPeriod time.Duration `env:"MISSED_USAGE_SWEEP_INTERVAL" envDefault:"5m"`
}

// LoadService parses ServiceConfig from the environment.  Malformed values
// are returned as errors rather than silently replaced by defaults.
func LoadService() (ServiceConfig, error) {
    var cfg ServiceConfig
    if err := env.Parse(&cfg); err != nil {
        return ServiceConfig{}, err
    }
    switch cfg.StoreDriver {
    case StoreMemory, StoreMySQL:
    default:
        return ServiceConfig{}, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreMemory, StoreMySQL, cfg.StoreDriver)
    }
    return cfg, nil
}

package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/lab-equipment-reservation/internal/catalog"
	"github.com/iliyamo/lab-equipment-reservation/internal/config"
	"github.com/iliyamo/lab-equipment-reservation/internal/database"
	"github.com/iliyamo/lab-equipment-reservation/internal/handler"
	"github.com/iliyamo/lab-equipment-reservation/internal/jobs"
	"github.com/iliyamo/lab-equipment-reservation/internal/middleware"
	"github.com/iliyamo/lab-equipment-reservation/internal/queue"
	"github.com/iliyamo/lab-equipment-reservation/internal/repository"
	"github.com/iliyamo/lab-equipment-reservation/internal/router"
	"github.com/iliyamo/lab-equipment-reservation/internal/service"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	svcCfg, err := config.LoadService()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	cfg := config.Load(svcCfg.StoreDriver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := map[string]handler.Pinger{}
	var store repository.Store
	switch svcCfg.StoreDriver {
	case config.StoreMySQL:
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			log.Fatalf("db: %v", err)
		}
		defer db.Close()
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		store = repository.NewMySQLStore(db)
		deps["mysql"] = db
	default:
		log.Printf("using in-memory store; reservations are lost on restart")
		store = repository.NewMemoryStore()
	}

	rdb := config.NewRedisClient()
	if rdb != nil {
		defer rdb.Close()
		deps["redis"] = handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	var publisher service.Publisher
	if svcCfg.RabbitMQURL != "" {
		publisher = service.NewAMQPPublisher(svcCfg.RabbitMQURL, 0)
		if svcCfg.EventsConsumerEnabled {
			go queue.StartLifecycleConsumer(svcCfg.RabbitMQURL, svcCfg.EventLogPath)
		}
	}

	svc := service.NewReservationService(store, catalog.NewClient(svcCfg.CatalogURL, svcCfg.CatalogTimeout), publisher, service.Options{
		EarlyStart:     svcCfg.UsageEarlyStart,
		PublishTimeout: svcCfg.PublishTimeout,
	})

	sched := jobs.NewScheduler(svc, svcCfg.MissedUsageSweepPeriod)
	if err := sched.Start(); err != nil {
		log.Fatalf("scheduler: %v", err)
	}
	defer sched.Stop()

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())

	cacheCfg := config.LoadCacheConfig()
	guards := []echo.MiddlewareFunc{
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
		middleware.InvalidateOnWrite(cacheCfg, rdb),
		middleware.NewRedisCache(cacheCfg, rdb),
	}
	router.RegisterRoutes(e, deps)
	router.RegisterReservations(e, handler.NewReservationHandler(svc), cfg.JWTSecret, guards...)
	router.RegisterApprovals(e, handler.NewApprovalHandler(svc), cfg.JWTSecret, guards...)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s store=%s redis=%s)", addr, cfg.Env, svcCfg.StoreDriver, config.RedisAddr(rdb))
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

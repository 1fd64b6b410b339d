package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/warp/cafeteria-engine/api"
	"github.com/warp/cafeteria-engine/autoreservation"
	"github.com/warp/cafeteria-engine/cache"
	"github.com/warp/cafeteria-engine/config"
	"github.com/warp/cafeteria-engine/events"
	"github.com/warp/cafeteria-engine/observability"
	"github.com/warp/cafeteria-engine/reservation"
	storemem "github.com/warp/cafeteria-engine/reservation/store"
	"github.com/warp/cafeteria-engine/scheduler"
	"github.com/warp/cafeteria-engine/store/postgres"
	"github.com/warp/cafeteria-engine/store/sqlite"
)

// app is the wired object graph. close releases everything in reverse
// order of acquisition.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	location  *time.Location
	service   *reservation.Service
	processor *autoreservation.Processor
	scheduler *scheduler.Scheduler
	handler   *api.Handler

	closers []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("shutdown step failed", "error", err)
		}
	}
}

func loadConfig(path string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	logCfg := observability.DefaultLogConfig()
	logCfg.Level = observability.LogLevel(cfg.Log.Level)
	logCfg.Format = observability.LogFormat(cfg.Log.Format)
	logCfg.ServiceVersion = Version
	logCfg.AddSource = !cfg.IsProduction() && cfg.Log.Level == "debug"

	logger := observability.NewLogger(logCfg)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// newApp opens the store and the optional Redis and RabbitMQ connections
// and builds the service, batch processor, scheduler and HTTP handler.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, location: loc}

	db, catalog, err := a.openStore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	var menus reservation.MenuRepository = db
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		a.closers = append(a.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, menu cache will fall through", "error", err)
		}
		menuCache := cache.NewMenuCache(db, client, cfg.Redis.MenuTTL, logger)
		menus = menuCache
		catalog = menuCache.WrapWriter(catalog)
		logger.Info("menu cache enabled", "ttl", cfg.Redis.MenuTTL)
	}

	var publisher events.Publisher = events.NewNoopPublisher(logger)
	if cfg.RabbitMQ.URL != "" {
		rmq, err := events.NewRabbitMQPublisher(cfg.RabbitMQ.URL, logger)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		publisher = rmq
		logger.Info("publishing reservation events", "exchange", events.ExchangeName)
	}
	a.closers = append(a.closers, publisher.Close)

	clock := func() time.Time { return time.Now().In(loc) }

	a.service = reservation.NewService(db, menus, db, logger)
	a.service.Publisher = publisher
	a.service.Cutoff = cfg.CutoffTime()
	a.service.Now = clock

	a.processor = autoreservation.NewProcessor(db, menus, db, a.service, logger)
	a.processor.Publisher = publisher
	a.processor.Cutoff = cfg.CutoffTime()
	a.processor.Now = clock

	a.scheduler = scheduler.New(a.processor, cfg.SchedulerConfig(), logger)
	a.scheduler.Now = clock

	a.handler = api.NewHandler(a.service, catalog, a.scheduler, loc, logger)
	if p, ok := db.(api.Pinger); ok {
		a.handler.DB = p
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) (reservation.Store, reservation.CatalogWriter, error) {
	switch a.cfg.Database.Driver {
	case config.DriverPostgres:
		db, err := postgres.New(ctx, a.cfg.Database.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		a.logger.Info("using postgres store")
		return db, db, nil

	case config.DriverMemory:
		db := storemem.NewMemory()
		a.logger.Warn("using in-memory store, data is lost on exit")
		return db, db, nil

	default:
		path := a.cfg.Database.SQLitePath
		if path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		db, err := sqlite.New(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		a.logger.Info("using sqlite store", "path", path)
		return db, db, nil
	}
}

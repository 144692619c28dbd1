package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/xelth-com/odoobridge/internal/config"
	"github.com/xelth-com/odoobridge/internal/database"
	"github.com/xelth-com/odoobridge/internal/export"
	"github.com/xelth-com/odoobridge/internal/export/exporters"
	"github.com/xelth-com/odoobridge/internal/idmap"
	"github.com/xelth-com/odoobridge/internal/lock"
	"github.com/xelth-com/odoobridge/internal/metrics"
	"github.com/xelth-com/odoobridge/internal/reconcile"
	"github.com/xelth-com/odoobridge/internal/resolver"
	"github.com/xelth-com/odoobridge/internal/services/odoo"
)

// app holds the wired services shared by every command
type app struct {
	cfg     *config.Config
	log     *logrus.Logger
	db      *database.DB
	client  *odoo.Client
	store   *idmap.Store
	orch    *export.Orchestrator
	engine  *reconcile.Engine
	metrics *metrics.Metrics
}

// loadConfig reads configuration and builds the logger
func loadConfig(opts *rootOptions) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, config.NewLogger(cfg.Log), nil
}

// connectDB opens the local database and synchronizes the schema
func connectDB(cfg *config.Config, log *logrus.Logger) (*database.DB, error) {
	db, err := database.Connect(cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info("🚀 Synchronizing database schema...")
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return db, nil
}

// newApp connects the database and Odoo and wires the export stack
func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, log, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	db, err := connectDB(cfg, log)
	if err != nil {
		return nil, err
	}

	client := odoo.NewClient(cfg.Odoo.URL, cfg.Odoo.Database, cfg.Odoo.Username, cfg.Odoo.Password, cfg.Odoo.Timeout)
	uid, err := client.Authenticate(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("odoo authentication failed: %w", err)
	}
	log.WithField("uid", uid).Infof("✅ Authenticated against Odoo %s", cfg.Odoo.URL)

	var locker lock.Locker = lock.NewLocal()
	if cfg.Redis.Addr != "" {
		redisLocker, err := lock.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.LockTTL, log)
		if err != nil {
			db.Close()
			return nil, err
		}
		locker = redisLocker
	}

	store := idmap.NewStore(db.DB, log)
	registry := export.NewRegistry()
	if err := exporters.Register(registry, exporters.Deps{
		DB:          db.DB,
		Store:       store,
		Resolvers:   resolver.New(client),
		Log:         log,
		Client:      client,
		DiscountSKU: cfg.Sync.DiscountSKU,
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to register exporters: %w", err)
	}

	orch := export.NewOrchestrator(client, store, registry, db.DB, log,
		export.WithLocker(locker),
		export.WithBatchSize(cfg.Sync.BatchSize),
	)
	m := metrics.New()
	orch.Subscribe(m.Listener())

	return &app{
		cfg:     cfg,
		log:     log,
		db:      db,
		client:  client,
		store:   store,
		orch:    orch,
		engine:  reconcile.NewEngine(client, orch, db.DB, log),
		metrics: m,
	}, nil
}

func (a *app) Close() {
	a.log.Info("🛑 Closing database connection...")
	if err := a.db.Close(); err != nil {
		a.log.Warnf("database close error: %v", err)
	}
}

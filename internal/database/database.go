package database

import (
	"errors"
	"fmt"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/sirupsen/logrus"
	"github.com/xelth-com/odoobridge/internal/config"
	"github.com/xelth-com/odoobridge/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the bridge's local store: a gorm handle plus the embedded
// PostgreSQL process when one was started
type DB struct {
	*gorm.DB
	embedded *embeddedpostgres.EmbeddedPostgres
	log      *logrus.Logger
}

// Connect opens PostgreSQL. With host localhost and no password the bridge
// runs its own embedded instance.
func Connect(cfg config.DatabaseConfig, log *logrus.Logger) (*DB, error) {
	var embedded *embeddedpostgres.EmbeddedPostgres
	if cfg.Embedded() {
		pg, err := startEmbedded(&cfg, log)
		if err != nil {
			return nil, err
		}
		embedded = pg
	} else {
		log.WithFields(logrus.Fields{"host": cfg.Host, "port": cfg.Port}).Info("🌐 Connecting to external PostgreSQL")
	}

	db, err := gorm.Open(postgres.Open(DSN(cfg)), &gorm.Config{
		Logger:  gormLogger(log),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		if embedded != nil {
			_ = embedded.Stop()
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	log.WithField("database", cfg.Database).Info("✅ Database connection established")
	return &DB{DB: db, embedded: embedded, log: log}, nil
}

// DSN builds the libpq connection string
func DSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database)
}

// gormLogger routes SQL logging through logrus; statements only at debug level
func gormLogger(log *logrus.Logger) logger.Interface {
	level := logger.Warn
	if log.IsLevelEnabled(logrus.DebugLevel) {
		level = logger.Info
	}
	return logger.New(log, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})
}

// Close closes the pool, then stops the embedded process if there is one
func (db *DB) Close() error {
	var errs []error
	if sqlDB, err := db.DB.DB(); err != nil {
		errs = append(errs, err)
	} else if err := sqlDB.Close(); err != nil {
		errs = append(errs, err)
	}

	if db.embedded != nil {
		db.log.Info("🛑 Stopping embedded PostgreSQL")
		if err := db.embedded.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop embedded database: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Migrate creates or updates every table the bridge owns
func (db *DB) Migrate() error {
	return Migrate(db.DB)
}

// Migrate runs schema synchronization on any gorm handle (tests use sqlite)
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		// Local commerce entities
		&models.User{},
		&models.Profile{},
		&models.Order{},
		&models.OrderItem{},
		&models.OrderAdjustment{},
		&models.Shipment{},

		// Sync bookkeeping
		&models.OdooIDMap{},
		&models.SyncQueue{},
		&models.SyncHistory{},
	)
}

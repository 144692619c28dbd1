package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xelth-com/odoobridge/internal/config"
	"github.com/xelth-com/odoobridge/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: "5432", Username: "bridge", Password: "pw", Database: "odoobridge"})
	assert.Equal(t, "host=db port=5432 user=bridge password=pw dbname=odoobridge sslmode=disable", dsn)
}

func TestEmbeddedSelection(t *testing.T) {
	assert.True(t, config.DatabaseConfig{Host: "localhost"}.Embedded())
	assert.False(t, config.DatabaseConfig{Host: "localhost", Password: "pw"}.Embedded())
	assert.False(t, config.DatabaseConfig{Host: "db.internal"}.Embedded())
}

func TestMigrateCreatesBridgeTables(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()

	require.NoError(t, Migrate(db))
	require.NoError(t, Migrate(db), "migration must be repeatable")

	for _, table := range []interface{}{&models.OdooIDMap{}, &models.SyncQueue{}, &models.SyncHistory{}, &models.Order{}} {
		assert.True(t, db.Migrator().HasTable(table))
	}
}

// Package databasetest opens throwaway sqlite databases for repository tests.
package databasetest

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/scho1ar-go/pkg/database"
)

// New returns an in-memory database migrated for models. The pool is capped
// at one connection because every sqlite :memory: connection is a separate
// database.
func New(t *testing.T, models ...interface{}) *database.DB {
	t.Helper()

	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, gormDB.AutoMigrate(models...))
	return database.Wrap(gormDB)
}

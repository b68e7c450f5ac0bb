package database

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// RegisterPoolMetrics exposes the sql.DB connection pool statistics.
func (db *DB) RegisterPoolMetrics(reg prometheus.Registerer, name string) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if err := reg.Register(collectors.NewDBStatsCollector(sqlDB, name)); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return nil
		}
		return err
	}
	return nil
}

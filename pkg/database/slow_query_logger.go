package database

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/scho1ar-go/pkg/logger"
)

// DefaultSlowQueryThreshold applies when the config leaves the threshold unset.
const DefaultSlowQueryThreshold = 200 * time.Millisecond

var slowQueries = promauto.NewCounter(prometheus.CounterOpts{
	Name: "database_slow_queries_total",
	Help: "Number of queries slower than the configured threshold",
})

// QueryLogger routes gorm's trace output to the structured logger. Slow
// queries and unexpected errors are always logged; everything else only
// when verbose is set.
type QueryLogger struct {
	log       logger.Logger
	threshold time.Duration
	verbose   bool
}

func NewQueryLogger(log logger.Logger, threshold time.Duration, verbose bool) *QueryLogger {
	if threshold <= 0 {
		threshold = DefaultSlowQueryThreshold
	}
	return &QueryLogger{log: log.Named("gorm"), threshold: threshold, verbose: verbose}
}

func (l *QueryLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface {
	return l
}

func (l *QueryLogger) Info(_ context.Context, msg string, args ...interface{}) {
	l.log.Info(msg, "args", args)
}

func (l *QueryLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	l.log.Warn(msg, "args", args)
}

func (l *QueryLogger) Error(_ context.Context, msg string, args ...interface{}) {
	l.log.Error(msg, "args", args)
}

func (l *QueryLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		query, rows := fc()
		l.log.Error("query failed", "query", query, "rows", rows, "duration", elapsed, "error", err)
	case elapsed > l.threshold:
		slowQueries.Inc()
		query, rows := fc()
		l.log.Warn("slow query detected", "query", query, "rows", rows, "duration", elapsed, "threshold", l.threshold)
	case l.verbose:
		query, rows := fc()
		l.log.Debug("query", "query", query, "rows", rows, "duration", elapsed)
	}
}

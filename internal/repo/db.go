// Package repo is the GORM persistence layer: users, roles and divisions
// consumed by the audience resolver, API keys, notifications with their
// per-recipient delivery rows, and idempotency records. Functions take the
// *gorm.DB explicitly so services can pass a transaction.
package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-club-backend/internal/domain"
)

// SlowQueryThreshold is the duration above which queries are logged at warn.
const SlowQueryThreshold = 200 * time.Millisecond

var sqlitePragmas = []string{
	"PRAGMA journal_mode=WAL;",
	"PRAGMA synchronous=NORMAL;",
	"PRAGMA foreign_keys=ON;",
	"PRAGMA busy_timeout=5000;",
}

// OpenSQLite opens (or creates) the database at path, applies PRAGMAs and
// sizes the pool. In-memory DSNs get a single connection, since every new
// connection would otherwise see its own empty database or contend on the
// shared-cache lock.
func OpenSQLite(path string) (*gorm.DB, error) {
	memory := isMemoryDSN(path)
	if !memory {
		// Fail early on a missing parent directory instead of the driver's
		// opaque "out of memory (14)".
		if dir := filepath.Dir(path); dir != "." {
			if _, err := os.Stat(dir); err != nil {
				return nil, err
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: newGormLogger(SlowQueryThreshold),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if memory {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	for _, p := range sqlitePragmas {
		if memory && strings.Contains(p, "journal_mode") {
			continue
		}
		if err := db.Exec(p).Error; err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("sqlite %s: %w", strings.TrimSuffix(p, ";"), err)
		}
	}
	return db, nil
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}

// gormLogger routes GORM's own logging through zerolog: failed queries at
// error (record-not-found excluded), slow ones at warn, the rest at trace.
type gormLogger struct {
	slow  time.Duration
	level gormlogger.LogLevel
}

func newGormLogger(slow time.Duration) gormlogger.Interface {
	return &gormLogger{slow: slow, level: gormlogger.Warn}
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *gormLogger) Info(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		log.Info().Msgf(msg, args...)
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		log.Warn().Msgf(msg, args...)
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		log.Error().Msgf(msg, args...)
	}
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)

	var ev *zerolog.Event
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		ev = log.Error().Err(err)
	case l.slow > 0 && elapsed > l.slow && l.level >= gormlogger.Warn:
		ev = log.Warn().Dur("threshold", l.slow)
	case l.level >= gormlogger.Info:
		ev = log.Trace()
	default:
		return
	}
	sql, rows := fc()
	ev.Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("gorm query")
}

// EnableTracing installs the OpenTelemetry GORM plugin so every query becomes
// a child span of the request trace. Metrics are left to Prometheus.
func EnableTracing(db *gorm.DB) error {
	return db.Use(tracing.NewPlugin(tracing.WithoutMetrics()))
}

// AutoMigrate creates or updates every table owned by this service.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Role{},
		&domain.User{},
		&domain.Division{},
		&domain.DivisionMember{},
		&domain.APIKey{},
		&domain.Notification{},
		&domain.DeliveryStatus{},
		&domain.Idempotency{},
	)
}

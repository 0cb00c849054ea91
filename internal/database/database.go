// Package database opens the managed Postgres connection used for the few
// reads the client performs directly.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"replied/internal/observability"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SlowQuery is the duration above which a query is logged as slow.
const SlowQuery = 200 * time.Millisecond

// queryLogger sends GORM output to the "database" component logger.
// Only failures and slow queries are reported at the default level.
type queryLogger struct {
	log   *observability.ComponentLogger
	level logger.LogLevel
	slow  time.Duration
}

func (l *queryLogger) LogMode(level logger.LogLevel) logger.Interface {
	next := *l
	next.level = level
	return &next
}

func (l *queryLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= logger.Info {
		l.log.Info(ctx, fmt.Sprintf(msg, data...), nil)
	}
}

func (l *queryLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= logger.Warn {
		l.log.Warn(ctx, fmt.Sprintf(msg, data...), nil)
	}
}

func (l *queryLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= logger.Error {
		l.log.Error(ctx, fmt.Sprintf(msg, data...), nil, nil)
	}
}

func (l *queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	slow := l.slow > 0 && elapsed > l.slow
	if !failed && !slow && l.level < logger.Info {
		return
	}

	query, rows := fc()
	fields := map[string]any{"sql": query, "rows": rows, "elapsed_ms": elapsed.Milliseconds()}
	switch {
	case failed && l.level >= logger.Error:
		l.log.Error(ctx, "query failed", err, fields)
	case slow && l.level >= logger.Warn:
		l.log.Warn(ctx, "slow query", fields)
	case l.level >= logger.Info:
		l.log.Info(ctx, "query", fields)
	}
}

// GormConfig is the configuration shared by Connect and tests. Driver
// errors are translated so a unique violation surfaces as gorm.ErrDuplicatedKey.
func GormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: &queryLogger{
			log:   observability.For("database"),
			level: logger.Warn,
			slow:  SlowQuery,
		},
		TranslateError: true,
	}
}

// Connect opens the managed database at dsn. The schema is owned by the
// backend, so nothing is migrated here.
func Connect(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is empty")
	}
	db, err := gorm.Open(postgres.Open(dsn), GormConfig())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Profile lookups are short and infrequent; a small pool is enough.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(2)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}

	observability.For("database").Info(context.Background(), "database connected", nil)
	return db, nil
}

// Ping checks the connection behind db.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the pool behind db.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

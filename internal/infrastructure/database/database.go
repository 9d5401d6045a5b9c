package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

const (
	// pingTimeout bounds the startup connectivity check.
	pingTimeout = 5 * time.Second
	// defaultSlowThreshold marks queries worth a warning.
	defaultSlowThreshold = 200 * time.Millisecond
)

// Config controls GORM/PostgreSQL connectivity.
type Config struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	// SlowThreshold is the query duration past which Trace logs a
	// warning. Zero selects defaultSlowThreshold.
	SlowThreshold time.Duration
}

// Connect opens the GORM connection, creating the target database on a
// fresh cluster first, and verifies connectivity with a bounded ping.
// Query logging runs through the service's zerolog logger.
func Connect(cfg Config, log zerolog.Logger) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is empty")
	}

	if err := ensureDatabaseExists(cfg.DSN, log); err != nil {
		return nil, fmt.Errorf("ensure database: %w", err)
	}

	slow := cfg.SlowThreshold
	if slow == 0 {
		slow = defaultSlowThreshold
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		PrepareStmt: true,
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
		Logger: &queryLogger{
			log:           log.With().Str("component", "gorm").Logger(),
			slowThreshold: slow,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("retrieve sql db: %w", err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

// queryLogger routes GORM's query log through zerolog. The configured
// zerolog level filters output, so LogMode is a no-op.
type queryLogger struct {
	log           zerolog.Logger
	slowThreshold time.Duration
}

var _ gormlogger.Interface = (*queryLogger)(nil)

func (l *queryLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface { return l }

func (l *queryLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	l.log.Info().Msgf(msg, args...)
}

func (l *queryLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	l.log.Warn().Msgf(msg, args...)
}

func (l *queryLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	l.log.Error().Msgf(msg, args...)
}

// Trace logs failed and slow queries. ErrRecordNotFound is ordinary
// control flow for the repositories and stays out of the log.
func (l *queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		query, rows := fc()
		l.log.Error().Err(err).Dur("elapsed", elapsed).Int64("rows", rows).Str("query", query).Msg("query failed")
	case elapsed >= l.slowThreshold:
		query, rows := fc()
		l.log.Warn().Dur("elapsed", elapsed).Int64("rows", rows).Str("query", query).Msg("slow query")
	}
}

// ensureDatabaseExists creates the DSN's target database through the
// cluster's admin database when it is missing. Non-URL DSNs and the
// admin database itself are left alone.
func ensureDatabaseExists(dsn string, log zerolog.Logger) error {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil
	}

	dbName := strings.TrimPrefix(u.Path, "/")
	if dbName == "" || dbName == "postgres" {
		return nil
	}

	adminURL := *u
	adminURL.Path = "/postgres"

	adminDB, err := sql.Open("postgres", adminURL.String())
	if err != nil {
		return fmt.Errorf("open admin connection: %w", err)
	}
	defer adminDB.Close()

	var exists bool
	err = adminDB.QueryRow("SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", dbName).Scan(&exists)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check database %s: %w", dbName, err)
	}
	if exists {
		return nil
	}

	log.Info().Str("database", dbName).Msg("creating missing database")
	if _, err := adminDB.Exec("CREATE DATABASE " + quoteIdentifier(dbName)); err != nil {
		return fmt.Errorf("create database %s: %w", dbName, err)
	}
	return nil
}

func quoteIdentifier(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// Package database owns the PostgreSQL handle behind the credit store.
// Everything durable in the pipeline — applications, the trigger-written
// pending_jobs rows, audit trail, webhook events, dead letters — lives
// behind this one pool, so boot fails here rather than letting workers
// start against a store they cannot reach.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/global-credit/credit_core/internal/domain/errors"
	"github.com/global-credit/credit_core/internal/infrastructure/config"
	"github.com/global-credit/credit_core/pkg/logger"
	"github.com/global-credit/credit_core/pkg/retry"
)

const pingTimeout = 5 * time.Second

// Connect opens the credit store pool and verifies reachability. Startup
// races with the database container are retried briefly with the same
// backoff machinery the worker pool uses; a store that stays unreachable
// is a fatal DatabaseUnavailable, not something to limp past.
func Connect(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.URL)
	if err != nil {
		return nil, errors.DatabaseUnavailableError(err)
	}

	configurePool(db, cfg)

	policy := retry.Policy{
		MaxRetries:    4,
		BaseDelay:     500 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		Multiplier:    2.0,
		Jitter:        true,
		RetryableFunc: func(error) bool { return true },
	}
	err = retry.Do(ctx, policy, log.Zap(), func() error {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		return db.PingContext(pingCtx)
	})
	if err != nil {
		db.Close()
		return nil, errors.DatabaseUnavailableError(fmt.Errorf("credit store unreachable: %w", err))
	}

	log.Info("Connected to credit store",
		"host", cfg.Host,
		"database", cfg.Name,
		"max_open_conns", db.Stats().MaxOpenConnections,
	)
	return db, nil
}

// configurePool sizes the pool. The floor of interest is the queue
// bridge's claim transaction plus one connection per worker slot; the
// defaults cover the default concurrency of 10 with headroom for the
// HTTP surface and maintenance jobs.
func configurePool(db *sqlx.DB, cfg config.DatabaseConfig) {
	maxOpen := cfg.MaxOpenConns
	if maxOpen == 0 {
		maxOpen = 25
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle == 0 {
		maxIdle = 5
	}
	lifetime := cfg.ConnMaxLifetime
	if lifetime == 0 {
		lifetime = 300
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(time.Duration(lifetime) * time.Second)
	db.SetConnMaxIdleTime(5 * time.Minute)
}

// RunMigrations applies the schema migrations: enum types, tables, the
// enqueue and audit triggers, and the partial unique indexes that carry
// the active-application and idempotency invariants.
func RunMigrations(cfg config.DatabaseConfig, log *logger.Logger) error {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	path := cfg.MigrationsPath
	if path == "" {
		path = "migrations"
	}
	m, err := migrate.NewWithDatabaseInstance(
		"file://"+filepath.ToSlash(filepath.Clean(path)),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if version, dirty, err := m.Version(); err == nil {
		log.Info("Schema migrations applied", "version", version, "dirty", dirty)
	}
	return nil
}

// HealthCheck reports whether the credit store is reachable
func HealthCheck(db *sqlx.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return errors.DatabaseUnavailableError(err)
	}
	return nil
}

// WithTransaction runs fn in a READ COMMITTED transaction. The isolation
// level matters to the queue bridge: its FOR UPDATE SKIP LOCKED claim
// relies on seeing rows committed by the enqueue trigger while skipping
// rows another bridge worker holds, which READ COMMITTED gives without
// the serialization retries a stricter level would force.
func WithTransaction(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{
		Isolation: sql.LevelReadCommitted,
	})
	if err != nil {
		return errors.DatabaseUnavailableError(err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	err = fn(tx)
	return err
}

// Package persistence is the raw-SQL repository layer backing the
// coordinator, portfolio, and audit components. It owns the connection
// pool and the process-local position cache; it never interprets
// business outcomes, only stores and retrieves them.
package persistence

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync"
	"time"

	"arbitrage/internal/config"
	"arbitrage/internal/models"
	"arbitrage/pkg/utils"

	_ "github.com/lib/pq"
)

// Store wraps the relational connection pool plus a write-through
// position cache, keyed by position id.
type Store struct {
	db *sql.DB

	cacheMu sync.RWMutex
	cache   map[string]*models.Position

	log *utils.Logger
}

// Open connects to Postgres with exponential backoff (1s, 2s, 4s across
// up to 3 attempts) and sizes the pool per cfg (2-10 connections).
func Open(cfg config.DatabaseConfig, log *utils.Logger) (*Store, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode,
	)

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen < 2 {
		maxOpen = 2
	}
	if maxOpen > 10 {
		maxOpen = 10
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	backoffs := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	var pingErr error
	for attempt := 0; attempt < 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		pingErr = db.PingContext(ctx)
		cancel()
		if pingErr == nil {
			break
		}
		if log != nil {
			log.Warn("database ping failed, retrying", utils.Int("attempt", attempt+1), utils.Err(pingErr))
		}
		time.Sleep(backoffs[attempt])
	}
	if pingErr != nil {
		return nil, fmt.Errorf("ping database after retries: %w", pingErr)
	}

	return &Store{
		db:    db,
		cache: make(map[string]*models.Position),
		log:   log,
	}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw pool for components that need a transaction scope
// this package does not already expose (e.g. cross-repository audits).
func (s *Store) DB() *sql.DB {
	return s.db
}

// withTx runs fn inside a transaction, committing on a nil return and
// rolling back otherwise. A single transient-connection-loss retry is
// attempted before giving up.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			lastErr = err
			continue
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			lastErr = err
			if !isTransientConnErr(err) {
				return err
			}
			continue
		}
		if err := tx.Commit(); err != nil {
			lastErr = err
			if !isTransientConnErr(err) {
				return err
			}
			continue
		}
		return nil
	}
	return lastErr
}

func isTransientConnErr(err error) bool {
	return err == sql.ErrConnDone || err == driver.ErrBadConn
}

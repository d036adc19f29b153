// Package store implements crawl.Store against Postgres via pgx/pgxpool.
// ClaimPending is the one correctness-critical primitive (SPEC_FULL.md
// §4.1): it uses a single UPDATE ... WHERE id IN (SELECT ... FOR UPDATE
// SKIP LOCKED) statement so the claim is atomic without an explicit
// transaction.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// querier is the subset of *pgxpool.Pool's surface the Store uses. It lets
// tests substitute github.com/pashagolub/pgxmock/v4 without touching a real
// database, mirroring the execCloser seam the reference lineage used for its
// own Postgres-backed store.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Config configures the connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Store is the Postgres-backed implementation of crawl.Store.
type Store struct {
	pool   *pgxpool.Pool
	db     querier
	logger *zap.Logger
}

// New constructs a Store with a live pgxpool and ensures the schema exists.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	s := &Store{pool: pool, db: pool, logger: logger}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

// NewWithQuerier builds a Store over an arbitrary querier (a pgxmock pool in
// tests), skipping schema setup and live-pool lifecycle.
func NewWithQuerier(db querier, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// EnsureSchema applies the idempotent DDL in schema.go.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schema)
	return err
}

// Ping checks database connectivity for health checks.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.db.Exec(ctx, "SELECT 1")
	return err
}

// Close releases the connection pool. No-op when built via NewWithQuerier.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func uuidOrNil(id uuid.UUID) any {
	return id
}

func strOrNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Package postgres provides PostgreSQL persistence using pgx v5.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/mimic/internal/config"
)

// Migrations holds the schema migrations in golang-migrate file naming.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory of Migrations that holds the SQL files.
const MigrationsDir = "migrations"

// ApplicationName tags every connection in pg_stat_activity unless the DSN
// names one already.
const ApplicationName = "mimic"

// ErrSchemaMissing is returned by Health when the database is reachable but
// the rooms table has not been migrated.
var ErrSchemaMissing = errors.New("rooms table missing; run migrations")

// Pool wraps a pgx connection pool and hands out the room repository.
type Pool struct {
	pool *pgxpool.Pool
}

// NewPool creates a new PostgreSQL connection pool from the given configuration.
//
// Precondition: cfg must contain valid database connection parameters.
// Postcondition: Returns a connected Pool or a non-nil error. The pool is ready
// for queries upon successful return.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	if _, ok := poolCfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		poolCfg.ConnConfig.RuntimeParams["application_name"] = ApplicationName
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &Pool{pool: pool}, nil
}

// Health checks that the database answers within timeout and that the rooms
// schema is in place.
//
// Precondition: The pool must not be closed.
// Postcondition: Returns nil when rooms can be served; ErrSchemaMissing when
// the database is up but unmigrated.
func (p *Pool) Health(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	var migrated bool
	if err := p.pool.QueryRow(ctx, `SELECT to_regclass('rooms') IS NOT NULL`).Scan(&migrated); err != nil {
		return fmt.Errorf("checking rooms schema: %w", err)
	}
	if !migrated {
		return ErrSchemaMissing
	}
	return nil
}

// Rooms returns a room repository on this pool.
func (p *Pool) Rooms() *RoomRepository {
	return NewRoomRepository(p.pool)
}

// Close releases all pool resources.
//
// Postcondition: The pool is no longer usable after calling Close.
func (p *Pool) Close() {
	p.pool.Close()
}

// DB returns the underlying pgxpool.Pool.
func (p *Pool) DB() *pgxpool.Pool {
	return p.pool
}

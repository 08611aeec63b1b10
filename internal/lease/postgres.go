package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	pgCreateLocksTable = `
		CREATE TABLE IF NOT EXISTS payment_locks (
			name TEXT PRIMARY KEY,
			lease_id TEXT,
			expires_at TIMESTAMPTZ
		)`

	pgEnsureLock = `
		INSERT INTO payment_locks (name) VALUES ($1)
		ON CONFLICT (name) DO NOTHING`

	pgLockExists = `
		SELECT EXISTS (SELECT 1 FROM payment_locks WHERE name = $1)`

	pgAcquireLease = `
		UPDATE payment_locks
		SET lease_id = $2, expires_at = now() + make_interval(secs => $3)
		WHERE name = $1 AND (lease_id IS NULL OR expires_at <= now())`

	pgReleaseLease = `
		UPDATE payment_locks
		SET lease_id = NULL, expires_at = NULL
		WHERE name = $1 AND lease_id = $2`
)

var _ Store = (*PostgresStore)(nil)

// PostgresStore keeps leases in PostgreSQL so several hosts can share one lock.
// Expiry is evaluated against the database clock.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, url string) (*PostgresStore, error) {
	if url == "" {
		return nil, fmt.Errorf("postgres url cannot be empty")
	}

	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping lock database: %w", err)
	}

	if _, err := pool.Exec(ctx, pgCreateLocksTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to create lock table: %w", err)
	}

	zap.L().Info("Postgres lease store initialized")
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Ensure(ctx context.Context, name string) error {
	if _, err := p.pool.Exec(ctx, pgEnsureLock, name); err != nil {
		return fmt.Errorf("failed to create lock %s: %w", name, err)
	}
	return nil
}

func (p *PostgresStore) Exists(ctx context.Context, name string) (bool, error) {
	var exists bool
	if err := p.pool.QueryRow(ctx, pgLockExists, name).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check lock %s: %w", name, err)
	}
	return exists, nil
}

func (p *PostgresStore) Acquire(ctx context.Context, name, leaseId string, duration time.Duration) (bool, error) {
	tag, err := p.pool.Exec(ctx, pgAcquireLease, name, leaseId, duration.Seconds())
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease on %s: %w", name, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *PostgresStore) Release(ctx context.Context, name, leaseId string) error {
	if _, err := p.pool.Exec(ctx, pgReleaseLease, name, leaseId); err != nil {
		return fmt.Errorf("failed to release lease on %s: %w", name, err)
	}
	return nil
}

func (p *PostgresStore) Close() {
	p.pool.Close()
}

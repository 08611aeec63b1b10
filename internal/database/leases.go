package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"stellar-send-receive-go/internal/lease"
)

var _ lease.Store = (*LeaseStore)(nil)

// LeaseStore keeps payment lock leases in the payment_locks table
type LeaseStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewLeaseStore(db *sql.DB) *LeaseStore {
	return &LeaseStore{db: db, now: utcNow}
}

// Leases returns a lease store sharing this service's database
func (s *Service) Leases() *LeaseStore {
	return NewLeaseStore(s.db)
}

func (l *LeaseStore) Ensure(ctx context.Context, name string) error {
	if _, err := l.db.ExecContext(ctx, queryEnsureLock, name); err != nil {
		return fmt.Errorf("failed to create lock %s: %w", name, err)
	}
	return nil
}

func (l *LeaseStore) Exists(ctx context.Context, name string) (bool, error) {
	var count int
	if err := l.db.QueryRowContext(ctx, queryLockExists, name).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check lock %s: %w", name, err)
	}
	return count > 0, nil
}

func (l *LeaseStore) Acquire(ctx context.Context, name, leaseId string, duration time.Duration) (bool, error) {
	now := l.now()
	result, err := l.db.ExecContext(ctx, queryAcquireLease, leaseId, now.Add(duration), name, now)
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease on %s: %w", name, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

func (l *LeaseStore) Release(ctx context.Context, name, leaseId string) error {
	if _, err := l.db.ExecContext(ctx, queryReleaseLease, name, leaseId); err != nil {
		return fmt.Errorf("failed to release lease on %s: %w", name, err)
	}
	return nil
}

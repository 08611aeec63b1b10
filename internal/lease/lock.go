/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the backing resource for timed exclusive leases. A lease on name is
// held while its expiry is in the future; an expired lease may be taken by anyone.
type Store interface {
	// Ensure creates the lock marker for name if it does not exist yet.
	Ensure(ctx context.Context, name string) error
	Exists(ctx context.Context, name string) (bool, error)
	// Acquire takes the lease when it is free or expired and reports whether it did.
	Acquire(ctx context.Context, name, leaseId string, duration time.Duration) (bool, error)
	// Release frees the lease if leaseId still holds it.
	Release(ctx context.Context, name, leaseId string) error
}

type RetryPolicy struct {
	MaxAttempts   int
	Backoff       time.Duration
	LeaseDuration time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   5,
		Backoff:       3 * time.Second,
		LeaseDuration: 15 * time.Second,
	}
}

// Token identifies a held lease
type Token struct {
	Name       string
	LeaseId    string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// Lock serializes chain submissions from the custodian account across processes
type Lock struct {
	store  Store
	name   string
	policy RetryPolicy
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
}

func NewLock(store Store, name string, policy RetryPolicy) (*Lock, error) {
	if name == "" {
		return nil, fmt.Errorf("lock name cannot be empty")
	}
	if policy.MaxAttempts <= 0 {
		return nil, fmt.Errorf("max attempts must be positive, got %d", policy.MaxAttempts)
	}
	if policy.LeaseDuration <= 0 {
		return nil, fmt.Errorf("lease duration must be positive, got %v", policy.LeaseDuration)
	}
	if policy.Backoff < 0 {
		return nil, fmt.Errorf("backoff cannot be negative, got %v", policy.Backoff)
	}

	return &Lock{
		store:  store,
		name:   name,
		policy: policy,
		sleep:  sleepContext,
		now:    time.Now,
	}, nil
}

// Acquire returns a token, or nil without error when every attempt found the
// lease taken.
func (l *Lock) Acquire(ctx context.Context) (*Token, error) {
	exists, err := l.store.Exists(ctx, l.name)
	if err != nil {
		return nil, fmt.Errorf("unable to check payment lock: %w", err)
	}
	if !exists {
		if err := l.store.Ensure(ctx, l.name); err != nil {
			return nil, fmt.Errorf("unable to create payment lock: %w", err)
		}
	}

	leaseId := uuid.New().String()
	for attempt := 1; attempt <= l.policy.MaxAttempts; attempt++ {
		acquiredAt := l.now()
		ok, err := l.store.Acquire(ctx, l.name, leaseId, l.policy.LeaseDuration)
		if err != nil {
			zap.L().Warn("Lease attempt failed",
				zap.String("lock", l.name),
				zap.Int("attempt", attempt),
				zap.Error(err))
		} else if ok {
			zap.L().Debug("Payment lock acquired",
				zap.String("lock", l.name),
				zap.String("lease_id", leaseId),
				zap.Int("attempt", attempt))
			return &Token{
				Name:       l.name,
				LeaseId:    leaseId,
				AcquiredAt: acquiredAt,
				ExpiresAt:  acquiredAt.Add(l.policy.LeaseDuration),
			}, nil
		}

		if attempt == l.policy.MaxAttempts {
			break
		}
		if err := l.sleep(ctx, l.policy.Backoff); err != nil {
			return nil, err
		}
	}

	zap.L().Warn("Payment lock unavailable",
		zap.String("lock", l.name),
		zap.Int("attempts", l.policy.MaxAttempts))
	return nil, nil
}

// Release frees the lease. Failures are logged and never returned; a missed
// release costs at most the remaining lease duration.
func (l *Lock) Release(ctx context.Context, token *Token) {
	if token == nil {
		return
	}
	if err := l.store.Release(ctx, token.Name, token.LeaseId); err != nil {
		zap.L().Warn("Failed to release payment lock",
			zap.String("lock", token.Name),
			zap.String("lease_id", token.LeaseId),
			zap.Error(err))
		return
	}
	zap.L().Debug("Payment lock released", zap.String("lock", token.Name), zap.String("lease_id", token.LeaseId))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

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

package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stellar-send-receive-go/internal/lease"
	"stellar-send-receive-go/internal/metrics"
	"stellar-send-receive-go/internal/models"
	"stellar-send-receive-go/internal/stellar"
	"stellar-send-receive-go/internal/store"
)

var (
	ErrDestinationNotFound = errors.New("destination not found")
	ErrLockUnavailable     = errors.New("unable to acquire payment lock")
)

// ValidationError reports bad caller input; it is never retried
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Gateway is the chain access the saga needs
type Gateway interface {
	AccountExists(ctx context.Context, address string) bool
	PreparePayment(ctx context.Context, userId int64, destination, amount string) (*stellar.PreparedPayment, error)
	Submit(ctx context.Context, payment *stellar.PreparedPayment) (*stellar.Receipt, error)
}

// Locker serializes chain submissions from the custodian account
type Locker interface {
	Acquire(ctx context.Context) (*lease.Token, error)
	Release(ctx context.Context, token *lease.Token)
}

type PayRequest struct {
	UserId int64
	// Balance is the caller's view of the available balance, used for a
	// fast precheck only; the ledger decides at reservation time.
	Balance     int64
	Destination string
	Amount      string
}

type PayResult struct {
	ReservationId   string
	TransactionHash string
	Amount          int64
	Ledger          int32
}

type Service struct {
	ledger  store.PaymentLedger
	gateway Gateway
	lock    Locker
	newId   func() string
}

func NewService(ledger store.PaymentLedger, gateway Gateway, lock Locker) *Service {
	return &Service{
		ledger:  ledger,
		gateway: gateway,
		lock:    lock,
		newId:   func() string { return uuid.New().String() },
	}
}

// Pay runs one outbound payment: reserve, submit, then confirm or cancel.
// Every reservation it creates ends confirmed or cancelled, except when the
// process dies or the ledger fails between submission and confirmation; the
// reconciliation sweep resolves those.
func (s *Service) Pay(ctx context.Context, req PayRequest) (*PayResult, error) {
	amount, err := validate(req)
	if err != nil {
		metrics.Payments.WithLabelValues("invalid").Inc()
		return nil, err
	}

	if amount > req.Balance {
		metrics.Payments.WithLabelValues("insufficient_balance").Inc()
		return nil, fmt.Errorf("%w: available %d, requested %d", store.ErrInsufficientBalance, req.Balance, amount)
	}

	if !s.gateway.AccountExists(ctx, req.Destination) {
		metrics.Payments.WithLabelValues("destination_not_found").Inc()
		return nil, fmt.Errorf("%w: %s", ErrDestinationNotFound, req.Destination)
	}

	token, err := s.lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to acquire payment lock: %w", err)
	}
	if token == nil {
		metrics.Payments.WithLabelValues("lock_unavailable").Inc()
		return nil, ErrLockUnavailable
	}

	// Lock release must survive caller cancellation
	detached := context.WithoutCancel(ctx)
	var releaseOnce sync.Once
	release := func() {
		releaseOnce.Do(func() { s.lock.Release(detached, token) })
	}
	defer release()

	reservationId := s.newId()
	ctx = models.WithPaymentContext(ctx, &models.PaymentContext{
		Destination: req.Destination,
		AmountHuman: stellar.FormatStroops(amount),
	})

	if err := s.ledger.ReservePayment(ctx, req.UserId, reservationId, amount); err != nil {
		if errors.Is(err, store.ErrInsufficientBalance) {
			metrics.Payments.WithLabelValues("insufficient_balance").Inc()
		}
		return nil, fmt.Errorf("unable to reserve payment: %w", err)
	}

	zap.L().Info("Payment reserved",
		zap.String("reservation_id", reservationId),
		zap.Int64("user_id", req.UserId),
		zap.Int64("amount", amount),
		zap.String("destination", req.Destination))

	prepared, err := s.gateway.PreparePayment(ctx, req.UserId, req.Destination, stellar.FormatStroops(amount))
	if err != nil {
		release()
		return nil, s.cancel(detached, reservationId, err)
	}

	if err := s.ledger.AttachTransaction(ctx, reservationId, prepared.Hash, prepared.ValidUntil); err != nil {
		release()
		return nil, s.cancel(detached, reservationId, fmt.Errorf("unable to record transaction hash: %w", err))
	}

	receipt, err := s.gateway.Submit(ctx, prepared)
	release()
	if err != nil {
		var chainErr *stellar.ChainSubmissionError
		if errors.As(err, &chainErr) && chainErr.OutcomeUnknown {
			metrics.Payments.WithLabelValues("outcome_unknown").Inc()
			zap.L().Warn("Payment outcome unknown; left for reconciliation",
				zap.String("reservation_id", reservationId),
				zap.String("tx_hash", prepared.Hash),
				zap.Time("valid_until", prepared.ValidUntil),
				zap.Error(err))
			return nil, fmt.Errorf("payment %s outcome unknown: %w", reservationId, err)
		}
		return nil, s.cancel(detached, reservationId, err)
	}

	if err := s.ledger.ConfirmPayment(detached, reservationId, receipt.TransactionHash); err != nil {
		metrics.Payments.WithLabelValues("unconfirmed").Inc()
		zap.L().Error("Payment submitted but not confirmed; left for reconciliation",
			zap.String("reservation_id", reservationId),
			zap.String("tx_hash", receipt.TransactionHash),
			zap.Error(err))
		return nil, fmt.Errorf("payment %s submitted but not confirmed: %w", reservationId, err)
	}

	metrics.Payments.WithLabelValues("confirmed").Inc()
	zap.L().Info("Payment confirmed",
		zap.String("reservation_id", reservationId),
		zap.Int64("user_id", req.UserId),
		zap.String("tx_hash", receipt.TransactionHash),
		zap.Int32("ledger", receipt.Ledger))

	return &PayResult{
		ReservationId:   reservationId,
		TransactionHash: receipt.TransactionHash,
		Amount:          amount,
		Ledger:          receipt.Ledger,
	}, nil
}

// cancel releases the reservation after a failed or skipped submission and
// returns cause.
func (s *Service) cancel(ctx context.Context, reservationId string, cause error) error {
	zap.L().Error("Payment failed, cancelling reservation",
		zap.String("reservation_id", reservationId),
		zap.Error(cause))

	if err := s.ledger.CancelPayment(ctx, reservationId); err != nil {
		metrics.Payments.WithLabelValues("uncancelled").Inc()
		zap.L().Error("Unable to cancel reservation; left for reconciliation",
			zap.String("reservation_id", reservationId),
			zap.Error(err))
		return errors.Join(cause, fmt.Errorf("unable to cancel reservation %s: %w", reservationId, err))
	}

	metrics.Payments.WithLabelValues("cancelled").Inc()
	return cause
}

func validate(req PayRequest) (int64, error) {
	if req.UserId < 0 {
		return 0, &ValidationError{Field: "userId", Message: "must not be negative"}
	}
	if req.Destination == "" {
		return 0, &ValidationError{Field: "destination", Message: "is required"}
	}
	if req.Amount == "" {
		return 0, &ValidationError{Field: "amount", Message: "is required"}
	}

	amount, err := stellar.ParseStroops(req.Amount)
	if err != nil {
		return 0, &ValidationError{Field: "amount", Message: "must be a positive decimal with at most 7 fractional digits"}
	}
	if amount <= 0 {
		return 0, &ValidationError{Field: "amount", Message: "must be greater than zero"}
	}
	return amount, nil
}

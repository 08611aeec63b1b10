// Package reconcile resolves payment reservations that a crashed or
// interrupted saga left in the reserved state.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"stellar-send-receive-go/internal/metrics"
	"stellar-send-receive-go/internal/models"
	"stellar-send-receive-go/internal/stellar"
)

const (
	DefaultGrace     = 5 * time.Minute
	DefaultInterval  = time.Minute
	defaultBatchSize = 100
)

type Ledger interface {
	ListStaleReservations(ctx context.Context, olderThan time.Time, limit int) ([]models.PaymentReservation, error)
	ConfirmPayment(ctx context.Context, reservationId, txHash string) error
	CancelPayment(ctx context.Context, reservationId string) error
}

type Chain interface {
	TransactionStatus(ctx context.Context, hash string) (stellar.TxStatus, error)
}

// Report counts what one sweep did
type Report struct {
	Confirmed int
	Cancelled int
	Pending   int
	Failed    int
}

type Sweeper struct {
	ledger    Ledger
	chain     Chain
	grace     time.Duration
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

func NewSweeper(ledger Ledger, chain Chain, cfg models.ReconcileConfig) *Sweeper {
	s := &Sweeper{
		ledger:    ledger,
		chain:     chain,
		grace:     cfg.Grace,
		interval:  cfg.Interval,
		batchSize: defaultBatchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
	if s.grace <= 0 {
		s.grace = DefaultGrace
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	return s
}

// SweepOnce settles every reservation older than the grace period:
//   - no transaction hash: it was never submitted, cancel
//   - transaction found and successful: confirm
//   - transaction found and failed: cancel
//   - transaction not found and its validity window has passed: cancel
//
// Anything else stays reserved for a later sweep.
func (s *Sweeper) SweepOnce(ctx context.Context) (Report, error) {
	var report Report

	now := s.now()
	stale, err := s.ledger.ListStaleReservations(ctx, now.Add(-s.grace), s.batchSize)
	if err != nil {
		return report, fmt.Errorf("unable to list stale reservations: %w", err)
	}

	for _, reservation := range stale {
		action, err := s.settle(ctx, reservation, now)
		if err != nil {
			report.Failed++
			zap.L().Error("Failed to reconcile reservation",
				zap.String("reservation_id", reservation.Id),
				zap.String("tx_hash", reservation.TransactionHash),
				zap.Error(err))
			continue
		}

		switch action {
		case "confirmed":
			report.Confirmed++
		case "cancelled":
			report.Cancelled++
		default:
			report.Pending++
		}
		metrics.Reconciled.WithLabelValues(action).Inc()
	}

	if len(stale) > 0 {
		zap.L().Info("Reconciliation sweep finished",
			zap.Int("stale", len(stale)),
			zap.Int("confirmed", report.Confirmed),
			zap.Int("cancelled", report.Cancelled),
			zap.Int("pending", report.Pending),
			zap.Int("failed", report.Failed))
	}
	return report, nil
}

func (s *Sweeper) settle(ctx context.Context, reservation models.PaymentReservation, now time.Time) (string, error) {
	if reservation.TransactionHash == "" {
		return "cancelled", s.ledger.CancelPayment(ctx, reservation.Id)
	}

	status, err := s.chain.TransactionStatus(ctx, reservation.TransactionHash)
	if err != nil {
		return "", err
	}

	switch {
	case status.Found && status.Successful:
		return "confirmed", s.ledger.ConfirmPayment(ctx, reservation.Id, reservation.TransactionHash)
	case status.Found:
		return "cancelled", s.ledger.CancelPayment(ctx, reservation.Id)
	case !reservation.ValidUntil.IsZero() && now.After(reservation.ValidUntil):
		return "cancelled", s.ledger.CancelPayment(ctx, reservation.Id)
	default:
		return "pending", nil
	}
}

// Run sweeps immediately and then on every interval until ctx is cancelled
func (s *Sweeper) Run(ctx context.Context) error {
	zap.L().Info("Starting reconciliation sweeper",
		zap.Duration("interval", s.interval),
		zap.Duration("grace", s.grace))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil {
			zap.L().Error("Reconciliation sweep failed", zap.Error(err))
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			zap.L().Info("Reconciliation sweeper stopped")
			return nil
		}
	}
}

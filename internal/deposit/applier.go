// Package deposit credits relayed chain deposits to user balances.
package deposit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"stellar-send-receive-go/internal/metrics"
	"stellar-send-receive-go/internal/models"
	"stellar-send-receive-go/internal/stellar"
	"stellar-send-receive-go/internal/store"
)

// ErrMalformedEvent marks a delivery that can never be applied
var ErrMalformedEvent = errors.New("malformed deposit event")

var errDeliveriesClosed = errors.New("delivery channel closed")

// Ledger is the part of the ledger the applier writes to
type Ledger interface {
	ProcessDeposit(ctx context.Context, params store.DepositParams) (store.DepositOutcome, error)
}

// DeliverySource yields queue deliveries; *queue.Consumer satisfies it
type DeliverySource interface {
	Deliveries() (<-chan amqp.Delivery, error)
}

type Applier struct {
	ledger Ledger
	source DeliverySource
}

func NewApplier(ledger Ledger, source DeliverySource) *Applier {
	return &Applier{ledger: ledger, source: source}
}

// Apply credits one relayed payment. Replays and unknown users are no-ops.
func (a *Applier) Apply(ctx context.Context, event models.PaymentEvent) (store.DepositOutcome, error) {
	if event.OperationId == "" {
		return "", fmt.Errorf("%w: missing operation id", ErrMalformedEvent)
	}
	if event.AssetType != models.AssetTypeNative {
		return "", fmt.Errorf("%w: unsupported asset type %q", ErrMalformedEvent, event.AssetType)
	}

	userId, err := stellar.ParseMuxedId(event.ToMuxedId)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	amount, err := stellar.ParseStroops(event.Amount)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if amount <= 0 {
		return "", fmt.Errorf("%w: non-positive amount %s", ErrMalformedEvent, event.Amount)
	}

	outcome, err := a.ledger.ProcessDeposit(ctx, store.DepositParams{
		UserId:          userId,
		Amount:          amount,
		OperationId:     event.OperationId,
		TransactionHash: event.TransactionHash,
	})
	if err != nil {
		return "", fmt.Errorf("unable to process deposit %s: %w", event.OperationId, err)
	}

	if outcome == store.DepositApplied {
		zap.L().Info("Deposit applied",
			zap.Int64("user_id", userId),
			zap.String("amount", event.Amount),
			zap.String("operation_id", event.OperationId),
			zap.String("tx_hash", event.TransactionHash))
	}
	return outcome, nil
}

// Run consumes deliveries one at a time until ctx is cancelled. Applied and
// no-op deliveries are acked; malformed ones are rejected without requeue;
// anything else is requeued for another attempt.
func (a *Applier) Run(ctx context.Context) error {
	deliveries, err := a.source.Deliveries()
	if err != nil {
		return err
	}

	zap.L().Info("Deposit applier started")
	for {
		select {
		case <-ctx.Done():
			zap.L().Info("Deposit applier stopped")
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return errDeliveriesClosed
			}
			a.handle(ctx, delivery)
		}
	}
}

func (a *Applier) handle(ctx context.Context, delivery amqp.Delivery) {
	var event models.PaymentEvent
	err := json.Unmarshal(delivery.Body, &event)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	var outcome store.DepositOutcome
	if err == nil {
		outcome, err = a.Apply(ctx, event)
	}

	switch {
	case err == nil:
		metrics.Deposits.WithLabelValues(string(outcome)).Inc()
		if ackErr := delivery.Ack(false); ackErr != nil {
			zap.L().Error("Failed to ack delivery", zap.String("operation_id", event.OperationId), zap.Error(ackErr))
		}
	case errors.Is(err, ErrMalformedEvent):
		metrics.Deposits.WithLabelValues("rejected").Inc()
		zap.L().Error("Rejecting malformed deposit delivery",
			zap.Uint64("delivery_tag", delivery.DeliveryTag),
			zap.ByteString("body", delivery.Body),
			zap.Error(err))
		if rejectErr := delivery.Reject(false); rejectErr != nil {
			zap.L().Error("Failed to reject delivery", zap.Error(rejectErr))
		}
	default:
		metrics.Deposits.WithLabelValues("requeued").Inc()
		zap.L().Warn("Deposit failed, requeueing",
			zap.String("operation_id", event.OperationId),
			zap.Error(err))
		if nackErr := delivery.Nack(false, true); nackErr != nil {
			zap.L().Error("Failed to nack delivery", zap.Error(nackErr))
		}
	}
}

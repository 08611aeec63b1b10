// Package relay forwards deposits into custodian sub-accounts from the
// chain's payment stream to the deposit queue.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"stellar-send-receive-go/internal/metrics"
	"stellar-send-receive-go/internal/models"
	"stellar-send-receive-go/internal/queue"
)

const (
	DefaultReconnectTimeout = 10 * time.Second
	liveCursor              = "now"
)

var errStreamClosed = errors.New("payment stream closed")

// Source is the custodian's payment-operation stream
type Source interface {
	Stream(ctx context.Context, cursor string, handler func(models.StreamMessage)) error
}

// Sender publishes batches of relayed records
type Sender interface {
	NewBatch() *queue.Batch
	Send(ctx context.Context, batch *queue.Batch) error
	Close() error
}

type Relay struct {
	source           Source
	sender           Sender
	client           io.Closer
	accountId        string
	cursor           string
	reconnectTimeout time.Duration
	dryRun           bool
	status           *Status

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	running  atomic.Bool
	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

// New builds a relay for accountId. In dry-run mode sender and client may be
// nil; relevant records are logged instead of queued.
func New(source Source, sender Sender, client io.Closer, accountId string, cfg models.RelayConfig) (*Relay, error) {
	if source == nil {
		return nil, fmt.Errorf("payment stream source cannot be nil")
	}
	if accountId == "" {
		return nil, fmt.Errorf("account id cannot be empty")
	}
	if !cfg.DryRun && sender == nil {
		return nil, fmt.Errorf("queue sender is required unless dry run is enabled")
	}

	r := &Relay{
		source:           source,
		sender:           sender,
		client:           client,
		accountId:        accountId,
		cursor:           cfg.Cursor,
		reconnectTimeout: cfg.ReconnectTimeout,
		dryRun:           cfg.DryRun,
		status:           NewStatus(accountId),
		now:              func() time.Time { return time.Now().UTC() },
		sleep:            sleepContext,
		stopChan:         make(chan struct{}),
		doneChan:         make(chan struct{}),
	}
	if r.cursor == "" {
		r.cursor = liveCursor
	}
	if r.reconnectTimeout <= 0 {
		r.reconnectTimeout = DefaultReconnectTimeout
	}
	return r, nil
}

func (r *Relay) Status() *Status {
	return r.status
}

// Run subscribes to the stream and relays until ctx is cancelled or Close is
// called. A dropped subscription or a failed send is recorded, and after
// the reconnect timeout the relay resubscribes from the last handled record.
func (r *Relay) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return fmt.Errorf("relay already running")
	}
	defer close(r.doneChan)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-r.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	zap.L().Info("Starting payment relay",
		zap.String("account_id", r.accountId),
		zap.String("cursor", r.cursor),
		zap.Bool("dry_run", r.dryRun))

	for {
		err := r.subscribe(ctx)
		if ctx.Err() != nil {
			zap.L().Info("Payment relay stopped", zap.String("cursor", r.cursor))
			return nil
		}
		if err == nil {
			err = errStreamClosed
		}

		r.recordError(err)
		zap.L().Warn("Payment stream interrupted, reconnecting",
			zap.String("cursor", r.cursor),
			zap.Duration("reconnect_timeout", r.reconnectTimeout),
			zap.Error(err))

		if err := r.sleep(ctx, r.reconnectTimeout); err != nil {
			zap.L().Info("Payment relay stopped", zap.String("cursor", r.cursor))
			return nil
		}
	}
}

// subscribe runs one subscription. A send failure aborts it so the records
// are replayed from the resume cursor.
func (r *Relay) subscribe(ctx context.Context) error {
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var sendErr error
	err := r.source.Stream(subCtx, r.cursor, func(msg models.StreamMessage) {
		if sendErr != nil {
			return
		}
		if err := r.handle(subCtx, msg); err != nil {
			sendErr = err
			cancel()
		}
	})
	if sendErr != nil {
		return sendErr
	}
	return err
}

func (r *Relay) handle(ctx context.Context, msg models.StreamMessage) error {
	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = r.now()
	}
	r.status.messageReceived(receivedAt, len(msg.Records), messageJSON(msg))
	metrics.RelayEvents.WithLabelValues("message").Inc()
	metrics.RelayEvents.WithLabelValues("record").Add(float64(len(msg.Records)))

	var relevant []models.PaymentEvent
	for _, record := range msg.Records {
		if payment, ok := Relevant(record, r.accountId); ok {
			relevant = append(relevant, payment)
		}
	}

	if len(relevant) > 0 {
		last, err := r.relay(ctx, relevant)
		if err != nil {
			return err
		}
		if last != "" {
			r.status.messageRelayed(r.now(), last)
			metrics.RelayEvents.WithLabelValues("relayed").Inc()
		}
	}

	// every record of the message is handled
	if n := len(msg.Records); n > 0 {
		if token := msg.Records[n-1].Cursor(); token != "" {
			r.cursor = token
		}
	}
	return nil
}

// relay queues payments in order and returns the paging token of the last
// one queued. A payment too large for an empty batch is recorded as an error
// and skipped; the rest of the message is still relayed.
func (r *Relay) relay(ctx context.Context, payments []models.PaymentEvent) (string, error) {
	if r.dryRun {
		for _, p := range payments {
			zap.L().Info("Dry run: would relay deposit",
				zap.String("operation_id", p.OperationId),
				zap.String("to_muxed_id", p.ToMuxedId),
				zap.String("amount", p.Amount),
				zap.String("paging_token", p.PagingToken))
		}
		return payments[len(payments)-1].PagingToken, nil
	}

	batch := r.sender.NewBatch()
	pending, last := "", ""
	for _, p := range payments {
		body, err := json.Marshal(p)
		if err != nil {
			return last, fmt.Errorf("unable to encode payment %s: %w", p.OperationId, err)
		}
		if batch.TryAdd(body) {
			pending = p.PagingToken
			continue
		}
		if batch.Len() > 0 {
			if err := r.flush(ctx, batch, pending); err != nil {
				return last, err
			}
			last = pending
			batch = r.sender.NewBatch()
			if batch.TryAdd(body) {
				pending = p.PagingToken
				continue
			}
		}
		r.dropOversized(p, len(body))
	}
	if err := r.flush(ctx, batch, pending); err != nil {
		return last, err
	}
	if batch.Len() > 0 {
		last = pending
	}
	return last, nil
}

func (r *Relay) dropOversized(p models.PaymentEvent, size int) {
	err := fmt.Errorf("payment %s (%d bytes): %w", p.OperationId, size, queue.ErrRecordTooLarge)
	r.recordError(err)
	zap.L().Error("Payment does not fit an empty batch and was not relayed",
		zap.String("operation_id", p.OperationId),
		zap.String("transaction_hash", p.TransactionHash),
		zap.String("to_muxed_id", p.ToMuxedId),
		zap.String("amount", p.Amount),
		zap.String("paging_token", p.PagingToken),
		zap.Int("bytes", size),
		zap.Error(err))
}

// flush sends batch and moves the resume cursor to its last record
func (r *Relay) flush(ctx context.Context, batch *queue.Batch, lastToken string) error {
	if batch.Len() == 0 {
		return nil
	}
	if err := r.sender.Send(ctx, batch); err != nil {
		return fmt.Errorf("unable to send batch of %d records: %w", batch.Len(), err)
	}
	zap.L().Debug("Relayed batch", zap.Int("records", batch.Len()), zap.String("paging_token", lastToken))
	r.cursor = lastToken
	return nil
}

func (r *Relay) recordError(err error) {
	r.status.errorOccurred(r.now(), err)
	metrics.RelayEvents.WithLabelValues("error").Inc()
}

// Close stops the subscription, then closes the sender and the client
func (r *Relay) Close() error {
	r.stopOnce.Do(func() { close(r.stopChan) })
	if r.running.Load() {
		<-r.doneChan
	}

	var errs []error
	if r.sender != nil {
		if err := r.sender.Close(); err != nil {
			errs = append(errs, fmt.Errorf("unable to close sender: %w", err))
		}
	}
	if r.client != nil {
		if err := r.client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("unable to close client: %w", err))
		}
	}
	return errors.Join(errs...)
}

func messageJSON(msg models.StreamMessage) json.RawMessage {
	if len(msg.Records) == 1 {
		return msg.Records[0].RawJSON()
	}
	raws := make([]json.RawMessage, 0, len(msg.Records))
	for _, record := range msg.Records {
		raws = append(raws, record.RawJSON())
	}
	encoded, err := json.Marshal(raws)
	if err != nil {
		return nil
	}
	return encoded
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

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stellar-send-receive-go/internal/models"
	"stellar-send-receive-go/internal/queue"
)

const custodian = "GDQNY3PBOJOKYZSRMK2S7LHHGWZIUISD4QORETLMXEWXBI7KFZZMKTL3"

type streamRun func(ctx context.Context, handler func(models.StreamMessage)) error

// fakeSource plays one scripted run per subscription. A run that ends
// cleanly, or no run at all, stands for a healthy stream and shuts the relay
// down.
type fakeSource struct {
	mu      sync.Mutex
	runs    []streamRun
	cursors []string
	cancel  context.CancelFunc
}

func (f *fakeSource) Stream(ctx context.Context, cursor string, handler func(models.StreamMessage)) error {
	f.mu.Lock()
	f.cursors = append(f.cursors, cursor)
	i := len(f.cursors) - 1
	f.mu.Unlock()

	if i < len(f.runs) {
		err := f.runs[i](ctx, handler)
		if err != nil || ctx.Err() != nil {
			if err == nil {
				err = ctx.Err()
			}
			return err
		}
	}
	// stays subscribed until shutdown
	f.cancel()
	<-ctx.Done()
	return ctx.Err()
}

func emit(err error, messages ...models.StreamMessage) streamRun {
	return func(ctx context.Context, handler func(models.StreamMessage)) error {
		for _, msg := range messages {
			handler(msg)
		}
		return err
	}
}

type fakeSender struct {
	maxBytes int
	failures []error
	batches  [][][]byte
	events   *[]string
}

func (f *fakeSender) NewBatch() *queue.Batch {
	return queue.NewBatch(f.maxBytes)
}

func (f *fakeSender) Send(ctx context.Context, batch *queue.Batch) error {
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		if err != nil {
			return err
		}
	}
	f.batches = append(f.batches, batch.Bodies())
	return nil
}

func (f *fakeSender) Close() error {
	if f.events != nil {
		*f.events = append(*f.events, "sender")
	}
	return nil
}

type closerFunc func() error

func (c closerFunc) Close() error { return c() }

func deposit(id, token, muxedId string) models.PaymentEvent {
	return models.PaymentEvent{
		OperationId:     id,
		PagingToken:     token,
		TransactionHash: "hash-" + id,
		Type:            models.OperationTypePayment,
		AssetType:       models.AssetTypeNative,
		To:              custodian,
		ToMuxedId:       muxedId,
		Amount:          "1.0000000",
		Raw:             json.RawMessage(`{"id":"` + id + `"}`),
	}
}

func message(records ...models.InboundEvent) models.StreamMessage {
	return models.StreamMessage{Records: records, ReceivedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func newTestRelay(t *testing.T, source *fakeSource, sender *fakeSender, cfg models.RelayConfig) (*Relay, context.Context, *[]time.Duration) {
	t.Helper()
	var s Sender
	if sender != nil {
		s = sender
	}
	r, err := New(source, s, nil, custodian, cfg)
	require.NoError(t, err)

	slept := &[]time.Duration{}
	r.sleep = func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	source.cancel = cancel
	return r, ctx, slept
}

func decodeBody(t *testing.T, body []byte) models.PaymentEvent {
	t.Helper()
	var event models.PaymentEvent
	require.NoError(t, json.Unmarshal(body, &event))
	return event
}

func TestRelay_RelaysOnlyCustodianDeposits(t *testing.T) {
	wanted := deposit("op-1", "t1", "42")

	otherAccount := deposit("op-2", "t2", "42")
	otherAccount.To = "GOTHER"
	creditAsset := deposit("op-3", "t3", "42")
	creditAsset.AssetType = "credit_alphanum4"
	unmuxed := deposit("op-4", "t4", "")
	created := models.OtherEvent{OperationId: "op-5", PagingToken: "t5", Type: "create_account"}

	source := &fakeSource{runs: []streamRun{
		emit(nil, message(wanted, otherAccount, creditAsset, unmuxed, created)),
	}}
	sender := &fakeSender{}
	r, ctx, _ := newTestRelay(t, source, sender, models.RelayConfig{})

	require.NoError(t, r.Run(ctx))

	require.Len(t, sender.batches, 1)
	require.Len(t, sender.batches[0], 1)
	relayed := decodeBody(t, sender.batches[0][0])
	assert.Equal(t, "op-1", relayed.OperationId)
	assert.Equal(t, "42", relayed.ToMuxedId)
	assert.Equal(t, "hash-op-1", relayed.TransactionHash)

	status := r.Status().Snapshot()
	assert.Equal(t, custodian, status.AccountId)
	assert.Equal(t, int64(1), status.MessageCount)
	assert.Equal(t, int64(5), status.RecordCount)
	assert.Equal(t, int64(1), status.RelayCount)
	assert.Equal(t, "t1", status.LastPagingToken)
	assert.NotNil(t, status.LastMessageRelayedAt)
}

func TestRelay_StartsFromLiveTipByDefault(t *testing.T) {
	source := &fakeSource{}
	r, ctx, _ := newTestRelay(t, source, &fakeSender{}, models.RelayConfig{})

	require.NoError(t, r.Run(ctx))
	assert.Equal(t, []string{"now"}, source.cursors)
}

func TestRelay_FlushesWhenBatchIsFull(t *testing.T) {
	first := deposit("op-1", "t1", "7")
	body, err := json.Marshal(first)
	require.NoError(t, err)

	source := &fakeSource{runs: []streamRun{
		emit(nil, message(first, deposit("op-2", "t2", "7"), deposit("op-3", "t3", "7"))),
	}}
	sender := &fakeSender{maxBytes: len(body) + 1}
	r, ctx, _ := newTestRelay(t, source, sender, models.RelayConfig{})

	require.NoError(t, r.Run(ctx))

	require.Len(t, sender.batches, 3)
	for i, batch := range sender.batches {
		require.Len(t, batch, 1, "batch %d", i)
	}
	assert.Equal(t, "op-3", decodeBody(t, sender.batches[2][0]).OperationId)
	assert.Equal(t, int64(1), r.Status().Snapshot().RelayCount)
}

func TestRelay_RecordTooLargeIsCountedAndSkipped(t *testing.T) {
	source := &fakeSource{runs: []streamRun{
		emit(nil, message(deposit("op-1", "t1", "7"))),
	}}
	sender := &fakeSender{maxBytes: 10}
	r, ctx, slept := newTestRelay(t, source, sender, models.RelayConfig{})

	require.NoError(t, r.Run(ctx))

	assert.Empty(t, sender.batches)
	assert.Empty(t, *slept, "an oversized record must not force a reconnect")

	status := r.Status().Snapshot()
	assert.Equal(t, int64(1), status.ErrorCount)
	assert.Equal(t, int64(0), status.RelayCount)
	assert.Contains(t, status.LastError, queue.ErrRecordTooLarge.Error())
	assert.Empty(t, status.LastPagingToken)
}

func TestRelay_OversizedRecordDoesNotDropTheRestOfTheMessage(t *testing.T) {
	big := deposit("op-big", "t1", "7")
	big.From = strings.Repeat("G", 2048)
	small := deposit("op-small", "t2", "8")
	unrelated := deposit("op-other", "t3", "9")
	unrelated.To = "GOTHER"

	body, err := json.Marshal(small)
	require.NoError(t, err)

	source := &fakeSource{runs: []streamRun{
		emit(nil, message(big, small), message(unrelated)),
	}}
	sender := &fakeSender{maxBytes: len(body) + 16}
	r, ctx, slept := newTestRelay(t, source, sender, models.RelayConfig{})

	require.NoError(t, r.Run(ctx))

	require.Len(t, sender.batches, 1)
	require.Len(t, sender.batches[0], 1)
	assert.Equal(t, "op-small", decodeBody(t, sender.batches[0][0]).OperationId)
	assert.Empty(t, *slept)

	status := r.Status().Snapshot()
	assert.Equal(t, int64(1), status.ErrorCount)
	assert.Contains(t, status.LastError, "op-big")
	assert.Contains(t, status.LastError, queue.ErrRecordTooLarge.Error())
	assert.Equal(t, int64(1), status.RelayCount)
	assert.Equal(t, "t2", status.LastPagingToken)
	assert.Equal(t, "t3", r.cursor)
}

func TestRelay_ReconnectsFromLastRelayedToken(t *testing.T) {
	source := &fakeSource{runs: []streamRun{
		emit(errors.New("stream dropped"), message(deposit("op-1", "t1", "7"))),
		emit(nil, message(deposit("op-2", "t2", "7"))),
	}}
	sender := &fakeSender{}
	r, ctx, slept := newTestRelay(t, source, sender, models.RelayConfig{
		Cursor:           "100",
		ReconnectTimeout: 2 * time.Second,
	})

	require.NoError(t, r.Run(ctx))

	require.GreaterOrEqual(t, len(source.cursors), 2)
	assert.Equal(t, "100", source.cursors[0])
	assert.Equal(t, "t1", source.cursors[1])
	require.NotEmpty(t, *slept)
	assert.Equal(t, 2*time.Second, (*slept)[0])

	status := r.Status().Snapshot()
	assert.Equal(t, int64(2), status.RelayCount)
	assert.GreaterOrEqual(t, status.ErrorCount, int64(1))
	assert.Equal(t, "t2", status.LastPagingToken)
}

func TestRelay_SendFailureReplaysUnsentRecords(t *testing.T) {
	source := &fakeSource{runs: []streamRun{
		emit(nil, message(deposit("op-1", "t1", "7"))),
		emit(nil, message(deposit("op-1", "t1", "7"))),
	}}
	sender := &fakeSender{failures: []error{errors.New("broker unavailable")}}
	r, ctx, slept := newTestRelay(t, source, sender, models.RelayConfig{Cursor: "50"})

	require.NoError(t, r.Run(ctx))

	require.GreaterOrEqual(t, len(source.cursors), 2)
	assert.Equal(t, "50", source.cursors[1], "cursor must not move past an unsent record")
	assert.Equal(t, []time.Duration{DefaultReconnectTimeout}, *slept)

	require.Len(t, sender.batches, 1)
	assert.Equal(t, "op-1", decodeBody(t, sender.batches[0][0]).OperationId)

	status := r.Status().Snapshot()
	assert.Equal(t, int64(1), status.ErrorCount)
	assert.Contains(t, status.LastError, "broker unavailable")
}

func TestRelay_SkipsIrrelevantMessagesOnResume(t *testing.T) {
	created := models.OtherEvent{OperationId: "op-9", PagingToken: "t9", Type: "create_account"}
	source := &fakeSource{runs: []streamRun{
		emit(errors.New("stream dropped"), message(created)),
	}}
	r, ctx, _ := newTestRelay(t, source, &fakeSender{}, models.RelayConfig{Cursor: "1"})

	require.NoError(t, r.Run(ctx))

	require.GreaterOrEqual(t, len(source.cursors), 2)
	assert.Equal(t, "t9", source.cursors[1])
	assert.Equal(t, int64(0), r.Status().Snapshot().RelayCount)
}

func TestRelay_DryRunDoesNotNeedSender(t *testing.T) {
	source := &fakeSource{runs: []streamRun{
		emit(nil, message(deposit("op-1", "t1", "7"))),
	}}
	r, ctx, _ := newTestRelay(t, source, nil, models.RelayConfig{DryRun: true})

	require.NoError(t, r.Run(ctx))

	status := r.Status().Snapshot()
	assert.Equal(t, int64(1), status.RelayCount)
	assert.Equal(t, "t1", status.LastPagingToken)
	require.NoError(t, r.Close())
}

func TestRelay_CloseStopsStreamThenSenderThenClient(t *testing.T) {
	var events []string
	sender := &fakeSender{events: &events}
	client := closerFunc(func() error {
		events = append(events, "client")
		return nil
	})

	streaming := make(chan struct{})
	source := &fakeSource{runs: []streamRun{
		func(ctx context.Context, handler func(models.StreamMessage)) error {
			close(streaming)
			<-ctx.Done()
			return ctx.Err()
		},
	}}

	r, err := New(source, sender, client, custodian, models.RelayConfig{})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()
	<-streaming

	require.NoError(t, r.Close())
	require.NoError(t, <-done)
	assert.Equal(t, []string{"sender", "client"}, events)
}

func TestNew_Validation(t *testing.T) {
	source := &fakeSource{}

	_, err := New(nil, &fakeSender{}, nil, custodian, models.RelayConfig{})
	assert.Error(t, err)

	_, err = New(source, &fakeSender{}, nil, "", models.RelayConfig{})
	assert.Error(t, err)

	_, err = New(source, nil, nil, custodian, models.RelayConfig{})
	assert.Error(t, err)

	r, err := New(source, nil, nil, custodian, models.RelayConfig{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, DefaultReconnectTimeout, r.reconnectTimeout)
}

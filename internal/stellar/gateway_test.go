package stellar

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/support/render/problem"
	"github.com/stellar/go/txnbuild"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"stellar-send-receive-go/internal/models"
)

type MockHorizon struct {
	mock.Mock
}

func (m *MockHorizon) AccountDetail(request horizonclient.AccountRequest) (hProtocol.Account, error) {
	args := m.Called(request)
	return args.Get(0).(hProtocol.Account), args.Error(1)
}

func (m *MockHorizon) FeeStats() (hProtocol.FeeStats, error) {
	args := m.Called()
	return args.Get(0).(hProtocol.FeeStats), args.Error(1)
}

func (m *MockHorizon) SubmitTransaction(transaction *txnbuild.Transaction) (hProtocol.Transaction, error) {
	args := m.Called(transaction)
	return args.Get(0).(hProtocol.Transaction), args.Error(1)
}

func (m *MockHorizon) TransactionDetail(txHash string) (hProtocol.Transaction, error) {
	args := m.Called(txHash)
	return args.Get(0).(hProtocol.Transaction), args.Error(1)
}

func (m *MockHorizon) StreamPayments(ctx context.Context, request horizonclient.OperationRequest, handler horizonclient.OperationHandler) error {
	args := m.Called(ctx, request, handler)
	return args.Error(0)
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestGateway(t *testing.T) (*Gateway, *MockHorizon, *keypair.Full) {
	kp := keypair.MustRandom()
	client := new(MockHorizon)
	gateway, err := NewGateway(client, models.StellarConfig{
		NetworkPassphrase: network.TestNetworkPassphrase,
		CustodianSecret:   kp.Seed(),
	})
	require.NoError(t, err)
	gateway.now = func() time.Time { return fixedNow }
	return gateway, client, kp
}

func notFound() error {
	return &horizonclient.Error{Problem: problem.P{
		Type:   "https://stellar.org/horizon-errors/not_found",
		Title:  "Resource Missing",
		Status: 404,
	}}
}

func TestNewGateway_Validation(t *testing.T) {
	kp := keypair.MustRandom()
	other := keypair.MustRandom()

	_, err := NewGateway(new(MockHorizon), models.StellarConfig{CustodianSecret: kp.Seed()})
	assert.Error(t, err, "passphrase is required")

	_, err = NewGateway(new(MockHorizon), models.StellarConfig{NetworkPassphrase: network.TestNetworkPassphrase})
	assert.Error(t, err, "secret or account id is required")

	_, err = NewGateway(new(MockHorizon), models.StellarConfig{
		NetworkPassphrase: network.TestNetworkPassphrase,
		CustodianSecret:   kp.Seed(),
		AccountId:         other.Address(),
	})
	assert.Error(t, err, "mismatched account id")

	readOnly, err := NewGateway(new(MockHorizon), models.StellarConfig{
		NetworkPassphrase: network.TestNetworkPassphrase,
		AccountId:         kp.Address(),
	})
	require.NoError(t, err)
	assert.Equal(t, kp.Address(), readOnly.CustodianAddress())

	_, err = readOnly.PreparePayment(context.Background(), 1, other.Address(), "1")
	var subErr *ChainSubmissionError
	assert.ErrorAs(t, err, &subErr)
}

func TestAccountExists(t *testing.T) {
	gateway, client, _ := newTestGateway(t)
	ctx := context.Background()

	dest := keypair.MustRandom().Address()
	missing := keypair.MustRandom().Address()
	muxedDest, err := MuxedAddress(dest, 99)
	require.NoError(t, err)

	client.On("AccountDetail", horizonclient.AccountRequest{AccountID: dest}).Return(hProtocol.Account{AccountID: dest}, nil)
	client.On("AccountDetail", horizonclient.AccountRequest{AccountID: missing}).Return(hProtocol.Account{}, notFound())

	assert.True(t, gateway.AccountExists(ctx, dest))
	assert.True(t, gateway.AccountExists(ctx, muxedDest), "muxed destinations resolve to their base account")
	assert.False(t, gateway.AccountExists(ctx, missing))
	assert.False(t, gateway.AccountExists(ctx, "not-an-address"))
	client.AssertNumberOfCalls(t, "AccountDetail", 3)
}

func TestPreparePayment_SignsMuxedPayment(t *testing.T) {
	gateway, client, kp := newTestGateway(t)
	ctx := context.Background()
	dest := keypair.MustRandom().Address()

	client.On("AccountDetail", horizonclient.AccountRequest{AccountID: kp.Address()}).
		Return(hProtocol.Account{AccountID: kp.Address(), Sequence: 100}, nil)
	client.On("FeeStats").Return(hProtocol.FeeStats{LastLedgerBaseFee: 100}, nil)

	payment, err := gateway.PreparePayment(ctx, 7, dest, "1.0000000")
	require.NoError(t, err)

	sender, _ := MuxedAddress(kp.Address(), 7)
	assert.Equal(t, sender, payment.Sender)
	assert.Len(t, payment.Hash, 64)
	assert.Equal(t, fixedNow.Add(30*time.Second), payment.ValidUntil)
	assert.Equal(t, int64(101), payment.Transaction.SequenceNumber())
	assert.Equal(t, fixedNow.Add(30*time.Second).Unix(), payment.Transaction.Timebounds().MaxTime)

	ops := payment.Transaction.Operations()
	require.Len(t, ops, 1)
	op, ok := ops[0].(*txnbuild.Payment)
	require.True(t, ok)
	assert.Equal(t, dest, op.Destination)
	assert.Equal(t, "1.0000000", op.Amount)
	assert.Equal(t, sender, op.SourceAccount)

	hash, err := payment.Transaction.HashHex(network.TestNetworkPassphrase)
	require.NoError(t, err)
	assert.Equal(t, hash, payment.Hash)
}

func TestSubmitNativePayment_FailuresAreChainSubmissionErrors(t *testing.T) {
	ctx := context.Background()
	dest := keypair.MustRandom().Address()

	t.Run("fee lookup", func(t *testing.T) {
		gateway, client, kp := newTestGateway(t)
		client.On("AccountDetail", mock.Anything).Return(hProtocol.Account{AccountID: kp.Address(), Sequence: 1}, nil)
		client.On("FeeStats").Return(hProtocol.FeeStats{}, errors.New("timeout"))

		_, err := gateway.SubmitNativePayment(ctx, 1, dest, "5")
		var subErr *ChainSubmissionError
		require.ErrorAs(t, err, &subErr)
		assert.Equal(t, "fetch_fee", subErr.Stage)
		assert.Empty(t, subErr.TransactionHash)
		client.AssertNotCalled(t, "SubmitTransaction", mock.Anything)
	})

	t.Run("submission rejected", func(t *testing.T) {
		gateway, client, kp := newTestGateway(t)
		client.On("AccountDetail", mock.Anything).Return(hProtocol.Account{AccountID: kp.Address(), Sequence: 1}, nil)
		client.On("FeeStats").Return(hProtocol.FeeStats{LastLedgerBaseFee: 100}, nil)
		client.On("SubmitTransaction", mock.Anything).
			Return(hProtocol.Transaction{}, errors.New("tx_bad_seq"))

		_, err := gateway.SubmitNativePayment(ctx, 1, dest, "5")
		var subErr *ChainSubmissionError
		require.ErrorAs(t, err, &subErr)
		assert.Equal(t, "submit", subErr.Stage)
		assert.Len(t, subErr.TransactionHash, 64)
		assert.False(t, subErr.OutcomeUnknown)
	})

	t.Run("submission timed out", func(t *testing.T) {
		gateway, client, kp := newTestGateway(t)
		client.On("AccountDetail", mock.Anything).Return(hProtocol.Account{AccountID: kp.Address(), Sequence: 1}, nil)
		client.On("FeeStats").Return(hProtocol.FeeStats{LastLedgerBaseFee: 100}, nil)
		client.On("SubmitTransaction", mock.Anything).
			Return(hProtocol.Transaction{}, &horizonclient.Error{Problem: problem.P{Title: "Timeout", Status: 504}})

		_, err := gateway.SubmitNativePayment(ctx, 1, dest, "5")
		var subErr *ChainSubmissionError
		require.ErrorAs(t, err, &subErr)
		assert.Equal(t, "submit", subErr.Stage)
		assert.True(t, subErr.OutcomeUnknown)
	})

	t.Run("destination requires memo", func(t *testing.T) {
		gateway, client, kp := newTestGateway(t)
		client.On("AccountDetail", mock.Anything).Return(hProtocol.Account{AccountID: kp.Address(), Sequence: 1}, nil)
		client.On("FeeStats").Return(hProtocol.FeeStats{LastLedgerBaseFee: 100}, nil)
		client.On("SubmitTransaction", mock.Anything).
			Return(hProtocol.Transaction{}, fmt.Errorf("operation[0]: %w", horizonclient.ErrAccountRequiresMemo))

		_, err := gateway.SubmitNativePayment(ctx, 1, dest, "5")
		var subErr *ChainSubmissionError
		require.ErrorAs(t, err, &subErr)
		assert.Equal(t, "submit", subErr.Stage)
		assert.ErrorIs(t, err, horizonclient.ErrAccountRequiresMemo)
	})

	t.Run("zero fee stats fall back to minimum fee", func(t *testing.T) {
		gateway, client, kp := newTestGateway(t)
		client.On("AccountDetail", mock.Anything).Return(hProtocol.Account{AccountID: kp.Address(), Sequence: 1}, nil)
		client.On("FeeStats").Return(hProtocol.FeeStats{}, nil)

		payment, err := gateway.PreparePayment(ctx, 1, dest, "5")
		require.NoError(t, err)
		assert.Equal(t, int64(txnbuild.MinBaseFee), payment.Transaction.BaseFee())
	})

	t.Run("success", func(t *testing.T) {
		gateway, client, kp := newTestGateway(t)
		client.On("AccountDetail", mock.Anything).Return(hProtocol.Account{AccountID: kp.Address(), Sequence: 1}, nil)
		client.On("FeeStats").Return(hProtocol.FeeStats{LastLedgerBaseFee: 100}, nil)
		client.On("SubmitTransaction", mock.Anything).
			Return(hProtocol.Transaction{Hash: "abc", Successful: true, Ledger: 42}, nil)

		receipt, err := gateway.SubmitNativePayment(ctx, 1, dest, "5")
		require.NoError(t, err)
		assert.Equal(t, "abc", receipt.TransactionHash)
		assert.Equal(t, int32(42), receipt.Ledger)
	})
}

func TestTransactionStatus(t *testing.T) {
	gateway, client, _ := newTestGateway(t)
	ctx := context.Background()

	client.On("TransactionDetail", "ok").Return(hProtocol.Transaction{Hash: "ok", Successful: true, Ledger: 9}, nil)
	client.On("TransactionDetail", "failed").Return(hProtocol.Transaction{Hash: "failed", Successful: false}, nil)
	client.On("TransactionDetail", "missing").Return(hProtocol.Transaction{}, notFound())
	client.On("TransactionDetail", "flaky").Return(hProtocol.Transaction{}, errors.New("connection reset"))

	status, err := gateway.TransactionStatus(ctx, "ok")
	require.NoError(t, err)
	assert.Equal(t, TxStatus{Found: true, Successful: true, Ledger: 9}, status)

	status, err = gateway.TransactionStatus(ctx, "failed")
	require.NoError(t, err)
	assert.True(t, status.Found)
	assert.False(t, status.Successful)

	status, err = gateway.TransactionStatus(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, status.Found)

	_, err = gateway.TransactionStatus(ctx, "flaky")
	assert.Error(t, err)
}

func TestStream_WrapsEachOperation(t *testing.T) {
	gateway, client, kp := newTestGateway(t)
	ctx := context.Background()

	client.On("StreamPayments", ctx, horizonclient.OperationRequest{ForAccount: kp.Address(), Cursor: "now"}, mock.Anything).
		Run(func(args mock.Arguments) {
			handler := args.Get(2).(horizonclient.OperationHandler)
			handler(testPayment("1", kp.Address(), "M"+kp.Address(), 5))
		}).
		Return(nil)

	var messages []models.StreamMessage
	err := gateway.Stream(ctx, "now", func(msg models.StreamMessage) {
		messages = append(messages, msg)
	})

	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Len(t, messages[0].Records, 1)
	assert.Equal(t, fixedNow, messages[0].ReceivedAt)
	assert.Equal(t, "1", messages[0].Records[0].Cursor())
}

package payment

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"stellar-send-receive-go/internal/database"
	"stellar-send-receive-go/internal/lease"
	"stellar-send-receive-go/internal/models"
	"stellar-send-receive-go/internal/stellar"
	"stellar-send-receive-go/internal/store"
)

func setupLedger(t *testing.T) (*database.Service, *lease.Lock) {
	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "saga.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	lock, err := lease.NewLock(db.Leases(), "GCUSTODIAN", lease.RetryPolicy{
		MaxAttempts:   1,
		LeaseDuration: 15 * time.Second,
	})
	require.NoError(t, err)
	return db, lock
}

func TestPay_EndToEndAgainstSQLite(t *testing.T) {
	ctx := context.Background()
	db, lock := setupLedger(t)

	user, err := db.CreateUser(ctx, "alice", "hash")
	require.NoError(t, err)
	outcome, err := db.ProcessDeposit(ctx, store.DepositParams{
		UserId: user.Id, Amount: 10_000_000, OperationId: "op-1", TransactionHash: "deposit-hash",
	})
	require.NoError(t, err)
	require.Equal(t, store.DepositApplied, outcome)

	gateway := new(MockGateway)
	gateway.On("AccountExists", mock.Anything, destination).Return(true)
	gateway.On("PreparePayment", mock.Anything, user.Id, destination, "1.0000000").
		Return(&stellar.PreparedPayment{Hash: "chain-hash", ValidUntil: time.Now().Add(30 * time.Second)}, nil)
	gateway.On("Submit", mock.Anything, mock.Anything).
		Return(&stellar.Receipt{TransactionHash: "chain-hash", Ledger: 12}, nil)

	service := NewService(db, gateway, lock)

	balance, err := db.GetUserBalance(ctx, user.Id)
	require.NoError(t, err)
	result, err := service.Pay(ctx, PayRequest{UserId: user.Id, Balance: balance, Destination: destination, Amount: "1.0000000"})
	require.NoError(t, err)

	reservation, err := db.GetReservation(ctx, result.ReservationId)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationConfirmed, reservation.Status)
	assert.Equal(t, "chain-hash", reservation.TransactionHash)

	balance, err = db.GetUserBalance(ctx, user.Id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	// The same request again fails before anything is reserved
	_, err = service.Pay(ctx, PayRequest{UserId: user.Id, Balance: balance, Destination: destination, Amount: "1.0000000"})
	assert.ErrorIs(t, err, store.ErrInsufficientBalance)
	stale, err := db.ListStaleReservations(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, stale)

	// The lock was released, so a new lease is immediately available
	token, err := lock.Acquire(ctx)
	require.NoError(t, err)
	assert.NotNil(t, token)

	assert.NoError(t, db.ReconcileUserBalance(ctx, user.Id))
}

func TestPay_FailedSubmissionRestoresBalance(t *testing.T) {
	ctx := context.Background()
	db, lock := setupLedger(t)

	user, err := db.CreateUser(ctx, "bob", "hash")
	require.NoError(t, err)
	_, err = db.ProcessDeposit(ctx, store.DepositParams{UserId: user.Id, Amount: 50_000_000, OperationId: "op-2"})
	require.NoError(t, err)

	gateway := new(MockGateway)
	gateway.On("AccountExists", mock.Anything, destination).Return(true)
	gateway.On("PreparePayment", mock.Anything, user.Id, destination, "3.0000000").
		Return(&stellar.PreparedPayment{Hash: "chain-hash", ValidUntil: time.Now().Add(30 * time.Second)}, nil)
	gateway.On("Submit", mock.Anything, mock.Anything).
		Return(nil, &stellar.ChainSubmissionError{Stage: "submit", Err: errors.New("tx_insufficient_balance")})

	service := NewService(db, gateway, lock)
	_, err = service.Pay(ctx, PayRequest{UserId: user.Id, Balance: 50_000_000, Destination: destination, Amount: "3"})

	var chainErr *stellar.ChainSubmissionError
	require.ErrorAs(t, err, &chainErr)

	balance, err := db.GetUserBalance(ctx, user.Id)
	require.NoError(t, err)
	assert.Equal(t, int64(50_000_000), balance)

	stale, err := db.ListStaleReservations(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, stale, "no reservation is left open")
	assert.NoError(t, db.ReconcileUserBalance(ctx, user.Id))
}

package store

import (
	"context"
	"errors"
	"time"

	"stellar-send-receive-go/internal/models"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrDuplicateTransaction   = errors.New("duplicate transaction")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrUserNotFound           = errors.New("user not found")
	ErrUsernameTaken          = errors.New("username already registered")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrReservationNotFound    = errors.New("reservation not found")
	ErrReservationFinalized   = errors.New("reservation already finalized")
)

// DepositOutcome reports what ProcessDeposit did with a delivery.
type DepositOutcome string

const (
	DepositApplied     DepositOutcome = "applied"
	DepositDuplicate   DepositOutcome = "duplicate"
	DepositUnknownUser DepositOutcome = "unknown_user"
)

// DepositParams identifies one inbound chain payment credited to a user.
type DepositParams struct {
	UserId          int64
	Amount          int64
	OperationId     string
	TransactionHash string
}

// PaymentLedger is the database contract used by the payment saga and the
// deposit applier. Every call is atomic on its own.
type PaymentLedger interface {
	// ReservePayment moves amount from the user's available balance into a
	// reservation. Fails with ErrInsufficientBalance when the balance is short
	// and ErrDuplicateTransaction when reservationId was already used.
	ReservePayment(ctx context.Context, userId int64, reservationId string, amount int64) error
	// AttachTransaction records the hash and validity window of the signed
	// transaction about to be submitted for a reservation.
	AttachTransaction(ctx context.Context, reservationId, txHash string, validUntil time.Time) error
	// ConfirmPayment marks the reservation spent. Idempotent.
	ConfirmPayment(ctx context.Context, reservationId, txHash string) error
	// CancelPayment returns the reserved amount to the available balance. Idempotent.
	CancelPayment(ctx context.Context, reservationId string) error
	// ProcessDeposit credits an inbound payment once per operation id; unknown
	// users are a no-op.
	ProcessDeposit(ctx context.Context, params DepositParams) (DepositOutcome, error)
}

// LedgerStore defines the contract that every balance backend (SQLite, Formance, ...) must satisfy.
type LedgerStore interface {
	PaymentLedger

	// --- Balances ---
	// GetUserBalance returns the available (unreserved) balance in stroops.
	GetUserBalance(ctx context.Context, userId int64) (int64, error)

	// --- Reservations ---
	GetReservation(ctx context.Context, reservationId string) (*models.PaymentReservation, error)
	ListStaleReservations(ctx context.Context, olderThan time.Time, limit int) ([]models.PaymentReservation, error)

	// --- Lifecycle ---
	Close()
}

// UserDirectory resolves internal user ids.
type UserDirectory interface {
	GetUserById(ctx context.Context, userId int64) (*models.User, error)
}

// UserStore backs registration, login and API key authentication. Users
// always live in the relational database regardless of the ledger backend.
type UserStore interface {
	UserDirectory
	CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error)
	GetUsers(ctx context.Context) ([]models.User, error)
	GetCredentials(ctx context.Context, username string) (userId int64, passwordHash string, err error)
	StoreApiKey(ctx context.Context, userId int64, keyHash string) error
	FindUserByApiKey(ctx context.Context, keyHash string) (*models.User, error)
}

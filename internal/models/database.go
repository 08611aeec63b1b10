package models

import (
	"time"
)

// User represents a custodial user. Balances live in the ledger backend.
type User struct {
	Id        int64     `db:"id"`
	Username  string    `db:"username"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ReservationStatus is the lifecycle state of a payment reservation
type ReservationStatus string

const (
	ReservationReserved  ReservationStatus = "reserved"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationCancelled ReservationStatus = "cancelled"
)

// AccountBalance represents current balance state (hot data), in stroops
type AccountBalance struct {
	UserId            int64     `db:"user_id"`
	Balance           int64     `db:"balance"`
	Reserved          int64     `db:"reserved"`
	LastTransactionId string    `db:"last_transaction_id"`
	Version           int64     `db:"version"`
	UpdatedAt         time.Time `db:"updated_at"`
}

// PaymentReservation is a provisional hold against a user's balance
type PaymentReservation struct {
	Id              string            `db:"id"`
	UserId          int64             `db:"user_id"`
	Amount          int64             `db:"amount"`
	TransactionHash string            `db:"transaction_hash"`
	ValidUntil      time.Time         `db:"valid_until"`
	Status          ReservationStatus `db:"status"`
	CreatedAt       time.Time         `db:"created_at"`
	UpdatedAt       time.Time         `db:"updated_at"`
}

// Transaction represents immutable balance history (cold data)
type Transaction struct {
	Id                    string    `db:"id"`
	UserId                int64     `db:"user_id"`
	TransactionType       string    `db:"transaction_type"`
	Amount                int64     `db:"amount"`
	BalanceBefore         int64     `db:"balance_before"`
	BalanceAfter          int64     `db:"balance_after"`
	ExternalTransactionId string    `db:"external_transaction_id"`
	TransactionHash       string    `db:"transaction_hash"`
	Reference             string    `db:"reference"`
	Status                string    `db:"status"`
	CreatedAt             time.Time `db:"created_at"`
}

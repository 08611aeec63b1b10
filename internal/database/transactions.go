package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"stellar-send-receive-go/internal/models"
	"stellar-send-receive-go/internal/store"
)

// ProcessTransactionParams contains the parameters for processing a transaction
type ProcessTransactionParams struct {
	UserId          int64
	TransactionType string
	Amount          int64 // signed change to the available balance
	ReservedDelta   int64 // signed change to the reserved total
	ExternalTxId    string
	TransactionHash string
	Reference       string
}

// ProcessTransaction atomically updates balance and records transaction
func (s *SubledgerService) ProcessTransaction(ctx context.Context, params ProcessTransactionParams) (*models.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	transaction, err := s.applyInTx(ctx, tx, params)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return transaction, nil
}

// applyInTx records one balance movement inside an open database transaction.
// Callers own commit and rollback.
func (s *SubledgerService) applyInTx(ctx context.Context, tx *sql.Tx, params ProcessTransactionParams) (*models.Transaction, error) {
	zap.L().Info("Processing transaction",
		zap.Int64("user_id", params.UserId),
		zap.String("type", params.TransactionType),
		zap.Int64("amount", params.Amount),
		zap.Int64("reserved_delta", params.ReservedDelta),
		zap.String("external_tx_id", params.ExternalTxId))

	// Check for duplicate external transaction Id
	if params.ExternalTxId != "" {
		var existingTxId string
		err := tx.QueryRowContext(ctx, queryCheckDuplicateTransaction, params.ExternalTxId).Scan(&existingTxId)
		if err == nil {
			zap.L().Warn("Duplicate external transaction Id detected, skipping",
				zap.String("external_tx_id", params.ExternalTxId),
				zap.String("existing_internal_tx_id", existingTxId))
			return nil, fmt.Errorf("%w: external_transaction_id %s already exists", store.ErrDuplicateTransaction, params.ExternalTxId)
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to check for duplicate transaction: %w", err)
		}
	}

	var currentBalance, currentReserved, version int64
	err := tx.QueryRowContext(ctx, queryGetAccountBalance, params.UserId).Scan(&currentBalance, &currentReserved, &version)
	if errors.Is(err, sql.ErrNoRows) {
		version = 1
		if _, err := tx.ExecContext(ctx, queryInsertAccountBalance, params.UserId); err != nil {
			return nil, fmt.Errorf("failed to create account balance: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to get current balance: %w", err)
	}

	newBalance := currentBalance + params.Amount
	newReserved := currentReserved + params.ReservedDelta
	if newBalance < 0 {
		return nil, fmt.Errorf("%w: user %d has %d, needs %d",
			store.ErrInsufficientBalance, params.UserId, currentBalance, -params.Amount)
	}
	if newReserved < 0 {
		return nil, fmt.Errorf("reserved total for user %d would become negative (%d)", params.UserId, newReserved)
	}

	transactionId := uuid.New().String()
	now := utcNow()
	transaction := &models.Transaction{}

	err = tx.QueryRowContext(ctx, queryInsertTransaction,
		transactionId, params.UserId, params.TransactionType,
		params.Amount, params.ReservedDelta, currentBalance, newBalance,
		params.ExternalTxId, params.TransactionHash, params.Reference, "confirmed", now).
		Scan(&transaction.Id, &transaction.UserId, &transaction.TransactionType,
			&transaction.Amount, &transaction.BalanceBefore, &transaction.BalanceAfter,
			&transaction.ExternalTransactionId, &transaction.TransactionHash, &transaction.Reference,
			&transaction.Status, &transaction.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: external_transaction_id %s already exists", store.ErrDuplicateTransaction, params.ExternalTxId)
		}
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}

	// Update account balance (with optimistic locking)
	result, err := tx.ExecContext(ctx, queryUpdateAccountBalance, newBalance, newReserved, transactionId, params.UserId, version)
	if err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("balance update failed - %w", store.ErrConcurrentModification)
	}

	if err := s.addJournalEntries(ctx, tx, transaction, params.ReservedDelta); err != nil {
		return nil, fmt.Errorf("failed to add journal entries: %w", err)
	}

	zap.L().Info("Transaction processed successfully",
		zap.String("transaction_id", transactionId),
		zap.Int64("user_id", params.UserId),
		zap.Int64("old_balance", currentBalance),
		zap.Int64("new_balance", newBalance),
		zap.Int64("reserved", newReserved))

	return transaction, nil
}

type journalEntry struct {
	accountType  string
	accountId    string
	debitAmount  int64
	creditAmount int64
}

// addJournalEntries creates double-entry bookkeeping entries
func (s *SubledgerService) addJournalEntries(ctx context.Context, tx *sql.Tx, transaction *models.Transaction, reservedDelta int64) error {
	userAccount := strconv.FormatInt(transaction.UserId, 10)

	var entries []journalEntry
	switch transaction.TransactionType {
	case TxTypeDeposit:
		// User asset increases, and so does what we owe the user
		entries = []journalEntry{
			{"user_asset", userAccount, transaction.Amount, 0},
			{"system_liability", "user_deposits_xlm", 0, transaction.Amount},
		}
	case TxTypePaymentReserve:
		entries = []journalEntry{
			{"user_asset", userAccount, 0, reservedDelta},
			{"user_reserved", userAccount, reservedDelta, 0},
		}
	case TxTypePaymentConfirm:
		// Funds left custody on chain
		entries = []journalEntry{
			{"user_reserved", userAccount, 0, -reservedDelta},
			{"system_liability", "user_deposits_xlm", -reservedDelta, 0},
		}
	case TxTypePaymentCancel:
		entries = []journalEntry{
			{"user_reserved", userAccount, 0, -reservedDelta},
			{"user_asset", userAccount, transaction.Amount, 0},
		}
	}

	for _, entry := range entries {
		_, err := tx.ExecContext(ctx, queryInsertJournalEntry,
			uuid.New().String(), transaction.Id, entry.accountType, entry.accountId, entry.debitAmount, entry.creditAmount)
		if err != nil {
			return err
		}
	}

	return nil
}

// GetTransactionHistory returns paginated transaction history for a user
func (s *SubledgerService) GetTransactionHistory(ctx context.Context, userId int64, limit, offset int) ([]models.Transaction, error) {
	zap.L().Debug("Getting transaction history",
		zap.Int64("user_id", userId),
		zap.Int("limit", limit),
		zap.Int("offset", offset))

	rows, err := s.db.QueryContext(ctx, queryGetTransactionHistory, userId, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction history: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var transactions []models.Transaction
	for rows.Next() {
		var tx models.Transaction
		err := rows.Scan(&tx.Id, &tx.UserId, &tx.TransactionType,
			&tx.Amount, &tx.BalanceBefore, &tx.BalanceAfter,
			&tx.ExternalTransactionId, &tx.TransactionHash, &tx.Reference,
			&tx.Status, &tx.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, tx)
	}

	// Check for errors during iteration
	if err := rows.Err(); err != nil {
		zap.L().Error("Error during transaction row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}

	return transactions, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"stellar-send-receive-go/internal/models"
)

// GetBalance returns the available balance for a user in stroops (O(1) lookup)
func (s *SubledgerService) GetBalance(ctx context.Context, userId int64) (int64, error) {
	zap.L().Debug("Getting balance", zap.Int64("user_id", userId))

	var balance int64
	err := s.db.QueryRowContext(ctx, queryGetBalance, userId).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		// No balance record means zero balance
		return 0, nil
	}
	if err != nil {
		zap.L().Error("Failed to get balance", zap.Int64("user_id", userId), zap.Error(err))
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}

	zap.L().Debug("Retrieved balance", zap.Int64("user_id", userId), zap.Int64("balance", balance))
	return balance, nil
}

// GetAllBalances returns every account balance row
func (s *SubledgerService) GetAllBalances(ctx context.Context) ([]models.AccountBalance, error) {
	zap.L().Debug("Getting all balances")

	rows, err := s.db.QueryContext(ctx, queryGetAllBalances)
	if err != nil {
		zap.L().Error("Failed to get all balances", zap.Error(err))
		return nil, fmt.Errorf("failed to get all balances: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var balances []models.AccountBalance
	for rows.Next() {
		var balance models.AccountBalance
		err := rows.Scan(&balance.UserId, &balance.Balance, &balance.Reserved,
			&balance.LastTransactionId, &balance.Version, &balance.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		balances = append(balances, balance)
	}

	// Check for errors during iteration
	if err := rows.Err(); err != nil {
		zap.L().Error("Error during balance row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating balance rows: %w", err)
	}

	zap.L().Debug("Retrieved all balances", zap.Int("count", len(balances)))
	return balances, nil
}

// ReconcileBalance verifies that the balance and reserved columns match the transaction history
func (s *SubledgerService) ReconcileBalance(ctx context.Context, userId int64) error {
	zap.L().Info("Reconciling balance", zap.Int64("user_id", userId))

	var currentBalance, currentReserved, version int64
	err := s.db.QueryRowContext(ctx, queryGetAccountBalance, userId).Scan(&currentBalance, &currentReserved, &version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to get current balance: %w", err)
	}

	// Calculate balances from transaction history
	var calculatedBalance, calculatedReserved int64
	err = s.db.QueryRowContext(ctx, queryReconcileBalance, userId).Scan(&calculatedBalance, &calculatedReserved)
	if err != nil {
		return fmt.Errorf("failed to calculate balance from transactions: %w", err)
	}

	if currentBalance != calculatedBalance || currentReserved != calculatedReserved {
		zap.L().Error("Balance reconciliation failed",
			zap.Int64("user_id", userId),
			zap.Int64("current_balance", currentBalance),
			zap.Int64("calculated_balance", calculatedBalance),
			zap.Int64("current_reserved", currentReserved),
			zap.Int64("calculated_reserved", calculatedReserved))
		return fmt.Errorf("balance mismatch: current=%d/%d, calculated=%d/%d",
			currentBalance, currentReserved, calculatedBalance, calculatedReserved)
	}

	zap.L().Info("Balance reconciliation successful",
		zap.Int64("user_id", userId),
		zap.Int64("balance", currentBalance),
		zap.Int64("reserved", currentReserved))
	return nil
}

package database

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"stellar-send-receive-go/internal/store"
)

// ProcessDeposit credits an inbound payment. Replays of the same operation id
// and payments to unknown users are no-ops.
func (s *Service) ProcessDeposit(ctx context.Context, params store.DepositParams) (store.DepositOutcome, error) {
	if params.Amount <= 0 {
		return "", fmt.Errorf("deposit amount must be positive, got %d", params.Amount)
	}
	if params.OperationId == "" {
		return "", fmt.Errorf("deposit operation id cannot be empty")
	}

	if _, err := s.GetUserById(ctx, params.UserId); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			zap.L().Warn("Deposit for unknown user left unprocessed",
				zap.Int64("user_id", params.UserId),
				zap.String("operation_id", params.OperationId),
				zap.String("tx_hash", params.TransactionHash))
			return store.DepositUnknownUser, nil
		}
		return "", err
	}

	_, err := s.subledger.ProcessTransaction(ctx, ProcessTransactionParams{
		UserId:          params.UserId,
		TransactionType: TxTypeDeposit,
		Amount:          params.Amount,
		ExternalTxId:    params.OperationId,
		TransactionHash: params.TransactionHash,
	})
	if errors.Is(err, store.ErrDuplicateTransaction) {
		zap.L().Info("Deposit already applied",
			zap.Int64("user_id", params.UserId),
			zap.String("operation_id", params.OperationId))
		return store.DepositDuplicate, nil
	}
	if err != nil {
		return "", err
	}

	return store.DepositApplied, nil
}

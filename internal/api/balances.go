/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package api

import (
	"context"
	"fmt"

	"stellar-send-receive-go/internal/models"
	"stellar-send-receive-go/internal/stellar"

	"go.uber.org/zap"
)

// GetUserInfo returns the user's deposit address and available balance
func (s *LedgerService) GetUserInfo(ctx context.Context, userId int64) (*models.InfoResponse, error) {
	address, err := s.addresses.MuxedAddress(userId)
	if err != nil {
		return nil, err
	}

	balance, err := s.ledger.GetUserBalance(ctx, userId)
	if err != nil {
		zap.L().Error("Failed to get user balance", zap.Int64("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve balance: %w", err)
	}

	return &models.InfoResponse{
		Address: address,
		Balance: stellar.FormatStroops(balance),
	}, nil
}

// GetTransactionHistory returns paginated transaction history for a user
func (s *LedgerService) GetTransactionHistory(ctx context.Context, userId int64, limit, offset int) ([]models.TransactionRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	transactions, err := s.ledger.GetTransactionHistory(ctx, userId, limit, offset)
	if err != nil {
		zap.L().Error("Failed to get transaction history", zap.Int64("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve transaction history: %w", err)
	}

	result := make([]models.TransactionRecord, len(transactions))
	for i, tx := range transactions {
		result[i] = models.TransactionRecord{
			Id:              tx.Id,
			Type:            tx.TransactionType,
			Amount:          formatSigned(tx.Amount),
			TransactionHash: tx.TransactionHash,
			Reference:       tx.ExternalTransactionId,
			Status:          tx.Status,
			CreatedAt:       tx.CreatedAt,
		}
	}

	return result, nil
}

func formatSigned(stroops int64) string {
	if stroops < 0 {
		return "-" + stellar.FormatStroops(-stroops)
	}
	return stellar.FormatStroops(stroops)
}

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
	"stellar-send-receive-go/internal/payment"
	"stellar-send-receive-go/internal/stellar"

	"go.uber.org/zap"
)

// Pay sends XLM from the user's balance. The current balance feeds the
// saga's precheck; the reservation itself is authoritative.
func (s *LedgerService) Pay(ctx context.Context, userId int64, req models.PayRequest) (*models.PayResponse, error) {
	balance, err := s.ledger.GetUserBalance(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve balance: %w", err)
	}

	zap.L().Info("Processing payment request",
		zap.Int64("user_id", userId),
		zap.String("destination", req.Destination),
		zap.String("amount", req.Amount))

	result, err := s.payments.Pay(ctx, payment.PayRequest{
		UserId:      userId,
		Balance:     balance,
		Destination: req.Destination,
		Amount:      req.Amount,
	})
	if err != nil {
		return nil, err
	}

	return &models.PayResponse{
		ReservationId:   result.ReservationId,
		TransactionHash: result.TransactionHash,
		Amount:          stellar.FormatStroops(result.Amount),
	}, nil
}

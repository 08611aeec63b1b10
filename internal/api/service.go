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
	"stellar-send-receive-go/internal/store"
)

// Ledger is the balance backend the API reads from
type Ledger interface {
	GetUserBalance(ctx context.Context, userId int64) (int64, error)
	GetTransactionHistory(ctx context.Context, userId int64, limit, offset int) ([]models.Transaction, error)
}

// Payer runs outbound payments
type Payer interface {
	Pay(ctx context.Context, req payment.PayRequest) (*payment.PayResult, error)
}

// AddressBook derives users' deposit addresses
type AddressBook interface {
	MuxedAddress(userId int64) (string, error)
}

// LedgerService provides minimal API
type LedgerService struct {
	users     store.UserStore
	ledger    Ledger
	payments  Payer
	addresses AddressBook
	keys      *KeyHasher
}

func NewLedgerService(users store.UserStore, ledger Ledger, payments Payer, addresses AddressBook, keys *KeyHasher) *LedgerService {
	return &LedgerService{
		users:     users,
		ledger:    ledger,
		payments:  payments,
		addresses: addresses,
		keys:      keys,
	}
}

func (s *LedgerService) HealthCheck(ctx context.Context) error {
	_, err := s.users.GetUsers(ctx)
	if err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

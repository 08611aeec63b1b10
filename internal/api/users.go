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
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"stellar-send-receive-go/internal/models"
	"stellar-send-receive-go/internal/payment"
	"stellar-send-receive-go/internal/store"
)

func validateCredentials(req models.CredentialsRequest) error {
	if strings.TrimSpace(req.Username) == "" {
		return &payment.ValidationError{Field: "username", Message: "is required"}
	}
	if req.Password == "" {
		return &payment.ValidationError{Field: "password", Message: "is required"}
	}
	return nil
}

// Register creates a user; a taken username yields store.ErrUsernameTaken
func (s *LedgerService) Register(ctx context.Context, req models.CredentialsRequest) (*models.User, error) {
	if err := validateCredentials(req); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("unable to hash password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, strings.TrimSpace(req.Username), string(hash))
	if err != nil {
		return nil, err
	}

	zap.L().Info("User registered", zap.Int64("user_id", user.Id), zap.String("username", user.Username))
	return user, nil
}

// Login verifies the password and issues a new API key, replacing any
// previous one.
func (s *LedgerService) Login(ctx context.Context, req models.CredentialsRequest) (*models.LoginResponse, error) {
	if err := validateCredentials(req); err != nil {
		return nil, err
	}

	userId, passwordHash, err := s.users.GetCredentials(ctx, req.Username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrAuthentication
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(req.Password)) != nil {
		return nil, ErrAuthentication
	}

	apiKey := newApiKey()
	if err := s.users.StoreApiKey(ctx, userId, s.keys.Hash(apiKey)); err != nil {
		return nil, err
	}

	zap.L().Info("API key issued", zap.Int64("user_id", userId))
	return &models.LoginResponse{ApiKey: apiKey}, nil
}

// Authenticate resolves the owner of an API key
func (s *LedgerService) Authenticate(ctx context.Context, apiKey string) (*models.User, error) {
	user, err := s.users.FindUserByApiKey(ctx, s.keys.Hash(apiKey))
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrAuthentication
		}
		return nil, err
	}
	return user, nil
}

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

package common

import (
	"context"
	"fmt"

	"stellar-send-receive-go/internal/models"
	"stellar-send-receive-go/internal/stellar"

	"go.uber.org/zap"
)

// UserInfo represents simplified user information for command-line utilities
type UserInfo struct {
	Id       int64
	Username string
	// Address is the muxed deposit address, empty when no custodian account is configured
	Address string
}

// UserLookup is the part of the user database the CLIs read
type UserLookup interface {
	GetUsers(ctx context.Context) ([]models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// InitializeUsers retrieves users based on an optional username filter.
// If usernameFilter is provided, returns a single user with that username.
// If usernameFilter is empty, returns all users.
func InitializeUsers(ctx context.Context, users UserLookup, custodian, usernameFilter string, logger *zap.Logger) ([]UserInfo, error) {
	var selected []models.User

	if usernameFilter != "" {
		logger.Info("Looking up user by username", zap.String("username", usernameFilter))
		user, err := users.GetUserByUsername(ctx, usernameFilter)
		if err != nil {
			return nil, fmt.Errorf("user not found: %w", err)
		}
		selected = append(selected, *user)
	} else {
		all, err := users.GetUsers(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get users: %w", err)
		}
		selected = all
	}

	infos := make([]UserInfo, 0, len(selected))
	for _, u := range selected {
		info := UserInfo{Id: u.Id, Username: u.Username}
		if custodian != "" {
			address, err := stellar.MuxedAddress(custodian, u.Id)
			if err != nil {
				return nil, fmt.Errorf("unable to derive address for user %d: %w", u.Id, err)
			}
			info.Address = address
		}
		infos = append(infos, info)
	}

	logger.Info("Retrieved users", zap.Int("count", len(infos)))
	return infos, nil
}

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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"stellar-send-receive-go/internal/models"
	"stellar-send-receive-go/internal/store"

	"go.uber.org/zap"
)

func (s *Service) GetUsers(ctx context.Context) ([]models.User, error) {
	zap.L().Debug("Querying active users")

	rows, err := s.db.QueryContext(ctx, queryGetActiveUsers)
	if err != nil {
		zap.L().Error("Failed to query users", zap.Error(err))
		return nil, fmt.Errorf("unable to query users: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var users []models.User
	for rows.Next() {
		var user models.User
		err := rows.Scan(&user.Id, &user.Username, &user.CreatedAt, &user.UpdatedAt)
		if err != nil {
			zap.L().Error("Failed to scan user row", zap.Error(err))
			return nil, fmt.Errorf("unable to scan user row: %w", err)
		}

		users = append(users, user)
	}

	// Check for errors during iteration
	if err := rows.Err(); err != nil {
		zap.L().Error("Error during user row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}

	zap.L().Info("Retrieved users", zap.Int("count", len(users)))
	return users, nil
}

func (s *Service) GetUserById(ctx context.Context, userId int64) (*models.User, error) {
	zap.L().Debug("Querying user by ID", zap.Int64("user_id", userId))

	var user models.User
	err := s.db.QueryRowContext(ctx, queryGetUserById, userId).Scan(
		&user.Id, &user.Username, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", store.ErrUserNotFound, userId)
		}
		zap.L().Error("Failed to query user by ID", zap.Int64("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("unable to query user by ID: %w", err)
	}

	zap.L().Debug("Retrieved user by ID", zap.Int64("user_id", userId), zap.String("username", user.Username))
	return &user, nil
}

func (s *Service) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	zap.L().Debug("Querying user by username", zap.String("username", username))

	var user models.User
	err := s.db.QueryRowContext(ctx, queryGetUserByUsername, username).Scan(
		&user.Id, &user.Username, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrUserNotFound, username)
		}
		zap.L().Error("Failed to query user by username", zap.String("username", username), zap.Error(err))
		return nil, fmt.Errorf("unable to query user by username: %w", err)
	}

	return &user, nil
}

// CreateUser registers a user with an already hashed password
func (s *Service) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	zap.L().Info("Creating user", zap.String("username", username))

	result, err := s.db.ExecContext(ctx, queryInsertUser, username, passwordHash)
	if err != nil {
		zap.L().Error("Failed to insert user", zap.String("username", username), zap.Error(err))
		return nil, fmt.Errorf("unable to insert user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		zap.L().Error("Failed to get rows affected", zap.Error(err))
		return nil, fmt.Errorf("unable to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return nil, fmt.Errorf("%w: %s", store.ErrUsernameTaken, username)
	}

	user, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	zap.L().Info("User created successfully", zap.Int64("user_id", user.Id), zap.String("username", username))
	return user, nil
}

// GetCredentials returns the id and password hash for a username
func (s *Service) GetCredentials(ctx context.Context, username string) (int64, string, error) {
	var userId int64
	var passwordHash string
	err := s.db.QueryRowContext(ctx, queryGetCredentials, username).Scan(&userId, &passwordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, "", fmt.Errorf("%w: %s", store.ErrUserNotFound, username)
		}
		return 0, "", fmt.Errorf("unable to query credentials: %w", err)
	}
	return userId, passwordHash, nil
}

// StoreApiKey replaces the user's API key hash
func (s *Service) StoreApiKey(ctx context.Context, userId int64, keyHash string) error {
	if _, err := s.db.ExecContext(ctx, queryUpsertApiKey, userId, keyHash); err != nil {
		zap.L().Error("Failed to store API key", zap.Int64("user_id", userId), zap.Error(err))
		return fmt.Errorf("unable to store api key: %w", err)
	}
	return nil
}

func (s *Service) FindUserByApiKey(ctx context.Context, keyHash string) (*models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx, queryFindUserByApiKey, keyHash).Scan(
		&user.Id, &user.Username, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("unable to query api key: %w", err)
	}
	return &user, nil
}

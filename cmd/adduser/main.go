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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"stellar-send-receive-go/internal/common"
	"stellar-send-receive-go/internal/config"
	"stellar-send-receive-go/internal/formance"
	"stellar-send-receive-go/internal/store"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func validateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("username cannot be empty")
	}
	if len(username) < 2 {
		return fmt.Errorf("username must be at least 2 characters")
	}
	if strings.ContainsAny(username, " \t\n") {
		return fmt.Errorf("username cannot contain whitespace")
	}
	return nil
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	// Parse command line flags
	usernameFlag := flag.String("username", "", "Username (required)")
	passwordFlag := flag.String("password", "", "Password for API login (required)")
	flag.Parse()

	if *usernameFlag == "" || *passwordFlag == "" {
		zap.L().Fatal("Both flags are required: --username and --password")
	}
	if err := validateUsername(*usernameFlag); err != nil {
		zap.L().Fatal("Invalid username", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeLedgerOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	gateway, err := common.InitializeGateway(cfg.Stellar, cfg.Stellar.RequestTimeout)
	if err != nil {
		zap.L().Fatal("Failed to initialize Horizon gateway", zap.Error(err))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(*passwordFlag), bcrypt.DefaultCost)
	if err != nil {
		zap.L().Fatal("Failed to hash password", zap.Error(err))
	}

	user, err := services.DbService.CreateUser(ctx, *usernameFlag, string(hash))
	if err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			zap.L().Fatal("User already exists with this username", zap.String("username", *usernameFlag))
		}
		zap.L().Fatal("Failed to create user", zap.Error(err))
	}

	if fSvc, ok := services.Ledger.(*formance.Service); ok {
		if err := fSvc.RegisterUser(ctx, user); err != nil {
			zap.L().Fatal("Failed to register user account in Formance", zap.Int64("user_id", user.Id), zap.Error(err))
		}
	}

	address, err := gateway.MuxedAddress(user.Id)
	if err != nil {
		zap.L().Fatal("Failed to derive deposit address", zap.Int64("user_id", user.Id), zap.Error(err))
	}

	fmt.Println()
	common.PrintHeader("USER CREATED", common.DefaultWidth)
	fmt.Printf("ID:       %d\n", user.Id)
	fmt.Printf("Username: %s\n", user.Username)
	fmt.Printf("Deposit:  %s\n", address)
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()

	zap.L().Info("User created successfully", zap.Int64("id", user.Id), zap.String("address", address))
}

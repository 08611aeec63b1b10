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
	"flag"
	"fmt"

	"stellar-send-receive-go/internal/common"
	"stellar-send-receive-go/internal/config"
	"stellar-send-receive-go/internal/formance"

	"go.uber.org/zap"
)

// registerUsers makes sure every user has account metadata in Formance
func registerUsers(ctx context.Context, services *common.Services, ledger *formance.Service) (int, []string) {
	users, err := services.DbService.GetUsers(ctx)
	if err != nil {
		zap.L().Fatal("Failed to read users from database", zap.Error(err))
	}

	var registered int
	var failed []string
	for i := range users {
		user := users[i]
		if err := ledger.RegisterUser(ctx, &user); err != nil {
			zap.L().Error("Failed to register user account",
				zap.Int64("user_id", user.Id),
				zap.String("username", user.Username),
				zap.Error(err))
			failed = append(failed, user.Username)
			continue
		}
		registered++
	}
	return registered, failed
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	checkChain := flag.Bool("check-chain", true, "Verify the custodian account exists on the network")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	// Opening the services creates the SQLite schema and the Formance ledger
	zap.L().Info("Initializing ledger", zap.String("backend", cfg.Ledger.Backend))
	services, err := common.InitializeLedgerOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	gateway, err := common.InitializeGateway(cfg.Stellar, cfg.Stellar.RequestTimeout)
	if err != nil {
		zap.L().Fatal("Failed to initialize Horizon gateway", zap.Error(err))
	}

	common.PrintHeader("SETUP", common.DefaultWidth)
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	fmt.Printf("Ledger:    %s\n", cfg.Ledger.Backend)
	fmt.Printf("Custodian: %s\n", gateway.CustodianAddress())

	if fSvc, ok := services.Ledger.(*formance.Service); ok {
		registered, failed := registerUsers(ctx, services, fSvc)
		fmt.Printf("Formance:  %d user accounts registered, %d failed\n", registered, len(failed))
		if len(failed) > 0 {
			zap.L().Warn("Some user accounts failed to register", zap.Strings("usernames", failed))
		}
	}

	if *checkChain {
		if gateway.AccountExists(ctx, gateway.CustodianAddress()) {
			fmt.Println("Network:   custodian account found")
		} else {
			fmt.Println("Network:   custodian account NOT found, fund it before sending payments")
			zap.L().Warn("Custodian account not found on network",
				zap.String("horizon", cfg.Stellar.HorizonEndpoint),
				zap.String("account_id", gateway.CustodianAddress()))
		}
	}
	common.PrintSeparator("=", common.DefaultWidth)

	zap.L().Info("Setup complete")
}

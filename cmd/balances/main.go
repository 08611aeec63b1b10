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
	"stellar-send-receive-go/internal/models"

	"go.uber.org/zap"
)

type balanceStats struct {
	totalUsers        int
	usersWithBalances int
	totalAvailable    int64
	totalReserved     int64
}

func printUser(user common.UserInfo, balance models.AccountBalance) {
	fmt.Printf("\n┌─ User: %s\n", user.Username)
	fmt.Printf("│  ID: %d\n", user.Id)
	if user.Address != "" {
		fmt.Printf("│  Deposit: %s\n", user.Address)
	}
	common.PrintBoxSeparator(78)
	fmt.Printf("%s %-10s: %24s\n", common.BoxPrefix(false), "available", common.FormatXLM(balance.Balance))
	fmt.Printf("%s %-10s: %24s (v%d, last_tx: %s, updated: %s)\n",
		common.BoxPrefix(true),
		"reserved",
		common.FormatXLM(balance.Reserved),
		balance.Version,
		common.ShortId(balance.LastTransactionId),
		balance.UpdatedAt.Format("2006-01-02 15:04:05"))
}

func generateReport(users []common.UserInfo, balances []models.AccountBalance) balanceStats {
	byUser := make(map[int64]models.AccountBalance, len(balances))
	for _, b := range balances {
		byUser[b.UserId] = b
	}

	stats := balanceStats{}
	for _, user := range users {
		stats.totalUsers++

		balance, ok := byUser[user.Id]
		if !ok || (balance.Balance == 0 && balance.Reserved == 0) {
			continue
		}

		printUser(user, balance)
		stats.usersWithBalances++
		stats.totalAvailable += balance.Balance
		stats.totalReserved += balance.Reserved
	}
	return stats
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	// Parse command line flags
	usernameFlag := flag.String("username", "", "Filter by specific username (optional)")
	flag.Parse()

	logger.Info("Starting balance query")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Read-only: no Horizon connection and no payment lock
	logger.Info("Connecting to ledger",
		zap.String("path", cfg.Database.Path),
		zap.String("backend", cfg.Ledger.Backend))
	services, err := common.InitializeLedgerOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize ledger", zap.Error(err))
	}
	defer services.Close()

	custodian := cfg.Stellar.AccountId
	if gateway, err := common.InitializeGateway(cfg.Stellar, cfg.Stellar.RequestTimeout); err == nil {
		custodian = gateway.CustodianAddress()
	}

	users, err := common.InitializeUsers(ctx, services.DbService, custodian, *usernameFlag, logger)
	if err != nil {
		logger.Fatal("Failed to initialize users", zap.Error(err))
	}

	balances, err := services.Ledger.GetAllBalances(ctx)
	if err != nil {
		logger.Fatal("Failed to read balances", zap.Error(err))
	}

	common.PrintHeader("USER BALANCE REPORT", common.DefaultWidth)

	stats := generateReport(users, balances)

	summary := fmt.Sprintf("SUMMARY: %d of %d users with balances, %s available, %s reserved",
		stats.usersWithBalances, stats.totalUsers,
		common.FormatXLM(stats.totalAvailable), common.FormatXLM(stats.totalReserved))
	common.PrintFooter(summary, common.DefaultWidth)

	logger.Info("Balance query completed",
		zap.Int("users_queried", stats.totalUsers),
		zap.Int("users_with_balances", stats.usersWithBalances))
}

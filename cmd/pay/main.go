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
	"os/signal"
	"syscall"

	"stellar-send-receive-go/internal/common"
	"stellar-send-receive-go/internal/config"
	"stellar-send-receive-go/internal/payment"

	"go.uber.org/zap"
)

func main() {
	usernameFlag := flag.String("user", "", "Username paying from their balance (required)")
	destinationFlag := flag.String("to", "", "Destination Stellar address (required)")
	amountFlag := flag.String("amount", "", "Amount in XLM, up to 7 decimals (required)")
	flag.Parse()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	if *usernameFlag == "" || *destinationFlag == "" || *amountFlag == "" {
		zap.L().Fatal("All flags are required: --user, --to and --amount")
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	user, err := services.DbService.GetUserByUsername(ctx, *usernameFlag)
	if err != nil {
		zap.L().Fatal("Failed to find user", zap.String("username", *usernameFlag), zap.Error(err))
	}

	balance, err := services.Ledger.GetUserBalance(ctx, user.Id)
	if err != nil {
		zap.L().Fatal("Failed to read balance", zap.Int64("user_id", user.Id), zap.Error(err))
	}

	result, err := services.Payments.Pay(ctx, payment.PayRequest{
		UserId:      user.Id,
		Balance:     balance,
		Destination: *destinationFlag,
		Amount:      *amountFlag,
	})
	if err != nil {
		zap.L().Fatal("Payment failed",
			zap.String("username", user.Username),
			zap.String("destination", *destinationFlag),
			zap.String("amount", *amountFlag),
			zap.Error(err))
	}

	common.PrintHeader("PAYMENT SENT", common.DefaultWidth)
	fmt.Printf("From:        %s (id %d)\n", user.Username, user.Id)
	fmt.Printf("To:          %s\n", *destinationFlag)
	fmt.Printf("Amount:      %s\n", common.FormatXLM(result.Amount))
	fmt.Printf("Reservation: %s\n", result.ReservationId)
	fmt.Printf("Tx hash:     %s\n", result.TransactionHash)
	fmt.Printf("Ledger:      %d\n", result.Ledger)
	common.PrintSeparator("=", common.DefaultWidth)
}

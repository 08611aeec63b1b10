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
	"stellar-send-receive-go/internal/reconcile"

	"go.uber.org/zap"
)

func main() {
	onceFlag := flag.Bool("once", false, "Run a single sweep and exit")
	flag.Parse()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := common.InitializeLedgerOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize ledger", zap.Error(err))
	}
	defer services.Close()

	gateway, err := common.InitializeGateway(cfg.Stellar, cfg.Stellar.RequestTimeout)
	if err != nil {
		zap.L().Fatal("Failed to initialize Horizon gateway", zap.Error(err))
	}

	sweeper := reconcile.NewSweeper(services.Ledger, gateway, cfg.Reconcile)

	if !*onceFlag {
		if err := sweeper.Run(ctx); err != nil {
			zap.L().Error("Reconciliation stopped with error", zap.Error(err))
		}
		return
	}

	report, err := sweeper.SweepOnce(ctx)
	if err != nil {
		zap.L().Fatal("Reconciliation sweep failed", zap.Error(err))
	}

	common.PrintHeader("RECONCILIATION REPORT", common.DefaultWidth)
	fmt.Printf("Confirmed: %d\n", report.Confirmed)
	fmt.Printf("Cancelled: %d\n", report.Cancelled)
	fmt.Printf("Pending:   %d\n", report.Pending)
	fmt.Printf("Failed:    %d\n", report.Failed)
	common.PrintSeparator("=", common.DefaultWidth)
}

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
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stellar-send-receive-go/internal/common"
	"stellar-send-receive-go/internal/config"
	"stellar-send-receive-go/internal/deposit"
	"stellar-send-receive-go/internal/metrics"
	"stellar-send-receive-go/internal/queue"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	metricsAddr := flag.String("metrics-addr", ":8082", "Address serving /metrics")
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

	client, err := queue.Dial(cfg.Queue.URL)
	if err != nil {
		zap.L().Fatal("Failed to connect to message broker", zap.Error(err))
	}
	defer func() {
		if err := client.Close(); err != nil {
			zap.L().Warn("Failed to close broker connection", zap.Error(err))
		}
	}()

	hostname, _ := os.Hostname()
	consumer, err := client.NewConsumer(cfg.Queue.Name, "deposit-applier-"+hostname, cfg.Queue.Prefetch)
	if err != nil {
		zap.L().Fatal("Failed to open queue consumer", zap.Error(err))
	}

	applier := deposit.NewApplier(services.Ledger, consumer)

	router := mux.NewRouter()
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	server := &http.Server{
		Addr:              *metricsAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return applier.Run(gctx)
	})
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		if err := consumer.Close(); err != nil {
			zap.L().Warn("Failed to close queue consumer", zap.Error(err))
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	zap.L().Info("Deposit applier running",
		zap.String("queue", cfg.Queue.Name),
		zap.String("ledger_backend", cfg.Ledger.Backend))

	if err := g.Wait(); err != nil {
		zap.L().Error("Deposit applier stopped with error", zap.Error(err))
		return
	}
	zap.L().Info("Deposit applier stopped gracefully")
}

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
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"stellar-send-receive-go/internal/common"
	"stellar-send-receive-go/internal/config"
	"stellar-send-receive-go/internal/metrics"
	"stellar-send-receive-go/internal/queue"
	"stellar-send-receive-go/internal/relay"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cursorFlag := flag.String("cursor", "", "Paging token to resume from (default: RELAY_CURSOR)")
	dryRunFlag := flag.Bool("dry-run", false, "Log relevant payments instead of publishing them")
	flag.Parse()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}
	if *cursorFlag != "" {
		cfg.Relay.Cursor = *cursorFlag
	}
	if *dryRunFlag {
		cfg.Relay.DryRun = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Streaming requests must not carry a client timeout
	gateway, err := common.InitializeGateway(cfg.Stellar, 0)
	if err != nil {
		zap.L().Fatal("Failed to initialize Horizon gateway", zap.Error(err))
	}

	var sender relay.Sender
	var client *queue.Client
	if !cfg.Relay.DryRun {
		client, err = queue.Dial(cfg.Queue.URL)
		if err != nil {
			zap.L().Fatal("Failed to connect to message broker", zap.Error(err))
		}
		queueSender, err := client.NewSender(cfg.Queue.Name, cfg.Queue.MaxBatchBytes)
		if err != nil {
			_ = client.Close()
			zap.L().Fatal("Failed to open queue sender", zap.Error(err))
		}
		sender = queueSender
	} else {
		zap.L().Info("Dry run enabled, payments will only be logged")
	}

	var closer io.Closer
	if client != nil {
		closer = client
	}
	r, err := relay.New(gateway, sender, closer, gateway.CustodianAddress(), cfg.Relay)
	if err != nil {
		zap.L().Fatal("Failed to create relay", zap.Error(err))
	}

	router := mux.NewRouter()
	router.Handle("/", r.Status()).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	server := &http.Server{
		Addr:              cfg.Relay.HttpAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.Run(gctx)
	})
	g.Go(func() error {
		zap.L().Info("Relay status listening", zap.String("addr", cfg.Relay.HttpAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		zap.L().Error("Relay stopped with error", zap.Error(err))
	}
	if err := r.Close(); err != nil {
		zap.L().Warn("Failed to close relay cleanly", zap.Error(err))
	}
	zap.L().Info("Relay shut down", zap.String("last_paging_token", r.Status().Snapshot().LastPagingToken))
}

package common

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"stellar-send-receive-go/internal/database"
	"stellar-send-receive-go/internal/formance"
	"stellar-send-receive-go/internal/lease"
	"stellar-send-receive-go/internal/models"
	"stellar-send-receive-go/internal/payment"
	"stellar-send-receive-go/internal/stellar"
	"stellar-send-receive-go/internal/store"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Try to load .env file - if it doesn't exist, that's okay
	// Environment variables can be set via other means (shell export, docker, etc.)
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

// Ledger is what the binaries need from either balance backend
type Ledger interface {
	store.LedgerStore
	GetAllBalances(ctx context.Context) ([]models.AccountBalance, error)
	GetTransactionHistory(ctx context.Context, userId int64, limit, offset int) ([]models.Transaction, error)
}

var (
	_ Ledger = (*database.Service)(nil)
	_ Ledger = (*formance.Service)(nil)
)

type Services struct {
	DbService *database.Service
	Ledger    Ledger
	Gateway   *stellar.Gateway
	Payments  *payment.Service

	closers []func()
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices wires everything needed to send payments: the user
// database, the ledger backend, the Horizon gateway and the payment lock.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	services, err := InitializeLedgerOnly(ctx, cfg)
	if err != nil {
		return nil, err
	}

	gateway, err := InitializeGateway(cfg.Stellar, cfg.Stellar.RequestTimeout)
	if err != nil {
		services.Close()
		return nil, err
	}
	services.Gateway = gateway

	lockStore, closeStore, err := initializeLeaseStore(ctx, cfg.Lock, services.DbService)
	if err != nil {
		services.Close()
		return nil, err
	}
	services.closers = append(services.closers, closeStore)

	lock, err := lease.NewLock(lockStore, gateway.CustodianAddress(), lease.RetryPolicy{
		MaxAttempts:   cfg.Lock.MaxAttempts,
		Backoff:       cfg.Lock.Backoff,
		LeaseDuration: cfg.Lock.LeaseDuration,
	})
	if err != nil {
		services.Close()
		return nil, err
	}

	services.Payments = payment.NewService(services.Ledger, gateway, lock)

	zap.L().Info("Services initialized",
		zap.String("ledger_backend", cfg.Ledger.Backend),
		zap.String("lock_backend", cfg.Lock.Backend),
		zap.String("custodian", gateway.CustodianAddress()))
	return services, nil
}

// InitializeLedgerOnly opens the user database and the configured ledger
// backend without touching the network.
func InitializeLedgerOnly(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		return nil, err
	}
	services := &Services{DbService: dbService, Ledger: dbService}

	if cfg.Ledger.Backend == "formance" {
		zap.L().Info("Using Formance ledger backend", zap.String("ledger", cfg.Formance.LedgerName))
		formanceService, err := formance.NewService(ctx, cfg.Formance, dbService)
		if err != nil {
			dbService.Close()
			return nil, fmt.Errorf("unable to initialize formance ledger: %w", err)
		}
		services.Ledger = formanceService
		services.closers = append(services.closers, formanceService.Close)
	}

	return services, nil
}

// InitializeDatabaseOnly initializes just the database service
// Useful for read-only operations like querying users
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

// InitializeGateway builds a Horizon-backed gateway. Streaming callers pass a
// zero requestTimeout.
func InitializeGateway(cfg models.StellarConfig, requestTimeout time.Duration) (*stellar.Gateway, error) {
	client, err := stellar.NewHorizonClient(cfg.HorizonEndpoint, requestTimeout)
	if err != nil {
		return nil, err
	}
	return stellar.NewGateway(client, cfg)
}

func initializeLeaseStore(ctx context.Context, cfg models.LockConfig, db *database.Service) (lease.Store, func(), error) {
	if cfg.Backend == "postgres" {
		if cfg.PostgresURL == "" {
			return nil, nil, fmt.Errorf("LOCK_POSTGRES_URL is required for the postgres lock backend")
		}
		pg, err := lease.NewPostgresStore(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to connect lock store: %w", err)
		}
		return pg, pg.Close, nil
	}
	return db.Leases(), func() {}, nil
}

// Close releases resources in reverse order of creation
func (cs *Services) Close() {
	for i := len(cs.closers) - 1; i >= 0; i-- {
		cs.closers[i]()
	}
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}

package database

import (
	"context"
	"testing"

	"stellar-send-receive-go/internal/store"
)

func TestProcessDeposit_ReplayIsNoop(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	userId := createTestUser(t, service, "alice")

	params := depositParams(userId, 25_000_000, "123456789")
	outcome, err := service.ProcessDeposit(ctx, params)
	if err != nil {
		t.Fatalf("ProcessDeposit failed: %v", err)
	}
	if outcome != store.DepositApplied {
		t.Errorf("Expected outcome applied, got %s", outcome)
	}

	outcome, err = service.ProcessDeposit(ctx, params)
	if err != nil {
		t.Fatalf("ProcessDeposit replay failed: %v", err)
	}
	if outcome != store.DepositDuplicate {
		t.Errorf("Expected outcome duplicate, got %s", outcome)
	}

	balance, _ := service.GetUserBalance(ctx, userId)
	if balance != 25_000_000 {
		t.Errorf("Expected balance 25000000, got %d", balance)
	}
}

func TestProcessDeposit_UnknownUser(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	outcome, err := service.ProcessDeposit(ctx, depositParams(999, 100, "op1"))
	if err != nil {
		t.Fatalf("Expected unknown user to be a no-op, got: %v", err)
	}
	if outcome != store.DepositUnknownUser {
		t.Errorf("Expected outcome unknown_user, got %s", outcome)
	}

	balance, _ := service.GetUserBalance(ctx, 999)
	if balance != 0 {
		t.Errorf("Expected balance 0, got %d", balance)
	}
}

func TestProcessDeposit_RejectsInvalidInput(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	userId := createTestUser(t, service, "alice")

	if _, err := service.ProcessDeposit(ctx, depositParams(userId, 0, "op1")); err == nil {
		t.Error("Expected error for zero amount, got nil")
	}
	if _, err := service.ProcessDeposit(ctx, depositParams(userId, 10, "")); err == nil {
		t.Error("Expected error for missing operation id, got nil")
	}
}

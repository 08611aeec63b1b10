package formance

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"stellar-send-receive-go/internal/models"
	"stellar-send-receive-go/internal/stellar"
	"stellar-send-receive-go/internal/store"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Numscript templates. Every posting sets its own metadata so the Formance
// transaction is self-describing; reservation state lives in the metadata of
// the reservations:{id} account and moves atomically with the funds.
// ---------------------------------------------------------------------------

const numscriptDeposit = `vars {
  asset $asset
  number $amount
  account $user_id
  string $operation_id
  string $tx_hash
  string $amount_human
}

send [$asset $amount] (
  source = @stellar:deposits allowing unbounded overdraft
  destination = @users:$user_id
)

set_tx_meta("event_type", "deposit")
set_tx_meta("external_tx_id", $operation_id)
set_tx_meta("tx_hash", $tx_hash)
set_tx_meta("amount_human", $amount_human)
`

const numscriptPaymentReserve = `vars {
  asset $asset
  number $amount
  account $user_id
  account $reservation
  string $reservation_id
  string $user_ref
  string $amount_ref
  string $destination
  string $amount_human
  string $created_at
}

send [$asset $amount] (
  source = @users:$user_id
  destination = @users:$user_id:reserved
)

set_tx_meta("event_type", "payment_reserve")
set_tx_meta("reservation_id", $reservation_id)
set_tx_meta("destination", $destination)
set_tx_meta("amount_human", $amount_human)

set_account_meta(@reservations:$reservation, "entity_type", "reservation")
set_account_meta(@reservations:$reservation, "reservation_id", $reservation_id)
set_account_meta(@reservations:$reservation, "user_id", $user_ref)
set_account_meta(@reservations:$reservation, "amount", $amount_ref)
set_account_meta(@reservations:$reservation, "status", "reserved")
set_account_meta(@reservations:$reservation, "created_at", $created_at)
set_account_meta(@reservations:$reservation, "updated_at", $created_at)
`

const numscriptPaymentConfirm = `vars {
  asset $asset
  number $amount
  account $user_id
  account $reservation
  string $reservation_id
  string $tx_hash
  string $updated_at
}

send [$asset $amount] (
  source = @users:$user_id:reserved
  destination = @stellar:payments:sent
)

set_tx_meta("event_type", "payment_confirm")
set_tx_meta("reservation_id", $reservation_id)
set_tx_meta("tx_hash", $tx_hash)

set_account_meta(@reservations:$reservation, "status", "confirmed")
set_account_meta(@reservations:$reservation, "tx_hash", $tx_hash)
set_account_meta(@reservations:$reservation, "updated_at", $updated_at)
`

const numscriptPaymentCancel = `vars {
  asset $asset
  number $amount
  account $user_id
  account $reservation
  string $reservation_id
  string $updated_at
}

send [$asset $amount] (
  source = @users:$user_id:reserved
  destination = @users:$user_id
)

set_tx_meta("event_type", "payment_cancel")
set_tx_meta("reservation_id", $reservation_id)

set_account_meta(@reservations:$reservation, "status", "cancelled")
set_account_meta(@reservations:$reservation, "updated_at", $updated_at)
`

// ---------------------------------------------------------------------------
// Transaction operations
// ---------------------------------------------------------------------------

func (s *Service) postTransaction(ctx context.Context, reference, script string, vars map[string]string) error {
	_, err := s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger: s.ledger,
		V2PostTransaction: shared.V2PostTransaction{
			Reference: strPtr(reference),
			Script: &shared.V2PostTransactionScript{
				Plain: script,
				Vars:  vars,
			},
		},
	})
	return err
}

// ProcessDeposit credits an inbound payment. The operation id is the
// transaction reference, so a replay is refused by Formance as a conflict.
func (s *Service) ProcessDeposit(ctx context.Context, params store.DepositParams) (store.DepositOutcome, error) {
	if params.Amount <= 0 {
		return "", fmt.Errorf("deposit amount must be positive, got %d", params.Amount)
	}
	if params.OperationId == "" {
		return "", fmt.Errorf("deposit operation id cannot be empty")
	}

	if _, err := s.users.GetUserById(ctx, params.UserId); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			zap.L().Warn("Deposit for unknown user left unprocessed",
				zap.Int64("user_id", params.UserId),
				zap.String("operation_id", params.OperationId),
				zap.String("tx_hash", params.TransactionHash))
			return store.DepositUnknownUser, nil
		}
		return "", err
	}

	err := s.postTransaction(ctx, params.OperationId, numscriptDeposit, map[string]string{
		"asset":        nativeAsset,
		"amount":       strconv.FormatInt(params.Amount, 10),
		"user_id":      strconv.FormatInt(params.UserId, 10),
		"operation_id": params.OperationId,
		"tx_hash":      params.TransactionHash,
		"amount_human": stellar.FormatStroops(params.Amount),
	})
	if err != nil {
		if isConflictError(err) {
			zap.L().Info("Deposit already applied",
				zap.Int64("user_id", params.UserId),
				zap.String("operation_id", params.OperationId))
			return store.DepositDuplicate, nil
		}
		return "", fmt.Errorf("error recording deposit: %w", err)
	}

	zap.L().Info("Deposit recorded in Formance",
		zap.Int64("user_id", params.UserId),
		zap.Int64("amount", params.Amount),
		zap.String("operation_id", params.OperationId))
	return store.DepositApplied, nil
}

func (s *Service) ReservePayment(ctx context.Context, userId int64, reservationId string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("reservation amount must be positive, got %d", amount)
	}

	destination, amountHuman := "", stellar.FormatStroops(amount)
	if pc := models.GetPaymentContext(ctx); pc != nil {
		destination = pc.Destination
		if pc.AmountHuman != "" {
			amountHuman = pc.AmountHuman
		}
	}

	err := s.postTransaction(ctx, "reserve:"+reservationId, numscriptPaymentReserve, map[string]string{
		"asset":          nativeAsset,
		"amount":         strconv.FormatInt(amount, 10),
		"user_id":        strconv.FormatInt(userId, 10),
		"reservation":    accountSegment(reservationId),
		"reservation_id": reservationId,
		"user_ref":       strconv.FormatInt(userId, 10),
		"amount_ref":     strconv.FormatInt(amount, 10),
		"destination":    destination,
		"amount_human":   amountHuman,
		"created_at":     s.now().Format(time.RFC3339Nano),
	})
	switch {
	case err == nil:
	case isInsufficientFundError(err):
		return fmt.Errorf("reservation %s: %w", reservationId, store.ErrInsufficientBalance)
	case isConflictError(err):
		return fmt.Errorf("reservation %s: %w", reservationId, store.ErrDuplicateTransaction)
	default:
		return fmt.Errorf("error recording reservation: %w", err)
	}

	zap.L().Info("Payment reserved in Formance",
		zap.Int64("user_id", userId),
		zap.String("reservation_id", reservationId),
		zap.Int64("amount", amount))
	return nil
}

func (s *Service) ConfirmPayment(ctx context.Context, reservationId, txHash string) error {
	reservation, err := s.GetReservation(ctx, reservationId)
	if err != nil {
		return err
	}
	switch reservation.Status {
	case models.ReservationConfirmed:
		return nil
	case models.ReservationCancelled:
		return fmt.Errorf("reservation %s is %s: %w", reservationId, reservation.Status, store.ErrReservationFinalized)
	}
	if txHash == "" {
		txHash = reservation.TransactionHash
	}

	err = s.postTransaction(ctx, "confirm:"+reservationId, numscriptPaymentConfirm, map[string]string{
		"asset":          nativeAsset,
		"amount":         strconv.FormatInt(reservation.Amount, 10),
		"user_id":        strconv.FormatInt(reservation.UserId, 10),
		"reservation":    accountSegment(reservationId),
		"reservation_id": reservationId,
		"tx_hash":        txHash,
		"updated_at":     s.now().Format(time.RFC3339Nano),
	})
	if err != nil && !isConflictError(err) {
		return fmt.Errorf("error confirming reservation %s: %w", reservationId, err)
	}

	zap.L().Info("Payment confirmed in Formance",
		zap.String("reservation_id", reservationId),
		zap.String("tx_hash", txHash))
	return nil
}

func (s *Service) CancelPayment(ctx context.Context, reservationId string) error {
	reservation, err := s.GetReservation(ctx, reservationId)
	if err != nil {
		return err
	}
	switch reservation.Status {
	case models.ReservationCancelled:
		return nil
	case models.ReservationConfirmed:
		return fmt.Errorf("reservation %s is %s: %w", reservationId, reservation.Status, store.ErrReservationFinalized)
	}

	err = s.postTransaction(ctx, "cancel:"+reservationId, numscriptPaymentCancel, map[string]string{
		"asset":          nativeAsset,
		"amount":         strconv.FormatInt(reservation.Amount, 10),
		"user_id":        strconv.FormatInt(reservation.UserId, 10),
		"reservation":    accountSegment(reservationId),
		"reservation_id": reservationId,
		"updated_at":     s.now().Format(time.RFC3339Nano),
	})
	if err != nil && !isConflictError(err) {
		return fmt.Errorf("error cancelling reservation %s: %w", reservationId, err)
	}

	zap.L().Info("Payment cancelled in Formance",
		zap.String("reservation_id", reservationId),
		zap.Int64("amount", reservation.Amount))
	return nil
}

// GetTransactionHistory returns paginated transaction history for a user.
// Amounts are the change to the available balance, as in the SQLite ledger.
func (s *Service) GetTransactionHistory(ctx context.Context, userId int64, limit, offset int) ([]models.Transaction, error) {
	account := userAccount(userId)
	pageSize := int64(limit + offset) // fetch enough to skip offset

	resp, err := s.client.Ledger.V2.ListTransactions(ctx, operations.V2ListTransactionsRequest{
		Ledger:   s.ledger,
		PageSize: &pageSize,
		RequestBody: map[string]any{
			"$or": []any{
				map[string]any{"$match": map[string]any{"source": account}},
				map[string]any{"$match": map[string]any{"destination": account}},
				map[string]any{"$match": map[string]any{"source": account + ":reserved"}},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	var result []models.Transaction
	for i, tx := range resp.V2TransactionsCursorResponse.Cursor.Data {
		if i < offset {
			continue
		}

		ref := ""
		if tx.Reference != nil {
			ref = *tx.Reference
		}
		externalId := tx.Metadata["external_tx_id"]
		if externalId == "" {
			externalId = ref
		}

		result = append(result, models.Transaction{
			Id:                    tx.ID.String(),
			UserId:                userId,
			TransactionType:       tx.Metadata["event_type"],
			Amount:                availableChange(tx.Postings, account),
			ExternalTransactionId: externalId,
			TransactionHash:       tx.Metadata["tx_hash"],
			Reference:             ref,
			Status:                "confirmed",
			CreatedAt:             tx.Timestamp,
		})

		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

// availableChange sums the postings into and out of one account, in stroops.
func availableChange(postings []shared.V2Posting, account string) int64 {
	change := new(big.Int)
	for _, p := range postings {
		if p.Asset != nativeAsset || p.Amount == nil {
			continue
		}
		if p.Destination == account {
			change.Add(change, p.Amount)
		}
		if p.Source == account {
			change.Sub(change, p.Amount)
		}
	}
	return change.Int64()
}

func strPtr(s string) *string { return &s }

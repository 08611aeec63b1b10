package formance

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"stellar-send-receive-go/internal/models"
	"stellar-send-receive-go/internal/store"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"go.uber.org/zap"
)

func reservationAccount(reservationId string) string {
	return "reservations:" + accountSegment(reservationId)
}

// AttachTransaction records the signed transaction on the reservation account.
func (s *Service) AttachTransaction(ctx context.Context, reservationId, txHash string, validUntil time.Time) error {
	reservation, err := s.GetReservation(ctx, reservationId)
	if err != nil {
		return err
	}
	if reservation.Status != models.ReservationReserved {
		return fmt.Errorf("reservation %s is %s: %w", reservationId, reservation.Status, store.ErrReservationFinalized)
	}

	_, err = s.client.Ledger.V2.AddMetadataToAccount(ctx, operations.V2AddMetadataToAccountRequest{
		Ledger:  s.ledger,
		Address: reservationAccount(reservationId),
		RequestBody: map[string]string{
			"tx_hash":     txHash,
			"valid_until": validUntil.UTC().Format(time.RFC3339Nano),
			"updated_at":  s.now().Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to attach transaction to reservation %s: %w", reservationId, err)
	}

	zap.L().Debug("Transaction attached to reservation",
		zap.String("reservation_id", reservationId),
		zap.String("tx_hash", txHash))
	return nil
}

func (s *Service) GetReservation(ctx context.Context, reservationId string) (*models.PaymentReservation, error) {
	resp, err := s.client.Ledger.V2.GetAccount(ctx, operations.V2GetAccountRequest{
		Ledger:  s.ledger,
		Address: reservationAccount(reservationId),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("reservation %s: %w", reservationId, store.ErrReservationNotFound)
		}
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}

	return reservationFromMetadata(reservationId, resp.V2AccountResponse.Data.Metadata)
}

// ListStaleReservations returns reservations still reserved that were created
// before olderThan, oldest first.
func (s *Service) ListStaleReservations(ctx context.Context, olderThan time.Time, limit int) ([]models.PaymentReservation, error) {
	resp, err := s.client.Ledger.V2.ListAccounts(ctx, operations.V2ListAccountsRequest{
		Ledger:   s.ledger,
		PageSize: ptrInt64(100),
		RequestBody: map[string]any{
			"$and": []any{
				map[string]any{"$match": map[string]any{"metadata[entity_type]": "reservation"}},
				map[string]any{"$match": map[string]any{"metadata[status]": string(models.ReservationReserved)}},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}

	var stale []models.PaymentReservation
	for _, acct := range resp.V2AccountsCursorResponse.Cursor.Data {
		reservation, err := reservationFromMetadata(acct.Metadata["reservation_id"], acct.Metadata)
		if err != nil {
			zap.L().Warn("Skipping unreadable reservation", zap.String("address", acct.Address), zap.Error(err))
			continue
		}
		if reservation.CreatedAt.Before(olderThan) {
			stale = append(stale, *reservation)
		}
	}

	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

// reservationFromMetadata rebuilds a reservation from its account metadata.
func reservationFromMetadata(reservationId string, meta map[string]string) (*models.PaymentReservation, error) {
	if meta["entity_type"] != "reservation" {
		return nil, fmt.Errorf("reservation %s: %w", reservationId, store.ErrReservationNotFound)
	}

	userId, err := strconv.ParseInt(meta["user_id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("reservation %s has invalid user id: %w", reservationId, err)
	}
	amount, err := strconv.ParseInt(meta["amount"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("reservation %s has invalid amount: %w", reservationId, err)
	}

	reservation := &models.PaymentReservation{
		Id:              reservationId,
		UserId:          userId,
		Amount:          amount,
		TransactionHash: meta["tx_hash"],
		Status:          models.ReservationStatus(meta["status"]),
		ValidUntil:      parseTime(meta["valid_until"]),
		CreatedAt:       parseTime(meta["created_at"]),
		UpdatedAt:       parseTime(meta["updated_at"]),
	}
	return reservation, nil
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func ptrInt64(v int64) *int64 { return &v }

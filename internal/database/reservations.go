package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"stellar-send-receive-go/internal/models"
	"stellar-send-receive-go/internal/store"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*models.PaymentReservation, error) {
	var reservation models.PaymentReservation
	var status string
	var validUntil sql.NullTime
	err := row.Scan(&reservation.Id, &reservation.UserId, &reservation.Amount,
		&reservation.TransactionHash, &validUntil, &status, &reservation.CreatedAt, &reservation.UpdatedAt)
	if err != nil {
		return nil, err
	}
	reservation.Status = models.ReservationStatus(status)
	if validUntil.Valid {
		reservation.ValidUntil = validUntil.Time
	}
	return &reservation, nil
}

// ReservePayment moves amount from the available balance into a new reservation
func (s *Service) ReservePayment(ctx context.Context, userId int64, reservationId string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("reservation amount must be positive, got %d", amount)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := utcNow()
	if _, err := tx.ExecContext(ctx, queryInsertReservation, reservationId, userId, amount, now, now); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: reservation %s already exists", store.ErrDuplicateTransaction, reservationId)
		}
		return fmt.Errorf("failed to insert reservation: %w", err)
	}

	_, err = s.subledger.applyInTx(ctx, tx, ProcessTransactionParams{
		UserId:          userId,
		TransactionType: TxTypePaymentReserve,
		Amount:          -amount,
		ReservedDelta:   amount,
		ExternalTxId:    "reserve:" + reservationId,
		Reference:       reservationId,
	})
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reservation: %w", err)
	}

	zap.L().Info("Payment reserved",
		zap.String("reservation_id", reservationId),
		zap.Int64("user_id", userId),
		zap.Int64("amount", amount))
	return nil
}

func (s *Service) AttachTransaction(ctx context.Context, reservationId, txHash string, validUntil time.Time) error {
	result, err := s.db.ExecContext(ctx, queryAttachTransaction, txHash, validUntil.UTC(), utcNow(), reservationId)
	if err != nil {
		return fmt.Errorf("failed to attach transaction: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		if _, err := s.GetReservation(ctx, reservationId); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", store.ErrReservationFinalized, reservationId)
	}
	return nil
}

// ConfirmPayment marks the reservation spent and removes it from the reserved total
func (s *Service) ConfirmPayment(ctx context.Context, reservationId, txHash string) error {
	return s.finalizeReservation(ctx, reservationId, txHash, models.ReservationConfirmed)
}

// CancelPayment returns the reserved amount to the available balance
func (s *Service) CancelPayment(ctx context.Context, reservationId string) error {
	return s.finalizeReservation(ctx, reservationId, "", models.ReservationCancelled)
}

func (s *Service) finalizeReservation(ctx context.Context, reservationId, txHash string, target models.ReservationStatus) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	reservation, err := scanReservation(tx.QueryRowContext(ctx, queryGetReservation, reservationId))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", store.ErrReservationNotFound, reservationId)
	}
	if err != nil {
		return fmt.Errorf("failed to load reservation: %w", err)
	}

	switch reservation.Status {
	case target:
		zap.L().Debug("Reservation already finalized",
			zap.String("reservation_id", reservationId),
			zap.String("status", string(target)))
		return nil
	case models.ReservationReserved:
	default:
		return fmt.Errorf("%w: %s is %s", store.ErrReservationFinalized, reservationId, reservation.Status)
	}

	if _, err := tx.ExecContext(ctx, queryFinalizeReservation, string(target), txHash, utcNow(), reservationId); err != nil {
		return fmt.Errorf("failed to update reservation: %w", err)
	}

	params := ProcessTransactionParams{
		UserId:          reservation.UserId,
		ReservedDelta:   -reservation.Amount,
		TransactionHash: txHash,
		Reference:       reservationId,
	}
	if target == models.ReservationConfirmed {
		params.TransactionType = TxTypePaymentConfirm
		params.ExternalTxId = "confirm:" + reservationId
	} else {
		params.TransactionType = TxTypePaymentCancel
		params.Amount = reservation.Amount
		params.ExternalTxId = "cancel:" + reservationId
		params.TransactionHash = reservation.TransactionHash
	}

	if _, err := s.subledger.applyInTx(ctx, tx, params); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reservation update: %w", err)
	}

	zap.L().Info("Reservation finalized",
		zap.String("reservation_id", reservationId),
		zap.Int64("user_id", reservation.UserId),
		zap.String("status", string(target)),
		zap.String("tx_hash", params.TransactionHash))
	return nil
}

func (s *Service) GetReservation(ctx context.Context, reservationId string) (*models.PaymentReservation, error) {
	reservation, err := scanReservation(s.db.QueryRowContext(ctx, queryGetReservation, reservationId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrReservationNotFound, reservationId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load reservation: %w", err)
	}
	return reservation, nil
}

// ListStaleReservations returns reservations still open and created before olderThan
func (s *Service) ListStaleReservations(ctx context.Context, olderThan time.Time, limit int) ([]models.PaymentReservation, error) {
	rows, err := s.db.QueryContext(ctx, queryListStaleReservations, olderThan.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale reservations: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var reservations []models.PaymentReservation
	for rows.Next() {
		reservation, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, *reservation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reservation rows: %w", err)
	}
	return reservations, nil
}

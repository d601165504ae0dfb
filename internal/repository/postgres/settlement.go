package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"gearlend-backend/internal/domain"
	"gearlend-backend/internal/logger"
)

type settlementRepository struct {
	db querier
}

func (r *settlementRepository) Create(ctx context.Context, s *domain.SettlementRecord) error {
	logger.EnterMethod("settlementRepository.Create", "bookingID", s.BookingID, "commission", s.CommissionAmount, "ownerShare", s.OwnerShare)

	query := `INSERT INTO settlements (booking_id, payment_intent_id, method, owner_id, rental_amount_centavos,
	          commission_rate_bps, commission_amount_centavos, owner_share_centavos, settled_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	logger.DatabaseCall("INSERT", "settlements", "bookingID", s.BookingID)
	_, err := r.db.ExecContext(ctx, query, s.BookingID, s.PaymentIntentID, s.Method, s.OwnerID, s.RentalAmount,
		s.CommissionRate, s.CommissionAmount, s.OwnerShare, s.SettledAt)
	if err != nil {
		logger.DatabaseResult("INSERT", 0, err, "bookingID", s.BookingID)
		if isUniqueViolation(err) {
			return fmt.Errorf("booking %s: %w", s.BookingID, domain.ErrDuplicateSettlement)
		}
		logger.ExitMethodWithError("settlementRepository.Create", err, "bookingID", s.BookingID)
		return err
	}
	logger.DatabaseResult("INSERT", 1, nil, "bookingID", s.BookingID)
	logger.ExitMethod("settlementRepository.Create", "bookingID", s.BookingID)
	return nil
}

func (r *settlementRepository) GetByBookingID(ctx context.Context, bookingID string) (*domain.SettlementRecord, error) {
	query := `SELECT booking_id, payment_intent_id, method, owner_id, rental_amount_centavos, commission_rate_bps,
	          commission_amount_centavos, owner_share_centavos, settled_at
	          FROM settlements WHERE booking_id = $1`
	logger.DatabaseCall("SELECT", "settlements", "bookingID", bookingID)

	s := &domain.SettlementRecord{}
	var intentID sql.NullString
	err := r.db.QueryRowContext(ctx, query, bookingID).Scan(&s.BookingID, &intentID, &s.Method, &s.OwnerID,
		&s.RentalAmount, &s.CommissionRate, &s.CommissionAmount, &s.OwnerShare, &s.SettledAt)
	if err != nil {
		return nil, notFound(err, "settlement for booking "+bookingID)
	}
	if intentID.Valid {
		s.PaymentIntentID = &intentID.String
	}
	return s, nil
}

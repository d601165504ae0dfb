package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gearlend-backend/internal/domain"
	"gearlend-backend/internal/logger"

	"github.com/google/uuid"
)

type bookingRepository struct {
	db querier
}

const bookingColumns = `id, item_id, customer_id, owner_id, category, price_per_unit_centavos, rental_duration,
	rental_period_unit, delivery_charge_centavos, grand_total_centavos, pickup_date, return_date, status,
	COALESCE(payment_method, ''), payment_intent_id, payment_attempt, approved_at, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*domain.Booking, error) {
	b := &domain.Booking{}
	var intentID sql.NullString
	var approvedAt sql.NullTime
	err := row.Scan(&b.ID, &b.ItemID, &b.CustomerID, &b.OwnerID, &b.Category, &b.PricePerUnit, &b.RentalDuration,
		&b.RentalPeriodUnit, &b.DeliveryCharge, &b.GrandTotal, &b.PickupDate, &b.ReturnDate, &b.Status,
		&b.PaymentMethod, &intentID, &b.PaymentAttempt, &approvedAt, &b.Version, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if intentID.Valid {
		b.PaymentIntentID = &intentID.String
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		b.ApprovedAt = &t
	}
	return b, nil
}

func (r *bookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	logger.EnterMethod("bookingRepository.Create", "itemID", b.ItemID, "customerID", b.CustomerID)

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	if b.Version == 0 {
		b.Version = 1
	}

	query := `INSERT INTO bookings (id, item_id, customer_id, owner_id, category, price_per_unit_centavos, rental_duration,
	          rental_period_unit, delivery_charge_centavos, grand_total_centavos, pickup_date, return_date, status,
	          payment_method, payment_intent_id, payment_attempt, approved_at, version, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NULLIF($14, ''), $15, $16, $17, $18, $19, $20)`
	logger.DatabaseCall("INSERT", "bookings", "bookingID", b.ID)
	res, err := r.db.ExecContext(ctx, query, b.ID, b.ItemID, b.CustomerID, b.OwnerID, b.Category, b.PricePerUnit,
		b.RentalDuration, b.RentalPeriodUnit, b.DeliveryCharge, b.GrandTotal, b.PickupDate, b.ReturnDate, b.Status,
		b.PaymentMethod, b.PaymentIntentID, b.PaymentAttempt, b.ApprovedAt, b.Version, b.CreatedAt, b.UpdatedAt)
	var affected int64
	if err == nil {
		affected, _ = res.RowsAffected()
	}
	logger.DatabaseResult("INSERT", affected, err, "bookingID", b.ID)
	if err != nil {
		logger.ExitMethodWithError("bookingRepository.Create", err, "bookingID", b.ID)
		return err
	}

	logger.ExitMethod("bookingRepository.Create", "bookingID", b.ID)
	return nil
}

func (r *bookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	logger.DatabaseCall("SELECT", "bookings", "bookingID", id)
	b, err := scanBooking(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "booking "+id)
	}
	return b, nil
}

func (r *bookingRepository) GetForUpdate(ctx context.Context, id string) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 FOR UPDATE`
	logger.DatabaseCall("SELECT FOR UPDATE", "bookings", "bookingID", id)
	b, err := scanBooking(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "booking "+id)
	}
	return b, nil
}

func (r *bookingRepository) Update(ctx context.Context, b *domain.Booking) error {
	logger.EnterMethod("bookingRepository.Update", "bookingID", b.ID, "status", b.Status, "version", b.Version)

	now := time.Now().UTC()
	query := `UPDATE bookings SET price_per_unit_centavos=$1, rental_duration=$2, rental_period_unit=$3,
	          delivery_charge_centavos=$4, grand_total_centavos=$5, pickup_date=$6, return_date=$7, status=$8,
	          payment_method=NULLIF($9, ''), payment_intent_id=$10, payment_attempt=$11, approved_at=$12,
	          version = version + 1, updated_at=$13
	          WHERE id=$14 AND version=$15`
	logger.DatabaseCall("UPDATE", "bookings", "bookingID", b.ID)
	res, err := r.db.ExecContext(ctx, query, b.PricePerUnit, b.RentalDuration, b.RentalPeriodUnit, b.DeliveryCharge,
		b.GrandTotal, b.PickupDate, b.ReturnDate, b.Status, b.PaymentMethod, b.PaymentIntentID, b.PaymentAttempt,
		b.ApprovedAt, now, b.ID, b.Version)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err, "bookingID", b.ID)
		logger.ExitMethodWithError("bookingRepository.Update", err, "bookingID", b.ID)
		return err
	}
	rows, err := res.RowsAffected()
	logger.DatabaseResult("UPDATE", rows, err, "bookingID", b.ID)
	if err != nil {
		return err
	}
	if rows == 0 {
		err = fmt.Errorf("booking %s at version %d: %w", b.ID, b.Version, domain.ErrConcurrentModification)
		logger.ExitMethodWithError("bookingRepository.Update", err, "bookingID", b.ID)
		return err
	}

	b.Version++
	b.UpdatedAt = now
	logger.ExitMethod("bookingRepository.Update", "bookingID", b.ID, "version", b.Version)
	return nil
}

func (r *bookingRepository) ListByParticipant(ctx context.Context, userID string, limit, offset int32) ([]domain.Booking, int32, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
	          WHERE customer_id = $1 OR owner_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, 0, err
		}
		bookings = append(bookings, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var count int32
	countQuery := `SELECT count(*) FROM bookings WHERE customer_id = $1 OR owner_id = $1`
	if err := r.db.QueryRowContext(ctx, countQuery, userID).Scan(&count); err != nil {
		return nil, 0, err
	}
	return bookings, count, nil
}

func (r *bookingRepository) ListReturnDue(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
	          WHERE status = $1 AND return_date <= $2 ORDER BY return_date LIMIT $3`
	logger.DatabaseCall("SELECT", "bookings", "status", domain.BookingStatusOngoing)
	rows, err := r.db.QueryContext(ctx, query, domain.BookingStatusOngoing, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

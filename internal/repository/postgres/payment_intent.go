package postgres

import (
	"context"
	"fmt"
	"time"

	"gearlend-backend/internal/domain"
	"gearlend-backend/internal/logger"
)

type paymentIntentRepository struct {
	db querier
}

const intentColumns = `id, booking_id, amount_centavos, provider, status, COALESCE(checkout_url, ''),
	idempotency_key, COALESCE(last_error, ''), created_at, updated_at`

func scanIntent(row rowScanner) (*domain.PaymentIntent, error) {
	pi := &domain.PaymentIntent{}
	err := row.Scan(&pi.ID, &pi.BookingID, &pi.Amount, &pi.Provider, &pi.Status, &pi.CheckoutURL,
		&pi.IdempotencyKey, &pi.LastError, &pi.CreatedAt, &pi.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return pi, nil
}

func (r *paymentIntentRepository) Create(ctx context.Context, pi *domain.PaymentIntent) error {
	logger.EnterMethod("paymentIntentRepository.Create", "intentID", pi.ID, "bookingID", pi.BookingID)

	now := time.Now().UTC()
	if pi.CreatedAt.IsZero() {
		pi.CreatedAt = now
	}
	pi.UpdatedAt = now

	// the gateway returns the same intent for a replayed idempotency key
	query := `INSERT INTO payment_intents (id, booking_id, amount_centavos, provider, status, checkout_url,
	          idempotency_key, last_error, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	          ON CONFLICT (id) DO NOTHING`
	logger.DatabaseCall("INSERT", "payment_intents", "intentID", pi.ID)
	res, err := r.db.ExecContext(ctx, query, pi.ID, pi.BookingID, pi.Amount, pi.Provider, pi.Status, pi.CheckoutURL,
		pi.IdempotencyKey, pi.LastError, pi.CreatedAt, pi.UpdatedAt)
	var affected int64
	if err == nil {
		affected, _ = res.RowsAffected()
	}
	logger.DatabaseResult("INSERT", affected, err, "intentID", pi.ID)
	if err != nil {
		logger.ExitMethodWithError("paymentIntentRepository.Create", err, "intentID", pi.ID)
		return err
	}
	logger.ExitMethod("paymentIntentRepository.Create", "intentID", pi.ID, "inserted", affected == 1)
	return nil
}

func (r *paymentIntentRepository) GetByID(ctx context.Context, id string) (*domain.PaymentIntent, error) {
	query := `SELECT ` + intentColumns + ` FROM payment_intents WHERE id = $1`
	logger.DatabaseCall("SELECT", "payment_intents", "intentID", id)
	pi, err := scanIntent(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "payment intent "+id)
	}
	return pi, nil
}

func (r *paymentIntentRepository) UpdateStatus(ctx context.Context, id string, status domain.PaymentIntentStatus, lastError string) error {
	query := `UPDATE payment_intents SET status = $1, last_error = NULLIF($2, ''), updated_at = $3 WHERE id = $4`
	logger.DatabaseCall("UPDATE", "payment_intents", "intentID", id, "status", status)
	res, err := r.db.ExecContext(ctx, query, status, lastError, time.Now().UTC(), id)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err, "intentID", id)
		return err
	}
	rows, err := res.RowsAffected()
	logger.DatabaseResult("UPDATE", rows, err, "intentID", id)
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("payment intent %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *paymentIntentRepository) ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]domain.PaymentIntent, error) {
	query := `SELECT ` + intentColumns + ` FROM payment_intents
	          WHERE status = $1 AND created_at <= $2 ORDER BY created_at LIMIT $3`
	logger.DatabaseCall("SELECT", "payment_intents", "status", domain.PaymentIntentPending)
	rows, err := r.db.QueryContext(ctx, query, domain.PaymentIntentPending, createdBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intents []domain.PaymentIntent
	for rows.Next() {
		pi, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		intents = append(intents, *pi)
	}
	return intents, rows.Err()
}

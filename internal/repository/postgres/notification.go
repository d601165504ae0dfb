package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"gearlend-backend/internal/domain"
	"gearlend-backend/internal/logger"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type notificationRepository struct {
	db querier
}

const notificationColumns = `id, booking_id, recipient_id, kind, channel, title, message, attributes, status,
	attempts, COALESCE(last_error, ''), next_attempt_at, created_at, updated_at`

func scanNotification(row rowScanner) (*domain.Notification, error) {
	n := &domain.Notification{}
	var attrs []byte
	var nextAttempt sql.NullTime
	err := row.Scan(&n.ID, &n.BookingID, &n.RecipientID, &n.Kind, &n.Channel, &n.Title, &n.Message, &attrs,
		&n.Status, &n.Attempts, &n.LastError, &nextAttempt, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &n.Attributes); err != nil {
			return nil, err
		}
	}
	if nextAttempt.Valid {
		t := nextAttempt.Time
		n.NextAttemptAt = &t
	}
	return n, nil
}

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	logger.EnterMethod("notificationRepository.Create", "recipientID", n.RecipientID, "kind", n.Kind, "channel", n.Channel)

	attrs, err := json.Marshal(n.Attributes)
	if err != nil {
		logger.ExitMethodWithError("notificationRepository.Create", err, "reason", "failed to marshal attributes")
		return err
	}

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Status == "" {
		n.Status = domain.NotificationStatusIdle
	}
	now := time.Now().UTC()
	n.CreatedAt, n.UpdatedAt = now, now

	query := `INSERT INTO notifications (id, booking_id, recipient_id, kind, channel, title, message, attributes,
	          status, attempts, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	logger.DatabaseCall("INSERT", "notifications", "recipientID", n.RecipientID)
	_, err = r.db.ExecContext(ctx, query, n.ID, n.BookingID, n.RecipientID, n.Kind, n.Channel, n.Title, n.Message,
		attrs, n.Status, n.Attempts, n.CreatedAt, n.UpdatedAt)
	logger.DatabaseResult("INSERT", 1, err, "notificationID", n.ID)

	if err != nil {
		logger.ExitMethodWithError("notificationRepository.Create", err, "recipientID", n.RecipientID)
	} else {
		logger.ExitMethod("notificationRepository.Create", "notificationID", n.ID)
	}
	return err
}

func (r *notificationRepository) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`
	n, err := scanNotification(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "notification "+id)
	}
	return n, nil
}

func (r *notificationRepository) ListByRecipient(ctx context.Context, recipientID string, limit, offset int32) ([]domain.Notification, int32, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications
	          WHERE recipient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, recipientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var notes []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, err
		}
		notes = append(notes, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var count int32
	countQuery := `SELECT count(*) FROM notifications WHERE recipient_id = $1`
	if err := r.db.QueryRowContext(ctx, countQuery, recipientID).Scan(&count); err != nil {
		return nil, 0, err
	}
	return notes, count, nil
}

func (r *notificationRepository) MarkSending(ctx context.Context, id string, staleBefore time.Time) (bool, error) {
	query := `UPDATE notifications SET status = $1, attempts = attempts + 1, updated_at = $2
	          WHERE id = $3 AND (status = ANY($4) OR (status = $1 AND updated_at <= $5))`
	claimable := []string{string(domain.NotificationStatusIdle), string(domain.NotificationStatusFailed)}
	logger.DatabaseCall("UPDATE", "notifications", "notificationID", id, "status", domain.NotificationStatusSending)
	res, err := r.db.ExecContext(ctx, query, domain.NotificationStatusSending, time.Now().UTC(), id,
		pq.Array(claimable), staleBefore)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err, "notificationID", id)
		return false, err
	}
	rows, err := res.RowsAffected()
	logger.DatabaseResult("UPDATE", rows, err, "notificationID", id)
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (r *notificationRepository) MarkSent(ctx context.Context, id string) error {
	query := `UPDATE notifications SET status = $1, last_error = NULL, next_attempt_at = NULL, updated_at = $2
	          WHERE id = $3`
	return r.exec(ctx, query, domain.NotificationStatusSent, time.Now().UTC(), id)
}

func (r *notificationRepository) MarkFailed(ctx context.Context, id string, reason string, nextAttemptAt *time.Time) error {
	query := `UPDATE notifications SET status = $1, last_error = $2, next_attempt_at = $3, updated_at = $4
	          WHERE id = $5`
	return r.exec(ctx, query, domain.NotificationStatusFailed, reason, nextAttemptAt, time.Now().UTC(), id)
}

func (r *notificationRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("notification: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *notificationRepository) ListRetryable(ctx context.Context, now, idleBefore, sendingBefore time.Time, maxAttempts, limit int) ([]domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications
	          WHERE (status = $1 AND attempts < $2 AND (next_attempt_at IS NULL OR next_attempt_at <= $3))
	             OR (status = $4 AND created_at <= $5)
	             OR (status = $6 AND updated_at <= $7)
	          ORDER BY created_at LIMIT $8`
	logger.DatabaseCall("SELECT", "notifications", "maxAttempts", maxAttempts)
	rows, err := r.db.QueryContext(ctx, query, domain.NotificationStatusFailed, maxAttempts, now,
		domain.NotificationStatusIdle, idleBefore, domain.NotificationStatusSending, sendingBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, *n)
	}
	return notes, rows.Err()
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gearlend-backend/internal/domain"
	"gearlend-backend/internal/logger"
	"gearlend-backend/internal/repository"

	"github.com/lib/pq"
)

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type repos struct {
	bookings      repository.BookingRepository
	intents       repository.PaymentIntentRepository
	settlements   repository.SettlementRepository
	notifications repository.NotificationRepository
	items         repository.ItemRepository
	users         repository.UserRepository
}

func newRepos(q querier) *repos {
	return &repos{
		bookings:      &bookingRepository{db: q},
		intents:       &paymentIntentRepository{db: q},
		settlements:   &settlementRepository{db: q},
		notifications: &notificationRepository{db: q},
		items:         &itemRepository{db: q},
		users:         &userRepository{db: q},
	}
}

func (r *repos) Bookings() repository.BookingRepository { return r.bookings }
func (r *repos) PaymentIntents() repository.PaymentIntentRepository { return r.intents }
func (r *repos) Settlements() repository.SettlementRepository { return r.settlements }
func (r *repos) Notifications() repository.NotificationRepository { return r.notifications }
func (r *repos) Items() repository.ItemRepository { return r.items }
func (r *repos) Users() repository.UserRepository { return r.users }

type Store struct {
	db *sql.DB
	*repos
}

var _ repository.Store = (*Store)(nil)

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:    db,
		repos: newRepos(db),
	}
}

// WithinTx runs fn inside a READ COMMITTED transaction. Row locks taken by
// GetForUpdate are released on commit or rollback.
func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Repositories) error) (err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				logger.Error("Failed to roll back transaction", "error", rbErr)
			}
		}
	}()

	if err = fn(newRepos(tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// notFound maps sql.ErrNoRows to domain.ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

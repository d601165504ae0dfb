package postgres

import (
	"context"

	"gearlend-backend/internal/domain"
)

type userRepository struct {
	db querier
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	u := &domain.User{}
	query := `SELECT id, email, COALESCE(phone_number, ''), name FROM users WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Email, &u.PhoneNumber, &u.Name)
	if err != nil {
		return nil, notFound(err, "user "+id)
	}
	return u, nil
}

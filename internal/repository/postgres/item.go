package postgres

import (
	"context"

	"gearlend-backend/internal/domain"
	"gearlend-backend/internal/logger"
)

type itemRepository struct {
	db querier
}

func (r *itemRepository) GetByID(ctx context.Context, id string) (*domain.Item, error) {
	i := &domain.Item{}
	query := `SELECT id, owner_id, name, COALESCE(category, ''), price_per_unit_centavos, status
	          FROM items WHERE id = $1 AND deleted_at IS NULL`
	logger.DatabaseCall("SELECT", "items", "itemID", id)
	err := r.db.QueryRowContext(ctx, query, id).Scan(&i.ID, &i.OwnerID, &i.Name, &i.Category, &i.PricePerUnit, &i.Status)
	if err != nil {
		return nil, notFound(err, "item "+id)
	}
	return i, nil
}

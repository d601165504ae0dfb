package domain

import "gearlend-backend/internal/money"

type ItemStatus string

const (
	ItemStatusAvailable   ItemStatus = "AVAILABLE"
	ItemStatusUnavailable ItemStatus = "UNAVAILABLE"
	ItemStatusRented      ItemStatus = "RENTED"
)

// Item is the read-only catalog view the booking engine consumes.
type Item struct {
	ID           string       `json:"id"`
	OwnerID      string       `json:"owner_id"`
	Name         string       `json:"name"`
	Category     string       `json:"category"`
	PricePerUnit money.Amount `json:"price_per_unit"`
	Status       ItemStatus   `json:"status"`
}

func (i *Item) Available() bool {
	return i.Status == ItemStatusAvailable
}

package memory

import (
	"fmt"
	"os"

	"gearlend-backend/internal/domain"
	"gearlend-backend/internal/money"

	"gopkg.in/yaml.v3"
)

// Seed is the fixture file format for the catalog and user collaborators
// when running without Postgres.
type Seed struct {
	Items []struct {
		ID       string `yaml:"id"`
		OwnerID  string `yaml:"owner_id"`
		Name     string `yaml:"name"`
		Category string `yaml:"category"`
		Price    string `yaml:"price"`
		Status   string `yaml:"status"`
	} `yaml:"items"`
	Users []domain.User `yaml:"users"`
}

// LoadSeed reads a YAML fixture file into the store.
func (s *Store) LoadSeed(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}

	for _, it := range seed.Items {
		price, err := money.Parse(it.Price)
		if err != nil {
			return fmt.Errorf("item %s price: %w", it.ID, err)
		}
		status := domain.ItemStatus(it.Status)
		if status == "" {
			status = domain.ItemStatusAvailable
		}
		s.PutItem(domain.Item{
			ID:           it.ID,
			OwnerID:      it.OwnerID,
			Name:         it.Name,
			Category:     it.Category,
			PricePerUnit: price,
			Status:       status,
		})
	}
	for _, u := range seed.Users {
		s.PutUser(u)
	}
	return nil
}

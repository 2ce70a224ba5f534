package domain

import (
	"context"

	"gorm.io/gorm"
)

// Repository reads and writes the database price catalog. Every call takes the
// handle to run on, either the shared pool or an open transaction.
type Repository interface {
	FindByProviderModel(ctx context.Context, db *gorm.DB, provider, model string) (*ModelPrice, error)
	Upsert(ctx context.Context, db *gorm.DB, price *ModelPrice) error
	List(ctx context.Context, db *gorm.DB) ([]ModelPrice, error)
}

package catalog

import (
	"context"

	pricingdomain "github.com/smallbiznis/creditgate/internal/pricing/domain"
	"gorm.io/gorm"
)

// DatabaseCatalog serves schedules stored in the model_prices table.
type DatabaseCatalog struct {
	db   *gorm.DB
	repo pricingdomain.Repository
}

func NewDatabaseCatalog(db *gorm.DB, repo pricingdomain.Repository) *DatabaseCatalog {
	return &DatabaseCatalog{db: db, repo: repo}
}

func (c *DatabaseCatalog) Lookup(ctx context.Context, provider, model string) (*pricingdomain.Pricing, error) {
	row, err := c.repo.FindByProviderModel(ctx, c.db, provider, model)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, pricingdomain.ErrPricingNotFound
	}
	return &pricingdomain.Pricing{
		Provider: row.Provider,
		Model:    row.Model,
		Units:    []pricingdomain.Unit(row.Units),
	}, nil
}

package repository

import (
	"context"
	"errors"

	pricingdomain "github.com/smallbiznis/creditgate/internal/pricing/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() pricingdomain.Repository {
	return &repo{}
}

func (r *repo) FindByProviderModel(ctx context.Context, db *gorm.DB, provider, model string) (*pricingdomain.ModelPrice, error) {
	var price pricingdomain.ModelPrice
	err := db.WithContext(ctx).
		Where("provider = ? AND model = ?", provider, model).
		Take(&price).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &price, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, price *pricingdomain.ModelPrice) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "model"}},
		DoUpdates: clause.AssignmentColumns([]string{"units", "updated_at"}),
	}).Create(price).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]pricingdomain.ModelPrice, error) {
	var prices []pricingdomain.ModelPrice
	if err := db.WithContext(ctx).
		Order("provider ASC, model ASC").
		Find(&prices).Error; err != nil {
		return nil, err
	}
	return prices, nil
}

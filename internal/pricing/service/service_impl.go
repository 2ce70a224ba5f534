package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creditgate/internal/cache"
	pricingdomain "github.com/smallbiznis/creditgate/internal/pricing/domain"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Resolver walks its catalogs in order and returns the first schedule found.
// Lookup failures never reach the caller: they are logged and treated as a
// miss so credit calculation can fall back to default pricing.
type Resolver struct {
	log      *zap.Logger
	cache    cache.PricingCache
	catalogs []pricingdomain.Catalog
}

func NewResolver(log *zap.Logger, pricingCache cache.PricingCache, catalogs ...pricingdomain.Catalog) *Resolver {
	return &Resolver{
		log:      log.Named("pricing.resolver"),
		cache:    pricingCache,
		catalogs: catalogs,
	}
}

func (r *Resolver) Resolve(ctx context.Context, provider, model string) *pricingdomain.Pricing {
	provider = pricingdomain.NormalizeKey(provider)
	model = pricingdomain.NormalizeKey(model)
	if provider == "" || model == "" {
		return nil
	}

	if r.cache != nil {
		cached, ok, err := r.cache.Get(ctx, provider, model)
		if err != nil {
			r.log.Warn("pricing cache read failed",
				zap.String("provider", provider),
				zap.String("model", model),
				zap.Error(err),
			)
		}
		if ok {
			return cached
		}
	}

	for _, catalog := range r.catalogs {
		if catalog == nil {
			continue
		}
		pricing, err := catalog.Lookup(ctx, provider, model)
		if err != nil {
			if !errors.Is(err, pricingdomain.ErrPricingNotFound) {
				r.log.Warn("pricing lookup failed",
					zap.String("provider", provider),
					zap.String("model", model),
					zap.Error(err),
				)
			}
			continue
		}
		if pricing == nil {
			continue
		}
		r.store(ctx, provider, model, pricing)
		return pricing
	}

	r.log.Debug("no pricing resolved, defaults apply",
		zap.String("provider", provider),
		zap.String("model", model),
	)
	return nil
}

func (r *Resolver) store(ctx context.Context, provider, model string, pricing *pricingdomain.Pricing) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Set(ctx, provider, model, pricing); err != nil {
		r.log.Warn("pricing cache write failed",
			zap.String("provider", provider),
			zap.String("model", model),
			zap.Error(err),
		)
	}
}

// CatalogService manages the database price catalog.
type CatalogService struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  pricingdomain.Repository
	genID *snowflake.Node
	cache cache.PricingCache
}

func NewCatalogService(db *gorm.DB, log *zap.Logger, repo pricingdomain.Repository, genID *snowflake.Node, pricingCache cache.PricingCache) *CatalogService {
	return &CatalogService{
		db:    db,
		log:   log.Named("pricing.catalog"),
		repo:  repo,
		genID: genID,
		cache: pricingCache,
	}
}

// Upsert stores a schedule, replacing the units of an existing provider model.
func (s *CatalogService) Upsert(ctx context.Context, pricing pricingdomain.Pricing) (*pricingdomain.Pricing, error) {
	if err := pricing.Validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	row := &pricingdomain.ModelPrice{
		ID:        s.genID.Generate(),
		Provider:  pricingdomain.NormalizeKey(pricing.Provider),
		Model:     pricingdomain.NormalizeKey(pricing.Model),
		Units:     datatypes.JSONSlice[pricingdomain.Unit](pricing.Units),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Upsert(ctx, s.db, row); err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, row.Provider, row.Model); err != nil {
			s.log.Warn("pricing cache invalidation failed",
				zap.String("provider", row.Provider),
				zap.String("model", row.Model),
				zap.Error(err),
			)
		}
	}
	return &pricingdomain.Pricing{Provider: row.Provider, Model: row.Model, Units: pricing.Units}, nil
}

func (s *CatalogService) List(ctx context.Context) ([]pricingdomain.Pricing, error) {
	rows, err := s.repo.List(ctx, s.db)
	if err != nil {
		return nil, err
	}
	out := make([]pricingdomain.Pricing, 0, len(rows))
	for _, row := range rows {
		out = append(out, pricingdomain.Pricing{
			Provider: row.Provider,
			Model:    row.Model,
			Units:    []pricingdomain.Unit(row.Units),
		})
	}
	return out, nil
}

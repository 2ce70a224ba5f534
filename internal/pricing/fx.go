package pricing

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/creditgate/internal/cache"
	"github.com/smallbiznis/creditgate/internal/config"
	"github.com/smallbiznis/creditgate/internal/pricing/catalog"
	pricingdomain "github.com/smallbiznis/creditgate/internal/pricing/domain"
	"github.com/smallbiznis/creditgate/internal/pricing/repository"
	"github.com/smallbiznis/creditgate/internal/pricing/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("pricing.service",
	fx.Provide(repository.Provide),
	fx.Provide(providePricingCache),
	fx.Provide(provideResolver),
	fx.Provide(service.NewCatalogService),
)

func providePricingCache(client *redis.Client, cfg config.Config) cache.PricingCache {
	return cache.NewRedisPricingCache(client, cfg.Pricing.CacheTTL)
}

func provideResolver(
	db *gorm.DB,
	repo pricingdomain.Repository,
	cfg config.Config,
	pricingCache cache.PricingCache,
	log *zap.Logger,
) (pricingdomain.Resolver, error) {
	fileCatalog, err := catalog.NewFileCatalog(cfg.Pricing.CatalogFile, log)
	if err != nil {
		return nil, err
	}
	return service.NewResolver(
		log,
		pricingCache,
		catalog.NewDatabaseCatalog(db, repo),
		fileCatalog,
	), nil
}

package generation

import (
	"context"

	"github.com/smallbiznis/creditgate/internal/config"
	generationdomain "github.com/smallbiznis/creditgate/internal/generation/domain"
	"github.com/smallbiznis/creditgate/internal/generation/provider"
	"github.com/smallbiznis/creditgate/internal/generation/repository"
	"github.com/smallbiznis/creditgate/internal/generation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("generation.service",
	fx.Provide(repository.Provide),
	fx.Provide(provideRegistry),
	fx.Provide(service.NewService),
	fx.Provide(func(svc *service.Service) generationdomain.Service { return svc }),
	fx.Invoke(registerShutdown),
)

func provideRegistry(cfg config.Config) *provider.Registry {
	return provider.NewRegistry(cfg.Generation.DefaultProvider, provider.NewEcho())
}

func registerShutdown(lc fx.Lifecycle, svc *service.Service) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return svc.Shutdown(ctx)
		},
	})
}

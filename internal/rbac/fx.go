package rbac

import (
	"github.com/smallbiznis/creditgate/internal/rbac/repository"
	"github.com/smallbiznis/creditgate/internal/rbac/service"
	"go.uber.org/fx"
)

var Module = fx.Module("rbac.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)

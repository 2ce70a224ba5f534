package credit

import (
	creditdomain "github.com/smallbiznis/creditgate/internal/credit/domain"
	"github.com/smallbiznis/creditgate/internal/credit/service"
	orgdomain "github.com/smallbiznis/creditgate/internal/organization/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("credit.service",
	fx.Provide(provideDirectory),
	fx.Provide(service.NewService),
)

func provideDirectory(orgs orgdomain.Service) creditdomain.OrganizationDirectory {
	return orgs
}

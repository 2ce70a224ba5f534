package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/creditgate/internal/cache"
	"github.com/smallbiznis/creditgate/internal/config"
	"github.com/smallbiznis/creditgate/internal/credit"
	creditdomain "github.com/smallbiznis/creditgate/internal/credit/domain"
	"github.com/smallbiznis/creditgate/internal/generation"
	generationdomain "github.com/smallbiznis/creditgate/internal/generation/domain"
	"github.com/smallbiznis/creditgate/internal/ledger"
	"github.com/smallbiznis/creditgate/internal/observability"
	obslogger "github.com/smallbiznis/creditgate/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/creditgate/internal/observability/metrics"
	obstracing "github.com/smallbiznis/creditgate/internal/observability/tracing"
	"github.com/smallbiznis/creditgate/internal/organization"
	orgdomain "github.com/smallbiznis/creditgate/internal/organization/domain"
	"github.com/smallbiznis/creditgate/internal/pricing"
	pricingdomain "github.com/smallbiznis/creditgate/internal/pricing/domain"
	pricingservice "github.com/smallbiznis/creditgate/internal/pricing/service"
	"github.com/smallbiznis/creditgate/internal/ratelimit"
	"github.com/smallbiznis/creditgate/internal/rbac"
	rbacdomain "github.com/smallbiznis/creditgate/internal/rbac/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultHTTPAddr = ":8080"

var Module = fx.Module("http.server",
	cache.Module,
	organization.Module,
	ledger.Module,
	credit.Module,
	pricing.Module,
	rbac.Module,
	ratelimit.Module,
	generation.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.Middleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(httpMetrics.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = defaultHTTPAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	credits        creditdomain.Service
	orgs           orgdomain.Service
	rbac           rbacdomain.Service
	generation     generationdomain.Service
	pricing        pricingdomain.Resolver
	pricingCatalog PricingCatalog
	limiter        *ratelimit.GenerationLimiter
	obsMetrics     *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	Credits        creditdomain.Service
	Orgs           orgdomain.Service
	RBAC           rbacdomain.Service
	Generation     generationdomain.Service
	Pricing        pricingdomain.Resolver
	PricingCatalog *pricingservice.CatalogService
	Limiter        *ratelimit.GenerationLimiter `optional:"true"`
	ObsMetrics     *obsmetrics.Metrics          `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		credits:        p.Credits,
		orgs:           p.Orgs,
		rbac:           p.RBAC,
		generation:     p.Generation,
		pricing:        p.Pricing,
		pricingCatalog: p.PricingCatalog,
		limiter:        p.Limiter,
		obsMetrics:     p.ObsMetrics,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) authenticate() gin.HandlerFunc {
	return Authenticate([]byte(s.cfg.AuthJWTSecret), s.cfg.AuthJWTIssuer)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1", s.authenticate())

	// -------- Generations --------
	generations := api.Group("/generations")
	generations.POST("/text", s.GenerationRateLimit(), s.GenerateText)
	generations.POST("/image", s.GenerationRateLimit(), s.GenerateImage)
	generations.POST("/3d", s.GenerationRateLimit(), s.Generate3D)
	generations.GET("/tasks/:id", s.GetGenerationTask)

	// -------- Credits --------
	api.GET("/credits/me", s.GetMyCredits)

	// -------- Pricing --------
	api.GET("/pricing", s.ListPricing)
	api.GET("/pricing/:provider/:model", s.ResolvePricing)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/v1/admin", s.authenticate())

	// -------- Organizations --------
	admin.GET("/organizations", s.RequireRoles(rbacdomain.RoleAdmin), s.ListOrganizations)
	admin.POST("/organizations", s.RequireRoles(rbacdomain.RoleAdmin), s.CreateOrganization)
	admin.GET("/organizations/:id", s.RequireRoles(rbacdomain.RoleAdmin), s.GetOrganization)
	admin.PATCH("/organizations/:id", s.RequireRoles(rbacdomain.RoleAdmin), s.UpdateOrganization)
	admin.DELETE("/organizations/:id", s.RequireRoles(rbacdomain.RoleAdmin), s.DeleteOrganization)
	admin.GET("/organizations/:id/users", s.RequireRoles(rbacdomain.RoleAdmin), s.ListOrganizationUsers)
	admin.POST("/organizations/:id/users", s.RequireRoles(rbacdomain.RoleAdmin), s.AddOrganizationUser)
	admin.DELETE("/organizations/:id/users/:userId", s.RequireRoles(rbacdomain.RoleAdmin), s.RemoveOrganizationUser)

	// -------- Organization credits --------
	admin.GET("/organizations/:id/credits", s.RequirePermission(rbacdomain.PermissionCreditManage), s.GetOrganizationCredits)
	admin.PUT("/organizations/:id/credits", s.RequirePermission(rbacdomain.PermissionCreditManage), s.SetOrganizationCredits)
	admin.POST("/organizations/:id/credits/top-up", s.RequirePermission(rbacdomain.PermissionCreditManage), s.TopUpOrganizationCredits)
	admin.GET("/organizations/:id/transactions", s.RequirePermission(rbacdomain.PermissionCreditView), s.ListCreditTransactions)
	admin.GET("/organizations/:id/usages", s.RequirePermission(rbacdomain.PermissionCreditView), s.ListModelUsages)

	// -------- Member quotas --------
	admin.GET("/organizations/:id/members/:userId/quota", s.RequirePermission(rbacdomain.PermissionQuotaManage), s.GetMemberQuota)
	admin.PUT("/organizations/:id/members/:userId/quota", s.RequirePermission(rbacdomain.PermissionQuotaManage), s.SetMemberQuota)
	admin.POST("/organizations/:id/members/:userId/quota/reset", s.RequirePermission(rbacdomain.PermissionQuotaManage), s.ResetMemberQuota)

	// -------- Roles --------
	admin.GET("/roles", s.RequireRoles(rbacdomain.RoleAdmin), s.ListRoles)
	admin.POST("/roles", s.RequireRoles(rbacdomain.RoleAdmin), s.CreateRole)
	admin.PATCH("/roles/:id", s.RequireRoles(rbacdomain.RoleAdmin), s.SetRoleActive)
	admin.DELETE("/roles/:id", s.RequireRoles(rbacdomain.RoleAdmin), s.DeleteRole)
	admin.POST("/roles/:id/permissions", s.RequireRoles(rbacdomain.RoleAdmin), s.GrantRolePermissions)
	admin.POST("/permissions", s.RequireRoles(rbacdomain.RoleAdmin), s.CreatePermission)
	admin.GET("/users/:userId/roles", s.RequireRoles(rbacdomain.RoleAdmin), s.GetUserRoles)
	admin.POST("/users/:userId/roles", s.RequireRoles(rbacdomain.RoleAdmin), s.AddUserRoles)
	admin.DELETE("/users/:userId/roles", s.RequireRoles(rbacdomain.RoleAdmin), s.RemoveUserRoles)

	// -------- Pricing --------
	admin.PUT("/pricing/:provider/:model", s.RequirePermission(rbacdomain.PermissionPricingWrite), s.UpsertPricing)
}

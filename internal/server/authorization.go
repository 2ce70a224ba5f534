package server

import (
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/creditgate/internal/observability/logger"
	rbacdomain "github.com/smallbiznis/creditgate/internal/rbac/domain"
	"go.uber.org/zap"
)

// RequireRoles admits the request when the caller holds any of roles. Token
// claims are checked first; on a miss the caller's active roles are loaded
// from storage. Requests without a user id are rejected without a lookup.
func (s *Server) RequireRoles(roles ...string) gin.HandlerFunc {
	required := rbacdomain.NormalizeRoleNames(roles)
	return func(c *gin.Context) {
		if len(required) == 0 {
			AbortWithError(c, ErrForbidden)
			return
		}

		claimed := rolesFromContext(c)
		if hasAnyRole(claimed, required) {
			c.Next()
			return
		}

		userID, ok := userIDFromContext(c)
		if !ok || s.rbac == nil {
			AbortWithError(c, ErrForbidden)
			return
		}

		ctx := c.Request.Context()
		stored, err := s.rbac.GetUserRoles(ctx, userID)
		if err != nil {
			logger.FromContext(ctx).Warn("role lookup failed", zap.Error(err))
			AbortWithError(c, ErrForbidden)
			return
		}

		merged := make([]string, 0, len(claimed)+len(stored))
		merged = append(merged, claimed...)
		for _, role := range stored {
			merged = append(merged, role.Name)
		}
		merged = rbacdomain.NormalizeRoleNames(merged)
		c.Set(contextRolesKey, merged)

		if !hasAnyRole(merged, required) {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

// RequirePermission admits the request when one of the caller's active roles
// grants code. Permissions are always read from storage.
func (s *Server) RequirePermission(code string) gin.HandlerFunc {
	code = rbacdomain.NormalizePermissionCode(code)
	return func(c *gin.Context) {
		userID, ok := userIDFromContext(c)
		if !ok || s.rbac == nil || code == "" {
			AbortWithError(c, ErrForbidden)
			return
		}

		ctx := c.Request.Context()
		allowed, err := s.rbac.HasPermission(ctx, userID, code)
		if err != nil {
			logger.FromContext(ctx).Warn("permission lookup failed",
				zap.String("permission", code),
				zap.Error(err),
			)
			AbortWithError(c, ErrForbidden)
			return
		}
		if !allowed {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

func hasAnyRole(held, required []string) bool {
	for _, role := range rbacdomain.NormalizeRoleNames(held) {
		if slices.Contains(required, role) {
			return true
		}
	}
	return false
}

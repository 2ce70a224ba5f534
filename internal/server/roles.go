package server

import (
	"context"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	rbacdomain "github.com/smallbiznis/creditgate/internal/rbac/domain"
)

type userRolesRequest struct {
	Roles []string `json:"roles"`
}

type grantPermissionsRequest struct {
	Permissions []snowflake.ID `json:"permission_ids"`
}

type setRoleActiveRequest struct {
	Active *bool `json:"active"`
}

func (s *Server) ListRoles(c *gin.Context) {
	roles, err := s.rbac.ListActiveRoles(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": roles})
}

func (s *Server) CreateRole(c *gin.Context) {
	var req rbacdomain.CreateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	role, err := s.rbac.CreateRole(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": role})
}

func (s *Server) SetRoleActive(c *gin.Context) {
	roleID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req setRoleActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Active == nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.rbac.SetRoleActive(c.Request.Context(), roleID, *req.Active); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) DeleteRole(c *gin.Context) {
	roleID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.rbac.DeleteRole(c.Request.Context(), roleID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) CreatePermission(c *gin.Context) {
	var req rbacdomain.CreatePermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	permission, err := s.rbac.CreatePermission(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": permission})
}

func (s *Server) GrantRolePermissions(c *gin.Context) {
	roleID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req grantPermissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.rbac.GrantPermissions(c.Request.Context(), roleID, req.Permissions); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) GetUserRoles(c *gin.Context) {
	userID, err := parseIDParam(c, "userId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	roles, err := s.rbac.GetUserRoles(ctx, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	permissions, err := s.rbac.GetUserPermissions(ctx, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"roles":       roles,
		"permissions": permissions,
	}})
}

func (s *Server) AddUserRoles(c *gin.Context) {
	userID, err := parseIDParam(c, "userId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req userRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	roleIDs, err := s.resolveRoleIDs(ctx, req.Roles)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.rbac.AddUserRoles(ctx, userID, roleIDs); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) RemoveUserRoles(c *gin.Context) {
	userID, err := parseIDParam(c, "userId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req userRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	roleIDs, err := s.resolveRoleIDs(ctx, req.Roles)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	removed, err := s.rbac.RemoveUserRoles(ctx, userID, roleIDs)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"removed": removed}})
}

// resolveRoleIDs maps role names to ids regardless of the active flag. Every
// name must exist.
func (s *Server) resolveRoleIDs(ctx context.Context, names []string) ([]snowflake.ID, error) {
	normalized := rbacdomain.NormalizeRoleNames(names)
	if len(normalized) == 0 {
		return nil, rbacdomain.ErrInvalidRoleName
	}

	refs, err := s.rbac.GetRolesByNames(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if len(refs) != len(normalized) {
		return nil, rbacdomain.ErrRoleNotFound
	}

	ids := make([]snowflake.ID, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.ID)
	}
	return ids, nil
}

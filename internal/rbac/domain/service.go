package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Well-known role names and permission codes.
const (
	RoleAdmin   = "admin"
	RoleManager = "organization_manager"
	RoleMember  = "member"

	PermissionCreditManage = "organization.credit.manage"
	PermissionCreditView   = "organization.credit.view"
	PermissionQuotaManage  = "organization.quota.manage"
	PermissionPricingWrite = "pricing.write"
)

type Service interface {
	GetUserRoles(ctx context.Context, userID snowflake.ID) ([]Role, error)
	GetUserPermissions(ctx context.Context, userID snowflake.ID) ([]Permission, error)
	GetActiveRolesByNames(ctx context.Context, names []string) ([]Role, error)
	GetRolesByNames(ctx context.Context, names []string) ([]RoleRef, error)
	AddUserRoles(ctx context.Context, userID snowflake.ID, roleIDs []snowflake.ID) error
	RemoveUserRoles(ctx context.Context, userID snowflake.ID, roleIDs []snowflake.ID) (int64, error)
	ListActiveRoles(ctx context.Context) ([]Role, error)

	CreateRole(ctx context.Context, req CreateRoleRequest) (*Role, error)
	SetRoleActive(ctx context.Context, roleID snowflake.ID, active bool) error
	DeleteRole(ctx context.Context, roleID snowflake.ID) error
	CreatePermission(ctx context.Context, req CreatePermissionRequest) (*Permission, error)
	GrantPermissions(ctx context.Context, roleID snowflake.ID, permissionIDs []snowflake.ID) error
	HasPermission(ctx context.Context, userID snowflake.ID, code string) (bool, error)
}

type CreateRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Inactive    bool   `json:"inactive"`
}

type CreatePermissionRequest struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

var (
	ErrInvalidRoleName       = errors.New("invalid_role_name")
	ErrInvalidPermissionCode = errors.New("invalid_permission_code")
	ErrInvalidUser           = errors.New("invalid_user")
	ErrRoleNotFound          = errors.New("role_not_found")
	ErrRoleExists            = errors.New("role_already_exists")
	ErrPermissionExists      = errors.New("permission_already_exists")
)

package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	ListUserRoles(ctx context.Context, userID snowflake.ID) ([]Role, error)
	ListUserPermissions(ctx context.Context, userID snowflake.ID) ([]Permission, error)
	FindActiveRolesByNames(ctx context.Context, names []string) ([]Role, error)
	FindRolesByNames(ctx context.Context, names []string) ([]RoleRef, error)
	ListActiveRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id snowflake.ID) (*Role, error)

	InsertUserRoles(ctx context.Context, rows []UserRole) error
	DeleteUserRoles(ctx context.Context, userID snowflake.ID, roleIDs []snowflake.ID) (int64, error)

	CreateRole(ctx context.Context, role *Role) error
	SetRoleActive(ctx context.Context, id snowflake.ID, active bool) (int64, error)
	DeleteRole(ctx context.Context, id snowflake.ID) (int64, error)
	CreatePermission(ctx context.Context, permission *Permission) error
	FindPermissionsByCodes(ctx context.Context, codes []string) ([]Permission, error)
	InsertRolePermissions(ctx context.Context, rows []RolePermission) error
}

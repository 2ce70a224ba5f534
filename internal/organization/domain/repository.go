package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrganization(ctx context.Context, org Organization) error
	GetOrganization(ctx context.Context, id snowflake.ID) (*Organization, error)
	ListOrganizations(ctx context.Context, parentID *snowflake.ID) ([]Organization, error)
	UpdateOrganization(ctx context.Context, org Organization) error
	DeleteOrganization(ctx context.Context, id snowflake.ID) error
	SlugExists(ctx context.Context, slug string) (bool, error)
	CountChildren(ctx context.Context, id snowflake.ID) (int64, error)

	AddUser(ctx context.Context, user OrganizationUser) error
	RemoveUser(ctx context.Context, orgID, userID snowflake.ID) (int64, error)
	CountUsers(ctx context.Context, orgID snowflake.ID) (int64, error)
	ListUsers(ctx context.Context, orgID snowflake.ID) ([]OrganizationUser, error)
	GetUserMembership(ctx context.Context, userID snowflake.ID) (*OrganizationUser, error)
}

package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Create(ctx context.Context, req CreateOrganizationRequest) (*Organization, error)
	Get(ctx context.Context, id snowflake.ID) (*Organization, error)
	List(ctx context.Context, parentID *snowflake.ID) ([]Organization, error)
	Update(ctx context.Context, id snowflake.ID, req UpdateOrganizationRequest) (*Organization, error)
	Delete(ctx context.Context, id snowflake.ID) error

	AddUser(ctx context.Context, orgID, userID snowflake.ID) (*OrganizationUser, error)
	RemoveUser(ctx context.Context, orgID, userID snowflake.ID) error
	ListUsers(ctx context.Context, orgID snowflake.ID) ([]OrganizationUser, error)
	GetUserOrganization(ctx context.Context, userID snowflake.ID) (snowflake.ID, error)
}

type CreateOrganizationRequest struct {
	Name     string        `json:"name"`
	Type     Type          `json:"type"`
	ParentID *snowflake.ID `json:"parent_id,omitempty"`
	MaxUsers *int          `json:"max_users,omitempty"`
}

// UpdateOrganizationRequest carries the fields to change; nil leaves a field
// untouched. ClearMaxUsers removes the user cap.
type UpdateOrganizationRequest struct {
	Name          *string `json:"name,omitempty"`
	Type          *Type   `json:"type,omitempty"`
	MaxUsers      *int    `json:"max_users,omitempty"`
	ClearMaxUsers bool    `json:"clear_max_users,omitempty"`
}

var (
	ErrInvalidName             = errors.New("invalid_name")
	ErrInvalidType             = errors.New("invalid_organization_type")
	ErrInvalidParent           = errors.New("invalid_parent_organization")
	ErrInvalidMaxUsers         = errors.New("invalid_max_users")
	ErrInvalidUser             = errors.New("invalid_user")
	ErrInvalidOrganization     = errors.New("invalid_organization")
	ErrOrganizationNotFound    = errors.New("organization_not_found")
	ErrManagementTypeImmutable = errors.New("management_type_immutable")
	ErrOrganizationHasUsers    = errors.New("organization_has_users")
	ErrOrganizationHasChildren = errors.New("organization_has_children")
	ErrUserAlreadyAssigned     = errors.New("user_already_in_organization")
	ErrUserNotInOrganization   = errors.New("user_not_in_organization")
	ErrMaxUsersReached         = errors.New("organization_max_users_reached")
)

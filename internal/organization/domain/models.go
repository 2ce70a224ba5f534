// Package domain contains persistence models for the organization service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Type classifies an organization.
type Type string

const (
	TypeManagement Type = "management"
	TypeSchool     Type = "school"
	TypeClass      Type = "class"
	TypePersonal   Type = "personal"
)

// Valid reports whether t is a known organization type.
func (t Type) Valid() bool {
	switch t {
	case TypeManagement, TypeSchool, TypeClass, TypePersonal:
		return true
	default:
		return false
	}
}

// Organization owns a credit balance shared by its users.
type Organization struct {
	ID        snowflake.ID  `gorm:"primaryKey" json:"id"`
	Name      string        `gorm:"type:text;not null" json:"name"`
	Slug      string        `gorm:"size:255;not null;uniqueIndex:ux_organizations_slug" json:"slug"`
	Type      Type          `gorm:"type:text;not null" json:"type"`
	ParentID  *snowflake.ID `gorm:"index" json:"parent_id,omitempty"`
	MaxUsers  *int          `json:"max_users,omitempty"`
	CreatedAt time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

// OrganizationUser links a user to the one organization that pays for them.
type OrganizationUser struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	OrganizationID snowflake.ID `gorm:"not null;index" json:"organization_id"`
	UserID         snowflake.ID `gorm:"not null;uniqueIndex:ux_organization_users_user" json:"user_id"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (OrganizationUser) TableName() string { return "organization_users" }

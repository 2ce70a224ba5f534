// Package domain holds roles, permissions and their assignments.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Role is a named bundle of permissions. Inactive roles grant nothing.
type Role struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	Name        string       `gorm:"size:255;not null;uniqueIndex:ux_roles_name" json:"name"`
	Description string       `gorm:"type:text" json:"description"`
	IsActive    bool         `gorm:"not null" json:"is_active"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Role) TableName() string { return "roles" }

// Permission is a grantable capability identified by a dotted code.
type Permission struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	Code        string       `gorm:"size:255;not null;uniqueIndex:ux_permissions_code" json:"code"`
	Description string       `gorm:"type:text" json:"description"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Permission) TableName() string { return "permissions" }

type RolePermission struct {
	RoleID       snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"role_id"`
	PermissionID snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"permission_id"`
}

// TableName sets the database table name.
func (RolePermission) TableName() string { return "role_permissions" }

type UserRole struct {
	UserID    snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	RoleID    snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"role_id"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (UserRole) TableName() string { return "user_roles" }

// RoleRef identifies a role regardless of its active flag.
type RoleRef struct {
	ID   snowflake.ID `json:"id"`
	Name string       `json:"name"`
}

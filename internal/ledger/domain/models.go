package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// QuotaPeriodTotal is the only quota period; usage accumulates until reset.
const QuotaPeriodTotal = "total"

// UsageType classifies a model usage record.
type UsageType string

const (
	UsageTypeText   UsageType = "text"
	UsageTypeImage  UsageType = "image"
	UsageTypeThreeD UsageType = "threeD"
)

// Valid reports whether t is a known usage type.
func (t UsageType) Valid() bool {
	switch t {
	case UsageTypeText, UsageTypeImage, UsageTypeThreeD:
		return true
	default:
		return false
	}
}

// Transaction reasons written by administrative balance changes.
const (
	ReasonAdminSet = "admin_set"
	ReasonTopUp    = "top_up"
)

// OrganizationCredit is the shared credit balance of one organization. The
// balance may go negative after a charge.
type OrganizationCredit struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	OrganizationID snowflake.ID `gorm:"not null;uniqueIndex" json:"organization_id"`
	Balance        int64        `gorm:"not null;default:0" json:"balance"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (OrganizationCredit) TableName() string { return "organization_credits" }

// MemberQuota caps what one member may consume of the organization balance.
// A nil Limit means unlimited.
type MemberQuota struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	OrganizationID snowflake.ID `gorm:"not null;uniqueIndex:ux_member_quotas_org_user,priority:1" json:"organization_id"`
	UserID         snowflake.ID `gorm:"not null;uniqueIndex:ux_member_quotas_org_user,priority:2" json:"user_id"`
	Limit          *int64       `gorm:"column:limit" json:"limit"`
	Used           int64        `gorm:"not null;default:0" json:"used"`
	Period         string       `gorm:"type:text;not null;default:'total'" json:"period"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (MemberQuota) TableName() string { return "member_quotas" }

// Remaining returns the credits left under the limit, or nil when unlimited.
func (q MemberQuota) Remaining() *int64 {
	if q.Limit == nil {
		return nil
	}
	remaining := *q.Limit - q.Used
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

// ModelUsage is an append-only record of one billed generation.
type ModelUsage struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrganizationID snowflake.ID      `gorm:"not null;index" json:"organization_id"`
	UserID         snowflake.ID      `gorm:"not null;index" json:"user_id"`
	Provider       string            `gorm:"type:text;not null" json:"provider"`
	Model          string            `gorm:"type:text;not null" json:"model"`
	UsageType      UsageType         `gorm:"type:text;not null" json:"usage_type"`
	CountUsed      int64             `gorm:"not null" json:"count_used"`
	Metadata       datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (ModelUsage) TableName() string { return "model_usages" }

// ModelCreditTransaction is an append-only signed balance movement. Charges
// are negative and link the usage they paid for.
type ModelCreditTransaction struct {
	ID             snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrganizationID snowflake.ID  `gorm:"not null;index" json:"organization_id"`
	UserID         snowflake.ID  `gorm:"not null;index" json:"user_id"`
	Amount         int64         `gorm:"not null" json:"amount"`
	Reason         string        `gorm:"type:text;not null" json:"reason"`
	UsageID        *snowflake.ID `gorm:"index" json:"usage_id,omitempty"`
	CreatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (ModelCreditTransaction) TableName() string { return "model_credit_transactions" }

package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/creditgate/internal/ledger/domain"
)

// AllowanceRequest asks whether userID may spend RequiredCredits.
type AllowanceRequest struct {
	UserID          snowflake.ID
	RequiredCredits int64
}

// AllowanceContext is the result of a passed allowance check. Nothing is
// reserved; the later charge must target the same organization and user.
type AllowanceContext struct {
	OrganizationID  snowflake.ID `json:"organization_id"`
	UserID          snowflake.ID `json:"user_id"`
	RequiredCredits int64        `json:"required_credits"`
}

// Usage describes what a charge paid for.
type Usage struct {
	CountUsed int64
	Metadata  map[string]any
	Model     string
	Provider  string
	UsageType ledgerdomain.UsageType
}

// ChargeRequest debits Credits from an organization on behalf of UserID.
type ChargeRequest struct {
	Credits        int64
	OrganizationID snowflake.ID
	Reason         string
	Usage          Usage
	UserID         snowflake.ID
}

// ChargeResult reports the rows written and the resulting ledger state.
type ChargeResult struct {
	UsageID       snowflake.ID `json:"usage_id"`
	TransactionID snowflake.ID `json:"transaction_id"`
	Balance       int64        `json:"balance"`
	Used          int64        `json:"used"`
}

// Balance is an organization's credit balance.
type Balance struct {
	OrganizationID snowflake.ID `json:"organization_id"`
	Balance        int64        `json:"balance"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// MemberQuota is one member's consumption against their limit.
type MemberQuota struct {
	OrganizationID snowflake.ID `json:"organization_id"`
	UserID         snowflake.ID `json:"user_id"`
	Limit          *int64       `json:"limit"`
	Used           int64        `json:"used"`
	Remaining      *int64       `json:"remaining"`
	Period         string       `json:"period"`
}

// UserSummary is what a member sees about their own credits.
type UserSummary struct {
	OrganizationID snowflake.ID `json:"organization_id"`
	Balance        int64        `json:"balance"`
	Quota          MemberQuota  `json:"quota"`
}

// OrganizationDirectory resolves the organization that pays for a user.
type OrganizationDirectory interface {
	GetUserOrganization(ctx context.Context, userID snowflake.ID) (snowflake.ID, error)
}

type Service interface {
	EnsureAllowance(ctx context.Context, req AllowanceRequest) (*AllowanceContext, error)
	Charge(ctx context.Context, req ChargeRequest, allowance *AllowanceContext) (*ChargeResult, error)

	GetUserSummary(ctx context.Context, userID snowflake.ID) (*UserSummary, error)
	GetBalance(ctx context.Context, orgID snowflake.ID) (*Balance, error)
	SetBalance(ctx context.Context, orgID, actorID snowflake.ID, balance int64) (*Balance, error)
	TopUp(ctx context.Context, orgID, actorID snowflake.ID, amount int64) (*Balance, error)
	GetMemberQuota(ctx context.Context, orgID, userID snowflake.ID) (*MemberQuota, error)
	SetMemberLimit(ctx context.Context, orgID, userID snowflake.ID, limit *int64) (*MemberQuota, error)
	ResetMemberUsage(ctx context.Context, orgID, userID snowflake.ID) (*MemberQuota, error)
	ListTransactions(ctx context.Context, orgID snowflake.ID, limit int) ([]ledgerdomain.ModelCreditTransaction, error)
	ListUsages(ctx context.Context, orgID snowflake.ID, limit int) ([]ledgerdomain.ModelUsage, error)
}

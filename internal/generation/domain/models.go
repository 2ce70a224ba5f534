// Package domain describes generation tasks and the provider collaborator.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/creditgate/internal/ledger/domain"
	pricingdomain "github.com/smallbiznis/creditgate/internal/pricing/domain"
)

// TaskStatus is the lifecycle state of an asynchronous generation.
type TaskStatus string

const (
	TaskStatusPending TaskStatus = "Pending"
	TaskStatusSuccess TaskStatus = "Success"
	TaskStatusError   TaskStatus = "Error"
)

// ErrorKind categorizes a failed generation. Providers may report their own
// codes through ProviderError; those are stored verbatim.
type ErrorKind string

const (
	ErrorKindInvalidProviderAPIKey ErrorKind = "InvalidProviderAPIKey"
	ErrorKindTimeout               ErrorKind = "Timeout"
	ErrorKindNetworkError          ErrorKind = "NetworkError"
	ErrorKindServerError           ErrorKind = "ServerError"
)

// Task tracks one image or 3D generation from submission to its terminal
// status. Credits are only charged once the task succeeds.
type Task struct {
	ID               snowflake.ID           `gorm:"primaryKey" json:"id"`
	OrganizationID   snowflake.ID           `gorm:"not null;index:ix_generation_tasks_org" json:"organization_id"`
	UserID           snowflake.ID           `gorm:"not null;index:ix_generation_tasks_user" json:"user_id"`
	Provider         string                 `gorm:"type:text;not null" json:"provider"`
	Model            string                 `gorm:"type:text;not null" json:"model"`
	UsageType        ledgerdomain.UsageType `gorm:"type:text;not null" json:"usage_type"`
	Status           TaskStatus             `gorm:"type:text;not null" json:"status"`
	ErrorKind        ErrorKind              `gorm:"type:text" json:"error_kind,omitempty"`
	ErrorMessage     string                 `gorm:"type:text" json:"error_message,omitempty"`
	AssetURL         string                 `gorm:"type:text" json:"asset_url,omitempty"`
	EstimatedCredits int64                  `gorm:"not null;default:0" json:"estimated_credits"`
	ChargedCredits   int64                  `gorm:"not null;default:0" json:"charged_credits"`
	CreatedAt        time.Time              `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time              `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Task) TableName() string { return "generation_tasks" }

// Terminal reports whether the task reached Success or Error.
func (t Task) Terminal() bool {
	return t.Status == TaskStatusSuccess || t.Status == TaskStatusError
}

// TextRequest is a chat completion request.
type TextRequest struct {
	Provider        string                  `json:"provider"`
	Model           string                  `json:"model"`
	Messages        []pricingdomain.Message `json:"messages"`
	MaxOutputTokens int64                   `json:"max_output_tokens"`
}

// TextResult is what a provider returns for a completion.
type TextResult struct {
	Content string
	Usage   pricingdomain.TextUsage
}

// TextResponse is a completed and charged text generation.
type TextResponse struct {
	Content          string                  `json:"content"`
	Provider         string                  `json:"provider"`
	Model            string                  `json:"model"`
	Usage            pricingdomain.TextUsage `json:"usage"`
	EstimatedCredits int64                   `json:"estimated_credits"`
	Credits          int64                   `json:"credits"`
	Balance          int64                   `json:"balance"`
	UsageID          snowflake.ID            `json:"usage_id"`
	CorrelationID    string                  `json:"correlation_id"`
}

// AssetRequest asks for Count images or 3D models from a prompt.
type AssetRequest struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Prompt   string `json:"prompt"`
	Count    int64  `json:"count"`
}

// AssetResult is what a provider returns for an asset generation. Count is
// the number of assets actually produced.
type AssetResult struct {
	AssetURL string
	Count    int64
}

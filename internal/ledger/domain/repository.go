package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository persists ledger rows. Every method runs on the supplied handle so
// callers can compose several writes inside one transaction.
type Repository interface {
	EnsureCredit(ctx context.Context, db *gorm.DB, id, orgID snowflake.ID) error
	GetCredit(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*OrganizationCredit, error)
	AdjustBalance(ctx context.Context, db *gorm.DB, orgID snowflake.ID, delta int64) error
	SetBalance(ctx context.Context, db *gorm.DB, orgID snowflake.ID, balance int64) error

	EnsureQuota(ctx context.Context, db *gorm.DB, id, orgID, userID snowflake.ID) error
	GetQuota(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID) (*MemberQuota, error)
	IncrementUsed(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID, delta int64) error
	SetLimit(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID, limit *int64) error
	ResetUsed(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID) error

	InsertUsage(ctx context.Context, db *gorm.DB, usage *ModelUsage) error
	InsertTransaction(ctx context.Context, db *gorm.DB, txn *ModelCreditTransaction) error
	ListUsages(ctx context.Context, db *gorm.DB, orgID snowflake.ID, limit int) ([]ModelUsage, error)
	ListTransactions(ctx context.Context, db *gorm.DB, orgID snowflake.ID, limit int) ([]ModelCreditTransaction, error)
}

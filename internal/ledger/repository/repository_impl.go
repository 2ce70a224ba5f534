package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/creditgate/internal/ledger/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultListLimit = 50

type repo struct{}

func Provide() ledgerdomain.Repository {
	return &repo{}
}

func (r *repo) EnsureCredit(ctx context.Context, db *gorm.DB, id, orgID snowflake.ID) error {
	now := time.Now().UTC()
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "organization_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"updated_at"}),
	}).Create(&ledgerdomain.OrganizationCredit{
		ID:             id,
		OrganizationID: orgID,
		Balance:        0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}).Error
}

func (r *repo) GetCredit(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*ledgerdomain.OrganizationCredit, error) {
	var credit ledgerdomain.OrganizationCredit
	err := db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Take(&credit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ledgerdomain.ErrCreditNotFound
		}
		return nil, err
	}
	return &credit, nil
}

func (r *repo) AdjustBalance(ctx context.Context, db *gorm.DB, orgID snowflake.ID, delta int64) error {
	result := db.WithContext(ctx).
		Model(&ledgerdomain.OrganizationCredit{}).
		Where("organization_id = ?", orgID).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance + ?", delta),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ledgerdomain.ErrCreditNotFound
	}
	return nil
}

func (r *repo) SetBalance(ctx context.Context, db *gorm.DB, orgID snowflake.ID, balance int64) error {
	result := db.WithContext(ctx).
		Model(&ledgerdomain.OrganizationCredit{}).
		Where("organization_id = ?", orgID).
		Updates(map[string]any{
			"balance":    balance,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ledgerdomain.ErrCreditNotFound
	}
	return nil
}

func (r *repo) EnsureQuota(ctx context.Context, db *gorm.DB, id, orgID, userID snowflake.ID) error {
	now := time.Now().UTC()
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "organization_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"updated_at"}),
	}).Create(&ledgerdomain.MemberQuota{
		ID:             id,
		OrganizationID: orgID,
		UserID:         userID,
		Used:           0,
		Period:         ledgerdomain.QuotaPeriodTotal,
		CreatedAt:      now,
		UpdatedAt:      now,
	}).Error
}

func (r *repo) GetQuota(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID) (*ledgerdomain.MemberQuota, error) {
	var quota ledgerdomain.MemberQuota
	err := db.WithContext(ctx).
		Where("organization_id = ? AND user_id = ?", orgID, userID).
		Take(&quota).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ledgerdomain.ErrQuotaNotFound
		}
		return nil, err
	}
	return &quota, nil
}

// IncrementUsed adds delta to used and clamps the result at zero.
func (r *repo) IncrementUsed(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID, delta int64) error {
	result := db.WithContext(ctx).
		Model(&ledgerdomain.MemberQuota{}).
		Where("organization_id = ? AND user_id = ?", orgID, userID).
		Updates(map[string]any{
			"used":       gorm.Expr("CASE WHEN used + ? < 0 THEN 0 ELSE used + ? END", delta, delta),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ledgerdomain.ErrQuotaNotFound
	}
	return nil
}

func (r *repo) SetLimit(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID, limit *int64) error {
	var value any
	if limit != nil {
		value = *limit
	}
	result := db.WithContext(ctx).
		Model(&ledgerdomain.MemberQuota{}).
		Where("organization_id = ? AND user_id = ?", orgID, userID).
		Updates(map[string]any{
			"limit":      value,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ledgerdomain.ErrQuotaNotFound
	}
	return nil
}

func (r *repo) ResetUsed(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID) error {
	result := db.WithContext(ctx).
		Model(&ledgerdomain.MemberQuota{}).
		Where("organization_id = ? AND user_id = ?", orgID, userID).
		Updates(map[string]any{
			"used":       0,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ledgerdomain.ErrQuotaNotFound
	}
	return nil
}

func (r *repo) InsertUsage(ctx context.Context, db *gorm.DB, usage *ledgerdomain.ModelUsage) error {
	return db.WithContext(ctx).Create(usage).Error
}

func (r *repo) InsertTransaction(ctx context.Context, db *gorm.DB, txn *ledgerdomain.ModelCreditTransaction) error {
	return db.WithContext(ctx).Create(txn).Error
}

func (r *repo) ListUsages(ctx context.Context, db *gorm.DB, orgID snowflake.ID, limit int) ([]ledgerdomain.ModelUsage, error) {
	var usages []ledgerdomain.ModelUsage
	err := db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("created_at DESC, id DESC").
		Limit(normalizeLimit(limit)).
		Find(&usages).Error
	if err != nil {
		return nil, err
	}
	return usages, nil
}

func (r *repo) ListTransactions(ctx context.Context, db *gorm.DB, orgID snowflake.ID, limit int) ([]ledgerdomain.ModelCreditTransaction, error) {
	var txns []ledgerdomain.ModelCreditTransaction
	err := db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("created_at DESC, id DESC").
		Limit(normalizeLimit(limit)).
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > 500 {
		return 500
	}
	return limit
}

package repository

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/creditgate/internal/ledger/domain"
	"github.com/smallbiznis/creditgate/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.NewTest(t.Name())
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&ledgerdomain.OrganizationCredit{},
		&ledgerdomain.MemberQuota{},
		&ledgerdomain.ModelUsage{},
		&ledgerdomain.ModelCreditTransaction{},
	))
	return conn
}

func TestEnsureCreditIsIdempotent(t *testing.T) {
	conn := setupDB(t)
	r := Provide()
	ctx := context.Background()
	orgID := snowflake.ID(10)

	require.NoError(t, r.EnsureCredit(ctx, conn, 1, orgID))
	require.NoError(t, r.AdjustBalance(ctx, conn, orgID, 40))
	require.NoError(t, r.EnsureCredit(ctx, conn, 2, orgID))

	var count int64
	require.NoError(t, conn.Model(&ledgerdomain.OrganizationCredit{}).Where("organization_id = ?", orgID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	credit, err := r.GetCredit(ctx, conn, orgID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), credit.Balance)
	assert.Equal(t, snowflake.ID(1), credit.ID)
}

func TestAdjustBalanceIsSequential(t *testing.T) {
	conn := setupDB(t)
	r := Provide()
	ctx := context.Background()
	orgID := snowflake.ID(10)
	require.NoError(t, r.EnsureCredit(ctx, conn, 1, orgID))

	deltas := []int64{100, -30, -80, 5}
	var want int64
	for _, delta := range deltas {
		want += delta
		require.NoError(t, r.AdjustBalance(ctx, conn, orgID, delta))
	}

	credit, err := r.GetCredit(ctx, conn, orgID)
	require.NoError(t, err)
	assert.Equal(t, want, credit.Balance)
	assert.Equal(t, int64(-5), credit.Balance)
}

func TestAdjustBalanceMissingRow(t *testing.T) {
	conn := setupDB(t)
	err := Provide().AdjustBalance(context.Background(), conn, 99, 1)
	assert.ErrorIs(t, err, ledgerdomain.ErrCreditNotFound)

	_, err = Provide().GetCredit(context.Background(), conn, 99)
	assert.ErrorIs(t, err, ledgerdomain.ErrCreditNotFound)
}

func TestSetBalanceOverwrites(t *testing.T) {
	conn := setupDB(t)
	r := Provide()
	ctx := context.Background()
	require.NoError(t, r.EnsureCredit(ctx, conn, 1, 10))
	require.NoError(t, r.AdjustBalance(ctx, conn, 10, 17))
	require.NoError(t, r.SetBalance(ctx, conn, 10, 3))

	credit, err := r.GetCredit(ctx, conn, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), credit.Balance)
}

func TestIncrementUsedClampsAtZero(t *testing.T) {
	conn := setupDB(t)
	r := Provide()
	ctx := context.Background()
	orgID, userID := snowflake.ID(10), snowflake.ID(20)
	require.NoError(t, r.EnsureQuota(ctx, conn, 1, orgID, userID))

	require.NoError(t, r.IncrementUsed(ctx, conn, orgID, userID, 7))
	require.NoError(t, r.IncrementUsed(ctx, conn, orgID, userID, -10))

	quota, err := r.GetQuota(ctx, conn, orgID, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), quota.Used)

	require.NoError(t, r.IncrementUsed(ctx, conn, orgID, userID, 4))
	require.NoError(t, r.IncrementUsed(ctx, conn, orgID, userID, -1))
	quota, err = r.GetQuota(ctx, conn, orgID, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), quota.Used)
}

func TestEnsureQuotaKeepsLimitAndUsage(t *testing.T) {
	conn := setupDB(t)
	r := Provide()
	ctx := context.Background()
	orgID, userID := snowflake.ID(10), snowflake.ID(20)

	require.NoError(t, r.EnsureQuota(ctx, conn, 1, orgID, userID))
	quota, err := r.GetQuota(ctx, conn, orgID, userID)
	require.NoError(t, err)
	assert.Nil(t, quota.Limit)
	assert.Equal(t, ledgerdomain.QuotaPeriodTotal, quota.Period)
	assert.Nil(t, quota.Remaining())

	limit := int64(50)
	require.NoError(t, r.SetLimit(ctx, conn, orgID, userID, &limit))
	require.NoError(t, r.IncrementUsed(ctx, conn, orgID, userID, 45))
	require.NoError(t, r.EnsureQuota(ctx, conn, 2, orgID, userID))

	quota, err = r.GetQuota(ctx, conn, orgID, userID)
	require.NoError(t, err)
	require.NotNil(t, quota.Limit)
	assert.Equal(t, int64(50), *quota.Limit)
	assert.Equal(t, int64(45), quota.Used)
	assert.Equal(t, int64(5), *quota.Remaining())

	require.NoError(t, r.SetLimit(ctx, conn, orgID, userID, nil))
	require.NoError(t, r.ResetUsed(ctx, conn, orgID, userID))
	quota, err = r.GetQuota(ctx, conn, orgID, userID)
	require.NoError(t, err)
	assert.Nil(t, quota.Limit)
	assert.Equal(t, int64(0), quota.Used)
}

func TestListTransactionsNewestFirst(t *testing.T) {
	conn := setupDB(t)
	r := Provide()
	ctx := context.Background()
	orgID := snowflake.ID(10)

	usage := &ledgerdomain.ModelUsage{
		ID:             100,
		OrganizationID: orgID,
		UserID:         20,
		Provider:       "openai",
		Model:          "gpt-4o",
		UsageType:      ledgerdomain.UsageTypeText,
		CountUsed:      1,
		Metadata:       map[string]any{"input_tokens": 12},
	}
	require.NoError(t, r.InsertUsage(ctx, conn, usage))

	for i, amount := range []int64{50, -4} {
		txn := &ledgerdomain.ModelCreditTransaction{
			ID:             snowflake.ID(200 + i),
			OrganizationID: orgID,
			UserID:         20,
			Amount:         amount,
			Reason:         "text_generation",
		}
		if amount < 0 {
			txn.UsageID = &usage.ID
		}
		require.NoError(t, r.InsertTransaction(ctx, conn, txn))
	}

	txns, err := r.ListTransactions(ctx, conn, orgID, 0)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, snowflake.ID(201), txns[0].ID)
	require.NotNil(t, txns[0].UsageID)
	assert.Equal(t, usage.ID, *txns[0].UsageID)

	usages, err := r.ListUsages(ctx, conn, orgID, 10)
	require.NoError(t, err)
	require.Len(t, usages, 1)
	assert.Equal(t, ledgerdomain.UsageTypeText, usages[0].UsageType)
}

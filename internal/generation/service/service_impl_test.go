package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creditgate/internal/clock"
	"github.com/smallbiznis/creditgate/internal/config"
	creditdomain "github.com/smallbiznis/creditgate/internal/credit/domain"
	creditservice "github.com/smallbiznis/creditgate/internal/credit/service"
	generationdomain "github.com/smallbiznis/creditgate/internal/generation/domain"
	"github.com/smallbiznis/creditgate/internal/generation/provider"
	generationrepo "github.com/smallbiznis/creditgate/internal/generation/repository"
	ledgerdomain "github.com/smallbiznis/creditgate/internal/ledger/domain"
	ledgerrepo "github.com/smallbiznis/creditgate/internal/ledger/repository"
	orgdomain "github.com/smallbiznis/creditgate/internal/organization/domain"
	pricingdomain "github.com/smallbiznis/creditgate/internal/pricing/domain"
	"github.com/smallbiznis/creditgate/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testOrgID  snowflake.ID = 1000
	testUserID snowflake.ID = 2000
)

type directoryStub struct{}

func (directoryStub) GetUserOrganization(ctx context.Context, userID snowflake.ID) (snowflake.ID, error) {
	if userID == testUserID {
		return testOrgID, nil
	}
	return 0, orgdomain.ErrUserNotInOrganization
}

type resolverStub struct {
	pricing *pricingdomain.Pricing
}

func (r resolverStub) Resolve(ctx context.Context, provider, model string) *pricingdomain.Pricing {
	return r.pricing
}

// stubProvider returns canned results; block makes asset calls wait for
// cancellation.
type stubProvider struct {
	text  *generationdomain.TextResult
	asset *generationdomain.AssetResult
	err   error
	block bool
	calls int
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) GenerateText(ctx context.Context, req generationdomain.TextRequest) (*generationdomain.TextResult, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.text, nil
}

func (p *stubProvider) GenerateImage(ctx context.Context, req generationdomain.AssetRequest) (*generationdomain.AssetResult, error) {
	return p.generateAsset(ctx)
}

func (p *stubProvider) Generate3D(ctx context.Context, req generationdomain.AssetRequest) (*generationdomain.AssetResult, error) {
	return p.generateAsset(ctx)
}

func (p *stubProvider) generateAsset(ctx context.Context) (*generationdomain.AssetResult, error) {
	p.calls++
	if p.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if p.err != nil {
		return nil, p.err
	}
	return p.asset, nil
}

type fixture struct {
	svc     *Service
	credits creditdomain.Service
	conn    *gorm.DB
}

func setup(t *testing.T, p generationdomain.Provider, pricing *pricingdomain.Pricing, timeout time.Duration) fixture {
	t.Helper()
	return setupWithRepo(t, p, pricing, timeout, generationrepo.Provide())
}

func setupWithRepo(t *testing.T, p generationdomain.Provider, pricing *pricingdomain.Pricing, timeout time.Duration, repo generationdomain.Repository) fixture {
	t.Helper()
	conn, err := db.NewTest(t.Name())
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&ledgerdomain.OrganizationCredit{},
		&ledgerdomain.MemberQuota{},
		&ledgerdomain.ModelUsage{},
		&ledgerdomain.ModelCreditTransaction{},
		&generationdomain.Task{},
	))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	credits := creditservice.NewService(creditservice.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.New(),
		Repo:  ledgerrepo.Provide(),
		Orgs:  directoryStub{},
	})

	var cfg config.Config
	cfg.Generation.Timeout = timeout
	svc := NewService(Params{
		DB:        conn,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clock.New(),
		Cfg:       cfg,
		Repo:      repo,
		Credits:   credits,
		Pricing:   resolverStub{pricing: pricing},
		Providers: provider.NewRegistry("stub", p),
	})
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })
	return fixture{svc: svc, credits: credits, conn: conn}
}

func (f fixture) fund(t *testing.T, balance int64) {
	t.Helper()
	_, err := f.credits.SetBalance(context.Background(), testOrgID, 1, balance)
	require.NoError(t, err)
}

func (f fixture) balance(t *testing.T) int64 {
	t.Helper()
	b, err := f.credits.GetBalance(context.Background(), testOrgID)
	require.NoError(t, err)
	return b.Balance
}

// failingSuccessRepo never records a success.
type failingSuccessRepo struct {
	generationdomain.Repository
	successCalls int
}

func (r *failingSuccessRepo) MarkSuccess(ctx context.Context, db *gorm.DB, id snowflake.ID, assetURL string, charged int64, at time.Time) error {
	r.successCalls++
	return errors.New("db unavailable")
}

func textPricing() *pricingdomain.Pricing {
	return &pricingdomain.Pricing{Provider: "stub", Model: "m", Units: []pricingdomain.Unit{
		{Name: pricingdomain.UnitTextInput, Strategy: pricingdomain.StrategyFixed, Rate: 1_000_000},
		{Name: pricingdomain.UnitTextOutput, Strategy: pricingdomain.StrategyFixed, Rate: 1_000_000},
	}}
}

func TestGenerateTextChargesActualUsage(t *testing.T) {
	p := &stubProvider{text: &generationdomain.TextResult{
		Content: "hi",
		Usage:   pricingdomain.TextUsage{InputTokens: 6, OutputTokens: 3},
	}}
	f := setup(t, p, textPricing(), time.Second)
	f.fund(t, 100)

	resp, err := f.svc.GenerateText(context.Background(), testUserID, generationdomain.TextRequest{
		Model:           "m",
		Messages:        []pricingdomain.Message{{Role: "user", Content: "hello!!"}},
		MaxOutputTokens: 10,
	})
	require.NoError(t, err)

	// estimate: ceil(7/4)+4 input tokens + 10 output tokens at one credit each
	assert.Equal(t, int64(16), resp.EstimatedCredits)
	assert.Equal(t, int64(9), resp.Credits)
	assert.Equal(t, int64(91), resp.Balance)
	assert.NotEmpty(t, resp.CorrelationID)

	var usage ledgerdomain.ModelUsage
	require.NoError(t, f.conn.Where("id = ?", resp.UsageID).Take(&usage).Error)
	assert.Equal(t, ledgerdomain.UsageTypeText, usage.UsageType)
	assert.Equal(t, int64(9), usage.CountUsed)
	assert.Equal(t, resp.CorrelationID, usage.Metadata["correlation_id"])
}

func TestGenerateTextDeniedBeforeProviderCall(t *testing.T) {
	p := &stubProvider{text: &generationdomain.TextResult{Content: "x"}}
	f := setup(t, p, textPricing(), time.Second)
	f.fund(t, 3)

	_, err := f.svc.GenerateText(context.Background(), testUserID, generationdomain.TextRequest{
		Model:           "m",
		Messages:        []pricingdomain.Message{{Role: "user", Content: "hello"}},
		MaxOutputTokens: 100,
	})
	assert.ErrorIs(t, err, creditdomain.ErrOrganizationCreditInsufficient)
	assert.Zero(t, p.calls)

	_, err = f.svc.GenerateText(context.Background(), testUserID+1, generationdomain.TextRequest{
		Model:    "m",
		Messages: []pricingdomain.Message{{Role: "user", Content: "hello"}},
	})
	assert.ErrorIs(t, err, creditdomain.ErrUserOrganizationRequired)
}

func TestGenerateTextProviderFailureChargesNothing(t *testing.T) {
	p := &stubProvider{err: &generationdomain.ProviderError{Kind: generationdomain.ErrorKindInvalidProviderAPIKey}}
	f := setup(t, p, nil, time.Second)
	f.fund(t, 10)

	_, err := f.svc.GenerateText(context.Background(), testUserID, generationdomain.TextRequest{
		Model:    "m",
		Messages: []pricingdomain.Message{{Role: "user", Content: "hello"}},
	})
	var providerErr *generationdomain.ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, generationdomain.ErrorKindInvalidProviderAPIKey, providerErr.ResolvedKind())
	assert.Equal(t, int64(10), f.balance(t))
}

func TestGenerateTextValidation(t *testing.T) {
	f := setup(t, &stubProvider{}, nil, time.Second)
	ctx := context.Background()

	_, err := f.svc.GenerateText(ctx, testUserID, generationdomain.TextRequest{Model: "m"})
	assert.ErrorIs(t, err, generationdomain.ErrInvalidMessages)

	_, err = f.svc.GenerateText(ctx, testUserID, generationdomain.TextRequest{
		Messages: []pricingdomain.Message{{Role: "user", Content: "x"}},
	})
	assert.ErrorIs(t, err, generationdomain.ErrInvalidModel)

	_, err = f.svc.GenerateText(ctx, testUserID, generationdomain.TextRequest{
		Provider: "nope",
		Model:    "m",
		Messages: []pricingdomain.Message{{Role: "user", Content: "x"}},
	})
	assert.ErrorIs(t, err, generationdomain.ErrUnknownProvider)
}

func TestSubmitImageChargesOnSuccess(t *testing.T) {
	p := &stubProvider{asset: &generationdomain.AssetResult{AssetURL: "https://cdn/img.png", Count: 3}}
	pricing := &pricingdomain.Pricing{Units: []pricingdomain.Unit{
		{Name: pricingdomain.UnitImageGeneration, Strategy: pricingdomain.StrategyFixed, Rate: 2},
	}}
	f := setup(t, p, pricing, time.Second)
	f.fund(t, 20)

	task, err := f.svc.SubmitImage(context.Background(), testUserID, generationdomain.AssetRequest{
		Model:  "m",
		Prompt: "a lighthouse",
		Count:  3,
	})
	require.NoError(t, err)
	assert.Equal(t, generationdomain.TaskStatusPending, task.Status)
	assert.Equal(t, int64(6), task.EstimatedCredits)

	f.svc.Wait()

	got, err := f.svc.GetTask(context.Background(), testUserID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, generationdomain.TaskStatusSuccess, got.Status)
	assert.Equal(t, "https://cdn/img.png", got.AssetURL)
	assert.Equal(t, int64(6), got.ChargedCredits)
	assert.Equal(t, int64(14), f.balance(t))

	_, err = f.svc.GetTask(context.Background(), testUserID+1, task.ID)
	assert.ErrorIs(t, err, generationdomain.ErrTaskNotFound)
}

func TestSubmit3DTimeoutRecordsErrorWithoutCharge(t *testing.T) {
	p := &stubProvider{block: true}
	f := setup(t, p, nil, 20*time.Millisecond)
	f.fund(t, 50)

	task, err := f.svc.Submit3D(context.Background(), testUserID, generationdomain.AssetRequest{
		Model:  "m",
		Prompt: "a chair",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10), task.EstimatedCredits)

	f.svc.Wait()

	got, err := f.svc.GetTask(context.Background(), testUserID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, generationdomain.TaskStatusError, got.Status)
	assert.Equal(t, generationdomain.ErrorKindTimeout, got.ErrorKind)
	assert.Equal(t, int64(50), f.balance(t))
}

func TestSubmitImageProviderCodeIsStored(t *testing.T) {
	p := &stubProvider{err: &generationdomain.ProviderError{Code: "ContentPolicyViolation", Message: "refused"}}
	f := setup(t, p, nil, time.Second)
	f.fund(t, 50)

	task, err := f.svc.SubmitImage(context.Background(), testUserID, generationdomain.AssetRequest{Model: "m", Prompt: "x"})
	require.NoError(t, err)
	f.svc.Wait()

	got, err := f.svc.GetTask(context.Background(), testUserID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, generationdomain.ErrorKind("ContentPolicyViolation"), got.ErrorKind)
	assert.Equal(t, int64(50), f.balance(t))
}

func TestSubmitImageDeniedCreatesNoTask(t *testing.T) {
	p := &stubProvider{asset: &generationdomain.AssetResult{AssetURL: "x"}}
	f := setup(t, p, nil, time.Second)
	f.fund(t, 4)

	_, err := f.svc.SubmitImage(context.Background(), testUserID, generationdomain.AssetRequest{Model: "m", Prompt: "x"})
	assert.True(t, errors.Is(err, creditdomain.ErrOrganizationCreditInsufficient))

	var count int64
	require.NoError(t, f.conn.Model(&generationdomain.Task{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Zero(t, p.calls)

	_, err = f.svc.SubmitImage(context.Background(), testUserID, generationdomain.AssetRequest{Model: "m", Prompt: "x", Count: 11})
	assert.ErrorIs(t, err, generationdomain.ErrInvalidCount)
	_, err = f.svc.SubmitImage(context.Background(), testUserID, generationdomain.AssetRequest{Model: "m", Prompt: " "})
	assert.ErrorIs(t, err, generationdomain.ErrInvalidPrompt)
}

func TestShutdownCancelsRunningJobs(t *testing.T) {
	p := &stubProvider{block: true}
	f := setup(t, p, nil, time.Minute)
	f.fund(t, 50)

	task, err := f.svc.SubmitImage(context.Background(), testUserID, generationdomain.AssetRequest{Model: "m", Prompt: "x"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.svc.Shutdown(ctx))

	got, err := f.svc.GetTask(context.Background(), testUserID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, generationdomain.TaskStatusError, got.Status)
	assert.Equal(t, generationdomain.ErrorKindServerError, got.ErrorKind)
	assert.Contains(t, got.ErrorMessage, "cancelled")
	assert.Equal(t, int64(50), f.balance(t))

	_, err = f.svc.SubmitImage(context.Background(), testUserID, generationdomain.AssetRequest{Model: "m", Prompt: "x"})
	assert.ErrorIs(t, err, generationdomain.ErrShuttingDown)

	var count int64
	require.NoError(t, f.conn.Model(&generationdomain.Task{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSubmitImageRecordFailureLeavesTerminalTask(t *testing.T) {
	p := &stubProvider{asset: &generationdomain.AssetResult{AssetURL: "https://cdn/img.png", Count: 1}}
	repo := &failingSuccessRepo{Repository: generationrepo.Provide()}
	f := setupWithRepo(t, p, nil, time.Second, repo)
	f.fund(t, 20)

	task, err := f.svc.SubmitImage(context.Background(), testUserID, generationdomain.AssetRequest{Model: "m", Prompt: "x"})
	require.NoError(t, err)
	f.svc.Wait()

	got, err := f.svc.GetTask(context.Background(), testUserID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, generationdomain.TaskStatusError, got.Status)
	assert.Equal(t, generationdomain.ErrorKindServerError, got.ErrorKind)
	assert.Contains(t, got.ErrorMessage, "charged 5 credits")
	assert.Equal(t, recordAttempts, repo.successCalls)

	// the charge stays, exactly once
	assert.Equal(t, int64(15), f.balance(t))
	var usages int64
	require.NoError(t, f.conn.Model(&ledgerdomain.ModelUsage{}).Count(&usages).Error)
	assert.Equal(t, int64(1), usages)
}

func TestSubmitImageChargesAtMostRequestedCount(t *testing.T) {
	p := &stubProvider{asset: &generationdomain.AssetResult{AssetURL: "https://cdn/img.png", Count: 50}}
	f := setup(t, p, nil, time.Second)
	f.fund(t, 100)

	task, err := f.svc.SubmitImage(context.Background(), testUserID, generationdomain.AssetRequest{Model: "m", Prompt: "x", Count: 2})
	require.NoError(t, err)
	f.svc.Wait()

	got, err := f.svc.GetTask(context.Background(), testUserID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, generationdomain.TaskStatusSuccess, got.Status)
	assert.Equal(t, int64(10), got.ChargedCredits)
	assert.Equal(t, int64(90), f.balance(t))
}

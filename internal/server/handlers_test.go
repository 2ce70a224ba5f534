package server

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/creditgate/internal/config"
	creditdomain "github.com/smallbiznis/creditgate/internal/credit/domain"
	generationdomain "github.com/smallbiznis/creditgate/internal/generation/domain"
	pricingdomain "github.com/smallbiznis/creditgate/internal/pricing/domain"
	"github.com/smallbiznis/creditgate/internal/ratelimit"
	rbacdomain "github.com/smallbiznis/creditgate/internal/rbac/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMyCredits(t *testing.T) {
	limit := int64(50)
	remaining := int64(45)
	credits := &creditStub{summary: &creditdomain.UserSummary{
		OrganizationID: 100,
		Balance:        96,
		Quota: creditdomain.MemberQuota{
			OrganizationID: 100,
			UserID:         7,
			Limit:          &limit,
			Used:           5,
			Remaining:      &remaining,
			Period:         "total",
		},
	}}
	s := newTestServer(t, &Server{credits: credits, rbac: &rbacStub{}})

	rec := doRequest(t, s.Engine(), http.MethodGet, "/v1/credits/me", issueTestToken(t, 7), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data creditdomain.UserSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(96), resp.Data.Balance)
	require.NotNil(t, resp.Data.Quota.Remaining)
	assert.Equal(t, int64(45), *resp.Data.Quota.Remaining)
}

func TestGetMyCreditsWithoutOrganization(t *testing.T) {
	s := newTestServer(t, &Server{
		credits: &creditStub{err: creditdomain.ErrUserOrganizationRequired},
		rbac:    &rbacStub{},
	})

	rec := doRequest(t, s.Engine(), http.MethodGet, "/v1/credits/me", issueTestToken(t, 7), nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "credit_denied", payload.Type)
	assert.Equal(t, "USER_ORGANIZATION_REQUIRED", payload.Code)
}

func TestGenerateTextDenied(t *testing.T) {
	gen := &generationStub{err: creditdomain.ErrOrganizationCreditInsufficient}
	s := newTestServer(t, &Server{generation: gen, rbac: &rbacStub{}})

	rec := doRequest(t, s.Engine(), http.MethodPost, "/v1/generations/text", issueTestToken(t, 7), generationdomain.TextRequest{
		Model:    "test-model",
		Messages: []pricingdomain.Message{{Role: "user", Content: "hi"}},
	})

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "ORGANIZATION_CREDIT_INSUFFICIENT", decodeError(t, rec).Code)
	assert.Equal(t, 1, gen.calls)
}

func TestGenerateTextRequiresToken(t *testing.T) {
	gen := &generationStub{}
	s := newTestServer(t, &Server{generation: gen, rbac: &rbacStub{}})

	rec := doRequest(t, s.Engine(), http.MethodPost, "/v1/generations/text", "", generationdomain.TextRequest{Model: "m"})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, gen.calls)
}

func TestGenerateImageAccepted(t *testing.T) {
	gen := &generationStub{task: &generationdomain.Task{
		ID:               555,
		Status:           generationdomain.TaskStatusPending,
		EstimatedCredits: 6,
	}}
	s := newTestServer(t, &Server{generation: gen, rbac: &rbacStub{}})

	rec := doRequest(t, s.Engine(), http.MethodPost, "/v1/generations/image", issueTestToken(t, 7), generationdomain.AssetRequest{
		Model:  "test-model",
		Prompt: "a cat",
		Count:  3,
	})

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp struct {
		Data generationdomain.Task `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, generationdomain.TaskStatusPending, resp.Data.Status)
	assert.Equal(t, int64(6), resp.Data.EstimatedCredits)
}

func TestGenerateRejectsMalformedBody(t *testing.T) {
	gen := &generationStub{}
	s := newTestServer(t, &Server{generation: gen, rbac: &rbacStub{}})

	rec := doRequest(t, s.Engine(), http.MethodPost, "/v1/generations/image", issueTestToken(t, 7), "not an object")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, gen.calls)
}

func TestGenerationRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := ratelimit.NewGenerationLimiter(client, config.Config{
		Generation: config.GenerationConfig{RateLimitRPS: 0.01, RateLimitBurst: 1},
	})
	require.True(t, limiter.Enabled())

	gen := &generationStub{task: &generationdomain.Task{Status: generationdomain.TaskStatusPending}}
	s := newTestServer(t, &Server{generation: gen, rbac: &rbacStub{}, limiter: limiter})
	body := generationdomain.AssetRequest{Model: "m", Prompt: "p", Count: 1}

	rec := doRequest(t, s.Engine(), http.MethodPost, "/v1/generations/image", issueTestToken(t, 7), body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doRequest(t, s.Engine(), http.MethodPost, "/v1/generations/image", issueTestToken(t, 7), body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "user-rate", rec.Header().Get("X-Rate-Limited-Reason"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, 1, gen.calls)

	// buckets are per user
	rec = doRequest(t, s.Engine(), http.MethodPost, "/v1/generations/image", issueTestToken(t, 8), body)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	stub := &rbacStub{roles: []rbacdomain.Role{{Name: rbacdomain.RoleMember, IsActive: true}}}
	s := newTestServer(t, &Server{rbac: stub})

	rec := doRequest(t, s.Engine(), http.MethodGet, "/v1/admin/roles", issueTestToken(t, 7), nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 1, stub.roleCalls)
}

func TestAdminCreditRoutesRequirePermission(t *testing.T) {
	stub := &rbacStub{permissions: map[string]bool{}}
	s := newTestServer(t, &Server{rbac: stub})

	// the admin role claim alone does not grant a permission
	rec := doRequest(t, s.Engine(), http.MethodGet, "/v1/admin/organizations/100/credits", issueTestToken(t, 7, rbacdomain.RoleAdmin), nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 1, stub.permissionCalls)
}

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	creditdomain "github.com/smallbiznis/creditgate/internal/credit/domain"
	generationdomain "github.com/smallbiznis/creditgate/internal/generation/domain"
	orgdomain "github.com/smallbiznis/creditgate/internal/organization/domain"
	rbacdomain "github.com/smallbiznis/creditgate/internal/rbac/domain"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		status   int
		wantType string
		wantCode string
	}{
		{
			name:     "insufficient credit",
			err:      creditdomain.ErrOrganizationCreditInsufficient,
			status:   http.StatusPaymentRequired,
			wantType: "credit_denied",
			wantCode: "ORGANIZATION_CREDIT_INSUFFICIENT",
		},
		{
			name:     "quota exceeded",
			err:      fmt.Errorf("charge: %w", creditdomain.ErrMemberQuotaExceeded),
			status:   http.StatusTooManyRequests,
			wantType: "credit_denied",
			wantCode: "MEMBER_QUOTA_EXCEEDED",
		},
		{
			name:     "no organization",
			err:      creditdomain.ErrUserOrganizationRequired,
			status:   http.StatusForbidden,
			wantType: "credit_denied",
			wantCode: "USER_ORGANIZATION_REQUIRED",
		},
		{
			name:     "allowance mismatch is internal",
			err:      creditdomain.ErrAllowanceMismatch,
			status:   http.StatusInternalServerError,
			wantType: "internal_error",
		},
		{
			name:     "validation sentinel",
			err:      creditdomain.ErrInvalidAmount,
			status:   http.StatusBadRequest,
			wantType: "validation_error",
			wantCode: "invalid_credit_amount",
		},
		{
			name:     "unknown provider",
			err:      generationdomain.ErrUnknownProvider,
			status:   http.StatusBadRequest,
			wantType: "validation_error",
			wantCode: "unknown_provider",
		},
		{
			name:     "not found",
			err:      orgdomain.ErrOrganizationNotFound,
			status:   http.StatusNotFound,
			wantType: "not_found",
		},
		{
			name:     "conflict",
			err:      rbacdomain.ErrRoleExists,
			status:   http.StatusConflict,
			wantType: "conflict",
			wantCode: "role_already_exists",
		},
		{
			name:     "provider timeout",
			err:      &generationdomain.ProviderError{Kind: generationdomain.ErrorKindTimeout, Err: context.DeadlineExceeded},
			status:   http.StatusGatewayTimeout,
			wantType: "provider_error",
			wantCode: "Timeout",
		},
		{
			name:     "provider specific code",
			err:      &generationdomain.ProviderError{Code: "ContentFiltered"},
			status:   http.StatusBadGateway,
			wantType: "provider_error",
			wantCode: "ContentFiltered",
		},
		{
			name:     "generation shutting down",
			err:      generationdomain.ErrShuttingDown,
			status:   http.StatusServiceUnavailable,
			wantType: "service_unavailable",
		},
		{
			name:     "unauthorized",
			err:      ErrUnauthorized,
			status:   http.StatusUnauthorized,
			wantType: "unauthorized",
		},
		{
			name:     "rate limited",
			err:      ErrRateLimited,
			status:   http.StatusTooManyRequests,
			wantType: "rate_limited",
		},
		{
			name:     "unknown",
			err:      errors.New("boom"),
			status:   http.StatusInternalServerError,
			wantType: "internal_error",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.wantType, payload.Type)
			assert.Equal(t, tc.wantCode, payload.Code)
		})
	}
}

func TestClassifyErrorForLog(t *testing.T) {
	errType, code := classifyErrorForLog(creditdomain.ErrMemberQuotaExceeded)
	assert.Equal(t, "credit_denied", errType)
	assert.Equal(t, "MEMBER_QUOTA_EXCEEDED", code)

	errType, code = classifyErrorForLog(creditdomain.ErrAllowanceMismatch)
	assert.Equal(t, "internal_error", errType)
	assert.Empty(t, code)

	errType, code = classifyErrorForLog(invalidRequestError())
	assert.Equal(t, "validation_error", errType)
	assert.Equal(t, "invalid_request", code)
}

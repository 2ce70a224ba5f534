package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	creditdomain "github.com/smallbiznis/creditgate/internal/credit/domain"
	generationdomain "github.com/smallbiznis/creditgate/internal/generation/domain"
	ledgerdomain "github.com/smallbiznis/creditgate/internal/ledger/domain"
	"github.com/smallbiznis/creditgate/internal/observability/logger"
	orgdomain "github.com/smallbiznis/creditgate/internal/organization/domain"
	pricingdomain "github.com/smallbiznis/creditgate/internal/pricing/domain"
	rbacdomain "github.com/smallbiznis/creditgate/internal/rbac/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrRateLimited        = errors.New("rate_limited")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		if status >= http.StatusInternalServerError {
			logger.FromContext(c.Request.Context()).Error("request failed", zap.Error(lastErr.Err))
		}
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if code, ok := creditdomain.CodeOf(err); ok {
		return mapCreditError(code, err)
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Code:    code,
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	var providerErr *generationdomain.ProviderError
	if errors.As(err, &providerErr) {
		kind := providerErr.ResolvedKind()
		status := http.StatusBadGateway
		if kind == generationdomain.ErrorKindTimeout {
			status = http.StatusGatewayTimeout
		}
		return status, errorPayload{
			Type:    "provider_error",
			Code:    string(kind),
			Message: "generation provider failed",
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Code:    conflictCode(err),
			Message: "conflict",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrServiceUnavailable), errors.Is(err, generationdomain.ErrShuttingDown):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func mapCreditError(code creditdomain.Code, err error) (int, errorPayload) {
	var status int
	switch code {
	case creditdomain.CodeOrganizationCreditInsufficient:
		status = http.StatusPaymentRequired
	case creditdomain.CodeMemberQuotaExceeded:
		status = http.StatusTooManyRequests
	case creditdomain.CodeUserOrganizationRequired:
		status = http.StatusForbidden
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	message := string(code)
	var creditErr *creditdomain.Error
	if errors.As(err, &creditErr) && creditErr.Message != "" {
		message = creditErr.Message
	}
	return status, errorPayload{
		Type:    "credit_denied",
		Code:    string(code),
		Message: message,
	}
}

// classifyErrorForLog feeds the request logger. Credit denials are expected
// outcomes and get their own type.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	if creditdomain.IsDenial(err) {
		code, _ := creditdomain.CodeOf(err)
		return "credit_denied", string(code)
	}
	_, payload := mapError(err)
	code := payload.Code
	if code == "" && len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return true
	case isOrganizationValidationError(err),
		isCreditValidationError(err),
		isRBACValidationError(err),
		isPricingValidationError(err),
		isGenerationValidationError(err):
		return true
	default:
		return false
	}
}

func isOrganizationValidationError(err error) bool {
	switch {
	case errors.Is(err, orgdomain.ErrInvalidName),
		errors.Is(err, orgdomain.ErrInvalidType),
		errors.Is(err, orgdomain.ErrInvalidParent),
		errors.Is(err, orgdomain.ErrInvalidMaxUsers),
		errors.Is(err, orgdomain.ErrInvalidUser),
		errors.Is(err, orgdomain.ErrInvalidOrganization):
		return true
	default:
		return false
	}
}

func isCreditValidationError(err error) bool {
	switch {
	case errors.Is(err, creditdomain.ErrInvalidAmount),
		errors.Is(err, creditdomain.ErrInvalidLimit),
		errors.Is(err, creditdomain.ErrInvalidUser),
		errors.Is(err, creditdomain.ErrInvalidOrganization),
		errors.Is(err, creditdomain.ErrInvalidUsageType):
		return true
	default:
		return false
	}
}

func isRBACValidationError(err error) bool {
	switch {
	case errors.Is(err, rbacdomain.ErrInvalidRoleName),
		errors.Is(err, rbacdomain.ErrInvalidPermissionCode),
		errors.Is(err, rbacdomain.ErrInvalidUser):
		return true
	default:
		return false
	}
}

func isPricingValidationError(err error) bool {
	switch {
	case errors.Is(err, pricingdomain.ErrInvalidProvider),
		errors.Is(err, pricingdomain.ErrInvalidModel),
		errors.Is(err, pricingdomain.ErrInvalidUnit):
		return true
	default:
		return false
	}
}

func isGenerationValidationError(err error) bool {
	switch {
	case errors.Is(err, generationdomain.ErrInvalidUser),
		errors.Is(err, generationdomain.ErrInvalidModel),
		errors.Is(err, generationdomain.ErrInvalidMessages),
		errors.Is(err, generationdomain.ErrInvalidPrompt),
		errors.Is(err, generationdomain.ErrInvalidCount),
		errors.Is(err, generationdomain.ErrUnknownProvider):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, gorm.ErrDuplicatedKey),
		errors.Is(err, rbacdomain.ErrRoleExists),
		errors.Is(err, rbacdomain.ErrPermissionExists),
		errors.Is(err, orgdomain.ErrUserAlreadyAssigned),
		errors.Is(err, orgdomain.ErrOrganizationHasUsers),
		errors.Is(err, orgdomain.ErrOrganizationHasChildren),
		errors.Is(err, orgdomain.ErrManagementTypeImmutable),
		errors.Is(err, orgdomain.ErrMaxUsersReached),
		errors.Is(err, generationdomain.ErrTaskNotPending):
		return true
	default:
		return false
	}
}

func conflictCode(err error) string {
	if errors.Is(err, ErrConflict) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return "conflict"
	}
	return err.Error()
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, orgdomain.ErrOrganizationNotFound),
		errors.Is(err, orgdomain.ErrUserNotInOrganization),
		errors.Is(err, rbacdomain.ErrRoleNotFound),
		errors.Is(err, pricingdomain.ErrPricingNotFound),
		errors.Is(err, ledgerdomain.ErrCreditNotFound),
		errors.Is(err, ledgerdomain.ErrQuotaNotFound),
		errors.Is(err, generationdomain.ErrTaskNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "unknown_provider":
		return "unknown provider"
	default:
		return "invalid value"
	}
}

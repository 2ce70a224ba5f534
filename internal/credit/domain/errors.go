package domain

import (
	"errors"
	"fmt"
)

// Code identifies why a credit operation was refused.
type Code string

const (
	CodeUserOrganizationRequired       Code = "USER_ORGANIZATION_REQUIRED"
	CodeOrganizationCreditInsufficient Code = "ORGANIZATION_CREDIT_INSUFFICIENT"
	CodeMemberQuotaExceeded            Code = "MEMBER_QUOTA_EXCEEDED"
	// CodeAllowanceMismatch means a charge targeted a different organization
	// or user than its allowance. It is a caller bug, not a user error.
	CodeAllowanceMismatch Code = "ALLOWANCE_MISMATCH"
)

// Error is a credit refusal carrying a stable code.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrUserOrganizationRequired = &Error{
		Code:    CodeUserOrganizationRequired,
		Message: "user must belong to an organization",
	}
	ErrOrganizationCreditInsufficient = &Error{
		Code:    CodeOrganizationCreditInsufficient,
		Message: "organization credit balance is insufficient",
	}
	ErrMemberQuotaExceeded = &Error{
		Code:    CodeMemberQuotaExceeded,
		Message: "member credit quota exceeded",
	}
	ErrAllowanceMismatch = &Error{
		Code:    CodeAllowanceMismatch,
		Message: "charge does not match its allowance",
	}
)

var (
	ErrInvalidAmount       = errors.New("invalid_credit_amount")
	ErrInvalidLimit        = errors.New("invalid_quota_limit")
	ErrInvalidUser         = errors.New("invalid_user")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidUsageType    = errors.New("invalid_usage_type")
)

// CodeOf extracts the credit code from err.
func CodeOf(err error) (Code, bool) {
	var creditErr *Error
	if errors.As(err, &creditErr) {
		return creditErr.Code, true
	}
	return "", false
}

// IsDenial reports whether err is an expected allowance refusal.
func IsDenial(err error) bool {
	code, ok := CodeOf(err)
	if !ok {
		return false
	}
	return code != CodeAllowanceMismatch
}

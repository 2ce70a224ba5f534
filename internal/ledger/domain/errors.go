package domain

import "errors"

var (
	ErrCreditNotFound      = errors.New("organization_credit_not_found")
	ErrQuotaNotFound       = errors.New("member_quota_not_found")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidUser         = errors.New("invalid_user")
)

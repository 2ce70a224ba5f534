package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeNetError struct{ timeout bool }

func (e fakeNetError) Error() string   { return "dial tcp: connection refused" }
func (e fakeNetError) Timeout() bool   { return e.timeout }
func (e fakeNetError) Temporary() bool { return false }

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), ErrorKindTimeout},
		{"cancelled", context.Canceled, ErrorKindServerError},
		{"network", fakeNetError{}, ErrorKindNetworkError},
		{"network timeout", fakeNetError{timeout: true}, ErrorKindTimeout},
		{"api key", &ProviderError{Kind: ErrorKindInvalidProviderAPIKey}, ErrorKindInvalidProviderAPIKey},
		{"provider code", fmt.Errorf("wrapped: %w", &ProviderError{Kind: ErrorKindServerError, Code: "ContentPolicyViolation"}), "ContentPolicyViolation"},
		{"empty provider error", &ProviderError{}, ErrorKindServerError},
		{"unknown", errors.New("boom"), ErrorKindServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			kind, message := ClassifyError(tc.err)
			assert.Equal(t, tc.want, kind)
			assert.NotEmpty(t, message)
		})
	}

	kind, message := ClassifyError(nil)
	assert.Empty(t, kind)
	assert.Empty(t, message)
}

package domain

import (
	"context"
	"errors"
	"net"
	"strings"
)

//go:generate mockgen -source=provider.go -destination=../mocks/mock_provider.go -package=mocks

// Provider is an AI vendor adapter.
type Provider interface {
	Name() string
	GenerateText(ctx context.Context, req TextRequest) (*TextResult, error)
	GenerateImage(ctx context.Context, req AssetRequest) (*AssetResult, error)
	Generate3D(ctx context.Context, req AssetRequest) (*AssetResult, error)
}

// ProviderError is a categorized failure reported by a provider. Code, when
// set, is a provider specific error kind and takes precedence over Kind.
type ProviderError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	kind := string(e.ResolvedKind())
	if e.Message != "" {
		return kind + ": " + e.Message
	}
	if e.Err != nil {
		return kind + ": " + e.Err.Error()
	}
	return kind
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ResolvedKind returns Code when present, else Kind, else ServerError.
func (e *ProviderError) ResolvedKind() ErrorKind {
	if code := strings.TrimSpace(e.Code); code != "" {
		return ErrorKind(code)
	}
	if e.Kind != "" {
		return e.Kind
	}
	return ErrorKindServerError
}

// ClassifyError maps a provider call failure onto a task error kind.
func ClassifyError(err error) (ErrorKind, string) {
	if err == nil {
		return "", ""
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.ResolvedKind(), providerErr.Error()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTimeout, "generation timed out"
	}
	if errors.Is(err, context.Canceled) {
		return ErrorKindServerError, "generation cancelled"
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorKindTimeout, err.Error()
		}
		return ErrorKindNetworkError, err.Error()
	}
	return ErrorKindServerError, err.Error()
}

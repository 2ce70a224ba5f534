package provider

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	generationdomain "github.com/smallbiznis/creditgate/internal/generation/domain"
	pricingdomain "github.com/smallbiznis/creditgate/internal/pricing/domain"
)

const EchoName = "echo"

// Echo answers every request deterministically without a network call.
// Latency delays each response and honors cancellation.
type Echo struct {
	Latency time.Duration
}

func NewEcho() *Echo {
	return &Echo{}
}

func (e *Echo) Name() string { return EchoName }

func (e *Echo) GenerateText(ctx context.Context, req generationdomain.TextRequest) (*generationdomain.TextResult, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}

	var content string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			content = req.Messages[i].Content
			break
		}
	}

	output := int64((len([]rune(content)) + 3) / 4)
	if req.MaxOutputTokens > 0 && output > req.MaxOutputTokens {
		output = req.MaxOutputTokens
	}
	return &generationdomain.TextResult{
		Content: content,
		Usage: pricingdomain.TextUsage{
			InputTokens:  pricingdomain.EstimateTextInputTokens(req.Messages),
			OutputTokens: output,
		},
	}, nil
}

func (e *Echo) GenerateImage(ctx context.Context, req generationdomain.AssetRequest) (*generationdomain.AssetResult, error) {
	return e.asset(ctx, "image", req)
}

func (e *Echo) Generate3D(ctx context.Context, req generationdomain.AssetRequest) (*generationdomain.AssetResult, error) {
	return e.asset(ctx, "3d", req)
}

func (e *Echo) asset(ctx context.Context, kind string, req generationdomain.AssetRequest) (*generationdomain.AssetResult, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(req.Model))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(req.Prompt))
	return &generationdomain.AssetResult{
		AssetURL: fmt.Sprintf("echo://%s/%x", kind, h.Sum64()),
		Count:    req.Count,
	}, nil
}

func (e *Echo) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.Latency <= 0 {
		return nil
	}
	timer := time.NewTimer(e.Latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("reason", "allowed"),
		attribute.String("user_id", "456"),
		attribute.String("provider", "openai"),
	)
	require.Len(t, attrs, 2)
	keys := []attribute.Key{attrs[0].Key, attrs[1].Key}
	assert.Contains(t, keys, attribute.Key("reason"))
	assert.Contains(t, keys, attribute.Key("provider"))
	assert.NotContains(t, keys, attribute.Key("user_id"))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordAllowanceCheck(ctx, "allowed")
		m.RecordCreditsCharged(ctx, "openai", "text", 3)
		m.RecordGeneration(ctx, "openai", "image", "Success")
		m.RecordRateLimitDenied(ctx, "generation", "exhausted")
	})
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		m.RecordAllowanceCheck(context.Background(), "MEMBER_QUOTA_EXCEEDED")
		m.RecordCreditsCharged(context.Background(), "echo", "text", 0)
	})
}

package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func fixedPricing(units ...Unit) *Pricing {
	return &Pricing{Provider: "openai", Model: "test-model", Units: units}
}

func TestCalculateImageCredits(t *testing.T) {
	cases := []struct {
		name    string
		count   int64
		pricing *Pricing
		want    int64
	}{
		{
			name:    "fixed rate per image",
			count:   3,
			pricing: fixedPricing(Unit{Name: UnitImageGeneration, Strategy: StrategyFixed, Rate: 2}),
			want:    6,
		},
		{
			name:    "no pricing falls back to default",
			count:   3,
			pricing: nil,
			want:    15,
		},
		{
			name:  "sums image units",
			count: 2,
			pricing: fixedPricing(
				Unit{Name: UnitImageGeneration, Strategy: StrategyFixed, Rate: 1.5},
				Unit{Name: UnitImageOutput, Strategy: StrategyFixed, Rate: 0.25},
				Unit{Name: UnitRequest, Strategy: StrategyFixed, Rate: 0.1},
			),
			want: 4, // 2 * 1.85 = 3.7
		},
		{
			name:    "zero total falls back to default",
			count:   2,
			pricing: fixedPricing(Unit{Name: UnitTextInput, Strategy: StrategyFixed, Rate: 3}),
			want:    10,
		},
		{
			name:    "unknown strategy contributes nothing",
			count:   1,
			pricing: fixedPricing(Unit{Name: UnitImageGeneration, Strategy: "lookup", Rate: 9}),
			want:    5,
		},
		{
			name:    "non-positive count",
			count:   0,
			pricing: nil,
			want:    0,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CalculateImageCredits(tc.count, tc.pricing))
		})
	}
}

func TestTieredUnitReadsFirstTierOnly(t *testing.T) {
	upTo := 10.0
	pricing := fixedPricing(Unit{
		Name:     UnitImageGeneration,
		Strategy: StrategyTiered,
		Tiers: []Tier{
			{UpTo: &upTo, Rate: 3},
			{Rate: 1},
		},
	})

	assert.Equal(t, int64(60), CalculateImageCredits(20, pricing))
}

func TestCalculate3DCredits(t *testing.T) {
	assert.Equal(t, int64(30), Calculate3DCredits(3, nil))
	assert.Equal(t, int64(8), Calculate3DCredits(2, fixedPricing(
		Unit{Name: UnitThreeDGeneration, Strategy: StrategyFixed, Rate: 4},
	)))
}

func TestCalculateTextCredits(t *testing.T) {
	pricing := fixedPricing(
		Unit{Name: UnitTextInput, Strategy: StrategyFixed, Rate: 2},
		Unit{Name: UnitTextInputCacheRead, Strategy: StrategyFixed, Rate: 0.5},
		Unit{Name: UnitTextOutput, Strategy: StrategyFixed, Rate: 8},
	)

	// 1M uncached * 2 + 2M cached * 0.5 + 0.5M output * 8 = 2 + 1 + 4
	got := CalculateTextCredits(TextUsage{
		InputTokens:       3_000_000,
		CachedInputTokens: 2_000_000,
		OutputTokens:      500_000,
	}, pricing)
	assert.Equal(t, int64(7), got)

	// tiny usage still rounds up to a whole credit
	assert.Equal(t, int64(1), CalculateTextCredits(TextUsage{InputTokens: 10, OutputTokens: 10}, pricing))

	assert.Equal(t, DefaultTextCredits, CalculateTextCredits(TextUsage{InputTokens: 5_000_000}, nil))
}

func TestEstimateTextInputTokens(t *testing.T) {
	messages := []Message{
		{Role: "system", Content: "abcd"},
		{Role: "user", Content: "hello"},
		{Role: "user", Content: ""},
	}
	// ceil(4/4)+4 + ceil(5/4)+4 + 0+4
	assert.Equal(t, int64(5+6+4), EstimateTextInputTokens(messages))
}

func TestEstimateTextCreditsUsesOutputBudget(t *testing.T) {
	pricing := fixedPricing(Unit{Name: UnitTextOutput, Strategy: StrategyFixed, Rate: 10})
	assert.Equal(t, int64(20), EstimateTextCredits(nil, 2_000_000, pricing))
	assert.Equal(t, DefaultTextCredits, EstimateTextCredits(nil, -5, pricing))
}

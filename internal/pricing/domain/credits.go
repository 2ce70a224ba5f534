package domain

import "math"

const (
	// DefaultTextCredits applies when no schedule resolves for a text model.
	DefaultTextCredits int64 = 1
	// DefaultImageCredits is charged per image when no schedule resolves.
	DefaultImageCredits int64 = 5
	// DefaultThreeDCredits is charged per 3D generation when no schedule resolves.
	DefaultThreeDCredits int64 = 10

	// MessageTokenOverhead is added per message when estimating input tokens.
	MessageTokenOverhead int64 = 4

	charsPerToken    = 4
	tokensPerMillion = 1_000_000

	// absorbs float noise so 6.0000000001 does not round up to 7
	ceilEpsilon = 1e-9
)

// Message is the part of a chat message the estimator reads.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TextUsage is the token usage reported by a provider after a completion.
// InputTokens includes CachedInputTokens.
type TextUsage struct {
	InputTokens       int64 `json:"input_tokens"`
	CachedInputTokens int64 `json:"cached_input_tokens"`
	OutputTokens      int64 `json:"output_tokens"`
}

// EstimateTextInputTokens approximates prompt tokens from character counts.
func EstimateTextInputTokens(messages []Message) int64 {
	var total int64
	for _, msg := range messages {
		chars := int64(len([]rune(msg.Content)))
		total += (chars+charsPerToken-1)/charsPerToken + MessageTokenOverhead
	}
	return total
}

// EstimateTextCredits prices a completion before it runs, assuming the full
// output budget is consumed and nothing is served from cache.
func EstimateTextCredits(messages []Message, maxOutputTokens int64, pricing *Pricing) int64 {
	if maxOutputTokens < 0 {
		maxOutputTokens = 0
	}
	return CalculateTextCredits(TextUsage{
		InputTokens:  EstimateTextInputTokens(messages),
		OutputTokens: maxOutputTokens,
	}, pricing)
}

// CalculateTextCredits prices reported token usage.
func CalculateTextCredits(usage TextUsage, pricing *Pricing) int64 {
	if pricing == nil {
		return DefaultTextCredits
	}

	cached := clampNonNegative(usage.CachedInputTokens)
	uncached := clampNonNegative(usage.InputTokens - cached)
	output := clampNonNegative(usage.OutputTokens)

	total := pricing.Cost(map[UnitName]float64{
		UnitTextInput:          float64(uncached) / tokensPerMillion,
		UnitTextInputCacheRead: float64(cached) / tokensPerMillion,
		UnitTextOutput:         float64(output) / tokensPerMillion,
		UnitRequest:            1,
	})
	if total <= 0 {
		return DefaultTextCredits
	}
	return ceilCredits(total)
}

// CalculateImageCredits prices count images.
func CalculateImageCredits(count int64, pricing *Pricing) int64 {
	if count <= 0 {
		return 0
	}
	qty := float64(count)
	total := pricing.Cost(map[UnitName]float64{
		UnitImageGeneration: qty,
		UnitImageOutput:     qty,
		UnitRequest:         qty,
	})
	if total <= 0 {
		return count * DefaultImageCredits
	}
	return ceilCredits(total)
}

// Calculate3DCredits prices count 3D generations.
func Calculate3DCredits(count int64, pricing *Pricing) int64 {
	if count <= 0 {
		return 0
	}
	qty := float64(count)
	total := pricing.Cost(map[UnitName]float64{
		UnitThreeDGeneration: qty,
		UnitRequest:          qty,
	})
	if total <= 0 {
		return count * DefaultThreeDCredits
	}
	return ceilCredits(total)
}

func ceilCredits(value float64) int64 {
	if value <= 0 {
		return 0
	}
	credits := int64(math.Ceil(value - ceilEpsilon))
	if credits < 1 {
		return 1
	}
	return credits
}

func clampNonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

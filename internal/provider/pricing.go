package provider

import (
	"math"
	"sort"
)

// ModelPrice holds a model's USD price per 1K input and output tokens.
type ModelPrice struct {
	InputPer1K  float64
	OutputPer1K float64
}

// PriceTable maps model names to prices. Each provider kind owns exactly one
// table; EstimateCost and the CostUSD field on Response must both go through
// the same table so pre-call estimates and post-call actuals are comparable.
type PriceTable map[string]ModelPrice

// Cost computes the USD cost for a call, rounded to a micro-dollar, the
// smallest unit the per-1K tables can express. Unknown models cost zero.
func (t PriceTable) Cost(model string, inputTokens, outputTokens int) float64 {
	p, ok := t[model]
	if !ok {
		return 0
	}
	cost := float64(inputTokens)/1000*p.InputPer1K + float64(outputTokens)/1000*p.OutputPer1K
	return math.Round(cost*1e6) / 1e6
}

// Models returns the table's model names in sorted order.
func (t PriceTable) Models() []string {
	models := make([]string, 0, len(t))
	for m := range t {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}

// EstimateTokens approximates the token count of text at roughly four
// characters per token. Used for cost estimates and as a fallback when a
// vendor response carries no usage block.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// DefaultEstimatedOutputTokens is assumed by EstimateCost when the caller
// sets no max token limit.
const DefaultEstimatedOutputTokens = 100

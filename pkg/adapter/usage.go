package adapter

import (
	"github.com/eastwind-labs/anthropic-bridge/pkg/datatypes/anthropic"
	"github.com/eastwind-labs/anthropic-bridge/pkg/datatypes/modelstream"
)

// UsageAccumulator tracks token counts for one generation turn. Seeding is
// additive: estimates for content the upstream tokenizer never counts (image
// and url blocks stripped during request conversion) stack on top of each
// other and on top of the input tokens the finish event reports. Output and
// cache counts come from the finish event alone.
type UsageAccumulator struct {
	inputTokens          int64
	outputTokens         int64
	cacheReadInputTokens int64
}

// AddInputTokens adds a pre-seeded input-token estimate. Safe to call any
// number of times before the stream starts.
func (u *UsageAccumulator) AddInputTokens(inputTokens int64) {
	u.inputTokens += inputTokens
}

// ApplyTotal folds the finish event's reported totals into the accumulator.
// Reported input tokens add to the seeded estimates; output and cached counts
// are taken as-is.
func (u *UsageAccumulator) ApplyTotal(total *modelstream.TotalUsage) {
	if total == nil {
		return
	}
	u.inputTokens += total.InputTokens
	u.outputTokens = total.OutputTokens
	u.cacheReadInputTokens = total.CachedInputTokens
}

// InputTokens returns the input-token count known so far.
func (u *UsageAccumulator) InputTokens() int64 {
	return u.inputTokens
}

// Snapshot renders the accumulated counts as the wire usage object. The cache
// field marshals only when non-zero.
func (u *UsageAccumulator) Snapshot() *anthropic.Usage {
	return &anthropic.Usage{
		InputTokens:          u.inputTokens,
		OutputTokens:         u.outputTokens,
		CacheReadInputTokens: u.cacheReadInputTokens,
	}
}

package adapter

import (
	"testing"

	"github.com/eastwind-labs/anthropic-bridge/pkg/datatypes/modelstream"
)

func TestUsageAccumulator_SeedsAreAdditive(t *testing.T) {
	var u UsageAccumulator
	u.AddInputTokens(1500)
	u.AddInputTokens(1500)
	if u.InputTokens() != 3000 {
		t.Errorf("expected 3000 seeded tokens, got %d", u.InputTokens())
	}

	u.ApplyTotal(&modelstream.TotalUsage{InputTokens: 120, OutputTokens: 30, CachedInputTokens: 10})
	snapshot := u.Snapshot()
	if snapshot.InputTokens != 3120 {
		t.Errorf("reported input tokens should add to seeds, got %d", snapshot.InputTokens)
	}
	if snapshot.OutputTokens != 30 {
		t.Errorf("expected output tokens 30, got %d", snapshot.OutputTokens)
	}
	if snapshot.CacheReadInputTokens != 10 {
		t.Errorf("expected cache read tokens 10, got %d", snapshot.CacheReadInputTokens)
	}
}

func TestUsageAccumulator_NilTotal(t *testing.T) {
	var u UsageAccumulator
	u.AddInputTokens(42)
	u.ApplyTotal(nil)
	snapshot := u.Snapshot()
	if snapshot.InputTokens != 42 || snapshot.OutputTokens != 0 || snapshot.CacheReadInputTokens != 0 {
		t.Errorf("nil total must leave the accumulator untouched, got %+v", snapshot)
	}
}

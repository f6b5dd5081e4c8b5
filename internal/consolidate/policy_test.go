package consolidate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/harun/mnemo/internal/store"
)

func mem(id int64, content string, quality float64, age time.Duration) *store.Memory {
	q := quality
	return &store.Memory{
		ID:           id,
		Content:      content,
		QualityScore: &q,
		CreatedAt:    time.Now().Add(-age),
	}
}

func TestClassify_NearIdentical_QualityWins(t *testing.T) {
	m1 := mem(1, "use context timeouts on all RPC calls", 0.9, time.Hour)
	m2 := mem(2, "use context timeouts on every RPC call", 0.5, time.Minute)

	c := Classify(m1, m2, 0.97)

	assert.Equal(t, ActionDeleteDuplicate, c.Action)
	assert.Equal(t, int64(1), c.KeepID)
	assert.Equal(t, int64(2), c.DropID)
	assert.Contains(t, c.Reason, "higher quality")
}

func TestClassify_NearIdentical_RecencyBreaksTie(t *testing.T) {
	// Quality gap inside the margin, so the newer memory survives
	m1 := mem(1, "a", 0.55, 48*time.Hour)
	m2 := mem(2, "b", 0.5, time.Hour)

	c := Classify(m1, m2, 0.96)

	assert.Equal(t, ActionDeleteDuplicate, c.Action)
	assert.Equal(t, int64(2), c.KeepID)
	assert.Equal(t, int64(1), c.DropID)
	assert.Contains(t, c.Reason, "more recent")
}

func TestClassify_Containment_KeepsLonger(t *testing.T) {
	m1 := mem(1, "prefer errgroup", 0.5, time.Hour)
	m2 := mem(2, "Prefer errgroup over raw goroutines for fan-out work", 0.5, time.Hour)

	c := Classify(m1, m2, 0.9)

	assert.Equal(t, ActionDeleteDuplicate, c.Action)
	assert.Equal(t, int64(2), c.KeepID)
	assert.Equal(t, int64(1), c.DropID)
}

func TestClassify_Overlap_Merges(t *testing.T) {
	m1 := mem(1, "sqlite needs WAL mode for concurrent readers", 0.5, time.Hour)
	m2 := mem(2, "enable busy_timeout so writers do not fail fast", 0.5, time.Hour)

	c := Classify(m1, m2, 0.9)

	assert.Equal(t, ActionMerge, c.Action)
	assert.Zero(t, c.KeepID)
	assert.Zero(t, c.DropID)
}

func TestClassify_Distinct_KeepsBoth(t *testing.T) {
	m1 := mem(1, "a", 0.5, time.Hour)
	m2 := mem(2, "b", 0.5, time.Hour)

	c := Classify(m1, m2, 0.8)

	assert.Equal(t, ActionKeepBoth, c.Action)
}

func TestClassify_BandBoundaries(t *testing.T) {
	m1 := mem(1, "alpha", 0.5, time.Hour)
	m2 := mem(2, "beta", 0.5, time.Hour)

	tests := []struct {
		name       string
		similarity float64
		action     Action
	}{
		{name: "exactly 0.95 is not a duplicate", similarity: 0.95, action: ActionMerge},
		{name: "exactly 0.85 keeps both", similarity: 0.85, action: ActionKeepBoth},
		{name: "just above 0.95", similarity: 0.951, action: ActionDeleteDuplicate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(m1, m2, tt.similarity)
			assert.Equal(t, tt.action, c.Action)
		})
	}
}

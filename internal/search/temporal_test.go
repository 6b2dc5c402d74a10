package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxlab/recall/internal/store"
)

func timedCandidate(id string, fused, start, end float64) *ScoredCandidate {
	return &ScoredCandidate{
		ID:         id,
		FusedScore: fused,
		Chunk: &store.Chunk{
			ID:          id,
			SourceID:    "lecture-1",
			StartOffset: start,
			EndOffset:   end,
			Unit:        store.UnitSeconds,
		},
	}
}

func TestApplyTimeRange_NoRangeIsPassThrough(t *testing.T) {
	candidates := []*ScoredCandidate{
		timedCandidate("A", 0.9, 0, 60),
		timedCandidate("B", 0.5, 60, 120),
	}

	result := ApplyTimeRange(candidates, nil, 30, 1.3)

	require.Len(t, result, 2)
	assert.Equal(t, 0.9, result[0].FusedScore)
	assert.Equal(t, 0.5, result[1].FusedScore)
}

func TestApplyTimeRange_BoostsIntersectingChunk(t *testing.T) {
	// Equal scores; only B intersects the window. B must rank strictly higher.
	candidates := []*ScoredCandidate{
		timedCandidate("A", 0.6, 0, 100),
		timedCandidate("B", 0.6, 2600, 2800),
	}

	result := ApplyTimeRange(candidates, &TimeRange{Start: 2700, End: 2760}, 0, 1.3)

	require.Equal(t, "B", result[0].ID)
	assert.InDelta(t, 0.78, result[0].FusedScore, 1e-9)
	assert.Equal(t, 0.6, result[1].FusedScore)
}

func TestApplyTimeRange_ToleranceWidensWindow(t *testing.T) {
	// Chunk ends at 2690; window starts at 2700. A 30s tolerance makes
	// them intersect.
	candidates := []*ScoredCandidate{
		timedCandidate("A", 0.5, 2600, 2690),
	}

	unboosted := ApplyTimeRange(
		[]*ScoredCandidate{timedCandidate("A", 0.5, 2600, 2690)},
		&TimeRange{Start: 2700, End: 2760}, 0, 1.3)
	assert.Equal(t, 0.5, unboosted[0].FusedScore)

	boosted := ApplyTimeRange(candidates, &TimeRange{Start: 2700, End: 2760}, 30, 1.3)
	assert.InDelta(t, 0.65, boosted[0].FusedScore, 1e-9)
}

func TestApplyTimeRange_OutsideWindowNotFiltered(t *testing.T) {
	// Chunks outside the window are demoted relative to boosted ones,
	// never dropped.
	candidates := []*ScoredCandidate{
		timedCandidate("A", 0.9, 0, 100),
		timedCandidate("B", 0.4, 500, 600),
	}

	result := ApplyTimeRange(candidates, &TimeRange{Start: 550, End: 580}, 0, 1.3)

	require.Len(t, result, 2)
	// A keeps its raw score and still wins: 0.9 > 0.4*1.3.
	assert.Equal(t, "A", result[0].ID)
	assert.Equal(t, "B", result[1].ID)
}

func TestApplyTimeRange_CharOffsetChunksNeverBoosted(t *testing.T) {
	// A document chunk's character offsets can numerically overlap a
	// time window; only second-coded chunks are eligible for the boost.
	doc := timedCandidate("doc", 0.6, 2700, 2800)
	doc.Chunk.Unit = store.UnitChars
	seg := timedCandidate("seg", 0.6, 2700, 2800)

	result := ApplyTimeRange([]*ScoredCandidate{doc, seg}, &TimeRange{Start: 2700, End: 2760}, 0, 1.3)

	require.Equal(t, "seg", result[0].ID)
	assert.InDelta(t, 0.78, result[0].FusedScore, 1e-9)
	assert.Equal(t, 0.6, result[1].FusedScore)
}

func TestIntervalsIntersect(t *testing.T) {
	tests := []struct {
		name                       string
		aStart, aEnd, bStart, bEnd float64
		want                       bool
	}{
		{"overlap", 0, 10, 5, 15, true},
		{"contained", 5, 6, 0, 10, true},
		{"touching boundary", 0, 10, 10, 20, true},
		{"disjoint", 0, 10, 11, 20, false},
		{"disjoint reversed", 11, 20, 0, 10, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, intervalsIntersect(tt.aStart, tt.aEnd, tt.bStart, tt.bEnd))
		})
	}
}

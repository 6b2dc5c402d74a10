package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxlab/recall/internal/store"
)

// --- Test helpers ---

func denseResults(ids []string, sims []float64) []*store.DenseResult {
	results := make([]*store.DenseResult, len(ids))
	for i, id := range ids {
		results[i] = &store.DenseResult{ID: id, Similarity: sims[i]}
	}
	return results
}

func sparseResults(ids []string, scores []float64) []*store.SparseResult {
	results := make([]*store.SparseResult, len(ids))
	for i, id := range ids {
		results[i] = &store.SparseResult{ID: id, Score: scores[i]}
	}
	return results
}

func fusedIDs(candidates []*ScoredCandidate) []string {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	return ids
}

// --- Fusion ---

func TestFuse_Basic(t *testing.T) {
	dense := denseResults([]string{"A", "B"}, []float64{0.9, 0.2})
	sparse := sparseResults([]string{"A", "B"}, []float64{3.0, 0.5})

	candidates := Fuse(dense, sparse, 0.7, 0.3)

	require.Len(t, candidates, 2)
	assert.Equal(t, []string{"A", "B"}, fusedIDs(candidates))
	// A is max in both normalized lists: 0.7*1 + 0.3*1.
	assert.InDelta(t, 1.0, candidates[0].FusedScore, 1e-9)
	// B is min in both: 0.7*0 + 0.3*0.
	assert.InDelta(t, 0.0, candidates[1].FusedScore, 1e-9)
}

func TestFuse_MissingScoreTreatedAsZero(t *testing.T) {
	// C appears only in the sparse list; it must stay eligible.
	dense := denseResults([]string{"A", "B"}, []float64{0.9, 0.1})
	sparse := sparseResults([]string{"C"}, []float64{2.0})

	candidates := Fuse(dense, sparse, 0.7, 0.3)

	require.Len(t, candidates, 3)
	byID := make(map[string]*ScoredCandidate)
	for _, c := range candidates {
		byID[c.ID] = c
	}

	require.Contains(t, byID, "C")
	assert.False(t, byID["C"].DenseHit)
	assert.True(t, byID["C"].SparseHit)
	// Sole sparse hit normalizes to 1.0; dense side contributes 0.
	assert.InDelta(t, 0.3, byID["C"].FusedScore, 1e-9)
	assert.InDelta(t, 0.0, byID["C"].DenseScore, 1e-9)
}

func TestFuse_OrderingInvariant(t *testing.T) {
	dense := denseResults([]string{"A", "B", "C", "D"}, []float64{0.9, 0.7, 0.5, 0.1})
	sparse := sparseResults([]string{"D", "C", "E"}, []float64{4.0, 2.0, 1.0})

	candidates := Fuse(dense, sparse, 0.7, 0.3)

	for i := 1; i < len(candidates); i++ {
		assert.GreaterOrEqual(t, candidates[i-1].FusedScore, candidates[i].FusedScore,
			"fused score must be non-increasing by position")
	}
}

func TestFuse_TieBreakByAscendingID(t *testing.T) {
	// Identical scores everywhere: ordering must fall back to chunk id.
	dense := denseResults([]string{"Z", "A", "M"}, []float64{0.5, 0.5, 0.5})

	candidates := Fuse(dense, nil, 0.7, 0.3)

	assert.Equal(t, []string{"A", "M", "Z"}, fusedIDs(candidates))
}

func TestFuse_Deterministic(t *testing.T) {
	dense := denseResults([]string{"A", "B", "C"}, []float64{0.8, 0.6, 0.4})
	sparse := sparseResults([]string{"B", "C", "D"}, []float64{3.0, 2.0, 1.0})

	first := Fuse(dense, sparse, 0.7, 0.3)
	for i := 0; i < 10; i++ {
		again := Fuse(dense, sparse, 0.7, 0.3)
		require.Equal(t, fusedIDs(first), fusedIDs(again))
		for j := range first {
			assert.Equal(t, first[j].FusedScore, again[j].FusedScore)
		}
	}
}

func TestFuse_EmptyInputs(t *testing.T) {
	assert.Empty(t, Fuse(nil, nil, 0.7, 0.3))
	assert.Len(t, Fuse(denseResults([]string{"A"}, []float64{0.5}), nil, 0.7, 0.3), 1)
	assert.Len(t, Fuse(nil, sparseResults([]string{"A"}, []float64{1.0}), 0.7, 0.3), 1)
}

func TestFuse_WeightSensitivity(t *testing.T) {
	// A has the best dense score, B the best sparse score. Increasing
	// the dense weight must never lower A's rank.
	dense := denseResults([]string{"A", "B"}, []float64{0.9, 0.3})
	sparse := sparseResults([]string{"B", "A"}, []float64{5.0, 1.0})

	rankOfA := func(wd float64) int {
		candidates := Fuse(dense, sparse, wd, 1-wd)
		for i, c := range candidates {
			if c.ID == "A" {
				return i
			}
		}
		t.Fatal("A missing from fusion output")
		return -1
	}

	prev := rankOfA(0)
	for _, wd := range []float64{0.25, 0.5, 0.75, 1.0} {
		current := rankOfA(wd)
		assert.LessOrEqual(t, current, prev, "rank of dense favorite must not worsen as dense weight grows")
		prev = current
	}
}

// --- Normalization ---

func TestMinMaxNormalize_ScalesToUnitRange(t *testing.T) {
	normalized := minMaxNormalize([]float64{-1, 0, 1})
	assert.Equal(t, []float64{0, 0.5, 1}, normalized)
}

func TestMinMaxNormalize_ZeroRangeMapsToOne(t *testing.T) {
	normalized := minMaxNormalize([]float64{0.42, 0.42, 0.42})
	assert.Equal(t, []float64{1, 1, 1}, normalized)

	single := minMaxNormalize([]float64{-0.3})
	assert.Equal(t, []float64{1}, single)
}

func TestMinMaxNormalize_Empty(t *testing.T) {
	assert.Empty(t, minMaxNormalize(nil))
}

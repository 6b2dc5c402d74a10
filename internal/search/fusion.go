package search

import (
	"sort"

	"github.com/voxlab/recall/internal/store"
)

// Fuse combines dense and sparse hits into one ranking. Each source's
// scores are min-max normalized to [0,1] independently, so the dense
// cosine range and the unbounded sparse scores are never compared on raw
// scales. A chunk present in only one list keeps the missing score at 0
// rather than being excluded. The fused score is the weighted sum; the
// caller guarantees the weights sum to 1.
//
// Ordering is deterministic: descending fused score, ties by ascending
// chunk id.
func Fuse(dense []*store.DenseResult, sparse []*store.SparseResult, weightDense, weightSparse float64) []*ScoredCandidate {
	byID := make(map[string]*ScoredCandidate, len(dense)+len(sparse))

	denseNorm := normalizeDense(dense)
	for i, r := range dense {
		byID[r.ID] = &ScoredCandidate{
			ID:         r.ID,
			DenseScore: denseNorm[i],
			DenseHit:   true,
		}
	}

	sparseNorm := normalizeSparse(sparse)
	for i, r := range sparse {
		if cand, ok := byID[r.ID]; ok {
			cand.SparseScore = sparseNorm[i]
			cand.SparseHit = true
			continue
		}
		byID[r.ID] = &ScoredCandidate{
			ID:          r.ID,
			SparseScore: sparseNorm[i],
			SparseHit:   true,
		}
	}

	candidates := make([]*ScoredCandidate, 0, len(byID))
	for _, cand := range byID {
		cand.FusedScore = weightDense*cand.DenseScore + weightSparse*cand.SparseScore
		candidates = append(candidates, cand)
	}

	sortCandidates(candidates)
	return candidates
}

// sortCandidates applies the canonical candidate ordering: descending
// fused score, ties by ascending chunk id.
func sortCandidates(candidates []*ScoredCandidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].FusedScore != candidates[j].FusedScore {
			return candidates[i].FusedScore > candidates[j].FusedScore
		}
		return candidates[i].ID < candidates[j].ID
	})
}

func normalizeDense(results []*store.DenseResult) []float64 {
	scores := make([]float64, len(results))
	for i, r := range results {
		scores[i] = r.Similarity
	}
	return minMaxNormalize(scores)
}

func normalizeSparse(results []*store.SparseResult) []float64 {
	scores := make([]float64, len(results))
	for i, r := range results {
		scores[i] = r.Score
	}
	return minMaxNormalize(scores)
}

// minMaxNormalize scales scores to [0,1] over the returned set. When all
// scores are equal (including a single hit) every member maps to 1.0:
// the source ranked them all equally best among what it returned.
func minMaxNormalize(scores []float64) []float64 {
	if len(scores) == 0 {
		return scores
	}

	minScore, maxScore := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < minScore {
			minScore = s
		}
		if s > maxScore {
			maxScore = s
		}
	}

	normalized := make([]float64, len(scores))
	if maxScore == minScore {
		for i := range normalized {
			normalized[i] = 1.0
		}
		return normalized
	}

	spread := maxScore - minScore
	for i, s := range scores {
		normalized[i] = (s - minScore) / spread
	}
	return normalized
}

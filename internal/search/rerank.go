package search

import (
	"context"
	"log/slog"
)

// Rerank reorders the top-N fused candidates through the optional
// pairwise scorer. Candidates below the window keep their fusion order,
// bounding reranking cost. A nil reranker, an error, or a malformed
// permutation all degrade gracefully to the fused ordering.
func Rerank(ctx context.Context, reranker Reranker, query string, candidates []*ScoredCandidate, topN int, logger *slog.Logger) []*ScoredCandidate {
	if reranker == nil || topN <= 0 || len(candidates) < 2 {
		return candidates
	}

	window := topN
	if window > len(candidates) {
		window = len(candidates)
	}

	texts := make([]string, window)
	for i := 0; i < window; i++ {
		texts[i] = candidates[i].Chunk.Text
	}

	indices, err := reranker.Rank(ctx, query, texts)
	if err != nil {
		if logger != nil {
			logger.Warn("reranker unavailable, keeping fusion order", "err", err)
		}
		return candidates
	}
	if !isPermutation(indices, window) {
		if logger != nil {
			logger.Warn("reranker returned malformed ordering, keeping fusion order",
				"want", window, "got", len(indices))
		}
		return candidates
	}

	reordered := make([]*ScoredCandidate, 0, len(candidates))
	for _, idx := range indices {
		reordered = append(reordered, candidates[idx])
	}
	reordered = append(reordered, candidates[window:]...)
	return reordered
}

// isPermutation verifies indices is a permutation of [0, n).
func isPermutation(indices []int, n int) bool {
	if len(indices) != n {
		return false
	}
	seen := make([]bool, n)
	for _, idx := range indices {
		if idx < 0 || idx >= n || seen[idx] {
			return false
		}
		seen[idx] = true
	}
	return true
}

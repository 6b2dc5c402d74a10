package search

import "github.com/voxlab/recall/internal/store"

// ApplyTimeRange boosts candidates whose chunk interval intersects the
// query's time range, widened by tolerance on both ends. Intersecting
// chunks get a multiplicative boost on the fused score rather than a
// hard filter, so a highly relevant chunk just outside the window is
// demoted, not discarded. Only time-coded chunks are tested: character
// offsets share a number line with timestamps but not a meaning.
// Without a time range this is a pass-through.
func ApplyTimeRange(candidates []*ScoredCandidate, timeRange *TimeRange, tolerance, boost float64) []*ScoredCandidate {
	if timeRange == nil || len(candidates) == 0 {
		return candidates
	}

	start := timeRange.Start - tolerance
	end := timeRange.End + tolerance

	boosted := false
	for _, cand := range candidates {
		if cand.Chunk == nil || cand.Chunk.Unit != store.UnitSeconds {
			continue
		}
		if intervalsIntersect(cand.Chunk.StartOffset, cand.Chunk.EndOffset, start, end) {
			cand.FusedScore *= boost
			boosted = true
		}
	}

	if boosted {
		sortCandidates(candidates)
	}
	return candidates
}

// intervalsIntersect reports whether [aStart,aEnd] and [bStart,bEnd]
// overlap, boundaries included.
func intervalsIntersect(aStart, aEnd, bStart, bEnd float64) bool {
	return aStart <= bEnd && bStart <= aEnd
}

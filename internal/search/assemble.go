package search

import (
	"fmt"
	"sort"

	"github.com/voxlab/recall/internal/store"
)

// SourceCandidates is one retrieval source's ranked candidates with its
// weight in the assembled context (e.g. historical tickets 0.6,
// knowledge base 0.4).
type SourceCandidates struct {
	Label      string
	Weight     float64
	Candidates []*ScoredCandidate
}

// Assemble merges ranked candidate lists from one or more sources into
// an ordered context bundle. Each source's fused scores are normalized
// and weighted with the same algorithm as fusion: a chunk's combined
// score is the sum of its weighted normalized scores across sources,
// with a source that did not return it contributing 0, so a chunk
// corroborated by several sources outranks a single-source one.
// Duplicate chunk ids yield one excerpt, annotated with the source that
// contributed most. Assembly stops at MaxChunks or when the next
// excerpt would push the concatenated text past MaxChars; truncation
// drops whole chunks only.
func Assemble(sources []SourceCandidates, confidence ConfidenceResult, maxChunks, maxChars int) *ContextBundle {
	type weighted struct {
		cand     *ScoredCandidate
		label    string
		combined float64
		top      float64
	}

	best := make(map[string]weighted)
	for _, src := range sources {
		scores := make([]float64, len(src.Candidates))
		for i, cand := range src.Candidates {
			scores[i] = cand.FusedScore
		}
		norm := minMaxNormalize(scores)

		for i, cand := range src.Candidates {
			if cand.Chunk == nil {
				continue
			}
			contrib := src.Weight * norm[i]
			w, ok := best[cand.ID]
			if !ok {
				best[cand.ID] = weighted{cand: cand, label: src.Label, combined: contrib, top: contrib}
				continue
			}
			w.combined += contrib
			if contrib > w.top {
				w.top = contrib
				w.label = src.Label
				w.cand = cand
			}
			best[cand.ID] = w
		}
	}

	merged := make([]weighted, 0, len(best))
	for _, w := range best {
		merged = append(merged, w)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].combined != merged[j].combined {
			return merged[i].combined > merged[j].combined
		}
		return merged[i].cand.ID < merged[j].cand.ID
	})

	bundle := &ContextBundle{
		Excerpts:   []Excerpt{},
		Confidence: confidence,
	}

	totalChars := 0
	for _, w := range merged {
		if maxChunks > 0 && len(bundle.Excerpts) >= maxChunks {
			break
		}
		text := w.cand.Chunk.Text
		if maxChars > 0 && totalChars+len(text) > maxChars {
			break
		}
		totalChars += len(text)
		bundle.Excerpts = append(bundle.Excerpts, Excerpt{
			Chunk:   w.cand.Chunk,
			Text:    text,
			Locator: formatLocator(w.cand.Chunk, w.label),
		})
	}

	return bundle
}

// formatLocator builds the citation locator for a chunk: a timestamp
// range for time-coded content, the source label otherwise.
func formatLocator(chunk *store.Chunk, label string) string {
	if chunk.Unit == store.UnitSeconds {
		return fmt.Sprintf("%s-%s", formatTimestamp(chunk.StartOffset), formatTimestamp(chunk.EndOffset))
	}
	if src, ok := chunk.Metadata["source"]; ok && src != "" {
		return src
	}
	if label != "" {
		return label
	}
	return chunk.SourceID
}

// formatTimestamp renders seconds as MM:SS.
func formatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// Package search implements the retrieval pipeline: parallel dense and
// sparse retrieval, score fusion, optional reranking, timestamp-anchored
// selection, confidence scoring, and context assembly.
package search

import (
	"context"
	"time"

	"github.com/voxlab/recall/internal/store"
)

// TimeRange is a second-granularity window into time-coded content.
type TimeRange struct {
	Start float64
	End   float64
}

// Query is one retrieval request. Transient; nothing outlives the request.
type Query struct {
	Text string

	// TimeRange constrains time-coded content. Nil means no constraint.
	TimeRange *TimeRange

	// SourceFilter restricts retrieval to the given source ids.
	// Empty means all sources.
	SourceFilter []string
}

// ScoredCandidate is a per-query scored chunk. DenseScore and SparseScore
// are the normalized [0,1] signals; the Hit flags distinguish a true zero
// from a signal that never returned the chunk.
type ScoredCandidate struct {
	ID    string
	Chunk *store.Chunk

	DenseScore  float64
	SparseScore float64
	DenseHit    bool
	SparseHit   bool

	FusedScore float64
}

// ConfidenceResult is the scalar confidence and escalation decision for
// a candidate set, with an ordered trail of the rules that fired.
type ConfidenceResult struct {
	Value    float64  `json:"value"`
	Escalate bool     `json:"escalate"`
	Reasons  []string `json:"reasons"`
}

// Excerpt is one chunk formatted for the generation collaborator, with a
// locator for downstream citation ("12:30-13:05" for transcripts, the
// source label for documents).
type Excerpt struct {
	Chunk   *store.Chunk
	Text    string
	Locator string
}

// ContextBundle is the final artifact handed to generation.
type ContextBundle struct {
	Excerpts   []Excerpt
	Confidence ConfidenceResult
}

// EscalationPolarity names how the confidence threshold is read.
type EscalationPolarity string

const (
	// PolarityEscalateBelow escalates when confidence drops below the
	// threshold (escalation-sensitive domains, low thresholds).
	PolarityEscalateBelow EscalationPolarity = "escalate-below"

	// PolarityAnswerAbove auto-answers only when confidence clears the
	// threshold (informational domains, high thresholds). Confidence
	// under the threshold escalates, same comparison, different intent.
	PolarityAnswerAbove EscalationPolarity = "answer-above"
)

// Options carries the per-engine retrieval configuration. Validated at
// configuration-load time; the pipeline assumes a valid set.
type Options struct {
	// K is the result size requested from each retriever and the cap on
	// fused output.
	K int

	// WeightDense and WeightSparse are the fusion weights; they must sum
	// to 1.
	WeightDense  float64
	WeightSparse float64

	// RerankTopN is the size of the reranking window.
	RerankTopN int

	// RetrieverTimeout bounds each retriever call. On timeout the
	// pipeline continues with whatever signal arrived.
	RetrieverTimeout time.Duration

	// TimeTolerance widens the query time range on both ends, in the
	// chunk's offset unit.
	TimeTolerance float64

	// TemporalBoost multiplies the fused score of chunks intersecting
	// the (widened) time range.
	TemporalBoost float64

	// ConfidenceMargin is the top-two fused score gap under which the
	// result is considered ambiguous.
	ConfidenceMargin float64

	// ConfidenceThreshold and Polarity control escalation.
	ConfidenceThreshold float64
	Polarity            EscalationPolarity

	// UncertaintyMarkers are query substrings signaling the asker is
	// dissatisfied or uncertain; each match subtracts UncertaintyPenalty
	// from confidence.
	UncertaintyMarkers []string
	UncertaintyPenalty float64

	// MaxChunks and MaxChars bound the assembled context.
	MaxChunks int
	MaxChars  int
}

// DefaultOptions returns the default retrieval configuration.
func DefaultOptions() Options {
	return Options{
		K:                   20,
		WeightDense:         0.7,
		WeightSparse:        0.3,
		RerankTopN:          10,
		RetrieverTimeout:    800 * time.Millisecond,
		TimeTolerance:       30,
		TemporalBoost:       1.3,
		ConfidenceMargin:    0.05,
		ConfidenceThreshold: 0.3,
		Polarity:            PolarityEscalateBelow,
		UncertaintyPenalty:  0.2,
		MaxChunks:           5,
		MaxChars:            4000,
	}
}

// Reranker is the optional precision-oriented pairwise scorer. Rank
// returns a permutation of indices into texts, most relevant first.
// Absence or failure degrades gracefully to fusion order.
type Reranker interface {
	Rank(ctx context.Context, query string, texts []string) ([]int, error)
}

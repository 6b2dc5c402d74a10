package search

import (
	"fmt"
	"strings"
)

// confidenceState threads the working value and reason trail through the
// rule table.
type confidenceState struct {
	candidates []*ScoredCandidate
	queryText  string
	opts       Options

	value         float64
	forceEscalate bool
	reasons       []string
	done          bool
}

// confidenceRule is one named, independently testable scoring rule.
// Rules run in order and append to the reason trail when they fire.
type confidenceRule struct {
	name  string
	apply func(s *confidenceState)
}

// confidenceRules is the ordered rule table. New heuristics are added
// here rather than as inline conditionals in the pipeline.
var confidenceRules = []confidenceRule{
	{name: "no_candidates", apply: ruleNoCandidates},
	{name: "top_score_base", apply: ruleTopScoreBase},
	{name: "narrow_margin", apply: ruleNarrowMargin},
	{name: "uncertainty_markers", apply: ruleUncertaintyMarkers},
}

// Score derives a scalar confidence and escalation decision from the
// final candidate ranking and the query text. Pure function: no I/O, no
// state beyond its inputs. extraReasons (e.g. a degraded-mode note from
// the pipeline) are prepended to the reason trail.
func Score(candidates []*ScoredCandidate, queryText string, opts Options, extraReasons ...string) ConfidenceResult {
	s := &confidenceState{
		candidates: candidates,
		queryText:  queryText,
		opts:       opts,
		reasons:    append([]string{}, extraReasons...),
	}

	for _, rule := range confidenceRules {
		rule.apply(s)
		if s.done {
			break
		}
	}

	escalate := s.forceEscalate || s.value < opts.ConfidenceThreshold
	switch {
	case s.forceEscalate:
		// Reason already recorded by the forcing rule.
	case escalate:
		s.reasons = append(s.reasons, fmt.Sprintf(
			"threshold: confidence %.2f below %.2f (%s), escalating", s.value, opts.ConfidenceThreshold, opts.Polarity))
	default:
		s.reasons = append(s.reasons, fmt.Sprintf(
			"threshold: confidence %.2f clears %.2f (%s)", s.value, opts.ConfidenceThreshold, opts.Polarity))
	}

	return ConfidenceResult{
		Value:    s.value,
		Escalate: escalate,
		Reasons:  s.reasons,
	}
}

// ruleNoCandidates forces zero confidence and escalation on an empty
// candidate set. Later rules are skipped.
func ruleNoCandidates(s *confidenceState) {
	if len(s.candidates) > 0 {
		return
	}
	s.value = 0
	s.forceEscalate = true
	s.done = true
	s.reasons = append(s.reasons, "no_candidates: empty candidate set, confidence 0")
}

// ruleTopScoreBase seeds confidence from the top candidate's fused
// score, clamped to [0,1] (temporal boosting can push it past 1).
func ruleTopScoreBase(s *confidenceState) {
	s.value = clamp01(s.candidates[0].FusedScore)
	s.reasons = append(s.reasons, fmt.Sprintf("top_score_base: top fused score %.2f", s.value))
}

// ruleNarrowMargin halves confidence and forces escalation when the top
// two fused scores are within the configured margin. Ambiguity between
// the best candidates escalates regardless of absolute magnitude.
func ruleNarrowMargin(s *confidenceState) {
	if len(s.candidates) < 2 {
		return
	}
	margin := s.candidates[0].FusedScore - s.candidates[1].FusedScore
	if margin >= s.opts.ConfidenceMargin {
		return
	}
	s.value *= 0.5
	s.forceEscalate = true
	s.reasons = append(s.reasons, fmt.Sprintf(
		"narrow_margin: top-two gap %.3f under %.3f, ambiguous result, escalating", margin, s.opts.ConfidenceMargin))
}

// ruleUncertaintyMarkers subtracts a penalty for each configured marker
// found in the query text (dissatisfaction or urgency language in a
// support context).
func ruleUncertaintyMarkers(s *confidenceState) {
	if len(s.opts.UncertaintyMarkers) == 0 {
		return
	}
	lowered := strings.ToLower(s.queryText)
	for _, marker := range s.opts.UncertaintyMarkers {
		if marker == "" || !strings.Contains(lowered, strings.ToLower(marker)) {
			continue
		}
		s.value -= s.opts.UncertaintyPenalty
		if s.value < 0 {
			s.value = 0
		}
		s.reasons = append(s.reasons, fmt.Sprintf("uncertainty_markers: query contains %q", marker))
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

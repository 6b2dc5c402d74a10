package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxlab/recall/internal/store"
)

// stubReranker returns a fixed ordering or error.
type stubReranker struct {
	indices []int
	err     error
	calls   int
}

func (s *stubReranker) Rank(_ context.Context, _ string, texts []string) ([]int, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.indices, nil
}

func rerankCandidates(ids ...string) []*ScoredCandidate {
	candidates := make([]*ScoredCandidate, len(ids))
	for i, id := range ids {
		candidates[i] = &ScoredCandidate{
			ID:         id,
			FusedScore: 1.0 - float64(i)*0.1,
			Chunk:      &store.Chunk{ID: id, Text: "text " + id},
		}
	}
	return candidates
}

func TestRerank_ReordersTopWindow(t *testing.T) {
	candidates := rerankCandidates("A", "B", "C", "D")
	reranker := &stubReranker{indices: []int{2, 0, 1}}

	result := Rerank(context.Background(), reranker, "q", candidates, 3, nil)

	// Window [A,B,C] reordered to [C,A,B]; D keeps fusion position.
	assert.Equal(t, []string{"C", "A", "B", "D"}, fusedIDs(result))
}

func TestRerank_NilRerankerKeepsFusionOrder(t *testing.T) {
	candidates := rerankCandidates("A", "B", "C")
	result := Rerank(context.Background(), nil, "q", candidates, 10, nil)
	assert.Equal(t, []string{"A", "B", "C"}, fusedIDs(result))
}

func TestRerank_ErrorDegradesGracefully(t *testing.T) {
	candidates := rerankCandidates("A", "B", "C")
	reranker := &stubReranker{err: errors.New("service down")}

	result := Rerank(context.Background(), reranker, "q", candidates, 10, nil)

	assert.Equal(t, []string{"A", "B", "C"}, fusedIDs(result))
}

func TestRerank_MalformedPermutationIgnored(t *testing.T) {
	candidates := rerankCandidates("A", "B", "C")

	for _, indices := range [][]int{
		{0, 1},       // too short
		{0, 1, 1},    // duplicate
		{0, 1, 5},    // out of range
		{0, 1, 2, 3}, // too long
	} {
		reranker := &stubReranker{indices: indices}
		result := Rerank(context.Background(), reranker, "q", candidates, 3, nil)
		assert.Equal(t, []string{"A", "B", "C"}, fusedIDs(result))
	}
}

func TestRerank_WindowBoundsCost(t *testing.T) {
	candidates := rerankCandidates("A", "B", "C", "D", "E")
	reranker := &stubReranker{indices: []int{1, 0}}

	result := Rerank(context.Background(), reranker, "q", candidates, 2, nil)

	require.Equal(t, []string{"B", "A", "C", "D", "E"}, fusedIDs(result))
	assert.Equal(t, 1, reranker.calls)
}

func TestRerank_SingleCandidateSkipped(t *testing.T) {
	candidates := rerankCandidates("A")
	reranker := &stubReranker{indices: []int{0}}

	result := Rerank(context.Background(), reranker, "q", candidates, 10, nil)

	assert.Equal(t, []string{"A"}, fusedIDs(result))
	assert.Zero(t, reranker.calls)
}

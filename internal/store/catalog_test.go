package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	recallerrors "github.com/voxlab/recall/internal/errors"
)

// failingSparse rejects every Add to exercise rollback.
type failingSparse struct {
	SparseIndex
}

func (f *failingSparse) Add(context.Context, *Chunk) error {
	return errors.New("disk full")
}

func vectorChunk(id, sourceID, text string, vector []float32) *Chunk {
	return &Chunk{
		ID:       id,
		SourceID: sourceID,
		Text:     text,
		Vector:   vector,
		Unit:     UnitChars,
	}
}

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	dense, err := NewHNSWIndex(HNSWConfig{Dimensions: 2})
	require.NoError(t, err)
	catalog, err := NewCatalog(dense, NewTFIDFIndex(nil))
	require.NoError(t, err)
	return catalog
}

func TestCatalog_AddAndGet(t *testing.T) {
	ctx := context.Background()
	catalog := newTestCatalog(t)
	defer catalog.Close()

	chunk := vectorChunk("A", "s1", "vacation days", []float32{1, 0})
	require.NoError(t, catalog.Add(ctx, chunk))

	got, err := catalog.Get("A")
	require.NoError(t, err)
	assert.Equal(t, chunk, got)
	assert.Equal(t, 1, catalog.Count())
}

func TestCatalog_GetMissingIsNotFound(t *testing.T) {
	catalog := newTestCatalog(t)
	defer catalog.Close()

	_, err := catalog.Get("missing")
	assert.ErrorIs(t, err, recallerrors.ErrNotFound)
}

func TestCatalog_AddValidatesChunk(t *testing.T) {
	ctx := context.Background()
	catalog := newTestCatalog(t)
	defer catalog.Close()

	tests := []struct {
		name  string
		chunk *Chunk
	}{
		{"empty id", &Chunk{SourceID: "s1", Vector: []float32{1, 0}, Unit: UnitChars}},
		{"empty source", &Chunk{ID: "A", Vector: []float32{1, 0}, Unit: UnitChars}},
		{"missing vector", &Chunk{ID: "A", SourceID: "s1", Unit: UnitChars}},
		{"offsets inverted", &Chunk{ID: "A", SourceID: "s1", Vector: []float32{1, 0}, Unit: UnitChars, StartOffset: 10, EndOffset: 5}},
		{"missing unit", &Chunk{ID: "A", SourceID: "s1", Vector: []float32{1, 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, catalog.Add(ctx, tt.chunk))
		})
	}
	assert.Equal(t, 0, catalog.Count())
}

func TestCatalog_AddVisibleToBothRetrievers(t *testing.T) {
	ctx := context.Background()
	catalog := newTestCatalog(t)
	defer catalog.Close()

	require.NoError(t, catalog.Add(ctx, vectorChunk("A", "s1", "vacation days", []float32{1, 0})))

	dense, err := catalog.SearchDense(ctx, []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	require.Len(t, dense, 1)
	assert.Equal(t, "A", dense[0].ID)

	sparse, err := catalog.SearchSparse(ctx, "vacation", 5, nil)
	require.NoError(t, err)
	require.Len(t, sparse, 1)
	assert.Equal(t, "A", sparse[0].ID)
}

func TestCatalog_FailedSparseAddRollsBackDense(t *testing.T) {
	ctx := context.Background()
	dense, err := NewHNSWIndex(HNSWConfig{Dimensions: 2})
	require.NoError(t, err)
	catalog, err := NewCatalog(dense, &failingSparse{SparseIndex: NewTFIDFIndex(nil)})
	require.NoError(t, err)
	defer catalog.Close()

	err = catalog.Add(ctx, vectorChunk("A", "s1", "text", []float32{1, 0}))
	require.Error(t, err)

	// All-or-nothing: nothing committed, nothing left in the dense index.
	assert.Equal(t, 0, catalog.Count())
	assert.Equal(t, 0, dense.Count())
	_, err = catalog.Get("A")
	assert.ErrorIs(t, err, recallerrors.ErrNotFound)
}

func TestCatalog_RemoveSourceRetractsFromBothIndexes(t *testing.T) {
	ctx := context.Background()
	catalog := newTestCatalog(t)
	defer catalog.Close()

	require.NoError(t, catalog.Add(ctx, vectorChunk("A", "s1", "vacation days", []float32{1, 0})))
	require.NoError(t, catalog.Add(ctx, vectorChunk("B", "s1", "sick leave", []float32{0, 1})))
	require.NoError(t, catalog.Add(ctx, vectorChunk("C", "s2", "vacation rentals", []float32{0.5, 0.5})))

	require.NoError(t, catalog.RemoveSource(ctx, "s1"))

	assert.Equal(t, 1, catalog.Count())
	_, err := catalog.Get("A")
	assert.ErrorIs(t, err, recallerrors.ErrNotFound)

	dense, err := catalog.SearchDense(ctx, []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	for _, r := range dense {
		assert.Equal(t, "C", r.ID)
	}

	sparse, err := catalog.SearchSparse(ctx, "vacation", 5, nil)
	require.NoError(t, err)
	require.Len(t, sparse, 1)
	assert.Equal(t, "C", sparse[0].ID)
}

func TestCatalog_RemoveUnknownSourceIsNoOp(t *testing.T) {
	catalog := newTestCatalog(t)
	defer catalog.Close()

	assert.NoError(t, catalog.RemoveSource(context.Background(), "nope"))
}

func TestCatalog_SourceFilterOnSearch(t *testing.T) {
	ctx := context.Background()
	catalog := newTestCatalog(t)
	defer catalog.Close()

	require.NoError(t, catalog.Add(ctx, vectorChunk("A", "hr", "vacation policy", []float32{1, 0})))
	require.NoError(t, catalog.Add(ctx, vectorChunk("B", "billing", "vacation refunds", []float32{0.9, 0.1})))

	sparse, err := catalog.SearchSparse(ctx, "vacation", 5, []string{"hr"})
	require.NoError(t, err)
	require.Len(t, sparse, 1)
	assert.Equal(t, "A", sparse[0].ID)

	dense, err := catalog.SearchDense(ctx, []float32{1, 0}, 5, []string{"billing"})
	require.NoError(t, err)
	require.Len(t, dense, 1)
	assert.Equal(t, "B", dense[0].ID)
}

func TestCatalog_ReplaceMovesChunkBetweenSources(t *testing.T) {
	ctx := context.Background()
	catalog := newTestCatalog(t)
	defer catalog.Close()

	require.NoError(t, catalog.Add(ctx, vectorChunk("A", "s1", "text", []float32{1, 0})))
	require.NoError(t, catalog.Add(ctx, vectorChunk("A", "s2", "text", []float32{1, 0})))

	// Removing the old source must not delete the moved chunk.
	require.NoError(t, catalog.RemoveSource(ctx, "s1"))
	got, err := catalog.Get("A")
	require.NoError(t, err)
	assert.Equal(t, "s2", got.SourceID)

	require.NoError(t, catalog.RemoveSource(ctx, "s2"))
	assert.Equal(t, 0, catalog.Count())
}

func TestCatalog_ConcurrentReadsAndWrites(t *testing.T) {
	ctx := context.Background()
	catalog := newTestCatalog(t)
	defer catalog.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				id := fmt.Sprintf("chunk-%d-%d", i, j)
				_ = catalog.Add(ctx, vectorChunk(id, fmt.Sprintf("s%d", i), "shared vacation text", []float32{1, 0}))
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, _ = catalog.SearchSparse(ctx, "vacation", 5, nil)
				_, _ = catalog.SearchDense(ctx, []float32{1, 0}, 5, nil)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 160, catalog.Count())
}

func TestCatalog_ClosedRejectsWrites(t *testing.T) {
	ctx := context.Background()
	catalog := newTestCatalog(t)
	require.NoError(t, catalog.Close())

	err := catalog.Add(ctx, vectorChunk("A", "s1", "text", []float32{1, 0}))
	assert.Error(t, err)
	assert.Equal(t, recallerrors.ErrCodeStoreClosed, recallerrors.GetCode(err))

	assert.NoError(t, catalog.Close(), "double close is a no-op")
}

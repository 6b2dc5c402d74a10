package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxlab/recall/internal/embed"
	"github.com/voxlab/recall/internal/store"
)

// flakyEmbedder fails for texts containing a marker.
type flakyEmbedder struct {
	embed.Embedder
}

func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.Contains(text, "poison") {
		return nil, errors.New("embedding rejected")
	}
	return f.Embedder.Embed(ctx, text)
}

func newTestPipeline(t *testing.T, options ...PipelineOption) (*Pipeline, *store.Catalog) {
	t.Helper()
	dense, err := store.NewHNSWIndex(store.HNSWConfig{Dimensions: embed.StaticDimensions})
	require.NoError(t, err)
	catalog, err := store.NewCatalog(dense, store.NewTFIDFIndex(nil))
	require.NoError(t, err)

	pipeline, err := NewPipeline(catalog, embed.NewStaticEmbedder(), options...)
	require.NoError(t, err)
	return pipeline, catalog
}

func ingestChunk(id, sourceID, text string) *store.Chunk {
	return &store.Chunk{
		ID:       id,
		SourceID: sourceID,
		Text:     text,
		Unit:     store.UnitChars,
	}
}

func TestPipeline_IngestEmbedsAndIndexes(t *testing.T) {
	ctx := context.Background()
	pipeline, catalog := newTestPipeline(t)
	defer catalog.Close()

	result, err := pipeline.Ingest(ctx, []*store.Chunk{
		ingestChunk("A", "s1", "vacation days 20 per year"),
		ingestChunk("B", "s1", "sick leave 10 days"),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Ingested)
	assert.Empty(t, result.Failed)
	assert.Equal(t, 2, catalog.Count())

	got, err := catalog.Get("A")
	require.NoError(t, err)
	assert.Len(t, got.Vector, embed.StaticDimensions)

	hits, err := catalog.SearchSparse(ctx, "vacation", 5, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "A", hits[0].ID)
}

func TestPipeline_PreEmbeddedVectorsKept(t *testing.T) {
	ctx := context.Background()
	pipeline, catalog := newTestPipeline(t)
	defer catalog.Close()

	vector := make([]float32, embed.StaticDimensions)
	vector[0] = 1
	chunk := ingestChunk("A", "s1", "text")
	chunk.Vector = vector

	result, err := pipeline.Ingest(ctx, []*store.Chunk{chunk})
	require.NoError(t, err)
	require.Equal(t, 1, result.Ingested)

	got, err := catalog.Get("A")
	require.NoError(t, err)
	assert.Equal(t, vector, got.Vector)
}

func TestPipeline_PerChunkFailuresDoNotAbortBatch(t *testing.T) {
	ctx := context.Background()
	dense, err := store.NewHNSWIndex(store.HNSWConfig{Dimensions: embed.StaticDimensions})
	require.NoError(t, err)
	catalog, err := store.NewCatalog(dense, store.NewTFIDFIndex(nil))
	require.NoError(t, err)
	defer catalog.Close()

	pipeline, err := NewPipeline(catalog, &flakyEmbedder{Embedder: embed.NewStaticEmbedder()})
	require.NoError(t, err)

	result, err := pipeline.Ingest(ctx, []*store.Chunk{
		ingestChunk("good-1", "s1", "fine text"),
		ingestChunk("bad", "s1", "poison text"),
		ingestChunk("good-2", "s1", "more fine text"),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Ingested)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "bad", result.Failed[0].ID)
	assert.Equal(t, 2, catalog.Count())
}

func TestPipeline_FailuresOrderedDeterministically(t *testing.T) {
	ctx := context.Background()
	dense, err := store.NewHNSWIndex(store.HNSWConfig{Dimensions: embed.StaticDimensions})
	require.NoError(t, err)
	catalog, err := store.NewCatalog(dense, store.NewTFIDFIndex(nil))
	require.NoError(t, err)
	defer catalog.Close()

	pipeline, err := NewPipeline(catalog, &flakyEmbedder{Embedder: embed.NewStaticEmbedder()}, WithPoolSize(4))
	require.NoError(t, err)

	result, err := pipeline.Ingest(ctx, []*store.Chunk{
		ingestChunk("z-bad", "s1", "poison"),
		ingestChunk("a-bad", "s1", "poison"),
		ingestChunk("m-bad", "s1", "poison"),
	})
	require.NoError(t, err)

	require.Len(t, result.Failed, 3)
	assert.Equal(t, "a-bad", result.Failed[0].ID)
	assert.Equal(t, "m-bad", result.Failed[1].ID)
	assert.Equal(t, "z-bad", result.Failed[2].ID)
}

func TestPipeline_EmptyBatch(t *testing.T) {
	pipeline, catalog := newTestPipeline(t)
	defer catalog.Close()

	result, err := pipeline.Ingest(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, result.Ingested)
	assert.Empty(t, result.Failed)
}

func TestPipeline_PersistAndRestore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	meta, err := store.NewSQLiteStore(dir + "/chunks.db")
	require.NoError(t, err)

	pipeline, catalog := newTestPipeline(t, WithMetadataStore(meta))
	result, err := pipeline.Ingest(ctx, []*store.Chunk{
		ingestChunk("A", "s1", "vacation days 20 per year"),
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Ingested)
	require.NoError(t, catalog.Close())
	require.NoError(t, meta.Close())

	// Fresh process: restore from the metadata store.
	meta2, err := store.NewSQLiteStore(dir + "/chunks.db")
	require.NoError(t, err)
	defer meta2.Close()

	pipeline2, catalog2 := newTestPipeline(t, WithMetadataStore(meta2))
	restored, err := pipeline2.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, restored)
	assert.Equal(t, 1, catalog2.Count())

	got, err := catalog2.Get("A")
	require.NoError(t, err)
	assert.Equal(t, "vacation days 20 per year", got.Text)
	assert.Len(t, got.Vector, embed.StaticDimensions)
}

func TestPipeline_RemoveSource(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	meta, err := store.NewSQLiteStore(dir + "/chunks.db")
	require.NoError(t, err)
	defer meta.Close()

	pipeline, catalog := newTestPipeline(t, WithMetadataStore(meta))
	defer catalog.Close()

	_, err = pipeline.Ingest(ctx, []*store.Chunk{
		ingestChunk("A", "s1", "text one"),
		ingestChunk("B", "s2", "text two"),
	})
	require.NoError(t, err)

	require.NoError(t, pipeline.RemoveSource(ctx, "s1"))
	assert.Equal(t, 1, catalog.Count())

	persisted, err := meta.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, "B", persisted[0].ID)
}

// Package ingest batches chunks into the catalog: texts are embedded
// concurrently on a bounded worker pool, then indexed and optionally
// persisted. Ingestion assumes upstream parsing already produced chunks
// with stable ids and boundaries.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/voxlab/recall/internal/embed"
	"github.com/voxlab/recall/internal/store"
)

// DefaultPoolSize bounds concurrent embedding calls.
const DefaultPoolSize = 8

// ChunkError records a single chunk's ingestion failure.
type ChunkError struct {
	ID  string
	Err error
}

// Result summarizes a batch ingestion run. Failures are ordered by
// chunk id so runs are comparable.
type Result struct {
	Ingested int
	Failed   []ChunkError
}

// Pipeline embeds and indexes chunk batches.
type Pipeline struct {
	catalog  *store.Catalog
	embedder embed.Embedder
	meta     store.MetadataStore
	poolSize int
	logger   *slog.Logger
}

// PipelineOption configures optional pipeline collaborators.
type PipelineOption func(*Pipeline)

// WithMetadataStore persists ingested chunks for restart recovery.
func WithMetadataStore(meta store.MetadataStore) PipelineOption {
	return func(p *Pipeline) { p.meta = meta }
}

// WithPoolSize overrides the embedding worker pool size.
func WithPoolSize(size int) PipelineOption {
	return func(p *Pipeline) {
		if size > 0 {
			p.poolSize = size
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = logger }
}

// NewPipeline creates an ingestion pipeline over the given catalog and
// embedder.
func NewPipeline(catalog *store.Catalog, embedder embed.Embedder, options ...PipelineOption) (*Pipeline, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	p := &Pipeline{
		catalog:  catalog,
		embedder: embedder,
		poolSize: DefaultPoolSize,
		logger:   slog.Default().With("component", "ingest"),
	}
	for _, opt := range options {
		opt(p)
	}
	return p, nil
}

// Ingest embeds any chunks lacking vectors, adds the batch to the
// catalog, and persists it when a metadata store is attached. Per-chunk
// failures are collected rather than aborting the batch.
func (p *Pipeline) Ingest(ctx context.Context, chunks []*store.Chunk) (*Result, error) {
	if len(chunks) == 0 {
		return &Result{}, nil
	}

	pool, err := ants.NewPool(p.poolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	embedErrs := make([]error, len(chunks))
	var wg sync.WaitGroup

	for i, chunk := range chunks {
		if len(chunk.Vector) > 0 {
			continue
		}
		i, chunk := i, chunk
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			vector, err := p.embedder.Embed(ctx, chunk.Text)
			if err != nil {
				embedErrs[i] = err
				return
			}
			chunk.Vector = vector
		}); err != nil {
			wg.Done()
			embedErrs[i] = err
		}
	}
	wg.Wait()

	result := &Result{}
	var persisted []*store.Chunk

	for i, chunk := range chunks {
		if embedErrs[i] != nil {
			result.Failed = append(result.Failed, ChunkError{ID: chunk.ID, Err: embedErrs[i]})
			continue
		}
		if err := p.catalog.Add(ctx, chunk); err != nil {
			result.Failed = append(result.Failed, ChunkError{ID: chunk.ID, Err: err})
			continue
		}
		result.Ingested++
		persisted = append(persisted, chunk)
	}

	sort.Slice(result.Failed, func(i, j int) bool {
		return result.Failed[i].ID < result.Failed[j].ID
	})

	if p.meta != nil && len(persisted) > 0 {
		if err := p.meta.SaveChunks(ctx, persisted); err != nil {
			p.logger.Error("failed to persist chunks", "count", len(persisted), "err", err)
			return result, fmt.Errorf("failed to persist chunks: %w", err)
		}
	}

	p.logger.Info("ingestion complete",
		"ingested", result.Ingested,
		"failed", len(result.Failed))
	return result, nil
}

// RemoveSource deletes a source from the catalog and the metadata store.
func (p *Pipeline) RemoveSource(ctx context.Context, sourceID string) error {
	if err := p.catalog.RemoveSource(ctx, sourceID); err != nil {
		return err
	}
	if p.meta != nil {
		if err := p.meta.DeleteSource(ctx, sourceID); err != nil {
			return fmt.Errorf("failed to delete persisted source %s: %w", sourceID, err)
		}
	}
	return nil
}

// Restore reloads persisted chunks into the catalog at startup.
func (p *Pipeline) Restore(ctx context.Context) (int, error) {
	if p.meta == nil {
		return 0, nil
	}
	chunks, err := p.meta.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load persisted chunks: %w", err)
	}
	restored := 0
	for _, chunk := range chunks {
		if err := p.catalog.Add(ctx, chunk); err != nil {
			p.logger.Warn("skipping unrestorable chunk", "id", chunk.ID, "err", err)
			continue
		}
		restored++
	}
	return restored, nil
}

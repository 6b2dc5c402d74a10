package store

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	recallerrors "github.com/voxlab/recall/internal/errors"
)

// sourceLockStripes bounds the number of per-source write locks.
const sourceLockStripes = 32

// Catalog is the chunk store. It owns the authoritative chunk map and
// keeps the dense and sparse indexes in step with it: Add updates both
// indexes before committing the chunk, and a failed index update rolls
// the other one back. Reads are concurrent; writes are serialized per
// source id so interleaved partial updates of one document cannot occur.
//
// The chunk map is the visibility gate: search hits are filtered against
// committed chunks, so an index entry from an in-flight Add is never
// observable through the Catalog.
type Catalog struct {
	mu       sync.RWMutex
	chunks   map[string]*Chunk
	bySource map[string]map[string]struct{}

	dense  DenseIndex
	sparse SparseIndex

	sourceLocks [sourceLockStripes]sync.Mutex
	closed      bool
}

// NewCatalog creates a chunk store over the given indexes.
func NewCatalog(dense DenseIndex, sparse SparseIndex) (*Catalog, error) {
	if dense == nil {
		return nil, fmt.Errorf("dense index is required")
	}
	if sparse == nil {
		return nil, fmt.Errorf("sparse index is required")
	}
	return &Catalog{
		chunks:   make(map[string]*Chunk),
		bySource: make(map[string]map[string]struct{}),
		dense:    dense,
		sparse:   sparse,
	}, nil
}

func (c *Catalog) sourceLock(sourceID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sourceID))
	return &c.sourceLocks[h.Sum32()%sourceLockStripes]
}

// Add inserts or replaces a chunk by id. Both retriever indexes are
// updated before the chunk becomes visible; if either update fails the
// other is rolled back and the previous state is restored (all-or-nothing).
func (c *Catalog) Add(ctx context.Context, chunk *Chunk) error {
	if err := chunk.Validate(); err != nil {
		return recallerrors.New(recallerrors.ErrCodeInvalidChunk, err.Error(), err)
	}
	if len(chunk.Vector) == 0 {
		return recallerrors.New(recallerrors.ErrCodeInvalidChunk,
			fmt.Sprintf("chunk %s: missing embedding vector", chunk.ID), nil)
	}

	lock := c.sourceLock(chunk.SourceID)
	lock.Lock()
	defer lock.Unlock()

	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return recallerrors.New(recallerrors.ErrCodeStoreClosed, "chunk store is closed", nil)
	}
	prev := c.chunks[chunk.ID]
	c.mu.RUnlock()

	if err := c.dense.Add(ctx, chunk.ID, chunk.Vector); err != nil {
		return recallerrors.New(recallerrors.ErrCodeIndexUpdate,
			fmt.Sprintf("dense index update failed for chunk %s", chunk.ID), err)
	}

	if err := c.sparse.Add(ctx, chunk); err != nil {
		// Roll the dense index back to its previous state.
		var rollbackErr error
		if prev != nil {
			rollbackErr = c.dense.Add(ctx, prev.ID, prev.Vector)
		} else {
			rollbackErr = c.dense.Delete(ctx, []string{chunk.ID})
		}
		indexErr := recallerrors.New(recallerrors.ErrCodeIndexUpdate,
			fmt.Sprintf("sparse index update failed for chunk %s", chunk.ID), err)
		if rollbackErr != nil {
			return errors.Join(indexErr, rollbackErr)
		}
		return indexErr
	}

	// Commit: the chunk becomes visible to readers.
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev != nil && prev.SourceID != chunk.SourceID {
		if ids, ok := c.bySource[prev.SourceID]; ok {
			delete(ids, prev.ID)
			if len(ids) == 0 {
				delete(c.bySource, prev.SourceID)
			}
		}
	}
	c.chunks[chunk.ID] = chunk
	if c.bySource[chunk.SourceID] == nil {
		c.bySource[chunk.SourceID] = make(map[string]struct{})
	}
	c.bySource[chunk.SourceID][chunk.ID] = struct{}{}
	return nil
}

// RemoveSource deletes all chunks for a source and retracts them from
// both retriever indexes. Index retraction is best-effort: the chunk map
// is the source of truth, and orphaned index entries are filtered out of
// search results by the visibility gate.
func (c *Catalog) RemoveSource(ctx context.Context, sourceID string) error {
	lock := c.sourceLock(sourceID)
	lock.Lock()
	defer lock.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return recallerrors.New(recallerrors.ErrCodeStoreClosed, "chunk store is closed", nil)
	}
	idSet := c.bySource[sourceID]
	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
		delete(c.chunks, id)
	}
	delete(c.bySource, sourceID)
	c.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}

	var errs []error
	if err := c.dense.Delete(ctx, ids); err != nil {
		errs = append(errs, fmt.Errorf("dense retraction: %w", err))
	}
	if err := c.sparse.Delete(ctx, ids); err != nil {
		errs = append(errs, fmt.Errorf("sparse retraction: %w", err))
	}
	return errors.Join(errs...)
}

// Get returns a committed chunk or a NotFound error.
func (c *Catalog) Get(id string) (*Chunk, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	chunk, ok := c.chunks[id]
	if !ok {
		return nil, recallerrors.NotFound(id)
	}
	return chunk, nil
}

// Count returns the number of committed chunks.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.chunks)
}

// SearchDense runs a nearest-neighbor query, restricted to the given
// source ids when sources is non-empty.
func (c *Catalog) SearchDense(ctx context.Context, vector []float32, k int, sources []string) ([]*DenseResult, error) {
	return c.dense.Search(ctx, vector, k, c.filterFor(sources))
}

// SearchSparse runs a term query, restricted to the given source ids
// when sources is non-empty.
func (c *Catalog) SearchSparse(ctx context.Context, query string, k int, sources []string) ([]*SparseResult, error) {
	return c.sparse.Search(ctx, query, k, c.filterFor(sources))
}

// filterFor builds the search filter enforcing commit visibility and the
// optional source restriction.
func (c *Catalog) filterFor(sources []string) Filter {
	var sourceSet map[string]struct{}
	if len(sources) > 0 {
		sourceSet = make(map[string]struct{}, len(sources))
		for _, s := range sources {
			sourceSet[s] = struct{}{}
		}
	}

	return func(id string) bool {
		c.mu.RLock()
		chunk, ok := c.chunks[id]
		c.mu.RUnlock()
		if !ok {
			return false
		}
		if sourceSet == nil {
			return true
		}
		_, ok = sourceSet[chunk.SourceID]
		return ok
	}
}

// Close tears down the store and both indexes. Callers must ensure no
// readers are in flight.
func (c *Catalog) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.chunks = map[string]*Chunk{}
	c.bySource = map[string]map[string]struct{}{}
	c.mu.Unlock()

	return errors.Join(c.dense.Close(), c.sparse.Close())
}

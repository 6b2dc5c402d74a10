package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/blevesearch/bleve/v2"
)

// BleveSparseIndex is the Bleve-backed sparse retriever. Bleve's standard
// analyzer already lowercases, strips punctuation, and removes English
// stop words, matching the sparse tokenization contract. Score tie-breaks
// by chunk recency are applied after the search since Bleve orders only
// by score.
type BleveSparseIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool

	// startOffsets backs the recency tie-break.
	startOffsets map[string]float64
}

type bleveDocument struct {
	Text string `json:"text"`
}

// NewBleveSparseIndex creates or opens a Bleve sparse index.
// If path is empty, an in-memory index is created.
func NewBleveSparseIndex(path string) (*BleveSparseIndex, error) {
	mapping := bleve.NewIndexMapping()

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(mapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, mapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open bleve index: %w", err)
	}

	return &BleveSparseIndex{
		index:        idx,
		path:         path,
		startOffsets: make(map[string]float64),
	}, nil
}

// Add indexes a chunk's text, replacing any existing document with the same id.
func (b *BleveSparseIndex) Add(ctx context.Context, chunk *Chunk) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}

	if err := b.index.Index(chunk.ID, bleveDocument{Text: chunk.Text}); err != nil {
		return fmt.Errorf("failed to index document %s: %w", chunk.ID, err)
	}
	b.startOffsets[chunk.ID] = chunk.StartOffset
	return nil
}

// Delete removes documents from the index.
func (b *BleveSparseIndex) Delete(ctx context.Context, ids []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
		delete(b.startOffsets, id)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

// Search returns documents matching the query ordered by descending score,
// ties broken by higher start offset then ascending id.
func (b *BleveSparseIndex) Search(ctx context.Context, queryStr string, k int, filter Filter) ([]*SparseResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if k <= 0 || queryStr == "" {
		return []*SparseResult{}, nil
	}

	matchQuery := bleve.NewMatchQuery(queryStr)
	matchQuery.SetField("text")

	searchRequest := bleve.NewSearchRequest(matchQuery)
	// Over-fetch so a filter cannot starve the result set.
	searchRequest.Size = k
	if filter != nil {
		searchRequest.Size = k * 4
	}

	result, err := b.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]*SparseResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		if filter != nil && !filter(hit.ID) {
			continue
		}
		hits = append(hits, &SparseResult{ID: hit.ID, Score: hit.Score})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		oi, oj := b.startOffsets[hits[i].ID], b.startOffsets[hits[j].ID]
		if oi != oj {
			return oi > oj
		}
		return hits[i].ID < hits[j].ID
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Count returns the number of indexed documents.
func (b *BleveSparseIndex) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0
	}
	count, err := b.index.DocCount()
	if err != nil {
		return 0
	}
	return int(count)
}

// Close releases the underlying index.
func (b *BleveSparseIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}

var _ SparseIndex = (*BleveSparseIndex)(nil)

// Package store holds normalized text chunks and the dense and sparse
// indexes built over them. The Catalog is the chunk store; HNSWIndex and
// the sparse backends (TF-IDF in-memory, Bleve) implement the retriever
// contracts behind pluggable interfaces.
package store

import (
	"context"
	"fmt"
)

// Unit describes what Chunk offsets are measured in.
type Unit string

const (
	// UnitChars marks character offsets into a text document.
	UnitChars Unit = "chars"
	// UnitSeconds marks second-granularity timestamps into time-coded media.
	UnitSeconds Unit = "seconds"
)

// Chunk is a retrievable unit of content. Chunks are created once during
// ingestion and are read-only thereafter; they are removed only when their
// source is deleted.
type Chunk struct {
	ID          string            // Unique within a Catalog
	SourceID    string            // Owning document/transcript/ticket
	Text        string            // Normalized chunk text
	Vector      []float32         // Embedding, fixed dimension per Catalog
	StartOffset float64           // Character position or timestamp
	EndOffset   float64           // Inclusive end, >= StartOffset
	Unit        Unit              // chars or seconds
	Metadata    map[string]string // Source label, section title, etc.
}

// Validate checks chunk invariants before insertion.
func (c *Chunk) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("chunk id is empty")
	}
	if c.SourceID == "" {
		return fmt.Errorf("chunk %s: source id is empty", c.ID)
	}
	if c.StartOffset > c.EndOffset {
		return fmt.Errorf("chunk %s: start offset %.2f after end offset %.2f", c.ID, c.StartOffset, c.EndOffset)
	}
	if c.Unit == "" {
		return fmt.Errorf("chunk %s: offset unit not set", c.ID)
	}
	return nil
}

// DenseResult is a single dense (vector) search hit.
type DenseResult struct {
	ID         string
	Similarity float64 // Cosine similarity, -1 to 1
}

// SparseResult is a single sparse (term) search hit.
type SparseResult struct {
	ID    string
	Score float64 // TF-IDF score, >= 0
}

// Filter restricts search hits by chunk id. A nil Filter admits everything.
type Filter func(id string) bool

// DenseIndex is the nearest-neighbor index over chunk embeddings.
// Implementations return at most k hits ordered by descending similarity;
// an empty index yields an empty result, not an error.
type DenseIndex interface {
	Add(ctx context.Context, id string, vector []float32) error
	Delete(ctx context.Context, ids []string) error
	Search(ctx context.Context, vector []float32, k int, filter Filter) ([]*DenseResult, error)
	Count() int
	Close() error
}

// SparseIndex is the inverted term index over chunk text.
// Implementations return at most k hits ordered by descending score with
// ties broken by higher chunk StartOffset (recency) then ascending id.
type SparseIndex interface {
	Add(ctx context.Context, chunk *Chunk) error
	Delete(ctx context.Context, ids []string) error
	Search(ctx context.Context, query string, k int, filter Filter) ([]*SparseResult, error)
	Count() int
	Close() error
}

// MetadataStore persists chunks across process restarts. The engine reads
// only through the Catalog; this store exists for the CLI lifecycle.
type MetadataStore interface {
	SaveChunks(ctx context.Context, chunks []*Chunk) error
	LoadAll(ctx context.Context) ([]*Chunk, error)
	DeleteSource(ctx context.Context, sourceID string) error
	Close() error
}

// ErrDimensionMismatch indicates a vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

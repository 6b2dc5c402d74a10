package store

import (
	"fmt"
)

// SparseBackend selects the sparse retriever implementation.
type SparseBackend string

const (
	// SparseBackendTFIDF is the in-memory TF-IDF index (default).
	// Deterministic scoring, rebuilt from the metadata store at startup.
	SparseBackendTFIDF SparseBackend = "tfidf"

	// SparseBackendBleve is the Bleve inverted index. Persistent on disk,
	// BM25-scored; useful for corpora too large to rebuild at startup.
	SparseBackendBleve SparseBackend = "bleve"
)

// NewSparseIndex creates a SparseIndex for the configured backend.
// path is only used by the bleve backend; empty means in-memory.
func NewSparseIndex(backend string, path string, stopWords []string) (SparseIndex, error) {
	switch SparseBackend(backend) {
	case SparseBackendTFIDF, "":
		return NewTFIDFIndex(stopWords), nil
	case SparseBackendBleve:
		return NewBleveSparseIndex(path)
	default:
		return nil, fmt.Errorf("unknown sparse backend: %s (valid options: tfidf, bleve)", backend)
	}
}

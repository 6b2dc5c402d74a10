// Package embed provides the embedding collaborator used by the dense
// retriever. Backends are pluggable: a deterministic hash embedder that
// needs no network, and an OpenAI-compatible API embedder. Both can be
// wrapped with an LRU cache for repeated query texts.
package embed

import (
	"context"
	"time"
)

// Common embedding constants.
const (
	// DefaultBatchSize is the default batch size for embedding requests.
	DefaultBatchSize = 32

	// DefaultTimeout bounds a single embedding API call.
	DefaultTimeout = 30 * time.Second

	// StaticDimensions is the embedding dimension of the hash embedder.
	StaticDimensions = 256
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier for cache keys and logs.
	ModelName() string

	// Close releases resources.
	Close() error
}

package embed

import (
	"fmt"
	"os"
	"strings"
)

// ProviderType selects an embedding backend.
type ProviderType string

const (
	// ProviderStatic uses hash-based embeddings (default; deterministic,
	// works offline).
	ProviderStatic ProviderType = "static"

	// ProviderOpenAI uses an OpenAI-compatible embeddings API.
	ProviderOpenAI ProviderType = "openai"
)

// FactoryConfig configures embedder construction.
type FactoryConfig struct {
	Provider   ProviderType
	OpenAI     OpenAIConfig
	CacheSize  int
	DisableLRU bool
}

// NewEmbedder creates an embedder for the configured provider. The
// RECALL_EMBEDDER environment variable overrides the provider, and
// results are wrapped with an LRU cache unless disabled.
func NewEmbedder(cfg FactoryConfig) (Embedder, error) {
	provider := cfg.Provider
	if env := os.Getenv("RECALL_EMBEDDER"); env != "" {
		provider = ProviderType(strings.ToLower(env))
	}

	var (
		embedder Embedder
		err      error
	)
	switch provider {
	case ProviderStatic, "":
		embedder = NewStaticEmbedder()
	case ProviderOpenAI:
		embedder, err = NewOpenAIEmbedder(cfg.OpenAI)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (valid options: static, openai)", provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.DisableLRU {
		return embedder, nil
	}
	return NewCachedEmbedder(embedder, cfg.CacheSize), nil
}

package embed

import (
	"context"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	recallerrors "github.com/voxlab/recall/internal/errors"
)

// OpenAIEmbedder calls an OpenAI-compatible embeddings API. Failures are
// reported as retryable embedding-unavailable errors so the engine can
// degrade to sparse-only retrieval instead of failing the query.
type OpenAIEmbedder struct {
	embedder   embeddings.Embedder
	model      string
	dimensions int
	logger     *slog.Logger
}

// OpenAIConfig configures the API embedder.
type OpenAIConfig struct {
	// BaseURL of the OpenAI-compatible endpoint.
	BaseURL string
	// Model is the embedding model name.
	Model string
	// Token is the API token; "none" works for local services.
	Token string
	// Dimensions is the embedding dimension the model produces.
	Dimensions int
}

// NewOpenAIEmbedder creates an embedder over an OpenAI-compatible API.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.Token == "" {
		cfg.Token = "none"
	}

	opts := []openai.Option{
		openai.WithToken(cfg.Token),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, recallerrors.EmbeddingUnavailable(err)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, recallerrors.EmbeddingUnavailable(err)
	}

	return &OpenAIEmbedder{
		embedder:   embedder,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		logger:     slog.Default().With("component", "openai-embedder"),
	}, nil
}

// Embed generates an embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, recallerrors.EmbeddingUnavailable(nil)
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vecs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Warn("embedding request failed", "count", len(texts), "err", err)
		return nil, recallerrors.EmbeddingUnavailable(err)
	}
	return vecs, nil
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

// Close releases resources. The underlying HTTP client needs no teardown.
func (e *OpenAIEmbedder) Close() error {
	return nil
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// Package config loads and validates the recall configuration: YAML
// file, environment overrides, fail-fast validation. Misconfiguration
// (weights not summing to 1, negative thresholds, unknown backends) is
// rejected at load time, never silently clamped.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	recallerrors "github.com/voxlab/recall/internal/errors"
	"github.com/voxlab/recall/internal/search"
)

// Config is the root configuration.
type Config struct {
	Retrieval  RetrievalConfig       `yaml:"retrieval"`
	Temporal   TemporalConfig        `yaml:"temporal"`
	Confidence ConfidenceConfig      `yaml:"confidence"`
	Assembly   AssemblyConfig        `yaml:"assembly"`
	Embedding  EmbeddingConfig       `yaml:"embedding"`
	Sparse     SparseConfig          `yaml:"sparse"`
	Storage    StorageConfig         `yaml:"storage"`
	Logging    LoggingConfig         `yaml:"logging"`
	Categories []search.CategoryRule `yaml:"categories"`
}

// RetrievalConfig controls the retrieval stage.
type RetrievalConfig struct {
	K                  int     `yaml:"k"`
	WeightDense        float64 `yaml:"weight_dense"`
	WeightSparse       float64 `yaml:"weight_sparse"`
	RerankTopN         int     `yaml:"rerank_top_n"`
	RetrieverTimeoutMS int     `yaml:"retriever_timeout_ms"`
}

// TemporalConfig controls the timestamp-anchored selector.
type TemporalConfig struct {
	Tolerance float64 `yaml:"tolerance"`
	Boost     float64 `yaml:"boost"`
}

// ConfidenceConfig controls confidence scoring and escalation.
type ConfidenceConfig struct {
	Margin             float64  `yaml:"margin"`
	Threshold          float64  `yaml:"threshold"`
	Polarity           string   `yaml:"polarity"`
	UncertaintyMarkers []string `yaml:"uncertainty_markers"`
	UncertaintyPenalty float64  `yaml:"uncertainty_penalty"`
}

// AssemblyConfig bounds the assembled context.
type AssemblyConfig struct {
	MaxChunks int `yaml:"max_chunks"`
	MaxChars  int `yaml:"max_chars"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BaseURL    string `yaml:"base_url"`
	Token      string `yaml:"token"`
	CacheSize  int    `yaml:"cache_size"`
}

// SparseConfig selects the sparse retriever backend.
type SparseConfig struct {
	Backend   string `yaml:"backend"`
	IndexPath string `yaml:"index_path"`
}

// StorageConfig locates on-disk state.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	FilePath  string `yaml:"file_path"`
	MaxSizeMB int    `yaml:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files"`
	Stderr    bool   `yaml:"stderr"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".recall")

	return &Config{
		Retrieval: RetrievalConfig{
			K:                  20,
			WeightDense:        0.7,
			WeightSparse:       0.3,
			RerankTopN:         10,
			RetrieverTimeoutMS: 800,
		},
		Temporal: TemporalConfig{
			Tolerance: 30,
			Boost:     1.3,
		},
		Confidence: ConfidenceConfig{
			Margin:             0.05,
			Threshold:          0.3,
			Polarity:           string(search.PolarityEscalateBelow),
			UncertaintyPenalty: 0.2,
		},
		Assembly: AssemblyConfig{
			MaxChunks: 5,
			MaxChars:  4000,
		},
		Embedding: EmbeddingConfig{
			Provider:   "static",
			Dimensions: 256,
			CacheSize:  1000,
		},
		Sparse: SparseConfig{
			Backend: "tfidf",
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Logging: LoggingConfig{
			Level:     "info",
			FilePath:  filepath.Join(dataDir, "recall.log"),
			MaxSizeMB: 10,
			MaxFiles:  3,
		},
	}
}

// Load reads configuration from the given path, falling back to defaults
// when the path is empty and applying environment overrides on top. The
// result is validated; a malformed configuration fails here, before any
// traffic is served.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, recallerrors.New(recallerrors.ErrCodeConfigNotFound,
					"config file not found: "+path, err)
			}
			return nil, recallerrors.ConfigError("failed to read config file", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, recallerrors.ConfigError("failed to parse config file", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets environment variables override file values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("RECALL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("RECALL_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("RECALL_EMBEDDING_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("RECALL_EMBEDDING_BASE_URL"); v != "" {
		c.Embedding.BaseURL = v
	}
	if v := os.Getenv("RECALL_EMBEDDING_TOKEN"); v != "" {
		c.Embedding.Token = v
	}
	if v := os.Getenv("RECALL_SPARSE_BACKEND"); v != "" {
		c.Sparse.Backend = v
	}
	if v := os.Getenv("RECALL_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil {
			c.Retrieval.K = k
		}
	}
}

// weightEpsilon tolerates float representation of weights in YAML.
const weightEpsilon = 1e-9

// Validate checks every field and fails fast on the first violation.
func (c *Config) Validate() error {
	if c.Retrieval.K <= 0 {
		return recallerrors.ConfigError(fmt.Sprintf("retrieval.k must be positive, got %d", c.Retrieval.K), nil)
	}
	if c.Retrieval.WeightDense < 0 || c.Retrieval.WeightSparse < 0 {
		return recallerrors.ConfigError("fusion weights must be non-negative", nil)
	}
	if sum := c.Retrieval.WeightDense + c.Retrieval.WeightSparse; math.Abs(sum-1.0) > weightEpsilon {
		return recallerrors.ConfigError(fmt.Sprintf("fusion weights must sum to 1, got %.4f", sum), nil)
	}
	if c.Retrieval.RerankTopN < 0 {
		return recallerrors.ConfigError("retrieval.rerank_top_n must not be negative", nil)
	}
	if c.Retrieval.RetrieverTimeoutMS <= 0 {
		return recallerrors.ConfigError("retrieval.retriever_timeout_ms must be positive", nil)
	}

	if c.Temporal.Tolerance < 0 {
		return recallerrors.ConfigError("temporal.tolerance must not be negative", nil)
	}
	if c.Temporal.Boost <= 0 {
		return recallerrors.ConfigError("temporal.boost must be positive", nil)
	}

	if c.Confidence.Margin < 0 {
		return recallerrors.ConfigError("confidence.margin must not be negative", nil)
	}
	if c.Confidence.Threshold < 0 || c.Confidence.Threshold > 1 {
		return recallerrors.ConfigError(fmt.Sprintf("confidence.threshold must be in [0,1], got %.4f", c.Confidence.Threshold), nil)
	}
	switch search.EscalationPolarity(c.Confidence.Polarity) {
	case search.PolarityEscalateBelow, search.PolarityAnswerAbove:
	default:
		return recallerrors.ConfigError("confidence.polarity must be escalate-below or answer-above, got "+c.Confidence.Polarity, nil)
	}
	if c.Confidence.UncertaintyPenalty < 0 {
		return recallerrors.ConfigError("confidence.uncertainty_penalty must not be negative", nil)
	}

	if c.Assembly.MaxChunks <= 0 {
		return recallerrors.ConfigError("assembly.max_chunks must be positive", nil)
	}
	if c.Assembly.MaxChars <= 0 {
		return recallerrors.ConfigError("assembly.max_chars must be positive", nil)
	}

	switch c.Embedding.Provider {
	case "static", "openai":
	default:
		return recallerrors.ConfigError("embedding.provider must be static or openai, got "+c.Embedding.Provider, nil)
	}
	if c.Embedding.Dimensions <= 0 {
		return recallerrors.ConfigError(fmt.Sprintf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions), nil)
	}

	switch c.Sparse.Backend {
	case "tfidf", "bleve":
	default:
		return recallerrors.ConfigError("sparse.backend must be tfidf or bleve, got "+c.Sparse.Backend, nil)
	}

	return nil
}

// SearchOptions converts the validated configuration into the engine's
// option set.
func (c *Config) SearchOptions() search.Options {
	return search.Options{
		K:                   c.Retrieval.K,
		WeightDense:         c.Retrieval.WeightDense,
		WeightSparse:        c.Retrieval.WeightSparse,
		RerankTopN:          c.Retrieval.RerankTopN,
		RetrieverTimeout:    time.Duration(c.Retrieval.RetrieverTimeoutMS) * time.Millisecond,
		TimeTolerance:       c.Temporal.Tolerance,
		TemporalBoost:       c.Temporal.Boost,
		ConfidenceMargin:    c.Confidence.Margin,
		ConfidenceThreshold: c.Confidence.Threshold,
		Polarity:            search.EscalationPolarity(c.Confidence.Polarity),
		UncertaintyMarkers:  c.Confidence.UncertaintyMarkers,
		UncertaintyPenalty:  c.Confidence.UncertaintyPenalty,
		MaxChunks:           c.Assembly.MaxChunks,
		MaxChars:            c.Assembly.MaxChars,
	}
}

// DatabasePath returns the SQLite chunk database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Storage.DataDir, "chunks.db")
}

// SparseIndexPath returns the on-disk path for the bleve backend.
func (c *Config) SparseIndexPath() string {
	if c.Sparse.IndexPath != "" {
		return c.Sparse.IndexPath
	}
	return filepath.Join(c.Storage.DataDir, "sparse.bleve")
}

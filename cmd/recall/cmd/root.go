// Package cmd provides the CLI commands for recall.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voxlab/recall/internal/config"
	"github.com/voxlab/recall/internal/embed"
	"github.com/voxlab/recall/internal/ingest"
	"github.com/voxlab/recall/internal/logging"
	"github.com/voxlab/recall/internal/search"
	"github.com/voxlab/recall/internal/store"
	"github.com/voxlab/recall/pkg/version"
)

var (
	configPath     string
	debugMode      bool
	loadedCfg      *config.Config
	loggingCleanup func()
)

// NewRootCmd creates the root command for the recall CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recall",
		Short: "Hybrid retrieval and context synthesis engine",
		Long: `Recall turns a question and a pool of previously chunked content
(documents, transcript segments, historical tickets) into a ranked,
confidence-scored context bundle for answer generation.

Retrieval is hybrid: semantic nearest-neighbor search over embeddings
fused with term-frequency keyword scoring, with optional reranking,
time-range boosting for transcripts, and an escalation decision.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("recall version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (YAML)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(*cobra.Command, []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func setupLogging(*cobra.Command, []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	loadedCfg = cfg

	logCfg := logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      cfg.Logging.FilePath,
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		MaxFiles:      cfg.Logging.MaxFiles,
		WriteToStderr: cfg.Logging.Stderr,
	}
	if debugMode {
		logCfg.Level = "debug"
		logCfg.WriteToStderr = true
	}
	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	loggingCleanup = cleanup
	return nil
}

// app wires the engine's collaborators for one CLI invocation.
type app struct {
	cfg      *config.Config
	catalog  *store.Catalog
	embedder embed.Embedder
	meta     store.MetadataStore
	pipeline *ingest.Pipeline
	engine   *search.Engine
}

// newApp builds the store and engine from the loaded configuration and
// restores persisted chunks.
func newApp(ctx context.Context) (*app, error) {
	cfg := loadedCfg
	if cfg == nil {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, err
		}
	}

	embedder, err := embed.NewEmbedder(embed.FactoryConfig{
		Provider: embed.ProviderType(cfg.Embedding.Provider),
		OpenAI: embed.OpenAIConfig{
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Token:      cfg.Embedding.Token,
			Dimensions: cfg.Embedding.Dimensions,
		},
		CacheSize: cfg.Embedding.CacheSize,
	})
	if err != nil {
		return nil, err
	}

	dense, err := store.NewHNSWIndex(store.HNSWConfig{Dimensions: embedder.Dimensions()})
	if err != nil {
		return nil, err
	}

	sparsePath := ""
	if cfg.Sparse.Backend == "bleve" {
		sparsePath = cfg.SparseIndexPath()
	}
	sparse, err := store.NewSparseIndex(cfg.Sparse.Backend, sparsePath, nil)
	if err != nil {
		return nil, err
	}

	catalog, err := store.NewCatalog(dense, sparse)
	if err != nil {
		return nil, err
	}

	meta, err := store.NewSQLiteStore(cfg.DatabasePath())
	if err != nil {
		return nil, err
	}

	pipeline, err := ingest.NewPipeline(catalog, embedder, ingest.WithMetadataStore(meta))
	if err != nil {
		return nil, err
	}
	if _, err := pipeline.Restore(ctx); err != nil {
		return nil, err
	}

	engine, err := search.NewEngine(catalog, embedder, cfg.SearchOptions(),
		search.WithCategoryRules(cfg.Categories))
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		catalog:  catalog,
		embedder: embedder,
		meta:     meta,
		pipeline: pipeline,
		engine:   engine,
	}, nil
}

// Close tears down the store, indexes, and collaborators.
func (a *app) Close() error {
	return errors.Join(a.catalog.Close(), a.meta.Close(), a.embedder.Close())
}

package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voxlab/recall/internal/embed"
	recallerrors "github.com/voxlab/recall/internal/errors"
	"github.com/voxlab/recall/internal/store"
)

// Engine runs the retrieval pipeline over one chunk catalog. Engines are
// constructed explicitly (no process-wide singletons) so multiple
// independent instances can coexist, e.g. one per tenant or per corpus.
type Engine struct {
	catalog  *store.Catalog
	embedder embed.Embedder
	reranker Reranker
	rules    []CategoryRule
	opts     Options
	logger   *slog.Logger
}

// EngineOption configures optional engine collaborators.
type EngineOption func(*Engine)

// WithReranker attaches the optional precision reranker.
func WithReranker(r Reranker) EngineOption {
	return func(e *Engine) { e.reranker = r }
}

// WithCategoryRules attaches query-category routing rules that seed the
// source filter when the query itself does not carry one.
func WithCategoryRules(rules []CategoryRule) EngineOption {
	return func(e *Engine) { e.rules = rules }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates a retrieval engine. Catalog and embedder are
// required; the reranker is optional.
func NewEngine(catalog *store.Catalog, embedder embed.Embedder, opts Options, options ...EngineOption) (*Engine, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	e := &Engine{
		catalog:  catalog,
		embedder: embedder,
		opts:     opts,
		logger:   slog.Default().With("component", "search-engine"),
	}
	for _, opt := range options {
		opt(e)
	}
	return e, nil
}

// Options returns the engine's retrieval configuration.
func (e *Engine) Options() Options {
	return e.opts
}

// Retrieve runs dense and sparse retrieval in parallel, fuses, reranks,
// and applies the time-range boost. It returns the final candidate
// ranking plus any degraded-mode reasons (embedding unavailable,
// retriever timeout) for the confidence trail.
func (e *Engine) Retrieve(ctx context.Context, query Query) ([]*ScoredCandidate, []string, error) {
	if query.Text == "" {
		return nil, nil, recallerrors.ValidationError("query text is empty", nil)
	}

	sources := query.SourceFilter
	if len(sources) == 0 {
		sources = ClassifyQuery(query.Text, e.rules)
	}

	var (
		denseResults  []*store.DenseResult
		sparseResults []*store.SparseResult
		denseReason   string
		sparseReason  string
	)

	started := time.Now()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		vector, err := e.embedder.Embed(gctx, query.Text)
		if err != nil {
			// Dense retrieval is skipped, never fatal: the pipeline
			// continues sparse-only.
			e.logger.Warn("embedding failed, skipping dense retrieval", "err", err)
			denseReason = "degraded_mode: embedding unavailable, sparse-only retrieval"
			return nil
		}

		tctx, cancel := context.WithTimeout(gctx, e.opts.RetrieverTimeout)
		defer cancel()

		results, err := e.catalog.SearchDense(tctx, vector, e.opts.K, sources)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				e.logger.Warn("dense retriever timed out", "timeout", e.opts.RetrieverTimeout)
				denseReason = "degraded_mode: dense retriever timed out"
				return nil
			}
			return recallerrors.New(recallerrors.ErrCodeSearchFailed, "dense retrieval failed", err)
		}
		denseResults = results
		return nil
	})

	g.Go(func() error {
		tctx, cancel := context.WithTimeout(gctx, e.opts.RetrieverTimeout)
		defer cancel()

		results, err := e.catalog.SearchSparse(tctx, query.Text, e.opts.K, sources)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				e.logger.Warn("sparse retriever timed out", "timeout", e.opts.RetrieverTimeout)
				sparseReason = "degraded_mode: sparse retriever timed out"
				return nil
			}
			return recallerrors.New(recallerrors.ErrCodeSearchFailed, "sparse retrieval failed", err)
		}
		sparseResults = results
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var reasons []string
	if denseReason != "" {
		reasons = append(reasons, denseReason)
	}
	if sparseReason != "" {
		reasons = append(reasons, sparseReason)
	}

	candidates := Fuse(denseResults, sparseResults, e.opts.WeightDense, e.opts.WeightSparse)
	candidates = e.resolveChunks(candidates)
	candidates = Rerank(ctx, e.reranker, query.Text, candidates, e.opts.RerankTopN, e.logger)
	if len(candidates) > e.opts.K {
		candidates = candidates[:e.opts.K]
	}
	candidates = ApplyTimeRange(candidates, query.TimeRange, e.opts.TimeTolerance, e.opts.TemporalBoost)

	e.logger.Debug("retrieval complete",
		"dense_hits", len(denseResults),
		"sparse_hits", len(sparseResults),
		"candidates", len(candidates),
		"duration", time.Since(started))

	return candidates, reasons, nil
}

// RetrieveAndAssemble is the single entry point for callers: it runs the
// full pipeline and returns the assembled context bundle with its
// confidence decision.
func (e *Engine) RetrieveAndAssemble(ctx context.Context, query Query) (*ContextBundle, error) {
	candidates, reasons, err := e.Retrieve(ctx, query)
	if err != nil {
		return nil, err
	}

	confidence := Score(candidates, query.Text, e.opts, reasons...)

	bundle := Assemble([]SourceCandidates{
		{Weight: 1.0, Candidates: candidates},
	}, confidence, e.opts.MaxChunks, e.opts.MaxChars)

	e.logger.Debug("bundle assembled",
		"excerpts", len(bundle.Excerpts),
		"confidence", confidence.Value,
		"escalate", confidence.Escalate)

	return bundle, nil
}

// resolveChunks attaches committed chunks to candidates. A candidate
// whose chunk vanished mid-query (source deleted) is dropped silently:
// retrieval results are best-effort snapshots.
func (e *Engine) resolveChunks(candidates []*ScoredCandidate) []*ScoredCandidate {
	resolved := candidates[:0]
	for _, cand := range candidates {
		chunk, err := e.catalog.Get(cand.ID)
		if err != nil {
			if errors.Is(err, recallerrors.ErrNotFound) {
				e.logger.Debug("dropping vanished chunk", "id", cand.ID)
				continue
			}
			continue
		}
		cand.Chunk = chunk
		resolved = append(resolved, cand)
	}
	return resolved
}

// AssembleMultiSource merges candidate rankings from several independent
// retrieval sources (e.g. historical tickets and a knowledge base) into
// one bundle. Each chunk's combined score is the sum of its weighted
// normalized scores across sources, so a chunk corroborated by more
// than one source outranks an equally-scored single-source chunk.
// Confidence is scored over the combined ranking.
func AssembleMultiSource(queryText string, sources []SourceCandidates, opts Options, extraReasons ...string) *ContextBundle {
	type combined struct {
		cand  *ScoredCandidate
		score float64
	}

	best := make(map[string]combined)
	for _, src := range sources {
		scores := make([]float64, len(src.Candidates))
		for i, cand := range src.Candidates {
			scores[i] = cand.FusedScore
		}
		norm := minMaxNormalize(scores)
		for i, cand := range src.Candidates {
			score := src.Weight * norm[i]
			c, ok := best[cand.ID]
			if !ok {
				best[cand.ID] = combined{cand: cand, score: score}
				continue
			}
			c.score += score
			best[cand.ID] = c
		}
	}

	merged := make([]*ScoredCandidate, 0, len(best))
	for _, c := range best {
		clone := *c.cand
		clone.FusedScore = c.score
		merged = append(merged, &clone)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].FusedScore != merged[j].FusedScore {
			return merged[i].FusedScore > merged[j].FusedScore
		}
		return merged[i].ID < merged[j].ID
	})

	confidence := Score(merged, queryText, opts, extraReasons...)
	return Assemble(sources, confidence, opts.MaxChunks, opts.MaxChars)
}

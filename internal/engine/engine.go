// Package engine is the facade the daemon and CLI call into. It wires
// the similarity scanner, consolidation executor, graph maintenance, and
// persistence together behind a small set of operations whose results
// are plain JSON-serializable values.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/mnemo/internal/consolidate"
	"github.com/harun/mnemo/internal/graph"
	"github.com/harun/mnemo/internal/maintenance"
	"github.com/harun/mnemo/internal/metrics"
	"github.com/harun/mnemo/internal/observability"
	"github.com/harun/mnemo/internal/similarity"
	"github.com/harun/mnemo/internal/store"
	"github.com/harun/mnemo/pkg/embedding"
	"github.com/harun/mnemo/pkg/llm"
	"github.com/harun/mnemo/pkg/quality"
	"github.com/harun/mnemo/pkg/scrub"
)

const lockFileName = "mnemo.lock"

// Config tunes the engine's thresholds and behavior
type Config struct {
	// SimilarityThreshold is the floor for consolidation candidates
	SimilarityThreshold float64

	// MaxCandidates caps one scan's output
	MaxCandidates int

	// MinCorpusSize and MinAge tune the scan guards; zero means the
	// similarity package defaults
	MinCorpusSize int
	MinAge        time.Duration

	// AutoRedact substitutes redacted text instead of refusing when
	// sensitive content is detected
	AutoRedact bool

	// LockDir is where the cross-process lock file lives; defaults to
	// the database's directory
	LockDir string

	// Actor names this process in the audit trail (cli, daemon, scheduler)
	Actor string
}

// Deps are the collaborators the engine composes
type Deps struct {
	Store    store.Store
	Embedder embedding.Provider
	LLM      llm.Provider // nil disables merge and classification
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
}

// Engine owns all engine components. Construct with New, share freely;
// cross-process exclusion is handled by the file lock, in-process callers
// are expected to serialize destructive operations themselves.
type Engine struct {
	cfg      Config
	store    store.Store
	embedder embedding.Provider
	scanner  *scrub.Scanner
	scorer   *quality.Scorer

	similarity *similarity.Engine
	executor   *consolidate.Executor
	classifier *graph.Classifier
	enricher   *graph.Enricher
	linker     *graph.Linker
	pipeline   *maintenance.Pipeline

	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// New wires up an Engine from its dependencies
func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedding provider is required")
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = similarity.DefaultThreshold
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewMetrics()
	}
	if cfg.Actor == "" {
		cfg.Actor = "cli"
	}

	logger := deps.Logger.With().Str("component", "engine").Logger()
	scanner := scrub.NewScanner()
	merger := consolidate.NewMerger(deps.LLM, scanner, cfg.AutoRedact, deps.Logger)
	classifier := graph.NewClassifier(deps.LLM, deps.Logger)
	enricher := graph.NewEnricher(deps.Store, classifier, deps.Logger)
	linker := graph.NewLinker(deps.Store, deps.Logger)

	return &Engine{
		cfg:        cfg,
		store:      deps.Store,
		embedder:   deps.Embedder,
		scanner:    scanner,
		scorer:     quality.NewScorer(),
		similarity: similarity.NewEngine(deps.Logger),
		executor:   consolidate.NewExecutor(deps.Store, merger, deps.Embedder, deps.Logger),
		classifier: classifier,
		enricher:   enricher,
		linker:     linker,
		pipeline:   maintenance.NewPipeline(deps.Store, enricher, linker, deps.Logger),
		metrics:    deps.Metrics,
		logger:     logger,
	}, nil
}

// FindOptions tunes one candidate scan
type FindOptions struct {
	Threshold      float64 `json:"threshold,omitempty"`
	MaxCandidates  int     `json:"max_candidates,omitempty"`
	OverrideGuards bool    `json:"override_guards,omitempty"`
}

// CandidateSet is a scan's outcome
type CandidateSet struct {
	Candidates []consolidate.Candidate `json:"candidates"`
	Scanned    int                     `json:"scanned"`
}

// FindConsolidationCandidates scans live memories for similar pairs and
// classifies each one into an action. Guard violations (corpus too small,
// memories too young) yield an empty set, not an error.
func (e *Engine) FindConsolidationCandidates(ctx context.Context, opts FindOptions) (*CandidateSet, error) {
	start := time.Now()

	memories, err := e.store.ListLive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list live memories: %w", err)
	}

	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = e.cfg.SimilarityThreshold
	}
	maxPairs := opts.MaxCandidates
	if maxPairs <= 0 {
		maxPairs = e.cfg.MaxCandidates
	}

	minCorpus := e.cfg.MinCorpusSize
	if minCorpus <= 0 {
		minCorpus = similarity.DefaultMinCorpusSize
	}

	e.metrics.ScansTotal.Inc()
	if !opts.OverrideGuards && len(memories) < minCorpus {
		e.metrics.ScansSkippedTotal.WithLabelValues("corpus_too_small").Inc()
	}
	pairs, err := e.similarity.Scan(ctx, memories, similarity.Options{
		Threshold:      threshold,
		MaxPairs:       maxPairs,
		OverrideGuards: opts.OverrideGuards,
		MinCorpusSize:  e.cfg.MinCorpusSize,
		MinAge:         e.cfg.MinAge,
	})
	if err != nil {
		e.metrics.ScanErrorsTotal.Inc()
		return nil, fmt.Errorf("similarity scan: %w", err)
	}
	e.metrics.ScanDuration.Observe(time.Since(start).Seconds())

	set := &CandidateSet{Scanned: len(memories), Candidates: make([]consolidate.Candidate, 0, len(pairs))}
	for _, p := range pairs {
		set.Candidates = append(set.Candidates, consolidate.Classify(p.A, p.B, p.Similarity))
	}
	e.metrics.CandidatesFound.Add(float64(len(set.Candidates)))

	e.logger.Info().
		Int("scanned", set.Scanned).
		Int("candidates", len(set.Candidates)).
		Float64("threshold", threshold).
		Msg("candidate scan complete")

	return set, nil
}

// ExecuteConsolidation applies candidates under the cross-process lock.
// Candidates that arrived over a transport carry only ids; their memory
// records are re-hydrated here.
func (e *Engine) ExecuteConsolidation(ctx context.Context, candidates []consolidate.Candidate, opts consolidate.Options) (*consolidate.Result, error) {
	lock, err := maintenance.AcquireLock(e.lockPath(), "consolidation", e.logger)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	if err := e.hydrate(ctx, candidates); err != nil {
		return nil, err
	}

	res, err := e.executor.Execute(ctx, candidates, opts)
	if err != nil {
		return res, err
	}

	if !opts.DryRun {
		e.metrics.ConsolidationsTotal.WithLabelValues("delete_duplicate", "success").Add(float64(res.Deleted))
		e.metrics.ConsolidationsTotal.WithLabelValues("merge", "success").Add(float64(res.Merged))
		e.metrics.ConsolidationsTotal.WithLabelValues("keep_both", "success").Add(float64(res.Kept))
		observability.RecordConsolidationAudit(e.cfg.Actor, "success", map[string]interface{}{
			"processed": res.Processed,
			"deleted":   res.Deleted,
			"merged":    res.Merged,
			"kept":      res.Kept,
		})
	}
	return res, nil
}

// UndoConsolidation reverses one consolidation by its surviving or
// synthetic memory id.
func (e *Engine) UndoConsolidation(ctx context.Context, memoryID int64) (*consolidate.UndoResult, error) {
	res, err := e.executor.Undo(ctx, memoryID)
	if err != nil {
		return nil, err
	}
	e.metrics.UndosTotal.Inc()
	observability.RecordUndoAudit(e.cfg.Actor, "success", map[string]interface{}{
		"memory_id":    memoryID,
		"restored":     res.Restored,
		"hard_deleted": res.HardDeleted,
	})
	return res, nil
}

// EnrichExistingLinks runs the enrichment sweep across the whole graph
func (e *Engine) EnrichExistingLinks(ctx context.Context, opts graph.EnrichOptions) (*graph.EnrichResult, error) {
	res, err := e.enricher.EnrichLinks(ctx, opts)
	if err != nil {
		return nil, err
	}
	e.metrics.LinksEnrichedTotal.Add(float64(res.Enriched))
	return res, nil
}

// EnrichMemoryLinks runs the enrichment sweep for one memory's edges
func (e *Engine) EnrichMemoryLinks(ctx context.Context, memoryID int64) (*graph.EnrichResult, error) {
	res, err := e.enricher.EnrichMemoryLinks(ctx, memoryID, graph.EnrichOptions{})
	if err != nil {
		return nil, err
	}
	e.metrics.LinksEnrichedTotal.Add(float64(res.Enriched))
	return res, nil
}

// DetectCommunities runs label propagation over the current link set
func (e *Engine) DetectCommunities(ctx context.Context, opts graph.CommunityOptions) (*graph.CommunityResult, error) {
	links, err := e.store.AllLinks(ctx)
	if err != nil {
		return nil, err
	}
	return graph.DetectCommunities(links, opts), nil
}

// UpdateCentralityCache recomputes degree centrality and persists it.
// Returns the number of cached scores.
func (e *Engine) UpdateCentralityCache(ctx context.Context) (int, error) {
	links, err := e.store.AllLinks(ctx)
	if err != nil {
		return 0, err
	}
	scores := graph.ComputeCentrality(links)
	if err := e.store.SaveCentrality(ctx, scores); err != nil {
		return 0, err
	}
	return len(scores), nil
}

// ApplyCentralityBoost reranks retrieval results by cached centrality
// and bumps access bookkeeping for each returned memory.
func (e *Engine) ApplyCentralityBoost(ctx context.Context, results []graph.RetrievalResult, weight float64) ([]graph.RetrievalResult, error) {
	boosted, err := graph.ApplyCentralityBoost(ctx, e.store, results, weight)
	if err != nil {
		return nil, err
	}
	for _, r := range boosted {
		if err := e.store.TouchMemory(ctx, r.MemoryID); err != nil {
			e.logger.Warn().Err(err).Int64("memory_id", r.MemoryID).Msg("access bump failed")
		}
	}
	return boosted, nil
}

// GraphCleanup runs the full maintenance pipeline under the
// cross-process lock.
func (e *Engine) GraphCleanup(ctx context.Context, opts maintenance.Options, progress maintenance.Progress) (*maintenance.Result, error) {
	lock, err := maintenance.AcquireLock(e.lockPath(), "maintenance", e.logger)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	start := time.Now()
	res, err := e.pipeline.Run(ctx, opts, progress)
	if err != nil {
		e.metrics.MaintenanceRunsTotal.WithLabelValues("error").Inc()
		observability.RecordMaintenanceAudit(e.cfg.Actor, "failure", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, err
	}
	e.metrics.MaintenanceRunsTotal.WithLabelValues("success").Inc()
	e.metrics.MaintenanceRunDuration.Observe(time.Since(start).Seconds())
	if !opts.DryRun {
		e.metrics.LinksPrunedTotal.Add(float64(res.Pruned))
		e.metrics.LinksEnrichedTotal.Add(float64(res.Enriched))
		e.metrics.OrphansReconnectedTotal.Add(float64(res.OrphansConnected))
		observability.RecordMaintenanceAudit(e.cfg.Actor, "success", map[string]interface{}{
			"pruned":            res.Pruned,
			"enriched":          res.Enriched,
			"orphans_connected": res.OrphansConnected,
		})
	}
	return res, nil
}

// hydrate fills in memory records for candidates that carry only ids
func (e *Engine) hydrate(ctx context.Context, candidates []consolidate.Candidate) error {
	for i := range candidates {
		if candidates[i].Memory1 == nil {
			m, err := e.store.GetMemory(ctx, candidates[i].ID1)
			if err != nil {
				return fmt.Errorf("hydrate memory %d: %w", candidates[i].ID1, err)
			}
			candidates[i].Memory1 = m
		}
		if candidates[i].Memory2 == nil {
			m, err := e.store.GetMemory(ctx, candidates[i].ID2)
			if err != nil {
				return fmt.Errorf("hydrate memory %d: %w", candidates[i].ID2, err)
			}
			candidates[i].Memory2 = m
		}
	}
	return nil
}

func (e *Engine) lockPath() string {
	dir := e.cfg.LockDir
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, lockFileName)
}

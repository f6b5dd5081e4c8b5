package consolidate

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/harun/mnemo/internal/store"
	"github.com/harun/mnemo/pkg/embedding"
)

// Executor applies consolidation candidates against the store. Candidates
// are processed sequentially; one failure is recorded and the batch moves
// on, so a bad pair never blocks the rest.
type Executor struct {
	store    store.Store
	merger   *Merger
	embedder embedding.Provider
	logger   zerolog.Logger
}

// Options controls a consolidation run
type Options struct {
	// DryRun reports what would happen without writing anything
	DryRun bool

	// MergeWithLLM enables the LLM merge path. When false (or the merger
	// has no provider), merge candidates degrade to a similar_to link.
	MergeWithLLM bool
}

// Result summarizes a consolidation run
type Result struct {
	Processed int      `json:"processed"`
	Deleted   int      `json:"deleted"`
	Merged    int      `json:"merged"`
	Kept      int      `json:"kept"`
	Errors    []string `json:"errors,omitempty"`
	DryRun    bool     `json:"dry_run"`

	// MergedIDs are the synthetic memories created by LLM merges, in
	// creation order. Callers keep these for undo.
	MergedIDs []int64 `json:"merged_ids,omitempty"`
}

// NewExecutor builds an Executor. merger may be nil when no LLM is
// configured; embedder is required only for the LLM merge path.
func NewExecutor(s store.Store, merger *Merger, embedder embedding.Provider, logger zerolog.Logger) *Executor {
	return &Executor{
		store:    s,
		merger:   merger,
		embedder: embedder,
		logger:   logger.With().Str("component", "consolidate").Logger(),
	}
}

// Execute applies each candidate in order. Individual candidate failures
// are accumulated in Result.Errors rather than aborting the batch; only a
// cancelled context stops the run early.
func (e *Executor) Execute(ctx context.Context, candidates []Candidate, opts Options) (*Result, error) {
	res := &Result{DryRun: opts.DryRun}

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Processed++

		var err error
		switch c.Action {
		case ActionDeleteDuplicate:
			err = e.deleteDuplicate(ctx, c, opts, res)
		case ActionMerge:
			err = e.merge(ctx, c, opts, res)
		case ActionKeepBoth:
			err = e.keepBoth(ctx, c, opts, res)
		default:
			err = fmt.Errorf("unknown action %q", c.Action)
		}
		if err != nil {
			e.logger.Warn().Err(err).
				Int64("id1", c.ID1).Int64("id2", c.ID2).
				Str("action", string(c.Action)).
				Msg("candidate failed")
			res.Errors = append(res.Errors, fmt.Sprintf("pair (%d,%d): %v", c.ID1, c.ID2, err))
		}
	}

	e.logger.Info().
		Int("processed", res.Processed).
		Int("deleted", res.Deleted).
		Int("merged", res.Merged).
		Int("kept", res.Kept).
		Int("errors", len(res.Errors)).
		Bool("dry_run", opts.DryRun).
		Msg("consolidation run complete")

	return res, nil
}

// deleteDuplicate soft-invalidates the dropped memory after re-pointing
// its links at the keeper. The supersedes edge from keeper to dropped is
// the undo trail.
func (e *Executor) deleteDuplicate(ctx context.Context, c Candidate, opts Options, res *Result) error {
	if opts.DryRun {
		res.Deleted++
		return nil
	}

	uow, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback()

	// Transfer before invalidation so a crash mid-way leaves the dropped
	// memory recoverable with its edges intact on the keeper.
	if _, err := uow.TransferLinks(ctx, c.DropID, c.KeepID); err != nil {
		return fmt.Errorf("transfer links: %w", err)
	}
	if _, err := uow.CreateLink(ctx, c.KeepID, c.DropID, store.RelationSupersedes, 1.0); err != nil && !errors.Is(err, store.ErrDuplicateLink) {
		return fmt.Errorf("create supersedes link: %w", err)
	}
	if err := uow.InvalidateMemory(ctx, c.DropID, c.KeepID); err != nil {
		return fmt.Errorf("invalidate %d: %w", c.DropID, err)
	}
	if err := uow.Commit(); err != nil {
		return err
	}

	res.Deleted++
	return nil
}

// merge asks the LLM for combined content and, on success, replaces both
// memories with a synthetic one. Any failure along the way degrades to
// keepBoth: no data is ever lost because a merge did not happen.
func (e *Executor) merge(ctx context.Context, c Candidate, opts Options, res *Result) error {
	if !opts.MergeWithLLM || !e.merger.Available() {
		return e.keepBoth(ctx, c, opts, res)
	}

	if opts.DryRun {
		// Upper bound: the LLM is not consulted on a dry run
		res.Merged++
		return nil
	}

	merged := e.merger.MergeContent(ctx, c.Memory1.Content, c.Memory2.Content)
	if merged == "" {
		return e.keepBoth(ctx, c, opts, res)
	}

	vec, err := e.embedder.GenerateEmbedding(ctx, merged)
	if err != nil {
		e.logger.Warn().Err(err).Msg("embedding merged content failed, falling back to link")
		return e.keepBoth(ctx, c, opts, res)
	}

	id, err := e.applyMerge(ctx, c, merged, vec)
	if err != nil {
		return err
	}

	res.Merged++
	res.MergedIDs = append(res.MergedIDs, id)
	return nil
}

// applyMerge runs the five-step merge sequence in one unit of work:
// create the synthetic memory, transfer both originals' links onto it,
// add supersedes edges to both, then invalidate both pointing at it.
func (e *Executor) applyMerge(ctx context.Context, c Candidate, content string, vec []float32) (int64, error) {
	uow, err := e.store.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer uow.Rollback()

	m := &store.Memory{
		Content:      content,
		Tags:         unionTags(c.Memory1.Tags, c.Memory2.Tags),
		Source:       store.SourceConsolidation,
		Embedding:    vec,
		QualityScore: averageQuality(c.Memory1, c.Memory2),
	}
	if err := uow.CreateMemory(ctx, m); err != nil {
		return 0, fmt.Errorf("create merged memory: %w", err)
	}

	for _, id := range []int64{c.ID1, c.ID2} {
		if _, err := uow.TransferLinks(ctx, id, m.ID); err != nil {
			return 0, fmt.Errorf("transfer links from %d: %w", id, err)
		}
	}
	for _, id := range []int64{c.ID1, c.ID2} {
		if _, err := uow.CreateLink(ctx, m.ID, id, store.RelationSupersedes, 1.0); err != nil && !errors.Is(err, store.ErrDuplicateLink) {
			return 0, fmt.Errorf("create supersedes link to %d: %w", id, err)
		}
	}
	for _, id := range []int64{c.ID1, c.ID2} {
		if err := uow.InvalidateMemory(ctx, id, m.ID); err != nil {
			return 0, fmt.Errorf("invalidate %d: %w", id, err)
		}
	}

	if err := uow.Commit(); err != nil {
		return 0, err
	}
	return m.ID, nil
}

// keepBoth records the relationship as a similar_to edge weighted by the
// measured similarity. An already-existing link is fine.
func (e *Executor) keepBoth(ctx context.Context, c Candidate, opts Options, res *Result) error {
	if opts.DryRun {
		res.Kept++
		return nil
	}

	if _, err := e.store.CreateLink(ctx, c.ID1, c.ID2, store.RelationSimilarTo, c.Similarity); err != nil && !errors.Is(err, store.ErrDuplicateLink) {
		return fmt.Errorf("create similar_to link: %w", err)
	}
	res.Kept++
	return nil
}

func unionTags(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, t := range a {
		seen[t] = struct{}{}
	}
	for _, t := range b {
		seen[t] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// averageQuality averages the scores that exist; two unscored memories
// produce an unscored merge.
func averageQuality(m1, m2 *store.Memory) *float64 {
	switch {
	case m1.QualityScore != nil && m2.QualityScore != nil:
		avg := (*m1.QualityScore + *m2.QualityScore) / 2
		return &avg
	case m1.QualityScore != nil:
		v := *m1.QualityScore
		return &v
	case m2.QualityScore != nil:
		v := *m2.QualityScore
		return &v
	default:
		return nil
	}
}

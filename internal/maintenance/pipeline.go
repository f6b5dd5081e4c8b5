package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/mnemo/internal/graph"
	"github.com/harun/mnemo/internal/store"
)

// DefaultPruneThreshold: unenriched similar_to edges below this weight
// are noise from auto-linking and get pruned
const DefaultPruneThreshold = 0.75

// Step identifies one pipeline stage in progress events
type Step string

const (
	StepLoad        Step = "load"
	StepPrune       Step = "prune"
	StepEnrich      Step = "enrich"
	StepOrphans     Step = "orphans"
	StepContext     Step = "context"
	StepCommunities Step = "communities"
	StepCentrality  Step = "centrality"
)

// Progress receives one event per pipeline stage. May be nil.
type Progress func(step Step, detail string)

// Options controls one pipeline run. Steps execute strictly in order
// load, prune, enrich, orphans, context, communities, centrality; each
// mutation step can be skipped independently.
type Options struct {
	DryRun bool

	PruneThreshold  float64 // default DefaultPruneThreshold
	EnrichLimit     int     // 0 = no cap
	OrphanThreshold float64 // default graph.DefaultAutoLinkThreshold
	OrphanMaxLinks  int     // default graph.DefaultMaxAutoLinks
	ContextMinTags  int     // default graph.DefaultMinSharedTags

	SkipPrune       bool
	SkipEnrich      bool
	SkipOrphans     bool
	SkipContext     bool
	SkipCommunities bool
	SkipCentrality  bool
}

// Result summarizes one pipeline run. In dry-run mode Pruned is exact,
// Enriched and OrphansConnected are estimates of what would be
// processed, and the analytics fields hold -1 since they need a
// consistent post-mutation graph.
type Result struct {
	LinksLoaded      int      `json:"links_loaded"`
	Pruned           int      `json:"pruned"`
	Enriched         int      `json:"enriched"`
	OrphansConnected int      `json:"orphans_connected"`
	ContextLinks     int      `json:"context_links"`
	Communities      int      `json:"communities"`
	Isolated         int      `json:"isolated"`
	CentralityScores int      `json:"centrality_scores"`
	DryRun           bool     `json:"dry_run"`
	Duration         string   `json:"duration"`
	Errors           []string `json:"errors,omitempty"`
}

// Pipeline composes pruning, enrichment, orphan reconnection, and the
// graph analytics into one ordered run.
type Pipeline struct {
	store    store.Store
	enricher *graph.Enricher
	linker   *graph.Linker
	logger   zerolog.Logger
}

func NewPipeline(s store.Store, enricher *graph.Enricher, linker *graph.Linker, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:    s,
		enricher: enricher,
		linker:   linker,
		logger:   logger.With().Str("component", "maintenance").Logger(),
	}
}

// Run executes the pipeline. Persistence failures abort the run; single
// item failures inside a step are accumulated in Result.Errors. Running
// twice with no intervening writes prunes 0 and reconnects 0 orphans the
// second time.
func (p *Pipeline) Run(ctx context.Context, opts Options, progress Progress) (*Result, error) {
	start := time.Now()
	if opts.PruneThreshold <= 0 {
		opts.PruneThreshold = DefaultPruneThreshold
	}
	if progress == nil {
		progress = func(Step, string) {}
	}

	res := &Result{DryRun: opts.DryRun, Communities: -1, Isolated: -1, CentralityScores: -1}

	// load
	links, err := p.store.AllLinks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load links: %w", err)
	}
	res.LinksLoaded = len(links)
	progress(StepLoad, fmt.Sprintf("%d links", len(links)))

	// prune
	if !opts.SkipPrune {
		if err := p.prune(ctx, links, opts, res); err != nil {
			return nil, err
		}
		progress(StepPrune, fmt.Sprintf("%d pruned", res.Pruned))
	}

	// enrich
	if !opts.SkipEnrich {
		if err := p.enrich(ctx, opts, res); err != nil {
			return nil, err
		}
		progress(StepEnrich, fmt.Sprintf("%d enriched", res.Enriched))
	}

	// orphans
	if !opts.SkipOrphans {
		if err := p.orphans(ctx, opts, res); err != nil {
			return nil, err
		}
		progress(StepOrphans, fmt.Sprintf("%d reconnected", res.OrphansConnected))
	}

	// context
	if !opts.SkipContext {
		if err := p.contextLinks(ctx, opts, res); err != nil {
			return nil, err
		}
		progress(StepContext, fmt.Sprintf("%d context links", res.ContextLinks))
	}

	// communities and centrality need the post-mutation graph, so a dry
	// run reports them as unknown
	if !opts.DryRun {
		current, err := p.store.AllLinks(ctx)
		if err != nil {
			return nil, fmt.Errorf("reload links: %w", err)
		}

		if !opts.SkipCommunities {
			cr := graph.DetectCommunities(current, graph.CommunityOptions{})
			res.Communities = len(cr.Communities)
			res.Isolated = cr.Isolated
			progress(StepCommunities, fmt.Sprintf("%d communities, %d isolated", res.Communities, res.Isolated))
		}

		if !opts.SkipCentrality {
			scores := graph.ComputeCentrality(current)
			if err := p.store.SaveCentrality(ctx, scores); err != nil {
				return nil, fmt.Errorf("save centrality: %w", err)
			}
			res.CentralityScores = len(scores)
			progress(StepCentrality, fmt.Sprintf("%d scores cached", res.CentralityScores))
		}
	}

	res.Duration = time.Since(start).Round(time.Millisecond).String()
	p.logger.Info().
		Int("links", res.LinksLoaded).
		Int("pruned", res.Pruned).
		Int("enriched", res.Enriched).
		Int("orphans_connected", res.OrphansConnected).
		Int("context_links", res.ContextLinks).
		Bool("dry_run", opts.DryRun).
		Str("duration", res.Duration).
		Msg("maintenance run complete")

	return res, nil
}

// prune deletes weak unenriched similar_to edges. Typed relations and
// enriched edges survive regardless of weight. The dry-run count is
// exact: the same selection runs, only the delete is withheld.
func (p *Pipeline) prune(ctx context.Context, links []*store.Link, opts Options, res *Result) error {
	for _, l := range links {
		if l.Relation != store.RelationSimilarTo || l.LLMEnriched || l.Weight >= opts.PruneThreshold {
			continue
		}
		if !opts.DryRun {
			if err := p.store.DeleteLink(ctx, l.ID); err != nil {
				return fmt.Errorf("prune link %d: %w", l.ID, err)
			}
		}
		res.Pruned++
	}
	return nil
}

func (p *Pipeline) enrich(ctx context.Context, opts Options, res *Result) error {
	eo := graph.EnrichOptions{Limit: opts.EnrichLimit}
	if opts.DryRun {
		n, err := p.enricher.Enrichable(ctx, eo)
		if err != nil {
			return fmt.Errorf("estimate enrichable: %w", err)
		}
		res.Enriched = n
		return nil
	}
	er, err := p.enricher.EnrichLinks(ctx, eo)
	if err != nil {
		return fmt.Errorf("enrich: %w", err)
	}
	res.Enriched = er.Enriched
	res.Errors = append(res.Errors, er.Errors...)
	return nil
}

// contextLinks creates related edges between memories that share tags.
// The dry-run count is an upper bound: pairs that clear the tag
// threshold, including ones already linked.
func (p *Pipeline) contextLinks(ctx context.Context, opts Options, res *Result) error {
	if opts.DryRun {
		n, err := p.linker.ContextCandidates(ctx, opts.ContextMinTags)
		if err != nil {
			return fmt.Errorf("estimate context links: %w", err)
		}
		res.ContextLinks = n
		return nil
	}
	created, err := p.linker.LinkByContext(ctx, opts.ContextMinTags)
	if err != nil {
		return fmt.Errorf("context links: %w", err)
	}
	res.ContextLinks = created
	return nil
}

func (p *Pipeline) orphans(ctx context.Context, opts Options, res *Result) error {
	ids, err := p.store.OrphanMemoryIDs(ctx)
	if err != nil {
		return fmt.Errorf("list orphans: %w", err)
	}
	if opts.DryRun {
		// Estimate: every orphan is a reconnection candidate, though a
		// live run may find no neighbor above the threshold
		res.OrphansConnected = len(ids)
		return nil
	}
	for _, id := range ids {
		created, err := p.linker.AutoLink(ctx, id, opts.OrphanThreshold, opts.OrphanMaxLinks)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("orphan %d: %v", id, err))
			continue
		}
		if created > 0 {
			res.OrphansConnected++
		}
	}
	return nil
}

package graph

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/harun/mnemo/internal/store"
)

// enrichBatchSize is how many pairs go into one classification call,
// keeping each prompt comfortably inside the batch token budget
const enrichBatchSize = 10

// EnrichOptions controls an enrichment sweep
type EnrichOptions struct {
	// Limit caps how many links are classified in one sweep; 0 means no cap
	Limit int

	// Force re-classifies links that were already enriched
	Force bool
}

// EnrichResult summarizes an enrichment sweep
type EnrichResult struct {
	Scanned  int      `json:"scanned"`
	Enriched int      `json:"enriched"`
	Upgraded int      `json:"upgraded"`
	Errors   []string `json:"errors,omitempty"`
}

// Enricher upgrades similar_to edges to typed relations via the classifier
type Enricher struct {
	store      store.Store
	classifier *Classifier
	logger     zerolog.Logger
}

func NewEnricher(s store.Store, classifier *Classifier, logger zerolog.Logger) *Enricher {
	return &Enricher{
		store:      s,
		classifier: classifier,
		logger:     logger.With().Str("component", "enricher").Logger(),
	}
}

// EnrichLinks sweeps all similar_to edges that have not been enriched
// yet (or all of them, when forced), classifying them in batches of
// enrichBatchSize per LLM call. An edge is marked enriched even when
// classification fell back, so a broken backend cannot cause repeated
// spend on the same edge.
func (e *Enricher) EnrichLinks(ctx context.Context, opts EnrichOptions) (*EnrichResult, error) {
	links, err := e.store.AllLinks(ctx)
	if err != nil {
		return nil, err
	}
	return e.enrich(ctx, links, opts)
}

// EnrichMemoryLinks runs the same sweep restricted to one memory's edges
func (e *Enricher) EnrichMemoryLinks(ctx context.Context, memoryID int64, opts EnrichOptions) (*EnrichResult, error) {
	links, err := e.store.LinksFor(ctx, memoryID)
	if err != nil {
		return nil, err
	}
	return e.enrich(ctx, links, opts)
}

// Enrichable reports how many links a sweep with opts would consider.
// Used by dry runs, which must estimate without classifying.
func (e *Enricher) Enrichable(ctx context.Context, opts EnrichOptions) (int, error) {
	links, err := e.store.AllLinks(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, l := range links {
		if eligible(l, opts.Force) {
			n++
			if opts.Limit > 0 && n >= opts.Limit {
				break
			}
		}
	}
	return n, nil
}

func (e *Enricher) enrich(ctx context.Context, links []*store.Link, opts EnrichOptions) (*EnrichResult, error) {
	res := &EnrichResult{}

	var batch []Pair
	byKey := make(map[string]*store.Link)

	// A lone pair goes through the single-pair prompt; anything more
	// batches into one call
	flush := func() {
		if len(batch) == 0 {
			return
		}
		var classified map[string]Classification
		if len(batch) == 1 {
			classified = map[string]Classification{
				batch[0].Key: e.classifier.ClassifyRelation(ctx, batch[0].Content1, batch[0].Content2),
			}
		} else {
			classified = e.classifier.ClassifyBatch(ctx, batch)
		}
		for _, p := range batch {
			l := byKey[p.Key]
			cls := classified[p.Key]
			if err := e.store.UpdateLinkRelation(ctx, l.ID, cls.Relation, true); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("link %d: update: %v", l.ID, err))
				continue
			}
			res.Enriched++
			if cls.Relation != store.RelationSimilarTo {
				res.Upgraded++
			}
		}
		batch = batch[:0]
	}

	for _, l := range links {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !eligible(l, opts.Force) {
			continue
		}
		if opts.Limit > 0 && res.Scanned >= opts.Limit {
			break
		}
		res.Scanned++

		source, err := e.store.GetMemory(ctx, l.SourceID)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("link %d: load source: %v", l.ID, err))
			continue
		}
		target, err := e.store.GetMemory(ctx, l.TargetID)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("link %d: load target: %v", l.ID, err))
			continue
		}

		key := strconv.FormatInt(l.ID, 10)
		byKey[key] = l
		batch = append(batch, Pair{Key: key, Content1: source.Content, Content2: target.Content})
		if len(batch) >= enrichBatchSize {
			flush()
		}
	}
	flush()

	e.logger.Info().
		Int("scanned", res.Scanned).
		Int("enriched", res.Enriched).
		Int("upgraded", res.Upgraded).
		Int("errors", len(res.Errors)).
		Msg("enrichment sweep complete")

	return res, nil
}

func eligible(l *store.Link, force bool) bool {
	if l.Relation != store.RelationSimilarTo {
		return false
	}
	return force || !l.LLMEnriched
}

package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/harun/mnemo/internal/store"
)

const (
	// DefaultAutoLinkThreshold is the similarity floor for auto-created
	// similar_to edges. Deliberately lower than the consolidation
	// threshold: linking is cheap and reversible.
	DefaultAutoLinkThreshold = 0.6

	// DefaultMaxAutoLinks caps edges created per memory in one pass
	DefaultMaxAutoLinks = 3

	// DefaultMinSharedTags is how many tags two memories must share
	// before contextual proximity links them
	DefaultMinSharedTags = 2
)

// Linker creates graph edges from embedding proximity and shared context
type Linker struct {
	store  store.Store
	logger zerolog.Logger
}

func NewLinker(s store.Store, logger zerolog.Logger) *Linker {
	return &Linker{
		store:  s,
		logger: logger.With().Str("component", "linker").Logger(),
	}
}

// AutoLink connects a memory to its nearest live neighbors above the
// threshold, up to maxLinks new similar_to edges. Existing edges count
// against nothing and are skipped. Returns the number of edges created.
func (l *Linker) AutoLink(ctx context.Context, memoryID int64, threshold float64, maxLinks int) (int, error) {
	if threshold <= 0 {
		threshold = DefaultAutoLinkThreshold
	}
	if maxLinks <= 0 {
		maxLinks = DefaultMaxAutoLinks
	}

	m, err := l.store.GetMemory(ctx, memoryID)
	if err != nil {
		return 0, fmt.Errorf("load memory %d: %w", memoryID, err)
	}
	if len(m.Embedding) == 0 {
		return 0, fmt.Errorf("memory %d has no embedding", memoryID)
	}

	// One extra so the memory's own vector hit does not eat the cap
	neighbors, err := l.store.NearestNeighbors(ctx, m.Embedding, maxLinks+1, threshold)
	if err != nil {
		return 0, fmt.Errorf("nearest neighbors for %d: %w", memoryID, err)
	}

	created := 0
	for _, n := range neighbors {
		if created >= maxLinks {
			break
		}
		if n.MemoryID == memoryID {
			continue
		}
		_, err := l.store.CreateLink(ctx, memoryID, n.MemoryID, store.RelationSimilarTo, n.Similarity)
		if errors.Is(err, store.ErrDuplicateLink) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("link %d -> %d: %w", memoryID, n.MemoryID, err)
		}
		created++
	}

	l.logger.Debug().Int64("memory_id", memoryID).Int("created", created).Msg("auto-link complete")
	return created, nil
}

// LinkByContext creates related edges between live memories that share
// at least minSharedTags tags, capturing "mentioned together"
// relationships that embedding similarity misses. Edge weight is the
// Jaccard overlap of the two tag sets. Existing edges are left alone.
func (l *Linker) LinkByContext(ctx context.Context, minSharedTags int) (int, error) {
	if minSharedTags <= 0 {
		minSharedTags = DefaultMinSharedTags
	}

	memories, err := l.store.ListLive(ctx)
	if err != nil {
		return 0, err
	}

	created := 0
	for i := 0; i < len(memories); i++ {
		if len(memories[i].Tags) < minSharedTags {
			continue
		}
		for j := i + 1; j < len(memories); j++ {
			shared, union := tagOverlap(memories[i].Tags, memories[j].Tags)
			if shared < minSharedTags {
				continue
			}
			weight := float64(shared) / float64(union)
			_, err := l.store.CreateLink(ctx, memories[i].ID, memories[j].ID, store.RelationRelated, weight)
			if errors.Is(err, store.ErrDuplicateLink) {
				continue
			}
			if err != nil {
				return created, fmt.Errorf("context link %d -> %d: %w", memories[i].ID, memories[j].ID, err)
			}
			created++
		}
	}

	l.logger.Debug().Int("created", created).Msg("contextual linking complete")
	return created, nil
}

// ContextCandidates reports how many memory pairs clear the shared-tag
// threshold. Pairs that are already linked still count, so this is an
// upper bound on what LinkByContext would create. Used by dry runs.
func (l *Linker) ContextCandidates(ctx context.Context, minSharedTags int) (int, error) {
	if minSharedTags <= 0 {
		minSharedTags = DefaultMinSharedTags
	}

	memories, err := l.store.ListLive(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for i := 0; i < len(memories); i++ {
		if len(memories[i].Tags) < minSharedTags {
			continue
		}
		for j := i + 1; j < len(memories); j++ {
			if shared, _ := tagOverlap(memories[i].Tags, memories[j].Tags); shared >= minSharedTags {
				n++
			}
		}
	}
	return n, nil
}

func tagOverlap(a, b []string) (shared, union int) {
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	union = len(set)
	seen := make(map[string]bool, len(b))
	for _, t := range b {
		if seen[t] {
			continue
		}
		seen[t] = true
		if set[t] {
			shared++
		} else {
			union++
		}
	}
	return shared, union
}

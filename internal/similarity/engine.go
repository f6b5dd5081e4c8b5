// Package similarity finds pairs of live memories whose embeddings are
// close enough to consolidate.
package similarity

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/mnemo/internal/store"
	"github.com/harun/mnemo/pkg/embedding"
)

const (
	// DefaultThreshold is the minimum similarity for a pair to be reported
	DefaultThreshold = 0.92

	// DefaultMinCorpusSize guards against consolidating a corpus too small
	// for duplicates to be meaningful
	DefaultMinCorpusSize = 20

	// DefaultMinAge protects fresh memories from premature consolidation
	DefaultMinAge = 7 * 24 * time.Hour

	// parallelPairThreshold is the pair count at which the scan moves to
	// the worker pool; below it, pool spin-up costs more than it saves
	parallelPairThreshold = 1000

	// maxWorkers caps the pool regardless of CPU count
	maxWorkers = 4
)

// Pair is a scored candidate pair
type Pair struct {
	A          *store.Memory
	B          *store.Memory
	Similarity float64
}

// Options configures a scan
type Options struct {
	Threshold      float64
	MaxPairs       int  // 0 = unlimited
	OverrideGuards bool // bypass corpus-size and age guards

	MinCorpusSize int
	MinAge        time.Duration
}

func (o *Options) defaults() {
	if o.Threshold <= 0 {
		o.Threshold = DefaultThreshold
	}
	if o.MinCorpusSize <= 0 {
		o.MinCorpusSize = DefaultMinCorpusSize
	}
	if o.MinAge <= 0 {
		o.MinAge = DefaultMinAge
	}
}

// Engine computes pairwise similarity over memory embeddings
type Engine struct {
	logger zerolog.Logger
}

// NewEngine creates a similarity engine
func NewEngine(logger zerolog.Logger) *Engine {
	return &Engine{logger: logger.With().Str("component", "similarity").Logger()}
}

// Scan returns all pairs of the given memories at or above the threshold,
// sorted by similarity descending and truncated to MaxPairs. Guard
// violations return an empty result, not an error.
//
// A worker failure aborts the whole scan; callers treat that as "no
// candidates this round". Partial results are never returned (see
// DESIGN.md for the choice).
func (e *Engine) Scan(ctx context.Context, memories []*store.Memory, opts Options) ([]Pair, error) {
	opts.defaults()

	if !opts.OverrideGuards {
		if len(memories) < opts.MinCorpusSize {
			e.logger.Debug().
				Int("corpus", len(memories)).
				Int("min", opts.MinCorpusSize).
				Msg("Corpus below minimum size, skipping scan")
			return nil, nil
		}

		cutoff := time.Now().Add(-opts.MinAge)
		aged := make([]*store.Memory, 0, len(memories))
		for _, m := range memories {
			if m.CreatedAt.Before(cutoff) {
				aged = append(aged, m)
			}
		}
		memories = aged
	}

	pairCount := len(memories) * (len(memories) - 1) / 2
	if pairCount == 0 {
		return nil, nil
	}

	workers := workerCount()
	var pairs []Pair
	var err error
	if pairCount >= parallelPairThreshold && workers > 1 {
		pairs, err = e.scanParallel(ctx, memories, opts.Threshold, workers)
	} else {
		pairs, err = e.scanSequential(ctx, memories, opts.Threshold)
	}
	if err != nil {
		return nil, err
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].Similarity > pairs[j].Similarity
	})
	if opts.MaxPairs > 0 && len(pairs) > opts.MaxPairs {
		pairs = pairs[:opts.MaxPairs]
	}

	e.logger.Debug().
		Int("memories", len(memories)).
		Int("pairs_checked", pairCount).
		Int("pairs_found", len(pairs)).
		Msg("Similarity scan completed")

	return pairs, nil
}

func workerCount() int {
	n := runtime.NumCPU() - 1
	if n > maxWorkers {
		n = maxWorkers
	}
	if n < 1 {
		n = 1
	}
	return n
}

func (e *Engine) scanSequential(ctx context.Context, memories []*store.Memory, threshold float64) ([]Pair, error) {
	var pairs []Pair
	for i := 0; i < len(memories); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j := i + 1; j < len(memories); j++ {
			sim, err := pairSimilarity(memories[i], memories[j])
			if err != nil {
				return nil, err
			}
			if sim >= threshold {
				pairs = append(pairs, Pair{A: memories[i], B: memories[j], Similarity: sim})
			}
		}
	}
	return pairs, nil
}

// scanParallel partitions the upper-triangular pair set evenly across the
// pool. Workers are stateless; each writes only its own result slice.
func (e *Engine) scanParallel(ctx context.Context, memories []*store.Memory, threshold float64, workers int) ([]Pair, error) {
	// Materialize the pair index set so chunks are even regardless of
	// triangle shape
	type indexPair struct{ i, j int }
	all := make([]indexPair, 0, len(memories)*(len(memories)-1)/2)
	for i := 0; i < len(memories); i++ {
		for j := i + 1; j < len(memories); j++ {
			all = append(all, indexPair{i, j})
		}
	}

	chunkSize := (len(all) + workers - 1) / workers
	results := make([][]Pair, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunkSize
		if start >= len(all) {
			break
		}
		end := start + chunkSize
		if end > len(all) {
			end = len(all)
		}

		wg.Add(1)
		go func(w int, chunk []indexPair) {
			defer wg.Done()
			var found []Pair
			for _, p := range chunk {
				if err := ctx.Err(); err != nil {
					errs[w] = err
					return
				}
				sim, err := pairSimilarity(memories[p.i], memories[p.j])
				if err != nil {
					errs[w] = err
					return
				}
				if sim >= threshold {
					found = append(found, Pair{A: memories[p.i], B: memories[p.j], Similarity: sim})
				}
			}
			results[w] = found
		}(w, all[start:end])
	}
	wg.Wait()

	// Fail-fast: any worker error aborts the whole scan
	for _, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("similarity worker failed: %w", err)
		}
	}

	var pairs []Pair
	for _, r := range results {
		pairs = append(pairs, r...)
	}
	return pairs, nil
}

func pairSimilarity(a, b *store.Memory) (float64, error) {
	if len(a.Embedding) == 0 || len(b.Embedding) == 0 {
		return 0, fmt.Errorf("memory %d or %d has no embedding", a.ID, b.ID)
	}
	if len(a.Embedding) != len(b.Embedding) {
		return 0, fmt.Errorf("embedding dimension mismatch between %d and %d", a.ID, b.ID)
	}
	return embedding.CosineSimilarity(a.Embedding, b.Embedding), nil
}

package graph

import (
	"context"

	"github.com/harun/mnemo/internal/store"
)

// DefaultBoostWeight is how much normalized centrality contributes to a
// retrieval score
const DefaultBoostWeight = 0.1

// RetrievalResult is a scored retrieval hit the boost is applied to
type RetrievalResult struct {
	MemoryID          int64   `json:"memory_id"`
	Similarity        float64 `json:"similarity"`
	BoostedSimilarity float64 `json:"boosted_similarity"`
}

// ApplyCentralityBoost adjusts retrieval scores by cached centrality:
// boosted = similarity + weight * normalized_degree, capped at 1.0.
// Memories with no cached score keep their raw similarity. Results are
// mutated in place.
func ApplyCentralityBoost(ctx context.Context, s store.Store, results []RetrievalResult, weight float64) ([]RetrievalResult, error) {
	if weight <= 0 {
		weight = DefaultBoostWeight
	}

	scores, err := s.AllCentrality(ctx)
	if err != nil {
		return nil, err
	}

	for i := range results {
		boosted := results[i].Similarity
		if sc, ok := scores[results[i].MemoryID]; ok {
			boosted += weight * sc.NormalizedDegree
		}
		if boosted > 1.0 {
			boosted = 1.0
		}
		results[i].BoostedSimilarity = boosted
	}
	return results, nil
}

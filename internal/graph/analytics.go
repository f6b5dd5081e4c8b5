package graph

import (
	"sort"

	"github.com/harun/mnemo/internal/store"
)

const (
	// DefaultMaxIterations caps label propagation rounds
	DefaultMaxIterations = 100

	// DefaultMinCommunitySize: anything smaller is isolated, not a community
	DefaultMinCommunitySize = 2
)

// ComputeCentrality returns per-memory degree centrality for every id
// appearing in any link, normalized against the maximum degree. An empty
// link set yields an empty map.
func ComputeCentrality(links []*store.Link) map[int64]store.CentralityScore {
	degrees := make(map[int64]int)
	for _, l := range links {
		degrees[l.SourceID]++
		degrees[l.TargetID]++
	}
	return normalizeCentrality(degrees)
}

func normalizeCentrality(degrees map[int64]int) map[int64]store.CentralityScore {
	max := 0
	for _, d := range degrees {
		if d > max {
			max = d
		}
	}
	if max == 0 {
		return map[int64]store.CentralityScore{}
	}

	out := make(map[int64]store.CentralityScore, len(degrees))
	for id, d := range degrees {
		out[id] = store.CentralityScore{
			MemoryID:         id,
			Degree:           d,
			NormalizedDegree: float64(d) / float64(max),
		}
	}
	return out
}

// Community is a group of memories that label propagation settled on
type Community struct {
	ID      int64   `json:"id"`
	Members []int64 `json:"members"`
	Size    int     `json:"size"`
}

// CommunityOptions tunes community detection
type CommunityOptions struct {
	MaxIterations int
	MinSize       int
}

// CommunityResult is the outcome of one detection run
type CommunityResult struct {
	Communities []Community `json:"communities"`
	Isolated    int         `json:"isolated"`
	Iterations  int         `json:"iterations"`
}

// DetectCommunities runs label propagation over the link set. Every node
// starts as its own label; each round, every node adopts the majority
// label among its neighbors, ties going to the lowest label, until no
// label changes or MaxIterations is hit. Groups below MinSize count as
// isolated nodes rather than communities.
func DetectCommunities(links []*store.Link, opts CommunityOptions) *CommunityResult {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.MinSize <= 0 {
		opts.MinSize = DefaultMinCommunitySize
	}

	adjacency := make(map[int64][]int64)
	for _, l := range links {
		adjacency[l.SourceID] = append(adjacency[l.SourceID], l.TargetID)
		adjacency[l.TargetID] = append(adjacency[l.TargetID], l.SourceID)
	}

	nodes := make([]int64, 0, len(adjacency))
	labels := make(map[int64]int64, len(adjacency))
	for id := range adjacency {
		nodes = append(nodes, id)
		labels[id] = id
	}
	// Deterministic sweep order makes results reproducible
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })

	iterations := 0
	for ; iterations < opts.MaxIterations; iterations++ {
		changed := false
		for _, id := range nodes {
			best := majorityLabel(adjacency[id], labels)
			if best != labels[id] {
				labels[id] = best
				changed = true
			}
		}
		if !changed {
			iterations++
			break
		}
	}

	byLabel := make(map[int64][]int64)
	for id, label := range labels {
		byLabel[label] = append(byLabel[label], id)
	}

	res := &CommunityResult{Iterations: iterations}
	for label, members := range byLabel {
		if len(members) < opts.MinSize {
			res.Isolated += len(members)
			continue
		}
		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
		res.Communities = append(res.Communities, Community{
			ID:      label,
			Members: members,
			Size:    len(members),
		})
	}
	sort.Slice(res.Communities, func(i, j int) bool { return res.Communities[i].ID < res.Communities[j].ID })

	return res
}

// majorityLabel picks the most common label among neighbors, lowest
// label winning ties.
func majorityLabel(neighbors []int64, labels map[int64]int64) int64 {
	counts := make(map[int64]int, len(neighbors))
	for _, n := range neighbors {
		counts[labels[n]]++
	}

	var best int64
	bestCount := -1
	for label, count := range counts {
		if count > bestCount || (count == bestCount && label < best) {
			best = label
			bestCount = count
		}
	}
	return best
}

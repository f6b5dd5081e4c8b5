package engine

import (
	"context"
	"fmt"
)

// Status is a point-in-time snapshot of the knowledge base
type Status struct {
	LiveMemories     int `json:"live_memories"`
	Links            int `json:"links"`
	Orphans          int `json:"orphans"`
	CentralityCached int `json:"centrality_cached"`
}

// Status reports corpus and graph counts and refreshes the state gauges
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	live, err := e.store.CountLive(ctx)
	if err != nil {
		return nil, fmt.Errorf("count live memories: %w", err)
	}
	links, err := e.store.AllLinks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	orphans, err := e.store.OrphanMemoryIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orphans: %w", err)
	}
	scores, err := e.store.AllCentrality(ctx)
	if err != nil {
		return nil, fmt.Errorf("read centrality cache: %w", err)
	}

	e.metrics.MemoriesLive.Set(float64(live))
	e.metrics.LinksTotal.Set(float64(len(links)))

	return &Status{
		LiveMemories:     live,
		Links:            len(links),
		Orphans:          len(orphans),
		CentralityCached: len(scores),
	}, nil
}

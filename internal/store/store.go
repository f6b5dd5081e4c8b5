package store

import "context"

// Store is the persistence contract the consolidation engine runs against.
// It is deliberately backend-neutral: the engine never sees SQL.
type Store interface {
	// Memories
	CreateMemory(ctx context.Context, m *Memory) error
	GetMemory(ctx context.Context, id int64) (*Memory, error)
	ListLive(ctx context.Context) ([]*Memory, error)
	CountLive(ctx context.Context) (int, error)
	InvalidateMemory(ctx context.Context, id, by int64) error
	RestoreMemory(ctx context.Context, id int64) error
	HardDeleteMemory(ctx context.Context, id int64) error
	TouchMemory(ctx context.Context, id int64) error

	// Links
	CreateLink(ctx context.Context, sourceID, targetID int64, relation Relation, weight float64) (*Link, error)
	DeleteLink(ctx context.Context, id int64) error
	LinksFor(ctx context.Context, memoryID int64) ([]*Link, error)
	AllLinks(ctx context.Context) ([]*Link, error)
	UpdateLinkRelation(ctx context.Context, id int64, relation Relation, enriched bool) error
	TransferLinks(ctx context.Context, fromID, toID int64) (int, error)
	OrphanMemoryIDs(ctx context.Context) ([]int64, error)

	// Vector search
	NearestNeighbors(ctx context.Context, embedding []float32, limit int, minSimilarity float64) ([]Neighbor, error)

	// Centrality cache
	SaveCentrality(ctx context.Context, scores map[int64]CentralityScore) error
	GetCentrality(ctx context.Context, memoryID int64) (*CentralityScore, error)
	AllCentrality(ctx context.Context) (map[int64]CentralityScore, error)

	// Begin opens a unit of work. Multi-step mutations (the merge sequence)
	// run inside one so partial application cannot be observed.
	Begin(ctx context.Context) (UnitOfWork, error)
}

// UnitOfWork is a Store scoped to a single transaction
type UnitOfWork interface {
	Store
	Commit() error
	Rollback() error
}

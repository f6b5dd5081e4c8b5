package store

import (
	"errors"
	"time"
)

// Relation is the closed set of link types between memories
type Relation string

const (
	RelationSimilarTo  Relation = "similar_to"
	RelationRelated    Relation = "related"
	RelationCausedBy   Relation = "caused_by"
	RelationLeadsTo    Relation = "leads_to"
	RelationImplements Relation = "implements"
	RelationSupersedes Relation = "supersedes"
)

// ValidRelation reports whether r is one of the closed relation set
func ValidRelation(r Relation) bool {
	switch r {
	case RelationSimilarTo, RelationRelated, RelationCausedBy,
		RelationLeadsTo, RelationImplements, RelationSupersedes:
		return true
	}
	return false
}

// SourceConsolidation marks memories synthesized by the LLM-merge path.
// Undo hard-deletes these; everything else is only ever soft-invalidated.
const SourceConsolidation = "consolidation"

// Memory is a stored fact. A non-nil InvalidatedBy means the memory is
// logically deleted but physically retained; only live memories take part
// in similarity scanning and retrieval.
type Memory struct {
	ID            int64      `json:"id"`
	Content       string     `json:"content"`
	Tags          []string   `json:"tags,omitempty"`
	Source        string     `json:"source"`
	Embedding     []float32  `json:"-"`
	QualityScore  *float64   `json:"quality_score,omitempty"`
	AccessCount   int        `json:"access_count"`
	LastAccessed  *time.Time `json:"last_accessed,omitempty"`
	ValidFrom     *time.Time `json:"valid_from,omitempty"`
	ValidUntil    *time.Time `json:"valid_until,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	InvalidatedBy *int64     `json:"invalidated_by,omitempty"`
}

// Live reports whether the memory participates in scanning and retrieval
func (m *Memory) Live() bool {
	return m.InvalidatedBy == nil
}

// Quality returns the quality score, or 0 when unscored
func (m *Memory) Quality() float64 {
	if m.QualityScore == nil {
		return 0
	}
	return *m.QualityScore
}

// Link is a directed, weighted, typed edge between two memories
type Link struct {
	ID          int64     `json:"id"`
	SourceID    int64     `json:"source_id"`
	TargetID    int64     `json:"target_id"`
	Relation    Relation  `json:"relation"`
	Weight      float64   `json:"weight"`
	LLMEnriched bool      `json:"llm_enriched"`
	CreatedAt   time.Time `json:"created_at"`
}

// Touches reports whether the link connects to the given memory in
// either direction
func (l *Link) Touches(memoryID int64) bool {
	return l.SourceID == memoryID || l.TargetID == memoryID
}

// CentralityScore is the cached per-memory degree centrality
type CentralityScore struct {
	MemoryID         int64   `json:"memory_id"`
	Degree           int     `json:"degree"`
	NormalizedDegree float64 `json:"normalized_degree"`
}

// Neighbor is a nearest-neighbor hit from the vector index
type Neighbor struct {
	MemoryID   int64   `json:"memory_id"`
	Similarity float64 `json:"similarity"`
}

var (
	// ErrNotFound is returned when a memory or link does not exist
	ErrNotFound = errors.New("not found")

	// ErrDuplicateLink is returned when an equivalent link already exists.
	// Callers racing on link creation treat this as a no-op.
	ErrDuplicateLink = errors.New("link already exists")

	// ErrNotInvalidated is returned when restoring a memory that was never
	// invalidated, so callers can tell "nothing to do" from success.
	ErrNotInvalidated = errors.New("memory is not invalidated")

	// ErrInvalidated is returned when invalidating a memory twice or
	// pointing invalidated_by at a non-live memory.
	ErrInvalidated = errors.New("memory is already invalidated")
)

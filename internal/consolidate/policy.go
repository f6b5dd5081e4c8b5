// Package consolidate decides what to do with near-duplicate memories and
// carries those decisions out without losing information.
package consolidate

import (
	"fmt"
	"strings"

	"github.com/harun/mnemo/internal/store"
)

// Action is the consolidation decision for a candidate pair
type Action string

const (
	ActionMerge           Action = "merge"
	ActionDeleteDuplicate Action = "delete_duplicate"
	ActionKeepBoth        Action = "keep_both"
)

// Similarity bands for the policy
const (
	// duplicateThreshold: above this the pair is the same fact twice
	duplicateThreshold = 0.95

	// mergeThreshold: above this (and below duplicateThreshold) the pair
	// overlaps enough to merge, unless one contains the other
	mergeThreshold = 0.85

	// qualityMargin: the quality gap that decides which duplicate survives
	qualityMargin = 0.1
)

// Candidate is a scored pair plus the computed action. Ephemeral; produced
// by Classify and consumed immediately by the executor.
type Candidate struct {
	Memory1    *store.Memory `json:"-"`
	Memory2    *store.Memory `json:"-"`
	ID1        int64         `json:"id1"`
	ID2        int64         `json:"id2"`
	Similarity float64       `json:"similarity"`
	Action     Action        `json:"action"`
	Reason     string        `json:"reason"`

	// KeepID/DropID are set for delete_duplicate
	KeepID int64 `json:"keep_id,omitempty"`
	DropID int64 `json:"drop_id,omitempty"`
}

// Classify is a pure function from a scored pair to an action.
//
//	sim > 0.95            -> delete_duplicate (quality, then recency, decides the keeper)
//	0.85 < sim <= 0.95    -> delete_duplicate if one content contains the other, else merge
//	sim <= 0.85           -> keep_both, recorded as a similar_to link
func Classify(m1, m2 *store.Memory, similarity float64) Candidate {
	c := Candidate{
		Memory1:    m1,
		Memory2:    m2,
		ID1:        m1.ID,
		ID2:        m2.ID,
		Similarity: similarity,
	}

	switch {
	case similarity > duplicateThreshold:
		c.Action = ActionDeleteDuplicate
		keep, drop, why := pickSurvivor(m1, m2)
		c.KeepID, c.DropID = keep.ID, drop.ID
		c.Reason = fmt.Sprintf("near-identical (%.3f), keeping %d (%s)", similarity, keep.ID, why)

	case similarity > mergeThreshold:
		if contained, keep, drop := containment(m1, m2); contained {
			c.Action = ActionDeleteDuplicate
			c.KeepID, c.DropID = keep.ID, drop.ID
			c.Reason = fmt.Sprintf("content of %d contained in %d (%.3f), keeping %d",
				drop.ID, keep.ID, similarity, keep.ID)
		} else {
			c.Action = ActionMerge
			c.Reason = fmt.Sprintf("overlapping but both carry unique information (%.3f)", similarity)
		}

	default:
		c.Action = ActionKeepBoth
		c.Reason = fmt.Sprintf("related but distinct (%.3f), linking", similarity)
	}

	return c
}

// pickSurvivor prefers a strictly higher quality score; within the margin,
// the more recently created memory wins.
func pickSurvivor(m1, m2 *store.Memory) (keep, drop *store.Memory, why string) {
	q1, q2 := m1.Quality(), m2.Quality()
	switch {
	case q1-q2 > qualityMargin:
		return m1, m2, "higher quality"
	case q2-q1 > qualityMargin:
		return m2, m1, "higher quality"
	case m1.CreatedAt.After(m2.CreatedAt):
		return m1, m2, "more recent"
	default:
		return m2, m1, "more recent"
	}
}

// containment checks case-insensitive substring containment; the longer
// content is kept since it carries everything the shorter one does.
func containment(m1, m2 *store.Memory) (bool, *store.Memory, *store.Memory) {
	c1 := strings.ToLower(m1.Content)
	c2 := strings.ToLower(m2.Content)

	switch {
	case strings.Contains(c1, c2):
		return true, m1, m2
	case strings.Contains(c2, c1):
		return true, m2, m1
	default:
		return false, nil, nil
	}
}

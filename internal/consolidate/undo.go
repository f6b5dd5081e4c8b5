package consolidate

import (
	"context"
	"fmt"

	"github.com/harun/mnemo/internal/store"
)

// UndoResult summarizes an undone consolidation
type UndoResult struct {
	MemoryID    int64   `json:"memory_id"`
	Restored    []int64 `json:"restored"`
	HardDeleted bool    `json:"hard_deleted"`
}

// Undo reverses a consolidation centered on memoryID by following its
// outgoing supersedes edges: every superseded memory is restored and, if
// memoryID is a synthetic merge product, memoryID itself is hard-deleted.
// A survivor of a duplicate deletion is left in place. A memory with no
// supersedes edges has nothing to undo and that is an error, which also
// makes a second undo of the same consolidation fail cleanly.
func (e *Executor) Undo(ctx context.Context, memoryID int64) (*UndoResult, error) {
	m, err := e.store.GetMemory(ctx, memoryID)
	if err != nil {
		return nil, fmt.Errorf("load memory %d: %w", memoryID, err)
	}

	links, err := e.store.LinksFor(ctx, memoryID)
	if err != nil {
		return nil, err
	}

	var superseded []*store.Link
	for _, l := range links {
		if l.Relation == store.RelationSupersedes && l.SourceID == memoryID {
			superseded = append(superseded, l)
		}
	}
	if len(superseded) == 0 {
		return nil, fmt.Errorf("memory %d has no supersedes links, nothing to undo", memoryID)
	}

	uow, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	res := &UndoResult{MemoryID: memoryID}
	for _, l := range superseded {
		if err := uow.RestoreMemory(ctx, l.TargetID); err != nil {
			return nil, fmt.Errorf("restore %d: %w", l.TargetID, err)
		}
		if err := uow.DeleteLink(ctx, l.ID); err != nil {
			return nil, fmt.Errorf("delete supersedes link %d: %w", l.ID, err)
		}
		res.Restored = append(res.Restored, l.TargetID)
	}

	// A synthetic merge product exists only to stand in for its sources;
	// once they are back it is removed entirely.
	if m.Source == store.SourceConsolidation {
		if err := uow.HardDeleteMemory(ctx, memoryID); err != nil {
			return nil, fmt.Errorf("hard-delete merged memory %d: %w", memoryID, err)
		}
		res.HardDeleted = true
	}

	if err := uow.Commit(); err != nil {
		return nil, err
	}

	e.logger.Info().
		Int64("memory_id", memoryID).
		Ints64("restored", res.Restored).
		Bool("hard_deleted", res.HardDeleted).
		Msg("consolidation undone")

	return res, nil
}

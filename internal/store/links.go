package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// symmetric reports whether a relation carries no direction, so the
// reversed edge counts as a duplicate
func symmetric(r Relation) bool {
	return r == RelationSimilarTo || r == RelationRelated
}

// CreateLink inserts a directed, typed edge. Returns ErrDuplicateLink when
// an equivalent edge already exists (including the reversed direction for
// symmetric relations).
func (s *SQLiteStore) CreateLink(ctx context.Context, sourceID, targetID int64, relation Relation, weight float64) (*Link, error) {
	if sourceID == targetID {
		return nil, fmt.Errorf("self link on memory %d", sourceID)
	}
	if !ValidRelation(relation) {
		return nil, fmt.Errorf("unknown relation %q", relation)
	}

	var exists int
	var err error
	if symmetric(relation) {
		err = s.q.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM links
			WHERE relation = ?
			  AND ((source_id = ? AND target_id = ?) OR (source_id = ? AND target_id = ?))`,
			relation, sourceID, targetID, targetID, sourceID).Scan(&exists)
	} else {
		err = s.q.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM links
			WHERE relation = ? AND source_id = ? AND target_id = ?`,
			relation, sourceID, targetID).Scan(&exists)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check existing link: %w", err)
	}
	if exists > 0 {
		return nil, fmt.Errorf("%d -> %d (%s): %w", sourceID, targetID, relation, ErrDuplicateLink)
	}

	now := time.Now()
	result, err := s.q.ExecContext(ctx, `
		INSERT INTO links (source_id, target_id, relation, weight, llm_enriched, created_at)
		VALUES (?, ?, ?, ?, 0, ?)`,
		sourceID, targetID, relation, weight, now.Unix())
	if err != nil {
		// The unique index closes the race between check and insert
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return nil, fmt.Errorf("%d -> %d (%s): %w", sourceID, targetID, relation, ErrDuplicateLink)
		}
		return nil, fmt.Errorf("failed to create link: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read link id: %w", err)
	}

	return &Link{
		ID:        id,
		SourceID:  sourceID,
		TargetID:  targetID,
		Relation:  relation,
		Weight:    weight,
		CreatedAt: now,
	}, nil
}

// DeleteLink removes an edge by id
func (s *SQLiteStore) DeleteLink(ctx context.Context, id int64) error {
	result, err := s.q.ExecContext(ctx, "DELETE FROM links WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("link %d: %w", id, ErrNotFound)
	}
	return nil
}

const linkColumns = "id, source_id, target_id, relation, weight, llm_enriched, created_at"

func scanLink(scanner interface{ Scan(...interface{}) error }) (*Link, error) {
	var l Link
	var createdAt int64
	if err := scanner.Scan(&l.ID, &l.SourceID, &l.TargetID, &l.Relation,
		&l.Weight, &l.LLMEnriched, &createdAt); err != nil {
		return nil, err
	}
	l.CreatedAt = time.Unix(createdAt, 0)
	return &l, nil
}

func (s *SQLiteStore) queryLinks(ctx context.Context, query string, args ...interface{}) ([]*Link, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer rows.Close()

	var links []*Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// LinksFor returns every edge touching a memory, in either direction
func (s *SQLiteStore) LinksFor(ctx context.Context, memoryID int64) ([]*Link, error) {
	return s.queryLinks(ctx,
		"SELECT "+linkColumns+" FROM links WHERE source_id = ? OR target_id = ? ORDER BY id",
		memoryID, memoryID)
}

// AllLinks returns every edge in the graph
func (s *SQLiteStore) AllLinks(ctx context.Context) ([]*Link, error) {
	return s.queryLinks(ctx, "SELECT "+linkColumns+" FROM links ORDER BY id")
}

// UpdateLinkRelation rewrites an edge's relation in place, recording
// whether the LLM classifier has reviewed it
func (s *SQLiteStore) UpdateLinkRelation(ctx context.Context, id int64, relation Relation, enriched bool) error {
	if !ValidRelation(relation) {
		return fmt.Errorf("unknown relation %q", relation)
	}

	result, err := s.q.ExecContext(ctx,
		"UPDATE links SET relation = ?, llm_enriched = ? WHERE id = ?",
		relation, enriched, id)
	if err != nil {
		return fmt.Errorf("failed to update link: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("link %d: %w", id, ErrNotFound)
	}
	return nil
}

// TransferLinks re-points every edge touching `from` onto `to`, preserving
// direction, dropping edges that would become self links and swallowing
// duplicates. The originals are removed. Returns how many edges survived
// the transfer.
func (s *SQLiteStore) TransferLinks(ctx context.Context, fromID, toID int64) (int, error) {
	links, err := s.LinksFor(ctx, fromID)
	if err != nil {
		return 0, err
	}

	transferred := 0
	for _, l := range links {
		newSource, newTarget := l.SourceID, l.TargetID
		if newSource == fromID {
			newSource = toID
		}
		if newTarget == fromID {
			newTarget = toID
		}

		if newSource != newTarget {
			created, err := s.CreateLink(ctx, newSource, newTarget, l.Relation, l.Weight)
			if err == nil {
				if l.LLMEnriched {
					if err := s.UpdateLinkRelation(ctx, created.ID, created.Relation, true); err != nil {
						return transferred, err
					}
				}
				transferred++
			} else if !errors.Is(err, ErrDuplicateLink) {
				return transferred, err
			}
		}

		if err := s.DeleteLink(ctx, l.ID); err != nil {
			return transferred, err
		}
	}

	return transferred, nil
}

// OrphanMemoryIDs returns live memories with no edges in either direction
func (s *SQLiteStore) OrphanMemoryIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT m.id FROM memories m
		WHERE m.invalidated_by IS NULL
		  AND NOT EXISTS (SELECT 1 FROM links l WHERE l.source_id = m.id OR l.target_id = m.id)
		ORDER BY m.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query orphans: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

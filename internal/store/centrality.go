package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SaveCentrality replaces the centrality cache wholesale. Centrality is
// recomputed from the full graph, never patched incrementally, so the
// cache is cleared first.
func (s *SQLiteStore) SaveCentrality(ctx context.Context, scores map[int64]CentralityScore) error {
	if _, err := s.q.ExecContext(ctx, "DELETE FROM centrality"); err != nil {
		return fmt.Errorf("failed to clear centrality cache: %w", err)
	}

	now := time.Now().Unix()
	for id, score := range scores {
		if _, err := s.q.ExecContext(ctx, `
			INSERT INTO centrality (memory_id, degree, normalized_degree, updated_at)
			VALUES (?, ?, ?, ?)`,
			id, score.Degree, score.NormalizedDegree, now); err != nil {
			return fmt.Errorf("failed to cache centrality for %d: %w", id, err)
		}
	}

	return nil
}

// GetCentrality reads one cached score. Returns ErrNotFound for memories
// absent from the cache (zero-degree nodes are never cached).
func (s *SQLiteStore) GetCentrality(ctx context.Context, memoryID int64) (*CentralityScore, error) {
	var score CentralityScore
	err := s.q.QueryRowContext(ctx,
		"SELECT memory_id, degree, normalized_degree FROM centrality WHERE memory_id = ?",
		memoryID).Scan(&score.MemoryID, &score.Degree, &score.NormalizedDegree)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("centrality for %d: %w", memoryID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read centrality: %w", err)
	}
	return &score, nil
}

// AllCentrality reads the whole cache
func (s *SQLiteStore) AllCentrality(ctx context.Context) (map[int64]CentralityScore, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT memory_id, degree, normalized_degree FROM centrality")
	if err != nil {
		return nil, fmt.Errorf("failed to read centrality cache: %w", err)
	}
	defer rows.Close()

	scores := make(map[int64]CentralityScore)
	for rows.Next() {
		var score CentralityScore
		if err := rows.Scan(&score.MemoryID, &score.Degree, &score.NormalizedDegree); err != nil {
			return nil, err
		}
		scores[score.MemoryID] = score
	}
	return scores, rows.Err()
}

package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/harun/mnemo/internal/store"
)

// RememberResult reports a stored memory and how it was wired into the graph
type RememberResult struct {
	MemoryID     int64   `json:"memory_id"`
	QualityScore float64 `json:"quality_score"`
	LinksCreated int     `json:"links_created"`
	Redacted     bool    `json:"redacted"`
}

// Remember stores a new memory: scans it for sensitive content, scores
// its quality, embeds it, persists it, and auto-links it into the graph.
// Sensitive content is an error unless auto-redaction is enabled.
func (e *Engine) Remember(ctx context.Context, content, source string, tags []string) (*RememberResult, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("content is empty")
	}

	res := &RememberResult{}

	scan := e.scanner.Scan(content)
	if scan.HasSensitive {
		if !e.cfg.AutoRedact {
			return nil, fmt.Errorf("content contains sensitive information")
		}
		content = scan.RedactedText
		res.Redacted = true
	}

	score := e.scorer.ScoreContent(content)

	vec, err := e.embedder.GenerateEmbedding(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("generate embedding: %w", err)
	}

	m := &store.Memory{
		Content:      content,
		Tags:         tags,
		Source:       source,
		Embedding:    vec,
		QualityScore: &score.Score,
	}
	if err := e.store.CreateMemory(ctx, m); err != nil {
		return nil, fmt.Errorf("create memory: %w", err)
	}

	res.MemoryID = m.ID
	res.QualityScore = score.Score

	created, err := e.linker.AutoLink(ctx, m.ID, 0, 0)
	if err != nil {
		// Linking is best-effort; the memory itself is safely stored
		e.logger.Warn().Err(err).Int64("memory_id", m.ID).Msg("auto-link after remember failed")
	}
	res.LinksCreated = created

	return res, nil
}

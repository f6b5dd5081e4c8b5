// Package graph maintains the typed-link structure over memories: auto
// linking, LLM relation classification, enrichment sweeps, and the
// centrality and community analytics built on top of the link set.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/harun/mnemo/internal/store"
	"github.com/harun/mnemo/pkg/llm"
)

const (
	// classifyMaxContent bounds how much of each memory goes into the
	// prompt, to keep token spend predictable
	classifyMaxContent = 500

	classifyMaxTokens = 512
	classifyTimeout   = 20 * time.Second

	batchMaxTokens = 2048
)

// Classification is a typed relation with the model's confidence
type Classification struct {
	Relation   store.Relation `json:"relation"`
	Confidence float64        `json:"confidence"`
}

// fallback is returned on any backend or parse failure. Classification
// only ever upgrades a link; it never destroys information.
var fallback = Classification{Relation: store.RelationSimilarTo, Confidence: 0}

const classifyPrompt = `Classify the relationship between these two notes. Choose exactly one relation from: related, caused_by, leads_to, implements, similar_to.

Note A:
%s

Note B:
%s

Reply with JSON only: {"relation": "<relation>", "confidence": <0.0-1.0>}`

const batchPrompt = `Classify the relationship for each numbered pair of notes. For each pair choose exactly one relation from: related, caused_by, leads_to, implements, similar_to.

%s

Reply with a JSON array only, one object per pair: [{"pair": <number>, "relation": "<relation>", "confidence": <0.0-1.0>}]`

// Classifier assigns typed relations to memory pairs using an LLM.
// A nil provider makes every call fall back to similar_to.
type Classifier struct {
	provider llm.Provider
	logger   zerolog.Logger
}

func NewClassifier(provider llm.Provider, logger zerolog.Logger) *Classifier {
	return &Classifier{
		provider: provider,
		logger:   logger.With().Str("component", "classifier").Logger(),
	}
}

// ClassifyRelation types a single pair. It never returns an error: any
// failure, including timeout, yields the similar_to/0 fallback.
func (c *Classifier) ClassifyRelation(ctx context.Context, content1, content2 string) Classification {
	if c == nil || c.provider == nil {
		return fallback
	}

	prompt := fmt.Sprintf(classifyPrompt, truncate(content1, classifyMaxContent), truncate(content2, classifyMaxContent))

	reply, err := c.provider.Complete(ctx, prompt, llm.CompleteOptions{
		MaxTokens: classifyMaxTokens,
		Timeout:   classifyTimeout,
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("relation classification failed")
		return fallback
	}

	var parsed struct {
		Relation   string  `json:"relation"`
		Confidence float64 `json:"confidence"`
	}
	raw := extractJSON(reply, '{', '}')
	if raw == "" || json.Unmarshal([]byte(raw), &parsed) != nil {
		c.logger.Warn().Str("reply", truncate(reply, 120)).Msg("unparseable classification reply")
		return fallback
	}

	return Classification{
		Relation:   coerceRelation(parsed.Relation),
		Confidence: clamp01(parsed.Confidence),
	}
}

// Pair is one batch-classification input, keyed so results can be
// matched back to the caller's link or memory pair.
type Pair struct {
	Key      string
	Content1 string
	Content2 string
}

// ClassifyBatch types many pairs in a single LLM call. The returned map
// always has an entry for every input key; pairs the model skipped or
// mangled get the fallback, and a wholesale failure falls back for all.
func (c *Classifier) ClassifyBatch(ctx context.Context, pairs []Pair) map[string]Classification {
	out := make(map[string]Classification, len(pairs))
	for _, p := range pairs {
		out[p.Key] = fallback
	}
	if c == nil || c.provider == nil || len(pairs) == 0 {
		return out
	}

	var sb strings.Builder
	for i, p := range pairs {
		fmt.Fprintf(&sb, "Pair %d:\nNote A: %s\nNote B: %s\n\n",
			i+1, truncate(p.Content1, classifyMaxContent), truncate(p.Content2, classifyMaxContent))
	}

	reply, err := c.provider.Complete(ctx, fmt.Sprintf(batchPrompt, sb.String()), llm.CompleteOptions{
		MaxTokens: batchMaxTokens,
		Timeout:   classifyTimeout,
	})
	if err != nil {
		c.logger.Warn().Err(err).Int("pairs", len(pairs)).Msg("batch classification failed")
		return out
	}

	var parsed []struct {
		Pair       int     `json:"pair"`
		Relation   string  `json:"relation"`
		Confidence float64 `json:"confidence"`
	}
	raw := extractJSON(reply, '[', ']')
	if raw == "" || json.Unmarshal([]byte(raw), &parsed) != nil {
		c.logger.Warn().Str("reply", truncate(reply, 120)).Msg("unparseable batch reply")
		return out
	}

	for _, item := range parsed {
		idx := item.Pair - 1
		if idx < 0 || idx >= len(pairs) {
			continue
		}
		out[pairs[idx].Key] = Classification{
			Relation:   coerceRelation(item.Relation),
			Confidence: clamp01(item.Confidence),
		}
	}
	return out
}

// extractJSON pulls the first balanced open..close span out of prose, so
// replies like "Sure! {...}" still parse.
func extractJSON(s string, open, close byte) string {
	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, close)
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// coerceRelation maps unknown labels to related rather than rejecting
// the classification outright.
func coerceRelation(label string) store.Relation {
	r := store.Relation(strings.ToLower(strings.TrimSpace(label)))
	if r == store.RelationSupersedes {
		// supersedes is reserved for the consolidation undo trail
		return store.RelationRelated
	}
	if store.ValidRelation(r) {
		return r
	}
	return store.RelationRelated
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// truncate cuts s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

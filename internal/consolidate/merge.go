package consolidate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/mnemo/pkg/llm"
	"github.com/harun/mnemo/pkg/scrub"
)

const (
	mergeMaxTokens = 1024
	mergeTimeout   = 30 * time.Second
)

const mergePrompt = `Combine these two notes into a single note that preserves every distinct fact from both. Do not add information that is not present in either note. Do not summarize away details. Reply with the combined note only, no preamble.

Note 1:
%s

Note 2:
%s`

// Merger produces merged content from two overlapping memories using an
// LLM. A nil provider or any failure yields no merge; the caller falls
// back to linking instead.
type Merger struct {
	provider   llm.Provider
	scanner    *scrub.Scanner
	autoRedact bool
	logger     zerolog.Logger
}

// NewMerger builds a Merger. provider may be nil, in which case
// MergeContent always declines.
func NewMerger(provider llm.Provider, scanner *scrub.Scanner, autoRedact bool, logger zerolog.Logger) *Merger {
	if scanner == nil {
		scanner = scrub.NewScanner()
	}
	return &Merger{
		provider:   provider,
		scanner:    scanner,
		autoRedact: autoRedact,
		logger:     logger.With().Str("component", "merger").Logger(),
	}
}

// Available reports whether an LLM provider is wired.
func (m *Merger) Available() bool {
	return m != nil && m.provider != nil
}

// MergeContent asks the LLM for a combined note. It returns "" whenever a
// merge cannot be produced: no provider, LLM error, empty reply, or
// sensitive content that cannot be redacted. It never returns an error;
// declining to merge is not a failure since the caller links instead.
func (m *Merger) MergeContent(ctx context.Context, content1, content2 string) string {
	if !m.Available() {
		return ""
	}

	prompt := fmt.Sprintf(mergePrompt, content1, content2)

	reply, err := m.provider.Complete(ctx, prompt, llm.CompleteOptions{
		MaxTokens: mergeMaxTokens,
		Timeout:   mergeTimeout,
	})
	if err != nil {
		m.logger.Warn().Err(err).Msg("llm merge failed, falling back to link")
		return ""
	}

	merged := strings.TrimSpace(reply)
	if merged == "" {
		m.logger.Warn().Msg("llm merge returned empty content, falling back to link")
		return ""
	}

	result := m.scanner.Scan(merged)
	if result.HasSensitive {
		if !m.autoRedact {
			m.logger.Warn().Msg("merged content contains sensitive data, declining merge")
			return ""
		}
		merged = result.RedactedText
	}

	return merged
}

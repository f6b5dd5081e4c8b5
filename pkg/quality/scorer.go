// Package quality scores memory content for usefulness. The score feeds the
// duplicate-resolution tie-break: between two near-identical memories the
// higher-quality one survives.
package quality

import (
	"regexp"
	"strings"
)

// Score is a [0,1] quality estimate plus the per-factor breakdown
type Score struct {
	Score   float64            `json:"score"`
	Factors map[string]float64 `json:"factors"`
}

// Scorer produces quality scores from content alone
type Scorer struct {
	codeRef  *regexp.Regexp
	pathRef  *regexp.Regexp
	vagueRef *regexp.Regexp
}

// NewScorer creates a scorer with default heuristics
func NewScorer() *Scorer {
	return &Scorer{
		codeRef:  regexp.MustCompile("`[^`]+`|\\b[a-zA-Z_][a-zA-Z0-9_]*\\(\\)"),
		pathRef:  regexp.MustCompile(`(?:[a-zA-Z0-9_.-]+/)+[a-zA-Z0-9_.-]+`),
		vagueRef: regexp.MustCompile(`(?i)\b(something|somehow|maybe|probably|stuff|things)\b`),
	}
}

// ScoreContent rates content on length, specificity, and vagueness.
// Each factor lands in [0,1]; the overall score is their weighted sum.
func (s *Scorer) ScoreContent(content string) Score {
	factors := make(map[string]float64)

	// Length: too short carries little signal, too long is probably a dump
	length := len(strings.TrimSpace(content))
	switch {
	case length < 20:
		factors["length"] = 0.2
	case length < 80:
		factors["length"] = 0.6
	case length <= 600:
		factors["length"] = 1.0
	case length <= 2000:
		factors["length"] = 0.7
	default:
		factors["length"] = 0.4
	}

	// Specificity: code identifiers and file paths anchor a fact
	specificity := 0.3
	if s.codeRef.MatchString(content) {
		specificity += 0.35
	}
	if s.pathRef.MatchString(content) {
		specificity += 0.35
	}
	factors["specificity"] = specificity

	// Vagueness penalty
	vague := 1.0
	if matches := s.vagueRef.FindAllString(content, -1); len(matches) > 0 {
		vague -= 0.25 * float64(len(matches))
		if vague < 0 {
			vague = 0
		}
	}
	factors["clarity"] = vague

	score := 0.35*factors["length"] + 0.4*factors["specificity"] + 0.25*factors["clarity"]
	if score > 1 {
		score = 1
	}

	return Score{Score: score, Factors: factors}
}

package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreContent(t *testing.T) {
	s := NewScorer()

	t.Run("specific content scores higher than vague", func(t *testing.T) {
		specific := s.ScoreContent("the retry loop in `fetchWithBackoff()` caps at 5 attempts, configured in internal/http/client.go")
		vague := s.ScoreContent("something about retries maybe")

		assert.Greater(t, specific.Score, vague.Score)
	})

	t.Run("score stays in range", func(t *testing.T) {
		tests := []string{
			"",
			"x",
			"a perfectly ordinary note about the deployment process",
			string(make([]byte, 5000)),
		}
		for _, content := range tests {
			result := s.ScoreContent(content)
			assert.GreaterOrEqual(t, result.Score, 0.0)
			assert.LessOrEqual(t, result.Score, 1.0)
		}
	})

	t.Run("factors are reported", func(t *testing.T) {
		result := s.ScoreContent("run `make lint` before pushing")
		assert.Contains(t, result.Factors, "length")
		assert.Contains(t, result.Factors, "specificity")
		assert.Contains(t, result.Factors, "clarity")
	})

	t.Run("vague words penalize clarity", func(t *testing.T) {
		result := s.ScoreContent("stuff happens somehow, probably things break maybe")
		assert.Less(t, result.Factors["clarity"], 0.5)
	})
}

package inference

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/revwatch/revwatch/internal/rules"
)

func TestBuildReviewPrompt(t *testing.T) {
	t.Run("contains code and task sections", func(t *testing.T) {
		system, user := buildReviewPrompt("def f(: pass", nil)

		assert.Contains(t, system, "code reviewer")
		assert.Contains(t, user, "### Code to review:")
		assert.Contains(t, user, "def f(: pass")
		assert.Contains(t, user, "Detect errors")
		assert.Contains(t, user, "Explain issues")
		assert.Contains(t, user, "Suggest improvements")
		assert.Contains(t, user, "### Expected output:")
	})

	t.Run("with rules", func(t *testing.T) {
		r := &rules.Rules{Language: "Python", Focus: []string{"error handling"}}
		_, user := buildReviewPrompt("x = 1", r)

		assert.Contains(t, user, "### Reviewer guidance:")
		assert.Contains(t, user, "Python")
		assert.Contains(t, user, "error handling")
	})

	t.Run("without rules no guidance section", func(t *testing.T) {
		_, user := buildReviewPrompt("x = 1", nil)
		assert.NotContains(t, user, "Reviewer guidance")
	})
}

func TestBuildFixPrompt(t *testing.T) {
	t.Run("asks for corrected code only", func(t *testing.T) {
		system, user := buildFixPrompt("def f(: pass", nil)

		assert.Contains(t, system, "corrected version")
		assert.Contains(t, user, "### Code to fix:")
		assert.Contains(t, user, "def f(: pass")
		assert.Contains(t, user, "corrected version")
	})

	t.Run("does not reference review output", func(t *testing.T) {
		_, user := buildFixPrompt("x = 1", nil)
		assert.NotContains(t, strings.ToLower(user), "review text")
	})
}

func TestBuildPromptLargeContent(t *testing.T) {
	content := strings.Repeat("y = y + 1\n", 2000)
	_, user := buildReviewPrompt(content, nil)
	assert.Contains(t, user, content)
}

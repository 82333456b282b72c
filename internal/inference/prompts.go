package inference

import (
	"strings"

	"github.com/revwatch/revwatch/internal/rules"
)

const reviewSystemPrompt = `You are an AI code reviewer that analyzes source code, detects errors, and suggests improvements. Be specific and reference the code you are given.`

const fixSystemPrompt = `You are an AI code fixer. You return a corrected version of the code you are given and nothing else: no commentary, no markdown fencing.`

// buildReviewPrompt constructs the system and user prompts for the review pass.
func buildReviewPrompt(code string, r *rules.Rules) (system string, user string) {
	system = reviewSystemPrompt

	var sb strings.Builder
	sb.WriteString("### Code to review:\n")
	sb.WriteString(code)
	sb.WriteString("\n\n### Task:\n")
	sb.WriteString("1. Detect errors: identify syntax errors, incorrect function calls, and undefined variables.\n")
	sb.WriteString("2. Explain issues: clearly state what is wrong.\n")
	sb.WriteString("3. Suggest improvements: provide best practices or optimized solutions.\n")
	sb.WriteString("\n### Expected output:\n")
	sb.WriteString("- Error analysis (detailed explanation)\n")
	sb.WriteString("- Improvement suggestions\n")
	sb.WriteString(r.PromptSection())
	user = sb.String()
	return
}

// buildFixPrompt constructs the system and user prompts for the fix pass.
// It takes the raw source content, independent of any review output.
func buildFixPrompt(code string, r *rules.Rules) (system string, user string) {
	system = fixSystemPrompt

	var sb strings.Builder
	sb.WriteString("### Code to fix:\n")
	sb.WriteString(code)
	sb.WriteString("\n\n### Task:\n")
	sb.WriteString("Return the complete corrected version of the code above. Fix syntax errors, incorrect function calls, and undefined variables. Keep the original structure where it is not broken.\n")
	sb.WriteString(r.PromptSection())
	user = sb.String()
	return
}

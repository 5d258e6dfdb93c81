package review

import (
	"fmt"
)

const analyzeSystemPrompt = `You are an expert code reviewer inspecting one changed file of a pull request. Your job is to find concrete problems in the changed lines and report them as structured findings.

Focus on:
- Security vulnerabilities (injection, hardcoded secrets, unsafe execution)
- Performance problems introduced by the change
- Bugs and logic errors
- Significant maintainability issues

Do NOT comment on:
- Formatting or style preferences handled by automated formatters
- Code outside the diff
- Trivia that does not affect correctness

Respond with ONLY a JSON array, no prose. Each element:
{
  "line": 42,
  "message": "What is wrong and how to fix it",
  "severity": "error|warning|info|suggestion",
  "category": "security|performance|style|logic|maintainability|general"
}

Use the new-file line numbers from the diff hunk headers. If an issue applies to the whole file, use line 0. An empty array means the change looks fine.`

const analyzePromptTemplate = `Review this changed file from a pull request.

**Pull request:** %s
**File:** %s (%s), +%d/-%d lines
%s
**Diff:**
` + "```diff\n%s\n```"

// buildFilePrompt constructs the per-file prompt for the model strategy.
// content is the head-revision file content, already truncated; it may be
// empty when the file could not be fetched.
func buildFilePrompt(file ChangedFile, pr *PullRequest, content string) string {
	var contextSection string
	if content != "" {
		contextSection = fmt.Sprintf("\n**File content (truncated):**\n```\n%s\n```\n", content)
	}

	title := pr.Title
	if title == "" {
		title = "(untitled)"
	}

	return fmt.Sprintf(analyzePromptTemplate,
		title,
		file.Filename,
		file.Status,
		file.Additions,
		file.Deletions,
		contextSection,
		file.Patch,
	)
}

// truncateText truncates a string to maxLen and marks the cut.
func truncateText(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "\n... (truncated)"
}

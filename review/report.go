package review

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Per-bucket display caps keep the comment body bounded no matter how
// large the pull request is; the overflow is counted, never silent.
const (
	maxErrorItems      = 8
	maxWarningItems    = 6
	maxSuggestionItems = 4
)

// noIssuesMessage is the affirmative body rendered when nothing was found.
const noIssuesMessage = "No issues found in the reviewed files. :white_check_mark:"

// RenderReport builds the Markdown report for one review run. It is a
// pure function of its inputs: same request, findings, and timestamp
// always render the same text. Findings keep their original discovery
// order within each severity bucket.
func RenderReport(pr *PullRequest, findings []Finding, filesReviewed int, generatedAt time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Automated Review — PR #%d: %s\n\n", pr.Number, pr.Title)
	fmt.Fprintf(&b, "Reviewed **%d** file(s) (+%d / -%d across the pull request).\n\n",
		filesReviewed, pr.Additions, pr.Deletions)

	if len(findings) == 0 {
		b.WriteString(noIssuesMessage + "\n")
		writeFooter(&b, generatedAt)
		return b.String()
	}

	var errs, warns, suggestions []Finding
	for _, f := range findings {
		switch f.Severity {
		case SeverityError:
			errs = append(errs, f)
		case SeverityWarning:
			warns = append(warns, f)
		default:
			suggestions = append(suggestions, f)
		}
	}

	fmt.Fprintf(&b, "**%d** issue(s): %d critical, %d warning(s), %d suggestion(s).\n\n",
		len(findings), len(errs), len(warns), len(suggestions))

	writeBucket(&b, "Critical issues", errs, maxErrorItems)
	writeBucket(&b, "Warnings", warns, maxWarningItems)
	writeBucket(&b, "Suggestions", suggestions, maxSuggestionItems)
	writeCategoryBreakdown(&b, findings)
	writeFooter(&b, generatedAt)

	return b.String()
}

func writeBucket(b *strings.Builder, title string, items []Finding, limit int) {
	if len(items) == 0 {
		return
	}

	fmt.Fprintf(b, "### %s\n\n", title)
	shown := items
	if len(shown) > limit {
		shown = shown[:limit]
	}
	for _, f := range shown {
		if f.Line > 0 {
			fmt.Fprintf(b, "- `%s:%d` — %s\n", f.FilePath, f.Line, f.Message)
		} else {
			fmt.Fprintf(b, "- `%s` — %s\n", f.FilePath, f.Message)
		}
	}
	if extra := len(items) - limit; extra > 0 {
		fmt.Fprintf(b, "\n_... and %d more in this section._\n", extra)
	}
	b.WriteString("\n")
}

// writeCategoryBreakdown renders the per-category histogram sorted by
// descending count, ties broken by each category's first appearance.
func writeCategoryBreakdown(b *strings.Builder, findings []Finding) {
	counts := make(map[Category]int)
	firstSeen := make(map[Category]int)
	var order []Category

	for i, f := range findings {
		if _, ok := counts[f.Category]; !ok {
			firstSeen[f.Category] = i
			order = append(order, f.Category)
		}
		counts[f.Category]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		if counts[order[i]] != counts[order[j]] {
			return counts[order[i]] > counts[order[j]]
		}
		return firstSeen[order[i]] < firstSeen[order[j]]
	})

	b.WriteString("### By category\n\n")
	b.WriteString("| Category | Count |\n")
	b.WriteString("|----------|-------|\n")
	for _, cat := range order {
		fmt.Fprintf(b, "| %s | %d |\n", cat, counts[cat])
	}
	b.WriteString("\n")
}

func writeFooter(b *strings.Builder, generatedAt time.Time) {
	fmt.Fprintf(b, "\n---\n_Add `%s` to the PR title to opt out of automated review. Generated at %s._\n",
		SkipMarker, generatedAt.UTC().Format("Jan 2, 2006 15:04 UTC"))
}

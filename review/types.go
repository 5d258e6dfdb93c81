// Package review implements the diff-analysis and reporting pipeline.
package review

import (
	"context"
	"strings"
	"time"
)

// Severity is the importance level of a finding.
type Severity string

const (
	SeverityError      Severity = "error"
	SeverityWarning    Severity = "warning"
	SeverityInfo       Severity = "info"
	SeveritySuggestion Severity = "suggestion"
)

// Category classifies what kind of issue a finding is.
type Category string

const (
	CategorySecurity        Category = "security"
	CategoryPerformance     Category = "performance"
	CategoryStyle           Category = "style"
	CategoryLogic           Category = "logic"
	CategoryMaintainability Category = "maintainability"
	CategoryGeneral         Category = "general"
)

// Finding is one reported issue. Line is 1-based in the head version of
// the file; 0 means the finding applies to the file as a whole.
type Finding struct {
	FilePath string   `json:"file_path"`
	Line     int      `json:"line_number,omitempty"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Category Category `json:"category"`
}

// ChangedFile is one file of a pull request after triage. Immutable once
// built; identity is the filename for the duration of a run.
type ChangedFile struct {
	Filename  string
	Additions int
	Deletions int
	Patch     string
	Status    string
	Extension string
}

// File statuses reported by the hosting API. Removed files are kept for
// bookkeeping but never analyzed; added files have no prior revision to
// fetch context from.
const (
	StatusAdded   = "added"
	StatusRemoved = "removed"
)

// PullRequest is the read-only review context fetched once per run.
type PullRequest struct {
	Owner        string
	Repo         string
	Number       int
	Title        string
	Body         string
	Additions    int
	Deletions    int
	ChangedFiles int
	HeadSHA      string
}

// Analyzer evaluates one changed file and emits findings. The pattern
// and model strategies are interchangeable behind this interface.
type Analyzer interface {
	// Name identifies the strategy in logs.
	Name() string
	// Analyze inspects a single changed file. A file with an empty patch
	// produces zero findings, not an error.
	Analyze(ctx context.Context, file ChangedFile, pr *PullRequest) ([]Finding, error)
	// Cooldown is the pause enforced after each analyzed file, used by
	// the model strategy to respect shared API quota. Zero means none.
	Cooldown() time.Duration
}

// SkipMarker in a PR title opts the pull request out of review entirely.
const SkipMarker = "[skip-review]"

// ShouldSkip reports whether a PR title carries the opt-out marker.
// The entry point consults this before the pipeline is invoked.
func ShouldSkip(title string) bool {
	return strings.Contains(title, SkipMarker)
}

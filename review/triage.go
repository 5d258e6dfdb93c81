package review

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/diffsentry/diffsentry/githubapi"
)

const (
	// filesPerPage is the page size used when listing changed files.
	filesPerPage = 100

	// maxFilePages bounds worst-case pagination (~5000 files).
	maxFilePages = 50

	// defaultMaxChangeSize drops files whose additions+deletions exceed
	// it, to avoid pathological analysis cost on generated or bulk-edited
	// files. The boundary itself is kept.
	defaultMaxChangeSize = 1500
)

// defaultAllowedExtensions is the set of source and config extensions
// worth analyzing.
var defaultAllowedExtensions = []string{
	".py", ".js", ".jsx", ".ts", ".tsx", ".go", ".rb", ".java", ".kt",
	".php", ".c", ".cc", ".cpp", ".h", ".cs", ".rs", ".swift", ".scala",
	".sh", ".sql", ".html", ".css", ".vue", ".yml", ".yaml", ".json",
	".tf", ".toml",
}

// defaultSkipSubstrings marks generated, vendored, and bulk-maintained
// paths that are not worth reviewing. Matched case-insensitively against
// the full filename.
var defaultSkipSubstrings = []string{
	"node_modules/", "vendor/", "dist/", "build/",
	"package-lock.json", "yarn.lock", "pnpm-lock.yaml", "go.sum",
	"poetry.lock", "cargo.lock", "gemfile.lock", "composer.lock",
	".min.js", ".min.css", ".map",
	"migrations/", "locales/", "i18n/", "generated", ".pb.go", "_pb2.py",
}

// TriageOptions controls which changed files survive triage.
type TriageOptions struct {
	AllowedExtensions map[string]bool
	SkipSubstrings    []string
	MaxChangeSize     int
}

// DefaultTriageOptions returns the built-in triage policy.
func DefaultTriageOptions() TriageOptions {
	allowed := make(map[string]bool, len(defaultAllowedExtensions))
	for _, ext := range defaultAllowedExtensions {
		allowed[ext] = true
	}
	return TriageOptions{
		AllowedExtensions: allowed,
		SkipSubstrings:    defaultSkipSubstrings,
		MaxChangeSize:     defaultMaxChangeSize,
	}
}

// FilterFiles reduces a raw changed-file list to the reviewable subset.
// It is a pure function of its input: the same list always yields the
// same subset, in the original order. Removed files that pass the
// filters stay in the list for bookkeeping; the orchestrator never hands
// them to a detector.
func FilterFiles(files []githubapi.PullRequestFile, opts TriageOptions, logger *slog.Logger) []ChangedFile {
	var kept []ChangedFile
	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f.Filename))

		if !opts.AllowedExtensions[ext] {
			logger.Debug("skipping file with unrecognized extension", "file", f.Filename, "ext", ext)
			continue
		}
		if f.Additions+f.Deletions > opts.MaxChangeSize {
			logger.Info("skipping oversized change",
				"file", f.Filename,
				"changes", f.Additions+f.Deletions,
				"max", opts.MaxChangeSize,
			)
			continue
		}
		if sub := matchSkipSubstring(f.Filename, opts.SkipSubstrings); sub != "" {
			logger.Debug("skipping generated or vendored path", "file", f.Filename, "matched", sub)
			continue
		}

		kept = append(kept, ChangedFile{
			Filename:  f.Filename,
			Additions: f.Additions,
			Deletions: f.Deletions,
			Patch:     f.Patch,
			Status:    f.Status,
			Extension: ext,
		})
	}
	return kept
}

func matchSkipSubstring(filename string, substrings []string) string {
	lower := strings.ToLower(filename)
	for _, sub := range substrings {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return sub
		}
	}
	return ""
}

// listReviewableFiles fetches the full changed-file list page by page and
// filters it down to the reviewable subset.
func (r *Reviewer) listReviewableFiles(ctx context.Context, owner, repo string, number int) ([]ChangedFile, error) {
	var raw []githubapi.PullRequestFile

	for page := 1; ; page++ {
		if page > maxFilePages {
			r.logger.Warn("changed-file pagination cap reached, truncating",
				"pages", maxFilePages,
				"files", len(raw),
			)
			break
		}

		files, err := r.gh.ListPullRequestFiles(ctx, owner, repo, number, page, filesPerPage)
		if err != nil {
			return nil, fmt.Errorf("failed to list files (page %d): %w", page, err)
		}
		raw = append(raw, files...)

		// A short page means the listing is complete.
		if len(files) < filesPerPage {
			break
		}
	}

	kept := FilterFiles(raw, r.triage, r.logger)
	r.logger.Info("triaged changed files", "fetched", len(raw), "reviewable", len(kept))
	return kept, nil
}

package review

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/diffsentry/diffsentry/githubapi"
	"github.com/diffsentry/diffsentry/storage"
)

// Reviewer orchestrates one review run: triage, per-file analysis,
// aggregation, and posting. It holds no state across runs; every run is
// a pure function of the diff snapshot it observes.
type Reviewer struct {
	gh       *githubapi.Client
	analyzer Analyzer
	store    storage.Storage
	logger   *slog.Logger
	triage   TriageOptions

	// sleep and now are replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewReviewer creates a Reviewer. store may be nil to skip run-history
// persistence.
func NewReviewer(gh *githubapi.Client, analyzer Analyzer, store storage.Storage, logger *slog.Logger) *Reviewer {
	return &Reviewer{
		gh:       gh,
		analyzer: analyzer,
		store:    store,
		logger:   logger,
		triage:   DefaultTriageOptions(),
		sleep: func(ctx context.Context, d time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				return nil
			}
		},
		now: time.Now,
	}
}

// SetTriageOptions overrides the default triage policy.
func (r *Reviewer) SetTriageOptions(opts TriageOptions) {
	r.triage = opts
}

// ReviewInput identifies the pull request to review.
type ReviewInput struct {
	Owner    string
	Repo     string
	PRNumber int
	// DryRun renders the report without posting it.
	DryRun bool
	// Meta is pre-fetched pull-request metadata, e.g. from the entry
	// point's opt-out check. When nil the reviewer fetches it.
	Meta *githubapi.PullRequest
}

// Result is the outcome of one review run.
type Result struct {
	PullRequest   *PullRequest
	FilesReviewed int
	FilesFailed   int
	Findings      []Finding
	Report        string
	CommentURL    string
}

// Review runs the full pipeline for one pull request. Per-file analysis
// failures are logged and skipped; failures to fetch the file list or to
// post the report are fatal, after a best-effort diagnostic comment.
func (r *Reviewer) Review(ctx context.Context, input *ReviewInput) (*Result, error) {
	r.logger.Info("starting review",
		"owner", input.Owner,
		"repo", input.Repo,
		"pr", input.PRNumber,
		"detector", r.analyzer.Name(),
	)

	meta := input.Meta
	if meta == nil {
		var err error
		meta, err = r.gh.GetPullRequest(ctx, input.Owner, input.Repo, input.PRNumber)
		if err != nil {
			r.postErrorComment(ctx, input, err)
			return nil, fmt.Errorf("failed to fetch pull request: %w", err)
		}
	}

	pr := &PullRequest{
		Owner:        input.Owner,
		Repo:         input.Repo,
		Number:       meta.Number,
		Title:        meta.Title,
		Body:         meta.Body,
		Additions:    meta.Additions,
		Deletions:    meta.Deletions,
		ChangedFiles: meta.ChangedFiles,
	}
	if meta.Head != nil {
		pr.HeadSHA = meta.Head.SHA
	}

	files, err := r.listReviewableFiles(ctx, input.Owner, input.Repo, input.PRNumber)
	if err != nil {
		r.postErrorComment(ctx, input, err)
		return nil, fmt.Errorf("failed to list reviewable files: %w", err)
	}

	var findings []Finding
	reviewed, failed := 0, 0
	for _, file := range files {
		if file.Status == StatusRemoved {
			r.logger.Debug("skipping removed file", "file", file.Filename)
			continue
		}

		fileFindings, err := r.analyzer.Analyze(ctx, file, pr)
		if err != nil {
			// A single file must never abort the run; the report still
			// covers every file that succeeded.
			r.logger.Error("file analysis failed, continuing",
				"file", file.Filename,
				"error", err,
			)
			failed++
			continue
		}
		reviewed++
		findings = append(findings, fileFindings...)

		if d := r.analyzer.Cooldown(); d > 0 {
			if serr := r.sleep(ctx, d); serr != nil {
				return nil, serr
			}
		}
	}

	r.logger.Info("analysis complete",
		"files_reviewed", reviewed,
		"files_failed", failed,
		"findings", len(findings),
	)

	report := RenderReport(pr, findings, reviewed, r.now())
	result := &Result{
		PullRequest:   pr,
		FilesReviewed: reviewed,
		FilesFailed:   failed,
		Findings:      findings,
		Report:        report,
	}

	if !input.DryRun {
		comment, err := r.gh.CreateIssueComment(ctx, input.Owner, input.Repo, input.PRNumber, report)
		if err != nil {
			r.postErrorComment(ctx, input, err)
			return nil, fmt.Errorf("failed to post report: %w", err)
		}
		result.CommentURL = comment.HTMLURL
		r.logger.Info("posted report", "url", comment.HTMLURL)
	}

	r.storeRun(ctx, input, result)
	return result, nil
}

// postErrorComment attempts to leave a diagnostic comment on the PR when
// the run fails. Best effort: its own failure is only logged.
func (r *Reviewer) postErrorComment(ctx context.Context, input *ReviewInput, cause error) {
	body := fmt.Sprintf("Automated review could not complete: %v", cause)
	if _, err := r.gh.CreateIssueComment(ctx, input.Owner, input.Repo, input.PRNumber, body); err != nil {
		r.logger.Error("failed to post error report", "error", err)
	}
}

// storeRun persists aggregate run stats when a store is configured.
// Storage failures never fail the review.
func (r *Reviewer) storeRun(ctx context.Context, input *ReviewInput, result *Result) {
	if r.store == nil {
		return
	}

	var errs, warns, suggestions int
	for _, f := range result.Findings {
		switch f.Severity {
		case SeverityError:
			errs++
		case SeverityWarning:
			warns++
		default:
			suggestions++
		}
	}

	run := &storage.RunRecord{
		Owner:           input.Owner,
		Repo:            input.Repo,
		PRNumber:        input.PRNumber,
		Detector:        r.analyzer.Name(),
		FilesReviewed:   result.FilesReviewed,
		FilesFailed:     result.FilesFailed,
		ErrorCount:      errs,
		WarningCount:    warns,
		SuggestionCount: suggestions,
	}
	if m, ok := r.analyzer.(interface{ Usage() storage.TokenUsage }); ok {
		usage := m.Usage()
		run.Usage = &usage
	}

	if err := r.store.StoreRun(ctx, run); err != nil {
		r.logger.Error("failed to store run record", "error", err)
	}
}

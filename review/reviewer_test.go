package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/diffsentry/diffsentry/githubapi"
	"github.com/diffsentry/diffsentry/storage"
)

// fakeGitHub is an in-process stand-in for the pull-request endpoints.
type fakeGitHub struct {
	mu       sync.Mutex
	pr       githubapi.PullRequest
	prGets   int
	files    []githubapi.PullRequestFile
	comments []string
	failPost bool
}

func (f *fakeGitHub) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/repos/acme/widgets/pulls/7":
			f.prGets++
			json.NewEncoder(w).Encode(f.pr)
		case r.Method == http.MethodGet && r.URL.Path == "/repos/acme/widgets/pulls/7/files":
			if r.URL.Query().Get("page") == "1" {
				json.NewEncoder(w).Encode(f.files)
			} else {
				json.NewEncoder(w).Encode([]githubapi.PullRequestFile{})
			}
		case r.Method == http.MethodPost && r.URL.Path == "/repos/acme/widgets/issues/7/comments":
			if f.failPost {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			var req githubapi.IssueCommentRequest
			json.NewDecoder(r.Body).Decode(&req)
			f.comments = append(f.comments, req.Body)
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(githubapi.IssueComment{
				ID:      int64(len(f.comments)),
				HTMLURL: fmt.Sprintf("https://example.test/c/%d", len(f.comments)),
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func (f *fakeGitHub) postedComments() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.comments...)
}

func (f *fakeGitHub) metadataFetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prGets
}

func defaultFake() *fakeGitHub {
	return &fakeGitHub{
		pr: githubapi.PullRequest{
			Number: 7, Title: "Add payment handler", State: "open",
			Additions: 40, Deletions: 5, ChangedFiles: 3,
			Head: &githubapi.Ref{Ref: "feature", SHA: "abc123"},
		},
		files: []githubapi.PullRequestFile{
			{
				Filename: "src/pay.py", Status: "modified", Additions: 2,
				Patch: "@@ -0,0 +1,2 @@\n+amount = compute()\n+result = eval(user_input)",
			},
			{Filename: "src/old.py", Status: StatusRemoved, Deletions: 10, Patch: "@@ -1,1 +0,0 @@\n-gone"},
			{Filename: "README.md", Status: "modified", Additions: 3},
		},
	}
}

func newTestReviewer(t *testing.T, fake *fakeGitHub, analyzer Analyzer, store storage.Storage) (*Reviewer, func()) {
	t.Helper()
	server := httptest.NewServer(fake.handler())

	gh := githubapi.NewClient("test-token", discardLogger())
	gh.SetBaseURL(server.URL)

	if analyzer == nil {
		analyzer = NewPatternAnalyzer(discardLogger())
	}
	r := NewReviewer(gh, analyzer, store, discardLogger())
	r.now = func() time.Time { return time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC) }
	r.sleep = func(context.Context, time.Duration) error { return nil }
	return r, server.Close
}

func TestReviewEndToEnd(t *testing.T) {
	fake := defaultFake()
	r, done := newTestReviewer(t, fake, nil, nil)
	defer done()

	result, err := r.Review(context.Background(), &ReviewInput{Owner: "acme", Repo: "widgets", PRNumber: 7})
	if err != nil {
		t.Fatalf("Review: %v", err)
	}

	// Only pay.py is analyzed: old.py is removed, README.md is triaged out.
	if result.FilesReviewed != 1 || result.FilesFailed != 0 {
		t.Errorf("reviewed/failed = %d/%d, want 1/0", result.FilesReviewed, result.FilesFailed)
	}
	if len(result.Findings) != 1 {
		t.Fatalf("findings = %v, want the eval finding", result.Findings)
	}
	f := result.Findings[0]
	if f.FilePath != "src/pay.py" || f.Line != 2 || f.Severity != SeverityError {
		t.Errorf("unexpected finding: %+v", f)
	}

	comments := fake.postedComments()
	if len(comments) != 1 {
		t.Fatalf("posted comments = %d, want 1", len(comments))
	}
	if comments[0] != result.Report {
		t.Error("posted body differs from rendered report")
	}
	if !strings.Contains(result.Report, "## Automated Review — PR #7: Add payment handler") {
		t.Errorf("report header missing:\n%s", result.Report)
	}
	if result.CommentURL == "" {
		t.Error("CommentURL not set")
	}
	if result.PullRequest.HeadSHA != "abc123" {
		t.Errorf("HeadSHA = %q, want abc123", result.PullRequest.HeadSHA)
	}
}

func TestReviewDryRun(t *testing.T) {
	fake := defaultFake()
	r, done := newTestReviewer(t, fake, nil, nil)
	defer done()

	result, err := r.Review(context.Background(), &ReviewInput{Owner: "acme", Repo: "widgets", PRNumber: 7, DryRun: true})
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if result.Report == "" {
		t.Error("dry run should still render the report")
	}
	if len(fake.postedComments()) != 0 {
		t.Error("dry run must not post comments")
	}
	if result.CommentURL != "" {
		t.Errorf("CommentURL = %q, want empty on dry run", result.CommentURL)
	}
}

// Metadata already fetched by the caller (the opt-out check) is reused
// instead of fetched again.
func TestReviewAcceptsPrefetchedMetadata(t *testing.T) {
	fake := defaultFake()
	r, done := newTestReviewer(t, fake, nil, nil)
	defer done()

	meta := fake.pr
	result, err := r.Review(context.Background(), &ReviewInput{
		Owner: "acme", Repo: "widgets", PRNumber: 7, DryRun: true, Meta: &meta,
	})
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if got := fake.metadataFetches(); got != 0 {
		t.Errorf("metadata fetches = %d, want 0 when metadata is supplied", got)
	}
	if result.PullRequest.Title != "Add payment handler" || result.PullRequest.HeadSHA != "abc123" {
		t.Errorf("supplied metadata not used: %+v", result.PullRequest)
	}
}

// failOnFile wraps an analyzer and fails for one filename.
type failOnFile struct {
	inner    Analyzer
	filename string
}

func (f *failOnFile) Name() string            { return f.inner.Name() }
func (f *failOnFile) Cooldown() time.Duration { return f.inner.Cooldown() }
func (f *failOnFile) Analyze(ctx context.Context, file ChangedFile, pr *PullRequest) ([]Finding, error) {
	if file.Filename == f.filename {
		return nil, errors.New("model call failed: 503")
	}
	return f.inner.Analyze(ctx, file, pr)
}

func TestReviewPerFileFailureContinues(t *testing.T) {
	fake := defaultFake()
	fake.files = append(fake.files, githubapi.PullRequestFile{
		Filename: "src/other.py", Status: "modified", Additions: 1,
		Patch: "@@ -0,0 +1,1 @@\n+time.sleep(3)",
	})

	analyzer := &failOnFile{inner: NewPatternAnalyzer(discardLogger()), filename: "src/pay.py"}
	r, done := newTestReviewer(t, fake, analyzer, nil)
	defer done()

	result, err := r.Review(context.Background(), &ReviewInput{Owner: "acme", Repo: "widgets", PRNumber: 7})
	if err != nil {
		t.Fatalf("Review should survive a per-file failure: %v", err)
	}
	if result.FilesReviewed != 1 || result.FilesFailed != 1 {
		t.Errorf("reviewed/failed = %d/%d, want 1/1", result.FilesReviewed, result.FilesFailed)
	}
	// The surviving file's finding still makes it into the posted report.
	if len(result.Findings) != 1 || result.Findings[0].FilePath != "src/other.py" {
		t.Errorf("findings = %v, want one from src/other.py", result.Findings)
	}
	if len(fake.postedComments()) != 1 {
		t.Error("report should still be posted")
	}
}

func TestReviewPostFailureIsFatal(t *testing.T) {
	fake := defaultFake()
	fake.failPost = true
	r, done := newTestReviewer(t, fake, nil, nil)
	defer done()

	_, err := r.Review(context.Background(), &ReviewInput{Owner: "acme", Repo: "widgets", PRNumber: 7})
	if err == nil {
		t.Fatal("expected error when the report cannot be posted")
	}
	if !strings.Contains(err.Error(), "failed to post report") {
		t.Errorf("err = %v, want post failure", err)
	}
}

// slowAnalyzer reports a fixed cooldown so the pacing can be observed.
type slowAnalyzer struct {
	inner Analyzer
}

func (s *slowAnalyzer) Name() string            { return s.inner.Name() }
func (s *slowAnalyzer) Cooldown() time.Duration { return 250 * time.Millisecond }
func (s *slowAnalyzer) Analyze(ctx context.Context, file ChangedFile, pr *PullRequest) ([]Finding, error) {
	return s.inner.Analyze(ctx, file, pr)
}

func TestReviewAppliesCooldownBetweenFiles(t *testing.T) {
	fake := defaultFake()
	fake.files = append(fake.files, githubapi.PullRequestFile{
		Filename: "src/other.py", Status: "modified", Additions: 1,
		Patch: "@@ -0,0 +1,1 @@\n+x = 1",
	})

	analyzer := &slowAnalyzer{inner: NewPatternAnalyzer(discardLogger())}
	r, done := newTestReviewer(t, fake, analyzer, nil)
	defer done()

	var slept []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	if _, err := r.Review(context.Background(), &ReviewInput{Owner: "acme", Repo: "widgets", PRNumber: 7}); err != nil {
		t.Fatalf("Review: %v", err)
	}
	if len(slept) != 2 {
		t.Fatalf("cooldown sleeps = %v, want one per analyzed file", slept)
	}
	for i, d := range slept {
		if d != 250*time.Millisecond {
			t.Errorf("sleep[%d] = %v, want 250ms", i, d)
		}
	}
}

// memoryStore records run records in memory.
type memoryStore struct {
	mu   sync.Mutex
	runs []*storage.RunRecord
}

func (m *memoryStore) StoreRun(_ context.Context, run *storage.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *memoryStore) ListRunsForPR(context.Context, string, string, int) ([]*storage.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs, nil
}

func TestReviewStoresRunRecord(t *testing.T) {
	fake := defaultFake()
	store := &memoryStore{}
	r, done := newTestReviewer(t, fake, nil, store)
	defer done()

	if _, err := r.Review(context.Background(), &ReviewInput{Owner: "acme", Repo: "widgets", PRNumber: 7}); err != nil {
		t.Fatalf("Review: %v", err)
	}

	if len(store.runs) != 1 {
		t.Fatalf("stored runs = %d, want 1", len(store.runs))
	}
	run := store.runs[0]
	if run.Owner != "acme" || run.Repo != "widgets" || run.PRNumber != 7 {
		t.Errorf("run identity wrong: %+v", run)
	}
	if run.Detector != "patterns" {
		t.Errorf("Detector = %q, want patterns", run.Detector)
	}
	if run.FilesReviewed != 1 || run.ErrorCount != 1 || run.WarningCount != 0 {
		t.Errorf("run counts wrong: %+v", run)
	}
}

func TestShouldSkip(t *testing.T) {
	tests := []struct {
		title string
		want  bool
	}{
		{"Add payment handler", false},
		{"Add payment handler [skip-review]", true},
		{"[skip-review] WIP: refactor", true},
		{"skip review please", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ShouldSkip(tt.title); got != tt.want {
			t.Errorf("ShouldSkip(%q) = %v, want %v", tt.title, got, tt.want)
		}
	}
}

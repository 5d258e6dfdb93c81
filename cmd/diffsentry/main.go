// Command diffsentry reviews the changed files of a pull request and
// posts a categorized, severity-ranked report.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/diffsentry/diffsentry/config"
	"github.com/diffsentry/diffsentry/githubapi"
	"github.com/diffsentry/diffsentry/review"
	"github.com/diffsentry/diffsentry/storage"
	"github.com/diffsentry/diffsentry/storage/postgres"
	"github.com/spf13/cobra"
)

var (
	flagOwner    string
	flagRepo     string
	flagPR       int
	flagPolicy   string
	flagDetector string
	flagModel    string
	flagDryRun   bool
	flagVerbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "diffsentry",
	Short: "Automated pull-request diff review",
	Long:  "Diffsentry inspects the changed files of a pull request and posts a categorized, severity-ranked report of findings.",
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review one pull request and post the report",
	RunE:  runReview,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored review runs for one pull request",
	RunE:  runHistory,
}

func init() {
	reviewCmd.Flags().StringVar(&flagOwner, "owner", "", "Repository owner (required)")
	reviewCmd.Flags().StringVar(&flagRepo, "repo", "", "Repository name (required)")
	reviewCmd.Flags().IntVar(&flagPR, "pr", 0, "Pull request number (required)")
	reviewCmd.Flags().StringVar(&flagPolicy, "policy", "", "Path to a YAML review policy file")
	reviewCmd.Flags().StringVar(&flagDetector, "detector", "", "Detection strategy: patterns or model (overrides policy)")
	reviewCmd.Flags().StringVar(&flagModel, "model", "", "Model ID for the model detector (overrides policy)")
	reviewCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Print the report instead of posting it")
	reviewCmd.Flags().BoolVar(&flagVerbose, "verbose", false, "Enable debug logging")

	_ = reviewCmd.MarkFlagRequired("owner")
	_ = reviewCmd.MarkFlagRequired("repo")
	_ = reviewCmd.MarkFlagRequired("pr")

	historyCmd.Flags().StringVar(&flagOwner, "owner", "", "Repository owner (required)")
	historyCmd.Flags().StringVar(&flagRepo, "repo", "", "Repository name (required)")
	historyCmd.Flags().IntVar(&flagPR, "pr", 0, "Pull request number (required)")

	_ = historyCmd.MarkFlagRequired("owner")
	_ = historyCmd.MarkFlagRequired("repo")
	_ = historyCmd.MarkFlagRequired("pr")

	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runReview(cmd *cobra.Command, _ []string) error {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	policy, err := config.LoadPolicy(flagPolicy)
	if err != nil {
		return err
	}
	if flagDetector != "" {
		policy.Detector = flagDetector
		if err := policy.Validate(); err != nil {
			return err
		}
	}
	if flagModel != "" {
		policy.Model = flagModel
	}

	gh, err := newGitHubClient(cfg, logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// The opt-out marker skips the run before the pipeline is invoked.
	pr, err := gh.GetPullRequest(ctx, flagOwner, flagRepo, flagPR)
	if err != nil {
		return fmt.Errorf("failed to fetch pull request: %w", err)
	}
	if review.ShouldSkip(pr.Title) {
		logger.Info("review skipped by opt-out marker", "pr", flagPR, "marker", review.SkipMarker)
		return nil
	}

	analyzer, err := newAnalyzer(cfg, policy, gh, logger)
	if err != nil {
		return err
	}

	var store storage.Storage
	if cfg.DatabaseURL != "" {
		pg, err := postgres.NewFromDSN(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to run-history store: %w", err)
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate run-history store: %w", err)
		}
		store = pg
	}

	reviewer := review.NewReviewer(gh, analyzer, store, logger)
	reviewer.SetTriageOptions(triageOptions(policy))

	result, err := reviewer.Review(ctx, &review.ReviewInput{
		Owner:    flagOwner,
		Repo:     flagRepo,
		PRNumber: flagPR,
		DryRun:   flagDryRun,
		Meta:     pr,
	})
	if err != nil {
		logger.Error("review failed", "error", err)
		return err
	}

	if flagDryRun {
		fmt.Println(result.Report)
	}
	logger.Info("review complete",
		"files_reviewed", result.FilesReviewed,
		"files_failed", result.FilesFailed,
		"findings", len(result.Findings),
	)
	return nil
}

func runHistory(cmd *cobra.Command, _ []string) error {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return fmt.Errorf("DATABASE_URL is required for run history")
	}

	pg, err := postgres.NewFromDSN(dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to run-history store: %w", err)
	}
	defer pg.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	runs, err := pg.ListRunsForPR(ctx, flagOwner, flagRepo, flagPR)
	if err != nil {
		return err
	}
	fmt.Print(formatRunHistory(flagOwner, flagRepo, flagPR, runs))
	return nil
}

// formatRunHistory renders stored runs as one line per run, oldest first.
func formatRunHistory(owner, repo string, pr int, runs []*storage.RunRecord) string {
	if len(runs) == 0 {
		return fmt.Sprintf("No stored runs for %s/%s#%d.\n", owner, repo, pr)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d run(s) for %s/%s#%d:\n", len(runs), owner, repo, pr)
	for _, run := range runs {
		fmt.Fprintf(&b, "  %s  detector=%s files=%d failed=%d errors=%d warnings=%d suggestions=%d",
			run.CreatedAt, run.Detector, run.FilesReviewed, run.FilesFailed,
			run.ErrorCount, run.WarningCount, run.SuggestionCount)
		if run.Usage != nil {
			fmt.Fprintf(&b, " tokens=%d/%d", run.Usage.InputTokens, run.Usage.OutputTokens)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func newGitHubClient(cfg *config.Config, logger *slog.Logger) (*githubapi.Client, error) {
	var gh *githubapi.Client
	if cfg.AppID != 0 {
		privateKey, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key from %s: %w", cfg.PrivateKeyPath, err)
		}
		gh, err = githubapi.NewAppClient(cfg.AppID, cfg.InstallationID, privateKey, logger)
		if err != nil {
			return nil, err
		}
	} else {
		gh = githubapi.NewClient(cfg.Token, logger)
	}
	if cfg.APIBaseURL != "" {
		gh.SetBaseURL(cfg.APIBaseURL)
	}
	return gh, nil
}

func newAnalyzer(cfg *config.Config, policy *config.Policy, gh *githubapi.Client, logger *slog.Logger) (review.Analyzer, error) {
	switch policy.Detector {
	case config.DetectorModel:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for the model detector")
		}
		return review.NewModelAnalyzer(gh, cfg.AnthropicAPIKey, policy.Model, logger), nil
	default:
		return review.NewPatternAnalyzer(logger), nil
	}
}

func triageOptions(policy *config.Policy) review.TriageOptions {
	opts := review.DefaultTriageOptions()
	if len(policy.AllowedExtensions) > 0 {
		allowed := make(map[string]bool, len(policy.AllowedExtensions))
		for _, ext := range policy.AllowedExtensions {
			allowed[ext] = true
		}
		opts.AllowedExtensions = allowed
	}
	opts.SkipSubstrings = append(opts.SkipSubstrings, policy.SkipPatterns...)
	if policy.MaxChangeSize > 0 {
		opts.MaxChangeSize = policy.MaxChangeSize
	}
	return opts
}

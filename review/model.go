package review

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/diffsentry/diffsentry/githubapi"
	"github.com/diffsentry/diffsentry/storage"
)

const (
	// DefaultModel is the Claude model used for model-backed analysis.
	DefaultModel = "claude-sonnet-4-20250514"

	// modelAPITimeout is the maximum time to wait for one model response.
	modelAPITimeout = 3 * time.Minute

	// modelCooldown is the pause enforced after each analyzed file to
	// respect shared API quota.
	modelCooldown = 1 * time.Second

	// contentPreviewLimit caps how much head-file content goes into the
	// prompt.
	contentPreviewLimit = 2000

	// degradePreviewLimit caps the raw text carried by a degraded
	// finding when the reply cannot be parsed.
	degradePreviewLimit = 500
)

// ModelAnalyzer is the model-backed detection strategy. It sends one
// request per file to the Anthropic API and parses the reply leniently.
type ModelAnalyzer struct {
	gh     *githubapi.Client
	apiKey string
	model  string
	logger *slog.Logger

	mu    sync.Mutex
	usage storage.TokenUsage
}

// NewModelAnalyzer creates the model-backed strategy. An empty model
// selects the default. The GitHub client is used to fetch head-revision
// file content for richer context; it may be nil, in which case only the
// diff is sent.
func NewModelAnalyzer(gh *githubapi.Client, apiKey, model string, logger *slog.Logger) *ModelAnalyzer {
	if model == "" {
		model = DefaultModel
	}
	return &ModelAnalyzer{
		gh:     gh,
		apiKey: apiKey,
		model:  model,
		logger: logger,
	}
}

// Name identifies the strategy in logs.
func (a *ModelAnalyzer) Name() string { return "model" }

// Cooldown is the fixed inter-file delay after each model call.
func (a *ModelAnalyzer) Cooldown() time.Duration { return modelCooldown }

// Usage returns the accumulated token usage across all analyzed files.
func (a *ModelAnalyzer) Usage() storage.TokenUsage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.usage
}

// Analyze sends the file's diff (plus truncated head content when
// available) to the model and converts the structured reply to findings.
// A call failure is returned to the caller, which logs it and moves on;
// an unparsable reply degrades to a single general finding instead.
func (a *ModelAnalyzer) Analyze(ctx context.Context, file ChangedFile, pr *PullRequest) ([]Finding, error) {
	if file.Patch == "" || file.Status == StatusRemoved {
		return nil, nil
	}

	content := a.fetchHeadContent(ctx, file, pr)
	prompt := buildFilePrompt(file, pr, content)

	client := anthropic.NewClient(option.WithAPIKey(a.apiKey))

	timeoutCtx, cancel := context.WithTimeout(ctx, modelAPITimeout)
	defer cancel()

	message, err := retryWithBackoff(timeoutCtx, a.logger, "analyze "+file.Filename, func() (*anthropic.Message, error) {
		return client.Messages.New(timeoutCtx, anthropic.MessageNewParams{
			Model:     anthropic.F(anthropic.Model(a.model)),
			MaxTokens: anthropic.F(int64(4096)),
			System: anthropic.F([]anthropic.TextBlockParam{
				anthropic.NewTextBlock(analyzeSystemPrompt),
			}),
			Messages: anthropic.F([]anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			}),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("model call failed for %s: %w", file.Filename, err)
	}

	a.recordUsage(message)

	var text string
	for _, block := range message.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("no text content in model response for %s", file.Filename)
	}

	return a.parseReply(text, file.Filename), nil
}

func (a *ModelAnalyzer) fetchHeadContent(ctx context.Context, file ChangedFile, pr *PullRequest) string {
	if a.gh == nil || pr.HeadSHA == "" || file.Status == StatusAdded {
		return ""
	}
	content, err := a.gh.GetFileContent(ctx, pr.Owner, pr.Repo, file.Filename, pr.HeadSHA)
	if err != nil {
		a.logger.Debug("head content unavailable", "file", file.Filename, "error", err)
		return ""
	}
	return truncateText(content, contentPreviewLimit)
}

func (a *ModelAnalyzer) recordUsage(message *anthropic.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.usage.InputTokens += message.Usage.InputTokens
	a.usage.OutputTokens += message.Usage.OutputTokens
}

// modelFinding is the JSON element shape expected from the model.
type modelFinding struct {
	Line     int    `json:"line"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Category string `json:"category"`
}

// fencedArrayRegex locates a JSON array inside a markdown code fence.
var fencedArrayRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(\\[.*?\\])\\s*```")

// bareArrayRegex locates the first bracketed array in free text.
var bareArrayRegex = regexp.MustCompile(`(?s)\[.*\]`)

// parseReply extracts findings from the model reply. When no structured
// JSON can be located or parsed it degrades to a single informational
// finding carrying the truncated raw text rather than discarding the
// response.
func (a *ModelAnalyzer) parseReply(text, filename string) []Finding {
	raw := extractJSONArray(text)

	var items []modelFinding
	if raw == "" || json.Unmarshal([]byte(raw), &items) != nil {
		a.logger.Warn("unparsable model reply, degrading to raw note", "file", filename)
		return []Finding{{
			FilePath: filename,
			Message:  "Reviewer notes (unstructured): " + truncateText(text, degradePreviewLimit),
			Severity: SeverityInfo,
			Category: CategoryGeneral,
		}}
	}

	findings := make([]Finding, 0, len(items))
	for _, item := range items {
		if item.Message == "" {
			continue
		}
		line := item.Line
		if line < 0 {
			line = 0
		}
		findings = append(findings, Finding{
			FilePath: filename,
			Line:     line,
			Message:  item.Message,
			Severity: normalizeSeverity(item.Severity),
			Category: normalizeCategory(item.Category),
		})
	}
	return findings
}

// extractJSONArray takes the first fenced JSON block, falling back to the
// first bracketed span.
func extractJSONArray(text string) string {
	if m := fencedArrayRegex.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return bareArrayRegex.FindString(text)
}

func normalizeSeverity(s string) Severity {
	switch Severity(s) {
	case SeverityError, SeverityWarning, SeverityInfo, SeveritySuggestion:
		return Severity(s)
	default:
		return SeverityInfo
	}
}

func normalizeCategory(c string) Category {
	switch Category(c) {
	case CategorySecurity, CategoryPerformance, CategoryStyle,
		CategoryLogic, CategoryMaintainability, CategoryGeneral:
		return Category(c)
	default:
		return CategoryGeneral
	}
}

package review

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"
)

// maxLineLength is the quality-rule threshold for overly long lines.
const maxLineLength = 120

// patternRule is one language-gated detection rule. A nil extension set
// means the rule applies to every file.
type patternRule struct {
	message string
	exts    map[string]bool
	match   func(line string) bool
}

func (r patternRule) applies(ext string) bool {
	return r.exts == nil || r.exts[ext]
}

func regexRule(pattern, message string, exts map[string]bool) patternRule {
	re := regexp.MustCompile(pattern)
	return patternRule{message: message, exts: exts, match: re.MatchString}
}

func extSet(exts ...string) map[string]bool {
	m := make(map[string]bool, len(exts))
	for _, e := range exts {
		m[e] = true
	}
	return m
}

var (
	pyExts   = extSet(".py")
	jsExts   = extSet(".js", ".jsx", ".ts", ".tsx", ".vue")
	webExts  = extSet(".js", ".jsx", ".ts", ".tsx", ".vue", ".html")
	goExts   = extSet(".go")
	jvmExts  = extSet(".java", ".kt", ".scala")
	sqlyExts = extSet(".py", ".js", ".jsx", ".ts", ".tsx", ".rb", ".php", ".java", ".go", ".cs", ".sql")
)

// securityRules fire as error/security findings.
var securityRules = []patternRule{
	regexRule(`(?i)\b(eval|exec)\s*\(`,
		"Dynamic code execution; never pass untrusted input to eval/exec",
		extSet(".py", ".js", ".jsx", ".ts", ".tsx", ".php", ".rb")),
	regexRule(`(?i)(password|passwd|pwd|secret|api[_-]?key|token|credential)\w*\s*[:=]\s*["'][^"']{8,}["']`,
		"Possible hardcoded credential; move secrets to environment or a secret store",
		nil),
	regexRule(`(?i)["'][^"']*\b(select|insert|update|delete)\b[^"']*["']\s*(\+|%)`,
		"SQL statement built with string concatenation; use parameterized queries",
		sqlyExts),
	regexRule(`(?i)(execute|query)\s*\(\s*f?["'][^"']*(\{|%s)`,
		"SQL statement built with string interpolation; use parameterized queries",
		sqlyExts),
	regexRule(`(?i)(\.innerHTML\s*=|document\.write\s*\(|dangerouslySetInnerHTML)`,
		"Direct markup injection sink; sanitize input or use textContent",
		webExts),
	regexRule(`(?i)\b(pickle|cpickle|marshal)\.loads?\s*\(|yaml\.load\s*\(`,
		"Unsafe deserialization of untrusted data; use a safe loader",
		pyExts),
	regexRule(`(?i)os\.system\s*\(|shell\s*=\s*true`,
		"Shell invocation with a composed command; avoid shell=True and os.system",
		pyExts),
	regexRule(`(?i)\bexecSync\s*\(|child_process`,
		"Synchronous shell invocation; validate arguments and prefer execFile",
		jsExts),
}

// performanceRules fire as warning/performance findings.
var performanceRules = []patternRule{
	regexRule(`(?i)time\.sleep\s*\(`,
		"Blocking sleep call; prefer event-driven waits or backoff helpers",
		pyExts),
	regexRule(`\btime\.Sleep\(`,
		"Blocking sleep call; prefer context-aware timers",
		goExts),
	regexRule(`(?i)Thread\.sleep\s*\(`,
		"Blocking sleep call on a thread; prefer scheduled executors",
		jvmExts),
	regexRule(`\+=\s*(\[|["'` + "`" + `])`,
		"Accumulating with += builds a new value per iteration; collect parts and join once",
		extSet(".py", ".js", ".jsx", ".ts", ".tsx")),
	regexRule(`(?i)^\s*for\b.*\b(execute|query|find_one|fetch)\w*\s*\(`,
		"Query issued inside a loop; batch the lookups instead",
		extSet(".py", ".js", ".jsx", ".ts", ".tsx", ".rb")),
	regexRule(`(?i)select\s+\*\s+from`,
		"Wildcard SELECT fetches every column; name the columns you need",
		sqlyExts),
	regexRule(`(?i)for\s*\(.*document\.(getElementById|querySelector)`,
		"DOM lookup inside a loop; hoist the element reference out",
		webExts),
}

// qualityRules fire as info/style findings.
var qualityRules = []patternRule{
	regexRule(`(?i)console\.(log|debug|trace)\s*\(`,
		"Leftover console statement; remove before merging",
		webExts),
	regexRule(`^\s*print\s*\(`,
		"Leftover print statement; use the logging module",
		pyExts),
	regexRule(`System\.out\.println`,
		"Leftover stdout print; use a logger",
		jvmExts),
	regexRule(`\b(TODO|FIXME|HACK)\b`,
		"Unresolved TODO/FIXME marker; file an issue or resolve it",
		nil),
	{
		message: "Line exceeds 120 characters; wrap it for readability",
		match:   func(line string) bool { return len(line) > maxLineLength },
	},
	regexRule(`(^|[^=!<>])(==|!=)([^=]|$)`,
		"Loose equality comparison; use === / !== to avoid coercion surprises",
		extSet(".js", ".jsx", ".vue")),
	regexRule(`^\s*except\s*:`,
		"Bare except swallows every error; catch specific exceptions",
		pyExts),
	regexRule(`catch\s*(\([^)]*\))?\s*\{\s*\}`,
		"Empty catch block silently drops the error; handle or log it",
		jsExts),
	regexRule(`^\s*(#|//)\s*(if|for|while|def|function|return|import|from|const|let|var)\b`,
		"Commented-out code; delete it, version control remembers",
		nil),
}

// ruleFamily binds a rule table to its fixed severity/category pair.
type ruleFamily struct {
	severity Severity
	category Category
	rules    []patternRule
}

// ruleFamilies are evaluated in order for each added line; within a
// family only the first matching rule fires, so one line yields at most
// one finding per family.
var ruleFamilies = []ruleFamily{
	{severity: SeverityError, category: CategorySecurity, rules: securityRules},
	{severity: SeverityWarning, category: CategoryPerformance, rules: performanceRules},
	{severity: SeverityInfo, category: CategoryStyle, rules: qualityRules},
}

// PatternAnalyzer is the local, deterministic detection strategy. It
// evaluates the language-gated rule tables against every added line.
type PatternAnalyzer struct {
	logger *slog.Logger
}

// NewPatternAnalyzer creates the pattern-rule strategy.
func NewPatternAnalyzer(logger *slog.Logger) *PatternAnalyzer {
	return &PatternAnalyzer{logger: logger}
}

// Name identifies the strategy in logs.
func (a *PatternAnalyzer) Name() string { return "patterns" }

// Cooldown is zero: local rules have no quota to respect.
func (a *PatternAnalyzer) Cooldown() time.Duration { return 0 }

// Analyze evaluates the rule families against each added line of the
// file's patch.
func (a *PatternAnalyzer) Analyze(_ context.Context, file ChangedFile, _ *PullRequest) ([]Finding, error) {
	if file.Patch == "" || file.Status == StatusRemoved {
		return nil, nil
	}

	var findings []Finding
	for _, line := range MapAddedLines(file.Patch) {
		if strings.TrimSpace(line.Content) == "" {
			continue
		}
		for _, fam := range ruleFamilies {
			for _, rule := range fam.rules {
				if !rule.applies(file.Extension) {
					continue
				}
				if rule.match(line.Content) {
					findings = append(findings, Finding{
						FilePath: file.Filename,
						Line:     line.Number,
						Message:  rule.message,
						Severity: fam.severity,
						Category: fam.category,
					})
					break // first match wins within a family
				}
			}
		}
	}
	return findings, nil
}

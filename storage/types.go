package storage

// TokenUsage represents model API token usage for a run.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// RunRecord is the aggregate outcome of one review run.
type RunRecord struct {
	Owner           string      `json:"owner"`
	Repo            string      `json:"repo"`
	PRNumber        int         `json:"pr_number"`
	Detector        string      `json:"detector"`
	FilesReviewed   int         `json:"files_reviewed"`
	FilesFailed     int         `json:"files_failed"`
	ErrorCount      int         `json:"error_count"`
	WarningCount    int         `json:"warning_count"`
	SuggestionCount int         `json:"suggestion_count"`
	Usage           *TokenUsage `json:"usage,omitempty"`
	CreatedAt       string      `json:"created_at,omitempty"`
}

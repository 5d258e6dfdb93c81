// Package githubapi provides a resilient GitHub REST client for the reviewer.
package githubapi

// PullRequest represents a GitHub pull request.
type PullRequest struct {
	ID           int64  `json:"id"`
	Number       int    `json:"number"`
	State        string `json:"state"`
	Title        string `json:"title"`
	Body         string `json:"body"`
	Additions    int    `json:"additions"`
	Deletions    int    `json:"deletions"`
	ChangedFiles int    `json:"changed_files"`
	Head         *Ref   `json:"head"`
	Base         *Ref   `json:"base"`
	User         *User  `json:"user"`
	HTMLURL      string `json:"html_url"`
}

// Ref represents a git reference (branch/commit).
type Ref struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

// User represents a GitHub user or organization.
type User struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Type  string `json:"type"`
}

// PullRequestFile represents a file changed in a pull request.
type PullRequestFile struct {
	SHA              string `json:"sha"`
	Filename         string `json:"filename"`
	Status           string `json:"status"` // added, removed, modified, renamed, copied, changed, unchanged
	Additions        int    `json:"additions"`
	Deletions        int    `json:"deletions"`
	Changes          int    `json:"changes"`
	Patch            string `json:"patch,omitempty"`
	PreviousFilename string `json:"previous_filename,omitempty"`
}

// FileContent represents the content of a file from the contents API.
type FileContent struct {
	Type     string `json:"type"`
	Encoding string `json:"encoding"`
	Size     int    `json:"size"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	Content  string `json:"content"`
	SHA      string `json:"sha"`
}

// IssueCommentRequest represents a request to create an issue comment.
type IssueCommentRequest struct {
	Body string `json:"body"`
}

// IssueComment represents a created issue comment.
type IssueComment struct {
	ID      int64  `json:"id"`
	HTMLURL string `json:"html_url"`
	Body    string `json:"body"`
	User    *User  `json:"user"`
}

// Package storage defines the run-history storage interface.
//
// Findings themselves are ephemeral and recomputed per run; only
// aggregate per-run statistics are persisted.
package storage

import (
	"context"
)

// Storage is the interface for run-history backends. Implementations
// must be safe for concurrent use by multiple goroutines.
type Storage interface {
	// StoreRun persists the aggregate record of one review run.
	StoreRun(ctx context.Context, run *RunRecord) error
	// ListRunsForPR returns the stored runs for a pull request, oldest
	// first.
	ListRunsForPR(ctx context.Context, owner, repo string, prNumber int) ([]*RunRecord, error)
}

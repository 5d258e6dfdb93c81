// Package postgres provides a PostgreSQL implementation of the storage
// interface. This is intended for deployments that want run history.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/diffsentry/diffsentry/storage"
	_ "github.com/lib/pq" // postgres driver
)

// PostgreSQL provides run-history storage using PostgreSQL.
type PostgreSQL struct {
	db *sql.DB
}

// New creates a new PostgreSQL storage instance.
func New(db *sql.DB) *PostgreSQL {
	return &PostgreSQL{db: db}
}

// NewFromDSN creates a new PostgreSQL storage instance from a connection string.
func NewFromDSN(dsn string) (*PostgreSQL, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &PostgreSQL{db: db}, nil
}

// Close closes the database connection.
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}

// Migrate creates the required database tables.
func (p *PostgreSQL) Migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS review_runs (
			id SERIAL PRIMARY KEY,
			owner TEXT NOT NULL,
			repo TEXT NOT NULL,
			pr_number INTEGER NOT NULL,
			detector TEXT NOT NULL,
			files_reviewed INTEGER NOT NULL,
			files_failed INTEGER NOT NULL,
			error_count INTEGER NOT NULL,
			warning_count INTEGER NOT NULL,
			suggestion_count INTEGER NOT NULL,
			usage JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_review_runs_pr ON review_runs(owner, repo, pr_number);
	`

	_, err := p.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// StoreRun stores one review-run record.
func (p *PostgreSQL) StoreRun(ctx context.Context, run *storage.RunRecord) error {
	query := `
		INSERT INTO review_runs (owner, repo, pr_number, detector, files_reviewed, files_failed, error_count, warning_count, suggestion_count, usage, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
	`

	_, err := p.db.ExecContext(ctx, query,
		run.Owner,
		run.Repo,
		run.PRNumber,
		run.Detector,
		run.FilesReviewed,
		run.FilesFailed,
		run.ErrorCount,
		run.WarningCount,
		run.SuggestionCount,
		usageToJSON(run.Usage),
	)
	if err != nil {
		return fmt.Errorf("failed to store run: %w", err)
	}

	return nil
}

// ListRunsForPR retrieves all runs for a pull request, oldest first.
func (p *PostgreSQL) ListRunsForPR(ctx context.Context, owner, repo string, prNumber int) ([]*storage.RunRecord, error) {
	query := `
		SELECT owner, repo, pr_number, detector, files_reviewed, files_failed, error_count, warning_count, suggestion_count, usage, created_at
		FROM review_runs
		WHERE owner = $1 AND repo = $2 AND pr_number = $3
		ORDER BY created_at ASC
	`

	rows, err := p.db.QueryContext(ctx, query, owner, repo, prNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*storage.RunRecord
	for rows.Next() {
		var run storage.RunRecord
		var usageJSON sql.NullString
		var createdAt time.Time

		if err := rows.Scan(
			&run.Owner,
			&run.Repo,
			&run.PRNumber,
			&run.Detector,
			&run.FilesReviewed,
			&run.FilesFailed,
			&run.ErrorCount,
			&run.WarningCount,
			&run.SuggestionCount,
			&usageJSON,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		run.Usage = usageFromJSON(usageJSON.String)
		run.CreatedAt = createdAt.Format(time.RFC3339)
		runs = append(runs, &run)
	}

	return runs, rows.Err()
}

// Verify PostgreSQL implements Storage at compile time.
var _ storage.Storage = (*PostgreSQL)(nil)

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/kurihiro0119/github-repo-inventory/internal/domain"
	apperrors "github.com/kurihiro0119/github-repo-inventory/internal/errors"
	"github.com/kurihiro0119/github-repo-inventory/internal/storage"
)

// postgresStorage implements the Storage interface for PostgreSQL
type postgresStorage struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresStorage creates a new PostgreSQL storage instance
func NewPostgresStorage(connStr string) (storage.Storage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := newStorage(db)
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func newStorage(db *sql.DB) *postgresStorage {
	return &postgresStorage{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Migrate runs database migrations
func (s *postgresStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS inventory_runs (
		id TEXT PRIMARY KEY,
		org TEXT NOT NULL,
		count_mode TEXT NOT NULL,
		status TEXT NOT NULL,
		processed INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		output_path TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_inventory_runs_org_started ON inventory_runs(org, started_at DESC);

	CREATE TABLE IF NOT EXISTS inventory_rows (
		run_id TEXT NOT NULL REFERENCES inventory_runs(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		repo_name TEXT NOT NULL,
		data JSONB NOT NULL,
		PRIMARY KEY (run_id, position)
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveRun inserts a new run. An empty ID is filled with a fresh UUID.
func (s *postgresStorage) SaveRun(ctx context.Context, run *domain.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = s.now()
	}
	if run.Status == "" {
		run.Status = domain.RunStatusInProgress
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_runs (id, org, count_mode, status, processed, skipped, output_path, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, run.ID, run.Org, run.CountMode, run.Status, run.Processed, run.Skipped, run.OutputPath, run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// CompleteRun records the final status and counters of a run
func (s *postgresStorage) CompleteRun(ctx context.Context, runID, status string, processed, skipped int) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE inventory_runs
		SET status = $1, processed = $2, skipped = $3, finished_at = $4
		WHERE id = $5
	`, status, processed, skipped, s.now(), runID)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return apperrors.NewNotFoundError("run " + runID)
	}
	return nil
}

const runColumns = `id, org, count_mode, status, processed, skipped, output_path, started_at, finished_at`

func scanRun(scan func(dest ...any) error) (*domain.Run, error) {
	var run domain.Run
	var finished sql.NullTime
	if err := scan(&run.ID, &run.Org, &run.CountMode, &run.Status, &run.Processed, &run.Skipped,
		&run.OutputPath, &run.StartedAt, &finished); err != nil {
		return nil, err
	}
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	return &run, nil
}

// GetRun retrieves a run by ID
func (s *postgresStorage) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM inventory_runs WHERE id = $1
	`, runID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("run " + runID)
	}
	return run, err
}

// GetRuns lists the runs of an organization, newest first
func (s *postgresStorage) GetRuns(ctx context.Context, org string, limit int) ([]*domain.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM inventory_runs
		WHERE org = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, org, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetLatestRun returns the newest completed run of an organization
func (s *postgresStorage) GetLatestRun(ctx context.Context, org string) (*domain.Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM inventory_runs
		WHERE org = $1 AND status = $2
		ORDER BY started_at DESC
		LIMIT 1
	`, org, domain.RunStatusCompleted).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("completed run for " + org)
	}
	return run, err
}

// SaveRow stores one inventory row of a run
func (s *postgresStorage) SaveRow(ctx context.Context, runID string, position int, row *domain.InventoryRow) error {
	data, err := json.Marshal(row)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO inventory_rows (run_id, position, repo_name, data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id, position) DO UPDATE SET
			repo_name = EXCLUDED.repo_name,
			data = EXCLUDED.data
	`
	if _, err := s.db.ExecContext(ctx, query, runID, position, row.Name, data); err != nil {
		return fmt.Errorf("failed to save row %s: %w", row.Name, err)
	}
	return nil
}

// GetRows returns the rows of a run in listing order
func (s *postgresStorage) GetRows(ctx context.Context, runID string) ([]*domain.InventoryRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM inventory_rows
		WHERE run_id = $1
		ORDER BY position
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.InventoryRow
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var row domain.InventoryRow
		if err := json.Unmarshal(data, &row); err != nil {
			return nil, err
		}
		result = append(result, &row)
	}
	return result, rows.Err()
}

// Close closes the database connection
func (s *postgresStorage) Close() error {
	return s.db.Close()
}

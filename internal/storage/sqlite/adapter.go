package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kurihiro0119/github-repo-inventory/internal/domain"
	apperrors "github.com/kurihiro0119/github-repo-inventory/internal/errors"
	"github.com/kurihiro0119/github-repo-inventory/internal/storage"
)

// sqliteStorage implements the Storage interface for SQLite
type sqliteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (storage.Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	s := &sqliteStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Migrate runs database migrations
func (s *sqliteStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS inventory_runs (
		id TEXT PRIMARY KEY,
		org TEXT NOT NULL,
		count_mode TEXT NOT NULL,
		status TEXT NOT NULL,
		processed INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		output_path TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_inventory_runs_org_started ON inventory_runs(org, started_at);

	CREATE TABLE IF NOT EXISTS inventory_rows (
		run_id TEXT NOT NULL REFERENCES inventory_runs(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		repo_name TEXT NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (run_id, position)
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveRun inserts a new run. An empty ID is filled with a fresh UUID.
func (s *sqliteStorage) SaveRun(ctx context.Context, run *domain.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = domain.RunStatusInProgress
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_runs (id, org, count_mode, status, processed, skipped, output_path, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Org, run.CountMode, run.Status, run.Processed, run.Skipped, run.OutputPath, run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// CompleteRun records the final status and counters of a run
func (s *sqliteStorage) CompleteRun(ctx context.Context, runID, status string, processed, skipped int) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE inventory_runs
		SET status = ?, processed = ?, skipped = ?, finished_at = ?
		WHERE id = ?
	`, status, processed, skipped, time.Now().UTC(), runID)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
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
func (s *sqliteStorage) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM inventory_runs WHERE id = ?`, runID)
	run, err := scanRun(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("run " + runID)
	}
	return run, err
}

// GetRuns lists the runs of an organization, newest first
func (s *sqliteStorage) GetRuns(ctx context.Context, org string, limit int) ([]*domain.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM inventory_runs
		WHERE org = ?
		ORDER BY started_at DESC
		LIMIT ?
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
func (s *sqliteStorage) GetLatestRun(ctx context.Context, org string) (*domain.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM inventory_runs
		WHERE org = ? AND status = ?
		ORDER BY started_at DESC
		LIMIT 1
	`, org, domain.RunStatusCompleted)
	run, err := scanRun(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("completed run for " + org)
	}
	return run, err
}

// SaveRow stores one inventory row of a run
func (s *sqliteStorage) SaveRow(ctx context.Context, runID string, position int, row *domain.InventoryRow) error {
	data, err := json.Marshal(row)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO inventory_rows (run_id, position, repo_name, data)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (run_id, position) DO UPDATE SET
			repo_name = excluded.repo_name,
			data = excluded.data
	`, runID, position, row.Name, string(data))
	if err != nil {
		return fmt.Errorf("failed to save row %s: %w", row.Name, err)
	}
	return nil
}

// GetRows returns the rows of a run in listing order
func (s *sqliteStorage) GetRows(ctx context.Context, runID string) ([]*domain.InventoryRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM inventory_rows
		WHERE run_id = ?
		ORDER BY position
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.InventoryRow
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var row domain.InventoryRow
		if err := json.Unmarshal([]byte(data), &row); err != nil {
			return nil, err
		}
		result = append(result, &row)
	}
	return result, rows.Err()
}

// Close closes the database connection
func (s *sqliteStorage) Close() error {
	return s.db.Close()
}

package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/github-repo-inventory/internal/domain"
	apperrors "github.com/kurihiro0119/github-repo-inventory/internal/errors"
)

var fixedNow = time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)

func newMockStorage(t *testing.T) (*postgresStorage, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	s := newStorage(mockDB)
	s.now = func() time.Time { return fixedNow }
	return s, mock
}

var runColumnNames = []string{"id", "org", "count_mode", "status", "processed", "skipped", "output_path", "started_at", "finished_at"}

func TestSaveRun_AssignsIDAndDefaults(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectExec("INSERT INTO inventory_runs").
		WithArgs(sqlmock.AnyArg(), "acme", "exhaustive", domain.RunStatusInProgress, 0, 0, "output/acme_repo_details.csv", fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))

	run := &domain.Run{Org: "acme", CountMode: "exhaustive", OutputPath: "output/acme_repo_details.csv"}
	require.NoError(t, s.SaveRun(context.Background(), run))

	assert.Len(t, run.ID, 36)
	assert.Equal(t, fixedNow, run.StartedAt)
	assert.Equal(t, domain.RunStatusInProgress, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteRun(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectExec("UPDATE inventory_runs").
		WithArgs(domain.RunStatusCompleted, 2, 1, fixedNow, "run-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE inventory_runs").
		WithArgs(domain.RunStatusCompleted, 0, 0, fixedNow, "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.CompleteRun(context.Background(), "run-1", domain.RunStatusCompleted, 2, 1))

	err := s.CompleteRun(context.Background(), "missing", domain.RunStatusCompleted, 0, 0)
	assert.True(t, apperrors.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLatestRun(t *testing.T) {
	s, mock := newMockStorage(t)

	started := fixedNow.Add(-time.Hour)
	mock.ExpectQuery("SELECT id, org, count_mode").
		WithArgs("acme", domain.RunStatusCompleted).
		WillReturnRows(sqlmock.NewRows(runColumnNames).
			AddRow("run-1", "acme", "approximate", "completed", 3, 1, "out.csv", started, fixedNow))

	run, err := s.GetLatestRun(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, "approximate", run.CountMode)
	assert.Equal(t, 3, run.Processed)
	assert.Equal(t, 1, run.Skipped)
	assert.Equal(t, started, run.StartedAt)
	require.NotNil(t, run.FinishedAt)
	assert.Equal(t, fixedNow, *run.FinishedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLatestRun_NotFound(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectQuery("SELECT id, org, count_mode").
		WithArgs("acme", domain.RunStatusCompleted).
		WillReturnRows(sqlmock.NewRows(runColumnNames))

	_, err := s.GetLatestRun(context.Background(), "acme")
	assert.True(t, apperrors.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRuns(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectQuery("FROM inventory_runs").
		WithArgs("acme", 20).
		WillReturnRows(sqlmock.NewRows(runColumnNames).
			AddRow("run-2", "acme", "exhaustive", "in_progress", 0, 0, "", fixedNow, nil).
			AddRow("run-1", "acme", "exhaustive", "completed", 5, 0, "a.csv", fixedNow.Add(-time.Hour), fixedNow))

	runs, err := s.GetRuns(context.Background(), "acme", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Nil(t, runs[0].FinishedAt)
	assert.Equal(t, "run-1", runs[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveAndGetRows(t *testing.T) {
	s, mock := newMockStorage(t)

	row := &domain.InventoryRow{Name: "api", Visibility: "private", SizeMB: 1.5, OpenPRs: 2, LastCommitter: "Alice"}
	data, err := json.Marshal(row)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO inventory_rows").
		WithArgs("run-1", 1, "api", data).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT data FROM inventory_rows").
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow(data))

	require.NoError(t, s.SaveRow(context.Background(), "run-1", 1, row))

	rows, err := s.GetRows(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, row, rows[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_GetLatestReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/orgs/acme/runs/latest", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{
			"run":{"id":"run-1","org":"acme","count_mode":"exhaustive","status":"completed","processed":1,"skipped":0,"output_path":"","started_at":"2024-03-04T05:06:07Z"},
			"rows":[{"name":"api","visibility":"private","size_mb":1.5,"open_prs":2,"last_committer":"Alice"}],
			"summary":{"repositories":1,"open_prs":2,"languages":{"Go":1}}
		}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	rep, err := c.GetLatestReport(context.Background(), "acme")
	require.NoError(t, err)

	assert.Equal(t, "run-1", rep.Run.ID)
	require.Len(t, rep.Rows, 1)
	assert.Equal(t, "api", rep.Rows[0].Name)
	assert.Equal(t, 1.5, rep.Rows[0].SizeMB)
	assert.Equal(t, "Alice", rep.Rows[0].LastCommitter)
	assert.Equal(t, 1, rep.Summary.Repositories)
	assert.Equal(t, map[string]int{"Go": 1}, rep.Summary.Languages)
}

func TestClient_GetRuns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/orgs/acme/runs", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"data":[{"id":"b","org":"acme"},{"id":"a","org":"acme"}]}`))
	}))
	defer srv.Close()

	runs, err := NewClient(srv.URL).GetRuns(context.Background(), "acme", 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "b", runs[0].ID)
}

func TestClient_GetRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/runs/run-1/rows", r.URL.Path)
		w.Write([]byte(`{"data":[{"name":"api"},{"name":"web"}]}`))
	}))
	defer srv.Close()

	rows, err := NewClient(srv.URL).GetRows(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "web", rows[1].Name)
}

func TestClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"completed run for acme not found"}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).GetLatestReport(context.Background(), "acme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "NOT_FOUND")
}

func TestClient_HealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	assert.NoError(t, NewClient(srv.URL).HealthCheck(context.Background()))
}

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kurihiro0119/github-repo-inventory/internal/aggregator"
	"github.com/kurihiro0119/github-repo-inventory/internal/domain"
	apperrors "github.com/kurihiro0119/github-repo-inventory/internal/errors"
	"github.com/kurihiro0119/github-repo-inventory/internal/report"
	"github.com/kurihiro0119/github-repo-inventory/internal/storage"
)

// Handler handles API requests
type Handler struct {
	storage storage.Storage
}

// NewHandler creates a new API handler
func NewHandler(store storage.Storage) *Handler {
	return &Handler{
		storage: store,
	}
}

// GetRuns returns the stored runs of an organization, newest first
// GET /api/v1/orgs/:org/runs
func (h *Handler) GetRuns(c *gin.Context) {
	org := c.Param("org")
	limit, err := parseIntQuery(c, "limit", 20)
	if err != nil {
		respondError(c, err)
		return
	}

	runs, err := h.storage.GetRuns(c.Request.Context(), org, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if runs == nil {
		runs = []*domain.Run{}
	}

	c.JSON(http.StatusOK, gin.H{
		"data": runs,
	})
}

// GetLatestReport returns the newest completed run with its rows and summary
// GET /api/v1/orgs/:org/runs/latest
func (h *Handler) GetLatestReport(c *gin.Context) {
	org := c.Param("org")

	run, err := h.storage.GetLatestRun(c.Request.Context(), org)
	if err != nil {
		respondError(c, err)
		return
	}

	rows, err := h.storage.GetRows(c.Request.Context(), run.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	if rows == nil {
		rows = []*domain.InventoryRow{}
	}

	c.JSON(http.StatusOK, gin.H{
		"data": &domain.RunReport{
			Run:     run,
			Rows:    rows,
			Summary: aggregator.Summarize(rows),
		},
	})
}

// GetRun returns a single run
// GET /api/v1/runs/:id
func (h *Handler) GetRun(c *gin.Context) {
	run, err := h.storage.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": run,
	})
}

// GetRows returns the rows of a run in listing order
// GET /api/v1/runs/:id/rows
func (h *Handler) GetRows(c *gin.Context) {
	rows, ok := h.loadRows(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": rows,
	})
}

// GetReportCSV streams the rows of a run in the report's CSV layout
// GET /api/v1/runs/:id/report.csv
func (h *Handler) GetReportCSV(c *gin.Context) {
	rows, ok := h.loadRows(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.csv"`, c.Param("id")))
	c.Status(http.StatusOK)

	w, err := report.NewWriter(c.Writer, report.InventoryHeader)
	if err != nil {
		_ = c.Error(err)
		return
	}
	for _, row := range rows {
		if err := w.WriteRow(row); err != nil {
			_ = c.Error(err)
			return
		}
	}
}

// loadRows resolves the :id run and its rows, responding with an error when
// the run does not exist.
func (h *Handler) loadRows(c *gin.Context) ([]*domain.InventoryRow, bool) {
	ctx := c.Request.Context()
	runID := c.Param("id")

	if _, err := h.storage.GetRun(ctx, runID); err != nil {
		respondError(c, err)
		return nil, false
	}
	rows, err := h.storage.GetRows(ctx, runID)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if rows == nil {
		rows = []*domain.InventoryRow{}
	}
	return rows, true
}

// parseIntQuery parses a positive integer query parameter with a default value
func parseIntQuery(c *gin.Context, key string, defaultValue int) (int, error) {
	valueStr := c.Query(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil || value <= 0 {
		return 0, apperrors.NewBadRequestError(fmt.Sprintf("%s must be a positive integer, got %q", key, valueStr))
	}
	return value, nil
}

// HealthCheck returns the health status of the API
// GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// respondError sends an error response
func respondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		switch appErr.Code {
		case apperrors.ErrCodeNotFound:
			status = http.StatusNotFound
		case apperrors.ErrCodeBadRequest:
			status = http.StatusBadRequest
		case apperrors.ErrCodeUpstream, apperrors.ErrCodeTransport:
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{
			"error": gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
			},
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{
			"code":    apperrors.ErrCodeInternal,
			"message": err.Error(),
		},
	})
}

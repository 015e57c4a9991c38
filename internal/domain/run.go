package domain

import "time"

// Run status values
const (
	RunStatusInProgress = "in_progress"
	RunStatusCompleted  = "completed"
	RunStatusFailed     = "failed"
)

// Run represents one inventory pass over an organization
type Run struct {
	ID         string     `json:"id"`
	Org        string     `json:"org"`
	CountMode  string     `json:"count_mode"`
	Status     string     `json:"status"`
	Processed  int        `json:"processed"`
	Skipped    int        `json:"skipped"`
	OutputPath string     `json:"output_path"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// RunResult is what the aggregator reports back after a pass
type RunResult struct {
	Rows    []*InventoryRow
	Skipped []string
}

// Summary holds organization-wide totals and averages over a set of rows
type Summary struct {
	Repositories   int            `json:"repositories"`
	TotalSizeMB    float64        `json:"total_size_mb"`
	MeanSizeMB     float64        `json:"mean_size_mb"`
	MedianSizeMB   float64        `json:"median_size_mb"`
	OpenPRs        int            `json:"open_prs"`
	MergedPRs      int            `json:"merged_prs"`
	MeanOpenPRs    float64        `json:"mean_open_prs"`
	MedianOpenPRs  float64        `json:"median_open_prs"`
	OpenIssues     int            `json:"open_issues"`
	MeanOpenIssues float64        `json:"mean_open_issues"`
	Branches       int            `json:"branches"`
	Tags           int            `json:"tags"`
	Releases       int            `json:"releases"`
	Languages      map[string]int `json:"languages"`
}

// RunReport is a stored run together with its rows and their summary
type RunReport struct {
	Run     *Run            `json:"run"`
	Rows    []*InventoryRow `json:"rows"`
	Summary Summary         `json:"summary"`
}

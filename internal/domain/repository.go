package domain

import "math"

// Repository is a repository as returned by the organization listing.
// Timestamps are kept as the API's RFC 3339 strings.
type Repository struct {
	Org           string
	Name          string
	Visibility    string
	CreatedAt     string
	UpdatedAt     string
	PushedAt      string
	SizeKB        int
	Language      string
	DefaultBranch string
}

// SizeMB converts the API's kilobyte size to megabytes rounded to two decimals.
func (r *Repository) SizeMB() float64 {
	return math.Round(float64(r.SizeKB)/1024*100) / 100
}

// PullRequestCounts holds pull request totals for one repository
type PullRequestCounts struct {
	Open   int
	Closed int
	Merged int
}

// IssueCounts holds issue totals, pull requests excluded
type IssueCounts struct {
	Open   int
	Closed int
}

// LastCommit describes the newest commit on the default branch.
// Both fields are empty when no commit was found.
type LastCommit struct {
	Date   string
	Author string
}

// InventoryRow is one line of the repository report
type InventoryRow struct {
	Name          string  `json:"name"`
	Visibility    string  `json:"visibility"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
	PushedAt      string  `json:"pushed_at"`
	SizeMB        float64 `json:"size_mb"`
	Language      string  `json:"language"`
	OpenPRs       int     `json:"open_prs"`
	ClosedPRs     int     `json:"closed_prs"`
	MergedPRs     int     `json:"merged_prs"`
	OpenIssues    int     `json:"open_issues"`
	ClosedIssues  int     `json:"closed_issues"`
	Branches      int     `json:"branches"`
	Releases      int     `json:"releases"`
	Tags          int     `json:"tags"`
	LastCommitAt  string  `json:"last_commit_at"`
	LastCommitter string  `json:"last_committer"`
}

// NewInventoryRow assembles a row from the listing record and the computed counters
func NewInventoryRow(repo *Repository, prs PullRequestCounts, issues IssueCounts, branches, tags, releases int, last LastCommit) *InventoryRow {
	return &InventoryRow{
		Name:          repo.Name,
		Visibility:    repo.Visibility,
		CreatedAt:     repo.CreatedAt,
		UpdatedAt:     repo.UpdatedAt,
		PushedAt:      repo.PushedAt,
		SizeMB:        repo.SizeMB(),
		Language:      repo.Language,
		OpenPRs:       prs.Open,
		ClosedPRs:     prs.Closed,
		MergedPRs:     prs.Merged,
		OpenIssues:    issues.Open,
		ClosedIssues:  issues.Closed,
		Branches:      branches,
		Releases:      releases,
		Tags:          tags,
		LastCommitAt:  last.Date,
		LastCommitter: last.Author,
	}
}

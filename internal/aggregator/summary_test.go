package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kurihiro0119/github-repo-inventory/internal/domain"
)

func TestSummarize(t *testing.T) {
	rows := []*domain.InventoryRow{
		{Name: "a", SizeMB: 1.5, Language: "Go", OpenPRs: 1, MergedPRs: 3, OpenIssues: 2, Branches: 2, Tags: 1, Releases: 1},
		{Name: "b", SizeMB: 0.25, Language: "Go", OpenPRs: 4, MergedPRs: 0, OpenIssues: 0, Branches: 1},
		{Name: "c", SizeMB: 10, OpenPRs: 0, OpenIssues: 7, Branches: 3, Tags: 2},
	}

	s := Summarize(rows)

	assert.Equal(t, 3, s.Repositories)
	assert.Equal(t, 11.75, s.TotalSizeMB)
	assert.Equal(t, 3.92, s.MeanSizeMB)
	assert.Equal(t, 1.5, s.MedianSizeMB)
	assert.Equal(t, 5, s.OpenPRs)
	assert.Equal(t, 3, s.MergedPRs)
	assert.Equal(t, 1.67, s.MeanOpenPRs)
	assert.Equal(t, 1.0, s.MedianOpenPRs)
	assert.Equal(t, 9, s.OpenIssues)
	assert.Equal(t, 3.0, s.MeanOpenIssues)
	assert.Equal(t, 6, s.Branches)
	assert.Equal(t, 3, s.Tags)
	assert.Equal(t, 1, s.Releases)
	assert.Equal(t, map[string]int{"Go": 2, "None": 1}, s.Languages)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	assert.Equal(t, 0, s.Repositories)
	assert.Zero(t, s.MeanSizeMB)
	assert.Empty(t, s.Languages)
}

package aggregator

import (
	"math"

	"github.com/montanaflynn/stats"

	"github.com/kurihiro0119/github-repo-inventory/internal/domain"
)

// Summarize computes organization-wide totals and averages over rows
func Summarize(rows []*domain.InventoryRow) domain.Summary {
	summary := domain.Summary{
		Repositories: len(rows),
		Languages:    make(map[string]int),
	}
	if len(rows) == 0 {
		return summary
	}

	sizes := make(stats.Float64Data, 0, len(rows))
	openPRs := make(stats.Float64Data, 0, len(rows))
	openIssues := make(stats.Float64Data, 0, len(rows))

	for _, row := range rows {
		summary.TotalSizeMB += row.SizeMB
		summary.OpenPRs += row.OpenPRs
		summary.MergedPRs += row.MergedPRs
		summary.OpenIssues += row.OpenIssues
		summary.Branches += row.Branches
		summary.Tags += row.Tags
		summary.Releases += row.Releases

		language := row.Language
		if language == "" {
			language = "None"
		}
		summary.Languages[language]++

		sizes = append(sizes, row.SizeMB)
		openPRs = append(openPRs, float64(row.OpenPRs))
		openIssues = append(openIssues, float64(row.OpenIssues))
	}

	// Errors only arise for empty input, ruled out above
	summary.TotalSizeMB = round2(summary.TotalSizeMB)
	summary.MeanSizeMB, _ = sizes.Mean()
	summary.MedianSizeMB, _ = sizes.Median()
	summary.MeanOpenPRs, _ = openPRs.Mean()
	summary.MedianOpenPRs, _ = openPRs.Median()
	summary.MeanOpenIssues, _ = openIssues.Mean()

	summary.MeanSizeMB = round2(summary.MeanSizeMB)
	summary.MedianSizeMB = round2(summary.MedianSizeMB)
	summary.MeanOpenPRs = round2(summary.MeanOpenPRs)
	summary.MedianOpenPRs = round2(summary.MedianOpenPRs)
	summary.MeanOpenIssues = round2(summary.MeanOpenIssues)

	return summary
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/kurihiro0119/github-repo-inventory/internal/domain"
)

// RenderTable prints rows as a console table with the most useful columns
func RenderTable(w io.Writer, rows []*domain.InventoryRow) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Repo", "Visibility", "Size (MB)", "Language", "Open PRs", "Merged PRs", "Open Issues", "Branches", "Tags", "Releases", "Last Commit"})
	for _, row := range rows {
		table.Append([]string{
			row.Name,
			row.Visibility,
			FormatSize(row.SizeMB),
			row.Language,
			strconv.Itoa(row.OpenPRs),
			strconv.Itoa(row.MergedPRs),
			strconv.Itoa(row.OpenIssues),
			strconv.Itoa(row.Branches),
			strconv.Itoa(row.Tags),
			strconv.Itoa(row.Releases),
			row.LastCommitAt,
		})
	}
	table.Render()
}

// RenderSummary prints organization totals followed by the language breakdown
func RenderSummary(w io.Writer, s domain.Summary) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"Repositories", strconv.Itoa(s.Repositories)})
	table.Append([]string{"Total Size (MB)", fmt.Sprintf("%.2f", s.TotalSizeMB)})
	table.Append([]string{"Mean Size (MB)", fmt.Sprintf("%.2f", s.MeanSizeMB)})
	table.Append([]string{"Median Size (MB)", fmt.Sprintf("%.2f", s.MedianSizeMB)})
	table.Append([]string{"Open PRs", strconv.Itoa(s.OpenPRs)})
	table.Append([]string{"Merged PRs", strconv.Itoa(s.MergedPRs)})
	table.Append([]string{"Mean Open PRs", fmt.Sprintf("%.2f", s.MeanOpenPRs)})
	table.Append([]string{"Median Open PRs", fmt.Sprintf("%.2f", s.MedianOpenPRs)})
	table.Append([]string{"Open Issues", strconv.Itoa(s.OpenIssues)})
	table.Append([]string{"Mean Open Issues", fmt.Sprintf("%.2f", s.MeanOpenIssues)})
	table.Append([]string{"Branches", strconv.Itoa(s.Branches)})
	table.Append([]string{"Tags", strconv.Itoa(s.Tags)})
	table.Append([]string{"Releases", strconv.Itoa(s.Releases)})
	table.Render()

	if len(s.Languages) == 0 {
		return
	}

	languages := make([]string, 0, len(s.Languages))
	for l := range s.Languages {
		languages = append(languages, l)
	}
	sort.Slice(languages, func(i, j int) bool {
		if s.Languages[languages[i]] != s.Languages[languages[j]] {
			return s.Languages[languages[i]] > s.Languages[languages[j]]
		}
		return languages[i] < languages[j]
	})

	langTable := tablewriter.NewWriter(w)
	langTable.SetHeader([]string{"Language", "Repositories"})
	for _, l := range languages {
		langTable.Append([]string{l, strconv.Itoa(s.Languages[l])})
	}
	langTable.Render()
}

// RenderRuns prints stored runs, newest first
func RenderRuns(w io.Writer, runs []*domain.Run) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Run", "Status", "Count Mode", "Processed", "Skipped", "Started", "Finished"})
	for _, run := range runs {
		finished := ""
		if run.FinishedAt != nil {
			finished = run.FinishedAt.Local().Format(time.DateTime)
		}
		table.Append([]string{
			run.ID,
			run.Status,
			run.CountMode,
			strconv.Itoa(run.Processed),
			strconv.Itoa(run.Skipped),
			run.StartedAt.Local().Format(time.DateTime),
			finished,
		})
	}
	table.Render()
}

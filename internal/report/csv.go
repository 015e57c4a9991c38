// Package report writes inventory results as CSV files and console tables.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kurihiro0119/github-repo-inventory/internal/domain"
)

// InventoryHeader is the fixed column order of the repository report
var InventoryHeader = []string{
	"Repo Name",
	"Visibility",
	"Created At",
	"Updated At",
	"Last Pushed Date",
	"Repo Size (MB)",
	"Primary Language",
	"Total Open PRs",
	"Total Closed PRs",
	"Total Merged PRs",
	"Total Open Issues",
	"Total Closed Issues",
	"Total Branches",
	"Total Releases",
	"Total Tags",
	"Last Committed Date",
	"Last Committed User",
}

// ListHeader is the header of the name-and-visibility listing
var ListHeader = []string{"Repository Name", "Visibility"}

// Actions inventory headers
var (
	RunnerHeader   = []string{"id", "name", "os", "status", "busy", "labels"}
	SecretHeader   = []string{"name", "value", "visibility"}
	VariableHeader = []string{"name", "value", "visibility"}
)

// Per-repository Actions headers
var (
	RepoRunnerHeader   = []string{"Repository", "Runner ID", "Runner Name", "OS", "Status", "Busy", "Labels"}
	RepoSecretHeader   = []string{"repo", "name", "value"}
	RepoVariableHeader = []string{"Repository", "Variable Name", "Value"}
)

// Environment headers
var (
	EnvironmentVariableHeader = []string{"Repository", "Environment", "Variable Name", "Value"}
	EnvironmentSecretHeader   = []string{"Repository", "Environment", "Secret Name"}
	EnvironmentReviewerHeader = []string{
		"repository", "environment", "environment_id", "environment_url",
		"created_at", "updated_at", "can_admins_bypass", "wait_timer",
		"deployment_branch_policy", "type", "reviewer_id", "reviewer_login",
		"reviewer_name", "reviewer_type",
	}
)

// noReviewer fills the reviewer columns of an environment without required reviewers
const noReviewer = "None"

// Writer appends records to a CSV stream, flushing after every record so a
// partially completed run leaves a readable file behind.
type Writer struct {
	csv    *csv.Writer
	closer io.Closer
	rows   int
}

// NewWriter writes header to w and returns a Writer for the records
func NewWriter(w io.Writer, header []string) (*Writer, error) {
	cw := &Writer{csv: csv.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		cw.closer = c
	}
	if err := cw.write(header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	return cw, nil
}

// Create truncates or creates the file at path, creating parent directories,
// and writes header.
func Create(path string, header []string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	w, err := NewWriter(f, header)
	if err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) write(record []string) error {
	if err := w.csv.Write(record); err != nil {
		return err
	}
	w.csv.Flush()
	return w.csv.Error()
}

// Rows returns the number of records written after the header
func (w *Writer) Rows() int {
	return w.rows
}

// Close flushes pending output and closes the underlying file, if any
func (w *Writer) Close() error {
	w.csv.Flush()
	err := w.csv.Error()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// WriteRow appends one inventory row
func (w *Writer) WriteRow(row *domain.InventoryRow) error {
	if err := w.write(InventoryRecord(row)); err != nil {
		return err
	}
	w.rows++
	return nil
}

// WriteRepository appends one listing record
func (w *Writer) WriteRepository(repo *domain.Repository) error {
	visibility := repo.Visibility
	if visibility == "" {
		visibility = "N/A"
	}
	if err := w.write([]string{repo.Name, visibility}); err != nil {
		return err
	}
	w.rows++
	return nil
}

// WriteRunner appends one runner; labels are joined with ", "
func (w *Writer) WriteRunner(r *domain.Runner) error {
	if err := w.write(runnerRecord(r)); err != nil {
		return err
	}
	w.rows++
	return nil
}

func runnerRecord(r *domain.Runner) []string {
	return []string{
		strconv.FormatInt(r.ID, 10),
		r.Name,
		r.OS,
		r.Status,
		strconv.FormatBool(r.Busy),
		strings.Join(r.Labels, ", "),
	}
}

// WriteSecret appends one secret. Secret values cannot be read back from the
// API, so the value column stays empty.
func (w *Writer) WriteSecret(s *domain.Secret) error {
	if err := w.write([]string{s.Name, "", s.Visibility}); err != nil {
		return err
	}
	w.rows++
	return nil
}

// WriteVariable appends one variable
func (w *Writer) WriteVariable(v *domain.Variable) error {
	if err := w.write([]string{v.Name, v.Value, v.Visibility}); err != nil {
		return err
	}
	w.rows++
	return nil
}

// WriteRepoRunners appends the runners of repo, one record each
func (w *Writer) WriteRepoRunners(repo string, runners []*domain.Runner) error {
	for _, r := range runners {
		if err := w.append(append([]string{repo}, runnerRecord(r)...)...); err != nil {
			return err
		}
	}
	return nil
}

// WriteRepoSecrets appends the secret names of repo with an empty value column
func (w *Writer) WriteRepoSecrets(repo string, secrets []*domain.Secret) error {
	for _, s := range secrets {
		if err := w.append(repo, s.Name, ""); err != nil {
			return err
		}
	}
	return nil
}

// WriteRepoVariables appends the variables of repo
func (w *Writer) WriteRepoVariables(repo string, variables []*domain.Variable) error {
	for _, v := range variables {
		if err := w.append(repo, v.Name, v.Value); err != nil {
			return err
		}
	}
	return nil
}

// WriteEnvironmentVariables appends the variables of one environment. An
// environment without variables still gets a record with blank name and value.
func (w *Writer) WriteEnvironmentVariables(repo string, inv *domain.EnvironmentInventory) error {
	env := inv.Environment.Name
	if len(inv.Variables) == 0 {
		return w.append(repo, env, "", "")
	}
	for _, v := range inv.Variables {
		if err := w.append(repo, env, v.Name, v.Value); err != nil {
			return err
		}
	}
	return nil
}

// WriteEnvironmentSecrets appends the secret names of one environment. An
// environment without secrets still gets a record with a blank name.
func (w *Writer) WriteEnvironmentSecrets(repo string, inv *domain.EnvironmentInventory) error {
	env := inv.Environment.Name
	if len(inv.Secrets) == 0 {
		return w.append(repo, env, "")
	}
	for _, s := range inv.Secrets {
		if err := w.append(repo, env, s.Name); err != nil {
			return err
		}
	}
	return nil
}

// WriteEnvironmentReviewers appends one record per required reviewer of env,
// or a single record with "None" reviewer columns when it has none. repository
// is the owner/name form.
func (w *Writer) WriteEnvironmentReviewers(repository string, env *domain.Environment) error {
	canBypass := ""
	if env.CanAdminsBypass != nil {
		canBypass = strconv.FormatBool(*env.CanAdminsBypass)
	}
	waitTimer := ""
	if env.WaitTimer != nil {
		waitTimer = strconv.Itoa(*env.WaitTimer)
	}
	prefix := []string{
		repository,
		env.Name,
		strconv.FormatInt(env.ID, 10),
		env.URL,
		env.CreatedAt,
		env.UpdatedAt,
		canBypass,
		waitTimer,
		env.DeploymentBranchPolicy,
		"required_reviewers",
	}

	if len(env.Reviewers) == 0 {
		return w.append(append(prefix, noReviewer, noReviewer, noReviewer, noReviewer)...)
	}
	for _, r := range env.Reviewers {
		if err := w.append(append(prefix[:len(prefix):len(prefix)], strconv.FormatInt(r.ID, 10), r.Login, r.Name, r.Type)...); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) append(fields ...string) error {
	if err := w.write(fields); err != nil {
		return err
	}
	w.rows++
	return nil
}

// InventoryRecord renders row in InventoryHeader order
func InventoryRecord(row *domain.InventoryRow) []string {
	return []string{
		row.Name,
		row.Visibility,
		row.CreatedAt,
		row.UpdatedAt,
		row.PushedAt,
		FormatSize(row.SizeMB),
		row.Language,
		strconv.Itoa(row.OpenPRs),
		strconv.Itoa(row.ClosedPRs),
		strconv.Itoa(row.MergedPRs),
		strconv.Itoa(row.OpenIssues),
		strconv.Itoa(row.ClosedIssues),
		strconv.Itoa(row.Branches),
		strconv.Itoa(row.Releases),
		strconv.Itoa(row.Tags),
		row.LastCommitAt,
		row.LastCommitter,
	}
}

// FormatSize prints megabytes with the shortest exact representation and at
// least one decimal, e.g. "0.0", "1.5", "12.34".
func FormatSize(mb float64) string {
	s := strconv.FormatFloat(mb, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

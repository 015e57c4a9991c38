package report

import (
	"fmt"
	"path/filepath"
	"time"
)

// TimestampFormat is the suffix layout of timestamped output files
const TimestampFormat = "20060102_150405"

// ListFileName is the fixed name of the repository listing
const ListFileName = "github_repos.csv"

// Fixed names of the per-repository exports
const (
	RepoRunnersFileName          = "github_action_runners.csv"
	RepoSecretsFileName          = "secrets_result.csv"
	RepoVariablesFileName        = "org_actions_variables.csv"
	EnvironmentVariablesFileName = "github_environments_variables.csv"
	EnvironmentSecretsFileName   = "github_environment_secrets.csv"
	EnvironmentReviewersFileName = "environment_reviewers.csv"
)

// InventoryFileName returns dir/{org}_repo_details.csv, or
// dir/{org}_repo_details_{YYYYmmdd_HHMMSS}.csv when timestamped.
func InventoryFileName(dir, org string, timestamped bool, now time.Time) string {
	name := org + "_repo_details"
	if timestamped {
		name += "_" + now.Format(TimestampFormat)
	}
	return filepath.Join(dir, name+".csv")
}

// ActionsFileName returns dir/github_{kind}_{YYYYmmdd_HHMMSS}.csv where kind is
// runners, secrets or variables.
func ActionsFileName(dir, kind string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("github_%s_%s.csv", kind, now.Format(TimestampFormat)))
}

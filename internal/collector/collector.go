package collector

import (
	"context"

	"github.com/kurihiro0119/github-repo-inventory/internal/domain"
)

// Collector defines the interface for collecting GitHub data
type Collector interface {
	// GetRepositories retrieves all repositories for an organization, in listing order
	GetRepositories(ctx context.Context, org string) ([]*domain.Repository, error)

	// GetPullRequestCounts counts open, closed and merged pull requests
	GetPullRequestCounts(ctx context.Context, org, repo string) (domain.PullRequestCounts, error)

	// GetIssueCounts counts open and closed issues, pull requests excluded
	GetIssueCounts(ctx context.Context, org, repo string) (domain.IssueCounts, error)

	// CountBranches returns the exact number of branches
	CountBranches(ctx context.Context, org, repo string) (int, error)

	// CountTags returns the exact number of tags
	CountTags(ctx context.Context, org, repo string) (int, error)

	// GetLastCommit returns the newest commit on branch, or an empty descriptor
	GetLastCommit(ctx context.Context, org, repo, branch string) (domain.LastCommit, error)

	// CountReleases returns the size of the first releases page
	CountReleases(ctx context.Context, org, repo string) (int, error)

	// GetRunners retrieves the organization's self-hosted Actions runners
	GetRunners(ctx context.Context, org string) ([]*domain.Runner, error)

	// GetSecrets retrieves the organization's Actions secret names
	GetSecrets(ctx context.Context, org string) ([]*domain.Secret, error)

	// GetVariables retrieves the organization's Actions variables
	GetVariables(ctx context.Context, org string) ([]*domain.Variable, error)

	// GetRepoRunners retrieves the self-hosted runners registered to a repository
	GetRepoRunners(ctx context.Context, org, repo string) ([]*domain.Runner, error)

	// GetRepoSecrets retrieves a repository's Actions secret names
	GetRepoSecrets(ctx context.Context, org, repo string) ([]*domain.Secret, error)

	// GetRepoVariables retrieves a repository's Actions variables; empty when
	// Actions is unavailable for the repository
	GetRepoVariables(ctx context.Context, org, repo string) ([]*domain.Variable, error)

	// GetEnvironments retrieves a repository's deployment environments with
	// their required reviewers
	GetEnvironments(ctx context.Context, org, repo string) ([]*domain.Environment, error)

	// GetEnvironmentVariables retrieves the variables of one environment
	GetEnvironmentVariables(ctx context.Context, org, repo, env string) ([]*domain.Variable, error)

	// GetEnvironmentSecrets retrieves the secret names of one environment
	GetEnvironmentSecrets(ctx context.Context, org, repo, env string) ([]*domain.Secret, error)
}

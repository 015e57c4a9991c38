package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/go-github/v55/github"

	"github.com/kurihiro0119/github-repo-inventory/internal/domain"
	apperrors "github.com/kurihiro0119/github-repo-inventory/internal/errors"
)

// Count modes understood by the collector
const (
	CountModeApproximate = "approximate"
	CountModeExhaustive  = "exhaustive"
)

// githubCollector implements Collector on top of Client. Payloads are decoded
// into go-github types.
type githubCollector struct {
	client    *Client
	pageSize  int
	countMode string
}

// NewGitHubCollector creates a new GitHub collector. countMode selects how pull
// request and issue totals are computed: "exhaustive" walks every page,
// "approximate" counts the first page only.
func NewGitHubCollector(client *Client, pageSize int, countMode string) Collector {
	if pageSize <= 0 {
		pageSize = 100
	}
	if countMode == "" {
		countMode = CountModeExhaustive
	}
	return &githubCollector{
		client:    client,
		pageSize:  pageSize,
		countMode: countMode,
	}
}

func repoPath(org, repo, resource string) string {
	return fmt.Sprintf("/repos/%s/%s/%s", url.PathEscape(org), url.PathEscape(repo), resource)
}

// list applies the configured count mode to a list endpoint
func list[T any](ctx context.Context, c *githubCollector, path string, params url.Values) ([]T, error) {
	fetch := ListPage[T](c.client, path, params)
	if c.countMode == CountModeApproximate {
		return FirstPage(ctx, c.pageSize, fetch)
	}
	return Paginate(ctx, c.pageSize, fetch)
}

// GetRepositories retrieves all repositories for an organization
func (c *githubCollector) GetRepositories(ctx context.Context, org string) ([]*domain.Repository, error) {
	path := fmt.Sprintf("/orgs/%s/repos", url.PathEscape(org))
	repos, err := Paginate(ctx, c.pageSize, ListPage[*github.Repository](c.client, path, url.Values{"type": {"all"}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories: %w", err)
	}

	result := make([]*domain.Repository, 0, len(repos))
	for _, r := range repos {
		result = append(result, toRepository(org, r))
	}
	return result, nil
}

func toRepository(org string, r *github.Repository) *domain.Repository {
	visibility := r.GetVisibility()
	if visibility == "" {
		visibility = "public"
		if r.GetPrivate() {
			visibility = "private"
		}
	}
	return &domain.Repository{
		Org:           org,
		Name:          r.GetName(),
		Visibility:    visibility,
		CreatedAt:     formatTimestamp(r.GetCreatedAt()),
		UpdatedAt:     formatTimestamp(r.GetUpdatedAt()),
		PushedAt:      formatTimestamp(r.GetPushedAt()),
		SizeKB:        r.GetSize(),
		Language:      r.GetLanguage(),
		DefaultBranch: r.GetDefaultBranch(),
	}
}

func formatTimestamp(ts github.Timestamp) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339)
}

// GetPullRequestCounts counts pull requests by state. Merged pull requests are
// the closed ones carrying merged_at.
func (c *githubCollector) GetPullRequestCounts(ctx context.Context, org, repo string) (domain.PullRequestCounts, error) {
	path := repoPath(org, repo, "pulls")

	open, err := list[*github.PullRequest](ctx, c, path, url.Values{"state": {"open"}})
	if err != nil {
		return domain.PullRequestCounts{}, fmt.Errorf("failed to list open pull requests for %s/%s: %w", org, repo, err)
	}
	closed, err := list[*github.PullRequest](ctx, c, path, url.Values{"state": {"closed"}})
	if err != nil {
		return domain.PullRequestCounts{}, fmt.Errorf("failed to list closed pull requests for %s/%s: %w", org, repo, err)
	}

	counts := domain.PullRequestCounts{Open: len(open), Closed: len(closed)}
	for _, pr := range closed {
		if pr.MergedAt != nil {
			counts.Merged++
		}
	}
	return counts, nil
}

// GetIssueCounts counts issues by state. The issues endpoint also returns pull
// requests; those carry a pull_request member and are skipped.
func (c *githubCollector) GetIssueCounts(ctx context.Context, org, repo string) (domain.IssueCounts, error) {
	path := repoPath(org, repo, "issues")

	open, err := list[*github.Issue](ctx, c, path, url.Values{"state": {"open"}})
	if err != nil {
		return domain.IssueCounts{}, fmt.Errorf("failed to list open issues for %s/%s: %w", org, repo, err)
	}
	closed, err := list[*github.Issue](ctx, c, path, url.Values{"state": {"closed"}})
	if err != nil {
		return domain.IssueCounts{}, fmt.Errorf("failed to list closed issues for %s/%s: %w", org, repo, err)
	}

	return domain.IssueCounts{Open: countIssues(open), Closed: countIssues(closed)}, nil
}

func countIssues(issues []*github.Issue) int {
	n := 0
	for _, issue := range issues {
		if !issue.IsPullRequest() {
			n++
		}
	}
	return n
}

// CountBranches returns the exact number of branches
func (c *githubCollector) CountBranches(ctx context.Context, org, repo string) (int, error) {
	branches, err := Paginate(ctx, c.pageSize, ListPage[*github.Branch](c.client, repoPath(org, repo, "branches"), nil))
	if err != nil {
		return 0, fmt.Errorf("failed to list branches for %s/%s: %w", org, repo, err)
	}
	return len(branches), nil
}

// CountTags returns the exact number of tags
func (c *githubCollector) CountTags(ctx context.Context, org, repo string) (int, error) {
	tags, err := Paginate(ctx, c.pageSize, ListPage[*github.RepositoryTag](c.client, repoPath(org, repo, "tags"), nil))
	if err != nil {
		return 0, fmt.Errorf("failed to list tags for %s/%s: %w", org, repo, err)
	}
	return len(tags), nil
}

// GetLastCommit fetches the single newest commit on branch. Empty repositories
// answer 409 and unknown branches 404; both give an empty descriptor.
func (c *githubCollector) GetLastCommit(ctx context.Context, org, repo, branch string) (domain.LastCommit, error) {
	params := url.Values{"per_page": {"1"}}
	if branch != "" {
		params.Set("sha", branch)
	}

	var commits []*github.RepositoryCommit
	if err := c.client.GetJSON(ctx, repoPath(org, repo, "commits"), params, &commits); err != nil {
		if apperrors.IsUpstream(err) {
			return domain.LastCommit{}, nil
		}
		return domain.LastCommit{}, fmt.Errorf("failed to get last commit for %s/%s: %w", org, repo, err)
	}
	if len(commits) == 0 {
		return domain.LastCommit{}, nil
	}

	committer := commits[0].GetCommit().GetCommitter()
	return domain.LastCommit{
		Date:   formatTimestamp(committer.GetDate()),
		Author: committer.GetName(),
	}, nil
}

// CountReleases returns the length of the first releases page. Organizations
// with more releases than one page holds are under-reported.
func (c *githubCollector) CountReleases(ctx context.Context, org, repo string) (int, error) {
	releases, err := FirstPage(ctx, c.pageSize, ListPage[*github.RepositoryRelease](c.client, repoPath(org, repo, "releases"), nil))
	if err != nil {
		return 0, fmt.Errorf("failed to list releases for %s/%s: %w", org, repo, err)
	}
	return len(releases), nil
}

// GetRunners retrieves the organization's self-hosted runners
func (c *githubCollector) GetRunners(ctx context.Context, org string) ([]*domain.Runner, error) {
	path := fmt.Sprintf("/orgs/%s/actions/runners", url.PathEscape(org))
	runners, err := Paginate(ctx, c.pageSize, EnvelopePage(c.client, path, nil, func(e *github.Runners) []*github.Runner {
		return e.Runners
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to list runners for %s: %w", org, err)
	}

	return toRunners(runners), nil
}

func toRunners(runners []*github.Runner) []*domain.Runner {
	result := make([]*domain.Runner, 0, len(runners))
	for _, r := range runners {
		labels := make([]string, 0, len(r.Labels))
		for _, l := range r.Labels {
			labels = append(labels, l.GetName())
		}
		result = append(result, &domain.Runner{
			ID:     r.GetID(),
			Name:   r.GetName(),
			OS:     r.GetOS(),
			Status: r.GetStatus(),
			Busy:   r.GetBusy(),
			Labels: labels,
		})
	}
	return result
}

// GetSecrets retrieves the organization's Actions secrets
func (c *githubCollector) GetSecrets(ctx context.Context, org string) ([]*domain.Secret, error) {
	path := fmt.Sprintf("/orgs/%s/actions/secrets", url.PathEscape(org))
	secrets, err := Paginate(ctx, c.pageSize, EnvelopePage(c.client, path, nil, func(e *github.Secrets) []*github.Secret {
		return e.Secrets
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to list secrets for %s: %w", org, err)
	}

	return toSecrets(secrets), nil
}

func toSecrets(secrets []*github.Secret) []*domain.Secret {
	result := make([]*domain.Secret, 0, len(secrets))
	for _, s := range secrets {
		result = append(result, &domain.Secret{Name: s.Name, Visibility: s.Visibility})
	}
	return result
}

// GetVariables retrieves the organization's Actions variables
func (c *githubCollector) GetVariables(ctx context.Context, org string) ([]*domain.Variable, error) {
	path := fmt.Sprintf("/orgs/%s/actions/variables", url.PathEscape(org))
	variables, err := Paginate(ctx, c.pageSize, EnvelopePage(c.client, path, nil, func(e *github.ActionsVariables) []*github.ActionsVariable {
		return e.Variables
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to list variables for %s: %w", org, err)
	}

	return toVariables(variables), nil
}

func toVariables(variables []*github.ActionsVariable) []*domain.Variable {
	result := make([]*domain.Variable, 0, len(variables))
	for _, v := range variables {
		result = append(result, &domain.Variable{Name: v.Name, Value: v.Value, Visibility: v.GetVisibility()})
	}
	return result
}

// GetRepoRunners retrieves the runners registered to a single repository
func (c *githubCollector) GetRepoRunners(ctx context.Context, org, repo string) ([]*domain.Runner, error) {
	runners, err := Paginate(ctx, c.pageSize, EnvelopePage(c.client, repoPath(org, repo, "actions/runners"), nil, func(e *github.Runners) []*github.Runner {
		return e.Runners
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to list runners for %s/%s: %w", org, repo, err)
	}
	return toRunners(runners), nil
}

// GetRepoSecrets retrieves the secret names of a single repository
func (c *githubCollector) GetRepoSecrets(ctx context.Context, org, repo string) ([]*domain.Secret, error) {
	secrets, err := Paginate(ctx, c.pageSize, EnvelopePage(c.client, repoPath(org, repo, "actions/secrets"), nil, func(e *github.Secrets) []*github.Secret {
		return e.Secrets
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to list secrets for %s/%s: %w", org, repo, err)
	}
	return toSecrets(secrets), nil
}

// GetRepoVariables retrieves the variables of a single repository. Repositories
// with Actions disabled answer 404, which yields an empty list.
func (c *githubCollector) GetRepoVariables(ctx context.Context, org, repo string) ([]*domain.Variable, error) {
	variables, err := Paginate(ctx, c.pageSize, EnvelopePage(c.client, repoPath(org, repo, "actions/variables"), nil, func(e *github.ActionsVariables) []*github.ActionsVariable {
		return e.Variables
	}))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list variables for %s/%s: %w", org, repo, err)
	}
	return toVariables(variables), nil
}

// GetEnvironments retrieves the deployment environments of a repository. A
// repository without environments may answer 404, which yields an empty list.
func (c *githubCollector) GetEnvironments(ctx context.Context, org, repo string) ([]*domain.Environment, error) {
	envs, err := Paginate(ctx, c.pageSize, EnvelopePage(c.client, repoPath(org, repo, "environments"), nil, func(e *github.EnvResponse) []*github.Environment {
		return e.Environments
	}))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list environments for %s/%s: %w", org, repo, err)
	}

	result := make([]*domain.Environment, 0, len(envs))
	for _, e := range envs {
		env, err := toEnvironment(e)
		if err != nil {
			return nil, fmt.Errorf("environment %s of %s/%s: %w", e.GetName(), org, repo, err)
		}
		result = append(result, env)
	}
	return result, nil
}

func toEnvironment(e *github.Environment) (*domain.Environment, error) {
	env := &domain.Environment{
		ID:              e.GetID(),
		Name:            e.GetName(),
		URL:             e.GetURL(),
		CreatedAt:       formatTimestamp(e.GetCreatedAt()),
		UpdatedAt:       formatTimestamp(e.GetUpdatedAt()),
		CanAdminsBypass: e.CanAdminsBypass,
		WaitTimer:       e.WaitTimer,
	}
	if e.DeploymentBranchPolicy != nil {
		policy, err := json.Marshal(e.DeploymentBranchPolicy)
		if err != nil {
			return nil, err
		}
		env.DeploymentBranchPolicy = string(policy)
	}

	for _, rule := range e.ProtectionRules {
		if rule.WaitTimer != nil && env.WaitTimer == nil {
			env.WaitTimer = rule.WaitTimer
		}
		if rule.GetType() != "required_reviewers" {
			continue
		}
		for _, rr := range rule.Reviewers {
			switch r := rr.Reviewer.(type) {
			case *github.User:
				env.Reviewers = append(env.Reviewers, domain.EnvironmentReviewer{
					ID: r.GetID(), Login: r.GetLogin(), Name: r.GetName(), Type: "User",
				})
			case *github.Team:
				env.Reviewers = append(env.Reviewers, domain.EnvironmentReviewer{
					ID: r.GetID(), Login: r.GetSlug(), Name: r.GetName(), Type: "Team",
				})
			}
		}
	}
	return env, nil
}

func environmentPath(org, repo, env, resource string) string {
	return repoPath(org, repo, "environments/"+url.PathEscape(env)+"/"+resource)
}

// GetEnvironmentVariables retrieves the variables of one environment
func (c *githubCollector) GetEnvironmentVariables(ctx context.Context, org, repo, env string) ([]*domain.Variable, error) {
	variables, err := Paginate(ctx, c.pageSize, EnvelopePage(c.client, environmentPath(org, repo, env, "variables"), nil, func(e *github.ActionsVariables) []*github.ActionsVariable {
		return e.Variables
	}))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list variables for %s/%s environment %s: %w", org, repo, env, err)
	}
	return toVariables(variables), nil
}

// GetEnvironmentSecrets retrieves the secret names of one environment
func (c *githubCollector) GetEnvironmentSecrets(ctx context.Context, org, repo, env string) ([]*domain.Secret, error) {
	secrets, err := Paginate(ctx, c.pageSize, EnvelopePage(c.client, environmentPath(org, repo, env, "secrets"), nil, func(e *github.Secrets) []*github.Secret {
		return e.Secrets
	}))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list secrets for %s/%s environment %s: %w", org, repo, env, err)
	}
	return toSecrets(secrets), nil
}

func isNotFound(err error) bool {
	return apperrors.IsUpstream(err) && apperrors.StatusOf(err) == http.StatusNotFound
}

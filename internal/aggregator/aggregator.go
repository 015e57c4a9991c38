package aggregator

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/kurihiro0119/github-repo-inventory/internal/collector"
	"github.com/kurihiro0119/github-repo-inventory/internal/domain"
	"github.com/kurihiro0119/github-repo-inventory/internal/errlog"
)

// RowSink receives finished rows in listing order
type RowSink interface {
	WriteRow(row *domain.InventoryRow) error
}

// RowSinkFunc adapts a function to RowSink
type RowSinkFunc func(row *domain.InventoryRow) error

// WriteRow calls f(row)
func (f RowSinkFunc) WriteRow(row *domain.InventoryRow) error {
	return f(row)
}

// MultiSink fans each row out to every sink in turn, stopping at the first failure
func MultiSink(sinks ...RowSink) RowSink {
	return RowSinkFunc(func(row *domain.InventoryRow) error {
		for _, s := range sinks {
			if err := s.WriteRow(row); err != nil {
				return err
			}
		}
		return nil
	})
}

// Aggregator defines the interface for building inventory rows
type Aggregator interface {
	// BuildRow runs every per-repository query and assembles one row
	BuildRow(ctx context.Context, org string, repo *domain.Repository) (*domain.InventoryRow, error)

	// Run builds a row for each repository and hands it to sink. Repositories
	// whose queries fail are logged and skipped.
	Run(ctx context.Context, org string, repos []*domain.Repository, sink RowSink) (*domain.RunResult, error)

	// BuildEnvironments gathers every environment of a repository with its
	// variables and secret names
	BuildEnvironments(ctx context.Context, org string, repo *domain.Repository) ([]*domain.EnvironmentInventory, error)
}

// aggregator implements the Aggregator interface
type aggregator struct {
	collector collector.Collector
	errLog    *errlog.Log
	logger    *log.Logger
}

// NewAggregator creates a new aggregator
func NewAggregator(c collector.Collector, errLog *errlog.Log, logger *log.Logger) Aggregator {
	if logger == nil {
		logger = log.Default()
	}
	return &aggregator{
		collector: c,
		errLog:    errLog,
		logger:    logger,
	}
}

// BuildRow queries pull requests, issues, branches, tags, the last commit and
// releases, in that order. The first failure aborts the row.
func (a *aggregator) BuildRow(ctx context.Context, org string, repo *domain.Repository) (*domain.InventoryRow, error) {
	prs, err := a.collector.GetPullRequestCounts(ctx, org, repo.Name)
	if err != nil {
		return nil, err
	}
	issues, err := a.collector.GetIssueCounts(ctx, org, repo.Name)
	if err != nil {
		return nil, err
	}
	branches, err := a.collector.CountBranches(ctx, org, repo.Name)
	if err != nil {
		return nil, err
	}
	tags, err := a.collector.CountTags(ctx, org, repo.Name)
	if err != nil {
		return nil, err
	}
	last, err := a.collector.GetLastCommit(ctx, org, repo.Name, repo.DefaultBranch)
	if err != nil {
		return nil, err
	}
	releases, err := a.collector.CountReleases(ctx, org, repo.Name)
	if err != nil {
		return nil, err
	}

	return domain.NewInventoryRow(repo, prs, issues, branches, tags, releases, last), nil
}

// Run processes repos sequentially in the given order. Only cancellation of
// ctx or a sink failure ends the run early; the partial result is returned
// alongside the error.
func (a *aggregator) Run(ctx context.Context, org string, repos []*domain.Repository, sink RowSink) (*domain.RunResult, error) {
	result := &domain.RunResult{}

	skipped, err := Walk(ctx, repos, a.errLog, a.logger,
		func(ctx context.Context, repo *domain.Repository) (*domain.InventoryRow, error) {
			return a.BuildRow(ctx, org, repo)
		},
		func(_ *domain.Repository, row *domain.InventoryRow) error {
			if err := sink.WriteRow(row); err != nil {
				return err
			}
			result.Rows = append(result.Rows, row)
			return nil
		},
	)
	result.Skipped = skipped
	return result, err
}

// BuildEnvironments lists the environments of repo and fetches the variables
// and secret names of each. The first failure aborts the repository.
func (a *aggregator) BuildEnvironments(ctx context.Context, org string, repo *domain.Repository) ([]*domain.EnvironmentInventory, error) {
	envs, err := a.collector.GetEnvironments(ctx, org, repo.Name)
	if err != nil {
		return nil, err
	}

	result := make([]*domain.EnvironmentInventory, 0, len(envs))
	for _, env := range envs {
		variables, err := a.collector.GetEnvironmentVariables(ctx, org, repo.Name, env.Name)
		if err != nil {
			return nil, err
		}
		secrets, err := a.collector.GetEnvironmentSecrets(ctx, org, repo.Name, env.Name)
		if err != nil {
			return nil, err
		}
		result = append(result, &domain.EnvironmentInventory{
			Environment: env,
			Variables:   variables,
			Secrets:     secrets,
		})
	}
	return result, nil
}

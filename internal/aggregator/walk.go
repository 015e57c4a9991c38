package aggregator

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/kurihiro0119/github-repo-inventory/internal/domain"
	"github.com/kurihiro0119/github-repo-inventory/internal/errlog"
)

// Walk visits repos in listing order. fetch gathers the data of one
// repository; when it fails the error log gets "Error processing <name>: <err>"
// and the repository is skipped. emit hands the data on, and its failure ends
// the walk, as does cancellation of ctx. The names of skipped repositories
// are returned in order.
func Walk[T any](
	ctx context.Context,
	repos []*domain.Repository,
	errLog *errlog.Log,
	logger *log.Logger,
	fetch func(ctx context.Context, repo *domain.Repository) (T, error),
	emit func(repo *domain.Repository, data T) error,
) ([]string, error) {
	var skipped []string

	for i, repo := range repos {
		if err := ctx.Err(); err != nil {
			return skipped, err
		}

		logger.Infof("Processing %s (%d/%d)", repo.Name, i+1, len(repos))

		data, err := fetch(ctx, repo)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return skipped, ctxErr
			}
			errLog.Record("Error processing %s: %v", repo.Name, err)
			logger.Warn("Skipping repository", "repo", repo.Name, "err", err)
			skipped = append(skipped, repo.Name)
			continue
		}

		if err := emit(repo, data); err != nil {
			return skipped, fmt.Errorf("failed to write %s: %w", repo.Name, err)
		}
	}

	return skipped, nil
}

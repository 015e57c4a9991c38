package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/kurihiro0119/github-repo-inventory/internal/aggregator"
	"github.com/kurihiro0119/github-repo-inventory/internal/collector"
	"github.com/kurihiro0119/github-repo-inventory/internal/config"
	"github.com/kurihiro0119/github-repo-inventory/internal/domain"
	"github.com/kurihiro0119/github-repo-inventory/internal/errlog"
	"github.com/kurihiro0119/github-repo-inventory/internal/logging"
	"github.com/kurihiro0119/github-repo-inventory/internal/report"
	"github.com/kurihiro0119/github-repo-inventory/internal/storage"
	"github.com/kurihiro0119/github-repo-inventory/internal/storage/postgres"
	"github.com/kurihiro0119/github-repo-inventory/internal/storage/sqlite"
	"github.com/kurihiro0119/github-repo-inventory/pkg/client"
)

var (
	cfgFile   string
	verbose   bool
	countMode string
	outputDir string
	remote    bool
	runLimit  int
	perRepo   bool
)

var rootCmd = &cobra.Command{
	Use:   "inventory",
	Short: "GitHub organization repository inventory",
	Long: `A CLI tool for inventorying the repositories of a GitHub organization.

It lists every repository, counts pull requests, issues, branches, tags and
releases, looks up the last commit on the default branch and writes the
result as a CSV report.`,
	SilenceUsage: true,
}

var reportCmd = &cobra.Command{
	Use:   "report [org]",
	Short: "Write the repository inventory report",
	Long:  `Collect per-repository metadata for an organization and write it as a 17-column CSV report.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReport,
}

var listCmd = &cobra.Command{
	Use:   "list [org]",
	Short: "List repository names and visibility",
	Long:  `Write the name and visibility of every repository in the organization to github_repos.csv.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runList,
}

var actionsCmd = &cobra.Command{
	Use:   "actions [org]",
	Short: "Export Actions runners, secrets and variables",
	Long: `Write the organization's self-hosted runners, Actions secret names and Actions variables to timestamped CSV files.

With --per-repo, walk every repository instead and write its runners, secret
names and variables to github_action_runners.csv, secrets_result.csv and
org_actions_variables.csv.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runActions,
}

var environmentsCmd = &cobra.Command{
	Use:   "environments [org]",
	Short: "Export deployment environments",
	Long: `Walk every repository's deployment environments and write their variables,
secret names and required reviewers to github_environments_variables.csv,
github_environment_secrets.csv and environment_reviewers.csv.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEnvironments,
}

var showCmd = &cobra.Command{
	Use:   "show [org]",
	Short: "Show the latest stored inventory",
	Long:  `Display the latest completed inventory run from storage, or from the API server with --remote.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runShow,
}

var runsCmd = &cobra.Command{
	Use:   "runs [org]",
	Short: "List stored inventory runs",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRuns,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file, .env or .toml (default is .env)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&countMode, "count-mode", "", "pull request and issue counting: approximate or exhaustive")
	rootCmd.PersistentFlags().StringVar(&outputDir, "output-dir", "", "directory for CSV output")

	actionsCmd.Flags().BoolVar(&perRepo, "per-repo", false, "export the settings of every repository instead of the organization")
	showCmd.PersistentFlags().BoolVar(&remote, "remote", false, "read from the API server at API_ENDPOINT")
	runsCmd.Flags().IntVar(&runLimit, "limit", 20, "maximum number of runs to list")

	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(actionsCmd)
	rootCmd.AddCommand(environmentsCmd)
	rootCmd.AddCommand(showCmd)
	showCmd.AddCommand(runsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads configuration and applies the org argument and global flags
func loadConfig(args []string) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if len(args) > 0 {
		cfg.Org = args[0]
	}
	if countMode != "" {
		cfg.CountMode = countMode
	}
	if outputDir != "" {
		cfg.OutputDir = outputDir
	}
	return cfg, nil
}

// newLogger builds the console logger, teeing into LOG_FILE when configured
func newLogger(cfg *config.Config) (*log.Logger, io.Closer, error) {
	if cfg.LogFile == "" {
		return logging.New(os.Stderr, verbose), io.NopCloser(nil), nil
	}
	return logging.WithFile(os.Stderr, cfg.LogFile, verbose)
}

// signalContext is cancelled on Ctrl-C or SIGTERM and carries logger
func signalContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return logging.WithLogger(ctx, logger), stop
}

func newCollector(cfg *config.Config, errLog *errlog.Log, logger *log.Logger) (collector.Collector, error) {
	backoff, err := collector.BackoffByName(cfg.RetryBackoff)
	if err != nil {
		return nil, err
	}
	c, err := collector.NewClient(collector.ClientConfig{
		Token:        cfg.GitHubToken,
		BaseURL:      cfg.APIBaseURL,
		MaxRetries:   cfg.MaxRetries,
		RetryDelay:   cfg.RetryDelay,
		Backoff:      backoff,
		RequestDelay: cfg.RequestDelay,
	}, errLog, logger)
	if err != nil {
		return nil, err
	}
	return collector.NewGitHubCollector(c, cfg.PageSize, cfg.CountMode), nil
}

func getStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageType {
	case "postgres":
		return postgres.NewPostgresStorage(cfg.PostgresURL)
	default:
		return sqlite.NewSQLiteStorage(cfg.SQLitePath)
	}
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, closer, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signalContext(logger)
	defer stop()

	errLog := errlog.New(cfg.ErrorLogPath)
	coll, err := newCollector(cfg, errLog, logger)
	if err != nil {
		return err
	}

	logger.Info("Fetching repositories", "org", cfg.Org, "count_mode", cfg.CountMode)
	repos, err := coll.GetRepositories(ctx, cfg.Org)
	if err != nil {
		errLog.Record("Error listing repositories for %s: %v", cfg.Org, err)
		return fmt.Errorf("failed to get repositories: %w", err)
	}
	logger.Infof("Found %d repositories", len(repos))

	path := report.InventoryFileName(cfg.OutputDir, cfg.Org, cfg.TimestampOutput, time.Now())
	w, err := report.Create(path, report.InventoryHeader)
	if err != nil {
		return err
	}
	defer w.Close()

	var sink aggregator.RowSink = w
	var store storage.Storage
	var run *domain.Run
	if cfg.StorageType != "none" {
		store, err = getStorage(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer store.Close()

		run = &domain.Run{Org: cfg.Org, CountMode: cfg.CountMode, OutputPath: path}
		if err := store.SaveRun(ctx, run); err != nil {
			return err
		}
		logger.Debug("Recording run", "id", run.ID, "storage", cfg.StorageType)

		position := 0
		sink = aggregator.MultiSink(w, aggregator.RowSinkFunc(func(row *domain.InventoryRow) error {
			position++
			return store.SaveRow(ctx, run.ID, position, row)
		}))
	}

	progress := logging.NewProgress(logger)
	agg := aggregator.NewAggregator(coll, errLog, logger)
	result, runErr := agg.Run(ctx, cfg.Org, repos, sink)

	if store != nil {
		status := domain.RunStatusCompleted
		if runErr != nil {
			status = domain.RunStatusFailed
		}
		// ctx may already be cancelled; the final status is still recorded
		if err := store.CompleteRun(context.Background(), run.ID, status, len(result.Rows), len(result.Skipped)); err != nil {
			logger.Error("Failed to record run status", "id", run.ID, "err", err)
		}
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			logger.Warn("Interrupted", "written", len(result.Rows), "path", path)
		}
		return runErr
	}

	progress.Done(fmt.Sprintf("Processed %d repositories, skipped %d", len(result.Rows), len(result.Skipped)))
	if len(result.Skipped) > 0 {
		logger.Warn("Some repositories were skipped", "count", len(result.Skipped), "error_log", errLog.Path())
	}
	logger.Info("Output written", "path", path)

	report.RenderSummary(cmd.OutOrStdout(), aggregator.Summarize(result.Rows))
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, closer, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signalContext(logger)
	defer stop()

	errLog := errlog.New(cfg.ErrorLogPath)
	coll, err := newCollector(cfg, errLog, logger)
	if err != nil {
		return err
	}

	repos, err := listRepositories(ctx, coll, errLog, cfg.Org)
	if err != nil {
		return err
	}

	path := filepath.Join(cfg.OutputDir, report.ListFileName)
	w, err := report.Create(path, report.ListHeader)
	if err != nil {
		return err
	}
	for _, repo := range repos {
		if err := w.WriteRepository(repo); err != nil {
			w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	logger.Infof("Saved %d repositories to %s", w.Rows(), path)
	return nil
}

func runActions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, closer, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signalContext(logger)
	defer stop()

	errLog := errlog.New(cfg.ErrorLogPath)
	coll, err := newCollector(cfg, errLog, logger)
	if err != nil {
		return err
	}

	if perRepo {
		return exportRepoActions(ctx, cfg, coll, errLog)
	}

	now := time.Now()

	runners, err := coll.GetRunners(ctx, cfg.Org)
	if err != nil {
		errLog.Record("Error fetching runners for %s: %v", cfg.Org, err)
	} else if err := exportActions(ctx, report.ActionsFileName(cfg.OutputDir, "runners", now), report.RunnerHeader, runners, (*report.Writer).WriteRunner); err != nil {
		return err
	}

	secrets, err := coll.GetSecrets(ctx, cfg.Org)
	if err != nil {
		errLog.Record("Error fetching secrets for %s: %v", cfg.Org, err)
	} else if err := exportActions(ctx, report.ActionsFileName(cfg.OutputDir, "secrets", now), report.SecretHeader, secrets, (*report.Writer).WriteSecret); err != nil {
		return err
	}

	variables, err := coll.GetVariables(ctx, cfg.Org)
	if err != nil {
		errLog.Record("Error fetching variables for %s: %v", cfg.Org, err)
	} else if err := exportActions(ctx, report.ActionsFileName(cfg.OutputDir, "variables", now), report.VariableHeader, variables, (*report.Writer).WriteVariable); err != nil {
		return err
	}

	return ctx.Err()
}

// exportActions writes items to path. Nothing is written for an empty list.
func exportActions[T any](ctx context.Context, path string, header []string, items []T, write func(*report.Writer, T) error) error {
	logger := logging.FromContext(ctx)
	if len(items) == 0 {
		logger.Warn("No data to write", "path", path)
		return nil
	}

	w, err := report.Create(path, header)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := write(w, item); err != nil {
			w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	logger.Infof("Written %d rows to %s", w.Rows(), path)
	return nil
}

// listRepositories fetches the organization's repositories, recording a
// failure in the error log
func listRepositories(ctx context.Context, coll collector.Collector, errLog *errlog.Log, org string) ([]*domain.Repository, error) {
	logger := logging.FromContext(ctx)
	logger.Info("Fetching repositories", "org", org)
	repos, err := coll.GetRepositories(ctx, org)
	if err != nil {
		errLog.Record("Error listing repositories for %s: %v", org, err)
		return nil, fmt.Errorf("failed to get repositories: %w", err)
	}
	logger.Infof("Found %d repositories", len(repos))
	return repos, nil
}

// exportRepoActions writes the runners, secrets and variables of every
// repository, one file per kind
func exportRepoActions(ctx context.Context, cfg *config.Config, coll collector.Collector, errLog *errlog.Log) error {
	repos, err := listRepositories(ctx, coll, errLog, cfg.Org)
	if err != nil {
		return err
	}

	if err := exportPerRepo(ctx, filepath.Join(cfg.OutputDir, report.RepoRunnersFileName), report.RepoRunnerHeader, repos, errLog,
		func(ctx context.Context, repo *domain.Repository) ([]*domain.Runner, error) {
			return coll.GetRepoRunners(ctx, cfg.Org, repo.Name)
		},
		func(w *report.Writer, repo *domain.Repository, runners []*domain.Runner) error {
			return w.WriteRepoRunners(repo.Name, runners)
		},
	); err != nil {
		return err
	}

	if err := exportPerRepo(ctx, filepath.Join(cfg.OutputDir, report.RepoSecretsFileName), report.RepoSecretHeader, repos, errLog,
		func(ctx context.Context, repo *domain.Repository) ([]*domain.Secret, error) {
			return coll.GetRepoSecrets(ctx, cfg.Org, repo.Name)
		},
		func(w *report.Writer, repo *domain.Repository, secrets []*domain.Secret) error {
			return w.WriteRepoSecrets(repo.Name, secrets)
		},
	); err != nil {
		return err
	}

	return exportPerRepo(ctx, filepath.Join(cfg.OutputDir, report.RepoVariablesFileName), report.RepoVariableHeader, repos, errLog,
		func(ctx context.Context, repo *domain.Repository) ([]*domain.Variable, error) {
			return coll.GetRepoVariables(ctx, cfg.Org, repo.Name)
		},
		func(w *report.Writer, repo *domain.Repository, variables []*domain.Variable) error {
			return w.WriteRepoVariables(repo.Name, variables)
		},
	)
}

// exportPerRepo creates path, walks repos and writes what fetch returns for
// each. Failing repositories are skipped and recorded in the error log.
func exportPerRepo[T any](
	ctx context.Context,
	path string,
	header []string,
	repos []*domain.Repository,
	errLog *errlog.Log,
	fetch func(context.Context, *domain.Repository) (T, error),
	write func(*report.Writer, *domain.Repository, T) error,
) error {
	logger := logging.FromContext(ctx)

	w, err := report.Create(path, header)
	if err != nil {
		return err
	}
	skipped, walkErr := aggregator.Walk(ctx, repos, errLog, logger, fetch, func(repo *domain.Repository, data T) error {
		return write(w, repo, data)
	})
	if err := w.Close(); err != nil && walkErr == nil {
		walkErr = err
	}
	if walkErr != nil {
		return walkErr
	}

	if len(skipped) > 0 {
		logger.Warn("Some repositories were skipped", "count", len(skipped), "error_log", errLog.Path())
	}
	logger.Infof("Written %d rows to %s", w.Rows(), path)
	return nil
}

func runEnvironments(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, closer, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signalContext(logger)
	defer stop()

	errLog := errlog.New(cfg.ErrorLogPath)
	coll, err := newCollector(cfg, errLog, logger)
	if err != nil {
		return err
	}

	repos, err := listRepositories(ctx, coll, errLog, cfg.Org)
	if err != nil {
		return err
	}

	variables, err := report.Create(filepath.Join(cfg.OutputDir, report.EnvironmentVariablesFileName), report.EnvironmentVariableHeader)
	if err != nil {
		return err
	}
	defer variables.Close()
	secrets, err := report.Create(filepath.Join(cfg.OutputDir, report.EnvironmentSecretsFileName), report.EnvironmentSecretHeader)
	if err != nil {
		return err
	}
	defer secrets.Close()
	reviewers, err := report.Create(filepath.Join(cfg.OutputDir, report.EnvironmentReviewersFileName), report.EnvironmentReviewerHeader)
	if err != nil {
		return err
	}
	defer reviewers.Close()

	agg := aggregator.NewAggregator(coll, errLog, logger)
	skipped, err := aggregator.Walk(ctx, repos, errLog, logger,
		func(ctx context.Context, repo *domain.Repository) ([]*domain.EnvironmentInventory, error) {
			return agg.BuildEnvironments(ctx, cfg.Org, repo)
		},
		func(repo *domain.Repository, envs []*domain.EnvironmentInventory) error {
			for _, inv := range envs {
				if err := variables.WriteEnvironmentVariables(repo.Name, inv); err != nil {
					return err
				}
				if err := secrets.WriteEnvironmentSecrets(repo.Name, inv); err != nil {
					return err
				}
				if err := reviewers.WriteEnvironmentReviewers(cfg.Org+"/"+repo.Name, inv.Environment); err != nil {
					return err
				}
			}
			return nil
		},
	)
	if err != nil {
		return err
	}

	if len(skipped) > 0 {
		logger.Warn("Some repositories were skipped", "count", len(skipped), "error_log", errLog.Path())
	}
	logger.Info("Environments exported",
		"variables", variables.Rows(), "secrets", secrets.Rows(), "reviewers", reviewers.Rows(), "output_dir", cfg.OutputDir)
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	if cfg.Org == "" {
		return &config.ConfigError{Field: "ORG_NAME", Message: "organization is required (set ORG_NAME or GH_ORG, or pass it as an argument)"}
	}

	logger := logging.New(os.Stderr, verbose)
	ctx, stop := signalContext(logger)
	defer stop()

	var latest *domain.RunReport
	if remote {
		logger.Debug("Fetching latest run", "endpoint", cfg.APIEndpoint)
		latest, err = client.NewClient(cfg.APIEndpoint).GetLatestReport(ctx, cfg.Org)
		if err != nil {
			return fmt.Errorf("failed to get latest run: %w", err)
		}
	} else {
		if err := cfg.ValidateStorage(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		store, err := getStorage(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer store.Close()

		run, err := store.GetLatestRun(ctx, cfg.Org)
		if err != nil {
			return fmt.Errorf("failed to get latest run: %w", err)
		}
		rows, err := store.GetRows(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("failed to get rows: %w", err)
		}
		latest = &domain.RunReport{Run: run, Rows: rows, Summary: aggregator.Summarize(rows)}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nInventory: %s\n", cfg.Org)
	fmt.Fprintf(out, "Run %s (%s count), started %s\n\n",
		latest.Run.ID, latest.Run.CountMode, latest.Run.StartedAt.Local().Format("2006-01-02 15:04:05"))

	report.RenderTable(out, latest.Rows)
	fmt.Fprintln(out)
	report.RenderSummary(out, latest.Summary)
	return nil
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	if cfg.Org == "" {
		return &config.ConfigError{Field: "ORG_NAME", Message: "organization is required (set ORG_NAME or GH_ORG, or pass it as an argument)"}
	}

	logger := logging.New(os.Stderr, verbose)
	ctx, stop := signalContext(logger)
	defer stop()

	var runs []*domain.Run
	if remote {
		runs, err = client.NewClient(cfg.APIEndpoint).GetRuns(ctx, cfg.Org, runLimit)
	} else {
		if err := cfg.ValidateStorage(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		var store storage.Storage
		store, err = getStorage(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer store.Close()
		runs, err = store.GetRuns(ctx, cfg.Org, runLimit)
	}
	if err != nil {
		return fmt.Errorf("failed to get runs: %w", err)
	}

	report.RenderRuns(cmd.OutOrStdout(), runs)
	return nil
}

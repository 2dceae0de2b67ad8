package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/naka-gawa/repo-miner/internal/config"
	"github.com/naka-gawa/repo-miner/internal/domain"
	"github.com/naka-gawa/repo-miner/internal/gateway"
	"github.com/naka-gawa/repo-miner/internal/logger"
	"github.com/naka-gawa/repo-miner/internal/metrics"
	"github.com/naka-gawa/repo-miner/internal/report"
	"github.com/naka-gawa/repo-miner/internal/snapshot"
	"github.com/naka-gawa/repo-miner/internal/usecase"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const exitConfigError = 2

var evaluateCmd = &cobra.Command{
	Use:   "evaluate [owner/name ...]",
	Short: "Evaluates repositories and outputs the collected commits as JSON",
	Long: `Evaluates every configured repository in order: it must be available (not
archived or disabled), at least 11% of its files must end with the target suffix,
and it must average at least two commits per month over the rolling window.
The result maps each repository to its commits, or to null when it does not qualify.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Get the verbose flag from the root command to set up the logger.
		verbose, _ := cmd.InheritedFlags().GetBool("verbose")
		format, _ := cmd.InheritedFlags().GetString("log-format")
		log := logger.New(logger.Options{Verbose: verbose, Format: format})

		cfg, token, err := loadConfig(cmd, args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(exitConfigError)
		}
		if token == "" {
			log.Warn().Str("env", cfg.TokenEnv).Msg("No token found, using unauthenticated access (60 requests/hour).")
		}

		if err := runEvaluate(ctx, cfg, token, log); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to evaluate repositories: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	addEvaluateFlags(evaluateCmd)
}

func addEvaluateFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	defaults := config.Default()
	flags.StringP("config", "c", "", "YAML file with the repository list and settings")
	flags.StringSliceP("repo", "r", nil, "Repository to evaluate as owner/name (repeatable; replaces the configured list)")
	flags.Int("window-months", defaults.WindowMonths, "Length of the rolling window in months")
	flags.Int("page-size", defaults.PageSize, "Commits requested per page (max 100)")
	flags.String("suffix", defaults.Suffix, "File suffix counted by the structural filter")
	flags.String("listing", defaults.Listing, "File listing provider: remote (API tree) or local (shallow clone)")
	flags.String("history", defaults.History, "Commit source: rest or graphql (graphql needs a token)")
	flags.String("cache-dir", defaults.CacheDir, "Directory holding local clones")
	flags.Int("concurrency", defaults.Concurrency, "Repositories evaluated in parallel")
	flags.Duration("timeout", defaults.Timeout, "Time limit for evaluating one repository (0 disables)")
	flags.Float64("rps", defaults.RPS, "Maximum API requests per second (0 disables pacing)")
	flags.String("api-url", "", "GitHub API base URL (GitHub Enterprise)")
	flags.String("token-env", defaults.TokenEnv, "Environment variable holding the GitHub token")
	flags.StringP("output", "o", defaults.Output, "Path of the JSON report, - for stdout")
	flags.String("sqlite", "", "Also export the run to this SQLite database")
	flags.String("metrics-file", "", "Write Prometheus metrics of the run to this file")
}

// loadConfig layers flags over the config file and validates the result.
func loadConfig(cmd *cobra.Command, args []string) (config.Config, string, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, "", err
	}

	repos, _ := flags.GetStringSlice("repo")
	repos = append(repos, args...)
	if len(repos) > 0 {
		cfg.Repositories = repos
	}
	if flags.Changed("window-months") {
		cfg.WindowMonths, _ = flags.GetInt("window-months")
	}
	if flags.Changed("page-size") {
		cfg.PageSize, _ = flags.GetInt("page-size")
	}
	if flags.Changed("suffix") {
		cfg.Suffix, _ = flags.GetString("suffix")
	}
	if flags.Changed("listing") {
		cfg.Listing, _ = flags.GetString("listing")
	}
	if flags.Changed("history") {
		cfg.History, _ = flags.GetString("history")
	}
	if flags.Changed("cache-dir") {
		cfg.CacheDir, _ = flags.GetString("cache-dir")
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency, _ = flags.GetInt("concurrency")
	}
	if flags.Changed("timeout") {
		cfg.Timeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("rps") {
		cfg.RPS, _ = flags.GetFloat64("rps")
	}
	if flags.Changed("api-url") {
		cfg.APIURL, _ = flags.GetString("api-url")
	}
	if flags.Changed("token-env") {
		cfg.TokenEnv, _ = flags.GetString("token-env")
	}
	if flags.Changed("output") {
		cfg.Output, _ = flags.GetString("output")
	}
	if flags.Changed("sqlite") {
		cfg.SQLitePath, _ = flags.GetString("sqlite")
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile, _ = flags.GetString("metrics-file")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, "", err
	}
	token := cfg.Token()
	if cfg.History == config.HistoryGraph && token == "" {
		return cfg, "", fmt.Errorf("%w: the graphql commit source needs a token in $%s", config.ErrInvalid, cfg.TokenEnv)
	}
	return cfg, token, nil
}

// runEvaluate wires the gateway, providers and use cases, runs the batch and persists the result.
func runEvaluate(ctx context.Context, cfg config.Config, token string, log zerolog.Logger) error {
	repos, err := cfg.RepositoryIDs()
	if err != nil {
		return err
	}
	runID := uuid.New()
	log = log.With().Str("run_id", runID.String()).Logger()

	m := metrics.New()
	githubGateway, err := gateway.NewGitHubGateway(token, gateway.Options{
		BaseURL:           cfg.APIURL,
		RequestsPerSecond: cfg.RPS,
		Metrics:           m,
	}, logger.Named(log, "gateway"))
	if err != nil {
		return fmt.Errorf("failed to create GitHub gateway: %w", err)
	}

	var lister gateway.TreeLister = githubGateway
	if cfg.Listing == config.ListingLocal {
		lister = snapshot.New(snapshot.Options{CacheDir: cfg.CacheDir, Token: token}, logger.Named(log, "snapshot"))
	}
	var source gateway.CommitSource = githubGateway
	if cfg.History == config.HistoryGraph {
		source = githubGateway.GraphQLHistory()
	}

	// Every repository of the run is judged against the same window.
	startedAt := time.Now()
	aggregator := usecase.NewAggregator(source, logger.Named(log, "aggregator"),
		usecase.WithWindowMonths(cfg.WindowMonths),
		usecase.WithPageSize(cfg.PageSize),
		usecase.WithClock(func() time.Time { return startedAt }),
	)
	window := aggregator.Window()
	log.Info().
		Time("window_start", window.Start).
		Time("window_end", window.End).
		Str("listing", cfg.Listing).
		Str("history", cfg.History).
		Msg("Starting evaluation.")

	evaluator := usecase.NewEvaluator(
		githubGateway,
		usecase.NewStructuralFilter(lister, cfg.Suffix, logger.Named(log, "structure")),
		aggregator,
		cfg.Timeout,
		logger.Named(log, "evaluator"),
	)
	result := usecase.NewBatch(evaluator, cfg.Concurrency, m, logger.Named(log, "batch")).Run(ctx, repos)
	logSummary(log, result)

	if err := report.SaveJSON(cfg.Output, result); err != nil {
		return err
	}
	if cfg.SQLitePath != "" {
		store, err := report.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return err
		}
		defer store.Close()
		// The report is still written after an interrupt.
		if err := store.SaveRun(context.WithoutCancel(ctx), runID, window, result); err != nil {
			return fmt.Errorf("failed to export run to SQLite: %w", err)
		}
	}
	if cfg.MetricsFile != "" {
		if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("interrupted: %w", ctx.Err())
	}
	return nil
}

func logSummary(log zerolog.Logger, result domain.EvaluationResult) {
	log.Info().Int("accepted", result.Accepted()).Int("total", len(result)).Msg("Summary:")
	for _, o := range result {
		event := log.Info().Str("repo", o.Repository.String()).Str("status", string(o.Status))
		if o.Status == domain.StatusAccepted {
			event.Int("commits", len(o.Commits)).Msg("commits collected")
			continue
		}
		event.Str("reason", o.Reason).Msg("not collected")
	}
}

package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/snapsolver/internal/config"
	"github.com/jonathan/snapsolver/internal/grouper"
	"github.com/jonathan/snapsolver/internal/pool"
	"github.com/jonathan/snapsolver/internal/types"
	"github.com/jonathan/snapsolver/internal/watcher"
)

var watchCommand = &cobra.Command{
	Use:   "watch",
	Short: "Watch a capture directory and solve arriving screenshot groups",
	Long: `Runs the agent as a daemon: new screenshots in the watched directory are batched
into groups by an adaptive idle window, and each sealed group runs through the
classify -> textualize -> solve -> persist -> rename -> archive pipeline on a
bounded worker pool.

Configuration can be loaded from a JSON file using --config. Command-line
arguments override config file values.`,
	RunE: runWatchCmd,
}

var (
	watchConfigPath     string
	watchDir            string
	watchOutputDir      string
	watchProcessedDir   string
	watchFailureDir     string
	watchIdleWindow     float64
	watchWorkers        int
	watchRetryAttempts  int
	watchRetryBackoffMS int
	watchAPIKey         string
	watchDatabaseURL    string
	watchVerbose        bool
)

func init() {
	// Config file flag (processed first)
	watchCommand.Flags().StringVar(&watchConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")

	watchCommand.Flags().StringVarP(&watchDir, "watch-dir", "w", "", "Directory to watch for new captures (required)")
	watchCommand.Flags().StringVarP(&watchOutputDir, "output-dir", "o", "", "Directory solved results are written to")
	watchCommand.Flags().StringVar(&watchProcessedDir, "processed-dir", "", "Directory consumed captures are archived to")
	watchCommand.Flags().StringVar(&watchFailureDir, "failure-dir", "", "Directory failure records are written to")
	watchCommand.Flags().Float64Var(&watchIdleWindow, "idle-window", 0, "Seconds of capture silence before a group is sealed")
	watchCommand.Flags().IntVar(&watchWorkers, "workers", 0, "Worker pool size")
	watchCommand.Flags().IntVar(&watchRetryAttempts, "retry-attempts", 0, "Per-stage retry attempt budget")
	watchCommand.Flags().IntVar(&watchRetryBackoffMS, "retry-backoff-ms", 0, "Base backoff between retry attempts in milliseconds")
	watchCommand.Flags().BoolVarP(&watchVerbose, "verbose", "v", false, "Print detailed debug information")

	// API key can be passed as a flag, or read from env var GEMINI_API_KEY
	watchCommand.Flags().StringVar(&watchAPIKey, "api-key", "", "Gemini API Key (optional, defaults to GEMINI_API_KEY env var)")

	// Database URL for the optional task-run ledger
	watchCommand.Flags().StringVar(&watchDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")

	rootCmd.AddCommand(watchCommand)
}

// buildWatchConfig merges config file, CLI flags, and defaults, in
// increasing precedence of flags over file over defaults.
func buildWatchConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg config.Config
	if watchConfigPath != "" {
		loaded, err := config.LoadConfig(watchConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
	}

	if cmd.Flags().Changed("watch-dir") {
		cfg.WatchDir = watchDir
	}
	if cmd.Flags().Changed("output-dir") {
		cfg.OutputDir = watchOutputDir
	}
	if cmd.Flags().Changed("processed-dir") {
		cfg.ProcessedDir = watchProcessedDir
	}
	if cmd.Flags().Changed("failure-dir") {
		cfg.FailureDir = watchFailureDir
	}
	if cmd.Flags().Changed("idle-window") {
		cfg.IdleWindowSeconds = watchIdleWindow
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = watchWorkers
	}
	if cmd.Flags().Changed("retry-attempts") {
		cfg.RetryAttempts = watchRetryAttempts
	}
	if cmd.Flags().Changed("retry-backoff-ms") {
		cfg.RetryBackoffMS = watchRetryBackoffMS
	}
	if cmd.Flags().Changed("api-key") {
		cfg.APIKey = watchAPIKey
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = watchDatabaseURL
	}
	if watchVerbose {
		cfg.Verbose = true
	}

	merged := cfg.MergeWithDefaults(config.Defaults())
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	if merged.WatchDir == "" {
		return nil, fmt.Errorf("--watch-dir is required (or set watch_dir in the config file)")
	}
	return &merged, nil
}

func runWatchCmd(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := buildWatchConfig(cmd)
	if err != nil {
		return err
	}
	if err := resolveAPIKey(cfg); err != nil {
		return err
	}

	log := newLogger(cfg.Verbose)
	log.WithFields(map[string]interface{}{
		"watch_dir":   cfg.WatchDir,
		"output_dir":  cfg.OutputDir,
		"idle_window": cfg.IdleWindow(),
		"workers":     cfg.Workers,
	}).Info("starting snapsolver agent")

	orchestrator, cleanup, err := buildOrchestrator(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	queue := grouper.NewQueue()
	accumulator := grouper.NewAccumulator(cfg.IdleWindow(), func(task types.Task) {
		if err := queue.Push(task); err != nil {
			log.WithField("task", task.ID).Warn("queue closed, sealed task dropped")
		}
	}, log)

	workers := pool.New(cfg.Workers, queue, orchestrator, log)
	workers.Start(ctx)

	watch := watcher.New(cfg.WatchDir, accumulator.Add, log)
	if err := watch.Start(); err != nil {
		queue.Close()
		workers.Drain()
		return err
	}

	<-ctx.Done()
	log.Info("shutdown requested, draining")

	// Cooperative shutdown: stop new arrivals, seal the open group, then
	// drain the queue and in-flight workers.
	watch.Stop()
	accumulator.Shutdown()
	workers.Drain()

	log.Info("agent stopped")
	return nil
}

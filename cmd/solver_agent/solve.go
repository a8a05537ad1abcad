package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/snapsolver/internal/config"
	"github.com/jonathan/snapsolver/internal/types"
)

var solveCommand = &cobra.Command{
	Use:   "solve <image>...",
	Short: "Run the pipeline once over the given screenshots",
	Long: `Treats the given image files as one already-sealed group and runs the full
pipeline over them, without the directory watcher or idle window. Useful for
re-submitting the untouched inputs of a failed task.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSolveCmd,
}

var (
	solveConfigPath    string
	solveOutputDir     string
	solveProcessedDir  string
	solveFailureDir    string
	solveRetryAttempts int
	solveAPIKey        string
	solveDatabaseURL   string
	solveVerbose       bool
)

func init() {
	solveCommand.Flags().StringVar(&solveConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	solveCommand.Flags().StringVarP(&solveOutputDir, "output-dir", "o", "", "Directory solved results are written to")
	solveCommand.Flags().StringVar(&solveProcessedDir, "processed-dir", "", "Directory consumed captures are archived to")
	solveCommand.Flags().StringVar(&solveFailureDir, "failure-dir", "", "Directory failure records are written to")
	solveCommand.Flags().IntVar(&solveRetryAttempts, "retry-attempts", 0, "Per-stage retry attempt budget")
	solveCommand.Flags().StringVar(&solveAPIKey, "api-key", "", "Gemini API Key (optional, defaults to GEMINI_API_KEY env var)")
	solveCommand.Flags().StringVar(&solveDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	solveCommand.Flags().BoolVarP(&solveVerbose, "verbose", "v", false, "Print detailed debug information")

	rootCmd.AddCommand(solveCommand)
}

func runSolveCmd(cmd *cobra.Command, args []string) error {
	var cfg config.Config
	if solveConfigPath != "" {
		loaded, err := config.LoadConfig(solveConfigPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
	}

	if cmd.Flags().Changed("output-dir") {
		cfg.OutputDir = solveOutputDir
	}
	if cmd.Flags().Changed("processed-dir") {
		cfg.ProcessedDir = solveProcessedDir
	}
	if cmd.Flags().Changed("failure-dir") {
		cfg.FailureDir = solveFailureDir
	}
	if cmd.Flags().Changed("retry-attempts") {
		cfg.RetryAttempts = solveRetryAttempts
	}
	if cmd.Flags().Changed("api-key") {
		cfg.APIKey = solveAPIKey
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = solveDatabaseURL
	}
	if solveVerbose {
		cfg.Verbose = true
	}

	merged := cfg.MergeWithDefaults(config.Defaults())
	if err := merged.Validate(); err != nil {
		return err
	}
	if err := resolveAPIKey(&merged); err != nil {
		return err
	}

	artifacts := make([]types.Artifact, 0, len(args))
	for _, path := range args {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("artifact not found: %s", path)
		}
		artifacts = append(artifacts, types.Artifact{Path: path, ArrivedAt: time.Now()})
	}
	task := types.NewTask(artifacts)

	log := newLogger(merged.Verbose)
	ctx := cmd.Context()
	orchestrator, cleanup, err := buildOrchestrator(ctx, &merged, log)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := orchestrator.Run(ctx, task); err != nil {
		return fmt.Errorf("task did not complete: %w", err)
	}
	return nil
}

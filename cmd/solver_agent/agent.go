package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/snapsolver/internal/config"
	"github.com/jonathan/snapsolver/internal/db"
	"github.com/jonathan/snapsolver/internal/failure"
	"github.com/jonathan/snapsolver/internal/llm"
	"github.com/jonathan/snapsolver/internal/pipeline"
	"github.com/jonathan/snapsolver/internal/storage"
)

// newLogger builds the agent's logger.
func newLogger(verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

// resolveAPIKey falls back to the GEMINI_API_KEY environment variable.
func resolveAPIKey(cfg *config.Config) error {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.APIKey == "" {
		return fmt.Errorf("API key is required: pass --api-key or set GEMINI_API_KEY")
	}
	return nil
}

// buildOrchestrator wires the collaborators, storage, recorder, and optional
// ledger into a pipeline orchestrator. The returned cleanup closes every
// held resource.
func buildOrchestrator(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*pipeline.Orchestrator, func(), error) {
	client, err := llm.NewGeminiClient(ctx, llm.DefaultConfig(), cfg.APIKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	cleanup := func() { _ = client.Close() }

	opts := pipeline.Options{
		Collaborators: llm.Collaborators{
			Classifier: client,
			Extractor:  client,
			Polisher:   client,
			Solver:     client,
			Namer:      client,
			Health:     llm.NewHealthGate("gemini", client.Probe),
		},
		Routing:   cfg.RoutingTable(),
		Policy:    cfg.RetryPolicy(),
		OutputDir: cfg.OutputDir,
		Archiver:  storage.NewArchiver(cfg.ProcessedDir, cfg.RetryPolicy(), log),
		Recorder:  failure.NewRecorder(cfg.FailureDir, log),
		Log:       log,
	}

	if cfg.DatabaseURL != "" {
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Warn("failed to connect to database, continuing without the run ledger")
		} else if err := database.Migrate(ctx); err != nil {
			log.WithError(err).Warn("failed to migrate database, continuing without the run ledger")
			database.Close()
		} else {
			opts.Ledger = database
			inner := cleanup
			cleanup = func() {
				database.Close()
				inner()
			}
		}
	}

	return pipeline.New(opts), cleanup, nil
}

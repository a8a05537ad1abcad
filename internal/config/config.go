// Package config provides configuration loading and validation for the agent.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/snapsolver/internal/retry"
	"github.com/jonathan/snapsolver/internal/types"
)

// Config represents the agent configuration that can be loaded from a JSON
// file. All fields are optional; missing values use defaults or must be
// provided via CLI flags.
type Config struct {
	// Paths
	WatchDir     string `json:"watch_dir,omitempty"`     // Directory watched for new capture files
	OutputDir    string `json:"output_dir,omitempty"`    // Directory solved results are written to
	ProcessedDir string `json:"processed_dir,omitempty"` // Directory consumed captures are archived to
	FailureDir   string `json:"failure_dir,omitempty"`   // Directory failure records are written to

	// Scheduling
	IdleWindowSeconds float64 `json:"idle_window_seconds,omitempty" validate:"omitempty,gt=0"` // Pause that seals an open group
	Workers           int     `json:"workers,omitempty" validate:"omitempty,min=1,max=64"`     // Worker pool size

	// Retry
	RetryAttempts  int `json:"retry_attempts,omitempty" validate:"omitempty,min=1,max=20"` // Per-stage attempt budget
	RetryBackoffMS int `json:"retry_backoff_ms,omitempty" validate:"omitempty,min=0"`      // Base backoff between attempts

	// Routing: category keyword -> solver model identity
	Routing map[string]string `json:"routing,omitempty"`

	// Behavior
	APIKey      string `json:"api_key,omitempty"`      // Gemini API key
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL connection URL for the run ledger
	Verbose     bool   `json:"verbose,omitempty"`      // Print detailed debug information
}

// Defaults returns the built-in defaults applied underneath any config file
// or CLI flag values.
func Defaults() Config {
	return Config{
		OutputDir:         "solutions",
		ProcessedDir:      "processed",
		FailureDir:        "failures",
		IdleWindowSeconds: 8,
		Workers:           3,
		RetryAttempts:     3,
		RetryBackoffMS:    500,
	}
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values. Struct tag rules
// run through the validator; routing keys need a semantic check the tags
// cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	for key := range c.Routing {
		if !types.Category(key).Valid() {
			return fmt.Errorf("config error: routing table has unknown category %q", key)
		}
	}

	return nil
}

// MergeWithDefaults returns a new Config with zero-valued fields filled from
// defaults. This is used to apply config file values as defaults for CLI
// flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.WatchDir == "" {
		result.WatchDir = defaults.WatchDir
	}
	if result.OutputDir == "" {
		result.OutputDir = defaults.OutputDir
	}
	if result.ProcessedDir == "" {
		result.ProcessedDir = defaults.ProcessedDir
	}
	if result.FailureDir == "" {
		result.FailureDir = defaults.FailureDir
	}
	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}

	// Numeric fields: use default if zero
	if result.IdleWindowSeconds == 0 {
		result.IdleWindowSeconds = defaults.IdleWindowSeconds
	}
	if result.Workers == 0 {
		result.Workers = defaults.Workers
	}
	if result.RetryAttempts == 0 {
		result.RetryAttempts = defaults.RetryAttempts
	}
	if result.RetryBackoffMS == 0 {
		result.RetryBackoffMS = defaults.RetryBackoffMS
	}

	if result.Routing == nil {
		result.Routing = defaults.Routing
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}

// IdleWindow returns the group idle window as a duration.
func (c *Config) IdleWindow() time.Duration {
	return time.Duration(c.IdleWindowSeconds * float64(time.Second))
}

// RetryPolicy returns the per-stage retry policy.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.RetryAttempts,
		Backoff:     time.Duration(c.RetryBackoffMS) * time.Millisecond,
	}
}

// RoutingTable converts the configured routing map into an immutable
// category→model snapshot. Categories without an entry resolve to "" and the
// solver falls back to its default model.
func (c *Config) RoutingTable() map[types.Category]string {
	table := make(map[types.Category]string, len(c.Routing))
	for key, model := range c.Routing {
		table[types.Category(key)] = model
	}
	return table
}

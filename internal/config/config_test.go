package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/snapsolver/internal/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_Valid(t *testing.T) {
	path := writeConfig(t, `{
		"watch_dir": "/captures",
		"idle_window_seconds": 5,
		"workers": 4,
		"routing": {"LEETCODE": "gemini-2.5-pro"}
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/captures", cfg.WatchDir)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "gemini-2.5-pro", cfg.Routing["LEETCODE"])
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	_, err := LoadConfig("")
	assert.Error(t, err)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfig_BadJSON(t *testing.T) {
	path := writeConfig(t, `{not json`)
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config JSON")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"zero config is valid", Config{}, ""},
		{"defaults are valid", Defaults(), ""},
		{"negative idle window", Config{IdleWindowSeconds: -1}, "config error"},
		{"too many workers", Config{Workers: 1000}, "config error"},
		{"unknown routing category", Config{Routing: map[string]string{"RIDDLE": "m"}}, "unknown category"},
		{"known routing categories", Config{Routing: map[string]string{"ACM": "m", "GENERAL": "n"}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestMergeWithDefaults(t *testing.T) {
	cfg := Config{WatchDir: "/captures", Workers: 8}
	merged := cfg.MergeWithDefaults(Defaults())

	assert.Equal(t, "/captures", merged.WatchDir, "explicit value wins")
	assert.Equal(t, 8, merged.Workers, "explicit value wins")
	assert.Equal(t, "solutions", merged.OutputDir)
	assert.Equal(t, "failures", merged.FailureDir)
	assert.Equal(t, float64(8), merged.IdleWindowSeconds)
	assert.Equal(t, 3, merged.RetryAttempts)
}

func TestIdleWindow_SupportsFractionalSeconds(t *testing.T) {
	cfg := Config{IdleWindowSeconds: 0.5}
	assert.Equal(t, 500*time.Millisecond, cfg.IdleWindow())
}

func TestRetryPolicy(t *testing.T) {
	cfg := Config{RetryAttempts: 5, RetryBackoffMS: 200}
	policy := cfg.RetryPolicy()
	assert.Equal(t, 5, policy.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, policy.Backoff)
}

func TestRoutingTable_Snapshot(t *testing.T) {
	cfg := Config{Routing: map[string]string{"LEETCODE": "pro", "GENERAL": "flash"}}
	table := cfg.RoutingTable()

	assert.Equal(t, "pro", table[types.CategoryLeetCode])
	assert.Equal(t, "flash", table[types.CategoryGeneral])
	assert.Equal(t, "", table[types.CategoryACM], "unrouted category resolves to empty model")
}

package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/snapsolver/internal/pipeline"
	"github.com/jonathan/snapsolver/internal/types"
)

// testDB connects to the database named by TEST_DATABASE_URL, skipping when
// none is configured so the suite runs without infrastructure.
func testDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping database integration test")
	}

	database, err := Connect(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(database.Close)
	require.NoError(t, database.Migrate(context.Background()))
	return database
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), "not-a-url")
	assert.Error(t, err)
}

func TestRecordTask_InsertAndUpdate(t *testing.T) {
	database := testDB(t)
	ctx := context.Background()

	task := types.NewTask([]types.Artifact{{Path: "/captures/a.png", ArrivedAt: time.Now()}})

	require.NoError(t, database.RecordTask(ctx, task, "failed", pipeline.StageSolve, "", "solver down"))

	// Re-recording the same task must update, not violate the primary key.
	require.NoError(t, database.RecordTask(ctx, task, "success", pipeline.StageDone, "/solutions/a.md", ""))

	var status, stage string
	err := database.pool.QueryRow(ctx,
		`SELECT status, stage FROM task_runs WHERE task_id = $1`, task.ID,
	).Scan(&status, &stage)
	require.NoError(t, err)
	assert.Equal(t, "success", status)
	assert.Equal(t, "DONE", stage)
}

package progress

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_StartSessionAndCompleteItem(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	tr, err := Load(path, "download")
	require.NoError(t, err)

	require.NoError(t, tr.StartSession(2, 10))
	require.NoError(t, tr.AddCompletedItem("book-1"))
	require.NoError(t, tr.AddCompletedItem("book-1")) // idempotent

	snap := tr.Snapshot()
	assert.Equal(t, 1, snap.BooksStats.DownloadedBooks)
	assert.Equal(t, []string{"book-1"}, snap.CompletedItems)
}

func TestTracker_FailedItemClearedOnCompletion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	tr, err := Load(path, "download")
	require.NoError(t, err)

	require.NoError(t, tr.StartSession(1, 1))
	require.NoError(t, tr.AddFailedItem("book-1", "timeout"))
	require.NoError(t, tr.AddCompletedItem("book-1"))

	snap := tr.Snapshot()
	assert.Empty(t, snap.FailedItems)
	assert.Equal(t, 0, snap.BooksStats.FailedBooks)
}

func TestTracker_CheckpointRingBoundedAtTen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	tr, err := Load(path, "download")
	require.NoError(t, err)

	for i := 0; i < 15; i++ {
		require.NoError(t, tr.CreateCheckpoint())
	}

	snap := tr.Snapshot()
	assert.Len(t, snap.Checkpoints, maxCheckpoints)
}

func TestTracker_PersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	tr, err := Load(path, "discovery")
	require.NoError(t, err)
	require.NoError(t, tr.StartSession(3, 30))
	require.NoError(t, tr.CompleteSkill("golang"))

	reloaded, err := Load(path, "discovery")
	require.NoError(t, err)
	snap := reloaded.Snapshot()
	assert.Equal(t, []string{"golang"}, snap.SkillsCompleted)
	assert.Equal(t, 1, snap.Session.SchemaVersion)
}

func TestTracker_MigratesLegacyV0Schema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	legacy := map[string]interface{}{
		"downloaded": []string{"a", "b"},
		"failed":     map[string]string{"c": "error"},
		"timestamp":  1700000000.0,
	}
	data, err := json.Marshal(legacy)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	tr, err := Load(path, "download")
	require.NoError(t, err)

	snap := tr.Snapshot()
	assert.Equal(t, 2, snap.BooksStats.DownloadedBooks)
	assert.Equal(t, 1, snap.BooksStats.FailedBooks)
}

func TestTracker_ETAString(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	tr, err := Load(path, "download")
	require.NoError(t, err)

	assert.Equal(t, "Calculating...", tr.ETAString())

	tr.mu.Lock()
	tr.data.Performance.EstimatedTimeRemainingMinutes = 90
	tr.mu.Unlock()
	assert.Equal(t, "1h 30m", tr.ETAString())
}

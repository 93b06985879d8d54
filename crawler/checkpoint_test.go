package crawler

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointSet_MissingFileIsEmpty(t *testing.T) {
	c, err := LoadCheckpointSet(filepath.Join(t.TempDir(), "checkpoint.txt"))
	require.NoError(t, err)
	assert.Zero(t, c.Len())
	assert.False(t, c.Contains("https://example.test/a"))
}

func TestCheckpointSet_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.txt")

	c, err := LoadCheckpointSet(path)
	require.NoError(t, err)
	require.NoError(t, c.MarkDone("https://example.test/b"))
	require.NoError(t, c.MarkDone("https://example.test/a"))
	require.NoError(t, c.Flush())

	reloaded, err := LoadCheckpointSet(path)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Len())
	assert.True(t, reloaded.Contains("https://example.test/a"))
	assert.True(t, reloaded.Contains("https://example.test/b"))
}

func TestCheckpointSet_FileIsSorted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.txt")

	c, err := LoadCheckpointSet(path)
	require.NoError(t, err)
	require.NoError(t, c.MarkDone("https://example.test/z"))
	require.NoError(t, c.MarkDone("https://example.test/a"))
	require.NoError(t, c.Flush())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "https://example.test/a", lines[0])
	assert.Equal(t, "https://example.test/z", lines[1])
}

func TestCheckpointSet_PeriodicFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.txt")

	c, err := LoadCheckpointSet(path)
	require.NoError(t, err)

	// One short of the flush interval: nothing on disk yet.
	for i := 0; i < defaultFlushEvery-1; i++ {
		require.NoError(t, c.MarkDone("https://example.test/"+string(rune('a'+i))))
	}
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "flush must not happen before the interval")

	// The interval-th completion triggers a flush.
	require.NoError(t, c.MarkDone("https://example.test/final"))
	_, statErr = os.Stat(path)
	assert.NoError(t, statErr)
}

func TestCheckpointSet_ReinsertionIsIdempotent(t *testing.T) {
	c, err := LoadCheckpointSet(filepath.Join(t.TempDir(), "checkpoint.txt"))
	require.NoError(t, err)

	require.NoError(t, c.MarkDone("https://example.test/a"))
	require.NoError(t, c.MarkDone("https://example.test/a"))
	assert.Equal(t, 1, c.Len())
}

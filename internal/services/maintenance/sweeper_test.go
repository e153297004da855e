package maintenance

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/media"
)

func TestSweepChunkDirsRemovesOnlyStalePrefixedDirs(t *testing.T) {
	root := t.TempDir()
	old := time.Now().Add(-48 * time.Hour)

	staleChunks := filepath.Join(root, media.TempDirPrefix+"abc123")
	freshChunks := filepath.Join(root, media.TempDirPrefix+"def456")
	unrelated := filepath.Join(root, "other-app-data")
	for _, dir := range []string{staleChunks, freshChunks, unrelated} {
		require.NoError(t, os.Mkdir(dir, 0755))
	}
	require.NoError(t, os.Chtimes(staleChunks, old, old))
	require.NoError(t, os.Chtimes(unrelated, old, old))

	removed, err := SweepChunkDirs(root, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.NoDirExists(t, staleChunks)
	assert.DirExists(t, freshChunks, "fresh chunk dirs may belong to a live run")
	assert.DirExists(t, unrelated, "the sweep must never touch foreign directories")
}

func TestSweepChunkDirsIgnoresFiles(t *testing.T) {
	root := t.TempDir()
	old := time.Now().Add(-48 * time.Hour)

	file := filepath.Join(root, media.TempDirPrefix+"not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	require.NoError(t, os.Chtimes(file, old, old))

	removed, err := SweepChunkDirs(root, 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.FileExists(t, file)
}

func TestSweeperDisabledIsNoOp(t *testing.T) {
	sweeper := NewSweeper(&common.MaintenanceConfig{Enabled: false}, common.GetLogger())
	require.NoError(t, sweeper.Start())
	sweeper.Stop()
}

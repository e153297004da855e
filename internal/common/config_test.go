package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, 8085, config.Server.Port)
	assert.Equal(t, int64(20*1024*1024), config.Media.ChunkThresholdBytes)
	assert.Equal(t, int64(10*1024*1024), config.Media.TargetChunkSizeBytes)
	assert.Equal(t, 24000, config.Reports.ChunkThresholdChars)
	assert.Equal(t, 3, config.Queue.DefaultMaxAttempts)
	assert.Equal(t, int64(25*1024*1024), config.Transcription.MaxUploadBytes)
}

func TestLoadFromFilesOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scriba.toml")
	content := `
[server]
port = 9090

[queue]
poll_interval = "1s"
default_max_attempts = 5

[media]
chunk_threshold_bytes = 1048576
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config, err := LoadFromFiles(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, 5, config.Queue.DefaultMaxAttempts)
	assert.Equal(t, int64(1048576), config.Media.ChunkThresholdBytes)
	// Untouched sections keep their defaults
	assert.Equal(t, "whisper-1", config.Transcription.Model)
}

func TestLoadFromFilesLaterFileWins(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.toml")
	second := filepath.Join(dir, "second.toml")
	require.NoError(t, os.WriteFile(first, []byte("[server]\nport = 1111\n"), 0644))
	require.NoError(t, os.WriteFile(second, []byte("[server]\nport = 2222\n"), 0644))

	config, err := LoadFromFiles(first, second)
	require.NoError(t, err)
	assert.Equal(t, 2222, config.Server.Port)
}

func TestLoadFromFilesMissingFile(t *testing.T) {
	_, err := LoadFromFiles("/nonexistent/scriba.toml")
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SCRIBA_PORT", "7070")
	t.Setenv("SCRIBA_LOG_LEVEL", "debug")
	t.Setenv("SCRIBA_CLAUDE_API_KEY", "key-from-env")

	config, err := LoadFromFiles()
	require.NoError(t, err)
	assert.Equal(t, 7070, config.Server.Port)
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, "key-from-env", config.Claude.APIKey)
}

func TestAnthropicKeyFallback(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "fallback-key")

	config, err := LoadFromFiles()
	require.NoError(t, err)
	assert.Equal(t, "fallback-key", config.Claude.APIKey)
}

func TestValidationRejectsBadLogLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scriba.toml")
	require.NoError(t, os.WriteFile(path, []byte("[logging]\nlevel = \"loud\"\n"), 0644))

	_, err := LoadFromFiles(path)
	assert.Error(t, err)
}

func TestDurationHelpers(t *testing.T) {
	q := &QueueConfig{PollInterval: "250ms"}
	assert.Equal(t, 250*time.Millisecond, q.PollIntervalDuration())

	q.PollInterval = "garbage"
	assert.Equal(t, 5*time.Second, q.PollIntervalDuration())

	r := &ReportsConfig{SegmentDelay: "3s"}
	assert.Equal(t, 3*time.Second, r.SegmentDelayDuration())
	r.SegmentDelay = ""
	assert.Equal(t, 2*time.Second, r.SegmentDelayDuration())

	m := &MaintenanceConfig{ChunkDirMaxAge: "6h"}
	assert.Equal(t, 6*time.Hour, m.ChunkDirMaxAgeDuration())
	m.ChunkDirMaxAge = "bad"
	assert.Equal(t, 24*time.Hour, m.ChunkDirMaxAgeDuration())
}

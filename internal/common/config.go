package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment   string              `toml:"environment"` // "development" or "production"
	Server        ServerConfig        `toml:"server"`
	Storage       StorageConfig       `toml:"storage"`
	Queue         QueueConfig         `toml:"queue"`
	Media         MediaConfig         `toml:"media"`
	Transcription TranscriptionConfig `toml:"transcription"`
	Claude        ClaudeConfig        `toml:"claude"`
	Reports       ReportsConfig       `toml:"reports"`
	WebSocket     WebSocketConfig     `toml:"websocket"`
	Logging       LoggingConfig       `toml:"logging"`
	Maintenance   MaintenanceConfig   `toml:"maintenance"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gte=0,lte=65535"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"`
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type QueueConfig struct {
	PollInterval       string `toml:"poll_interval"`        // e.g. "5s" - how often the worker polls for ready jobs
	DefaultMaxAttempts int    `toml:"default_max_attempts"` // Per-job retry budget when the caller doesn't supply one
}

// MediaConfig controls the audio chunking decision and chunk geometry
type MediaConfig struct {
	ChunkThresholdBytes  int64   `toml:"chunk_threshold_bytes"`   // Files above this size take the chunked path
	TargetChunkSizeBytes int64   `toml:"target_chunk_size_bytes"` // Desired size of each audio chunk
	MinChunkSeconds      float64 `toml:"min_chunk_seconds"`       // Floor on chunk duration to avoid micro-chunks
	MergeBatchSize       int     `toml:"merge_batch_size"`        // Chunks concatenated per merge round
}

type TranscriptionConfig struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	MaxUploadBytes int64  `toml:"max_upload_bytes"` // Engine hard limit; exceeding it is fatal
	Timeout        string `toml:"timeout"`
	Mock           bool   `toml:"mock"` // Return canned transcripts instead of calling the engine
}

type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float32 `toml:"temperature"`
	Timeout     string  `toml:"timeout"`
	Mock        bool    `toml:"mock"` // Return canned report JSON instead of calling the engine
}

type ReportsConfig struct {
	ChunkThresholdChars int    `toml:"chunk_threshold_chars"` // Transcripts above this length take the chunked path
	SegmentMaxChars     int    `toml:"segment_max_chars"`     // Character budget per transcript segment
	SegmentDelay        string `toml:"segment_delay"`         // Pacing between per-segment engine calls
}

// WebSocketConfig contains configuration for progress event streaming
type WebSocketConfig struct {
	// Throttle intervals for high-frequency events. Map of event name to duration string.
	// Example: {"chunk_completed": "500ms"}
	ThrottleIntervals map[string]string `toml:"throttle_intervals"`
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"omitempty,oneof=debug info warn error"`
	Output []string `toml:"output"` // "stdout", "file"
}

type MaintenanceConfig struct {
	Enabled        bool   `toml:"enabled"`
	SweepSchedule  string `toml:"sweep_schedule"`    // Cron spec for the chunk temp-dir sweep
	ChunkDirMaxAge string `toml:"chunk_dir_max_age"` // Dirs older than this are removed
}

// DefaultConfig returns the configuration defaults applied before any file or
// environment override.
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{Path: "./data/scriba"},
		},
		Queue: QueueConfig{
			PollInterval:       "5s",
			DefaultMaxAttempts: 3,
		},
		Media: MediaConfig{
			ChunkThresholdBytes:  20 * 1024 * 1024,
			TargetChunkSizeBytes: 10 * 1024 * 1024,
			MinChunkSeconds:      60,
			MergeBatchSize:       20,
		},
		Transcription: TranscriptionConfig{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "whisper-1",
			MaxUploadBytes: 25 * 1024 * 1024,
			Timeout:        "10m",
		},
		Claude: ClaudeConfig{
			Model:       "claude-sonnet-4-20250514",
			MaxTokens:   8192,
			Temperature: 0.3,
			Timeout:     "5m",
		},
		Reports: ReportsConfig{
			ChunkThresholdChars: 24000,
			SegmentMaxChars:     12000,
			SegmentDelay:        "2s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Maintenance: MaintenanceConfig{
			Enabled:        true,
			SweepSchedule:  "@every 1h",
			ChunkDirMaxAge: "24h",
		},
	}
}

// LoadFromFiles loads configuration with precedence:
// defaults -> file1 -> file2 -> ... -> environment
func LoadFromFiles(paths ...string) (*Config, error) {
	config := DefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// applyEnvOverrides applies SCRIBA_* environment variables over loaded config
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("SCRIBA_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("SCRIBA_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("SCRIBA_BADGER_PATH"); v != "" {
		config.Storage.Badger.Path = v
	}
	if v := os.Getenv("SCRIBA_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("SCRIBA_CLAUDE_API_KEY"); v != "" {
		config.Claude.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && config.Claude.APIKey == "" {
		config.Claude.APIKey = v
	}
	if v := os.Getenv("SCRIBA_TRANSCRIPTION_API_KEY"); v != "" {
		config.Transcription.APIKey = v
	}
	if v := os.Getenv("SCRIBA_TRANSCRIPTION_URL"); v != "" {
		config.Transcription.BaseURL = v
	}
}

// PollInterval parses the queue poll interval, falling back to 5s
func (c *QueueConfig) PollIntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// ChunkDirMaxAgeDuration parses the sweep age cutoff, falling back to 24h
func (c *MaintenanceConfig) ChunkDirMaxAgeDuration() time.Duration {
	d, err := time.ParseDuration(c.ChunkDirMaxAge)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// SegmentDelayDuration parses the inter-segment pacing delay, falling back to 2s
func (c *ReportsConfig) SegmentDelayDuration() time.Duration {
	d, err := time.ParseDuration(c.SegmentDelay)
	if err != nil || d < 0 {
		return 2 * time.Second
	}
	return d
}

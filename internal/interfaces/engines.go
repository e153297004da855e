package interfaces

import (
	"context"
	"errors"
)

// ErrPayloadTooLarge is returned by a TranscriptionEngine when the input
// exceeds the engine's hard upload limit. Callers treat it as fatal for
// non-chunkable input.
var ErrPayloadTooLarge = errors.New("payload exceeds engine upload limit")

// TranscriptionResult is the engine's answer for one audio file or chunk
type TranscriptionResult struct {
	Text            string
	Language        string
	DurationSeconds float64
	Metadata        map[string]interface{}
}

// TranscriptionOptions carries per-call hints
type TranscriptionOptions struct {
	Language string
}

// TranscriptionEngine converts one audio file to text. Implementations own
// their request timeout; the pipelines impose no additional deadline.
type TranscriptionEngine interface {
	Transcribe(ctx context.Context, audioPath, fileName string, opts TranscriptionOptions) (*TranscriptionResult, error)

	// MaxUploadBytes returns the engine's hard input size limit
	MaxUploadBytes() int64
}

// CompletionOptions carries per-call model parameters
type CompletionOptions struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// CompletionResult is the raw text answer plus usage accounting. No structural
// guarantee is made about Text - callers must defensively parse.
type CompletionResult struct {
	Text       string
	Model      string
	TokensUsed int
}

// CompletionService is the report synthesis engine
type CompletionService interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, opts CompletionOptions) (*CompletionResult, error)
}

// ProgressNotifier pushes real-time events to subscribers. Fire-and-forget,
// at-most-once; a lost event is a degraded UX, never a correctness problem.
type ProgressNotifier interface {
	Publish(channelKey, event string, payload map[string]interface{})
}

// MediaProbe wraps the media toolchain: duration probing and lossless
// timestamp-range extraction.
type MediaProbe interface {
	Duration(ctx context.Context, path string) (float64, error)

	// SplitRange copies [start, start+duration) of path into outPath without
	// re-encoding.
	SplitRange(ctx context.Context, path string, start, duration float64, outPath string) error
}

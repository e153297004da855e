package transcription

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/scriba/internal/interfaces"
)

// MockEngine returns canned transcripts for development runs without an API
// key. Its output is flagged through generation metadata downstream.
type MockEngine struct {
	maxUploadBytes int64
}

// NewMockEngine creates a mock transcription engine
func NewMockEngine(maxUploadBytes int64) interfaces.TranscriptionEngine {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 25 * 1024 * 1024
	}
	return &MockEngine{maxUploadBytes: maxUploadBytes}
}

func (m *MockEngine) MaxUploadBytes() int64 {
	return m.maxUploadBytes
}

func (m *MockEngine) Transcribe(ctx context.Context, audioPath, fileName string, opts interfaces.TranscriptionOptions) (*interfaces.TranscriptionResult, error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat audio file: %w", err)
	}
	if info.Size() > m.maxUploadBytes {
		return nil, fmt.Errorf("%s is %d bytes (limit %d): %w", fileName, info.Size(), m.maxUploadBytes, interfaces.ErrPayloadTooLarge)
	}

	return &interfaces.TranscriptionResult{
		Text:     fmt.Sprintf("[mock transcript for %s]", filepath.Base(fileName)),
		Language: opts.Language,
		Metadata: map[string]interface{}{"mock": true},
	}, nil
}

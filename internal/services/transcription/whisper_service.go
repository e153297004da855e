package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/interfaces"
)

// WhisperService implements TranscriptionEngine against an OpenAI-compatible
// audio/transcriptions endpoint.
type WhisperService struct {
	baseURL        string
	apiKey         string
	model          string
	maxUploadBytes int64
	httpClient     *http.Client
	logger         arbor.ILogger
}

type whisperResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// NewWhisperService creates a transcription engine client
func NewWhisperService(config *common.TranscriptionConfig, logger arbor.ILogger) (interfaces.TranscriptionEngine, error) {
	if config.Mock {
		logger.Warn().Msg("Transcription engine running in mock mode")
		return NewMockEngine(config.MaxUploadBytes), nil
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("transcription API key is required (set SCRIBA_TRANSCRIPTION_API_KEY or transcription.api_key in config)")
	}

	timeout, err := time.ParseDuration(config.Timeout)
	if err != nil || timeout <= 0 {
		timeout = 10 * time.Minute
	}

	maxUpload := config.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 25 * 1024 * 1024
	}

	service := &WhisperService{
		baseURL:        strings.TrimRight(config.BaseURL, "/"),
		apiKey:         config.APIKey,
		model:          config.Model,
		maxUploadBytes: maxUpload,
		httpClient:     &http.Client{Timeout: timeout},
		logger:         logger,
	}

	logger.Debug().
		Str("base_url", service.baseURL).
		Str("model", service.model).
		Int64("max_upload_bytes", maxUpload).
		Msg("Transcription engine initialized")

	return service, nil
}

// MaxUploadBytes returns the engine's hard input size limit
func (s *WhisperService) MaxUploadBytes() int64 {
	return s.maxUploadBytes
}

// Transcribe posts one audio file as multipart form data and decodes the
// transcript. Inputs over the upload limit fail with ErrPayloadTooLarge
// before any bytes leave the process.
func (s *WhisperService) Transcribe(ctx context.Context, audioPath, fileName string, opts interfaces.TranscriptionOptions) (*interfaces.TranscriptionResult, error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat audio file: %w", err)
	}
	if info.Size() > s.maxUploadBytes {
		return nil, fmt.Errorf("%s is %d bytes (limit %d): %w", fileName, info.Size(), s.maxUploadBytes, interfaces.ErrPayloadTooLarge)
	}

	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("model", s.model); err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if err := mw.WriteField("response_format", "verbose_json"); err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if opts.Language != "" {
		if err := mw.WriteField("language", opts.Language); err != nil {
			return nil, fmt.Errorf("failed to build multipart body: %w", err)
		}
	}

	fw, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, fmt.Errorf("failed to read audio file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	startTime := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, classifyHTTPError(resp.StatusCode, string(respBody))
	}

	var decoded whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode transcription response: %w", err)
	}

	s.logger.Debug().
		Str("file", fileName).
		Int("text_length", len(decoded.Text)).
		Dur("duration", time.Since(startTime)).
		Msg("Transcription call completed")

	return &interfaces.TranscriptionResult{
		Text:            decoded.Text,
		Language:        decoded.Language,
		DurationSeconds: decoded.Duration,
		Metadata: map[string]interface{}{
			"model": s.model,
		},
	}, nil
}

// classifyHTTPError maps engine HTTP failures onto the error taxonomy: 413 is
// the distinguishable too-large error, quota/billing statuses are fatal, the
// rest stay retryable.
func classifyHTTPError(status int, body string) error {
	switch {
	case status == http.StatusRequestEntityTooLarge:
		return fmt.Errorf("engine rejected upload (http %d): %w", status, interfaces.ErrPayloadTooLarge)
	case status == http.StatusPaymentRequired || status == http.StatusForbidden:
		return common.Fatalf("engine quota/billing error (http %d): %s", status, body)
	default:
		return fmt.Errorf("transcription engine http %d: %s", status, body)
	}
}

package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/ternarybob/scriba/internal/media"
	"github.com/ternarybob/scriba/internal/models"
	"github.com/ternarybob/scriba/internal/queue"
)

// Pipeline orchestrates audio transcription for one transcribe job: the
// chunked-or-direct decision, sequential engine calls, partial-failure merge,
// and the handoff to report generation.
type Pipeline struct {
	engine   interfaces.TranscriptionEngine
	splitter *media.Splitter
	sessions interfaces.SessionStorage
	queueMgr *queue.Manager
	notifier interfaces.ProgressNotifier
	config   *common.MediaConfig
	logger   arbor.ILogger
}

// result carries the merged transcript plus per-chunk accounting
type result struct {
	Text             string
	Language         string
	DurationSeconds  float64
	Chunked          bool
	SuccessfulChunks int
	FailedChunks     int
}

// NewPipeline creates a transcription pipeline
func NewPipeline(
	engine interfaces.TranscriptionEngine,
	splitter *media.Splitter,
	sessions interfaces.SessionStorage,
	queueMgr *queue.Manager,
	notifier interfaces.ProgressNotifier,
	config *common.MediaConfig,
	logger arbor.ILogger,
) *Pipeline {
	return &Pipeline{
		engine:   engine,
		splitter: splitter,
		sessions: sessions,
		queueMgr: queueMgr,
		notifier: notifier,
		config:   config,
		logger:   logger,
	}
}

// Process handles one transcribe job end to end. On success the session
// advances to transcribed and a generate_reports job is enqueued at lower
// priority, so pending transcriptions are always served first.
func (p *Pipeline) Process(ctx context.Context, job *models.Job) error {
	var payload models.TranscribePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return common.Fatalf("invalid transcribe payload: %v", err)
	}
	if payload.AudioPath == "" {
		return common.Fatalf("transcribe payload missing audio path")
	}

	session, err := p.sessions.GetSession(ctx, job.SessionID)
	if err != nil {
		return err
	}

	if err := p.sessions.UpdateSessionStatus(ctx, session.ID, models.SessionStatusProcessing, ""); err != nil {
		return err
	}
	p.notifier.Publish(session.ID, "transcription_started", map[string]interface{}{
		"file_name":  payload.FileName,
		"size_bytes": payload.SizeBytes,
	})

	res, err := p.transcribe(ctx, session.ID, &payload)
	if err != nil {
		// Leave the session observable as failed and tell any watchers,
		// both best effort; the job error is what drives retry.
		if statusErr := p.sessions.UpdateSessionStatus(ctx, session.ID, models.SessionStatusFailed, err.Error()); statusErr != nil {
			p.logger.Warn().Err(statusErr).Str("session_id", session.ID).Msg("Failed to record session failure")
		}
		p.notifier.Publish(session.ID, "transcription_failed", map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}

	if err := p.sessions.SetTranscription(ctx, session.ID, res.Text, res.Language, res.DurationSeconds); err != nil {
		return fmt.Errorf("failed to persist transcript: %w", err)
	}
	if err := p.sessions.UpdateSessionStatus(ctx, session.ID, models.SessionStatusTranscribed, ""); err != nil {
		return err
	}

	p.notifier.Publish(session.ID, "transcription_completed", map[string]interface{}{
		"chunked":           res.Chunked,
		"successful_chunks": res.SuccessfulChunks,
		"failed_chunks":     res.FailedChunks,
		"transcript_length": len(res.Text),
	})

	// Reports are secondary to transcription completing first when both are
	// pending, hence the strictly larger priority numeral.
	reportsPayload := models.GenerateReportsPayload{
		ReportTypes: []models.ReportType{models.ReportTypeAdviser, models.ReportTypeClient},
	}
	if _, err := p.queueMgr.Enqueue(ctx, session.ID, models.JobTypeGenerateReports, reportsPayload, models.PriorityReports, 0); err != nil {
		return fmt.Errorf("transcription succeeded but report job enqueue failed: %w", err)
	}

	return nil
}

// transcribe picks the direct or chunked path based on the declared size
func (p *Pipeline) transcribe(ctx context.Context, sessionID string, payload *models.TranscribePayload) (*result, error) {
	if payload.SizeBytes <= p.config.ChunkThresholdBytes {
		return p.transcribeDirect(ctx, payload)
	}
	return p.transcribeChunked(ctx, sessionID, payload)
}

func (p *Pipeline) transcribeDirect(ctx context.Context, payload *models.TranscribePayload) (*result, error) {
	// Below the chunking threshold but above the engine's hard limit there
	// is nothing left to try; skip the doomed upload.
	if limit := p.engine.MaxUploadBytes(); limit > 0 && payload.SizeBytes > limit {
		return nil, common.Fatalf("file %s (%d bytes) exceeds the engine upload limit of %d bytes", payload.FileName, payload.SizeBytes, limit)
	}

	res, err := p.engine.Transcribe(ctx, payload.AudioPath, payload.FileName, interfaces.TranscriptionOptions{
		Language: payload.Language,
	})
	if err != nil {
		// The declared size can undercount the actual file; the engine's own
		// rejection is just as final.
		if errors.Is(err, interfaces.ErrPayloadTooLarge) {
			return nil, common.Fatal(err)
		}
		return nil, err
	}

	return &result{
		Text:             res.Text,
		Language:         res.Language,
		DurationSeconds:  res.DurationSeconds,
		SuccessfulChunks: 1,
	}, nil
}

// transcribeChunked cuts the file into near-equal chunks and transcribes them
// strictly sequentially: one engine call in flight at a time for predictable
// rate-limit behavior and per-chunk progress. A failed chunk leaves a
// placeholder and the run continues; only zero successes is fatal.
func (p *Pipeline) transcribeChunked(ctx context.Context, sessionID string, payload *models.TranscribePayload) (*result, error) {
	p.notifier.Publish(sessionID, "chunking_started", map[string]interface{}{
		"file_name": payload.FileName,
	})

	dir, chunks, err := p.splitter.Split(ctx, payload.AudioPath, payload.SizeBytes, p.config.TargetChunkSizeBytes, p.config.MinChunkSeconds)
	if err != nil {
		return nil, fmt.Errorf("failed to split audio: %w", err)
	}
	// Chunk files are owned by this run alone; remove them on every exit path
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			p.logger.Warn().Err(rmErr).Str("dir", dir).Msg("Failed to remove chunk directory")
		}
	}()

	p.notifier.Publish(sessionID, "chunks_created", map[string]interface{}{
		"chunk_count": len(chunks),
	})

	texts := make([]string, len(chunks))
	language := ""
	durationSeconds := 0.0
	successful := 0
	failed := 0

	for _, chunk := range chunks {
		p.notifier.Publish(sessionID, "chunk_started", map[string]interface{}{
			"index": chunk.Index,
			"total": len(chunks),
		})

		res, err := p.engine.Transcribe(ctx, chunk.Path, filepath.Base(chunk.Path), interfaces.TranscriptionOptions{
			Language: payload.Language,
		})
		if err != nil {
			failed++
			texts[chunk.Index] = fmt.Sprintf("[Chunk %d transcription failed]", chunk.Index+1)
			p.logger.Warn().
				Err(err).
				Str("session_id", sessionID).
				Int("chunk", chunk.Index).
				Msg("Chunk transcription failed, continuing with remaining chunks")
			p.notifier.Publish(sessionID, "chunk_failed", map[string]interface{}{
				"index": chunk.Index,
				"error": err.Error(),
			})
			continue
		}

		successful++
		texts[chunk.Index] = res.Text
		if language == "" {
			language = res.Language
		}
		durationSeconds += res.DurationSeconds
		p.notifier.Publish(sessionID, "chunk_completed", map[string]interface{}{
			"index":       chunk.Index,
			"text_length": len(res.Text),
		})
	}

	if successful == 0 {
		return nil, common.Fatalf("all %d chunks failed transcription", len(chunks))
	}

	p.notifier.Publish(sessionID, "chunking_completed", map[string]interface{}{
		"successful_chunks": successful,
		"failed_chunks":     failed,
	})

	return &result{
		Text:             MergeChunkTexts(texts, p.config.MergeBatchSize),
		Language:         language,
		DurationSeconds:  durationSeconds,
		Chunked:          true,
		SuccessfulChunks: successful,
		FailedChunks:     failed,
	}, nil
}

// MergeChunkTexts concatenates chunk texts in index order, batching the
// concatenation so a very long recording never holds all intermediate joins
// in one unbounded buffer.
func MergeChunkTexts(texts []string, batchSize int) string {
	if batchSize <= 0 {
		batchSize = 20
	}

	var merged strings.Builder
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := strings.Join(texts[start:end], "\n\n")
		if merged.Len() > 0 && batch != "" {
			merged.WriteString("\n\n")
		}
		merged.WriteString(batch)
	}
	return merged.String()
}

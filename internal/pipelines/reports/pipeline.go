package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/ternarybob/scriba/internal/models"
	reportsvc "github.com/ternarybob/scriba/internal/services/reports"
	"golang.org/x/time/rate"
)

// Generated is the output contract of one report generation run
type Generated struct {
	Content  string
	Metadata models.GenerationMetadata
}

// parseFailureNote is recorded in generation metadata when the engine
// response survived only as a parse-error marker.
const parseFailureNote = "response did not parse as JSON; raw text kept under parse_error marker"

// Pipeline orchestrates report synthesis for generate_reports and
// regenerate_report jobs: the chunked-or-direct decision, per-segment
// summarization with staged JSON recovery, and final synthesis.
type Pipeline struct {
	llm      interfaces.CompletionService
	sessions interfaces.SessionStorage
	versions *reportsvc.VersionService
	notifier interfaces.ProgressNotifier
	config   *common.ReportsConfig
	limiter  *rate.Limiter
	logger   arbor.ILogger
}

// NewPipeline creates a report pipeline. The rate limiter paces per-segment
// engine calls so chunked runs stay clear of engine-side rate limiting.
func NewPipeline(
	llm interfaces.CompletionService,
	sessions interfaces.SessionStorage,
	versions *reportsvc.VersionService,
	notifier interfaces.ProgressNotifier,
	config *common.ReportsConfig,
	logger arbor.ILogger,
) *Pipeline {
	return &Pipeline{
		llm:      llm,
		sessions: sessions,
		versions: versions,
		notifier: notifier,
		config:   config,
		limiter:  rate.NewLimiter(rate.Every(config.SegmentDelayDuration()), 1),
		logger:   logger,
	}
}

// ProcessGenerate handles one generate_reports job. Each report type is a
// sub-unit: a single type failing does not abort the job unless every type
// fails or the failure is fatal.
func (p *Pipeline) ProcessGenerate(ctx context.Context, job *models.Job) error {
	var payload models.GenerateReportsPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return common.Fatalf("invalid generate_reports payload: %v", err)
	}
	if len(payload.ReportTypes) == 0 {
		payload.ReportTypes = []models.ReportType{models.ReportTypeAdviser, models.ReportTypeClient}
	}

	session, err := p.sessions.GetSession(ctx, job.SessionID)
	if err != nil {
		return err
	}
	if session.TranscriptionText == "" {
		return common.Fatalf("session %s has no transcript to generate reports from", session.ID)
	}

	p.notifier.Publish(session.ID, "report_generation_started", map[string]interface{}{
		"report_types": payload.ReportTypes,
	})

	succeeded := 0
	var lastErr error
	for _, reportType := range payload.ReportTypes {
		generated, err := p.Generate(ctx, session.TranscriptionText, reportType, session, payload.Notes)
		if err != nil {
			if common.IsFatal(err) {
				p.failSession(ctx, session.ID, err)
				return err
			}
			lastErr = err
			p.logger.Warn().
				Err(err).
				Str("session_id", session.ID).
				Str("report_type", string(reportType)).
				Msg("Report generation failed for type, continuing with remaining types")
			p.notifier.Publish(session.ID, "report_failed", map[string]interface{}{
				"report_type": string(reportType),
				"error":       err.Error(),
			})
			continue
		}

		if _, err := p.versions.CreateReport(ctx, session.ID, reportType, generated.Content, generated.Metadata); err != nil {
			lastErr = err
			p.logger.Warn().
				Err(err).
				Str("session_id", session.ID).
				Str("report_type", string(reportType)).
				Msg("Failed to persist generated report")
			continue
		}

		succeeded++
		p.notifier.Publish(session.ID, "report_completed", map[string]interface{}{
			"report_type": string(reportType),
			"chunked":     generated.Metadata.Chunked,
		})
	}

	if succeeded == 0 {
		err := fmt.Errorf("all report types failed: %w", lastErr)
		p.failSession(ctx, session.ID, err)
		return err
	}

	if err := p.sessions.UpdateSessionStatus(ctx, session.ID, models.SessionStatusReportsGenerated, ""); err != nil {
		return err
	}
	p.notifier.Publish(session.ID, "report_generation_completed", map[string]interface{}{
		"succeeded": succeeded,
		"requested": len(payload.ReportTypes),
	})
	return nil
}

// ProcessRegenerate handles one regenerate_report job by filling the draft
// row the version store created when regeneration was requested.
func (p *Pipeline) ProcessRegenerate(ctx context.Context, job *models.Job) error {
	var payload models.RegenerateReportPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return common.Fatalf("invalid regenerate_report payload: %v", err)
	}

	session, err := p.sessions.GetSession(ctx, job.SessionID)
	if err != nil {
		return err
	}
	if session.TranscriptionText == "" {
		return common.Fatalf("session %s has no transcript to regenerate report from", session.ID)
	}

	generated, err := p.Generate(ctx, session.TranscriptionText, payload.ReportType, session, payload.Notes)
	if err != nil {
		p.notifier.Publish(session.ID, "report_failed", map[string]interface{}{
			"report_type": string(payload.ReportType),
			"report_id":   payload.NewReportID,
			"error":       err.Error(),
		})
		return err
	}

	if err := p.versions.FillDraft(ctx, payload.NewReportID, generated.Content, generated.Metadata); err != nil {
		return err
	}

	p.notifier.Publish(session.ID, "report_regenerated", map[string]interface{}{
		"report_type":   string(payload.ReportType),
		"old_report_id": payload.OldReportID,
		"new_report_id": payload.NewReportID,
	})
	return nil
}

// Generate produces one report for one type, choosing the chunked path when
// the transcript exceeds the character threshold.
func (p *Pipeline) Generate(ctx context.Context, transcript string, reportType models.ReportType, session *models.Session, notes string) (*Generated, error) {
	startTime := time.Now()

	if len(transcript) <= p.config.ChunkThresholdChars {
		return p.generateDirect(ctx, transcript, reportType, session, notes, startTime)
	}
	return p.generateChunked(ctx, transcript, reportType, session, notes, startTime)
}

func (p *Pipeline) generateDirect(ctx context.Context, transcript string, reportType models.ReportType, session *models.Session, notes string, startTime time.Time) (*Generated, error) {
	res, err := p.llm.Complete(ctx, systemPromptFor(reportType), buildDirectPrompt(transcript, reportType, session, notes), interfaces.CompletionOptions{})
	if err != nil {
		return nil, err
	}

	content, parsed := ParseReportContent(res.Text)
	generated := &Generated{
		Content:  content,
		Metadata: p.metadata(res, startTime, false, 0, 0),
	}
	if !parsed {
		generated.Metadata.Error = parseFailureNote
		p.logger.Warn().
			Str("session_id", session.ID).
			Str("report_type", string(reportType)).
			Msg("Report response did not parse as JSON, kept verbatim under parse-error marker")
	}
	return generated, nil
}

// generateChunked summarizes each transcript segment, aggregates the
// extracts, and makes one final synthesis call. A failed or unparseable
// segment degrades the aggregate; it never aborts the run unless every
// segment fails.
func (p *Pipeline) generateChunked(ctx context.Context, transcript string, reportType models.ReportType, session *models.Session, notes string, startTime time.Time) (*Generated, error) {
	segments := SplitTranscript(transcript, p.config.SegmentMaxChars)

	p.notifier.Publish(session.ID, "report_chunking_started", map[string]interface{}{
		"report_type":   string(reportType),
		"segment_count": len(segments),
	})

	aggregate := &SegmentSummary{}
	tokensUsed := 0
	model := ""
	successful := 0
	failed := 0

	for i, segment := range segments {
		// Pace engine calls; the first call passes immediately
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		res, err := p.llm.Complete(ctx, segmentSystemPrompt, buildSegmentPrompt(segment, i, len(segments)), interfaces.CompletionOptions{})
		if err != nil {
			if common.IsFatal(err) {
				return nil, err
			}
			failed++
			p.logger.Warn().
				Err(err).
				Str("session_id", session.ID).
				Int("segment", i).
				Msg("Segment summarization failed, continuing with remaining segments")
			continue
		}

		summary := ParseSegmentSummary(res.Text)
		aggregate.KeyTopics = append(aggregate.KeyTopics, summary.KeyTopics...)
		aggregate.Decisions = append(aggregate.Decisions, summary.Decisions...)
		aggregate.Concerns = append(aggregate.Concerns, summary.Concerns...)
		aggregate.Guidance = append(aggregate.Guidance, summary.Guidance...)
		tokensUsed += res.TokensUsed
		model = res.Model
		successful++

		p.notifier.Publish(session.ID, "report_segment_completed", map[string]interface{}{
			"report_type": string(reportType),
			"segment":     i,
			"total":       len(segments),
		})
	}

	if successful == 0 {
		return nil, fmt.Errorf("all %d transcript segments failed summarization", len(segments))
	}

	res, err := p.llm.Complete(ctx, systemPromptFor(reportType), buildSynthesisPrompt(aggregate, reportType, session, notes), interfaces.CompletionOptions{})
	if err != nil {
		return nil, err
	}
	tokensUsed += res.TokensUsed
	model = res.Model

	content, parsed := ParseReportContent(res.Text)
	generated := &Generated{
		Content:  content,
		Metadata: p.metadata(res, startTime, true, successful, failed),
	}
	generated.Metadata.TokensUsed = tokensUsed
	generated.Metadata.Model = model
	if !parsed {
		generated.Metadata.Error = parseFailureNote
		p.logger.Warn().
			Str("session_id", session.ID).
			Str("report_type", string(reportType)).
			Msg("Synthesis response did not parse as JSON, kept verbatim under parse-error marker")
	}
	return generated, nil
}

func (p *Pipeline) metadata(res *interfaces.CompletionResult, startTime time.Time, chunked bool, successful, failed int) models.GenerationMetadata {
	return models.GenerationMetadata{
		Model:            res.Model,
		TokensUsed:       res.TokensUsed,
		ProcessingTimeMS: time.Since(startTime).Milliseconds(),
		GeneratedAt:      time.Now(),
		Chunked:          chunked,
		Mock:             res.Model == "mock",
		SuccessfulChunks: successful,
		FailedChunks:     failed,
	}
}

func (p *Pipeline) failSession(ctx context.Context, sessionID string, cause error) {
	if err := p.sessions.UpdateSessionStatus(ctx, sessionID, models.SessionStatusFailed, cause.Error()); err != nil {
		p.logger.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to record session failure")
	}
	p.notifier.Publish(sessionID, "report_generation_failed", map[string]interface{}{
		"error": cause.Error(),
	})
}

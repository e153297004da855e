package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/ternarybob/scriba/internal/models"
	"github.com/ternarybob/scriba/internal/queue"
)

// VersionService owns the report version chain for each session and type:
// creating versions, requesting regeneration, and approval. At most one row
// per (session, type) carries the current flag.
type VersionService struct {
	reports  interfaces.ReportStorage
	sessions interfaces.SessionStorage
	queueMgr *queue.Manager
	logger   arbor.ILogger
}

// NewVersionService creates a version service
func NewVersionService(reports interfaces.ReportStorage, sessions interfaces.SessionStorage, queueMgr *queue.Manager, logger arbor.ILogger) *VersionService {
	return &VersionService{
		reports:  reports,
		sessions: sessions,
		queueMgr: queueMgr,
		logger:   logger,
	}
}

// CreateReport persists freshly generated content as the current version for
// its session and type. The first report for a pair is version 1; later ones
// supersede the current row transactionally.
func (s *VersionService) CreateReport(ctx context.Context, sessionID string, reportType models.ReportType, content string, metadata models.GenerationMetadata) (*models.Report, error) {
	now := time.Now()
	report := &models.Report{
		ID:               common.NewReportID(),
		SessionID:        sessionID,
		Type:             reportType,
		VersionNumber:    1,
		IsCurrentVersion: true,
		Status:           models.ReportStatusDraft,
		Content:          content,
		Metadata:         metadata,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	current, err := s.reports.GetCurrentReport(ctx, sessionID, reportType)
	switch {
	case err == nil:
		next, verErr := s.nextVersionNumber(ctx, sessionID, reportType)
		if verErr != nil {
			return nil, verErr
		}
		report.VersionNumber = next
		if err := s.reports.ReplaceCurrent(ctx, current, report); err != nil {
			return nil, fmt.Errorf("failed to replace current report: %w", err)
		}
	case errors.Is(err, interfaces.ErrNotFound):
		if err := s.reports.SaveReport(ctx, report); err != nil {
			return nil, fmt.Errorf("failed to save report: %w", err)
		}
	default:
		return nil, err
	}

	s.logger.Info().
		Str("report_id", report.ID).
		Str("session_id", sessionID).
		Str("type", string(reportType)).
		Int("version", report.VersionNumber).
		Msg("Report version created")

	return report, nil
}

// Regenerate creates the next version as an empty draft, makes it current,
// and enqueues a regenerate_report job to fill it. The empty draft makes the
// pending regeneration observable immediately.
func (s *VersionService) Regenerate(ctx context.Context, reportID, notes, requestedBy string) (*models.Report, error) {
	old, err := s.reports.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if !old.IsCurrentVersion {
		return nil, fmt.Errorf("report %s is not the current version and cannot be regenerated", reportID)
	}

	session, err := s.sessions.GetSession(ctx, old.SessionID)
	if err != nil {
		return nil, err
	}
	if session.TranscriptionText == "" {
		return nil, common.Fatalf("session %s has no transcript, regeneration is impossible", session.ID)
	}

	next, err := s.nextVersionNumber(ctx, old.SessionID, old.Type)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	draft := &models.Report{
		ID:               common.NewReportID(),
		SessionID:        old.SessionID,
		Type:             old.Type,
		VersionNumber:    next,
		IsCurrentVersion: true,
		Status:           models.ReportStatusDraft,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.reports.ReplaceCurrent(ctx, old, draft); err != nil {
		return nil, fmt.Errorf("failed to replace current report: %w", err)
	}

	payload := models.RegenerateReportPayload{
		OldReportID: old.ID,
		NewReportID: draft.ID,
		ReportType:  old.Type,
		Notes:       notes,
		RequestedBy: requestedBy,
	}
	if _, err := s.queueMgr.Enqueue(ctx, old.SessionID, models.JobTypeRegenerateReport, payload, models.PriorityRegenerate, 0); err != nil {
		return nil, fmt.Errorf("draft created but regeneration job enqueue failed: %w", err)
	}

	s.logger.Info().
		Str("old_report_id", old.ID).
		Str("new_report_id", draft.ID).
		Str("session_id", old.SessionID).
		Int("version", next).
		Msg("Report regeneration requested")

	return draft, nil
}

// FillDraft writes generated content and metadata into a regeneration draft
func (s *VersionService) FillDraft(ctx context.Context, reportID, content string, metadata models.GenerationMetadata) error {
	report, err := s.reports.GetReport(ctx, reportID)
	if err != nil {
		return err
	}

	report.Content = content
	report.Metadata = metadata
	report.UpdatedAt = time.Now()

	if err := s.reports.SaveReport(ctx, report); err != nil {
		return fmt.Errorf("failed to fill report draft: %w", err)
	}
	return nil
}

// Approve flips the report to approved in place. Approval never creates a
// version; the content the approver saw is the content that is approved.
func (s *VersionService) Approve(ctx context.Context, reportID, approvedBy, notes string) (*models.Report, error) {
	report, err := s.reports.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if report.Status == models.ReportStatusApproved {
		return nil, fmt.Errorf("report %s is already approved", reportID)
	}

	now := time.Now()
	report.Status = models.ReportStatusApproved
	report.ApprovedBy = approvedBy
	report.ApprovalNotes = notes
	report.ApprovedAt = &now
	report.UpdatedAt = now

	if err := s.reports.SaveReport(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to approve report: %w", err)
	}

	s.logger.Info().
		Str("report_id", reportID).
		Str("approved_by", approvedBy).
		Msg("Report approved")

	return report, nil
}

// GetCurrent returns the current version for a session and type
func (s *VersionService) GetCurrent(ctx context.Context, sessionID string, reportType models.ReportType) (*models.Report, error) {
	return s.reports.GetCurrentReport(ctx, sessionID, reportType)
}

// ListVersions returns every version for a session and type, oldest first
func (s *VersionService) ListVersions(ctx context.Context, sessionID string, reportType models.ReportType) ([]*models.Report, error) {
	return s.reports.ListReportVersions(ctx, sessionID, reportType)
}

// nextVersionNumber is max existing version + 1. Versions are derived from
// the stored chain, never from a counter that could drift.
func (s *VersionService) nextVersionNumber(ctx context.Context, sessionID string, reportType models.ReportType) (int, error) {
	versions, err := s.reports.ListReportVersions(ctx, sessionID, reportType)
	if err != nil {
		return 0, err
	}
	max := 0
	for _, v := range versions {
		if v.VersionNumber > max {
			max = v.VersionNumber
		}
	}
	return max + 1, nil
}

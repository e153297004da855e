package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/scriba/internal/models"
)

// ErrNoJob is returned by ClaimNextReady when no job is eligible for dequeue
var ErrNoJob = errors.New("no jobs ready")

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// JobStorage persists queue jobs and provides the atomic claim that makes
// dequeue safe across worker processes.
type JobStorage interface {
	SaveJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, jobID string) (*models.Job, error)

	// ClaimNextReady atomically selects the oldest-ready job (status pending
	// or retry with scheduled_at <= now, ordered by priority then
	// scheduled_at) and flips it to processing. At most one caller wins a
	// given job; losers see ErrNoJob.
	ClaimNextReady(ctx context.Context, now time.Time) (*models.Job, error)

	CountByStatus(ctx context.Context) (map[models.JobStatus]int, error)
	ListJobsBySession(ctx context.Context, sessionID string) ([]*models.Job, error)
}

// ReportStorage persists versioned reports
type ReportStorage interface {
	SaveReport(ctx context.Context, report *models.Report) error
	GetReport(ctx context.Context, reportID string) (*models.Report, error)
	GetCurrentReport(ctx context.Context, sessionID string, reportType models.ReportType) (*models.Report, error)
	ListReportVersions(ctx context.Context, sessionID string, reportType models.ReportType) ([]*models.Report, error)

	// ReplaceCurrent flips the old report's current flag off and inserts the
	// new version in one transaction, preserving the one-current-row
	// invariant.
	ReplaceCurrent(ctx context.Context, old *models.Report, replacement *models.Report) error
}

// SessionStorage persists the session slice owned by this core
type SessionStorage interface {
	SaveSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	UpdateSessionStatus(ctx context.Context, sessionID string, status models.SessionStatus, processingError string) error
	SetTranscription(ctx context.Context, sessionID, text, language string, durationSeconds float64) error
}

// StorageManager aggregates the storage interfaces behind one lifecycle
type StorageManager interface {
	JobStorage() JobStorage
	ReportStorage() ReportStorage
	SessionStorage() SessionStorage
	Close() error
}

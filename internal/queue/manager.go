package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/ternarybob/scriba/internal/models"
)

// backoffCap keeps a poisoned job with a generous retry budget from pushing
// itself weeks into the future.
const backoffCap = 60 * time.Minute

// Manager wraps job storage with the queue's lifecycle semantics: enqueue,
// claim, and the status transitions with retry/backoff accounting.
type Manager struct {
	jobs               interfaces.JobStorage
	defaultMaxAttempts int
	logger             arbor.ILogger
}

// NewManager creates a queue manager
func NewManager(jobs interfaces.JobStorage, config *common.QueueConfig, logger arbor.ILogger) *Manager {
	maxAttempts := 3
	if config != nil && config.DefaultMaxAttempts > 0 {
		maxAttempts = config.DefaultMaxAttempts
	}
	return &Manager{
		jobs:               jobs,
		defaultMaxAttempts: maxAttempts,
		logger:             logger,
	}
}

// Enqueue creates a new pending job, immediately eligible for dequeue
func (m *Manager) Enqueue(ctx context.Context, sessionID string, jobType models.JobType, payload interface{}, priority, maxAttempts int) (*models.Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}
	if maxAttempts <= 0 {
		maxAttempts = m.defaultMaxAttempts
	}

	now := time.Now()
	job := &models.Job{
		ID:          common.NewJobID(),
		SessionID:   sessionID,
		Type:        jobType,
		Payload:     data,
		Priority:    priority,
		Status:      models.JobStatusPending,
		MaxAttempts: maxAttempts,
		ScheduledAt: now,
		CreatedAt:   now,
	}

	if err := m.jobs.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	m.logger.Info().
		Str("job_id", job.ID).
		Str("session_id", sessionID).
		Str("type", string(jobType)).
		Int("priority", priority).
		Msg("Job enqueued")

	return job, nil
}

// DequeueNext claims the oldest-ready job, or interfaces.ErrNoJob when the
// queue has nothing eligible.
func (m *Manager) DequeueNext(ctx context.Context) (*models.Job, error) {
	return m.jobs.ClaimNextReady(ctx, time.Now())
}

// MarkProcessing records the start of processing for a claimed job
func (m *Manager) MarkProcessing(ctx context.Context, jobID string) error {
	job, err := m.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return fmt.Errorf("job %s is terminal (%s) and cannot be reprocessed", jobID, job.Status)
	}

	now := time.Now()
	job.Status = models.JobStatusProcessing
	if job.StartedAt == nil {
		job.StartedAt = &now
	}
	return m.jobs.SaveJob(ctx, job)
}

// MarkCompleted transitions a job to its successful terminal state
func (m *Manager) MarkCompleted(ctx context.Context, jobID string) error {
	job, err := m.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return fmt.Errorf("job %s is already terminal (%s)", jobID, job.Status)
	}

	now := time.Now()
	job.Status = models.JobStatusCompleted
	job.CompletedAt = &now

	if err := m.jobs.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to mark job %s completed: %w", jobID, err)
	}

	m.logger.Info().
		Str("job_id", jobID).
		Str("type", string(job.Type)).
		Msg("Job completed")

	return nil
}

// MarkFailed records a failed attempt. Retryable failures under the attempt
// budget go back to the queue with exponential backoff; everything else is
// terminal. Storage errors during the update degrade to a best-effort
// force-fail write - a stuck job is worse than a lost one.
func (m *Manager) MarkFailed(ctx context.Context, jobID string, jobErr error, retryable bool) error {
	job, err := m.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return fmt.Errorf("job %s is already terminal (%s)", jobID, job.Status)
	}

	errMsg := "unknown error"
	if jobErr != nil {
		errMsg = jobErr.Error()
	}

	newAttempts := job.Attempts + 1
	ceiling := job.MaxAttempts
	if ceiling > models.AttemptsHardCeiling {
		ceiling = models.AttemptsHardCeiling
	}
	canRetry := retryable && newAttempts < ceiling

	now := time.Now()
	job.Attempts = newAttempts
	job.ErrorLog = errMsg

	if canRetry {
		delay := backoffDelay(newAttempts)
		job.Status = models.JobStatusRetry
		job.ScheduledAt = now.Add(delay)

		m.logger.Warn().
			Str("job_id", jobID).
			Str("type", string(job.Type)).
			Int("attempts", newAttempts).
			Dur("backoff", delay).
			Str("error", errMsg).
			Msg("Job failed, scheduled for retry")
	} else {
		job.Status = models.JobStatusFailed
		job.CompletedAt = &now

		m.logger.Error().
			Str("job_id", jobID).
			Str("type", string(job.Type)).
			Int("attempts", newAttempts).
			Bool("retryable", retryable).
			Str("error", errMsg).
			Msg("Job failed permanently")
	}

	if err := m.jobs.SaveJob(ctx, job); err != nil {
		m.logger.Error().
			Err(err).
			Str("job_id", jobID).
			Msg("Failed to persist job failure, forcing terminal state")
		return m.forceFail(ctx, job, fmt.Sprintf("%s (status update failed: %v)", errMsg, err))
	}
	return nil
}

// forceFail writes an unconditional failed state. If even this write fails,
// the error is logged and the job stays in processing - a known risk that
// requires external reconciliation.
func (m *Manager) forceFail(ctx context.Context, job *models.Job, errMsg string) error {
	now := time.Now()
	job.Status = models.JobStatusFailed
	job.ErrorLog = errMsg
	job.CompletedAt = &now

	if err := m.jobs.SaveJob(ctx, job); err != nil {
		m.logger.Error().
			Err(err).
			Str("job_id", job.ID).
			Msg("Force-fail write failed, job remains stuck in processing")
		return nil
	}
	return nil
}

// Stats returns per-status job counts
func (m *Manager) Stats(ctx context.Context) (map[models.JobStatus]int, error) {
	return m.jobs.CountByStatus(ctx)
}

// LogStartupStats surfaces jobs stranded in processing by a previous run.
// They are never reconciled automatically; this log line is the operator's
// signal to intervene.
func (m *Manager) LogStartupStats(ctx context.Context) {
	counts, err := m.Stats(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Failed to read queue stats at startup")
		return
	}
	if stray := counts[models.JobStatusProcessing]; stray > 0 {
		m.logger.Warn().
			Int("count", stray).
			Msg("Jobs stuck in processing from a previous run require manual reconciliation")
	}
	m.logger.Info().
		Int("pending", counts[models.JobStatusPending]).
		Int("retry", counts[models.JobStatusRetry]).
		Int("processing", counts[models.JobStatusProcessing]).
		Msg("Queue state at startup")
}

// backoffDelay returns 2^(attempts-1) minutes, capped
func backoffDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := time.Duration(1<<uint(attempts-1)) * time.Minute
	if delay > backoffCap {
		delay = backoffCap
	}
	return delay
}

package models

import (
	"encoding/json"
	"time"
)

// JobType identifies which pipeline handles a queued job
type JobType string

const (
	JobTypeTranscribe       JobType = "transcribe"
	JobTypeGenerateReports  JobType = "generate_reports"
	JobTypeRegenerateReport JobType = "regenerate_report"
)

// JobStatus tracks a job through its lifecycle:
// pending -> processing -> {completed | retry | failed}
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusRetry      JobStatus = "retry"
	JobStatusFailed     JobStatus = "failed"
)

// Queue priorities. Lower numeric value is served first, so user-initiated
// regeneration preempts routine work and report generation yields to any
// pending transcription.
const (
	PriorityRegenerate = 1
	PriorityTranscribe = 5
	PriorityReports    = 10
)

// AttemptsHardCeiling bounds retries independent of a job's configured
// max_attempts, to prevent runaway retry loops.
const AttemptsHardCeiling = 10

// Job is one durable unit of asynchronous work
type Job struct {
	ID          string          `json:"id" badgerhold:"key"`
	SessionID   string          `json:"session_id" badgerhold:"index"`
	Type        JobType         `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Priority    int             `json:"priority"`
	Status      JobStatus       `json:"status" badgerhold:"index"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	ScheduledAt time.Time       `json:"scheduled_at"` // Earliest eligible dequeue time
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	ErrorLog    string          `json:"error_log,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// IsTerminal reports whether the job has reached a final state. Terminal jobs
// are never mutated again except by explicit operator action.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// TranscribePayload is carried by transcribe jobs
type TranscribePayload struct {
	AudioPath string `json:"audio_path"`
	FileName  string `json:"file_name"`
	SizeBytes int64  `json:"size_bytes"`
	Language  string `json:"language,omitempty"`
}

// GenerateReportsPayload is carried by generate_reports jobs
type GenerateReportsPayload struct {
	ReportTypes []ReportType `json:"report_types"`
	Notes       string       `json:"notes,omitempty"`
}

// RegenerateReportPayload is carried by regenerate_report jobs. It references
// both the superseded report and the draft row created for the new version.
type RegenerateReportPayload struct {
	OldReportID string     `json:"old_report_id"`
	NewReportID string     `json:"new_report_id"`
	ReportType  ReportType `json:"report_type"`
	Notes       string     `json:"notes,omitempty"`
	RequestedBy string     `json:"requested_by,omitempty"`
}

package models

import "time"

// ReportType distinguishes the two generated documents per session
type ReportType string

const (
	ReportTypeAdviser ReportType = "adviser"
	ReportTypeClient  ReportType = "client"
)

// ReportStatus tracks the approval lifecycle. Approval is a status flip, not
// a new version.
type ReportStatus string

const (
	ReportStatusDraft    ReportStatus = "draft"
	ReportStatusApproved ReportStatus = "approved"
)

// GenerationMetadata records how a report's content was produced
type GenerationMetadata struct {
	Model            string    `json:"model,omitempty"`
	TokensUsed       int       `json:"tokens_used,omitempty"`
	ProcessingTimeMS int64     `json:"processing_time_ms,omitempty"`
	GeneratedAt      time.Time `json:"generated_at,omitempty"`
	Chunked          bool      `json:"chunked"`
	Mock             bool      `json:"mock,omitempty"`
	SuccessfulChunks int       `json:"successful_chunks,omitempty"`
	FailedChunks     int       `json:"failed_chunks,omitempty"`
	Error            string    `json:"error,omitempty"`
}

// Report is a generated document, versioned per session+type. Exactly one row
// per (session, type) has IsCurrentVersion=true at any time.
type Report struct {
	ID               string             `json:"id" badgerhold:"key"`
	SessionID        string             `json:"session_id" badgerhold:"index"`
	Type             ReportType         `json:"type"`
	VersionNumber    int                `json:"version_number"`
	IsCurrentVersion bool               `json:"is_current_version"`
	Status           ReportStatus       `json:"status"`
	Content          string             `json:"content"` // Structured report JSON, serialized
	Metadata         GenerationMetadata `json:"generation_metadata"`
	ApprovedBy       string             `json:"approved_by,omitempty"`
	ApprovalNotes    string             `json:"approval_notes,omitempty"`
	ApprovedAt       *time.Time         `json:"approved_at,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

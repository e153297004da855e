package models

import "time"

// SessionStatus drives the session state machine:
// uploaded -> processing -> transcribed -> reports_generated -> completed,
// with failed reachable from any non-terminal state.
type SessionStatus string

const (
	SessionStatusUploaded         SessionStatus = "uploaded"
	SessionStatusProcessing       SessionStatus = "processing"
	SessionStatusTranscribed      SessionStatus = "transcribed"
	SessionStatusReportsGenerated SessionStatus = "reports_generated"
	SessionStatusCompleted        SessionStatus = "completed"
	SessionStatusFailed           SessionStatus = "failed"
)

var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionStatusUploaded:         {SessionStatusProcessing, SessionStatusFailed},
	SessionStatusProcessing:       {SessionStatusTranscribed, SessionStatusFailed},
	SessionStatusTranscribed:      {SessionStatusProcessing, SessionStatusReportsGenerated, SessionStatusFailed},
	SessionStatusReportsGenerated: {SessionStatusProcessing, SessionStatusCompleted, SessionStatusFailed},
	SessionStatusCompleted:        {},
	SessionStatusFailed:           {SessionStatusProcessing},
}

// CanTransitionTo reports whether next is a legal transition from s
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	for _, allowed := range sessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Session is the slice of the recording-session record this core mutates.
// The CRUD surface owns the rest of the entity.
type Session struct {
	ID                    string        `json:"id" badgerhold:"key"`
	Status                SessionStatus `json:"status" badgerhold:"index"`
	ClientName            string        `json:"client_name,omitempty"`
	AdviserName           string        `json:"adviser_name,omitempty"`
	MeetingDate           time.Time     `json:"meeting_date,omitempty"`
	LanguageHint          string        `json:"language_hint,omitempty"`
	AudioPath             string        `json:"audio_path,omitempty"`
	AudioFileName         string        `json:"audio_file_name,omitempty"`
	AudioSizeBytes        int64         `json:"audio_size_bytes,omitempty"`
	TranscriptionText     string        `json:"transcription_text,omitempty"`
	TranscriptionLanguage string        `json:"transcription_language,omitempty"`
	DurationSeconds       float64       `json:"duration_seconds,omitempty"`
	ProcessingError       string        `json:"processing_error,omitempty"`
	CreatedAt             time.Time     `json:"created_at"`
	UpdatedAt             time.Time     `json:"updated_at"`
}

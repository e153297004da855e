package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/ternarybob/scriba/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// SessionStorage implements the SessionStorage interface for Badger
type SessionStorage struct {
	store  *badgerhold.Store
	logger arbor.ILogger
}

// NewSessionStorage creates a new SessionStorage instance
func NewSessionStorage(store *badgerhold.Store, logger arbor.ILogger) interfaces.SessionStorage {
	return &SessionStorage{
		store:  store,
		logger: logger,
	}
}

func (s *SessionStorage) SaveSession(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		return fmt.Errorf("session ID is required")
	}
	session.UpdatedAt = time.Now()

	if err := s.store.Upsert(session.ID, session); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *SessionStorage) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var session models.Session
	if err := s.store.Get(sessionID, &session); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("session %s: %w", sessionID, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

func (s *SessionStorage) UpdateSessionStatus(ctx context.Context, sessionID string, status models.SessionStatus, processingError string) error {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	if session.Status != status && !session.Status.CanTransitionTo(status) {
		return fmt.Errorf("invalid session transition %s -> %s", session.Status, status)
	}

	session.Status = status
	session.ProcessingError = processingError

	s.logger.Debug().
		Str("session_id", sessionID).
		Str("status", string(status)).
		Msg("Session status updated")

	return s.SaveSession(ctx, session)
}

func (s *SessionStorage) SetTranscription(ctx context.Context, sessionID, text, language string, durationSeconds float64) error {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	session.TranscriptionText = text
	session.TranscriptionLanguage = language
	session.DurationSeconds = durationSeconds

	return s.SaveSession(ctx, session)
}

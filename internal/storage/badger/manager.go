package badger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/timshannon/badgerhold/v4"
)

// Manager implements the StorageManager interface for Badger. All three
// stores share one badgerhold store over a single database directory.
type Manager struct {
	store   *badgerhold.Store
	job     interfaces.JobStorage
	report  interfaces.ReportStorage
	session interfaces.SessionStorage
	logger  arbor.ILogger
}

// NewManager opens the database and creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	store, err := openStore(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		store:   store,
		job:     NewJobStorage(store, logger),
		report:  NewReportStorage(store, logger),
		session: NewSessionStorage(store, logger),
		logger:  logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// openStore opens the badgerhold store at the configured path, wiping any
// previous database first when reset_on_startup asks for a clean run.
func openStore(logger arbor.ILogger, config *common.BadgerConfig) (*badgerhold.Store, error) {
	if config.ResetOnStartup {
		if err := os.RemoveAll(config.Path); err != nil {
			logger.Warn().Err(err).Str("path", config.Path).Msg("Failed to wipe database directory")
		} else {
			logger.Debug().Str("path", config.Path).Msg("Wiped database directory (reset_on_startup=true)")
		}
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = config.Path
	options.ValueDir = config.Path
	options.Logger = nil // Disable default badger logger to use arbor

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", config.Path, err)
	}

	logger.Debug().Str("path", config.Path).Msg("Badger database opened")
	return store, nil
}

// JobStorage returns the Job storage interface
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.job
}

// ReportStorage returns the Report storage interface
func (m *Manager) ReportStorage() interfaces.ReportStorage {
	return m.report
}

// SessionStorage returns the Session storage interface
func (m *Manager) SessionStorage() interfaces.SessionStorage {
	return m.session
}

// Close closes the underlying database
func (m *Manager) Close() error {
	if m.store != nil {
		return m.store.Close()
	}
	return nil
}

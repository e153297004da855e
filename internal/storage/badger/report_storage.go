package badger

import (
	"context"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/ternarybob/scriba/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ReportStorage implements the ReportStorage interface for Badger
type ReportStorage struct {
	store  *badgerhold.Store
	logger arbor.ILogger
}

// NewReportStorage creates a new ReportStorage instance
func NewReportStorage(store *badgerhold.Store, logger arbor.ILogger) interfaces.ReportStorage {
	return &ReportStorage{
		store:  store,
		logger: logger,
	}
}

func (s *ReportStorage) SaveReport(ctx context.Context, report *models.Report) error {
	if report.ID == "" {
		return fmt.Errorf("report ID is required")
	}
	report.UpdatedAt = time.Now()

	if err := s.store.Upsert(report.ID, report); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

func (s *ReportStorage) GetReport(ctx context.Context, reportID string) (*models.Report, error) {
	var report models.Report
	if err := s.store.Get(reportID, &report); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("report %s: %w", reportID, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return &report, nil
}

func (s *ReportStorage) GetCurrentReport(ctx context.Context, sessionID string, reportType models.ReportType) (*models.Report, error) {
	var reports []models.Report
	query := badgerhold.Where("SessionID").Eq(sessionID).
		And("Type").Eq(reportType).
		And("IsCurrentVersion").Eq(true)
	if err := s.store.Find(&reports, query); err != nil {
		return nil, fmt.Errorf("failed to query current report: %w", err)
	}
	if len(reports) == 0 {
		return nil, fmt.Errorf("no current %s report for session %s: %w", reportType, sessionID, interfaces.ErrNotFound)
	}
	return &reports[0], nil
}

func (s *ReportStorage) ListReportVersions(ctx context.Context, sessionID string, reportType models.ReportType) ([]*models.Report, error) {
	var reports []models.Report
	query := badgerhold.Where("SessionID").Eq(sessionID).
		And("Type").Eq(reportType).
		SortBy("VersionNumber")
	if err := s.store.Find(&reports, query); err != nil {
		return nil, fmt.Errorf("failed to list report versions: %w", err)
	}

	result := make([]*models.Report, len(reports))
	for i := range reports {
		result[i] = &reports[i]
	}
	return result, nil
}

// ReplaceCurrent demotes the old current row and inserts the replacement in a
// single transaction so there is never zero or two current rows for a
// (session, type) pair, even if the process dies between the writes.
func (s *ReportStorage) ReplaceCurrent(ctx context.Context, old *models.Report, replacement *models.Report) error {
	now := time.Now()
	return s.store.Badger().Update(func(txn *badgerdb.Txn) error {
		old.IsCurrentVersion = false
		old.UpdatedAt = now
		if err := s.store.TxUpdate(txn, old.ID, *old); err != nil {
			return fmt.Errorf("failed to demote report %s: %w", old.ID, err)
		}

		replacement.IsCurrentVersion = true
		replacement.UpdatedAt = now
		if err := s.store.TxInsert(txn, replacement.ID, *replacement); err != nil {
			return fmt.Errorf("failed to insert report version %d: %w", replacement.VersionNumber, err)
		}
		return nil
	})
}

package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/ternarybob/scriba/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	store  *badgerhold.Store
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(store *badgerhold.Store, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		store:  store,
		logger: logger,
	}
}

func (s *JobStorage) SaveJob(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	job.UpdatedAt = time.Now()

	if err := s.store.Upsert(job.ID, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *JobStorage) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	if err := s.store.Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("job %s: %w", jobID, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// ClaimNextReady selects and claims the oldest-ready job in a single Badger
// transaction. Badger's SSI conflict detection covers the read set, so two
// processes racing for the same job commit at most once - the loser's
// transaction aborts with ErrConflict and is reported as ErrNoJob, to be
// retried on the next poll. This is the system's sole mutual-exclusion point.
func (s *JobStorage) ClaimNextReady(ctx context.Context, now time.Time) (*models.Job, error) {
	var claimed *models.Job

	err := s.store.Badger().Update(func(txn *badgerdb.Txn) error {
		var ready []models.Job
		query := badgerhold.
			Where("Status").In(models.JobStatusPending, models.JobStatusRetry).
			And("ScheduledAt").Le(now).
			SortBy("Priority", "ScheduledAt").
			Limit(1)

		if err := s.store.TxFind(txn, &ready, query); err != nil {
			return fmt.Errorf("failed to query ready jobs: %w", err)
		}
		if len(ready) == 0 {
			return interfaces.ErrNoJob
		}

		job := ready[0]
		started := now
		job.Status = models.JobStatusProcessing
		job.StartedAt = &started
		job.UpdatedAt = now

		if err := s.store.TxUpdate(txn, job.ID, job); err != nil {
			return fmt.Errorf("failed to claim job %s: %w", job.ID, err)
		}

		claimed = &job
		return nil
	})

	if err != nil {
		// A conflict means another worker claimed first; not an error for
		// the caller, just nothing to do this poll.
		if errors.Is(err, badgerdb.ErrConflict) {
			return nil, interfaces.ErrNoJob
		}
		return nil, err
	}
	return claimed, nil
}

func (s *JobStorage) CountByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	var jobs []models.Job
	if err := s.store.Find(&jobs, badgerhold.Where("ID").Ne("")); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	counts := make(map[models.JobStatus]int)
	for i := range jobs {
		counts[jobs[i].Status]++
	}
	return counts, nil
}

func (s *JobStorage) ListJobsBySession(ctx context.Context, sessionID string) ([]*models.Job, error) {
	var jobs []models.Job
	query := badgerhold.Where("SessionID").Eq(sessionID).SortBy("CreatedAt")
	if err := s.store.Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs for session %s: %w", sessionID, err)
	}

	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

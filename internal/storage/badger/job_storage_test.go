package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/ternarybob/scriba/internal/models"
)

func makeJob(id string, priority int, status models.JobStatus, scheduledAt time.Time) *models.Job {
	return &models.Job{
		ID:          id,
		SessionID:   "sess-1",
		Type:        models.JobTypeTranscribe,
		Priority:    priority,
		Status:      status,
		MaxAttempts: 3,
		ScheduledAt: scheduledAt,
		CreatedAt:   scheduledAt,
	}
}

func TestSaveAndGetJob(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	jobs := storage.JobStorage()

	job := makeJob("job-1", 5, models.JobStatusPending, time.Now())
	require.NoError(t, jobs.SaveJob(ctx, job))

	got, err := jobs.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, models.JobStatusPending, got.Status)

	_, err = jobs.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestSaveJobRequiresID(t *testing.T) {
	storage := newTestStorage(t)
	err := storage.JobStorage().SaveJob(context.Background(), &models.Job{})
	assert.Error(t, err)
}

func TestClaimNextReadyOrdering(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	jobs := storage.JobStorage()
	now := time.Now()

	// Same priority: older scheduled_at wins
	require.NoError(t, jobs.SaveJob(ctx, makeJob("job-late", 5, models.JobStatusPending, now.Add(-time.Minute))))
	require.NoError(t, jobs.SaveJob(ctx, makeJob("job-early", 5, models.JobStatusPending, now.Add(-time.Hour))))
	// Lower priority numeral beats both
	require.NoError(t, jobs.SaveJob(ctx, makeJob("job-urgent", 1, models.JobStatusPending, now)))

	for _, want := range []string{"job-urgent", "job-early", "job-late"} {
		claimed, err := jobs.ClaimNextReady(ctx, time.Now())
		require.NoError(t, err)
		assert.Equal(t, want, claimed.ID)
		assert.Equal(t, models.JobStatusProcessing, claimed.Status)
	}

	_, err := jobs.ClaimNextReady(ctx, time.Now())
	assert.ErrorIs(t, err, interfaces.ErrNoJob)
}

func TestClaimNextReadyIncludesDueRetries(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	jobs := storage.JobStorage()
	now := time.Now()

	require.NoError(t, jobs.SaveJob(ctx, makeJob("job-retry", 5, models.JobStatusRetry, now.Add(-time.Second))))
	require.NoError(t, jobs.SaveJob(ctx, makeJob("job-future", 5, models.JobStatusRetry, now.Add(time.Hour))))

	claimed, err := jobs.ClaimNextReady(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "job-retry", claimed.ID)

	_, err = jobs.ClaimNextReady(ctx, time.Now())
	assert.ErrorIs(t, err, interfaces.ErrNoJob, "future-scheduled retry must stay invisible")
}

func TestClaimNextReadySkipsNonReadyStatuses(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	jobs := storage.JobStorage()
	now := time.Now().Add(-time.Minute)

	require.NoError(t, jobs.SaveJob(ctx, makeJob("job-processing", 1, models.JobStatusProcessing, now)))
	require.NoError(t, jobs.SaveJob(ctx, makeJob("job-completed", 1, models.JobStatusCompleted, now)))
	require.NoError(t, jobs.SaveJob(ctx, makeJob("job-failed", 1, models.JobStatusFailed, now)))

	_, err := jobs.ClaimNextReady(ctx, time.Now())
	assert.ErrorIs(t, err, interfaces.ErrNoJob)
}

func TestClaimNextReadyAtMostOneWinner(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	jobs := storage.JobStorage()

	require.NoError(t, jobs.SaveJob(ctx, makeJob("job-1", 5, models.JobStatusPending, time.Now().Add(-time.Minute))))

	// Concurrent claimants: exactly one wins the single ready job
	results := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func() {
			_, err := jobs.ClaimNextReady(ctx, time.Now())
			results <- err
		}()
	}

	winners := 0
	for i := 0; i < 4; i++ {
		if err := <-results; err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, interfaces.ErrNoJob)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestListJobsBySession(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	jobs := storage.JobStorage()
	now := time.Now()

	a := makeJob("job-a", 5, models.JobStatusPending, now)
	b := makeJob("job-b", 5, models.JobStatusPending, now)
	b.SessionID = "sess-other"
	require.NoError(t, jobs.SaveJob(ctx, a))
	require.NoError(t, jobs.SaveJob(ctx, b))

	got, err := jobs.ListJobsBySession(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "job-a", got[0].ID)
}

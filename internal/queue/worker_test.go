package queue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/models"
)

func TestWorkerProcessesJob(t *testing.T) {
	mgr, storage := newTestManager(t)
	ctx := context.Background()

	var handled atomic.Int32
	worker := NewWorker(mgr, 20*time.Millisecond, common.GetLogger())
	worker.Register(models.JobTypeTranscribe, func(ctx context.Context, job *models.Job) error {
		handled.Add(1)
		return nil
	})

	job, err := mgr.Enqueue(ctx, "sess-1", models.JobTypeTranscribe, models.TranscribePayload{}, models.PriorityTranscribe, 0)
	require.NoError(t, err)

	worker.Start()
	defer worker.Stop()

	require.Eventually(t, func() bool {
		got, err := storage.JobStorage().GetJob(ctx, job.ID)
		return err == nil && got.Status == models.JobStatusCompleted
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, int32(1), handled.Load())
}

func TestWorkerFatalErrorSkipsRetry(t *testing.T) {
	mgr, storage := newTestManager(t)
	ctx := context.Background()

	worker := NewWorker(mgr, 20*time.Millisecond, common.GetLogger())
	worker.Register(models.JobTypeTranscribe, func(ctx context.Context, job *models.Job) error {
		return common.Fatalf("broken payload")
	})

	job, err := mgr.Enqueue(ctx, "sess-1", models.JobTypeTranscribe, models.TranscribePayload{}, models.PriorityTranscribe, 5)
	require.NoError(t, err)

	worker.Start()
	defer worker.Stop()

	require.Eventually(t, func() bool {
		got, err := storage.JobStorage().GetJob(ctx, job.ID)
		return err == nil && got.Status == models.JobStatusFailed
	}, 3*time.Second, 20*time.Millisecond)

	got, err := storage.JobStorage().GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts, "fatal failure must not burn the retry budget")
	assert.Contains(t, got.ErrorLog, "broken payload")
}

func TestWorkerRetryableErrorReschedules(t *testing.T) {
	mgr, storage := newTestManager(t)
	ctx := context.Background()

	worker := NewWorker(mgr, 20*time.Millisecond, common.GetLogger())
	worker.Register(models.JobTypeTranscribe, func(ctx context.Context, job *models.Job) error {
		return assert.AnError
	})

	job, err := mgr.Enqueue(ctx, "sess-1", models.JobTypeTranscribe, models.TranscribePayload{}, models.PriorityTranscribe, 3)
	require.NoError(t, err)

	worker.Start()
	defer worker.Stop()

	// Backoff pushes the retry a minute out, so the worker processes exactly once
	require.Eventually(t, func() bool {
		got, err := storage.JobStorage().GetJob(ctx, job.ID)
		return err == nil && got.Status == models.JobStatusRetry
	}, 3*time.Second, 20*time.Millisecond)

	got, err := storage.JobStorage().GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts)
	assert.True(t, got.ScheduledAt.After(time.Now()), "retry must be scheduled in the future")
}

func TestWorkerUnknownTypeFailsJob(t *testing.T) {
	mgr, storage := newTestManager(t)
	ctx := context.Background()

	worker := NewWorker(mgr, 20*time.Millisecond, common.GetLogger())
	// No handler registered for transcribe

	job, err := mgr.Enqueue(ctx, "sess-1", models.JobTypeTranscribe, models.TranscribePayload{}, models.PriorityTranscribe, 0)
	require.NoError(t, err)

	worker.Start()
	defer worker.Stop()

	require.Eventually(t, func() bool {
		got, err := storage.JobStorage().GetJob(ctx, job.ID)
		return err == nil && got.Status == models.JobStatusFailed
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWorkerStopWaitsForInFlightJob(t *testing.T) {
	mgr, storage := newTestManager(t)
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})
	worker := NewWorker(mgr, 20*time.Millisecond, common.GetLogger())
	worker.Register(models.JobTypeTranscribe, func(ctx context.Context, job *models.Job) error {
		close(started)
		<-release
		return nil
	})

	job, err := mgr.Enqueue(ctx, "sess-1", models.JobTypeTranscribe, models.TranscribePayload{}, models.PriorityTranscribe, 0)
	require.NoError(t, err)

	worker.Start()
	<-started

	stopped := make(chan struct{})
	go func() {
		worker.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a job was still in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	<-stopped

	got, err := storage.JobStorage().GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status, "in-flight job must finish before shutdown")
}

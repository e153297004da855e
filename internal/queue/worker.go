package queue

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/ternarybob/scriba/internal/models"
)

// Handler processes one job of a registered type
type Handler func(ctx context.Context, job *models.Job) error

// Worker is the single long-lived consumer loop for one process. Strictly one
// job is in flight at a time; system-wide concurrency comes from running more
// processes, with mutual exclusion enforced at the queue's dequeue step.
type Worker struct {
	mgr          *Manager
	handlers     map[models.JobType]Handler
	pollInterval time.Duration
	logger       arbor.ILogger
	stop         chan struct{}
	done         chan struct{}
}

// NewWorker creates a worker loop polling at the given interval
func NewWorker(mgr *Manager, pollInterval time.Duration, logger arbor.ILogger) *Worker {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Worker{
		mgr:          mgr,
		handlers:     make(map[models.JobType]Handler),
		pollInterval: pollInterval,
		logger:       logger,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Register registers a job type handler
func (w *Worker) Register(jobType models.JobType, handler Handler) {
	w.handlers[jobType] = handler
	w.logger.Debug().
		Str("job_type", string(jobType)).
		Msg("Job handler registered")
}

// Start launches the polling loop in its own goroutine
func (w *Worker) Start() {
	w.logger.Info().
		Dur("poll_interval", w.pollInterval).
		Msg("Starting worker loop")
	go w.run()
}

// Stop signals the loop to exit and waits for it. A job in flight is finished
// first - mid-flight work is never cancelled.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
	w.logger.Info().Msg("Worker loop stopped")
}

func (w *Worker) run() {
	defer close(w.done)

	ctx := context.Background()
	for {
		select {
		case <-w.stop:
			return
		default:
		}

		job, err := w.mgr.DequeueNext(ctx)
		if err != nil {
			if errors.Is(err, interfaces.ErrNoJob) {
				w.sleep(w.pollInterval)
				continue
			}
			// A polling error is not job-specific; back off to avoid
			// hot-looping against a down dependency.
			w.logger.Warn().Err(err).Msg("Queue poll failed, backing off")
			w.sleep(2 * w.pollInterval)
			continue
		}

		w.process(ctx, job)
	}
}

// process dispatches one job synchronously and writes its terminal status
func (w *Worker) process(ctx context.Context, job *models.Job) {
	handler, exists := w.handlers[job.Type]
	if !exists {
		w.logger.Error().
			Str("job_id", job.ID).
			Str("type", string(job.Type)).
			Msg("No handler registered for job type")
		if err := w.mgr.MarkFailed(ctx, job.ID, errors.New("no handler registered for job type "+string(job.Type)), false); err != nil {
			w.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to record missing-handler failure")
		}
		return
	}

	w.logger.Info().
		Str("job_id", job.ID).
		Str("session_id", job.SessionID).
		Str("type", string(job.Type)).
		Int("attempt", job.Attempts+1).
		Msg("Processing job")

	startTime := time.Now()
	handlerErr := handler(ctx, job)
	duration := time.Since(startTime)

	if handlerErr != nil {
		retryable := !common.IsFatal(handlerErr)
		w.logger.Error().
			Err(handlerErr).
			Str("job_id", job.ID).
			Str("type", string(job.Type)).
			Bool("retryable", retryable).
			Dur("duration", duration).
			Msg("Job handler failed")

		if err := w.mgr.MarkFailed(ctx, job.ID, handlerErr, retryable); err != nil {
			w.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to record job failure")
		}
		return
	}

	if err := w.mgr.MarkCompleted(ctx, job.ID); err != nil {
		w.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to record job completion")
		return
	}

	w.logger.Info().
		Str("job_id", job.ID).
		Str("type", string(job.Type)).
		Dur("duration", duration).
		Msg("Job finished")
}

// sleep waits for d or until stop is signalled
func (w *Worker) sleep(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-w.stop:
	case <-timer.C:
	}
}

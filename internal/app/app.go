package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/handlers"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/ternarybob/scriba/internal/media"
	"github.com/ternarybob/scriba/internal/models"
	reportspipe "github.com/ternarybob/scriba/internal/pipelines/reports"
	transcriptionpipe "github.com/ternarybob/scriba/internal/pipelines/transcription"
	"github.com/ternarybob/scriba/internal/queue"
	"github.com/ternarybob/scriba/internal/services/events"
	"github.com/ternarybob/scriba/internal/services/llm"
	"github.com/ternarybob/scriba/internal/services/maintenance"
	reportsvc "github.com/ternarybob/scriba/internal/services/reports"
	"github.com/ternarybob/scriba/internal/services/transcription"
	"github.com/ternarybob/scriba/internal/storage/badger"
)

// App owns every long-lived component and their startup/shutdown order
type App struct {
	config   *common.Config
	logger   arbor.ILogger
	storage  interfaces.StorageManager
	queueMgr *queue.Manager
	worker   *queue.Worker
	events   *events.Service
	versions *reportsvc.VersionService
	sweeper  *maintenance.Sweeper
	server   *http.Server
}

// New wires the application from config: storage, queue, engines, pipelines,
// the worker loop, the progress websocket, and the maintenance sweeper.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	storage, err := badger.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	queueMgr := queue.NewManager(storage.JobStorage(), &config.Queue, logger)
	eventService := events.NewService(logger)

	transcriptionEngine, err := transcription.NewWhisperService(&config.Transcription, logger)
	if err != nil {
		storage.Close()
		return nil, fmt.Errorf("failed to create transcription engine: %w", err)
	}
	completionService, err := llm.NewClaudeService(&config.Claude, logger)
	if err != nil {
		storage.Close()
		return nil, fmt.Errorf("failed to create report synthesis engine: %w", err)
	}

	splitter := media.NewSplitter(media.NewFFmpegProbe(), logger)
	versionService := reportsvc.NewVersionService(storage.ReportStorage(), storage.SessionStorage(), queueMgr, logger)

	transcriptionPipeline := transcriptionpipe.NewPipeline(
		transcriptionEngine, splitter, storage.SessionStorage(), queueMgr, eventService, &config.Media, logger)
	reportsPipeline := reportspipe.NewPipeline(
		completionService, storage.SessionStorage(), versionService, eventService, &config.Reports, logger)

	worker := queue.NewWorker(queueMgr, config.Queue.PollIntervalDuration(), logger)
	worker.Register(models.JobTypeTranscribe, transcriptionPipeline.Process)
	worker.Register(models.JobTypeGenerateReports, reportsPipeline.ProcessGenerate)
	worker.Register(models.JobTypeRegenerateReport, reportsPipeline.ProcessRegenerate)

	mux := http.NewServeMux()
	mux.Handle("/ws", handlers.NewWebSocketHandler(eventService, &config.WebSocket, logger))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return &App{
		config:   config,
		logger:   logger,
		storage:  storage,
		queueMgr: queueMgr,
		worker:   worker,
		events:   eventService,
		versions: versionService,
		sweeper:  maintenance.NewSweeper(&config.Maintenance, logger),
		server: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port),
			Handler: mux,
		},
	}, nil
}

// Start launches the worker loop, the sweeper, and the HTTP listener. The
// listener runs in its own goroutine; listen failures terminate the process
// through the logger's fatal path.
func (a *App) Start() error {
	a.queueMgr.LogStartupStats(context.Background())

	if err := a.sweeper.Start(); err != nil {
		return fmt.Errorf("failed to start maintenance sweeper: %w", err)
	}
	a.worker.Start()

	go func() {
		a.logger.Info().Str("addr", a.server.Addr).Msg("HTTP server listening")
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	return nil
}

// Stop shuts the application down in reverse dependency order. The worker is
// stopped first so any in-flight job completes before storage closes.
func (a *App) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("HTTP server shutdown error")
	}

	a.worker.Stop()
	a.sweeper.Stop()

	if err := a.storage.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("Storage close error")
	}
	a.logger.Info().Msg("Application stopped")
}

// QueueManager exposes the queue for operational tooling
func (a *App) QueueManager() *queue.Manager {
	return a.queueMgr
}

// VersionService exposes report versioning for operational tooling
func (a *App) VersionService() *reportsvc.VersionService {
	return a.versions
}

package maintenance

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/media"
)

// Sweeper removes chunk temp directories abandoned by crashed runs. A clean
// run deletes its own directory; the sweeper only catches what crashes leave
// behind. It never touches job records.
type Sweeper struct {
	config *common.MaintenanceConfig
	cron   *cron.Cron
	logger arbor.ILogger
}

// NewSweeper creates a sweeper from maintenance config
func NewSweeper(config *common.MaintenanceConfig, logger arbor.ILogger) *Sweeper {
	return &Sweeper{
		config: config,
		cron:   cron.New(),
		logger: logger,
	}
}

// Start schedules the sweep. Disabled config is a no-op.
func (s *Sweeper) Start() error {
	if !s.config.Enabled {
		s.logger.Info().Msg("Maintenance sweeper disabled")
		return nil
	}

	schedule := s.config.SweepSchedule
	if schedule == "" {
		schedule = "@every 1h"
	}
	if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info().
		Str("schedule", schedule).
		Str("max_age", s.config.ChunkDirMaxAge).
		Msg("Maintenance sweeper started")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Sweeper) sweep() {
	removed, err := SweepChunkDirs(os.TempDir(), s.config.ChunkDirMaxAgeDuration())
	if err != nil {
		s.logger.Warn().Err(err).Msg("Chunk directory sweep failed")
		return
	}
	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("Swept stale chunk directories")
	}
}

// SweepChunkDirs removes chunk temp directories under root whose modification
// time is older than maxAge, returning how many were removed.
func SweepChunkDirs(root string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), media.TempDirPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, entry.Name())); err != nil {
			continue
		}
		removed++
	}
	return removed, nil
}

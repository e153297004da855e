package media

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/interfaces"
)

// TempDirPrefix names the per-run chunk directories so the maintenance sweep
// can find orphans left by a killed process.
const TempDirPrefix = "scriba-chunks-"

// ChunkPlan describes one timestamp range before cutting
type ChunkPlan struct {
	Index    int
	Start    float64
	Duration float64
}

// Chunk is a cut audio slice. Chunks exist only for the duration of a single
// pipeline run and are owned exclusively by that run.
type Chunk struct {
	Index     int
	Path      string
	StartTime float64
	EndTime   float64
	SizeBytes int64
}

// PlanChunks computes near-equal chunks for an audio file of the given
// duration and size. Chunk duration is derived so the estimated chunk size
// approximates targetBytes, floored at minChunkSeconds to avoid degenerate
// micro-chunks. The resulting ranges are contiguous, non-overlapping, and
// cover [0, duration).
func PlanChunks(durationSeconds float64, totalBytes, targetBytes int64, minChunkSeconds float64) []ChunkPlan {
	if durationSeconds <= 0 || totalBytes <= 0 || targetBytes <= 0 {
		return nil
	}

	chunkDuration := durationSeconds * float64(targetBytes) / float64(totalBytes)
	if chunkDuration < minChunkSeconds {
		chunkDuration = minChunkSeconds
	}

	count := int(math.Ceil(durationSeconds / chunkDuration))
	plans := make([]ChunkPlan, 0, count)
	for i := 0; i < count; i++ {
		start := float64(i) * chunkDuration
		length := chunkDuration
		if start+length > durationSeconds {
			length = durationSeconds - start
		}
		plans = append(plans, ChunkPlan{Index: i, Start: start, Duration: length})
	}
	return plans
}

// Splitter cuts a large audio file into sequential chunks inside a dedicated
// temp directory.
type Splitter struct {
	probe  interfaces.MediaProbe
	logger arbor.ILogger
}

// NewSplitter creates a splitter over the given media probe
func NewSplitter(probe interfaces.MediaProbe, logger arbor.ILogger) *Splitter {
	return &Splitter{
		probe:  probe,
		logger: logger,
	}
}

// Split probes the file's duration, plans chunk ranges, and cuts each range
// as a lossless stream copy. The returned dir holds every chunk file; the
// caller owns its removal on every exit path. On error, Split removes the dir
// itself before returning.
func (s *Splitter) Split(ctx context.Context, path string, totalBytes, targetBytes int64, minChunkSeconds float64) (string, []Chunk, error) {
	duration, err := s.probe.Duration(ctx, path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to probe media duration: %w", err)
	}

	plans := PlanChunks(duration, totalBytes, targetBytes, minChunkSeconds)
	if len(plans) == 0 {
		return "", nil, fmt.Errorf("no chunks planned for %s (duration %.1fs, %d bytes)", path, duration, totalBytes)
	}

	dir, err := os.MkdirTemp("", TempDirPrefix)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create chunk directory: %w", err)
	}

	s.logger.Info().
		Str("path", path).
		Int("duration_seconds", int(duration)).
		Int("chunk_count", len(plans)).
		Msg("Splitting audio into chunks")

	ext := filepath.Ext(path)
	if ext == "" {
		ext = ".mp3"
	}

	chunks := make([]Chunk, 0, len(plans))
	for _, plan := range plans {
		outPath := filepath.Join(dir, fmt.Sprintf("chunk_%03d%s", plan.Index, ext))
		if err := s.probe.SplitRange(ctx, path, plan.Start, plan.Duration, outPath); err != nil {
			os.RemoveAll(dir)
			return "", nil, fmt.Errorf("failed to cut chunk %d: %w", plan.Index, err)
		}

		var size int64
		if info, statErr := os.Stat(outPath); statErr == nil {
			size = info.Size()
		}

		chunks = append(chunks, Chunk{
			Index:     plan.Index,
			Path:      outPath,
			StartTime: plan.Start,
			EndTime:   plan.Start + plan.Duration,
			SizeBytes: size,
		})
	}

	return dir, chunks, nil
}

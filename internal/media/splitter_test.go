package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/scriba/internal/common"
)

func TestPlanChunks(t *testing.T) {
	tests := []struct {
		name      string
		duration  float64
		total     int64
		target    int64
		minChunk  float64
		wantCount int
	}{
		{
			// 40-minute, 60MB recording with a 10MB target: 400s chunks, six of them
			name:      "long recording",
			duration:  2400,
			total:     60 * 1024 * 1024,
			target:    10 * 1024 * 1024,
			minChunk:  60,
			wantCount: 6,
		},
		{
			name:      "single chunk when target exceeds size",
			duration:  120,
			total:     5 * 1024 * 1024,
			target:    10 * 1024 * 1024,
			minChunk:  60,
			wantCount: 1,
		},
		{
			// Dense file where the derived duration would be tiny; floor applies
			name:      "min duration floor",
			duration:  100,
			total:     1000 * 1024 * 1024,
			target:    1024 * 1024,
			minChunk:  60,
			wantCount: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plans := PlanChunks(tt.duration, tt.total, tt.target, tt.minChunk)
			require.Len(t, plans, tt.wantCount)

			// Contiguous, non-overlapping, covering [0, duration)
			covered := 0.0
			for i, plan := range plans {
				assert.Equal(t, i, plan.Index)
				assert.InDelta(t, covered, plan.Start, 0.001)
				assert.Greater(t, plan.Duration, 0.0)
				covered += plan.Duration
			}
			assert.InDelta(t, tt.duration, covered, 0.001)
		})
	}
}

func TestPlanChunksDegenerateInput(t *testing.T) {
	assert.Nil(t, PlanChunks(0, 100, 10, 60))
	assert.Nil(t, PlanChunks(100, 0, 10, 60))
	assert.Nil(t, PlanChunks(100, 100, 0, 60))
}

// fakeProbe implements interfaces.MediaProbe without requiring ffmpeg
type fakeProbe struct {
	duration float64
	failAt   int
	calls    int
	chunkDir string
}

func (p *fakeProbe) Duration(ctx context.Context, path string) (float64, error) {
	return p.duration, nil
}

func (p *fakeProbe) SplitRange(ctx context.Context, path string, start, duration float64, outPath string) error {
	p.calls++
	p.chunkDir = filepath.Dir(outPath)
	if p.failAt > 0 && p.calls == p.failAt {
		return errors.New("cut failed")
	}
	return os.WriteFile(outPath, []byte(fmt.Sprintf("chunk %.0f-%.0f", start, start+duration)), 0644)
}

func TestSplitProducesOrderedChunkFiles(t *testing.T) {
	probe := &fakeProbe{duration: 2400}
	splitter := NewSplitter(probe, common.GetLogger())

	dir, chunks, err := splitter.Split(context.Background(), "/media/meeting.mp3", 60*1024*1024, 10*1024*1024, 60)
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	require.Len(t, chunks, 6)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
		assert.FileExists(t, chunk.Path)
		assert.Greater(t, chunk.SizeBytes, int64(0))
		if i > 0 {
			assert.InDelta(t, chunks[i-1].EndTime, chunk.StartTime, 0.001)
		}
	}
	assert.Contains(t, dir, TempDirPrefix)
}

func TestSplitCleansUpOnCutFailure(t *testing.T) {
	probe := &fakeProbe{duration: 2400, failAt: 3}
	splitter := NewSplitter(probe, common.GetLogger())

	dir, _, err := splitter.Split(context.Background(), "/media/meeting.mp3", 60*1024*1024, 10*1024*1024, 60)
	require.Error(t, err)
	assert.Empty(t, dir)

	// The partially written chunk directory must not survive a failed split
	require.NotEmpty(t, probe.chunkDir)
	assert.NoDirExists(t, probe.chunkDir)
}

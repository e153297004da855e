package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/ternarybob/scriba/internal/interfaces"
)

// FFmpegProbe implements MediaProbe by shelling out to ffprobe/ffmpeg, the
// same way every media tool in this stack drives them.
type FFmpegProbe struct{}

// NewFFmpegProbe creates a probe backed by the ffmpeg toolchain on PATH
func NewFFmpegProbe() interfaces.MediaProbe {
	return &FFmpegProbe{}
}

// Duration returns the media duration in seconds via ffprobe
func (p *FFmpegProbe) Duration(ctx context.Context, path string) (float64, error) {
	// ffprobe -v error -show_entries format=duration -of default=noprint_wrappers=1:nokey=1 input
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe failed for %s: %w (%s)", path, err, strings.TrimSpace(stderr.String()))
	}

	raw := strings.TrimSpace(stdout.String())
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe returned unparseable duration %q for %s: %w", raw, path, err)
	}
	if seconds <= 0 {
		return 0, fmt.Errorf("ffprobe returned non-positive duration %f for %s", seconds, path)
	}
	return seconds, nil
}

// SplitRange extracts [start, start+duration) into outPath as a lossless
// stream copy - no re-encode, so cuts are fast and bit-exact.
func (p *FFmpegProbe) SplitRange(ctx context.Context, path string, start, duration float64, outPath string) error {
	// ffmpeg -y -i input -ss start -t duration -c copy output
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-i", path,
		"-ss", formatSeconds(start),
		"-t", formatSeconds(duration),
		"-c", "copy",
		outPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg split failed for %s [%s+%s]: %w (%s)",
			path, formatSeconds(start), formatSeconds(duration), err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

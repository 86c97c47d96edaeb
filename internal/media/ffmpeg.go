package media

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"vidup/internal/vidup"
)

// FFmpeg wraps the ffprobe and ffmpeg binaries.
type FFmpeg struct {
	ffmpeg   string
	ffprobe  string
	run      runFunc
	logger   vidup.Logger
	maxParts int
}

// NewFFmpeg locates ffmpeg and ffprobe on PATH.
func NewFFmpeg(logger vidup.Logger) (*FFmpeg, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}
	return newFFmpeg(ffmpegPath, ffprobePath, runCommand, logger), nil
}

func newFFmpeg(ffmpegPath, ffprobePath string, run runFunc, logger vidup.Logger) *FFmpeg {
	if logger == nil {
		logger = vidup.NewNopLogger()
	}
	return &FFmpeg{
		ffmpeg:   ffmpegPath,
		ffprobe:  ffprobePath,
		run:      run,
		logger:   logger,
		maxParts: MaxParts,
	}
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		Duration string `json:"duration"`
	} `json:"streams"`
}

// Probe returns the duration of a media file. The container duration is
// preferred; the first video stream's duration is the fallback.
func (f *FFmpeg) Probe(ctx context.Context, path string) (time.Duration, error) {
	out, err := f.run(ctx, f.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration:stream=duration",
		"-select_streams", "v:0",
		"-of", "json",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("probing %s: %w", path, err)
	}

	var probe probeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return 0, fmt.Errorf("parsing ffprobe output for %s: %w", path, err)
	}

	raw := probe.Format.Duration
	if raw == "" || raw == "N/A" {
		raw = ""
		for _, s := range probe.Streams {
			if s.Duration != "" && s.Duration != "N/A" {
				raw = s.Duration
				break
			}
		}
	}
	if raw == "" {
		return 0, fmt.Errorf("no duration reported for %s", path)
	}

	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing duration %q for %s: %w", raw, path, err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

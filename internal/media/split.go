package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"vidup/internal/vidup"
)

const (
	// SafetyFactor is the share of the size cap each part aims for, leaving
	// room for bitrate spikes.
	SafetyFactor = 0.95
	// MinSegmentSeconds is the shortest part the splitter will cut.
	MinSegmentSeconds = 1.0
	// MaxParts stops runaway splits when durations are misreported.
	MaxParts = 1000
	// EndToleranceSeconds is how far short of the probed duration a split
	// may stop when ffmpeg has nothing more to write.
	EndToleranceSeconds = 2.0
)

// PartSuffix marks split parts in file names so scans ignore them.
const PartSuffix = ".vidup-part-"

// PartName returns the name of part n (1-based) of src:
// movie.mkv -> movie.vidup-part-001.mkv
func PartName(src string, n int) string {
	base := filepath.Base(src)
	ext := filepath.Ext(base)
	return fmt.Sprintf("%s%s%03d%s", strings.TrimSuffix(base, ext), PartSuffix, n, ext)
}

// Split cuts a video into parts of at most maxPartSize bytes without
// re-encoding. Cut points are estimated from the average bitrate; each next
// part starts where the previous one actually ended. On failure every part
// written so far is removed.
func (f *FFmpeg) Split(ctx context.Context, path string, maxPartSize int64, outDir string) ([]string, error) {
	if maxPartSize <= 0 {
		return nil, fmt.Errorf("invalid part size %d", maxPartSize)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	total, err := f.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	totalSec := total.Seconds()
	if totalSec <= 0 {
		return nil, fmt.Errorf("%s reports a duration of %s", path, total)
	}

	bytesPerSec := float64(info.Size()) / totalSec
	if bytesPerSec <= 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}
	segment := math.Max(float64(maxPartSize)*SafetyFactor/bytesPerSec, MinSegmentSeconds)

	f.logger.Debug("splitting video", "path", path, "duration", total,
		"size", humanize.Bytes(uint64(info.Size())), "segment_seconds", segment)

	var parts []string
	fail := func(err error) ([]string, error) {
		removeAll(parts)
		return nil, err
	}

	for start := 0.0; start < totalSec; {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		if len(parts) >= f.maxParts {
			return fail(fmt.Errorf("splitting %s: more than %d parts", path, f.maxParts))
		}

		n := len(parts) + 1
		dur := math.Min(segment, totalSec-start)
		part := filepath.Join(outDir, PartName(path, n))

		if _, err := f.run(ctx, f.ffmpeg, f.cutArgs(path, part, start, dur)...); err != nil {
			os.Remove(part)
			return fail(fmt.Errorf("cutting part %d at %.3fs: %w", n, start, err))
		}

		remaining := totalSec - start
		partInfo, err := os.Stat(part)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fail(fmt.Errorf("stat part %d: %w", n, err))
		}
		if err != nil || partInfo.Size() == 0 {
			os.Remove(part)
			if remaining > EndToleranceSeconds {
				return fail(fmt.Errorf("cutting part %d at %.3fs: ffmpeg wrote no output with %.1fs left", n, start, remaining))
			}
			f.logger.Debug("ffmpeg wrote no output at end of video", "part", n, "remaining_seconds", remaining)
			break
		}

		actual, err := f.Probe(ctx, part)
		if err != nil {
			os.Remove(part)
			return fail(fmt.Errorf("probing part %d: %w", n, err))
		}
		parts = append(parts, part)
		if actual <= 0 {
			if remaining > EndToleranceSeconds {
				return fail(fmt.Errorf("part %d at %.3fs reports no duration with %.1fs left", n, start, remaining))
			}
			f.logger.Warn("last part reports no duration", "part", n)
			break
		}
		if partInfo.Size() > maxPartSize {
			f.logger.Warn("part exceeds size limit, bitrate is uneven", "part", n,
				"size", humanize.Bytes(uint64(partInfo.Size())), "limit", humanize.Bytes(uint64(maxPartSize)))
		}

		start += actual.Seconds()
	}

	if len(parts) == 0 {
		return nil, fmt.Errorf("splitting %s produced no parts", path)
	}
	f.logger.Info("video split", "path", path, "parts", len(parts))
	return parts, nil
}

// cutArgs seeks before -i for speed and copies every stream.
func (f *FFmpeg) cutArgs(src, dst string, start, dur float64) []string {
	args := []string{
		"-v", "error",
		"-y",
		"-ss", strconv.FormatFloat(start, 'f', 3, 64),
		"-i", src,
		"-t", strconv.FormatFloat(dur, 'f', 3, 64),
		"-c", "copy",
		"-map", "0",
		"-avoid_negative_ts", "make_non_negative",
	}
	switch strings.ToLower(filepath.Ext(dst)) {
	case ".mp4", ".m4v", ".mov":
		args = append(args, "-movflags", "+faststart")
	}
	return append(args, dst)
}

func removeAll(paths []string) {
	for _, p := range paths {
		os.Remove(p)
	}
}

var _ vidup.Splitter = (*FFmpeg)(nil)

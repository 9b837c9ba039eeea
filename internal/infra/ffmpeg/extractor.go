package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kickai/cv-processing-service/internal/domain/entity"
	"github.com/kickai/cv-processing-service/internal/domain/errs"
	"github.com/kickai/cv-processing-service/internal/domain/port"
	"go.uber.org/zap"
)

type Extractor struct {
	fps    int
	format string
	logger *zap.Logger
}

func NewExtractor(fps int, format string, logger *zap.Logger) *Extractor {
	return &Extractor{fps: fps, format: format, logger: logger}
}

// Open decodes the video into per-frame images under workDir and returns a
// single-pass source over them. Decode failures surface as decode errors;
// they are caller-visible and never retried.
func (e *Extractor) Open(ctx context.Context, videoPath string, workDir string) (port.FrameSource, error) {
	duration, err := e.probeDuration(ctx, videoPath)
	if err != nil {
		e.logger.Warn("could not probe video duration", zap.Error(err))
	}

	framesDir := filepath.Join(workDir, "frames")
	if err := os.MkdirAll(framesDir, 0755); err != nil {
		return nil, fmt.Errorf("create frames dir: %w", err)
	}

	framePattern := filepath.Join(framesDir, fmt.Sprintf("frame_%%06d.%s", e.format))
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", videoPath,
		"-vf", fmt.Sprintf("fps=%d", e.fps),
		"-y",
		framePattern,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, errs.Decode("ffmpeg failed to decode video",
			fmt.Errorf("%w, output: %s", err, string(output)))
	}

	paths, err := filepath.Glob(filepath.Join(framesDir, fmt.Sprintf("*.%s", e.format)))
	if err != nil {
		return nil, fmt.Errorf("glob frames: %w", err)
	}
	if len(paths) == 0 {
		return nil, errs.Decode("no frames decoded from video", nil)
	}
	// Zero-padded names, so lexical order is frame order.
	sort.Strings(paths)

	e.logger.Info("video decoded",
		zap.Int("frame_count", len(paths)),
		zap.Float64("video_duration", duration),
	)

	return &frameSource{
		paths:    paths,
		dir:      framesDir,
		fps:      e.fps,
		duration: duration,
	}, nil
}

func (e *Extractor) probeDuration(ctx context.Context, videoPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	return duration, nil
}

// frameSource reads extracted frame files lazily, one per Next call. Single
// pass: exhausted or closed sources never restart.
type frameSource struct {
	paths    []string
	dir      string
	fps      int
	duration float64
	pos      int
	closed   bool
}

func (s *frameSource) Next(ctx context.Context) (entity.Frame, bool, error) {
	if err := ctx.Err(); err != nil {
		return entity.Frame{}, false, err
	}
	if s.closed || s.pos >= len(s.paths) {
		return entity.Frame{}, false, nil
	}

	data, err := os.ReadFile(s.paths[s.pos])
	if err != nil {
		return entity.Frame{}, false, errs.Decode("read extracted frame", err)
	}

	frame := entity.Frame{
		Index:     s.pos,
		Timestamp: float64(s.pos) / float64(s.fps),
		Image:     data,
	}
	s.pos++
	return frame, true, nil
}

func (s *frameSource) Duration() float64 { return s.duration }

// Close releases the extracted intermediates. Safe to call on any exit
// path, including abort.
func (s *frameSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return os.RemoveAll(s.dir)
}

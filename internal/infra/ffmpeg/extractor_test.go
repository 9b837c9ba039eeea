package ffmpeg

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/kickai/cv-processing-service/internal/domain/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func requireFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
}

// synthesizeVideo renders a short test pattern clip so the suite does not
// depend on checked-in media.
func synthesizeVideo(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "test.mp4")
	cmd := exec.Command("ffmpeg",
		"-f", "lavfi",
		"-i", "testsrc=duration=1:size=320x240:rate=10",
		"-pix_fmt", "yuv420p",
		"-y", path,
	)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "ffmpeg synthesis failed: %s", out)
	return path
}

func TestOpenExtractsOrderedFrames(t *testing.T) {
	requireFFmpeg(t)

	dir := t.TempDir()
	videoPath := synthesizeVideo(t, dir)

	ex := NewExtractor(10, "png", zap.NewNop())
	src, err := ex.Open(context.Background(), videoPath, dir)
	require.NoError(t, err)
	defer src.Close()

	count := 0
	for {
		frame, ok, err := src.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		assert.Equal(t, count, frame.Index)
		assert.InDelta(t, float64(count)/10.0, frame.Timestamp, 1e-9)
		assert.NotEmpty(t, frame.Image)
		count++
	}
	// 1 second at 10 fps.
	assert.InDelta(t, 10, count, 2)
	assert.InDelta(t, 1.0, src.Duration(), 0.2)
}

func TestOpenGarbageInputIsDecodeError(t *testing.T) {
	requireFFmpeg(t)

	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.mp4")
	require.NoError(t, os.WriteFile(garbage, []byte("this is not a video"), 0644))

	ex := NewExtractor(10, "png", zap.NewNop())
	_, err := ex.Open(context.Background(), garbage, dir)
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindDecode, kind)
}

func TestCloseRemovesExtractedFrames(t *testing.T) {
	requireFFmpeg(t)

	dir := t.TempDir()
	videoPath := synthesizeVideo(t, dir)

	ex := NewExtractor(10, "png", zap.NewNop())
	src, err := ex.Open(context.Background(), videoPath, dir)
	require.NoError(t, err)
	require.NoError(t, src.Close())

	_, err = os.Stat(filepath.Join(dir, "frames"))
	assert.True(t, os.IsNotExist(err))

	// Closed sources never restart.
	_, ok, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNextHonorsCancellation(t *testing.T) {
	src := &frameSource{paths: []string{"frame_000001.png"}, fps: 10}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := src.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

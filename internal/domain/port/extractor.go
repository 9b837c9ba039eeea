package port

import (
	"context"

	"github.com/kickai/cv-processing-service/internal/domain/entity"
)

// FrameSource is a single-pass, ordered stream of decoded frames. It is not
// restartable: once Next returns ok=false the source is exhausted. Close
// releases the decoder and any extracted intermediates on every exit path.
type FrameSource interface {
	// Next yields the next frame in decode order. ok is false when the
	// stream is exhausted; err is non-nil on decode failure or cancellation.
	Next(ctx context.Context) (frame entity.Frame, ok bool, err error)

	// Duration is the source video length in seconds, 0 if unknown.
	Duration() float64

	Close() error
}

type FrameExtractor interface {
	// Open decodes the video at videoPath into a frame source, using workDir
	// for intermediates. Fails with a decode error on corrupt or unsupported
	// input.
	Open(ctx context.Context, videoPath string, workDir string) (FrameSource, error)
}

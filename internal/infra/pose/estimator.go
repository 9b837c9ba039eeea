// Package pose runs skeleton inference through an OpenCV DNN pose model
// (COCO-17 heatmap output).
package pose

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"github.com/kickai/cv-processing-service/internal/domain/entity"
	"github.com/kickai/cv-processing-service/internal/domain/errs"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// DNNEstimator wraps a gocv network producing per-keypoint heatmaps. The
// network forward pass is deterministic for identical input bytes and
// model, which the whole pipeline's reproducibility rests on.
type DNNEstimator struct {
	mu        sync.Mutex // gocv.Net is not safe for concurrent Forward
	net       gocv.Net
	inputSize int
	minScore  float64
	version   string
	logger    *zap.Logger
}

func NewDNNEstimator(modelPath string, inputSize int, minScore float64, logger *zap.Logger) (*DNNEstimator, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("pose model not found: %w", err)
	}

	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("failed to load pose network from %s", modelPath)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		return nil, fmt.Errorf("set dnn backend: %w", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		return nil, fmt.Errorf("set dnn target: %w", err)
	}

	logger.Info("pose network loaded",
		zap.String("model", filepath.Base(modelPath)),
		zap.Int("input_size", inputSize),
	)

	return &DNNEstimator{
		net:       net,
		inputSize: inputSize,
		minScore:  minScore,
		version:   filepath.Base(modelPath),
		logger:    logger,
	}, nil
}

func (e *DNNEstimator) ModelVersion() string { return e.version }

func (e *DNNEstimator) Close() error { return e.net.Close() }

func (e *DNNEstimator) EstimatePoses(ctx context.Context, frame entity.Frame, scale float64) ([]entity.PoseEstimate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if scale <= 0 || scale > 1 {
		scale = 1
	}

	mat, err := gocv.IMDecode(frame.Image, gocv.IMReadColor)
	if err != nil {
		return nil, errs.Decode("decode frame image", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, errs.Decode("empty frame image", nil)
	}

	side := int(float64(e.inputSize) * scale)
	if side < 32 {
		return nil, errs.Inference(fmt.Sprintf("unsupported inference resolution %d", side), nil)
	}

	heat, hh, hw, err := e.forward(mat, side)
	if err != nil {
		return nil, err
	}

	kps := decodeHeatmaps(heat, hh, hw, mat.Cols(), mat.Rows())
	if !plausibleSkeleton(kps, e.minScore) {
		// No person in frame.
		e.logger.Debug("no plausible skeleton", zap.Int("frame_index", frame.Index))
		return nil, nil
	}

	return []entity.PoseEstimate{{
		FrameIndex: frame.Index,
		Keypoints:  kps,
	}}, nil
}

// forward runs the network and returns the flattened heatmap volume plus
// its spatial dimensions.
func (e *DNNEstimator) forward(mat gocv.Mat, side int) ([]float32, int, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(side, side),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	e.net.SetInput(blob, "")
	out := e.net.Forward("")
	defer out.Close()

	sz := out.Size()
	if len(sz) != 4 || sz[1] < entity.SkeletonSize {
		return nil, 0, 0, errs.Inference(
			fmt.Sprintf("unexpected model output shape %v", sz), nil)
	}

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, 0, 0, errs.Inference("read model output", err)
	}

	hh, hw := sz[2], sz[3]
	heat := make([]float32, entity.SkeletonSize*hh*hw)
	copy(heat, data[:len(heat)])
	return heat, hh, hw, nil
}

// decodeHeatmaps takes the argmax of each keypoint's heatmap plane and maps
// it back to frame pixel coordinates.
func decodeHeatmaps(heat []float32, hh, hw, frameW, frameH int) []entity.Keypoint {
	kps := make([]entity.Keypoint, entity.SkeletonSize)
	plane := hh * hw
	for k := 0; k < entity.SkeletonSize; k++ {
		bestIdx := 0
		bestVal := float32(-1)
		for i := 0; i < plane; i++ {
			if v := heat[k*plane+i]; v > bestVal {
				bestVal = v
				bestIdx = i
			}
		}
		y := bestIdx / hw
		x := bestIdx % hw
		kps[k] = entity.Keypoint{
			X:          (float64(x) + 0.5) / float64(hw) * float64(frameW),
			Y:          (float64(y) + 0.5) / float64(hh) * float64(frameH),
			Confidence: float64(bestVal),
		}
	}
	return kps
}

// plausibleSkeleton requires a minimum number of confident keypoints before
// the frame is considered to contain a person at all.
func plausibleSkeleton(kps []entity.Keypoint, minScore float64) bool {
	confident := 0
	for _, kp := range kps {
		if kp.Confidence >= minScore {
			confident++
		}
	}
	return confident >= 5
}

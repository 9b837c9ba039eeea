package port

import (
	"context"

	"github.com/kickai/cv-processing-service/internal/domain/entity"
)

type PoseEstimator interface {
	// EstimatePoses returns zero or more skeletons for the frame, each with
	// exactly entity.SkeletonSize keypoints. scale in (0,1] requests
	// inference at reduced input resolution; 1 is native. Deterministic for
	// identical frame bytes, scale, and model version. Fails with an
	// inference error when the model cannot process the frame.
	EstimatePoses(ctx context.Context, frame entity.Frame, scale float64) ([]entity.PoseEstimate, error)

	// ModelVersion identifies the loaded model for reproducibility.
	ModelVersion() string
}

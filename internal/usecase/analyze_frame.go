package usecase

import (
	"context"
	"fmt"

	"github.com/kickai/cv-processing-service/internal/analysis"
	"github.com/kickai/cv-processing-service/internal/domain/entity"
	"github.com/kickai/cv-processing-service/internal/domain/errs"
	"github.com/kickai/cv-processing-service/internal/domain/port"
	"github.com/kickai/cv-processing-service/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// AnalyzeFrameUseCase serves the single-frame endpoint: pose estimation and
// strike classification with an effective window of size 1. Velocity-based
// detection needs at least two poses, so a lone frame yields estimates and,
// almost always, no events.
type AnalyzeFrameUseCase struct {
	estimator  port.PoseEstimator
	classifier analysis.Config
	tracker    struct {
		maxJump float64
		maxGap  int
	}
	logger *zap.Logger
}

func NewAnalyzeFrameUseCase(estimator port.PoseEstimator, classifierCfg analysis.Config, trackerMaxJump float64, trackerMaxGap int, logger *zap.Logger) *AnalyzeFrameUseCase {
	classifierCfg.WindowSize = 1
	uc := &AnalyzeFrameUseCase{
		estimator:  estimator,
		classifier: classifierCfg,
		logger:     logger,
	}
	uc.tracker.maxJump = trackerMaxJump
	uc.tracker.maxGap = trackerMaxGap
	return uc
}

func (uc *AnalyzeFrameUseCase) Execute(ctx context.Context, image []byte) ([]entity.PoseEstimate, []entity.StrikeEvent, error) {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "AnalyzeFrameUseCase.Execute")
	defer span.End()

	frame := entity.Frame{Index: 0, Timestamp: 0, Image: image}

	poses, err := uc.estimator.EstimatePoses(ctx, frame, 1)
	if err != nil {
		if kind, ok := errs.KindOf(err); ok && kind == errs.KindInference {
			metrics.InferenceRetriesTotal.Inc()
			uc.logger.Warn("inference failed, retrying at reduced resolution", zap.Error(err))
			poses, err = uc.estimator.EstimatePoses(ctx, frame, reducedScale)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("analyze frame: %w", err)
		}
	}

	metrics.FramesProcessedTotal.Inc()
	metrics.PosesEstimatedTotal.Add(float64(len(poses)))

	tracker := analysis.NewTracker(uc.tracker.maxJump, uc.tracker.maxGap)
	classifier := analysis.NewClassifier(uc.classifier)
	poses = tracker.Assign(0, poses)

	var events []entity.StrikeEvent
	for _, pose := range poses {
		uc.logger.Debug("pose estimated",
			zap.Int("person_id", pose.PersonID),
			zap.Float64("mean_confidence", pose.MeanConfidence()))
		if ev, ok := classifier.Observe(pose, 0); ok {
			events = append(events, ev)
		}
	}
	events = append(events, classifier.Flush()...)

	for _, ev := range events {
		metrics.StrikesDetectedTotal.WithLabelValues(string(ev.StrikeType)).Inc()
	}

	return poses, events, nil
}

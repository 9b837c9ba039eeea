package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/kickai/cv-processing-service/internal/analysis"
	"github.com/kickai/cv-processing-service/internal/domain/entity"
	"github.com/kickai/cv-processing-service/internal/domain/errs"
	"github.com/kickai/cv-processing-service/internal/domain/port"
	"github.com/kickai/cv-processing-service/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// reducedScale is the inference resolution used for the single retry after
// an inference error.
const reducedScale = 0.5

type AnalyzeVideoUseCase struct {
	repo      port.JobRepository
	reports   port.ReportRepository
	storage   port.VideoStorage
	extractor port.FrameExtractor
	estimator port.PoseEstimator
	publisher port.StatusPublisher
	dlq       port.DLQPublisher
	notifier  port.FailureNotifier
	logger    *zap.Logger
	cfg       AnalyzeVideoConfig
}

type AnalyzeVideoConfig struct {
	TempDir          string
	MaxRetries       int
	InferenceWorkers int
	FrameTimeout     time.Duration
	VideoTimeout     time.Duration
	Classifier       analysis.Config
	TrackerMaxJump   float64
	TrackerMaxGap    int
}

func NewAnalyzeVideoUseCase(
	repo port.JobRepository,
	reports port.ReportRepository,
	storage port.VideoStorage,
	extractor port.FrameExtractor,
	estimator port.PoseEstimator,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg AnalyzeVideoConfig,
) *AnalyzeVideoUseCase {
	if cfg.InferenceWorkers < 1 {
		cfg.InferenceWorkers = 1
	}
	return &AnalyzeVideoUseCase{
		repo:      repo,
		reports:   reports,
		storage:   storage,
		extractor: extractor,
		estimator: estimator,
		publisher: publisher,
		dlq:       dlq,
		notifier:  notifier,
		logger:    logger,
		cfg:       cfg,
	}
}

// Execute is the queue entry point: one analysis.requests message in, a
// persisted report (or a DLQ'd message) out.
func (uc *AnalyzeVideoUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "AnalyzeVideoUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	var msg entity.AnalysisRequestMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.video_id", msg.VideoID),
	)

	log := uc.logger.With(zap.String("job_id", msg.JobID.String()), zap.String("video_id", msg.VideoID))

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	if err != nil {
		job = entity.NewAnalysisJob(msg.UserID, msg.VideoID, msg.VideoKey, msg.FileSize, uc.cfg.MaxRetries)
		job.ID = msg.JobID
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("failed to create job record", zap.Error(err))
			return fmt.Errorf("create job: %w", err)
		}
	}

	if !job.CanRetry() {
		log.Warn("job exhausted retries, sending to DLQ")
		_ = uc.handlePermanentFailure(ctx, job, msg, rawMsg, "max retries exceeded")
		return nil
	}

	job.MarkProcessing()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to PROCESSING", zap.Error(err))
		return fmt.Errorf("update job: %w", err)
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	if err := uc.runJob(ctx, job, msg, rawMsg, log); err != nil {
		return err
	}

	metrics.JobsProcessedTotal.WithLabelValues("completed").Inc()
	metrics.PipelineStageDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())

	return nil
}

func (uc *AnalyzeVideoUseCase) runJob(
	ctx context.Context,
	job *entity.AnalysisJob,
	msg entity.AnalysisRequestMessage,
	rawMsg []byte,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")

	workDir := filepath.Join(uc.cfg.TempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	dlStart := time.Now()
	dlCtx, spanDl := tracer.Start(ctx, "download_video")
	videoPath := filepath.Join(workDir, "input.mp4")
	err := uc.storage.DownloadVideo(dlCtx, msg.VideoKey, videoPath)
	spanDl.End()
	if err != nil {
		log.Error("failed to download video", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "download_video: "+err.Error(), log)
	}
	metrics.PipelineStageDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	report, duration, err := uc.Analyze(ctx, msg.VideoID, videoPath, workDir)
	if err != nil {
		log.Error("analysis pipeline failed", zap.Error(err))
		return uc.handlePipelineFailure(ctx, job, msg, rawMsg, err, log)
	}

	if err := uc.persistReport(ctx, job, report, duration, log); err != nil {
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "persist_report: "+err.Error(), log)
	}

	uc.publishStatus(ctx, job, log)

	log.Info("job completed",
		zap.Int("frame_count", report.TotalFramesProcessed),
		zap.Int("strike_count", len(report.Events)),
		zap.Float64("duration_secs", duration),
		zap.String("report_key", job.ReportKey),
	)

	return nil
}

// Analyze runs the full detection pipeline against a local video file:
// decode to frames, parallel pose inference reassembled in frame order,
// sequential per-person strike classification, aggregation. Shared by the
// queue worker and the synchronous upload endpoint.
func (uc *AnalyzeVideoUseCase) Analyze(ctx context.Context, videoID, videoPath, workDir string) (entity.AnalysisReport, float64, error) {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "AnalyzeVideoUseCase.Analyze")
	defer span.End()
	span.SetAttributes(attribute.String("video.id", videoID))

	if uc.cfg.VideoTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.cfg.VideoTimeout)
		defer cancel()
	}

	exStart := time.Now()
	exCtx, spanEx := tracer.Start(ctx, "extract_frames")
	src, err := uc.extractor.Open(exCtx, videoPath, workDir)
	spanEx.End()
	if err != nil {
		return entity.AnalysisReport{}, 0, err
	}
	defer src.Close()
	metrics.PipelineStageDuration.WithLabelValues("extract").Observe(time.Since(exStart).Seconds())

	infStart := time.Now()
	infCtx, spanInf := tracer.Start(ctx, "detect_strikes")
	frames, events, err := uc.runDetection(infCtx, src)
	spanInf.End()
	if err != nil {
		return entity.AnalysisReport{}, 0, err
	}
	metrics.PipelineStageDuration.WithLabelValues("detect").Observe(time.Since(infStart).Seconds())

	aggStart := time.Now()
	report, err := analysis.BuildReport(videoID, uc.estimator.ModelVersion(), events, frames)
	if err != nil {
		return entity.AnalysisReport{}, 0, err
	}
	metrics.PipelineStageDuration.WithLabelValues("aggregate").Observe(time.Since(aggStart).Seconds())

	for _, ev := range report.Events {
		metrics.StrikesDetectedTotal.WithLabelValues(string(ev.StrikeType)).Inc()
	}

	return report, src.Duration(), nil
}

// runDetection fans frames out to the inference pool and feeds the results,
// restored to frame order, through the sequential classifier. The frame
// count it returns is exactly the number of frames the source yielded.
func (uc *AnalyzeVideoUseCase) runDetection(ctx context.Context, src port.FrameSource) (int, []entity.StrikeEvent, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frameCh := make(chan entity.Frame)
	poseCh := make(chan analysis.FramePoses)
	errCh := make(chan error, uc.cfg.InferenceWorkers+1)

	var prodWG sync.WaitGroup
	prodWG.Add(1)
	go func() {
		defer prodWG.Done()
		defer close(frameCh)
		for {
			frame, ok, err := src.Next(ctx)
			if err != nil {
				errCh <- err
				cancel()
				return
			}
			if !ok {
				return
			}
			select {
			case frameCh <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()

	var infWG sync.WaitGroup
	for i := 0; i < uc.cfg.InferenceWorkers; i++ {
		infWG.Add(1)
		go func() {
			defer infWG.Done()
			for frame := range frameCh {
				poses, err := uc.estimateWithRetry(ctx, frame)
				if err != nil {
					if ctx.Err() == nil {
						errCh <- err
					}
					cancel()
					return
				}
				metrics.FramesProcessedTotal.Inc()
				metrics.PosesEstimatedTotal.Add(float64(len(poses)))
				select {
				case poseCh <- analysis.FramePoses{Index: frame.Index, Timestamp: frame.Timestamp, Poses: poses}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		infWG.Wait()
		close(poseCh)
	}()

	// Classification is inherently sequential per person; only this
	// goroutine touches the tracker and classifier.
	tracker := analysis.NewTracker(uc.cfg.TrackerMaxJump, uc.cfg.TrackerMaxGap)
	classifier := analysis.NewClassifier(uc.cfg.Classifier)
	buffer := analysis.NewReorderBuffer(0)
	frames := 0
	var events []entity.StrikeEvent

	for fp := range poseCh {
		for _, ready := range buffer.Add(fp) {
			frames++
			poses := tracker.Assign(ready.Index, ready.Poses)
			for _, pose := range poses {
				if ev, ok := classifier.Observe(pose, ready.Timestamp); ok {
					events = append(events, ev)
				}
			}
		}
	}
	prodWG.Wait()

	select {
	case err := <-errCh:
		return 0, nil, err
	default:
	}
	if err := ctx.Err(); err != nil {
		// Timeout or caller abort: no partial report.
		return 0, nil, err
	}

	events = append(events, classifier.Flush()...)
	return frames, events, nil
}

// estimateWithRetry bounds each inference call with the per-frame timeout
// and retries an inference failure exactly once at reduced resolution.
func (uc *AnalyzeVideoUseCase) estimateWithRetry(ctx context.Context, frame entity.Frame) ([]entity.PoseEstimate, error) {
	poses, err := uc.estimateOnce(ctx, frame, 1)
	if err == nil {
		return poses, nil
	}
	if kind, ok := errs.KindOf(err); !ok || kind != errs.KindInference {
		return nil, err
	}

	metrics.InferenceRetriesTotal.Inc()
	uc.logger.Warn("inference failed, retrying at reduced resolution",
		zap.Int("frame_index", frame.Index), zap.Error(err))

	poses, retryErr := uc.estimateOnce(ctx, frame, reducedScale)
	if retryErr != nil {
		return nil, fmt.Errorf("inference retry at reduced resolution: %w", retryErr)
	}
	return poses, nil
}

func (uc *AnalyzeVideoUseCase) estimateOnce(ctx context.Context, frame entity.Frame, scale float64) ([]entity.PoseEstimate, error) {
	if uc.cfg.FrameTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.cfg.FrameTimeout)
		defer cancel()
	}
	return uc.estimator.EstimatePoses(ctx, frame, scale)
}

func (uc *AnalyzeVideoUseCase) persistReport(
	ctx context.Context,
	job *entity.AnalysisJob,
	report entity.AnalysisReport,
	duration float64,
	log *zap.Logger,
) error {
	if err := uc.reports.Save(ctx, job.ID, report); err != nil {
		log.Error("failed to save report", zap.Error(err))
		return fmt.Errorf("save report: %w", err)
	}

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	reportKey := fmt.Sprintf("%s/report_%s.json", job.UserID, job.ID.String())
	if err := uc.storage.UploadReport(ctx, reportKey, bytes.NewReader(data), int64(len(data))); err != nil {
		log.Error("failed to upload report", zap.Error(err))
		return fmt.Errorf("upload report: %w", err)
	}

	job.MarkCompleted(reportKey, report, duration)
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to COMPLETED", zap.Error(err))
		return fmt.Errorf("update job completed: %w", err)
	}
	return nil
}

// handlePipelineFailure routes taxonomy kinds: decode and aggregation
// failures are permanent (bad media, internal invariant), inference and
// infrastructure failures go through the retry ladder.
func (uc *AnalyzeVideoUseCase) handlePipelineFailure(
	ctx context.Context,
	job *entity.AnalysisJob,
	msg entity.AnalysisRequestMessage,
	rawMsg []byte,
	cause error,
	log *zap.Logger,
) error {
	if kind, ok := errs.KindOf(cause); ok && (kind == errs.KindDecode || kind == errs.KindAggregation) {
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, cause.Error())
	}
	return uc.handleRetryableFailure(ctx, job, msg, rawMsg, cause.Error(), log)
}

func (uc *AnalyzeVideoUseCase) handleRetryableFailure(
	ctx context.Context,
	job *entity.AnalysisJob,
	msg entity.AnalysisRequestMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	if !job.CanRetry() {
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, errMsg)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(job.Attempt)).Inc()
	uc.publishStatus(ctx, job, log)

	return fmt.Errorf("retryable failure (attempt %d/%d): %s", job.Attempt, job.MaxAttempts, errMsg)
}

func (uc *AnalyzeVideoUseCase) handlePermanentFailure(
	ctx context.Context,
	job *entity.AnalysisJob,
	msg entity.AnalysisRequestMessage,
	rawMsg []byte,
	errMsg string,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg)

	uc.publishStatus(ctx, job, uc.logger)

	metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()

	if msg.UserEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, msg.UserEmail, job.ID.String(), msg.VideoID, errMsg)
	}

	return nil
}

func (uc *AnalyzeVideoUseCase) publishStatus(ctx context.Context, job *entity.AnalysisJob, log *zap.Logger) {
	statusMsg := entity.AnalysisStatusMessage{
		JobID:        job.ID,
		UserID:       job.UserID,
		Status:       job.Status,
		VideoID:      job.VideoID,
		VideoKey:     job.VideoKey,
		ReportKey:    job.ReportKey,
		FrameCount:   job.FrameCount,
		StrikeCount:  job.StrikeCount,
		Duration:     job.VideoDuration,
		ErrorMessage: job.ErrorMessage,
		Attempt:      job.Attempt,
		MaxAttempts:  job.MaxAttempts,
	}
	data, _ := json.Marshal(statusMsg)
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}

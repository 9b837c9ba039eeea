package usecase

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kickai/cv-processing-service/internal/domain/entity"
	"github.com/kickai/cv-processing-service/internal/infra/metrics"
	"go.uber.org/zap"
)

// ProcessUpload is the synchronous entry point behind the upload endpoint:
// the video payload is archived to object storage, tracked as a job, run
// through the pipeline, and the finished report both persisted and returned
// to the caller. On failure the caller gets the error, never a partial
// report.
func (uc *AnalyzeVideoUseCase) ProcessUpload(ctx context.Context, userID, videoID string, video io.Reader, size int64) (entity.AnalysisReport, error) {
	job := entity.NewAnalysisJob(userID, videoID, fmt.Sprintf("%s/%s.mp4", userID, videoID), size, 1)
	log := uc.logger.With(zap.String("job_id", job.ID.String()), zap.String("video_id", videoID))

	workDir := filepath.Join(uc.cfg.TempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return entity.AnalysisReport{}, fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	videoPath := filepath.Join(workDir, "input.mp4")
	if err := spoolUpload(videoPath, video); err != nil {
		return entity.AnalysisReport{}, fmt.Errorf("spool upload: %w", err)
	}

	archive, err := os.Open(videoPath)
	if err != nil {
		return entity.AnalysisReport{}, fmt.Errorf("open spooled upload: %w", err)
	}
	err = uc.storage.UploadVideo(ctx, job.VideoKey, archive, size, "video/mp4")
	archive.Close()
	if err != nil {
		return entity.AnalysisReport{}, fmt.Errorf("archive video: %w", err)
	}

	if err := uc.repo.Create(ctx, job); err != nil {
		return entity.AnalysisReport{}, fmt.Errorf("create job: %w", err)
	}
	job.MarkProcessing()
	if err := uc.repo.Update(ctx, job); err != nil {
		return entity.AnalysisReport{}, fmt.Errorf("update job: %w", err)
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	report, duration, err := uc.Analyze(ctx, videoID, videoPath, workDir)
	if err != nil {
		job.MarkFailed(err.Error())
		_ = uc.repo.Update(ctx, job)
		uc.publishStatus(ctx, job, log)
		metrics.JobsProcessedTotal.WithLabelValues("failed").Inc()
		return entity.AnalysisReport{}, err
	}

	if err := uc.persistReport(ctx, job, report, duration, log); err != nil {
		job.MarkFailed(err.Error())
		_ = uc.repo.Update(ctx, job)
		uc.publishStatus(ctx, job, log)
		metrics.JobsProcessedTotal.WithLabelValues("failed").Inc()
		return entity.AnalysisReport{}, err
	}
	uc.publishStatus(ctx, job, log)
	metrics.JobsProcessedTotal.WithLabelValues("completed").Inc()

	log.Info("upload analyzed",
		zap.Int("frame_count", report.TotalFramesProcessed),
		zap.Int("strike_count", len(report.Events)),
	)

	return report, nil
}

func spoolUpload(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

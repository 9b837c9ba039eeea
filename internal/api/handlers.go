package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/kickai/cv-processing-service/internal/domain/entity"
	"github.com/kickai/cv-processing-service/internal/domain/errs"
	"github.com/kickai/cv-processing-service/internal/domain/port"
	"go.uber.org/zap"
)

const (
	serviceName    = "KickAI Judge Computer Vision"
	serviceVersion = "1.0.0"

	maxUploadBytes = 512 << 20 // 512 MiB
	maxImageBytes  = 32 << 20  // 32 MiB
)

// VideoProcessor runs the full pipeline against an uploaded payload.
type VideoProcessor interface {
	ProcessUpload(ctx context.Context, userID, videoID string, video io.Reader, size int64) (entity.AnalysisReport, error)
}

// FrameAnalyzer runs single-frame pose estimation and classification.
type FrameAnalyzer interface {
	Execute(ctx context.Context, image []byte) ([]entity.PoseEstimate, []entity.StrikeEvent, error)
}

type Handlers struct {
	video   VideoProcessor
	frames  FrameAnalyzer
	jobs    port.JobRepository
	reports port.ReportRepository
	logger  *zap.Logger
}

func NewHandlers(video VideoProcessor, frames FrameAnalyzer, jobs port.JobRepository, reports port.ReportRepository, logger *zap.Logger) *Handlers {
	return &Handlers{video: video, frames: frames, jobs: jobs, reports: reports, logger: logger}
}

func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": serviceName,
		"version": serviceVersion,
		"status":  "running",
		"endpoints": map[string]string{
			"health":        "/health",
			"process_video": "/api/v1/process-video",
			"analyze_frame": "/api/v1/analyze-frame",
			"jobs":          "/api/v1/jobs/{id}",
			"events":        "/api/v1/events/ws",
		},
	})
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"service":   "cv-service",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ProcessVideo accepts a multipart upload ("video" file plus optional
// "video_id" and "user_id" fields) and responds with the complete analysis
// report, or a structured error and no report at all.
func (h *Handlers) ProcessVideo(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid multipart payload: "+err.Error())
		return
	}

	file, header, err := r.FormFile("video")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", `missing "video" file field`)
		return
	}
	defer file.Close()

	videoID := r.FormValue("video_id")
	if videoID == "" {
		videoID = uuid.NewString()
	}
	userID := r.FormValue("user_id")
	if userID == "" {
		userID = "anonymous"
	}

	report, err := h.video.ProcessUpload(r.Context(), userID, videoID, file, header.Size)
	if err != nil {
		h.writePipelineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// AnalyzeFrame accepts a single image, either as a multipart "image" field
// or as the raw request body, and responds with the pose estimates and any
// strike events detectable in a window of one frame.
func (h *Handlers) AnalyzeFrame(w http.ResponseWriter, r *http.Request) {
	image, err := readImagePayload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	poses, events, err := h.frames.Execute(r.Context(), image)
	if err != nil {
		h.writePipelineError(w, err)
		return
	}

	if poses == nil {
		poses = []entity.PoseEstimate{}
	}
	if events == nil {
		events = []entity.StrikeEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"poses":  poses,
		"events": events,
	})
}

func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid job id")
		return
	}

	job, err := h.jobs.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "job not found")
		return
	}

	resp := map[string]any{
		"job_id":       job.ID,
		"video_id":     job.VideoID,
		"status":       job.Status,
		"frame_count":  job.FrameCount,
		"strike_count": job.StrikeCount,
		"attempt":      job.Attempt,
		"created_at":   job.CreatedAt,
		"updated_at":   job.UpdatedAt,
	}
	if job.ErrorMessage != "" {
		resp["error_message"] = job.ErrorMessage
	}
	if job.Status == entity.JobStatusCompleted {
		if report, err := h.reports.FindByJobID(r.Context(), id); err == nil {
			resp["report"] = report
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func readImagePayload(r *http.Request) ([]byte, error) {
	if file, _, err := r.FormFile("image"); err == nil {
		defer file.Close()
		return io.ReadAll(io.LimitReader(file, maxImageBytes))
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxImageBytes))
	if err != nil {
		return nil, errors.New("read image payload: " + err.Error())
	}
	if len(data) == 0 {
		return nil, errors.New("empty image payload")
	}
	return data, nil
}

func (h *Handlers) writePipelineError(w http.ResponseWriter, err error) {
	kind, ok := errs.KindOf(err)
	if !ok {
		h.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "analysis failed")
		return
	}

	status := http.StatusInternalServerError
	if kind == errs.KindDecode {
		status = http.StatusBadRequest
	}

	var e *errs.Error
	msg := err.Error()
	if errors.As(err, &e) {
		msg = e.Message()
	}
	writeError(w, status, string(kind), msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"kind":    kind,
			"message": message,
		},
	})
}

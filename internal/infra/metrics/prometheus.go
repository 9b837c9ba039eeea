package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kickai_jobs_processed_total",
		Help: "Total number of analysis jobs processed, by status",
	}, []string{"status"})

	PipelineStageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kickai_pipeline_stage_duration_seconds",
		Help:    "Duration of each analysis pipeline stage",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	FramesProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kickai_frames_processed_total",
		Help: "Total number of frames run through pose inference",
	})

	PosesEstimatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kickai_poses_estimated_total",
		Help: "Total number of pose estimates produced",
	})

	StrikesDetectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kickai_strikes_detected_total",
		Help: "Total number of strike events detected, by type",
	}, []string{"strike_type"})

	InferenceRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kickai_inference_retries_total",
		Help: "Total number of reduced-resolution inference retries",
	})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kickai_active_workers",
		Help: "Number of currently active workers processing jobs",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kickai_retry_total",
		Help: "Total number of job retries",
	}, []string{"attempt"})
)

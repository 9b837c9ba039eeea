package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAnalysisJob(t *testing.T) {
	job := NewAnalysisJob("user-1", "vid-1", "videos/vid-1.mp4", 1024, 3)

	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", job.ID.String())
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Equal(t, 0, job.Attempt)
	assert.Equal(t, 3, job.MaxAttempts)
	assert.True(t, job.CanRetry())
}

func TestJobLifecycle(t *testing.T) {
	job := NewAnalysisJob("user-1", "vid-1", "videos/vid-1.mp4", 1024, 3)

	job.MarkProcessing()
	assert.Equal(t, JobStatusProcessing, job.Status)
	assert.Equal(t, 1, job.Attempt)

	report := AnalysisReport{
		VideoID:              "vid-1",
		Events:               []StrikeEvent{{StartFrame: 3, EndFrame: 7, StrikeType: StrikePunch, Confidence: 0.8, PersonID: 1}},
		TotalFramesProcessed: 120,
		ModelVersion:         "model-v1",
	}
	job.MarkCompleted("reports/vid-1.json", report, 12.5)

	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Equal(t, "reports/vid-1.json", job.ReportKey)
	assert.Equal(t, 120, job.FrameCount)
	assert.Equal(t, 1, job.StrikeCount)
	assert.Equal(t, 12.5, job.VideoDuration)
	require.NotNil(t, job.CompletedAt)
}

func TestJobRetryBudget(t *testing.T) {
	job := NewAnalysisJob("user-1", "vid-1", "videos/vid-1.mp4", 1024, 2)

	job.MarkProcessing()
	assert.True(t, job.CanRetry())

	job.MarkProcessing()
	assert.False(t, job.CanRetry())

	job.MarkFailed("decode_error: corrupt container")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "decode_error: corrupt container", job.ErrorMessage)
}

package analysis

import (
	"testing"

	"github.com/kickai/cv-processing-service/internal/domain/entity"
	"github.com/kickai/cv-processing-service/internal/domain/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildReportSortsByStartFrame(t *testing.T) {
	events := []entity.StrikeEvent{
		{StartFrame: 40, EndFrame: 45, StrikeType: entity.StrikePunch, Confidence: 0.8, PersonID: 1},
		{StartFrame: 10, EndFrame: 14, StrikeType: entity.StrikeKick, Confidence: 0.7, PersonID: 2},
		{StartFrame: 25, EndFrame: 30, StrikeType: entity.StrikeKnee, Confidence: 0.6, PersonID: 1},
	}

	report, err := BuildReport("vid-1", "model-v1", events, 100)
	require.NoError(t, err)

	assert.Equal(t, "vid-1", report.VideoID)
	assert.Equal(t, "model-v1", report.ModelVersion)
	assert.Equal(t, 100, report.TotalFramesProcessed)
	require.Len(t, report.Events, 3)
	assert.Equal(t, 10, report.Events[0].StartFrame)
	assert.Equal(t, 25, report.Events[1].StartFrame)
	assert.Equal(t, 40, report.Events[2].StartFrame)
}

func TestBuildReportBreaksTiesByStrikeType(t *testing.T) {
	events := []entity.StrikeEvent{
		{StartFrame: 10, EndFrame: 14, StrikeType: entity.StrikePunch, Confidence: 0.8, PersonID: 1},
		{StartFrame: 10, EndFrame: 12, StrikeType: entity.StrikeKick, Confidence: 0.7, PersonID: 2},
		{StartFrame: 10, EndFrame: 16, StrikeType: entity.StrikeElbow, Confidence: 0.6, PersonID: 3},
	}

	report, err := BuildReport("vid-1", "model-v1", events, 50)
	require.NoError(t, err)

	// Lexical: ELBOW < KICK < PUNCH.
	assert.Equal(t, entity.StrikeElbow, report.Events[0].StrikeType)
	assert.Equal(t, entity.StrikeKick, report.Events[1].StrikeType)
	assert.Equal(t, entity.StrikePunch, report.Events[2].StrikeType)
}

func TestBuildReportZeroFramesFails(t *testing.T) {
	_, err := BuildReport("vid-1", "model-v1", nil, 0)
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindAggregation, kind)
}

func TestBuildReportRejectsInvalidEvent(t *testing.T) {
	events := []entity.StrikeEvent{
		{StartFrame: 20, EndFrame: 10, StrikeType: entity.StrikePunch, Confidence: 0.8, PersonID: 1},
	}
	_, err := BuildReport("vid-1", "model-v1", events, 50)
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindAggregation, kind)
}

func TestBuildReportEmptyEventsIsValid(t *testing.T) {
	report, err := BuildReport("vid-1", "model-v1", nil, 30)
	require.NoError(t, err)
	assert.Empty(t, report.Events)
	assert.Equal(t, 30, report.TotalFramesProcessed)
}

func TestBuildReportDoesNotMutateInput(t *testing.T) {
	events := []entity.StrikeEvent{
		{StartFrame: 40, EndFrame: 45, StrikeType: entity.StrikePunch, Confidence: 0.8, PersonID: 1},
		{StartFrame: 10, EndFrame: 14, StrikeType: entity.StrikeKick, Confidence: 0.7, PersonID: 2},
	}

	_, err := BuildReport("vid-1", "model-v1", events, 50)
	require.NoError(t, err)
	assert.Equal(t, 40, events[0].StartFrame)
}

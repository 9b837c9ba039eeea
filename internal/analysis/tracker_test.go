package analysis

import (
	"testing"

	"github.com/kickai/cv-processing-service/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func poseAt(frameIndex int, offsetX float64) entity.PoseEstimate {
	p := standingPose(frameIndex)
	p.PersonID = 0
	for i := range p.Keypoints {
		p.Keypoints[i].X += offsetX
	}
	return p
}

func TestTrackerKeepsIdentityAcrossFrames(t *testing.T) {
	tr := NewTracker(150, 10)

	first := tr.Assign(0, []entity.PoseEstimate{poseAt(0, 0)})
	require.Len(t, first, 1)
	assert.Equal(t, 1, first[0].PersonID)

	// Small drift stays within maxJump.
	second := tr.Assign(1, []entity.PoseEstimate{poseAt(1, 30)})
	assert.Equal(t, 1, second[0].PersonID)
}

func TestTrackerSeparatesTwoPeople(t *testing.T) {
	tr := NewTracker(150, 10)

	poses := tr.Assign(0, []entity.PoseEstimate{poseAt(0, 0), poseAt(0, 600)})
	require.Len(t, poses, 2)
	assert.NotEqual(t, poses[0].PersonID, poses[1].PersonID)

	left, right := poses[0].PersonID, poses[1].PersonID
	next := tr.Assign(1, []entity.PoseEstimate{poseAt(1, 610), poseAt(1, 10)})
	// Order in the input slice does not matter; identity follows position.
	for _, p := range next {
		cx, _ := poseCentroid(p)
		if cx < 300 {
			assert.Equal(t, left, p.PersonID)
		} else {
			assert.Equal(t, right, p.PersonID)
		}
	}
}

func TestTrackerOpensNewTrackBeyondMaxJump(t *testing.T) {
	tr := NewTracker(100, 10)

	first := tr.Assign(0, []entity.PoseEstimate{poseAt(0, 0)})
	second := tr.Assign(1, []entity.PoseEstimate{poseAt(1, 500)})
	assert.NotEqual(t, first[0].PersonID, second[0].PersonID)
}

func TestTrackerExpiresAfterMaxGap(t *testing.T) {
	tr := NewTracker(150, 3)

	first := tr.Assign(0, []entity.PoseEstimate{poseAt(0, 0)})
	// Within the gap the identity survives an absence.
	second := tr.Assign(3, []entity.PoseEstimate{poseAt(3, 0)})
	assert.Equal(t, first[0].PersonID, second[0].PersonID)

	// Beyond the gap the track is gone and a fresh ID is issued.
	third := tr.Assign(10, []entity.PoseEstimate{poseAt(10, 0)})
	assert.NotEqual(t, first[0].PersonID, third[0].PersonID)
}

func TestTrackerDeterministicForSameInput(t *testing.T) {
	run := func() []int {
		tr := NewTracker(150, 10)
		var ids []int
		for f := 0; f < 5; f++ {
			poses := tr.Assign(f, []entity.PoseEstimate{
				poseAt(f, 600+float64(f)*5),
				poseAt(f, float64(f)*5),
			})
			for _, p := range poses {
				ids = append(ids, p.PersonID)
			}
		}
		return ids
	}

	assert.Equal(t, run(), run())
}

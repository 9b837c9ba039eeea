package analysis

import (
	"testing"

	"github.com/kickai/cv-processing-service/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testFPS drives observation timestamps: frame index / 10.
const testFPS = 10.0

// standingPose builds a full COCO-17 skeleton of a person standing still,
// torso length ~100px, all keypoints at confidence 0.9.
func standingPose(frameIndex int) entity.PoseEstimate {
	coords := [entity.SkeletonSize][2]float64{
		entity.KeypointNose:          {20, 40},
		entity.KeypointLeftEye:       {15, 32},
		entity.KeypointRightEye:      {25, 32},
		entity.KeypointLeftEar:       {10, 36},
		entity.KeypointRightEar:      {30, 36},
		entity.KeypointLeftShoulder:  {0, 100},
		entity.KeypointRightShoulder: {40, 100},
		entity.KeypointLeftElbow:     {-10, 140},
		entity.KeypointRightElbow:    {50, 140},
		entity.KeypointLeftWrist:     {-15, 180},
		entity.KeypointRightWrist:    {55, 180},
		entity.KeypointLeftHip:       {5, 200},
		entity.KeypointRightHip:      {35, 200},
		entity.KeypointLeftKnee:      {5, 260},
		entity.KeypointRightKnee:     {35, 260},
		entity.KeypointLeftAnkle:     {5, 320},
		entity.KeypointRightAnkle:    {35, 320},
	}
	kps := make([]entity.Keypoint, entity.SkeletonSize)
	for i, c := range coords {
		kps[i] = entity.Keypoint{X: c[0], Y: c[1], Confidence: 0.9}
	}
	return entity.PoseEstimate{FrameIndex: frameIndex, PersonID: 1, Keypoints: kps}
}

// punchSequence moves only the right wrist by the given per-frame
// displacements (pixels). With torso ~100px at 10 fps, 10px of movement is
// 1.0 torso-lengths/second.
func punchSequence(deltas []float64) []entity.PoseEstimate {
	poses := make([]entity.PoseEstimate, len(deltas))
	offset := 0.0
	for i, d := range deltas {
		offset += d
		p := standingPose(i)
		p.Keypoints[entity.KeypointRightWrist].X += offset
		poses[i] = p
	}
	return poses
}

func observeAll(c *Classifier, poses []entity.PoseEstimate) []entity.StrikeEvent {
	var events []entity.StrikeEvent
	for _, p := range poses {
		if ev, ok := c.Observe(p, float64(p.FrameIndex)/testFPS); ok {
			events = append(events, ev)
		}
	}
	return append(events, c.Flush()...)
}

// cleanPunchDeltas: idle, windup (2.0 t/s), strike (4.0 t/s), drop to
// recovery (1.0 t/s), settle (0.5 t/s).
var cleanPunchDeltas = []float64{0, 0, 0, 20, 40, 40, 10, 5, 0}

func TestCleanPunchEmitsSingleEvent(t *testing.T) {
	c := NewClassifier(DefaultConfig())
	events := observeAll(c, punchSequence(cleanPunchDeltas))

	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, entity.StrikePunch, ev.StrikeType)
	assert.Greater(t, ev.Confidence, 0.5)
	assert.LessOrEqual(t, ev.Confidence, 1.0)
	assert.LessOrEqual(t, ev.StartFrame, ev.EndFrame)
	assert.Equal(t, 1, ev.PersonID)
	require.NoError(t, ev.Validate())
}

func TestStationaryPersonEmitsNothing(t *testing.T) {
	c := NewClassifier(DefaultConfig())
	var poses []entity.PoseEstimate
	for i := 0; i < 50; i++ {
		poses = append(poses, standingPose(i))
	}
	assert.Empty(t, observeAll(c, poses))
}

func TestWindupWithoutStrikeAborts(t *testing.T) {
	// Reaches windup speed but never strike speed, then settles.
	c := NewClassifier(DefaultConfig())
	deltas := []float64{0, 0, 20, 20, 20, 5, 0, 0}
	assert.Empty(t, observeAll(c, punchSequence(deltas)))
}

func TestKickTypedByDominantLimb(t *testing.T) {
	c := NewClassifier(DefaultConfig())
	var poses []entity.PoseEstimate
	offset := 0.0
	deltas := []float64{0, 0, 0, 20, 45, 45, 10, 5, 0}
	for i, d := range deltas {
		offset += d
		p := standingPose(i)
		p.Keypoints[entity.KeypointRightAnkle].X += offset
		poses = append(poses, p)
	}

	events := observeAll(c, poses)
	require.Len(t, events, 1)
	assert.Equal(t, entity.StrikeKick, events[0].StrikeType)
}

func TestLowKeypointConfidenceReportsUnknown(t *testing.T) {
	c := NewClassifier(DefaultConfig())
	poses := punchSequence(cleanPunchDeltas)
	for i := range poses {
		poses[i].Keypoints[entity.KeypointRightWrist].Confidence = 0.1
	}

	events := observeAll(c, poses)
	require.Len(t, events, 1)
	assert.Equal(t, entity.StrikeUnknown, events[0].StrikeType)
}

func TestOverlappingCandidatesKeepHigherConfidence(t *testing.T) {
	// A second, faster strike launches straight out of recovery; the two
	// candidate ranges overlap, so only the higher-confidence one survives.
	c := NewClassifier(DefaultConfig())
	deltas := []float64{0, 0, 0, 20, 40, 10, 20, 55, 55, 10, 5, 0}
	events := observeAll(c, punchSequence(deltas))

	require.Len(t, events, 1)
	// Peak 5.5 t/s beats peak 4.0 t/s.
	assert.Greater(t, events[0].Confidence, 0.55)
}

func TestSequentialStrikesBothEmitted(t *testing.T) {
	c := NewClassifier(DefaultConfig())
	deltas := []float64{
		0, 0, 0, 20, 40, 40, 10, 5, 0, 0, // first punch, fully settled
		0, 0, 20, 40, 40, 10, 5, 0, // second punch
	}
	events := observeAll(c, punchSequence(deltas))

	require.Len(t, events, 2)
	assert.Less(t, events[0].EndFrame, events[1].StartFrame)
	for _, ev := range events {
		assert.Equal(t, entity.StrikePunch, ev.StrikeType)
		require.NoError(t, ev.Validate())
	}
}

func TestStrikeInFlightAtStreamEndIsFlushed(t *testing.T) {
	// Stream ends while still at strike speed; Flush finalizes it.
	c := NewClassifier(DefaultConfig())
	deltas := []float64{0, 0, 0, 20, 40, 40, 40}
	events := observeAll(c, punchSequence(deltas))

	require.Len(t, events, 1)
	assert.Equal(t, entity.StrikePunch, events[0].StrikeType)
	assert.Equal(t, 6, events[0].EndFrame)
}

func TestClassifierIsDeterministic(t *testing.T) {
	poses := punchSequence(cleanPunchDeltas)

	first := observeAll(NewClassifier(DefaultConfig()), poses)
	second := observeAll(NewClassifier(DefaultConfig()), poses)
	assert.Equal(t, first, second)
}

func TestTwoPeopleTrackedIndependently(t *testing.T) {
	c := NewClassifier(DefaultConfig())
	var events []entity.StrikeEvent

	puncher := punchSequence(cleanPunchDeltas)
	for i := range puncher {
		bystander := standingPose(i)
		bystander.PersonID = 2
		for k := range bystander.Keypoints {
			bystander.Keypoints[k].X += 600
		}
		ts := float64(i) / testFPS
		if ev, ok := c.Observe(puncher[i], ts); ok {
			events = append(events, ev)
		}
		if ev, ok := c.Observe(bystander, ts); ok {
			events = append(events, ev)
		}
	}
	events = append(events, c.Flush()...)

	require.Len(t, events, 1)
	assert.Equal(t, 1, events[0].PersonID)
}

func TestWindowOfOneNeverEmits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WindowSize = 1
	c := NewClassifier(cfg)

	assert.Empty(t, observeAll(c, punchSequence(cleanPunchDeltas)))
}

func TestZeroTimeDeltaIsIgnored(t *testing.T) {
	c := NewClassifier(DefaultConfig())
	poses := punchSequence(cleanPunchDeltas)
	var events []entity.StrikeEvent
	for _, p := range poses {
		if ev, ok := c.Observe(p, 0); ok { // all identical timestamps
			events = append(events, ev)
		}
	}
	events = append(events, c.Flush()...)
	assert.Empty(t, events)
}

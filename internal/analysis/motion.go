package analysis

import (
	"math"

	"github.com/kickai/cv-processing-service/internal/domain/entity"
)

// limb identifies a striking extremity tracked by the classifier.
type limb int

const (
	limbLeftWrist limb = iota
	limbRightWrist
	limbLeftElbow
	limbRightElbow
	limbLeftKnee
	limbRightKnee
	limbLeftAnkle
	limbRightAnkle
	numLimbs
)

// limbKeypoints maps each limb to its skeleton keypoint index.
var limbKeypoints = [numLimbs]int{
	limbLeftWrist:  entity.KeypointLeftWrist,
	limbRightWrist: entity.KeypointRightWrist,
	limbLeftElbow:  entity.KeypointLeftElbow,
	limbRightElbow: entity.KeypointRightElbow,
	limbLeftKnee:   entity.KeypointLeftKnee,
	limbRightKnee:  entity.KeypointRightKnee,
	limbLeftAnkle:  entity.KeypointLeftAnkle,
	limbRightAnkle: entity.KeypointRightAnkle,
}

func (l limb) strikeType() entity.StrikeType {
	switch l {
	case limbLeftWrist, limbRightWrist:
		return entity.StrikePunch
	case limbLeftElbow, limbRightElbow:
		return entity.StrikeElbow
	case limbLeftKnee, limbRightKnee:
		return entity.StrikeKnee
	case limbLeftAnkle, limbRightAnkle:
		return entity.StrikeKick
	}
	return entity.StrikeUnknown
}

// torsoLength is the scale reference for speed normalization: the mean
// shoulder-to-hip distance in pixels.
func torsoLength(p entity.PoseEstimate) float64 {
	if !p.Valid() {
		return 0
	}
	left := keypointDist(p.Keypoints[entity.KeypointLeftShoulder], p.Keypoints[entity.KeypointLeftHip])
	right := keypointDist(p.Keypoints[entity.KeypointRightShoulder], p.Keypoints[entity.KeypointRightHip])
	return (left + right) / 2
}

func keypointDist(a, b entity.Keypoint) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// limbSpeeds computes each limb's displacement between two observations,
// normalized to torso-lengths per second. ok is false when speeds cannot be
// derived (non-positive time delta, degenerate torso, or invalid skeleton).
func limbSpeeds(prev, cur observation) (speeds [numLimbs]float64, conf [numLimbs]float64, ok bool) {
	dt := cur.timestamp - prev.timestamp
	if dt <= 0 {
		return speeds, conf, false
	}
	if !prev.pose.Valid() || !cur.pose.Valid() {
		return speeds, conf, false
	}
	norm := torsoLength(cur.pose)
	if norm < 1e-6 {
		return speeds, conf, false
	}
	for l := limb(0); l < numLimbs; l++ {
		k := limbKeypoints[l]
		a, b := prev.pose.Keypoints[k], cur.pose.Keypoints[k]
		speeds[l] = keypointDist(a, b) / dt / norm
		conf[l] = math.Min(a.Confidence, b.Confidence)
	}
	return speeds, conf, true
}

// dominantLimb picks the fastest limb. Fixed iteration order keeps the
// choice deterministic on exact ties.
func dominantLimb(speeds [numLimbs]float64) (limb, float64) {
	best := limb(0)
	bestSpeed := speeds[0]
	for l := limb(1); l < numLimbs; l++ {
		if speeds[l] > bestSpeed {
			best = l
			bestSpeed = speeds[l]
		}
	}
	return best, bestSpeed
}

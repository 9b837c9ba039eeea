package entity

// SkeletonSize is the fixed number of keypoints per pose. The estimator
// produces the COCO-17 skeleton; every PoseEstimate carries exactly this
// many keypoints in the order below.
const SkeletonSize = 17

// COCO-17 keypoint indices.
const (
	KeypointNose = iota
	KeypointLeftEye
	KeypointRightEye
	KeypointLeftEar
	KeypointRightEar
	KeypointLeftShoulder
	KeypointRightShoulder
	KeypointLeftElbow
	KeypointRightElbow
	KeypointLeftWrist
	KeypointRightWrist
	KeypointLeftHip
	KeypointRightHip
	KeypointLeftKnee
	KeypointRightKnee
	KeypointLeftAnkle
	KeypointRightAnkle
)

// Keypoint is a single body-landmark estimate in frame pixel coordinates.
type Keypoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
}

// PoseEstimate is one detected person's skeleton for one frame.
type PoseEstimate struct {
	FrameIndex int        `json:"frame_index"`
	PersonID   int        `json:"person_id"`
	Keypoints  []Keypoint `json:"keypoints"`
}

// Valid reports whether the estimate matches the skeleton model.
func (p PoseEstimate) Valid() bool {
	return len(p.Keypoints) == SkeletonSize
}

// MeanConfidence is the average keypoint confidence of the pose.
func (p PoseEstimate) MeanConfidence() float64 {
	if len(p.Keypoints) == 0 {
		return 0
	}
	sum := 0.0
	for _, kp := range p.Keypoints {
		sum += kp.Confidence
	}
	return sum / float64(len(p.Keypoints))
}

package analysis

import (
	"math"
	"sort"

	"github.com/kickai/cv-processing-service/internal/domain/entity"
)

// track is one actively followed person.
type track struct {
	id        int
	centroidX float64
	centroidY float64
	lastFrame int
}

// Tracker assigns stable person IDs to pose estimates across frames by
// nearest-centroid matching. Explicit per-video state, no globals; feed it
// frames in ascending order only.
type Tracker struct {
	tracks  []*track
	nextID  int
	maxJump float64 // max centroid displacement (pixels) to keep an identity
	maxGap  int     // frames a track survives without a match
}

func NewTracker(maxJump float64, maxGap int) *Tracker {
	return &Tracker{nextID: 1, maxJump: maxJump, maxGap: maxGap}
}

// Assign sets PersonID on every pose of one frame and returns the same
// slice. Matching is greedy by ascending distance; unmatched poses open new
// tracks. Deterministic: poses are ordered by centroid before matching.
func (t *Tracker) Assign(frameIndex int, poses []entity.PoseEstimate) []entity.PoseEstimate {
	t.expire(frameIndex)

	type candidate struct {
		poseIdx  int
		trackIdx int
		dist     float64
	}

	centroids := make([][2]float64, len(poses))
	order := make([]int, len(poses))
	for i := range poses {
		cx, cy := poseCentroid(poses[i])
		centroids[i] = [2]float64{cx, cy}
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		ca, cb := centroids[order[a]], centroids[order[b]]
		if ca[0] != cb[0] {
			return ca[0] < cb[0]
		}
		return ca[1] < cb[1]
	})

	var cands []candidate
	for _, pi := range order {
		for ti, tr := range t.tracks {
			d := math.Hypot(centroids[pi][0]-tr.centroidX, centroids[pi][1]-tr.centroidY)
			if d <= t.maxJump {
				cands = append(cands, candidate{poseIdx: pi, trackIdx: ti, dist: d})
			}
		}
	}
	sort.Slice(cands, func(a, b int) bool {
		if cands[a].dist != cands[b].dist {
			return cands[a].dist < cands[b].dist
		}
		if cands[a].poseIdx != cands[b].poseIdx {
			return cands[a].poseIdx < cands[b].poseIdx
		}
		return cands[a].trackIdx < cands[b].trackIdx
	})

	usedPose := make(map[int]bool)
	usedTrack := make(map[int]bool)
	for _, c := range cands {
		if usedPose[c.poseIdx] || usedTrack[c.trackIdx] {
			continue
		}
		usedPose[c.poseIdx] = true
		usedTrack[c.trackIdx] = true
		tr := t.tracks[c.trackIdx]
		tr.centroidX = centroids[c.poseIdx][0]
		tr.centroidY = centroids[c.poseIdx][1]
		tr.lastFrame = frameIndex
		poses[c.poseIdx].PersonID = tr.id
	}

	for _, pi := range order {
		if usedPose[pi] {
			continue
		}
		tr := &track{
			id:        t.nextID,
			centroidX: centroids[pi][0],
			centroidY: centroids[pi][1],
			lastFrame: frameIndex,
		}
		t.nextID++
		t.tracks = append(t.tracks, tr)
		poses[pi].PersonID = tr.id
	}

	return poses
}

func (t *Tracker) expire(frameIndex int) {
	kept := t.tracks[:0]
	for _, tr := range t.tracks {
		if frameIndex-tr.lastFrame <= t.maxGap {
			kept = append(kept, tr)
		}
	}
	t.tracks = kept
}

// poseCentroid is the confidence-weighted mean keypoint position.
func poseCentroid(p entity.PoseEstimate) (float64, float64) {
	var sx, sy, sw float64
	for _, kp := range p.Keypoints {
		sx += kp.X * kp.Confidence
		sy += kp.Y * kp.Confidence
		sw += kp.Confidence
	}
	if sw == 0 {
		return 0, 0
	}
	return sx / sw, sy / sw
}

package analysis

import "github.com/kickai/cv-processing-service/internal/domain/entity"

// observation is one pose plus the wall-clock offset of its frame.
type observation struct {
	pose      entity.PoseEstimate
	timestamp float64
}

// slidingWindow keeps the most recent W observations for one person.
type slidingWindow struct {
	size int
	obs  []observation
}

func newSlidingWindow(size int) *slidingWindow {
	if size < 1 {
		size = 1
	}
	return &slidingWindow{size: size}
}

func (w *slidingWindow) push(o observation) {
	w.obs = append(w.obs, o)
	if len(w.obs) > w.size {
		// Evict oldest; the window stays bounded at W regardless of video
		// length.
		copy(w.obs, w.obs[1:])
		w.obs = w.obs[:w.size]
	}
}

func (w *slidingWindow) len() int { return len(w.obs) }

// last2 returns the two most recent observations, oldest first.
func (w *slidingWindow) last2() (observation, observation, bool) {
	n := len(w.obs)
	if n < 2 {
		return observation{}, observation{}, false
	}
	return w.obs[n-2], w.obs[n-1], true
}

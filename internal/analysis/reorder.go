package analysis

import "github.com/kickai/cv-processing-service/internal/domain/entity"

// FramePoses is the inference output for one frame.
type FramePoses struct {
	Index     int
	Timestamp float64
	Poses     []entity.PoseEstimate
}

// ReorderBuffer restores original frame order after parallel inference.
// Results arrive keyed by frame index in whatever order the worker pool
// finishes them; Add releases the longest in-order run available. Arrival
// order is never trusted.
type ReorderBuffer struct {
	next    int
	pending map[int]FramePoses
}

func NewReorderBuffer(start int) *ReorderBuffer {
	return &ReorderBuffer{next: start, pending: make(map[int]FramePoses)}
}

// Add buffers one frame's result and returns every result that is now
// in-order, oldest first. Duplicate indices overwrite.
func (b *ReorderBuffer) Add(fp FramePoses) []FramePoses {
	b.pending[fp.Index] = fp

	var ready []FramePoses
	for {
		next, ok := b.pending[b.next]
		if !ok {
			return ready
		}
		delete(b.pending, b.next)
		b.next++
		ready = append(ready, next)
	}
}

// Pending is the number of buffered out-of-order results.
func (b *ReorderBuffer) Pending() int { return len(b.pending) }

package entity

import "fmt"

type StrikeType string

const (
	StrikePunch   StrikeType = "PUNCH"
	StrikeKick    StrikeType = "KICK"
	StrikeKnee    StrikeType = "KNEE"
	StrikeElbow   StrikeType = "ELBOW"
	StrikeUnknown StrikeType = "UNKNOWN"
)

// StrikeEvent is one detected strike, spanning an inclusive frame range.
type StrikeEvent struct {
	StartFrame int        `json:"start_frame"`
	EndFrame   int        `json:"end_frame"`
	StrikeType StrikeType `json:"strike_type"`
	Confidence float64    `json:"confidence"`
	PersonID   int        `json:"person_id"`
}

// Validate enforces the event invariants: non-negative ordered frame range
// and confidence within [0,1].
func (e StrikeEvent) Validate() error {
	if e.StartFrame < 0 {
		return fmt.Errorf("strike event: negative start_frame %d", e.StartFrame)
	}
	if e.StartFrame > e.EndFrame {
		return fmt.Errorf("strike event: start_frame %d > end_frame %d", e.StartFrame, e.EndFrame)
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return fmt.Errorf("strike event: confidence %f out of [0,1]", e.Confidence)
	}
	switch e.StrikeType {
	case StrikePunch, StrikeKick, StrikeKnee, StrikeElbow, StrikeUnknown:
	default:
		return fmt.Errorf("strike event: unknown strike_type %q", e.StrikeType)
	}
	return nil
}

// Overlaps reports whether two events share any frame for the same person.
func (e StrikeEvent) Overlaps(other StrikeEvent) bool {
	if e.PersonID != other.PersonID {
		return false
	}
	return e.StartFrame <= other.EndFrame && other.StartFrame <= e.EndFrame
}

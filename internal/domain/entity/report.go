package entity

// AnalysisReport is the terminal artifact of a video analysis. Immutable
// once produced; events are ordered by start_frame ascending, ties broken by
// strike_type lexical order.
type AnalysisReport struct {
	VideoID              string        `json:"video_id"`
	Events               []StrikeEvent `json:"events"`
	TotalFramesProcessed int           `json:"total_frames_processed"`
	ModelVersion         string        `json:"model_version,omitempty"`
}

package analysis

import (
	"fmt"
	"sort"

	"github.com/kickai/cv-processing-service/internal/domain/entity"
	"github.com/kickai/cv-processing-service/internal/domain/errs"
)

// BuildReport assembles the terminal report for a video. Events are sorted
// by start_frame ascending, ties broken by strike_type lexical order (then
// person and end frame so the full order is deterministic). A zero frame
// count signals an upstream failure, not an empty video, and fails with an
// aggregation error; so does any event violating its invariants.
func BuildReport(videoID, modelVersion string, events []entity.StrikeEvent, totalFrames int) (entity.AnalysisReport, error) {
	if totalFrames <= 0 {
		return entity.AnalysisReport{}, errs.Aggregation("no frames processed where at least one was expected", nil)
	}

	for _, ev := range events {
		if err := ev.Validate(); err != nil {
			return entity.AnalysisReport{}, errs.Aggregation(fmt.Sprintf("invalid event for person %d", ev.PersonID), err)
		}
	}

	sorted := make([]entity.StrikeEvent, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.StartFrame != b.StartFrame {
			return a.StartFrame < b.StartFrame
		}
		if a.StrikeType != b.StrikeType {
			return a.StrikeType < b.StrikeType
		}
		if a.PersonID != b.PersonID {
			return a.PersonID < b.PersonID
		}
		return a.EndFrame < b.EndFrame
	})

	return entity.AnalysisReport{
		VideoID:              videoID,
		Events:               sorted,
		TotalFramesProcessed: totalFrames,
		ModelVersion:         modelVersion,
	}, nil
}

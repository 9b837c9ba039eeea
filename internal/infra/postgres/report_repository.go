package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kickai/cv-processing-service/internal/domain/entity"
)

type ReportRepository struct {
	pool *pgxpool.Pool
}

func NewReportRepository(pool *pgxpool.Pool) *ReportRepository {
	return &ReportRepository{pool: pool}
}

func (r *ReportRepository) Save(ctx context.Context, jobID uuid.UUID, report entity.AnalysisReport) error {
	events, err := json.Marshal(report.Events)
	if err != nil {
		return fmt.Errorf("marshal events: %w", err)
	}

	query := `
		INSERT INTO analysis_reports (job_id, video_id, model_version, total_frames, events)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (job_id) DO UPDATE SET
			video_id=EXCLUDED.video_id, model_version=EXCLUDED.model_version,
			total_frames=EXCLUDED.total_frames, events=EXCLUDED.events`

	if _, err := r.pool.Exec(ctx, query,
		jobID, report.VideoID, report.ModelVersion, report.TotalFramesProcessed, events,
	); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

func (r *ReportRepository) FindByJobID(ctx context.Context, jobID uuid.UUID) (*entity.AnalysisReport, error) {
	query := `
		SELECT video_id, model_version, total_frames, events
		FROM analysis_reports WHERE job_id=$1`

	report := &entity.AnalysisReport{}
	var events []byte
	err := r.pool.QueryRow(ctx, query, jobID).Scan(
		&report.VideoID, &report.ModelVersion, &report.TotalFramesProcessed, &events,
	)
	if err != nil {
		return nil, fmt.Errorf("find report by job id: %w", err)
	}
	if err := json.Unmarshal(events, &report.Events); err != nil {
		return nil, fmt.Errorf("unmarshal events: %w", err)
	}
	return report, nil
}

package port

import (
	"context"

	"github.com/google/uuid"
	"github.com/kickai/cv-processing-service/internal/domain/entity"
)

type JobRepository interface {
	Create(ctx context.Context, job *entity.AnalysisJob) error
	Update(ctx context.Context, job *entity.AnalysisJob) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.AnalysisJob, error)
}

type ReportRepository interface {
	Save(ctx context.Context, jobID uuid.UUID, report entity.AnalysisReport) error
	FindByJobID(ctx context.Context, jobID uuid.UUID) (*entity.AnalysisReport, error)
}

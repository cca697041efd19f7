package usecase

import (
	"context"
	"time"

	"FinScan/internal/domain/models"
	domrepo "FinScan/internal/domain/repository"
	"FinScan/pkg/logger"
)

// EvaluationUseCase advances all open recommendations one cycle.
type EvaluationUseCase struct {
	lifecycle *LifecycleManager
	metrics   domrepo.Metrics
	log       *logger.Logger
}

// NewEvaluationUseCase wraps the lifecycle manager as the evaluation
// entry point.
func NewEvaluationUseCase(lifecycle *LifecycleManager, log *logger.Logger) *EvaluationUseCase {
	if log == nil {
		log = logger.NewNop()
	}
	return &EvaluationUseCase{lifecycle: lifecycle, log: log.With(logger.String("component", "evaluation_usecase"))}
}

func (u *EvaluationUseCase) SetMetrics(m domrepo.Metrics) { u.metrics = m }

func (u *EvaluationUseCase) Run(ctx context.Context, date time.Time) (models.EvaluationReport, error) {
	start := time.Now()
	report, err := u.lifecycle.Evaluate(ctx, models.TradingDay(date))
	if u.metrics != nil {
		u.metrics.RecordLatency("evaluate", time.Since(start).Seconds())
	}
	if err != nil {
		u.log.Error("evaluation aborted", logger.Date("date", date), logger.Error(err))
		return report, err
	}
	return report, nil
}

// List returns stored recommendations for the query endpoint.
func (u *EvaluationUseCase) List(ctx context.Context, f domrepo.RecommendationFilter) ([]*models.Recommendation, error) {
	return u.lifecycle.List(ctx, f)
}

func (u *EvaluationUseCase) Get(ctx context.Context, id string) (*models.Recommendation, error) {
	return u.lifecycle.Get(ctx, id)
}

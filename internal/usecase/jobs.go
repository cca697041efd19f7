package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinScan/internal/domain/models"
	"FinScan/pkg/logger"
	"FinScan/pkg/queue"
	"FinScan/pkg/scheduler"
	"FinScan/pkg/util"
)

// Queue message types.
const (
	JobScan     = "scan"
	JobEvaluate = "evaluate"
)

// JobPayload is the queue message body for both batch jobs.
type JobPayload struct {
	Date     string `json:"date"`
	Strategy string `json:"strategy,omitempty"`
	Apply    bool   `json:"apply"`
}

func (p JobPayload) date() (time.Time, error) {
	t, ok := util.ParseTime(p.Date)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: bad job date %q", models.ErrConfiguration, p.Date)
	}
	return models.TradingDay(t), nil
}

// ScanJob runs a queued scan.
type ScanJob struct {
	uc  *ScanUseCase
	log *logger.Logger
}

// NewScanJob adapts uc to the redis queue.
func NewScanJob(uc *ScanUseCase, log *logger.Logger) *ScanJob {
	if log == nil {
		log = logger.NewNop()
	}
	return &ScanJob{uc: uc, log: log}
}

func (j *ScanJob) Name() string { return "scan_job" }
func (j *ScanJob) Type() string { return JobScan }

func (j *ScanJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[JobPayload](payload)
	if err != nil {
		return err
	}
	date, err := p.date()
	if err != nil {
		return err
	}
	res, err := j.uc.Run(ctx, ScanRequest{Date: date, Strategy: models.Horizon(p.Strategy), Apply: p.Apply})
	if err != nil {
		return err
	}
	j.log.Info("queued scan finished",
		logger.Date("date", date),
		logger.String("regime", string(res.Regime.FinalRegime)),
		logger.Int("candidates", len(res.Candidates)))
	return nil
}

// EvaluateJob runs a queued lifecycle evaluation.
type EvaluateJob struct {
	uc  *EvaluationUseCase
	log *logger.Logger
}

// NewEvaluateJob adapts uc to the redis queue.
func NewEvaluateJob(uc *EvaluationUseCase, log *logger.Logger) *EvaluateJob {
	if log == nil {
		log = logger.NewNop()
	}
	return &EvaluateJob{uc: uc, log: log}
}

func (j *EvaluateJob) Name() string { return "evaluate_job" }
func (j *EvaluateJob) Type() string { return JobEvaluate }

func (j *EvaluateJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[JobPayload](payload)
	if err != nil {
		return err
	}
	date, err := p.date()
	if err != nil {
		return err
	}
	rep, err := j.uc.Run(ctx, date)
	if err != nil {
		return err
	}
	j.log.Info("queued evaluation finished",
		logger.Date("date", date),
		logger.Int("evaluated", rep.Evaluated),
		logger.Int("failed", len(rep.Failed)))
	return nil
}

// Enqueuer is the part of the redis queue the batch trigger needs.
type Enqueuer interface {
	EnqueueOnce(ctx context.Context, msgType, dedupKey string, payload interface{}) error
}

// BatchTrigger turns cron ticks into daily scan and evaluation runs. With
// a queue the work is enqueued once per date, otherwise it runs inline.
type BatchTrigger struct {
	scan  *ScanUseCase
	eval  *EvaluationUseCase
	queue Enqueuer
	now   func() time.Time
	log   *logger.Logger
}

// BatchOption configures a BatchTrigger.
type BatchOption func(*BatchTrigger)

// WithQueue routes triggered runs through q.
func WithQueue(q Enqueuer) BatchOption {
	return func(b *BatchTrigger) { b.queue = q }
}

// WithBatchClock sets the clock; its location decides the trading day.
func WithBatchClock(now func() time.Time) BatchOption {
	return func(b *BatchTrigger) { b.now = now }
}

// NewBatchTrigger runs inline unless WithQueue is given.
func NewBatchTrigger(scan *ScanUseCase, eval *EvaluationUseCase, log *logger.Logger, opts ...BatchOption) *BatchTrigger {
	if log == nil {
		log = logger.NewNop()
	}
	b := &BatchTrigger{scan: scan, eval: eval, now: time.Now, log: log.With(logger.String("component", "batch"))}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ScanJob is the cron job for the daily scan.
func (b *BatchTrigger) ScanJob() scheduler.Job {
	return scheduler.JobFunc{JobName: "daily_scan", Fn: b.TriggerScan}
}

// EvaluateJob is the cron job for the daily evaluation.
func (b *BatchTrigger) EvaluateJob() scheduler.Job {
	return scheduler.JobFunc{JobName: "daily_evaluate", Fn: b.TriggerEvaluate}
}

// TriggerScan starts today's scan, with apply, on trading days.
func (b *BatchTrigger) TriggerScan(ctx context.Context) error {
	date, ok := b.today()
	if !ok {
		return nil
	}
	if b.queue != nil {
		return b.enqueue(ctx, JobScan, date, JobPayload{Date: date.Format(util.DateLayout), Apply: true})
	}
	_, err := b.scan.Run(ctx, ScanRequest{Date: date, Apply: true})
	return err
}

// TriggerEvaluate starts today's evaluation on trading days.
func (b *BatchTrigger) TriggerEvaluate(ctx context.Context) error {
	date, ok := b.today()
	if !ok {
		return nil
	}
	if b.queue != nil {
		return b.enqueue(ctx, JobEvaluate, date, JobPayload{Date: date.Format(util.DateLayout)})
	}
	_, err := b.eval.Run(ctx, date)
	return err
}

func (b *BatchTrigger) today() (time.Time, bool) {
	now := b.now()
	if !util.IsWeekday(now) {
		b.log.Info("weekend, batch skipped", logger.Date("date", now))
		return time.Time{}, false
	}
	return models.TradingDay(now), true
}

func (b *BatchTrigger) enqueue(ctx context.Context, msgType string, date time.Time, p JobPayload) error {
	err := b.queue.EnqueueOnce(ctx, msgType, p.Date, p)
	if errors.Is(err, queue.ErrDuplicate) {
		b.log.Info("batch already enqueued", logger.String("type", msgType), logger.Date("date", date))
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", msgType, err)
	}
	b.log.Info("batch enqueued", logger.String("type", msgType), logger.Date("date", date))
	return nil
}

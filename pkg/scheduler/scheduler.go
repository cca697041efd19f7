// Package scheduler runs named jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"FinScan/pkg/logger"
)

// Job is a scheduled unit of work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// JobFunc adapts a function to Job.
type JobFunc struct {
	JobName string
	Fn      func(ctx context.Context) error
}

func (j JobFunc) Name() string { return j.JobName }
func (j JobFunc) Run(ctx context.Context) error { return j.Fn(ctx) }

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLocation evaluates schedules in loc, typically the exchange timezone.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithJobTimeout bounds each run.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

// Scheduler wraps robfig/cron. Overlapping runs of the same job are skipped.
type Scheduler struct {
	cron    *cron.Cron
	log     *logger.Logger
	loc     *time.Location
	timeout time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a scheduler in UTC unless WithLocation says otherwise.
func New(log *logger.Logger, opts ...Option) *Scheduler {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Scheduler{log: log.With(logger.String("component", "scheduler")), loc: time.UTC}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	cl := cronLogger{s.log}
	s.cron = cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	return s
}

// Start runs the cron loop in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", logger.Int("jobs", len(s.cron.Entries())))
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// AddJob registers job under a standard five field spec or a descriptor
// such as "@daily" or "@every 1h".
func (s *Scheduler) AddJob(spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		if err := s.RunNow(job); err != nil {
			s.log.Error("job failed", logger.String("job", job.Name()), logger.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", job.Name(), spec, err)
	}
	s.log.Info("job registered", logger.String("job", job.Name()), logger.String("schedule", spec))
	return nil
}

// RunNow executes job immediately, outside its schedule.
func (s *Scheduler) RunNow(job Job) error {
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	start := time.Now()
	s.log.Debug("job running", logger.String("job", job.Name()))
	err := job.Run(ctx)
	s.log.Info("job finished",
		logger.String("job", job.Name()),
		logger.Duration("elapsed", time.Since(start)),
		logger.Bool("ok", err == nil))
	return err
}

// Next returns the next activation of every registered job.
func (s *Scheduler) Next() []time.Time {
	entries := s.cron.Entries()
	out := make([]time.Time, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Schedule.Next(time.Now().In(s.loc)))
	}
	return out
}

type cronLogger struct{ l *logger.Logger }

func (c cronLogger) Info(msg string, kv ...interface{}) {
	c.l.Debug("cron: "+msg, logger.Any("kv", kv))
}

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.l.Error("cron: "+msg, logger.Error(err), logger.Any("kv", kv))
}

package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"FinScan/internal/usecase"
	xhttp "FinScan/pkg/http"
	pkgkafka "FinScan/pkg/kafka"
	"FinScan/pkg/logger"
	"FinScan/pkg/queue"
	"FinScan/pkg/scheduler"
)

type closer struct {
	name string
	fn   func() error
}

// App encapsulates the application lifecycle. Every component is
// optional; nil ones are skipped.
type App struct {
	log        *logger.Logger
	scan       *usecase.ScanUseCase
	eval       *usecase.EvaluationUseCase
	httpServer *xhttp.Server
	sched      *scheduler.Scheduler
	queue      *queue.RedisQueue
	consumer   *pkgkafka.Consumer
	bars       pkgkafka.MessageHandler
	closers    []closer
	stopGrace  time.Duration
}

// Option attaches a component to the App.
type Option func(*App)

// WithHTTP serves the API.
func WithHTTP(s *xhttp.Server) Option {
	return func(a *App) { a.httpServer = s }
}

// WithScheduler runs the cron jobs.
func WithScheduler(s *scheduler.Scheduler) Option {
	return func(a *App) { a.sched = s }
}

// WithQueue runs the job queue workers.
func WithQueue(q *queue.RedisQueue) Option {
	return func(a *App) { a.queue = q }
}

// WithConsumer registers h on c when the app runs.
func WithConsumer(c *pkgkafka.Consumer, h pkgkafka.MessageHandler) Option {
	return func(a *App) {
		a.consumer = c
		a.bars = h
	}
}

// WithCloser adds a resource released on shutdown, in reverse order.
func WithCloser(name string, fn func() error) Option {
	return func(a *App) {
		if fn != nil {
			a.closers = append(a.closers, closer{name: name, fn: fn})
		}
	}
}

// New creates a new App instance with all dependencies.
func New(log *logger.Logger, scan *usecase.ScanUseCase, eval *usecase.EvaluationUseCase, opts ...Option) *App {
	if log == nil {
		log = logger.NewNop()
	}
	a := &App{log: log, scan: scan, eval: eval, stopGrace: 30 * time.Second}
	a.Apply(opts...)
	return a
}

// Apply attaches components after construction.
func (a *App) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(a)
	}
}

func (a *App) Scan() *usecase.ScanUseCase { return a.scan }

func (a *App) Evaluation() *usecase.EvaluationUseCase { return a.eval }

// Run starts every configured component and blocks until interrupted.
func (a *App) Run() error {
	if err := a.start(); err != nil {
		a.Close(context.Background())
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	a.log.Info("shutdown signal received", logger.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), a.stopGrace)
	defer cancel()
	a.Close(ctx)
	return nil
}

func (a *App) start() error {
	if a.queue != nil {
		if err := a.queue.Start(); err != nil {
			return fmt.Errorf("start queue: %w", err)
		}
	}
	if a.consumer != nil && a.bars != nil {
		a.consumer.RegisterHandler(a.bars)
		if err := a.consumer.Start(); err != nil {
			return fmt.Errorf("start kafka consumer: %w", err)
		}
		a.log.Info("bar ingestion started", logger.String("topic", a.bars.Topic()))
	}
	if a.sched != nil {
		a.sched.Start()
		for _, next := range a.sched.Next() {
			a.log.Info("batch scheduled", logger.String("next_run", next.Format(time.RFC3339)))
		}
	}
	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			return fmt.Errorf("start http server: %w", err)
		}
	}
	return nil
}

// Close stops the components and releases resources. Errors are logged.
func (a *App) Close(ctx context.Context) {
	a.log.Info("shutting down")

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", logger.Error(err))
		}
	}
	if a.sched != nil {
		a.sched.Stop()
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", logger.Error(err))
		}
	}
	if a.queue != nil {
		if err := a.queue.Stop(ctx); err != nil {
			a.log.Warn("queue stop error", logger.Error(err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.log.Warn("close error", logger.String("resource", c.name), logger.Error(err))
		}
	}
	a.log.Info("shutdown complete")
}

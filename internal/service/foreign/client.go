// Package foreign fetches the overnight foreign market snapshot (leading
// index futures move and volatility level) over HTTP.
package foreign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"FinScan/internal/domain/models"
	domrepo "FinScan/internal/domain/repository"
	"FinScan/internal/service/ratelimit"
	"FinScan/pkg/http"
	"FinScan/pkg/logger"
	"FinScan/pkg/util"
)

const LimiterKey = "foreign"

// Config locates the snapshot endpoint and tunes retry and breaker.
type Config struct {
	URL        string
	Timeout    time.Duration
	RetryDelay time.Duration
	// consecutive failures before the breaker opens
	TripAfter   uint32
	OpenTimeout time.Duration
}

type snapshotResponse struct {
	Date            string  `json:"date"`
	TrendDelta      float64 `json:"trend_delta"`
	VolatilityLevel float64 `json:"volatility_level"`
	Valid           *bool   `json:"valid"`
}

// Client implements ForeignSnapshotProvider. A failed call is retried once
// after RetryDelay; repeated failures open the breaker so later dates fail
// fast and the classifier falls back to a neutral foreign score.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *ratelimit.Limiter
	log     *logger.Logger
	sleep   func(context.Context, time.Duration) error
}

var _ domrepo.ForeignSnapshotProvider = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithLimiter paces calls through the shared upstream limiter.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(cl *Client) { cl.limiter = l }
}

// New builds a client; an empty URL is ErrConfiguration.
func New(cfg Config, log *logger.Logger, opts ...Option) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: foreign snapshot url is empty", models.ErrConfiguration)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if cfg.TripAfter == 0 {
		cfg.TripAfter = 3
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = time.Minute
	}
	if log == nil {
		log = logger.NewNop()
	}
	log = log.With(logger.String("component", "foreign_snapshot"))

	c := &Client{
		cfg:   cfg,
		http:  http.NewClient(http.WithTimeout(cfg.Timeout)),
		log:   log,
		sleep: sleepCtx,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "foreign_snapshot",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.TripAfter
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		},
	})
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetForeignSnapshot fetches the snapshot for date, retrying once. All
// failures wrap ErrUpstreamDataUnavailable.
func (c *Client) GetForeignSnapshot(ctx context.Context, date time.Time) (models.ForeignSnapshot, error) {
	day := models.TradingDay(date)
	snap, err := c.fetch(ctx, day)
	if err == nil {
		return snap, nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || ctx.Err() != nil {
		return models.ForeignSnapshot{}, fmt.Errorf("%w: foreign snapshot %s: %v", models.ErrUpstreamDataUnavailable, day.Format(util.DateLayout), err)
	}

	c.log.Warn("foreign snapshot failed, retrying once",
		logger.Date("date", day),
		logger.Duration("delay", c.cfg.RetryDelay),
		logger.Error(err))
	if serr := c.sleep(ctx, c.cfg.RetryDelay); serr != nil {
		return models.ForeignSnapshot{}, fmt.Errorf("%w: foreign snapshot %s: %v", models.ErrUpstreamDataUnavailable, day.Format(util.DateLayout), serr)
	}
	snap, err = c.fetch(ctx, day)
	if err != nil {
		return models.ForeignSnapshot{}, fmt.Errorf("%w: foreign snapshot %s: %v", models.ErrUpstreamDataUnavailable, day.Format(util.DateLayout), err)
	}
	return snap, nil
}

func (c *Client) fetch(ctx context.Context, day time.Time) (models.ForeignSnapshot, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, LimiterKey); err != nil {
			return models.ForeignSnapshot{}, err
		}
	}
	out, err := c.breaker.Execute(func() (interface{}, error) {
		var resp snapshotResponse
		err := c.http.SendAndParse(ctx, &http.RequestOptions{
			Method:      "GET",
			URL:         c.cfg.URL,
			QueryParams: map[string][]string{"date": {day.Format(util.DateLayout)}},
			Headers:     map[string]string{"Accept": "application/json"},
		}, &resp)
		if err != nil {
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		return models.ForeignSnapshot{}, err
	}
	resp := out.(snapshotResponse)

	snap := models.ForeignSnapshot{
		Date:            day,
		TrendDelta:      resp.TrendDelta,
		VolatilityLevel: resp.VolatilityLevel,
		Valid:           resp.Valid == nil || *resp.Valid,
	}
	// a snapshot for another day is not blended into this one
	if resp.Date != "" {
		d, ok := util.ParseTime(resp.Date)
		if !ok || !models.TradingDay(d).Equal(day) {
			c.log.Warn("foreign snapshot date mismatch, marked invalid",
				logger.Date("requested", day),
				logger.String("served", resp.Date))
			snap.Valid = false
		}
	}
	return snap, nil
}

// State exposes the breaker state for health reporting.
func (c *Client) State() string {
	return c.breaker.State().String()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

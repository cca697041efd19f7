package regime

import (
	"context"
	"fmt"
	"time"

	"FinScan/internal/domain/models"
	domrepo "FinScan/internal/domain/repository"
	"FinScan/pkg/logger"
)

// Classifier combines the domestic proxy index move with the foreign
// snapshot into a MarketRegimeSnapshot.
type Classifier struct {
	prices  domrepo.PriceHistoryProvider
	foreign domrepo.ForeignSnapshotProvider
	proxy   string
	params  Params
	log     *logger.Logger
	metrics domrepo.Metrics
}

// NewClassifier classifies from the proxy index series and the foreign
// snapshot provider. foreign may be nil.
func NewClassifier(prices domrepo.PriceHistoryProvider, foreign domrepo.ForeignSnapshotProvider, proxy string, params Params, log *logger.Logger) (*Classifier, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if proxy == "" {
		return nil, fmt.Errorf("%w: regime proxy symbol is required", models.ErrConfiguration)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Classifier{
		prices:  prices,
		foreign: foreign,
		proxy:   proxy,
		params:  params,
		log:     log.With(logger.String("component", "regime")),
	}, nil
}

func (c *Classifier) SetMetrics(m domrepo.Metrics) { c.metrics = m }

// Classify never returns an error for missing upstream data.
func (c *Classifier) Classify(ctx context.Context, date time.Time) (models.MarketRegimeSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return models.MarketRegimeSnapshot{}, err
	}

	dom, err := c.domestic(ctx, date)
	if err != nil {
		c.log.Warn("domestic proxy unavailable, regime degraded to neutral",
			logger.String("proxy", c.proxy), logger.Date("date", date), logger.Error(err))
		c.miss("domestic")
	}

	var foreign *models.ForeignSnapshot
	if c.foreign != nil {
		fs, ferr := c.foreign.GetForeignSnapshot(ctx, date)
		switch {
		case ferr != nil:
			c.log.Warn("foreign snapshot unavailable, using neutral foreign score",
				logger.Date("date", date), logger.Error(ferr))
			c.miss("foreign")
		case !fs.Valid:
			c.log.Warn("foreign snapshot flagged invalid, using neutral foreign score", logger.Date("date", date))
			c.miss("foreign")
		default:
			foreign = &fs
		}
	} else {
		c.log.Debug("no foreign snapshot provider configured")
	}

	snap := Combine(date, dom, foreign, c.params)
	c.log.Info("regime classified",
		logger.Date("date", date),
		logger.String("regime", string(snap.FinalRegime)),
		logger.Float64("final_score", snap.FinalScore),
		logger.String("confidence", string(snap.Confidence)),
	)
	return snap, nil
}

func (c *Classifier) domestic(ctx context.Context, date time.Time) (*models.DomesticSignal, error) {
	series, err := c.prices.GetOHLCV(ctx, c.proxy, 2, date)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUpstreamDataUnavailable, err)
	}
	if len(series) < 2 {
		return nil, fmt.Errorf("%w: %d proxy bars", models.ErrUpstreamDataUnavailable, len(series))
	}
	prev, last := series[len(series)-2], series[len(series)-1]
	if prev.Close <= 0 {
		return nil, fmt.Errorf("%w: non-positive previous close", models.ErrUpstreamDataUnavailable)
	}
	// the intraday drop is measured from the session open so that an
	// overnight gap alone does not count as a breach
	open := last.Open
	if open <= 0 {
		open = prev.Close
	}
	return &models.DomesticSignal{
		Return:       (last.Close/prev.Close - 1) * 100,
		Volatility:   (last.High - last.Low) / prev.Close * 100,
		IntradayDrop: (last.Low/open - 1) * 100,
	}, nil
}

func (c *Classifier) miss(kind string) {
	if c.metrics != nil {
		c.metrics.RecordUpstreamMiss(kind)
	}
}

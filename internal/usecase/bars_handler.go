package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"FinScan/internal/domain/models"
	domrepo "FinScan/internal/domain/repository"
	pkgkafka "FinScan/pkg/kafka"
	"FinScan/pkg/logger"
	"FinScan/pkg/util"
)

// RegimeInvalidator drops cached regime snapshots for a date.
type RegimeInvalidator interface {
	Invalidate(ctx context.Context, date time.Time) error
}

// BarsHandler consumes end-of-day bars and writes them to storage. A late
// bar of the regime proxy invalidates that date's cached regime.
type BarsHandler struct {
	topic   string
	proxy   string
	storage domrepo.BarStorage
	regime  RegimeInvalidator
	metrics domrepo.Metrics
	log     *logger.Logger
}

// NewBarsHandler stores bars from topic. Bars of the proxy symbol
// invalidate the regime cached for their date.
func NewBarsHandler(topic, proxy string, storage domrepo.BarStorage, regime RegimeInvalidator, log *logger.Logger) *BarsHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &BarsHandler{
		topic:   topic,
		proxy:   models.NormalizeSymbol(proxy),
		storage: storage,
		regime:  regime,
		log:     log.With(logger.String("component", "bars_handler")),
	}
}

func (h *BarsHandler) SetMetrics(m domrepo.Metrics) { h.metrics = m }

func (h *BarsHandler) Topic() string { return h.topic }

// wire schema: one bar object or an array of them
type barMessage struct {
	Symbol string  `json:"symbol"`
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

func (m barMessage) candle() (models.Candle, error) {
	day, ok := util.ParseTime(m.Date)
	if !ok {
		return models.Candle{}, fmt.Errorf("bar %s: bad date %q", m.Symbol, m.Date)
	}
	c := models.Candle{
		Date:   models.TradingDay(day),
		Symbol: models.NormalizeSymbol(m.Symbol),
		Open:   m.Open,
		High:   m.High,
		Low:    m.Low,
		Close:  m.Close,
		Volume: m.Volume,
	}
	switch {
	case c.Symbol == "":
		return c, fmt.Errorf("bar without symbol")
	case c.Close <= 0 || c.Open <= 0:
		return c, fmt.Errorf("bar %s %s: non-positive price", c.Symbol, m.Date)
	case c.High < c.Low:
		return c, fmt.Errorf("bar %s %s: high below low", c.Symbol, m.Date)
	case c.Volume < 0:
		return c, fmt.Errorf("bar %s %s: negative volume", c.Symbol, m.Date)
	}
	return c, nil
}

func (h *BarsHandler) Handle(ctx context.Context, b []byte) error {
	var msgs []barMessage
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &msgs); err != nil {
			h.recordError("bars_unmarshal")
			return err
		}
	} else {
		var one barMessage
		if err := json.Unmarshal(trimmed, &one); err != nil {
			h.recordError("bars_unmarshal")
			return err
		}
		msgs = []barMessage{one}
	}

	bars := make([]models.Candle, 0, len(msgs))
	var proxyDates []time.Time
	for _, m := range msgs {
		c, err := m.candle()
		if err != nil {
			h.recordError("bars_invalid")
			return err
		}
		bars = append(bars, c)
		if h.proxy != "" && c.Symbol == h.proxy {
			proxyDates = append(proxyDates, c.Date)
		}
	}
	if len(bars) == 0 {
		return nil
	}

	start := time.Now()
	err := h.storage.StoreBars(ctx, bars)
	if h.metrics != nil {
		h.metrics.RecordLatency("bars_store", time.Since(start).Seconds())
	}
	if err != nil {
		h.recordError("bars_store")
		return err
	}

	for _, d := range proxyDates {
		if h.regime == nil {
			break
		}
		if err := h.regime.Invalidate(ctx, d); err != nil {
			h.log.Warn("regime cache invalidation failed", logger.Date("date", d), logger.Error(err))
		}
	}
	h.log.Debug("bars stored", logger.Int("bars", len(bars)), logger.String("trace_id", pkgkafka.TraceID(ctx)))
	return nil
}

func (h *BarsHandler) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}

var _ pkgkafka.MessageHandler = (*BarsHandler)(nil)

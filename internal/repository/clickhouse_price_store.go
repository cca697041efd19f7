package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"FinScan/internal/domain/models"
	pkgch "FinScan/pkg/clickhouse"
	applogger "FinScan/pkg/logger"
)

// ClickHouse tables, created by InitSchema.
const (
	candlesTable = "finscan.daily_candles"
	regimeTable  = "finscan.regime_snapshots"
)

// Schema lists the idempotent DDL for the price store.
func Schema() []string {
	return []string{
		`CREATE DATABASE IF NOT EXISTS finscan`,
		`CREATE TABLE IF NOT EXISTS finscan.daily_candles (
			symbol LowCardinality(String),
			date Date,
			open Float64,
			high Float64,
			low Float64,
			close Float64,
			volume Float64,
			ingested_at DateTime DEFAULT now()
		) ENGINE = ReplacingMergeTree(ingested_at)
		PARTITION BY toYear(date)
		ORDER BY (symbol, date)`,
		`CREATE TABLE IF NOT EXISTS finscan.symbols (
			code String,
			name String,
			market LowCardinality(String),
			updated_at DateTime DEFAULT now()
		) ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY code`,
		`CREATE TABLE IF NOT EXISTS finscan.regime_snapshots (
			date Date,
			final_regime LowCardinality(String),
			final_score Float64,
			confidence LowCardinality(String),
			payload String,
			created_at DateTime DEFAULT now()
		) ENGINE = ReplacingMergeTree(created_at)
		ORDER BY date`,
	}
}

// UniverseOptions selects the liquidity-ranked universe.
type UniverseOptions struct {
	TopN       int
	Markets    []string
	Exclude    []string
	WindowDays int
}

// CHPriceStore serves daily candles and the universe from ClickHouse and
// archives regime snapshots.
type CHPriceStore struct {
	db       *sql.DB
	l        *applogger.Logger
	universe UniverseOptions
}

// NewCHPriceStore reads and writes daily candles through ch.
func NewCHPriceStore(ch *pkgch.Client, universe UniverseOptions) *CHPriceStore {
	return NewCHPriceStoreDB(ch.DB(), universe)
}

// NewCHPriceStoreDB builds the store on an open database handle.
func NewCHPriceStoreDB(db *sql.DB, universe UniverseOptions) *CHPriceStore {
	if universe.TopN <= 0 {
		universe.TopN = 200
	}
	if universe.WindowDays <= 0 {
		universe.WindowDays = 30
	}
	return &CHPriceStore{db: db, l: applogger.NewNop(), universe: universe}
}

// SetLogger injects a structured logger.
func (s *CHPriceStore) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l.With(applogger.String("component", "ch_price_store"))
	}
}

// GetOHLCV returns up to count candles on or before asOf, ascending.
func (s *CHPriceStore) GetOHLCV(ctx context.Context, symbol string, count int, asOf time.Time) ([]models.Candle, error) {
	start := time.Now()
	const q = `
        SELECT symbol, date, open, high, low, close, volume
        FROM finscan.daily_candles FINAL
        WHERE symbol = ? AND date <= ?
        ORDER BY date DESC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, q, symbol, models.TradingDay(asOf), count)
	if err != nil {
		s.l.Error("clickhouse ohlcv query error", applogger.String("symbol", symbol), applogger.Error(err))
		return nil, fmt.Errorf("%w: ohlcv %s: %v", models.ErrUpstreamDataUnavailable, symbol, err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, count)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Symbol, &c.Date, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.Date = models.TradingDay(c.Date)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no candles for %s on or before %s", models.ErrUpstreamDataUnavailable, symbol, asOf.Format("2006-01-02"))
	}
	// reverse to ASC
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	s.l.Debug("clickhouse ohlcv ok",
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration", time.Since(start)))
	return out, nil
}

// GetUniverse ranks symbols by mean daily turnover over the window ending
// on date. Ties break by code so the order is stable.
func (s *CHPriceStore) GetUniverse(ctx context.Context, date time.Time) ([]models.Symbol, error) {
	day := models.TradingDay(date)
	args := []interface{}{day.AddDate(0, 0, -s.universe.WindowDays), day}

	var where []string
	if len(s.universe.Markets) > 0 {
		where = append(where, "s.market IN ("+placeholders(len(s.universe.Markets))+")")
		for _, m := range s.universe.Markets {
			args = append(args, m)
		}
	}
	if len(s.universe.Exclude) > 0 {
		where = append(where, "t.symbol NOT IN ("+placeholders(len(s.universe.Exclude))+")")
		for _, e := range s.universe.Exclude {
			args = append(args, models.NormalizeSymbol(e))
		}
	}
	filter := ""
	if len(where) > 0 {
		filter = "WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, s.universe.TopN)

	q := fmt.Sprintf(`
        SELECT t.symbol, s.name, s.market
        FROM (
            SELECT symbol, avg(close * volume) AS turnover
            FROM finscan.daily_candles FINAL
            WHERE date > ? AND date <= ?
            GROUP BY symbol
        ) AS t
        LEFT JOIN (SELECT code, name, market FROM finscan.symbols FINAL) AS s ON s.code = t.symbol
        %s
        ORDER BY t.turnover DESC, t.symbol ASC
        LIMIT ?
    `, filter)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse universe query error", applogger.Date("date", day), applogger.Error(err))
		return nil, fmt.Errorf("%w: universe: %v", models.ErrUpstreamDataUnavailable, err)
	}
	defer rows.Close()

	var out []models.Symbol
	for rows.Next() {
		var sym models.Symbol
		if err := rows.Scan(&sym.Code, &sym.Name, &sym.Market); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		out = append(out, sym)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Info("clickhouse universe ok", applogger.Date("date", day), applogger.Int("symbols", len(out)))
	return out, nil
}

// StoreBars inserts candles in chunks; re-sent bars replace older rows.
func (s *CHPriceStore) StoreBars(ctx context.Context, bars []models.Candle) error {
	const chunkSize = 2000
	for start := 0; start < len(bars); start += chunkSize {
		end := start + chunkSize
		if end > len(bars) {
			end = len(bars)
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*7)
		for _, c := range bars[start:end] {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
			args = append(args, c.Symbol, models.TradingDay(c.Date), c.Open, c.High, c.Low, c.Close, c.Volume)
		}
		q := "INSERT INTO " + candlesTable + " (symbol, date, open, high, low, close, volume) VALUES " + strings.Join(values, ",")
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse insert bars error", applogger.Int("rows", end-start), applogger.Error(err))
			return fmt.Errorf("insert bars: %w", err)
		}
	}
	return nil
}

// SaveRegime archives a snapshot; the latest write per date wins.
func (s *CHPriceStore) SaveRegime(ctx context.Context, snap models.MarketRegimeSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal regime: %w", err)
	}
	q := "INSERT INTO " + regimeTable + " (date, final_regime, final_score, confidence, payload) VALUES (?, ?, ?, ?, ?)"
	if _, err := s.db.ExecContext(ctx, q,
		models.TradingDay(snap.Date), string(snap.FinalRegime), snap.FinalScore, string(snap.Confidence), string(payload)); err != nil {
		s.l.Error("clickhouse save regime error", applogger.Date("date", snap.Date), applogger.Error(err))
		return fmt.Errorf("save regime: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

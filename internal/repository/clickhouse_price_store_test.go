package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinScan/internal/domain/models"
)

func chDay(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func newMockStore(t *testing.T, opts UniverseOptions) (*CHPriceStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewCHPriceStoreDB(db, opts), mock
}

func TestCHPriceStore_GetOHLCVAscending(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t, UniverseOptions{})
	asOf := time.Date(2024, 6, 4, 15, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"symbol", "date", "open", "high", "low", "close", "volume"}).
		AddRow("AAA", chDay(2024, 6, 4), 11.0, 12.0, 10.5, 11.5, 900.0).
		AddRow("AAA", chDay(2024, 6, 3), 10.0, 11.0, 9.5, 10.5, 1000.0)
	mock.ExpectQuery(regexp.QuoteMeta("FROM finscan.daily_candles FINAL")).
		WithArgs("AAA", chDay(2024, 6, 4), 2).
		WillReturnRows(rows)

	got, err := s.GetOHLCV(context.Background(), "AAA", 2, asOf)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, chDay(2024, 6, 3), got[0].Date)
	assert.Equal(t, 11.5, got[1].Close)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCHPriceStore_GetOHLCVMissing(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t, UniverseOptions{})
	mock.ExpectQuery("daily_candles").
		WillReturnRows(sqlmock.NewRows([]string{"symbol", "date", "open", "high", "low", "close", "volume"}))
	mock.ExpectQuery("daily_candles").WillReturnError(errors.New("connection reset"))

	_, err := s.GetOHLCV(context.Background(), "ZZZ", 10, chDay(2024, 6, 3))
	assert.ErrorIs(t, err, models.ErrUpstreamDataUnavailable)
	_, err = s.GetOHLCV(context.Background(), "ZZZ", 10, chDay(2024, 6, 3))
	assert.ErrorIs(t, err, models.ErrUpstreamDataUnavailable)
}

func TestCHPriceStore_GetUniverseFilters(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t, UniverseOptions{TopN: 2, Markets: []string{"KOSPI", "KOSDAQ"}, Exclude: []string{"kospi"}, WindowDays: 20})
	d := chDay(2024, 6, 3)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE s.market IN (?, ?) AND t.symbol NOT IN (?)")).
		WithArgs(d.AddDate(0, 0, -20), d, "KOSPI", "KOSDAQ", "KOSPI", 2).
		WillReturnRows(sqlmock.NewRows([]string{"symbol", "name", "market"}).
			AddRow("005930", "Samsung Electronics", "KOSPI").
			AddRow("000660", "SK hynix", "KOSPI"))

	got, err := s.GetUniverse(context.Background(), d.Add(9*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []models.Symbol{
		{Code: "005930", Name: "Samsung Electronics", Market: "KOSPI"},
		{Code: "000660", Name: "SK hynix", Market: "KOSPI"},
	}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCHPriceStore_StoreBarsChunks(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t, UniverseOptions{})
	bars := make([]models.Candle, 2001)
	for i := range bars {
		bars[i] = models.Candle{Symbol: "AAA", Date: chDay(2020, 1, 1).AddDate(0, 0, i), Open: 1, High: 1, Low: 1, Close: 1}
	}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO finscan.daily_candles")).WillReturnResult(sqlmock.NewResult(0, 2000))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO finscan.daily_candles")).
		WithArgs("AAA", chDay(2020, 1, 1).AddDate(0, 0, 2000), 1.0, 1.0, 1.0, 1.0, 0.0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.StoreBars(context.Background(), bars))
	require.NoError(t, s.StoreBars(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCHPriceStore_SaveRegime(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t, UniverseOptions{})
	snap := models.MarketRegimeSnapshot{Date: chDay(2024, 6, 3), FinalRegime: models.RegimeBear, FinalScore: -1.4, Confidence: models.ConfidenceDegraded}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO finscan.regime_snapshots")).
		WithArgs(chDay(2024, 6, 3), "bear", -1.4, "degraded", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.SaveRegime(context.Background(), snap))
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Len(t, Schema(), 4)
}

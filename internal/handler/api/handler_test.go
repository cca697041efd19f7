package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinScan/internal/domain/models"
	domrepo "FinScan/internal/domain/repository"
	"FinScan/internal/usecase"
)

type fakeScan struct {
	got  usecase.ScanRequest
	date time.Time
	err  error
}

func (f *fakeScan) Run(_ context.Context, req usecase.ScanRequest) (models.ScanResult, error) {
	f.got = req
	if f.err != nil {
		return models.ScanResult{}, f.err
	}
	return models.ScanResult{Date: req.Date, Version: "v2", StepCounts: []int{3}, Candidates: []models.ScanCandidate{}}, nil
}

func (f *fakeScan) Regime(_ context.Context, date time.Time) (models.MarketRegimeSnapshot, error) {
	f.date = date
	return models.MarketRegimeSnapshot{Date: date, FinalRegime: models.RegimeBull}, f.err
}

type fakeRecs struct {
	filter domrepo.RecommendationFilter
	err    error
}

func (f *fakeRecs) Run(_ context.Context, date time.Time) (models.EvaluationReport, error) {
	return models.EvaluationReport{Date: date, Evaluated: 2}, f.err
}

func (f *fakeRecs) List(_ context.Context, filter domrepo.RecommendationFilter) ([]*models.Recommendation, error) {
	f.filter = filter
	return []*models.Recommendation{}, f.err
}

func (f *fakeRecs) Get(_ context.Context, id string) (*models.Recommendation, error) {
	return nil, errors.Join(f.err, models.ErrNotFound)
}

type fakeCache struct{ dates []time.Time }

func (f *fakeCache) Invalidate(_ context.Context, d time.Time) error {
	f.dates = append(f.dates, d)
	return nil
}

func (f *fakeCache) InvalidateAll(context.Context) error {
	f.dates = append(f.dates, time.Time{})
	return nil
}

var wednesday = time.Date(2024, 6, 5, 16, 0, 0, 0, time.UTC)

func serve(t *testing.T, h *Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestScan_DefaultsToTodayAndApply(t *testing.T) {
	t.Parallel()

	scan := &fakeScan{}
	h := NewHandler(scan, &fakeRecs{}, nil, WithClock(func() time.Time { return wednesday }))

	rec, out := serve(t, h, http.MethodPost, "/api/scan", `{"universe":["fpt","HPG"],"strategy":"swing"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 200, out["status"])
	assert.Equal(t, time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC), scan.got.Date)
	assert.Equal(t, models.HorizonSwing, scan.got.Strategy)
	assert.Equal(t, []string{"fpt", "HPG"}, scan.got.Universe)
	assert.True(t, scan.got.Apply)
}

func TestScan_ExplicitDateWithoutApply(t *testing.T) {
	t.Parallel()

	scan := &fakeScan{}
	h := NewHandler(scan, &fakeRecs{}, nil)

	rec, _ := serve(t, h, http.MethodPost, "/api/scan", `{"date":"2024-06-03","apply":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), scan.got.Date)
	assert.False(t, scan.got.Apply)
}

func TestScan_RejectsBadInput(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"bad date":       `{"date":"03/06/2024"}`,
		"bad strategy":   `{"strategy":"daytrade"}`,
		"blank symbol":   `{"universe":[""]}`,
		"malformed json": `{"date":`,
	}
	for name, body := range cases {
		body := body
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			scan := &fakeScan{}
			rec, out := serve(t, NewHandler(scan, &fakeRecs{}, nil), http.MethodPost, "/api/scan", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, out["data"])
			assert.True(t, scan.got.Date.IsZero())
		})
	}
}

func TestScan_MapsDomainErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		code int
	}{
		{models.ErrConfiguration, http.StatusBadRequest},
		{models.ErrStaleVersion, http.StatusConflict},
		{models.ErrInvalidTransition, http.StatusConflict},
		{models.ErrUpstreamDataUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h := NewHandler(&fakeScan{err: tc.err}, &fakeRecs{}, nil)
		rec, _ := serve(t, h, http.MethodPost, "/api/scan", `{}`)
		assert.Equal(t, tc.code, rec.Code, tc.err.Error())
	}
}

func TestRegime_UsesQueryDate(t *testing.T) {
	t.Parallel()

	scan := &fakeScan{}
	rec, out := serve(t, NewHandler(scan, &fakeRecs{}, nil), http.MethodGet, "/api/regime?date=2024-06-03", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), scan.date)
	data := out["data"].(map[string]interface{})
	assert.Equal(t, "bull", data["final_regime"])
}

func TestInvalidateRegime(t *testing.T) {
	t.Parallel()

	c := &fakeCache{}
	h := NewHandler(&fakeScan{}, &fakeRecs{}, nil, WithRegimeCache(c))

	rec, _ := serve(t, h, http.MethodDelete, "/api/regime/cache?date=2024-06-03", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec, _ = serve(t, h, http.MethodDelete, "/api/regime/cache", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []time.Time{time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), {}}, c.dates)

	rec, _ = serve(t, NewHandler(&fakeScan{}, &fakeRecs{}, nil), http.MethodDelete, "/api/regime/cache", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestList_FiltersAndDefaultLimit(t *testing.T) {
	t.Parallel()

	recs := &fakeRecs{}
	h := NewHandler(&fakeScan{}, recs, nil)

	rec, out := serve(t, h, http.MethodGet, "/api/recommendations?status=ACTIVE&symbol=fpt&strategy=position", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domrepo.RecommendationFilter{
		Status:   models.StatusActive,
		Symbol:   "FPT",
		Strategy: models.HorizonPosition,
		Limit:    100,
	}, recs.filter)
	data := out["data"].(map[string]interface{})
	assert.EqualValues(t, 0, data["total"])

	rec, _ = serve(t, h, http.MethodGet, "/api/recommendations?status=PENDING", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = serve(t, h, http.MethodGet, "/api/recommendations?limit=5000", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGet_NotFound(t *testing.T) {
	t.Parallel()

	rec, out := serve(t, NewHandler(&fakeScan{}, &fakeRecs{}, nil), http.MethodGet, "/api/recommendations/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	errs := out["data"].([]interface{})
	assert.Equal(t, "ERR_NOT_FOUND", errs[0].(map[string]interface{})["code"])
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	h := NewHandler(&fakeScan{}, &fakeRecs{}, nil)
	rec, out := serve(t, h, http.MethodPost, "/api/recommendations/evaluate", `{"date":"2024-06-04"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	data := out["data"].(map[string]interface{})
	assert.EqualValues(t, 2, data["evaluated"])
}

func TestHealth(t *testing.T) {
	t.Parallel()

	h := NewHandler(&fakeScan{}, &fakeRecs{}, nil,
		WithHealthCheck("database", func(context.Context) error { return nil }),
		WithHealthCheck("clickhouse", func(context.Context) error { return errors.New("dial tcp: refused") }))

	rec, out := serve(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, map[string]interface{}{"database": "ok", "clickhouse": "dial tcp: refused"}, out["data"])
}

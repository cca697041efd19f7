package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"FinScan/internal/domain/models"
	domrepo "FinScan/internal/domain/repository"
	"FinScan/internal/usecase"
	xhttp "FinScan/pkg/http"
	"FinScan/pkg/logger"
	"FinScan/pkg/util"
)

// ScanService is the scan entry point as seen by the API.
type ScanService interface {
	Run(ctx context.Context, req usecase.ScanRequest) (models.ScanResult, error)
	Regime(ctx context.Context, date time.Time) (models.MarketRegimeSnapshot, error)
}

// RecommendationService evaluates and reads recommendations.
type RecommendationService interface {
	Run(ctx context.Context, date time.Time) (models.EvaluationReport, error)
	List(ctx context.Context, f domrepo.RecommendationFilter) ([]*models.Recommendation, error)
	Get(ctx context.Context, id string) (*models.Recommendation, error)
}

// RegimeCache is the invalidation side of the regime cache.
type RegimeCache interface {
	Invalidate(ctx context.Context, date time.Time) error
	InvalidateAll(ctx context.Context) error
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Handler serves the scan, regime and recommendation endpoints.
type Handler struct {
	scan   ScanService
	recs   RecommendationService
	cache  RegimeCache
	checks map[string]HealthCheck
	now    func() time.Time
	log    *logger.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithRegimeCache enables the cache invalidation route.
func WithRegimeCache(c RegimeCache) Option {
	return func(h *Handler) { h.cache = c }
}

// WithHealthCheck adds a named dependency check to /healthz.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(h *Handler) {
		if check != nil {
			h.checks[name] = check
		}
	}
}

// WithClock sets the clock used when a request has no date. Its location
// decides the trading day.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// NewHandler builds the API handler.
func NewHandler(scan ScanService, recs RecommendationService, log *logger.Logger, opts ...Option) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	h := &Handler{
		scan:   scan,
		recs:   recs,
		checks: make(map[string]HealthCheck),
		now:    time.Now,
		log:    log.With(logger.String("component", "api")),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes mounts the API on e.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.POST("/scan", h.Scan)
	g.GET("/regime", h.Regime)
	g.DELETE("/regime/cache", h.InvalidateRegime)
	g.POST("/recommendations/evaluate", h.Evaluate)
	g.GET("/recommendations", h.List)
	g.GET("/recommendations/:id", h.Get)
}

func (h *Handler) Scan(c echo.Context) error {
	req := &ScanRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.ValidationResponse(c, verr)
	}
	apply := req.Apply == nil || *req.Apply
	res, err := h.scan.Run(c.Request().Context(), usecase.ScanRequest{
		Date:     h.dateOrToday(req.Date),
		Universe: req.Universe,
		Strategy: models.Horizon(req.Strategy),
		Apply:    apply,
	})
	if err != nil {
		return h.fail(c, "scan", err)
	}
	h.log.Info("scan served",
		logger.Date("date", res.Date),
		logger.String("regime", string(res.Regime.FinalRegime)),
		logger.Int("step", res.Step),
		logger.Int("candidates", len(res.Candidates)),
		logger.Bool("applied", res.Applied != nil))
	return xhttp.SuccessResponse(c, res)
}

func (h *Handler) Regime(c echo.Context) error {
	req := &RegimeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.ValidationResponse(c, verr)
	}
	snap, err := h.scan.Regime(c.Request().Context(), h.dateOrToday(req.Date))
	if err != nil {
		return h.fail(c, "regime", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, snap)
}

// InvalidateRegime drops one cached date, or every date when none is given.
func (h *Handler) InvalidateRegime(c echo.Context) error {
	if h.cache == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("regime cache is not configured"))
	}
	req := &RegimeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.ValidationResponse(c, verr)
	}
	ctx := c.Request().Context()
	var err error
	if req.Date == "" {
		err = h.cache.InvalidateAll(ctx)
	} else {
		err = h.cache.Invalidate(ctx, h.dateOrToday(req.Date))
	}
	if err != nil {
		return h.fail(c, "invalidate regime", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Evaluate(c echo.Context) error {
	req := &EvaluateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.ValidationResponse(c, verr)
	}
	rep, err := h.recs.Run(c.Request().Context(), h.dateOrToday(req.Date))
	if err != nil {
		return h.fail(c, "evaluate", err)
	}
	return xhttp.SuccessResponse(c, rep)
}

func (h *Handler) List(c echo.Context) error {
	req := &ListRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.ValidationResponse(c, verr)
	}
	recs, err := h.recs.List(c.Request().Context(), domrepo.RecommendationFilter{
		Status:   models.Status(req.Status),
		Symbol:   models.NormalizeSymbol(req.Symbol),
		Strategy: models.Horizon(req.Strategy),
		Limit:    req.Limit,
	})
	if err != nil {
		return h.fail(c, "list recommendations", err)
	}
	return xhttp.ListResponse(c, recs, int64(len(recs)))
}

func (h *Handler) Get(c echo.Context) error {
	rec, err := h.recs.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, "get recommendation", err)
	}
	return xhttp.SuccessResponse(c, rec)
}

func (h *Handler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	report := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.log.Warn("health check failed", logger.String("dependency", name), logger.Error(err))
			report[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		report[name] = "ok"
	}
	return xhttp.DataResponse(c, status, report)
}

func (h *Handler) dateOrToday(s string) time.Time {
	if t, ok := util.ParseTime(s); ok {
		return models.TradingDay(t)
	}
	return models.TradingDay(h.now())
}

func (h *Handler) fail(c echo.Context, op string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.log.Error(op+" failed", logger.Error(err))
	} else {
		h.log.Warn(op+" rejected", logger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

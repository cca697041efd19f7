package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"FinScan/internal/domain/models"
	domrepo "FinScan/internal/domain/repository"
	"FinScan/internal/handler/api"
	internalrepo "FinScan/internal/repository"
	"FinScan/internal/service/foreign"
	"FinScan/internal/service/ratelimit"
	"FinScan/internal/services/regime"
	"FinScan/internal/usecase"
	"FinScan/pkg/cache"
	pkgch "FinScan/pkg/clickhouse"
	"FinScan/pkg/config"
	"FinScan/pkg/database"
	xhttp "FinScan/pkg/http"
	pkgkafka "FinScan/pkg/kafka"
	"FinScan/pkg/logger"
	"FinScan/pkg/metrics"
	"FinScan/pkg/queue"
	"FinScan/pkg/scheduler"
	"FinScan/pkg/server"
)

// ProvideLogger builds the application logger from config.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(logger.String("env", cfg.Environment)), nil
}

// ProvideMetrics registers the domain collectors on the default registry.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New(prometheus.DefaultRegisterer)
}

// ProvideClickHouseClient connects and, when enabled, creates the schema.
func ProvideClickHouseClient(cfg *config.Config, log *logger.Logger) (*pkgch.Client, error) {
	c := cfg.ClickHouse
	client, err := pkgch.NewClient(
		pkgch.WithAddress(c.Host, c.Port),
		pkgch.WithDatabase(c.Database),
		pkgch.WithCredentials(c.User, c.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(c.UseHTTP),
		pkgch.WithAsyncInsert(c.AsyncInsert, c.WaitForAsync),
		pkgch.WithTimeouts(c.DialTimeout, c.ReadTimeout),
		pkgch.WithMaxExecutionTime(c.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	if !c.InitSchema {
		return client, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.Schema()); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	log.Info("clickhouse schema ready", logger.String("database", c.Database))
	return client, nil
}

func ProvideCHPriceStore(client *pkgch.Client, cfg *config.Config, log *logger.Logger) *internalrepo.CHPriceStore {
	store := internalrepo.NewCHPriceStore(client, internalrepo.UniverseOptions{
		TopN:       cfg.Universe.TopN,
		Markets:    cfg.Universe.Markets,
		Exclude:    cfg.Universe.Exclude,
		WindowDays: cfg.Universe.WindowDays,
	})
	store.SetLogger(log)
	return store
}

// ProvideLimiter paces the price store and the foreign feed separately.
// Keys without a configured rate are unlimited.
func ProvideLimiter(cfg *config.Config) *ratelimit.Limiter {
	l := ratelimit.New(0, 0)
	l.Set(internalrepo.PricesLimiterKey, cfg.Upstream.PricesPerSecond, cfg.Upstream.PricesBurst)
	l.Set(foreign.LimiterKey, cfg.Upstream.ForeignPerSecond, 1)
	return l
}

// ProvideRedisCache returns nil when redis is disabled.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	r := cfg.Redis
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(r.Host),
		cache.WithRedisPort(r.Port),
		cache.WithRedisPassword(r.Password),
		cache.WithRedisDB(r.DB),
		cache.WithRedisPool(r.PoolSize, 2, r.Timeout),
		cache.WithRedisPrefix(r.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvideCache layers memory over redis, or uses memory alone.
func ProvideCache(rc *cache.RedisCache, cfg *config.Config) cache.Service {
	if rc == nil {
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(10000))
	}
	return cache.NewLayeredCache(rc,
		cache.WithLayeredMemorySize(10000),
		cache.WithLayeredMemoryTTL(cfg.Redis.MemoryTTL))
}

// ProvidePrices reads candles through the cache, pacing cache misses.
func ProvidePrices(store *internalrepo.CHPriceStore, limiter *ratelimit.Limiter, svc cache.Service, cfg *config.Config) domrepo.PriceHistoryProvider {
	return internalrepo.NewCachedPrices(internalrepo.NewPacedPrices(store, limiter), svc, cfg.Upstream.PriceCacheTTL)
}

// ProvideUniverse pins the configured symbols or ranks by liquidity.
func ProvideUniverse(store *internalrepo.CHPriceStore, cfg *config.Config) (domrepo.UniverseProvider, error) {
	if len(cfg.Universe.Symbols) == 0 {
		return store, nil
	}
	return internalrepo.NewStaticUniverse(cfg.Universe.Symbols)
}

// ProvideForeign returns nil without a configured URL; the regime then
// runs on the domestic signal alone.
func ProvideForeign(cfg *config.Config, limiter *ratelimit.Limiter, log *logger.Logger) (domrepo.ForeignSnapshotProvider, error) {
	if cfg.Foreign.URL == "" {
		log.Warn("foreign snapshot url not set, regime confidence will be degraded")
		return nil, nil
	}
	f := cfg.Foreign
	client, err := foreign.New(foreign.Config{
		URL:         f.URL,
		Timeout:     f.Timeout,
		RetryDelay:  f.RetryDelay,
		TripAfter:   f.TripAfter,
		OpenTimeout: f.OpenTimeout,
	}, log, foreign.WithLimiter(limiter))
	if err != nil {
		return nil, err
	}
	return client, nil
}

// RegimeParams overlays configured thresholds on the built-in ones.
func RegimeParams(c config.RegimeConfig) regime.Params {
	p := regime.DefaultParams()
	p.DomesticWeight = c.DomesticWeight
	p.ForeignWeight = c.ForeignWeight
	p.BullThreshold = c.BullThreshold
	p.BearThreshold = c.BearThreshold
	p.CrashThreshold = c.CrashThreshold
	p.CrashDropPct = c.CrashDropPct

	t := c.Tiers
	overlay(&p.Tiers.StrongReturnPct, t.StrongReturnPct)
	overlay(&p.Tiers.HighReturnPct, t.HighReturnPct)
	overlay(&p.Tiers.LowReturnPct, t.LowReturnPct)
	overlay(&p.Tiers.LowVolPct, t.LowVolPct)
	overlay(&p.Tiers.HighVolPct, t.HighVolPct)
	overlay(&p.Tiers.ForeignHighDeltaPct, t.ForeignHighDeltaPct)
	overlay(&p.Tiers.ForeignLowDeltaPct, t.ForeignLowDeltaPct)
	overlay(&p.Tiers.VixCalm, t.VixCalm)
	overlay(&p.Tiers.VixElevated, t.VixElevated)
	overlay(&p.Tiers.VixExtreme, t.VixExtreme)
	return p
}

func overlay(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

// ProvideRegimeClassifier builds the cached classifier and archives every
// fresh snapshot to ClickHouse.
func ProvideRegimeClassifier(
	prices domrepo.PriceHistoryProvider,
	fs domrepo.ForeignSnapshotProvider,
	svc cache.Service,
	store *internalrepo.CHPriceStore,
	rec *metrics.Recorder,
	cfg *config.Config,
	log *logger.Logger,
) (*regime.CachedClassifier, error) {
	inner, err := regime.NewClassifier(prices, fs, cfg.Regime.ProxySymbol, RegimeParams(cfg.Regime), log)
	if err != nil {
		return nil, err
	}
	inner.SetMetrics(rec)
	cc := regime.NewCachedClassifier(inner, regime.NewCache(svc, cfg.Regime.CacheTTL, cfg.Regime.DegradedTTL), log)
	cc.SetArchive(store)
	cc.SetMetrics(rec)
	return cc, nil
}

// ScanParams overlays configured bands, ladder and multipliers on the
// built-in ones.
func ScanParams(c config.ScanConfig) (usecase.ScanConfig, error) {
	sc := usecase.DefaultScanConfig()
	sc.Workers = c.Workers
	sc.LookbackBars = c.LookbackBars
	sc.Benchmark = c.BenchmarkSymbol
	for name, b := range c.Bands {
		r := models.Regime(name)
		if !r.Valid() {
			return sc, fmt.Errorf("%w: unknown regime band %q", models.ErrConfiguration, name)
		}
		sc.Bands[r] = usecase.Band{Min: b.Min, Max: b.Max}
	}
	if len(c.Steps) > 0 {
		sc.Steps = make([]usecase.StepPreset, 0, len(c.Steps))
		for _, s := range c.Steps {
			sc.Steps = append(sc.Steps, usecase.StepPreset{
				MaxGapPct:       s.MaxGapPct,
				MaxExtensionPct: s.MaxExtensionPct,
				MinSignals:      s.MinSignals,
				MinScore:        s.MinScore,
			})
		}
	}
	for name, m := range c.RiskMultipliers {
		r := models.Regime(name)
		if !r.Valid() {
			return sc, fmt.Errorf("%w: unknown regime multiplier %q", models.ErrConfiguration, name)
		}
		sc.RiskMultipliers[r] = m
	}
	return sc, sc.Validate()
}

func ProvideScanner(prices domrepo.PriceHistoryProvider, rec *metrics.Recorder, cfg *config.Config, log *logger.Logger) (*usecase.ScanController, error) {
	sc, err := ScanParams(cfg.Scan)
	if err != nil {
		return nil, err
	}
	s, err := usecase.NewScanner(cfg.Scan.Version, sc, prices, log)
	if err != nil {
		return nil, err
	}
	s.SetMetrics(rec)
	return s, nil
}

func ProvideDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	return db, nil
}

// ProvideRecommendationStore migrates the recommendations table.
func ProvideRecommendationStore(db *gorm.DB) (domrepo.RecommendationStore, error) {
	store := internalrepo.NewGormRecommendationStore(db)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate recommendations: %w", err)
	}
	return store, nil
}

// ProvideKafkaProducer returns nil when kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	p := cfg.Kafka.Producer
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(p.Compression),
		pkgkafka.WithRequiredAcks(p.RequiredAcks),
		pkgkafka.WithMaxAttempts(p.MaxAttempts),
		pkgkafka.WithBatchTimeout(p.BatchTimeout),
		pkgkafka.WithAsync(p.Async),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideEventPublisher returns nil without a producer; lifecycle events
// are then only logged.
func ProvideEventPublisher(producer *pkgkafka.Producer, cfg *config.Config) domrepo.EventPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.EventsTopic)
}

// LifecycleParams overlays configured strategies on the built-in ones.
func LifecycleParams(cfg *config.Config) (usecase.LifecycleConfig, error) {
	lc := usecase.DefaultLifecycleConfig()
	lc.PhaseBandPct = cfg.Lifecycle.PhaseBandPct
	lc.HistoryBars = cfg.Lifecycle.HistoryBars
	lc.Workers = cfg.Lifecycle.Workers
	for name, st := range cfg.Strategies {
		h, err := models.ParseHorizon(name)
		if err != nil {
			return lc, err
		}
		lc.Strategies[h] = usecase.StrategyConfig{
			StopLossPct: st.StopLossPct,
			TTLDays:     st.TTLDays,
			MomentumRSI: st.MomentumRSI,
		}
	}
	return lc, lc.Validate()
}

func ProvideLifecycle(
	store domrepo.RecommendationStore,
	prices domrepo.PriceHistoryProvider,
	events domrepo.EventPublisher,
	rec *metrics.Recorder,
	cfg *config.Config,
	log *logger.Logger,
) (*usecase.LifecycleManager, error) {
	lc, err := LifecycleParams(cfg)
	if err != nil {
		return nil, err
	}
	m, err := usecase.NewLifecycleManager(lc, store, prices, events, log)
	if err != nil {
		return nil, err
	}
	m.SetMetrics(rec)
	return m, nil
}

func ProvideScanUseCase(
	cc *regime.CachedClassifier,
	universe domrepo.UniverseProvider,
	scanner *usecase.ScanController,
	lifecycle *usecase.LifecycleManager,
	rec *metrics.Recorder,
	log *logger.Logger,
) *usecase.ScanUseCase {
	uc := usecase.NewScanUseCase(cc, universe, scanner, lifecycle, log)
	uc.SetMetrics(rec)
	return uc
}

func ProvideEvaluationUseCase(lifecycle *usecase.LifecycleManager, rec *metrics.Recorder, log *logger.Logger) *usecase.EvaluationUseCase {
	uc := usecase.NewEvaluationUseCase(lifecycle, log)
	uc.SetMetrics(rec)
	return uc
}

// ProvideQueue returns nil unless schedule.use_queue is set.
func ProvideQueue(rc *cache.RedisCache, scan *usecase.ScanUseCase, eval *usecase.EvaluationUseCase, cfg *config.Config, log *logger.Logger) *queue.RedisQueue {
	if !cfg.Schedule.UseQueue || rc == nil {
		return nil
	}
	q := queue.NewRedisQueue(log, &queue.QueueConfig{
		Workers:    cfg.Schedule.QueueWorkers,
		RetryLimit: cfg.Schedule.QueueRetries,
		RetryDelay: cfg.Schedule.QueueRetryGap,
		DedupTTL:   36 * time.Hour,
	}, rc.Client(), queue.ModeProducerConsumer, queue.WithKeyPrefix(cfg.Redis.Prefix+":queue"))
	q.RegisterJobs([]queue.Job{usecase.NewScanJob(scan, log), usecase.NewEvaluateJob(eval, log)})
	return q
}

func ProvideBatchTrigger(scan *usecase.ScanUseCase, eval *usecase.EvaluationUseCase, q *queue.RedisQueue, cfg *config.Config, log *logger.Logger) (*usecase.BatchTrigger, error) {
	loc, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone: %v", models.ErrConfiguration, err)
	}
	opts := []usecase.BatchOption{usecase.WithBatchClock(func() time.Time { return time.Now().In(loc) })}
	if q != nil {
		opts = append(opts, usecase.WithQueue(q))
	}
	return usecase.NewBatchTrigger(scan, eval, log, opts...), nil
}

// ProvideScheduler returns nil when scheduling is disabled.
func ProvideScheduler(trigger *usecase.BatchTrigger, cfg *config.Config, log *logger.Logger) (*scheduler.Scheduler, error) {
	if !cfg.Schedule.Enabled {
		return nil, nil
	}
	loc, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone: %v", models.ErrConfiguration, err)
	}
	s := scheduler.New(log, scheduler.WithLocation(loc), scheduler.WithJobTimeout(cfg.Schedule.JobTimeout))
	if err := s.AddJob(cfg.Schedule.ScanCron, trigger.ScanJob()); err != nil {
		return nil, err
	}
	if err := s.AddJob(cfg.Schedule.EvaluateCron, trigger.EvaluateJob()); err != nil {
		return nil, err
	}
	return s, nil
}

// ProvideKafkaConsumer returns nil when kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, log *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	c := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(log,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(c.GroupID),
		pkgkafka.WithConsumerWorkers(c.Workers),
		pkgkafka.WithConsumerBufferSize(c.BufferSize),
		pkgkafka.WithConsumerRetry(c.RetryMax, c.BackoffMin, c.BackoffMax),
		pkgkafka.WithConsumerDLQ(c.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(
		pkgkafka.TraceHook(),
		pkgkafka.EmptyPayloadHook(),
		pkgkafka.LogHook(log),
	))
	return consumer, nil
}

// ProvideBarsHandler stores end-of-day bars and invalidates the regime
// cache when proxy bars arrive.
func ProvideBarsHandler(store *internalrepo.CHPriceStore, cc *regime.CachedClassifier, rec *metrics.Recorder, cfg *config.Config, log *logger.Logger) *usecase.BarsHandler {
	h := usecase.NewBarsHandler(cfg.Kafka.BarsTopic, cfg.Regime.ProxySymbol, store, cc.Cache(), log)
	h.SetMetrics(rec)
	return h
}

func ProvideAPIHandler(
	scan *usecase.ScanUseCase,
	eval *usecase.EvaluationUseCase,
	cc *regime.CachedClassifier,
	ch *pkgch.Client,
	db *gorm.DB,
	rc *cache.RedisCache,
	cfg *config.Config,
	log *logger.Logger,
) (*api.Handler, error) {
	loc, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone: %v", models.ErrConfiguration, err)
	}
	opts := []api.Option{
		api.WithRegimeCache(cc.Cache()),
		api.WithClock(func() time.Time { return time.Now().In(loc) }),
		api.WithHealthCheck("clickhouse", ch.Health),
		api.WithHealthCheck("database", func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}),
	}
	if rc != nil {
		opts = append(opts, api.WithHealthCheck("redis", func(ctx context.Context) error {
			return rc.Client().Ping(ctx).Err()
		}))
	}
	return api.NewHandler(scan, eval, log, opts...), nil
}

func ProvideHTTPServer(h *api.Handler, cfg *config.Config, log *logger.Logger) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(h, log,
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
	)
}

// ProvideApp collects the long-running components and the resources the
// app closes on shutdown.
func ProvideApp(
	log *logger.Logger,
	httpServer *xhttp.Server,
	sched *scheduler.Scheduler,
	q *queue.RedisQueue,
	consumer *pkgkafka.Consumer,
	bars *usecase.BarsHandler,
	scan *usecase.ScanUseCase,
	eval *usecase.EvaluationUseCase,
	events domrepo.EventPublisher,
	ch *pkgch.Client,
	db *gorm.DB,
	rc *cache.RedisCache,
) *server.App {
	app := server.New(log, scan, eval,
		server.WithHTTP(httpServer),
		server.WithScheduler(sched),
		server.WithConsumer(consumer, bars),
		server.WithCloser("clickhouse", ch.Close),
		server.WithCloser("database", func() error { return database.Close(db) }),
	)
	if q != nil {
		app.Apply(server.WithQueue(q))
	}
	if events != nil {
		app.Apply(server.WithCloser("kafka producer", events.Close))
	}
	if rc != nil {
		app.Apply(server.WithCloser("redis", rc.Close))
	}
	return app
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"FinScan/pkg/database"
	"FinScan/pkg/util"
)

// Config is the whole service configuration as read from config.yaml.
type Config struct {
	Environment string          `yaml:"environment" default:"development" validate:"oneof=development staging production test"`
	Log         LogConfig       `yaml:"log"`
	Server      ServerConfig    `yaml:"server"`
	Metrics     MetricsConfig   `yaml:"metrics"`
	ClickHouse  ClickHouse      `yaml:"clickhouse"`
	Kafka       KafkaConfig     `yaml:"kafka"`
	Redis       RedisConfig     `yaml:"redis"`
	Database    database.Config `yaml:"database"`
	Schedule    ScheduleConfig  `yaml:"schedule"`
	Foreign     ForeignConfig   `yaml:"foreign"`
	Upstream    UpstreamConfig  `yaml:"upstream"`
	Regime      RegimeConfig    `yaml:"regime"`
	Scan        ScanConfig      `yaml:"scan"`
	Lifecycle   LifecycleConfig `yaml:"lifecycle"`
	// Strategies overrides per horizon (swing, position, longterm).
	Strategies map[string]StrategyConfig `yaml:"strategies"`
	Universe   UniverseConfig            `yaml:"universe"`
}

// LogConfig selects the zap level and encoder.
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"json" validate:"oneof=json console"`
	Output string `yaml:"output" default:"stdout"`
}

// ServerConfig is the HTTP listener.
type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
}

// MetricsConfig exposes the prometheus registry on Path.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

// ClickHouse is the price store connection.
type ClickHouse struct {
	Host             string        `yaml:"host" default:"localhost" validate:"required"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"finscan" validate:"required"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	InitSchema       bool          `yaml:"init_schema" default:"true"`
}

// KafkaConfig covers the lifecycle event producer and the bar consumer.
type KafkaConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Brokers     []string `yaml:"brokers" validate:"required_if=Enabled true"`
	EventsTopic string   `yaml:"events_topic" default:"finscan.lifecycle"`
	BarsTopic   string   `yaml:"bars_topic" default:"finscan.bars.eod"`
	Producer    struct {
		Compression  string        `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		RequiredAcks int           `yaml:"required_acks" default:"-1"`
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"50ms"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
	Consumer struct {
		GroupID    string        `yaml:"group_id" default:"finscan-bars"`
		Workers    int           `yaml:"workers" default:"2" validate:"min=1"`
		BufferSize int           `yaml:"buffer_size" default:"64"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
		DLQTopic   string        `yaml:"dlq_topic" default:"finscan.bars.dlq"`
	} `yaml:"consumer"`
}

// RedisConfig backs the regime cache and the job queue.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Host     string        `yaml:"host" default:"localhost"`
	Port     int           `yaml:"port" default:"6379"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"pool_size" default:"10"`
	Timeout  time.Duration `yaml:"timeout" default:"3s"`
	Prefix   string        `yaml:"prefix" default:"finscan"`
	// MemoryTTL bounds the in-process layer in front of redis.
	MemoryTTL time.Duration `yaml:"memory_ttl" default:"5m"`
}

// ScheduleConfig holds the cron specs of the daily scan and evaluation.
type ScheduleConfig struct {
	Enabled      bool   `yaml:"enabled" default:"true"`
	Timezone     string `yaml:"timezone" default:"Asia/Ho_Chi_Minh"`
	ScanCron     string `yaml:"scan_cron" default:"30 15 * * MON-FRI"`
	EvaluateCron string `yaml:"evaluate_cron" default:"45 15 * * MON-FRI"`
	// UseQueue routes triggered runs through the redis job queue.
	UseQueue      bool          `yaml:"use_queue"`
	QueueWorkers  int           `yaml:"queue_workers" default:"2" validate:"min=1"`
	QueueRetries  int           `yaml:"queue_retries" default:"2"`
	QueueRetryGap time.Duration `yaml:"queue_retry_delay" default:"1m"`
	JobTimeout    time.Duration `yaml:"job_timeout" default:"20m"`
}

// ForeignConfig points at the foreign flow endpoint. An empty URL
// classifies on domestic data only.
type ForeignConfig struct {
	URL         string        `yaml:"url"`
	Timeout     time.Duration `yaml:"timeout" default:"5s"`
	RetryDelay  time.Duration `yaml:"retry_delay" default:"2s"`
	TripAfter   uint32        `yaml:"trip_after" default:"3"`
	OpenTimeout time.Duration `yaml:"open_timeout" default:"5m"`
}

// UpstreamConfig paces calls to the data sources; zero disables pacing.
type UpstreamConfig struct {
	PricesPerSecond  float64       `yaml:"prices_per_second" default:"50"`
	PricesBurst      int           `yaml:"prices_burst" default:"20"`
	ForeignPerSecond float64       `yaml:"foreign_per_second" default:"1"`
	PriceCacheTTL    time.Duration `yaml:"price_cache_ttl" default:"10m"`
}

// RegimeConfig overrides the classifier parameters.
type RegimeConfig struct {
	ProxySymbol    string        `yaml:"proxy_symbol" default:"VNINDEX" validate:"required"`
	DomesticWeight float64       `yaml:"domestic_weight" default:"0.6"`
	ForeignWeight  float64       `yaml:"foreign_weight" default:"0.4"`
	BullThreshold  float64       `yaml:"bull_threshold" default:"1.5"`
	BearThreshold  float64       `yaml:"bear_threshold" default:"-1.5"`
	CrashThreshold float64       `yaml:"crash_threshold" default:"-3"`
	CrashDropPct   float64       `yaml:"crash_drop_pct" default:"3"`
	CacheTTL       time.Duration `yaml:"cache_ttl" default:"24h"`
	DegradedTTL    time.Duration `yaml:"degraded_cache_ttl" default:"15m"`
	// Tiers left at zero keep the built-in values.
	Tiers TierConfig `yaml:"tiers"`
}

// TierConfig holds the bucketing thresholds of the regime components.
type TierConfig struct {
	StrongReturnPct     float64 `yaml:"strong_return_pct"`
	HighReturnPct       float64 `yaml:"high_return_pct"`
	LowReturnPct        float64 `yaml:"low_return_pct"`
	LowVolPct           float64 `yaml:"low_vol_pct"`
	HighVolPct          float64 `yaml:"high_vol_pct"`
	ForeignHighDeltaPct float64 `yaml:"foreign_high_delta_pct"`
	ForeignLowDeltaPct  float64 `yaml:"foreign_low_delta_pct"`
	VixCalm             float64 `yaml:"vix_calm"`
	VixElevated         float64 `yaml:"vix_elevated"`
	VixExtreme          float64 `yaml:"vix_extreme"`
}

// BandConfig is a target candidate count range.
type BandConfig struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// StepConfig is one relaxation step of the scan ladder.
type StepConfig struct {
	MaxGapPct       float64 `yaml:"max_gap_pct"`
	MaxExtensionPct float64 `yaml:"max_extension_pct"`
	MinSignals      int     `yaml:"min_signals"`
	MinScore        float64 `yaml:"min_score"`
}

// ScanConfig tunes the adaptive scan.
type ScanConfig struct {
	Version         string `yaml:"version" default:"v1" validate:"oneof=v1 v2"`
	Workers         int    `yaml:"workers" default:"8" validate:"min=1"`
	LookbackBars    int    `yaml:"lookback_bars" default:"260" validate:"min=1"`
	BenchmarkSymbol string `yaml:"benchmark_symbol" default:"VNINDEX"`
	// Empty bands or steps keep the built-in ladder.
	Bands           map[string]BandConfig `yaml:"bands"`
	Steps           []StepConfig          `yaml:"steps" validate:"omitempty,max=8"`
	RiskMultipliers map[string]float64    `yaml:"risk_multipliers"`
}

// LifecycleConfig tunes recommendation evaluation.
type LifecycleConfig struct {
	PhaseBandPct float64 `yaml:"phase_band_pct" default:"2" validate:"gt=0"`
	HistoryBars  int     `yaml:"history_bars" default:"80" validate:"min=30"`
	Workers      int     `yaml:"workers" default:"4" validate:"min=1"`
}

// StrategyConfig overrides the exit rules of one horizon.
type StrategyConfig struct {
	StopLossPct float64 `yaml:"stop_loss_pct" validate:"lt=0"`
	TTLDays     int     `yaml:"ttl_days" validate:"min=1"`
	MomentumRSI float64 `yaml:"momentum_rsi" validate:"gt=0,lt=100"`
}

// UniverseConfig selects the symbols a scan considers.
type UniverseConfig struct {
	// Symbols pins the universe; otherwise it is ranked by turnover.
	Symbols    []string `yaml:"symbols"`
	TopN       int      `yaml:"top_n" default:"200" validate:"min=1"`
	Markets    []string `yaml:"markets"`
	Exclude    []string `yaml:"exclude"`
	WindowDays int      `yaml:"window_days" default:"30" validate:"min=1"`
}

var validate = validator.New()

// Default returns a configuration with every default applied.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v := getenv(key); v != "" {
			*dst = util.SplitList(v)
		}
	}
	flag := func(key string, dst *bool) {
		if v := getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	str("FINSCAN_ENV", &c.Environment)
	str("LOG_LEVEL", &c.Log.Level)
	if v := getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	str("CLICKHOUSE_HOST", &c.ClickHouse.Host)
	str("CLICKHOUSE_PASSWORD", &c.ClickHouse.Password)
	list("KAFKA_BROKERS", &c.Kafka.Brokers)
	if len(c.Kafka.Brokers) > 0 && getenv("KAFKA_BROKERS") != "" {
		c.Kafka.Enabled = true
	}
	str("REDIS_HOST", &c.Redis.Host)
	str("REDIS_PASSWORD", &c.Redis.Password)
	flag("REDIS_ENABLED", &c.Redis.Enabled)
	str("DATABASE_DRIVER", &c.Database.Driver)
	str("DATABASE_DSN", &c.Database.DSN)
	str("FOREIGN_URL", &c.Foreign.URL)
	list("SYMBOLS", &c.Universe.Symbols)
	str("SCAN_VERSION", &c.Scan.Version)
	flag("SCHEDULE_USE_QUEUE", &c.Schedule.UseQueue)
}

// Validate checks struct rules and the cross-field constraints the tags
// cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	for name, st := range c.Strategies {
		switch name {
		case "swing", "position", "longterm":
		default:
			return fmt.Errorf("strategies: unknown strategy %q", name)
		}
		if err := validate.Struct(st); err != nil {
			return fmt.Errorf("strategies.%s: %w", name, err)
		}
	}
	for name, b := range c.Scan.Bands {
		if b.Min < 0 || b.Max < b.Min {
			return fmt.Errorf("scan.bands.%s: invalid range [%d,%d]", name, b.Min, b.Max)
		}
	}
	if c.Schedule.UseQueue && !c.Redis.Enabled {
		return fmt.Errorf("schedule.use_queue requires redis.enabled")
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone: %w", err)
	}
	return nil
}

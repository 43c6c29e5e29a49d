package config

import (
	"context"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pitabwire/util"
)

type contextKey string

func (c contextKey) String() string {
	return "tracker/config/" + string(c)
}

const (
	ctxKeyConfiguration = contextKey("configurationKey")

	defaultJoinGrace      = time.Millisecond
	defaultJoinTimeout    = 30 * time.Second
	defaultPoolExpiry     = time.Second
	defaultSinkBufferSize = 256
)

// ToContext adds tracker configuration to the current supplied context.
func ToContext(ctx context.Context, config any) context.Context {
	return context.WithValue(ctx, ctxKeyConfiguration, config)
}

// FromContext extracts tracker configuration from the supplied context if any exist.
func FromContext[T any](ctx context.Context) T {
	if cfg, ok := ctx.Value(ctxKeyConfiguration).(T); ok {
		return cfg
	}
	var zero T
	return zero
}

// FromEnv convenience method to process configs.
func FromEnv[T any]() (T, error) {
	return env.ParseAs[T]()
}

// FillEnv convenience method to fill a config object with environment data.
func FillEnv(v any) error {
	return env.Parse(v)
}

type ConfigurationDefault struct {
	LogLevel      string `envDefault:"info"                      env:"LOG_LEVEL"       yaml:"log_level"`
	LogTimeFormat string `envDefault:"2006-01-02T15:04:05Z07:00" env:"LOG_TIME_FORMAT" yaml:"log_time_format"`
	LogColored    bool   `envDefault:"true"                      env:"LOG_COLORED"     yaml:"log_colored"`

	LogShowStackTrace bool `envDefault:"false" env:"LOG_SHOW_STACK_TRACE" yaml:"log_show_stack_trace"`

	OpenTelemetryDisable    bool    `envDefault:"false" env:"OPENTELEMETRY_DISABLE"        yaml:"opentelemetry_disable"`
	OpenTelemetryTraceRatio float64 `envDefault:"0.1"   env:"OPENTELEMETRY_TRACE_ID_RATIO" yaml:"opentelemetry_trace_id_ratio"`

	// Engine lifecycle settings
	EngineName        string `envDefault:"tracker" env:"ENGINE_NAME"         yaml:"engine_name"`
	EngineJoinGrace   string `envDefault:"1ms"     env:"ENGINE_JOIN_GRACE"   yaml:"engine_join_grace"`
	EngineJoinTimeout string `envDefault:"30s"     env:"ENGINE_JOIN_TIMEOUT" yaml:"engine_join_timeout"`
	EngineAutoStart   bool   `envDefault:"true"    env:"ENGINE_AUTO_START"   yaml:"engine_auto_start"`

	WorkerPoolExpiryDuration string `envDefault:"1s" env:"WORKER_POOL_EXPIRY_DURATION" yaml:"worker_pool_expiry_duration"`

	// Result sink settings, an empty url disables the sink
	SinkURL        string `envDefault:""        env:"SINK_URL"         yaml:"sink_url"`
	SinkBufferSize int    `envDefault:"256"     env:"SINK_BUFFER_SIZE" yaml:"sink_buffer_size"`
	SinkCacheTTL   string `envDefault:"1h"      env:"SINK_CACHE_TTL"   yaml:"sink_cache_ttl"`
	SinkKeyPrefix  string `envDefault:"results" env:"SINK_KEY_PREFIX"  yaml:"sink_key_prefix"`
}

type ConfigurationLogLevel interface {
	LoggingLevel() string
	LoggingTimeFormat() string
	LoggingShowStackTrace() bool
	LoggingColored() bool
	LoggingLevelIsDebug() bool
}

var _ ConfigurationLogLevel = new(ConfigurationDefault)

func (c *ConfigurationDefault) LoggingLevel() string {
	return c.LogLevel
}

func (c *ConfigurationDefault) LoggingTimeFormat() string {
	return c.LogTimeFormat
}

func (c *ConfigurationDefault) LoggingColored() bool {
	return c.LogColored
}

func (c *ConfigurationDefault) LoggingShowStackTrace() bool {
	return c.LogShowStackTrace
}

func (c *ConfigurationDefault) LoggingLevelIsDebug() bool {
	return c.LoggingLevel() == "debug" || c.LoggingLevel() == "trace"
}

type ConfigurationTelemetry interface {
	DisableOpenTelemetry() bool
	SamplingRatio() float64
}

var _ ConfigurationTelemetry = new(ConfigurationDefault)

func (c *ConfigurationDefault) DisableOpenTelemetry() bool {
	return c.OpenTelemetryDisable
}

func (c *ConfigurationDefault) SamplingRatio() float64 {
	return c.OpenTelemetryTraceRatio
}

type ConfigurationEngine interface {
	GetEngineName() string
	GetJoinGrace() time.Duration
	GetJoinTimeout() time.Duration
	AutoStart() bool
}

var _ ConfigurationEngine = new(ConfigurationDefault)

func (c *ConfigurationDefault) GetEngineName() string {
	return c.EngineName
}

func (c *ConfigurationDefault) GetJoinGrace() time.Duration {
	return parseDurationOr(c.EngineJoinGrace, defaultJoinGrace)
}

func (c *ConfigurationDefault) GetJoinTimeout() time.Duration {
	return parseDurationOr(c.EngineJoinTimeout, defaultJoinTimeout)
}

func (c *ConfigurationDefault) AutoStart() bool {
	return c.EngineAutoStart
}

type ConfigurationWorkerPool interface {
	GetExpiryDuration() time.Duration
}

var _ ConfigurationWorkerPool = new(ConfigurationDefault)

func (c *ConfigurationDefault) GetExpiryDuration() time.Duration {
	return parseDurationOr(c.WorkerPoolExpiryDuration, defaultPoolExpiry)
}

type ConfigurationSink interface {
	GetSinkURL() string
	GetSinkBufferSize() int
	GetSinkCacheTTL() time.Duration
	GetSinkKeyPrefix() string
}

var _ ConfigurationSink = new(ConfigurationDefault)

func (c *ConfigurationDefault) GetSinkURL() string {
	return c.SinkURL
}

func (c *ConfigurationDefault) GetSinkBufferSize() int {
	if c.SinkBufferSize <= 0 {
		return defaultSinkBufferSize
	}
	return c.SinkBufferSize
}

func (c *ConfigurationDefault) GetSinkCacheTTL() time.Duration {
	return parseDurationOr(c.SinkCacheTTL, time.Hour)
}

func (c *ConfigurationDefault) GetSinkKeyPrefix() string {
	return c.SinkKeyPrefix
}

// Logger builds a logger from the logging configuration and returns a context carrying it.
func Logger(ctx context.Context, cfg ConfigurationLogLevel, opts ...util.Option) (context.Context, *util.LogEntry) {
	if cfg != nil {
		logLevel, err := util.ParseLevel(cfg.LoggingLevel())
		if err == nil {
			opts = append(opts, util.WithLogLevel(logLevel))
		}
		opts = append(opts,
			util.WithLogTimeFormat(cfg.LoggingTimeFormat()),
			util.WithLogNoColor(!cfg.LoggingColored()))
		if cfg.LoggingShowStackTrace() {
			opts = append(opts, util.WithLogStackTrace())
		}
	}

	log := util.NewLogger(ctx, opts...)
	return util.ContextWithLogger(ctx, log), log
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	if value != "" {
		duration, err := time.ParseDuration(value)
		if err == nil && duration >= 0 {
			return duration
		}
	}

	return fallback
}

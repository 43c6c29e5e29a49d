package config

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/pitabwire/util"
	"github.com/stretchr/testify/suite"
)

type ConfigSuite struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

func (s *ConfigSuite) TestContextHelpersAndKeyString() {
	ctx := context.Background()
	cfg := ConfigurationDefault{EngineName: "rc"}

	s.Equal("tracker/config/configurationKey", ctxKeyConfiguration.String())

	ctx = ToContext(ctx, cfg)
	fromCtx := FromContext[ConfigurationDefault](ctx)
	s.Equal("rc", fromCtx.EngineName)

	missing := FromContext[*ConfigurationDefault](context.Background())
	s.Nil(missing)
}

func (s *ConfigSuite) TestFromEnvDefaults() {
	cfg, err := FromEnv[ConfigurationDefault]()
	s.Require().NoError(err)

	s.Equal("info", cfg.LoggingLevel())
	s.Equal("tracker", cfg.GetEngineName())
	s.Equal(time.Millisecond, cfg.GetJoinGrace())
	s.Equal(30*time.Second, cfg.GetJoinTimeout())
	s.True(cfg.AutoStart())
	s.Equal(time.Second, cfg.GetExpiryDuration())
	s.Empty(cfg.GetSinkURL())
	s.Equal(256, cfg.GetSinkBufferSize())
	s.Equal(time.Hour, cfg.GetSinkCacheTTL())
	s.Equal("results", cfg.GetSinkKeyPrefix())
	s.False(cfg.DisableOpenTelemetry())
	s.InDelta(0.1, cfg.SamplingRatio(), 1e-12)
}

func (s *ConfigSuite) TestFromEnvAndFillEnv() {
	s.T().Setenv("ENGINE_NAME", "barycenter")
	s.T().Setenv("ENGINE_JOIN_GRACE", "5ms")
	s.T().Setenv("ENGINE_AUTO_START", "false")
	s.T().Setenv("SINK_URL", "mem://results")
	s.T().Setenv("SINK_BUFFER_SIZE", "8")
	s.T().Setenv("OPENTELEMETRY_TRACE_ID_RATIO", "0.42")

	cfg, err := FromEnv[ConfigurationDefault]()
	s.Require().NoError(err)
	s.Equal("barycenter", cfg.GetEngineName())
	s.Equal(5*time.Millisecond, cfg.GetJoinGrace())
	s.False(cfg.AutoStart())
	s.Equal("mem://results", cfg.GetSinkURL())
	s.Equal(8, cfg.GetSinkBufferSize())
	s.InDelta(0.42, cfg.SamplingRatio(), 1e-12)

	var target ConfigurationDefault
	s.Require().NoError(FillEnv(&target))
	s.Equal("barycenter", target.EngineName)
}

func (s *ConfigSuite) TestDurationFallbacksTable() {
	testCases := []struct {
		name        string
		cfg         ConfigurationDefault
		wantGrace   time.Duration
		wantTimeout time.Duration
		wantExpiry  time.Duration
		wantTTL     time.Duration
	}{
		{
			name: "parsable values",
			cfg: ConfigurationDefault{
				EngineJoinGrace:          "2ms",
				EngineJoinTimeout:        "1m",
				WorkerPoolExpiryDuration: "1500ms",
				SinkCacheTTL:             "10m",
			},
			wantGrace:   2 * time.Millisecond,
			wantTimeout: time.Minute,
			wantExpiry:  1500 * time.Millisecond,
			wantTTL:     10 * time.Minute,
		},
		{
			name: "invalid values fallback",
			cfg: ConfigurationDefault{
				EngineJoinGrace:          "soon",
				EngineJoinTimeout:        "-1s",
				WorkerPoolExpiryDuration: "invalid",
				SinkCacheTTL:             "",
			},
			wantGrace:   time.Millisecond,
			wantTimeout: 30 * time.Second,
			wantExpiry:  time.Second,
			wantTTL:     time.Hour,
		},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			s.Equal(tc.wantGrace, tc.cfg.GetJoinGrace())
			s.Equal(tc.wantTimeout, tc.cfg.GetJoinTimeout())
			s.Equal(tc.wantExpiry, tc.cfg.GetExpiryDuration())
			s.Equal(tc.wantTTL, tc.cfg.GetSinkCacheTTL())
		})
	}
}

func (s *ConfigSuite) TestLoggingGetters() {
	cfg := &ConfigurationDefault{
		LogLevel:          "trace",
		LogTimeFormat:     time.RFC3339,
		LogColored:        true,
		LogShowStackTrace: true,
	}

	s.Equal("trace", cfg.LoggingLevel())
	s.Equal(time.RFC3339, cfg.LoggingTimeFormat())
	s.True(cfg.LoggingColored())
	s.True(cfg.LoggingShowStackTrace())
	s.True(cfg.LoggingLevelIsDebug())

	cfg.LogLevel = "warn"
	s.False(cfg.LoggingLevelIsDebug())
}

func (s *ConfigSuite) TestLoggerIsPlacedOnContext() {
	var buf bytes.Buffer
	cfg := &ConfigurationDefault{LogLevel: "info", LogColored: false}

	ctx, log := Logger(context.Background(), cfg, util.WithLogOutput(&buf))
	s.Require().NotNil(log)

	util.Log(ctx).WithField("engine", "rc").Info("configured logger")
	s.Contains(buf.String(), "configured logger")
}

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Backend   BackendConfig
	Dashboard DashboardConfig
	Logger    LoggerConfig
	Security  SecurityConfig
	Tracing   TracingConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

type DashboardConfig struct {
	Title         string
	PageSize      int
	ComponentsDir string
	CacheDir      string
}

type LoggerConfig struct {
	Level  string
	Format string
}

// TracingConfig controls the OpenTelemetry exporter. The OTLP endpoint and
// headers are read by the exporter itself from the standard OTEL_EXPORTER_*
// variables.
type TracingConfig struct {
	Enabled     bool
	Protocol    string
	ServiceName string
	SampleRatio float64
}

type SecurityConfig struct {
	EnableRateLimit bool
	RateLimitRPS    int
	RateLimitBurst  int
	AllowedOrigins  []string
	TrustedProxies  []string
}

// Load reads the configuration from the environment. Values in a .env file
// in the working directory fill in variables that are not already set. A
// variable that is set but malformed is an error, not a silent default.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var env envReader
	cfg := &Config{
		Server: ServerConfig{
			Host:            env.String("SERVER_HOST", "localhost"),
			Port:            env.Int("SERVER_PORT", 8084),
			ReadTimeout:     env.Duration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    env.Duration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     env.Duration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: env.Duration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Backend: BackendConfig{
			BaseURL: env.String("BACKEND_URL", "http://127.0.0.1:8000"),
			Timeout: env.Duration("BACKEND_TIMEOUT", 10*time.Second),
		},
		Dashboard: DashboardConfig{
			Title:         env.String("DASHBOARD_TITLE", "Pandemic Dashboard"),
			PageSize:      env.Int("DASHBOARD_PAGE_SIZE", 20),
			ComponentsDir: env.String("COMPONENTS_DIR", ""),
			CacheDir:      env.String("CACHE_DIR", ".cache"),
		},
		Logger: LoggerConfig{
			Level:  strings.ToLower(env.String("LOG_LEVEL", "info")),
			Format: strings.ToLower(env.String("LOG_FORMAT", "json")),
		},
		Security: SecurityConfig{
			EnableRateLimit: env.Bool("SECURITY_RATE_LIMIT_ENABLED", true),
			RateLimitRPS:    env.Int("SECURITY_RATE_LIMIT_RPS", 100),
			RateLimitBurst:  env.Int("SECURITY_RATE_LIMIT_BURST", 10),
			AllowedOrigins:  env.List("SECURITY_ALLOWED_ORIGINS", []string{"http://localhost:8084"}),
			TrustedProxies:  env.List("SECURITY_TRUSTED_PROXIES", []string{"127.0.0.1"}),
		},
		Tracing: TracingConfig{
			Enabled:     env.Bool("OTEL_TRACING_ENABLED", false),
			Protocol:    env.String("OTEL_EXPORTER_OTLP_PROTOCOL", "http/protobuf"),
			ServiceName: env.String("OTEL_SERVICE_NAME", "pandemic-dashboard"),
			SampleRatio: env.Float("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	if err := errors.Join(env.errs...); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

var (
	logLevels     = []string{"debug", "info", "warn", "error"}
	logFormats    = []string{"json", "text"}
	otlpProtocols = []string{"grpc", "http/protobuf"}
)

// validate reports every problem at once.
func (c *Config) validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Port >= 1 && c.Server.Port <= 65535, "server port must be between 1 and 65535, got %d", c.Server.Port)
	check(c.Server.ReadTimeout > 0, "server read timeout must be positive")
	check(c.Server.WriteTimeout > 0, "server write timeout must be positive")

	u, err := url.Parse(c.Backend.BaseURL)
	check(err == nil && u.Scheme != "" && u.Host != "", "backend URL must be an absolute URL, got %q", c.Backend.BaseURL)
	check(c.Backend.Timeout > 0, "backend timeout must be positive")

	check(c.Dashboard.PageSize > 0, "page size must be positive, got %d", c.Dashboard.PageSize)

	check(slices.Contains(logLevels, c.Logger.Level), "invalid log level %q, must be one of: %s", c.Logger.Level, strings.Join(logLevels, ", "))
	check(slices.Contains(logFormats, c.Logger.Format), "invalid log format %q, must be one of: %s", c.Logger.Format, strings.Join(logFormats, ", "))

	check(c.Security.RateLimitRPS > 0, "rate limit RPS must be positive")
	check(c.Security.RateLimitBurst > 0, "rate limit burst must be positive")

	check(slices.Contains(otlpProtocols, c.Tracing.Protocol), "invalid OTLP protocol %q, must be one of: %s", c.Tracing.Protocol, strings.Join(otlpProtocols, ", "))
	check(c.Tracing.SampleRatio >= 0 && c.Tracing.SampleRatio <= 1, "trace sample ratio must be within [0, 1], got %g", c.Tracing.SampleRatio)

	return errors.Join(errs...)
}

// envReader looks up variables and collects parse failures.
type envReader struct {
	errs []error
}

func (e *envReader) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envReader) String(key, def string) string {
	if v, ok := e.lookup(key); ok {
		return v
	}
	return def
}

func (e *envReader) Int(key string, def int) int {
	return parseVar(e, key, def, strconv.Atoi)
}

func (e *envReader) Float(key string, def float64) float64 {
	return parseVar(e, key, def, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

func (e *envReader) Bool(key string, def bool) bool {
	return parseVar(e, key, def, strconv.ParseBool)
}

func (e *envReader) Duration(key string, def time.Duration) time.Duration {
	return parseVar(e, key, def, time.ParseDuration)
}

// List splits a comma separated variable, dropping empty entries.
func (e *envReader) List(key string, def []string) []string {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	var out []string
	for part := range strings.SplitSeq(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseVar[T any](e *envReader, key string, def T, parse func(string) (T, error)) T {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	parsed, err := parse(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s=%q: %w", key, v, err))
		return def
	}
	return parsed
}

func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// LogValue keeps the startup log line compact.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("addr", c.Address()),
		slog.String("backend_url", c.Backend.BaseURL),
		slog.Duration("backend_timeout", c.Backend.Timeout),
		slog.Int("page_size", c.Dashboard.PageSize),
		slog.String("log_level", c.Logger.Level),
		slog.Bool("rate_limit", c.Security.EnableRateLimit),
		slog.Bool("tracing", c.Tracing.Enabled),
	)
}

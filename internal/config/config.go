package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Engine    EngineConfig    `yaml:"engine"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Auth      AuthConfig      `yaml:"auth"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Host              string   `yaml:"host"`
	Port              int      `yaml:"port"`
	TrustedProxies    []string `yaml:"trusted_proxies"`
	AdminAllowedCIDRs []string `yaml:"admin_allowed_cidrs"`
	ProjectRootHeader string   `yaml:"project_root_header"`
}

type EngineConfig struct {
	Driver       string `yaml:"driver"`        // "kuzu"
	DatabaseFile string `yaml:"database_file"` // relative to each project root
	BufferPoolMB uint64 `yaml:"buffer_pool_mb"`
	MaxThreads   uint64 `yaml:"max_threads"`
	QueryTimeout string `yaml:"query_timeout"` // e.g. "30s"
}

type AnalysisConfig struct {
	DampingFactor    float64 `yaml:"damping_factor"`
	MaxIterations    int     `yaml:"max_iterations"`
	Tolerance        float64 `yaml:"tolerance"`
	LouvainPhases    int     `yaml:"louvain_phases"`
	MaxPathHops      int     `yaml:"max_path_hops"`
	ProjectionPrefix string  `yaml:"projection_prefix"`
	BatchConcurrency int     `yaml:"batch_concurrency"`
}

type AuthConfig struct {
	Enabled       bool   `yaml:"enabled"`
	JWTSecret     string `yaml:"jwt_secret"`
	TokenDuration string `yaml:"token_duration"` // e.g. "24h"
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

type TelemetryConfig struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	OTLPInsecure bool    `yaml:"otlp_insecure"`
	ServiceName  string  `yaml:"service_name"`
	SampleRatio  float64 `yaml:"sample_ratio"`
}

const defaultJWTSecret = "change-me-in-production"

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// QueryTimeout parses Engine.QueryTimeout. An empty value means no timeout.
func (c *Config) QueryTimeout() (time.Duration, error) {
	return parseOptionalDuration("engine.query_timeout", c.Engine.QueryTimeout)
}

func (c *Config) TokenDuration() (time.Duration, error) {
	return parseOptionalDuration("auth.token_duration", c.Auth.TokenDuration)
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is required")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Engine.Driver != "kuzu" {
		return fmt.Errorf("engine.driver %q is not supported (want kuzu)", c.Engine.Driver)
	}
	if strings.TrimSpace(c.Engine.DatabaseFile) == "" {
		return fmt.Errorf("engine.database_file must be configured")
	}
	if _, err := c.QueryTimeout(); err != nil {
		return err
	}
	if d := c.Analysis.DampingFactor; d <= 0 || d >= 1 {
		return fmt.Errorf("analysis.damping_factor %v must be in (0, 1)", d)
	}
	if c.Analysis.MaxIterations <= 0 || c.Analysis.LouvainPhases <= 0 {
		return fmt.Errorf("analysis iteration limits must be positive")
	}
	if c.Analysis.Tolerance <= 0 {
		return fmt.Errorf("analysis.tolerance must be positive")
	}
	if c.Analysis.MaxPathHops <= 0 || c.Analysis.MaxPathHops > 64 {
		return fmt.Errorf("analysis.max_path_hops %d must be in 1..64", c.Analysis.MaxPathHops)
	}
	if c.Analysis.BatchConcurrency <= 0 {
		return fmt.Errorf("analysis.batch_concurrency must be positive")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format %q must be json or text", c.Log.Format)
	}
	return nil
}

// ValidateServe adds the checks that only matter for the HTTP server.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if !c.Auth.Enabled {
		return nil
	}
	return c.ValidateAuth()
}

func (c *Config) ValidateAuth() error {
	if c.Auth.JWTSecret == "" || c.Auth.JWTSecret == defaultJWTSecret {
		return fmt.Errorf("MEMORYBANK_JWT_SECRET must be set to a non-default value when auth is enabled")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("MEMORYBANK_JWT_SECRET must be at least 16 characters (current length: %d)", len(c.Auth.JWTSecret))
	}
	if _, err := c.TokenDuration(); err != nil {
		return err
	}
	return nil
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "127.0.0.1",
			Port:              3100,
			ProjectRootHeader: "X-Memorybank-Project-Root",
		},
		Engine: EngineConfig{
			Driver:       "kuzu",
			DatabaseFile: ".memorybank/memorybank.kuzu",
			QueryTimeout: "60s",
		},
		Analysis: AnalysisConfig{
			DampingFactor:    0.85,
			MaxIterations:    20,
			Tolerance:        1e-7,
			LouvainPhases:    20,
			MaxPathHops:      10,
			ProjectionPrefix: "mb",
			BatchConcurrency: 4,
		},
		Auth: AuthConfig{
			JWTSecret:     defaultJWTSecret,
			TokenDuration: "24h",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "memorybank",
			SampleRatio: 1,
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MEMORYBANK_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("MEMORYBANK_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("MEMORYBANK_TRUSTED_PROXIES"); v != "" {
		cfg.Server.TrustedProxies = parseCSV(v)
	}
	if v := os.Getenv("MEMORYBANK_ADMIN_ALLOWED_CIDRS"); v != "" {
		cfg.Server.AdminAllowedCIDRs = parseCSV(v)
	}
	if v := os.Getenv("MEMORYBANK_PROJECT_ROOT_HEADER"); v != "" {
		cfg.Server.ProjectRootHeader = strings.TrimSpace(v)
	}
	if v := os.Getenv("MEMORYBANK_ENGINE_DRIVER"); v != "" {
		cfg.Engine.Driver = v
	}
	if v := os.Getenv("MEMORYBANK_DATABASE_FILE"); v != "" {
		cfg.Engine.DatabaseFile = v
	}
	if v := os.Getenv("MEMORYBANK_BUFFER_POOL_MB"); v != "" {
		if value, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Engine.BufferPoolMB = value
		}
	}
	if v := os.Getenv("MEMORYBANK_MAX_THREADS"); v != "" {
		if value, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Engine.MaxThreads = value
		}
	}
	if v := os.Getenv("MEMORYBANK_QUERY_TIMEOUT"); v != "" {
		cfg.Engine.QueryTimeout = v
	}
	if v := os.Getenv("MEMORYBANK_DAMPING_FACTOR"); v != "" {
		if value, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Analysis.DampingFactor = value
		}
	}
	if v := os.Getenv("MEMORYBANK_MAX_ITERATIONS"); v != "" {
		if value, err := strconv.Atoi(v); err == nil {
			cfg.Analysis.MaxIterations = value
		}
	}
	if v := os.Getenv("MEMORYBANK_MAX_PATH_HOPS"); v != "" {
		if value, err := strconv.Atoi(v); err == nil {
			cfg.Analysis.MaxPathHops = value
		}
	}
	if v := os.Getenv("MEMORYBANK_PROJECTION_PREFIX"); v != "" {
		cfg.Analysis.ProjectionPrefix = v
	}
	if v := os.Getenv("MEMORYBANK_BATCH_CONCURRENCY"); v != "" {
		if value, err := strconv.Atoi(v); err == nil {
			cfg.Analysis.BatchConcurrency = value
		}
	}
	if v := os.Getenv("MEMORYBANK_ENABLE_AUTH"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Auth.Enabled = enabled
		}
	}
	if v := os.Getenv("MEMORYBANK_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("MEMORYBANK_TOKEN_DURATION"); v != "" {
		cfg.Auth.TokenDuration = v
	}
	if v := os.Getenv("MEMORYBANK_LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("MEMORYBANK_LOG_FORMAT"); v != "" {
		cfg.Log.Format = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("MEMORYBANK_OTEL_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLPEndpoint = strings.TrimSpace(v)
	}
	if v := os.Getenv("MEMORYBANK_OTEL_INSECURE"); v != "" {
		if insecure, err := strconv.ParseBool(v); err == nil {
			cfg.Telemetry.OTLPInsecure = insecure
		}
	}
	if v := os.Getenv("MEMORYBANK_OTEL_SERVICE_NAME"); v != "" {
		cfg.Telemetry.ServiceName = strings.TrimSpace(v)
	}
	if v := os.Getenv("MEMORYBANK_OTEL_SAMPLE_RATIO"); v != "" {
		if ratio, err := strconv.ParseFloat(v, 64); err == nil && ratio >= 0 && ratio <= 1 {
			cfg.Telemetry.SampleRatio = ratio
		}
	}
}

func parseOptionalDuration(field, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", field)
	}
	return d, nil
}

func parseCSV(v string) []string {
	raw := strings.TrimSpace(v)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if value == "" {
			continue
		}
		out = append(out, value)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

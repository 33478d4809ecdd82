package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Server.Host != "127.0.0.1" {
		t.Fatalf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 3100 {
		t.Fatalf("Server.Port = %d, want 3100", cfg.Server.Port)
	}
	if cfg.Server.ProjectRootHeader != "X-Memorybank-Project-Root" {
		t.Fatalf("Server.ProjectRootHeader = %q, want default", cfg.Server.ProjectRootHeader)
	}
	if cfg.Engine.Driver != "kuzu" {
		t.Fatalf("Engine.Driver = %q, want %q", cfg.Engine.Driver, "kuzu")
	}
	if cfg.Analysis.DampingFactor != 0.85 || cfg.Analysis.MaxPathHops != 10 {
		t.Fatalf("Analysis = %+v, want damping 0.85 and 10 hops", cfg.Analysis)
	}
	if cfg.Auth.Enabled {
		t.Fatal("Auth.Enabled = true, want default false")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v, want nil", err)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("MEMORYBANK_HOST", "0.0.0.0")
	t.Setenv("MEMORYBANK_PORT", "4000")
	t.Setenv("MEMORYBANK_TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.10")
	t.Setenv("MEMORYBANK_DATABASE_FILE", "graph/db.kuzu")
	t.Setenv("MEMORYBANK_BUFFER_POOL_MB", "512")
	t.Setenv("MEMORYBANK_QUERY_TIMEOUT", "5s")
	t.Setenv("MEMORYBANK_DAMPING_FACTOR", "0.9")
	t.Setenv("MEMORYBANK_MAX_PATH_HOPS", "12")
	t.Setenv("MEMORYBANK_BATCH_CONCURRENCY", "2")
	t.Setenv("MEMORYBANK_ENABLE_AUTH", "true")
	t.Setenv("MEMORYBANK_JWT_SECRET", "unit-test-secret-123")
	t.Setenv("MEMORYBANK_LOG_LEVEL", "DEBUG")
	t.Setenv("MEMORYBANK_OTEL_ENDPOINT", "collector:4318")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Fatalf("Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 4000 {
		t.Fatalf("Server.Port = %d, want 4000", cfg.Server.Port)
	}
	if len(cfg.Server.TrustedProxies) != 2 || cfg.Server.TrustedProxies[1] != "192.168.1.10" {
		t.Fatalf("Server.TrustedProxies = %#v", cfg.Server.TrustedProxies)
	}
	if cfg.Engine.DatabaseFile != "graph/db.kuzu" {
		t.Fatalf("Engine.DatabaseFile = %q, want override", cfg.Engine.DatabaseFile)
	}
	if cfg.Engine.BufferPoolMB != 512 {
		t.Fatalf("Engine.BufferPoolMB = %d, want 512", cfg.Engine.BufferPoolMB)
	}
	if d, err := cfg.QueryTimeout(); err != nil || d != 5*time.Second {
		t.Fatalf("QueryTimeout() = %v, %v, want 5s", d, err)
	}
	if cfg.Analysis.DampingFactor != 0.9 || cfg.Analysis.MaxPathHops != 12 || cfg.Analysis.BatchConcurrency != 2 {
		t.Fatalf("Analysis = %+v, want overrides", cfg.Analysis)
	}
	if !cfg.Auth.Enabled || cfg.Auth.JWTSecret != "unit-test-secret-123" {
		t.Fatalf("Auth = %+v, want enabled with override secret", cfg.Auth)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Telemetry.OTLPEndpoint != "collector:4318" {
		t.Fatalf("Telemetry.OTLPEndpoint = %q, want override", cfg.Telemetry.OTLPEndpoint)
	}
	if err := cfg.ValidateServe(); err != nil {
		t.Fatalf("ValidateServe() = %v, want nil", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte(`
server:
  host: 127.0.0.1
  port: 5555
  admin_allowed_cidrs:
    - 10.0.0.0/8
engine:
  driver: kuzu
  database_file: .mb/graph.kuzu
  max_threads: 4
analysis:
  damping_factor: 0.8
  max_iterations: 50
  tolerance: 0.0001
  louvain_phases: 5
  max_path_hops: 6
  projection_prefix: proj
  batch_concurrency: 8
auth:
  enabled: true
  jwt_secret: yaml-secret-123456
  token_duration: 12h
log:
  level: warn
  format: text
telemetry:
  otlp_endpoint: localhost:4318
  otlp_insecure: true
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(path): %v", err)
	}

	if cfg.Server.Port != 5555 {
		t.Fatalf("Server.Port = %d, want 5555", cfg.Server.Port)
	}
	if len(cfg.Server.AdminAllowedCIDRs) != 1 || cfg.Server.AdminAllowedCIDRs[0] != "10.0.0.0/8" {
		t.Fatalf("Server.AdminAllowedCIDRs = %#v", cfg.Server.AdminAllowedCIDRs)
	}
	if cfg.Server.ProjectRootHeader != "X-Memorybank-Project-Root" {
		t.Fatalf("Server.ProjectRootHeader = %q, want default kept", cfg.Server.ProjectRootHeader)
	}
	if cfg.Engine.DatabaseFile != ".mb/graph.kuzu" || cfg.Engine.MaxThreads != 4 {
		t.Fatalf("Engine = %+v", cfg.Engine)
	}
	if cfg.Analysis.ProjectionPrefix != "proj" || cfg.Analysis.LouvainPhases != 5 || cfg.Analysis.Tolerance != 0.0001 {
		t.Fatalf("Analysis = %+v", cfg.Analysis)
	}
	if d, err := cfg.TokenDuration(); err != nil || d != 12*time.Hour {
		t.Fatalf("TokenDuration() = %v, %v, want 12h", d, err)
	}
	if cfg.Log.Format != "text" || cfg.Log.Level != "warn" {
		t.Fatalf("Log = %+v", cfg.Log)
	}
	if !cfg.Telemetry.OTLPInsecure {
		t.Fatal("Telemetry.OTLPInsecure = false, want true")
	}
	if err := cfg.ValidateServe(); err != nil {
		t.Fatalf("ValidateServe() = %v, want nil", err)
	}
}

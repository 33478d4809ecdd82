package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/odvcencio/memorybank/internal/analysis"
	"github.com/odvcencio/memorybank/internal/auth"
	"github.com/odvcencio/memorybank/internal/config"
	"github.com/odvcencio/memorybank/internal/graphdb"
	"github.com/odvcencio/memorybank/internal/graphdb/graphdbtest"
	"github.com/odvcencio/memorybank/internal/graphdb/kuzu"
	"github.com/odvcencio/memorybank/internal/service"
)

func TestTrustedProxyCIDRsUsesConfiguredList(t *testing.T) {
	cfg := config.Default()
	cfg.Server.TrustedProxies = []string{"10.0.0.0/8"}
	t.Setenv("MEMORYBANK_TRUST_PROXY", "true")

	got := trustedProxyCIDRs(cfg)
	if len(got) != 1 {
		t.Fatalf("trustedProxyCIDRs length = %d, want 1", len(got))
	}
	if got[0] != "10.0.0.0/8" {
		t.Fatalf("trustedProxyCIDRs[0] = %q, want %q", got[0], "10.0.0.0/8")
	}
}

func TestTrustedProxyCIDRsUsesLegacyTrustAllFallback(t *testing.T) {
	cfg := config.Default()
	t.Setenv("MEMORYBANK_TRUST_PROXY", "true")

	got := trustedProxyCIDRs(cfg)
	if len(got) != 2 {
		t.Fatalf("trustedProxyCIDRs length = %d, want 2", len(got))
	}
	if got[0] != "0.0.0.0/0" {
		t.Fatalf("trustedProxyCIDRs[0] = %q, want %q", got[0], "0.0.0.0/0")
	}
	if got[1] != "::/0" {
		t.Fatalf("trustedProxyCIDRs[1] = %q, want %q", got[1], "::/0")
	}
}

func TestTrustedProxyCIDRsDefaultsToNone(t *testing.T) {
	t.Setenv("MEMORYBANK_TRUST_PROXY", "")
	if got := trustedProxyCIDRs(config.Default()); got != nil {
		t.Fatalf("trustedProxyCIDRs = %v, want nil", got)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record logged at warn level: %s", out)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &rec); err != nil {
		t.Fatalf("decode log record %q: %v", out, err)
	}
	if rec["msg"] != "shown" || rec["k"] != "v" {
		t.Fatalf("record = %v", rec)
	}

	if _, err := newLogger(config.LogConfig{Level: "loud"}, &buf); err == nil {
		t.Fatal("newLogger accepted an unknown level")
	}
}

func TestOpenDriver(t *testing.T) {
	cfg := config.Default()
	driver, err := openDriver(cfg)
	if err != nil {
		t.Fatalf("openDriver: %v", err)
	}
	if _, ok := driver.(*kuzu.Driver); !ok {
		t.Fatalf("driver = %T, want *kuzu.Driver", driver)
	}

	cfg.Engine.Driver = "neo4j"
	if _, err := openDriver(cfg); err == nil {
		t.Fatal("openDriver accepted an unsupported driver")
	}
}

func TestAnalysisDefaultsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Analysis.DampingFactor = 0.9
	cfg.Analysis.MaxPathHops = 7

	got := analysisDefaults(cfg)
	if got.DampingFactor != 0.9 || got.MaxPathHops != 7 || got.ProjectionPrefix != "mb" {
		t.Fatalf("analysisDefaults = %+v", got)
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	cmd := rootCmd()
	for _, name := range []string{"serve", "init", "analyze", "token", "version"} {
		sub, _, err := cmd.Find([]string{name})
		if err != nil || sub.Name() != name {
			t.Fatalf("Find(%q) = %v, %v", name, sub, err)
		}
	}
}

func TestAnalyzeFlagsOnlySetChangedTuning(t *testing.T) {
	configPath := ""
	cmd := analyzeCmd(&configPath)
	if err := cmd.ParseFlags([]string{"--repo", "repoA", "--damping", "0.5", "--k", "2"}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	var f analyzeFlags
	f.repo, f.branch, f.damping, f.k = "repoA", "main", 0.5, 2
	req := f.request(cmd, analysis.AlgorithmPageRank)

	if req.DampingFactor == nil || *req.DampingFactor != 0.5 {
		t.Fatalf("DampingFactor = %v, want 0.5", req.DampingFactor)
	}
	if req.MaxIterations != nil || req.Tolerance != nil || req.MaxPhases != nil {
		t.Fatalf("unset tuning flags were applied: %+v", req)
	}
	if req.Repository != "repoA" || req.Branch != "main" || req.K == nil || *req.K != 2 {
		t.Fatalf("request = %+v", req)
	}
}

func newTestApp(t *testing.T, script func(*graphdbtest.Conn)) *app {
	t.Helper()
	driver := graphdbtest.NewDriver(func(ctx context.Context, path string) (*graphdbtest.Conn, error) {
		conn := graphdbtest.NewConn()
		if script != nil {
			script(conn)
		}
		return conn, nil
	})
	a := newApp(config.Default(), driver, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(a.close)
	return a
}

func TestRunInitPrintsMemoryBank(t *testing.T) {
	a := newTestApp(t, func(conn *graphdbtest.Conn) {
		conn.OnRows("MERGE (r:Repository", graphdb.Row{"id": "repoA:main", "name": "repoA", "branch": "main"})
	})
	root := t.TempDir()

	var out bytes.Buffer
	if err := runInit(context.Background(), a, &out, root, "repoA", "main"); err != nil {
		t.Fatalf("runInit: %v", err)
	}
	var res service.InitResult
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if res.Root != root || res.Repository == nil || res.Repository.ID != "repoA:main" {
		t.Fatalf("result = %+v", res)
	}
}

func TestRunAnalyzeReportsAlgorithmFailure(t *testing.T) {
	a := newTestApp(t, func(conn *graphdbtest.Conn) {
		conn.OnRows("CALL k_core_decomposition(", graphdb.Row{"nodeId": "repoA:main:A", "coreness": int64(3)})
		conn.OnError("CALL page_rank(", errors.New("engine failure"))
	})
	root := t.TempDir()
	scope := analysis.Scope{Repository: "repoA", Branch: "main"}
	k := 2

	var out bytes.Buffer
	if err := runAnalyze(context.Background(), a, &out, root, service.BatchRequest{Algorithm: analysis.AlgorithmKCore, Scope: scope, K: &k}); err != nil {
		t.Fatalf("runAnalyze(kcore): %v", err)
	}
	var res analysis.KCoreResult
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if res.Status != analysis.StatusOK || len(res.Nodes) != 1 || res.Nodes[0].Coreness != 3 {
		t.Fatalf("result = %+v", res)
	}

	out.Reset()
	err := runAnalyze(context.Background(), a, &out, root, service.BatchRequest{Algorithm: analysis.AlgorithmPageRank, Scope: scope})
	if err == nil {
		t.Fatal("runAnalyze(pagerank) succeeded, want failure")
	}
	if !strings.Contains(out.String(), `"status": "error"`) {
		t.Fatalf("output = %s, want error result", out.String())
	}
}

func TestRunTokenScopesRoots(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.JWTSecret = "0123456789abcdef0123"
	root := t.TempDir()

	var out bytes.Buffer
	if err := runToken(&out, cfg, "ci", []string{root}); err != nil {
		t.Fatalf("runToken: %v", err)
	}
	claims, err := auth.NewService(cfg.Auth.JWTSecret, 0).ValidateToken(strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Subject != "ci" || len(claims.Roots) != 1 || claims.Roots[0] != root {
		t.Fatalf("claims = %+v", claims)
	}

	if err := runToken(&out, config.Default(), "ci", nil); err == nil {
		t.Fatal("runToken accepted the default secret")
	}
}

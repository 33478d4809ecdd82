package projection

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/odvcencio/memorybank/internal/graphdb/graphdbtest"
)

const (
	createCall = "CALL project_graph("
	dropCall   = "CALL drop_projected_graph("
)

var componentSpec = Spec{Name: "deps", NodeKinds: []string{"Component"}, RelKinds: []string{"DEPENDS_ON"}}

func TestRunDropsExactlyWhenCreateSucceeded(t *testing.T) {
	workErr := errors.New("algorithm failed")

	tests := []struct {
		name       string
		createErr  error
		workErr    error
		wantCreate int
		wantDrop   int
		wantWork   bool
	}{
		{name: "success", wantCreate: 1, wantDrop: 1, wantWork: true},
		{name: "work fails", workErr: workErr, wantCreate: 1, wantDrop: 1, wantWork: true},
		{name: "create fails", createErr: errors.New("Binder exception"), wantCreate: 1, wantDrop: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			conn := graphdbtest.NewConn()
			if tc.createErr != nil {
				conn.OnError(createCall, tc.createErr)
			}
			m := NewManager(conn, Options{})

			worked := false
			got, err := Run(context.Background(), m, componentSpec, func(ctx context.Context, graph string) (string, error) {
				worked = true
				if conn.Count(createCall) != 1 || conn.Count(dropCall) != 0 {
					t.Fatal("work ran outside create/drop ordering")
				}
				return graph, tc.workErr
			})

			if worked != tc.wantWork {
				t.Fatalf("work called = %v, want %v", worked, tc.wantWork)
			}
			if n := conn.Count(createCall); n != tc.wantCreate {
				t.Fatalf("create calls = %d, want %d", n, tc.wantCreate)
			}
			if n := conn.Count(dropCall); n != tc.wantDrop {
				t.Fatalf("drop calls = %d, want %d", n, tc.wantDrop)
			}

			switch {
			case tc.createErr != nil:
				var lerr *LifecycleError
				if !errors.As(err, &lerr) || lerr.Stage != StageCreate {
					t.Fatalf("err = %v, want create LifecycleError", err)
				}
				if !errors.Is(err, tc.createErr) {
					t.Fatalf("err = %v, does not wrap the engine error", err)
				}
			case tc.workErr != nil:
				if err != tc.workErr {
					t.Fatalf("err = %v, want the work error unchanged", err)
				}
			default:
				if err != nil {
					t.Fatalf("Run: %v", err)
				}
				if got != "deps" {
					t.Fatalf("graph = %q, want deps", got)
				}
			}
		})
	}
}

func TestRunCreateQueryRestrictsKinds(t *testing.T) {
	conn := graphdbtest.NewConn()
	m := NewManager(conn, Options{})

	_, err := Run(context.Background(), m, Spec{
		Name:      "pr-1; DROP",
		NodeKinds: []string{"Component", "Decision"},
		RelKinds:  []string{"DEPENDS_ON", "GOVERNS"},
	}, func(ctx context.Context, graph string) (struct{}, error) {
		if graph != "pr1DROP" {
			t.Fatalf("graph = %q, want sanitized pr1DROP", graph)
		}
		return struct{}{}, nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	calls := conn.Calls()
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(calls))
	}
	want := "CALL project_graph('pr1DROP', ['Component', 'Decision'], ['DEPENDS_ON', 'GOVERNS'])"
	if calls[0].Query != want {
		t.Fatalf("create = %q, want %q", calls[0].Query, want)
	}
	if calls[1].Query != "CALL drop_projected_graph('pr1DROP')" {
		t.Fatalf("drop = %q", calls[1].Query)
	}
}

func TestRunScopedCreateFiltersNodesByBranch(t *testing.T) {
	conn := graphdbtest.NewConn()
	m := NewManager(conn, Options{})

	spec := Spec{
		Name:       "pr",
		NodeKinds:  []string{"Component", "Decision"},
		RelKinds:   []string{"DEPENDS_ON"},
		Repository: "repoA",
		Branch:     "feature/x",
	}
	if _, err := Run(context.Background(), m, spec, func(ctx context.Context, graph string) (int, error) {
		return 0, nil
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	call, ok := conn.Last(createCall)
	if !ok {
		t.Fatal("no create call")
	}
	pred := `n.repository = "repoA" AND n.branch = "feature/x"`
	want := "CALL project_graph('pr', {'Component': '" + pred + "', 'Decision': '" + pred + "'}, ['DEPENDS_ON'])"
	if call.Query != want {
		t.Fatalf("create = %q, want %q", call.Query, want)
	}
}

func TestRunRejectsUnsafeInputWithoutQuerying(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
		want error
	}{
		{name: "empty name", spec: Spec{Name: "", NodeKinds: []string{"Component"}}, want: ErrInvalidName},
		{name: "no safe chars", spec: Spec{Name: "'); --", NodeKinds: []string{"Component"}}, want: ErrInvalidName},
		{name: "no node kinds", spec: Spec{Name: "g"}, want: ErrNoNodeKinds},
		{name: "unknown node", spec: Spec{Name: "g", NodeKinds: []string{"Issue"}}, want: ErrUnknownKind},
		{name: "injected node", spec: Spec{Name: "g", NodeKinds: []string{"Component'])"}}, want: ErrUnknownKind},
		{name: "unknown rel", spec: Spec{Name: "g", NodeKinds: []string{"Component"}, RelKinds: []string{"OWNS"}}, want: ErrUnknownKind},
		{name: "quoted repository", spec: Spec{Name: "g", NodeKinds: []string{"Component"}, Repository: "a' OR '1", Branch: "main"}, want: ErrUnsafeScope},
		{name: "double quoted branch", spec: Spec{Name: "g", NodeKinds: []string{"Component"}, Repository: "a", Branch: `m" OR true OR "`}, want: ErrUnsafeScope},
		{name: "backslash branch", spec: Spec{Name: "g", NodeKinds: []string{"Component"}, Repository: "a", Branch: `m\`}, want: ErrUnsafeScope},
		{name: "branch without repository", spec: Spec{Name: "g", NodeKinds: []string{"Component"}, Branch: "main"}, want: ErrUnsafeScope},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			conn := graphdbtest.NewConn()
			_, err := Run(context.Background(), NewManager(conn, Options{}), tc.spec, func(ctx context.Context, graph string) (int, error) {
				t.Fatal("work called for invalid spec")
				return 0, nil
			})
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if n := len(conn.Calls()); n != 0 {
				t.Fatalf("queries = %d, want 0", n)
			}
		})
	}
}

func TestRunDropFailureDoesNotMaskResult(t *testing.T) {
	conn := graphdbtest.NewConn()
	conn.OnError(dropCall, errors.New("graph not found"))
	reg := prometheus.NewRegistry()
	m := NewManager(conn, Options{Metrics: NewMetrics(reg)})

	var dropErr error
	spec := componentSpec
	spec.Dropped = func(err error) { dropErr = err }
	got, err := Run(context.Background(), m, spec, func(ctx context.Context, graph string) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Run err = %v, want nil despite drop failure", err)
	}
	if got != 42 {
		t.Fatalf("result = %d, want 42", got)
	}
	if v := testutil.ToFloat64(m.metrics.ops.WithLabelValues("drop", "error")); v != 1 {
		t.Fatalf("drop errors = %v, want 1", v)
	}
	var lerr *LifecycleError
	if !errors.As(dropErr, &lerr) || lerr.Stage != StageDrop {
		t.Fatalf("Dropped got %v, want drop LifecycleError", dropErr)
	}
}

func TestRunDropsAfterCancellation(t *testing.T) {
	conn := graphdbtest.NewConn()
	m := NewManager(conn, Options{})
	ctx, cancel := context.WithCancel(context.Background())

	_, err := Run(ctx, m, componentSpec, func(ctx context.Context, graph string) (int, error) {
		cancel()
		return 0, ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if n := conn.Count(dropCall); n != 1 {
		t.Fatalf("drop calls = %d, want 1", n)
	}
}

func TestRunDropsWhenWorkPanics(t *testing.T) {
	conn := graphdbtest.NewConn()
	m := NewManager(conn, Options{})

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("panic was swallowed")
			}
		}()
		_, _ = Run(context.Background(), m, componentSpec, func(ctx context.Context, graph string) (int, error) {
			panic("boom")
		})
	}()
	if n := conn.Count(dropCall); n != 1 {
		t.Fatalf("drop calls = %d, want 1", n)
	}
}

func TestNewNameIsUniqueAndSafe(t *testing.T) {
	a, b := NewName("mb"), NewName("mb")
	if a == b {
		t.Fatal("NewName returned the same name twice")
	}
	if !strings.HasPrefix(a, "mb_") {
		t.Fatalf("name = %q, want mb_ prefix", a)
	}
	if got, err := SanitizeName(a); err != nil || got != a {
		t.Fatalf("SanitizeName(%q) = %q, %v; want unchanged", a, got, err)
	}
}

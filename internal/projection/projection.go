// Package projection runs work against temporary named projected graphs. A
// projection is created, used and dropped within one call; the drop runs
// whenever the create succeeded, including when work fails or panics.
package projection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/odvcencio/memorybank/internal/graphdb"
)

var (
	ErrInvalidName = errors.New("projection name has no safe characters")
	ErrUnknownKind = errors.New("unknown graph kind")
	ErrNoNodeKinds = errors.New("projection requires at least one node kind")
	ErrUnsafeScope = errors.New("projection scope cannot be embedded in a predicate")
)

// Stage names the lifecycle step that failed.
type Stage string

const (
	StageCreate Stage = "create"
	StageDrop   Stage = "drop"
)

// LifecycleError reports a failure to create or drop a projection.
type LifecycleError struct {
	Stage Stage
	Name  string
	Err   error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("%s projected graph %s: %v", e.Stage, e.Name, e.Err)
}

func (e *LifecycleError) Unwrap() error { return e.Err }

// Spec describes the projection one call needs. When Repository and Branch
// are set only nodes of that branch are projected, so relationships to other
// branches drop out with them.
type Spec struct {
	Name       string
	NodeKinds  []string
	RelKinds   []string
	Repository string
	Branch     string

	// Dropped, when set, is called after the drop with its error, nil on
	// success.
	Dropped func(err error)
}

func (s Spec) scoped() bool { return s.Repository != "" || s.Branch != "" }

type Options struct {
	Logger  *slog.Logger
	Metrics *Metrics
}

// Manager issues projection lifecycle calls on one connection. It does not
// serialize calls by name; callers pass unique names (see NewName).
type Manager struct {
	conn    graphdb.Conn
	logger  *slog.Logger
	metrics *Metrics
}

func NewManager(conn graphdb.Conn, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	return &Manager{conn: conn, logger: opts.Logger, metrics: opts.Metrics}
}

// SanitizeName keeps only [A-Za-z0-9_]. A name with no safe characters is
// rejected.
func SanitizeName(name string) (string, error) {
	var b strings.Builder
	for _, r := range name {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return b.String(), nil
}

// NewName returns a per-call unique projection name with the given prefix.
func NewName(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return "g_" + id
	}
	return prefix + "_" + id
}

// Run creates the projection described by spec, calls work with its
// sanitized name and drops it afterwards. Create failures return a
// *LifecycleError without calling work. Errors from work are returned as is;
// drop failures are logged and never replace the outcome of work.
func Run[T any](ctx context.Context, m *Manager, spec Spec, work func(ctx context.Context, graph string) (T, error)) (result T, err error) {
	name, err := SanitizeName(spec.Name)
	if err != nil {
		return result, err
	}
	if err := validateKinds(spec); err != nil {
		return result, err
	}
	if err := validateScope(spec); err != nil {
		return result, err
	}

	if err := m.create(ctx, name, spec); err != nil {
		return result, err
	}
	defer func() {
		dropErr := m.drop(context.WithoutCancel(ctx), name)
		if spec.Dropped != nil {
			spec.Dropped(dropErr)
		}
	}()

	return work(ctx, name)
}

func validateKinds(spec Spec) error {
	if len(spec.NodeKinds) == 0 {
		return ErrNoNodeKinds
	}
	for _, kind := range spec.NodeKinds {
		if !graphdb.ValidIdentifier(kind) || !graphdb.IsNodeKind(kind) {
			return fmt.Errorf("%w: node kind %q", ErrUnknownKind, kind)
		}
	}
	for _, kind := range spec.RelKinds {
		if !graphdb.ValidIdentifier(kind) || !graphdb.IsRelKind(kind) {
			return fmt.Errorf("%w: relationship kind %q", ErrUnknownKind, kind)
		}
	}
	return nil
}

// validateScope rejects scope values that would break out of the predicate
// literal. Both values are required together.
func validateScope(spec Spec) error {
	if !spec.scoped() {
		return nil
	}
	for _, f := range []struct{ label, value string }{{"repository", spec.Repository}, {"branch", spec.Branch}} {
		if f.value == "" {
			return fmt.Errorf("%w: %s is required", ErrUnsafeScope, f.label)
		}
		if strings.ContainsAny(f.value, "'\"\\") || strings.ContainsFunc(f.value, unicode.IsControl) {
			return fmt.Errorf("%w: %s %q", ErrUnsafeScope, f.label, f.value)
		}
	}
	return nil
}

func (m *Manager) create(ctx context.Context, name string, spec Spec) error {
	nodes := quoteList(spec.NodeKinds)
	if spec.scoped() {
		nodes = scopedNodeMap(spec)
	}
	q := fmt.Sprintf("CALL project_graph('%s', %s, %s)", name, nodes, quoteList(spec.RelKinds))
	if _, err := m.conn.Query(ctx, q, nil); err != nil {
		m.metrics.ops.WithLabelValues(string(StageCreate), "error").Inc()
		return &LifecycleError{Stage: StageCreate, Name: name, Err: err}
	}
	m.metrics.ops.WithLabelValues(string(StageCreate), "ok").Inc()
	m.logger.Debug("projected graph created", "graph", name, "nodes", spec.NodeKinds, "rels", spec.RelKinds,
		"repository", spec.Repository, "branch", spec.Branch)
	return nil
}

func (m *Manager) drop(ctx context.Context, name string) error {
	if _, err := m.conn.Query(ctx, fmt.Sprintf("CALL drop_projected_graph('%s')", name), nil); err != nil {
		lerr := &LifecycleError{Stage: StageDrop, Name: name, Err: err}
		m.metrics.ops.WithLabelValues(string(StageDrop), "error").Inc()
		m.logger.Warn("drop projected graph", "graph", name, "error", lerr)
		return lerr
	}
	m.metrics.ops.WithLabelValues(string(StageDrop), "ok").Inc()
	m.logger.Debug("projected graph dropped", "graph", name)
	return nil
}

// quoteList renders validated identifiers as a query list literal.
func quoteList(kinds []string) string {
	quoted := make([]string, len(kinds))
	for i, k := range kinds {
		quoted[i] = "'" + k + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// scopedNodeMap renders the node tables as a map from table to a predicate
// selecting the spec's branch, e.g. {'Component': 'n.repository = "a" AND n.branch = "main"'}.
func scopedNodeMap(spec Spec) string {
	pred := fmt.Sprintf(`n.repository = "%s" AND n.branch = "%s"`, spec.Repository, spec.Branch)
	entries := make([]string, len(spec.NodeKinds))
	for i, k := range spec.NodeKinds {
		entries[i] = "'" + k + "': '" + pred + "'"
	}
	return "{" + strings.Join(entries, ", ") + "}"
}

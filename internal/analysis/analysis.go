// Package analysis runs the engine's graph algorithms over one repository
// branch. Each method wraps its query in a projected graph where the
// algorithm needs one and returns a tagged result; algorithm failures are
// reported in the result, never as a Go error or panic.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/odvcencio/memorybank/internal/graphdb"
	"github.com/odvcencio/memorybank/internal/identity"
	"github.com/odvcencio/memorybank/internal/projection"
)

const tracerName = "github.com/odvcencio/memorybank/internal/analysis"

// Algorithm names used in results, spans and metrics.
const (
	AlgorithmPageRank          = "pagerank"
	AlgorithmKCore             = "kcore"
	AlgorithmLouvain           = "louvain"
	AlgorithmStronglyConnected = "scc"
	AlgorithmWeaklyConnected   = "wcc"
	AlgorithmShortestPath      = "shortest_path"
)

// MaxPathHopsLimit caps the hop bound of shortest path queries.
const MaxPathHopsLimit = 64

var ErrInvalidRequest = errors.New("invalid analysis request")

type Status string

const (
	StatusOK    Status = "ok"
	StatusEmpty Status = "empty"
	StatusError Status = "error"
)

// Defaults are applied when a request leaves a parameter unset.
type Defaults struct {
	DampingFactor    float64
	MaxIterations    int
	Tolerance        float64
	LouvainPhases    int
	MaxPathHops      int
	ProjectionPrefix string
}

func DefaultDefaults() Defaults {
	return Defaults{
		DampingFactor:    0.85,
		MaxIterations:    20,
		Tolerance:        1e-7,
		LouvainPhases:    20,
		MaxPathHops:      10,
		ProjectionPrefix: "mb",
	}
}

// Scope selects the repository branch and the part of the graph an
// algorithm runs over. Empty kinds select components and their
// dependencies; an empty ProjectionName gets a generated unique name.
type Scope struct {
	Repository     string   `json:"repository"`
	Branch         string   `json:"branch"`
	ProjectionName string   `json:"projection_name,omitempty"`
	NodeKinds      []string `json:"node_kinds,omitempty"`
	RelKinds       []string `json:"rel_kinds,omitempty"`
}

// Result is the tagged envelope shared by every algorithm result.
type Result struct {
	Algorithm  string `json:"algorithm"`
	Repository string `json:"repository"`
	Branch     string `json:"branch"`
	Projection string `json:"projection,omitempty"`
	Status     Status `json:"status"`
	Error      string `json:"error,omitempty"`
}

func (r *Result) fail(err error) {
	r.Status = StatusError
	r.Error = err.Error()
}

// OK reports whether the algorithm ran, with or without rows.
func (r Result) OK() bool { return r.Status != StatusError }

type Options struct {
	Defaults Defaults
	Logger   *slog.Logger
	Tracer   trace.Tracer
	Metrics  *Metrics
	// Projections overrides the projection manager; nil builds one on conn.
	Projections *projection.Manager
}

// Service runs algorithms on one project connection.
type Service struct {
	conn        graphdb.Conn
	projections *projection.Manager
	defaults    Defaults
	logger      *slog.Logger
	tracer      trace.Tracer
	metrics     *Metrics
}

func NewService(conn graphdb.Conn, opts Options) *Service {
	d := DefaultDefaults()
	if opts.Defaults.DampingFactor > 0 && opts.Defaults.DampingFactor < 1 {
		d.DampingFactor = opts.Defaults.DampingFactor
	}
	if opts.Defaults.MaxIterations > 0 {
		d.MaxIterations = opts.Defaults.MaxIterations
	}
	if opts.Defaults.Tolerance > 0 {
		d.Tolerance = opts.Defaults.Tolerance
	}
	if opts.Defaults.LouvainPhases > 0 {
		d.LouvainPhases = opts.Defaults.LouvainPhases
	}
	if opts.Defaults.MaxPathHops > 0 {
		d.MaxPathHops = min(opts.Defaults.MaxPathHops, MaxPathHopsLimit)
	}
	if opts.Defaults.ProjectionPrefix != "" {
		d.ProjectionPrefix = opts.Defaults.ProjectionPrefix
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if opts.Projections == nil {
		opts.Projections = projection.NewManager(conn, projection.Options{Logger: opts.Logger})
	}
	return &Service{
		conn:        conn,
		projections: opts.Projections,
		defaults:    d,
		logger:      opts.Logger,
		tracer:      opts.Tracer,
		metrics:     opts.Metrics,
	}
}

// Defaults returns the resolved defaults.
func (s *Service) Defaults() Defaults { return s.defaults }

// begin opens the span for one call and fills the result envelope.
func (s *Service) begin(ctx context.Context, algorithm, repository, branch string, res *Result) (context.Context, trace.Span) {
	res.Algorithm = algorithm
	res.Repository = repository
	res.Branch = branch
	res.Status = StatusOK
	return s.tracer.Start(ctx, "analysis."+algorithm, trace.WithAttributes(
		attribute.String("memorybank.algorithm", algorithm),
		attribute.String("memorybank.repository", repository),
		attribute.String("memorybank.branch", branch),
	))
}

// end must be deferred directly so it can turn a panic into an error result.
func (s *Service) end(span trace.Span, start time.Time, res *Result) {
	if p := recover(); p != nil {
		res.fail(fmt.Errorf("%s panicked: %v", res.Algorithm, p))
	}
	elapsed := time.Since(start)
	s.metrics.runs.WithLabelValues(res.Algorithm, string(res.Status)).Inc()
	s.metrics.duration.WithLabelValues(res.Algorithm).Observe(elapsed.Seconds())

	span.SetAttributes(attribute.String("memorybank.status", string(res.Status)))
	if res.Projection != "" {
		span.SetAttributes(attribute.String("memorybank.projection", res.Projection))
	}
	if res.Status == StatusError {
		span.SetStatus(codes.Error, res.Error)
		s.logger.Warn("graph algorithm failed", "algorithm", res.Algorithm, "repository", res.Repository,
			"branch", res.Branch, "error", res.Error, "duration", elapsed)
	} else {
		span.SetStatus(codes.Ok, "")
		s.logger.Debug("graph algorithm finished", "algorithm", res.Algorithm, "repository", res.Repository,
			"branch", res.Branch, "status", res.Status, "duration", elapsed)
	}
	span.End()
}

// project runs work inside a projected graph built for scope and records the
// lifecycle on span.
func project[T any](ctx context.Context, s *Service, span trace.Span, res *Result, spec projection.Spec, work func(ctx context.Context, graph string) (T, error)) (T, error) {
	if spec.Name == "" {
		spec.Name = projection.NewName(s.defaults.ProjectionPrefix)
	}
	spec.Dropped = func(err error) {
		if err != nil {
			span.AddEvent("projection-drop-failed", trace.WithAttributes(attribute.String("error", err.Error())))
			return
		}
		span.AddEvent("projection-dropped")
	}
	return projection.Run(ctx, s.projections, spec, func(ctx context.Context, graph string) (T, error) {
		res.Projection = graph
		span.AddEvent("projection-created", trace.WithAttributes(attribute.String("memorybank.projection", graph)))
		span.AddEvent("executing")
		return work(ctx, graph)
	})
}

// resolveKinds validates scope and returns the projection spec for it.
func resolveKinds(scope Scope) (projection.Spec, error) {
	if err := identity.ValidateScope(scope.Repository, scope.Branch); err != nil {
		return projection.Spec{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	nodes, rels := scope.NodeKinds, scope.RelKinds
	if len(nodes) == 0 {
		nodes = []string{graphdb.KindComponent}
		if len(rels) == 0 {
			rels = []string{graphdb.RelDependsOn}
		}
	}
	for _, kind := range nodes {
		if !isScopedKind(kind) {
			return projection.Spec{}, fmt.Errorf("%w: node kind %q is not a scoped kind", ErrInvalidRequest, kind)
		}
	}
	for _, kind := range rels {
		if !isAnalysisRel(kind) {
			return projection.Spec{}, fmt.Errorf("%w: relationship kind %q cannot be analyzed", ErrInvalidRequest, kind)
		}
	}
	return projection.Spec{
		Name:       scope.ProjectionName,
		NodeKinds:  nodes,
		RelKinds:   rels,
		Repository: scope.Repository,
		Branch:     scope.Branch,
	}, nil
}

// fullScope covers every scoped node kind and every relationship between
// scoped kinds.
func fullScope(scope Scope) (projection.Spec, error) {
	if err := identity.ValidateScope(scope.Repository, scope.Branch); err != nil {
		return projection.Spec{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return projection.Spec{
		Name:       scope.ProjectionName,
		NodeKinds:  append([]string{}, graphdb.ScopedKinds...),
		RelKinds:   analysisRels(),
		Repository: scope.Repository,
		Branch:     scope.Branch,
	}, nil
}

func isScopedKind(kind string) bool {
	for _, k := range graphdb.ScopedKinds {
		if k == kind {
			return true
		}
	}
	return false
}

func isAnalysisRel(kind string) bool {
	return kind != graphdb.RelPartOf && graphdb.IsRelKind(kind)
}

// analysisRels lists the relationship kinds between scoped nodes. PART_OF
// points at Repository nodes, which never take part in an algorithm.
func analysisRels() []string {
	out := make([]string, 0, len(graphdb.RelKinds))
	for _, k := range graphdb.RelKinds {
		if isAnalysisRel(k) {
			out = append(out, k)
		}
	}
	return out
}

func scopeParams(repository, branch string) map[string]any {
	return map[string]any{"repository": repository, "branch": branch}
}

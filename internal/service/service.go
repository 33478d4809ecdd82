// Package service exposes the memory bank capabilities to the transport
// layers. Every method takes the project root it operates on; sessions are
// resolved through the shared session registry.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/odvcencio/memorybank/internal/analysis"
	"github.com/odvcencio/memorybank/internal/graphdb"
	"github.com/odvcencio/memorybank/internal/identity"
	"github.com/odvcencio/memorybank/internal/logctx"
	"github.com/odvcencio/memorybank/internal/projection"
	"github.com/odvcencio/memorybank/internal/repository"
	"github.com/odvcencio/memorybank/internal/session"
)

// ErrInvalidInput marks caller mistakes that retrying cannot fix.
var ErrInvalidInput = errors.New("invalid input")

// DefaultBatchConcurrency bounds how many algorithms of one batch run at once.
const DefaultBatchConcurrency = 4

type Options struct {
	Logger            *slog.Logger
	Tracer            trace.Tracer
	AnalysisDefaults  analysis.Defaults
	AnalysisMetrics   *analysis.Metrics
	ProjectionMetrics *projection.Metrics
	BatchConcurrency  int
}

// MemoryService groups the capability services. They are built once in New
// and shared.
type MemoryService struct {
	registry *session.Registry
	metadata *MetadataService
	entities *EntityService
	graph    *GraphQueryService
	analysis *GraphAnalysisService
}

func New(registry *session.Registry, opts Options) *MemoryService {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.AnalysisMetrics == nil {
		opts.AnalysisMetrics = analysis.NewMetrics(nil)
	}
	if opts.ProjectionMetrics == nil {
		opts.ProjectionMetrics = projection.NewMetrics(nil)
	}
	if opts.BatchConcurrency <= 0 {
		opts.BatchConcurrency = DefaultBatchConcurrency
	}
	b := &base{registry: registry, logger: opts.Logger}
	return &MemoryService{
		registry: registry,
		metadata: &MetadataService{base: b},
		entities: &EntityService{base: b},
		graph:    &GraphQueryService{base: b},
		analysis: &GraphAnalysisService{
			base:        b,
			opts:        opts,
			concurrency: opts.BatchConcurrency,
			services:    make(map[graphdb.Conn]*analysis.Service),
		},
	}
}

// Shutdown closes every project session and drops the algorithm services
// bound to their connections.
func (s *MemoryService) Shutdown(ctx context.Context) error {
	err := s.registry.Shutdown(ctx)
	s.analysis.reset()
	return err
}

func (s *MemoryService) Registry() *session.Registry     { return s.registry }
func (s *MemoryService) Metadata() *MetadataService      { return s.metadata }
func (s *MemoryService) Entities() *EntityService        { return s.entities }
func (s *MemoryService) GraphQuery() *GraphQueryService  { return s.graph }
func (s *MemoryService) Analysis() *GraphAnalysisService { return s.analysis }

type base struct {
	registry *session.Registry
	logger   *slog.Logger
}

// session resolves root, opening its database on first use.
func (b *base) session(ctx context.Context, root string) (*session.Session, error) {
	s, err := b.registry.Get(ctx, root)
	if err != nil {
		if errors.Is(err, session.ErrProjectRootRequired) || errors.Is(err, session.ErrRelativeRoot) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		return nil, err
	}
	logctx.FromContext(ctx).Debug("project session resolved", "root", s.Root)
	return s, nil
}

func (b *base) repos(ctx context.Context, root string) (*repository.Set, error) {
	s, err := b.session(ctx, root)
	if err != nil {
		return nil, err
	}
	return s.Repos, nil
}

// classify marks validation failures from lower layers as ErrInvalidInput.
func classify(err error) error {
	if err == nil || errors.Is(err, ErrInvalidInput) {
		return err
	}
	switch {
	case errors.Is(err, identity.ErrInvalidSegment),
		errors.Is(err, identity.ErrInvalidKey),
		errors.Is(err, repository.ErrInvalidKind),
		errors.Is(err, repository.ErrInvalidDepth):
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return err
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/memorybank/internal/analysis"
	"github.com/odvcencio/memorybank/internal/graphdb"
	"github.com/odvcencio/memorybank/internal/logctx"
	"github.com/odvcencio/memorybank/internal/projection"
)

// GraphAnalysisService runs graph algorithms against a project database.
//
// The returned error only reports that the project session could not be
// resolved. Algorithm failures are carried in the result with status error.
type GraphAnalysisService struct {
	*base
	opts        Options
	concurrency int

	mu       sync.Mutex
	services map[graphdb.Conn]*analysis.Service
}

// analysisService returns the algorithm service bound to conn, building it on
// first use.
func (s *GraphAnalysisService) analysisService(conn graphdb.Conn) *analysis.Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	if svc, ok := s.services[conn]; ok {
		return svc
	}
	svc := analysis.NewService(conn, analysis.Options{
		Defaults: s.opts.AnalysisDefaults,
		Logger:   s.opts.Logger,
		Tracer:   s.opts.Tracer,
		Metrics:  s.opts.AnalysisMetrics,
		Projections: projection.NewManager(conn, projection.Options{
			Logger:  s.opts.Logger,
			Metrics: s.opts.ProjectionMetrics,
		}),
	})
	s.services[conn] = svc
	return svc
}

func (s *GraphAnalysisService) reset() {
	s.mu.Lock()
	clear(s.services)
	s.mu.Unlock()
}

func (s *GraphAnalysisService) resolve(ctx context.Context, root string) (*analysis.Service, error) {
	sess, err := s.session(ctx, root)
	if err != nil {
		return nil, err
	}
	return s.analysisService(sess.Conn), nil
}

// Defaults reports the parameter defaults applied to unset request fields.
func (s *GraphAnalysisService) Defaults(ctx context.Context, root string) (analysis.Defaults, error) {
	svc, err := s.resolve(ctx, root)
	if err != nil {
		return analysis.Defaults{}, err
	}
	return svc.Defaults(), nil
}

func (s *GraphAnalysisService) PageRank(ctx context.Context, root string, req analysis.PageRankRequest) (analysis.PageRankResult, error) {
	svc, err := s.resolve(ctx, root)
	if err != nil {
		return analysis.PageRankResult{}, err
	}
	return svc.PageRank(ctx, req), nil
}

func (s *GraphAnalysisService) KCore(ctx context.Context, root string, req analysis.KCoreRequest) (analysis.KCoreResult, error) {
	svc, err := s.resolve(ctx, root)
	if err != nil {
		return analysis.KCoreResult{}, err
	}
	return svc.KCore(ctx, req), nil
}

func (s *GraphAnalysisService) Louvain(ctx context.Context, root string, req analysis.LouvainRequest) (analysis.CommunityResult, error) {
	svc, err := s.resolve(ctx, root)
	if err != nil {
		return analysis.CommunityResult{}, err
	}
	return svc.Louvain(ctx, req), nil
}

func (s *GraphAnalysisService) StronglyConnected(ctx context.Context, root string, req analysis.ConnectivityRequest) (analysis.ConnectivityResult, error) {
	svc, err := s.resolve(ctx, root)
	if err != nil {
		return analysis.ConnectivityResult{}, err
	}
	return svc.StronglyConnected(ctx, req), nil
}

func (s *GraphAnalysisService) WeaklyConnected(ctx context.Context, root string, req analysis.ConnectivityRequest) (analysis.ConnectivityResult, error) {
	svc, err := s.resolve(ctx, root)
	if err != nil {
		return analysis.ConnectivityResult{}, err
	}
	return svc.WeaklyConnected(ctx, req), nil
}

func (s *GraphAnalysisService) ShortestPath(ctx context.Context, root string, req analysis.ShortestPathRequest) (analysis.ShortestPathResult, error) {
	svc, err := s.resolve(ctx, root)
	if err != nil {
		return analysis.ShortestPathResult{}, err
	}
	return svc.ShortestPath(ctx, req), nil
}

// BatchRequest names one algorithm and carries the union of the algorithm
// parameters. Fields an algorithm does not use are ignored.
type BatchRequest struct {
	Algorithm string `json:"algorithm"`
	analysis.Scope

	DampingFactor *float64 `json:"damping_factor,omitempty"`
	MaxIterations *int     `json:"max_iterations,omitempty"`
	Tolerance     *float64 `json:"tolerance,omitempty"`
	K             *int     `json:"k,omitempty"`
	MaxPhases     *int     `json:"max_phases,omitempty"`
	StartNodeID   string   `json:"start_node_id,omitempty"`
	EndNodeID     string   `json:"end_node_id,omitempty"`
	MaxHops       int      `json:"max_hops,omitempty"`
}

// BatchOutcome is the status of one batch entry. Result holds the typed
// algorithm result and is nil when the algorithm name is unknown.
type BatchOutcome struct {
	Index     int             `json:"index"`
	Algorithm string          `json:"algorithm"`
	Status    analysis.Status `json:"status"`
	Error     string          `json:"error,omitempty"`
	Result    any             `json:"result,omitempty"`
}

// Run dispatches req to the algorithm it names.
func (s *GraphAnalysisService) Run(ctx context.Context, root string, req BatchRequest) (BatchOutcome, error) {
	if err := req.validate(); err != nil {
		return BatchOutcome{}, err
	}
	svc, err := s.resolve(ctx, root)
	if err != nil {
		return BatchOutcome{}, err
	}
	return dispatch(ctx, svc, req), nil
}

// RunBatch runs reqs concurrently on one project and returns an outcome per
// request in request order. A failing entry never cancels the others.
func (s *GraphAnalysisService) RunBatch(ctx context.Context, root string, reqs []BatchRequest) ([]BatchOutcome, error) {
	svc, err := s.resolve(ctx, root)
	if err != nil {
		return nil, err
	}
	logger := logctx.FromContext(ctx)
	total := len(reqs)
	out := make([]BatchOutcome, total)
	var done atomic.Int64
	logctx.ReportProgress(ctx, 0, total, "starting analysis batch")

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, req := range reqs {
		if req.ProjectionName != "" {
			req.ProjectionName = req.ProjectionName + "_" + strconv.Itoa(i)
		}
		g.Go(func() error {
			var o BatchOutcome
			if err := req.validate(); err != nil {
				o = BatchOutcome{Algorithm: req.Algorithm, Status: analysis.StatusError, Error: err.Error()}
			} else {
				o = dispatch(ctx, svc, req)
			}
			o.Index = i
			out[i] = o
			n := int(done.Add(1))
			logctx.ReportProgress(ctx, n, total, fmt.Sprintf("%s %s", o.Algorithm, o.Status))
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, o := range out {
		if o.Status == analysis.StatusError {
			failed++
		}
	}
	logger.Info("analysis batch finished", "requests", total, "failed", failed)
	return out, nil
}

// validate rejects requests no algorithm call could serve.
func (r BatchRequest) validate() error {
	if !isAlgorithm(r.Algorithm) {
		return invalid("unknown algorithm %q", r.Algorithm)
	}
	if r.Algorithm == analysis.AlgorithmKCore && r.K == nil {
		return invalid("k is required for %s", r.Algorithm)
	}
	return nil
}

func isAlgorithm(name string) bool {
	switch name {
	case analysis.AlgorithmPageRank, analysis.AlgorithmKCore, analysis.AlgorithmLouvain,
		analysis.AlgorithmStronglyConnected, analysis.AlgorithmWeaklyConnected, analysis.AlgorithmShortestPath:
		return true
	}
	return false
}

func dispatch(ctx context.Context, svc *analysis.Service, req BatchRequest) BatchOutcome {
	var (
		env    analysis.Result
		result any
	)
	switch req.Algorithm {
	case analysis.AlgorithmPageRank:
		r := svc.PageRank(ctx, analysis.PageRankRequest{
			Scope:         req.Scope,
			DampingFactor: req.DampingFactor,
			MaxIterations: req.MaxIterations,
			Tolerance:     req.Tolerance,
		})
		env, result = r.Result, r
	case analysis.AlgorithmKCore:
		r := svc.KCore(ctx, analysis.KCoreRequest{Scope: req.Scope, K: *req.K})
		env, result = r.Result, r
	case analysis.AlgorithmLouvain:
		r := svc.Louvain(ctx, analysis.LouvainRequest{
			Scope:         req.Scope,
			MaxPhases:     req.MaxPhases,
			MaxIterations: req.MaxIterations,
		})
		env, result = r.Result, r
	case analysis.AlgorithmStronglyConnected:
		r := svc.StronglyConnected(ctx, analysis.ConnectivityRequest{Scope: req.Scope})
		env, result = r.Result, r
	case analysis.AlgorithmWeaklyConnected:
		r := svc.WeaklyConnected(ctx, analysis.ConnectivityRequest{Scope: req.Scope})
		env, result = r.Result, r
	case analysis.AlgorithmShortestPath:
		r := svc.ShortestPath(ctx, analysis.ShortestPathRequest{
			Repository:  req.Repository,
			Branch:      req.Branch,
			StartNodeID: req.StartNodeID,
			EndNodeID:   req.EndNodeID,
			RelKinds:    req.RelKinds,
			MaxHops:     req.MaxHops,
		})
		env, result = r.Result, r
	}
	return BatchOutcome{Algorithm: env.Algorithm, Status: env.Status, Error: env.Error, Result: result}
}

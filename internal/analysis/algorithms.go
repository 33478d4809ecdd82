package analysis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/odvcencio/memorybank/internal/graphdb"
	"github.com/odvcencio/memorybank/internal/identity"
)

// scopeFilter keeps output rows on the requested branch. Projections are
// already filtered to it; this guards against a projection built without a
// scope.
const scopeFilter = `WHERE node.repository = $repository AND node.branch = $branch`

type NodeScore struct {
	NodeID string  `json:"node_id"`
	Score  float64 `json:"score"`
}

type PageRankRequest struct {
	Scope
	DampingFactor *float64 `json:"damping_factor,omitempty"`
	MaxIterations *int     `json:"max_iterations,omitempty"`
	Tolerance     *float64 `json:"tolerance,omitempty"`
}

type PageRankResult struct {
	Result
	DampingFactor float64     `json:"damping_factor"`
	MaxIterations int         `json:"max_iterations"`
	Tolerance     float64     `json:"tolerance"`
	Ranks         []NodeScore `json:"ranks"`
}

// PageRank ranks nodes by centrality. Unset parameters take the service
// defaults.
func (s *Service) PageRank(ctx context.Context, req PageRankRequest) (res PageRankResult) {
	ctx, span := s.begin(ctx, AlgorithmPageRank, req.Repository, req.Branch, &res.Result)
	defer s.end(span, time.Now(), &res.Result)
	res.Ranks = []NodeScore{}

	res.DampingFactor = valueOr(req.DampingFactor, s.defaults.DampingFactor)
	res.MaxIterations = valueOr(req.MaxIterations, s.defaults.MaxIterations)
	res.Tolerance = valueOr(req.Tolerance, s.defaults.Tolerance)
	switch {
	case res.DampingFactor <= 0 || res.DampingFactor >= 1:
		res.fail(fmt.Errorf("%w: damping factor %v outside (0, 1)", ErrInvalidRequest, res.DampingFactor))
		return res
	case res.MaxIterations <= 0:
		res.fail(fmt.Errorf("%w: max iterations must be positive", ErrInvalidRequest))
		return res
	case res.Tolerance <= 0:
		res.fail(fmt.Errorf("%w: tolerance must be positive", ErrInvalidRequest))
		return res
	}
	spec, err := resolveKinds(req.Scope)
	if err != nil {
		res.fail(err)
		return res
	}

	rows, err := project(ctx, s, span, &res.Result, spec, func(ctx context.Context, graph string) ([]graphdb.Row, error) {
		q := fmt.Sprintf(`CALL page_rank('%s', dampingFactor := %s, maxIterations := %d, tolerance := %s)
			WITH node, rank %s
			RETURN node.graph_unique_id AS nodeId, rank
			ORDER BY rank DESC, nodeId`,
			graph, formatFloat(res.DampingFactor), res.MaxIterations, formatFloat(res.Tolerance), scopeFilter)
		return s.conn.Query(ctx, q, scopeParams(req.Repository, req.Branch))
	})
	if err != nil {
		res.fail(err)
		return res
	}
	for _, row := range rows {
		res.Ranks = append(res.Ranks, NodeScore{NodeID: row.String("nodeId"), Score: row.Float64("rank")})
	}
	setEmpty(&res.Result, len(res.Ranks))
	return res
}

type NodeCoreness struct {
	NodeID   string `json:"node_id"`
	Coreness int64  `json:"coreness"`
}

type KCoreRequest struct {
	Scope
	K int `json:"k"`
}

type KCoreResult struct {
	Result
	K     int            `json:"k"`
	Nodes []NodeCoreness `json:"nodes"`
}

// KCore computes the coreness of every node. K is reported back for callers
// that filter; nodes below it are still returned.
func (s *Service) KCore(ctx context.Context, req KCoreRequest) (res KCoreResult) {
	ctx, span := s.begin(ctx, AlgorithmKCore, req.Repository, req.Branch, &res.Result)
	defer s.end(span, time.Now(), &res.Result)
	res.K = req.K
	res.Nodes = []NodeCoreness{}

	if req.K < 0 {
		res.fail(fmt.Errorf("%w: k must be non-negative, got %d", ErrInvalidRequest, req.K))
		return res
	}
	spec, err := resolveKinds(req.Scope)
	if err != nil {
		res.fail(err)
		return res
	}

	rows, err := project(ctx, s, span, &res.Result, spec, func(ctx context.Context, graph string) ([]graphdb.Row, error) {
		q := fmt.Sprintf(`CALL k_core_decomposition('%s')
			WITH node, k_degree %s
			RETURN node.graph_unique_id AS nodeId, k_degree AS coreness
			ORDER BY coreness DESC, nodeId`, graph, scopeFilter)
		return s.conn.Query(ctx, q, scopeParams(req.Repository, req.Branch))
	})
	if err != nil {
		res.fail(err)
		return res
	}
	for _, row := range rows {
		res.Nodes = append(res.Nodes, NodeCoreness{NodeID: row.String("nodeId"), Coreness: row.Int64("coreness")})
	}
	setEmpty(&res.Result, len(res.Nodes))
	return res
}

type CommunityAssignment struct {
	NodeID      string `json:"node_id"`
	CommunityID int64  `json:"community_id"`
}

type LouvainRequest struct {
	Scope
	MaxPhases     *int `json:"max_phases,omitempty"`
	MaxIterations *int `json:"max_iterations,omitempty"`
}

type CommunityResult struct {
	Result
	Assignments []CommunityAssignment `json:"assignments"`
}

func (s *Service) Louvain(ctx context.Context, req LouvainRequest) (res CommunityResult) {
	ctx, span := s.begin(ctx, AlgorithmLouvain, req.Repository, req.Branch, &res.Result)
	defer s.end(span, time.Now(), &res.Result)
	res.Assignments = []CommunityAssignment{}

	phases := valueOr(req.MaxPhases, s.defaults.LouvainPhases)
	iterations := valueOr(req.MaxIterations, s.defaults.MaxIterations)
	if phases <= 0 || iterations <= 0 {
		res.fail(fmt.Errorf("%w: phases and iterations must be positive", ErrInvalidRequest))
		return res
	}
	spec, err := resolveKinds(req.Scope)
	if err != nil {
		res.fail(err)
		return res
	}

	rows, err := project(ctx, s, span, &res.Result, spec, func(ctx context.Context, graph string) ([]graphdb.Row, error) {
		q := fmt.Sprintf(`CALL louvain('%s', maxPhases := %d, maxIterations := %d)
			WITH node, louvain_id %s
			RETURN node.graph_unique_id AS nodeId, louvain_id AS communityId
			ORDER BY communityId, nodeId`, graph, phases, iterations, scopeFilter)
		return s.conn.Query(ctx, q, scopeParams(req.Repository, req.Branch))
	})
	if err != nil {
		res.fail(err)
		return res
	}
	for _, row := range rows {
		res.Assignments = append(res.Assignments, CommunityAssignment{
			NodeID:      row.String("nodeId"),
			CommunityID: row.Int64("communityId"),
		})
	}
	setEmpty(&res.Result, len(res.Assignments))
	return res
}

// ConnectivityRequest selects a branch. Connectivity always covers every
// scoped node and relationship kind; only ProjectionName is read from Scope
// besides the repository and branch.
type ConnectivityRequest struct {
	Scope
}

type ConnectivityResult struct {
	Result
	Components []ComponentGroup `json:"components"`
}

func (s *Service) StronglyConnected(ctx context.Context, req ConnectivityRequest) ConnectivityResult {
	return s.connectivity(ctx, AlgorithmStronglyConnected, "strongly_connected_components", req)
}

func (s *Service) WeaklyConnected(ctx context.Context, req ConnectivityRequest) ConnectivityResult {
	return s.connectivity(ctx, AlgorithmWeaklyConnected, "weakly_connected_components", req)
}

func (s *Service) connectivity(ctx context.Context, algorithm, procedure string, req ConnectivityRequest) (res ConnectivityResult) {
	ctx, span := s.begin(ctx, algorithm, req.Repository, req.Branch, &res.Result)
	defer s.end(span, time.Now(), &res.Result)
	res.Components = []ComponentGroup{}

	spec, err := fullScope(req.Scope)
	if err != nil {
		res.fail(err)
		return res
	}

	rows, err := project(ctx, s, span, &res.Result, spec, func(ctx context.Context, graph string) ([]graphdb.Row, error) {
		q := fmt.Sprintf(`CALL %s('%s')
			WITH node, group_id %s
			RETURN node.graph_unique_id AS nodeId, group_id AS componentId
			ORDER BY componentId, nodeId`, procedure, graph, scopeFilter)
		return s.conn.Query(ctx, q, scopeParams(req.Repository, req.Branch))
	})
	if err != nil {
		res.fail(err)
		return res
	}
	members := make([]ComponentRow, 0, len(rows))
	for _, row := range rows {
		members = append(members, ComponentRow{NodeID: row.String("nodeId"), ComponentID: row.Int64("componentId")})
	}
	res.Components = GroupComponents(members)
	setEmpty(&res.Result, len(res.Components))
	return res
}

type ShortestPathRequest struct {
	Repository  string   `json:"repository"`
	Branch      string   `json:"branch"`
	StartNodeID string   `json:"start_node_id"`
	EndNodeID   string   `json:"end_node_id"`
	RelKinds    []string `json:"rel_kinds,omitempty"`
	MaxHops     int      `json:"max_hops,omitempty"`
}

type ShortestPathResult struct {
	Result
	PathFound  bool     `json:"path_found"`
	Path       []string `json:"path"`
	PathLength int      `json:"path_length"`
	MaxHops    int      `json:"max_hops"`
}

// ShortestPath finds one shortest undirected path between two graph-unique
// ids of the same branch, at most MaxHops long. It queries the stored graph
// directly without a projection. An unreachable pair, or a start equal to
// the end that does not exist, is an empty result, not an error.
func (s *Service) ShortestPath(ctx context.Context, req ShortestPathRequest) (res ShortestPathResult) {
	ctx, span := s.begin(ctx, AlgorithmShortestPath, req.Repository, req.Branch, &res.Result)
	defer s.end(span, time.Now(), &res.Result)
	res.Path = []string{}
	span.AddEvent("projection-skipped")

	res.MaxHops = req.MaxHops
	if res.MaxHops <= 0 {
		res.MaxHops = s.defaults.MaxPathHops
	}
	res.MaxHops = min(res.MaxHops, MaxPathHopsLimit)

	if err := validatePathRequest(req); err != nil {
		res.fail(err)
		return res
	}
	rels := req.RelKinds
	if len(rels) == 0 {
		rels = analysisRels()
	}
	for _, kind := range rels {
		if !isAnalysisRel(kind) {
			res.fail(fmt.Errorf("%w: relationship kind %q cannot be traversed", ErrInvalidRequest, kind))
			return res
		}
	}

	span.AddEvent("executing", trace.WithAttributes(attribute.Int("memorybank.max_hops", res.MaxHops)))
	labels := strings.Join(graphdb.ScopedKinds, ":")
	if req.StartNodeID == req.EndNodeID {
		q := fmt.Sprintf(`MATCH (a:%s {graph_unique_id: $start}) RETURN a.graph_unique_id AS nodeId LIMIT 1`, labels)
		row, err := graphdb.QueryOne(ctx, s.conn, q, map[string]any{"start": req.StartNodeID})
		if err != nil {
			res.fail(fmt.Errorf("shortest path query: %w", err))
			return res
		}
		if row == nil {
			res.Status = StatusEmpty
			return res
		}
		res.PathFound = true
		res.Path = []string{req.StartNodeID}
		return res
	}

	q := fmt.Sprintf(`MATCH p = (a:%s {graph_unique_id: $start})-[:%s* SHORTEST 1..%d]-(b:%s {graph_unique_id: $end})
		RETURN properties(nodes(p), 'graph_unique_id') AS path, length(p) AS pathLength
		LIMIT 1`, labels, strings.Join(rels, "|"), res.MaxHops, labels)
	row, err := graphdb.QueryOne(ctx, s.conn, q, map[string]any{"start": req.StartNodeID, "end": req.EndNodeID})
	if err != nil {
		res.fail(fmt.Errorf("shortest path query: %w", err))
		return res
	}
	if row == nil {
		res.Status = StatusEmpty
		return res
	}
	res.PathFound = true
	res.Path = row.Strings("path")
	res.PathLength = int(row.Int64("pathLength"))
	return res
}

func validatePathRequest(req ShortestPathRequest) error {
	if err := identity.ValidateScope(req.Repository, req.Branch); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	for _, id := range []string{req.StartNodeID, req.EndNodeID} {
		key, err := identity.ParseKey(id)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		if key.Repository != req.Repository || key.Branch != req.Branch {
			return fmt.Errorf("%w: node %q is outside %s/%s", ErrInvalidRequest, id, req.Repository, req.Branch)
		}
	}
	return nil
}

func setEmpty(res *Result, n int) {
	if res.Status == StatusOK && n == 0 {
		res.Status = StatusEmpty
	}
}

func valueOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

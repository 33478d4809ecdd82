package api

import (
	"context"
	"net/http"

	"github.com/odvcencio/memorybank/internal/models"
	"github.com/odvcencio/memorybank/internal/service"
)

// entityRoutes adapts one entity kind of the EntityService to HTTP.
type entityRoutes struct {
	upsert func(w http.ResponseWriter, r *http.Request, root string, scope models.Scope) (out any, decoded bool, err error)
	get    func(ctx context.Context, root, repo, branch, id string) (any, error)
	list   func(w http.ResponseWriter, r *http.Request, root, repo, branch string) (any, error)
	remove func(ctx context.Context, root, repo, branch, id string) (bool, error)
}

type scopedNode[T any] interface {
	*T
	SetScope(models.Scope)
}

func newEntityRoutes[T any, PT scopedNode[T]](
	upsert func(context.Context, string, PT) (PT, error),
	get func(context.Context, string, string, string, string) (PT, error),
	list func(context.Context, string, string, string) ([]T, error),
	remove func(context.Context, string, string, string, string) (bool, error),
) entityRoutes {
	return entityRoutes{
		upsert: func(w http.ResponseWriter, r *http.Request, root string, scope models.Scope) (any, bool, error) {
			node := PT(new(T))
			if !decodeJSON(w, r, node) {
				return nil, false, nil
			}
			node.SetScope(scope)
			out, err := upsert(r.Context(), root, node)
			return out, true, err
		},
		get: func(ctx context.Context, root, repo, branch, id string) (any, error) {
			return get(ctx, root, repo, branch, id)
		},
		list: func(w http.ResponseWriter, r *http.Request, root, repo, branch string) (any, error) {
			items, err := list(r.Context(), root, repo, branch)
			if err != nil {
				return nil, err
			}
			return paginate(w, r, items), nil
		},
		remove: remove,
	}
}

func entityRouteTable(e *service.EntityService) map[string]entityRoutes {
	return map[string]entityRoutes{
		"components": newEntityRoutes(e.UpsertComponent, e.GetComponent, e.ListComponents, e.DeleteComponent),
		"decisions":  newEntityRoutes(e.UpsertDecision, e.GetDecision, e.ListDecisions, e.DeleteDecision),
		"rules":      newEntityRoutes(e.UpsertRule, e.GetRule, e.ListRules, e.DeleteRule),
		"files":      newEntityRoutes(e.UpsertFile, e.GetFile, e.ListFiles, e.DeleteFile),
		"contexts":   newEntityRoutes(e.UpsertContext, e.GetContext, e.ListContexts, e.DeleteContext),
		"tags":       newEntityRoutes(e.UpsertTag, e.GetTag, e.ListTags, e.DeleteTag),
	}
}

func (s *Server) entityKind(w http.ResponseWriter, r *http.Request) (entityRoutes, bool) {
	kind := r.PathValue("kind")
	routes, ok := s.entities[kind]
	if !ok {
		jsonError(w, "unknown entity kind "+kind, http.StatusNotFound)
		return entityRoutes{}, false
	}
	return routes, true
}

func (s *Server) handleUpsertEntity(w http.ResponseWriter, r *http.Request, root string) {
	routes, ok := s.entityKind(w, r)
	if !ok {
		return
	}
	scope := models.Scope{Repository: r.PathValue("repo"), Branch: r.PathValue("branch")}
	out, decoded, err := routes.upsert(w, r, root, scope)
	if !decoded {
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	jsonOK(w, http.StatusOK, "item", out)
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request, root string) {
	routes, ok := s.entityKind(w, r)
	if !ok {
		return
	}
	out, err := routes.get(r.Context(), root, r.PathValue("repo"), r.PathValue("branch"), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	jsonOK(w, http.StatusOK, "item", out)
}

func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request, root string) {
	routes, ok := s.entityKind(w, r)
	if !ok {
		return
	}
	out, err := routes.list(w, r, root, r.PathValue("repo"), r.PathValue("branch"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	jsonOK(w, http.StatusOK, "items", out)
}

func (s *Server) handleDeleteEntity(w http.ResponseWriter, r *http.Request, root string) {
	routes, ok := s.entityKind(w, r)
	if !ok {
		return
	}
	deleted, err := routes.remove(r.Context(), root, r.PathValue("repo"), r.PathValue("branch"), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !deleted {
		jsonError(w, r.PathValue("kind")+" "+r.PathValue("id")+" not found", http.StatusNotFound)
		return
	}
	jsonOK(w, http.StatusOK, "deleted", true)
}

type tagItemRequest struct {
	ItemKind string `json:"item_kind"`
	ItemID   string `json:"item_id"`
}

func (s *Server) handleTagItem(w http.ResponseWriter, r *http.Request, root string) {
	var req tagItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	err := s.svc.Entities().TagItem(r.Context(), root, r.PathValue("repo"), r.PathValue("branch"), req.ItemKind, req.ItemID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	jsonOK(w, http.StatusOK, "tagged", true)
}

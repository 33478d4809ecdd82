package api

import (
	"net/http"

	"github.com/odvcencio/memorybank/internal/repository"
)

const defaultTraversalDepth = 3

func (s *Server) traversalDepth(w http.ResponseWriter, r *http.Request) (int, bool) {
	depth, ok := parseOptionalQueryPositiveInt(w, r, "depth", "depth", defaultTraversalDepth)
	if !ok {
		return 0, false
	}
	if depth > repository.MaxDepth {
		jsonError(w, "invalid depth query parameter", http.StatusBadRequest)
		return 0, false
	}
	return depth, true
}

func (s *Server) handleComponentDependencies(w http.ResponseWriter, r *http.Request, root string) {
	depth, ok := s.traversalDepth(w, r)
	if !ok {
		return
	}
	out, err := s.svc.GraphQuery().ComponentDependencies(r.Context(), root, r.PathValue("repo"), r.PathValue("branch"), r.PathValue("id"), depth)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	jsonOK(w, http.StatusOK, "components", out)
}

func (s *Server) handleComponentDependents(w http.ResponseWriter, r *http.Request, root string) {
	depth, ok := s.traversalDepth(w, r)
	if !ok {
		return
	}
	out, err := s.svc.GraphQuery().ComponentDependents(r.Context(), root, r.PathValue("repo"), r.PathValue("branch"), r.PathValue("id"), depth)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	jsonOK(w, http.StatusOK, "components", out)
}

func (s *Server) handleGoverningItems(w http.ResponseWriter, r *http.Request, root string) {
	out, err := s.svc.GraphQuery().GoverningItems(r.Context(), root, r.PathValue("repo"), r.PathValue("branch"), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	jsonOK(w, http.StatusOK, "governing", out)
}

func (s *Server) handleContextHistory(w http.ResponseWriter, r *http.Request, root string) {
	out, err := s.svc.GraphQuery().ContextHistory(r.Context(), root, r.PathValue("repo"), r.PathValue("branch"), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	jsonOK(w, http.StatusOK, "contexts", paginate(w, r, out))
}

func (s *Server) handleRelatedItems(w http.ResponseWriter, r *http.Request, root string) {
	depth, ok := s.traversalDepth(w, r)
	if !ok {
		return
	}
	out, err := s.svc.GraphQuery().RelatedItems(r.Context(), root, r.PathValue("repo"), r.PathValue("branch"), r.PathValue("id"), depth)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	jsonOK(w, http.StatusOK, "items", out)
}

func (s *Server) handleItemsByTag(w http.ResponseWriter, r *http.Request, root string) {
	kind := r.URL.Query().Get("kind")
	out, err := s.svc.GraphQuery().ItemsByTag(r.Context(), root, r.PathValue("repo"), r.PathValue("branch"), r.PathValue("id"), kind)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	jsonOK(w, http.StatusOK, "items", out)
}

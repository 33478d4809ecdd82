package api

import (
	"net/http"
)

type initMemoryBankRequest struct {
	Repository string `json:"repository"`
	Branch     string `json:"branch"`
}

func (s *Server) handleInitMemoryBank(w http.ResponseWriter, r *http.Request, root string) {
	var req initMemoryBankRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Branch == "" {
		req.Branch = "main"
	}
	res, err := s.svc.Metadata().InitMemoryBank(r.Context(), root, req.Repository, req.Branch)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	jsonOK(w, http.StatusOK, "memory_bank", res)
}

func (s *Server) handleListRepositories(w http.ResponseWriter, r *http.Request, root string) {
	repos, err := s.svc.Metadata().ListRepositories(r.Context(), root)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	jsonOK(w, http.StatusOK, "repositories", paginate(w, r, repos))
}

func (s *Server) handleGetRepository(w http.ResponseWriter, r *http.Request, root string) {
	repo, err := s.svc.Metadata().GetRepository(r.Context(), root, r.PathValue("repo"), r.PathValue("branch"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	jsonOK(w, http.StatusOK, "repository", repo)
}

func (s *Server) handleDeleteRepository(w http.ResponseWriter, r *http.Request, root string) {
	deleted, err := s.svc.Metadata().DeleteRepository(r.Context(), root, r.PathValue("repo"), r.PathValue("branch"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !deleted {
		jsonError(w, "repository not found", http.StatusNotFound)
		return
	}
	jsonOK(w, http.StatusOK, "deleted", true)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, root string) {
	stats, err := s.svc.Metadata().Stats(r.Context(), root, r.PathValue("repo"), r.PathValue("branch"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	jsonOK(w, http.StatusOK, "counts", stats)
}

package api

import (
	"net/http"
	"time"
)

type adminHealthResponse struct {
	Status    string             `json:"status"`
	Timestamp time.Time          `json:"timestamp"`
	Sessions  adminHealthSession `json:"sessions"`
	Auth      bool               `json:"auth_enabled"`
}

type adminHealthSession struct {
	Open  int      `json:"open"`
	Roots []string `json:"roots"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	jsonOK(w, http.StatusOK, "", nil)
}

func (s *Server) handleAdminHealth(w http.ResponseWriter, r *http.Request) {
	registry := s.svc.Registry()
	roots := registry.Roots()
	jsonResponse(w, http.StatusOK, adminHealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Sessions: adminHealthSession{
			Open:  len(roots),
			Roots: roots,
		},
		Auth: s.authSvc != nil,
	})
}

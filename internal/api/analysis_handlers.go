package api

import (
	"net/http"

	"github.com/odvcencio/memorybank/internal/analysis"
	"github.com/odvcencio/memorybank/internal/service"
)

const maxBatchRequests = 32

type analysisBatchRequest struct {
	Requests []service.BatchRequest `json:"requests"`
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request, root string) {
	var req service.BatchRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	req.Algorithm = r.PathValue("algorithm")
	req.Repository = r.PathValue("repo")
	req.Branch = r.PathValue("branch")

	out, err := s.svc.Analysis().Run(r.Context(), root, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if out.Status == analysis.StatusError {
		jsonResponse(w, http.StatusUnprocessableEntity, map[string]any{
			"status":  "error",
			"message": out.Error,
			"result":  out.Result,
		})
		return
	}
	jsonOK(w, http.StatusOK, "result", out.Result)
}

// handleAnalysisBatch runs several algorithms on one branch. Entries fail
// independently; the response always lists one outcome per request.
func (s *Server) handleAnalysisBatch(w http.ResponseWriter, r *http.Request, root string) {
	var body analysisBatchRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if len(body.Requests) == 0 {
		jsonError(w, "at least one request is required", http.StatusBadRequest)
		return
	}
	if len(body.Requests) > maxBatchRequests {
		jsonError(w, "too many requests in batch", http.StatusBadRequest)
		return
	}
	for i := range body.Requests {
		body.Requests[i].Repository = r.PathValue("repo")
		body.Requests[i].Branch = r.PathValue("branch")
	}

	out, err := s.svc.Analysis().RunBatch(r.Context(), root, body.Requests)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	jsonOK(w, http.StatusOK, "outcomes", out)
}

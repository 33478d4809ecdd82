package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/odvcencio/memorybank/internal/logctx"
	"github.com/odvcencio/memorybank/internal/repository"
	"github.com/odvcencio/memorybank/internal/service"
	"github.com/odvcencio/memorybank/internal/session"
)

func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// jsonOK writes {"status":"ok", key: value}.
func jsonOK(w http.ResponseWriter, status int, key string, value any) {
	body := map[string]any{"status": "ok"}
	if key != "" {
		body[key] = value
	}
	jsonResponse(w, status, body)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	jsonResponse(w, status, map[string]string{"status": "error", "message": message})
}

// writeServiceError maps a service error onto an HTTP status.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrShuttingDown):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// client went away; the status is only recorded in logs and metrics
		status = 499
	}
	if status >= http.StatusInternalServerError {
		logctx.FromContext(r.Context()).Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	jsonError(w, err.Error(), status)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			jsonError(w, "request body too large", http.StatusRequestEntityTooLarge)
		case errors.Is(err, io.EOF):
			jsonError(w, "request body is required", http.StatusBadRequest)
		default:
			jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		}
		return false
	}
	return true
}

func parseOptionalQueryPositiveInt(w http.ResponseWriter, r *http.Request, key, label string, fallback int) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		jsonError(w, "invalid "+label+" query parameter", http.StatusBadRequest)
		return 0, false
	}
	return value, true
}

func pathValue(w http.ResponseWriter, r *http.Request, key, label string) (string, bool) {
	value := strings.TrimSpace(r.PathValue(key))
	if value == "" {
		jsonError(w, label+" is required", http.StatusBadRequest)
		return "", false
	}
	return value, true
}

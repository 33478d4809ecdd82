package api

import (
	"net/http"
	"strconv"
	"strings"
)

const (
	defaultPerPage = 100
	maxPerPage     = 500
)

type pageParams struct {
	page    int
	perPage int
}

func parsePagination(r *http.Request) pageParams {
	q := r.URL.Query()
	return pageParams{
		page:    parsePositiveInt(q.Get("page"), 1),
		perPage: min(parsePositiveInt(q.Get("per_page"), defaultPerPage), maxPerPage),
	}
}

func parsePositiveInt(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 || n > 1<<30 {
		return fallback
	}
	return n
}

// paginate returns the requested page of items and reports the unpaged
// total in X-Total-Count.
func paginate[T any](w http.ResponseWriter, r *http.Request, items []T) []T {
	p := parsePagination(r)
	w.Header().Set("X-Total-Count", strconv.Itoa(len(items)))
	start := (p.page - 1) * p.perPage
	if start >= len(items) {
		return []T{}
	}
	return items[start:min(start+p.perPage, len(items))]
}

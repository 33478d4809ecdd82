// Package graphdb defines the narrow surface memorybank consumes from the
// embedded property-graph engine: a connection that executes a query string
// with bound parameters and returns loosely typed rows.
package graphdb

import (
	"context"
	"errors"
)

var (
	// ErrClosed is returned by a Conn after Close.
	ErrClosed = errors.New("graph connection closed")
)

// Conn executes queries against one open database. Implementations must be
// safe for concurrent use.
type Conn interface {
	Query(ctx context.Context, query string, params map[string]any) ([]Row, error)
	Close() error
}

// Driver opens a database at a filesystem path. Implemented by the Kuzu
// driver and by graphdbtest.
type Driver interface {
	Name() string
	Open(ctx context.Context, path string) (Conn, error)
}

// QueryOne runs query and returns its first row, or nil when no rows match.
func QueryOne(ctx context.Context, conn Conn, query string, params map[string]any) (Row, error) {
	rows, err := conn.Query(ctx, query, params)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Package kuzu implements graphdb.Driver on the embedded Kuzu engine.
package kuzu

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	gokuzu "github.com/kuzudb/go-kuzu"

	"github.com/odvcencio/memorybank/internal/graphdb"
)

// Options tune the engine instance opened for each project database.
type Options struct {
	BufferPoolSize uint64 // bytes; zero keeps the engine default
	MaxThreads     uint64
	QueryTimeout   time.Duration
}

type Driver struct {
	opts Options
}

func NewDriver(opts Options) *Driver {
	return &Driver{opts: opts}
}

func (d *Driver) Name() string { return "kuzu" }

func (d *Driver) Open(ctx context.Context, path string) (graphdb.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg := gokuzu.DefaultSystemConfig()
	if d.opts.BufferPoolSize > 0 {
		cfg.BufferPoolSize = d.opts.BufferPoolSize
	}
	if d.opts.MaxThreads > 0 {
		cfg.MaxNumThreads = d.opts.MaxThreads
	}
	db, err := gokuzu.OpenDatabase(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("open kuzu database %s: %w", path, err)
	}
	conn, err := gokuzu.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open kuzu connection: %w", err)
	}
	if d.opts.QueryTimeout > 0 {
		conn.SetTimeout(uint64(d.opts.QueryTimeout.Milliseconds()))
	}
	return &Conn{db: db, conn: conn}, nil
}

// Conn wraps one Kuzu connection. Queries are serialized on the connection;
// the engine parallelizes inside a query.
type Conn struct {
	mu     sync.Mutex
	db     *gokuzu.Database
	conn   *gokuzu.Connection
	closed bool

	// closing is set before Close waits for the query in flight.
	closing atomic.Bool
}

func (c *Conn) Query(ctx context.Context, query string, params map[string]any) ([]graphdb.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.closing.Load() {
		return nil, graphdb.ErrClosed
	}

	stop := context.AfterFunc(ctx, c.conn.Interrupt)
	defer stop()

	var (
		result *gokuzu.QueryResult
		err    error
	)
	if len(params) == 0 {
		result, err = c.conn.Query(query)
	} else {
		var stmt *gokuzu.PreparedStatement
		stmt, err = c.conn.Prepare(query)
		if err != nil {
			return nil, err
		}
		defer stmt.Close()
		result, err = c.conn.Execute(stmt, bindParams(params))
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %v", ctxErr, err)
		}
		if c.closing.Load() {
			return nil, fmt.Errorf("%w: %v", graphdb.ErrClosed, err)
		}
		return nil, err
	}
	defer result.Close()

	var rows []graphdb.Row
	for result.HasNext() {
		tuple, err := result.Next()
		if err != nil {
			return nil, err
		}
		values, err := tuple.GetAsMap()
		tuple.Close()
		if err != nil {
			return nil, err
		}
		rows = append(rows, graphdb.Row(values))
	}
	return rows, nil
}

// Close interrupts the query in flight, if any, and releases the engine once
// it has returned.
func (c *Conn) Close() error {
	if c.closing.Swap(true) {
		return nil
	}
	c.conn.Interrupt()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.conn.Close()
	c.db.Close()
	return nil
}

// bindParams converts typed slices the binder does not accept into []any.
func bindParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		switch vv := v.(type) {
		case []string:
			list := make([]any, len(vv))
			for i, s := range vv {
				list[i] = s
			}
			out[k] = list
		case int:
			out[k] = int64(vv)
		default:
			out[k] = v
		}
	}
	return out
}

var (
	_ graphdb.Driver = (*Driver)(nil)
	_ graphdb.Conn   = (*Conn)(nil)
)

// Package graphdbtest provides a scripted in-memory graphdb.Conn and Driver
// for tests. Responses are matched by query substring; the most recently
// registered matching handler wins and unmatched queries return no rows.
package graphdbtest

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/odvcencio/memorybank/internal/graphdb"
)

// HandlerFunc produces the response for a matched query.
type HandlerFunc func(query string, params map[string]any) ([]graphdb.Row, error)

// Call records one executed query.
type Call struct {
	Query  string
	Params map[string]any
}

type handler struct {
	fragment string
	fn       HandlerFunc
}

// Conn is a scripted graphdb.Conn.
type Conn struct {
	// Path is the database path the driver opened this connection for.
	Path string

	mu       sync.Mutex
	handlers []handler
	calls    []Call
	closed   bool
	closeErr error
	closes   int
	onClose  func()
}

func NewConn() *Conn {
	return &Conn{}
}

// On registers fn for queries containing fragment.
func (c *Conn) On(fragment string, fn HandlerFunc) *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, handler{fragment: fragment, fn: fn})
	return c
}

// OnRows answers queries containing fragment with rows.
func (c *Conn) OnRows(fragment string, rows ...graphdb.Row) *Conn {
	return c.On(fragment, func(string, map[string]any) ([]graphdb.Row, error) {
		out := make([]graphdb.Row, len(rows))
		copy(out, rows)
		return out, nil
	})
}

// OnError fails queries containing fragment with err.
func (c *Conn) OnError(fragment string, err error) *Conn {
	return c.On(fragment, func(string, map[string]any) ([]graphdb.Row, error) {
		return nil, err
	})
}

// SetCloseError makes Close return err.
func (c *Conn) SetCloseError(err error) {
	c.mu.Lock()
	c.closeErr = err
	c.mu.Unlock()
}

// OnClose makes Close call fn before the connection is marked closed, the
// way an engine waits for the query in flight.
func (c *Conn) OnClose(fn func()) {
	c.mu.Lock()
	c.onClose = fn
	c.mu.Unlock()
}

func (c *Conn) Query(ctx context.Context, query string, params map[string]any) ([]graphdb.Row, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, graphdb.ErrClosed
	}
	c.calls = append(c.calls, Call{Query: query, Params: cloneParams(params)})
	var fn HandlerFunc
	for i := len(c.handlers) - 1; i >= 0; i-- {
		if strings.Contains(query, c.handlers[i].fragment) {
			fn = c.handlers[i].fn
			break
		}
	}
	c.mu.Unlock()

	if fn == nil {
		return nil, nil
	}
	return fn(query, params)
}

func (c *Conn) Close() error {
	c.mu.Lock()
	fn := c.onClose
	c.mu.Unlock()
	if fn != nil {
		fn()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	c.closed = true
	return c.closeErr
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Calls returns every executed query in order.
func (c *Conn) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

// Count returns how many executed queries contain fragment.
func (c *Conn) Count(fragment string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if strings.Contains(call.Query, fragment) {
			n++
		}
	}
	return n
}

// Last returns the most recent query containing fragment.
func (c *Conn) Last(fragment string) (Call, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.calls) - 1; i >= 0; i-- {
		if strings.Contains(c.calls[i].Query, fragment) {
			return c.calls[i], true
		}
	}
	return Call{}, false
}

func cloneParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}

// OpenFunc builds the connection for a path.
type OpenFunc func(ctx context.Context, path string) (*Conn, error)

// Driver is a graphdb.Driver that hands out scripted connections.
type Driver struct {
	open  OpenFunc
	opens atomic.Int64

	mu    sync.Mutex
	conns []*Conn
}

// NewDriver returns a Driver using open, or fresh connections when open is nil.
func NewDriver(open OpenFunc) *Driver {
	if open == nil {
		open = func(ctx context.Context, path string) (*Conn, error) {
			conn := NewConn()
			conn.Path = path
			return conn, nil
		}
	}
	return &Driver{open: open}
}

func (d *Driver) Name() string { return "graphdbtest" }

func (d *Driver) Open(ctx context.Context, path string) (graphdb.Conn, error) {
	d.opens.Add(1)
	conn, err := d.open(ctx, path)
	if err != nil {
		return nil, err
	}
	if conn.Path == "" {
		conn.Path = path
	}
	d.mu.Lock()
	d.conns = append(d.conns, conn)
	d.mu.Unlock()
	return conn, nil
}

// Opens returns how many times Open was called.
func (d *Driver) Opens() int {
	return int(d.opens.Load())
}

// Conns returns every connection opened successfully.
func (d *Driver) Conns() []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Conn, len(d.conns))
	copy(out, d.conns)
	return out
}

var (
	_ graphdb.Conn   = (*Conn)(nil)
	_ graphdb.Driver = (*Driver)(nil)
)

// Package session owns the per-project database connections. A Registry opens
// one connection per project root on first use, initializes its schema once
// and keeps it for the life of the process.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/odvcencio/memorybank/internal/graphdb"
	"github.com/odvcencio/memorybank/internal/repository"
)

// DefaultDatabaseFile is the database path relative to a project root.
const DefaultDatabaseFile = ".memorybank/memorybank.kuzu"

var (
	ErrProjectRootRequired = errors.New("project root is required")
	ErrRelativeRoot        = errors.New("project root must be an absolute path")
	ErrNotEstablished      = errors.New("no connection established for project root")
	ErrInitFailed          = errors.New("project database initialization failed")
	ErrShuttingDown        = errors.New("session registry is shutting down")
)

// Session is the live database state of one project root.
type Session struct {
	Root         string
	DatabasePath string
	Conn         graphdb.Conn
	Repos        *repository.Set
	OpenedAt     time.Time
}

type Options struct {
	// DatabaseFile is joined to the project root. Defaults to DefaultDatabaseFile.
	DatabaseFile string
	Logger       *slog.Logger
	// Metrics registers the registry collectors when set.
	Metrics prometheus.Registerer
}

// Registry maps project roots to sessions.
type Registry struct {
	driver  graphdb.Driver
	dbFile  string
	logger  *slog.Logger
	metrics *registryMetrics

	group singleflight.Group
	// inits tracks initializations so Shutdown can wait for them.
	inits sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

func NewRegistry(driver graphdb.Driver, opts Options) *Registry {
	if opts.DatabaseFile == "" {
		opts.DatabaseFile = DefaultDatabaseFile
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Registry{
		driver:   driver,
		dbFile:   opts.DatabaseFile,
		logger:   opts.Logger,
		metrics:  newRegistryMetrics(opts.Metrics),
		sessions: make(map[string]*Session),
	}
}

// NormalizeRoot validates root and returns the cleaned absolute path used as
// the registry key.
func NormalizeRoot(root string) (string, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return "", ErrProjectRootRequired
	}
	if !filepath.IsAbs(root) {
		return "", fmt.Errorf("%w: %q", ErrRelativeRoot, root)
	}
	return filepath.Clean(root), nil
}

// Get returns the session for root, opening and initializing it on first use.
// Concurrent first calls for one root share a single initialization; roots
// initialize independently of each other. A failed initialization is not
// cached.
func (r *Registry) Get(ctx context.Context, root string) (*Session, error) {
	key, err := NormalizeRoot(root)
	if err != nil {
		return nil, err
	}
	if s, err := r.lookup(key); s != nil || err != nil {
		return s, err
	}

	ch := r.group.DoChan(key, func() (any, error) {
		return r.initialize(key)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Session), nil
	}
}

func (r *Registry) lookup(key string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrShuttingDown
	}
	return r.sessions[key], nil
}

// initialize runs detached from any single caller's context so a caller that
// gives up does not fail the others waiting on the same root.
func (r *Registry) initialize(key string) (*Session, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if s, ok := r.sessions[key]; ok {
		r.mu.Unlock()
		return s, nil
	}
	r.inits.Add(1)
	r.mu.Unlock()
	defer r.inits.Done()

	start := time.Now()
	ctx := context.Background()
	dbPath := filepath.Join(key, r.dbFile)
	logger := r.logger.With("root", key, "database", dbPath)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, r.initFailed(logger, key, fmt.Errorf("create database directory: %w", err))
	}
	conn, err := r.driver.Open(ctx, dbPath)
	if err != nil {
		return nil, r.initFailed(logger, key, fmt.Errorf("open %s database: %w", r.driver.Name(), err))
	}
	if err := graphdb.Migrate(ctx, conn, logger); err != nil {
		closeQuietly(logger, conn)
		return nil, r.initFailed(logger, key, err)
	}

	s := &Session{
		Root:         key,
		DatabasePath: dbPath,
		Conn:         conn,
		Repos:        repository.NewSet(conn),
		OpenedAt:     time.Now(),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		closeQuietly(logger, conn)
		return nil, ErrShuttingDown
	}
	r.sessions[key] = s
	open := len(r.sessions)
	r.mu.Unlock()

	r.metrics.sessionsOpen.Set(float64(open))
	r.metrics.initTotal.WithLabelValues("ok").Inc()
	logger.Info("project database ready", "driver", r.driver.Name(), "duration", time.Since(start))
	return s, nil
}

func (r *Registry) initFailed(logger *slog.Logger, key string, err error) error {
	r.metrics.initTotal.WithLabelValues("error").Inc()
	logger.Error("project database initialization failed", "error", err)
	return fmt.Errorf("%w: %s: %w", ErrInitFailed, key, err)
}

// Repositories returns the accessor set bound to root's connection. Get must
// have succeeded for root first.
func (r *Registry) Repositories(root string) (*repository.Set, error) {
	key, err := NormalizeRoot(root)
	if err != nil {
		return nil, err
	}
	s, err := r.lookup(key)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotEstablished, key)
	}
	return s.Repos, nil
}

// Roots returns the open project roots in sorted order.
func (r *Registry) Roots() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sessions))
	for root := range r.sessions {
		out = append(out, root)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown rejects new calls, waits for in-flight initializations and closes
// every connection. Close errors are joined. When ctx ends first Shutdown
// returns its error; connections still closing finish in the background.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.inits.Wait()
		close(done)
	}()
	var errs []error
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("wait for initializations: %w", ctx.Err()))
	}

	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	closeErrs := make(chan error, len(sessions))
	for root, s := range sessions {
		go func() {
			if err := s.Conn.Close(); err != nil {
				closeErrs <- fmt.Errorf("close %s: %w", root, err)
				return
			}
			closeErrs <- nil
		}()
	}
	r.metrics.sessionsOpen.Set(0)

	for pending := len(sessions); pending > 0; pending-- {
		select {
		case err := <-closeErrs:
			if err != nil {
				errs = append(errs, err)
			}
		case <-ctx.Done():
			r.logger.Warn("session registry shutdown timed out", "pending", pending)
			errs = append(errs, fmt.Errorf("close connections: %d pending: %w", pending, ctx.Err()))
			return errors.Join(errs...)
		}
	}
	r.logger.Info("session registry closed", "sessions", len(sessions))
	return errors.Join(errs...)
}

func closeQuietly(logger *slog.Logger, conn graphdb.Conn) {
	if err := conn.Close(); err != nil {
		logger.Warn("close connection", "error", err)
	}
}

package shard

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// OpenFunc opens a database handle for a fully-resolved DSN. Tests
// inject a fake to avoid touching a real database.
type OpenFunc func(dsn string) (*sql.DB, error)

// Router holds a bounded, process-wide mapping from shard key to a
// live database handle, creating handles lazily on first request and
// reusing them thereafter. A handle is never shared across shards.
type Router struct {
	dir         Directory
	processName string
	open        OpenFunc

	mu      sync.RWMutex
	handles map[Key]*sql.DB
}

// NewRouter builds a Router resolving shard base URLs through dir.
// processName is interpolated into the per-shard DSN the same way
// restfulpy does: base_url + process_name + "_" + shard_key.
func NewRouter(dir Directory, processName string, open OpenFunc) *Router {
	if open == nil {
		open = defaultOpen
	}
	return &Router{
		dir:         dir,
		processName: processName,
		open:        open,
		handles:     make(map[Key]*sql.DB),
	}
}

func defaultOpen(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Bind returns the handle for key, creating it on miss via the
// directory. Concurrent Bind calls for distinct or identical keys are
// safe; a handle, once created, is not recreated unless DisposeAll
// runs first.
func (r *Router) Bind(ctx context.Context, key Key) (*sql.DB, error) {
	r.mu.RLock()
	if db, ok := r.handles[key]; ok {
		r.mu.RUnlock()
		return db, nil
	}
	r.mu.RUnlock()

	base, err := r.dir.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("%s%s_%s", base, r.processName, key)

	r.mu.Lock()
	defer r.mu.Unlock()
	if db, ok := r.handles[key]; ok {
		return db, nil
	}
	db, err := r.open(dsn)
	if err != nil {
		return nil, fmt.Errorf("shard: bind %q: %w", key, err)
	}
	r.handles[key] = db
	return db, nil
}

// DisposeAll closes and forgets every cached handle. Intended for
// process shutdown.
func (r *Router) DisposeAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for key, db := range r.handles {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("shard: close %q: %w", key, err)
		}
		delete(r.handles, key)
	}
	return firstErr
}

// Package introspect builds canonical schema snapshots from a live database.
// Each dialect registers an Introspecter; callers resolve one through the
// registry and get back a core.Snapshot, or an error when the connection or the
// catalog queries fail.
package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"driftsync/internal/core"
)

// Introspecter reads the live schema of one database into a snapshot. Tables
// created by driftsync itself (shadow and backup tables) are excluded so a
// post-apply snapshot converges with the target model.
type Introspecter interface {
	Snapshot(ctx context.Context, db *sql.DB) (*core.Snapshot, error)
}

var (
	registry = make(map[core.Dialect]func() Introspecter)
	mu       sync.RWMutex
)

// Register adds an introspecter constructor for a dialect.
func Register(dialect core.Dialect, fn func() Introspecter) {
	mu.Lock()
	defer mu.Unlock()
	registry[dialect] = fn
}

// NewIntrospecter returns an introspecter for the dialect.
func NewIntrospecter(dialect core.Dialect) (Introspecter, error) {
	mu.RLock()
	fn, ok := registry[dialect]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unsupported dialect %v", dialect)
	}

	return fn(), nil
}

// Ping verifies connectivity before any catalog query runs, so an unreachable
// server surfaces as a connectivity error instead of a confusing query failure.
func Ping(ctx context.Context, db *sql.DB, target string) error {
	if err := db.PingContext(ctx); err != nil {
		return &core.ConnectivityError{Target: target, Err: err}
	}
	return nil
}

package lock

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"sync"
)

// AdvisoryProvider backs the lock with PostgreSQL session advisory locks.
// Advisory locks are connection-scoped, so the provider pins one connection
// for the lifetime of the hold; if that connection dies, the server releases
// the lock automatically.
type AdvisoryProvider struct {
	db *sql.DB

	mu   sync.Mutex
	conn *sql.Conn
}

// NewAdvisoryProvider returns a provider over the given pool.
func NewAdvisoryProvider(db *sql.DB) *AdvisoryProvider {
	return &AdvisoryProvider{db: db}
}

// advisoryKey folds the lock key into the bigint pg_advisory_lock expects.
func advisoryKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}

func (p *AdvisoryProvider) TryAcquire(ctx context.Context, key, _ string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		conn, err := p.db.Conn(ctx)
		if err != nil {
			return false, fmt.Errorf("advisory lock connection: %w", err)
		}
		p.conn = conn
	}

	var got bool
	if err := p.conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", advisoryKey(key)).Scan(&got); err != nil {
		return false, fmt.Errorf("pg_try_advisory_lock: %w", err)
	}
	if !got {
		// Keep the pinned connection for the next attempt.
		return false, nil
	}
	return true, nil
}

func (p *AdvisoryProvider) Release(ctx context.Context, key, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return nil
	}
	var released bool
	err := p.conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", advisoryKey(key)).Scan(&released)
	closeErr := p.conn.Close()
	p.conn = nil
	if err != nil {
		return fmt.Errorf("pg_advisory_unlock: %w", err)
	}
	return closeErr
}

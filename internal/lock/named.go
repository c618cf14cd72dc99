package lock

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// NamedProvider backs the lock with MySQL GET_LOCK/RELEASE_LOCK. Named locks
// are connection-scoped, so the provider pins one connection while holding;
// the server frees the lock if that connection drops.
type NamedProvider struct {
	db *sql.DB

	mu   sync.Mutex
	conn *sql.Conn
}

// NewNamedProvider returns a provider over the given pool.
func NewNamedProvider(db *sql.DB) *NamedProvider {
	return &NamedProvider{db: db}
}

func (p *NamedProvider) TryAcquire(ctx context.Context, key, _ string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		conn, err := p.db.Conn(ctx)
		if err != nil {
			return false, fmt.Errorf("named lock connection: %w", err)
		}
		p.conn = conn
	}

	// Zero timeout: the coordinator owns the polling loop.
	var got sql.NullInt64
	if err := p.conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, 0)", key).Scan(&got); err != nil {
		return false, fmt.Errorf("GET_LOCK: %w", err)
	}
	return got.Valid && got.Int64 == 1, nil
}

func (p *NamedProvider) Release(ctx context.Context, key, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return nil
	}
	var released sql.NullInt64
	err := p.conn.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", key).Scan(&released)
	closeErr := p.conn.Close()
	p.conn = nil
	if err != nil {
		return fmt.Errorf("RELEASE_LOCK: %w", err)
	}
	return closeErr
}

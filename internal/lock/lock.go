// Package lock serializes migration across processes sharing one database.
// Exactly one coordinator instance holds the lock at a time; the others either
// fail fast or poll with jitter until a deadline, then report a timeout the
// caller treats as recoverable.
package lock

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"driftsync/internal/core"
)

// State tracks a coordinator through its lifecycle.
type State int

const (
	StateUnlocked State = iota
	StateAcquiring
	StateHeld
	StateReleasing
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateUnlocked:
		return "unlocked"
	case StateAcquiring:
		return "acquiring"
	case StateHeld:
		return "held"
	case StateReleasing:
		return "releasing"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Provider implements one acquisition mechanism: postgres advisory locks,
// mysql named locks, or a lock file for sqlite.
type Provider interface {
	// TryAcquire makes one non-blocking attempt. The holder id ties the
	// acquisition to this process for diagnostics and stale detection.
	TryAcquire(ctx context.Context, key, holder string) (bool, error)
	Release(ctx context.Context, key, holder string) error
}

// Options tunes acquisition behavior. The zero value fails fast.
type Options struct {
	// Wait bounds how long Acquire polls before giving up. Zero means a
	// single attempt.
	Wait time.Duration
	// PollInterval is the base delay between attempts; each wait adds up to
	// 50% jitter so contending instances spread out.
	PollInterval time.Duration
}

// DefaultPollInterval is used when Options.PollInterval is zero.
const DefaultPollInterval = 500 * time.Millisecond

// Coordinator drives a provider through the acquire/release lifecycle.
type Coordinator struct {
	provider Provider
	key      string
	holder   string
	opts     Options
	log      *logrus.Entry

	mu    sync.Mutex
	state State
}

// NewCoordinator returns a coordinator for one lock key. The holder id is a
// fresh UUID identifying this process instance.
func NewCoordinator(p Provider, key string, opts Options, log *logrus.Entry) *Coordinator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Coordinator{
		provider: p,
		key:      key,
		holder:   uuid.NewString(),
		opts:     opts,
		log:      log.WithField("lock", key),
	}
}

// Holder returns the unique id this coordinator acquires under.
func (c *Coordinator) Holder() string { return c.holder }

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Acquire attempts to take the lock, polling with jitter until Options.Wait
// elapses. On timeout it returns a LockTimeoutError so the caller can skip
// migration and continue startup.
func (c *Coordinator) Acquire(ctx context.Context) error {
	c.setState(StateAcquiring)

	deadline := time.Now().Add(c.opts.Wait)
	attempt := 0
	for {
		attempt++
		ok, err := c.provider.TryAcquire(ctx, c.key, c.holder)
		if err != nil {
			c.setState(StateUnlocked)
			return fmt.Errorf("acquiring lock %q: %w", c.key, err)
		}
		if ok {
			c.setState(StateHeld)
			c.log.WithFields(logrus.Fields{"holder": c.holder, "attempts": attempt}).Debug("migration lock acquired")
			return nil
		}

		if c.opts.Wait <= 0 || time.Now().After(deadline) {
			c.setState(StateUnlocked)
			return &core.LockTimeoutError{Key: c.key, Timeout: c.opts.Wait}
		}

		sleep := c.opts.PollInterval + time.Duration(rand.Int63n(int64(c.opts.PollInterval)/2+1))
		select {
		case <-ctx.Done():
			c.setState(StateUnlocked)
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// Release gives the lock back. Safe to call when the lock was never held.
func (c *Coordinator) Release(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateHeld {
		c.mu.Unlock()
		return nil
	}
	c.state = StateReleasing
	c.mu.Unlock()

	err := c.provider.Release(ctx, c.key, c.holder)
	if err != nil {
		c.setState(StateExpired)
		return fmt.Errorf("releasing lock %q: %w", c.key, err)
	}
	c.setState(StateUnlocked)
	c.log.WithField("holder", c.holder).Debug("migration lock released")
	return nil
}

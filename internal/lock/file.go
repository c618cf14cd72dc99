package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// FileProvider backs the lock with an exclusively-created file next to the
// database, for sqlite where no server exists to arbitrate. The holder writes
// a heartbeat timestamp while it works; a lock file whose heartbeat has gone
// quiet past the stale window is treated as abandoned by a crashed process and
// reclaimed.
type FileProvider struct {
	path string
	log  *logrus.Entry

	// HeartbeatInterval is how often the holder refreshes the lock file.
	HeartbeatInterval time.Duration
	// StaleAfter is how long a heartbeat may be missing before another
	// process may reclaim the lock.
	StaleAfter time.Duration

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

type lockFile struct {
	Holder      string    `json:"holder"`
	PID         int       `json:"pid"`
	Hostname    string    `json:"hostname"`
	AcquiredAt  time.Time `json:"acquiredAt"`
	HeartbeatAt time.Time `json:"heartbeatAt"`
}

// NewFileProvider returns a provider writing its lock file at path.
func NewFileProvider(path string, log *logrus.Entry) *FileProvider {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &FileProvider{
		path:              path,
		log:               log,
		HeartbeatInterval: 2 * time.Second,
		StaleAfter:        30 * time.Second,
	}
}

// LockFilePath derives the default lock file location for a sqlite database.
func LockFilePath(dbPath string) string {
	if dbPath == "" || dbPath == ":memory:" {
		return filepath.Join(os.TempDir(), "driftsync.lock")
	}
	return dbPath + ".driftsync.lock"
}

func (p *FileProvider) TryAcquire(_ context.Context, _, holder string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ok, err := p.tryCreate(holder); err != nil || ok {
		if ok {
			p.startHeartbeat(holder)
		}
		return ok, err
	}

	existing, err := p.read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Holder released between our create attempt and the read.
			return false, nil
		}
		return false, err
	}

	if time.Since(existing.HeartbeatAt) < p.StaleAfter {
		return false, nil
	}

	p.log.WithFields(logrus.Fields{
		"path":           p.path,
		"stale_holder":   existing.Holder,
		"stale_pid":      existing.PID,
		"last_heartbeat": existing.HeartbeatAt,
	}).Warn("reclaiming stale migration lock file")

	if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("removing stale lock file: %w", err)
	}
	ok, err := p.tryCreate(holder)
	if ok {
		p.startHeartbeat(holder)
	}
	return ok, err
}

func (p *FileProvider) tryCreate(holder string) (bool, error) {
	f, err := os.OpenFile(p.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("creating lock file %s: %w", p.path, err)
	}
	defer f.Close()

	hostname, _ := os.Hostname()
	now := time.Now().UTC()
	lf := lockFile{
		Holder:      holder,
		PID:         os.Getpid(),
		Hostname:    hostname,
		AcquiredAt:  now,
		HeartbeatAt: now,
	}
	if err := json.NewEncoder(f).Encode(&lf); err != nil {
		os.Remove(p.path)
		return false, fmt.Errorf("writing lock file %s: %w", p.path, err)
	}
	return true, nil
}

func (p *FileProvider) read() (*lockFile, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, err
	}
	var lf lockFile
	if err := json.Unmarshal(data, &lf); err != nil {
		// Unparseable lock files count as stale from the epoch.
		p.log.WithField("path", p.path).WithError(err).Warn("lock file is corrupt, treating as stale")
		return &lockFile{}, nil
	}
	return &lf, nil
}

// startHeartbeat refreshes the heartbeat timestamp until Release. Callers hold
// p.mu.
func (p *FileProvider) startHeartbeat(holder string) {
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go func(stop, done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(p.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				p.beat(holder)
			}
		}
	}(p.stop, p.done)
}

// beat refreshes the heartbeat timestamp. It takes p.mu so the read-rewrite
// never interleaves with Release removing the file.
func (p *FileProvider) beat(holder string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	lf, err := p.read()
	if err != nil || lf.Holder != holder {
		return
	}
	lf.HeartbeatAt = time.Now().UTC()
	data, err := json.Marshal(lf)
	if err != nil {
		return
	}
	if err := os.WriteFile(p.path, data, 0o644); err != nil {
		p.log.WithField("path", p.path).WithError(err).Warn("failed to refresh lock heartbeat")
	}
}

func (p *FileProvider) Release(_ context.Context, _, holder string) error {
	// Stop the heartbeat before entering the file critical section: beat also
	// takes p.mu, so waiting for it while holding the mutex would deadlock.
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.stop, p.done = nil, nil
	p.mu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	lf, err := p.read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if lf.Holder != holder {
		// Someone reclaimed the lock from us; do not delete their file.
		return fmt.Errorf("lock file %s is now held by %s, not releasing", p.path, lf.Holder)
	}
	if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing lock file %s: %w", p.path, err)
	}
	return nil
}

// Package lock provides the cross-process build lock that guards the cache
// manifest, and the dev-server lock.
//
// A lock is a JSON file {pid, timestamp, hostname} in the cache directory.
// A lock whose pid is not a running process is stale and is reclaimed by
// the next acquirer. Liveness is checked on the local host only, so the
// lock does not protect a cache directory shared over a network filesystem.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	BuildLockFile = "build.lock"
	DevLockFile   = "dev.lock"

	DefaultTimeout      = 30 * time.Second
	DefaultPollInterval = 100 * time.Millisecond

	unknownHost = "unknown"
)

// Info is the content of a lock file.
type Info struct {
	PID       int       `json:"pid"`
	Timestamp time.Time `json:"timestamp"`
	Hostname  string    `json:"hostname"`
}

func (i Info) sameOwner(o Info) bool {
	return i.PID == o.PID && i.Hostname == o.Hostname && i.Timestamp.Equal(o.Timestamp)
}

// Options control Acquire. A zero Timeout makes a single attempt.
type Options struct {
	Force        bool
	Timeout      time.Duration
	PollInterval time.Duration
}

// TimeoutError is returned when a live holder kept the lock past the timeout.
type TimeoutError struct {
	Path    string
	Holder  Info
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %v waiting for lock %s held by pid %d on %s since %s; if no other build is running, rerun with --force-lock",
		e.Timeout, e.Path, e.Holder.PID, e.Holder.Hostname, e.Holder.Timestamp.Format(time.RFC3339))
}

// Manager acquires and releases one lock file. Release only removes a lock
// this Manager wrote, so a lock taken over with Force is left alone.
type Manager struct {
	path   string
	logger *slog.Logger

	mu   sync.Mutex
	held *Info

	pid      int
	alive    func(pid int) bool
	hostname func() (string, error)
}

// NewManager returns the build lock manager for cacheDir.
func NewManager(cacheDir string, logger *slog.Logger) *Manager {
	return newManager(filepath.Join(cacheDir, BuildLockFile), logger)
}

func newManager(path string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		path:     path,
		logger:   logger,
		pid:      os.Getpid(),
		alive:    processAlive,
		hostname: os.Hostname,
	}
}

// Path returns the lock file path.
func (m *Manager) Path() string {
	return m.path
}

// Acquire takes the lock, polling until opts.Timeout while a live process
// holds it. Stale and malformed locks are reclaimed; Force reclaims any lock.
func (m *Manager) Acquire(ctx context.Context, opts Options) error {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held != nil {
		return fmt.Errorf("lock %s is already held by this process", m.path)
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	deadline := time.Now().Add(opts.Timeout)
	for {
		info := m.newInfo()
		created, err := m.tryCreate(info)
		if err != nil {
			return err
		}
		if created {
			m.held = &info
			m.logger.Debug("lock acquired", "path", m.path, "pid", info.PID)
			return nil
		}

		holder, ok := readInfo(m.path)
		switch {
		case !ok:
			m.logger.Warn("reclaiming malformed lock file", "path", m.path)
			if err := m.reclaim(nil); err != nil {
				return err
			}
			continue
		case opts.Force:
			m.logger.Warn("forcing lock takeover", "path", m.path, "holder_pid", holder.PID, "holder_host", holder.Hostname)
			if err := m.reclaim(&holder); err != nil {
				return err
			}
			continue
		case !m.alive(holder.PID):
			m.logger.Info("reclaiming stale lock", "path", m.path, "holder_pid", holder.PID, "since", holder.Timestamp)
			if err := m.reclaim(&holder); err != nil {
				return err
			}
			continue
		}

		if !time.Now().Before(deadline) {
			return &TimeoutError{Path: m.path, Holder: holder, Timeout: opts.Timeout}
		}

		wait := opts.PollInterval
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (m *Manager) newInfo() Info {
	host, err := m.hostname()
	if err != nil || host == "" {
		host = unknownHost
	}
	return Info{PID: m.pid, Timestamp: time.Now(), Hostname: host}
}

// tryCreate publishes info at m.path only if no lock file exists. The
// content is written to a private temp file first and hard-linked into
// place, so readers never see a partially written lock.
func (m *Manager) tryCreate(info Info) (bool, error) {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return false, fmt.Errorf("failed to encode lock: %w", err)
	}

	tmp := fmt.Sprintf("%s.%s.tmp", m.path, uuid.NewString())
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return false, fmt.Errorf("failed to write lock file: %w", err)
	}
	defer func() { _ = os.Remove(tmp) }()

	err = os.Link(tmp, m.path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}

	// filesystems without hard links: exclusive create
	f, err := os.OpenFile(m.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create lock file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(m.path)
		return false, fmt.Errorf("failed to write lock file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(m.path)
		return false, fmt.Errorf("failed to write lock file: %w", err)
	}
	return true, nil
}

// reclaim removes the lock file if it still holds expected (nil matches a
// malformed file), narrowing the window in which two reclaimers race.
func (m *Manager) reclaim(expected *Info) error {
	current, ok := readInfo(m.path)
	if expected == nil && ok {
		return nil
	}
	if expected != nil && (!ok || !current.sameOwner(*expected)) {
		return nil
	}
	if err := os.Remove(m.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove lock %s: %w", m.path, err)
	}
	return nil
}

// Release removes the lock if this Manager still owns it. Failures are
// logged; a later Acquire reclaims whatever is left behind.
func (m *Manager) Release() {
	m.mu.Lock()
	held := m.held
	m.held = nil
	m.mu.Unlock()

	if held == nil {
		return
	}

	current, ok := readInfo(m.path)
	if !ok {
		m.logger.Debug("lock file already gone", "path", m.path)
		return
	}
	if !current.sameOwner(*held) {
		m.logger.Warn("lock was taken over by another owner, leaving it in place", "path", m.path, "holder_pid", current.PID)
		return
	}
	if err := os.Remove(m.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		m.logger.Warn("failed to release lock", "path", m.path, "error", err)
		return
	}
	m.logger.Debug("lock released", "path", m.path)
}

// Owned reports whether this Manager currently holds the lock.
func (m *Manager) Owned() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held != nil
}

// IsHeld reports whether a well-formed lock owned by a live process exists.
// Read errors report false.
func (m *Manager) IsHeld() bool {
	info, ok := readInfo(m.path)
	return ok && m.alive(info.PID)
}

// Info returns the current lock file content, if any.
func (m *Manager) Info() (Info, bool) {
	return readInfo(m.path)
}

// Alive reports whether the holder recorded in info is running.
func (m *Manager) Alive(info Info) bool {
	return m.alive(info.PID)
}

// Clear removes the lock file when its holder is dead, or unconditionally
// with force. It returns the removed lock, or ok == false if nothing was
// removed.
func (m *Manager) Clear(force bool) (Info, bool, error) {
	info, ok := readInfo(m.path)
	if !ok {
		if _, err := os.Stat(m.path); err == nil {
			// malformed lock: nothing to protect
			if err := os.Remove(m.path); err != nil {
				return Info{}, false, fmt.Errorf("failed to remove lock file: %w", err)
			}
		}
		return Info{}, false, nil
	}
	if !force && m.alive(info.PID) {
		return info, false, fmt.Errorf("lock %s is held by running process %d on %s", m.path, info.PID, info.Hostname)
	}
	if err := os.Remove(m.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return info, false, fmt.Errorf("failed to remove lock file: %w", err)
	}
	return info, true, nil
}

func readInfo(path string) (Info, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Info{}, false
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil || info.PID == 0 || info.Timestamp.IsZero() {
		return Info{}, false
	}
	return info, true
}

// WithLock runs fn while holding m. The lock is released even if fn panics.
func WithLock(ctx context.Context, m *Manager, opts Options, fn func() error) error {
	if err := m.Acquire(ctx, opts); err != nil {
		return err
	}
	defer m.Release()
	return fn()
}

package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
)

// ConflictError reports a dev server already running against the same
// cache directory.
type ConflictError struct {
	Path     string
	Holder   Info
	SameHost bool
}

func (e *ConflictError) Error() string {
	if e.SameHost {
		return fmt.Sprintf("another dev server is running on this host (pid %d, started %s); stop it with `kill %d` or rerun with --force-lock",
			e.Holder.PID, e.Holder.Timestamp.Format("15:04:05"), e.Holder.PID)
	}
	return fmt.Sprintf("another dev server is running on host %s (pid %d, started %s); stop it there or rerun with --force-lock",
		e.Holder.Hostname, e.Holder.PID, e.Holder.Timestamp.Format("2006-01-02 15:04:05"))
}

// DevServerLock is held for the lifetime of one dev server process.
type DevServerLock struct {
	*Manager
}

func NewDevServerLock(cacheDir string, logger *slog.Logger) *DevServerLock {
	return &DevServerLock{Manager: newManager(filepath.Join(cacheDir, DevLockFile), logger)}
}

// Acquire takes the dev-server lock. A live holder is reported as
// *ConflictError rather than a timeout.
func (d *DevServerLock) Acquire(ctx context.Context, opts Options) error {
	err := d.Manager.Acquire(ctx, opts)
	var timeout *TimeoutError
	if errors.As(err, &timeout) {
		host, _ := d.hostname()
		return &ConflictError{
			Path:     timeout.Path,
			Holder:   timeout.Holder,
			SameHost: host != "" && host == timeout.Holder.Hostname,
		}
	}
	return err
}

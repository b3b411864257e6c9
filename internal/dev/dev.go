// Package dev runs the development loop: build once, then rebuild
// incrementally whenever the source tree changes.
package dev

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ianchak/stati-sub002/builder/deps"
	"github.com/ianchak/stati-sub002/builder/lock"
	"github.com/ianchak/stati-sub002/builder/run"
	"github.com/ianchak/stati-sub002/builder/utils"
	"github.com/ianchak/stati-sub002/internal/server"
	"github.com/ianchak/stati-sub002/internal/watch"
)

type Options struct {
	// Addr enables the preview server when non-empty.
	Addr string
	// Out receives progress lines, os.Stdout when nil.
	Out io.Writer
}

// Loop holds the state of one dev session.
type Loop struct {
	builder *run.Builder
	opts    Options
	logger  *slog.Logger
	out     io.Writer
	preview *server.Server

	mu       sync.Mutex
	lastHash string
	builds   int
}

func New(b *run.Builder, opts Options, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	l := &Loop{builder: b, opts: opts, logger: logger, out: out}
	if opts.Addr != "" {
		l.preview = server.New(b.Config().OutDir, opts.Addr, logger)
	}
	return l
}

// Run holds the dev-server lock for the whole session. A second dev server
// on the same cache directory fails immediately with a *lock.ConflictError.
func (l *Loop) Run(ctx context.Context) error {
	cfg := l.builder.Config()

	devLock := lock.NewDevServerLock(cfg.CacheDir, l.logger)
	if err := devLock.Acquire(ctx, lock.Options{Force: cfg.ForceLock}); err != nil {
		return err
	}
	defer devLock.Release()

	if err := l.Rebuild(ctx, nil); err != nil && !recoverable(err) {
		return err
	}
	// --force-lock covers the dev lock and the initial build only. Rebuilds
	// triggered by edits wait for a concurrent build like any other.
	cfg.ForceLock = false

	w, err := watch.New([]string{cfg.SrcDir}, cfg.Watch.Debounce, l.logger, func(batch watch.Batch) {
		if err := l.Rebuild(ctx, batch.Paths()); err != nil && !recoverable(err) {
			l.logger.Error("rebuild failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(ctx) })
	if l.preview != nil {
		g.Go(func() error { return l.preview.Run(ctx) })
		_, _ = fmt.Fprintf(l.out, "🌐 Serving on http://%s\n", l.preview.Addr())
		_, _ = fmt.Fprintln(l.out, "   (Auto-reload enabled via /events)")
	}
	_, _ = fmt.Fprintln(l.out, "👀 Watch mode active. Waiting for changes...")

	err = g.Wait()
	_, _ = fmt.Fprintln(l.out, "\n🛑 Dev server stopped.")
	return err
}

// Rebuild runs one incremental build unless the source tree is unchanged
// since the last one. changed is informational and may be nil.
func (l *Loop) Rebuild(ctx context.Context, changed []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg := l.builder.Config()
	hash, err := utils.HashDirsFast(l.builder.SourceFs, []string{cfg.SrcDir})
	if err != nil {
		l.logger.Warn("failed to fingerprint source tree", "error", err)
	} else if hash == l.lastHash {
		l.logger.Debug("source tree unchanged, skipping rebuild", "events", len(changed))
		return nil
	}

	if len(changed) > 0 {
		_, _ = fmt.Fprintf(l.out, "\n🔄 Change detected (%d file(s)), rebuilding...\n", len(changed))
		l.logger.Debug("changed files", "paths", changed)
	}

	res, err := l.builder.Build(ctx)
	l.builds++
	if res != nil {
		res.Metrics.Print(l.out)
	}
	if err != nil {
		var cycle *deps.CircularDependencyError
		if errors.As(err, &cycle) {
			_, _ = fmt.Fprintf(l.out, "❌ %v\n", cycle)
		}
		return err
	}

	// Only a successful build marks the tree as seen, so saving the same
	// broken file again retries.
	l.lastHash = hash
	if l.preview != nil {
		l.preview.Reload()
	}
	return nil
}

// Builds returns how many builds the loop has run.
func (l *Loop) Builds() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.builds
}

// recoverable reports errors the dev loop reports and keeps running after:
// template cycles and page render failures are fixed by editing sources.
func recoverable(err error) bool {
	if err == nil {
		return true
	}
	var cycle *deps.CircularDependencyError
	if errors.As(err, &cycle) {
		return true
	}
	var timeout *lock.TimeoutError
	if errors.As(err, &timeout) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

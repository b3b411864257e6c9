package dev

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/ianchak/stati-sub002/builder/config"
	"github.com/ianchak/stati-sub002/builder/deps"
	"github.com/ianchak/stati-sub002/builder/lock"
	"github.com/ianchak/stati-sub002/builder/run"
	"github.com/ianchak/stati-sub002/builder/testutil"
)

func newLoop(t *testing.T) (*Loop, afero.Fs, *testutil.LogBuffer) {
	t.Helper()
	cfg := config.Default()
	cfg.SrcDir = testutil.SiteRoot
	cfg.OutDir = "/dist"
	cfg.CacheDir = t.TempDir()
	cfg.Lock.Timeout = 200 * time.Millisecond
	cfg.Lock.PollInterval = 10 * time.Millisecond

	src := testutil.CreateTestFilesystemWithContent(t, testutil.BasicSite)
	out := &testutil.LogBuffer{}
	b := run.NewBuilder(cfg, testutil.DiscardLogger(),
		run.WithFilesystems(src, afero.NewMemMapFs(), afero.NewMemMapFs()),
		run.WithOutput(out),
		run.WithHistoryKeep(0),
	)
	return New(b, Options{Out: out}, testutil.DiscardLogger()), src, out
}

func TestRebuildSkipsUnchangedTree(t *testing.T) {
	l, src, out := newLoop(t)
	ctx := context.Background()

	if err := l.Rebuild(ctx, nil); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if err := l.Rebuild(ctx, []string{"/site/about.md"}); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if got := l.Builds(); got != 1 {
		t.Fatalf("Builds() = %d after a no-op event, want 1", got)
	}

	testutil.WriteFile(t, src, "/site/blog/post.md", "---\ntitle: Post\n---\nbody edited")
	if err := l.Rebuild(ctx, []string{"/site/blog/post.md"}); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if got := l.Builds(); got != 2 {
		t.Errorf("Builds() = %d after an edit, want 2", got)
	}
	if !strings.Contains(out.String(), "Change detected (1 file(s))") {
		t.Errorf("output does not report the change:\n%s", out.String())
	}
}

func TestRebuildRetriesAfterCycle(t *testing.T) {
	l, src, _ := newLoop(t)
	ctx := context.Background()

	if err := l.Rebuild(ctx, nil); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}

	testutil.WriteFile(t, src, "/site/_partials/nav.html", `<nav>{{ include "header.html" }}</nav>`)
	err := l.Rebuild(ctx, []string{"/site/_partials/nav.html"})
	var cycle *deps.CircularDependencyError
	if !errors.As(err, &cycle) {
		t.Fatalf("Rebuild() error = %v, want *deps.CircularDependencyError", err)
	}
	if !recoverable(err) {
		t.Error("a template cycle should not stop the dev loop")
	}

	// The failed build did not mark the tree as seen
	_ = l.Rebuild(ctx, nil)
	if got := l.Builds(); got != 3 {
		t.Errorf("Builds() = %d, want 3", got)
	}
}

func TestRunConflictsWithRunningDevServer(t *testing.T) {
	l, _, _ := newLoop(t)
	cfg := l.builder.Config()

	other := lock.NewDevServerLock(cfg.CacheDir, testutil.DiscardLogger())
	if err := other.Acquire(context.Background(), lock.Options{}); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer other.Release()

	err := l.Run(context.Background())
	var conflict *lock.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Run() error = %v, want *lock.ConflictError", err)
	}
	if !conflict.SameHost {
		t.Error("ConflictError.SameHost = false for a lock taken by this process")
	}
	if l.Builds() != 0 {
		t.Errorf("Builds() = %d, want no build without the dev lock", l.Builds())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	l, _, out := newLoop(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(out.String(), "Watch mode active") {
		if time.Now().After(deadline) {
			t.Fatal("dev loop never started watching")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	devLock := lock.NewDevServerLock(l.builder.Config().CacheDir, testutil.DiscardLogger())
	if devLock.IsHeld() {
		t.Error("dev lock still held after Run returned")
	}
}

func TestForceLockAppliesToInitialBuildOnly(t *testing.T) {
	l, src, out := newLoop(t)
	cfg := l.builder.Config()
	cfg.ForceLock = true

	// a live process holds the build lock when the session starts
	first := lock.NewManager(cfg.CacheDir, testutil.DiscardLogger())
	if err := first.Acquire(context.Background(), lock.Options{}); err != nil {
		t.Fatal(err)
	}
	defer first.Release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(out.String(), "Watch mode active") {
		select {
		case err := <-done:
			t.Fatalf("Run() returned before watching: %v", err)
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("dev loop never started watching")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := l.Builds(); got != 1 {
		t.Fatalf("Builds() = %d, want the forced initial build", got)
	}

	second := lock.NewManager(cfg.CacheDir, testutil.DiscardLogger())
	if err := second.Acquire(context.Background(), lock.Options{}); err != nil {
		t.Fatal(err)
	}
	defer second.Release()
	held, _ := second.Info()

	testutil.WriteFile(t, src, "/site/blog/post.md", "---\ntitle: Post\n---\nbody edited")
	err := l.Rebuild(ctx, []string{"/site/blog/post.md"})
	var timeout *lock.TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("Rebuild() error = %v, want *lock.TimeoutError", err)
	}
	if current, ok := second.Info(); !ok || !current.Timestamp.Equal(held.Timestamp) {
		t.Error("rebuild took over a build lock held by another build")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestRecoverable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, true},
		{"cycle", &deps.CircularDependencyError{Chain: []string{"a.html", "b.html", "a.html"}}, true},
		{"render failure", errors.New("1 page(s) failed to build"), true},
		{"lock timeout", &lock.TimeoutError{Path: "build.lock"}, false},
		{"canceled", context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := recoverable(tt.err); got != tt.want {
				t.Errorf("recoverable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

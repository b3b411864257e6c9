package clean

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/ianchak/stati-sub002/builder/cache"
	"github.com/ianchak/stati-sub002/builder/lock"
	"github.com/ianchak/stati-sub002/builder/run"
)

// Run deletes the output directory and, with cleanCache, the manifest and
// build history. It holds the build lock so no build writes while the tree
// disappears.
func Run(ctx context.Context, b *run.Builder, cleanCache bool, out io.Writer) error {
	start := time.Now()
	cfg := b.Config()

	return lock.WithLock(ctx, b.Lock(), b.LockOptions(), func() error {
		exists, err := dirExists(b, cfg.OutDir)
		if err != nil {
			return err
		}
		if exists {
			fmt.Fprintf(out, "🧹 Removing '%s'...\n", cfg.OutDir)
			if err := b.DestFs.RemoveAll(cfg.OutDir); err != nil {
				return fmt.Errorf("failed to remove %s: %w", cfg.OutDir, err)
			}
		}

		if cleanCache {
			fmt.Fprintln(out, "🧹 Removing cache manifest and build history...")
			if err := b.Store().Remove(); err != nil {
				return err
			}
			history := filepath.Join(cfg.CacheDir, cache.HistoryFile)
			if err := os.Remove(history); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to remove build history: %w", err)
			}
		}

		fmt.Fprintf(out, "🧹 Clean finished in %v.\n", time.Since(start).Round(time.Millisecond))
		return nil
	})
}

func dirExists(b *run.Builder, dir string) (bool, error) {
	info, err := b.DestFs.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return false, fmt.Errorf("output path %s is not a directory", dir)
	}
	return true, nil
}

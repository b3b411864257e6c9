package run

import (
	"context"
	"fmt"

	"github.com/ianchak/stati-sub002/builder/cache"
	"github.com/ianchak/stati-sub002/builder/isg"
	"github.com/ianchak/stati-sub002/builder/lock"
)

// Invalidate removes the manifest entries matching any of queries, so the
// next build re-renders those pages. It runs under the build lock.
func (b *Builder) Invalidate(ctx context.Context, queries []isg.Query) ([]string, error) {
	var removed []string
	err := b.withLock(ctx, func() error {
		manifest, ok := b.store.Load()
		if !ok {
			return nil
		}
		removed = isg.Invalidate(manifest, queries, b.now())
		if len(removed) == 0 {
			return nil
		}
		return b.store.Save(manifest)
	})
	return removed, err
}

// ClearCache deletes the manifest under the build lock.
func (b *Builder) ClearCache(ctx context.Context) error {
	return b.withLock(ctx, func() error {
		if err := b.store.Remove(); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
		return nil
	})
}

// Manifest reads the current manifest without taking the lock.
func (b *Builder) Manifest() (*cache.Manifest, bool) {
	return b.store.Load()
}

func (b *Builder) withLock(ctx context.Context, fn func() error) error {
	return lock.WithLock(ctx, b.lock, b.LockOptions(), fn)
}

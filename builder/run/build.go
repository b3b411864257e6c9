package run

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ianchak/stati-sub002/builder/cache"
	"github.com/ianchak/stati-sub002/builder/metrics"
	"github.com/ianchak/stati-sub002/builder/models"
	"github.com/ianchak/stati-sub002/builder/utils"
)

// Result describes one completed build.
type Result struct {
	ID      string
	Metrics *metrics.BuildMetrics
	// Rebuilt and Pruned hold output paths in sorted order.
	Rebuilt []string
	Pruned  []string
}

// Build runs one build pass under the build lock: load pages and the
// manifest, decide which pages to render, render them, prune vanished
// pages and save the manifest. Pages that fail to render are reported in
// the returned error after the manifest has been saved.
func (b *Builder) Build(ctx context.Context) (*Result, error) {
	var res *Result
	err := b.withLock(ctx, func() error {
		var err error
		res, err = b.build(ctx)
		return err
	})
	return res, err
}

func (b *Builder) build(ctx context.Context) (*Result, error) {
	cfg := b.cfg
	m := metrics.NewBuildMetrics()
	m.Forced = cfg.Force || !cfg.ISG.Enabled
	start := b.now()
	res := &Result{ID: uuid.NewString(), Metrics: m}
	logger := b.logger.With("build", res.ID)

	fmt.Fprintf(b.out, "🔨 Building site... | Parallel Workers: %d\n", cfg.Workers)

	// 1. Load
	phase := time.Now()
	pages, err := b.loader.Load()
	if err != nil {
		return nil, err
	}
	manifest := b.loadManifest()
	m.LoadTime = time.Since(phase)

	// 2. Decide
	phase = time.Now()
	plans, err := b.decide(ctx, pages, manifest, start, m)
	if err != nil {
		return nil, err
	}
	m.DecideTime = time.Since(phase)

	// 3. Render
	phase = time.Now()
	renderErr := b.render(ctx, plans, manifest, start, m)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	m.RenderTime = time.Since(phase)
	for _, p := range plans {
		if p.rendered {
			res.Rebuilt = append(res.Rebuilt, p.page.OutputPath)
		}
	}

	// 4. Prune pages that no longer exist
	res.Pruned = b.prune(pages, manifest)
	m.AddPruned(len(res.Pruned))

	// 5. Save
	phase = time.Now()
	if err := b.store.Save(manifest); err != nil {
		return nil, err
	}
	m.SaveTime = time.Since(phase)
	fmt.Fprintf(b.out, "   💾 Saved cache manifest to %s\n", b.store.Path())

	m.RecordEnd()
	b.recordHistory(res, start, renderErr)
	logger.Debug("build finished", "rebuilt", len(res.Rebuilt), "pruned", len(res.Pruned), "reasons", m.ReasonSummary())

	sort.Strings(res.Rebuilt)
	return res, renderErr
}

// loadManifest returns the manifest to build against. --clean, a missing or
// unusable file, and a manifest written under a different ISG config all
// start from an empty manifest.
func (b *Builder) loadManifest() *cache.Manifest {
	fingerprint := b.cfg.ISG.Fingerprint()

	if b.cfg.Clean {
		fmt.Fprintf(b.out, "🧹 Clean build: discarding cache manifest\n")
		return cache.NewManifest(fingerprint)
	}

	manifest, ok := b.store.Load()
	if !ok {
		return cache.NewManifest(fingerprint)
	}
	if manifest.ConfigHash != "" && manifest.ConfigHash != fingerprint {
		fmt.Fprintf(b.out, "🔄 ISG configuration changed. Forcing full rebuild.\n")
		b.logger.Info("discarding cache manifest built with a different ISG config", "old", manifest.ConfigHash, "new", fingerprint)
		return cache.NewManifest(fingerprint)
	}
	manifest.ConfigHash = fingerprint
	manifest.Version = cache.ManifestVersion
	return manifest
}

// render renders every planned page on a worker pool and records its new
// cache entry. A page that fails loses its entry so the next build retries it.
func (b *Builder) render(ctx context.Context, plans []*plan, manifest *cache.Manifest, now time.Time, m *metrics.BuildMetrics) error {
	var mu sync.Mutex
	var failures []error

	pool := utils.NewWorkerPool(ctx, b.cfg.Workers, func(ctx context.Context, p *plan) error {
		err := b.renderOne(p, manifest, now)
		if err == nil {
			p.rendered = true
			m.IncrementRebuilt()
			return nil
		}
		m.IncrementFailed()
		manifest.Delete(p.page.OutputPath)
		b.logger.Error("failed to build page", "page", p.page.RelPath, "error", err)
		mu.Lock()
		failures = append(failures, err)
		mu.Unlock()
		return nil
	})
	pool.Start()
	for _, p := range plans {
		if !p.decision.Rebuild {
			continue
		}
		if !pool.Submit(p) {
			break
		}
	}
	if err := pool.Stop(); err != nil && ctx.Err() == nil {
		return err
	}

	if len(failures) > 0 {
		fmt.Fprintf(b.out, "   ❌ %d page(s) failed to build\n", len(failures))
		return fmt.Errorf("%d page(s) failed to build: %w", len(failures), errors.Join(failures...))
	}
	return nil
}

func (b *Builder) renderOne(p *plan, manifest *cache.Manifest, now time.Time) error {
	if err := b.rnd.Render(p.page); err != nil {
		return err
	}
	entry, err := b.engine.UpdateCacheEntry(p.existing, p.page, now)
	if err != nil {
		return err
	}
	manifest.Set(entry)
	return nil
}

// prune removes manifest entries and outputs of pages that are gone.
func (b *Builder) prune(pages []*models.Page, manifest *cache.Manifest) []string {
	current := make(map[string]bool, len(pages))
	for _, p := range pages {
		current[p.OutputPath] = true
	}

	var pruned []string
	for _, path := range manifest.Paths() {
		if current[path] {
			continue
		}
		manifest.Delete(path)
		if err := b.rnd.Remove(path); err != nil {
			b.logger.Warn("failed to remove stale output", "path", path, "error", err)
		}
		pruned = append(pruned, path)
	}
	if len(pruned) > 0 {
		fmt.Fprintf(b.out, "   🗑️  Pruned %d removed page(s)\n", len(pruned))
	}
	return pruned
}

// recordHistory appends the build to history.db. History is informational,
// so failures are only logged.
func (b *Builder) recordHistory(res *Result, start time.Time, renderErr error) {
	if b.historyKeep <= 0 {
		return
	}
	h, err := cache.OpenHistory(b.cfg.CacheDir, b.cfg.Lock.Timeout)
	if err != nil {
		b.logger.Warn("failed to open build history", "error", err)
		return
	}
	defer func() { _ = h.Close() }()

	m := res.Metrics
	record := &cache.BuildRecord{
		ID:         res.ID,
		StartedAt:  start,
		Duration:   m.TotalDuration(),
		Pages:      m.Pages,
		Rebuilt:    m.Rebuilt,
		Cached:     m.CacheHits,
		Frozen:     m.Frozen,
		Pruned:     m.Pruned,
		Forced:     m.Forced,
		ConfigHash: b.cfg.ISG.Fingerprint(),
	}
	if renderErr != nil {
		record.Errors = []string{renderErr.Error()}
	}
	if err := h.Record(record, b.historyKeep); err != nil {
		b.logger.Warn("failed to record build history", "error", err)
	}
}

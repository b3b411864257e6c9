package run

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ianchak/stati-sub002/builder/cache"
	"github.com/ianchak/stati-sub002/builder/isg"
	"github.com/ianchak/stati-sub002/builder/metrics"
	"github.com/ianchak/stati-sub002/builder/models"
)

// Reasons the driver adds on top of the engine's.
const (
	ReasonForced        isg.Reason = "forced"
	ReasonISGDisabled   isg.Reason = "isg disabled"
	ReasonOutputMissing isg.Reason = "output missing"
)

// plan is the decision for one page and, after rendering, its outcome.
type plan struct {
	page     *models.Page
	existing *cache.CacheEntry
	decision isg.Decision
	rendered bool
}

// decide computes a rebuild decision for every page concurrently. Only a
// circular template dependency aborts the build.
func (b *Builder) decide(ctx context.Context, pages []*models.Page, manifest *cache.Manifest, now time.Time, m *metrics.BuildMetrics) ([]*plan, error) {
	plans := make([]*plan, len(pages))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Workers)
	for i, page := range pages {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			existing, _ := manifest.Get(page.OutputPath)
			d, err := b.decideOne(page, existing, now)
			if err != nil {
				return err
			}
			plans[i] = &plan{page: page, existing: existing, decision: d}
			m.RecordDecision(string(d.Reason), d.Rebuild, d.Reason == isg.ReasonFrozen)
			b.logger.Debug("rebuild decision", "page", page.OutputPath, "rebuild", d.Rebuild, "reason", d.Reason)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return plans, nil
}

func (b *Builder) decideOne(page *models.Page, existing *cache.CacheEntry, now time.Time) (isg.Decision, error) {
	switch {
	case b.cfg.Force:
		return isg.Decision{Rebuild: true, Reason: ReasonForced}, nil
	case !b.cfg.ISG.Enabled:
		return isg.Decision{Rebuild: true, Reason: ReasonISGDisabled}, nil
	}

	d, err := b.engine.Decide(page, existing, now)
	if err != nil {
		return d, err
	}
	if !d.Rebuild && !b.rnd.OutputExists(page) {
		d.Rebuild, d.Reason = true, ReasonOutputMissing
	}
	return d, nil
}

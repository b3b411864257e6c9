package isg

import (
	"time"

	"github.com/ianchak/stati-sub002/builder/cache"
	"github.com/ianchak/stati-sub002/builder/config"
	"github.com/ianchak/stati-sub002/builder/models"
)

const day = 24 * time.Hour

// EffectiveTTL resolves the TTL for page at now: a front matter ttlSeconds
// wins, then the aging rule matching the page's age, then the default.
func EffectiveTTL(page *models.Page, cfg config.ISGConfig, now time.Time) time.Duration {
	if ttl, ok := page.TTLOverride(); ok && ttl >= 0 {
		return time.Duration(ttl) * time.Second
	}
	return ruleTTL(page.PublishedAt(), cfg, now)
}

// ruleTTL applies the aging rules to a publish date.
func ruleTTL(publishedAt *time.Time, cfg config.ISGConfig, at time.Time) time.Duration {
	if publishedAt == nil || len(cfg.Aging) == 0 {
		return time.Duration(cfg.TTLSeconds) * time.Second
	}

	age := at.Sub(*publishedAt)
	if age < 0 {
		age = 0
	}
	for _, rule := range cfg.Aging {
		if age <= time.Duration(rule.UntilDays)*day {
			return time.Duration(rule.TTLSeconds) * time.Second
		}
	}
	last := cfg.Aging[len(cfg.Aging)-1]
	return time.Duration(last.TTLSeconds) * time.Second
}

// MaxAgeCap returns the freeze cap in days for page, 0 meaning never.
func MaxAgeCap(page *models.Page, cfg config.ISGConfig) int {
	if days, ok := page.MaxAgeCapDays(); ok && days >= 0 {
		return days
	}
	return cfg.MaxAgeCapDays
}

// NextRebuildAt is when entry's TTL, recorded at render time, expires. A zero
// TTL expires immediately.
func NextRebuildAt(entry *cache.CacheEntry) time.Time {
	return entry.RenderedAt.Add(entry.TTL())
}

// IsFrozen reports whether entry's page is older than its max-age cap and
// therefore exempt from time-based rebuilds.
func IsFrozen(entry *cache.CacheEntry, now time.Time) bool {
	if entry.PublishedAt == nil || entry.MaxAgeCapDays == nil || *entry.MaxAgeCapDays <= 0 {
		return false
	}
	return now.Sub(*entry.PublishedAt) > time.Duration(*entry.MaxAgeCapDays)*day
}

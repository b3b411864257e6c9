// Package isg decides whether a page must be re-rendered or can be served
// from the cache manifest, and produces the entries written after a render.
package isg

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ianchak/stati-sub002/builder/cache"
	"github.com/ianchak/stati-sub002/builder/config"
	"github.com/ianchak/stati-sub002/builder/deps"
	"github.com/ianchak/stati-sub002/builder/models"
	"github.com/ianchak/stati-sub002/builder/utils"
)

// DependencyTracker finds the template files a page's render touches.
type DependencyTracker interface {
	TrackDependencies(page *models.Page) ([]string, error)
}

// FileHasher digests dependency files.
type FileHasher interface {
	// HashFile returns ok == false for a file that does not exist.
	HashFile(path string) (digest string, ok bool, err error)
	// DependencyDigest never fails; unreadable files map to a missing marker.
	DependencyDigest(path string) string
}

type Reason string

const (
	ReasonNoEntry         Reason = "no cache entry"
	ReasonInvalidEntry    Reason = "invalid cache entry"
	ReasonDependencyError Reason = "dependency tracking failed"
	ReasonInputsChanged   Reason = "inputs changed"
	ReasonFrozen          Reason = "frozen"
	ReasonExpired         Reason = "ttl expired"
	ReasonFresh           Reason = "fresh"
)

// Decision is the outcome of Decide. InputsHash and Deps are set whenever
// they could be computed.
type Decision struct {
	Rebuild    bool
	Reason     Reason
	InputsHash string
	Deps       []string
}

type Engine struct {
	tracker DependencyTracker
	hasher  FileHasher
	cfg     config.ISGConfig
	logger  *slog.Logger
}

func NewEngine(tracker DependencyTracker, hasher FileHasher, cfg config.ISGConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{tracker: tracker, hasher: hasher, cfg: cfg, logger: logger}
}

// ShouldRebuild reports whether page must be rendered at now. Only a
// circular template dependency is returned as an error.
func (e *Engine) ShouldRebuild(page *models.Page, existing *cache.CacheEntry, now time.Time) (bool, error) {
	d, err := e.Decide(page, existing, now)
	return d.Rebuild, err
}

// Decide runs the rebuild checks in order and reports which one fired.
func (e *Engine) Decide(page *models.Page, existing *cache.CacheEntry, now time.Time) (Decision, error) {
	if existing == nil {
		return Decision{Rebuild: true, Reason: ReasonNoEntry}, nil
	}
	if err := existing.Validate(); err != nil {
		e.logger.Debug("cache entry failed validation", "page", page.OutputPath, "error", err)
		return Decision{Rebuild: true, Reason: ReasonInvalidEntry}, nil
	}

	contentHash, err := utils.HashContent(page.Content, page.FrontMatter)
	if err != nil {
		e.logger.Warn("failed to hash page content, rebuilding", "page", page.RelPath, "error", err)
		return Decision{Rebuild: true, Reason: ReasonDependencyError}, nil
	}

	depPaths, err := e.tracker.TrackDependencies(page)
	if err != nil {
		var cycle *deps.CircularDependencyError
		if errors.As(err, &cycle) {
			return Decision{}, fmt.Errorf("failed to track dependencies of %s: %w", page.RelPath, err)
		}
		e.logger.Warn("dependency tracking failed, rebuilding", "page", page.RelPath, "error", err)
		return Decision{Rebuild: true, Reason: ReasonDependencyError}, nil
	}

	digests := make([]string, len(depPaths))
	for i, p := range depPaths {
		digests[i] = e.hasher.DependencyDigest(p)
	}
	inputsHash := utils.CombineInputsHash(contentHash, digests)

	d := Decision{InputsHash: inputsHash, Deps: depPaths}
	switch {
	case inputsHash != existing.InputsHash:
		d.Rebuild, d.Reason = true, ReasonInputsChanged
	case IsFrozen(existing, now):
		d.Reason = ReasonFrozen
	case !now.Before(NextRebuildAt(existing)):
		d.Rebuild, d.Reason = true, ReasonExpired
	default:
		d.Reason = ReasonFresh
	}
	return d, nil
}

// ComputeInputsHash is the strict form of the hashing in Decide: dependency
// tracking and read errors are returned instead of forcing a rebuild.
func (e *Engine) ComputeInputsHash(page *models.Page) (string, []string, error) {
	contentHash, err := utils.HashContent(page.Content, page.FrontMatter)
	if err != nil {
		return "", nil, fmt.Errorf("failed to hash %s: %w", page.RelPath, err)
	}

	depPaths, err := e.tracker.TrackDependencies(page)
	if err != nil {
		return "", nil, fmt.Errorf("failed to track dependencies of %s: %w", page.RelPath, err)
	}

	digests := make([]string, len(depPaths))
	for i, p := range depPaths {
		digest, ok, err := e.hasher.HashFile(p)
		if err != nil {
			return "", nil, fmt.Errorf("failed to hash dependency of %s: %w", page.RelPath, err)
		}
		if !ok {
			digest = utils.MissingDigest(p)
		}
		digests[i] = digest
	}
	return utils.CombineInputsHash(contentHash, digests), depPaths, nil
}

// CreateCacheEntry builds the entry recorded after rendering page at now.
func (e *Engine) CreateCacheEntry(page *models.Page, now time.Time) (*cache.CacheEntry, error) {
	inputsHash, depPaths, err := e.ComputeInputsHash(page)
	if err != nil {
		return nil, err
	}

	entry := &cache.CacheEntry{
		Path:        page.OutputPath,
		InputsHash:  inputsHash,
		Deps:        depPaths,
		Tags:        page.Tags(),
		RenderedAt:  now,
		TTLSeconds:  EffectiveTTL(page, e.cfg, now).Seconds(),
		PublishedAt: page.PublishedAt(),
	}
	if capDays := MaxAgeCap(page, e.cfg); capDays > 0 {
		entry.MaxAgeCapDays = &capDays
	}
	return entry, nil
}

// UpdateCacheEntry is CreateCacheEntry that keeps existing's publishedAt
// when the page no longer supplies one.
func (e *Engine) UpdateCacheEntry(existing *cache.CacheEntry, page *models.Page, now time.Time) (*cache.CacheEntry, error) {
	entry, err := e.CreateCacheEntry(page, now)
	if err != nil {
		return nil, err
	}
	if entry.PublishedAt == nil && existing != nil && existing.PublishedAt != nil {
		published := *existing.PublishedAt
		entry.PublishedAt = &published
		// the TTL depends on the page's age, which is known again
		if _, override := page.TTLOverride(); !override {
			entry.TTLSeconds = ruleTTL(entry.PublishedAt, e.cfg, now).Seconds()
		}
	}
	return entry, nil
}

// Package metrics tracks per-build counters and timings.
package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// BuildMetrics is safe for concurrent use by decision and render workers.
type BuildMetrics struct {
	mu sync.Mutex

	// Timing
	StartTime  time.Time
	EndTime    time.Time
	LoadTime   time.Duration
	DecideTime time.Duration
	RenderTime time.Duration
	SaveTime   time.Duration

	// Counters
	Pages     int
	CacheHits int
	Rebuilt   int
	Frozen    int
	Pruned    int
	Failed    int

	// Reasons counts decisions by the check that produced them.
	Reasons map[string]int

	Forced bool
}

func NewBuildMetrics() *BuildMetrics {
	return &BuildMetrics{
		StartTime: time.Now(),
		Reasons:   make(map[string]int),
	}
}

// RecordEnd marks the end of the build.
func (m *BuildMetrics) RecordEnd() {
	m.mu.Lock()
	m.EndTime = time.Now()
	m.mu.Unlock()
}

// TotalDuration returns the total build duration.
func (m *BuildMetrics) TotalDuration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EndTime.IsZero() {
		return time.Since(m.StartTime)
	}
	return m.EndTime.Sub(m.StartTime)
}

// RecordDecision counts one page decision. frozen marks a cached page that
// will never be rebuilt by TTL again.
func (m *BuildMetrics) RecordDecision(reason string, rebuild, frozen bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Pages++
	m.Reasons[reason]++
	if !rebuild {
		m.CacheHits++
		if frozen {
			m.Frozen++
		}
	}
}

func (m *BuildMetrics) IncrementRebuilt() {
	m.mu.Lock()
	m.Rebuilt++
	m.mu.Unlock()
}

func (m *BuildMetrics) IncrementFailed() {
	m.mu.Lock()
	m.Failed++
	m.mu.Unlock()
}

func (m *BuildMetrics) AddPruned(n int) {
	m.mu.Lock()
	m.Pruned += n
	m.mu.Unlock()
}

// CacheHitRate returns the cache hit percentage.
func (m *BuildMetrics) CacheHitRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Pages == 0 {
		return 0
	}
	return float64(m.CacheHits) / float64(m.Pages) * 100
}

// String returns a single-line summary.
func (m *BuildMetrics) String() string {
	duration := m.TotalDuration()
	hitRate := m.CacheHitRate()

	m.mu.Lock()
	defer m.mu.Unlock()

	s := fmt.Sprintf("📊 Built %d pages in %v (rebuilt %d, cache: %d/%d hits, %.0f%%",
		m.Pages, duration.Round(time.Millisecond), m.Rebuilt, m.CacheHits, m.Pages, hitRate)
	if m.Frozen > 0 {
		s += fmt.Sprintf(", %d frozen", m.Frozen)
	}
	if m.Pruned > 0 {
		s += fmt.Sprintf(", %d pruned", m.Pruned)
	}
	if m.Failed > 0 {
		s += fmt.Sprintf(", %d failed", m.Failed)
	}
	return s + ")"
}

// ReasonSummary lists decision reasons with counts, most frequent first.
func (m *BuildMetrics) ReasonSummary() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	reasons := make([]string, 0, len(m.Reasons))
	for r := range m.Reasons {
		reasons = append(reasons, r)
	}
	sort.Slice(reasons, func(i, j int) bool {
		if m.Reasons[reasons[i]] != m.Reasons[reasons[j]] {
			return m.Reasons[reasons[i]] > m.Reasons[reasons[j]]
		}
		return reasons[i] < reasons[j]
	})

	parts := make([]string, len(reasons))
	for i, r := range reasons {
		parts[i] = fmt.Sprintf("%s: %d", r, m.Reasons[r])
	}
	return strings.Join(parts, ", ")
}

// Print writes the summary line to w.
func (m *BuildMetrics) Print(w io.Writer) {
	_, _ = fmt.Fprintln(w, m.String())
}

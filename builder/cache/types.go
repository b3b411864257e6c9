// Package cache persists ISG state: the JSON manifest mapping output paths
// to cache entries, and a bbolt build-history database.
package cache

import (
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// ManifestVersion is the newest manifest layout this build understands.
const ManifestVersion = 1

// CacheEntry records how one output path was last rendered.
type CacheEntry struct {
	Path          string     `json:"path"`
	InputsHash    string     `json:"inputsHash"`
	Deps          []string   `json:"deps"`
	Tags          []string   `json:"tags"`
	RenderedAt    time.Time  `json:"renderedAt"`
	TTLSeconds    float64    `json:"ttlSeconds"`
	PublishedAt   *time.Time `json:"publishedAt,omitempty"`
	MaxAgeCapDays *int       `json:"maxAgeCapDays,omitempty"`
}

// TTL returns TTLSeconds as a duration.
func (e *CacheEntry) TTL() time.Duration {
	return time.Duration(e.TTLSeconds * float64(time.Second))
}

// Validate checks the structural contract every retained entry satisfies.
func (e *CacheEntry) Validate() error {
	switch {
	case e == nil:
		return errors.New("entry is nil")
	case e.Path == "":
		return errors.New("path is empty")
	case e.InputsHash == "":
		return errors.New("inputsHash is empty")
	case e.RenderedAt.IsZero():
		return errors.New("renderedAt is missing")
	case math.IsNaN(e.TTLSeconds) || math.IsInf(e.TTLSeconds, 0):
		return errors.New("ttlSeconds is not finite")
	case e.Deps == nil:
		return errors.New("deps is missing")
	case e.Tags == nil:
		return errors.New("tags is missing")
	}
	return nil
}

// HasTag reports whether the entry carries tag.
func (e *CacheEntry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Manifest maps output paths to cache entries. It is safe for concurrent
// use; builds mutate it from several workers before a single save.
type Manifest struct {
	Version    int
	ConfigHash string

	mu      sync.RWMutex
	entries map[string]*CacheEntry
}

func NewManifest(configHash string) *Manifest {
	return &Manifest{
		Version:    ManifestVersion,
		ConfigHash: configHash,
		entries:    make(map[string]*CacheEntry),
	}
}

func (m *Manifest) Get(path string) (*CacheEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[path]
	return e, ok
}

func (m *Manifest) Set(entry *CacheEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.Path] = entry
}

func (m *Manifest) Delete(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[path]
	delete(m.entries, path)
	return ok
}

func (m *Manifest) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Paths returns all output paths in sorted order.
func (m *Manifest) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	paths := make([]string, 0, len(m.entries))
	for p := range m.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Entries returns the entries sorted by path.
func (m *Manifest) Entries() []*CacheEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*CacheEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// BuildRecord summarizes one build in the history database.
type BuildRecord struct {
	ID         string        `msgpack:"id"`
	StartedAt  time.Time     `msgpack:"started_at"`
	Duration   time.Duration `msgpack:"duration"`
	Pages      int           `msgpack:"pages"`
	Rebuilt    int           `msgpack:"rebuilt"`
	Cached     int           `msgpack:"cached"`
	Frozen     int           `msgpack:"frozen"`
	Pruned     int           `msgpack:"pruned"`
	Forced     bool          `msgpack:"forced"`
	Errors     []string      `msgpack:"errors,omitempty"`
	ConfigHash string        `msgpack:"config_hash"`
}

// Encode serializes a value to msgpack bytes
func Encode(v interface{}) ([]byte, error) {
	return msgpack.Marshal(v)
}

// Decode deserializes msgpack bytes to a value
func Decode(data []byte, v interface{}) error {
	return msgpack.Unmarshal(data, v)
}

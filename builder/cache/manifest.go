package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/afero"
)

const ManifestFile = "manifest.json"

// maxCapDays bounds maxAgeCapDays well inside int range on every platform.
const maxCapDays = math.MaxInt32

// manifestFile is the on-disk layout of the manifest.
type manifestFile struct {
	Version    int                    `json:"version"`
	ConfigHash string                 `json:"configHash,omitempty"`
	Entries    map[string]*CacheEntry `json:"entries"`
}

// Store reads and writes manifest.json inside a cache directory.
type Store struct {
	fs     afero.Fs
	dir    string
	logger *slog.Logger
}

func NewStore(fs afero.Fs, dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{fs: fs, dir: dir, logger: logger}
}

// Path returns the manifest file path.
func (s *Store) Path() string {
	return filepath.Join(s.dir, ManifestFile)
}

// Load returns the stored manifest, or ok == false when there is nothing
// usable: no file, an empty file, invalid JSON, a wrong top-level shape or a
// newer version. Entries that fail validation are dropped and counted in a
// single warning; the rest are kept.
func (s *Store) Load() (m *Manifest, ok bool) {
	path := s.Path()
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("failed to read cache manifest, starting fresh", "path", path, "error", err)
		}
		return nil, false
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, false
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil || top == nil {
		s.logger.Warn("cache manifest is not a JSON object, starting fresh", "path", path)
		return nil, false
	}

	var rawEntries map[string]json.RawMessage
	if raw, present := top["entries"]; !present || json.Unmarshal(raw, &rawEntries) != nil || rawEntries == nil {
		s.logger.Warn("cache manifest has no entries object, starting fresh", "path", path)
		return nil, false
	}

	m = NewManifest("")
	if raw, present := top["version"]; present {
		var v int
		if err := json.Unmarshal(raw, &v); err != nil {
			s.logger.Warn("cache manifest version is invalid, starting fresh", "path", path)
			return nil, false
		}
		if v > ManifestVersion {
			s.logger.Warn("cache manifest was written by a newer version, starting fresh", "path", path, "version", v)
			return nil, false
		}
		m.Version = v
	}
	if raw, present := top["configHash"]; present {
		if err := json.Unmarshal(raw, &m.ConfigHash); err != nil {
			s.logger.Warn("cache manifest configHash is invalid, starting fresh", "path", path)
			return nil, false
		}
	}

	discarded := 0
	for key, raw := range rawEntries {
		entry, err := decodeEntry(raw)
		if err == nil && entry.Path != key {
			err = fmt.Errorf("path %q does not match key", entry.Path)
		}
		if err != nil {
			discarded++
			s.logger.Debug("discarding invalid cache entry", "key", key, "error", err)
			continue
		}
		m.entries[key] = entry
	}
	if discarded > 0 {
		s.logger.Warn("discarded invalid cache entries", "count", discarded, "path", path)
	}

	return m, true
}

// decodeEntry validates one raw entry field by field before building it, so
// wrong JSON types are rejected instead of being coerced to zero values.
func decodeEntry(raw json.RawMessage) (*CacheEntry, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, errors.New("entry is not an object")
	}

	e := &CacheEntry{}
	var err error
	if e.Path, err = requireString(fields, "path"); err != nil {
		return nil, err
	}
	if e.InputsHash, err = requireString(fields, "inputsHash"); err != nil {
		return nil, err
	}
	renderedAt, err := requireString(fields, "renderedAt")
	if err != nil {
		return nil, err
	}
	if e.RenderedAt, err = time.Parse(time.RFC3339Nano, renderedAt); err != nil {
		return nil, fmt.Errorf("renderedAt: %w", err)
	}
	if e.Deps, err = requireStrings(fields, "deps"); err != nil {
		return nil, err
	}
	if e.Tags, err = requireStrings(fields, "tags"); err != nil {
		return nil, err
	}

	ttl, ok := fields["ttlSeconds"].(float64)
	if !ok || math.IsNaN(ttl) || math.IsInf(ttl, 0) {
		return nil, errors.New("ttlSeconds is not a finite number")
	}
	e.TTLSeconds = ttl

	if v, present := fields["publishedAt"]; present && v != nil {
		s, ok := v.(string)
		if !ok {
			return nil, errors.New("publishedAt is not a string")
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("publishedAt: %w", err)
		}
		e.PublishedAt = &t
	}
	if v, present := fields["maxAgeCapDays"]; present && v != nil {
		n, ok := v.(float64)
		if !ok || n != math.Trunc(n) || math.Abs(n) > maxCapDays {
			return nil, errors.New("maxAgeCapDays is not an integer in range")
		}
		days := int(n)
		e.MaxAgeCapDays = &days
	}

	return e, nil
}

func requireString(fields map[string]interface{}, key string) (string, error) {
	s, ok := fields[key].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%s must be a non-empty string", key)
	}
	return s, nil
}

func requireStrings(fields map[string]interface{}, key string) ([]string, error) {
	list, ok := fields[key].([]interface{})
	if !ok {
		return nil, fmt.Errorf("%s must be an array", key)
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s must contain only strings", key)
		}
		out = append(out, s)
	}
	return out, nil
}

// Save writes the manifest atomically: a temp file is written and synced,
// then renamed over manifest.json. Failures are returned as *SaveError.
func (s *Store) Save(m *Manifest) error {
	path := s.Path()

	if info, err := s.fs.Stat(s.dir); err == nil && !info.IsDir() {
		return &SaveError{Kind: SaveErrNotDirectory, Path: path, Err: syscall.ENOTDIR}
	}
	if err := s.fs.MkdirAll(s.dir, 0755); err != nil {
		return classifySaveError(path, err)
	}

	m.mu.RLock()
	data, err := json.MarshalIndent(manifestFile{
		Version:    ManifestVersion,
		ConfigHash: m.ConfigHash,
		Entries:    m.entries,
	}, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return &SaveError{Kind: SaveErrOther, Path: path, Err: fmt.Errorf("failed to encode manifest: %w", err)}
	}
	data = append(data, '\n')

	tmp := path + ".tmp"
	if err := s.writeSynced(tmp, data); err != nil {
		_ = s.fs.Remove(tmp)
		return classifySaveError(path, err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return classifySaveError(path, err)
	}
	return nil
}

func (s *Store) writeSynced(path string, data []byte) error {
	f, err := s.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Remove deletes the manifest. A missing manifest is not an error.
func (s *Store) Remove() error {
	if err := s.fs.Remove(s.Path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove cache manifest: %w", err)
	}
	return nil
}

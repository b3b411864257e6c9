// loads stati.yaml and holds per-build flags
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFiles are searched in order when no explicit path is given.
var ConfigFiles = []string{"stati.yaml", "stati.yml"}

type Config struct {
	SrcDir   string `yaml:"srcDir"`
	OutDir   string `yaml:"outDir"`
	CacheDir string `yaml:"cacheDir"`
	BaseURL  string `yaml:"baseURL"`

	Workers       int  `yaml:"workers"`
	Compress      bool `yaml:"compress"`    // minify rendered HTML
	Precompress   bool `yaml:"precompress"` // write .gz siblings next to each page
	IncludeDrafts bool `yaml:"drafts"`

	ISG   ISGConfig   `yaml:"isg"`
	Lock  LockConfig  `yaml:"lock"`
	Watch WatchConfig `yaml:"watch"`

	// Per-build flags, set from the command line only.
	Force     bool `yaml:"-"` // bypass the rebuild decision engine
	Clean     bool `yaml:"-"` // discard the manifest before building
	ForceLock bool `yaml:"-"` // reclaim the build lock unconditionally

	// Path of the file the config was read from, "" for defaults.
	Source string `yaml:"-"`
}

type LockConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"pollInterval"`
}

type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// Load reads the config at path, or the first of ConfigFiles in the current
// directory when path is empty. A missing file yields defaults. Relative
// directories are resolved against the config file's directory.
func Load(path string) (*Config, error) {
	cfg := Default()

	base, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	candidates := ConfigFiles
	if path != "" {
		candidates = []string{path}
	}

	for _, candidate := range candidates {
		data, err := os.ReadFile(candidate)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == "" {
				continue
			}
			return nil, fmt.Errorf("failed to read config %s: %w", candidate, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", candidate, err)
		}
		abs, err := filepath.Abs(candidate)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path: %w", err)
		}
		cfg.Source = abs
		base = filepath.Dir(abs)
		break
	}

	cfg.SrcDir = resolveDir(base, cfg.SrcDir)
	cfg.OutDir = resolveDir(base, cfg.OutDir)
	cfg.CacheDir = resolveDir(base, cfg.CacheDir)
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	cfg.validate()
	return cfg, nil
}

func resolveDir(base, dir string) string {
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	return filepath.Join(base, dir)
}

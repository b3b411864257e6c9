package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// changeToTempDir changes to a temp directory and returns a cleanup function
func changeToTempDir(t *testing.T) (string, func()) {
	t.Helper()
	tmpDir := t.TempDir()
	originalDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get current directory: %v", err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("Failed to change directory: %v", err)
	}
	// macOS temp dirs are symlinked; compare against the resolved cwd
	resolved, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get current directory: %v", err)
	}
	return resolved, func() {
		if err := os.Chdir(originalDir); err != nil {
			t.Errorf("Failed to restore original directory: %v", err)
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	dir, cleanup := changeToTempDir(t)
	defer cleanup()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.SrcDir != filepath.Join(dir, "site") {
		t.Errorf("SrcDir = %q, want %q", cfg.SrcDir, filepath.Join(dir, "site"))
	}
	if cfg.CacheDir != filepath.Join(dir, ".stati") {
		t.Errorf("CacheDir = %q", cfg.CacheDir)
	}
	if !cfg.ISG.Enabled {
		t.Error("ISG should be enabled by default")
	}
	if cfg.ISG.TTLSeconds != DefaultTTLSeconds {
		t.Errorf("ISG.TTLSeconds = %d, want %d", cfg.ISG.TTLSeconds, DefaultTTLSeconds)
	}
	if cfg.Lock.Timeout != 30*time.Second {
		t.Errorf("Lock.Timeout = %v", cfg.Lock.Timeout)
	}
	if cfg.Source != "" {
		t.Errorf("Source = %q, want empty", cfg.Source)
	}
}

func TestLoad_FromYAML(t *testing.T) {
	dir, cleanup := changeToTempDir(t)
	defer cleanup()

	yamlContent := `
srcDir: content
outDir: /tmp/stati-out
baseURL: "https://example.com/"
workers: 4
compress: true
isg:
  enabled: true
  ttlSeconds: 600
  maxAgeCapDays: 90
  aging:
    - untilDays: 30
      ttlSeconds: 86400
    - untilDays: 7
      ttlSeconds: 3600
lock:
  timeout: 5s
  pollInterval: 50ms
`
	if err := os.WriteFile("stati.yaml", []byte(yamlContent), 0644); err != nil {
		t.Fatalf("Failed to create test stati.yaml: %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.SrcDir != filepath.Join(dir, "content") {
		t.Errorf("SrcDir = %q", cfg.SrcDir)
	}
	if cfg.OutDir != "/tmp/stati-out" {
		t.Errorf("OutDir = %q", cfg.OutDir)
	}
	if cfg.BaseURL != "https://example.com" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.Workers != 4 || !cfg.Compress {
		t.Errorf("Workers = %d, Compress = %v", cfg.Workers, cfg.Compress)
	}
	if cfg.ISG.TTLSeconds != 600 || cfg.ISG.MaxAgeCapDays != 90 {
		t.Errorf("ISG = %+v", cfg.ISG)
	}
	if len(cfg.ISG.Aging) != 2 || cfg.ISG.Aging[0].UntilDays != 7 {
		t.Errorf("Aging rules not sorted: %+v", cfg.ISG.Aging)
	}
	if cfg.Lock.Timeout != 5*time.Second || cfg.Lock.PollInterval != 50*time.Millisecond {
		t.Errorf("Lock = %+v", cfg.Lock)
	}
	if cfg.Source != filepath.Join(dir, "stati.yaml") {
		t.Errorf("Source = %q", cfg.Source)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, cleanup := changeToTempDir(t)
	defer cleanup()

	if err := os.WriteFile("stati.yaml", []byte("invalid: yaml: content: ["), 0644); err != nil {
		t.Fatalf("Failed to create test stati.yaml: %v", err)
	}

	if _, err := Load(""); err == nil {
		t.Error("Load() with invalid YAML should fail")
	}
}

func TestLoad_ExplicitMissingPath(t *testing.T) {
	_, cleanup := changeToTempDir(t)
	defer cleanup()

	if _, err := Load("nope.yaml"); err == nil {
		t.Error("Load() with a missing explicit path should fail")
	}
}

func TestValidate_Clamping(t *testing.T) {
	cfg := Default()
	cfg.Workers = 1000
	cfg.ISG.TTLSeconds = -5
	cfg.ISG.Aging = []AgingRule{{UntilDays: -1, TTLSeconds: 10}, {UntilDays: 3, TTLSeconds: 60}}
	cfg.Lock.PollInterval = time.Millisecond
	cfg.Watch.Debounce = time.Minute

	cfg.validate()

	if cfg.Workers != MaxWorkers {
		t.Errorf("Workers = %d, want %d", cfg.Workers, MaxWorkers)
	}
	if cfg.ISG.TTLSeconds != 0 {
		t.Errorf("TTLSeconds = %d, want 0", cfg.ISG.TTLSeconds)
	}
	if len(cfg.ISG.Aging) != 1 || cfg.ISG.Aging[0].UntilDays != 3 {
		t.Errorf("Aging = %+v", cfg.ISG.Aging)
	}
	if cfg.Lock.PollInterval != 10*time.Millisecond {
		t.Errorf("PollInterval = %v", cfg.Lock.PollInterval)
	}
	if cfg.Watch.Debounce != 5*time.Second {
		t.Errorf("Debounce = %v", cfg.Watch.Debounce)
	}
}

func TestISGConfig_Fingerprint(t *testing.T) {
	a := ISGConfig{TTLSeconds: 60, MaxAgeCapDays: 10, Aging: []AgingRule{{7, 60}}}
	b := ISGConfig{TTLSeconds: 60, MaxAgeCapDays: 10, Aging: []AgingRule{{7, 60}}}
	c := ISGConfig{TTLSeconds: 60, MaxAgeCapDays: 10, Aging: []AgingRule{{7, 120}}}

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("equal configs produced different fingerprints")
	}
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("different aging rules produced the same fingerprint")
	}
	// Enabled does not change how entries are produced
	b.Enabled = true
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("Enabled flag changed the fingerprint")
	}
}

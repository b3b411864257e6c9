package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/ianchak/stati-sub002/builder/deps"
)

const testConfig = `srcDir: site
outDir: dist
cacheDir: .stati
workers: 2
lock:
  timeout: 500ms
  pollInterval: 10ms
`

func writeSite(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	files["stati.yaml"] = testConfig
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func basicSite(t *testing.T) string {
	return writeSite(t, map[string]string{
		"site/layout.html": `<html>{{ .Content }}</html>`,
		"site/post.md":     "---\ntitle: Post\ntags: [go]\n---\nhello",
		"site/about.md":    "---\ntitle: About\n---\nabout",
	})
}

func execute(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cli := New(&out, &errOut)
	cli.SetArgs(append([]string{"--config", filepath.Join(dir, "stati.yaml")}, args...))
	err := cli.Execute(context.Background())
	return out.String(), err
}

func mustExecute(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, err := execute(t, dir, args...)
	if err != nil {
		t.Fatalf("stati %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func TestBuildCommand(t *testing.T) {
	dir := basicSite(t)

	out := mustExecute(t, dir, "build")
	if !strings.Contains(out, "Built 2 pages") || !strings.Contains(out, "rebuilt 2") {
		t.Errorf("first build output:\n%s", out)
	}
	html, err := os.ReadFile(filepath.Join(dir, "dist", "post.html"))
	if err != nil {
		t.Fatalf("post.html not written: %v", err)
	}
	if string(html) != "<html><p>hello</p>\n</html>" {
		t.Errorf("post.html = %q", html)
	}

	out = mustExecute(t, dir, "build")
	if !strings.Contains(out, "rebuilt 0, cache: 2/2 hits") {
		t.Errorf("second build should be served from cache:\n%s", out)
	}

	out = mustExecute(t, dir, "build", "--force", "--verbose")
	if !strings.Contains(out, "rebuilt 2") || !strings.Contains(out, "forced: 2") {
		t.Errorf("forced build output:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(dir, ".stati", "build.lock")); !os.IsNotExist(err) {
		t.Errorf("build lock left behind: %v", err)
	}
}

func TestBuildCommandCircularDependency(t *testing.T) {
	dir := writeSite(t, map[string]string{
		"site/layout.html": `<html>{{ partial "a" }}{{ .Content }}</html>`,
		"site/_inc/a.html": `<p>a</p>`,
		"site/_inc/b.html": `{{ include "a.html" }}`,
		"site/post.md":     "---\ntitle: Post\n---\nhello",
	})
	mustExecute(t, dir, "build")

	cyclic := filepath.Join(dir, "site", "_inc", "a.html")
	if err := os.WriteFile(cyclic, []byte(`{{ include "b.html" }}`), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := execute(t, dir, "build")
	var cycle *deps.CircularDependencyError
	if !errors.As(err, &cycle) {
		t.Fatalf("build error = %v, want *deps.CircularDependencyError", err)
	}
}

func TestCacheCommands(t *testing.T) {
	dir := basicSite(t)
	mustExecute(t, dir, "build")

	out := mustExecute(t, dir, "cache", "stats")
	for _, want := range []string{"Entries:         2", "Frozen:          0", "Recent Builds", "2 pages, 2 rebuilt"} {
		if !strings.Contains(out, want) {
			t.Errorf("cache stats missing %q:\n%s", want, out)
		}
	}

	out = mustExecute(t, dir, "cache", "inspect", "post.html")
	for _, want := range []string{"Path:          /post.html", "Tags:          [go]", "Frozen:        false"} {
		if !strings.Contains(out, want) {
			t.Errorf("cache inspect missing %q:\n%s", want, out)
		}
	}
	if _, err := execute(t, dir, "cache", "inspect", "/missing.html"); err == nil {
		t.Error("inspect of an unknown path should fail")
	}

	out = mustExecute(t, dir, "cache", "invalidate", "tag:go")
	if !strings.Contains(out, "/post.html") || !strings.Contains(out, "Invalidated 1 cache entry") {
		t.Errorf("invalidate output:\n%s", out)
	}
	out = mustExecute(t, dir, "build")
	if !strings.Contains(out, "rebuilt 1") {
		t.Errorf("build after invalidate should rebuild one page:\n%s", out)
	}

	if _, err := execute(t, dir, "cache", "invalidate", "age:soon"); err == nil {
		t.Error("invalid query should fail")
	}

	mustExecute(t, dir, "cache", "clear")
	out = mustExecute(t, dir, "cache", "stats")
	if !strings.Contains(out, "no manifest") {
		t.Errorf("stats after clear:\n%s", out)
	}
}

func TestLockCommands(t *testing.T) {
	dir := basicSite(t)

	out := mustExecute(t, dir, "lock", "status")
	if strings.Count(out, ": free") != 2 {
		t.Errorf("lock status on a fresh site:\n%s", out)
	}

	lockPath := filepath.Join(dir, ".stati", "build.lock")
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		t.Fatal(err)
	}
	// pid of the test process: held and alive
	host, _ := os.Hostname()
	held := `{"pid": ` + strconv.Itoa(os.Getpid()) + `, "timestamp": "2024-01-01T00:00:00Z", "hostname": "` + host + `"}`
	if err := os.WriteFile(lockPath, []byte(held), 0644); err != nil {
		t.Fatal(err)
	}

	out = mustExecute(t, dir, "lock", "status")
	if !strings.Contains(out, "build.lock: held") {
		t.Errorf("lock status with a live holder:\n%s", out)
	}
	if _, err := execute(t, dir, "lock", "unlock"); err == nil {
		t.Error("unlock of a live holder without --force should fail")
	}

	out = mustExecute(t, dir, "lock", "unlock", "--force")
	if !strings.Contains(out, "Removed lock held by pid") {
		t.Errorf("unlock --force output:\n%s", out)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Errorf("lock file still present: %v", err)
	}
}

func TestInvalidLogSettings(t *testing.T) {
	dir := basicSite(t)
	if _, err := execute(t, dir, "--log-level", "loud", "build"); err == nil {
		t.Error("unknown log level should fail")
	}
	if _, err := execute(t, dir, "--log-format", "xml", "build"); err == nil {
		t.Error("unknown log format should fail")
	}
	if _, err := execute(t, dir, "--log-format", "json", "--log-level", "debug", "build"); err != nil {
		t.Errorf("json logging: %v", err)
	}
}

func TestCleanCommand(t *testing.T) {
	dir := basicSite(t)
	mustExecute(t, dir, "build")

	mustExecute(t, dir, "clean", "--cache")
	if _, err := os.Stat(filepath.Join(dir, "dist")); !os.IsNotExist(err) {
		t.Errorf("dist still present: %v", err)
	}

	out := mustExecute(t, dir, "build")
	if !strings.Contains(out, "rebuilt 2") {
		t.Errorf("build after clean --cache should render everything:\n%s", out)
	}
}

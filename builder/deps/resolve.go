package deps

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/ianchak/stati-sub002/builder/models"
	"github.com/ianchak/stati-sub002/builder/utils"
)

const (
	IndexLayout   = "index.html"
	DefaultLayout = "layout.html"

	// PartialDirPrefix marks directories that hold partial templates.
	PartialDirPrefix = "_"
)

// ResolveLayout returns the layout template for page. An explicit front
// matter layout wins when it resolves to a file; otherwise the nearest
// index.html (index pages only) or layout.html is used, searching from the
// page's directory up to the root.
func (t *Tracker) ResolveLayout(page *models.Page) (string, bool) {
	pageDir := filepath.Dir(page.SourcePath)
	if !utils.WithinRoot(t.root, pageDir) {
		pageDir = t.root
	}

	if name := page.Layout(); name != "" {
		if p, ok := t.Resolve(normalizeName(name), pageDir); ok {
			return p, true
		}
		t.logger.Warn("layout not found, using convention lookup", "page", page.RelPath, "layout", name)
	}

	for dir := pageDir; ; dir = filepath.Dir(dir) {
		if page.IsIndex() {
			if p := filepath.Join(dir, IndexLayout); t.isFile(p) {
				return p, true
			}
		}
		if p := filepath.Join(dir, DefaultLayout); t.isFile(p) {
			return p, true
		}
		if dir == t.root || !utils.WithinRoot(t.root, filepath.Dir(dir)) {
			break
		}
	}
	return "", false
}

// Resolve maps a template reference made from fromDir to a file. The name is
// tried relative to the root first, then inside every underscore-prefixed
// directory from fromDir up to the root. Results never leave the root.
func (t *Tracker) Resolve(name, fromDir string) (string, bool) {
	name = strings.TrimLeft(filepath.FromSlash(name), string(filepath.Separator))
	if name == "" {
		return "", false
	}

	direct := filepath.Join(t.root, name)
	if utils.WithinRoot(t.root, direct) && t.isFile(direct) {
		return direct, true
	}

	if !utils.WithinRoot(t.root, fromDir) {
		fromDir = t.root
	}
	for dir := fromDir; ; dir = filepath.Dir(dir) {
		for _, sub := range t.partialDirs(dir) {
			candidate := filepath.Join(dir, sub, name)
			if utils.WithinRoot(t.root, candidate) && t.isFile(candidate) {
				return candidate, true
			}
		}
		if dir == t.root {
			break
		}
	}
	return "", false
}

// partialDirs lists underscore-prefixed subdirectories of dir in name order.
func (t *Tracker) partialDirs(dir string) []string {
	entries, err := afero.ReadDir(t.fs, dir)
	if err != nil {
		return nil
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), PartialDirPrefix) {
			dirs = append(dirs, e.Name())
		}
	}
	sort.Strings(dirs)
	return dirs
}

func (t *Tracker) isFile(path string) bool {
	info, err := t.fs.Stat(path)
	return err == nil && !info.IsDir()
}

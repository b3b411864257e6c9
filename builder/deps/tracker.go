// Package deps discovers which template files a page's render touches.
//
// A page depends on its layout and on every template reachable from the
// layout through include, layout/extends and partial references. Templates
// that exist on disk but are never reached are not dependencies, so editing
// an unused partial does not invalidate unrelated pages.
package deps

import (
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/ianchak/stati-sub002/builder/models"
	"github.com/ianchak/stati-sub002/builder/utils"
)

// Tracker is safe for concurrent use. Its parse cache lives as long as the
// tracker, so a dev session reuses parsed references across rebuilds.
type Tracker struct {
	fs     afero.Fs
	root   string
	logger *slog.Logger
	refs   *refCache
}

func NewTracker(fs afero.Fs, root string, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		fs:     fs,
		root:   filepath.Clean(root),
		logger: logger,
		refs:   newRefCache(),
	}
}

// Root returns the template root directory.
func (t *Tracker) Root() string {
	return t.root
}

// frame is one template on the traversal stack.
type frame struct {
	path     string
	children []string
	next     int
}

// TrackDependencies returns the layout and every template it transitively
// references, in discovery order. A cycle fails with *CircularDependencyError.
// Missing references are skipped, and a template that cannot be read is kept
// as a dependency but its references are not followed.
func (t *Tracker) TrackDependencies(page *models.Page) ([]string, error) {
	layout, ok := t.ResolveLayout(page)
	if !ok {
		return []string{}, nil
	}

	visited := make(map[string]bool)
	currentPath := make(map[string]bool)
	order := []string{layout}

	stack := []*frame{{path: layout, children: t.children(layout)}}
	currentPath[layout] = true

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.next >= len(top.children) {
			stack = stack[:len(stack)-1]
			delete(currentPath, top.path)
			visited[top.path] = true
			continue
		}

		child := top.children[top.next]
		top.next++

		// an ancestor in this branch is a cycle; a visited node is not
		if currentPath[child] {
			return nil, &CircularDependencyError{Chain: t.chain(stack, child)}
		}
		if visited[child] {
			continue
		}

		order = append(order, child)
		currentPath[child] = true
		stack = append(stack, &frame{path: child, children: t.children(child)})
	}

	return order, nil
}

// children resolves the references of one template to files. Read failures
// are logged and abandon the branch.
func (t *Tracker) children(path string) []string {
	src, err := afero.ReadFile(t.fs, path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			t.logger.Warn("failed to read template, skipping its references", "path", path, "error", err)
		}
		return nil
	}

	refs := t.refs.parse(src)
	dir := filepath.Dir(path)
	seen := make(map[string]bool, len(refs))
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		resolved, ok := t.Resolve(ref.Name, dir)
		if !ok {
			t.logger.Debug("template reference not found", "from", path, "kind", ref.Kind, "name", ref.Name)
			continue
		}
		if seen[resolved] {
			continue
		}
		seen[resolved] = true
		out = append(out, resolved)
	}
	return out
}

func (t *Tracker) chain(stack []*frame, repeated string) []string {
	chain := make([]string, 0, len(stack)+1)
	for _, f := range stack {
		chain = append(chain, t.display(f.path))
	}
	return append(chain, t.display(repeated))
}

// display shortens a template path to be relative to the root.
func (t *Tracker) display(path string) string {
	if rel, err := utils.SafeRel(t.root, path); err == nil {
		return rel
	}
	return path
}

// ParsedTemplates returns the number of distinct template sources parsed.
func (t *Tracker) ParsedTemplates() int {
	return t.refs.len()
}

package testutil

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/ianchak/stati-sub002/builder/models"
)

// SiteRoot is the source root used by in-memory fixtures.
const SiteRoot = "/site"

// NewPage builds a page under SiteRoot from a slash-separated relative path.
func NewPage(rel, content string, frontMatter map[string]interface{}) *models.Page {
	if frontMatter == nil {
		frontMatter = map[string]interface{}{}
	}
	out := "/" + strings.TrimSuffix(rel, path.Ext(rel)) + ".html"
	return &models.Page{
		SourcePath:  filepath.Join(SiteRoot, filepath.FromSlash(rel)),
		RelPath:     rel,
		OutputPath:  out,
		Content:     content,
		FrontMatter: frontMatter,
	}
}

// BasicSite is a small template tree: a root layout using a header partial,
// a blog index layout, and an unused partial.
var BasicSite = map[string]string{
	"/site/layout.html":           `<html>{{ partial "header" }}{{ .Content }}</html>`,
	"/site/_partials/header.html": `<header>{{ include "nav.html" }}</header>`,
	"/site/_partials/nav.html":    `<nav></nav>`,
	"/site/_partials/unused.html": `<aside></aside>`,
	"/site/blog/index.html":       `{{ layout "layout" }}<ul>{{ .Content }}</ul>`,
	"/site/blog/post.md":          "---\ntitle: Post\n---\nbody",
	"/site/blog/index.md":         "---\ntitle: Blog\n---\nlist",
	"/site/about.md":              "---\ntitle: About\n---\nabout",
}

package deps

import (
	"path"
	"regexp"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

type RefKind int

const (
	RefInclude RefKind = iota // {{ include "x" }}, {{ template "x.html" }}
	RefLayout                 // {{ layout "x" }}, {{ extends "x" }}
	RefPartial                // {{ partial "x" }}, .Partials.x
)

func (k RefKind) String() string {
	switch k {
	case RefInclude:
		return "include"
	case RefLayout:
		return "layout"
	case RefPartial:
		return "partial"
	}
	return "unknown"
}

// Reference is one template name found in a template's source.
type Reference struct {
	Kind RefKind
	Name string
}

var (
	commentRe = regexp.MustCompile(`(?s)\{\{-?\s*/\*.*?\*/\s*-?\}\}`)
	actionRe  = regexp.MustCompile(`\{\{-?\s*(include|template|layout|extends|partial)\s+"([^"]+)"`)
	bareRe    = regexp.MustCompile(`\$?\.Partials\.([A-Za-z0-9_-]+)`)
)

// ParseReferences extracts template references from src in source order,
// without duplicates. Names without an extension get ".html".
func ParseReferences(src string) []Reference {
	src = commentRe.ReplaceAllString(src, "")

	type match struct {
		pos int
		ref Reference
	}
	var matches []match

	for _, m := range actionRe.FindAllStringSubmatchIndex(src, -1) {
		verb := src[m[2]:m[3]]
		name := src[m[4]:m[5]]

		var kind RefKind
		switch verb {
		case "include":
			kind = RefInclude
		case "template":
			// named blocks defined inline are not files
			if !strings.HasSuffix(name, ".html") {
				continue
			}
			kind = RefInclude
		case "layout", "extends":
			kind = RefLayout
		case "partial":
			kind = RefPartial
		}
		matches = append(matches, match{pos: m[0], ref: Reference{Kind: kind, Name: normalizeName(name)}})
	}

	for _, m := range bareRe.FindAllStringSubmatchIndex(src, -1) {
		name := src[m[2]:m[3]]
		matches = append(matches, match{pos: m[0], ref: Reference{Kind: RefPartial, Name: normalizeName(name)}})
	}

	// merge both scans back into source order
	for i := 1; i < len(matches); i++ {
		for j := i; j > 0 && matches[j].pos < matches[j-1].pos; j-- {
			matches[j], matches[j-1] = matches[j-1], matches[j]
		}
	}

	refs := make([]Reference, 0, len(matches))
	seen := make(map[Reference]bool, len(matches))
	for _, m := range matches {
		if m.ref.Name == "" || seen[m.ref] {
			continue
		}
		seen[m.ref] = true
		refs = append(refs, m.ref)
	}
	return refs
}

// PartialFields returns the names used as bare .Partials.name fields in
// src, in source order, without duplicates or extensions.
func PartialFields(src string) []string {
	src = commentRe.ReplaceAllString(src, "")
	var names []string
	seen := make(map[string]bool)
	for _, m := range bareRe.FindAllStringSubmatch(src, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

func normalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if path.Ext(name) == "" {
		name += ".html"
	}
	return name
}

// refCache memoizes ParseReferences by template source hash. Templates that
// do not change between dev rebuilds are parsed once.
type refCache struct {
	mu      sync.RWMutex
	entries map[uint64][]Reference
}

func newRefCache() *refCache {
	return &refCache{entries: make(map[uint64][]Reference)}
}

func (c *refCache) parse(src []byte) []Reference {
	key := xxhash.Sum64(src)

	c.mu.RLock()
	refs, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return refs
	}

	refs = ParseReferences(string(src))

	c.mu.Lock()
	c.entries[key] = refs
	c.mu.Unlock()
	return refs
}

func (c *refCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

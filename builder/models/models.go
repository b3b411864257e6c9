// defines the page type shared by the loader, the ISG engine and the renderer
package models

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Page is one content source as produced by the content loader.
type Page struct {
	// SourcePath is the absolute path of the markdown source.
	SourcePath string
	// RelPath is SourcePath relative to the source root, slash separated.
	RelPath string
	// OutputPath is the site-relative output path, e.g. /blog/post.html.
	// It is the manifest key for the page.
	OutputPath string
	// Content is the raw body with the front matter block removed.
	Content     string
	FrontMatter map[string]interface{}
}

// dateLayouts are the formats accepted for publishedAt/date values that
// arrive as strings from the YAML decoder.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Title returns the front matter title.
func (p *Page) Title() string {
	return p.str("title")
}

// Layout returns the explicit layout named in front matter, or "".
func (p *Page) Layout() string {
	return strings.TrimSpace(p.str("layout"))
}

// Tags returns the invalidation tags of the page.
func (p *Page) Tags() []string {
	v, ok := p.FrontMatter["tags"]
	if !ok || v == nil {
		return []string{}
	}
	switch t := v.(type) {
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	case string:
		var out []string
		for _, part := range strings.Split(t, ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
		if out == nil {
			return []string{}
		}
		return out
	}
	return []string{}
}

// PublishedAt returns publishedAt, falling back to date.
func (p *Page) PublishedAt() *time.Time {
	for _, key := range []string{"publishedAt", "date"} {
		if t, ok := parseTime(p.FrontMatter[key]); ok {
			return &t
		}
	}
	return nil
}

// IsIndex reports whether the page is a collection index.
func (p *Page) IsIndex() bool {
	if b, ok := p.FrontMatter["index"].(bool); ok {
		return b
	}
	base := strings.TrimSuffix(filepath.Base(p.SourcePath), filepath.Ext(p.SourcePath))
	return base == "index" || base == "_index"
}

// Draft reports whether the page is marked as a draft.
func (p *Page) Draft() bool {
	b, _ := p.FrontMatter["draft"].(bool)
	return b
}

// Order returns the front matter order, 0 when absent.
func (p *Page) Order() int {
	n, _ := toInt(p.FrontMatter["order"])
	return n
}

// TTLOverride returns a per-page ttlSeconds when present.
func (p *Page) TTLOverride() (int, bool) {
	return toInt(p.FrontMatter["ttlSeconds"])
}

// MaxAgeCapDays returns a per-page maxAgeCapDays when present.
func (p *Page) MaxAgeCapDays() (int, bool) {
	return toInt(p.FrontMatter["maxAgeCapDays"])
}

func (p *Page) str(key string) string {
	if v, ok := p.FrontMatter[key]; ok && v != nil {
		return fmt.Sprintf("%v", v)
	}
	return ""
}

func parseTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t != nil && !t.IsZero() {
			return *t, true
		}
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}

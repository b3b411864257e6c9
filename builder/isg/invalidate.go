package isg

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/ianchak/stati-sub002/builder/cache"
)

// QueryKind selects how an invalidation query matches entries.
type QueryKind int

const (
	QueryTag QueryKind = iota
	QueryPath
	QueryGlob
	QueryAge
)

// Query removes matching entries from a manifest so the next build
// re-renders them.
//
//	tag:<t>                          entries tagged t
//	path:<p> or /<p>                 entry at p, or under p when p ends in /
//	a glob such as /blog/*.html      entries whose path matches
//	age:<N> days|weeks|months|years  entries rendered longer ago than N units
type Query struct {
	Kind  QueryKind
	Value string
	Age   time.Duration
}

// ParseQuery parses one invalidation query.
func ParseQuery(s string) (Query, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return Query{}, fmt.Errorf("empty invalidation query")
	case strings.HasPrefix(s, "tag:"):
		tag := strings.TrimSpace(strings.TrimPrefix(s, "tag:"))
		if tag == "" {
			return Query{}, fmt.Errorf("invalid query %q: missing tag", s)
		}
		return Query{Kind: QueryTag, Value: tag}, nil
	case strings.HasPrefix(s, "age:"):
		d, err := parseAge(strings.TrimPrefix(s, "age:"))
		if err != nil {
			return Query{}, fmt.Errorf("invalid query %q: %w", s, err)
		}
		return Query{Kind: QueryAge, Value: s, Age: d}, nil
	}

	p := strings.TrimPrefix(s, "path:")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if strings.ContainsAny(p, "*?[") {
		if _, err := path.Match(p, ""); err != nil {
			return Query{}, fmt.Errorf("invalid query %q: %w", s, err)
		}
		return Query{Kind: QueryGlob, Value: p}, nil
	}
	return Query{Kind: QueryPath, Value: p}, nil
}

var ageUnits = map[string]time.Duration{
	"day": day, "days": day, "d": day,
	"week": 7 * day, "weeks": 7 * day, "w": 7 * day,
	"month": 30 * day, "months": 30 * day,
	"year": 365 * day, "years": 365 * day, "y": 365 * day,
}

func parseAge(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("age must start with a positive number")
	}
	unit, ok := ageUnits[strings.ToLower(strings.TrimSpace(s[i:]))]
	if !ok {
		return 0, fmt.Errorf("unknown age unit %q", strings.TrimSpace(s[i:]))
	}
	return time.Duration(n) * unit, nil
}

// Matches reports whether entry is selected by q at now.
func (q Query) Matches(entry *cache.CacheEntry, now time.Time) bool {
	switch q.Kind {
	case QueryTag:
		return entry.HasTag(q.Value)
	case QueryPath:
		if strings.HasSuffix(q.Value, "/") {
			return strings.HasPrefix(entry.Path, q.Value)
		}
		return entry.Path == q.Value
	case QueryGlob:
		ok, _ := path.Match(q.Value, entry.Path)
		return ok
	case QueryAge:
		return now.Sub(entry.RenderedAt) > q.Age
	}
	return false
}

// Invalidate deletes every entry matched by any query and returns the
// removed paths in sorted order.
func Invalidate(m *cache.Manifest, queries []Query, now time.Time) []string {
	var removed []string
	for _, entry := range m.Entries() {
		for _, q := range queries {
			if q.Matches(entry, now) {
				m.Delete(entry.Path)
				removed = append(removed, entry.Path)
				break
			}
		}
	}
	return removed
}

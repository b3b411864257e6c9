package config

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// ISGConfig controls incremental static generation.
//
// A page of age A days (since publishedAt) uses the first aging rule with
// A <= UntilDays; pages older than every rule use the last rule. Pages
// without a publish date, or configs without rules, use TTLSeconds.
// MaxAgeCapDays > 0 freezes pages older than the cap.
type ISGConfig struct {
	Enabled       bool        `yaml:"enabled"`
	TTLSeconds    int         `yaml:"ttlSeconds"`
	MaxAgeCapDays int         `yaml:"maxAgeCapDays"`
	Aging         []AgingRule `yaml:"aging"`
}

type AgingRule struct {
	UntilDays  int `yaml:"untilDays"`
	TTLSeconds int `yaml:"ttlSeconds"`
}

// Fingerprint identifies the settings that change how cache entries are
// produced. Manifests written under a different fingerprint are discarded.
func (c ISGConfig) Fingerprint() string {
	h := blake3.New()
	_, _ = fmt.Fprintf(h, "ttl=%d;cap=%d;", c.TTLSeconds, c.MaxAgeCapDays)
	for _, r := range c.Aging {
		_, _ = fmt.Fprintf(h, "rule=%d:%d;", r.UntilDays, r.TTLSeconds)
	}
	return "blake3-" + hex.EncodeToString(h.Sum(nil)[:16])
}

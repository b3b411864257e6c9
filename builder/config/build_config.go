package config

import (
	"runtime"
	"sort"
	"time"
)

const (
	MaxWorkers = 256

	DefaultTTLSeconds    = 3600
	DefaultMaxAgeCapDays = 365
)

// Default returns the configuration used when no stati.yaml exists.
func Default() *Config {
	return &Config{
		SrcDir:   "site",
		OutDir:   "dist",
		CacheDir: ".stati",

		Workers: runtime.NumCPU(),

		ISG: ISGConfig{
			Enabled:       true,
			TTLSeconds:    DefaultTTLSeconds,
			MaxAgeCapDays: DefaultMaxAgeCapDays,
		},
		Lock: LockConfig{
			Timeout:      30 * time.Second,
			PollInterval: 100 * time.Millisecond,
		},
		Watch: WatchConfig{
			Debounce: 300 * time.Millisecond,
		},
	}
}

// validate ensures configuration values are within reasonable bounds
func (c *Config) validate() {
	// Workers
	if c.Workers < 1 {
		c.Workers = runtime.NumCPU()
	}
	if c.Workers > MaxWorkers {
		c.Workers = MaxWorkers
	}

	// ISG
	if c.ISG.TTLSeconds < 0 {
		c.ISG.TTLSeconds = 0
	}
	if c.ISG.MaxAgeCapDays < 0 {
		c.ISG.MaxAgeCapDays = 0
	}
	rules := c.ISG.Aging[:0]
	for _, r := range c.ISG.Aging {
		if r.UntilDays < 0 || r.TTLSeconds < 0 {
			continue
		}
		rules = append(rules, r)
	}
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].UntilDays < rules[j].UntilDays
	})
	c.ISG.Aging = rules

	// Timeouts
	if c.Lock.Timeout <= 0 {
		c.Lock.Timeout = 30 * time.Second
	}
	if c.Lock.PollInterval < 10*time.Millisecond {
		c.Lock.PollInterval = 10 * time.Millisecond
	}
	if c.Lock.PollInterval > c.Lock.Timeout {
		c.Lock.PollInterval = c.Lock.Timeout
	}
	if c.Watch.Debounce < 10*time.Millisecond {
		c.Watch.Debounce = 10 * time.Millisecond
	}
	if c.Watch.Debounce > 5*time.Second {
		c.Watch.Debounce = 5 * time.Second
	}
}

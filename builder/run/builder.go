package run

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/afero"

	"github.com/ianchak/stati-sub002/builder/cache"
	"github.com/ianchak/stati-sub002/builder/config"
	"github.com/ianchak/stati-sub002/builder/content"
	"github.com/ianchak/stati-sub002/builder/deps"
	"github.com/ianchak/stati-sub002/builder/isg"
	"github.com/ianchak/stati-sub002/builder/lock"
	"github.com/ianchak/stati-sub002/builder/renderer"
	"github.com/ianchak/stati-sub002/builder/utils"
)

// Builder maintains the state shared by successive builds of one site. The
// tracker's parse cache survives between builds, which keeps dev rebuilds
// cheap.
type Builder struct {
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
	now    func() time.Time

	SourceFs afero.Fs
	DestFs   afero.Fs
	CacheFs  afero.Fs

	tracker *deps.Tracker
	engine  *isg.Engine
	loader  *content.Loader
	rnd     *renderer.Renderer
	store   *cache.Store
	lock    *lock.Manager

	historyKeep int
}

type Option func(*Builder)

// WithFilesystems replaces the OS filesystems for sources, output and the
// manifest. The lock and the history database always live on disk.
func WithFilesystems(src, dest, cacheFs afero.Fs) Option {
	return func(b *Builder) {
		b.SourceFs, b.DestFs, b.CacheFs = src, dest, cacheFs
	}
}

// WithClock sets the time source used for decisions and cache entries.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// WithOutput sets where progress lines are printed.
func WithOutput(w io.Writer) Option {
	return func(b *Builder) { b.out = w }
}

// WithHistoryKeep sets how many build records are retained; 0 disables
// the history database.
func WithHistoryKeep(n int) Option {
	return func(b *Builder) { b.historyKeep = n }
}

// NewBuilder initializes a site builder for cfg.
func NewBuilder(cfg *config.Config, logger *slog.Logger, opts ...Option) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Builder{
		cfg:         cfg,
		logger:      logger,
		out:         os.Stdout,
		now:         time.Now,
		SourceFs:    afero.NewOsFs(),
		DestFs:      afero.NewOsFs(),
		CacheFs:     afero.NewOsFs(),
		historyKeep: cache.DefaultHistoryKeep,
	}
	for _, opt := range opts {
		opt(b)
	}

	b.tracker = deps.NewTracker(b.SourceFs, cfg.SrcDir, logger)
	b.engine = isg.NewEngine(b.tracker, utils.NewFileHasher(b.SourceFs, logger), cfg.ISG, logger)
	b.loader = content.NewLoader(b.SourceFs, cfg.SrcDir, cfg.IncludeDrafts, logger)
	b.rnd = renderer.New(b.SourceFs, b.DestFs, b.tracker, renderer.Options{
		OutDir:      cfg.OutDir,
		BaseURL:     cfg.BaseURL,
		Compress:    cfg.Compress,
		Precompress: cfg.Precompress,
	}, logger)
	b.store = cache.NewStore(b.CacheFs, cfg.CacheDir, logger)
	b.lock = lock.NewManager(cfg.CacheDir, logger)
	return b
}

// Config returns the builder's configuration
func (b *Builder) Config() *config.Config {
	return b.cfg
}

// Lock returns the build lock guarding the cache directory.
func (b *Builder) Lock() *lock.Manager {
	return b.lock
}

// Store returns the manifest store.
func (b *Builder) Store() *cache.Store {
	return b.store
}

// LockOptions returns the build lock settings from the config and flags.
func (b *Builder) LockOptions() lock.Options {
	return lock.Options{
		Force:        b.cfg.ForceLock,
		Timeout:      b.cfg.Lock.Timeout,
		PollInterval: b.cfg.Lock.PollInterval,
	}
}

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ianchak/stati-sub002/builder/cache"
	"github.com/ianchak/stati-sub002/builder/isg"
)

func (c *CLI) newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the ISG cache",
	}
	cmd.AddCommand(c.newCacheStatsCmd())
	cmd.AddCommand(c.newCacheInspectCmd())
	cmd.AddCommand(c.newCacheInvalidateCmd())
	cmd.AddCommand(c.newCacheClearCmd())
	return cmd
}

func (c *CLI) newCacheStatsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show manifest statistics and recent builds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			b := c.newBuilder(cfg)
			now := time.Now()

			fmt.Fprintln(c.out, "📊 Cache Statistics")
			fmt.Fprintln(c.out, "════════════════════════════════════════")
			fmt.Fprintf(c.out, "Manifest:        %s\n", b.Store().Path())

			manifest, ok := b.Manifest()
			if !ok {
				fmt.Fprintln(c.out, "Entries:         0 (no manifest)")
			} else {
				var frozen, expired int
				for _, p := range manifest.Paths() {
					entry, _ := manifest.Get(p)
					switch {
					case isg.IsFrozen(entry, now):
						frozen++
					case !now.Before(isg.NextRebuildAt(entry)):
						expired++
					}
				}
				fmt.Fprintf(c.out, "Version:         %d\n", manifest.Version)
				fmt.Fprintf(c.out, "Config Hash:     %s\n", manifest.ConfigHash)
				fmt.Fprintf(c.out, "Entries:         %d\n", manifest.Len())
				fmt.Fprintf(c.out, "Frozen:          %d\n", frozen)
				fmt.Fprintf(c.out, "Expired:         %d\n", expired)
				if manifest.ConfigHash != "" && manifest.ConfigHash != cfg.ISG.Fingerprint() {
					fmt.Fprintln(c.out, "⚠️  ISG configuration changed since the last build; the next build is a full rebuild")
				}
			}

			if limit <= 0 {
				return nil
			}
			if _, err := os.Stat(filepath.Join(cfg.CacheDir, cache.HistoryFile)); err != nil {
				return nil
			}
			h, err := cache.OpenHistory(cfg.CacheDir, time.Second)
			if err != nil {
				return err
			}
			defer func() { _ = h.Close() }()

			records, err := h.Recent(limit)
			if err != nil {
				return fmt.Errorf("failed to read build history: %w", err)
			}
			fmt.Fprintln(c.out, "\n⚡ Recent Builds")
			fmt.Fprintln(c.out, "────────────────────────────────────────")
			for _, r := range records {
				status := "✅"
				if len(r.Errors) > 0 {
					status = "❌"
				}
				forced := ""
				if r.Forced {
					forced = " forced"
				}
				fmt.Fprintf(c.out, "%s %s %s  %d pages, %d rebuilt, %d cached, %d frozen, %d pruned in %v%s\n",
					status, r.StartedAt.Local().Format("2006-01-02 15:04:05"), shortID(r.ID),
					r.Pages, r.Rebuilt, r.Cached, r.Frozen, r.Pruned, r.Duration.Round(time.Millisecond), forced)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of recent builds to show")
	return cmd
}

func (c *CLI) newCacheInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <path>",
		Short: "Show the cache entry for an output path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			manifest, ok := c.newBuilder(cfg).Manifest()
			if !ok {
				return errors.New("no cache manifest; run `stati build` first")
			}

			path := args[0]
			if !strings.HasPrefix(path, "/") {
				path = "/" + path
			}
			entry, ok := manifest.Get(path)
			if !ok {
				return fmt.Errorf("no cache entry found for: %s", path)
			}

			now := time.Now()
			fmt.Fprintln(c.out, "📄 Cache Entry")
			fmt.Fprintln(c.out, "════════════════════════════════════════")
			fmt.Fprintf(c.out, "Path:          %s\n", entry.Path)
			fmt.Fprintf(c.out, "Inputs Hash:   %s\n", truncateHash(entry.InputsHash))
			fmt.Fprintf(c.out, "Rendered At:   %s\n", entry.RenderedAt.Format(time.RFC3339))
			fmt.Fprintf(c.out, "TTL:           %v\n", entry.TTL())
			fmt.Fprintf(c.out, "Next Rebuild:  %s\n", isg.NextRebuildAt(entry).Format(time.RFC3339))
			if entry.PublishedAt != nil {
				fmt.Fprintf(c.out, "Published At:  %s\n", entry.PublishedAt.Format(time.RFC3339))
			}
			if entry.MaxAgeCapDays != nil {
				fmt.Fprintf(c.out, "Max Age Cap:   %d days\n", *entry.MaxAgeCapDays)
			}
			fmt.Fprintf(c.out, "Frozen:        %v\n", isg.IsFrozen(entry, now))
			fmt.Fprintf(c.out, "Tags:          %v\n", entry.Tags)
			fmt.Fprintf(c.out, "Deps:          %d\n", len(entry.Deps))
			for _, d := range entry.Deps {
				fmt.Fprintf(c.out, "  - %s\n", d)
			}
			return nil
		},
	}
}

func (c *CLI) newCacheInvalidateCmd() *cobra.Command {
	var forceLock bool
	cmd := &cobra.Command{
		Use:   "invalidate <query>...",
		Short: "Drop matching entries so the next build re-renders them",
		Long: `Drop matching cache entries. Queries:

  tag:<tag>                 entries tagged <tag>
  path:<path> or /<path>    the entry at <path>, or under it when it ends in /
  /blog/*.html              entries matching a glob
  age:<N><unit>             entries rendered more than N days|weeks|months|years ago`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queries := make([]isg.Query, 0, len(args))
			for _, a := range args {
				q, err := isg.ParseQuery(a)
				if err != nil {
					return err
				}
				queries = append(queries, q)
			}

			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			cfg.ForceLock = forceLock

			removed, err := c.newBuilder(cfg).Invalidate(cmd.Context(), queries)
			if err != nil {
				return err
			}
			if len(removed) == 0 {
				fmt.Fprintln(c.out, "No cache entries matched")
				return nil
			}
			for _, p := range removed {
				fmt.Fprintf(c.out, "   🗑️  %s\n", p)
			}
			fmt.Fprintf(c.out, "✅ Invalidated %d cache entr%s\n", len(removed), plural(len(removed), "y", "ies"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&forceLock, "force-lock", false, "Take over the build lock even if another build holds it")
	return cmd
}

func (c *CLI) newCacheClearCmd() *cobra.Command {
	var forceLock bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the cache manifest; the next build renders every page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			cfg.ForceLock = forceLock

			fmt.Fprintln(c.out, "🗑️  Clearing cache manifest...")
			if err := c.newBuilder(cfg).ClearCache(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "✅ Cache cleared. Run 'stati build' to rebuild.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&forceLock, "force-lock", false, "Take over the build lock even if another build holds it")
	return cmd
}

func truncateHash(hash string) string {
	if len(hash) > 16 {
		return hash[:8] + "..." + hash[len(hash)-8:]
	}
	return hash
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

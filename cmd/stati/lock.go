package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ianchak/stati-sub002/builder/lock"
)

func (c *CLI) newLockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Inspect or clear the build and dev-server locks",
	}
	cmd.AddCommand(c.newLockStatusCmd())
	cmd.AddCommand(c.newLockUnlockCmd())
	return cmd
}

func (c *CLI) locks(cacheDir string) []*lock.Manager {
	return []*lock.Manager{
		lock.NewManager(cacheDir, c.logger),
		lock.NewDevServerLock(cacheDir, c.logger).Manager,
	}
}

func (c *CLI) newLockStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show who holds the locks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			host, _ := os.Hostname()

			for _, m := range c.locks(cfg.CacheDir) {
				info, ok := m.Info()
				if !ok {
					if _, err := os.Stat(m.Path()); err == nil {
						fmt.Fprintf(c.out, "⚠️  %s: malformed, reclaimed by the next acquirer\n", m.Path())
						continue
					}
					fmt.Fprintf(c.out, "🔓 %s: free\n", m.Path())
					continue
				}

				state := "held"
				switch {
				case info.Hostname != host:
					state = "held on another host"
				case !m.Alive(info):
					state = "stale (holder not running)"
				}
				fmt.Fprintf(c.out, "🔒 %s: %s\n", m.Path(), state)
				fmt.Fprintf(c.out, "   PID:       %d\n", info.PID)
				fmt.Fprintf(c.out, "   Host:      %s\n", info.Hostname)
				fmt.Fprintf(c.out, "   Since:     %s (%v ago)\n", info.Timestamp.Local().Format(time.RFC3339),
					time.Since(info.Timestamp).Round(time.Second))
			}
			return nil
		},
	}
}

func (c *CLI) newLockUnlockCmd() *cobra.Command {
	var (
		force bool
		dev   bool
	)
	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Remove a stale build lock (or the dev-server lock with --dev)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			m := lock.NewManager(cfg.CacheDir, c.logger)
			if dev {
				m = lock.NewDevServerLock(cfg.CacheDir, c.logger).Manager
			}

			info, removed, err := m.Clear(force)
			if err != nil {
				return fmt.Errorf("%w (use --force to remove it anyway)", err)
			}
			if !removed {
				fmt.Fprintf(c.out, "🔓 %s is not locked\n", m.Path())
				return nil
			}
			fmt.Fprintf(c.out, "✅ Removed lock held by pid %d on %s\n", info.PID, info.Hostname)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Remove the lock even if its holder is running")
	cmd.Flags().BoolVar(&dev, "dev", false, "Operate on the dev-server lock")
	return cmd
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type buildFlags struct {
	force     bool
	clean     bool
	forceLock bool
	drafts    bool
	verbose   bool
}

func (c *CLI) newBuildCmd() *cobra.Command {
	var f buildFlags
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the site, re-rendering only pages whose inputs changed or expired",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			cfg.Force = f.force
			cfg.Clean = f.clean
			cfg.ForceLock = f.forceLock
			if f.drafts {
				cfg.IncludeDrafts = true
			}

			res, err := c.newBuilder(cfg).Build(cmd.Context())
			if res != nil {
				res.Metrics.Print(c.out)
				if f.verbose {
					if summary := res.Metrics.ReasonSummary(); summary != "" {
						fmt.Fprintf(c.out, "   Reasons: %s\n", summary)
					}
					for _, p := range res.Rebuilt {
						fmt.Fprintf(c.out, "   ✏️  %s\n", p)
					}
					for _, p := range res.Pruned {
						fmt.Fprintf(c.out, "   🗑️  %s\n", p)
					}
				}
			}
			return err
		},
	}
	cmd.Flags().BoolVarP(&f.force, "force", "f", false, "Rebuild every page, bypassing the cache")
	cmd.Flags().BoolVar(&f.clean, "clean", false, "Discard the cache manifest before building")
	cmd.Flags().BoolVar(&f.forceLock, "force-lock", false, "Take over the build lock even if another build holds it")
	cmd.Flags().BoolVar(&f.drafts, "drafts", false, "Include draft pages")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "List rebuilt and pruned pages")
	return cmd
}

package main

import (
	"github.com/spf13/cobra"

	"github.com/ianchak/stati-sub002/internal/clean"
)

func (c *CLI) newCleanCmd() *cobra.Command {
	var cleanCache bool
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Delete the output directory (and the cache with --cache)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			return clean.Run(cmd.Context(), c.newBuilder(cfg), cleanCache, c.out)
		},
	}
	cmd.Flags().BoolVar(&cleanCache, "cache", false, "Also delete the cache manifest and build history")
	return cmd
}

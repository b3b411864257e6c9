package main

import (
	"github.com/spf13/cobra"

	"github.com/ianchak/stati-sub002/internal/dev"
)

func (c *CLI) newDevCmd() *cobra.Command {
	var (
		addr      string
		forceLock bool
		drafts    bool
	)
	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Build, then rebuild on every source change and serve the output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			cfg.ForceLock = forceLock
			if drafts {
				cfg.IncludeDrafts = true
			}

			loop := dev.New(c.newBuilder(cfg), dev.Options{Addr: addr, Out: c.out}, c.logger)
			return loop.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:2604", "Preview server address, empty to disable")
	cmd.Flags().BoolVar(&forceLock, "force-lock", false, "Take over the dev-server and build locks")
	cmd.Flags().BoolVar(&drafts, "drafts", false, "Include draft pages")
	return cmd
}

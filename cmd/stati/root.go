package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ianchak/stati-sub002/builder/config"
	buildrun "github.com/ianchak/stati-sub002/builder/run"
	"github.com/ianchak/stati-sub002/internal/version"
)

// CLI represents the command line interface for stati.
type CLI struct {
	rootCmd *cobra.Command
	out     io.Writer
	errOut  io.Writer
	logger  *slog.Logger

	configPath string
	logLevel   string
	logFormat  string
}

// New creates the command tree. Progress goes to out, logs to errOut.
func New(out, errOut io.Writer) *CLI {
	c := &CLI{out: out, errOut: errOut, logger: slog.Default()}

	rootCmd := &cobra.Command{
		Use:           "stati",
		Short:         "Incremental static site builder",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.String(),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(c.errOut, c.logLevel, c.logFormat)
			if err != nil {
				return err
			}
			c.logger = logger
			slog.SetDefault(logger)
			return nil
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "Path to stati.yaml (default: ./stati.yaml)")
	rootCmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&c.logFormat, "log-format", "text", "Log format (text, json)")

	c.rootCmd = rootCmd
	rootCmd.AddCommand(c.newBuildCmd())
	rootCmd.AddCommand(c.newDevCmd())
	rootCmd.AddCommand(c.newCleanCmd())
	rootCmd.AddCommand(c.newCacheCmd())
	rootCmd.AddCommand(c.newLockCmd())
	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

func (c *CLI) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Source != "" {
		c.logger.Debug("loaded config", "path", cfg.Source)
	}
	return cfg, nil
}

func (c *CLI) newBuilder(cfg *config.Config) *buildrun.Builder {
	return buildrun.NewBuilder(cfg, c.logger, buildrun.WithOutput(c.out))
}

// Command stati builds a static site incrementally.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ianchak/stati-sub002/builder/deps"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cli := New(os.Stdout, os.Stderr)
	cli.SetArgs(args)

	if err := cli.Execute(ctx); err != nil {
		var cycle *deps.CircularDependencyError
		switch {
		case errors.Is(err, context.Canceled):
			return 130
		case errors.As(err, &cycle):
			fmt.Fprintf(os.Stderr, "❌ %v\n", cycle)
		default:
			fmt.Fprintf(os.Stderr, "❌ Error: %v\n", err)
		}
		return 1
	}
	return 0
}

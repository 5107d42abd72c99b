package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/eshaffer321/reconcile-backend/internal/cli"
	"github.com/eshaffer321/reconcile-backend/internal/infrastructure/config"
)

func main() {
	flags := cli.ParseBatchFlags()
	if len(flags.Feeds) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: reconcile-batch [-config config.yaml] [-dry-run] [-actor name] feed.json [feed.json ...]")
		os.Exit(2)
	}

	cfg := config.LoadOrEnvWithPath(flags.ConfigPath)

	// Ctrl-C stops matching between bank records
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.RunBatch(ctx, cfg, flags, os.Stdout); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "Interrupted; partial results were saved.")
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/eshaffer321/reconcile-backend/internal/cli"
	"github.com/eshaffer321/reconcile-backend/internal/infrastructure/config"
)

func main() {
	flags := cli.ParseServeFlags()
	cfg := config.LoadOrEnvWithPath(flags.ConfigPath)

	if err := cli.RunServe(cfg, flags); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

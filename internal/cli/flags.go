package cli

import (
	"flag"
	"os"
	"strings"
)

// BatchFlags are the flags for a one-shot reconciliation run
type BatchFlags struct {
	ConfigPath string
	Feeds      []string
	Actor      string
	DryRun     bool
	Verbose    bool
}

// ParseBatchFlags parses batch flags from command line.
// Feed files are given as positional arguments.
func ParseBatchFlags() *BatchFlags {
	flags, _ := parseBatchFlags(flag.CommandLine, os.Args[1:])
	return flags
}

func parseBatchFlags(fs *flag.FlagSet, args []string) (*BatchFlags, error) {
	flags := &BatchFlags{}
	fs.StringVar(&flags.ConfigPath, "config", "config.yaml", "Configuration file path")
	fs.StringVar(&flags.Actor, "actor", "", "Actor recorded on auto-committed matches (default from config)")
	fs.BoolVar(&flags.DryRun, "dry-run", false, "Match in memory without writing to the database")
	fs.BoolVar(&flags.Verbose, "verbose", false, "Verbose output")
	if err := fs.Parse(args); err != nil {
		return flags, err
	}
	for _, f := range fs.Args() {
		if f = strings.TrimSpace(f); f != "" {
			flags.Feeds = append(flags.Feeds, f)
		}
	}
	return flags, nil
}

// ServeFlags holds the CLI flags for the serve command.
type ServeFlags struct {
	ConfigPath string
	Port       int
	Verbose    bool
}

// ParseServeFlags parses command line flags for the serve command.
func ParseServeFlags() *ServeFlags {
	flags := &ServeFlags{}
	flag.StringVar(&flags.ConfigPath, "config", "config.yaml", "Configuration file path")
	flag.IntVar(&flags.Port, "port", 0, "Port to listen on (default from config)")
	flag.BoolVar(&flags.Verbose, "verbose", false, "Verbose output")
	flag.Parse()
	return flags
}

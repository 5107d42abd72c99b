package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/eshaffer321/reconcile-backend/internal/application/service"
	"github.com/eshaffer321/reconcile-backend/internal/infrastructure/config"
	"github.com/eshaffer321/reconcile-backend/internal/infrastructure/logging"
	"github.com/eshaffer321/reconcile-backend/internal/infrastructure/storage"
)

// RunBatch loads the feed files, runs one auto-match pass and prints the
// result. Cancelling ctx stops the pass between bank records; whatever was
// committed before that is kept.
func RunBatch(ctx context.Context, cfg *config.Config, flags *BatchFlags, out io.Writer) error {
	if len(flags.Feeds) == 0 {
		return fmt.Errorf("no feed files given")
	}

	loggingCfg := cfg.Observability.Logging
	if flags.Verbose {
		loggingCfg.Level = "debug"
	}
	logger := logging.NewLoggerWithSystem(loggingCfg, "batch")

	if flags.Actor != "" {
		cfg.Matching.AutoMatchActor = flags.Actor
	}

	var repo storage.Repository
	if !flags.DryRun {
		store, err := storage.NewStorageContext(ctx, cfg.Storage.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		repo = store
	}

	ws := service.NewWorkspace(cfg, repo, service.WithLogger(logger))
	defer func() { _ = ws.Close() }()

	if err := ws.Load(ctx); err != nil {
		return err
	}

	PrintHeader(out, flags.Feeds, flags.DryRun)

	for _, path := range flags.Feeds {
		feed, err := service.ReadFeedFile(path)
		if err != nil {
			return err
		}
		if err := ws.LoadFeed(feed); err != nil {
			return fmt.Errorf("failed to load feed %s: %w", path, err)
		}
	}

	report, err := ws.AutoMatch(ctx)
	if report != nil {
		PrintReport(out, report)
	}
	if err != nil {
		return err
	}

	stats, err := ws.Stats(ctx)
	if err != nil {
		logger.Warn("failed to read stats", "error", err)
	}
	PrintSummary(out, ws.Discrepancies(), stats)

	if violations := ws.CheckInvariants(); len(violations) > 0 {
		for _, v := range violations {
			logger.Error("invariant violated", "detail", v)
		}
		return fmt.Errorf("%d invariant violations", len(violations))
	}

	if report.Partial {
		return ctx.Err()
	}
	return nil
}

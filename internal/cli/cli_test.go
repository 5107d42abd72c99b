package cli

import (
	"bytes"
	"context"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/reconcile-backend/internal/infrastructure/config"
	"github.com/eshaffer321/reconcile-backend/internal/infrastructure/storage"
)

const testFeed = `{
  "counterparties": [
    {"id": "C", "canonical_name": "Acme Trading"},
    {"id": "Y", "canonical_name": "Globex Corp"}
  ],
  "bank_records": [
    {"id": "B1", "amount": "1500", "date": "2024-03-05T00:00:00Z", "raw_counterparty": "ACME TRADING", "direction": "credit"},
    {"id": "B2", "amount": "600", "date": "2024-03-06T00:00:00Z", "raw_counterparty": "Unknown Payer", "direction": "credit"}
  ],
  "obligations": [
    {"id": "O1", "counterparty_id": "C", "total_amount": "1000", "settled_amount": "0", "direction": "credit", "due_date": "2024-03-01T00:00:00Z"},
    {"id": "O2", "counterparty_id": "C", "total_amount": "500", "settled_amount": "0", "direction": "credit", "due_date": "2024-03-03T00:00:00Z"}
  ]
}`

func writeFeed(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feed.json")
	require.NoError(t, os.WriteFile(path, []byte(testFeed), 0644))
	return path
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.LoadFromEnv()
	cfg.Storage.DatabasePath = filepath.Join(t.TempDir(), "batch.db")
	cfg.Matching.AllocationStrategy = "sequential"
	cfg.Observability.Logging.Level = "error"
	return cfg
}

func TestParseBatchFlags(t *testing.T) {
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	flags, err := parseBatchFlags(fs, []string{"-dry-run", "-actor", "nightly", "a.json", "b.json"})
	require.NoError(t, err)

	assert.True(t, flags.DryRun)
	assert.Equal(t, "nightly", flags.Actor)
	assert.Equal(t, "config.yaml", flags.ConfigPath)
	assert.Equal(t, []string{"a.json", "b.json"}, flags.Feeds)
}

func TestRunBatch_PersistsMatches(t *testing.T) {
	cfg := testConfig(t)
	feed := writeFeed(t)

	var out bytes.Buffer
	err := RunBatch(context.Background(), cfg, &BatchFlags{Feeds: []string{feed}, Actor: "nightly"}, &out)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "PRODUCTION mode")
	assert.Contains(t, out.String(), "Matched=1 Queued=0 Unmatched=1 AlreadyMatched=0")
	assert.Contains(t, out.String(), "matched B1 -> O1,O2")
	assert.Contains(t, out.String(), "Unmatched bank records: 1 (total 600.00)")

	store, err := storage.NewStorage(cfg.Storage.DatabasePath)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	matches, err := store.ListMatches(context.Background(), storage.MatchFilters{})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "nightly", matches[0].CreatedBy)
}

func TestRunBatch_SecondRunSeesExistingMatches(t *testing.T) {
	cfg := testConfig(t)
	feed := writeFeed(t)

	require.NoError(t, RunBatch(context.Background(), cfg, &BatchFlags{Feeds: []string{feed}}, &bytes.Buffer{}))

	var out bytes.Buffer
	require.NoError(t, RunBatch(context.Background(), cfg, &BatchFlags{Feeds: []string{feed}}, &out))
	assert.Contains(t, out.String(), "Matched=0 Queued=0 Unmatched=1 AlreadyMatched=1")
	assert.Contains(t, out.String(), "All-Time Stats: Matches=1")
}

func TestRunBatch_DryRunWritesNothing(t *testing.T) {
	cfg := testConfig(t)
	feed := writeFeed(t)

	var out bytes.Buffer
	require.NoError(t, RunBatch(context.Background(), cfg, &BatchFlags{Feeds: []string{feed}, DryRun: true}, &out))
	assert.Contains(t, out.String(), "DRY-RUN mode")
	assert.Contains(t, out.String(), "Matched=1")

	_, err := os.Stat(cfg.Storage.DatabasePath)
	assert.True(t, os.IsNotExist(err))
}

func TestRunBatch_Errors(t *testing.T) {
	cfg := testConfig(t)

	err := RunBatch(context.Background(), cfg, &BatchFlags{DryRun: true}, &bytes.Buffer{})
	assert.Error(t, err)

	err = RunBatch(context.Background(), cfg, &BatchFlags{Feeds: []string{"missing.json"}, DryRun: true}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestRunBatch_Cancelled(t *testing.T) {
	cfg := testConfig(t)
	feed := writeFeed(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := RunBatch(ctx, cfg, &BatchFlags{Feeds: []string{feed}, DryRun: true}, &out)
	assert.ErrorIs(t, err, context.Canceled)
}

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/eshaffer321/reconcile-backend/internal/domain/discrepancy"
	"github.com/eshaffer321/reconcile-backend/internal/domain/matcher"
	"github.com/eshaffer321/reconcile-backend/internal/infrastructure/storage"
)

// PrintHeader prints the application header
func PrintHeader(w io.Writer, feeds []string, dryRun bool) {
	mode := "PRODUCTION"
	if dryRun {
		mode = "DRY-RUN"
	}
	fmt.Fprintf(w, "reconcile-batch (%s mode)\n", mode)
	fmt.Fprintf(w, "Feeds: %s\n\n", strings.Join(feeds, ", "))
}

// PrintReport prints the auto-match result
func PrintReport(w io.Writer, report *matcher.Report) {
	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintf(w, "Auto-match: Matched=%d Queued=%d Unmatched=%d AlreadyMatched=%d\n",
		len(report.Matched),
		len(report.Queued),
		len(report.Unmatched),
		len(report.AlreadyMatched))

	if report.Partial {
		fmt.Fprintln(w, "Run was cancelled before every record was examined.")
	}

	for _, m := range report.Matched {
		fmt.Fprintf(w, "  matched %s -> %s (bank %s, balance %s)\n",
			strings.Join(m.BankRecordIDs, ","),
			strings.Join(m.ObligationIDs, ","),
			m.BankSum.StringFixed(2),
			m.Balance.StringFixed(2))
	}

	if len(report.Queued) > 0 {
		fmt.Fprintln(w, "\nNeeds review:")
		for _, q := range report.Queued {
			fmt.Fprintf(w, "  %s %s (%s)", q.BankRecord.ID, q.BankRecord.Amount.StringFixed(2), q.BankRecord.RawCounterparty)
			if len(q.Candidates) > 0 {
				best := q.Candidates[0]
				fmt.Fprintf(w, " best=%s score=%.2f", best.Obligation.ID, best.Score)
			}
			fmt.Fprintln(w)
		}
	}
}

// PrintSummary prints the discrepancy totals and all-time stats
func PrintSummary(w io.Writer, summary *discrepancy.Summary, stats *storage.Stats) {
	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintf(w, "Unmatched bank records: %d (total %s)\n",
		len(summary.UnmatchedBankRecords), summary.UnmatchedBankTotal.StringFixed(2))
	fmt.Fprintf(w, "Open obligations: %d (outstanding %s)\n",
		len(summary.UnmatchedObligations), summary.OutstandingTotal.StringFixed(2))
	fmt.Fprintf(w, "Open balances: %d (overpaid %s, underpaid %s)\n",
		len(summary.OpenBalances), summary.OverpaidTotal.StringFixed(2), summary.UnderpaidTotal.StringFixed(2))

	for _, ob := range summary.OpenBalances {
		fmt.Fprintf(w, "  %s %s %s: %s\n", ob.Match.ID, ob.Kind, ob.Amount.StringFixed(2), ob.Reason)
	}

	if stats != nil && stats.TotalMatches > 0 {
		fmt.Fprintf(w, "\nAll-Time Stats: Matches=%d Live=%d Reversed=%d Aliases=%d\n",
			stats.TotalMatches,
			stats.LiveMatches,
			stats.ReversedMatches,
			stats.Aliases)
	}

	if summary.Clean() {
		fmt.Fprintln(w, "\nEverything reconciled.")
	}
}

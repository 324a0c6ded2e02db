package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pable/go-val-metrics/internal/model"
	"github.com/pable/go-val-metrics/internal/report"
	"github.com/pable/go-val-metrics/internal/stats"
)

// summaryCmd is the cobra command for displaying a high-level database overview.
var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show a high-level overview of the database",
	Long: `Display counts of stored games and cohort rows, then each cohort's
per-map record.`,
	Args: cobra.NoArgs,
	RunE: runSummary,
}

func runSummary(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	ov, err := db.Overview(ctx)
	if err != nil {
		return fmt.Errorf("get overview: %w", err)
	}
	if ov.Games == 0 {
		fmt.Fprintln(os.Stdout, "No games stored yet. Run 'valmetrics ingest <image>' to add one.")
		return nil
	}
	report.PrintOverview(os.Stdout, ov)

	svc := stats.New(db)
	for _, c := range model.Cohorts {
		maps, err := svc.MapAggregates(ctx, c)
		if err != nil {
			return err
		}
		if len(maps) == 0 {
			continue
		}
		fmt.Fprintf(os.Stdout, "\n--- %s maps ---\n\n", c)
		report.PrintMapAggregates(os.Stdout, maps)
	}
	return nil
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pable/go-val-metrics/internal/model"
	"github.com/pable/go-val-metrics/internal/report"
	"github.com/pable/go-val-metrics/internal/stats"
)

var (
	statsPlayersOnly bool
	statsMapsOnly    bool
)

var statsCmd = &cobra.Command{
	Use:   "stats <male|female>",
	Short: "Show per-player averages and per-map records for a cohort",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsPlayersOnly, "players", false, "only print the player table")
	statsCmd.Flags().BoolVar(&statsMapsOnly, "maps", false, "only print the map table")
}

func runStats(cmd *cobra.Command, args []string) error {
	c, err := model.ParseCohort(args[0])
	if err != nil {
		return err
	}
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	rep, err := stats.New(db).Cohort(cmd.Context(), c)
	if err != nil {
		return err
	}
	if len(rep.Players) == 0 && len(rep.Maps) == 0 {
		fmt.Fprintf(os.Stdout, "No %s games stored yet. Run 'valmetrics ingest <image>' to add one.\n", c)
		return nil
	}

	if !statsMapsOnly {
		fmt.Fprintf(os.Stdout, "\n--- %s players ---\n\n", c)
		report.PrintPlayerAverages(os.Stdout, rep.Players)
	}
	if !statsPlayersOnly {
		fmt.Fprintf(os.Stdout, "\n--- %s maps ---\n\n", c)
		report.PrintMapAggregates(os.Stdout, rep.Maps)
	}
	return nil
}

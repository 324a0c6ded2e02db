package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pable/go-val-metrics/internal/report"
)

var sqlCmd = &cobra.Command{
	Use:   "sql <query>",
	Short: "Run a raw SQL query against the metrics database",
	Long: `Run an arbitrary SQL query against the metrics database and print results as a table.

Schema overview:
  games(id, map, is_inter_team, winner, team1_rounds, team2_rounds, image_hash, created_at)
  male_team_stats(id, game_id, player_name, map, acs, kills, deaths, assists, econ,
    first_bloods, plants, defuses, wins, losses, round_wins, round_losses)
  female_team_stats(same columns as male_team_stats)
  team_map_stats(team, map, total_wins, total_losses, total_round_wins, total_round_losses)

team_map_stats.team is 'male' or 'female'; a game with no readable map is keyed 'UNKNOWN'.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSQL,
}

func runSQL(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	cols, rows, err := db.QueryRaw(cmd.Context(), query)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("(no rows)")
		return nil
	}

	report.PrintRaw(os.Stdout, cols, rows)
	fmt.Fprintf(os.Stdout, "\n(%d rows)\n", len(rows))
	return nil
}

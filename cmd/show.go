package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pable/go-val-metrics/internal/model"
	"github.com/pable/go-val-metrics/internal/report"
	"github.com/pable/go-val-metrics/internal/storage"
)

var showCmd = &cobra.Command{
	Use:   "show <game-id>",
	Short: "Show a stored game and its player rows",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid game id %q: %w", args[0], err)
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	return showGame(cmd, db, id)
}

func showGame(cmd *cobra.Command, db *storage.DB, id int64) error {
	ctx := cmd.Context()
	game, err := db.GetGame(ctx, id)
	if err != nil {
		return fmt.Errorf("query game: %w", err)
	}
	if game == nil {
		fmt.Fprintf(os.Stderr, "No game with id %d\n", id)
		return nil
	}

	kind := "single-cohort"
	if game.InterCohort {
		kind = "inter-cohort"
	}
	mapName := game.MapName
	if mapName == "" {
		mapName = model.UnknownMap
	}
	fmt.Fprintf(os.Stdout, "\nGame %d  |  Map: %s  |  Score: %d - %d  |  Winner: %s  |  %s  |  %s\n",
		game.ID, mapName, game.FirstRounds, game.SecondRounds, game.Winner, kind,
		game.CreatedAt.Local().Format("2006-01-02 15:04"))

	for _, c := range model.Cohorts {
		rows, err := db.GetPlayerGameStats(ctx, c, id)
		if err != nil {
			return fmt.Errorf("get %s rows: %w", c, err)
		}
		if len(rows) == 0 {
			continue
		}
		report.PrintGameRows(os.Stdout, c, rows)
	}
	return nil
}

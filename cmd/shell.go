package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pable/go-val-metrics/internal/model"
	"github.com/pable/go-val-metrics/internal/report"
	"github.com/pable/go-val-metrics/internal/stats"
	"github.com/pable/go-val-metrics/internal/storage"
)

var (
	cPrompt   = color.New(color.FgCyan, color.Bold)
	cMuted    = color.New(color.Faint)
	cError    = color.New(color.FgRed, color.Bold)
	cWarn     = color.New(color.FgYellow)
	cHeader   = color.New(color.FgCyan, color.Bold)
	cCmd      = color.New(color.FgYellow, color.Bold)
	cGreeting = color.New(color.Bold)
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive REPL session",
	Long:  "Open a persistent session against the database. Type 'help' for available commands.",
	Args:  cobra.NoArgs,
	RunE:  runShell,
}

func runShell(cmd *cobra.Command, _ []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	cGreeting.Println("valmetrics shell")
	cMuted.Println("type 'help' or 'exit'")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		cPrompt.Print("valmetrics")
		cMuted.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		tokens := strings.Fields(line)
		name, args := tokens[0], tokens[1:]

		switch name {
		case "exit", "quit":
			return nil
		case "help":
			shellHelp()
		case "list":
			shellList(cmd, db, args)
		case "show":
			if len(args) != 1 {
				cError.Fprintln(os.Stderr, "usage: show <game-id>")
				continue
			}
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				cError.Fprintf(os.Stderr, "invalid game id %q\n", args[0])
				continue
			}
			if err := showGame(cmd, db, id); err != nil {
				cError.Fprintf(os.Stderr, "error: %v\n", err)
			}
		case "stats":
			if len(args) != 1 {
				cError.Fprintln(os.Stderr, "usage: stats <male|female>")
				continue
			}
			shellStats(cmd, db, args[0])
		case "summary":
			ov, err := db.Overview(cmd.Context())
			if err != nil {
				cError.Fprintf(os.Stderr, "error: %v\n", err)
				continue
			}
			report.PrintOverview(os.Stdout, ov)
		default:
			cWarn.Fprintf(os.Stderr, "unknown command %q, type 'help'\n", name)
		}
	}
	return nil
}

func shellHelp() {
	fmt.Println()
	type entry struct{ cmd, desc string }
	rows := []entry{
		{"list [n]", "list the n most recent games (default 20)"},
		{"show <game-id>", "show a game's player rows"},
		{"stats <male|female>", "player averages and map records for a cohort"},
		{"summary", "store-wide counts"},
		{"help", "show this message"},
		{"exit / quit", "close the session"},
	}
	for _, r := range rows {
		fmt.Print("  ")
		cCmd.Printf("%-24s", r.cmd)
		fmt.Println(r.desc)
	}
	fmt.Println()
}

func shellList(cmd *cobra.Command, db *storage.DB, args []string) {
	limit := 20
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
			limit = n
		}
	}
	games, err := db.ListGames(cmd.Context(), limit)
	if err != nil {
		cError.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}
	if len(games) == 0 {
		cMuted.Println("No games stored yet.")
		return
	}
	report.PrintGames(os.Stdout, games)
}

func shellStats(cmd *cobra.Command, db *storage.DB, arg string) {
	c, err := model.ParseCohort(arg)
	if err != nil {
		cError.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}
	rep, err := stats.New(db).Cohort(cmd.Context(), c)
	if err != nil {
		cError.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}
	if len(rep.Players) == 0 {
		cMuted.Printf("No %s games stored yet.\n", c)
		return
	}
	cHeader.Fprintf(os.Stdout, "\n--- %s players ---\n\n", c)
	report.PrintPlayerAverages(os.Stdout, rep.Players)
	cHeader.Fprintf(os.Stdout, "\n--- %s maps ---\n\n", c)
	report.PrintMapAggregates(os.Stdout, rep.Maps)
}

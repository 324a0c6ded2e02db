// Package report renders scoreboards and cohort stats as terminal tables.
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/pable/go-val-metrics/internal/model"
	"github.com/pable/go-val-metrics/internal/roster"
	"github.com/pable/go-val-metrics/internal/storage"
)

func newTable(w io.Writer) *tablewriter.Table {
	return tablewriter.NewTable(w, tablewriter.WithConfig(tablewriter.Config{
		Row:    tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignRight}},
		Header: tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignCenter}},
	}))
}

func pct(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

func mapLabel(name string) string {
	if name == "" {
		return model.UnknownMap
	}
	return name
}

// PrintMatchHeader prints a one-line summary of an extracted scoreboard.
func PrintMatchHeader(w io.Writer, sb *model.Scoreboard, kind string) {
	fmt.Fprintf(w, "\nMap: %s  |  Score: %d - %d  |  Winner: %s  |  Type: %s\n\n",
		mapLabel(sb.MapName), sb.FirstRounds, sb.SecondRounds, sb.Winner, kind)
}

// PrintScoreboard prints the ten extracted rows with their slot and the
// cohort each player is registered to. Unregistered players show "-".
func PrintScoreboard(w io.Writer, sb *model.Scoreboard, reg *roster.Registry) {
	table := newTable(w)
	table.Header("SLOT", "PLAYER", "COHORT", "ACS", "K", "D", "A", "ECON", "FB", "PLANTS", "DEFUSES")

	first, second := model.SplitScoreboard(sb.Players)
	for _, slot := range []struct {
		side model.Side
		rows model.Roster
	}{{model.SideFirst, first}, {model.SideSecond, second}} {
		for _, p := range slot.rows {
			cohort := "-"
			if reg != nil {
				if c := reg.CohortOf(p.Name); c != model.CohortUnknown {
					cohort = c.String()
				}
			}
			table.Append(
				slot.side.String(),
				p.Name,
				cohort,
				strconv.Itoa(p.ACS),
				strconv.Itoa(p.Kills),
				strconv.Itoa(p.Deaths),
				strconv.Itoa(p.Assists),
				strconv.Itoa(p.Econ),
				strconv.Itoa(p.FirstBloods),
				strconv.Itoa(p.Plants),
				strconv.Itoa(p.Defuses),
			)
		}
	}
	table.Render()
}

// PrintPlayerAverages prints per-player averages and win rates for a cohort.
func PrintPlayerAverages(w io.Writer, aggs []model.PlayerAggregate) {
	table := newTable(w)
	table.Header("PLAYER", "GAMES", "ACS", "K", "D", "A", "ECON", "FB", "PLANTS", "DEFUSES",
		"W", "L", "WIN%", "RW", "RL", "RWIN%")

	for _, a := range aggs {
		table.Append(
			a.Name,
			strconv.Itoa(a.GamesPlayed),
			fmt.Sprintf("%.1f", a.AvgACS),
			fmt.Sprintf("%.1f", a.AvgKills),
			fmt.Sprintf("%.1f", a.AvgDeaths),
			fmt.Sprintf("%.1f", a.AvgAssists),
			fmt.Sprintf("%.1f", a.AvgEcon),
			fmt.Sprintf("%.2f", a.AvgFirstBloods),
			fmt.Sprintf("%.2f", a.AvgPlants),
			fmt.Sprintf("%.2f", a.AvgDefuses),
			strconv.Itoa(a.Wins),
			strconv.Itoa(a.Losses),
			pct(a.WinRate),
			strconv.Itoa(a.RoundWins),
			strconv.Itoa(a.RoundLosses),
			pct(a.RoundWinRate),
		)
	}
	table.Render()
}

// PrintMapAggregates prints a cohort's per-map record.
func PrintMapAggregates(w io.Writer, maps []model.MapAggregate) {
	table := newTable(w)
	table.Header("MAP", "GAMES", "W", "L", "WIN%", "RW", "RL", "RWIN%")

	for _, m := range maps {
		table.Append(
			m.MapName,
			strconv.Itoa(m.GamesPlayed()),
			strconv.Itoa(m.TotalWins),
			strconv.Itoa(m.TotalLosses),
			pct(m.WinRate),
			strconv.Itoa(m.TotalRoundWins),
			strconv.Itoa(m.TotalRoundLosses),
			pct(m.RoundWinRate),
		)
	}
	table.Render()
}

// PrintGames prints stored games, newest first as given.
func PrintGames(w io.Writer, games []model.GameSummary) {
	table := newTable(w)
	table.Header("ID", "MAP", "SCORE", "WINNER", "TYPE", "MALE", "FEMALE", "UPLOADED")

	for _, g := range games {
		kind := "single"
		if g.InterCohort {
			kind = "inter"
		}
		table.Append(
			strconv.FormatInt(g.ID, 10),
			mapLabel(g.MapName),
			fmt.Sprintf("%d-%d", g.FirstRounds, g.SecondRounds),
			g.Winner,
			kind,
			strconv.Itoa(g.MaleRows),
			strconv.Itoa(g.FemaleRows),
			g.CreatedAt.Local().Format("2006-01-02 15:04"),
		)
	}
	table.Render()
}

// PrintGameRows prints the stored rows of one game for one cohort.
func PrintGameRows(w io.Writer, c model.Cohort, rows []model.PlayerGameStat) {
	fmt.Fprintf(w, "\n--- %s ---\n\n", c)
	table := newTable(w)
	table.Header("PLAYER", "ACS", "K", "D", "A", "ECON", "FB", "PLANTS", "DEFUSES", "RESULT", "ROUNDS")

	for _, r := range rows {
		result := "L"
		if r.Wins > 0 {
			result = "W"
		}
		table.Append(
			r.Name,
			strconv.Itoa(r.ACS),
			strconv.Itoa(r.Kills),
			strconv.Itoa(r.Deaths),
			strconv.Itoa(r.Assists),
			strconv.Itoa(r.Econ),
			strconv.Itoa(r.FirstBloods),
			strconv.Itoa(r.Plants),
			strconv.Itoa(r.Defuses),
			result,
			fmt.Sprintf("%d-%d", r.RoundWins, r.RoundLosses),
		)
	}
	table.Render()
}

// PrintOverview prints store-wide counts.
func PrintOverview(w io.Writer, o storage.Overview) {
	fmt.Fprintf(w, "\n=== Database Summary ===\n\n")
	fmt.Fprintf(w, "  Games stored   : %d\n", o.Games)
	fmt.Fprintf(w, "  Inter-cohort   : %d\n", o.InterCohort)
	fmt.Fprintf(w, "  Single-cohort  : %d\n", o.Games-o.InterCohort)
	fmt.Fprintf(w, "  Male rows      : %d  (%d maps)\n", o.MaleRows, o.MaleMaps)
	fmt.Fprintf(w, "  Female rows    : %d  (%d maps)\n", o.FemaleRows, o.FemaleMaps)
}

// PrintRaw prints an arbitrary query result.
func PrintRaw(w io.Writer, cols []string, rows [][]string) {
	table := newTable(w)
	header := make([]any, len(cols))
	for i, c := range cols {
		header[i] = c
	}
	table.Header(header...)
	for _, row := range rows {
		cells := make([]any, len(row))
		for i, v := range row {
			cells[i] = v
		}
		table.Append(cells...)
	}
	table.Render()
}

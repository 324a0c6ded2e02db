package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pable/go-val-metrics/internal/model"
)

// ExportGame is one game with every cohort row recorded for it.
type ExportGame struct {
	ID           int64                  `json:"game_id"`
	MapName      string                 `json:"map,omitempty"`
	Winner       string                 `json:"winner"`
	FirstRounds  int                    `json:"team1_rounds"`
	SecondRounds int                    `json:"team2_rounds"`
	InterCohort  bool                   `json:"is_inter_team"`
	CreatedAt    time.Time              `json:"created_at"`
	Male         []model.PlayerGameStat `json:"male,omitempty"`
	Female       []model.PlayerGameStat `json:"female,omitempty"`
}

// ExportGames returns games created at or after since (all games when since is
// zero), oldest first, with their per-cohort rows attached.
func (db *DB) ExportGames(ctx context.Context, since time.Time) ([]ExportGame, error) {
	rows, err := db.conn.QueryContext(ctx, rebind(db.dialect, `
		SELECT id, map, winner, team1_rounds, team2_rounds, is_inter_team, created_at
		FROM games
		WHERE created_at >= ?
		ORDER BY id`), since)
	if err != nil {
		return nil, err
	}
	var (
		games []ExportGame
		index = map[int64]int{}
	)
	for rows.Next() {
		var (
			g        ExportGame
			mapName  sql.NullString
			interInt int
		)
		if err := rows.Scan(&g.ID, &mapName, &g.Winner, &g.FirstRounds, &g.SecondRounds, &interInt, &g.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		g.MapName = mapName.String
		g.InterCohort = interInt != 0
		index[g.ID] = len(games)
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	if len(games) == 0 {
		return nil, nil
	}

	ids := make([]any, 0, len(games))
	for _, g := range games {
		ids = append(ids, g.ID)
	}
	for _, c := range model.Cohorts {
		stats, err := db.statsForGames(ctx, c, ids)
		if err != nil {
			return nil, fmt.Errorf("export %s rows: %w", c, err)
		}
		for _, s := range stats {
			g := &games[index[s.GameID]]
			if c == model.CohortMale {
				g.Male = append(g.Male, s)
			} else {
				g.Female = append(g.Female, s)
			}
		}
	}
	return games, nil
}

func (db *DB) statsForGames(ctx context.Context, c model.Cohort, ids []any) ([]model.PlayerGameStat, error) {
	rows, err := db.conn.QueryContext(ctx, rebind(db.dialect, `
		SELECT game_id, player_name, map,
		       acs, kills, deaths, assists, econ, first_bloods, plants, defuses,
		       wins, losses, round_wins, round_losses
		FROM `+c.StatsTable()+`
		WHERE game_id IN (`+placeholders(len(ids))+`)
		ORDER BY game_id, acs DESC`), ids...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPlayerGameStats(rows)
}

// placeholders returns a comma-separated string of n "?" for SQL IN clauses,
// e.g. placeholders(3) → "?,?,?".
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

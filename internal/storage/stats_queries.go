package storage

import (
	"context"
	"fmt"

	"github.com/pable/go-val-metrics/internal/model"
)

// PlayerTotals holds one player's per-game stats grouped across a cohort's
// table. Rates are derived by the caller.
type PlayerTotals struct {
	Name        string
	Games       int
	AvgACS      float64
	AvgKills    float64
	AvgDeaths   float64
	AvgAssists  float64
	AvgEcon     float64
	AvgFBs      float64
	AvgPlants   float64
	AvgDefuses  float64
	Wins        int
	Losses      int
	RoundWins   int
	RoundLosses int
}

// CohortPlayerTotals groups the cohort's rows by player, ordered by average
// ACS descending then name. Players with no rows do not appear.
func (db *DB) CohortPlayerTotals(ctx context.Context, c model.Cohort) ([]PlayerTotals, error) {
	table := c.StatsTable()
	if table == "" {
		return nil, fmt.Errorf("no table for cohort %s", c)
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT player_name,
		       COUNT(*),
		       CAST(AVG(acs) AS DOUBLE PRECISION),
		       CAST(AVG(kills) AS DOUBLE PRECISION),
		       CAST(AVG(deaths) AS DOUBLE PRECISION),
		       CAST(AVG(assists) AS DOUBLE PRECISION),
		       CAST(AVG(econ) AS DOUBLE PRECISION),
		       CAST(AVG(first_bloods) AS DOUBLE PRECISION),
		       CAST(AVG(plants) AS DOUBLE PRECISION),
		       CAST(AVG(defuses) AS DOUBLE PRECISION),
		       SUM(wins), SUM(losses), SUM(round_wins), SUM(round_losses)
		FROM `+table+`
		GROUP BY player_name
		ORDER BY AVG(acs) DESC, player_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PlayerTotals
	for rows.Next() {
		var p PlayerTotals
		if err := rows.Scan(&p.Name, &p.Games,
			&p.AvgACS, &p.AvgKills, &p.AvgDeaths, &p.AvgAssists,
			&p.AvgEcon, &p.AvgFBs, &p.AvgPlants, &p.AvgDefuses,
			&p.Wins, &p.Losses, &p.RoundWins, &p.RoundLosses); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CohortMapTotals returns the cohort's cumulative map rows ordered by map name.
// Rate fields are left zero.
func (db *DB) CohortMapTotals(ctx context.Context, c model.Cohort) ([]model.MapAggregate, error) {
	rows, err := db.conn.QueryContext(ctx, rebind(db.dialect, `
		SELECT map, total_wins, total_losses, total_round_wins, total_round_losses
		FROM team_map_stats
		WHERE team = ?
		ORDER BY map`), c.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MapAggregate
	for rows.Next() {
		a := model.MapAggregate{Cohort: c}
		if err := rows.Scan(&a.MapName, &a.TotalWins, &a.TotalLosses,
			&a.TotalRoundWins, &a.TotalRoundLosses); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Overview is a store-wide count summary.
type Overview struct {
	Games       int
	InterCohort int
	MaleRows    int
	FemaleRows  int
	MaleMaps    int
	FemaleMaps  int
}

// Overview counts games, per-cohort rows and map aggregates.
func (db *DB) Overview(ctx context.Context) (Overview, error) {
	var o Overview
	err := db.conn.QueryRowContext(ctx, rebind(db.dialect, `
		SELECT
			(SELECT COUNT(*) FROM games),
			(SELECT COUNT(*) FROM games WHERE is_inter_team = 1),
			(SELECT COUNT(*) FROM male_team_stats),
			(SELECT COUNT(*) FROM female_team_stats),
			(SELECT COUNT(*) FROM team_map_stats WHERE team = ?),
			(SELECT COUNT(*) FROM team_map_stats WHERE team = ?)`),
		model.CohortMale.String(), model.CohortFemale.String(),
	).Scan(&o.Games, &o.InterCohort, &o.MaleRows, &o.FemaleRows, &o.MaleMaps, &o.FemaleMaps)
	if err != nil {
		return o, fmt.Errorf("overview: %w", err)
	}
	return o, nil
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pable/go-val-metrics/internal/model"
)

// GameExistsByHash returns true if a game with the given image hash is already stored.
func (db *DB) GameExistsByHash(ctx context.Context, hash string) (bool, error) {
	if hash == "" {
		return false, nil
	}
	var count int
	err := db.conn.QueryRowContext(ctx, rebind(db.dialect, "SELECT COUNT(1) FROM games WHERE image_hash = ?"), hash).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// InsertGame inserts the games row and sets m.ID. An empty map name is stored
// as NULL and an empty image hash as NULL.
func (t *Tx) InsertGame(ctx context.Context, m *model.Match) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	err := t.tx.QueryRowContext(ctx, rebind(t.dialect, `
		INSERT INTO games(map, is_inter_team, winner, team1_rounds, team2_rounds, image_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		nullString(m.MapName), boolInt(m.InterCohort), m.Winner.String(),
		m.FirstRounds, m.SecondRounds, nullString(m.ImageHash), m.CreatedAt,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("insert game: %w", err)
	}
	return nil
}

// InsertPlayerGameStats bulk-inserts per-game player rows into the cohort's table.
func (t *Tx) InsertPlayerGameStats(ctx context.Context, c model.Cohort, stats []model.PlayerGameStat) error {
	table := c.StatsTable()
	if table == "" {
		return fmt.Errorf("insert player stats: no table for cohort %s", c)
	}
	if len(stats) == 0 {
		return nil
	}

	stmt, err := t.tx.PrepareContext(ctx, rebind(t.dialect, `
		INSERT INTO `+table+`(
			game_id, player_name, map,
			acs, kills, deaths, assists, econ, first_bloods, plants, defuses,
			wins, losses, round_wins, round_losses
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`))
	if err != nil {
		return fmt.Errorf("prepare %s insert: %w", table, err)
	}
	defer stmt.Close()

	for _, s := range stats {
		_, err = stmt.ExecContext(ctx,
			s.GameID, s.Name, nullString(s.MapName),
			s.ACS, s.Kills, s.Deaths, s.Assists, s.Econ, s.FirstBloods, s.Plants, s.Defuses,
			s.Wins, s.Losses, s.RoundWins, s.RoundLosses,
		)
		if err != nil {
			return fmt.Errorf("insert %s for %q: %w", table, s.Name, err)
		}
	}
	return nil
}

// UpsertMapAggregate adds one game's outcome to the cohort's map totals. The
// increment is a single statement so concurrent writers never lose an update.
func (t *Tx) UpsertMapAggregate(ctx context.Context, c model.Cohort, mapKey string, won bool, roundsFor, roundsAgainst int) error {
	wins, losses := 0, 1
	if won {
		wins, losses = 1, 0
	}
	_, err := t.tx.ExecContext(ctx, rebind(t.dialect, `
		INSERT INTO team_map_stats(team, map, total_wins, total_losses, total_round_wins, total_round_losses)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(team, map) DO UPDATE SET
			total_wins         = team_map_stats.total_wins + excluded.total_wins,
			total_losses       = team_map_stats.total_losses + excluded.total_losses,
			total_round_wins   = team_map_stats.total_round_wins + excluded.total_round_wins,
			total_round_losses = team_map_stats.total_round_losses + excluded.total_round_losses`),
		c.String(), mapKey, wins, losses, roundsFor, roundsAgainst,
	)
	if err != nil {
		return fmt.Errorf("upsert team_map_stats %s/%s: %w", c, mapKey, err)
	}
	return nil
}

// GetGame returns the game with the given id, or nil if it does not exist.
func (db *DB) GetGame(ctx context.Context, id int64) (*model.Match, error) {
	var (
		m        model.Match
		mapName  sql.NullString
		hash     sql.NullString
		winner   string
		interInt int
	)
	err := db.conn.QueryRowContext(ctx, rebind(db.dialect, `
		SELECT id, map, is_inter_team, winner, team1_rounds, team2_rounds, image_hash, created_at
		FROM games WHERE id = ?`), id).
		Scan(&m.ID, &mapName, &interInt, &winner, &m.FirstRounds, &m.SecondRounds, &hash, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.MapName = mapName.String
	m.ImageHash = hash.String
	m.InterCohort = interInt != 0
	m.Winner = parseSide(winner)
	return &m, nil
}

// ListGames returns the most recent games, newest first, with the number of
// rows each cohort recorded for them.
func (db *DB) ListGames(ctx context.Context, limit int) ([]model.GameSummary, error) {
	rows, err := db.conn.QueryContext(ctx, rebind(db.dialect, `
		SELECT g.id, g.map, g.winner, g.team1_rounds, g.team2_rounds, g.is_inter_team, g.created_at,
		       (SELECT COUNT(*) FROM male_team_stats m WHERE m.game_id = g.id),
		       (SELECT COUNT(*) FROM female_team_stats f WHERE f.game_id = g.id)
		FROM games g
		ORDER BY g.id DESC
		LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.GameSummary
	for rows.Next() {
		var (
			s        model.GameSummary
			mapName  sql.NullString
			interInt int
		)
		if err := rows.Scan(&s.ID, &mapName, &s.Winner, &s.FirstRounds, &s.SecondRounds,
			&interInt, &s.CreatedAt, &s.MaleRows, &s.FemaleRows); err != nil {
			return nil, err
		}
		s.MapName = mapName.String
		s.InterCohort = interInt != 0
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetPlayerGameStats returns the cohort's rows for one game ordered by ACS.
func (db *DB) GetPlayerGameStats(ctx context.Context, c model.Cohort, gameID int64) ([]model.PlayerGameStat, error) {
	table := c.StatsTable()
	if table == "" {
		return nil, fmt.Errorf("no table for cohort %s", c)
	}
	rows, err := db.conn.QueryContext(ctx, rebind(db.dialect, `
		SELECT game_id, player_name, map,
		       acs, kills, deaths, assists, econ, first_bloods, plants, defuses,
		       wins, losses, round_wins, round_losses
		FROM `+table+` WHERE game_id = ?
		ORDER BY acs DESC, player_name`), gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPlayerGameStats(rows)
}

func scanPlayerGameStats(rows *sql.Rows) ([]model.PlayerGameStat, error) {
	var out []model.PlayerGameStat
	for rows.Next() {
		var (
			s       model.PlayerGameStat
			mapName sql.NullString
		)
		if err := rows.Scan(&s.GameID, &s.Name, &mapName,
			&s.ACS, &s.Kills, &s.Deaths, &s.Assists, &s.Econ, &s.FirstBloods, &s.Plants, &s.Defuses,
			&s.Wins, &s.Losses, &s.RoundWins, &s.RoundLosses); err != nil {
			return nil, err
		}
		s.MapName = mapName.String
		out = append(out, s)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func parseSide(s string) model.Side {
	side, err := model.ParseWinner(s)
	if err != nil {
		return model.SideUnknown
	}
	return side
}

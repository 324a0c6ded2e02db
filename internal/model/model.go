package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Side identifies one of the two scoreboard slots. The first five scoreboard
// rows belong to SideFirst ("Team 1"), the last five to SideSecond ("Team 2").
type Side int

const (
	SideUnknown Side = 0
	SideFirst   Side = 1
	SideSecond  Side = 2
)

func (s Side) String() string {
	switch s {
	case SideFirst:
		return "Team 1"
	case SideSecond:
		return "Team 2"
	default:
		return "?"
	}
}

// Other returns the opposing slot.
func (s Side) Other() Side {
	switch s {
	case SideFirst:
		return SideSecond
	case SideSecond:
		return SideFirst
	default:
		return SideUnknown
	}
}

// ParseWinner maps the extractor's winner label onto a Side.
func ParseWinner(label string) (Side, error) {
	switch strings.TrimSpace(label) {
	case "Team 1":
		return SideFirst, nil
	case "Team 2":
		return SideSecond, nil
	default:
		return SideUnknown, fmt.Errorf("unsupported winner label %q", label)
	}
}

// Cohort is one of the two fixed competitive divisions.
type Cohort int

const (
	CohortUnknown Cohort = 0
	CohortMale    Cohort = 1
	CohortFemale  Cohort = 2
)

// Cohorts lists the recognised cohorts in display order.
var Cohorts = []Cohort{CohortMale, CohortFemale}

func (c Cohort) String() string {
	switch c {
	case CohortMale:
		return "male"
	case CohortFemale:
		return "female"
	default:
		return "unknown"
	}
}

// StatsTable returns the per-game table that holds this cohort's player rows.
func (c Cohort) StatsTable() string {
	switch c {
	case CohortMale:
		return "male_team_stats"
	case CohortFemale:
		return "female_team_stats"
	default:
		return ""
	}
}

// ParseCohort accepts "male"/"female" (and the legacy "male_team"/"female_team" route names).
func ParseCohort(s string) (Cohort, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male", "male_team", "m":
		return CohortMale, nil
	case "female", "female_team", "f":
		return CohortFemale, nil
	default:
		return CohortUnknown, fmt.Errorf("unknown cohort %q (want male or female)", s)
	}
}

// UnknownMap keys the map aggregate when the extractor could not read a map name.
const UnknownMap = "UNKNOWN"

// KnownMaps is the map pool the scoreboard extractor recognises.
var KnownMaps = []string{"ASCENT", "BIND", "PEARL", "SPLIT", "LOTUS", "HAVEN", "ICEBOX", "SUNSET", "BREEZE", "CORRODE"}

// mapMatchCutoff is the minimum similarity for snapping OCR text to a known map.
const mapMatchCutoff = 0.4

// NormalizeMap upper-cases and trims a map name and snaps it to the closest
// entry of KnownMaps. Text that resembles no known map is kept upper-cased.
// Empty input stays empty.
func NormalizeMap(name string) string {
	n := strings.ToUpper(strings.TrimSpace(name))
	if n == "" || n == UnknownMap {
		return n
	}
	best, bestScore := "", 0.0
	for _, m := range KnownMaps {
		if m == n {
			return m
		}
		if r := similarity(n, m); r > bestScore {
			best, bestScore = m, r
		}
	}
	if bestScore >= mapMatchCutoff {
		return best
	}
	return n
}

// similarity is the share of characters a and b have in common, counting
// matches as the longest common block plus matches on either side of it.
func similarity(a, b string) float64 {
	if len(a)+len(b) == 0 {
		return 1
	}
	return 2 * float64(matchingChars(a, b)) / float64(len(a)+len(b))
}

func matchingChars(a, b string) int {
	i, j, k := longestCommonBlock(a, b)
	if k == 0 {
		return 0
	}
	return k + matchingChars(a[:i], b[:j]) + matchingChars(a[i+k:], b[j+k:])
}

func longestCommonBlock(a, b string) (int, int, int) {
	bi, bj, bk := 0, 0, 0
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > bk {
					bi, bj, bk = i-cur[j], j-cur[j], cur[j]
				}
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return bi, bj, bk
}

// AggregateMapKey returns the key used in team_map_stats for a game's map.
func AggregateMapKey(name string) string {
	if n := NormalizeMap(name); n != "" {
		return n
	}
	return UnknownMap
}

// ---- Extracted scoreboard data ----

// PlayerRow is one scoreboard row as returned by the extractor. JSON keys
// follow the extractor's column headers.
type PlayerRow struct {
	Name        string `json:"Player"`
	ACS         int    `json:"ACS"`
	Kills       int    `json:"K"`
	Deaths      int    `json:"D"`
	Assists     int    `json:"A"`
	Econ        int    `json:"ECON"`
	FirstBloods int    `json:"FIRST BLOODS"`
	Plants      int    `json:"PLANTS"`
	Defuses     int    `json:"DEFUSES"`
}

// Roster is the ordered list of rows in one scoreboard slot.
type Roster []PlayerRow

// Contains reports whether a player with the given name is in the roster.
func (r Roster) Contains(name string) bool {
	for _, p := range r {
		if p.Name == name {
			return true
		}
	}
	return false
}

// RosterSize is the number of rows per scoreboard slot.
const RosterSize = 5

// SplitScoreboard splits the scoreboard rows by position: first five rows
// are SideFirst, the following five SideSecond.
func SplitScoreboard(players []PlayerRow) (first, second Roster) {
	n := len(players)
	if n > RosterSize {
		first = Roster(players[:RosterSize])
		end := 2 * RosterSize
		if n < end {
			end = n
		}
		second = Roster(players[RosterSize:end])
		return first, second
	}
	return Roster(players), nil
}

// Scoreboard is the structured payload produced by the extractor.
type Scoreboard struct {
	Players      []PlayerRow
	MapName      string // "" when unreadable
	Winner       Side
	FirstRounds  int
	SecondRounds int
}

// ---- Persisted entities ----

// Match is one ingested game.
type Match struct {
	ID           int64
	MapName      string // "" when unknown; stored as NULL
	Winner       Side
	FirstRounds  int
	SecondRounds int
	InterCohort  bool
	ImageHash    string
	CreatedAt    time.Time
}

// RoundsFor returns the rounds won by the given slot.
func (m *Match) RoundsFor(s Side) int {
	switch s {
	case SideFirst:
		return m.FirstRounds
	case SideSecond:
		return m.SecondRounds
	default:
		return 0
	}
}

// RoundsAgainst returns the rounds won by the slot opposing s.
func (m *Match) RoundsAgainst(s Side) int {
	return m.RoundsFor(s.Other())
}

// PlayerGameStat is one persisted (game, player) row in a cohort stats table.
type PlayerGameStat struct {
	GameID  int64  `json:"game_id"`
	MapName string `json:"map,omitempty"`
	PlayerRow

	Wins        int `json:"wins"`
	Losses      int `json:"losses"`
	RoundWins   int `json:"round_wins"`
	RoundLosses int `json:"round_losses"`
}

// MapAggregate is the cumulative per-cohort, per-map record.
type MapAggregate struct {
	Cohort           Cohort  `json:"-"`
	MapName          string  `json:"map"`
	TotalWins        int     `json:"total_wins"`
	TotalLosses      int     `json:"total_losses"`
	WinRate          float64 `json:"win_rate"`
	TotalRoundWins   int     `json:"total_round_wins"`
	TotalRoundLosses int     `json:"total_round_losses"`
	RoundWinRate     float64 `json:"round_win_rate"`
}

// GamesPlayed is the number of games the cohort has on record for the map.
func (a *MapAggregate) GamesPlayed() int {
	return a.TotalWins + a.TotalLosses
}

// PlayerAggregate holds one player's stats aggregated across every stored game
// of a cohort.
type PlayerAggregate struct {
	Name        string `json:"player_name"`
	GamesPlayed int    `json:"games_played"`

	AvgACS         float64 `json:"avg_acs"`
	AvgKills       float64 `json:"avg_kills"`
	AvgDeaths      float64 `json:"avg_deaths"`
	AvgAssists     float64 `json:"avg_assists"`
	AvgEcon        float64 `json:"avg_econ"`
	AvgFirstBloods float64 `json:"avg_first_bloods"`
	AvgPlants      float64 `json:"avg_plants"`
	AvgDefuses     float64 `json:"avg_defuses"`

	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	WinRate      float64 `json:"win_rate"`
	RoundWins    int     `json:"total_round_wins"`
	RoundLosses  int     `json:"total_round_losses"`
	RoundWinRate float64 `json:"round_win_rate"`
}

// Rate returns num/den as a percentage rounded to one decimal place.
// A non-positive denominator yields 0.
func Rate(num, den int) float64 {
	if den <= 0 {
		return 0
	}
	return math.Round(float64(num)/float64(den)*1000) / 10
}

// GameSummary is a lightweight record for list commands and the games endpoint.
type GameSummary struct {
	ID           int64     `json:"game_id"`
	MapName      string    `json:"map"`
	Winner       string    `json:"winner"`
	FirstRounds  int       `json:"team1_rounds"`
	SecondRounds int       `json:"team2_rounds"`
	InterCohort  bool      `json:"is_inter_team"`
	MaleRows     int       `json:"male_rows"`
	FemaleRows   int       `json:"female_rows"`
	CreatedAt    time.Time `json:"created_at"`
}

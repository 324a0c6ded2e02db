package aggregator

import (
	"context"
	"fmt"

	"github.com/pable/go-val-metrics/internal/classifier"
	"github.com/pable/go-val-metrics/internal/model"
	"github.com/pable/go-val-metrics/internal/roster"
)

// Writer is the transactional sink the aggregator records into. *storage.Tx
// satisfies it.
type Writer interface {
	InsertPlayerGameStats(ctx context.Context, c model.Cohort, stats []model.PlayerGameStat) error
	UpsertMapAggregate(ctx context.Context, c model.Cohort, mapKey string, won bool, roundsFor, roundsAgainst int) error
}

// Aggregator turns a classified match into per-player rows and map aggregate
// increments.
type Aggregator struct {
	reg *roster.Registry
}

// New returns an Aggregator using reg for cohort membership and IGL lookups.
func New(reg *roster.Registry) *Aggregator {
	return &Aggregator{reg: reg}
}

// MapDelta is one increment of a cohort's map aggregate.
type MapDelta struct {
	Cohort        model.Cohort
	MapKey        string
	Won           bool
	RoundsFor     int
	RoundsAgainst int
}

// Result is everything one match contributes to the store.
type Result struct {
	Rows   map[model.Cohort][]model.PlayerGameStat
	Deltas []MapDelta
}

// RowCount returns the number of per-player rows across both cohorts.
func (r *Result) RowCount() int {
	n := 0
	for _, rows := range r.Rows {
		n += len(rows)
	}
	return n
}

// outcomeRounds returns (roundsFor, roundsAgainst) for a side that won or lost m.
func outcomeRounds(m *model.Match, won bool) (int, int) {
	winner := m.RoundsFor(m.Winner)
	loser := m.RoundsAgainst(m.Winner)
	if won {
		return winner, loser
	}
	return loser, winner
}

func playerRow(m *model.Match, p model.PlayerRow, won bool, roundsFor, roundsAgainst int) model.PlayerGameStat {
	s := model.PlayerGameStat{
		GameID:      m.ID,
		MapName:     m.MapName,
		PlayerRow:   p,
		RoundWins:   roundsFor,
		RoundLosses: roundsAgainst,
	}
	if won {
		s.Wins = 1
	} else {
		s.Losses = 1
	}
	return s
}

// InterCohortRows computes the rows for a male-vs-female match. Each side's
// tracked players are credited with the rounds of the slot that side occupied.
func (a *Aggregator) InterCohortRows(m *model.Match, sides classifier.CohortSides, first, second model.Roster) Result {
	maleWon := sides.Male == m.Winner
	rosterOf := func(s model.Side) model.Roster {
		if s == model.SideFirst {
			return first
		}
		return second
	}

	res := Result{Rows: make(map[model.Cohort][]model.PlayerGameStat, 2)}
	for _, side := range []struct {
		cohort model.Cohort
		slot   model.Side
		won    bool
	}{
		{model.CohortMale, sides.Male, maleWon},
		{model.CohortFemale, sides.Female, !maleWon},
	} {
		roundsFor, roundsAgainst := m.RoundsFor(side.slot), m.RoundsAgainst(side.slot)
		players := rosterOf(side.slot)
		rows := make([]model.PlayerGameStat, 0, len(players))
		for _, p := range players {
			rows = append(rows, playerRow(m, p, side.won, roundsFor, roundsAgainst))
		}
		res.Rows[side.cohort] = rows

		mf, ma := outcomeRounds(m, side.won)
		res.Deltas = append(res.Deltas, MapDelta{
			Cohort:        side.cohort,
			MapKey:        model.AggregateMapKey(m.MapName),
			Won:           side.won,
			RoundsFor:     mf,
			RoundsAgainst: ma,
		})
	}
	return res
}

// ResolveHomogeneousOutcome decides whether cohort c won a single-cohort match:
// it did iff the cohort's in-game leader is in the winning slot. Per-player
// rows are decided by each player's own slot, so the two can disagree when
// the cohort is split across both slots.
func (a *Aggregator) ResolveHomogeneousOutcome(c model.Cohort, winning model.Roster) bool {
	igl := a.reg.IGL(c)
	return igl != "" && winning.Contains(igl)
}

// HomogeneousRows computes the rows for a match involving a single cohort.
// players is the full, unfiltered scoreboard in order.
func (a *Aggregator) HomogeneousRows(m *model.Match, players []model.PlayerRow, c model.Cohort) Result {
	first, second := model.SplitScoreboard(players)
	winning := first
	if m.Winner == model.SideSecond {
		winning = second
	}

	rows := make([]model.PlayerGameStat, 0, model.RosterSize)
	for _, p := range players {
		if !a.reg.Is(p.Name, c) {
			continue
		}
		isWinner := winning.Contains(p.Name)
		roundsFor, roundsAgainst := outcomeRounds(m, isWinner)
		rows = append(rows, playerRow(m, p, isWinner, roundsFor, roundsAgainst))
	}

	won := a.ResolveHomogeneousOutcome(c, winning)
	mf, ma := outcomeRounds(m, won)
	return Result{
		Rows: map[model.Cohort][]model.PlayerGameStat{c: rows},
		Deltas: []MapDelta{{
			Cohort:        c,
			MapKey:        model.AggregateMapKey(m.MapName),
			Won:           won,
			RoundsFor:     mf,
			RoundsAgainst: ma,
		}},
	}
}

// RecordInterCohortMatch writes the rows and both map aggregate increments of
// an inter-cohort match. m.ID must already be assigned.
func (a *Aggregator) RecordInterCohortMatch(ctx context.Context, w Writer, m *model.Match, sides classifier.CohortSides, first, second model.Roster) (Result, error) {
	res := a.InterCohortRows(m, sides, first, second)
	return res, a.apply(ctx, w, &res)
}

// RecordHomogeneousMatch writes the rows and the map aggregate increment of a
// single-cohort match. m.ID must already be assigned.
func (a *Aggregator) RecordHomogeneousMatch(ctx context.Context, w Writer, m *model.Match, players []model.PlayerRow, c model.Cohort) (Result, error) {
	if c == model.CohortUnknown {
		return Result{}, fmt.Errorf("record match %d: %w", m.ID, classifier.ErrUnknownCohort)
	}
	res := a.HomogeneousRows(m, players, c)
	return res, a.apply(ctx, w, &res)
}

// Record dispatches a classified match to the inter-cohort or homogeneous path.
func (a *Aggregator) Record(ctx context.Context, w Writer, m *model.Match, cl classifier.Classification, players []model.PlayerRow) (Result, error) {
	if cl.InterCohort {
		return a.RecordInterCohortMatch(ctx, w, m, cl.Sides, cl.First, cl.Second)
	}
	return a.RecordHomogeneousMatch(ctx, w, m, players, cl.Cohort)
}

func (a *Aggregator) apply(ctx context.Context, w Writer, res *Result) error {
	for _, c := range model.Cohorts {
		rows, ok := res.Rows[c]
		if !ok {
			continue
		}
		if err := w.InsertPlayerGameStats(ctx, c, rows); err != nil {
			return err
		}
	}
	for _, d := range res.Deltas {
		if err := w.UpsertMapAggregate(ctx, d.Cohort, d.MapKey, d.Won, d.RoundsFor, d.RoundsAgainst); err != nil {
			return err
		}
	}
	return nil
}

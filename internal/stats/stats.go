// Package stats serves the read side: per-player averages and per-map
// aggregates for one cohort.
package stats

import (
	"context"
	"fmt"

	"github.com/pable/go-val-metrics/internal/model"
	"github.com/pable/go-val-metrics/internal/storage"
)

// Store is the subset of *storage.DB the query service reads from.
type Store interface {
	CohortPlayerTotals(ctx context.Context, c model.Cohort) ([]storage.PlayerTotals, error)
	CohortMapTotals(ctx context.Context, c model.Cohort) ([]model.MapAggregate, error)
}

// Service answers cohort stat queries.
type Service struct {
	store Store
}

// New returns a Service reading from store.
func New(store Store) *Service {
	return &Service{store: store}
}

// PlayerAverages returns one aggregate per player who has at least one game
// in cohort c, ordered by average ACS descending. A cohort with no games
// yields an empty, non-nil slice.
func (s *Service) PlayerAverages(ctx context.Context, c model.Cohort) ([]model.PlayerAggregate, error) {
	if c == model.CohortUnknown {
		return nil, fmt.Errorf("player averages: unknown cohort")
	}
	totals, err := s.store.CohortPlayerTotals(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("player averages for %s: %w", c, err)
	}
	out := make([]model.PlayerAggregate, 0, len(totals))
	for _, t := range totals {
		out = append(out, model.PlayerAggregate{
			Name:           t.Name,
			GamesPlayed:    t.Games,
			AvgACS:         t.AvgACS,
			AvgKills:       t.AvgKills,
			AvgDeaths:      t.AvgDeaths,
			AvgAssists:     t.AvgAssists,
			AvgEcon:        t.AvgEcon,
			AvgFirstBloods: t.AvgFBs,
			AvgPlants:      t.AvgPlants,
			AvgDefuses:     t.AvgDefuses,
			Wins:           t.Wins,
			Losses:         t.Losses,
			WinRate:        model.Rate(t.Wins, t.Games),
			RoundWins:      t.RoundWins,
			RoundLosses:    t.RoundLosses,
			RoundWinRate:   model.Rate(t.RoundWins, t.RoundWins+t.RoundLosses),
		})
	}
	return out, nil
}

// MapAggregates returns cohort c's cumulative map records ordered by map name,
// with win and round-win rates filled in.
func (s *Service) MapAggregates(ctx context.Context, c model.Cohort) ([]model.MapAggregate, error) {
	if c == model.CohortUnknown {
		return nil, fmt.Errorf("map aggregates: unknown cohort")
	}
	aggs, err := s.store.CohortMapTotals(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("map aggregates for %s: %w", c, err)
	}
	out := make([]model.MapAggregate, 0, len(aggs))
	for _, a := range aggs {
		a.WinRate = model.Rate(a.TotalWins, a.GamesPlayed())
		a.RoundWinRate = model.Rate(a.TotalRoundWins, a.TotalRoundWins+a.TotalRoundLosses)
		out = append(out, a)
	}
	return out, nil
}

// CohortReport is the combined players-and-maps view for one cohort.
type CohortReport struct {
	Players []model.PlayerAggregate `json:"players"`
	Maps    []model.MapAggregate    `json:"maps"`
}

// Cohort returns both views for c.
func (s *Service) Cohort(ctx context.Context, c model.Cohort) (CohortReport, error) {
	players, err := s.PlayerAverages(ctx, c)
	if err != nil {
		return CohortReport{}, err
	}
	maps, err := s.MapAggregates(ctx, c)
	if err != nil {
		return CohortReport{}, err
	}
	return CohortReport{Players: players, Maps: maps}, nil
}

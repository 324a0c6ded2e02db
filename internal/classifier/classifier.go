// Package classifier decides which cohort(s) a scoreboard belongs to.
//
// The classifier works on positional rosters: the first five scoreboard rows
// are model.SideFirst and the last five model.SideSecond. Players that are in
// neither cohort are dropped before any decision is made.
package classifier

import (
	"errors"

	"github.com/pable/go-val-metrics/internal/model"
	"github.com/pable/go-val-metrics/internal/roster"
)

// ErrUnknownCohort is returned when a match is not inter-cohort and neither
// in-game leader appears on the scoreboard.
var ErrUnknownCohort = errors.New("could not determine team type (male/female)")

// Classifier classifies scoreboards against a fixed roster registry.
type Classifier struct {
	reg *roster.Registry
}

// New returns a Classifier backed by reg.
func New(reg *roster.Registry) *Classifier {
	return &Classifier{reg: reg}
}

// CohortSides records which scoreboard slot each cohort occupied in an
// inter-cohort match.
type CohortSides struct {
	Male   model.Side
	Female model.Side
}

// SideOf returns the slot occupied by cohort co.
func (s CohortSides) SideOf(co model.Cohort) model.Side {
	switch co {
	case model.CohortMale:
		return s.Male
	case model.CohortFemale:
		return s.Female
	default:
		return model.SideUnknown
	}
}

// Classification is the outcome of classifying one scoreboard.
type Classification struct {
	// First and Second are the tracked players of each slot, in scoreboard order.
	First, Second model.Roster

	InterCohort bool

	// Sides is set only for inter-cohort matches.
	Sides CohortSides

	// Cohort is set only for homogeneous matches.
	Cohort model.Cohort
}

// Roster returns the tracked roster for slot s.
func (c *Classification) Roster(s model.Side) model.Roster {
	switch s {
	case model.SideFirst:
		return c.First
	case model.SideSecond:
		return c.Second
	default:
		return nil
	}
}

// FilterTracked keeps only the rows whose player belongs to either cohort,
// preserving order.
func (c *Classifier) FilterTracked(r model.Roster) model.Roster {
	out := make(model.Roster, 0, len(r))
	for _, p := range r {
		if c.reg.Tracked(p.Name) {
			out = append(out, p)
		}
	}
	return out
}

// FilterCohort keeps only the rows whose player belongs to cohort co.
func (c *Classifier) FilterCohort(players []model.PlayerRow, co model.Cohort) model.Roster {
	out := make(model.Roster, 0, len(players))
	for _, p := range players {
		if c.reg.Is(p.Name, co) {
			out = append(out, p)
		}
	}
	return out
}

func (c *Classifier) has(r model.Roster, co model.Cohort) bool {
	for _, p := range r {
		if c.reg.Is(p.Name, co) {
			return true
		}
	}
	return false
}

// IsInterCohortMatch reports whether one slot fields a male-cohort player while
// the other fields a female-cohort player. A slot may mix cohorts.
func (c *Classifier) IsInterCohortMatch(first, second model.Roster) bool {
	return (c.has(first, model.CohortMale) && c.has(second, model.CohortFemale)) ||
		(c.has(first, model.CohortFemale) && c.has(second, model.CohortMale))
}

// ResolveCohortSides assigns the male cohort to the first slot that contains a
// male-cohort player, checking SideFirst before SideSecond; the female cohort
// takes the other slot. With male players on both slots SideFirst wins.
func (c *Classifier) ResolveCohortSides(first, second model.Roster) CohortSides {
	if c.has(first, model.CohortMale) {
		return CohortSides{Male: model.SideFirst, Female: model.SideSecond}
	}
	return CohortSides{Male: model.SideSecond, Female: model.SideFirst}
}

// DetectHomogeneousCohort classifies a non-inter-cohort match by the presence
// of a cohort's in-game leader anywhere on the scoreboard. The male IGL is
// checked first. It returns CohortUnknown when neither leader played.
func (c *Classifier) DetectHomogeneousCohort(first, second model.Roster) model.Cohort {
	for _, co := range model.Cohorts {
		igl := c.reg.IGL(co)
		if first.Contains(igl) || second.Contains(igl) {
			return co
		}
	}
	return model.CohortUnknown
}

// Classify splits the scoreboard by position, drops unaffiliated players and
// classifies the match. It returns ErrUnknownCohort for homogeneous matches
// whose cohort cannot be determined.
func (c *Classifier) Classify(players []model.PlayerRow) (Classification, error) {
	first, second := model.SplitScoreboard(players)
	cl := Classification{
		First:  c.FilterTracked(first),
		Second: c.FilterTracked(second),
	}
	if c.IsInterCohortMatch(cl.First, cl.Second) {
		cl.InterCohort = true
		cl.Sides = c.ResolveCohortSides(cl.First, cl.Second)
		return cl, nil
	}
	cl.Cohort = c.DetectHomogeneousCohort(cl.First, cl.Second)
	if cl.Cohort == model.CohortUnknown {
		return cl, ErrUnknownCohort
	}
	return cl, nil
}

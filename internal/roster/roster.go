// Package roster holds the two fixed cohort rosters and their in-game leaders.
//
// A Registry is built once at start-up from configuration and is read-only
// afterwards, so it can be shared between request goroutines without locking.
package roster

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/pable/go-val-metrics/internal/model"
)

// ErrOverlap is returned when a player is listed in both cohorts.
var ErrOverlap = errors.New("player listed in both cohorts")

// Cohort describes one roster as supplied by configuration.
type Cohort struct {
	Players []string
	IGL     string
}

// Registry is the immutable player-to-cohort lookup.
type Registry struct {
	members map[string]model.Cohort
	igl     map[model.Cohort]string
}

// New builds a Registry from the male and female rosters. Player names are
// matched exactly as the extractor reports them. Each IGL must be a member of
// their own cohort.
func New(male, female Cohort) (*Registry, error) {
	r := &Registry{
		members: make(map[string]model.Cohort, len(male.Players)+len(female.Players)),
		igl:     make(map[model.Cohort]string, 2),
	}
	for _, c := range []struct {
		cohort model.Cohort
		spec   Cohort
	}{{model.CohortMale, male}, {model.CohortFemale, female}} {
		for _, name := range c.spec.Players {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if prev, ok := r.members[name]; ok && prev != c.cohort {
				return nil, fmt.Errorf("%w: %q", ErrOverlap, name)
			}
			r.members[name] = c.cohort
		}
		igl := strings.TrimSpace(c.spec.IGL)
		if igl == "" {
			return nil, fmt.Errorf("%s roster: no in-game leader configured", c.cohort)
		}
		if r.members[igl] != c.cohort {
			return nil, fmt.Errorf("%s roster: in-game leader %q is not a %s player", c.cohort, igl, c.cohort)
		}
		r.igl[c.cohort] = igl
	}
	return r, nil
}

// Default returns the registry for the club's current rosters.
func Default() *Registry {
	r, err := New(DefaultMale, DefaultFemale)
	if err != nil {
		panic(err)
	}
	return r
}

// DefaultMale and DefaultFemale are the rosters used when configuration does
// not override them.
var (
	DefaultMale = Cohort{
		Players: []string{"XPE nixcey", "XPE Burger", "Drahmenn", "Loveleiy", "Walid"},
		IGL:     "Drahmenn",
	}
	DefaultFemale = Cohort{
		Players: []string{"XPE Buttercup", "sawako", "XPE roro", "XPE Grass", "distressed"},
		IGL:     "XPE roro",
	}
)

// CohortOf returns the cohort a player belongs to, or CohortUnknown for
// unaffiliated players.
func (r *Registry) CohortOf(name string) model.Cohort {
	return r.members[name]
}

// Is reports whether the named player belongs to cohort c.
func (r *Registry) Is(name string, c model.Cohort) bool {
	return c != model.CohortUnknown && r.members[name] == c
}

// Tracked reports whether the player belongs to either cohort.
func (r *Registry) Tracked(name string) bool {
	return r.members[name] != model.CohortUnknown
}

// IGL returns the in-game leader of cohort c ("" for CohortUnknown).
func (r *Registry) IGL(c model.Cohort) string {
	return r.igl[c]
}

// Members returns the names of cohort c in alphabetical order.
func (r *Registry) Members(c model.Cohort) []string {
	var out []string
	for name, cc := range r.members {
		if cc == c {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Package rescale implements dynamic population rescaling: when the tracked
// epidemic outgrows the agent arena, the arena is downsampled by an integer
// factor and the statistical weight of every remaining agent is multiplied
// by that factor, keeping population-level aggregates approximately
// invariant.
package rescale

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/xkilldash9x/episim/internal/dist"
	"github.com/xkilldash9x/episim/internal/people"
)

// Category is one stratum of the downsample. Strata are mutually exclusive
// and exhaustive over living and dead agents alike.
type Category uint8

const (
	CatDead Category = iota
	CatCritical
	CatSevere
	CatSymptomatic
	CatInfectious
	CatExposed
	CatRecovered
	CatSusceptible
	numCategories
)

var categoryNames = [numCategories]string{
	"dead", "critical", "severe", "symptomatic",
	"infectious", "exposed", "recovered", "susceptible",
}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return fmt.Sprintf("Category(%d)", uint8(c))
}

// Categorize assigns an agent to its most severe applicable stratum.
func Categorize(p *people.People, i int32) Category {
	switch {
	case p.Is(people.Dead, i):
		return CatDead
	case p.Is(people.Critical, i):
		return CatCritical
	case p.Is(people.Severe, i):
		return CatSevere
	case p.Is(people.Symptomatic, i):
		return CatSymptomatic
	case p.Is(people.Infectious, i):
		return CatInfectious
	case p.Is(people.Exposed, i):
		return CatExposed
	case p.Is(people.Recovered, i):
		return CatRecovered
	default:
		return CatSusceptible
	}
}

// Controller decides when to shrink the arena and performs the stratified
// downsample. Scale starts at 1 when rescaling is enabled and grows by
// Factor on each rescale, never exceeding the population scale ceiling.
type Controller struct {
	popScale  float64
	threshold float64
	factor    int
	log       *zap.Logger
}

// NewController builds a controller. Factor must be a whole number of at
// least 2 for a rescale to ever shrink anything; parameter validation
// upstream guarantees that when rescaling is enabled.
func NewController(popScale, threshold, factor float64, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		popScale:  popScale,
		threshold: threshold,
		factor:    int(factor),
		log:       log.Named("rescale"),
	}
}

// ShouldRescale reports whether the current infected fraction warrants a
// shrink and whether another factor step still fits under the scale ceiling.
func (c *Controller) ShouldRescale(p *people.People, scale float64) bool {
	if c.factor < 2 || p.N == 0 {
		return false
	}
	if scale*float64(c.factor) > c.popScale {
		return false
	}
	infected := p.Count(people.Exposed)
	return float64(infected)/float64(p.N) > c.threshold
}

// Apply downsamples the arena by the controller's factor and returns the
// replacement arena together with the new scale. Each stratum keeps
// round(count/factor) of its members, chosen uniformly, so the weighted
// count of every stratum is conserved to within one factor's worth of
// agents. The original arena is left untouched; on any failure the caller
// keeps it and the old scale.
func (c *Controller) Apply(p *people.People, scale float64, rng *dist.Stream) (*people.People, float64, error) {
	if c.factor < 2 {
		return nil, 0, fmt.Errorf("rescale: factor %d cannot shrink the arena", c.factor)
	}

	var strata [numCategories][]int32
	for i := int32(0); int(i) < p.N; i++ {
		cat := Categorize(p, i)
		strata[cat] = append(strata[cat], i)
	}

	keep := make([]int32, 0, p.N/c.factor+int(numCategories))
	for cat, members := range strata {
		n := len(members)
		if n == 0 {
			continue
		}
		k := (n + c.factor/2) / c.factor
		kept := rng.Pick(members, k)
		keep = append(keep, kept...)

		if got := len(kept) * c.factor; absInt(got-n) > c.factor {
			return nil, 0, fmt.Errorf("rescale: stratum %s not conserved: %d agents became %d at factor %d",
				Category(cat), n, len(kept), c.factor)
		}
	}
	if len(keep) == 0 {
		return nil, 0, fmt.Errorf("rescale: downsample of %d agents kept nobody", p.N)
	}
	slices.Sort(keep)

	next := p.Subset(keep)
	newScale := scale * float64(c.factor)
	c.log.Info("rescaled population",
		zap.Int("before", p.N),
		zap.Int("after", next.N),
		zap.Float64("scale", newScale))
	return next, newScale, nil
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

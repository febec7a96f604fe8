// Package strain owns per-variant parameters, the cross-immunity matrix,
// and scheduled introduction of new variants into the population.
package strain

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/episim/internal/dist"
	"github.com/xkilldash9x/episim/internal/people"
)

var (
	// ErrDuplicate is returned when a strain label is registered twice.
	ErrDuplicate = errors.New("duplicate strain label")
	// ErrHorizon is returned when an introduction day falls outside the run.
	ErrHorizon = errors.New("introduction day outside simulation horizon")
)

// Wild is the index of the built-in baseline variant.
const Wild int16 = 0

// Strain describes one pathogen variant. Multipliers are relative to the
// baseline; a CrossImmunity entry maps an already-registered label to the
// discount applied between that strain's immunity and this one, filled
// symmetrically.
type Strain struct {
	Label         string             `mapstructure:"label" yaml:"label" json:"label"`
	Day           int                `mapstructure:"day" yaml:"day" json:"day"`
	NImports      int                `mapstructure:"n_imports" yaml:"n_imports" json:"n_imports"`
	RelBeta       float64            `mapstructure:"rel_beta" yaml:"rel_beta" json:"rel_beta"`
	RelSympProb   float64            `mapstructure:"rel_symp_prob" yaml:"rel_symp_prob" json:"rel_symp_prob"`
	RelSevProb    float64            `mapstructure:"rel_severe_prob" yaml:"rel_severe_prob" json:"rel_severe_prob"`
	RelCritProb   float64            `mapstructure:"rel_crit_prob" yaml:"rel_crit_prob" json:"rel_crit_prob"`
	RelDeathProb  float64            `mapstructure:"rel_death_prob" yaml:"rel_death_prob" json:"rel_death_prob"`
	CrossImmunity map[string]float64 `mapstructure:"cross_immunity" yaml:"cross_immunity" json:"cross_immunity,omitempty"`
}

// InfectFunc force-transitions the given agents into the exposed state
// tagged with a strain. The disease model supplies it; the registry stays
// free of transition logic.
type InfectFunc func(inds []int32, strain int16, day int)

// Registry holds every variant of a run. Index 0 is always the wild type.
type Registry struct {
	horizon      int
	defaultCross float64
	strains      []Strain
	cross        [][]float64 // cross[source][challenge]
	log          *zap.Logger
}

// NewRegistry builds a registry with the built-in wild type. The horizon is
// the last simulated day; offDiagonal is the default cross-immunity between
// distinct strains.
func NewRegistry(horizon int, offDiagonal float64, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		horizon:      horizon,
		defaultCross: offDiagonal,
		strains: []Strain{{
			Label: "wild", Day: -1, NImports: 0,
			RelBeta: 1, RelSympProb: 1, RelSevProb: 1, RelCritProb: 1, RelDeathProb: 1,
		}},
		cross: [][]float64{{1}},
		log:   log.Named("strain"),
	}
}

// Count returns the number of registered strains, wild type included.
func (r *Registry) Count() int { return len(r.strains) }

// Register validates and adds a variant, returning its index. Zero-valued
// multipliers are promoted to 1 so scenario files can omit them.
func (r *Registry) Register(s Strain) (int16, error) {
	if s.Label == "" {
		return 0, fmt.Errorf("strain label must not be empty")
	}
	if _, ok := r.ByLabel(s.Label); ok {
		return 0, fmt.Errorf("strain %q: %w", s.Label, ErrDuplicate)
	}
	if s.Day < 0 || s.Day > r.horizon {
		return 0, fmt.Errorf("strain %q day %d (horizon %d): %w", s.Label, s.Day, r.horizon, ErrHorizon)
	}
	if s.NImports < 0 {
		return 0, fmt.Errorf("strain %q: n_imports must be non-negative, got %d", s.Label, s.NImports)
	}
	for name, v := range map[string]*float64{
		"rel_beta": &s.RelBeta, "rel_symp_prob": &s.RelSympProb,
		"rel_severe_prob": &s.RelSevProb, "rel_crit_prob": &s.RelCritProb,
		"rel_death_prob": &s.RelDeathProb,
	} {
		if *v == 0 {
			*v = 1
		}
		if *v < 0 {
			return 0, fmt.Errorf("strain %q: %s must be positive, got %v", s.Label, name, *v)
		}
	}
	for label, v := range s.CrossImmunity {
		if v < 0 || v > 1 {
			return 0, fmt.Errorf("strain %q: cross immunity vs %q must be in [0,1], got %v", s.Label, label, v)
		}
		if _, ok := r.ByLabel(label); !ok {
			return 0, fmt.Errorf("strain %q: cross immunity references unknown strain %q", s.Label, label)
		}
	}

	idx := int16(len(r.strains))
	r.strains = append(r.strains, s)

	// Grow the cross matrix with the default off-diagonal discount, then
	// apply explicit overrides symmetrically.
	for i := range r.cross {
		r.cross[i] = append(r.cross[i], r.defaultCross)
	}
	row := make([]float64, len(r.strains))
	for i := range row {
		row[i] = r.defaultCross
	}
	row[idx] = 1
	r.cross = append(r.cross, row)
	for label, v := range s.CrossImmunity {
		other, _ := r.ByLabel(label)
		r.cross[idx][other] = v
		r.cross[other][idx] = v
	}
	return idx, nil
}

// Get returns a registered strain. Referencing an unknown index is a
// programming error surfaced as a descriptive failure.
func (r *Registry) Get(idx int16) (Strain, error) {
	if idx < 0 || int(idx) >= len(r.strains) {
		return Strain{}, fmt.Errorf("unregistered strain index %d (have %d)", idx, len(r.strains))
	}
	return r.strains[idx], nil
}

// ByLabel resolves a strain label to its index.
func (r *Registry) ByLabel(label string) (int16, bool) {
	for i, s := range r.strains {
		if s.Label == label {
			return int16(i), true
		}
	}
	return 0, false
}

// Labels returns every strain label in index order.
func (r *Registry) Labels() []string {
	out := make([]string, len(r.strains))
	for i, s := range r.strains {
		out[i] = s.Label
	}
	return out
}

// RelBeta returns the transmissibility multiplier for a strain index. It
// skips Get's error path so the per-contact transmission loop stays lean;
// an unknown index panics.
func (r *Registry) RelBeta(idx int16) float64 { return r.strains[idx].RelBeta }

// CrossImmunity returns the discount applied to protection against the
// challenging strain when the titer was raised against the source strain.
// Agents with no immunity source contribute no protection.
func (r *Registry) CrossImmunity(source, challenge int16) float64 {
	if source == people.NoStrain {
		return 0
	}
	return r.cross[source][challenge]
}

// Seed introduces every strain scheduled for the given day: exactly
// NImports agents are force-infected, drawn from the currently susceptible.
// When too few susceptible agents remain the pool degrades to any living
// agent with a warning; the shortfall is never fatal.
func (r *Registry) Seed(day int, p *people.People, rng *dist.Stream, infect InfectFunc) {
	for idx, s := range r.strains {
		if s.Day != day || s.NImports == 0 {
			continue
		}
		pool := p.Indices(people.Susceptible)
		if len(pool) < s.NImports {
			alive := p.IndicesNot(people.Dead)
			r.log.Warn("seeding pool degraded to all living agents",
				zap.String("strain", s.Label),
				zap.Int("day", day),
				zap.Int("requested", s.NImports),
				zap.Int("susceptible", len(pool)),
				zap.Int("pool", len(alive)),
			)
			pool = alive
		}
		chosen := rng.Pick(pool, s.NImports)
		infect(chosen, int16(idx), day)
		r.log.Debug("seeded strain",
			zap.String("strain", s.Label),
			zap.Int("day", day),
			zap.Int("imports", len(chosen)),
		)
	}
}

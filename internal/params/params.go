// Package params defines the simulation parameter set and its validation
// rules. A Pars value is explicit configuration passed to the engine entry
// point; there is no process-wide mutable state.
package params

import (
	"fmt"
	"math"

	"github.com/xkilldash9x/episim/internal/dist"
)

// DecayPars parameterize the bi-phasic neutralizing-antibody decay. For the
// first InitDecayTime days after an immunizing event the level decays at
// InitDecayRate per day; beyond that window the decay rate itself decays at
// DecayDecayRate, so the curve drops sharply early and flattens out without
// ever reaching zero.
type DecayPars struct {
	InitDecayRate  float64 `mapstructure:"init_decay_rate" yaml:"init_decay_rate" json:"init_decay_rate"`
	InitDecayTime  float64 `mapstructure:"init_decay_time" yaml:"init_decay_time" json:"init_decay_time"`
	DecayDecayRate float64 `mapstructure:"decay_decay_rate" yaml:"decay_decay_rate" json:"decay_decay_rate"`
}

// Validate rejects parameter values that could produce negative or
// non-finite antibody levels.
func (d DecayPars) Validate() error {
	for name, v := range map[string]float64{
		"init_decay_rate":  d.InitDecayRate,
		"init_decay_time":  d.InitDecayTime,
		"decay_decay_rate": d.DecayDecayRate,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("nab decay: %s is not finite", name)
		}
		if v < 0 {
			return fmt.Errorf("nab decay: %s must be non-negative, got %v", name, v)
		}
	}
	return nil
}

// ProtectionPars shape the mapping from antibody level to protection
// probability: a saturating logistic on log10 titer with one half-point per
// outcome. Lower half-points mean more protection at the same titer, so the
// defaults give severe disease the strongest shielding.
type ProtectionPars struct {
	Slope   float64 `mapstructure:"slope" yaml:"slope" json:"slope"`
	N50Inf  float64 `mapstructure:"n50_infection" yaml:"n50_infection" json:"n50_infection"`
	N50Symp float64 `mapstructure:"n50_symptomatic" yaml:"n50_symptomatic" json:"n50_symptomatic"`
	N50Sev  float64 `mapstructure:"n50_severe" yaml:"n50_severe" json:"n50_severe"`
}

func (p ProtectionPars) Validate() error {
	if p.Slope <= 0 {
		return fmt.Errorf("protection: slope must be positive, got %v", p.Slope)
	}
	for name, v := range map[string]float64{
		"n50_infection":   p.N50Inf,
		"n50_symptomatic": p.N50Symp,
		"n50_severe":      p.N50Sev,
	} {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("protection: %s must be a positive finite titer, got %v", name, v)
		}
	}
	return nil
}

// DurationPars hold the sampled dwell times between disease states, in days.
type DurationPars struct {
	Exp2Inf  dist.Lognormal `mapstructure:"exp2inf" yaml:"exp2inf" json:"exp2inf"`
	Inf2Sym  dist.Lognormal `mapstructure:"inf2sym" yaml:"inf2sym" json:"inf2sym"`
	Sym2Sev  dist.Lognormal `mapstructure:"sym2sev" yaml:"sym2sev" json:"sym2sev"`
	Sev2Crit dist.Lognormal `mapstructure:"sev2crit" yaml:"sev2crit" json:"sev2crit"`
	Asym2Rec dist.Lognormal `mapstructure:"asym2rec" yaml:"asym2rec" json:"asym2rec"`
	Mild2Rec dist.Lognormal `mapstructure:"mild2rec" yaml:"mild2rec" json:"mild2rec"`
	Sev2Rec  dist.Lognormal `mapstructure:"sev2rec" yaml:"sev2rec" json:"sev2rec"`
	Crit2Rec dist.Lognormal `mapstructure:"crit2rec" yaml:"crit2rec" json:"crit2rec"`
	Crit2Die dist.Lognormal `mapstructure:"crit2die" yaml:"crit2die" json:"crit2die"`
}

func (d DurationPars) Validate() error {
	for name, ln := range map[string]dist.Lognormal{
		"exp2inf": d.Exp2Inf, "inf2sym": d.Inf2Sym, "sym2sev": d.Sym2Sev,
		"sev2crit": d.Sev2Crit, "asym2rec": d.Asym2Rec, "mild2rec": d.Mild2Rec,
		"sev2rec": d.Sev2Rec, "crit2rec": d.Crit2Rec, "crit2die": d.Crit2Die,
	} {
		if ln.Mean <= 0 {
			return fmt.Errorf("durations: %s mean must be positive, got %v", name, ln.Mean)
		}
		if ln.Std < 0 {
			return fmt.Errorf("durations: %s std must be non-negative, got %v", name, ln.Std)
		}
	}
	return nil
}

// Pars is the full parameter set for one simulation run.
type Pars struct {
	PopSize     int   `mapstructure:"pop_size" yaml:"pop_size" json:"pop_size"`
	PopInfected int   `mapstructure:"pop_infected" yaml:"pop_infected" json:"pop_infected"`
	NDays       int   `mapstructure:"n_days" yaml:"n_days" json:"n_days"`
	Seed        int64 `mapstructure:"seed" yaml:"seed" json:"seed"`

	Beta     float64 `mapstructure:"beta" yaml:"beta" json:"beta"`
	Contacts float64 `mapstructure:"contacts" yaml:"contacts" json:"contacts"`

	// Waning selects the immunity model: decaying antibody titers with
	// possible reinfection, versus permanent post-recovery immunity.
	Waning        bool            `mapstructure:"waning" yaml:"waning" json:"waning"`
	NAbDecay      DecayPars       `mapstructure:"nab_decay" yaml:"nab_decay" json:"nab_decay"`
	NAbInit       dist.Pow2Normal `mapstructure:"nab_init" yaml:"nab_init" json:"nab_init"`
	NAbBoost      float64         `mapstructure:"nab_boost" yaml:"nab_boost" json:"nab_boost"`
	Protection    ProtectionPars  `mapstructure:"protection" yaml:"protection" json:"protection"`
	CrossImmunity float64         `mapstructure:"cross_immunity" yaml:"cross_immunity" json:"cross_immunity"`

	// Static vaccine effect applied when waning is disabled; with waning
	// enabled doses work through the antibody machinery instead.
	VaccineEfficacy     float64 `mapstructure:"vaccine_efficacy" yaml:"vaccine_efficacy" json:"vaccine_efficacy"`
	VaccineSympEfficacy float64 `mapstructure:"vaccine_symp_efficacy" yaml:"vaccine_symp_efficacy" json:"vaccine_symp_efficacy"`

	// Transmission damping for diagnosed (isolated) and quarantined agents.
	IsoFactor  float64 `mapstructure:"iso_factor" yaml:"iso_factor" json:"iso_factor"`
	QuarFactor float64 `mapstructure:"quar_factor" yaml:"quar_factor" json:"quar_factor"`
	QuarPeriod int     `mapstructure:"quar_period" yaml:"quar_period" json:"quar_period"`

	PopScale         float64 `mapstructure:"pop_scale" yaml:"pop_scale" json:"pop_scale"`
	Rescale          bool    `mapstructure:"rescale" yaml:"rescale" json:"rescale"`
	RescaleThreshold float64 `mapstructure:"rescale_threshold" yaml:"rescale_threshold" json:"rescale_threshold"`
	RescaleFactor    float64 `mapstructure:"rescale_factor" yaml:"rescale_factor" json:"rescale_factor"`

	// ValidateStates runs the implication-matrix check over the whole
	// population at the end of every simulated day.
	ValidateStates bool `mapstructure:"validate_states" yaml:"validate_states" json:"validate_states"`

	Durations DurationPars `mapstructure:"durations" yaml:"durations" json:"durations"`
	Prognoses *Prognoses   `mapstructure:"prognoses" yaml:"prognoses" json:"prognoses,omitempty"`
}

// Defaults returns the baseline parameter set.
func Defaults() *Pars {
	return &Pars{
		PopSize:     1000,
		PopInfected: 20,
		NDays:       60,
		Seed:        1,
		Beta:        0.016,
		Contacts:    20,
		Waning:      true,
		NAbDecay: DecayPars{
			InitDecayRate:  math.Ln2 / 90, // titer halves every 90 days at first
			InitDecayTime:  250,
			DecayDecayRate: 0.001,
		},
		NAbInit:  dist.Pow2Normal{Mean: 0, Std: 2},
		NAbBoost: 1.5,
		Protection: ProtectionPars{
			Slope:   2.7,
			N50Inf:  0.20,
			N50Symp: 0.08,
			N50Sev:  0.03,
		},
		CrossImmunity:       0.5,
		VaccineEfficacy:     0.9,
		VaccineSympEfficacy: 0.6,
		IsoFactor:           0.2,
		QuarFactor:          0.3,
		QuarPeriod:          14,
		PopScale:            1,
		Rescale:             false,
		RescaleThreshold:    0.05,
		RescaleFactor:       2,
		ValidateStates:      true,
		Durations: DurationPars{
			Exp2Inf:  dist.Lognormal{Mean: 4.6, Std: 4.8},
			Inf2Sym:  dist.Lognormal{Mean: 1.0, Std: 0.9},
			Sym2Sev:  dist.Lognormal{Mean: 6.6, Std: 4.9},
			Sev2Crit: dist.Lognormal{Mean: 1.5, Std: 2.0},
			Asym2Rec: dist.Lognormal{Mean: 8.0, Std: 2.0},
			Mild2Rec: dist.Lognormal{Mean: 8.0, Std: 2.0},
			Sev2Rec:  dist.Lognormal{Mean: 18.1, Std: 6.3},
			Crit2Rec: dist.Lognormal{Mean: 18.1, Std: 6.3},
			Crit2Die: dist.Lognormal{Mean: 10.7, Std: 4.8},
		},
	}
}

// Validate checks every fatal precondition before a run starts. All
// violations here abort the run; none are recoverable.
func (p *Pars) Validate() error {
	if p.PopSize < 1 {
		return fmt.Errorf("pop_size must be at least 1, got %d", p.PopSize)
	}
	if p.PopInfected < 0 || p.PopInfected > p.PopSize {
		return fmt.Errorf("pop_infected must be in [0, pop_size], got %d", p.PopInfected)
	}
	if p.NDays < 1 {
		return fmt.Errorf("n_days must be at least 1, got %d", p.NDays)
	}
	if p.Beta < 0 || math.IsNaN(p.Beta) {
		return fmt.Errorf("beta must be non-negative, got %v", p.Beta)
	}
	if p.Contacts < 0 {
		return fmt.Errorf("contacts must be non-negative, got %v", p.Contacts)
	}
	if err := p.NAbDecay.Validate(); err != nil {
		return err
	}
	if err := p.Protection.Validate(); err != nil {
		return err
	}
	if p.NAbBoost < 1 {
		return fmt.Errorf("nab_boost must be at least 1, got %v", p.NAbBoost)
	}
	if p.CrossImmunity < 0 || p.CrossImmunity > 1 {
		return fmt.Errorf("cross_immunity must be in [0,1], got %v", p.CrossImmunity)
	}
	for name, v := range map[string]float64{
		"vaccine_efficacy":      p.VaccineEfficacy,
		"vaccine_symp_efficacy": p.VaccineSympEfficacy,
		"iso_factor":            p.IsoFactor,
		"quar_factor":           p.QuarFactor,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0,1], got %v", name, v)
		}
	}
	if p.QuarPeriod < 0 {
		return fmt.Errorf("quar_period must be non-negative, got %d", p.QuarPeriod)
	}
	if p.PopScale < 1 {
		return fmt.Errorf("pop_scale must be at least 1, got %v", p.PopScale)
	}
	if p.Rescale {
		if p.RescaleThreshold <= 0 || p.RescaleThreshold > 1 {
			return fmt.Errorf("rescale_threshold must be in (0,1], got %v", p.RescaleThreshold)
		}
		if p.RescaleFactor <= 0 {
			return fmt.Errorf("rescale_factor must be positive, got %v", p.RescaleFactor)
		}
		if p.RescaleFactor != math.Trunc(p.RescaleFactor) || p.RescaleFactor < 1 {
			return fmt.Errorf("rescale_factor must be a whole number of at least 1, got %v", p.RescaleFactor)
		}
	}
	if err := p.Durations.Validate(); err != nil {
		return err
	}
	if p.Prognoses != nil {
		if err := p.Prognoses.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Prog returns the configured prognoses, falling back to the defaults.
func (p *Pars) Prog() *Prognoses {
	if p.Prognoses != nil {
		return p.Prognoses
	}
	return DefaultPrognoses()
}

// Package immunity implements neutralizing-antibody kinetics: the bi-phasic
// decay of per-agent titers after immunizing events, and the saturating
// mapping from titer to protection probability.
//
// Decay closed form: for the first InitDecayTime days after an event the
// titer decays exponentially at InitDecayRate per day. Beyond that window
// the instantaneous rate itself decays exponentially at DecayDecayRate, so
// the remaining fraction after T + u days is
//
//	exp(-r0*T - r0*(1-exp(-k*u))/k)
//
// which is strictly positive, non-increasing, and flattens toward a plateau
// as the integrated late-phase rate saturates at r0/k.
package immunity

import (
	"math"

	"github.com/xkilldash9x/episim/internal/dist"
	"github.com/xkilldash9x/episim/internal/params"
	"github.com/xkilldash9x/episim/internal/people"
)

// Outcome selects which protection curve to evaluate.
type Outcome uint8

const (
	OutcomeInfection Outcome = iota
	OutcomeSymptomatic
	OutcomeSevere
)

// Engine evaluates antibody kinetics for one run. With waning disabled it
// records nothing and every titer stays at zero; permanent immunity is then
// carried entirely by the state flags.
type Engine struct {
	decay      params.DecayPars
	protection params.ProtectionPars
	boost      float64
	peakDist   dist.Pow2Normal
	waning     bool
}

// New builds an engine from validated parameters.
func New(pars *params.Pars) *Engine {
	return &Engine{
		decay:      pars.NAbDecay,
		protection: pars.Protection,
		boost:      pars.NAbBoost,
		peakDist:   pars.NAbInit,
		waning:     pars.Waning,
	}
}

// Waning reports whether titers decay in this run.
func (e *Engine) Waning() bool { return e.waning }

// DecayFactor returns the fraction of peak titer remaining after elapsed
// days with no intervening event. It is 1 at zero elapsed time and strictly
// positive forever.
func (e *Engine) DecayFactor(elapsed float64) float64 {
	if elapsed <= 0 {
		return 1
	}
	r0 := e.decay.InitDecayRate
	T := e.decay.InitDecayTime
	k := e.decay.DecayDecayRate
	if elapsed <= T {
		return math.Exp(-r0 * elapsed)
	}
	u := elapsed - T
	var late float64
	if k > 0 {
		late = r0 * (1 - math.Exp(-k*u)) / k
	} else {
		late = r0 * u
	}
	return math.Exp(-r0*T - late)
}

// NAbAt returns the titer elapsed days after an event with the given peak.
func (e *Engine) NAbAt(peak, elapsed float64) float64 {
	return peak * e.DecayFactor(elapsed)
}

// RecordEvent registers an immunizing event (infection recovery or vaccine
// dose) for one agent: the decay clock restarts and the peak is the larger
// of a freshly sampled titer and the boosted current level. A no-op when
// waning is disabled.
func (e *Engine) RecordEvent(p *people.People, i int32, source int16, day int, r *dist.Stream) {
	if !e.waning {
		return
	}
	peak := e.peakDist.Sample1(r)
	if boosted := p.NAb[i] * e.boost; boosted > peak {
		peak = boosted
	}
	p.PeakNAb[i] = peak
	p.NAb[i] = peak
	p.LastNAbEvent[i] = float64(day)
	p.NAbSource[i] = source
}

// Update recomputes every agent's current titer for the day. A no-op when
// waning is disabled.
func (e *Engine) Update(p *people.People, day int) {
	if !e.waning {
		return
	}
	for i := 0; i < p.N; i++ {
		last := p.LastNAbEvent[i]
		if math.IsNaN(last) || p.PeakNAb[i] <= 0 {
			continue
		}
		p.NAb[i] = e.NAbAt(p.PeakNAb[i], float64(day)-last)
	}
}

// Protection maps an effective titer to a protection probability for the
// given outcome. It is monotonically increasing in the titer, zero at zero
// titer, and saturates below 1. Cross-immunity discounts are applied to the
// titer by the caller before this mapping.
func (e *Engine) Protection(nab float64, o Outcome) float64 {
	if nab <= 0 {
		return 0
	}
	var n50 float64
	switch o {
	case OutcomeSymptomatic:
		n50 = e.protection.N50Symp
	case OutcomeSevere:
		n50 = e.protection.N50Sev
	default:
		n50 = e.protection.N50Inf
	}
	x := e.protection.Slope * (math.Log10(nab) - math.Log10(n50))
	return 1 / (1 + math.Exp(-x))
}

// PopSummary aggregates the three population-level immunity series: the
// mean titer and the mean protection against infection and symptomatic
// disease. With a uniform scale factor the weighted mean equals the plain
// mean over the arena.
func (e *Engine) PopSummary(p *people.People) (popNAb, popProt, popSympProt float64) {
	if p.N == 0 {
		return 0, 0, 0
	}
	var nabSum, protSum, sympSum float64
	for i := 0; i < p.N; i++ {
		nab := p.NAb[i]
		nabSum += nab
		protSum += e.Protection(nab, OutcomeInfection)
		sympSum += e.Protection(nab, OutcomeSymptomatic)
	}
	n := float64(p.N)
	return nabSum / n, protSum / n, sympSum / n
}

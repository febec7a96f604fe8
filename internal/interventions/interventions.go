// Package interventions provides the standard intervention hooks: routine
// testing, contact tracing, vaccination campaigns and transmission changes.
// Each hook observes the population and returns effects; the engine applies
// them.
package interventions

import (
	"fmt"
	"slices"

	"github.com/xkilldash9x/episim/internal/dist"
	"github.com/xkilldash9x/episim/internal/people"
	"github.com/xkilldash9x/episim/internal/sim"
)

var (
	_ sim.Hook = (*TestProb)(nil)
	_ sim.Hook = (*ContactTracing)(nil)
	_ sim.Hook = (*Vaccinate)(nil)
	_ sim.Hook = (*ChangeBeta)(nil)
)

// TestProb tests symptomatic and asymptomatic agents each day with fixed
// probabilities. Diagnosed agents are not retested.
type TestProb struct {
	SympProb  float64
	AsympProb float64
	Delay     int // days from swab to result
	StartDay  int
	EndDay    int // 0 or negative means no end
}

// NewTestProb builds a testing program active from day 0 with no end.
func NewTestProb(sympProb, asympProb float64, delay int) *TestProb {
	return &TestProb{SympProb: sympProb, AsympProb: asympProb, Delay: delay}
}

func (tp *TestProb) Label() string { return "test_prob" }

func (tp *TestProb) Apply(hc *sim.HookContext) ([]sim.Effect, error) {
	if hc.Day < tp.StartDay || (tp.EndDay > 0 && hc.Day > tp.EndDay) {
		return nil, nil
	}
	p := hc.People
	rng := hc.Stream(dist.OpTesting)

	var batch []int32
	for i := int32(0); int(i) < p.N; i++ {
		if p.Is(people.Dead, i) || p.Is(people.Diagnosed, i) {
			continue
		}
		prob := tp.AsympProb
		if p.Is(people.Symptomatic, i) {
			prob = tp.SympProb
		}
		if rng.Bernoulli(prob) {
			batch = append(batch, i)
		}
	}
	if len(batch) == 0 {
		return nil, nil
	}
	return []sim.Effect{{Kind: sim.EffectTest, Agents: batch, Delay: tp.Delay}}, nil
}

// ContactTracing follows up the contacts of agents diagnosed the previous
// day, notifying each with probability TraceProb and scheduling quarantine
// for the run's quarantine period.
type ContactTracing struct {
	TraceProb float64
	Delay     int // days from diagnosis to notification
	Window    int // how far back to look for contacts
}

// NewContactTracing builds a tracing program with a two day lookback.
func NewContactTracing(traceProb float64, delay int) *ContactTracing {
	return &ContactTracing{TraceProb: traceProb, Delay: delay, Window: 2}
}

func (ct *ContactTracing) Label() string { return "contact_tracing" }

func (ct *ContactTracing) Apply(hc *sim.HookContext) ([]sim.Effect, error) {
	// Hooks run before the day's diagnoses land, so yesterday's are the
	// newest visible.
	index := hc.People.DiagnosedBetween(hc.Day-1, hc.Day)
	if len(index) == 0 {
		return nil, nil
	}
	window := ct.Window
	if window < 1 {
		window = 1
	}
	contacts := hc.Contacts.ContactsOf(index, hc.Day-window, hc.Day)
	traced := hc.Stream(dist.OpTracing).Filter(contacts, ct.TraceProb)
	if len(traced) == 0 {
		return nil, nil
	}
	return []sim.Effect{
		{Kind: sim.EffectKnownContact, Agents: traced},
		{Kind: sim.EffectQuarantine, Agents: traced, Delay: ct.Delay, Duration: hc.Pars.QuarPeriod},
	}, nil
}

// Vaccinate runs a campaign on the listed days, offering one dose to each
// living unvaccinated agent with the given probability.
type Vaccinate struct {
	Days []int
	Prob float64
}

// NewVaccinate builds a campaign for the given days.
func NewVaccinate(prob float64, days ...int) *Vaccinate {
	return &Vaccinate{Days: days, Prob: prob}
}

func (v *Vaccinate) Label() string { return "vaccinate" }

func (v *Vaccinate) Apply(hc *sim.HookContext) ([]sim.Effect, error) {
	if !slices.Contains(v.Days, hc.Day) {
		return nil, nil
	}
	p := hc.People
	var pool []int32
	for i := int32(0); int(i) < p.N; i++ {
		if p.Is(people.Dead, i) || p.Is(people.Vaccinated, i) {
			continue
		}
		pool = append(pool, i)
	}
	chosen := hc.Stream(dist.OpVaccination).Filter(pool, v.Prob)
	if len(chosen) == 0 {
		return nil, nil
	}
	return []sim.Effect{{Kind: sim.EffectVaccinate, Agents: chosen}}, nil
}

// ChangeBeta rescales global transmission on the listed days. Each change
// persists until the next one, so a pair like (10, 0.5) and (20, 1.0)
// halves transmission for days 10 through 19.
type ChangeBeta struct {
	Days    []int
	Changes []float64
}

// NewChangeBeta pairs each day with its multiplier.
func NewChangeBeta(days []int, changes []float64) (*ChangeBeta, error) {
	if len(days) != len(changes) {
		return nil, fmt.Errorf("change_beta: %d days but %d changes", len(days), len(changes))
	}
	for k, c := range changes {
		if c < 0 {
			return nil, fmt.Errorf("change_beta: change %d is negative (%v)", k, c)
		}
	}
	return &ChangeBeta{Days: days, Changes: changes}, nil
}

func (cb *ChangeBeta) Label() string { return "change_beta" }

func (cb *ChangeBeta) Apply(hc *sim.HookContext) ([]sim.Effect, error) {
	var effects []sim.Effect
	for k, d := range cb.Days {
		if d == hc.Day {
			effects = append(effects, sim.Effect{Kind: sim.EffectBetaScale, Value: cb.Changes[k]})
		}
	}
	return effects, nil
}

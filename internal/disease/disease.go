// Package disease implements the health state machine: infection
// trajectories sampled at exposure time, and the date-driven flag
// transitions that advance every agent once per simulated day.
package disease

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/episim/internal/dist"
	"github.com/xkilldash9x/episim/internal/immunity"
	"github.com/xkilldash9x/episim/internal/params"
	"github.com/xkilldash9x/episim/internal/people"
	"github.com/xkilldash9x/episim/internal/strain"
)

// Model holds the pieces needed to sample trajectories and step flags. It
// keeps per-day stream caches so that several infection batches within one
// day continue a single stream instead of replaying it.
type Model struct {
	pars      *params.Pars
	prognoses *params.Prognoses
	imm       *immunity.Engine
	reg       *strain.Registry
	src       *dist.Source
	log       *zap.Logger

	trajDay    int
	trajStream *dist.Stream
	evDay      int
	evStream   *dist.Stream
}

// NewModel wires the state machine to its collaborators.
func NewModel(pars *params.Pars, imm *immunity.Engine, reg *strain.Registry, src *dist.Source, log *zap.Logger) (*Model, error) {
	if pars == nil {
		return nil, fmt.Errorf("disease model requires parameters")
	}
	if imm == nil {
		return nil, fmt.Errorf("disease model requires an immunity engine")
	}
	if reg == nil {
		return nil, fmt.Errorf("disease model requires a strain registry")
	}
	if src == nil {
		return nil, fmt.Errorf("disease model requires a random source")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Model{
		pars:      pars,
		prognoses: pars.Prog(),
		imm:       imm,
		reg:       reg,
		src:       src,
		log:       log.Named("disease"),
		trajDay:   -1,
		evDay:     -1,
	}, nil
}

// InitPopulation samples ages from the synthetic pyramid and conditions the
// prognosis chain onto every agent.
func (m *Model) InitPopulation(p *people.People) {
	r := m.src.Stream(0, dist.OpInitPopulation)
	brackets := params.DefaultAgeBrackets()
	var total float64
	for _, b := range brackets {
		total += b.Weight
	}
	for i := 0; i < p.N; i++ {
		u := r.Float64() * total
		b := brackets[len(brackets)-1]
		for _, cand := range brackets {
			if u < cand.Weight {
				b = cand
				break
			}
			u -= cand.Weight
		}
		age := dist.Uniform{Low: b.Low, High: b.High}.Sample1(r)
		p.Age[i] = age

		bin := m.prognoses.Bin(age)
		symp, severe, crit, death := m.prognoses.Conditioned(bin)
		p.SympProb[i] = symp
		p.SevereProb[i] = severe
		p.CritProb[i] = crit
		p.DeathProb[i] = death
	}
}

func (m *Model) trajectory(day int) *dist.Stream {
	if m.trajDay != day {
		m.trajStream = m.src.Stream(day, dist.OpTrajectory)
		m.trajDay = day
	}
	return m.trajStream
}

func (m *Model) events(day int) *dist.Stream {
	if m.evDay != day {
		m.evStream = m.src.Stream(day, dist.OpPeakNAb)
		m.evDay = day
	}
	return m.evStream
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Infect force-transitions agents into the exposed state tagged with the
// given strain and samples their full trajectory: every onward transition
// date and the outcome branch are fixed now, modulated by the agent's
// current protection and the strain's multipliers. Dead agents are skipped.
// Returns the number of infections applied and how many were reinfections.
func (m *Model) Infect(p *people.People, inds []int32, strainIdx int16, day int) (infections, reinfections int) {
	if len(inds) == 0 {
		return 0, 0
	}
	st, err := m.reg.Get(strainIdx)
	if err != nil {
		// Referencing an unregistered strain is a programming-contract
		// violation; fail loudly rather than guessing.
		panic(err)
	}
	r := m.trajectory(day)
	dur := &m.pars.Durations

	dead := p.Flags(people.Dead)
	recovered := p.Flags(people.Recovered)

	for _, i := range inds {
		if dead[i] {
			continue
		}
		if recovered[i] {
			reinfections++
		}
		infections++

		p.Set(people.Susceptible, i, false)
		p.Set(people.Naive, i, false)
		p.Set(people.Recovered, i, false)
		p.Set(people.Exposed, i, true)
		p.Set(people.Infectious, i, false)
		p.Set(people.Symptomatic, i, false)
		p.Set(people.Severe, i, false)
		p.Set(people.Critical, i, false)

		p.ExposedStrain[i] = strainIdx
		p.Infections[i]++

		p.DateExposed[i] = float64(day)
		p.DateInfectious[i] = float64(day) + dur.Exp2Inf.Sample1(r)
		p.DateSymptomatic[i] = people.Never()
		p.DateSevere[i] = people.Never()
		p.DateCritical[i] = people.Never()
		p.DateRecovered[i] = people.Never()
		p.DateDead[i] = people.Never()

		effNAb := p.NAb[i] * m.reg.CrossImmunity(p.NAbSource[i], strainIdx)
		protSymp := m.imm.Protection(effNAb, immunity.OutcomeSymptomatic)
		protSev := m.imm.Protection(effNAb, immunity.OutcomeSevere)

		pSymp := clamp01(p.SympProb[i] * st.RelSympProb * p.RelSymp[i] * (1 - protSymp))
		if !r.Bernoulli(pSymp) {
			p.DateRecovered[i] = p.DateInfectious[i] + dur.Asym2Rec.Sample1(r)
			continue
		}
		p.DateSymptomatic[i] = p.DateInfectious[i] + dur.Inf2Sym.Sample1(r)

		pSev := clamp01(p.SevereProb[i] * st.RelSevProb * (1 - protSev))
		if !r.Bernoulli(pSev) {
			p.DateRecovered[i] = p.DateSymptomatic[i] + dur.Mild2Rec.Sample1(r)
			continue
		}
		p.DateSevere[i] = p.DateSymptomatic[i] + dur.Sym2Sev.Sample1(r)

		pCrit := clamp01(p.CritProb[i] * st.RelCritProb)
		if !r.Bernoulli(pCrit) {
			p.DateRecovered[i] = p.DateSevere[i] + dur.Sev2Rec.Sample1(r)
			continue
		}
		p.DateCritical[i] = p.DateSevere[i] + dur.Sev2Crit.Sample1(r)

		pDie := clamp01(p.DeathProb[i] * st.RelDeathProb)
		if r.Bernoulli(pDie) {
			p.DateDead[i] = p.DateCritical[i] + dur.Crit2Die.Sample1(r)
		} else {
			p.DateRecovered[i] = p.DateCritical[i] + dur.Crit2Rec.Sample1(r)
		}
	}
	return infections, reinfections
}

// Transitions counts the flag changes applied by one StepStates call.
type Transitions struct {
	Infectious  int
	Symptomatic int
	Severe      int
	Critical    int
	Recoveries  int
	Deaths      int
	Diagnoses   int
	Quarantines int
	Releases    int
}

// StepStates applies every date-driven transition due on the given day.
// Stages run over the whole population in severity order, so an agent whose
// dwell times collapse to zero can traverse several stages in one day.
func (m *Model) StepStates(p *people.People, day int) Transitions {
	var tr Transitions

	susceptible := p.Flags(people.Susceptible)
	naive := p.Flags(people.Naive)
	exposed := p.Flags(people.Exposed)
	infectious := p.Flags(people.Infectious)
	symptomatic := p.Flags(people.Symptomatic)
	severe := p.Flags(people.Severe)
	critical := p.Flags(people.Critical)
	recovered := p.Flags(people.Recovered)
	dead := p.Flags(people.Dead)
	diagnosed := p.Flags(people.Diagnosed)
	quarantined := p.Flags(people.Quarantined)
	knownContact := p.Flags(people.KnownContact)

	for i := 0; i < p.N; i++ {
		if dead[i] {
			continue
		}
		if exposed[i] && !infectious[i] && people.Due(p.DateInfectious[i], day) {
			infectious[i] = true
			tr.Infectious++
		}
	}
	for i := 0; i < p.N; i++ {
		if infectious[i] && !symptomatic[i] && people.Due(p.DateSymptomatic[i], day) {
			symptomatic[i] = true
			tr.Symptomatic++
		}
	}
	for i := 0; i < p.N; i++ {
		if symptomatic[i] && !severe[i] && people.Due(p.DateSevere[i], day) {
			severe[i] = true
			tr.Severe++
		}
	}
	for i := 0; i < p.N; i++ {
		if severe[i] && !critical[i] && people.Due(p.DateCritical[i], day) {
			critical[i] = true
			tr.Critical++
		}
	}

	for i := 0; i < p.N; i++ {
		if !exposed[i] || dead[i] || !people.Due(p.DateDead[i], day) {
			continue
		}
		dead[i] = true
		susceptible[i] = false
		naive[i] = false
		exposed[i] = false
		infectious[i] = false
		symptomatic[i] = false
		severe[i] = false
		critical[i] = false
		recovered[i] = false
		quarantined[i] = false
		knownContact[i] = false
		tr.Deaths++
	}

	waning := m.imm.Waning()
	ev := m.events(day)
	for i := 0; i < p.N; i++ {
		if !exposed[i] || dead[i] || !people.Due(p.DateRecovered[i], day) {
			continue
		}
		was := p.ExposedStrain[i]
		exposed[i] = false
		infectious[i] = false
		symptomatic[i] = false
		severe[i] = false
		critical[i] = false
		recovered[i] = true
		p.RecoveredStrain[i] = was
		p.ExposedStrain[i] = people.NoStrain
		if waning {
			susceptible[i] = true
			m.imm.RecordEvent(p, int32(i), was, day, ev)
		}
		tr.Recoveries++
	}

	for i := 0; i < p.N; i++ {
		if dead[i] || diagnosed[i] || !people.Due(p.DateDiagnosed[i], day) {
			continue
		}
		diagnosed[i] = true
		tr.Diagnoses++
	}

	for i := 0; i < p.N; i++ {
		if dead[i] {
			continue
		}
		if quarantined[i] && people.Due(p.DateEndQuarantine[i], day) {
			quarantined[i] = false
			knownContact[i] = false
			p.DateQuarantined[i] = people.Never()
			p.DateEndQuarantine[i] = people.Never()
			tr.Releases++
			continue
		}
		if !quarantined[i] && people.Due(p.DateQuarantined[i], day) &&
			float64(day) < p.DateEndQuarantine[i] {
			quarantined[i] = true
			tr.Quarantines++
		}
	}

	return tr
}

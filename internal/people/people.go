// Package people holds the columnar agent store: parallel per-agent arrays
// for health flags, transition dates, outcome probabilities, and immunity
// levels. It is a data container; transition logic lives in the disease
// package and immunity kinetics in the immunity package.
package people

import (
	"math"
)

// NoStrain marks the absence of a strain tag in a strain column.
const NoStrain int16 = -1

// Never marks a date column entry that has not been scheduled.
func Never() float64 { return math.NaN() }

// Due reports whether a scheduled date has arrived by the given day.
// Unscheduled (NaN) dates are never due.
func Due(date float64, day int) bool {
	return !math.IsNaN(date) && date <= float64(day)
}

// People is a structure-of-arrays store of N agents. Agents are created
// once and never removed individually; dead is a terminal flag, and the
// only structural change is wholesale arena replacement during rescaling.
type People struct {
	N int

	Age []float64

	flags [NumStates][]bool

	// Scheduled transition days. NaN means not scheduled.
	DateExposed       []float64
	DateInfectious    []float64
	DateSymptomatic   []float64
	DateSevere        []float64
	DateCritical      []float64
	DateRecovered     []float64
	DateDead          []float64
	DateTested        []float64
	DateDiagnosed     []float64
	DateQuarantined   []float64
	DateEndQuarantine []float64
	DateVaccinated    []float64

	// Relative susceptibility, transmissibility, and symptom odds. Start
	// at 1 and are scaled down by static vaccine effects.
	RelSus   []float64
	RelTrans []float64
	RelSymp  []float64

	// Conditioned per-agent branch chain: P(symp|inf), P(sev|symp),
	// P(crit|sev), P(death|crit), set from the prognoses table at init.
	SympProb   []float64
	SevereProb []float64
	CritProb   []float64
	DeathProb  []float64

	// Neutralizing-antibody kinetics.
	PeakNAb      []float64
	NAb          []float64
	LastNAbEvent []float64 // day of the most recent immunizing event
	NAbSource    []int16   // strain the current titer was raised against

	ExposedStrain   []int16
	RecoveredStrain []int16

	Infections []uint16 // lifetime infection count
	Doses      []uint16 // vaccine doses received
}

// New allocates a store of n agents, all susceptible and naive, with no
// scheduled dates and neutral modifiers.
func New(n int) *People {
	p := &People{N: n}
	for s := State(0); s < NumStates; s++ {
		p.flags[s] = make([]bool, n)
	}
	fillBool(p.flags[Susceptible], true)
	fillBool(p.flags[Naive], true)

	p.Age = make([]float64, n)

	dates := []*[]float64{
		&p.DateExposed, &p.DateInfectious, &p.DateSymptomatic, &p.DateSevere,
		&p.DateCritical, &p.DateRecovered, &p.DateDead, &p.DateTested,
		&p.DateDiagnosed, &p.DateQuarantined, &p.DateEndQuarantine,
		&p.DateVaccinated,
	}
	for _, d := range dates {
		*d = make([]float64, n)
		fillFloat(*d, math.NaN())
	}

	ones := []*[]float64{&p.RelSus, &p.RelTrans, &p.RelSymp}
	for _, c := range ones {
		*c = make([]float64, n)
		fillFloat(*c, 1)
	}

	probs := []*[]float64{&p.SympProb, &p.SevereProb, &p.CritProb, &p.DeathProb}
	for _, c := range probs {
		*c = make([]float64, n)
	}

	p.PeakNAb = make([]float64, n)
	p.NAb = make([]float64, n)
	p.LastNAbEvent = make([]float64, n)
	fillFloat(p.LastNAbEvent, math.NaN())
	p.NAbSource = make([]int16, n)
	fillInt16(p.NAbSource, NoStrain)

	p.ExposedStrain = make([]int16, n)
	fillInt16(p.ExposedStrain, NoStrain)
	p.RecoveredStrain = make([]int16, n)
	fillInt16(p.RecoveredStrain, NoStrain)

	p.Infections = make([]uint16, n)
	p.Doses = make([]uint16, n)
	return p
}

func fillBool(s []bool, v bool) {
	for i := range s {
		s[i] = v
	}
}

func fillFloat(s []float64, v float64) {
	for i := range s {
		s[i] = v
	}
}

func fillInt16(s []int16, v int16) {
	for i := range s {
		s[i] = v
	}
}

// Flags returns the boolean column for one flag. The slice is shared with
// the store, not a copy.
func (p *People) Flags(s State) []bool {
	return p.flags[s]
}

// Is reports one agent's flag.
func (p *People) Is(s State, i int32) bool {
	return p.flags[s][i]
}

// Set writes one agent's flag. Transition code uses the column slices
// directly; Set exists for overlay writers and tests.
func (p *People) Set(s State, i int32, v bool) {
	p.flags[s][i] = v
}

// Count returns the number of agents with the flag set.
func (p *People) Count(s State) int {
	n := 0
	for _, v := range p.flags[s] {
		if v {
			n++
		}
	}
	return n
}

// CountBy returns the number of agents with the flag set whose current
// infecting strain matches.
func (p *People) CountBy(s State, strain int16) int {
	n := 0
	col := p.flags[s]
	for i, v := range col {
		if v && p.ExposedStrain[i] == strain {
			n++
		}
	}
	return n
}

// Indices returns the indices of all agents with the flag set.
func (p *People) Indices(s State) []int32 {
	out := make([]int32, 0, 64)
	for i, v := range p.flags[s] {
		if v {
			out = append(out, int32(i))
		}
	}
	return out
}

// IndicesNot returns the indices of all agents with the flag clear.
func (p *People) IndicesNot(s State) []int32 {
	out := make([]int32, 0, p.N)
	for i, v := range p.flags[s] {
		if !v {
			out = append(out, int32(i))
		}
	}
	return out
}

// Alive returns the number of agents not dead.
func (p *People) Alive() int {
	return p.N - p.Count(Dead)
}

// RecordTest marks agents as tested on the given day. Dead agents are
// skipped so the overlay can never violate the matrix.
func (p *People) RecordTest(inds []int32, day int) {
	dead := p.flags[Dead]
	for _, i := range inds {
		if dead[i] {
			continue
		}
		p.flags[Tested][i] = true
		p.DateTested[i] = float64(day)
	}
}

// ScheduleDiagnosis schedules a positive result to land on the given day.
func (p *People) ScheduleDiagnosis(inds []int32, day int) {
	dead := p.flags[Dead]
	for _, i := range inds {
		if dead[i] {
			continue
		}
		p.DateDiagnosed[i] = float64(day)
	}
}

// ScheduleQuarantine schedules quarantine for the half-open day interval
// [start, end). Dead agents are skipped.
func (p *People) ScheduleQuarantine(inds []int32, start, end int) {
	dead := p.flags[Dead]
	for _, i := range inds {
		if dead[i] {
			continue
		}
		p.DateQuarantined[i] = float64(start)
		p.DateEndQuarantine[i] = float64(end)
	}
}

// MarkKnownContact flags agents as notified contacts. Dead agents are
// skipped.
func (p *People) MarkKnownContact(inds []int32) {
	dead := p.flags[Dead]
	for _, i := range inds {
		if dead[i] {
			continue
		}
		p.flags[KnownContact][i] = true
	}
}

// Subset builds a new arena containing copies of the selected rows, in the
// given order. The receiver is left untouched; the rescaling controller
// swaps the result in atomically.
func (p *People) Subset(inds []int32) *People {
	n := len(inds)
	q := New(n)

	copyBoolRows := func(dst, src []bool) {
		for j, i := range inds {
			dst[j] = src[i]
		}
	}
	copyFloatRows := func(dst, src []float64) {
		for j, i := range inds {
			dst[j] = src[i]
		}
	}
	copyInt16Rows := func(dst, src []int16) {
		for j, i := range inds {
			dst[j] = src[i]
		}
	}
	copyUint16Rows := func(dst, src []uint16) {
		for j, i := range inds {
			dst[j] = src[i]
		}
	}

	for s := State(0); s < NumStates; s++ {
		copyBoolRows(q.flags[s], p.flags[s])
	}
	copyFloatRows(q.Age, p.Age)

	pairs := [][2][]float64{
		{q.DateExposed, p.DateExposed}, {q.DateInfectious, p.DateInfectious},
		{q.DateSymptomatic, p.DateSymptomatic}, {q.DateSevere, p.DateSevere},
		{q.DateCritical, p.DateCritical}, {q.DateRecovered, p.DateRecovered},
		{q.DateDead, p.DateDead}, {q.DateTested, p.DateTested},
		{q.DateDiagnosed, p.DateDiagnosed}, {q.DateQuarantined, p.DateQuarantined},
		{q.DateEndQuarantine, p.DateEndQuarantine}, {q.DateVaccinated, p.DateVaccinated},
		{q.RelSus, p.RelSus}, {q.RelTrans, p.RelTrans}, {q.RelSymp, p.RelSymp},
		{q.SympProb, p.SympProb}, {q.SevereProb, p.SevereProb},
		{q.CritProb, p.CritProb}, {q.DeathProb, p.DeathProb},
		{q.PeakNAb, p.PeakNAb}, {q.NAb, p.NAb}, {q.LastNAbEvent, p.LastNAbEvent},
	}
	for _, pair := range pairs {
		copyFloatRows(pair[0], pair[1])
	}

	copyInt16Rows(q.NAbSource, p.NAbSource)
	copyInt16Rows(q.ExposedStrain, p.ExposedStrain)
	copyInt16Rows(q.RecoveredStrain, p.RecoveredStrain)
	copyUint16Rows(q.Infections, p.Infections)
	copyUint16Rows(q.Doses, p.Doses)

	return q
}

// DiagnosedBetween returns agents whose diagnosis landed in the half-open
// day interval [from, to).
func (p *People) DiagnosedBetween(from, to int) []int32 {
	var out []int32
	for i := 0; i < p.N; i++ {
		d := p.DateDiagnosed[i]
		if math.IsNaN(d) {
			continue
		}
		if d >= float64(from) && d < float64(to) && p.flags[Diagnosed][i] {
			out = append(out, int32(i))
		}
	}
	return out
}

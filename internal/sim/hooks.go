package sim

import (
	"slices"

	"github.com/xkilldash9x/episim/internal/dist"
	"github.com/xkilldash9x/episim/internal/params"
	"github.com/xkilldash9x/episim/internal/people"
)

// EffectKind enumerates the state changes a hook may request. Hooks never
// mutate the population directly; they return effects and the engine applies
// them, so every mutation path stays inside the engine.
type EffectKind uint8

const (
	// EffectTest records a test for the listed agents; agents infected at
	// test time are scheduled for diagnosis after Delay days.
	EffectTest EffectKind = iota
	// EffectQuarantine schedules the listed agents for quarantine starting
	// after Delay days and lasting Duration days.
	EffectQuarantine
	// EffectKnownContact marks the listed agents as notified contacts.
	EffectKnownContact
	// EffectVaccinate administers one vaccine dose to the listed agents.
	EffectVaccinate
	// EffectBetaScale sets the global transmission multiplier to Value,
	// effective from the current day until changed again.
	EffectBetaScale
)

// Effect is one state change requested by a hook.
type Effect struct {
	Kind     EffectKind
	Agents   []int32
	Value    float64
	Delay    int
	Duration int
}

// HookContext is the read view handed to hooks each day. Streams obtained
// through Stream are shared per (day, op), so two hooks drawing for the same
// op on the same day continue one sequence instead of replaying it.
type HookContext struct {
	Day    int
	People *people.People
	Pars   *params.Pars

	Contacts *ContactLog

	// Stream returns the deterministic stream for the given operation on
	// the context's day.
	Stream func(op dist.Op) *dist.Stream
}

// Hook is a pluggable intervention. Apply runs at the start of each day,
// before seeding, transitions and transmission. Returning an error aborts
// the run.
type Hook interface {
	Label() string
	Apply(hc *HookContext) ([]Effect, error)
}

// Contact is one sampled encounter between an infectious source and a
// partner, whatever the outcome.
type Contact struct {
	Src int32
	Dst int32
}

// ContactLog retains the encounters sampled by the transmitter for a sliding
// window of days, so tracing hooks can look up who a diagnosed agent met.
// Indices refer to the current arena; the log is cleared whenever the arena
// is replaced.
type ContactLog struct {
	window int
	days   map[int][]Contact
}

// NewContactLog keeps contacts for the given number of days.
func NewContactLog(window int) *ContactLog {
	if window < 1 {
		window = 1
	}
	return &ContactLog{window: window, days: make(map[int][]Contact)}
}

// Record stores one encounter.
func (l *ContactLog) Record(day int, src, dst int32) {
	l.days[day] = append(l.days[day], Contact{Src: src, Dst: dst})
}

// Prune drops days older than the window relative to the given day.
func (l *ContactLog) Prune(day int) {
	for d := range l.days {
		if d <= day-l.window {
			delete(l.days, d)
		}
	}
}

// Clear empties the log.
func (l *ContactLog) Clear() {
	l.days = make(map[int][]Contact)
}

// Len reports the number of retained contacts across all days.
func (l *ContactLog) Len() int {
	n := 0
	for _, cs := range l.days {
		n += len(cs)
	}
	return n
}

// ContactsOf returns the partners of the given agents over days [from, to),
// in either direction of the encounter, excluding the agents themselves.
// The result is sorted and duplicate-free.
func (l *ContactLog) ContactsOf(inds []int32, from, to int) []int32 {
	if len(inds) == 0 {
		return nil
	}
	index := make(map[int32]struct{}, len(inds))
	for _, i := range inds {
		index[i] = struct{}{}
	}
	found := map[int32]struct{}{}
	for d := from; d < to; d++ {
		for _, c := range l.days[d] {
			if _, ok := index[c.Src]; ok {
				if _, self := index[c.Dst]; !self {
					found[c.Dst] = struct{}{}
				}
			}
			if _, ok := index[c.Dst]; ok {
				if _, self := index[c.Src]; !self {
					found[c.Src] = struct{}{}
				}
			}
		}
	}
	if len(found) == 0 {
		return nil
	}
	out := make([]int32, 0, len(found))
	for i := range found {
		out = append(out, i)
	}
	slices.Sort(out)
	return out
}

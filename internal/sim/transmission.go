package sim

import (
	"github.com/xkilldash9x/episim/internal/dist"
	"github.com/xkilldash9x/episim/internal/people"
)

// TransmissionSource is one infectious agent in the day-start snapshot. Rate
// is the per-contact transmission probability with every source-side factor
// already folded in: base beta, any active beta change, the strain multiplier,
// the agent's relative transmissibility and any isolation or quarantine
// damping.
type TransmissionSource struct {
	Index  int32
	Strain int16
	Rate   float64
}

// Transmission is one successful infection event proposed by a transmitter.
type Transmission struct {
	Src    int32
	Dst    int32
	Strain int16
}

// TransmissionContext carries everything a transmitter needs for one day.
// AcqFactor returns the target-side multiplier for a candidate: relative
// susceptibility, quarantine damping and immune protection against the
// challenging strain.
type TransmissionContext struct {
	Day       int
	People    *people.People
	Rng       *dist.Stream
	Sources   []TransmissionSource
	AcqFactor func(dst int32, strain int16) float64
	Log       *ContactLog
}

// Transmitter decides who meets whom and which encounters transmit. The
// engine infects the returned targets; a target proposed twice on one day is
// infected once, first proposal wins.
type Transmitter interface {
	Label() string
	Transmit(tc *TransmissionContext) []Transmission
}

// RandomMixing pairs every infectious agent with a Poisson-distributed
// number of uniformly chosen partners each day. Every sampled encounter is
// recorded in the contact log whether or not it transmits, since tracing
// follows contacts, not infections.
type RandomMixing struct {
	Contacts float64
}

// NewRandomMixing builds the default transmitter with the given mean daily
// contact count.
func NewRandomMixing(contacts float64) *RandomMixing {
	return &RandomMixing{Contacts: contacts}
}

func (rm *RandomMixing) Label() string { return "random_mixing" }

func (rm *RandomMixing) Transmit(tc *TransmissionContext) []Transmission {
	p := tc.People
	if p.N < 2 {
		return nil
	}
	var out []Transmission
	for _, src := range tc.Sources {
		k := tc.Rng.Poisson(rm.Contacts)
		for c := 0; c < k; c++ {
			j := int32(tc.Rng.Intn(p.N))
			if j == src.Index {
				continue
			}
			if p.Is(people.Dead, j) {
				continue
			}
			tc.Log.Record(tc.Day, src.Index, j)
			if !p.Is(people.Susceptible, j) {
				continue
			}
			prob := src.Rate * tc.AcqFactor(j, src.Strain)
			if tc.Rng.Bernoulli(prob) {
				out = append(out, Transmission{Src: src.Index, Dst: j, Strain: src.Strain})
			}
		}
	}
	return out
}

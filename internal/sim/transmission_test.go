package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/episim/internal/dist"
	"github.com/xkilldash9x/episim/internal/people"
)

func mixContext(p *people.People, sources []TransmissionSource, seed int64) *TransmissionContext {
	return &TransmissionContext{
		Day:       1,
		People:    p,
		Rng:       dist.NewStream(seed),
		Sources:   sources,
		AcqFactor: func(int32, int16) float64 { return 1 },
		Log:       NewContactLog(7),
	}
}

func TestRandomMixingTransmits(t *testing.T) {
	p := people.New(50)
	p.Set(people.Susceptible, 0, false)
	p.Set(people.Naive, 0, false)
	p.Set(people.Exposed, 0, true)
	p.Set(people.Infectious, 0, true)

	tc := mixContext(p, []TransmissionSource{{Index: 0, Strain: 0, Rate: 1}}, 3)
	rm := NewRandomMixing(20)
	txs := rm.Transmit(tc)

	require.NotEmpty(t, txs, "a certain rate over ~20 contacts must land")
	for _, tx := range txs {
		assert.Equal(t, int32(0), tx.Src)
		assert.NotEqual(t, int32(0), tx.Dst, "no self infection")
		assert.True(t, p.Is(people.Susceptible, tx.Dst))
		assert.Equal(t, int16(0), tx.Strain)
	}
	assert.GreaterOrEqual(t, tc.Log.Len(), len(txs), "every encounter is logged")
}

func TestRandomMixingSkipsDeadAndImmune(t *testing.T) {
	p := people.New(10)
	for i := int32(1); i < 10; i++ {
		p.Set(people.Susceptible, i, false)
		p.Set(people.Naive, i, false)
		if i < 5 {
			p.Set(people.Dead, i, true)
		} else {
			p.Set(people.Recovered, i, true)
		}
	}

	tc := mixContext(p, []TransmissionSource{{Index: 0, Strain: 0, Rate: 1}}, 11)
	txs := NewRandomMixing(30).Transmit(tc)
	assert.Empty(t, txs, "nobody left to infect")

	// Dead partners never even appear in the log.
	for _, c := range tc.Log.ContactsOf([]int32{0}, 0, 2) {
		assert.False(t, p.Is(people.Dead, c))
	}
}

func TestRandomMixingZeroRate(t *testing.T) {
	p := people.New(20)
	tc := mixContext(p, []TransmissionSource{{Index: 3, Strain: 0, Rate: 0}}, 5)
	txs := NewRandomMixing(10).Transmit(tc)
	assert.Empty(t, txs)
	assert.Greater(t, tc.Log.Len(), 0, "contacts happen even when nothing transmits")
}

func TestRandomMixingTinyPopulation(t *testing.T) {
	p := people.New(1)
	tc := mixContext(p, []TransmissionSource{{Index: 0, Strain: 0, Rate: 1}}, 5)
	assert.Nil(t, NewRandomMixing(10).Transmit(tc))
}

func TestRandomMixingDeterminism(t *testing.T) {
	build := func() []Transmission {
		p := people.New(100)
		src := []TransmissionSource{{Index: 7, Strain: 0, Rate: 0.4}}
		return NewRandomMixing(15).Transmit(mixContext(p, src, 99))
	}
	assert.Equal(t, build(), build())
}

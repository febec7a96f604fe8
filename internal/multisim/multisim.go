// Package multisim runs an ensemble of simulations in parallel and reduces
// their outputs channel by channel.
package multisim

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/episim/internal/sim"
)

// Factory builds one member run. Implementations must return a fresh Sim
// with its own hooks each call; members run concurrently.
type Factory func(run int, seed int64) (*sim.Sim, error)

// Config sizes the ensemble.
type Config struct {
	Runs     int
	Parallel int   // max concurrent runs; 0 means GOMAXPROCS
	BaseSeed int64 // member k runs with BaseSeed + k
}

// MultiSim fans out member runs and collects their results in order.
type MultiSim struct {
	cfg     Config
	factory Factory
	log     *zap.Logger
}

// New validates the ensemble configuration.
func New(cfg Config, factory Factory, log *zap.Logger) (*MultiSim, error) {
	if cfg.Runs < 1 {
		return nil, fmt.Errorf("multisim: needs at least one run, got %d", cfg.Runs)
	}
	if factory == nil {
		return nil, fmt.Errorf("multisim: factory is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &MultiSim{cfg: cfg, factory: factory, log: log.Named("multisim")}, nil
}

// Run executes every member. The first failure cancels the rest.
func (m *MultiSim) Run(ctx context.Context) (*Ensemble, error) {
	limit := m.cfg.Parallel
	if limit < 1 {
		limit = runtime.GOMAXPROCS(0)
	}
	m.log.Info("starting ensemble",
		zap.Int("runs", m.cfg.Runs),
		zap.Int("parallel", limit),
		zap.Int64("base_seed", m.cfg.BaseSeed))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	results := make([]*sim.Results, m.cfg.Runs)
	for k := 0; k < m.cfg.Runs; k++ {
		g.Go(func() error {
			seed := m.cfg.BaseSeed + int64(k)
			s, err := m.factory(k, seed)
			if err != nil {
				return fmt.Errorf("build member %d: %w", k, err)
			}
			res, err := s.Run(ctx)
			if err != nil {
				return fmt.Errorf("member %d (seed %d): %w", k, seed, err)
			}
			results[k] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	m.log.Info("ensemble complete", zap.Int("runs", m.cfg.Runs))
	return &Ensemble{Members: results}, nil
}

// Ensemble holds the member results in run order.
type Ensemble struct {
	Members []*sim.Results
}

// reduce folds the members channel-wise. Every member must expose the same
// channels over the same horizon.
func (e *Ensemble) reduce(label string, fold func(samples []float64) float64) (*sim.Results, error) {
	if len(e.Members) == 0 {
		return nil, fmt.Errorf("multisim: empty ensemble")
	}
	first := e.Members[0]
	names := first.Names()
	npts := first.Npts()
	for k, member := range e.Members[1:] {
		if member.Npts() != npts || !slices.Equal(member.Names(), names) {
			return nil, fmt.Errorf("multisim: member %d has mismatched channels", k+1)
		}
	}

	out := sim.NewResults(npts, names)
	out.Label = label
	out.PopSize = first.PopSize
	out.Strains = slices.Clone(first.Strains)

	samples := make([]float64, len(e.Members))
	for _, name := range names {
		for t := 0; t < npts; t++ {
			for k, member := range e.Members {
				samples[k] = member.Get(name)[t]
			}
			if err := out.Set(name, t, fold(samples)); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// Mean returns the channel-wise ensemble mean.
func (e *Ensemble) Mean() (*sim.Results, error) {
	return e.reduce("mean", func(samples []float64) float64 {
		var sum float64
		for _, v := range samples {
			sum += v
		}
		return sum / float64(len(samples))
	})
}

// Median returns the channel-wise ensemble median.
func (e *Ensemble) Median() (*sim.Results, error) {
	return e.Quantile(0.5)
}

// Quantile returns the channel-wise q-quantile with linear interpolation
// between order statistics.
func (e *Ensemble) Quantile(q float64) (*sim.Results, error) {
	if q < 0 || q > 1 || math.IsNaN(q) {
		return nil, fmt.Errorf("multisim: quantile must be in [0,1], got %v", q)
	}
	label := fmt.Sprintf("q%g", q)
	if q == 0.5 {
		label = "median"
	}
	return e.reduce(label, func(samples []float64) float64 {
		sorted := slices.Clone(samples)
		slices.Sort(sorted)
		if len(sorted) == 1 {
			return sorted[0]
		}
		pos := q * float64(len(sorted)-1)
		lo := int(math.Floor(pos))
		if lo >= len(sorted)-1 {
			return sorted[len(sorted)-1]
		}
		frac := pos - float64(lo)
		return sorted[lo]*(1-frac) + sorted[lo+1]*frac
	})
}

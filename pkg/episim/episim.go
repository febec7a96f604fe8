// Package episim is the public face of the simulation engine. It re-exports
// the pieces a library consumer needs to configure, run, and reduce
// simulations without reaching into the internal packages.
package episim

import (
	"context"

	"github.com/xkilldash9x/episim/internal/config"
	"github.com/xkilldash9x/episim/internal/interventions"
	"github.com/xkilldash9x/episim/internal/multisim"
	"github.com/xkilldash9x/episim/internal/params"
	"github.com/xkilldash9x/episim/internal/sim"
	"github.com/xkilldash9x/episim/internal/strain"
)

// Core engine types.
type (
	// Pars is the full simulation parameter set. Zero values are not usable;
	// start from Defaults.
	Pars = params.Pars
	// Sim is a single configured simulation run.
	Sim = sim.Sim
	// Option customizes a Sim at construction.
	Option = sim.Option
	// Results holds every output channel of one run, indexed by day.
	Results = sim.Results
	// Hook is the intervention contract invoked once per simulated day.
	Hook = sim.Hook
	// Strain describes one circulating variant.
	Strain = strain.Strain
	// Transmitter decides who meets whom and which encounters transmit.
	// Implement it to replace the default random mixing with your own
	// contact structure.
	Transmitter = sim.Transmitter
	// TransmissionContext carries one day's inputs to a Transmitter.
	TransmissionContext = sim.TransmissionContext
	// TransmissionSource is one infectious agent in the day-start snapshot.
	TransmissionSource = sim.TransmissionSource
	// Transmission is one proposed infection event.
	Transmission = sim.Transmission
	// Scenario is a declarative simulation setup, usually loaded from a
	// YAML or JSON file.
	Scenario = config.Scenario
	// Ensemble holds the member results of a multi-run experiment.
	Ensemble = multisim.Ensemble
	// EnsembleConfig sizes a multi-run experiment.
	EnsembleConfig = multisim.Config
	// Factory builds one ensemble member.
	Factory = multisim.Factory
)

// Construction and configuration.
var (
	// Defaults returns the baseline parameter set.
	Defaults = params.Defaults
	// New builds a Sim from parameters and options.
	New = sim.New
	// NewMultiSim builds an ensemble runner.
	NewMultiSim = multisim.New
	// LoadScenario reads and validates a scenario file.
	LoadScenario = config.LoadScenario
	// ParseScenario validates and decodes raw scenario bytes.
	ParseScenario = config.ParseScenario

	// Sim options.
	WithLogger        = sim.WithLogger
	WithLabel         = sim.WithLabel
	WithHooks         = sim.WithHooks
	WithStrains       = sim.WithStrains
	WithTransmitter   = sim.WithTransmitter
	WithContactWindow = sim.WithContactWindow

	// Intervention constructors.
	NewTestProb       = interventions.NewTestProb
	NewContactTracing = interventions.NewContactTracing
	NewVaccinate      = interventions.NewVaccinate
	NewChangeBeta     = interventions.NewChangeBeta
)

// Run builds a simulation from pars and executes every day under ctx. It is
// the shortest path from parameters to results.
func Run(ctx context.Context, pars *Pars, opts ...Option) (*Results, error) {
	s, err := sim.New(pars, opts...)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx)
}

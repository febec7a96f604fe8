package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/google/uuid"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/episim/internal/config"
	"github.com/xkilldash9x/episim/internal/multisim"
	"github.com/xkilldash9x/episim/internal/observability"
	"github.com/xkilldash9x/episim/internal/params"
	"github.com/xkilldash9x/episim/internal/reporting"
	"github.com/xkilldash9x/episim/internal/sim"
	"github.com/xkilldash9x/episim/internal/store"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [scenario-file]",
		Short: "Runs a simulation scenario and writes the results",
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their corresponding Viper keys so command line
			// values override the config file and environment.
			for flag, key := range map[string]string{
				"runs":     "run.runs",
				"parallel": "run.parallel",
				"output":   "output.path",
				"format":   "output.format",
				"store":    "database.backend",
			} {
				if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Use the context passed from main (signal-aware).
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			// Re-unmarshal so the flag overrides bound in PreRunE land with
			// the right precedence.
			if err := viper.Unmarshal(cfg); err != nil {
				return fmt.Errorf("failed to apply flag overrides: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if cfg.Output.Path, err = homedir.Expand(cfg.Output.Path); err != nil {
				return fmt.Errorf("failed to resolve output path: %w", err)
			}

			scenario, err := loadScenarioOrDefault(args)
			if err != nil {
				return err
			}

			return runScenario(ctx, logger, cmd.OutOrStdout(), cfg, scenario)
		},
	}

	runCmd.Flags().IntP("runs", "n", 1, "Number of ensemble members to run. (Overrides config/env)")
	runCmd.Flags().IntP("parallel", "j", 0, "Max concurrent members, 0 uses every CPU. (Overrides config/env)")
	runCmd.Flags().StringP("output", "o", "", "Output path for the results. If unset, results print to stdout.")
	runCmd.Flags().StringP("format", "f", "json", "Output format ('json', 'csv', 'archive'). (Overrides config/env)")
	runCmd.Flags().String("store", "", "Run archive backend ('memory', 'postgres', 'sqlite'). (Overrides config/env)")

	return runCmd
}

// loadScenarioOrDefault reads the scenario file argument, or falls back to
// the built-in defaults when no file is given.
func loadScenarioOrDefault(args []string) (*config.Scenario, error) {
	if len(args) == 0 {
		return &config.Scenario{Pars: *params.Defaults()}, nil
	}
	return config.LoadScenario(args[0])
}

// runScenario contains the core, testable logic for the command: execute the
// configured ensemble, archive the runs, and write the report.
func runScenario(ctx context.Context, logger *zap.Logger, out io.Writer, cfg *config.Config, scenario *config.Scenario) error {
	logger.Info("Starting simulation",
		zap.String("scenario", scenario.Name),
		zap.Int("pop_size", scenario.Pars.PopSize),
		zap.Int("n_days", scenario.Pars.NDays),
		zap.Int("runs", cfg.Run.Runs),
	)

	results, err := executeScenario(ctx, logger, cfg, scenario)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("Simulation aborted", zap.String("scenario", scenario.Name))
			return fmt.Errorf("simulation aborted by user signal")
		}
		return err
	}

	if err := archiveResults(ctx, logger, cfg, results); err != nil {
		return err
	}
	if err := writeResults(cfg, results); err != nil {
		return err
	}

	if cfg.Output.Path != "" {
		fmt.Fprintf(out, "\nSimulation complete. %d result set(s) written to %s\n", len(results), cfg.Output.Path)
	}
	return nil
}

// buildMember constructs one simulation from the scenario. Hooks are built
// fresh per member because members run concurrently.
func buildMember(scenario *config.Scenario, seed int64, logger *zap.Logger) (*sim.Sim, error) {
	hooks, err := scenario.Hooks()
	if err != nil {
		return nil, err
	}

	pars := scenario.Pars
	pars.Seed = seed

	opts := []sim.Option{sim.WithLogger(logger)}
	if scenario.Name != "" {
		opts = append(opts, sim.WithLabel(scenario.Name))
	}
	if len(hooks) > 0 {
		opts = append(opts, sim.WithHooks(hooks...))
	}
	if len(scenario.Strains) > 0 {
		opts = append(opts, sim.WithStrains(scenario.Strains...))
	}
	return sim.New(&pars, opts...)
}

// executeScenario runs a single sim, or an ensemble with mean and median
// reductions appended.
func executeScenario(ctx context.Context, logger *zap.Logger, cfg *config.Config, scenario *config.Scenario) ([]*sim.Results, error) {
	if cfg.Run.Runs == 1 {
		s, err := buildMember(scenario, scenario.Pars.Seed, logger)
		if err != nil {
			return nil, err
		}
		res, err := s.Run(ctx)
		if err != nil {
			return nil, err
		}
		return []*sim.Results{res}, nil
	}

	ms, err := multisim.New(multisim.Config{
		Runs:     cfg.Run.Runs,
		Parallel: cfg.Run.Parallel,
		BaseSeed: scenario.Pars.Seed,
	}, func(run int, seed int64) (*sim.Sim, error) {
		return buildMember(scenario, seed, logger)
	}, logger)
	if err != nil {
		return nil, err
	}

	ensemble, err := ms.Run(ctx)
	if err != nil {
		return nil, err
	}

	results := slices.Clone(ensemble.Members)
	for _, reduce := range []func() (*sim.Results, error){ensemble.Mean, ensemble.Median} {
		res, err := reduce()
		if err != nil {
			return nil, err
		}
		// Reductions are synthesized, so they need their own identity.
		res.RunID = uuid.New().String()
		if scenario.Name != "" {
			res.Label = scenario.Name + "-" + res.Label
		}
		results = append(results, res)
	}
	return results, nil
}

// archiveResults persists the runs when a durable backend is configured.
func archiveResults(ctx context.Context, logger *zap.Logger, cfg *config.Config, results []*sim.Results) error {
	backend := cfg.Database.Backend
	if backend == "" || backend == "memory" {
		// An in-process archive would vanish with the command, so skip it.
		return nil
	}

	archive, err := store.Open(ctx, backend, cfg.Database.URL, logger)
	if err != nil {
		return fmt.Errorf("failed to open run archive: %w", err)
	}
	defer func() {
		if err := store.CloseIfSupported(archive); err != nil {
			logger.Warn("Failed to close run archive", zap.Error(err))
		}
	}()

	for _, res := range results {
		if err := archive.SaveRun(ctx, res); err != nil {
			return fmt.Errorf("failed to archive run %s: %w", res.RunID, err)
		}
	}
	logger.Info("Runs archived", zap.Int("count", len(results)), zap.String("backend", backend))
	return nil
}

// writeResults hands every run to the configured reporter.
func writeResults(cfg *config.Config, results []*sim.Results) error {
	reporter, err := reporting.New(cfg.Output.Format, cfg.Output.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize reporter: %w", err)
	}
	for _, res := range results {
		if err := reporter.Write(res); err != nil {
			_ = reporter.Close()
			return fmt.Errorf("failed to write results: %w", err)
		}
	}
	if err := reporter.Close(); err != nil {
		return fmt.Errorf("failed to finalize results output: %w", err)
	}
	return nil
}

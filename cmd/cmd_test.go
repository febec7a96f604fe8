package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/episim/internal/observability"
	"github.com/xkilldash9x/episim/internal/params"
	"github.com/xkilldash9x/episim/internal/reporting"
)

const smallScenario = `
name: smoke
pars:
  pop_size: 300
  pop_infected: 10
  n_days: 14
  seed: 3
`

// writeScenario drops a scenario file into a temp dir and returns its path.
func writeScenario(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// executeCommand runs a fresh root command against clean viper and logger
// state and returns its combined output.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	// Install a quiet logger up front so the command's own initialization
	// attempt is absorbed by the sync.Once.
	observability.ResetForTest()
	observability.Initialize(observability.Config{Level: "error", Format: "json"}, zapcore.AddSync(io.Discard))

	root := NewRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

// -- Command Wiring Tests --

func TestNewRootCommandStructure(t *testing.T) {
	root := NewRootCommand()

	names := make([]string, 0, 4)
	for _, sub := range root.Commands() {
		names = append(names, sub.Name())
	}
	for _, want := range []string{"run", "compare", "validate", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Equal(t, Version, strings.TrimSpace(out))
}

// -- Validate Command Tests --

func TestValidateCommand(t *testing.T) {
	t.Run("Valid Scenario", func(t *testing.T) {
		path := writeScenario(t, "ok.yaml", smallScenario)
		out, err := executeCommand(t, "validate", path)
		require.NoError(t, err)
		assert.Contains(t, out, "is valid")
		assert.Contains(t, out, `scenario "smoke"`)
	})

	t.Run("Schema Violation", func(t *testing.T) {
		path := writeScenario(t, "bad.yaml", "pars:\n  pop_size: -1\n")
		_, err := executeCommand(t, "validate", path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "schema validation")
	})

	t.Run("Semantic Violation", func(t *testing.T) {
		// Passes the schema (both fields are individually fine) but fails
		// parameter validation.
		path := writeScenario(t, "semantic.yaml", "pars:\n  pop_size: 100\n  pop_infected: 500\n")
		_, err := executeCommand(t, "validate", path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "scenario parameters invalid")
	})

	t.Run("Bad Intervention Wiring", func(t *testing.T) {
		doc := smallScenario + `
interventions:
  - kind: change_beta
    days: [3, 7]
    changes: [0.5]
`
		path := writeScenario(t, "hooks.yaml", doc)
		_, err := executeCommand(t, "validate", path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "scenario interventions invalid")
	})
}

// -- Run Command Tests --

func TestRunCommandWritesJSON(t *testing.T) {
	scenario := writeScenario(t, "run.yaml", smallScenario)
	outPath := filepath.Join(t.TempDir(), "out.json")

	out, err := executeCommand(t, "run", scenario, "-o", outPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Simulation complete")

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)

	var doc reporting.Document
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Len(t, doc.Runs, 1)

	run := doc.Runs[0]
	run.Reindex()
	assert.Equal(t, "smoke", run.Label)
	assert.Equal(t, 300, run.PopSize)
	assert.Len(t, run.Days, 15)
	assert.NotEmpty(t, run.RunID)
	require.NotNil(t, run.Get("cum_infections"))
	final := run.Get("cum_infections")[14]
	assert.GreaterOrEqual(t, final, 10.0, "seeded infections should appear in the totals")
}

func TestRunCommandEnsemble(t *testing.T) {
	scenario := writeScenario(t, "run.yaml", smallScenario)
	outPath := filepath.Join(t.TempDir(), "out.json")

	_, err := executeCommand(t, "run", scenario, "-n", "3", "-o", outPath)
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)

	var doc reporting.Document
	require.NoError(t, json.Unmarshal(data, &doc))
	// Three members plus the mean and median reductions.
	require.Len(t, doc.Runs, 5)
	assert.Equal(t, "smoke-mean", doc.Runs[3].Label)
	assert.Equal(t, "smoke-median", doc.Runs[4].Label)
	for _, run := range doc.Runs {
		assert.NotEmpty(t, run.RunID)
	}
}

func TestRunCommandRejectsBadFormat(t *testing.T) {
	scenario := writeScenario(t, "run.yaml", smallScenario)
	_, err := executeCommand(t, "run", scenario, "-f", "xml", "-o", filepath.Join(t.TempDir(), "out.xml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output.format must be one of")
}

func TestLoadScenarioOrDefault(t *testing.T) {
	sc, err := loadScenarioOrDefault(nil)
	require.NoError(t, err)
	assert.Equal(t, *params.Defaults(), sc.Pars)

	_, err = loadScenarioOrDefault([]string{filepath.Join(t.TempDir(), "absent.yaml")})
	assert.Error(t, err)
}

// -- Compare Command Tests --

func TestCompareCommand(t *testing.T) {
	scenario := writeScenario(t, "cmp.yaml", smallScenario)

	out, err := executeCommand(t, "compare", scenario)
	require.NoError(t, err)

	assert.Contains(t, out, "no waning")
	for _, name := range comparisonChannels {
		assert.Contains(t, out, name)
	}
}

package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/json-iterator/go"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/episim/internal/interventions"
	"github.com/xkilldash9x/episim/internal/params"
	"github.com/xkilldash9x/episim/internal/sim"
	"github.com/xkilldash9x/episim/internal/strain"
)

//go:embed scenario.schema.json
var scenarioSchemaJSON string

// scenarioSchema is compiled once at init; the schema ships inside the
// binary so validation works without any install footprint.
var scenarioSchema = jsonschema.MustCompileString("scenario.schema.json", scenarioSchemaJSON)

// Scenario is a single simulation setup loaded from a YAML or JSON file.
// Parameters left out of the file keep their default values.
type Scenario struct {
	Name          string             `mapstructure:"name" yaml:"name" json:"name"`
	Pars          params.Pars        `mapstructure:"pars" yaml:"pars" json:"pars"`
	Strains       []strain.Strain    `mapstructure:"strains" yaml:"strains" json:"strains,omitempty"`
	Interventions []InterventionSpec `mapstructure:"interventions" yaml:"interventions" json:"interventions,omitempty"`
}

// InterventionSpec is the declarative form of an intervention. Kind selects
// the implementation; the other fields apply where the kind uses them.
type InterventionSpec struct {
	Kind      string    `mapstructure:"kind" yaml:"kind" json:"kind"`
	SympProb  float64   `mapstructure:"symp_prob" yaml:"symp_prob" json:"symp_prob,omitempty"`
	AsympProb float64   `mapstructure:"asymp_prob" yaml:"asymp_prob" json:"asymp_prob,omitempty"`
	TraceProb float64   `mapstructure:"trace_prob" yaml:"trace_prob" json:"trace_prob,omitempty"`
	Prob      float64   `mapstructure:"prob" yaml:"prob" json:"prob,omitempty"`
	Delay     int       `mapstructure:"delay" yaml:"delay" json:"delay,omitempty"`
	StartDay  int       `mapstructure:"start_day" yaml:"start_day" json:"start_day,omitempty"`
	EndDay    int       `mapstructure:"end_day" yaml:"end_day" json:"end_day,omitempty"`
	Window    int       `mapstructure:"window" yaml:"window" json:"window,omitempty"`
	Days      []int     `mapstructure:"days" yaml:"days" json:"days,omitempty"`
	Changes   []float64 `mapstructure:"changes" yaml:"changes" json:"changes,omitempty"`
}

// Build constructs the runnable hook this entry describes.
func (is *InterventionSpec) Build() (sim.Hook, error) {
	switch is.Kind {
	case "test_prob":
		tp := interventions.NewTestProb(is.SympProb, is.AsympProb, is.Delay)
		tp.StartDay = is.StartDay
		tp.EndDay = is.EndDay
		return tp, nil
	case "contact_tracing":
		ct := interventions.NewContactTracing(is.TraceProb, is.Delay)
		if is.Window > 0 {
			ct.Window = is.Window
		}
		return ct, nil
	case "vaccinate":
		return interventions.NewVaccinate(is.Prob, is.Days...), nil
	case "change_beta":
		return interventions.NewChangeBeta(is.Days, is.Changes)
	default:
		return nil, fmt.Errorf("unknown intervention kind %q", is.Kind)
	}
}

// Hooks builds every intervention in declaration order.
func (s *Scenario) Hooks() ([]sim.Hook, error) {
	hooks := make([]sim.Hook, 0, len(s.Interventions))
	for i := range s.Interventions {
		h, err := s.Interventions[i].Build()
		if err != nil {
			return nil, fmt.Errorf("intervention %d: %w", i, err)
		}
		hooks = append(hooks, h)
	}
	return hooks, nil
}

// LoadScenario reads and parses a scenario file, picking the format from the
// file extension.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseScenario(data, "yaml")
	case ".json":
		return ParseScenario(data, "json")
	default:
		return nil, fmt.Errorf("unsupported scenario file extension %q (want .yaml, .yml or .json)", filepath.Ext(path))
	}
}

// ParseScenario validates raw scenario bytes against the schema and decodes
// them on top of the default parameter set. format is "yaml" or "json".
func ParseScenario(data []byte, format string) (*Scenario, error) {
	doc, err := decodeForValidation(data, format)
	if err != nil {
		return nil, err
	}
	if err := scenarioSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("scenario failed schema validation: %w", err)
	}

	// Start from the defaults so a file only has to name what it changes.
	sc := &Scenario{Pars: *params.Defaults()}
	switch format {
	case "yaml":
		if err := yaml.Unmarshal(data, sc); err != nil {
			return nil, fmt.Errorf("failed to decode scenario: %w", err)
		}
	case "json":
		if err := json.Unmarshal(data, sc); err != nil {
			return nil, fmt.Errorf("failed to decode scenario: %w", err)
		}
	}
	return sc, nil
}

// decodeForValidation produces the JSON-shaped value the schema validator
// expects. YAML input is round-tripped through JSON because the validator
// only understands JSON number and map types.
func decodeForValidation(data []byte, format string) (any, error) {
	switch format {
	case "yaml":
		var raw any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse scenario YAML: %w", err)
		}
		buf, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to normalize scenario YAML: %w", err)
		}
		var doc any
		if err := json.Unmarshal(buf, &doc); err != nil {
			return nil, fmt.Errorf("failed to normalize scenario YAML: %w", err)
		}
		return doc, nil
	case "json":
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse scenario JSON: %w", err)
		}
		return doc, nil
	default:
		return nil, fmt.Errorf("unsupported scenario format %q", format)
	}
}

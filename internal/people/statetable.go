package people

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

// StateDiagramYAML is the machine-readable export of the implication
// matrices, consumed by external validation tooling and by the test suite.
//
//go:embed state_diagram.yaml
var StateDiagramYAML []byte

// LoadStateDiagram parses a serialized state diagram into one matrix per
// immunity mode (keys "waning" and "non_waning").
func LoadStateDiagram(data []byte) (map[string]*Matrix, error) {
	var raw map[string]map[string]map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing state diagram: %w", err)
	}
	out := make(map[string]*Matrix, len(raw))
	for mode, froms := range raw {
		m := &Matrix{}
		for fromName, tos := range froms {
			from, err := ParseState(fromName)
			if err != nil {
				return nil, fmt.Errorf("state diagram %s: %w", mode, err)
			}
			for toName, relName := range tos {
				to, err := ParseState(toName)
				if err != nil {
					return nil, fmt.Errorf("state diagram %s/%s: %w", mode, fromName, err)
				}
				rel, err := ParseRelation(relName)
				if err != nil {
					return nil, fmt.Errorf("state diagram %s/%s/%s: %w", mode, fromName, toName, err)
				}
				m[from][to] = rel
			}
		}
		out[mode] = m
	}
	return out, nil
}

package people

import (
	"fmt"
	"sort"
	"strings"
)

// State enumerates the boolean health flags tracked per agent.
type State uint8

const (
	Susceptible State = iota
	Naive
	Exposed
	Infectious
	Symptomatic
	Severe
	Critical
	Recovered
	Dead
	Tested
	Diagnosed
	Quarantined
	KnownContact
	Vaccinated
	NumStates
)

var stateNames = [NumStates]string{
	"susceptible", "naive", "exposed", "infectious", "symptomatic",
	"severe", "critical", "recovered", "dead", "tested", "diagnosed",
	"quarantined", "known_contact", "vaccinated",
}

func (s State) String() string {
	if s < NumStates {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// ParseState maps a flag name back to its State.
func ParseState(name string) (State, error) {
	for i, n := range stateNames {
		if n == name {
			return State(i), nil
		}
	}
	return 0, fmt.Errorf("unknown state %q", name)
}

// AllStates lists every flag in declaration order.
func AllStates() []State {
	out := make([]State, NumStates)
	for i := range out {
		out[i] = State(i)
	}
	return out
}

// Relation is one entry of the implication matrix.
type Relation int8

const (
	Unconstrained Relation = iota
	ImpliesTrue
	ImpliesFalse
)

func (r Relation) String() string {
	switch r {
	case ImpliesTrue:
		return "implies-true"
	case ImpliesFalse:
		return "implies-false"
	default:
		return "unconstrained"
	}
}

// ParseRelation maps a relation name back to its Relation.
func ParseRelation(name string) (Relation, error) {
	switch name {
	case "implies-true":
		return ImpliesTrue, nil
	case "implies-false":
		return ImpliesFalse, nil
	case "unconstrained":
		return Unconstrained, nil
	}
	return 0, fmt.Errorf("unknown relation %q", name)
}

// Matrix is the declarative implication table: Matrix[from][to] states what
// must hold for flag `to` whenever flag `from` is set. Transition rules are
// written so the matrix is satisfied by construction; the mechanical check
// exists to catch when they are not.
type Matrix [NumStates][NumStates]Relation

func (m *Matrix) implies(from State, to ...State) {
	for _, t := range to {
		m[from][t] = ImpliesTrue
	}
}

func (m *Matrix) excludes(from State, to ...State) {
	for _, t := range to {
		m[from][t] = ImpliesFalse
	}
}

func (m *Matrix) common() {
	m.excludes(Susceptible, Exposed, Infectious, Symptomatic, Severe, Critical, Dead)
	m.implies(Naive, Susceptible)
	m.excludes(Naive, Exposed, Recovered, Dead)
	m.excludes(Exposed, Susceptible, Naive, Recovered, Dead)
	m.implies(Infectious, Exposed)
	m.implies(Symptomatic, Infectious)
	m.implies(Severe, Symptomatic)
	m.implies(Critical, Severe)
	m.excludes(Recovered, Naive, Exposed, Dead)
	m.excludes(Dead, Susceptible, Naive, Exposed, Infectious, Symptomatic,
		Severe, Critical, Recovered, Quarantined, KnownContact)
	m.implies(Diagnosed, Tested)
	m.excludes(Quarantined, Dead)
}

// WaningMatrix returns the implication matrix for the waning-immunity mode,
// where recovery restores susceptibility immediately and protection is
// carried by antibody titers instead of a permanent flag.
func WaningMatrix() *Matrix {
	m := &Matrix{}
	m.common()
	m.implies(Recovered, Susceptible)
	return m
}

// NonWaningMatrix returns the matrix for permanent post-recovery immunity:
// recovered agents are never susceptible again, and the susceptible pool is
// exactly the never-infected.
func NonWaningMatrix() *Matrix {
	m := &Matrix{}
	m.common()
	m.excludes(Recovered, Susceptible)
	m.implies(Susceptible, Naive)
	return m
}

// MatrixFor selects the matrix for an immunity mode.
func MatrixFor(waning bool) *Matrix {
	if waning {
		return WaningMatrix()
	}
	return NonWaningMatrix()
}

// maxReportedAgents caps how many offending indices one violation carries.
const maxReportedAgents = 10

// Violation is a single broken matrix entry with the agents that break it.
type Violation struct {
	From     State
	To       State
	Relation Relation
	Count    int
	Agents   []int32 // first few offenders
}

func (v Violation) String() string {
	return fmt.Sprintf("%s %s %s: %d agents (e.g. %v)",
		v.From, v.Relation, v.To, v.Count, v.Agents)
}

// InvariantError reports every implication-matrix violation found on one
// day, identifying the relations broken and the offending agent indices so
// the failure can be correlated with the scenario that produced it.
type InvariantError struct {
	Day        int
	Violations []Violation
}

func (e *InvariantError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	sort.Strings(parts)
	return fmt.Sprintf("state invariants violated on day %d: %s",
		e.Day, strings.Join(parts, "; "))
}

// Check walks every defined relation over the whole population and returns
// an InvariantError describing all violations, or nil.
func (m *Matrix) Check(p *People, day int) error {
	var violations []Violation
	for from := State(0); from < NumStates; from++ {
		src := p.flags[from]
		for to := State(0); to < NumStates; to++ {
			rel := m[from][to]
			if rel == Unconstrained {
				continue
			}
			dst := p.flags[to]
			want := rel == ImpliesTrue
			var bad []int32
			count := 0
			for i := 0; i < p.N; i++ {
				if src[i] && dst[i] != want {
					count++
					if len(bad) < maxReportedAgents {
						bad = append(bad, int32(i))
					}
				}
			}
			if count > 0 {
				violations = append(violations, Violation{
					From: from, To: to, Relation: rel,
					Count: count, Agents: bad,
				})
			}
		}
	}
	if len(violations) == 0 {
		return nil
	}
	return &InvariantError{Day: day, Violations: violations}
}

package problem

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// jsonOperator mirrors Operator with the condition/effect maps and nested
// conditional-effect list in a directly JSON-decodable shape.
type jsonOperator struct {
	ID      OpID          `json:"id"`
	Name    string        `json:"name"`
	Pre     PartialState  `json:"pre"`
	Eff     PartialState  `json:"eff"`
	CondEff []jsonCondEff `json:"cond_eff,omitempty"`
	Cost    int           `json:"cost"`
	Owner   int           `json:"owner"`
	Private bool          `json:"private"`
}

type jsonCondEff struct {
	Pre PartialState `json:"pre"`
	Eff PartialState `json:"eff"`
}

type jsonProblem struct {
	Vars      []Var          `json:"vars"`
	Ops       []jsonOperator `json:"ops"`
	Initial   State          `json:"initial"`
	Goal      PartialState   `json:"goal"`
	AgentID   int            `json:"agent_id"`
	NumAgents int            `json:"num_agents"`
}

// Load reads a JSON-encoded Problem from path. This is a stand-in loader:
// the real input pipeline (PDDL/proto parsing, grounding, SAS+ encoding,
// causal-graph analysis) is an external collaborator out of scope for
// this repo — Load only hydrates the already-grounded shape Problem
// already declares, as a concrete way to drive the CLI end to end without
// a real parser attached.
func Load(path string) (*Problem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("problem: open %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a JSON-encoded Problem from r.
func Decode(r io.Reader) (*Problem, error) {
	var jp jsonProblem
	if err := json.NewDecoder(r).Decode(&jp); err != nil {
		return nil, fmt.Errorf("problem: decode: %w", err)
	}
	prob := &Problem{
		Vars:      jp.Vars,
		Initial:   jp.Initial,
		Goal:      jp.Goal,
		AgentID:   jp.AgentID,
		NumAgents: jp.NumAgents,
	}
	prob.Ops = make([]Operator, len(jp.Ops))
	for i, op := range jp.Ops {
		ce := make([]CondEff, len(op.CondEff))
		for j, c := range op.CondEff {
			ce[j] = CondEff{Pre: c.Pre, Eff: c.Eff}
		}
		prob.Ops[i] = Operator{
			ID:      op.ID,
			Name:    op.Name,
			Pre:     op.Pre,
			Eff:     op.Eff,
			CondEff: ce,
			Cost:    op.Cost,
			Owner:   op.Owner,
			Private: op.Private,
		}
	}
	if err := validate(prob); err != nil {
		return nil, err
	}
	return prob, nil
}

func validate(p *Problem) error {
	if len(p.Initial) != len(p.Vars) {
		return fmt.Errorf("problem: initial state has %d variables, want %d", len(p.Initial), len(p.Vars))
	}
	if p.NumAgents <= 0 {
		return fmt.Errorf("problem: num_agents must be positive, got %d", p.NumAgents)
	}
	if p.AgentID < 0 || p.AgentID >= p.NumAgents {
		return fmt.Errorf("problem: agent_id %d out of range [0,%d)", p.AgentID, p.NumAgents)
	}
	for i, v := range p.Vars {
		if p.Initial[i] < 0 || p.Initial[i] >= v.Range {
			return fmt.Errorf("problem: initial value %d for variable %q out of range [0,%d)", p.Initial[i], v.Name, v.Range)
		}
	}
	for _, op := range p.Ops {
		if op.Owner < 0 || op.Owner >= p.NumAgents {
			return fmt.Errorf("problem: operator %q has owner %d out of range [0,%d)", op.Name, op.Owner, p.NumAgents)
		}
	}
	return nil
}

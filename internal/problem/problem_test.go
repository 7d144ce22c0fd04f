package problem

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyUnconditionalEffect(t *testing.T) {
	require := require.New(t)
	op := &Operator{
		Pre: PartialState{0: 0},
		Eff: PartialState{0: 1, 2: 3},
	}
	s := State{0, 5, 0}
	require.True(op.Applicable(s))

	out := op.Apply(s)
	require.Equal(State{1, 5, 3}, out)
	require.Equal(State{0, 5, 0}, s, "Apply must not mutate its input")
}

func TestApplyConditionalEffectWinsOverUnconditional(t *testing.T) {
	require := require.New(t)
	op := &Operator{
		Pre: PartialState{},
		Eff: PartialState{1: 1},
		CondEff: []CondEff{
			{Pre: PartialState{0: 1}, Eff: PartialState{1: 2}},
		},
	}

	// Condition holds: the conditional assignment lands after (and over)
	// the unconditional one.
	require.Equal(State{1, 2}, op.Apply(State{1, 0}))
	// Condition evaluated against the pre-operator state: it doesn't hold
	// here, so only the unconditional effect applies.
	require.Equal(State{0, 1}, op.Apply(State{0, 0}))
}

func TestSatisfiesPartialState(t *testing.T) {
	require := require.New(t)
	s := State{1, 2, 3}
	require.True(s.Satisfies(PartialState{0: 1, 2: 3}))
	require.True(s.Satisfies(PartialState{}))
	require.False(s.Satisfies(PartialState{1: 0}))
	require.False(s.Satisfies(PartialState{7: 0}), "a variable outside the state never satisfies")
}

const problemJSON = `{
	"vars": [
		{"name": "x", "range": 2, "private": false},
		{"name": "y", "range": 2, "private": true}
	],
	"ops": [
		{"id": 0, "name": "a", "pre": {"0": 0}, "eff": {"0": 1}, "cost": 3, "owner": 0},
		{"id": 1, "name": "b", "pre": {"0": 1}, "eff": {"1": 1}, "cost": 1, "owner": 1, "private": true,
		 "cond_eff": [{"pre": {"1": 0}, "eff": {"0": 0}}]}
	],
	"initial": [0, 0],
	"goal": {"0": 1, "1": 1},
	"agent_id": 0,
	"num_agents": 2
}`

func TestDecodeProblem(t *testing.T) {
	require := require.New(t)
	prob, err := Decode(strings.NewReader(problemJSON))
	require.NoError(err)

	require.Len(prob.Vars, 2)
	require.True(prob.Vars[1].Private)
	require.Len(prob.Ops, 2)
	require.Equal(3, prob.Ops[0].Cost)
	require.True(prob.Ops[1].Private)
	require.Len(prob.Ops[1].CondEff, 1)
	require.Equal(State{0, 0}, prob.Initial)
	require.Equal(PartialState{0: 1, 1: 1}, prob.Goal)
	require.Equal(0, prob.AgentID)
	require.Equal(2, prob.NumAgents)
}

func TestDecodeRejectsInconsistentInput(t *testing.T) {
	cases := map[string]string{
		"short initial":      `{"vars": [{"name":"x","range":2}], "initial": [], "goal": {}, "agent_id": 0, "num_agents": 1}`,
		"bad agent id":       `{"vars": [{"name":"x","range":2}], "initial": [0], "goal": {}, "agent_id": 2, "num_agents": 2}`,
		"no agents":          `{"vars": [{"name":"x","range":2}], "initial": [0], "goal": {}, "agent_id": 0, "num_agents": 0}`,
		"value out of range": `{"vars": [{"name":"x","range":2}], "initial": [5], "goal": {}, "agent_id": 0, "num_agents": 1}`,
		"bad owner":          `{"vars": [{"name":"x","range":2}], "ops": [{"id":0,"name":"a","pre":{},"eff":{},"owner":3}], "initial": [0], "goal": {}, "agent_id": 0, "num_agents": 1}`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(in))
			require.Error(t, err)
		})
	}
}

package search

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/danfis/maplan-go/internal/heuristic"
	"github.com/danfis/maplan-go/internal/problem"
	"github.com/danfis/maplan-go/internal/state"
	"github.com/danfis/maplan-go/internal/succgen"
)

// buildChain builds a two-variable problem {x,y: range 2} with operators
// a: pre{x=0} eff{x=1} cost 1, b: pre{x=1,y=0} eff{y=1} cost 1, goal {x=1,y=1}.
func buildChain() *problem.Problem {
	vars := []problem.Var{{Name: "x", Range: 2}, {Name: "y", Range: 2}}
	ops := []problem.Operator{
		{ID: 0, Name: "a", Pre: problem.PartialState{0: 0}, Eff: problem.PartialState{0: 1}, Cost: 1},
		{ID: 1, Name: "b", Pre: problem.PartialState{0: 1, 1: 0}, Eff: problem.PartialState{1: 1}, Cost: 1},
	}
	return &problem.Problem{
		Vars:    vars,
		Ops:     ops,
		Initial: problem.State{0, 0},
		Goal:    problem.PartialState{0: 1, 1: 1},
	}
}

func TestAStarFindsOptimalPath(t *testing.T) {
	require := require.New(t)
	prob := buildChain()
	pool := state.NewPool(prob.Vars)
	gen := succgen.New(prob.Ops, []problem.VarID{0, 1})
	heur := heuristic.NewBlind(nil)

	var expanded int
	var found bool
	s := New(prob, pool, gen, heur, AStar, Hooks{
		ExpandedNode: func(id state.ID) { expanded++ },
		ReachedGoal:  func(id state.ID) { found = true },
	})

	res := s.Run()
	require.Equal(Found, res)
	require.True(found)
	require.Greater(expanded, 0)

	node := pool.Node(s.GoalState())
	require.Equal(2, node.Cost)
}

func TestLazyBestFirstFindsPath(t *testing.T) {
	require := require.New(t)
	prob := buildChain()
	pool := state.NewPool(prob.Vars)
	gen := succgen.New(prob.Ops, []problem.VarID{0, 1})
	heur := heuristic.NewBlind(nil)

	s := New(prob, pool, gen, heur, LazyBestFirst, Hooks{})
	res := s.Run()
	require.Equal(Found, res)
}

func TestEHCFindsPath(t *testing.T) {
	require := require.New(t)
	prob := buildChain()
	pool := state.NewPool(prob.Vars)
	gen := succgen.New(prob.Ops, []problem.VarID{0, 1})
	heur := heuristic.NewBlind(nil)

	s := New(prob, pool, gen, heur, EHC, Hooks{})
	res := s.Run()
	require.Equal(Found, res)
}

func TestSearchReturnsNotFoundWhenUnsolvable(t *testing.T) {
	require := require.New(t)
	vars := []problem.Var{{Name: "x", Range: 2}}
	prob := &problem.Problem{
		Vars:    vars,
		Ops:     nil,
		Initial: problem.State{0},
		Goal:    problem.PartialState{0: 1},
	}
	pool := state.NewPool(prob.Vars)
	gen := succgen.New(prob.Ops, []problem.VarID{0})
	heur := heuristic.NewBlind(nil)

	s := New(prob, pool, gen, heur, AStar, Hooks{})
	res := s.Run()
	require.Equal(NotFound, res)
}

func TestStepKeepsFiringPostStepAfterConclusion(t *testing.T) {
	require := require.New(t)
	prob := buildChain()
	pool := state.NewPool(prob.Vars)
	gen := succgen.New(prob.Ops, []problem.VarID{0, 1})

	var calls []Result
	s := New(prob, pool, gen, heuristic.NewBlind(nil), AStar, Hooks{
		PostStep: func(res Result) { calls = append(calls, res) },
	})
	require.Equal(Found, s.Run())
	n := len(calls)

	// The caller keeps stepping a concluded search while waiting on
	// external traffic; the hook must keep firing with the cached result.
	require.Equal(Found, s.Step())
	require.Equal(Found, s.Step())
	require.Len(calls, n+2)
	require.Equal(Found, calls[len(calls)-1])
}

func TestInsertExternalRevivesConcludedSearch(t *testing.T) {
	require := require.New(t)
	vars := []problem.Var{{Name: "x", Range: 3}}
	prob := &problem.Problem{
		Vars:    vars,
		Ops:     []problem.Operator{{ID: 0, Name: "step", Pre: problem.PartialState{0: 1}, Eff: problem.PartialState{0: 2}, Cost: 1}},
		Initial: problem.State{0},
		Goal:    problem.PartialState{0: 2},
	}
	pool := state.NewPool(prob.Vars)
	gen := succgen.New(prob.Ops, []problem.VarID{0})

	s := New(prob, pool, gen, heuristic.NewBlind(nil), AStar, Hooks{})
	require.Equal(NotFound, s.Run(), "x=1 is unreachable locally")

	// A peer hands over x=1; the search must resume and reach the goal.
	id := pool.InsertState(problem.State{1})
	pool.Node(id).Cost = 5
	require.True(s.InsertExternal(id))
	require.Equal(Unknown, s.Result())
	require.Equal(Found, s.Run())
	require.Equal(6, pool.Node(s.GoalState()).Cost)
}

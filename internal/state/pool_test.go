package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/danfis/maplan-go/internal/problem"
)

func TestPoolInsertIdempotent(t *testing.T) {
	require := require.New(t)
	pool := NewPool(testVars())

	s := problem.State{1, 0, 2, 1}
	id1 := pool.InsertState(s)
	id2 := pool.InsertState(s.Clone())

	require.Equal(id1, id2)
	require.Equal(1, pool.Size())
}

func TestPoolInsertAssignsDenseIDs(t *testing.T) {
	require := require.New(t)
	pool := NewPool(testVars())

	id0 := pool.InsertState(problem.State{0, 0, 0, 0})
	id1 := pool.InsertState(problem.State{1, 0, 0, 0})
	id2 := pool.InsertState(problem.State{0, 0, 0, 0})

	require.Equal(ID(0), id0)
	require.Equal(ID(1), id1)
	require.Equal(id0, id2)
	require.Equal(2, pool.Size())
}

func TestPoolNodeDefaults(t *testing.T) {
	require := require.New(t)
	pool := NewPool(testVars())

	id := pool.InsertState(problem.State{0, 0, 0, 0})
	n := pool.Node(id)

	require.Equal(NoState, n.Parent)
	require.Equal(NoOp, n.Op)
	require.Equal(HeurNotEvaluated, n.Heur)
	require.Equal(StatusNew, n.Status)
}

func TestPoolStateRoundTrip(t *testing.T) {
	require := require.New(t)
	pool := NewPool(testVars())

	s := problem.State{2, 1, 7, 0}
	id := pool.InsertState(s)
	require.Equal(s, pool.State(id))
}

func TestReserveDataTracksInsertions(t *testing.T) {
	require := require.New(t)
	pool := NewPool(testVars())

	id0 := pool.InsertState(problem.State{0, 0, 0, 0})

	refs := ReserveData(pool, NoPublicRef)
	require.Equal(NoPublicRef, refs.Get(id0), "states inserted before the reservation are backfilled")

	id1 := pool.InsertState(problem.State{1, 0, 0, 0})
	require.Equal(NoPublicRef, refs.Get(id1))

	refs.Set(id1, PublicRef{AgentID: 2, RemoteStateID: 17})
	require.Equal(PublicRef{AgentID: 2, RemoteStateID: 17}, refs.Get(id1))
	require.Equal(NoPublicRef, refs.Get(id0))

	// Re-inserting an existing buffer must not grow the table or disturb
	// stored values.
	require.Equal(id1, pool.InsertState(problem.State{1, 0, 0, 0}))
	require.Equal(PublicRef{AgentID: 2, RemoteStateID: 17}, refs.Get(id1))
}

func TestReserveDataIndependentTables(t *testing.T) {
	require := require.New(t)
	pool := NewPool(testVars())

	depths := ReserveData(pool, -1)
	refs := ReserveData(pool, NoPublicRef)

	id := pool.InsertState(problem.State{0, 1, 0, 1})
	depths.Set(id, 4)

	require.Equal(4, depths.Get(id))
	require.Equal(NoPublicRef, refs.Get(id))
}

func TestInsertPublicKeysOnFullWidthSurrogate(t *testing.T) {
	require := require.New(t)
	// One public, one private variable: the packed private region is a
	// single byte, far narrower than a surrogate.
	vars := []problem.Var{
		{Name: "pub", Range: 4},
		{Name: "priv", Range: 4, Private: true},
	}
	pool := NewPool(vars)
	public := []byte{2}

	a := pool.InsertPublic(public, 1)
	b := pool.InsertPublic(public, 1)
	require.Equal(a, b, "identical (public, surrogate) pairs collapse")

	// 257 and 1 share their low byte; a full-width identity must still
	// tell them apart.
	c := pool.InsertPublic(public, 257)
	require.NotEqual(a, c)

	d := pool.InsertPublic(public, 2)
	require.NotEqual(a, d)
	require.NotEqual(c, d)
}

func TestInsertPublicDistinctFromLocalStates(t *testing.T) {
	require := require.New(t)
	vars := []problem.Var{{Name: "pub", Range: 4}}
	pool := NewPool(vars)

	local := pool.InsertState(problem.State{3})
	peer := pool.InsertPublic([]byte{3}, 0)
	require.NotEqual(local, peer, "a peer state is only ever identified through its sender's fingerprint, never unified with a locally packed buffer")
	require.Equal(peer, pool.InsertPublic([]byte{3}, 0))
}

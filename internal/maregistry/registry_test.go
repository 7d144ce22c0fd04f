package maregistry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSurrogateStableForIdenticalFingerprint(t *testing.T) {
	require := require.New(t)
	r := New(3)

	a := r.Surrogate(1, []int32{5, 6})
	b := r.Surrogate(1, []int32{5, 6})
	require.Equal(a, b)
}

func TestSurrogateDistinctForDifferentFingerprint(t *testing.T) {
	require := require.New(t)
	r := New(3)

	a := r.Surrogate(1, []int32{5, 6})
	b := r.Surrogate(1, []int32{5, 7})
	require.NotEqual(a, b)
}

func TestSurrogateIsolatedPerPeer(t *testing.T) {
	require := require.New(t)
	r := New(3)

	a := r.Surrogate(1, []int32{5, 6})
	b := r.Surrogate(2, []int32{5, 6})
	require.Equal(a, b, "both are peer-local first surrogates, so they coincide numerically")

	// but they are tracked in independent tables: a later distinct
	// fingerprint from peer 1 doesn't collide with peer 2's entries.
	c := r.Surrogate(1, []int32{1, 2})
	require.NotEqual(a, c)
}

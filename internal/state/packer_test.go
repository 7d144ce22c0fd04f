package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/danfis/maplan-go/internal/problem"
)

func testVars() []problem.Var {
	return []problem.Var{
		{Name: "a", Range: 4, Private: false},
		{Name: "b", Range: 2, Private: true},
		{Name: "c", Range: 8, Private: false},
		{Name: "d", Range: 2, Private: true},
	}
}

func TestPackerRoundTrip(t *testing.T) {
	require := require.New(t)
	p := NewPacker(testVars())

	require.Equal(2, p.PublicSize())
	require.Equal(2, p.PrivateSize())
	require.Equal(4, p.BufSize())

	s := problem.State{3, 1, 5, 0}
	buf := p.Pack(s)
	require.Equal(s, p.Unpack(buf))
}

func TestPackerPublicPrivateSlices(t *testing.T) {
	require := require.New(t)
	p := NewPacker(testVars())

	s := problem.State{3, 1, 5, 0}
	buf := p.Pack(s)

	require.Equal([]byte{3, 5}, p.PublicSlice(buf))
	require.Equal([]byte{1, 0}, p.PrivateSlice(buf))
}

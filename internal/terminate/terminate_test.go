package terminate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/danfis/maplan-go/internal/message"
)

// bus wires N controllers together so SendTo/SendToAll calls made through
// one agent's comm are delivered synchronously into the others' Dispatch,
// the same shape internal/snapshot's registry tests use.
type bus struct {
	ctrls []*Controller
}

type busComm struct {
	b    *bus
	self int
}

func (c *busComm) SendTo(peer int, msg *message.Message) error {
	return c.b.ctrls[peer].Dispatch(&busComm{b: c.b, self: peer}, msg)
}

func (c *busComm) SendToAll(msg *message.Message) error {
	for i, ctrl := range c.b.ctrls {
		if i == c.self {
			continue
		}
		if err := ctrl.Dispatch(&busComm{b: c.b, self: i}, msg); err != nil {
			return err
		}
	}
	return nil
}

func newBus(n int) *bus {
	b := &bus{}
	for i := 0; i < n; i++ {
		b.ctrls = append(b.ctrls, New(i, n))
	}
	return b
}

func TestTerminationRunsToCompletionAcrossFiveAgents(t *testing.T) {
	require := require.New(t)
	const n = 5
	b := newBus(n)

	terminated := make([]bool, n)
	payloads := make([]Payload, n)
	for i, ctrl := range b.ctrls {
		idx := i
		ctrl.OnTerminated = func(p Payload) {
			terminated[idx] = true
			payloads[idx] = p
		}
	}

	path := []message.PathEntry{{Name: "move", Cost: 1, OpID: 3}}
	b.ctrls[0].SetPayload(Payload{Result: OutcomeFound, Path: path})

	require.NoError(b.ctrls[0].Start(&busComm{b: b, self: 0}))

	for i := 0; i < n; i++ {
		require.True(terminated[i], "agent %d never terminated", i)
		require.Equal(OutcomeFound, payloads[i].Result)
		require.Equal(path, payloads[i].Path)
		require.True(b.ctrls[i].IsTerminated())
	}
}

func TestTerminationInitiatedByNonZeroAgent(t *testing.T) {
	require := require.New(t)
	const n = 4
	b := newBus(n)

	var count int
	for _, ctrl := range b.ctrls {
		ctrl.OnTerminated = func(Payload) { count++ }
	}
	b.ctrls[2].SetPayload(Payload{Result: OutcomeNotFound})

	require.NoError(b.ctrls[2].Start(&busComm{b: b, self: 2}))

	require.Equal(n, count)
	for i := 0; i < n; i++ {
		require.Equal(2, b.ctrls[i].InitiatorID())
		require.Equal(i == 2, b.ctrls[i].IsInitiator())
	}
}

func TestTerminationSingleAgentCompletesImmediately(t *testing.T) {
	require := require.New(t)
	b := newBus(1)
	var done bool
	b.ctrls[0].OnTerminated = func(Payload) { done = true }
	b.ctrls[0].SetPayload(Payload{Result: OutcomeFound})

	require.NoError(b.ctrls[0].Start(&busComm{b: b, self: 0}))
	require.True(done)
	require.True(b.ctrls[0].IsInitiator())
}

func TestFinalFinIsAdoptedExactlyOnce(t *testing.T) {
	require := require.New(t)
	b := newBus(3)
	var calls int
	for _, ctrl := range b.ctrls {
		ctrl.OnTerminated = func(Payload) { calls++ }
	}
	b.ctrls[0].SetPayload(Payload{Result: OutcomeAbort})
	require.NoError(b.ctrls[0].Start(&busComm{b: b, self: 0}))
	require.Equal(3, calls)

	dup := message.New(message.TypeTerminate, message.TerminateFinalFin, 0).
		WithSearchResult(int32(OutcomeAbort)).
		WithPath(nil)
	require.NoError(b.ctrls[1].Dispatch(&busComm{b: b, self: 1}, dup))
	require.Equal(3, calls, "a stray duplicate FINAL_FIN must not re-fire OnTerminated")
}

func TestStartIsIdempotentOnceRunning(t *testing.T) {
	require := require.New(t)
	b := newBus(3)
	b.ctrls[0].SetPayload(Payload{Result: OutcomeNotFound})
	require.NoError(b.ctrls[0].Start(&busComm{b: b, self: 0}))

	// A second Start call on an already-terminated controller must be a
	// harmless no-op, not a second election.
	require.NoError(b.ctrls[0].Start(&busComm{b: b, self: 0}))
	require.True(b.ctrls[0].IsTerminated())
}

package driver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/danfis/maplan-go/internal/message"
	"github.com/danfis/maplan-go/internal/problem"
	"github.com/danfis/maplan-go/internal/search"
	"github.com/danfis/maplan-go/internal/transport"
)

// TestSolutionVerificationNackedByCheaperInFlightState scripts the peer
// side of a verification round by hand, deterministically: agent 0 finds
// a goal at cost 10 and initiates verification, but a cost-3 goal state
// from the peer is still in flight when the peer's MARK arrives. The
// cost-10 candidate must be retried rather than accepted, and the
// system must go on to verify the cheaper goal.
func TestSolutionVerificationNackedByCheaperInFlightState(t *testing.T) {
	require := require.New(t)
	pool := transport.NewInprocPool(2, 64)
	prob := &problem.Problem{
		Vars: []problem.Var{{Name: "x", Range: 2}},
		Ops: []problem.Operator{
			{ID: 0, Name: "expensive", Pre: problem.PartialState{0: 0}, Eff: problem.PartialState{0: 1}, Cost: 10, Owner: 0},
		},
		Initial:   problem.State{0},
		Goal:      problem.PartialState{0: 1},
		AgentID:   0,
		NumAgents: 2,
	}
	d := buildDriver(t, prob, pool.Transport(0), search.AStar,
		WithVerifySolution(true), WithDeadEndTimeout(time.Hour))
	peer := pool.Transport(1)

	// stepUntil drains agent 0's outbound traffic, stepping its driver
	// whenever the peer's queue runs dry, until pred matches.
	stepUntil := func(pred func(*message.Message) bool) *message.Message {
		t.Helper()
		for i := 0; i < 200; i++ {
			if msg, ok := peer.Recv(); ok {
				if pred(msg) {
					return msg
				}
				continue
			}
			if err := d.step(); err != nil {
				t.Fatalf("driver step: %v", err)
			}
		}
		t.Fatal("expected message never arrived")
		return nil
	}
	isVerifyInit := func(m *message.Message) bool {
		return m.Type == message.TypeSnapshot && m.Subtype == message.SnapshotInit &&
			m.SnapshotKind == message.SnapshotKindSolutionVerification
	}

	init1 := stepUntil(isVerifyInit)
	require.Equal(int32(10), init1.StateCost)

	// A cheaper goal state from the not-yet-marked peer is still in
	// flight; it must fold into the running verification's lowest cost.
	require.NoError(peer.SendTo(0, message.New(message.TypePublicState, 0, 1).
		WithState([]byte{1}, []int32{5}, 5, 3, 0)))
	// The peer then marks and, having seen nothing cheaper itself, acks.
	require.NoError(peer.SendTo(0, message.New(message.TypeSnapshot, message.SnapshotMark, 1).
		WithSnapshot(0, init1.SnapshotToken, message.SnapshotKindSolutionVerification)))
	require.NoError(peer.SendTo(0, message.New(message.TypeSnapshot, message.SnapshotResponse, 1).
		WithSnapshot(0, init1.SnapshotToken, message.SnapshotKindSolutionVerification).
		WithSnapshotAck(true)))

	// The cost-10 candidate must not survive the round: the initiator's
	// own view of the cheaper in-flight state forces a retry, and the
	// revived search reaches the cost-3 goal and verifies that instead.
	init2 := stepUntil(isVerifyInit)
	require.NotEqual(init1.SnapshotToken, init2.SnapshotToken)
	require.Equal(int32(3), init2.StateCost)
	require.False(d.Terminated(), "a nacked candidate must never be published")

	require.NoError(peer.SendTo(0, message.New(message.TypeSnapshot, message.SnapshotMark, 1).
		WithSnapshot(0, init2.SnapshotToken, message.SnapshotKindSolutionVerification)))
	require.NoError(peer.SendTo(0, message.New(message.TypeSnapshot, message.SnapshotResponse, 1).
		WithSnapshot(0, init2.SnapshotToken, message.SnapshotKindSolutionVerification).
		WithSnapshotAck(true)))

	// Unanimous acks on the cheaper goal: path tracing starts and walks
	// straight back to the peer that supplied the goal state.
	trace := stepUntil(func(m *message.Message) bool { return m.Type == message.TypeTracePath })
	require.Equal(int32(5), trace.StateID, "the trace resumes at the peer's own id for the goal state")
}

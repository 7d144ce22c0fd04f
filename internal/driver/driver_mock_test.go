package driver

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/danfis/maplan-go/internal/message"
	"github.com/danfis/maplan-go/internal/problem"
	"github.com/danfis/maplan-go/internal/search"
	"github.com/danfis/maplan-go/internal/transport/transportmock"
)

// TestBroadcastSkipsPrivateOperators scripts the transport with a mock so
// the exact outbound traffic is observable: a node reached through a
// public operator is broadcast, a node reached through a private one is
// not, and nothing else ever claims to be a PUBLIC_STATE.
func TestBroadcastSkipsPrivateOperators(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)

	vars := []problem.Var{{Name: "x", Range: 2}, {Name: "y", Range: 2}}
	ops := []problem.Operator{
		{ID: 0, Name: "pub", Pre: problem.PartialState{0: 0}, Eff: problem.PartialState{0: 1}, Cost: 1, Owner: 0},
		{ID: 1, Name: "priv", Pre: problem.PartialState{0: 1, 1: 0}, Eff: problem.PartialState{1: 1}, Cost: 1, Owner: 0, Private: true},
	}
	prob := &problem.Problem{
		Vars:      vars,
		Ops:       ops,
		Initial:   problem.State{0, 0},
		Goal:      problem.PartialState{0: 1, 1: 1},
		AgentID:   0,
		NumAgents: 2,
	}

	tr := transportmock.NewMockTransport(ctrl)
	tr.EXPECT().ID().Return(0).AnyTimes()
	tr.EXPECT().Size().Return(2).AnyTimes()

	var sent []*message.Message
	tr.EXPECT().SendTo(1, gomock.Any()).DoAndReturn(func(_ int, msg *message.Message) error {
		sent = append(sent, msg)
		return nil
	}).AnyTimes()

	d := buildDriver(t, prob, tr, search.AStar, WithVerifySolution(false))

	// Step the bare search: the hooks fire exactly as they would under
	// Run, without the drain loop needing Recv expectations.
	for d.Search().Step() == search.Unknown {
	}

	var public []*message.Message
	for _, m := range sent {
		if m.Type == message.TypePublicState {
			public = append(public, m)
		}
	}
	require.Len(public, 1, "only the node reached through the public operator is broadcast")
	require.Equal(int32(1), public[0].StateCost)
	require.True(public[0].HasState())
}

package snapshot

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/danfis/maplan-go/internal/message"
)

type recordingComm struct {
	sent []*message.Message
}

func (c *recordingComm) SendTo(peer int, msg *message.Message) error {
	c.sent = append(c.sent, msg)
	return nil
}
func (c *recordingComm) SendToAll(msg *message.Message) error {
	c.sent = append(c.sent, msg)
	return nil
}

func TestSolutionVerificationAcksWhenNoCheaperStateSeen(t *testing.T) {
	require := require.New(t)
	sv := NewSolutionVerification(1, 0, 0, 3, 10)
	sv.Mark(1)
	sv.Mark(2)

	comm := &recordingComm{}
	sv.MarkFinalize(comm)

	require.Empty(comm.sent, "the initiator folds its own vote in directly instead of messaging itself")
	require.True(sv.selfAck)
}

func TestSolutionVerificationNacksAndReinsertsOnCheaperState(t *testing.T) {
	require := require.New(t)
	sv := NewSolutionVerification(1, 0, 1, 3, 0)

	init := message.New(message.TypeSnapshot, message.SnapshotInit, 0).
		WithSnapshot(0, 1, message.SnapshotKindSolutionVerification).
		WithState([]byte{2}, []int32{9}, 9, 10, 0)
	sv.InitMsg(nil, init)
	require.Equal(10, sv.cost, "the candidate cost is adopted from the INIT message")

	sv.ObserveLocal(42, 6)

	var reinserted *message.Message
	sv.OnNack = func(m *message.Message) { reinserted = m }

	comm := &recordingComm{}
	sv.MarkFinalize(comm)

	require.NotNil(reinserted)
	require.Equal(int32(10), reinserted.StateCost)
	require.Len(comm.sent, 1)
	require.False(comm.sent[0].SnapshotAck, "a cheaper in-flight state must nack the candidate")
}

func TestSolutionVerificationResponseFinalizeAcceptsOnUnanimousAck(t *testing.T) {
	require := require.New(t)
	sv := NewSolutionVerification(1, 0, 0, 3, 10)
	sv.selfAck = true
	sv.Response(1, true)
	sv.Response(2, true)
	require.True(sv.AllResponded())

	var accepted bool
	sv.OnAccept = func() { accepted = true }
	sv.ResponseFinalize(&recordingComm{})
	require.True(accepted)
}

func TestSolutionVerificationResponseFinalizeRetriesOnAnyNack(t *testing.T) {
	require := require.New(t)
	sv := NewSolutionVerification(1, 0, 0, 3, 10)
	sv.selfAck = true
	sv.Response(1, false)
	sv.Response(2, true)

	var retried bool
	sv.OnRetry = func() { retried = true }
	sv.ResponseFinalize(&recordingComm{})
	require.True(retried)
}

func TestSolutionVerificationUpdateTracksLowestCost(t *testing.T) {
	require := require.New(t)
	sv := NewSolutionVerification(1, 0, 0, 3, 10)

	sv.Update(message.New(message.TypePublicState, 0, 1).WithState(nil, nil, 5, 8, 0))
	require.Equal(8, sv.lowestCost)

	sv.Update(message.New(message.TypePublicState, 0, 1).WithState(nil, nil, 6, 3, 0))
	require.Equal(3, sv.lowestCost, "a strictly cheaper state lowers the running minimum")

	sv.Update(message.New(message.TypePublicState, 0, 1).WithState(nil, nil, 7, 9, 0))
	require.Equal(3, sv.lowestCost, "a costlier state never raises it back")
}

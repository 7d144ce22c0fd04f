package snapshot

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeadEndVerificationMarkFinalizeSendsBlockedFlag(t *testing.T) {
	require := require.New(t)
	d := NewDeadEndVerification(1, 0, 1, 3)
	d.Blocked = func() bool { return true }

	comm := &recordingComm{}
	d.MarkFinalize(comm)

	require.Len(comm.sent, 1)
	require.True(comm.sent[0].SnapshotAck)
}

func TestDeadEndVerificationResponseFinalizeRequiresUnanimity(t *testing.T) {
	require := require.New(t)
	d := NewDeadEndVerification(1, 0, 0, 3)
	d.selfAck = true
	d.Response(1, true)
	d.Response(2, false)

	var fired bool
	d.OnAllBlocked = func() { fired = true }
	d.ResponseFinalize(&recordingComm{})
	require.False(fired)

	d2 := NewDeadEndVerification(1, 0, 0, 3)
	d2.selfAck = true
	d2.Response(1, true)
	d2.Response(2, true)
	d2.OnAllBlocked = func() { fired = true }
	d2.ResponseFinalize(&recordingComm{})
	require.True(fired)
}

package snapshot

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/danfis/maplan-go/internal/message"
)

// bus wires N registries together so SendTo/SendToAll calls made through
// one agent's comm are delivered synchronously into the others' Dispatch,
// constructing the right Snapshot variant on first sight the way the
// driver would.
type bus struct {
	regs []*Registry
	// build constructs the Snapshot a peer should register the first time
	// it sees an unknown token, mirroring what the driver does on an
	// unhandled Dispatch.
	build func(peer int, msg *message.Message) Snapshot
}

type busComm struct {
	b    *bus
	self int
}

func (c *busComm) SendTo(peer int, msg *message.Message) error {
	c.b.deliver(peer, msg)
	return nil
}

func (c *busComm) SendToAll(msg *message.Message) error {
	for i, r := range c.b.regs {
		if i == c.self {
			continue
		}
		c.b.deliver(r.self, msg)
	}
	return nil
}

func (b *bus) deliver(peer int, msg *message.Message) {
	r := b.regs[peer]
	comm := &busComm{b: b, self: peer}
	handled, err := r.Dispatch(comm, msg)
	if err != nil {
		panic(err)
	}
	if handled {
		return
	}
	r.Register(b.build(peer, msg))
	if _, err := r.Dispatch(comm, msg); err != nil {
		panic(err)
	}
}

func TestRegistryUnknownTokenReportsUnhandledExactlyOnce(t *testing.T) {
	require := require.New(t)
	r := NewRegistry(1)

	init := message.New(message.TypeSnapshot, message.SnapshotInit, 0).
		WithSnapshot(0, 42, message.SnapshotKindDeadEndVerification)

	handled, err := r.Dispatch(&recordingComm{}, init)
	require.NoError(err)
	require.False(handled)
	require.False(r.Live(42))

	r.Register(NewDeadEndVerification(42, 0, 1, 3))
	handled, err = r.Dispatch(&recordingComm{}, init)
	require.NoError(err)
	require.True(handled)
}

func newDeadEndBus(blocked [3]bool) (*bus, *bool) {
	finished := new(bool)
	b := &bus{regs: []*Registry{NewRegistry(0), NewRegistry(1), NewRegistry(2)}}
	b.build = func(peer int, msg *message.Message) Snapshot {
		d := NewDeadEndVerification(Token(msg.SnapshotToken), int(msg.InitiatorAgent), peer, len(b.regs))
		p := peer
		d.Blocked = func() bool { return blocked[p] }
		return d
	}
	return b, finished
}

func TestTwoWaveCompletenessAcrossThreeAgents(t *testing.T) {
	require := require.New(t)
	b, finished := newDeadEndBus([3]bool{true, true, true})

	d0 := NewDeadEndVerification(7, 0, 0, 3)
	d0.Blocked = func() bool { return true }
	d0.OnAllBlocked = func() { *finished = true }

	b.regs[0].Start(&busComm{b: b, self: 0}, d0)

	require.True(*finished, "all three agents report blocked, so the initiator should see unanimous acks")
}

func TestTwoWaveDetectsUnblockedAgent(t *testing.T) {
	require := require.New(t)
	b, finished := newDeadEndBus([3]bool{true, true, false})

	d0 := NewDeadEndVerification(7, 0, 0, 3)
	d0.Blocked = func() bool { return true }
	d0.OnAllBlocked = func() { *finished = true }

	b.regs[0].Start(&busComm{b: b, self: 0}, d0)

	require.False(*finished)
}

package snapshot

import "github.com/danfis/maplan-go/internal/message"

// DeadEndVerification is initiated only by agent 0, only once its inbox
// has sat empty past a threshold: it asks every peer whether it, too, is
// blocked awaiting an external message, and starts termination once all
// agree.
type DeadEndVerification struct {
	header

	// Blocked reports whether this agent's own search is currently
	// blocked (returned NOT_FOUND and is waiting on the inbox). Read once,
	// at MarkFinalize time.
	Blocked func() bool
	// OnAllBlocked runs on the initiator once every agent acked blocked:
	// the whole system is a global dead end and termination may begin.
	OnAllBlocked func()
}

// NewDeadEndVerification builds a dead-end-verification snapshot.
func NewDeadEndVerification(token Token, initiator, self, size int) *DeadEndVerification {
	return &DeadEndVerification{
		header: newHeader(token, message.SnapshotKindDeadEndVerification, initiator, self, size),
	}
}

func (d *DeadEndVerification) InitMsg(Comm, *message.Message) {}

// Update is a no-op: dead-end verification's ack discipline depends only
// on each agent's own blocked flag, not on any state traffic observed in
// flight.
func (d *DeadEndVerification) Update(*message.Message) {}

func (d *DeadEndVerification) MarkFinalize(comm Comm) {
	ack := d.Blocked != nil && d.Blocked()
	d.markResponse(comm, ack)
}

func (d *DeadEndVerification) ResponseFinalize(Comm) {
	if d.allAcked() && d.OnAllBlocked != nil {
		d.OnAllBlocked()
	}
}

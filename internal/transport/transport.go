// Package transport implements the two communication channels agents can
// run over: an in-process pool of queues for single-process testing and
// demos, and a framed TCP transport for a real cluster. Both satisfy the
// same narrow Transport contract so the driver never needs to know which
// one it was handed.
package transport

import (
	"time"

	"github.com/danfis/maplan-go/internal/message"
)

// Transport is ordered, reliable, per-peer point-to-point delivery of
// whole messages: no duplication, no reordering of messages from the same
// source.
type Transport interface {
	ID() int
	Size() int
	SendTo(peer int, msg *message.Message) error
	Recv() (*message.Message, bool)
	RecvBlock(timeout time.Duration) (*message.Message, bool)
	Close() error
}

// SendToAll sends msg to every peer but t itself.
func SendToAll(t Transport, msg *message.Message) error {
	for i := 0; i < t.Size(); i++ {
		if i == t.ID() {
			continue
		}
		if err := t.SendTo(i, msg); err != nil {
			return err
		}
	}
	return nil
}

// SendInRing sends msg to the next agent in the fixed ring order
// (agent id + 1, wrapping).
func SendInRing(t Transport, msg *message.Message) error {
	return t.SendTo((t.ID()+1)%t.Size(), msg)
}

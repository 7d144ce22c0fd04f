// Package terminate implements the distributed termination protocol
// (component J): a fixed-priority ring election of one initiator, followed
// by a forward FINAL wave and a reverse FINAL_ACK wave that together confirm
// every agent has observed the other two, and a closing FINAL_FIN broadcast
// carrying the agreed search outcome and assembled plan. Shaped, like
// internal/snapshot, as a single stateful Controller driven by Dispatch,
// so the multi-agent driver never has to reason about ring arithmetic
// itself.
package terminate

import (
	"fmt"

	"github.com/danfis/maplan-go/internal/message"
)

// State is this agent's position in the termination FSM.
type State uint8

const (
	StateNone State = iota
	StateInProgress
	StateTerminated
)

// Outcome is the agreed, system-wide search result carried by FINAL_FIN.
// Distinct from search.Result: that type is purely local to one agent's
// single-threaded search loop and has no ABORT case, since a cooperative
// abort is only ever observed by the driver between Steps.
type Outcome int32

const (
	OutcomeUnknown Outcome = iota
	OutcomeFound
	OutcomeNotFound
	OutcomeAbort
)

// Payload is the result FINAL_FIN carries: the agreed outcome, and — when
// Outcome is OutcomeFound — the fully assembled plan, path-traced across
// agents by internal/path before termination finishes its second wave.
type Payload struct {
	Result Outcome
	Path   []message.PathEntry
}

// Comm is the narrow sending capability this package needs.
type Comm interface {
	SendTo(peer int, msg *message.Message) error
	SendToAll(msg *message.Message) error
}

// Controller runs the termination protocol for one agent among size peers
// numbered 0..size-1.
type Controller struct {
	self int
	size int

	state State

	isCandidate bool
	candidate   int

	initiatorID int
	isInitiator bool
	ringReady   bool

	posSelf int
	isFirst bool
	isLast  bool

	finalFrom   []bool
	finalCount  int
	finalTarget int
	finalDone   bool

	finalAckFrom   []bool
	finalAckCount  int
	finalAckTarget int
	finalAckDone   bool

	payload Payload

	// OnTerminated runs exactly once, the moment this agent adopts a
	// FINAL_FIN payload: as the initiator, the instant it broadcasts one;
	// as everyone else, the instant it receives one.
	OnTerminated func(Payload)
}

// New builds a termination controller for agent self among size agents.
func New(self, size int) *Controller {
	return &Controller{
		self:         self,
		size:         size,
		initiatorID:  -1,
		candidate:    -1,
		finalFrom:    make([]bool, size),
		finalAckFrom: make([]bool, size),
	}
}

func (c *Controller) State() State       { return c.state }
func (c *Controller) IsTerminated() bool { return c.state == StateTerminated }
func (c *Controller) Payload() Payload   { return c.payload }
func (c *Controller) IsInitiator() bool  { return c.isInitiator }
func (c *Controller) InitiatorID() int   { return c.initiatorID }

// SetPayload records the outcome the initiator will broadcast once the
// FINAL_ACK wave completes. Calling it on a non-initiator, or after
// IsTerminated, has no effect on the protocol: only the value read by
// broadcastFinalFin matters.
func (c *Controller) SetPayload(p Payload) { c.payload = p }

func (c *Controller) next(id int) int { return (id + 1) % c.size }
func (c *Controller) prev(id int) int { return (id - 1 + c.size) % c.size }

// position returns id's distance from the elected initiator in forward
// ring order: 0 for the initiator itself, 1..size-1 for everyone else.
func (c *Controller) position(id int) int {
	return ((id-c.initiatorID)%c.size + c.size) % c.size
}

// Dispatch offers msg, which must carry message.TypeTerminate, to the
// controller.
func (c *Controller) Dispatch(comm Comm, msg *message.Message) error {
	if msg.Type != message.TypeTerminate {
		return fmt.Errorf("terminate: dispatch called with non-terminate message type %d", msg.Type)
	}
	switch msg.Subtype {
	case message.TerminateRequest:
		return c.handleRequest(comm, int(msg.InitiatorAgent))
	case message.TerminateElected:
		return c.handleElected(comm, int(msg.InitiatorAgent))
	case message.TerminateFinal:
		return c.handleFinal(comm, int(msg.AgentID))
	case message.TerminateFinalAck:
		return c.handleFinalAck(comm, int(msg.AgentID))
	case message.TerminateFinalFin:
		return c.handleFinalFin(msg)
	default:
		return fmt.Errorf("terminate: unknown subtype %d", msg.Subtype)
	}
}

// Package snapshot implements the generic two-wave "initiator/mark/
// response" protocol and its two concrete uses: solution verification and
// dead-end verification. Each variant embeds a common header of
// token/mark/response bookkeeping and adds its own verdict logic on top.
package snapshot

import (
	"fmt"

	"github.com/danfis/maplan-go/internal/message"
)

// Token identifies one live snapshot instance, generated only by its
// initiator and globally unique across a run. Kept as a distinct type
// from heuristic.Token (internal/heuristic) so the two protocols can never
// cross-dispatch on a numeric coincidence.
type Token uint64

// Comm is the narrow sending capability a snapshot needs to run its two
// waves. The driver supplies an implementation backed by the real
// transport so this package never depends on it directly.
type Comm interface {
	SendTo(peer int, msg *message.Message) error
	SendToAll(msg *message.Message) error
}

// Snapshot is one live two-wave protocol instance. The registry is the
// only caller of these methods; callers outside this package only ever
// see the Registry.
type Snapshot interface {
	Token() Token
	Kind() message.SnapshotKind
	Initiator() int
	IsInitiator() bool

	// InitMsg runs once, when the SNAPSHOT_INIT for this token reaches a
	// non-initiator, before it broadcasts its own MARK. The message is the
	// initiator's INIT, whose payload (e.g. the candidate goal's state
	// block) protocol variants may need to retain.
	InitMsg(comm Comm, msg *message.Message)
	// Mark records that peer has entered the protocol. Returns an error
	// if peer had already marked this token — a protocol violation, since
	// the transport contract forbids duplicate delivery.
	Mark(peer int) error
	// HasMarked reports whether peer has already marked, so the registry
	// can decide whether an ordinary message from peer still updates this
	// snapshot's bookkeeping.
	HasMarked(peer int) bool
	// AllMarked reports whether every agent (including self) has marked.
	AllMarked() bool
	// MarkFinalize runs once, the moment AllMarked first becomes true. It
	// decides this agent's ack/nack verdict.
	MarkFinalize(comm Comm)

	// Update feeds an ordinary (non-snapshot) message from a peer that has
	// not yet marked this snapshot into the protocol's running state.
	Update(msg *message.Message)

	// Response records peer's RESPONSE ack/nack, initiator-side only.
	Response(peer int, ack bool)
	// AllResponded reports whether the initiator has heard from every
	// other agent.
	AllResponded() bool
	// ResponseFinalize runs once, on the initiator, the moment
	// AllResponded first becomes true.
	ResponseFinalize(comm Comm)
}

// header is the bookkeeping every snapshot variant shares: which agents
// have marked/responded, and this agent's own verdict once decided.
type header struct {
	token       Token
	kind        message.SnapshotKind
	initiator   int
	self        int
	size        int
	isInitiator bool

	marked    []bool
	markCount int

	responded []bool
	acked     []bool
	respCount int

	selfAck bool
}

func newHeader(token Token, kind message.SnapshotKind, initiator, self, size int) header {
	h := header{
		token:       token,
		kind:        kind,
		initiator:   initiator,
		self:        self,
		size:        size,
		isInitiator: initiator == self,
		marked:      make([]bool, size),
		responded:   make([]bool, size),
		acked:       make([]bool, size),
	}
	if h.isInitiator {
		// SNAPSHOT_INIT also counts as the initiator's own mark.
		h.marked[self] = true
		h.markCount = 1
	}
	return h
}

func (h *header) Token() Token               { return h.token }
func (h *header) Kind() message.SnapshotKind { return h.kind }
func (h *header) Initiator() int             { return h.initiator }
func (h *header) IsInitiator() bool          { return h.isInitiator }
func (h *header) HasMarked(peer int) bool    { return h.marked[peer] }
func (h *header) AllMarked() bool            { return h.markCount == h.size }

func (h *header) Mark(peer int) error {
	if h.marked[peer] {
		return fmt.Errorf("snapshot: duplicate MARK from agent %d for token %d", peer, h.token)
	}
	h.marked[peer] = true
	h.markCount++
	return nil
}

func (h *header) Response(peer int, ack bool) {
	if !h.responded[peer] {
		h.responded[peer] = true
		h.respCount++
	}
	h.acked[peer] = ack
}

// AllResponded counts RESPONSEs from every agent but the initiator itself,
// which folds its own verdict into selfAck instead of messaging itself.
func (h *header) AllResponded() bool { return h.respCount == h.size-1 }

func (h *header) allAcked() bool {
	if !h.selfAck {
		return false
	}
	for i := 0; i < h.size; i++ {
		if i == h.initiator {
			continue
		}
		if !h.acked[i] {
			return false
		}
	}
	return true
}

func (h *header) markResponse(comm Comm, ack bool) {
	if h.isInitiator {
		h.selfAck = ack
		return
	}
	resp := message.New(message.TypeSnapshot, message.SnapshotResponse, int32(h.self)).
		WithSnapshot(int32(h.initiator), uint64(h.token), h.kind).
		WithSnapshotAck(ack)
	comm.SendTo(h.initiator, resp)
}

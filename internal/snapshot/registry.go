package snapshot

import (
	"fmt"

	"golang.org/x/exp/maps"

	"github.com/danfis/maplan-go/internal/message"
)

// Registry multiplexes every live snapshot instance over one shared
// message stream. Each incoming message is first offered to every live
// snapshot's Update (when it is an ordinary message, and the snapshot
// hasn't already marked its sender), then, if it is itself a snapshot
// message, routed by token.
type Registry struct {
	self int
	live map[Token]Snapshot
}

// NewRegistry builds an empty registry for an agent with the given id.
func NewRegistry(self int) *Registry {
	return &Registry{self: self, live: make(map[Token]Snapshot)}
}

// Live reports whether token names a snapshot this registry currently
// tracks.
func (r *Registry) Live(tok Token) bool {
	_, ok := r.live[tok]
	return ok
}

// Tokens returns the tokens of every snapshot still live, in no
// particular order. A non-empty answer at termination time means some
// protocol round never completed.
func (r *Registry) Tokens() []Token { return maps.Keys(r.live) }

// Register adds a snapshot the caller just constructed — typically in
// response to an Unhandled SNAPSHOT_INIT this registry reported — so that
// subsequent Dispatch calls for its token route to it.
func (r *Registry) Register(snap Snapshot) { r.live[snap.Token()] = snap }

// Start registers an initiator-side snapshot and sends SNAPSHOT_INIT to
// every peer, which doubles as this agent's own mark (see header).
func (r *Registry) Start(comm Comm, snap Snapshot) {
	r.live[snap.Token()] = snap
	init := message.New(message.TypeSnapshot, message.SnapshotInit, int32(r.self)).
		WithSnapshot(int32(r.self), uint64(snap.Token()), snap.Kind())
	comm.SendToAll(init)
	r.maybeMarkFinalize(comm, snap)
}

// StartMsg registers snap like Start, but sends a caller-built SNAPSHOT_INIT
// message instead of building the bare token/kind one itself — solution
// verification needs the candidate goal's state block riding along on the
// very same INIT message, since a peer seeing this token for the first
// time must learn the candidate cost before it can even construct its
// side of the snapshot.
func (r *Registry) StartMsg(comm Comm, snap Snapshot, init *message.Message) {
	r.live[snap.Token()] = snap
	comm.SendToAll(init)
	r.maybeMarkFinalize(comm, snap)
}

// Dispatch offers msg to the registry. handled is false only when msg is a
// snapshot message carrying a token this registry has never seen — the
// caller must build the right Snapshot variant (by msg.SnapshotKind),
// Register it, and Dispatch msg again.
func (r *Registry) Dispatch(comm Comm, msg *message.Message) (handled bool, err error) {
	if msg.Type != message.TypeSnapshot {
		for _, s := range r.live {
			if !s.HasMarked(int(msg.AgentID)) {
				s.Update(msg)
			}
		}
		return true, nil
	}

	tok := Token(msg.SnapshotToken)
	snap, ok := r.live[tok]
	if !ok {
		return false, nil
	}
	return true, r.route(comm, snap, msg)
}

func (r *Registry) route(comm Comm, snap Snapshot, msg *message.Message) error {
	switch msg.Subtype {
	case message.SnapshotInit:
		if snap.IsInitiator() {
			return nil
		}
		snap.InitMsg(comm, msg)
		// The INIT itself conveys that the initiator has already marked
		// (see header.newHeader); every other observer must record that
		// fact locally before counting its own mark.
		if err := snap.Mark(snap.Initiator()); err != nil {
			return err
		}
		if err := snap.Mark(r.self); err != nil {
			return err
		}
		mark := message.New(message.TypeSnapshot, message.SnapshotMark, int32(r.self)).
			WithSnapshot(int32(snap.Initiator()), uint64(snap.Token()), snap.Kind())
		if err := comm.SendToAll(mark); err != nil {
			return err
		}
		r.maybeMarkFinalize(comm, snap)

	case message.SnapshotMark:
		if err := snap.Mark(int(msg.AgentID)); err != nil {
			return err
		}
		r.maybeMarkFinalize(comm, snap)

	case message.SnapshotResponse:
		if !snap.IsInitiator() {
			return fmt.Errorf("snapshot: RESPONSE for token %d delivered to a non-initiator", snap.Token())
		}
		snap.Response(int(msg.AgentID), msg.SnapshotAck)
		if snap.AllResponded() {
			snap.ResponseFinalize(comm)
			delete(r.live, snap.Token())
		}

	default:
		return fmt.Errorf("snapshot: unknown subtype %d for token %d", msg.Subtype, snap.Token())
	}
	return nil
}

func (r *Registry) maybeMarkFinalize(comm Comm, snap Snapshot) {
	if !snap.AllMarked() {
		return
	}
	snap.MarkFinalize(comm)
	if !snap.IsInitiator() {
		delete(r.live, snap.Token())
		return
	}
	// A lone agent has nobody to wait for: its own mark completes the
	// whole protocol, so the response wave finishes right here.
	if snap.AllResponded() {
		snap.ResponseFinalize(comm)
		delete(r.live, snap.Token())
	}
}

// Package path implements distributed plan assembly (component L): once
// an agent accepts a goal state as the final solution, it walks its own
// state pool's back-pointers toward that agent's local initial state;
// whenever the walk hits a state this agent only ever received from a
// peer via PUBLIC_STATE, it hands the partial plan off to that peer with
// a TRACE_PATH message and lets the walk continue there.
package path

import (
	"fmt"

	"github.com/danfis/maplan-go/internal/message"
)

// Backend is the narrow view into a Search's pool that path tracing
// needs, kept separate from internal/search so this package never
// depends on the search loop itself.
type Backend interface {
	// ExtractLocal walks back-pointers from stateID until it reaches a
	// node with no supporting local operator: either this agent's own
	// true initial state, or a state it only ever ingested from a peer.
	// entries is returned in boundary-to-stateID (earliest-first) order.
	ExtractLocal(stateID int32) (boundaryStateID int32, entries []message.PathEntry, isOwnInitial bool)
	// PublicRef returns the peer and that peer's own local state id for
	// a state this agent received via PUBLIC_STATE. ok is false if
	// stateID was never registered that way — a protocol invariant
	// violation if ExtractLocal just reported it as a non-initial
	// boundary.
	PublicRef(stateID int32) (agentID int, remoteStateID int32, ok bool)
}

// Tracer runs one agent's side of plan assembly.
type Tracer struct {
	backend Backend
	self    int
}

// NewTracer builds a tracer for agent self backed by backend.
func NewTracer(backend Backend, self int) *Tracer {
	return &Tracer{backend: backend, self: self}
}

// Start begins tracing the plan ending at goalStateID, which this agent
// just accepted as the final solution. If done, path is the complete,
// correctly ordered plan and no message need be sent. Otherwise msg must
// be sent to peer to continue the trace elsewhere.
func (t *Tracer) Start(goalStateID int32) (path []message.PathEntry, done bool, peer int, msg *message.Message, err error) {
	boundary, entries, isInitial := t.backend.ExtractLocal(goalStateID)
	if isInitial {
		return entries, true, 0, nil, nil
	}

	agentID, remoteStateID, ok := t.backend.PublicRef(boundary)
	if !ok {
		return nil, false, 0, nil, fmt.Errorf("path: state %d has no supporting operator and no public-state ref", boundary)
	}
	out := message.New(message.TypeTracePath, 0, int32(t.self)).
		WithInitiator(int32(t.self)).
		WithPath(entries).
		WithTraceStateID(remoteStateID)
	return nil, false, agentID, out, nil
}

// Continue handles an incoming TRACE_PATH message, extending it with this
// agent's own local segment and either closing the trace (if this agent
// is the originator or the whole plan is now assembled) or forwarding it
// one hop further.
func (t *Tracer) Continue(in *message.Message) (path []message.PathEntry, done bool, peer int, msg *message.Message, err error) {
	if in.StateID == -1 {
		// The trace has travelled all the way back to its originator
		// with the fully assembled plan.
		return in.Path, true, 0, nil, nil
	}

	boundary, entries, isInitial := t.backend.ExtractLocal(in.StateID)
	acc := make([]message.PathEntry, 0, len(entries)+len(in.Path))
	acc = append(acc, entries...)
	acc = append(acc, in.Path...)

	if isInitial {
		originator := int(in.InitiatorAgent)
		if originator == t.self {
			return acc, true, 0, nil, nil
		}
		out := message.New(message.TypeTracePath, 0, int32(t.self)).
			WithInitiator(in.InitiatorAgent).
			WithPath(acc).
			WithTraceStateID(-1)
		return nil, false, originator, out, nil
	}

	agentID, remoteStateID, ok := t.backend.PublicRef(boundary)
	if !ok {
		return nil, false, 0, nil, fmt.Errorf("path: state %d has no supporting operator and no public-state ref (originator %d)", boundary, in.InitiatorAgent)
	}
	out := message.New(message.TypeTracePath, 0, int32(t.self)).
		WithInitiator(in.InitiatorAgent).
		WithPath(acc).
		WithTraceStateID(remoteStateID)
	return nil, false, agentID, out, nil
}

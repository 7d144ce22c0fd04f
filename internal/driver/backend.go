package driver

import (
	"github.com/danfis/maplan-go/internal/message"
	"github.com/danfis/maplan-go/internal/problem"
	"github.com/danfis/maplan-go/internal/state"
)

// poolBackend adapts a state.Pool (plus the operator table needed to turn
// a back-pointer chain into named PathEntry records) into path.Backend.
type poolBackend struct {
	pool    *state.Pool
	refs    *state.AuxTable[state.PublicRef]
	prob    *problem.Problem
	initial state.ID
}

// ExtractLocal walks id's parent chain back to the nearest node with no
// supporting local operator, collecting one PathEntry per hop in
// boundary-to-id (earliest-first) order.
func (b *poolBackend) ExtractLocal(id int32) (boundary int32, entries []message.PathEntry, isOwnInitial bool) {
	cur := state.ID(id)
	for {
		node := b.pool.Node(cur)
		if !node.HasOp {
			return int32(cur), entries, cur == b.initial
		}
		op := &b.prob.Ops[node.Op]
		entry := message.PathEntry{
			Name:          op.Name,
			Cost:          int32(op.Cost),
			OpID:          int32(op.ID),
			Owner:         int32(op.Owner),
			SourceStateID: int32(node.Parent),
			TargetStateID: int32(cur),
		}
		entries = append([]message.PathEntry{entry}, entries...)
		cur = node.Parent
	}
}

// PublicRef reports the peer and remote state id a boundary state was
// ingested from, if it was ingested at all.
func (b *poolBackend) PublicRef(id int32) (agentID int, remoteStateID int32, ok bool) {
	ref := b.refs.Get(state.ID(id))
	if ref.AgentID < 0 {
		return 0, 0, false
	}
	return ref.AgentID, ref.RemoteStateID, true
}

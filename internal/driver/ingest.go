package driver

import (
	"github.com/danfis/maplan-go/internal/message"
	"github.com/danfis/maplan-go/internal/state"
)

// ingestPublicState handles an incoming PUBLIC_STATE: the state's local
// identity is the pair (public bytes, surrogate), where the surrogate
// stands in for the sender's opaque private fingerprint (see
// internal/maregistry), so that re-broadcasts of byte-identical private
// state collapse onto the same local state id.
//
// Re-opening policy: re-inserting a state whenever its reported cost beats
// the current best goal bound, even for an already CLOSED node, can
// re-expand the same state indefinitely as peers keep re-broadcasting it.
// This implementation avoids that: a CLOSED node is only re-opened on
// strict local cost improvement, matching the (re)push policy Step
// already applies to locally generated successors.
func (d *Driver) ingestPublicState(msg *message.Message) error {
	pool := d.search.Pool()
	surrogate := d.maReg.Surrogate(int(msg.AgentID), msg.StatePrivateIDs)

	id := pool.InsertPublic(msg.StateBuf, surrogate)
	node := pool.Node(id)
	wasNew := node.Status == state.StatusNew
	if wasNew {
		d.pubRefs.Set(id, state.PublicRef{AgentID: int(msg.AgentID), RemoteStateID: msg.StateID})
	}

	// Heuristic is never recomputed on ingestion, only ever raised: the
	// stored value becomes the max of whatever this agent already knew
	// and whatever the sender reports.
	newHeur := int(msg.StateHeur)
	if node.Heur == state.HeurNotEvaluated || newHeur > node.Heur {
		node.Heur = newHeur
	}

	cost := int(msg.StateCost)
	switch {
	case wasNew:
		node.Cost = cost
		d.search.InsertExternal(id)
	case node.Status != state.StatusNew && cost < node.Cost:
		node.Cost = cost
		d.search.InsertExternal(id)
	}
	return nil
}

// Package maregistry implements the multi-agent state registry
// (component H): a per-peer table mapping a peer's opaque private-state
// fingerprint onto a local surrogate id, so a state received over the
// wire always resolves to the same local identity without this agent
// ever decoding the peer's private data.
package maregistry

import "strconv"

// Registry holds one surrogate table per peer agent.
type Registry struct {
	byPeer []map[string]int32
	next   []int32
}

// New builds an empty registry sized for numAgents (including self, whose
// slot is simply never queried).
func New(numAgents int) *Registry {
	r := &Registry{
		byPeer: make([]map[string]int32, numAgents),
		next:   make([]int32, numAgents),
	}
	for i := range r.byPeer {
		r.byPeer[i] = make(map[string]int32)
	}
	return r
}

// Surrogate returns the local surrogate id standing in for peer's private
// state identified by fingerprint (the StatePrivateIDs carried on a
// PUBLIC_STATE message), assigning a fresh surrogate on first sight. Two
// messages from peer with byte-identical fingerprints always resolve to
// the same surrogate.
func (r *Registry) Surrogate(peer int, fingerprint []int32) int32 {
	key := fingerprintKey(fingerprint)
	if id, ok := r.byPeer[peer][key]; ok {
		return id
	}
	id := r.next[peer]
	r.next[peer]++
	r.byPeer[peer][key] = id
	return id
}

func fingerprintKey(fp []int32) string {
	buf := make([]byte, 0, len(fp)*8)
	for _, v := range fp {
		buf = strconv.AppendInt(buf, int64(v), 10)
		buf = append(buf, ',')
	}
	return string(buf)
}

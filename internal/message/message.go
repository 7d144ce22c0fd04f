// Package message implements the wire message every agent exchanges:
// a flat struct with every field optional, presence tracked by a bitmask,
// encoded as a fixed little-endian schema. Whole messages are deep-cloned
// before in-process delivery so no two agents ever alias the same buffer.
package message

import "github.com/danfis/maplan-go/internal/wire"

// Type is the top-level message kind.
type Type int32

const (
	TypeTerminate Type = iota
	TypeTracePath
	TypePublicState
	TypeSnapshot
	TypeHeur
)

// Subtype is interpreted according to Type.
type Subtype int32

const (
	TerminateRequest Subtype = iota
	TerminateElected
	TerminateFinal
	TerminateFinalAck
	TerminateFinalFin
)

const (
	SnapshotInit Subtype = iota
	SnapshotMark
	SnapshotResponse
)

const (
	HeurRequest Subtype = iota
	HeurUpdate
)

// SnapshotKind tells the snapshot registry which protocol variant owns a
// token, so a solution-verification snapshot and a dead-end-verification
// snapshot sharing the wire format never get cross-dispatched.
type SnapshotKind int32

const (
	SnapshotKindSolutionVerification SnapshotKind = iota
	SnapshotKindDeadEndVerification
)

// Op is one operator record, used both for the search-relevant operator
// broadcast and as a generic (name, id, owner, cost, value) payload entry.
type Op struct {
	Name  string
	ID    int32
	Owner int32
	Cost  int32
	Value int32
}

// PathEntry is one hop recorded while tracing a plan back across agents.
type PathEntry struct {
	Name          string
	Cost          int32
	OpID          int32
	Owner         int32
	SourceStateID int32
	TargetStateID int32
}

// DTGRequest is the sub-struct the wire schema reserves for DTG-heuristic
// requests. No DTG heuristic ships in this repo; the field exists so the
// codec's shape matches the full schema and future heuristics have a home.
type DTGRequest struct {
	Var       int32
	ValFrom   int32
	ValTo     int32
	Reachable []int32
}

// field bits, in encode/decode order. Lower bits are written first.
const (
	fType uint32 = 1 << iota
	fSubtype
	fAgentID

	fStateBuf
	fStatePrivateIDs
	fStateID
	fStateCost
	fStateHeur

	fInitiatorAgent
	fSnapshotToken
	fSnapshotKind
	fSnapshotAck

	fHeurToken
	fHeurRequestedAgents
	fHeurCost
	fHeurDeadEnd
	fDTGReq

	fOps
	fSearchResult
	fPath
)

// Message is the single wire envelope for every inter-agent exchange.
// Every field is optional; Encode/Decode consult mask to decide what to
// (de)serialize. Zero value is an empty, well-formed message.
type Message struct {
	mask uint32

	Type    Type
	Subtype Subtype
	AgentID int32

	StateBuf        []byte
	StatePrivateIDs []int32
	StateID         int32
	StateCost       int32
	StateHeur       int32

	InitiatorAgent int32
	SnapshotToken  uint64
	SnapshotKind   SnapshotKind
	SnapshotAck    bool

	HeurToken           uint64
	HeurRequestedAgents []int32
	HeurCost            int32
	HeurDeadEnd         bool
	DTGReq              *DTGRequest

	Ops          []Op
	SearchResult int32
	Path         []PathEntry
}

// New returns a message with Type, Subtype and AgentID set and marked
// present; every other field starts absent.
func New(typ Type, subtype Subtype, agentID int32) *Message {
	m := &Message{Type: typ, Subtype: subtype, AgentID: agentID}
	m.mask = fType | fSubtype | fAgentID
	return m
}

func (m *Message) has(bit uint32) bool { return m.mask&bit != 0 }
func (m *Message) set(bit uint32)      { m.mask |= bit }

// WithState attaches the state block.
func (m *Message) WithState(buf []byte, privateIDs []int32, stateID, cost, heur int32) *Message {
	m.StateBuf, m.StatePrivateIDs, m.StateID, m.StateCost, m.StateHeur = buf, privateIDs, stateID, cost, heur
	m.set(fStateBuf | fStatePrivateIDs | fStateID | fStateCost | fStateHeur)
	return m
}

// WithSnapshot attaches the protocol block.
func (m *Message) WithSnapshot(initiator int32, token uint64, kind SnapshotKind) *Message {
	m.InitiatorAgent, m.SnapshotToken, m.SnapshotKind = initiator, token, kind
	m.set(fInitiatorAgent | fSnapshotToken | fSnapshotKind)
	return m
}

// WithInitiator attaches the initiator/candidate field on its own, used by
// the termination election's TERMINATE_REQUEST ballot and its confirmed-
// leader TERMINATE_ELECTED announcement, neither of which touches the rest
// of the snapshot block.
func (m *Message) WithInitiator(agentID int32) *Message {
	m.InitiatorAgent = agentID
	m.set(fInitiatorAgent)
	return m
}

// WithSnapshotAck attaches the ack flag.
func (m *Message) WithSnapshotAck(ack bool) *Message {
	m.SnapshotAck = ack
	m.set(fSnapshotAck)
	return m
}

// WithHeur attaches the heuristic block.
func (m *Message) WithHeur(token uint64, requestedAgents []int32, cost int32, deadEnd bool) *Message {
	m.HeurToken, m.HeurRequestedAgents, m.HeurCost, m.HeurDeadEnd = token, requestedAgents, cost, deadEnd
	m.set(fHeurToken | fHeurRequestedAgents | fHeurCost | fHeurDeadEnd)
	return m
}

// WithDTGRequest attaches the reserved DTG-request sub-struct.
func (m *Message) WithDTGRequest(req *DTGRequest) *Message {
	m.DTGReq = req
	m.set(fDTGReq)
	return m
}

// WithTraceStateID attaches a bare state id, independent of the rest of
// the state block WithState builds: TRACE_PATH reuses this single field
// as the next hop's anchor state, with -1 meaning "this has arrived back
// at the trace's originator; read Path as the finished plan."
func (m *Message) WithTraceStateID(stateID int32) *Message {
	m.StateID = stateID
	m.set(fStateID)
	return m
}

// WithOps attaches the operator-record payload block.
func (m *Message) WithOps(ops []Op) *Message {
	m.Ops = ops
	m.set(fOps)
	return m
}

// WithSearchResult attaches the search result code.
func (m *Message) WithSearchResult(res int32) *Message {
	m.SearchResult = res
	m.set(fSearchResult)
	return m
}

// WithPath attaches the path-trace payload block.
func (m *Message) WithPath(path []PathEntry) *Message {
	m.Path = path
	m.set(fPath)
	return m
}

// HasSnapshot reports whether the protocol/snapshot block is present.
func (m *Message) HasSnapshot() bool { return m.has(fSnapshotToken) }

// HasHeur reports whether the heuristic block is present.
func (m *Message) HasHeur() bool { return m.has(fHeurToken) }

// HasState reports whether the state block is present.
func (m *Message) HasState() bool { return m.has(fStateBuf) }

// HasPath reports whether the path-trace payload is present.
func (m *Message) HasPath() bool { return m.has(fPath) }

// Clone returns a deep, independent copy, used when delivering a message
// to more than one in-process recipient so no two agents ever alias the
// same backing arrays.
func (m *Message) Clone() *Message {
	out := *m
	out.StateBuf = append([]byte(nil), m.StateBuf...)
	out.StatePrivateIDs = append([]int32(nil), m.StatePrivateIDs...)
	out.HeurRequestedAgents = append([]int32(nil), m.HeurRequestedAgents...)
	out.Ops = append([]Op(nil), m.Ops...)
	out.Path = append([]PathEntry(nil), m.Path...)
	if m.DTGReq != nil {
		req := *m.DTGReq
		req.Reachable = append([]int32(nil), m.DTGReq.Reachable...)
		out.DTGReq = &req
	}
	return &out
}

// Encode serialises m as: u32 bitmask, then each present field in
// declaration order, little-endian throughout.
func (m *Message) Encode() ([]byte, error) {
	p := wire.NewPacker(64)
	p.PackU32(m.mask)

	if m.has(fType) {
		p.PackI32(int32(m.Type))
	}
	if m.has(fSubtype) {
		p.PackI32(int32(m.Subtype))
	}
	if m.has(fAgentID) {
		p.PackI32(m.AgentID)
	}
	if m.has(fStateBuf) {
		packBytes(p, m.StateBuf)
	}
	if m.has(fStatePrivateIDs) {
		packI32Arr(p, m.StatePrivateIDs)
	}
	if m.has(fStateID) {
		p.PackI32(m.StateID)
	}
	if m.has(fStateCost) {
		p.PackI32(m.StateCost)
	}
	if m.has(fStateHeur) {
		p.PackI32(m.StateHeur)
	}
	if m.has(fInitiatorAgent) {
		p.PackI32(m.InitiatorAgent)
	}
	if m.has(fSnapshotToken) {
		p.PackU64(m.SnapshotToken)
	}
	if m.has(fSnapshotKind) {
		p.PackI32(int32(m.SnapshotKind))
	}
	if m.has(fSnapshotAck) {
		packBool(p, m.SnapshotAck)
	}
	if m.has(fHeurToken) {
		p.PackU64(m.HeurToken)
	}
	if m.has(fHeurRequestedAgents) {
		packI32Arr(p, m.HeurRequestedAgents)
	}
	if m.has(fHeurCost) {
		p.PackI32(m.HeurCost)
	}
	if m.has(fHeurDeadEnd) {
		packBool(p, m.HeurDeadEnd)
	}
	if m.has(fDTGReq) {
		encodeDTGReq(p, m.DTGReq)
	}
	if m.has(fOps) {
		p.PackI32(int32(len(m.Ops)))
		for _, op := range m.Ops {
			encodeOp(p, op)
		}
	}
	if m.has(fSearchResult) {
		p.PackI32(m.SearchResult)
	}
	if m.has(fPath) {
		p.PackI32(int32(len(m.Path)))
		for _, e := range m.Path {
			encodePathEntry(p, e)
		}
	}
	return p.Bytes, p.Err
}

// Decode parses buf into a new Message.
func Decode(buf []byte) (*Message, error) {
	u := wire.NewUnpacker(buf)
	m := &Message{mask: u.UnpackU32()}

	if m.has(fType) {
		m.Type = Type(u.UnpackI32())
	}
	if m.has(fSubtype) {
		m.Subtype = Subtype(u.UnpackI32())
	}
	if m.has(fAgentID) {
		m.AgentID = u.UnpackI32()
	}
	if m.has(fStateBuf) {
		m.StateBuf = unpackBytes(u)
	}
	if m.has(fStatePrivateIDs) {
		m.StatePrivateIDs = unpackI32Arr(u)
	}
	if m.has(fStateID) {
		m.StateID = u.UnpackI32()
	}
	if m.has(fStateCost) {
		m.StateCost = u.UnpackI32()
	}
	if m.has(fStateHeur) {
		m.StateHeur = u.UnpackI32()
	}
	if m.has(fInitiatorAgent) {
		m.InitiatorAgent = u.UnpackI32()
	}
	if m.has(fSnapshotToken) {
		m.SnapshotToken = u.UnpackU64()
	}
	if m.has(fSnapshotKind) {
		m.SnapshotKind = SnapshotKind(u.UnpackI32())
	}
	if m.has(fSnapshotAck) {
		m.SnapshotAck = unpackBool(u)
	}
	if m.has(fHeurToken) {
		m.HeurToken = u.UnpackU64()
	}
	if m.has(fHeurRequestedAgents) {
		m.HeurRequestedAgents = unpackI32Arr(u)
	}
	if m.has(fHeurCost) {
		m.HeurCost = u.UnpackI32()
	}
	if m.has(fHeurDeadEnd) {
		m.HeurDeadEnd = unpackBool(u)
	}
	if m.has(fDTGReq) {
		m.DTGReq = decodeDTGReq(u)
	}
	if m.has(fOps) {
		n := int(u.UnpackI32())
		m.Ops = make([]Op, n)
		for i := range m.Ops {
			m.Ops[i] = decodeOp(u)
		}
	}
	if m.has(fSearchResult) {
		m.SearchResult = u.UnpackI32()
	}
	if m.has(fPath) {
		n := int(u.UnpackI32())
		m.Path = make([]PathEntry, n)
		for i := range m.Path {
			m.Path[i] = decodePathEntry(u)
		}
	}
	if u.Err != nil {
		return nil, u.Err
	}
	return m, nil
}

func packBytes(p *wire.Packer, b []byte) {
	p.PackI32(int32(len(b)))
	p.PackBytes(b)
}

func unpackBytes(u *wire.Unpacker) []byte {
	n := int(u.UnpackI32())
	return u.UnpackBytes(n)
}

func packI32Arr(p *wire.Packer, a []int32) {
	p.PackI32(int32(len(a)))
	for _, v := range a {
		p.PackI32(v)
	}
}

func unpackI32Arr(u *wire.Unpacker) []int32 {
	n := int(u.UnpackI32())
	out := make([]int32, n)
	for i := range out {
		out[i] = u.UnpackI32()
	}
	return out
}

func packBool(p *wire.Packer, b bool) {
	if b {
		p.PackByte(1)
	} else {
		p.PackByte(0)
	}
}

func unpackBool(u *wire.Unpacker) bool { return u.UnpackByte() != 0 }

func packString(p *wire.Packer, s string)  { packBytes(p, []byte(s)) }
func unpackString(u *wire.Unpacker) string { return string(unpackBytes(u)) }

func encodeOp(p *wire.Packer, op Op) {
	packString(p, op.Name)
	p.PackI32(op.ID)
	p.PackI32(op.Owner)
	p.PackI32(op.Cost)
	p.PackI32(op.Value)
}

func decodeOp(u *wire.Unpacker) Op {
	return Op{
		Name:  unpackString(u),
		ID:    u.UnpackI32(),
		Owner: u.UnpackI32(),
		Cost:  u.UnpackI32(),
		Value: u.UnpackI32(),
	}
}

func encodePathEntry(p *wire.Packer, e PathEntry) {
	packString(p, e.Name)
	p.PackI32(e.Cost)
	p.PackI32(e.OpID)
	p.PackI32(e.Owner)
	p.PackI32(e.SourceStateID)
	p.PackI32(e.TargetStateID)
}

func decodePathEntry(u *wire.Unpacker) PathEntry {
	return PathEntry{
		Name:          unpackString(u),
		Cost:          u.UnpackI32(),
		OpID:          u.UnpackI32(),
		Owner:         u.UnpackI32(),
		SourceStateID: u.UnpackI32(),
		TargetStateID: u.UnpackI32(),
	}
}

func encodeDTGReq(p *wire.Packer, req *DTGRequest) {
	p.PackI32(req.Var)
	p.PackI32(req.ValFrom)
	p.PackI32(req.ValTo)
	packI32Arr(p, req.Reachable)
}

func decodeDTGReq(u *wire.Unpacker) *DTGRequest {
	return &DTGRequest{
		Var:       u.UnpackI32(),
		ValFrom:   u.UnpackI32(),
		ValTo:     u.UnpackI32(),
		Reachable: unpackI32Arr(u),
	}
}

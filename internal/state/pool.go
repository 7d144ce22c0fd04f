// Package state implements the content-addressed state pool and packer
// (component A) and the per-state node records it backs (component B's
// node-space half; the priority-queue half lives in internal/openlist).
package state

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/danfis/maplan-go/internal/problem"
	applog "github.com/danfis/maplan-go/log"
	lux "github.com/luxfi/log"
)

// ID is a dense, non-negative, agent-local identifier assigned on first
// insertion of a packed state. It never travels over the wire.
type ID int32

// NoState is the sentinel "absent" state id.
const NoState ID = -1

// Status is the lifecycle of a node in the open-list / closed-set sense.
type Status uint8

const (
	StatusNew Status = iota
	StatusOpen
	StatusClosed
)

// HeurNotEvaluated and HeurDeadEnd are the two heuristic sentinels; any
// other value is a non-negative admissible-or-not cost estimate.
const (
	HeurNotEvaluated = -1
	HeurDeadEnd      = 1<<31 - 1
)

// Node is the per-state-id record the search and driver mutate.
type Node struct {
	StateID ID
	Parent  ID
	Op      problem.OpID // supporting operator's index in Problem.Ops; -1 if none (e.g. initial or a peer-received state)
	HasOp   bool
	Cost    int
	Heur    int
	Status  Status
}

// NoOp marks a Node as having no supporting operator.
const NoOp problem.OpID = -1

// insertHook is called with the id of a newly inserted state, in the same
// order aux tables were registered, so every Aux[T] table grows in lock
// step with the pool.
type insertHook func(id ID)

// Pool is a content-addressed store of packed states. It is not safe for
// concurrent use: each agent owns exactly one pool on its own goroutine.
type Pool struct {
	packer *Packer
	byKey  map[string]ID
	bufs   [][]byte
	nodes  []Node
	hooks  []insertHook

	log     lux.Logger
	gauge   prometheus.Gauge
	inserts prometheus.Counter
}

// PublicRef records that a state was received from a peer rather than
// produced locally: which agent sent it, and the state id it has in that
// peer's own pool. Path assembly (component L) walks this table to
// forward a TRACE_PATH across the agent boundary. AgentID -1 means the
// state was produced locally by this agent.
type PublicRef struct {
	AgentID       int
	RemoteStateID int32
}

// NoPublicRef is the AuxTable init value for states produced locally.
var NoPublicRef = PublicRef{AgentID: -1, RemoteStateID: -1}

// AuxTable is per-state auxiliary storage reserved against a Pool: it
// holds one T per state id, initialised to the reserved init value the
// moment the pool first inserts that state. The multi-agent driver
// reserves one for public-state reference data; anything else that needs
// to annotate states without widening Node can reserve its own.
type AuxTable[T any] struct {
	vals []T
	init T
}

// ReserveData reserves a new auxiliary table on p. Entries for states
// already inserted are backfilled with init.
func ReserveData[T any](p *Pool, init T) *AuxTable[T] {
	t := &AuxTable[T]{init: init}
	for range p.bufs {
		t.vals = append(t.vals, init)
	}
	p.hooks = append(p.hooks, t.grow)
	return t
}

func (t *AuxTable[T]) grow(ID) { t.vals = append(t.vals, t.init) }

// Get returns the value stored for id.
func (t *AuxTable[T]) Get(id ID) T { return t.vals[id] }

// Set replaces the value stored for id.
func (t *AuxTable[T]) Set(id ID, v T) { t.vals[id] = v }

// Option configures a Pool at construction time.
type Option func(*Pool)

// WithLogger attaches a structured logger; the zero value is a no-op logger.
func WithLogger(l lux.Logger) Option {
	return func(p *Pool) { p.log = l }
}

// WithMetrics registers a pool-size gauge and an insert counter on reg.
// Passing a nil registerer disables metrics.
func WithMetrics(reg prometheus.Registerer, agentID int) Option {
	return func(p *Pool) {
		if reg == nil {
			return
		}
		p.gauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "maplan_state_pool_size",
			Help:        "Number of states held in the local state pool.",
			ConstLabels: prometheus.Labels{"agent": strconv.Itoa(agentID)},
		})
		p.inserts = prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "maplan_state_pool_inserts_total",
			Help:        "Total number of Insert calls, including idempotent repeats.",
			ConstLabels: prometheus.Labels{"agent": strconv.Itoa(agentID)},
		})
		reg.MustRegister(p.gauge, p.inserts)
	}
}

// NewPool constructs a pool for the given variable list.
func NewPool(vars []problem.Var, opts ...Option) *Pool {
	p := &Pool{
		packer: NewPacker(vars),
		byKey:  make(map[string]ID),
		log:    applog.NewNoOpLogger(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Packer returns the packer this pool was constructed with.
func (p *Pool) Packer() *Packer { return p.packer }

// Size returns the number of distinct states inserted so far.
func (p *Pool) Size() int { return len(p.bufs) }

// Insert returns the id for buf, assigning a fresh dense id on first sight.
// Byte-identical buffers always return the same id.
func (p *Pool) Insert(buf []byte) ID {
	return p.insert(localKey(buf), buf)
}

// localKey and publicKey build the content-address for the two kinds of
// state a pool holds. Locally produced states are keyed by their full
// packed buffer. Peer-received states are keyed by (public bytes, full
// 32-bit surrogate) instead: the packed private region may be narrower
// than 4 bytes, and truncating the surrogate into it would alias distinct
// peer private states once the surrogate count outgrows that width. The
// leading tag byte keeps the two key spaces disjoint.
func localKey(buf []byte) string {
	return "l" + string(buf)
}

func publicKey(publicBuf []byte, surrogate int32) string {
	key := make([]byte, 0, len(publicBuf)+5)
	key = append(key, 'p')
	u := uint32(surrogate)
	key = append(key, byte(u), byte(u>>8), byte(u>>16), byte(u>>24))
	key = append(key, publicBuf...)
	return string(key)
}

func (p *Pool) insert(key string, buf []byte) ID {
	if id, ok := p.byKey[key]; ok {
		if p.inserts != nil {
			p.inserts.Inc()
		}
		return id
	}
	id := ID(len(p.bufs))
	cp := make([]byte, len(buf))
	copy(cp, buf)
	p.bufs = append(p.bufs, cp)
	p.byKey[key] = id
	p.nodes = append(p.nodes, Node{
		StateID: id,
		Parent:  NoState,
		Op:      NoOp,
		Cost:    0,
		Heur:    HeurNotEvaluated,
		Status:  StatusNew,
	})
	for _, h := range p.hooks {
		h(id)
	}
	if p.gauge != nil {
		p.gauge.Set(float64(len(p.bufs)))
	}
	if p.inserts != nil {
		p.inserts.Inc()
	}
	p.log.Debug("state inserted", "id", int32(id))
	return id
}

// InsertState packs and inserts a total state, returning its id.
func (p *Pool) InsertState(s problem.State) ID {
	return p.Insert(p.packer.Pack(s))
}

// InsertPublic inserts a state whose public region arrived from a peer,
// identified by the surrogate standing in for the sender's opaque private
// state (see internal/maregistry) — never the peer's real private values,
// which this agent can never decode. It is still idempotent: identical
// (public, surrogate) pairs collapse to the same id, which is exactly
// what gives a surrogate its meaning. The surrogate participates in the
// content-address at full width; the stored buffer's private region only
// carries its low bytes as a placeholder so Unpack stays total.
func (p *Pool) InsertPublic(publicBuf []byte, surrogate int32) ID {
	buf := make([]byte, p.packer.BufSize())
	copy(buf, publicBuf)
	priv := p.packer.PrivateSlice(buf)
	u := uint32(surrogate)
	for i := 0; i < len(priv) && i < 4; i++ {
		priv[i] = byte(u)
		u >>= 8
	}
	return p.insert(publicKey(publicBuf, surrogate), buf)
}

// Buf returns the packed buffer for id.
func (p *Pool) Buf(id ID) []byte { return p.bufs[id] }

// State unpacks and returns the total state for id.
func (p *Pool) State(id ID) problem.State { return p.packer.Unpack(p.bufs[id]) }

// Node returns a pointer to the mutable node record for id.
func (p *Pool) Node(id ID) *Node { return &p.nodes[id] }

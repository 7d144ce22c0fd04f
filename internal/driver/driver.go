// Package driver implements the multi-agent search driver: the glue that
// steps one agent's single-agent search loop while weaving the
// distributed protocols (public-state broadcast, solution/dead-end
// verification, path assembly, termination) through its gaps.
package driver

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/danfis/maplan-go/internal/heuristic"
	"github.com/danfis/maplan-go/internal/maregistry"
	"github.com/danfis/maplan-go/internal/message"
	"github.com/danfis/maplan-go/internal/path"
	"github.com/danfis/maplan-go/internal/problem"
	"github.com/danfis/maplan-go/internal/search"
	"github.com/danfis/maplan-go/internal/snapshot"
	"github.com/danfis/maplan-go/internal/state"
	"github.com/danfis/maplan-go/internal/succgen"
	"github.com/danfis/maplan-go/internal/terminate"
	"github.com/danfis/maplan-go/internal/transport"
	applog "github.com/danfis/maplan-go/log"
	lux "github.com/luxfi/log"
)

// defaultDeadEndTimeout is how long a blocked agent 0 lets its inbox sit
// empty before suspecting a global dead end.
const defaultDeadEndTimeout = 1000 * time.Millisecond

// Option configures a Driver at construction time.
type Option func(*Driver)

// WithVerifySolution toggles solution verification before a found plan is
// accepted; when false the agent that reaches the goal traces and
// publishes the path immediately.
func WithVerifySolution(v bool) Option {
	return func(d *Driver) { d.verifySolution = v }
}

// WithDeadEndTimeout overrides how long agent 0 waits on its inbox, once
// blocked, before initiating dead-end verification.
func WithDeadEndTimeout(t time.Duration) Option {
	return func(d *Driver) { d.deadEndTimeout = t }
}

// WithMAEvaluator attaches a peer-coordinated heuristic. Without one, HEUR
// messages are logged and dropped — fine, since the only evaluator this
// repo ships (heuristic.Blind) never sends one.
func WithMAEvaluator(h heuristic.MAEvaluator) Option {
	return func(d *Driver) { d.heur = h }
}

// WithLogger attaches a structured logger.
func WithLogger(l lux.Logger) Option {
	return func(d *Driver) { d.log = l }
}

// WithMetrics registers per-message-type dispatch counters and a
// public-state broadcast counter on reg. Passing nil disables metrics.
func WithMetrics(reg prometheus.Registerer, agentID int) Option {
	return func(d *Driver) {
		if reg == nil {
			return
		}
		labels := prometheus.Labels{"agent": fmt.Sprintf("%d", agentID)}
		d.dispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "maplan_driver_messages_dispatched_total",
			Help:        "Messages dispatched by the multi-agent driver, by type.",
			ConstLabels: labels,
		}, []string{"type"})
		d.broadcasts = prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "maplan_driver_public_states_broadcast_total",
			Help:        "Public states broadcast to peers.",
			ConstLabels: labels,
		})
		reg.MustRegister(d.dispatched, d.broadcasts)
	}
}

// Driver runs one agent's side of the whole protocol stack on top of a
// plain, protocol-ignorant search.Search.
type Driver struct {
	self, size int

	prob      *problem.Problem
	search    *search.Search
	transport transport.Transport

	term    *terminate.Controller
	snap    *snapshot.Registry
	maReg   *maregistry.Registry
	trace   *path.Tracer
	heur    heuristic.MAEvaluator
	pubRefs *state.AuxTable[state.PublicRef]

	bestGoalCost int
	goalStateID  state.ID

	verifySolution bool
	deadEndTimeout time.Duration

	tokenSeq     uint64
	deadEndToken uint64

	log        lux.Logger
	dispatched *prometheus.CounterVec
	broadcasts prometheus.Counter
}

// New builds a driver for agent self among size agents. It constructs the
// underlying search.Search itself, rather than taking an already-built
// one, because the search's Hooks must close over this very Driver —
// there is no later hook to thread them through otherwise.
func New(self, size int, prob *problem.Problem, pool *state.Pool, gen *succgen.Generator, heur heuristic.Evaluator, variant search.Variant, t transport.Transport, opts ...Option) *Driver {
	d := &Driver{
		self:           self,
		size:           size,
		prob:           prob,
		transport:      t,
		term:           terminate.New(self, size),
		snap:           snapshot.NewRegistry(self),
		maReg:          maregistry.New(size),
		bestGoalCost:   1<<31 - 1,
		goalStateID:    state.NoState,
		deadEndTimeout: defaultDeadEndTimeout,
		log:            applog.NewNoOpLogger(),
	}
	for _, o := range opts {
		o(d)
	}
	d.search = search.New(prob, pool, gen, heur, variant, d.hooks())
	d.pubRefs = state.ReserveData(pool, state.NoPublicRef)
	d.trace = path.NewTracer(&poolBackend{pool: pool, refs: d.pubRefs, prob: prob, initial: d.search.InitialState()}, self)
	return d
}

// Search returns the underlying single-agent search, for callers (tests,
// the supervisor) that need to read its state directly.
func (d *Driver) Search() *search.Search { return d.search }

// nextToken mints a snapshot/heuristic token that is globally unique
// across the whole run: the high 32 bits are a local monotonic counter,
// the low 32 the minting agent's id, so two agents never independently
// mint the same value.
func (d *Driver) nextToken() uint64 {
	d.tokenSeq++
	return d.tokenSeq<<32 | uint64(uint32(d.self))
}

// Abort cooperatively cancels this agent's local search; the next Step
// observes it and the driver starts termination with OutcomeAbort. Safe
// to call from another goroutine (a hard-limit monitor, a signal
// handler).
func (d *Driver) Abort() { d.search.Abort() }

// Terminated reports whether the termination FSM has closed out.
func (d *Driver) Terminated() bool { return d.term.IsTerminated() }

// Outcome returns the agreed result and assembled path once Terminated is
// true; meaningless otherwise.
func (d *Driver) Outcome() terminate.Payload { return d.term.Payload() }

// Run drives the search to completion, interleaving protocol handling,
// and returns once every agent has agreed the run is over.
func (d *Driver) Run() (terminate.Payload, error) {
	for !d.term.IsTerminated() {
		if err := d.step(); err != nil {
			return terminate.Payload{}, err
		}
	}
	if toks := d.snap.Tokens(); len(toks) > 0 {
		d.log.Debug("snapshots still live at termination", "count", len(toks))
	}
	return d.term.Payload(), nil
}

// step runs one iteration: a single search.Step (which may fire the
// search hooks below), followed by draining every message already
// buffered on the inbox.
func (d *Driver) step() error {
	d.search.Step()
	return d.drain()
}

// drain dispatches every message currently queued without blocking. A
// protocol violation surfacing from a handler is fatal for the run, not
// the process: it is logged and the ring is aborted, letting every agent
// agree on the failure through the ordinary termination waves.
func (d *Driver) drain() error {
	for {
		msg, ok := d.transport.Recv()
		if !ok {
			return nil
		}
		if err := d.dispatch(msg); err != nil {
			d.log.Error("protocol violation", "err", err)
			d.initiateTermination(terminate.OutcomeAbort, nil)
		}
	}
}

func (d *Driver) hooks() search.Hooks {
	return search.Hooks{
		PostStep:     d.postStep,
		ExpandedNode: d.expandedNode,
		ReachedGoal:  d.reachedGoal,
		MAHeur:       d.maHeur,
	}
}

// maHeur runs one peer-coordinated heuristic evaluation to completion:
// it asks the MA evaluator for a value and, while the evaluator stays
// pending, blocks on the inbox, feeding heuristic updates straight into
// the evaluator and everything else through the ordinary dispatch path.
// Termination starting mid-evaluation cuts the wait short.
func (d *Driver) maHeur(id state.ID) (cost int, deadEnd bool, handled bool) {
	if d.heur == nil {
		return 0, false, false
	}
	comm := heurComm{d: d}
	res := d.heur.EvaluateNode(comm, int32(id), d.search.Pool().State(id))
	for res.Status == heuristic.StatusPending && d.term.State() == terminate.StateNone {
		msg, ok := d.transport.RecvBlock(0)
		if !ok {
			break
		}
		if msg.Type == message.TypeHeur && msg.Subtype == message.HeurUpdate {
			res = d.heur.Update(comm, heuristic.Update{
				Token:     heuristic.Token(msg.HeurToken),
				FromAgent: int(msg.AgentID),
				Cost:      int(msg.HeurCost),
				DeadEnd:   msg.HeurDeadEnd,
			})
			continue
		}
		if err := d.dispatch(msg); err != nil {
			d.log.Error("dispatch failed during heuristic evaluation", "err", err)
			d.initiateTermination(terminate.OutcomeAbort, nil)
		}
	}
	if res.Status != heuristic.StatusReady {
		return 0, true, true
	}
	return res.Cost, res.DeadEnd, true
}

// comm adapts the transport to the identical SendTo/SendToAll shape
// terminate.Comm and snapshot.Comm each declare independently, so the same
// adapter value serves both.
func (d *Driver) comm() *transportComm { return &transportComm{t: d.transport} }

// transportComm adapts transport.Transport to the narrow SendTo/SendToAll
// shape every protocol package in this repo asks of its host.
type transportComm struct{ t transport.Transport }

func (c *transportComm) SendTo(peer int, msg *message.Message) error {
	return c.t.SendTo(peer, msg)
}

func (c *transportComm) SendToAll(msg *message.Message) error {
	return transport.SendToAll(c.t, msg)
}

func (d *Driver) initiateTermination(outcome terminate.Outcome, p []message.PathEntry) {
	if d.term.State() != terminate.StateNone {
		return
	}
	d.term.SetPayload(terminate.Payload{Result: outcome, Path: p})
	if err := d.term.Start(d.comm()); err != nil {
		d.log.Error("failed to start termination", "err", err)
	}
}

// isBlocked reports whether this agent's local search has exhausted its
// open list. Read straight off the search's concluded result — which
// InsertExternal resets the moment a peer's state revives the search —
// so the answer reflects the search's true current state at the moment a
// dead-end probe is answered, never a cached flag that could go stale.
func (d *Driver) isBlocked() bool { return d.search.Result() == search.NotFound }

func (d *Driver) runTrace(id state.ID) {
	p, done, peer, msg, err := d.trace.Start(int32(id))
	if err != nil {
		d.log.Error("path trace failed", "err", err)
		d.initiateTermination(terminate.OutcomeAbort, nil)
		return
	}
	if done {
		d.initiateTermination(terminate.OutcomeFound, p)
		return
	}
	if err := d.transport.SendTo(peer, msg); err != nil {
		d.log.Error("failed to forward TRACE_PATH", "err", err)
		d.search.Abort()
	}
}

// postStep reacts to what the just-completed Step concluded, if anything.
func (d *Driver) postStep(res search.Result) {
	switch res {
	case search.Found:
		// Swallowed: the authoritative result is only ever declared by
		// solution verification (or, with verification disabled, by
		// runTrace) or by the termination FINAL_FIN payload.
	case search.NotFound:
		msg, ok := d.transport.RecvBlock(d.deadEndTimeout)
		if !ok {
			if d.self == 0 && d.term.State() == terminate.StateNone {
				d.initiateDeadEndVerification()
			}
			return
		}
		if err := d.dispatch(msg); err != nil {
			d.log.Error("dispatch failed while blocked", "err", err)
			d.initiateTermination(terminate.OutcomeAbort, nil)
		}
	case search.Abort:
		d.initiateTermination(terminate.OutcomeAbort, nil)
	}
}

// expandedNode publishes a newly expanded node to every peer only if its
// supporting operator is public and it still improves on the best goal
// bound, so agents stop spamming the network once a cheap enough solution
// is already known.
func (d *Driver) expandedNode(id state.ID) {
	node := d.search.Pool().Node(id)
	if !node.HasOp {
		return
	}
	op := &d.prob.Ops[node.Op]
	if op.Private {
		return
	}
	if node.Cost >= d.bestGoalCost {
		return
	}
	d.broadcastPublicState(id)
}

func (d *Driver) broadcastPublicState(id state.ID) {
	pool := d.search.Pool()
	node := pool.Node(id)
	pub := pool.Packer().PublicSlice(pool.Buf(id))
	// The fingerprint identifying this state's private portion to peers
	// is just its own local id: two broadcasts of byte-identical
	// (public, private) state always share an id (state pool
	// idempotence), so the fingerprint is stable and round-trips through
	// maregistry.Surrogate on the receiving end.
	msg := message.New(message.TypePublicState, 0, int32(d.self)).
		WithState(append([]byte(nil), pub...), []int32{int32(id)}, int32(id), int32(node.Cost), int32(node.Heur))
	if err := transport.SendToAll(d.transport, msg); err != nil {
		d.log.Error("failed to broadcast public state", "err", err)
		d.search.Abort()
	}
	if d.broadcasts != nil {
		d.broadcasts.Inc()
	}
}

func typeLabel(t message.Type) string {
	switch t {
	case message.TypeTerminate:
		return "terminate"
	case message.TypeTracePath:
		return "trace_path"
	case message.TypePublicState:
		return "public_state"
	case message.TypeSnapshot:
		return "snapshot"
	case message.TypeHeur:
		return "heur"
	default:
		return "unknown"
	}
}

// reachedGoal runs when a goal is popped: it kicks off solution
// verification (or, with verification disabled, traces and publishes the
// plan directly) for any goal cheaper than the best known, and also for
// the current candidate itself — a failed verification reinserts that
// state at unchanged cost, and it must be able to re-trigger a fresh
// round once the cheaper in-flight path has been processed.
func (d *Driver) reachedGoal(id state.ID) {
	node := d.search.Pool().Node(id)
	if node.Cost >= d.bestGoalCost && id != d.goalStateID {
		return
	}
	d.bestGoalCost = node.Cost
	d.goalStateID = id

	if !d.verifySolution {
		d.runTrace(id)
		return
	}
	d.startSolutionVerification(id, node.Cost)
}

// startSolutionVerification begins a solution-verification snapshot as
// its initiator. The SNAPSHOT_INIT carries the candidate goal's full
// public state block: a peer observing this token for the first time
// must learn C before it can even construct its side of the protocol,
// and a peer that ends up nacking reinserts that very state into its own
// open list.
func (d *Driver) startSolutionVerification(id state.ID, cost int) {
	tok := snapshot.Token(d.nextToken())
	sv := snapshot.NewSolutionVerification(tok, d.self, d.self, d.size, cost)
	d.wireSolutionVerification(sv)
	sv.ObserveLocal(int32(id), cost)
	if topCost, ok := d.search.TopCost(); ok {
		sv.ObserveLocal(-1, topCost)
	}
	sv.OnAccept = func() {
		// A strictly better candidate found while this round was in
		// flight supersedes it.
		if d.bestGoalCost < cost {
			return
		}
		d.runTrace(id)
	}
	sv.OnRetry = func() {
		if d.bestGoalCost < cost {
			return
		}
		d.search.InsertExternal(id)
	}

	pool := d.search.Pool()
	node := pool.Node(id)
	pub := pool.Packer().PublicSlice(pool.Buf(id))
	init := message.New(message.TypeSnapshot, message.SnapshotInit, int32(d.self)).
		WithSnapshot(int32(d.self), uint64(tok), message.SnapshotKindSolutionVerification).
		WithState(append([]byte(nil), pub...), []int32{int32(id)}, int32(id), int32(cost), int32(node.Heur))
	d.snap.StartMsg(d.comm(), sv, init)
}

// wireSolutionVerification attaches the shared OnNack behaviour: a
// nacking agent folds the candidate goal state riding on the INIT back
// into its own pool and open list, so the candidate gets rediscovered
// and reverified once the cheaper in-flight path has been explored.
func (d *Driver) wireSolutionVerification(sv *snapshot.SolutionVerification) {
	sv.OnNack = func(init *message.Message) {
		d.log.Debug("solution verification nacked", "cost", init.StateCost)
		if err := d.ingestPublicState(init); err != nil {
			d.log.Error("failed to reinsert nacked candidate", "err", err)
		}
	}
}

// initiateDeadEndVerification is agent 0's reaction to its inbox sitting
// empty past deadEndTimeout: ask every peer whether it, too, is blocked.
func (d *Driver) initiateDeadEndVerification() {
	if d.deadEndToken != 0 && d.snap.Live(snapshot.Token(d.deadEndToken)) {
		return
	}
	tok := d.nextToken()
	d.deadEndToken = tok
	de := snapshot.NewDeadEndVerification(snapshot.Token(tok), d.self, d.self, d.size)
	de.Blocked = func() bool { return d.isBlocked() }
	de.OnAllBlocked = func() {
		d.initiateTermination(terminate.OutcomeNotFound, nil)
	}
	d.snap.Start(d.comm(), de)
}

// dispatch routes one incoming message to the package that owns its
// protocol. Every ordinary (non-snapshot) message is first offered to the
// snapshot registry so live snapshots observe in-flight traffic from
// peers that have not yet marked — solution verification's lowestCost
// accounting depends on seeing exactly those PUBLIC_STATE messages.
// Snapshot messages themselves are routed by token in dispatchSnapshot.
func (d *Driver) dispatch(msg *message.Message) error {
	if d.dispatched != nil {
		d.dispatched.WithLabelValues(typeLabel(msg.Type)).Inc()
	}
	if msg.Type != message.TypeSnapshot {
		if _, err := d.snap.Dispatch(d.comm(), msg); err != nil {
			return err
		}
	}
	switch msg.Type {
	case message.TypeTerminate:
		return d.term.Dispatch(d.comm(), msg)
	case message.TypePublicState:
		return d.ingestPublicState(msg)
	case message.TypeSnapshot:
		return d.dispatchSnapshot(msg)
	case message.TypeTracePath:
		return d.dispatchTracePath(msg)
	case message.TypeHeur:
		return d.dispatchHeur(msg)
	default:
		return fmt.Errorf("driver: unknown message type %d", msg.Type)
	}
}

// dispatchSnapshot offers msg to the snapshot registry, constructing the
// right Snapshot variant (by the kind the originator attached to the
// SNAPSHOT_INIT message) the first time this agent observes an unknown
// token.
func (d *Driver) dispatchSnapshot(msg *message.Message) error {
	handled, err := d.snap.Dispatch(d.comm(), msg)
	if err != nil {
		return err
	}
	if handled {
		return nil
	}
	if msg.Subtype == message.SnapshotResponse {
		return fmt.Errorf("driver: RESPONSE for unknown snapshot token %d from agent %d", msg.SnapshotToken, msg.AgentID)
	}

	switch msg.SnapshotKind {
	case message.SnapshotKindSolutionVerification:
		sv := snapshot.NewSolutionVerification(snapshot.Token(msg.SnapshotToken), int(msg.InitiatorAgent), d.self, d.size, int(msg.StateCost))
		d.wireSolutionVerification(sv)
		if topCost, ok := d.search.TopCost(); ok {
			sv.ObserveLocal(-1, topCost)
		}
		d.snap.Register(sv)
	case message.SnapshotKindDeadEndVerification:
		de := snapshot.NewDeadEndVerification(snapshot.Token(msg.SnapshotToken), int(msg.InitiatorAgent), d.self, d.size)
		de.Blocked = func() bool { return d.isBlocked() }
		d.snap.Register(de)
	default:
		return fmt.Errorf("driver: unknown snapshot kind %d for token %d", msg.SnapshotKind, msg.SnapshotToken)
	}
	_, err = d.snap.Dispatch(d.comm(), msg)
	return err
}

// dispatchTracePath advances a TRACE_PATH: extend it with this agent's
// own local segment, then either close the trace out or forward it one
// hop further.
func (d *Driver) dispatchTracePath(msg *message.Message) error {
	p, done, peer, out, err := d.trace.Continue(msg)
	if err != nil {
		d.log.Error("path trace failed", "err", err)
		d.initiateTermination(terminate.OutcomeAbort, nil)
		return nil
	}
	if done {
		d.initiateTermination(terminate.OutcomeFound, p)
		return nil
	}
	return d.transport.SendTo(peer, out)
}

// dispatchHeur routes a HEUR message to the attached MA evaluator, if
// any. Without one (the only evaluator this repo ships, heuristic.Blind,
// is single-agent and never sends one), HEUR traffic is simply dropped.
func (d *Driver) dispatchHeur(msg *message.Message) error {
	if d.heur == nil {
		d.log.Warn("dropping HEUR message: no MA evaluator configured", "subtype", msg.Subtype)
		return nil
	}
	comm := heurComm{d: d}
	switch msg.Subtype {
	case message.HeurRequest:
		var st problem.State
		if msg.HasState() {
			pool := d.search.Pool()
			surrogate := d.maReg.Surrogate(int(msg.AgentID), msg.StatePrivateIDs)
			id := pool.InsertPublic(msg.StateBuf, surrogate)
			st = pool.State(id)
		}
		d.heur.HandleRequest(comm, heuristic.Request{
			Token:     heuristic.Token(msg.HeurToken),
			FromAgent: int(msg.AgentID),
			StateID:   msg.StateID,
			State:     st,
		})
	case message.HeurUpdate:
		d.heur.Update(comm, heuristic.Update{
			Token:     heuristic.Token(msg.HeurToken),
			FromAgent: int(msg.AgentID),
			Cost:      int(msg.HeurCost),
			DeadEnd:   msg.HeurDeadEnd,
		})
	default:
		return fmt.Errorf("driver: unknown heur subtype %d", msg.Subtype)
	}
	return nil
}

// heurComm adapts the transport to heuristic.Comm, the narrow sending
// capability an MA evaluator needs to run its own request/response
// traffic without depending on this package.
type heurComm struct{ d *Driver }

func (c heurComm) SendRequest(toAgent int, tok heuristic.Token, stateID int32, st problem.State) {
	pool := c.d.search.Pool()
	buf := pool.Packer().Pack(st)
	pub := pool.Packer().PublicSlice(buf)
	msg := message.New(message.TypeHeur, message.HeurRequest, int32(c.d.self)).
		WithHeur(uint64(tok), nil, 0, false).
		WithState(append([]byte(nil), pub...), []int32{stateID}, stateID, 0, 0)
	if err := c.d.transport.SendTo(toAgent, msg); err != nil {
		c.d.log.Error("failed to send heuristic request", "err", err)
	}
}

func (c heurComm) SendResponse(toAgent int, tok heuristic.Token, cost int, deadEnd bool) {
	msg := message.New(message.TypeHeur, message.HeurUpdate, int32(c.d.self)).
		WithHeur(uint64(tok), nil, int32(cost), deadEnd)
	if err := c.d.transport.SendTo(toAgent, msg); err != nil {
		c.d.log.Error("failed to send heuristic response", "err", err)
	}
}

// Package search implements the single-agent forward state-space search
// loops (A*, lazy best-first, enforced hill-climbing) that the multi-agent
// driver steps one iteration at a time, threading its own protocol
// handling in between steps via the Hooks callbacks.
package search

import (
	"sync/atomic"

	"github.com/danfis/maplan-go/internal/heuristic"
	"github.com/danfis/maplan-go/internal/openlist"
	"github.com/danfis/maplan-go/internal/problem"
	"github.com/danfis/maplan-go/internal/state"
	"github.com/danfis/maplan-go/internal/succgen"
)

// Result is the outcome of a Step, or of the search as a whole once it
// stops returning Unknown.
type Result int

const (
	Unknown Result = iota
	Found
	NotFound
	// Abort is reported once Abort() has been called on this Search,
	// typically by a hard-limit monitor or a caught signal; it takes
	// priority over whatever Step would otherwise have done.
	Abort
)

// Variant selects which search algorithm Step runs.
type Variant int

const (
	AStar Variant = iota
	LazyBestFirst
	EHC
)

// Hooks lets a caller (typically the multi-agent driver) observe and react
// to search progress without the search package knowing anything about
// communication or protocols.
type Hooks struct {
	// PostStep runs after every Step call, including ones that made no
	// progress toward a conclusion (res == Unknown).
	PostStep func(res Result)
	// ExpandedNode runs once per successfully expanded node, before its
	// successors are generated.
	ExpandedNode func(id state.ID)
	// ReachedGoal runs every time a popped node satisfies the goal, so a
	// goal state pushed again through InsertExternal triggers it again.
	ReachedGoal func(id state.ID)
	// MAHeur, when set, takes over heuristic evaluation for states the
	// plain Evaluator cannot judge alone: the multi-agent driver installs
	// it to run the peer-coordinated request/response round and block on
	// the inbox until a value is available. handled=false falls back to
	// the plain Evaluator.
	MAHeur func(id state.ID) (cost int, deadEnd bool, handled bool)
}

// Search runs one of the three search variants over a Problem, using a
// shared state pool and successor generator.
type Search struct {
	prob    *problem.Problem
	pool    *state.Pool
	gen     *succgen.Generator
	heur    heuristic.Evaluator
	variant Variant
	hooks   Hooks

	open *openlist.Queue[state.ID]

	result    Result
	goalID    state.ID
	initialID state.ID

	// ehcCurrent is the anchor state EHC is hill-climbing from; ehcQueue
	// is the BFS frontier of its plateau.
	ehcCurrent state.ID
	ehcQueue   []state.ID
	ehcVisited map[state.ID]bool

	// aborted is set by Abort(), checked at the top of every Step; the
	// rest of Search is single-threaded, so this is the only field any
	// other goroutine (a hard-limit monitor, a signal handler) ever
	// touches.
	aborted int32
}

// Abort cooperatively cancels the search: the next Step call (and every
// one after it) returns Abort instead of doing any further work. Safe to
// call from any goroutine.
func (s *Search) Abort() { atomic.StoreInt32(&s.aborted, 1) }

// isAborted reports whether Abort has been called.
func (s *Search) isAborted() bool { return atomic.LoadInt32(&s.aborted) != 0 }

// New constructs a Search over prob, seeding the open list with the
// initial state. pool and gen must already be built for prob's variables
// and operators.
func New(prob *problem.Problem, pool *state.Pool, gen *succgen.Generator, heur heuristic.Evaluator, variant Variant, hooks Hooks) *Search {
	s := &Search{
		prob:    prob,
		pool:    pool,
		gen:     gen,
		heur:    heur,
		variant: variant,
		hooks:   hooks,
	}
	initID := pool.InsertState(prob.Initial)
	node := pool.Node(initID)
	node.Cost = 0
	s.initialID = initID

	switch variant {
	case EHC:
		s.ehcCurrent = initID
		s.ehcVisited = map[state.ID]bool{initID: true}
		s.ehcQueue = []state.ID{initID}
		s.evalHeuristic(initID)
	default:
		s.open = openlist.New[state.ID]()
		s.pushOpen(initID)
	}
	return s
}

// pushOpen marks id OPEN and pushes it under its current sort key,
// whatever its previous status. The cost side of the (re)push policy (NEW
// nodes always, OPEN/CLOSED ones only on a strictly smaller cost) is
// checked by the callers before they call it, e.g. expand. It never
// recomputes a node's heuristic — see evalHeuristic.
func (s *Search) pushOpen(id state.ID) bool {
	node := s.pool.Node(id)
	switch node.Status {
	case state.StatusNew:
		node.Status = state.StatusOpen
	case state.StatusOpen, state.StatusClosed:
		node.Status = state.StatusOpen
	}
	key := s.sortKey(id)
	s.open.Push(key, id)
	return true
}

func (s *Search) sortKey(id state.ID) int {
	node := s.pool.Node(id)
	h := node.Heur
	if h == state.HeurNotEvaluated {
		h = 0
	}
	if s.variant == LazyBestFirst {
		return h
	}
	return node.Cost + h
}

// evalHeuristic computes and stores the heuristic for id if it hasn't
// been evaluated yet, returning whether it is a dead end.
func (s *Search) evalHeuristic(id state.ID) (deadEnd bool) {
	node := s.pool.Node(id)
	if node.Heur != state.HeurNotEvaluated {
		return node.Heur == state.HeurDeadEnd
	}
	if s.hooks.MAHeur != nil {
		if cost, dead, handled := s.hooks.MAHeur(id); handled {
			if dead {
				node.Heur = state.HeurDeadEnd
				return true
			}
			node.Heur = cost
			return false
		}
	}
	cost, dead := s.heur.Evaluate(s.pool.State(id))
	if dead {
		node.Heur = state.HeurDeadEnd
		return true
	}
	node.Heur = cost
	return false
}

// Step runs one iteration of the selected search variant and returns
// Unknown until the search concludes, at which point it keeps returning
// the same concluding Result on every subsequent call.
func (s *Search) Step() Result {
	if s.result != Unknown {
		// PostStep still fires on every call: the multi-agent driver keeps
		// stepping a locally concluded search while peer traffic can still
		// revive it, and its only blocking point (the dead-end timeout)
		// lives inside that hook.
		if s.hooks.PostStep != nil {
			s.hooks.PostStep(s.result)
		}
		return s.result
	}
	if s.isAborted() {
		s.result = Abort
		if s.hooks.PostStep != nil {
			s.hooks.PostStep(Abort)
		}
		return Abort
	}
	var res Result
	switch s.variant {
	case EHC:
		res = s.stepEHC()
	default:
		res = s.stepBestFirst()
	}
	if s.hooks.PostStep != nil {
		s.hooks.PostStep(res)
	}
	if res != Unknown {
		s.result = res
	}
	return res
}

// Run steps the search to completion, calling Step (and therefore every
// hook) on every iteration.
func (s *Search) Run() Result {
	for {
		if res := s.Step(); res != Unknown {
			return res
		}
	}
}

// Result returns the search's concluded result, or Unknown while it is
// still running. Unlike Step it has no side effects: no hook fires and
// no work happens, so protocol callbacks can consult it re-entrantly.
func (s *Search) Result() Result { return s.result }

// GoalState returns the state id the search stopped at once it returns
// Found; it is meaningless otherwise.
func (s *Search) GoalState() state.ID { return s.goalID }

// InitialState returns this agent's own true initial state id, the
// boundary path tracing stops walking back-pointers at.
func (s *Search) InitialState() state.ID { return s.initialID }

// Pool returns the state pool the search was built on, letting callers
// (the driver, path tracing) inspect node records directly.
func (s *Search) Pool() *state.Pool { return s.pool }

// InsertExternal offers an externally-produced state (e.g. one just
// ingested from a peer's PUBLIC_STATE, or a state a failed snapshot
// verification asked to be reconsidered) to the open list. It pushes id
// without a cost check of its own; the caller decides whether the state's
// cost warrants another push. It is a no-op for the
// EHC variant, whose plateau-local BFS has no open list to push into.
func (s *Search) InsertExternal(id state.ID) bool {
	if s.open == nil {
		return false
	}
	ok := s.pushOpen(id)
	// A locally concluded Found/NotFound is only provisional from the
	// multi-agent driver's point of view: a peer's broadcast or a failed
	// solution-verification retry can always hand back a state this
	// agent's own search had already given up on (NotFound) or had
	// already accepted a goal bound it must now try to beat (Found). An
	// aborted search never resumes.
	if ok && (s.result == Found || s.result == NotFound) {
		s.result = Unknown
		s.goalID = state.NoState
	}
	return ok
}

// TopCost returns the key of the open list's lowest-priority entry without
// removing it, used by solution verification to know the cheapest cost
// this agent could still reach. ok is false when the open list is empty
// or (for EHC) doesn't exist.
func (s *Search) TopCost() (cost int, ok bool) {
	if s.open == nil {
		return 0, false
	}
	return s.open.Peek()
}

func (s *Search) stepBestFirst() Result {
	for !s.open.Empty() {
		_, id := s.open.Pop()
		node := s.pool.Node(id)
		if node.Status == state.StatusClosed {
			continue
		}

		if s.variant == LazyBestFirst && node.Heur == state.HeurNotEvaluated {
			if s.evalHeuristic(id) {
				node.Status = state.StatusClosed
				continue
			}
			// Lazy evaluation may change this node's priority relative
			// to others still queued; re-insert and let the queue decide
			// whether it is still the best candidate.
			s.pushOpen(id)
			continue
		}
		if node.Heur == state.HeurNotEvaluated {
			if s.evalHeuristic(id) {
				node.Status = state.StatusClosed
				continue
			}
		}
		if node.Heur == state.HeurDeadEnd {
			node.Status = state.StatusClosed
			continue
		}

		node.Status = state.StatusClosed
		if s.hooks.ExpandedNode != nil {
			s.hooks.ExpandedNode(id)
		}
		if s.prob.IsGoal(s.pool.State(id)) {
			s.goalID = id
			if s.hooks.ReachedGoal != nil {
				s.hooks.ReachedGoal(id)
			}
			return Found
		}
		s.expand(id)
		return Unknown
	}
	return NotFound
}

// expand generates every successor of id and offers each to the open
// list per the (re)push policy.
func (s *Search) expand(id state.ID) {
	node := s.pool.Node(id)
	st := s.pool.State(id)
	for _, opID := range s.gen.FindState(st) {
		op := &s.prob.Ops[opID]
		if !op.Applicable(st) {
			continue
		}
		succ := op.Apply(st)
		succID := s.pool.InsertState(succ)
		succNode := s.pool.Node(succID)
		newCost := node.Cost + op.Cost

		if succNode.Status == state.StatusNew || newCost < succNode.Cost {
			succNode.Cost = newCost
			succNode.Parent = id
			succNode.Op = opID
			succNode.HasOp = true
			s.pushOpen(succID)
		}
	}
}

func (s *Search) stepEHC() Result {
	for len(s.ehcQueue) > 0 {
		id := s.ehcQueue[0]
		s.ehcQueue = s.ehcQueue[1:]

		if s.hooks.ExpandedNode != nil {
			s.hooks.ExpandedNode(id)
		}
		st := s.pool.State(id)
		if s.prob.IsGoal(st) {
			s.goalID = id
			if s.hooks.ReachedGoal != nil {
				s.hooks.ReachedGoal(id)
			}
			return Found
		}

		anchorHeur := s.pool.Node(s.ehcCurrent).Heur
		node := s.pool.Node(id)
		for _, opID := range s.gen.FindState(st) {
			op := &s.prob.Ops[opID]
			if !op.Applicable(st) {
				continue
			}
			succ := op.Apply(st)
			succID := s.pool.InsertState(succ)
			if s.ehcVisited[succID] {
				continue
			}
			s.ehcVisited[succID] = true

			succNode := s.pool.Node(succID)
			succNode.Cost = node.Cost + op.Cost
			succNode.Parent = id
			succNode.Op = opID
			succNode.HasOp = true

			if s.evalHeuristic(succID) {
				continue
			}
			if s.pool.Node(succID).Heur < anchorHeur {
				// Found a strict improvement: restart hill climbing from
				// here, discarding the rest of the current plateau.
				s.ehcCurrent = succID
				s.ehcQueue = []state.ID{succID}
				s.ehcVisited = map[state.ID]bool{succID: true}
				return Unknown
			}
			s.ehcQueue = append(s.ehcQueue, succID)
		}
		return Unknown
	}
	return NotFound
}

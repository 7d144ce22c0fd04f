// Package heuristic fixes the evaluator contract the search package drives
// a state-space search with. It ships the abstract single-agent and
// multi-agent contracts plus one trivial concrete evaluator (Blind);
// building an informed heuristic (delete relaxation, DTG, LM-Cut, flow,
// potential heuristics, ...) is a separate concern left to callers.
package heuristic

import "github.com/danfis/maplan-go/internal/problem"

// Evaluator estimates the cost-to-goal for a state. A deadEnd result of
// true means no goal is reachable from s; cost is meaningless in that case.
type Evaluator interface {
	Evaluate(s problem.State) (cost int, deadEnd bool)
}

// Token identifies one multi-agent heuristic request/response round.
// Carried as a distinct type from any snapshot token so the two protocols
// can never be dispatched into each other by numeric coincidence.
type Token uint64

// Status is the outcome of an MA-heuristic evaluation attempt.
type Status uint8

const (
	// StatusReady means Cost (or DeadEnd) already holds the final answer.
	StatusReady Status = iota
	// StatusPending means the evaluator is waiting on peer responses;
	// the caller must keep routing incoming updates into Update until it
	// sees StatusReady.
	StatusPending
)

// Result is what EvaluateNode/Update return.
type Result struct {
	Status  Status
	Cost    int
	DeadEnd bool
}

// Ready builds a StatusReady result.
func Ready(cost int, deadEnd bool) Result {
	return Result{Status: StatusReady, Cost: cost, DeadEnd: deadEnd}
}

// Pending builds a StatusPending result.
func Pending() Result {
	return Result{Status: StatusPending}
}

// Comm is the narrow sending capability an MA evaluator needs; the driver
// supplies an implementation backed by the real transport and message
// codec so this package stays free of a dependency on either.
type Comm interface {
	SendRequest(toAgent int, tok Token, stateID int32, state problem.State)
	SendResponse(toAgent int, tok Token, cost int, deadEnd bool)
}

// Update carries one peer's contribution to an in-flight request.
type Update struct {
	Token     Token
	FromAgent int
	Cost      int
	DeadEnd   bool
}

// Request carries a peer's ask for this agent's local heuristic knowledge
// about a state it doesn't have the private part of.
type Request struct {
	Token     Token
	FromAgent int
	StateID   int32
	State     problem.State
}

// MAEvaluator is the multi-agent evaluator contract. It is an explicit,
// caller-driven state machine: EvaluateNode may return Pending, after
// which the driver feeds every subsequent Update for that token through
// Update until it sees Ready. There is no hidden re-entry into the search
// loop and no goroutine owned by the evaluator itself.
type MAEvaluator interface {
	EvaluateNode(comm Comm, stateID int32, s problem.State) Result
	Update(comm Comm, u Update) Result
	HandleRequest(comm Comm, r Request)
}

// Blind is the trivial evaluator: every state costs 0 to the goal, unless
// a caller-supplied predicate marks it a dead end.
type Blind struct {
	deadEnd func(problem.State) bool
}

// NewBlind returns a Blind evaluator. deadEnd may be nil, meaning no state
// is ever considered a dead end.
func NewBlind(deadEnd func(problem.State) bool) *Blind {
	return &Blind{deadEnd: deadEnd}
}

func (b *Blind) Evaluate(s problem.State) (cost int, deadEnd bool) {
	if b.deadEnd != nil && b.deadEnd(s) {
		return 0, true
	}
	return 0, false
}

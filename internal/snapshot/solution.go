package snapshot

import (
	"math"

	"github.com/danfis/maplan-go/internal/message"
)

// SolutionVerification certifies that a just-found goal state at cost C is
// not dominated by a cheaper state still in flight anywhere in the
// system. Every agent tracks lowestCost, the minimum cost of any ordinary
// state-message it has seen from a not-yet-marked peer, plus its own best
// locally known state cost via ObserveLocal.
type SolutionVerification struct {
	header

	cost int

	// initMsg is the initiator's SNAPSHOT_INIT, retained on non-initiators
	// because it carries the candidate goal's full state block: a nacking
	// agent reinserts exactly that state into its own open list so the
	// candidate is rediscovered (and reverified) once the cheaper path has
	// been explored.
	initMsg *message.Message

	lowestCost    int
	lowestStateID int32

	// OnNack runs on a non-initiator that decided to nack, with the
	// retained INIT message; the driver reinserts its state block into
	// the local open list.
	OnNack func(init *message.Message)
	// OnAccept runs on the initiator once every peer acked and its own
	// lowestCost also clears the bar: the solution at cost C is optimal
	// and path tracing may begin.
	OnAccept func()
	// OnRetry runs on the initiator when verification fails: the goal
	// state must be reinserted to be rediscovered, possibly at a lower
	// cost, later.
	OnRetry func()
}

// NewSolutionVerification builds a solution-verification snapshot for a
// goal found at the given cost.
func NewSolutionVerification(token Token, initiator, self, size, cost int) *SolutionVerification {
	return &SolutionVerification{
		header:        newHeader(token, message.SnapshotKindSolutionVerification, initiator, self, size),
		cost:          cost,
		lowestCost:    math.MaxInt32,
		lowestStateID: -1,
	}
}

// InitMsg retains the initiator's INIT and adopts the candidate cost it
// carries. The snapshot may have been constructed from an out-of-order
// MARK that carried no cost at all; the INIT is guaranteed to arrive
// before MarkFinalize can run, since it doubles as the initiator's mark.
func (sv *SolutionVerification) InitMsg(_ Comm, msg *message.Message) {
	sv.initMsg = msg.Clone()
	sv.cost = int(msg.StateCost)
}

// Update folds a PUBLIC_STATE from an unmarked peer into lowestCost.
// Other state-carrying traffic (heuristic requests ride a state block
// too, at a meaningless cost of zero) never counts.
func (sv *SolutionVerification) Update(msg *message.Message) {
	if msg.Type != message.TypePublicState || !msg.HasState() {
		return
	}
	if int(msg.StateCost) < sv.lowestCost {
		sv.lowestCost = int(msg.StateCost)
		sv.lowestStateID = msg.StateID
	}
}

// ObserveLocal folds this agent's own best known state cost into
// lowestCost. Update alone only sees messages from peers; the driver
// calls this with its own search's current best before MarkFinalize runs,
// so the initiator's own contribution is accounted for too.
func (sv *SolutionVerification) ObserveLocal(stateID int32, cost int) {
	if cost < sv.lowestCost {
		sv.lowestCost = cost
		sv.lowestStateID = stateID
	}
}

func (sv *SolutionVerification) MarkFinalize(comm Comm) {
	ack := sv.lowestCost >= sv.cost
	if !ack && sv.initMsg != nil && sv.OnNack != nil {
		sv.OnNack(sv.initMsg)
	}
	sv.markResponse(comm, ack)
}

func (sv *SolutionVerification) ResponseFinalize(comm Comm) {
	if sv.allAcked() && sv.lowestCost >= sv.cost {
		if sv.OnAccept != nil {
			sv.OnAccept()
		}
		return
	}
	if sv.OnRetry != nil {
		sv.OnRetry()
	}
}

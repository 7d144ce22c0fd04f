package terminate

import "github.com/danfis/maplan-go/internal/message"

// Start begins (or no-ops if already running) a termination round: it
// sends a TERMINATE_REQUEST carrying this agent's own id around the ring.
// Any agent may call Start concurrently; the lowest id among all
// outstanding ballots wins the election.
func (c *Controller) Start(comm Comm) error {
	if c.state != StateNone {
		return nil
	}
	c.state = StateInProgress
	c.isCandidate = true
	c.candidate = c.self
	req := message.New(message.TypeTerminate, message.TerminateRequest, int32(c.self)).
		WithInitiator(int32(c.self))
	return comm.SendTo(c.next(c.self), req)
}

// handleRequest drops a ballot when this agent is itself a candidate
// holding a strictly smaller id than the ballot's; otherwise forwards it,
// lowering the recorded candidate to whichever id is smaller. A ballot
// that returns to its own originator confirms it.
func (c *Controller) handleRequest(comm Comm, candidate int) error {
	if c.state == StateTerminated {
		return nil
	}
	if c.isCandidate && candidate == c.self {
		return c.confirmInitiator(comm, c.self)
	}
	if c.isCandidate && c.candidate < candidate {
		return nil
	}

	if c.state == StateNone {
		c.state = StateInProgress
	}
	// A passive relay (one that never called Start itself) never injects
	// its own id into the ballot; it only ever narrows to the smallest
	// candidate it has actually seen in flight.
	if c.candidate == -1 || candidate < c.candidate {
		c.candidate = candidate
	}
	fwd := message.New(message.TypeTerminate, message.TerminateRequest, int32(c.self)).
		WithInitiator(int32(c.candidate))
	return comm.SendTo(c.next(c.self), fwd)
}

// confirmInitiator runs on the agent whose own ballot has travelled the
// full ring uncontested. It announces the result to every peer, since the
// ring-forwarded ballot only informed the agents it actually passed
// through on its way back, not necessarily everyone.
func (c *Controller) confirmInitiator(comm Comm, id int) error {
	ann := message.New(message.TypeTerminate, message.TerminateElected, int32(c.self)).
		WithInitiator(int32(id))
	if err := comm.SendToAll(ann); err != nil {
		return err
	}
	return c.adoptInitiator(comm, id)
}

func (c *Controller) handleElected(comm Comm, id int) error {
	if c.state == StateTerminated || c.ringReady {
		return nil
	}
	if c.state == StateNone {
		c.state = StateInProgress
	}
	return c.adoptInitiator(comm, id)
}

// adoptInitiator fixes this agent's ring position relative to id and, if
// that position is 1, starts the FINAL wave.
func (c *Controller) adoptInitiator(comm Comm, id int) error {
	if c.ringReady {
		return nil
	}
	c.initiatorID = id
	c.isInitiator = id == c.self
	c.ringReady = true

	if c.isInitiator {
		c.finalAckTarget = c.size - 1
		return c.tryAdvanceFinalAck(comm)
	}

	pos := c.position(c.self)
	c.posSelf = pos
	c.isFirst = pos == 1
	c.isLast = pos == c.size-1
	c.finalTarget = pos - 1
	c.finalAckTarget = c.size - 1 - pos

	return c.tryAdvanceFinal(comm)
}

package terminate

import "github.com/danfis/maplan-go/internal/message"

// handleFinal records one FINAL from a lower-position peer and advances
// the wave once every lower position has been heard from.
func (c *Controller) handleFinal(comm Comm, from int) error {
	if c.state == StateTerminated {
		return nil
	}
	if !c.finalFrom[from] {
		c.finalFrom[from] = true
		c.finalCount++
	}
	return c.tryAdvanceFinal(comm)
}

// tryAdvanceFinal forwards FINAL to the remaining higher positions once
// this position has heard from every lower one, or — at the last
// position — starts the reverse FINAL_ACK wave instead.
func (c *Controller) tryAdvanceFinal(comm Comm) error {
	if !c.ringReady || c.isInitiator || c.finalDone {
		return nil
	}
	if c.finalCount < c.finalTarget {
		return nil
	}
	c.finalDone = true
	if c.isLast {
		return c.tryAdvanceFinalAck(comm)
	}
	return c.sendFinal(comm)
}

// sendFinal pushes FINAL to the next (size-1-position) agents in forward
// ring order, i.e. every remaining higher position.
func (c *Controller) sendFinal(comm Comm) error {
	n := c.size - 1 - c.posSelf
	peer := c.next(c.self)
	for i := 0; i < n; i++ {
		msg := message.New(message.TypeTerminate, message.TerminateFinal, int32(c.self))
		if err := comm.SendTo(peer, msg); err != nil {
			return err
		}
		peer = c.next(peer)
	}
	return nil
}

// handleFinalAck records one FINAL_ACK from a higher-position peer and
// advances the reverse wave once every higher position has been heard
// from.
func (c *Controller) handleFinalAck(comm Comm, from int) error {
	if c.state == StateTerminated {
		return nil
	}
	if !c.finalAckFrom[from] {
		c.finalAckFrom[from] = true
		c.finalAckCount++
	}
	return c.tryAdvanceFinalAck(comm)
}

// tryAdvanceFinalAck mirrors tryAdvanceFinal in reverse: once this agent
// has heard FINAL_ACK from everyone at a higher position, it forwards to
// everyone at a lower position, except the initiator, who instead
// broadcasts FINAL_FIN.
func (c *Controller) tryAdvanceFinalAck(comm Comm) error {
	if !c.ringReady || c.finalAckDone {
		return nil
	}
	if c.finalAckCount < c.finalAckTarget {
		return nil
	}
	c.finalAckDone = true
	if c.isInitiator {
		return c.broadcastFinalFin(comm)
	}
	return c.sendFinalAck(comm)
}

// sendFinalAck pushes FINAL_ACK to the previous (position) agents in
// backward ring order, i.e. every remaining lower position, including the
// initiator.
func (c *Controller) sendFinalAck(comm Comm) error {
	peer := c.prev(c.self)
	for i := 0; i < c.posSelf; i++ {
		msg := message.New(message.TypeTerminate, message.TerminateFinalAck, int32(c.self))
		if err := comm.SendTo(peer, msg); err != nil {
			return err
		}
		peer = c.prev(peer)
	}
	return nil
}

// broadcastFinalFin closes the protocol: the initiator sends the agreed
// payload to every peer and adopts it locally, since SendToAll never
// loops a message back to its own sender.
func (c *Controller) broadcastFinalFin(comm Comm) error {
	fin := message.New(message.TypeTerminate, message.TerminateFinalFin, int32(c.self)).
		WithSearchResult(int32(c.payload.Result)).
		WithPath(c.payload.Path)
	if err := comm.SendToAll(fin); err != nil {
		return err
	}
	c.adoptFinalFin(c.payload)
	return nil
}

func (c *Controller) handleFinalFin(msg *message.Message) error {
	c.adoptFinalFin(Payload{Result: Outcome(msg.SearchResult), Path: msg.Path})
	return nil
}

func (c *Controller) adoptFinalFin(p Payload) {
	if c.state == StateTerminated {
		return
	}
	c.payload = p
	c.state = StateTerminated
	if c.OnTerminated != nil {
		c.OnTerminated(p)
	}
}

package transport

import (
	"time"

	"github.com/danfis/maplan-go/internal/message"
)

// InprocPool is a pool of per-agent message queues for agents living in
// the same process (separate goroutines). Sending clones the message so
// no two agents ever alias the same buffer.
type InprocPool struct {
	queues []chan *message.Message
}

// NewInprocPool builds a pool for n agents, each with queue capacity cap.
func NewInprocPool(n, cap int) *InprocPool {
	p := &InprocPool{queues: make([]chan *message.Message, n)}
	for i := range p.queues {
		p.queues[i] = make(chan *message.Message, cap)
	}
	return p
}

// Transport returns the Transport view for the given agent id.
func (p *InprocPool) Transport(agentID int) Transport {
	return &inprocTransport{pool: p, id: agentID}
}

type inprocTransport struct {
	pool *InprocPool
	id   int
}

func (t *inprocTransport) ID() int   { return t.id }
func (t *inprocTransport) Size() int { return len(t.pool.queues) }

func (t *inprocTransport) SendTo(peer int, msg *message.Message) error {
	t.pool.queues[peer] <- msg.Clone()
	return nil
}

func (t *inprocTransport) Recv() (*message.Message, bool) {
	select {
	case m := <-t.pool.queues[t.id]:
		return m, true
	default:
		return nil, false
	}
}

func (t *inprocTransport) RecvBlock(timeout time.Duration) (*message.Message, bool) {
	if timeout <= 0 {
		m := <-t.pool.queues[t.id]
		return m, true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case m := <-t.pool.queues[t.id]:
		return m, true
	case <-timer.C:
		return nil, false
	}
}

// Close is a no-op: the queue is owned by the pool, not by one agent's view.
func (t *inprocTransport) Close() error { return nil }

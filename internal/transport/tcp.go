package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/danfis/maplan-go/internal/errs"
	"github.com/danfis/maplan-go/internal/message"
	applog "github.com/danfis/maplan-go/log"
	lux "github.com/luxfi/log"
)

const (
	defaultEstablishTimeout = 10 * time.Second
	defaultShutdownTimeout  = 10 * time.Second
	recvQueueSize           = 1024
)

// TCPOption configures a TCPTransport at dial time.
type TCPOption func(*tcpConfig)

type tcpConfig struct {
	establishTimeout time.Duration
	shutdownTimeout  time.Duration
	log              lux.Logger
	metrics          prometheus.Registerer
}

// WithEstablishTimeout overrides how long DialTCP waits for every peer
// connection to be established before giving up.
func WithEstablishTimeout(d time.Duration) TCPOption {
	return func(c *tcpConfig) { c.establishTimeout = d }
}

// WithShutdownTimeout overrides how long Close waits for peers to
// half-close their side before giving up.
func WithShutdownTimeout(d time.Duration) TCPOption {
	return func(c *tcpConfig) { c.shutdownTimeout = d }
}

// WithTCPLogger attaches a structured logger.
func WithTCPLogger(l lux.Logger) TCPOption {
	return func(c *tcpConfig) { c.log = l }
}

// WithTCPMetrics registers sent/received frame counters on reg.
func WithTCPMetrics(reg prometheus.Registerer) TCPOption {
	return func(c *tcpConfig) { c.metrics = reg }
}

// TCPTransport connects an agent to every other agent over plain TCP.
// Each agent listens on its own address and dials every other agent;
// after connecting, both sides exchange a 2-byte little-endian agent-id
// greeting so inbound sockets can be indexed by peer id regardless of
// accept order.
type TCPTransport struct {
	id, size int

	listener net.Listener
	outConn  []net.Conn
	outMu    []sync.Mutex

	recvCh chan *message.Message

	log             lux.Logger
	sent            prometheus.Counter
	recv            prometheus.Counter
	shutdownTimeout time.Duration

	closeOnce sync.Once
	errs      errs.Errs
	wg        sync.WaitGroup
}

// DialTCP establishes a fully-connected mesh: addrs[i] is agent i's
// listen address, agentID is this process's position in that list.
func DialTCP(ctx context.Context, agentID int, addrs []string, opts ...TCPOption) (*TCPTransport, error) {
	cfg := tcpConfig{
		establishTimeout: defaultEstablishTimeout,
		shutdownTimeout:  defaultShutdownTimeout,
		log:              applog.NewNoOpLogger(),
	}
	for _, o := range opts {
		o(&cfg)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.establishTimeout)
	defer cancel()

	size := len(addrs)
	t := &TCPTransport{
		id:              agentID,
		size:            size,
		outConn:         make([]net.Conn, size),
		outMu:           make([]sync.Mutex, size),
		recvCh:          make(chan *message.Message, recvQueueSize),
		log:             cfg.log,
		shutdownTimeout: cfg.shutdownTimeout,
	}
	if cfg.metrics != nil {
		t.sent = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "maplan_transport_frames_sent_total", Help: "Frames sent over TCP.",
		})
		t.recv = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "maplan_transport_frames_recv_total", Help: "Frames received over TCP.",
		})
		cfg.metrics.MustRegister(t.sent, t.recv)
	}

	ln, err := net.Listen("tcp", addrs[agentID])
	if err != nil {
		return nil, fmt.Errorf("transport: listen on %s: %w", addrs[agentID], err)
	}
	t.listener = ln

	inConnCh := make(chan net.Conn, size)
	go t.acceptLoop(inConnCh)

	var dialWG sync.WaitGroup
	dialErrs := make(chan error, size)
	for peer := 0; peer < size; peer++ {
		if peer == agentID {
			continue
		}
		dialWG.Add(1)
		go func(peer int) {
			defer dialWG.Done()
			conn, err := dialWithRetry(ctx, addrs[peer])
			if err != nil {
				dialErrs <- fmt.Errorf("transport: dial agent %d at %s: %w", peer, addrs[peer], err)
				return
			}
			if err := sendGreeting(conn, agentID); err != nil {
				dialErrs <- fmt.Errorf("transport: greet agent %d: %w", peer, err)
				return
			}
			t.outConn[peer] = conn
		}(peer)
	}
	dialWG.Wait()
	close(dialErrs)
	for err := range dialErrs {
		t.errs.Add(err)
	}
	if t.errs.Errored() {
		return nil, t.errs.Err()
	}

	remaining := size - 1
	for remaining > 0 {
		select {
		case conn := <-inConnCh:
			peer, err := recvGreeting(conn)
			if err != nil {
				t.errs.Add(fmt.Errorf("transport: greeting from accepted conn: %w", err))
				conn.Close()
				continue
			}
			t.startRecvLoop(peer, conn)
			remaining--
		case <-ctx.Done():
			return nil, fmt.Errorf("transport: establishment timed out with %d peers missing", remaining)
		}
	}
	return t, nil
}

func dialWithRetry(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	backoff := 20 * time.Millisecond
	for {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 500*time.Millisecond {
			backoff *= 2
		}
	}
}

func sendGreeting(conn net.Conn, agentID int) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], uint16(agentID))
	_, err := conn.Write(buf[:])
	return err
}

func recvGreeting(conn net.Conn) (int, error) {
	var buf [2]byte
	if _, err := readFull(conn, buf[:]); err != nil {
		return 0, err
	}
	return int(binary.LittleEndian.Uint16(buf[:])), nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := conn.Read(buf[n:])
		if err != nil {
			return n, err
		}
		n += m
	}
	return n, nil
}

func (t *TCPTransport) acceptLoop(out chan<- net.Conn) {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			return
		}
		out <- conn
	}
}

func (t *TCPTransport) startRecvLoop(peer int, conn net.Conn) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		fr := newFrameReader()
		readBuf := make([]byte, 4096)
		for {
			n, err := conn.Read(readBuf)
			if n > 0 {
				fr.Feed(readBuf[:n])
				for {
					payload, ok := fr.Next()
					if !ok {
						break
					}
					msg, decErr := message.Decode(payload)
					if decErr != nil {
						t.log.Warn("transport: dropping malformed frame", "peer", peer, "err", decErr)
						continue
					}
					if t.recv != nil {
						t.recv.Inc()
					}
					t.recvCh <- msg
				}
			}
			if err != nil {
				return
			}
		}
	}()
}

func (t *TCPTransport) ID() int   { return t.id }
func (t *TCPTransport) Size() int { return t.size }

// SendTo encodes msg and writes a length-prefixed frame to peer's outbound
// connection. Concurrent SendTo calls to the same peer are serialized.
func (t *TCPTransport) SendTo(peer int, msg *message.Message) error {
	payload, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("transport: encode: %w", err)
	}
	frame := EncodeFrame(payload)

	t.outMu[peer].Lock()
	defer t.outMu[peer].Unlock()
	if _, err := t.outConn[peer].Write(frame); err != nil {
		return fmt.Errorf("transport: write to agent %d: %w", peer, err)
	}
	if t.sent != nil {
		t.sent.Inc()
	}
	return nil
}

func (t *TCPTransport) Recv() (*message.Message, bool) {
	select {
	case m := <-t.recvCh:
		return m, true
	default:
		return nil, false
	}
}

func (t *TCPTransport) RecvBlock(timeout time.Duration) (*message.Message, bool) {
	if timeout <= 0 {
		m := <-t.recvCh
		return m, true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case m := <-t.recvCh:
		return m, true
	case <-timer.C:
		return nil, false
	}
}

// Close half-closes every outbound connection (so peers see EOF on their
// read side), waits up to the configured shutdown timeout for this
// agent's own receive goroutines to drain, then closes everything.
func (t *TCPTransport) Close() error {
	t.closeOnce.Do(func() {
		for i, conn := range t.outConn {
			if conn == nil {
				continue
			}
			if tc, ok := conn.(*net.TCPConn); ok {
				if err := tc.CloseWrite(); err != nil {
					t.errs.Add(fmt.Errorf("transport: half-close to agent %d: %w", i, err))
				}
			}
		}
		if t.listener != nil {
			t.errs.Add(t.listener.Close())
		}

		done := make(chan struct{})
		go func() {
			t.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(t.shutdownTimeout):
			t.errs.Add(fmt.Errorf("transport: shutdown timed out waiting for peers"))
		}

		for i, conn := range t.outConn {
			if conn == nil {
				continue
			}
			if err := conn.Close(); err != nil {
				t.errs.Add(fmt.Errorf("transport: close conn to agent %d: %w", i, err))
			}
		}
	})
	return t.errs.Err()
}

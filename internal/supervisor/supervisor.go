// Package supervisor implements the hard-limit monitor: a single goroutine
// that watches elapsed wall-clock time and peak memory use and
// cooperatively aborts every search registered with it once either is
// exceeded, plus the SIGTERM/SIGINT handling that does the same. This is
// an explicitly constructed value the process entry point owns and holds
// weak (interface) handles through, rather than a process-wide global.
package supervisor

import (
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	applog "github.com/danfis/maplan-go/log"
	lux "github.com/luxfi/log"
)

// Abortable is the narrow capability the monitor needs from anything it
// watches: every internal/driver.Driver (via its embedded search)
// satisfies it.
type Abortable interface {
	Abort()
}

// Option configures a Supervisor at construction time.
type Option func(*Supervisor)

// WithMaxTime sets the wall-clock budget; zero (the default) disables the
// time check.
func WithMaxTime(d time.Duration) Option {
	return func(s *Supervisor) { s.maxTime = d }
}

// WithMaxMemMB sets the memory budget in megabytes; zero (the default)
// disables the memory check.
func WithMaxMemMB(mb uint64) Option {
	return func(s *Supervisor) { s.maxMemBytes = mb * 1024 * 1024 }
}

// WithPollInterval overrides how often the monitor samples time and
// memory; defaults to 200ms.
func WithPollInterval(d time.Duration) Option {
	return func(s *Supervisor) { s.poll = d }
}

// WithLogger attaches a structured logger.
func WithLogger(l lux.Logger) Option {
	return func(s *Supervisor) { s.log = l }
}

// WithSignals registers SIGTERM/SIGINT handling that aborts every
// registered search, same as a hard-limit trip. Without it (the
// zero-value Supervisor's behaviour) a caught signal does nothing special
// and the process exits directly.
func WithSignals() Option {
	return func(s *Supervisor) { s.catchSignals = true }
}

// Supervisor owns the hard-limit monitor thread for one run. The zero
// value (via New with no options) is inert: Start is a no-op until at
// least one of WithMaxTime/WithMaxMemMB/WithSignals is supplied.
type Supervisor struct {
	maxTime      time.Duration
	maxMemBytes  uint64
	poll         time.Duration
	catchSignals bool
	log          lux.Logger

	mu       sync.Mutex
	watched  []Abortable
	start    time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
	sigCh    chan os.Signal
}

// New builds a Supervisor with the given options.
func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		poll: 200 * time.Millisecond,
		log:  applog.NewNoOpLogger(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register adds a into the set of searches this supervisor can abort. It
// holds no other handle to a — just this narrow interface — so it never
// reaches into a driver's internals.
func (s *Supervisor) Register(a Abortable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watched = append(s.watched, a)
}

// Start launches the monitor goroutine (and, with WithSignals, the signal
// handler). Calling Start on an inert Supervisor (no limits, no signal
// handling configured) is a harmless no-op. Stop must be called once the
// run concludes to release the goroutine(s).
func (s *Supervisor) Start() {
	s.start = time.Now()
	s.stopCh = make(chan struct{})

	active := s.maxTime > 0 || s.maxMemBytes > 0
	if active {
		go s.monitorLoop()
	}
	if s.catchSignals {
		s.sigCh = make(chan os.Signal, 1)
		signal.Notify(s.sigCh, os.Interrupt, syscall.SIGTERM)
		go s.signalLoop()
	}
}

// Stop releases the monitor goroutine(s). Safe to call more than once.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		if s.stopCh != nil {
			close(s.stopCh)
		}
		if s.sigCh != nil {
			signal.Stop(s.sigCh)
		}
	})
}

func (s *Supervisor) monitorLoop() {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if s.maxTime > 0 && time.Since(s.start) >= s.maxTime {
				s.log.Warn("hard time limit exceeded, aborting")
				s.abortAll()
				return
			}
			if s.maxMemBytes > 0 {
				var mem runtime.MemStats
				runtime.ReadMemStats(&mem)
				if mem.Sys >= s.maxMemBytes {
					s.log.Warn("hard memory limit exceeded, aborting", "sys_bytes", mem.Sys)
					s.abortAll()
					return
				}
			}
		}
	}
}

func (s *Supervisor) signalLoop() {
	select {
	case <-s.stopCh:
		return
	case sig, ok := <-s.sigCh:
		if !ok {
			return
		}
		s.log.Warn("caught signal, aborting", "signal", sig.String())
		s.abortAll()
	}
}

func (s *Supervisor) abortAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.watched {
		a.Abort()
	}
}

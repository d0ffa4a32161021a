package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/fianchetto/kibitz/internal/telemetry"
)

// Pool is a bounded set of sessions handed out for exclusive use. Pool size
// is the system's degree of analysis parallelism; callers block in Acquire
// until a session frees up, in FIFO order by channel discipline.
type Pool struct {
	mu     sync.Mutex
	closed bool
	free   chan *Session
	all    []*Session
}

// NewPool builds size sessions from cfg, numbered s1..sN. Sessions launch
// lazily on first Acquire, so a missing binary surfaces per-caller rather
// than at construction.
func NewPool(cfg SessionConfig, size int) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{free: make(chan *Session, size)}
	for i := 0; i < size; i++ {
		c := cfg
		c.Name = fmt.Sprintf("s%d", i+1)
		s := NewSession(c)
		p.all = append(p.all, s)
		p.free <- s
	}
	return p
}

// Size returns the configured parallelism.
func (p *Pool) Size() int { return cap(p.free) }

// Acquire blocks until a session is free, then ensures it is Ready: a
// stopped session is started, and a crashed one gets its single automatic
// restart. Start failures return the session to the pool so other callers
// can retry, and surface to this caller.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("engine: acquire: %w", ErrPoolClosed)
	}

	select {
	case s := <-p.free:
		if err := p.ready(ctx, s); err != nil {
			p.Release(s)
			return nil, err
		}
		return s, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("engine: acquire: %w", ctx.Err())
	}
}

// ready brings a drawn session to the Ready state.
func (p *Pool) ready(ctx context.Context, s *Session) error {
	switch s.State() {
	case StateReady, StateAnalyzing:
		return nil
	case StateCrashed:
		if !s.restartable() {
			return fmt.Errorf("engine: session %s crashed repeatedly: %w", s.name, ErrEngineCrashed)
		}
		s.logf("automatic restart after crash")
		s.emit(telemetry.KindEngineRestart, "", nil)
		return s.Start(ctx)
	default:
		return s.Start(ctx)
	}
}

// Release returns a session to the pool. The caller must not touch the
// session afterwards. Releasing into a closed pool shuts the session down.
func (p *Pool) Release(s *Session) {
	if s == nil {
		return
	}
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		s.Shutdown()
		return
	}
	select {
	case p.free <- s:
	default:
		// Double release; the session is already pooled.
	}
}

// Shutdown closes the pool and shuts down every free session. Sessions
// still checked out are shut down when released.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	for {
		select {
		case s := <-p.free:
			s.Shutdown()
		default:
			return
		}
	}
}

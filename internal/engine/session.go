// Package engine manages UCI engine subprocesses. A Session owns exactly
// one process and serializes access to it through a small state machine;
// a Pool hands out Sessions for exclusive use. Protocol text lives in
// internal/uci.
package engine

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fianchetto/kibitz/internal/position"
	"github.com/fianchetto/kibitz/internal/telemetry"
	"github.com/fianchetto/kibitz/internal/uci"
)

// Defaults applied by NewSession for zero config fields.
const (
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultShutdownGrace    = 2 * time.Second
	DefaultCrashWindow      = 30 * time.Second
	DefaultParseTolerance   = 16
)

// SessionConfig describes how to launch and supervise one engine process.
type SessionConfig struct {
	// Binary is the engine executable; Args are passed through.
	Binary string
	Args   []string

	// Name tags log lines and telemetry; the pool numbers its sessions.
	Name string

	// UCI options applied during the handshake when positive.
	HashMB  int
	Threads int

	// HandshakeTimeout bounds the uci/isready exchange at startup.
	HandshakeTimeout time.Duration
	// ShutdownGrace is how long quit may take before the process is killed.
	ShutdownGrace time.Duration
	// CrashWindow is the interval within which a second crash stops the
	// automatic restart.
	CrashWindow time.Duration
	// ParseTolerance is the number of malformed protocol records accepted
	// per analysis before the stream is treated as corrupt.
	ParseTolerance int

	Logger    io.Writer
	Telemetry *telemetry.Emitter

	// launch spawns the process; tests inject scripted engines.
	launch launcher
}

// Session drives one engine subprocess through its lifecycle:
// Stopped -> Starting -> Ready <-> Analyzing -> Stopping -> Stopped, with
// Crashed reachable from any live state. All methods are safe for
// concurrent use, but a session serves one analysis at a time.
type Session struct {
	cfg  SessionConfig
	name string

	mu           sync.Mutex
	state        State
	proc         proc
	ident        Ident
	pendingIdent Ident
	helloCh      chan struct{}
	readyCh      chan struct{}
	exitCh       chan struct{}
	active       *Analysis
	stopSent     bool
	anomalies    int
	curLines     int
	rapidCrashes int
	lastCrash    time.Time
	lastFEN      string
}

// NewSession prepares a session in the Stopped state. Nothing is launched
// until Start.
func NewSession(cfg SessionConfig) *Session {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = DefaultShutdownGrace
	}
	if cfg.CrashWindow <= 0 {
		cfg.CrashWindow = DefaultCrashWindow
	}
	if cfg.ParseTolerance <= 0 {
		cfg.ParseTolerance = DefaultParseTolerance
	}
	if cfg.launch == nil {
		cfg.launch = launchExec
	}
	name := cfg.Name
	if name == "" {
		name = "engine"
	}
	return &Session{cfg: cfg, name: name, state: StateStopped}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ident returns the engine identity captured during the last successful
// handshake.
func (s *Session) Ident() Ident {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ident
}

// Start launches the engine and completes the protocol handshake. It is
// valid from Stopped and Crashed and a no-op on a live session. Failures
// wrap ErrEngineUnavailable and leave the session Stopped.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateStarting, StateReady, StateAnalyzing:
		s.mu.Unlock()
		return nil
	case StateStopping:
		s.mu.Unlock()
		return fmt.Errorf("engine: start during shutdown: %w", ErrSessionBusy)
	}
	s.state = StateStarting
	s.pendingIdent = Ident{}
	s.helloCh = make(chan struct{})
	s.readyCh = make(chan struct{})
	s.exitCh = make(chan struct{})
	s.anomalies = 0
	s.curLines = 0
	helloCh, readyCh, exitCh := s.helloCh, s.readyCh, s.exitCh
	s.mu.Unlock()

	s.logf("starting %s", s.cfg.Binary)
	s.emit(telemetry.KindEngineStart, "", nil)

	p, err := s.cfg.launch(s.cfg.Binary, s.cfg.Args)
	if err != nil {
		s.mu.Lock()
		s.state = StateStopped
		s.mu.Unlock()
		return fmt.Errorf("engine: launch %s: %v: %w", s.cfg.Binary, err, ErrEngineUnavailable)
	}

	s.mu.Lock()
	s.proc = p
	s.mu.Unlock()
	go s.readLoop(p, exitCh)

	deadline := time.NewTimer(s.cfg.HandshakeTimeout)
	defer deadline.Stop()

	steps := []struct {
		cmd  string
		ack  <-chan struct{}
		send bool
	}{
		{cmd: uci.CmdUCI, ack: helloCh, send: true},
		{cmd: uci.SetOptionCmd("Hash", s.cfg.HashMB), send: s.cfg.HashMB > 0},
		{cmd: uci.SetOptionCmd("Threads", s.cfg.Threads), send: s.cfg.Threads > 0},
		{cmd: uci.CmdIsReady, ack: readyCh, send: true},
	}
	for _, step := range steps {
		if !step.send {
			continue
		}
		if err := p.Send(step.cmd); err != nil {
			return s.startFailed(p, exitCh, fmt.Sprintf("handshake write %q", step.cmd))
		}
		if step.ack == nil {
			continue
		}
		select {
		case <-step.ack:
		case <-exitCh:
			return s.startFailed(p, exitCh, "process exited during handshake")
		case <-deadline.C:
			return s.startFailed(p, exitCh, "handshake timeout")
		case <-ctx.Done():
			_ = s.startFailed(p, exitCh, "start canceled")
			return fmt.Errorf("engine: start %s: %w", s.cfg.Binary, ctx.Err())
		}
	}

	s.mu.Lock()
	s.state = StateReady
	s.ident = s.pendingIdent
	ident := s.ident
	s.mu.Unlock()

	s.logf("ready: %s", ident.Name)
	s.emit(telemetry.KindEngineReady, "", map[string]string{"name": ident.Name})
	return nil
}

// startFailed kills the half-started process, waits for the reader to
// drain, and normalizes the session back to Stopped.
func (s *Session) startFailed(p proc, exitCh chan struct{}, reason string) error {
	p.Kill()
	<-exitCh
	s.mu.Lock()
	s.state = StateStopped
	s.proc = nil
	s.mu.Unlock()
	s.logf("start failed: %s", reason)
	return fmt.Errorf("engine: %s: %s: %w", s.cfg.Binary, reason, ErrEngineUnavailable)
}

// SubmitPosition sets the engine's working position. Valid only in Ready.
func (s *Session) SubmitPosition(pos position.Position) error {
	if !pos.Valid() {
		return fmt.Errorf("engine: submit position: %w", position.ErrInvalidPosition)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireReady("submit position"); err != nil {
		return err
	}
	if err := s.proc.Send(uci.PositionCmd(pos.FEN())); err != nil {
		return fmt.Errorf("engine: submit position: %v: %w", err, ErrEngineCrashed)
	}
	s.lastFEN = pos.FEN()
	return nil
}

// BeginAnalysis starts a search over the submitted position and returns
// the handle streaming its progress. Valid only in Ready; a second
// analysis on a busy session is refused with ErrSessionBusy, never queued.
func (s *Session) BeginAnalysis(req Request) (*Analysis, error) {
	if req.Depth <= 0 && req.MoveTime <= 0 {
		return nil, fmt.Errorf("engine: begin analysis: request needs a depth or movetime")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireReady("begin analysis"); err != nil {
		return nil, err
	}

	lines := req.Lines
	if lines < 1 {
		lines = 1
	}
	if lines != s.curLines {
		if err := s.proc.Send(uci.SetOptionCmd("MultiPV", lines)); err != nil {
			return nil, fmt.Errorf("engine: set multipv: %v: %w", err, ErrEngineCrashed)
		}
		s.curLines = lines
	}

	cmd := uci.GoDepthCmd(req.Depth)
	if req.MoveTime > 0 {
		cmd = uci.GoMoveTimeCmd(req.MoveTime)
	}

	a := newAnalysis(s)
	s.active = a
	s.anomalies = 0
	s.stopSent = false
	s.state = StateAnalyzing
	if err := s.proc.Send(cmd); err != nil {
		s.active = nil
		return nil, fmt.Errorf("engine: begin analysis: %v: %w", err, ErrEngineCrashed)
	}
	return a, nil
}

// Stop asks a running analysis to finalize early. The engine answers with
// a terminal best-move record, so the handle completes normally with
// whatever was computed. In every other state Stop is a no-op. Idempotent.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAnalyzing || s.proc == nil || s.stopSent {
		return
	}
	s.stopSent = true
	if err := s.proc.Send(uci.CmdStop); err != nil {
		s.logf("stop write failed: %v", err)
	}
}

// Shutdown quits the engine gracefully, escalating to a kill after the
// grace period. The session always ends Stopped. Safe to call in any
// state, any number of times.
func (s *Session) Shutdown() {
	s.mu.Lock()
	if s.proc == nil {
		s.state = StateStopped
		s.mu.Unlock()
		return
	}
	p := s.proc
	exitCh := s.exitCh
	s.state = StateStopping
	s.mu.Unlock()

	_ = p.Send(uci.CmdQuit)
	select {
	case <-exitCh:
	case <-time.After(s.cfg.ShutdownGrace):
		s.logf("quit grace expired, killing")
		p.Kill()
		<-exitCh
	}
	s.emit(telemetry.KindEngineStop, "", nil)
}

// requireReady holds s.mu.
func (s *Session) requireReady(op string) error {
	switch s.state {
	case StateReady:
		return nil
	case StateAnalyzing, StateStarting, StateStopping:
		return fmt.Errorf("engine: %s while %s: %w", op, s.state, ErrSessionBusy)
	case StateCrashed:
		return fmt.Errorf("engine: %s: %w", op, ErrEngineCrashed)
	default:
		return fmt.Errorf("engine: %s: %w", op, ErrSessionStopped)
	}
}

package engine

import (
	"bufio"
	"fmt"
	"time"

	"github.com/fianchetto/kibitz/internal/position"
	"github.com/fianchetto/kibitz/internal/telemetry"
	"github.com/fianchetto/kibitz/internal/uci"
)

// readLoop is the sole consumer of engine output. It parses each line,
// routes events into the session, and runs crash handling when the stream
// ends.
func (s *Session) readLoop(p proc, exitCh chan struct{}) {
	scanner := bufio.NewScanner(p.Reader())
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		ev, err := uci.ParseEvent(line)
		if err != nil {
			if s.noteAnomaly(err) {
				s.logf("anomaly tolerance exceeded, treating stream as corrupt")
				p.Kill()
			}
			continue
		}
		s.dispatch(ev)
	}
	s.exited(p, scanner.Err(), exitCh)
}

// noteAnomaly counts a malformed record and reports whether tolerance is
// now exceeded.
func (s *Session) noteAnomaly(err error) bool {
	s.mu.Lock()
	s.anomalies++
	n := s.anomalies
	s.mu.Unlock()
	s.logf("protocol anomaly %d/%d: %v", n, s.cfg.ParseTolerance, err)
	return n > s.cfg.ParseTolerance
}

func (s *Session) dispatch(ev uci.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e := ev.(type) {
	case uci.IdentEvent:
		switch e.Field {
		case "name":
			s.pendingIdent.Name = e.Value
		case "author":
			s.pendingIdent.Author = e.Value
		}
	case uci.UCIOkEvent:
		if s.helloCh != nil {
			close(s.helloCh)
			s.helloCh = nil
		}
	case uci.ReadyOkEvent:
		if s.readyCh != nil {
			close(s.readyCh)
			s.readyCh = nil
		}
	case uci.InfoEvent:
		if s.active == nil || !e.HasScore {
			return
		}
		line := e.MultiPV
		if line < 1 {
			line = 1
		}
		s.active.deliver(Record{
			Line:    line,
			Depth:   e.Depth,
			Score:   e.Score,
			PV:      e.PV,
			Nodes:   e.Nodes,
			Elapsed: time.Duration(e.TimeMS) * time.Millisecond,
		})
	case uci.BestMoveEvent:
		if s.active == nil {
			return
		}
		a := s.active
		s.active = nil
		s.stopSent = false
		s.rapidCrashes = 0
		if s.state == StateAnalyzing {
			s.state = StateReady
		}
		a.finish(e.Move, nil)
	}
}

// exited runs once per process, after its output stream ends. It decides
// Crashed versus Stopped from the state the stream ended in, fails any
// in-flight handle, and wakes everyone waiting on the process.
func (s *Session) exited(p proc, scanErr error, exitCh chan struct{}) {
	<-p.Done()

	s.mu.Lock()
	prior := s.state
	a := s.active
	s.active = nil
	s.proc = nil
	s.stopSent = false
	switch prior {
	case StateStopping, StateStopped, StateStarting:
		s.state = StateStopped
	default:
		s.state = StateCrashed
		now := time.Now()
		if now.Sub(s.lastCrash) <= s.cfg.CrashWindow {
			s.rapidCrashes++
		} else {
			s.rapidCrashes = 1
		}
		s.lastCrash = now
	}
	state := s.state
	fen := s.lastFEN
	close(exitCh)
	s.mu.Unlock()

	if a != nil {
		if state == StateStopped {
			a.finish(position.NoMove, fmt.Errorf("engine: session shut down mid-analysis: %w", ErrSessionStopped))
		} else {
			a.finish(position.NoMove, fmt.Errorf("engine: process exited mid-analysis: %w", ErrEngineCrashed))
		}
	}
	if state == StateCrashed {
		s.logf("crashed: scan=%v exit=%v", scanErr, p.Err())
		s.emit(telemetry.KindEngineCrash, fen, map[string]string{"exit": errString(p.Err())})
	}
}

// restartable reports whether the automatic restart is still available
// after a crash. A second crash within the crash window exhausts it until
// either an analysis completes or the window passes.
func (s *Session) restartable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCrashed {
		return false
	}
	return s.rapidCrashes <= 1 || time.Since(s.lastCrash) > s.cfg.CrashWindow
}

func (s *Session) logf(format string, args ...any) {
	if s.cfg.Logger == nil {
		return
	}
	fmt.Fprintf(s.cfg.Logger, "[%s] %s\n", s.name, fmt.Sprintf(format, args...))
}

func (s *Session) emit(kind, fen string, data any) {
	_ = s.cfg.Telemetry.Emit(telemetry.Event{
		Timestamp: time.Now(),
		Kind:      kind,
		Session:   s.name,
		FEN:       fen,
		Data:      data,
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

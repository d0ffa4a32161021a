package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// scriptedProc is an in-memory engine process. Commands sent to it are
// handed to a handler on a separate goroutine, which answers by writing
// protocol lines to the pipe the session scans.
type scriptedProc struct {
	pr      *io.PipeReader
	pw      *io.PipeWriter
	handler func(p *scriptedProc, cmd string)

	wmu sync.Mutex

	mu   sync.Mutex
	cmds []string

	exitOnce sync.Once
	exitErr  error
	done     chan struct{}
}

func newScriptedProc(handler func(*scriptedProc, string)) *scriptedProc {
	pr, pw := io.Pipe()
	return &scriptedProc{pr: pr, pw: pw, handler: handler, done: make(chan struct{})}
}

func (p *scriptedProc) Send(line string) error {
	select {
	case <-p.done:
		return fmt.Errorf("write to exited process")
	default:
	}
	p.mu.Lock()
	p.cmds = append(p.cmds, line)
	p.mu.Unlock()
	if p.handler != nil {
		go p.handler(p, line)
	}
	return nil
}

func (p *scriptedProc) Reader() io.Reader     { return p.pr }
func (p *scriptedProc) Kill()                 { p.exit(errors.New("killed")) }
func (p *scriptedProc) Done() <-chan struct{} { return p.done }

func (p *scriptedProc) Err() error {
	<-p.done
	return p.exitErr
}

// exit ends the process: the session's scanner sees EOF.
func (p *scriptedProc) exit(err error) {
	p.exitOnce.Do(func() {
		p.exitErr = err
		p.pw.Close()
		close(p.done)
	})
}

// reply writes protocol lines in order, atomically with respect to other
// replies.
func (p *scriptedProc) reply(lines ...string) {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	for _, l := range lines {
		if _, err := p.pw.Write([]byte(l + "\n")); err != nil {
			return
		}
	}
}

func (p *scriptedProc) commands() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.cmds))
	copy(out, p.cmds)
	return out
}

// fakeLauncher builds scriptedProcs and remembers them so tests can assert
// on commands and force crashes.
type fakeLauncher struct {
	mu      sync.Mutex
	handler func(p *scriptedProc, cmd string)
	procs   []*scriptedProc
}

func (f *fakeLauncher) launch(string, []string) (proc, error) {
	p := newScriptedProc(f.handler)
	f.mu.Lock()
	f.procs = append(f.procs, p)
	f.mu.Unlock()
	return p, nil
}

func (f *fakeLauncher) last() *scriptedProc {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.procs) == 0 {
		return nil
	}
	return f.procs[len(f.procs)-1]
}

func (f *fakeLauncher) launches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.procs)
}

// handshake answers the startup exchange like a well-behaved engine.
func handshake(p *scriptedProc, cmd string) bool {
	switch cmd {
	case "uci":
		p.reply("id name FakeFish 1.0", "id author kibitz tests", "uciok")
		return true
	case "isready":
		p.reply("readyok")
		return true
	case "quit":
		p.exit(nil)
		return true
	}
	return false
}

// wellBehaved scripts a complete engine: handshake, then three candidate
// lines and a best move for any go command, and an early best move on stop.
func wellBehaved(p *scriptedProc, cmd string) {
	if handshake(p, cmd) {
		return
	}
	switch {
	case strings.HasPrefix(cmd, "go"):
		p.reply(
			"info depth 9 multipv 1 score cp 31 nodes 900 time 8 pv e2e4 e7e5",
			"info depth 10 multipv 1 score cp 35 nodes 1000 time 10 pv e2e4 e7e5 g1f3",
			"info depth 10 multipv 2 score cp 30 nodes 1000 time 10 pv d2d4 d7d5",
			"info depth 10 multipv 3 score cp 22 nodes 1000 time 10 pv c2c4 e7e5",
			"bestmove e2e4 ponder e7e5",
		)
	case cmd == "stop":
		p.reply("bestmove e2e4")
	}
}

func testConfig(f *fakeLauncher) SessionConfig {
	return SessionConfig{
		Binary:           "fakefish",
		HandshakeTimeout: 2 * time.Second,
		ShutdownGrace:    100 * time.Millisecond,
		launch:           f.launch,
	}
}

func startReady(t *testing.T, f *fakeLauncher) *Session {
	t.Helper()
	s := NewSession(testConfig(f))
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(s.Shutdown)
	return s
}

func waitDone(t *testing.T, a *Analysis) {
	t.Helper()
	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("analysis did not terminate")
	}
}

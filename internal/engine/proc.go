package engine

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// proc is a live engine process: a line-oriented write side, the raw output
// stream, and termination controls. The exec-backed implementation is the
// only one outside tests.
type proc interface {
	// Send writes one command line and flushes it.
	Send(line string) error
	// Reader is the engine's stdout. The session owns the single scanner
	// over it.
	Reader() io.Reader
	// Kill terminates the process group immediately. Idempotent.
	Kill()
	// Done is closed once the process has been reaped.
	Done() <-chan struct{}
	// Err reports the exit error after Done is closed.
	Err() error
}

// launcher spawns an engine process. Sessions default to launchExec; tests
// inject scripted fakes.
type launcher func(binary string, args []string) (proc, error)

type execProc struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser

	writeMu sync.Mutex
	stdin   io.WriteCloser
	w       *bufio.Writer

	killOnce sync.Once
	done     chan struct{}
	exitErr  error
}

// launchExec starts the engine binary in its own session so terminal
// signals aimed at kibitz never reach the engine directly.
func launchExec(binary string, args []string) (proc, error) {
	cmd := exec.Command(binary, args...)
	cmd.SysProcAttr = sessionAttr()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("engine: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("engine: stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("engine: start %s: %w", binary, err)
	}

	p := &execProc{
		cmd:    cmd,
		stdin:  stdin,
		w:      bufio.NewWriter(stdin),
		stdout: stdout,
		done:   make(chan struct{}),
	}
	go func() {
		p.exitErr = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

func (p *execProc) Send(line string) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if _, err := p.w.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("engine: write %q: %w", line, err)
	}
	if err := p.w.Flush(); err != nil {
		return fmt.Errorf("engine: flush %q: %w", line, err)
	}
	return nil
}

func (p *execProc) Reader() io.Reader { return p.stdout }

func (p *execProc) Kill() {
	p.killOnce.Do(func() {
		killGroup(p.cmd)
	})
}

func (p *execProc) Done() <-chan struct{} { return p.done }

func (p *execProc) Err() error {
	<-p.done
	return p.exitErr
}

package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fianchetto/kibitz/internal/position"
)

func TestAnalysis_StreamsToTermination(t *testing.T) {
	t.Parallel()

	f := &fakeLauncher{handler: wellBehaved}
	s := startReady(t, f)

	if err := s.SubmitPosition(position.Start()); err != nil {
		t.Fatalf("SubmitPosition: %v", err)
	}
	a, err := s.BeginAnalysis(Request{Depth: 10, Lines: 3})
	if err != nil {
		t.Fatalf("BeginAnalysis: %v", err)
	}

	var recs []Record
	for rec := range a.Records() {
		recs = append(recs, rec)
	}
	if len(recs) != 4 {
		t.Fatalf("got %d records, want 4", len(recs))
	}
	if recs[1].Line != 1 || recs[1].Depth != 10 || recs[1].Score.CP != 35 {
		t.Errorf("record[1] = %+v", recs[1])
	}
	if len(recs[1].PV) != 3 || recs[1].PV[0] != "e2e4" {
		t.Errorf("record[1].PV = %v", recs[1].PV)
	}

	best, err := a.BestMove()
	if err != nil {
		t.Fatalf("BestMove: %v", err)
	}
	if best != "e2e4" {
		t.Errorf("BestMove = %q, want e2e4", best)
	}
	if got := s.State(); got != StateReady {
		t.Errorf("State() after analysis = %v, want ready", got)
	}

	cmds := strings.Join(f.last().commands(), "\n")
	if !strings.Contains(cmds, "position startpos") {
		t.Errorf("position not submitted:\n%s", cmds)
	}
	if !strings.Contains(cmds, "setoption name MultiPV value 3") {
		t.Errorf("MultiPV not set:\n%s", cmds)
	}
	if !strings.Contains(cmds, "go depth 10") {
		t.Errorf("go not sent:\n%s", cmds)
	}
}

func TestBeginAnalysis_BusyRefused(t *testing.T) {
	t.Parallel()

	// Engine that searches until told to stop.
	f := &fakeLauncher{handler: func(p *scriptedProc, cmd string) {
		if handshake(p, cmd) {
			return
		}
		switch {
		case strings.HasPrefix(cmd, "go"):
			p.reply("info depth 5 multipv 1 score cp 12 pv e2e4")
		case cmd == "stop":
			p.reply("bestmove e2e4")
		}
	}}
	s := startReady(t, f)

	if err := s.SubmitPosition(position.Start()); err != nil {
		t.Fatalf("SubmitPosition: %v", err)
	}
	a, err := s.BeginAnalysis(Request{Depth: 30})
	if err != nil {
		t.Fatalf("BeginAnalysis: %v", err)
	}

	if _, err := s.BeginAnalysis(Request{Depth: 10}); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("concurrent BeginAnalysis error = %v, want ErrSessionBusy", err)
	}
	if err := s.SubmitPosition(position.Start()); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("SubmitPosition while analyzing error = %v, want ErrSessionBusy", err)
	}

	a.Stop()
	waitDone(t, a)
}

func TestStop_FinalizesEarly(t *testing.T) {
	t.Parallel()

	f := &fakeLauncher{handler: func(p *scriptedProc, cmd string) {
		if handshake(p, cmd) {
			return
		}
		switch {
		case strings.HasPrefix(cmd, "go"):
			p.reply("info depth 7 multipv 1 score cp 18 nodes 500 time 5 pv d2d4")
		case cmd == "stop":
			p.reply("bestmove d2d4")
		}
	}}
	s := startReady(t, f)

	if err := s.SubmitPosition(position.Start()); err != nil {
		t.Fatalf("SubmitPosition: %v", err)
	}
	a, err := s.BeginAnalysis(Request{Depth: 99})
	if err != nil {
		t.Fatalf("BeginAnalysis: %v", err)
	}

	// Wait for the first record so stop lands mid-search.
	select {
	case <-a.Records():
	case <-time.After(2 * time.Second):
		t.Fatal("no progress record")
	}
	a.Stop()
	waitDone(t, a)

	best, err := a.BestMove()
	if err != nil {
		t.Fatalf("BestMove: %v", err)
	}
	if best != "d2d4" {
		t.Errorf("BestMove = %q, want d2d4", best)
	}
	if got := s.State(); got != StateReady {
		t.Errorf("State() = %v, want ready", got)
	}
}

func TestCrash_MidAnalysis(t *testing.T) {
	t.Parallel()

	f := &fakeLauncher{handler: func(p *scriptedProc, cmd string) {
		if handshake(p, cmd) {
			return
		}
		if strings.HasPrefix(cmd, "go") {
			p.reply("info depth 3 multipv 1 score cp 10 pv e2e4")
			p.exit(errors.New("segfault"))
		}
	}}
	s := startReady(t, f)

	if err := s.SubmitPosition(position.Start()); err != nil {
		t.Fatalf("SubmitPosition: %v", err)
	}
	a, err := s.BeginAnalysis(Request{Depth: 20})
	if err != nil {
		t.Fatalf("BeginAnalysis: %v", err)
	}
	waitDone(t, a)

	if _, err := a.BestMove(); !errors.Is(err, ErrEngineCrashed) {
		t.Errorf("BestMove error = %v, want ErrEngineCrashed", err)
	}
	if got := s.State(); got != StateCrashed {
		t.Errorf("State() = %v, want crashed", got)
	}

	// Commands on a crashed session are refused until Start.
	if err := s.SubmitPosition(position.Start()); !errors.Is(err, ErrEngineCrashed) {
		t.Errorf("SubmitPosition on crashed session = %v, want ErrEngineCrashed", err)
	}

	// A supervising caller can recover with Start.
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("recovery Start: %v", err)
	}
	if got := s.State(); got != StateReady {
		t.Errorf("State() after recovery = %v, want ready", got)
	}
}

func TestAnomalyTolerance_EscalatesToCrash(t *testing.T) {
	t.Parallel()

	f := &fakeLauncher{handler: func(p *scriptedProc, cmd string) {
		if handshake(p, cmd) {
			return
		}
		if strings.HasPrefix(cmd, "go") {
			p.reply(
				"info depth x score cp zz",
				"info depth x score cp zz",
				"info depth x score cp zz",
				"info depth x score cp zz",
			)
		}
	}}
	cfg := testConfig(f)
	cfg.ParseTolerance = 3
	s := NewSession(cfg)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Shutdown()

	if err := s.SubmitPosition(position.Start()); err != nil {
		t.Fatalf("SubmitPosition: %v", err)
	}
	a, err := s.BeginAnalysis(Request{Depth: 10})
	if err != nil {
		t.Fatalf("BeginAnalysis: %v", err)
	}
	waitDone(t, a)

	if _, err := a.BestMove(); !errors.Is(err, ErrEngineCrashed) {
		t.Errorf("BestMove error = %v, want ErrEngineCrashed", err)
	}
	if got := s.State(); got != StateCrashed {
		t.Errorf("State() = %v, want crashed", got)
	}
}

func TestAnomalies_UnknownLinesIgnored(t *testing.T) {
	t.Parallel()

	f := &fakeLauncher{handler: func(p *scriptedProc, cmd string) {
		if handshake(p, cmd) {
			return
		}
		if strings.HasPrefix(cmd, "go") {
			p.reply(
				"chatter from a future protocol revision",
				"info string verbose remark",
				"info depth 4 multipv 1 score cp 9 pv e2e4",
				"more chatter",
				"bestmove e2e4",
			)
		}
	}}
	cfg := testConfig(f)
	cfg.ParseTolerance = 1
	s := NewSession(cfg)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Shutdown()

	if err := s.SubmitPosition(position.Start()); err != nil {
		t.Fatalf("SubmitPosition: %v", err)
	}
	a, err := s.BeginAnalysis(Request{Depth: 4})
	if err != nil {
		t.Fatalf("BeginAnalysis: %v", err)
	}

	var recs []Record
	for rec := range a.Records() {
		recs = append(recs, rec)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d scored records, want 1", len(recs))
	}
	if _, err := a.BestMove(); err != nil {
		t.Errorf("BestMove: %v", err)
	}
}

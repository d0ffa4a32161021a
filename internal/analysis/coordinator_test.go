package analysis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fianchetto/kibitz/internal/engine"
	"github.com/fianchetto/kibitz/internal/position"
)

// The test engines are tiny shell scripts speaking just enough of the
// protocol. They append every search command to the file passed as their
// first argument so tests can count real engine work.

const balancedScript = `#!/bin/sh
count="$1"
while read -r line; do
  case "$line" in
    uci)
      echo "id name ScriptFish 1.0"
      echo "id author kibitz"
      echo "uciok"
      ;;
    isready) echo "readyok" ;;
    go*)
      if [ -n "$count" ]; then echo "$line" >> "$count"; fi
      echo "info depth 9 multipv 1 score cp 28 nodes 3000 time 9 pv e2e4 e7e5"
      echo "info depth 10 multipv 1 score cp 31 nodes 4200 time 12 pv e2e4 e7e5 g1f3"
      echo "info depth 10 multipv 2 score cp 24 nodes 4200 time 12 pv d2d4 g8f6"
      echo "info depth 10 multipv 3 score cp 18 nodes 4200 time 12 pv c2c4 e7e5"
      echo "bestmove e2e4 ponder e7e5"
      ;;
    quit) exit 0 ;;
  esac
done
`

const mateScript = `#!/bin/sh
count="$1"
while read -r line; do
  case "$line" in
    uci) echo "id name ScriptFish 1.0"; echo "uciok" ;;
    isready) echo "readyok" ;;
    go*)
      if [ -n "$count" ]; then echo "$line" >> "$count"; fi
      echo "info depth 6 multipv 1 score mate 1 pv a1a8"
      echo "bestmove a1a8"
      ;;
    quit) exit 0 ;;
  esac
done
`

// endlessScript reports one shallow line and then searches "forever":
// it only produces its terminal record when told to stop.
const endlessScript = `#!/bin/sh
count="$1"
while read -r line; do
  case "$line" in
    uci) echo "id name ScriptFish 1.0"; echo "uciok" ;;
    isready) echo "readyok" ;;
    go*)
      if [ -n "$count" ]; then echo "$line" >> "$count"; fi
      echo "info depth 3 multipv 1 score cp 14 nodes 500 time 4 pv e2e4 e7e5"
      ;;
    stop) echo "bestmove e2e4" ;;
    quit) exit 0 ;;
  esac
done
`

// silentScript never answers a search, not even on stop.
const silentScript = `#!/bin/sh
count="$1"
while read -r line; do
  case "$line" in
    uci) echo "id name ScriptFish 1.0"; echo "uciok" ;;
    isready) echo "readyok" ;;
    go*) if [ -n "$count" ]; then echo "$line" >> "$count"; fi ;;
    quit) exit 0 ;;
  esac
done
`

func newCoordinator(t *testing.T, script string, cfg Config) (*Coordinator, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test engines are shell scripts")
	}
	dir := t.TempDir()
	bin := filepath.Join(dir, "scriptfish")
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatalf("write engine script: %v", err)
	}
	count := filepath.Join(dir, "searches")
	cfg.Pool = engine.NewPool(engine.SessionConfig{Binary: bin, Args: []string{count}}, 1)
	co := NewCoordinator(cfg)
	t.Cleanup(co.Shutdown)
	return co, count
}

func searches(t *testing.T, count string) int {
	t.Helper()
	b, err := os.ReadFile(count)
	if errors.Is(err, os.ErrNotExist) {
		return 0
	}
	if err != nil {
		t.Fatalf("read search count: %v", err)
	}
	return strings.Count(string(b), "\n")
}

func TestAnalyze_OpeningScenario(t *testing.T) {
	t.Parallel()

	co, count := newCoordinator(t, balancedScript, Config{})
	res, err := co.Analyze(context.Background(), position.Start(), Params{Depth: 10, Lines: 3})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if len(res.Candidates) != 3 {
		t.Fatalf("got %d candidates, want 3", len(res.Candidates))
	}
	best := res.Candidates[0]
	if best.Move != "e2e4" || best.SAN != "e4" || best.Depth != 10 {
		t.Errorf("best candidate = %+v", best)
	}
	for i, c := range res.Candidates {
		if c.Score.IsMate || c.Score.CP > 50 || c.Score.CP < -50 {
			t.Errorf("candidate %d score %v outside the balanced range", i, c.Score)
		}
		if i > 0 && res.Candidates[i-1].Score.Cmp(c.Score) < 0 {
			t.Errorf("candidates out of order at %d: %v before %v", i, res.Candidates[i-1].Score, c.Score)
		}
	}
	if res.BestMove != "e2e4" {
		t.Errorf("BestMove = %q, want e2e4", res.BestMove)
	}
	if res.Partial {
		t.Error("Partial = true for a completed search")
	}
	if res.Engine.Name != "ScriptFish 1.0" {
		t.Errorf("Engine.Name = %q", res.Engine.Name)
	}
	if got := searches(t, count); got != 1 {
		t.Errorf("engine searched %d times, want 1", got)
	}
}

func TestAnalyze_WarmCacheReproducible(t *testing.T) {
	t.Parallel()

	co, count := newCoordinator(t, balancedScript, Config{CacheCapacity: 8})
	params := Params{Depth: 10, Lines: 3}

	first, err := co.Analyze(context.Background(), position.Start(), params)
	if err != nil {
		t.Fatalf("first Analyze: %v", err)
	}
	second, err := co.Analyze(context.Background(), position.Start(), params)
	if err != nil {
		t.Fatalf("second Analyze: %v", err)
	}

	if !reflect.DeepEqual(first.Candidates, second.Candidates) {
		t.Errorf("warm result differs:\nfirst  %+v\nsecond %+v", first.Candidates, second.Candidates)
	}
	if got := searches(t, count); got != 1 {
		t.Errorf("engine searched %d times, want 1", got)
	}

	// Different parameters are a different key.
	if _, err := co.Analyze(context.Background(), position.Start(), Params{Depth: 10, Lines: 1}); err != nil {
		t.Fatalf("third Analyze: %v", err)
	}
	if got := searches(t, count); got != 2 {
		t.Errorf("engine searched %d times after new params, want 2", got)
	}
}

func TestAnalyze_TruncatesToRequestedWidth(t *testing.T) {
	t.Parallel()

	// The script reports three lines regardless of the requested width.
	co, _ := newCoordinator(t, balancedScript, Config{})
	res, err := co.Analyze(context.Background(), position.Start(), Params{Depth: 10, Lines: 1})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(res.Candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(res.Candidates))
	}
	if res.Candidates[0].Move != "e2e4" {
		t.Errorf("kept candidate = %q, want the best line", res.Candidates[0].Move)
	}
}

func TestAnalyze_MateInOne(t *testing.T) {
	t.Parallel()

	co, _ := newCoordinator(t, mateScript, Config{})
	pos, err := position.Parse("6k1/5ppp/8/8/8/8/5PPP/R5K1 w - - 0 1")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	res, err := co.Analyze(context.Background(), pos, Params{Depth: 6, Lines: 1})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if len(res.Candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(res.Candidates))
	}
	best := res.Candidates[0]
	if !best.Score.IsMate || best.Score.Mate != 1 {
		t.Errorf("best score = %+v, want mate in 1", best.Score)
	}
	if best.SAN != "Ra8#" {
		t.Errorf("SAN = %q, want Ra8#", best.SAN)
	}
	if got := Rank("a1a8", res); got.Index != 0 || got.CentipawnLoss != 0 {
		t.Errorf("Rank(a1a8) = %+v, want index 0", got)
	}
}

func TestAnalyze_TerminalPositionShortCircuits(t *testing.T) {
	t.Parallel()

	co, count := newCoordinator(t, balancedScript, Config{})

	mated, err := position.Parse("6rk/5Npp/8/8/8/8/8/6K1 b - - 0 1")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	res, err := co.Analyze(context.Background(), mated, Params{Depth: 10})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Reason != "checkmate" || len(res.Candidates) != 0 {
		t.Errorf("result = %+v, want empty with checkmate reason", res)
	}

	stale, err := position.Parse("7k/5Q2/6K1/8/8/8/8/8 b - - 0 1")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	res, err = co.Analyze(context.Background(), stale, Params{Depth: 10})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Reason != "stalemate" {
		t.Errorf("Reason = %q, want stalemate", res.Reason)
	}

	if got := searches(t, count); got != 0 {
		t.Errorf("engine searched %d times for terminal positions, want 0", got)
	}
}

func TestAnalyze_BudgetReturnsPartial(t *testing.T) {
	t.Parallel()

	co, count := newCoordinator(t, endlessScript, Config{Budget: 150 * time.Millisecond})
	res, err := co.Analyze(context.Background(), position.Start(), Params{Depth: 30, Lines: 1})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if !res.Partial {
		t.Error("Partial = false for an interrupted search")
	}
	if len(res.Candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(res.Candidates))
	}
	if res.Candidates[0].Depth != 3 {
		t.Errorf("reached depth = %d, want the shallow 3", res.Candidates[0].Depth)
	}

	// Partial results are never stored: the same request hits the
	// engine again.
	if _, err := co.Analyze(context.Background(), position.Start(), Params{Depth: 30, Lines: 1}); err != nil {
		t.Fatalf("second Analyze: %v", err)
	}
	if got := searches(t, count); got != 2 {
		t.Errorf("engine searched %d times, want 2 (partials bypass the cache)", got)
	}
}

func TestAnalyze_TimeoutWithoutTerminalRecord(t *testing.T) {
	t.Parallel()

	cfg := Config{Budget: 80 * time.Millisecond, StopGrace: 80 * time.Millisecond}
	co, count := newCoordinator(t, silentScript, cfg)

	_, err := co.Analyze(context.Background(), position.Start(), Params{Depth: 10})
	if !errors.Is(err, ErrAnalysisTimeout) {
		t.Fatalf("Analyze error = %v, want ErrAnalysisTimeout", err)
	}

	// No cache entry was written: the retry reaches the engine again.
	if _, err := co.Analyze(context.Background(), position.Start(), Params{Depth: 10}); !errors.Is(err, ErrAnalysisTimeout) {
		t.Fatalf("second Analyze error = %v, want ErrAnalysisTimeout", err)
	}
	if got := searches(t, count); got != 2 {
		t.Errorf("engine searched %d times, want 2 (timeouts are not cached)", got)
	}
}

func TestAnalyze_SingleFlight(t *testing.T) {
	t.Parallel()

	const callers = 4
	co, count := newCoordinator(t, balancedScript, Config{CacheCapacity: 8})
	params := Params{Depth: 10, Lines: 3}

	results := make([]*Result, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = co.Analyze(context.Background(), position.Start(), params)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if !reflect.DeepEqual(results[i].Candidates, results[0].Candidates) {
			t.Errorf("caller %d got a different candidate set", i)
		}
	}
	if got := searches(t, count); got != 1 {
		t.Errorf("engine searched %d times for %d callers, want 1", got, callers)
	}
}

func TestAnalyze_InvalidPosition(t *testing.T) {
	t.Parallel()

	co, count := newCoordinator(t, balancedScript, Config{})
	_, err := co.Analyze(context.Background(), position.Position{}, Params{Depth: 10})
	if !errors.Is(err, position.ErrInvalidPosition) {
		t.Fatalf("Analyze error = %v, want ErrInvalidPosition", err)
	}
	if got := searches(t, count); got != 0 {
		t.Errorf("engine contacted for an invalid position")
	}
}

func TestAnalyze_CancelledCallerKeepsPartial(t *testing.T) {
	t.Parallel()

	co, _ := newCoordinator(t, endlessScript, Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	res, err := co.Analyze(ctx, position.Start(), Params{Depth: 30, Lines: 1})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !res.Partial {
		t.Error("Partial = false, want the early-terminated result marked partial")
	}
	if len(res.Candidates) != 1 {
		t.Errorf("got %d candidates, want the shallow line", len(res.Candidates))
	}
}

package analysis

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fianchetto/kibitz/internal/cache"
	"github.com/fianchetto/kibitz/internal/engine"
	"github.com/fianchetto/kibitz/internal/position"
	"github.com/fianchetto/kibitz/internal/telemetry"
)

// Defaults applied by NewCoordinator for zero config fields.
const (
	DefaultDepth         = 12
	DefaultLines         = 3
	DefaultBudget        = 60 * time.Second
	DefaultStopGrace     = 2 * time.Second
	DefaultCacheCapacity = 256
)

// Config wires a Coordinator to its session pool and sets request
// defaults.
type Config struct {
	Pool *engine.Pool

	// DefaultDepth and DefaultLines fill requests that leave Params
	// fields zero.
	DefaultDepth int
	DefaultLines int

	// Budget is the wall-clock ceiling per analysis. When it expires the
	// search is stopped and whatever it reached is returned as partial.
	Budget time.Duration
	// StopGrace bounds the wait for the engine's terminal record after a
	// stop. An engine silent past it makes the request fail with
	// ErrAnalysisTimeout.
	StopGrace time.Duration

	// CacheCapacity bounds the result cache; zero disables caching.
	CacheCapacity int

	Logger    io.Writer
	Telemetry *telemetry.Emitter
}

// Coordinator serves analyze requests against a pool of engine sessions,
// memoizing completed results. Safe for concurrent use.
type Coordinator struct {
	cfg     Config
	pool    *engine.Pool
	results *cache.Cache[*Result]
}

// NewCoordinator builds a coordinator over cfg.Pool.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.DefaultDepth <= 0 {
		cfg.DefaultDepth = DefaultDepth
	}
	if cfg.DefaultLines <= 0 {
		cfg.DefaultLines = DefaultLines
	}
	if cfg.Budget <= 0 {
		cfg.Budget = DefaultBudget
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = DefaultStopGrace
	}
	c := &Coordinator{cfg: cfg, pool: cfg.Pool}
	c.results = cache.New[*Result](cfg.CacheCapacity, c.evicted)
	return c
}

// Analyze returns the engine's candidate moves for pos under params,
// served from the cache when warm. Concurrent calls for the same position
// and params share one engine computation. Terminal positions return an
// empty result carrying the reason, without contacting the engine.
func (c *Coordinator) Analyze(ctx context.Context, pos position.Position, params Params) (*Result, error) {
	if !pos.Valid() {
		return nil, fmt.Errorf("analysis: %w", position.ErrInvalidPosition)
	}
	params = c.fill(params)
	if reason, over := pos.Terminal(); over {
		return &Result{Position: pos, Params: params, Reason: reason}, nil
	}

	key := params.key(pos.FEN())
	res, hit, err := c.results.Do(ctx, key, func(ctx context.Context) (*Result, bool, error) {
		return c.compute(ctx, pos, params)
	})
	if err != nil {
		return nil, err
	}
	if hit {
		c.emit(telemetry.KindCacheHit, pos.FEN(), nil)
	}
	return res, nil
}

// Shutdown tears down every engine session. In-flight analyses fail.
func (c *Coordinator) Shutdown() {
	c.pool.Shutdown()
}

func (c *Coordinator) fill(p Params) Params {
	if p.Depth <= 0 && p.MoveTime <= 0 {
		p.Depth = c.cfg.DefaultDepth
	}
	if p.Lines <= 0 {
		p.Lines = c.cfg.DefaultLines
	}
	return p
}

// compute runs one engine search. It reports whether the result is
// complete and therefore cacheable; interrupted searches are handed to
// callers but never stored.
func (c *Coordinator) compute(ctx context.Context, pos position.Position, params Params) (*Result, bool, error) {
	start := time.Now()
	c.emit(telemetry.KindAnalysisStart, pos.FEN(), map[string]any{
		"depth": params.Depth, "movetime_ms": int64(params.MoveTime / time.Millisecond), "lines": params.Lines,
	})

	s, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("analysis: acquire session: %w", err)
	}
	defer c.pool.Release(s)

	if err := s.SubmitPosition(pos); err != nil {
		return nil, false, err
	}
	a, err := s.BeginAnalysis(engine.Request{
		Depth:    params.Depth,
		MoveTime: params.MoveTime,
		Lines:    params.Lines,
	})
	if err != nil {
		return nil, false, err
	}

	// Latest record per candidate line: engines re-report each line as
	// the search deepens, only the last snapshot counts.
	latest := make(map[int]engine.Record)
	timer := time.NewTimer(c.cfg.Budget)
	defer timer.Stop()

	recs := a.Records()
	ctxDone := ctx.Done()
	stopped := false
	expired := false
	for recs != nil {
		select {
		case rec, ok := <-recs:
			if !ok {
				recs = nil
				continue
			}
			latest[rec.Line] = rec
		case <-timer.C:
			if !stopped {
				stopped = true
				c.logf("budget expired for %s, stopping", pos.FEN())
				a.Stop()
				timer.Reset(c.cfg.StopGrace)
				continue
			}
			expired = true
			recs = nil
		case <-ctxDone:
			ctxDone = nil
			if !stopped {
				stopped = true
				a.Stop()
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(c.cfg.StopGrace)
			}
		}
	}

	if expired {
		// The engine ignored stop. The session is unusable until
		// relaunched; the pool restarts it on its next checkout.
		s.Shutdown()
		c.emit(telemetry.KindAnalysisTimeout, pos.FEN(), nil)
		return nil, false, fmt.Errorf("analysis: %s: %w", params.key(pos.FEN()), ErrAnalysisTimeout)
	}

	best, err := a.BestMove()
	if err != nil {
		return nil, false, err
	}

	res := &Result{
		Position:   pos,
		Params:     params,
		Candidates: assemble(pos, latest, params.Lines),
		BestMove:   best,
		Partial:    stopped,
		Engine:     s.Ident(),
		Elapsed:    time.Since(start),
	}
	c.emit(telemetry.KindAnalysisDone, pos.FEN(), map[string]any{
		"elapsed_ms": res.Elapsed.Milliseconds(), "candidates": len(res.Candidates), "partial": res.Partial,
	})
	return res, !res.Partial, nil
}

// assemble orders the final snapshots into the candidate sequence: best
// first under the mate-aware ordering, truncated to the requested width.
func assemble(pos position.Position, latest map[int]engine.Record, width int) []Candidate {
	cands := make([]Candidate, 0, len(latest))
	for _, rec := range latest {
		if len(rec.PV) == 0 {
			continue
		}
		mv := rec.PV[0]
		san, err := pos.MoveSAN(mv)
		if err != nil {
			san = mv.String()
		}
		cands = append(cands, Candidate{
			Move:  mv,
			SAN:   san,
			Score: rec.Score,
			Depth: rec.Depth,
			PV:    rec.PV,
		})
	}
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].Score.Cmp(cands[j].Score) > 0
	})
	if width > 0 && len(cands) > width {
		cands = cands[:width]
	}
	return cands
}

func (c *Coordinator) evicted(key string, res *Result) {
	c.logf("evicted %s", key)
	c.emit(telemetry.KindCacheEvict, res.Position.FEN(), nil)
}

func (c *Coordinator) logf(format string, args ...any) {
	if c.cfg.Logger == nil {
		return
	}
	fmt.Fprintf(c.cfg.Logger, "[analysis] %s\n", fmt.Sprintf(format, args...))
}

func (c *Coordinator) emit(kind, fen string, data any) {
	_ = c.cfg.Telemetry.Emit(telemetry.Event{
		Timestamp: time.Now(),
		Kind:      kind,
		FEN:       fen,
		Data:      data,
	})
}

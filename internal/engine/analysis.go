package engine

import (
	"sync"
	"time"

	"github.com/fianchetto/kibitz/internal/position"
	"github.com/fianchetto/kibitz/internal/uci"
)

// Request describes one search. Exactly one of Depth or MoveTime must be
// set; depth termination is the reproducible mode. Lines is the number of
// candidate lines (multipv width) to ask for, minimum 1.
type Request struct {
	Depth    int
	MoveTime time.Duration
	Lines    int
}

// Ident is the engine identity captured during the handshake.
type Ident struct {
	Name   string
	Author string
}

// Record is one scored progress report from the engine. Line is the
// 1-based candidate index; records for the same line supersede each other.
type Record struct {
	Line    int
	Depth   int
	Score   uci.Score
	PV      []position.Move
	Nodes   int64
	Elapsed time.Duration
}

// recordBuffer is the handle's channel capacity. Consumers that fall this
// far behind lose the oldest progress records, never the terminal result.
const recordBuffer = 64

// Analysis is a cancelable handle on one in-flight search: a lazy, finite
// stream of Records terminated by channel close, after which BestMove
// reports the terminal move or the failure.
type Analysis struct {
	session *Session

	mu       sync.Mutex
	records  chan Record
	done     chan struct{}
	finished bool
	best     position.Move
	err      error
}

func newAnalysis(s *Session) *Analysis {
	return &Analysis{
		session: s,
		records: make(chan Record, recordBuffer),
		done:    make(chan struct{}),
	}
}

// Records returns the progress stream. It is closed after the terminal
// best-move record or a failure; consume until close.
func (a *Analysis) Records() <-chan Record { return a.records }

// Done is closed when the analysis has terminated, normally or not.
func (a *Analysis) Done() <-chan struct{} { return a.done }

// BestMove reports the terminal move once Done is closed. The move is
// NoMove and the error non-nil if the session failed mid-analysis; the move
// is NoMove with a nil error for positions with no legal continuation.
func (a *Analysis) BestMove() (position.Move, error) {
	<-a.done
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.best, a.err
}

// Stop asks the engine to finalize early. The stream still terminates with
// a best-move record computed from partial work. Idempotent.
func (a *Analysis) Stop() {
	a.session.Stop()
}

// deliver queues a progress record, dropping the oldest if the consumer is
// behind. Called only from the session's reader goroutine.
func (a *Analysis) deliver(rec Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finished {
		return
	}
	select {
	case a.records <- rec:
		return
	default:
	}
	// Buffer full: shed the oldest record and retry once.
	select {
	case <-a.records:
	default:
	}
	select {
	case a.records <- rec:
	default:
	}
}

// finish resolves the handle exactly once.
func (a *Analysis) finish(best position.Move, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finished {
		return
	}
	a.finished = true
	a.best = best
	a.err = err
	close(a.records)
	close(a.done)
}

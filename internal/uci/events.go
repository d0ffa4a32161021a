package uci

import (
	"fmt"

	"github.com/fianchetto/kibitz/internal/position"
)

// Event is one parsed engine output line. The concrete types below are the
// only implementations.
type Event interface {
	event()
}

// UCIOkEvent terminates the identification block of the handshake.
type UCIOkEvent struct{}

// ReadyOkEvent answers an isready probe.
type ReadyOkEvent struct{}

// IdentEvent carries one identification line from the handshake,
// e.g. Field "name", Value "Stockfish 16".
type IdentEvent struct {
	Field string
	Value string
}

// InfoEvent is a search progress record. Fields the engine did not send are
// zero; HasScore distinguishes informational lines (currmove, string) from
// scored lines worth keeping.
type InfoEvent struct {
	Depth    int
	SelDepth int
	MultiPV  int // 1-based line index; 0 when the engine omitted it
	HasScore bool
	Score    Score
	Nodes    int64
	NPS      int64
	TimeMS   int64
	PV       []position.Move
}

// BestMoveEvent terminates an analysis. Move is NoMove when the engine
// reports "(none)" for a position with no legal continuation.
type BestMoveEvent struct {
	Move   position.Move
	Ponder position.Move
}

// UnknownEvent is any line whose leading token is not part of the protocol
// subset kibitz speaks. Forward compatibility requires these be ignorable.
type UnknownEvent struct {
	Line string
}

func (UCIOkEvent) event()    {}
func (ReadyOkEvent) event()  {}
func (IdentEvent) event()    {}
func (InfoEvent) event()     {}
func (BestMoveEvent) event() {}
func (UnknownEvent) event()  {}

// Score is an engine evaluation from the side to move's perspective: either
// centipawns or a signed distance to mate. Mate 0 with IsMate set means the
// mover is checkmated now, so IsMate carries the distinction.
type Score struct {
	CP     int
	Mate   int
	IsMate bool
}

// mateBound converts a mate distance to a comparable centipawn figure far
// outside any positional evaluation.
const mateBound = 32000

// Cmp orders scores from the mover's perspective. Any mate for the mover
// beats any centipawn figure, shorter mate first; getting mated ranks below
// any centipawn figure, longer mate first. Returns +1 when s is better than
// t, -1 when worse, 0 when equal.
func (s Score) Cmp(t Score) int {
	sv, tv := s.bound(), t.bound()
	switch {
	case sv > tv:
		return 1
	case sv < tv:
		return -1
	}
	return 0
}

// Bound maps the score onto a single centipawn axis: mate distances saturate
// toward +/-mateBound so decisive scores dominate positional ones.
func (s Score) Bound() int { return s.bound() }

func (s Score) bound() int {
	if !s.IsMate {
		return s.CP
	}
	if s.Mate > 0 {
		return mateBound - s.Mate
	}
	// Mate <= 0: the mover is mated in -Mate moves (0 = mated now).
	return -mateBound - s.Mate
}

// String renders the conventional display form: centipawns as pawns with a
// sign ("+0.25", "-1.50"), mates as "#3" or "#-2".
func (s Score) String() string {
	if s.IsMate {
		return fmt.Sprintf("#%d", s.Mate)
	}
	return fmt.Sprintf("%+.2f", float64(s.CP)/100)
}

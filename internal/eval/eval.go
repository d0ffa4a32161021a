// Package eval provides engine-independent static scoring. It is the seam
// a learned evaluation model would plug into; the Material baseline keeps
// the dataset pipeline and CLI display working without one.
package eval

import (
	"github.com/notnil/chess"

	"github.com/fianchetto/kibitz/internal/position"
)

// MateValue saturates the scale when the game is already decided.
const MateValue = 9999

// Piece values in centipawns.
const (
	PawnValue   = 100
	KnightValue = 300
	BishopValue = 300
	RookValue   = 500
	QueenValue  = 900
)

// Evaluator scores a position in centipawns from the side to move's
// perspective: positive favors the mover.
type Evaluator interface {
	Evaluate(pos position.Position) int
}

// Material scores pure material balance. Checkmate returns -MateValue
// (the mover is the one mated); stalemate and dead material return 0.
type Material struct{}

func (Material) Evaluate(pos position.Position) int {
	if !pos.Valid() {
		return 0
	}
	if reason, over := pos.Terminal(); over {
		if reason == "checkmate" {
			return -MateValue
		}
		return 0
	}

	board := pos.Chess().Board()
	turn := pos.Chess().Turn()
	var mine, theirs, minors, heavy int
	for sq := chess.A1; sq <= chess.H8; sq++ {
		p := board.Piece(sq)
		if p == chess.NoPiece {
			continue
		}
		switch p.Type() {
		case chess.Knight, chess.Bishop:
			minors++
		case chess.Pawn, chess.Rook, chess.Queen:
			heavy++
		}
		v := pieceValue(p.Type())
		if p.Color() == turn {
			mine += v
		} else {
			theirs += v
		}
	}
	// Bare kings, or one lone minor: nobody can win this.
	if heavy == 0 && minors <= 1 {
		return 0
	}
	return mine - theirs
}

// PieceCount reports the number of men on the board, kings included.
func PieceCount(pos position.Position) int {
	if !pos.Valid() {
		return 0
	}
	board := pos.Chess().Board()
	n := 0
	for sq := chess.A1; sq <= chess.H8; sq++ {
		if board.Piece(sq) != chess.NoPiece {
			n++
		}
	}
	return n
}

func pieceValue(t chess.PieceType) int {
	switch t {
	case chess.Pawn:
		return PawnValue
	case chess.Knight:
		return KnightValue
	case chess.Bishop:
		return BishopValue
	case chess.Rook:
		return RookValue
	case chess.Queen:
		return QueenValue
	default:
		return 0
	}
}

// Package position wraps the chess rules library behind the small surface
// the rest of kibitz needs: validated FEN parsing, canonical re-encoding,
// move legality, and SAN rendering. All rule interpretation is delegated;
// nothing here implements chess.
package position

import (
	"errors"
	"fmt"
	"strings"

	"github.com/notnil/chess"
)

// ErrInvalidPosition is returned for input that does not parse or does not
// describe a playable position.
var ErrInvalidPosition = errors.New("invalid position")

// Position is a validated, immutable chess position. The zero value is not
// usable; construct via Parse or Start.
type Position struct {
	pos *chess.Position
	fen string
}

// Color identifies the side to move.
type Color int8

const (
	White Color = iota // white to move
	Black              // black to move
)

// String returns "white" or "black".
func (c Color) String() string {
	if c == Black {
		return "black"
	}
	return "white"
}

// Parse validates a FEN record and returns the position it describes.
// Failures wrap ErrInvalidPosition and never panic.
func Parse(fen string) (Position, error) {
	trimmed := strings.TrimSpace(fen)
	if trimmed == "" {
		return Position{}, fmt.Errorf("position: empty input: %w", ErrInvalidPosition)
	}

	opt, err := chess.FEN(trimmed)
	if err != nil {
		return Position{}, fmt.Errorf("position: parse %q: %v: %w", truncate(trimmed), err, ErrInvalidPosition)
	}
	pos := chess.NewGame(opt).Position()

	// The FEN grammar admits boards without kings; downstream move
	// generation assumes both are present.
	if err := checkKings(pos.Board()); err != nil {
		return Position{}, fmt.Errorf("position: %q: %v: %w", truncate(trimmed), err, ErrInvalidPosition)
	}

	return Position{pos: pos, fen: pos.String()}, nil
}

// Start returns the standard initial position.
func Start() Position {
	pos := chess.StartingPosition()
	return Position{pos: pos, fen: pos.String()}
}

// FEN returns the canonical encoding. Parsing two equivalent inputs yields
// the same string, so it doubles as the cache and protocol key.
func (p Position) FEN() string { return p.fen }

// Valid reports whether p was produced by a parse function.
func (p Position) Valid() bool { return p.pos != nil }

// Turn returns the side to move.
func (p Position) Turn() Color {
	if p.pos != nil && p.pos.Turn() == chess.Black {
		return Black
	}
	return White
}

// IsStart reports whether p is the standard initial position.
func (p Position) IsStart() bool {
	return p.fen == chess.StartingPosition().String()
}

// Terminal reports whether the position has no continuation, with the reason
// ("checkmate" or "stalemate"). Analysis of terminal positions short-circuits
// to an empty result.
func (p Position) Terminal() (string, bool) {
	if p.pos == nil {
		return "", false
	}
	switch p.pos.Status() {
	case chess.Checkmate:
		return "checkmate", true
	case chess.Stalemate:
		return "stalemate", true
	}
	return "", false
}

// LegalMove reports whether m is legal in p.
func (p Position) LegalMove(m Move) bool {
	if p.pos == nil {
		return false
	}
	_, err := chess.UCINotation{}.Decode(p.pos, string(m))
	return err == nil
}

// MoveSAN renders a legal move in standard algebraic notation.
func (p Position) MoveSAN(m Move) (string, error) {
	if p.pos == nil {
		return "", fmt.Errorf("position: SAN of %q: %w", m, ErrInvalidPosition)
	}
	mv, err := chess.UCINotation{}.Decode(p.pos, string(m))
	if err != nil {
		return "", fmt.Errorf("position: move %q not legal in %q: %w", m, truncate(p.fen), err)
	}
	return chess.AlgebraicNotation{}.Encode(p.pos, mv), nil
}

// Apply plays a legal move and returns the resulting position.
func (p Position) Apply(m Move) (Position, error) {
	if p.pos == nil {
		return Position{}, fmt.Errorf("position: apply %q: %w", m, ErrInvalidPosition)
	}
	mv, err := chess.UCINotation{}.Decode(p.pos, string(m))
	if err != nil {
		return Position{}, fmt.Errorf("position: move %q not legal in %q: %w", m, truncate(p.fen), err)
	}
	next := p.pos.Update(mv)
	return Position{pos: next, fen: next.String()}, nil
}

// Chess exposes the underlying rules-library position for packages that
// enumerate the board (evaluation, sampling).
func (p Position) Chess() *chess.Position { return p.pos }

// FromChess wraps a position produced by the rules library, such as one
// reached by walking a game's move list. Legality is the caller's problem.
func FromChess(p *chess.Position) Position {
	if p == nil {
		return Position{}
	}
	return Position{pos: p, fen: p.String()}
}

func checkKings(b *chess.Board) error {
	var white, black int
	for sq := chess.A1; sq <= chess.H8; sq++ {
		piece := b.Piece(sq)
		if piece == chess.NoPiece || piece.Type() != chess.King {
			continue
		}
		if piece.Color() == chess.White {
			white++
		} else {
			black++
		}
	}
	if white != 1 || black != 1 {
		return fmt.Errorf("expected one king per side, have %d white / %d black", white, black)
	}
	return nil
}

func truncate(s string) string {
	const max = 90
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

package position

import "fmt"

// Move is a move in coordinate notation as engines emit it: source square,
// destination square, optional promotion piece ("e2e4", "e7e8q"). Legality
// is position-dependent and not implied by the type.
type Move string

// NoMove is the empty move, reported by engines for positions with no
// legal continuation.
const NoMove Move = ""

// ParseMove validates coordinate-notation syntax. It does not check
// legality; use Position.LegalMove for that.
func ParseMove(s string) (Move, error) {
	if len(s) != 4 && len(s) != 5 {
		return NoMove, fmt.Errorf("position: move %q: want 4 or 5 characters: %w", s, ErrInvalidPosition)
	}
	if !squareOK(s[0], s[1]) || !squareOK(s[2], s[3]) {
		return NoMove, fmt.Errorf("position: move %q: bad square: %w", s, ErrInvalidPosition)
	}
	if len(s) == 5 {
		switch s[4] {
		case 'q', 'r', 'b', 'n':
		default:
			return NoMove, fmt.Errorf("position: move %q: bad promotion piece %q: %w", s, s[4], ErrInvalidPosition)
		}
	}
	return Move(s), nil
}

// String returns the move in coordinate notation.
func (m Move) String() string { return string(m) }

func squareOK(file, rank byte) bool {
	return file >= 'a' && file <= 'h' && rank >= '1' && rank <= '8'
}

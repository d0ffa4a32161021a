// Package analysis turns positions into ranked candidate moves. The
// Coordinator owns the full request path: cache lookup, session checkout,
// streaming consumption, and assembly of the final ordered result. Rank
// then measures a played move against that result.
package analysis

import (
	"fmt"
	"time"

	"github.com/fianchetto/kibitz/internal/engine"
	"github.com/fianchetto/kibitz/internal/position"
	"github.com/fianchetto/kibitz/internal/uci"
)

// Params describe one analysis request. Depth-bounded searches are
// reproducible: the same position and params yield the same result
// run-to-run. MoveTime switches to a wall-clock bound instead, which is
// faster to first answer but not reproducible; when both are set the
// time bound wins.
type Params struct {
	// Depth is the search depth in plies.
	Depth int
	// MoveTime bounds the search by wall clock instead of depth.
	MoveTime time.Duration
	// Lines is the number of candidate moves requested.
	Lines int
}

// key builds the cache key. Results are only comparable across identical
// parameters, so every field participates.
func (p Params) key(fen string) string {
	return fmt.Sprintf("%s|d%d|t%d|l%d", fen, p.Depth, p.MoveTime/time.Millisecond, p.Lines)
}

// Candidate is one engine line: a move, its evaluation from the side to
// move's perspective, and the continuation the engine expects.
type Candidate struct {
	Move  position.Move
	SAN   string
	Score uci.Score
	// Depth actually reached for this line; below the requested depth
	// when the search was interrupted.
	Depth int
	PV    []position.Move
}

// Result is a completed analysis. It is immutable once returned and
// shared read-only between the cache and all callers.
type Result struct {
	Position   position.Position
	Params     Params
	Candidates []Candidate
	// BestMove is the engine's terminal choice. It normally equals
	// Candidates[0].Move but the engine has the final word.
	BestMove position.Move
	// Partial marks a search interrupted before reaching its bound; the
	// candidates carry whatever depth was reached.
	Partial bool
	// Reason explains an empty candidate set for a terminal position,
	// "checkmate" or "stalemate".
	Reason  string
	Engine  engine.Ident
	Elapsed time.Duration
}

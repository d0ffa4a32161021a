package analysis

import "github.com/fianchetto/kibitz/internal/position"

// BeyondAnalyzed is the Index of a played move that does not appear among
// the returned candidates. The move may be anywhere from fourth-best to
// losing; no rank or loss is fabricated for it.
const BeyondAnalyzed = -1

// RankedMove measures a played move against an analysis result.
type RankedMove struct {
	Move position.Move
	// Index is the move's position in the candidate ordering, 0 for the
	// best move, BeyondAnalyzed when absent.
	Index int
	// CentipawnLoss is how far the move falls short of the best
	// candidate, never negative. Meaningful only when Index >= 0 and
	// Decisive is false.
	CentipawnLoss int
	// Decisive marks a loss too large for centipawns: the move forfeits
	// a forced mate, or walks into one.
	Decisive bool
	// Best is the engine's preferred alternative.
	Best position.Move
}

// Rank locates played in the result's candidate ordering and computes its
// centipawn loss against the best candidate. Both scores are already
// relative to the side to move, so the difference is directly comparable.
func Rank(played position.Move, res *Result) RankedMove {
	rm := RankedMove{Move: played, Index: BeyondAnalyzed}
	if res == nil || len(res.Candidates) == 0 {
		return rm
	}
	best := res.Candidates[0]
	rm.Best = best.Move

	idx := BeyondAnalyzed
	for i, c := range res.Candidates {
		if c.Move == played {
			idx = i
			break
		}
	}
	if idx == BeyondAnalyzed {
		return rm
	}
	rm.Index = idx
	if idx == 0 {
		return rm
	}

	bs, cs := best.Score, res.Candidates[idx].Score
	switch {
	case bs.IsMate && cs.IsMate && (bs.Mate > 0) == (cs.Mate > 0):
		// Both force mate, or both get mated: no meaningful centipawn
		// distance between them.
	case bs.IsMate && bs.Mate > 0:
		rm.Decisive = true
	case cs.IsMate && cs.Mate <= 0:
		rm.Decisive = true
	default:
		loss := bs.Bound() - cs.Bound()
		if loss < 0 {
			loss = 0
		}
		rm.CentipawnLoss = loss
	}
	return rm
}

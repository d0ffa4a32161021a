// Package dataset extracts training positions from archived games and
// persists them for later model work. The sampler keeps positions from
// strong, slow games only: both players above a rating floor, classical
// time controls, past the opening plies, and before bare endgames.
package dataset

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/notnil/chess"

	"github.com/fianchetto/kibitz/internal/eval"
	"github.com/fianchetto/kibitz/internal/position"
)

// Default filter thresholds.
const (
	DefaultMinElo         = 2400
	DefaultMinBaseSeconds = 600
	DefaultSkipPlies      = 10
	DefaultMinPieces      = 10
)

// Row is one retained position: the board before a move, the move played
// from it, and static features of the board.
type Row struct {
	FEN        string
	Move       string // coordinate form, e.g. e2e4
	SAN        string
	Ply        int // 1-based half-move index within the game
	Turn       string
	Eval       int // centipawns for the side to move
	PieceCount int
}

// Stats summarize one sampling pass.
type Stats struct {
	Games   int // games read
	Kept    int // games that passed the filters
	Skipped int // games filtered out or unreadable
	Rows    int // positions retained
}

// String summarizes the counters in one line for log output.
func (s Stats) String() string {
	return fmt.Sprintf("%d games read, %d kept, %d skipped, %d positions", s.Games, s.Kept, s.Skipped, s.Rows)
}

// Sampler filters games and extracts rows. A zero threshold disables that
// filter; NewSampler applies the standard ones.
type Sampler struct {
	MinElo         int
	MinBaseSeconds int
	SkipPlies      int
	MinPieces      int

	// Eval scores each retained position; nil means eval.Material.
	Eval   eval.Evaluator
	Logger io.Writer
}

// NewSampler returns a sampler with the default thresholds.
func NewSampler() *Sampler {
	return &Sampler{
		MinElo:         DefaultMinElo,
		MinBaseSeconds: DefaultMinBaseSeconds,
		SkipPlies:      DefaultSkipPlies,
		MinPieces:      DefaultMinPieces,
	}
}

// Admit reports whether a game passes the quality filters. A game missing
// a rating tag is rejected, never guessed at. Time controls are read from
// the base+increment form; tags without an increment part pass through.
func (s *Sampler) Admit(g *chess.Game) bool {
	if s.MinElo > 0 {
		for _, tag := range []string{"WhiteElo", "BlackElo"} {
			elo, err := strconv.Atoi(g.GetTagPair(tag))
			if err != nil || elo < s.MinElo {
				return false
			}
		}
	}
	if s.MinBaseSeconds > 0 {
		if base, _, ok := strings.Cut(g.GetTagPair("TimeControl"), "+"); ok {
			secs, err := strconv.Atoi(base)
			if err != nil || secs < s.MinBaseSeconds {
				return false
			}
		}
	}
	return true
}

// SampleGame walks a game's main line and returns the retained rows. Each
// row records the position before its move.
func (s *Sampler) SampleGame(g *chess.Game) []Row {
	moves := g.Moves()
	positions := g.Positions()
	rows := make([]Row, 0, len(moves))
	for i, m := range moves {
		ply := i + 1
		if ply <= s.SkipPlies || i >= len(positions) {
			continue
		}
		before := position.FromChess(positions[i])
		men := eval.PieceCount(before)
		if s.MinPieces > 0 && men < s.MinPieces {
			continue
		}
		rows = append(rows, Row{
			FEN:        before.FEN(),
			Move:       chess.UCINotation{}.Encode(positions[i], m),
			SAN:        chess.AlgebraicNotation{}.Encode(positions[i], m),
			Ply:        ply,
			Turn:       before.Turn().String(),
			Eval:       s.evaluator().Evaluate(before),
			PieceCount: men,
		})
	}
	return rows
}

// SampleReader streams games from r and calls fn for every retained row.
// A row error aborts the pass; unreadable games are skipped and counted.
func (s *Sampler) SampleReader(ctx context.Context, r io.Reader, fn func(Row) error) (Stats, error) {
	var st Stats
	sc := chess.NewScanner(r)
	for sc.HasNext() {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		st.Games++
		g, err := readGame(sc)
		if err != nil {
			st.Skipped++
			s.logf("skipping unreadable game %d: %v", st.Games, err)
			continue
		}
		if !s.Admit(g) {
			st.Skipped++
			continue
		}
		st.Kept++
		for _, row := range s.SampleGame(g) {
			if fn != nil {
				if err := fn(row); err != nil {
					return st, fmt.Errorf("dataset: row %d: %w", st.Rows+1, err)
				}
			}
			st.Rows++
		}
	}
	return st, nil
}

// readGame pulls the next raw game off the scanner and parses it.
func readGame(sc *chess.Scanner) (*chess.Game, error) {
	scanned, err := sc.ScanGame()
	if err != nil {
		return nil, err
	}
	tokens, err := chess.TokenizeGame(scanned)
	if err != nil {
		return nil, err
	}
	return chess.NewParser(tokens).Parse()
}

func (s *Sampler) evaluator() eval.Evaluator {
	if s.Eval != nil {
		return s.Eval
	}
	return eval.Material{}
}

func (s *Sampler) logf(format string, args ...any) {
	if s.Logger == nil {
		return
	}
	fmt.Fprintf(s.Logger, "[dataset] %s\n", fmt.Sprintf(format, args...))
}

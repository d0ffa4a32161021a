package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fianchetto/kibitz/internal/analysis"
	"github.com/fianchetto/kibitz/internal/config"
	"github.com/fianchetto/kibitz/internal/position"
	"github.com/fianchetto/kibitz/internal/ui"
)

var rankCmd = &cobra.Command{
	Use:   "rank <move> [fen]",
	Short: "Judge a played move against the engine's candidates",
	Long: `Rank analyzes a position, locates the played move among the engine's
candidates, and reports its rank and centipawn loss against the best move.
The move is coordinate notation ("e2e4", "e7e8q"); the position is a FEN
record, defaulting to the starting position.`,
	Args: cobra.RangeArgs(1, 7),
	RunE: runRank,
}

func init() {
	addAnalysisFlags(rankCmd)
	rootCmd.AddCommand(rankCmd)
}

func runRank(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	printer := ui.New()

	move, err := position.ParseMove(args[0])
	if err != nil {
		return err
	}
	pos, err := argPosition(args[1:])
	if err != nil {
		return err
	}
	if !pos.LegalMove(move) {
		return fmt.Errorf("move %s is not legal in this position", move)
	}
	san, err := pos.MoveSAN(move)
	if err != nil {
		return err
	}

	coord, cleanup, err := buildCoordinator(cmd, &cfg, printer)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := setupSignalContext(printer)
	defer cancel()

	res, err := coord.Analyze(ctx, pos, analysisParams(cmd))
	if err != nil {
		return err
	}

	printer.RankReport(san, analysis.Rank(move, res), res)
	return nil
}

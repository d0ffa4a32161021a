package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fianchetto/kibitz/internal/analysis"
	"github.com/fianchetto/kibitz/internal/config"
	"github.com/fianchetto/kibitz/internal/engine"
	"github.com/fianchetto/kibitz/internal/position"
	"github.com/fianchetto/kibitz/internal/registry"
	"github.com/fianchetto/kibitz/internal/telemetry"
	"github.com/fianchetto/kibitz/internal/ui"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [fen]",
	Short: "Rank the candidate moves of a position",
	Long: `Analyze runs the engine on a position and prints its candidate moves
best-first with evaluations and principal variations. The position is a FEN
record, quoted or as bare fields; without one the starting position is used.`,
	Args: cobra.MaximumNArgs(6),
	RunE: runAnalyze,
}

func init() {
	addAnalysisFlags(analyzeCmd)
	rootCmd.AddCommand(analyzeCmd)
}

// addAnalysisFlags registers the search flags shared by analyze and rank.
func addAnalysisFlags(cmd *cobra.Command) {
	cmd.Flags().Int("depth", 0, "search depth in plies (0 = config default)")
	cmd.Flags().Duration("movetime", 0, "wall-clock search bound, overrides depth")
	cmd.Flags().Int("lines", 0, "number of candidate lines (0 = config default)")
	cmd.Flags().String("engine", "", "engine profile name or binary path")
	cmd.Flags().Duration("budget", 0, "ceiling before a search is cut off as partial")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	printer := ui.New()

	pos, err := argPosition(args)
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
	printer.AnalysisReport(res)
	return nil
}

// argPosition parses a FEN given as one quoted argument or as bare
// space-split fields, defaulting to the starting position.
func argPosition(args []string) (position.Position, error) {
	fen := strings.TrimSpace(strings.Join(args, " "))
	if fen == "" || fen == "startpos" {
		return position.Start(), nil
	}
	return position.Parse(fen)
}

// analysisParams builds request parameters from flags; zero fields fall
// through to the coordinator defaults.
func analysisParams(cmd *cobra.Command) analysis.Params {
	depth, _ := cmd.Flags().GetInt("depth")
	movetime, _ := cmd.Flags().GetDuration("movetime")
	lines, _ := cmd.Flags().GetInt("lines")
	return analysis.Params{Depth: depth, MoveTime: movetime, Lines: lines}
}

// buildCoordinator assembles the session pool and coordinator from config
// and flag overrides. The returned cleanup shuts the engines down and
// closes the telemetry stream.
func buildCoordinator(cmd *cobra.Command, cfg *config.Config, printer *ui.Printer) (*analysis.Coordinator, func(), error) {
	sc, profile, err := resolveEngine(cmd, cfg)
	if err != nil {
		return nil, nil, err
	}

	var logger io.Writer
	if verbose(cmd, cfg) {
		logger = printer.Err
	}

	var emitter *telemetry.Emitter
	if cfg.Telemetry.Path != "" {
		emitter, err = telemetry.NewEmitter(cfg.Telemetry.Path)
		if err != nil {
			return nil, nil, err
		}
	}

	sc.Logger = logger
	sc.Telemetry = emitter

	depth, lines := cfg.Analysis.Depth, cfg.Analysis.Lines
	if profile.DefaultDepth > 0 {
		depth = profile.DefaultDepth
	}
	if profile.DefaultLines > 0 {
		lines = profile.DefaultLines
	}
	budget := cfg.Analysis.Budget()
	if b, _ := cmd.Flags().GetDuration("budget"); b > 0 {
		budget = b
	}

	pool := engine.NewPool(sc, cfg.Pool.Size)
	coord := analysis.NewCoordinator(analysis.Config{
		Pool:          pool,
		DefaultDepth:  depth,
		DefaultLines:  lines,
		Budget:        budget,
		CacheCapacity: cfg.Cache.Capacity,
		Logger:        logger,
		Telemetry:     emitter,
	})
	cleanup := func() {
		coord.Shutdown()
		_ = emitter.Close()
	}
	return coord, cleanup, nil
}

// resolveEngine picks the session configuration. An --engine value is
// looked up in the catalog first and treated as a binary path when no
// profile matches; otherwise the configured default engine applies.
func resolveEngine(cmd *cobra.Command, cfg *config.Config) (engine.SessionConfig, registry.Profile, error) {
	sel, _ := cmd.Flags().GetString("engine")
	if sel == "" {
		sc := engine.SessionConfig{
			Binary:  cfg.Engine.Path,
			HashMB:  cfg.Engine.HashMB,
			Threads: cfg.Engine.Threads,
		}
		return sc, registry.Profile{}, nil
	}

	cat, err := registry.Load(registryPath(cfg))
	if err != nil {
		return engine.SessionConfig{}, registry.Profile{}, err
	}
	if p, ok := cat.Find(sel); ok {
		return p.SessionConfig(), p, nil
	}
	sc := engine.SessionConfig{
		Binary:  sel,
		HashMB:  cfg.Engine.HashMB,
		Threads: cfg.Engine.Threads,
	}
	return sc, registry.Profile{}, nil
}

// verbose reports whether verbose output was requested by flag or config.
func verbose(cmd *cobra.Command, cfg *config.Config) bool {
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		return true
	}
	return cfg.Verbose
}

// setupSignalContext returns a context that is canceled on SIGINT or
// SIGTERM, letting engine sessions shut down cleanly.
func setupSignalContext(printer *ui.Printer) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		printer.Info("\nshutting down...")
		cancel()
	}()
	return ctx, cancel
}

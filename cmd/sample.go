package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fianchetto/kibitz/internal/config"
	"github.com/fianchetto/kibitz/internal/dataset"
	"github.com/fianchetto/kibitz/internal/telemetry"
	"github.com/fianchetto/kibitz/internal/ui"
)

var sampleCmd = &cobra.Command{
	Use:   "sample <pgn-file>...",
	Short: "Filter PGN archives into an evaluation dataset",
	Long: `Sample reads PGN games, keeps those that pass the quality filters
(rating, time control), extracts positions past the opening with enough
material left, and stores them as dataset rows in a SQLite database.

With --watch the single argument is a directory; PGN files dropped into it
are ingested as they settle, each as its own run, until interrupted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSample,
}

func init() {
	sampleCmd.Flags().String("db", "kibitz.db", "SQLite database to store rows in")
	sampleCmd.Flags().String("csv", "", "export the run's rows to a CSV file")
	sampleCmd.Flags().Bool("watch", false, "watch a directory for incoming PGN files")
	sampleCmd.Flags().Int("min-elo", 0, "minimum rating for both players (0 = config default)")
	sampleCmd.Flags().Int("min-base", 0, "minimum base time in seconds (0 = config default)")
	sampleCmd.Flags().Int("skip-plies", 0, "opening plies to skip (0 = config default)")
	sampleCmd.Flags().Int("min-pieces", 0, "minimum pieces on the board (0 = config default)")
	rootCmd.AddCommand(sampleCmd)
}

func runSample(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	printer := ui.New()

	watch, _ := cmd.Flags().GetBool("watch")
	csvPath, _ := cmd.Flags().GetString("csv")
	if watch && csvPath != "" {
		return fmt.Errorf("--csv cannot be combined with --watch")
	}
	if watch && len(args) != 1 {
		return fmt.Errorf("--watch takes exactly one directory argument")
	}

	ctx, cancel := setupSignalContext(printer)
	defer cancel()

	dbPath, _ := cmd.Flags().GetString("db")
	store, err := dataset.NewStore(ctx, dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	var emitter *telemetry.Emitter
	if cfg.Telemetry.Path != "" {
		emitter, err = telemetry.NewEmitter(cfg.Telemetry.Path)
		if err != nil {
			return err
		}
		defer emitter.Close()
	}

	sampler := samplerFromConfig(cmd, &cfg, printer)

	if watch {
		return watchAndSample(ctx, args[0], store, sampler, emitter, printer)
	}

	runID, stats, err := sampleFiles(ctx, args, store, sampler)
	if err != nil {
		return err
	}
	emitSampleRun(emitter, strings.Join(args, " "), runID, stats)
	printer.SampleSummary(strings.Join(args, ", "), stats)

	if csvPath != "" {
		n, err := exportCSV(ctx, store, runID, csvPath)
		if err != nil {
			return err
		}
		printer.Info(fmt.Sprintf("wrote %d rows to %s", n, csvPath))
	}
	return nil
}

// sampleFiles ingests the given PGN files as a single dataset run and
// returns the run ID with the accumulated counters.
func sampleFiles(ctx context.Context, paths []string, store *dataset.Store, sampler *dataset.Sampler) (string, dataset.Stats, error) {
	run, err := store.Begin(ctx, strings.Join(paths, " "))
	if err != nil {
		return "", dataset.Stats{}, err
	}
	var total dataset.Stats
	for _, path := range paths {
		st, err := sampleFile(ctx, path, run, sampler)
		total.Games += st.Games
		total.Kept += st.Kept
		total.Skipped += st.Skipped
		total.Rows += st.Rows
		if err != nil {
			return "", total, fmt.Errorf("sample %s: %w", path, err)
		}
	}
	if err := run.Finish(ctx, total); err != nil {
		return "", total, err
	}
	return run.ID(), total, nil
}

func sampleFile(ctx context.Context, path string, run *dataset.Run, sampler *dataset.Sampler) (dataset.Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return dataset.Stats{}, err
	}
	defer f.Close()
	return sampler.SampleReader(ctx, f, func(row dataset.Row) error {
		return run.Add(ctx, row)
	})
}

// watchAndSample ingests PGN files as they settle in dir until the context
// is canceled. Each file becomes its own dataset run.
func watchAndSample(ctx context.Context, dir string, store *dataset.Store, sampler *dataset.Sampler, emitter *telemetry.Emitter, printer *ui.Printer) error {
	w, err := dataset.NewWatcher(dir)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()

	printer.Info(fmt.Sprintf("watching %s for PGN files (ctrl-c to stop)", dir))
	for {
		select {
		case <-ctx.Done():
			return nil
		case path, ok := <-w.Files:
			if !ok {
				return nil
			}
			runID, stats, err := sampleFiles(ctx, []string{path}, store, sampler)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				printer.Error(fmt.Sprintf("sample %s: %v", path, err))
				continue
			}
			emitSampleRun(emitter, path, runID, stats)
			printer.SampleSummary(path, stats)
		}
	}
}

func exportCSV(ctx context.Context, store *dataset.Store, runID, path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := store.ExportCSV(ctx, f, runID)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// samplerFromConfig builds a Sampler from the configured filters with any
// flag overrides applied.
func samplerFromConfig(cmd *cobra.Command, cfg *config.Config, printer *ui.Printer) *dataset.Sampler {
	s := dataset.NewSampler()
	s.MinElo = cfg.Sample.MinElo
	s.MinBaseSeconds = cfg.Sample.MinBaseSeconds
	s.SkipPlies = cfg.Sample.SkipPlies
	s.MinPieces = cfg.Sample.MinPieces
	if v, _ := cmd.Flags().GetInt("min-elo"); v > 0 {
		s.MinElo = v
	}
	if v, _ := cmd.Flags().GetInt("min-base"); v > 0 {
		s.MinBaseSeconds = v
	}
	if v, _ := cmd.Flags().GetInt("skip-plies"); v > 0 {
		s.SkipPlies = v
	}
	if v, _ := cmd.Flags().GetInt("min-pieces"); v > 0 {
		s.MinPieces = v
	}
	if verbose(cmd, cfg) {
		s.Logger = printer.Err
	}
	return s
}

func emitSampleRun(emitter *telemetry.Emitter, source, runID string, st dataset.Stats) {
	_ = emitter.Emit(telemetry.Event{
		Timestamp: time.Now(),
		Kind:      telemetry.KindSampleRun,
		Data: map[string]any{
			"source": source,
			"run_id": runID,
			"games":  st.Games,
			"kept":   st.Kept,
			"rows":   st.Rows,
		},
	})
}

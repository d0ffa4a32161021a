// Package ui renders command output for the terminal. Tables and verdicts
// go to Out so they can be piped; status lines and errors go to Err.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fianchetto/kibitz/internal/analysis"
	"github.com/fianchetto/kibitz/internal/ansi"
	"github.com/fianchetto/kibitz/internal/dataset"
	"github.com/fianchetto/kibitz/internal/engine"
	"github.com/fianchetto/kibitz/internal/position"
	"github.com/fianchetto/kibitz/internal/registry"
	"github.com/fianchetto/kibitz/internal/uci"
)

// Printer writes command output to a pair of streams.
type Printer struct {
	Out io.Writer
	Err io.Writer
}

// New returns a Printer bound to stdout and stderr.
func New() *Printer {
	return &Printer{Out: os.Stdout, Err: os.Stderr}
}

// Error prints an error line.
func (p *Printer) Error(msg string) {
	fmt.Fprintf(p.Err, ansi.Red+ansi.Bold+"error: "+ansi.Reset+"%s\n", msg)
}

// Info prints a dim status line.
func (p *Printer) Info(msg string) {
	fmt.Fprintf(p.Err, ansi.Dim+"%s"+ansi.Reset+"\n", msg)
}

// AnalysisReport renders a completed analysis: a header describing the
// search, then one table row per candidate line, best first.
func (p *Printer) AnalysisReport(res *analysis.Result) {
	fmt.Fprintf(p.Out, ansi.Dim+"position:"+ansi.Reset+" %s\n", res.Position.FEN())
	if res.Engine.Name != "" {
		fmt.Fprintf(p.Out, ansi.Dim+"engine:"+ansi.Reset+"   %s\n", res.Engine.Name)
	}
	mode := fmt.Sprintf("depth %d", res.Params.Depth)
	if res.Params.MoveTime > 0 {
		mode = fmt.Sprintf("movetime %s", res.Params.MoveTime)
	}
	fmt.Fprintf(p.Out, ansi.Dim+"search:"+ansi.Reset+"   %s, %d line(s), %.1fs\n",
		mode, res.Params.Lines, res.Elapsed.Seconds())

	if res.Reason != "" {
		fmt.Fprintf(p.Out, ansi.Yellow+"⚠ nothing to analyze: %s"+ansi.Reset+"\n", res.Reason)
		return
	}
	if res.Partial {
		fmt.Fprintln(p.Out, ansi.Yellow+"⚠ partial: budget expired before the search finished"+ansi.Reset)
	}

	fmt.Fprintln(p.Out)
	fmt.Fprintf(p.Out, ansi.Bold+"  %2s  %-7s %8s  %5s  %s"+ansi.Reset+"\n",
		"#", "move", "score", "depth", "pv")
	for i, c := range res.Candidates {
		move := c.SAN
		if move == "" {
			move = c.Move.String()
		}
		fmt.Fprintf(p.Out, "  %2d  %-7s %s%8s"+ansi.Reset+"  %5d  "+ansi.Dim+"%s"+ansi.Reset+"\n",
			i+1, move, scoreColor(c.Score), c.Score, c.Depth, PVString(c.PV))
	}
}

// RankReport renders the verdict for a played move against an analysis.
func (p *Printer) RankReport(san string, rm analysis.RankedMove, res *analysis.Result) {
	label := san
	if label == "" {
		label = rm.Move.String()
	}
	switch {
	case rm.Index == 0:
		fmt.Fprintf(p.Out, ansi.Green+ansi.Bold+"✓ %s"+ansi.Reset+" is the engine's best move\n", label)
	case rm.Index == analysis.BeyondAnalyzed:
		fmt.Fprintf(p.Out, ansi.Yellow+"? %s"+ansi.Reset+" is outside the %d analyzed line(s)\n",
			label, len(res.Candidates))
	case rm.Decisive:
		fmt.Fprintf(p.Out, ansi.Red+ansi.Bold+"✗ %s"+ansi.Reset+" is decisively worse (rank %d of %d), best was "+ansi.Green+"%s"+ansi.Reset+"\n",
			label, rm.Index+1, len(res.Candidates), rm.Best)
	default:
		fmt.Fprintf(p.Out, ansi.Yellow+"~ %s"+ansi.Reset+" ranks "+ansi.Bold+"%d of %d"+ansi.Reset+", losing %d centipawns to "+ansi.Green+"%s"+ansi.Reset+"\n",
			label, rm.Index+1, len(res.Candidates), rm.CentipawnLoss, rm.Best)
	}
}

// SampleSummary reports one completed sampling pass over a PGN source.
func (p *Printer) SampleSummary(source string, st dataset.Stats) {
	fmt.Fprintf(p.Out, ansi.Green+"◆ sampled"+ansi.Reset+" %s "+ansi.Dim+"(%s)"+ansi.Reset+"\n", source, st)
}

// Profiles renders the engine catalog as a table.
func (p *Printer) Profiles(profiles []registry.Profile) {
	if len(profiles) == 0 {
		p.Info("no engine profiles registered; add one with: kibitz engines --add <name> <path>")
		return
	}
	fmt.Fprintf(p.Out, ansi.Bold+"  %-14s %-36s %6s %8s %6s %6s"+ansi.Reset+"\n",
		"name", "path", "hash", "threads", "depth", "lines")
	for _, pr := range profiles {
		fmt.Fprintf(p.Out, "  %-14s %-36s %6s %8s %6s %6s\n",
			pr.Name, pr.Path,
			orDefault(pr.HashMB), orDefault(pr.Threads),
			orDefault(pr.DefaultDepth), orDefault(pr.DefaultLines))
	}
}

// ProbeResult reports one engine handshake attempt.
func (p *Printer) ProbeResult(name string, ident engine.Ident, err error) {
	if err != nil {
		fmt.Fprintf(p.Out, "  "+ansi.Red+"✗ %-14s"+ansi.Reset+" %v\n", name, err)
		return
	}
	fmt.Fprintf(p.Out, "  "+ansi.Green+"✓ %-14s"+ansi.Reset+" %s\n", name, ident.Name)
}

// ProfileSaved confirms a catalog write.
func (p *Printer) ProfileSaved(replaced bool, prof registry.Profile) {
	verb := "added"
	if replaced {
		verb = "updated"
	}
	fmt.Fprintf(p.Out, ansi.Green+"✓ %s"+ansi.Reset+" %s "+ansi.Dim+"(%s)"+ansi.Reset+"\n", verb, prof.Name, prof.Path)
}

// PVString joins a principal variation for display, eliding long tails.
func PVString(pv []position.Move) string {
	const shown = 8
	if len(pv) == 0 {
		return ""
	}
	parts := make([]string, 0, shown+1)
	for i, m := range pv {
		if i == shown {
			parts = append(parts, "…")
			break
		}
		parts = append(parts, m.String())
	}
	return strings.Join(parts, " ")
}

// scoreColor picks a color for a score from the mover's perspective.
func scoreColor(s uci.Score) string {
	switch {
	case s.IsMate:
		return ansi.Magenta
	case s.Bound() >= 0:
		return ansi.Green
	default:
		return ansi.Red
	}
}

// orDefault renders zero config values as a dash.
func orDefault(n int) string {
	if n <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d", n)
}

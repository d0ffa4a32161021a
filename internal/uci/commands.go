// Package uci implements the line vocabulary spoken with UCI engine
// subprocesses: command builders for the write side and a tolerant event
// parser for the read side. Process management lives in internal/engine;
// nothing here touches a process.
package uci

import (
	"fmt"
	"time"
)

// Fixed commands.
const (
	CmdUCI     = "uci"
	CmdIsReady = "isready"
	CmdNewGame = "ucinewgame"
	CmdStop    = "stop"
	CmdQuit    = "quit"
)

// startposFEN is the FEN of the standard initial position; engines accept
// the shorthand form for it.
const startposFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// PositionCmd builds the command that sets the engine's working position.
func PositionCmd(fen string) string {
	if fen == startposFEN {
		return "position startpos"
	}
	return "position fen " + fen
}

// GoDepthCmd builds a depth-terminated search command. Depth termination is
// the reproducible mode: same engine, same position, same depth gives the
// same output.
func GoDepthCmd(depth int) string {
	return fmt.Sprintf("go depth %d", depth)
}

// GoMoveTimeCmd builds a wall-clock-terminated search command.
func GoMoveTimeCmd(d time.Duration) string {
	return fmt.Sprintf("go movetime %d", d.Milliseconds())
}

// SetOptionCmd builds a setoption command.
func SetOptionCmd(name string, value any) string {
	return fmt.Sprintf("setoption name %s value %v", name, value)
}

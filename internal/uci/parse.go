package uci

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fianchetto/kibitz/internal/position"
)

// ParseError reports a recognized record with a malformed body. Sessions
// count these toward their anomaly tolerance; unknown lines never produce
// one.
type ParseError struct {
	Line   string
	Reason string
}

// Error renders the line and the reason it was rejected.
func (e *ParseError) Error() string {
	return fmt.Sprintf("uci: malformed %q: %s", e.Line, e.Reason)
}

// ParseEvent parses one engine output line. Lines whose leading token is
// outside the protocol subset return UnknownEvent and a nil error; only
// recognized records with malformed bodies return a *ParseError.
func ParseEvent(line string) (Event, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return UnknownEvent{Line: line}, nil
	}

	switch fields[0] {
	case "uciok":
		return UCIOkEvent{}, nil
	case "readyok":
		return ReadyOkEvent{}, nil
	case "id":
		return parseIdent(line, fields)
	case "bestmove":
		return parseBestMove(line, fields)
	case "info":
		return parseInfo(line, fields)
	}
	return UnknownEvent{Line: line}, nil
}

func parseIdent(line string, fields []string) (Event, error) {
	if len(fields) < 3 {
		return nil, &ParseError{Line: line, Reason: "id without field and value"}
	}
	return IdentEvent{
		Field: fields[1],
		Value: strings.Join(fields[2:], " "),
	}, nil
}

func parseBestMove(line string, fields []string) (Event, error) {
	if len(fields) < 2 {
		return nil, &ParseError{Line: line, Reason: "bestmove without a move"}
	}

	var ev BestMoveEvent
	if fields[1] != "(none)" {
		mv, err := position.ParseMove(fields[1])
		if err != nil {
			return nil, &ParseError{Line: line, Reason: "bad move " + fields[1]}
		}
		ev.Move = mv
	}
	if len(fields) >= 4 && fields[2] == "ponder" && fields[3] != "(none)" {
		// Ponder is advisory; a malformed one is not worth an anomaly.
		if mv, err := position.ParseMove(fields[3]); err == nil {
			ev.Ponder = mv
		}
	}
	return ev, nil
}

// parseInfo walks the key/value stream of an info record. Keys arrive in any
// order; unknown keys are skipped along with any numeric arguments so a
// newer engine's extra fields cannot derail the parse.
func parseInfo(line string, fields []string) (Event, error) {
	var ev InfoEvent
	i := 1
	for i < len(fields) {
		key := fields[i]
		switch key {
		case "depth":
			n, next, err := intArg(line, fields, i)
			if err != nil {
				return nil, err
			}
			ev.Depth, i = n, next
		case "seldepth":
			n, next, err := intArg(line, fields, i)
			if err != nil {
				return nil, err
			}
			ev.SelDepth, i = n, next
		case "multipv":
			n, next, err := intArg(line, fields, i)
			if err != nil {
				return nil, err
			}
			ev.MultiPV, i = n, next
		case "score":
			next, err := parseScore(&ev, line, fields, i+1)
			if err != nil {
				return nil, err
			}
			i = next
		case "nodes":
			n, next, err := int64Arg(line, fields, i)
			if err != nil {
				return nil, err
			}
			ev.Nodes, i = n, next
		case "nps":
			n, next, err := int64Arg(line, fields, i)
			if err != nil {
				return nil, err
			}
			ev.NPS, i = n, next
		case "time":
			n, next, err := int64Arg(line, fields, i)
			if err != nil {
				return nil, err
			}
			ev.TimeMS, i = n, next
		case "pv":
			pv, err := parsePV(line, fields[i+1:])
			if err != nil {
				return nil, err
			}
			ev.PV = pv
			i = len(fields)
		case "string":
			// Free text to end of line; informational only.
			i = len(fields)
		case "currmove", "currmovenumber", "hashfull", "tbhits", "cpuload", "wdl":
			i = skipArgs(fields, i+1)
		default:
			i = skipArgs(fields, i+1)
		}
	}
	return ev, nil
}

func parseScore(ev *InfoEvent, line string, fields []string, i int) (int, error) {
	if i+1 >= len(fields) {
		return 0, &ParseError{Line: line, Reason: "score without kind and value"}
	}
	kind, raw := fields[i], fields[i+1]
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ParseError{Line: line, Reason: "score " + kind + " " + raw + " is not a number"}
	}
	switch kind {
	case "cp":
		ev.Score = Score{CP: n}
	case "mate":
		ev.Score = Score{Mate: n, IsMate: true}
	default:
		return 0, &ParseError{Line: line, Reason: "unknown score kind " + kind}
	}
	ev.HasScore = true

	i += 2
	// Bound markers follow the value; keep-latest consumers do not care.
	for i < len(fields) && (fields[i] == "lowerbound" || fields[i] == "upperbound") {
		i++
	}
	return i, nil
}

func parsePV(line string, raw []string) ([]position.Move, error) {
	if len(raw) == 0 {
		return nil, &ParseError{Line: line, Reason: "pv without moves"}
	}
	pv := make([]position.Move, 0, len(raw))
	for _, tok := range raw {
		mv, err := position.ParseMove(tok)
		if err != nil {
			return nil, &ParseError{Line: line, Reason: "bad pv move " + tok}
		}
		pv = append(pv, mv)
	}
	return pv, nil
}

// intArg parses the single integer argument following fields[i].
func intArg(line string, fields []string, i int) (val, next int, err error) {
	if i+1 >= len(fields) {
		return 0, 0, &ParseError{Line: line, Reason: fields[i] + " without a value"}
	}
	n, aErr := strconv.Atoi(fields[i+1])
	if aErr != nil {
		return 0, 0, &ParseError{Line: line, Reason: fields[i] + " " + fields[i+1] + " is not a number"}
	}
	return n, i + 2, nil
}

func int64Arg(line string, fields []string, i int) (val int64, next int, err error) {
	if i+1 >= len(fields) {
		return 0, 0, &ParseError{Line: line, Reason: fields[i] + " without a value"}
	}
	n, aErr := strconv.ParseInt(fields[i+1], 10, 64)
	if aErr != nil {
		return 0, 0, &ParseError{Line: line, Reason: fields[i] + " " + fields[i+1] + " is not a number"}
	}
	return n, i + 2, nil
}

// skipArgs consumes consecutive numeric tokens after an unhandled key so the
// scan resumes at the next keyword.
func skipArgs(fields []string, i int) int {
	for i < len(fields) {
		if _, err := strconv.Atoi(fields[i]); err != nil {
			return i
		}
		i++
	}
	return i
}

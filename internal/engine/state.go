package engine

// State represents a stage in the session lifecycle.
type State int

const (
	StateStopped   State = iota // No process; initial and final state.
	StateStarting               // Process spawned, handshake in flight.
	StateReady                  // Handshake complete, accepting commands.
	StateAnalyzing              // A search is running.
	StateStopping               // Graceful shutdown in flight.
	StateCrashed                // Process died or stream went corrupt.
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateAnalyzing:
		return "analyzing"
	case StateStopping:
		return "stopping"
	case StateCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

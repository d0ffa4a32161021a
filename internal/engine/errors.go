package engine

import "errors"

var (
	// ErrEngineUnavailable reports a binary that is missing, unlaunchable,
	// or silent through the handshake window.
	ErrEngineUnavailable = errors.New("engine unavailable")

	// ErrEngineCrashed reports a process that exited outside of shutdown or
	// whose output stream went corrupt beyond tolerance.
	ErrEngineCrashed = errors.New("engine crashed")

	// ErrSessionBusy reports a command issued while an analysis is in
	// flight. Pool discipline makes this a caller bug; it is reported, not
	// queued.
	ErrSessionBusy = errors.New("session busy")

	// ErrSessionStopped reports a command issued to a session with no
	// process.
	ErrSessionStopped = errors.New("session stopped")

	// ErrPoolClosed reports an acquire against a pool that has shut down.
	ErrPoolClosed = errors.New("pool closed")
)

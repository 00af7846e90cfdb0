// Package engine hosts the supervisor that wires and runs the eight
// long-lived actors described in spec.md §2/§4.1, grounded on
// node/src/engine.rs's Engine::start/run: build all actors in
// dependency-safe order, start them in the mandated order, and race
// the first actor completion (or an external stop signal) to tear
// down every other actor — the Go idiom replacing the Rust
// NamedTask/Handle::abort() pattern via context.CancelFunc.
package engine

import (
	"errors"
	"fmt"
)

// Recoverable error classes (1-3 of spec §7): the caller degrades to
// its fallback and logs at warn; these never bring the engine down by
// themselves.
var (
	ErrTransportClosed = errors.New("engine: transport closed")
	ErrMailboxFull     = errors.New("engine: mailbox full past deadline")
	ErrStopRequested   = errors.New("engine: stop requested")
)

// FatalError wraps a class-5/6/7 error (malformed decode prefix,
// determinism violation, storage I/O) that the supervisor recognizes
// and uses to abort every actor, mirroring the teacher's layered
// sentinel-error-plus-wrapping style in core/errors and the
// EmissionCapHitError structured-context pattern from
// core/state/staking_rewards.go: the wrapped error always carries
// enough context (Actor, and for determinism violations, the
// expected/actual digest) to write a useful shutdown log line.
type FatalError struct {
	Actor string
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("engine: fatal error in actor %q: %v", e.Actor, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// DeterminismViolation is the class-6 fatal error: a state digest
// mismatch after Verify replay. This is always a correctness failure,
// never a network fault, and must never be silently tolerated.
type DeterminismViolation struct {
	View     uint64
	Expected [32]byte
	Actual   [32]byte
}

func (e *DeterminismViolation) Error() string {
	return fmt.Sprintf("engine: determinism violation at view %d: expected %x got %x", e.View, e.Expected[:8], e.Actual[:8])
}

// IsFatal reports whether err should trigger a full engine shutdown
// rather than a local fallback.
func IsFatal(err error) bool {
	var fatal *FatalError
	var determinism *DeterminismViolation
	return errors.As(err, &fatal) || errors.As(err, &determinism)
}

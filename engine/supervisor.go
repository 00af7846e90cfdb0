package engine

import (
	"context"
	"log/slog"
	"sync"
)

// Actor is one of the eight long-lived tasks the supervisor runs.
// Run must return promptly once ctx is cancelled.
type Actor struct {
	Name string
	Run  func(ctx context.Context) error
}

// StartOrder is the mandatory actor start order from spec.md §4.1:
// consensus proposes/verifies immediately on restart, so it must find
// application and marshal already draining before it can
// back-pressure them; application in turn depends on marshal and
// seeder being reachable.
var StartOrder = []string{
	"metrics",
	"seeder",
	"aggregation",
	"aggregator",
	"broadcast",
	"application",
	"marshal",
	"consensus",
}

// Supervisor builds and runs the actor set as a single
// "run-together/die-together" unit: the first actor to return, in
// either direction, or an external stop signal, tears every other
// actor down via context cancellation.
type Supervisor struct {
	log    *slog.Logger
	actors map[string]Actor
}

// New constructs a Supervisor from actors, which must name every entry
// in StartOrder (a missing name is a configuration error surfaced at
// Run time). Actors whose names are not in StartOrder are never
// started.
func New(log *slog.Logger, actors []Actor) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	byName := make(map[string]Actor, len(actors))
	for _, a := range actors {
		byName[a.Name] = a
	}
	return &Supervisor{log: log, actors: byName}
}

type completion struct {
	actor string
	err   error
}

// Run starts every actor in StartOrder and blocks until the first of:
// any actor returns, or stop fires. On return it has cancelled every
// actor's context and waited for all of them to exit.
func (s *Supervisor) Run(ctx context.Context, stop <-chan struct{}) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan completion, len(StartOrder))
	var wg sync.WaitGroup

	for _, name := range StartOrder {
		actor, ok := s.actors[name]
		if !ok {
			cancel()
			return &FatalError{Actor: name, Err: ErrStopRequested}
		}
		wg.Add(1)
		go func(a Actor) {
			defer wg.Done()
			err := a.Run(runCtx)
			done <- completion{actor: a.Name, err: err}
		}(actor)
	}

	var first completion
	select {
	case first = <-done:
		if first.err != nil {
			s.log.Error("engine: actor terminated with error, shutting down", "actor", first.actor, "error", first.err)
		} else {
			s.log.Warn("engine: actor terminated, shutting down", "actor", first.actor)
		}
	case <-stop:
		s.log.Warn("engine: stop signal raised, shutting down")
		first = completion{actor: "stop-signal"}
	case <-ctx.Done():
		first = completion{actor: "context", err: ctx.Err()}
	}

	cancel()
	wg.Wait()
	close(done)

	if first.err != nil {
		return first.err
	}
	return nil
}

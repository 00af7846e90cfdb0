package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func blockingActor(name string) Actor {
	return Actor{Name: name, Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
}

func allActors(overrides map[string]Actor) []Actor {
	actors := make([]Actor, 0, len(StartOrder))
	for _, name := range StartOrder {
		if a, ok := overrides[name]; ok {
			actors = append(actors, a)
			continue
		}
		actors = append(actors, blockingActor(name))
	}
	return actors
}

func TestSupervisorRunMissingActorIsFatal(t *testing.T) {
	sup := New(nil, allActors(nil)[:len(StartOrder)-1]) // omit "consensus"
	err := sup.Run(context.Background(), make(chan struct{}))
	var fatal *FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("expected FatalError for missing actor, got %v", err)
	}
	if fatal.Actor != "consensus" {
		t.Fatalf("expected missing actor 'consensus', got %q", fatal.Actor)
	}
}

func TestSupervisorRunTearsDownOnActorError(t *testing.T) {
	boom := errors.New("boom")
	overrides := map[string]Actor{
		"aggregator": {Name: "aggregator", Run: func(ctx context.Context) error {
			return boom
		}},
	}
	sup := New(nil, allActors(overrides))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := sup.Run(ctx, make(chan struct{}))
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom error propagated, got %v", err)
	}
}

func TestSupervisorRunStopSignal(t *testing.T) {
	sup := New(nil, allActors(nil))
	stop := make(chan struct{})
	close(stop)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := sup.Run(ctx, stop); err != nil {
		t.Fatalf("expected nil error on clean stop signal, got %v", err)
	}
}

func TestSupervisorRunAllActorsCancelledOnTeardown(t *testing.T) {
	cancelled := make(chan string, len(StartOrder))
	overrides := make(map[string]Actor, len(StartOrder))
	for _, name := range StartOrder {
		n := name
		overrides[n] = Actor{Name: n, Run: func(ctx context.Context) error {
			<-ctx.Done()
			cancelled <- n
			return ctx.Err()
		}}
	}
	sup := New(nil, allActors(overrides))
	stop := make(chan struct{})
	close(stop)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := sup.Run(ctx, stop); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen := make(map[string]bool)
	for i := 0; i < len(StartOrder); i++ {
		select {
		case name := <-cancelled:
			seen[name] = true
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for all actors to observe cancellation, got %d/%d", len(seen), len(StartOrder))
		}
	}
	for _, name := range StartOrder {
		if !seen[name] {
			t.Fatalf("actor %q never observed cancellation", name)
		}
	}
}

func TestIsFatal(t *testing.T) {
	if IsFatal(ErrTransportClosed) {
		t.Fatal("ErrTransportClosed should not be treated as fatal by itself")
	}
	if !IsFatal(&FatalError{Actor: "x", Err: ErrMailboxFull}) {
		t.Fatal("expected FatalError to be fatal")
	}
	if !IsFatal(&DeterminismViolation{View: 1}) {
		t.Fatal("expected DeterminismViolation to be fatal")
	}
}

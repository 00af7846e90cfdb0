// Package seeder accumulates per-view threshold-signature shares over
// the view number and, on reaching threshold, recovers the combined
// signature and publishes it as the view's Seed, unchanged from
// spec.md §4.4.
package seeder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"log/slog"
	"sync"

	"nhbchain/consensus"
	"nhbchain/consensus/automaton"
)

// ThresholdScheme is the same black-box signing collaborator consumed
// by consensus/engine (spec.md §1 non-goal). Recover returns the
// raw combined signature bytes; the seed itself is derived from them
// (see deriveSeed) since a BLS signature is not itself 32 bytes wide.
type ThresholdScheme interface {
	Share(msg []byte) ([]byte, error)
	Recover(msg []byte, shares [][]byte) ([]byte, error)
	Threshold() int
}

func deriveSeed(signature []byte) consensus.Seed {
	return consensus.Seed(sha256.Sum256(signature))
}

type viewShares struct {
	shares map[string][]byte
}

// waiter is one outstanding application wait for a view's seed.
type waiter struct {
	view  consensus.View
	reply chan consensus.Seed
}

// Seeder is the actor implementation. Call HandleShare as shares
// arrive from the network; call AwaitSeed to block (cancel-safe) for
// a view's recovered seed.
type Seeder struct {
	mu       sync.Mutex
	scheme   ThresholdScheme
	shares   map[consensus.View]*viewShares
	seeds    map[consensus.View]consensus.Seed
	waiters  map[consensus.View][]*waiter
	maxListeners int
	log      *slog.Logger
	reporter automaton.Reporter
}

// New constructs a Seeder. maxListeners bounds
// max_pending_seed_listeners (spec §4.4): once reached, the newest
// waiter for a view is failed immediately rather than queued
// unboundedly.
func New(scheme ThresholdScheme, reporter automaton.Reporter, maxListeners int, log *slog.Logger) *Seeder {
	if log == nil {
		log = slog.Default()
	}
	if maxListeners <= 0 {
		maxListeners = 64
	}
	return &Seeder{
		scheme:       scheme,
		shares:       make(map[consensus.View]*viewShares),
		seeds:        make(map[consensus.View]consensus.Seed),
		waiters:      make(map[consensus.View][]*waiter),
		maxListeners: maxListeners,
		log:          log,
		reporter:     reporter,
	}
}

func viewMessage(view consensus.View) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(view))
	return buf[:]
}

// HandleShare admits a validator's signature share for view. Once a
// threshold of distinct shares has been collected, the combined
// signature is recovered and published to any outstanding waiters.
func (s *Seeder) HandleShare(view consensus.View, validator string, share []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, done := s.seeds[view]; done {
		return
	}
	vs, ok := s.shares[view]
	if !ok {
		vs = &viewShares{shares: make(map[string][]byte)}
		s.shares[view] = vs
	}
	vs.shares[validator] = share
	if len(vs.shares) < s.scheme.Threshold() {
		return
	}

	collected := make([][]byte, 0, len(vs.shares))
	for _, sh := range vs.shares {
		collected = append(collected, sh)
	}
	sig, err := s.scheme.Recover(viewMessage(view), collected)
	if err != nil {
		s.log.Warn("seeder: recover failed", "view", view, "error", err)
		return
	}
	seed := deriveSeed(sig)
	s.seeds[view] = seed
	delete(s.shares, view)

	for _, w := range s.waiters[view] {
		select {
		case w.reply <- seed:
		default:
		}
	}
	delete(s.waiters, view)
}

// AwaitSeed blocks until view's seed is recovered, ctx is cancelled,
// or the listener cap is exceeded. On cancellation the caller should
// fall back to the all-zero seed per the engine's resolved open
// question for a Seeded-never-arrives timeout.
func (s *Seeder) AwaitSeed(ctx context.Context, view consensus.View) (consensus.Seed, bool) {
	s.mu.Lock()
	if seed, ok := s.seeds[view]; ok {
		s.mu.Unlock()
		return seed, true
	}
	if len(s.waiters[view]) >= s.maxListeners {
		s.mu.Unlock()
		s.log.Warn("seeder: max_pending_seed_listeners exceeded, failing newest waiter", "view", view)
		return consensus.Seed{}, false
	}
	w := &waiter{view: view, reply: make(chan consensus.Seed, 1)}
	s.waiters[view] = append(s.waiters[view], w)
	s.mu.Unlock()

	select {
	case seed := <-w.reply:
		return seed, true
	case <-ctx.Done():
		return consensus.Seed{}, false
	}
}

// Forget drops retained shares/seeds for views older than below,
// called by cmd/engined's seeder retention sweep with the current view
// minus view_retention_timeout.
func (s *Seeder) Forget(below consensus.View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for v := range s.shares {
		if v < below {
			delete(s.shares, v)
		}
	}
	for v := range s.seeds {
		if v < below {
			delete(s.seeds, v)
		}
	}
}

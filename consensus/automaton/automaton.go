// Package automaton implements the single mailbox that fulfills the
// Automaton, Relay, and Reporter capability sets the consensus engine
// requires of the application, grounded on the teacher's single
// Mailbox<E> in node/src/application/ingress.rs. Every request is a
// tagged message carrying a one-shot reply channel; every send races
// the mailbox's stop channel so a cancelled or shut-down application
// never blocks consensus.
package automaton

import (
	"context"
	"log/slog"

	"nhbchain/consensus"
)

// Automaton is the capability set consensus uses to build and verify
// payloads.
type Automaton interface {
	Genesis(ctx context.Context) consensus.Digest
	Propose(ctx context.Context, view consensus.View, parent consensus.Parent) <-chan consensus.Digest
	Verify(ctx context.Context, view consensus.View, parent consensus.Parent, payload consensus.Digest) <-chan bool
}

// Relay is the capability set consensus uses to disseminate a freshly
// built payload.
type Relay interface {
	Broadcast(ctx context.Context, payload consensus.Digest)
}

// Reporter is the capability set marshal/consensus use to notify the
// application of finalization and view ancestry/seed delivery.
type Reporter interface {
	Ancestry(ctx context.Context, view consensus.View, blocks []consensus.Block) consensus.Digest
	Finalized(ctx context.Context, block consensus.Block)
	Seeded(ctx context.Context, block consensus.Block, seed consensus.Seed)
}

// Handler implements the application's actual decision logic. Mailbox
// dispatches every request to a Handler running on the application
// actor's own goroutine, preserving per-mailbox FIFO ordering (spec
// §5 "Ordering").
type Handler interface {
	Genesis() consensus.Digest
	Propose(view consensus.View, parent consensus.Parent) consensus.Digest
	Verify(view consensus.View, parent consensus.Parent, payload consensus.Digest) bool
	Broadcast(payload consensus.Digest)
	Ancestry(view consensus.View, blocks []consensus.Block) consensus.Digest
	Finalized(block consensus.Block)
	Seeded(block consensus.Block, seed consensus.Seed)
}

type requestKind int

const (
	reqGenesis requestKind = iota
	reqPropose
	reqVerify
	reqBroadcast
	reqAncestry
	reqFinalized
	reqSeeded
)

type request struct {
	kind   requestKind
	view   consensus.View
	parent consensus.Parent
	payload consensus.Digest
	blocks []consensus.Block
	block  consensus.Block
	seed   consensus.Seed

	replyDigest chan consensus.Digest
	replyBool   chan bool
	replyDone   chan struct{}
}

// Mailbox is the single concrete type implementing Automaton, Relay,
// and Reporter, exactly as ingress.rs's Mailbox<E> does for
// commonware_consensus. Genesis/Propose/Verify/Ancestry/Finalized/
// Seeded/Broadcast all funnel through one buffered channel; the
// consuming goroutine (run by the application actor) is the only
// place Handler methods are ever called from.
type Mailbox struct {
	requests chan request
	stopped  <-chan struct{}
	genesis  consensus.Digest
	log      *slog.Logger
}

// NewMailbox constructs a Mailbox with the given bounded capacity
// (spec's mailbox_size tunable) and genesis fallback digest.
func NewMailbox(capacity int, genesis consensus.Digest, stopped <-chan struct{}, log *slog.Logger) *Mailbox {
	if capacity <= 0 {
		capacity = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Mailbox{
		requests: make(chan request, capacity),
		stopped:  stopped,
		genesis:  genesis,
		log:      log,
	}
}

// Run drains the mailbox into handler until ctx is cancelled or the
// stop channel fires, matching the single-goroutine, FIFO-per-mailbox
// dispatch model of spec §5.
func (m *Mailbox) Run(ctx context.Context, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopped:
			return
		case req := <-m.requests:
			m.dispatch(handler, req)
		}
	}
}

func (m *Mailbox) dispatch(h Handler, req request) {
	switch req.kind {
	case reqGenesis:
		select {
		case req.replyDigest <- h.Genesis():
		default:
		}
	case reqPropose:
		select {
		case req.replyDigest <- h.Propose(req.view, req.parent):
		default:
		}
	case reqVerify:
		select {
		case req.replyBool <- h.Verify(req.view, req.parent, req.payload):
		default:
		}
	case reqBroadcast:
		h.Broadcast(req.payload)
	case reqAncestry:
		select {
		case req.replyDigest <- h.Ancestry(req.view, req.blocks):
		default:
		}
	case reqFinalized:
		h.Finalized(req.block)
		if req.replyDone != nil {
			close(req.replyDone)
		}
	case reqSeeded:
		h.Seeded(req.block, req.seed)
		if req.replyDone != nil {
			close(req.replyDone)
		}
	}
}

// send races enqueueing req into the mailbox against ctx cancellation
// and the stop signal, exactly as ingress.rs's select! races
// `stopped`. A full mailbox blocks the caller until space frees up;
// a cancelled ctx or a fired stop signal drops the request (spec §5
// "Backpressure").
func (m *Mailbox) send(ctx context.Context, req request) bool {
	select {
	case m.requests <- req:
		return true
	case <-ctx.Done():
		return false
	case <-m.stopped:
		return false
	default:
		select {
		case m.requests <- req:
			return true
		case <-ctx.Done():
			return false
		case <-m.stopped:
			return false
		}
	}
}

// Genesis returns the genesis digest, falling back to the configured
// constant if the application is unreachable.
func (m *Mailbox) Genesis(ctx context.Context) consensus.Digest {
	reply := make(chan consensus.Digest, 1)
	req := request{kind: reqGenesis, replyDigest: reply}
	if !m.send(ctx, req) {
		m.log.Warn("automaton: genesis fallback", "reason", "mailbox unreachable")
		return m.genesis
	}
	select {
	case d := <-reply:
		return d
	case <-ctx.Done():
		return m.genesis
	case <-m.stopped:
		return m.genesis
	}
}

// Propose asks the application to build a payload for view, falling
// back to the parent's digest if the application cannot answer
// (spec's documented degraded-but-safe fallback).
func (m *Mailbox) Propose(ctx context.Context, view consensus.View, parent consensus.Parent) <-chan consensus.Digest {
	out := make(chan consensus.Digest, 1)
	reply := make(chan consensus.Digest, 1)
	req := request{kind: reqPropose, view: view, parent: parent, replyDigest: reply}
	if !m.send(ctx, req) {
		m.log.Warn("automaton: propose fallback", "view", view)
		out <- parent.Digest
		close(out)
		return out
	}
	go func() {
		defer close(out)
		select {
		case d := <-reply:
			out <- d
		case <-ctx.Done():
			out <- parent.Digest
		case <-m.stopped:
			out <- parent.Digest
		}
	}()
	return out
}

// Verify asks the application to validate payload under parent,
// falling back to false (safely reject) if unreachable.
func (m *Mailbox) Verify(ctx context.Context, view consensus.View, parent consensus.Parent, payload consensus.Digest) <-chan bool {
	out := make(chan bool, 1)
	reply := make(chan bool, 1)
	req := request{kind: reqVerify, view: view, parent: parent, payload: payload, replyBool: reply}
	if !m.send(ctx, req) {
		m.log.Warn("automaton: verify fallback", "view", view)
		out <- false
		close(out)
		return out
	}
	go func() {
		defer close(out)
		select {
		case b := <-reply:
			out <- b
		case <-ctx.Done():
			out <- false
		case <-m.stopped:
			out <- false
		}
	}()
	return out
}

// Broadcast disseminates a freshly built payload; dropped silently if
// the mailbox is unreachable (spec's documented fallback: drop).
func (m *Mailbox) Broadcast(ctx context.Context, payload consensus.Digest) {
	m.send(ctx, request{kind: reqBroadcast, payload: payload})
}

// Ancestry delivers a contiguous ancestry chain for replay/backfill;
// dropped silently on shutdown.
func (m *Mailbox) Ancestry(ctx context.Context, view consensus.View, blocks []consensus.Block) consensus.Digest {
	reply := make(chan consensus.Digest, 1)
	req := request{kind: reqAncestry, view: view, blocks: blocks, replyDigest: reply}
	if !m.send(ctx, req) {
		return consensus.Digest{}
	}
	select {
	case d := <-reply:
		return d
	case <-ctx.Done():
		return consensus.Digest{}
	case <-m.stopped:
		return consensus.Digest{}
	}
}

// Finalized notifies the application a block has been finalized.
// Per spec §4.2's ordering guarantee this always arrives after the
// block's corresponding Verify.
func (m *Mailbox) Finalized(ctx context.Context, block consensus.Block) {
	m.send(ctx, request{kind: reqFinalized, block: block})
}

// Seeded delivers the recovered seed for block's view. Seeded for a
// view may race Finalized of the block at that view; consumers must
// tolerate both orderings (spec §4.2).
func (m *Mailbox) Seeded(ctx context.Context, block consensus.Block, seed consensus.Seed) {
	m.send(ctx, request{kind: reqSeeded, block: block, seed: seed})
}

// Package engine implements the view-based BFT state machine described
// in spec.md §3.1/§4.2, adapted from the teacher's from-scratch
// Tendermint-style engine in consensus/bft/bft.go: the same
// (propose -> prevote -> precommit -> commit) phase progression and
// deterministic, stake-weighted proposer selection, renamed from the
// teacher's (Height, Round) pair to the spec's single linear View
// counter and generalized from per-validator vote tallying to
// threshold-signature-share collection (the transport and signature
// scheme themselves are black-box collaborators per spec.md §1).
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"nhbchain/consensus"
	"nhbchain/consensus/automaton"
)

// Phase names the current stage within a view.
type Phase int

const (
	PhasePropose Phase = iota
	PhasePrevote
	PhasePrecommit
	PhaseCommit
)

// ThresholdScheme is the injected black-box signing collaborator
// (spec.md §1 non-goal: cryptographic primitives are black-box
// interfaces). Share produces this validator's partial signature over
// a message; Recover combines a quorum of shares into the final
// threshold signature.
type ThresholdScheme interface {
	Share(msg []byte) ([]byte, error)
	Recover(msg []byte, shares [][]byte) ([]byte, error)
}

// Validator is one member of the weighted validator set: voting power
// is stake plus an engagement score, matching the teacher's
// selectProposer weighting in consensus/bft/bft.go.
type Validator struct {
	ID     string
	Stake  *big.Int
	Engagement *big.Int
}

// TimeoutConfig bounds how long the engine waits in each phase before
// moving on, mirroring the teacher's TimeoutConfig in bft.go.
type TimeoutConfig struct {
	Propose   time.Duration
	Prevote   time.Duration
	Precommit time.Duration
}

func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		Propose:   2 * time.Second,
		Prevote:   2 * time.Second,
		Precommit: 2 * time.Second,
	}
}

type shareSet struct {
	shares        [][]byte
	weight        *big.Int
	seenValidator map[string]bool
}

func newShareSet() *shareSet {
	return &shareSet{weight: big.NewInt(0), seenValidator: make(map[string]bool)}
}

// Engine drives one validator's participation in threshold-simplex
// BFT. It is not safe for concurrent use from outside Run/HandleShare.
type Engine struct {
	mu sync.Mutex

	id         string
	validators map[string]*Validator
	totalPower *big.Int

	scheme ThresholdScheme
	app    automaton.Automaton
	relay  automaton.Relay

	timeouts TimeoutConfig
	log      *slog.Logger

	view              consensus.View
	phase             Phase
	lastFinalized     consensus.Digest
	activeProposal    *consensus.Digest
	prevoteShares     *shareSet
	precommitShares   *shareSet

	shareCh chan incomingShare

	onFinalized func(view consensus.View, digest consensus.Digest)
}

type incomingShare struct {
	view      consensus.View
	phase     Phase
	validator string
	share     []byte
}

// Option configures an Engine at construction.
type Option func(*Engine)

func WithTimeouts(cfg TimeoutConfig) Option {
	return func(e *Engine) { e.timeouts = cfg }
}

func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithFinalizedHook registers a callback invoked with the freshly
// finalized (view, digest) pair at the end of each successful view,
// the seam the Reporter delivery (spec.md §4.2's Finalized/Seeded
// notifications) and seed-retention fallback hang off of, one layer
// above the engine itself.
func WithFinalizedHook(fn func(view consensus.View, digest consensus.Digest)) Option {
	return func(e *Engine) { e.onFinalized = fn }
}

// NewEngine constructs an Engine for the given validator ID against
// validators, using scheme for threshold signing and app/relay as the
// Automaton/Relay capability sets.
func NewEngine(id string, validators []Validator, scheme ThresholdScheme, app automaton.Automaton, relay automaton.Relay, opts ...Option) *Engine {
	set := make(map[string]*Validator, len(validators))
	total := big.NewInt(0)
	for i := range validators {
		v := validators[i]
		set[v.ID] = &v
		power := new(big.Int).Add(v.Stake, v.Engagement)
		total.Add(total, power)
	}
	e := &Engine{
		id:         id,
		validators: set,
		totalPower: total,
		scheme:     scheme,
		app:        app,
		relay:      relay,
		timeouts:   DefaultTimeoutConfig(),
		log:        slog.Default(),
		shareCh:    make(chan incomingShare, 256),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func votingPower(v *Validator) *big.Int {
	return new(big.Int).Add(v.Stake, v.Engagement)
}

// twoThirdsThreshold returns ceil(2*total/3), the threshold quorum
// weight required to advance a phase.
func (e *Engine) twoThirdsThreshold() *big.Int {
	num := new(big.Int).Mul(e.totalPower, big.NewInt(2))
	num.Add(num, big.NewInt(2))
	return num.Quo(num, big.NewInt(3))
}

// SelectProposer deterministically derives the proposer for view from
// sha256(lastFinalizedDigest || view), weighted by voting power,
// exactly as the teacher's selectProposer derives from
// (lastCommitHash, round) — carried forward unchanged per spec.md's
// determinism invariant (§3.3-1).
func (e *Engine) SelectProposer(lastFinalized consensus.Digest, view consensus.View) string {
	if e.totalPower.Sign() <= 0 {
		return ""
	}
	var viewBytes [8]byte
	binary.BigEndian.PutUint64(viewBytes[:], uint64(view))
	h := sha256.New()
	h.Write(lastFinalized[:])
	h.Write(viewBytes[:])
	digest := h.Sum(nil)

	target := new(big.Int).Mod(new(big.Int).SetBytes(digest), e.totalPower)

	ids := sortedValidatorIDs(e.validators)
	cursor := big.NewInt(0)
	for _, id := range ids {
		cursor.Add(cursor, votingPower(e.validators[id]))
		if target.Cmp(cursor) < 0 {
			return id
		}
	}
	return ids[len(ids)-1]
}

func sortedValidatorIDs(set map[string]*Validator) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	// simple insertion sort keeps determinism without importing sort
	// for what is typically a small validator set.
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	return ids
}

// Run drives the view loop until ctx is cancelled. Each view proposes
// (if this validator is the proposer), collects prevote shares, then
// precommit shares, advancing to commit once threshold weight is
// reached in each phase, exactly mirroring the teacher's runRound
// select loop structure generalized from vote-counting to
// share-collection.
func (e *Engine) Run(ctx context.Context) error {
	for {
		if err := e.runView(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (e *Engine) runView(ctx context.Context) error {
	e.mu.Lock()
	view := e.view
	e.phase = PhasePropose
	e.prevoteShares = newShareSet()
	e.precommitShares = newShareSet()
	proposer := e.SelectProposer(e.lastFinalized, view)
	e.mu.Unlock()

	proposeCtx, cancelPropose := context.WithTimeout(ctx, e.timeouts.Propose)
	defer cancelPropose()

	var proposal consensus.Digest
	if proposer == e.id {
		digestCh := e.app.Propose(proposeCtx, view, consensus.Parent{View: view - 1, Digest: e.lastFinalized})
		select {
		case proposal = <-digestCh:
		case <-proposeCtx.Done():
			e.log.Warn("engine: propose timed out", "view", view)
			return nil
		}
		e.relay.Broadcast(proposeCtx, proposal)
	} else {
		select {
		case <-proposeCtx.Done():
			e.log.Warn("engine: no proposal received", "view", view)
			return nil
		case incoming := <-e.shareCh:
			if incoming.view == view {
				// A peer's proposal arrives out of band via the
				// broadcast buffer in the full system; the engine
				// itself only tracks share-collection progress here.
				_ = incoming
			}
		}
	}

	verifyCh := e.app.Verify(ctx, view, consensus.Parent{View: view - 1, Digest: e.lastFinalized}, proposal)
	var ok bool
	select {
	case ok = <-verifyCh:
	case <-ctx.Done():
		return ctx.Err()
	}
	if !ok {
		e.log.Warn("engine: proposal failed verification", "view", view)
		return nil
	}

	if err := e.collectPhase(ctx, view, PhasePrevote, e.prevoteShares); err != nil {
		return err
	}
	if err := e.collectPhase(ctx, view, PhasePrecommit, e.precommitShares); err != nil {
		return err
	}

	e.mu.Lock()
	e.phase = PhaseCommit
	e.lastFinalized = proposal
	e.view = view + 1
	hook := e.onFinalized
	e.mu.Unlock()

	// Finalized/Seeded delivery to the Reporter capability is left to
	// the registered hook (cmd/engined's hook calls the mailbox); the
	// engine itself only tracks the finalized digest for the next
	// view's proposer-selection seed, and notifies that hook.
	if hook != nil {
		hook(view, proposal)
	}
	return nil
}

func (e *Engine) collectPhase(ctx context.Context, view consensus.View, phase Phase, set *shareSet) error {
	threshold := e.twoThirdsThreshold()
	for set.weight.Cmp(threshold) < 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case share := <-e.shareCh:
			if share.view != view || share.phase != phase {
				continue
			}
			if set.seenValidator[share.validator] {
				continue
			}
			v, known := e.validators[share.validator]
			if !known {
				continue
			}
			set.seenValidator[share.validator] = true
			set.weight.Add(set.weight, votingPower(v))
			set.shares = append(set.shares, share.share)
		}
	}
	return nil
}

// HandleShare admits a threshold-signature share from a peer into the
// current view's phase collection. Safe for concurrent use.
func (e *Engine) HandleShare(view consensus.View, phase Phase, validator string, share []byte) {
	select {
	case e.shareCh <- incomingShare{view: view, phase: phase, validator: validator, share: share}:
	default:
		e.log.Warn("engine: share mailbox full, dropping", "view", view, "validator", validator)
	}
}

// CurrentView reports the engine's current view, for diagnostics.
func (e *Engine) CurrentView() consensus.View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view
}

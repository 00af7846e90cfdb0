// Package application is the automaton.Handler running on the
// "application" actor: it owns the economy state machine and the
// bbolt bucket it is persisted in, grounded on the teacher's
// StateProcessor pattern (core/state) generalized from account/token
// ledgers to the casino-economy structs in package economy. Every
// method here runs on a single goroutine (automaton.Mailbox.Run's
// consumer), so no locking is needed around the House/Staker/Vault
// state it owns.
package application

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"log/slog"

	"go.etcd.io/bbolt"

	"nhbchain/consensus"
	"nhbchain/economy"
)

var bucketHouse = []byte("house")

// Handler implements consensus/automaton.Handler against the economy
// state machine. Propose/Verify derive a payload digest
// deterministically from (parent digest, view, house state digest),
// matching spec.md's requirement that verification be pure replay: no
// handler method consults wall-clock time or randomness outside of
// the seed delivered via Seeded.
type Handler struct {
	db     *bbolt.DB
	log    *slog.Logger
	house  *economy.HouseState
	genesis consensus.Digest

	height uint64
	feed   chan finalizedEntry
}

type finalizedEntry struct {
	height uint64
	digest consensus.Digest
}

// Feed adapts Handler's Finalized deliveries into an
// aggregator.FinalizedFeed, so the aggregation driver advances its
// window directly off the application's own finalization stream
// rather than polling marshal.
type Feed struct {
	ch <-chan finalizedEntry
}

// NextFinalized implements aggregator.FinalizedFeed.
func (f Feed) NextFinalized(ctx context.Context) (uint64, consensus.Digest, bool) {
	select {
	case entry, ok := <-f.ch:
		if !ok {
			return 0, consensus.Digest{}, false
		}
		return entry.height, entry.digest, true
	case <-ctx.Done():
		return 0, consensus.Digest{}, false
	}
}

// New constructs a Handler, loading HouseState from bucketHouse if
// present or seeding a fresh one (spec.md §9's documented zero-value
// genesis state) with the configured jackpot bases. threeCardBase and
// uthBase must be identical across every validator's configuration:
// they seed the genesis state digest, so a mismatch would make
// otherwise-identical validators disagree on Propose/Verify from
// block zero.
func New(db *bbolt.DB, log *slog.Logger, threeCardBase, uthBase uint64) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{db: db, log: log, house: economy.NewHouseState(threeCardBase, uthBase, 0), feed: make(chan finalizedEntry, 64)}
	err := db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketHouse)
		if err != nil {
			return err
		}
		raw := b.Get([]byte("state"))
		if len(raw) == 0 {
			return nil
		}
		return h.house.UnmarshalBinary(raw)
	})
	if err != nil {
		return nil, err
	}
	h.genesis = sha256.Sum256([]byte("engine-genesis-v1"))
	return h, nil
}

func (h *Handler) Genesis() consensus.Digest {
	return h.genesis
}

// Propose derives a payload digest from the parent digest, view, and
// the current house-state digest so that any two validators holding
// the same state propose the same payload for the same (parent, view)
// pair, matching spec.md §3's determinism invariant.
func (h *Handler) Propose(view consensus.View, parent consensus.Parent) consensus.Digest {
	return h.digestFor(view, parent)
}

// Verify recomputes the same digest and compares; it never executes
// the payload's effects, only checks them reproducible (spec.md §4.2,
// "Verify must be side-effect free").
func (h *Handler) Verify(view consensus.View, parent consensus.Parent, payload consensus.Digest) bool {
	return h.digestFor(view, parent) == payload
}

func (h *Handler) digestFor(view consensus.View, parent consensus.Parent) consensus.Digest {
	var buf [8]byte
	hasher := sha256.New()
	hasher.Write(parent.Digest[:])
	binary.BigEndian.PutUint64(buf[:], uint64(view))
	hasher.Write(buf[:])
	stateDigest := h.stateDigest()
	hasher.Write(stateDigest[:])
	var out consensus.Digest
	copy(out[:], hasher.Sum(nil))
	return out
}

func (h *Handler) stateDigest() consensus.Digest {
	raw, err := h.house.MarshalBinary()
	if err != nil {
		h.log.Error("application: house state marshal failed", "error", err)
		return consensus.Digest{}
	}
	return sha256.Sum256(raw)
}

func (h *Handler) Broadcast(payload consensus.Digest) {
	h.log.Debug("application: broadcast", "digest", payload)
}

// Ancestry is asked to pick a canonical tip out of a contested
// ancestry chain; this handler always extends the last (highest-view)
// block supplied, mirroring the teacher's longest-chain tiebreak.
func (h *Handler) Ancestry(view consensus.View, blocks []consensus.Block) consensus.Digest {
	if len(blocks) == 0 {
		return consensus.Digest{}
	}
	tip := blocks[0]
	for _, b := range blocks[1:] {
		if b.View > tip.View {
			tip = b
		}
	}
	return tip.Digest
}

// Finalized applies a finalized block's effects to house state and
// persists the result. The demonstration effect distributes the
// block's payload (interpreted as a little-endian uint64 staking
// reward amount, zero if absent/short) across all staked voting
// power, exactly the scenario exercised by economy's staking-reward
// test.
func (h *Handler) Finalized(block consensus.Block) {
	var reward uint64
	if len(block.Payload) >= 8 {
		reward = binary.LittleEndian.Uint64(block.Payload[:8])
	}
	if reward > 0 {
		h.house.DistributeStakingReward(reward)
	}
	raw, err := h.house.MarshalBinary()
	if err != nil {
		h.log.Error("application: house state marshal failed", "error", err)
		return
	}
	err = h.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketHouse)
		return b.Put([]byte("state"), raw)
	})
	if err != nil {
		h.log.Error("application: house state persist failed", "error", err)
		return
	}
	h.height++
	select {
	case h.feed <- finalizedEntry{height: h.height, digest: block.Digest}:
	default:
		h.log.Warn("application: finalized feed full, dropping aggregation tick", "height", h.height)
	}
}

// Feed returns the aggregator.FinalizedFeed backed by this handler's
// own Finalized deliveries.
func (h *Handler) Feed() Feed {
	return Feed{ch: h.feed}
}

func (h *Handler) Seeded(block consensus.Block, seed consensus.Seed) {
	h.log.Debug("application: seeded", "view", block.View, "zero", seed.IsZero())
}

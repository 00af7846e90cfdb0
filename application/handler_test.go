package application

import (
	"context"
	"encoding/binary"
	"path/filepath"
	"testing"
	"time"

	"go.etcd.io/bbolt"

	"nhbchain/consensus"
)

func openTestHandler(t *testing.T) *Handler {
	t.Helper()
	path := filepath.Join(t.TempDir(), "application.bbolt")
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		t.Fatalf("open bbolt: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	h, err := New(db, nil, 1_000_000, 2_000_000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

func TestProposeVerifyAgree(t *testing.T) {
	h := openTestHandler(t)
	parent := consensus.Parent{View: 0, Digest: consensus.Digest{1}}
	payload := h.Propose(1, parent)
	if !h.Verify(1, parent, payload) {
		t.Fatal("expected verify to accept the handler's own proposal")
	}
}

func TestVerifyRejectsWrongPayload(t *testing.T) {
	h := openTestHandler(t)
	parent := consensus.Parent{View: 0, Digest: consensus.Digest{1}}
	if h.Verify(1, parent, consensus.Digest{99}) {
		t.Fatal("expected verify to reject an unrelated digest")
	}
}

func TestProposeDifferentViewsYieldDifferentDigests(t *testing.T) {
	h := openTestHandler(t)
	parent := consensus.Parent{View: 0, Digest: consensus.Digest{1}}
	d1 := h.Propose(1, parent)
	d2 := h.Propose(2, parent)
	if d1 == d2 {
		t.Fatal("expected different views to produce different digests")
	}
}

func TestAncestryPicksHighestView(t *testing.T) {
	h := openTestHandler(t)
	blocks := []consensus.Block{
		{View: 1, Digest: consensus.Digest{1}},
		{View: 5, Digest: consensus.Digest{5}},
		{View: 3, Digest: consensus.Digest{3}},
	}
	tip := h.Ancestry(1, blocks)
	if tip != (consensus.Digest{5}) {
		t.Fatalf("expected tip to be the highest-view block, got %v", tip)
	}
}

func TestAncestryEmptyReturnsZero(t *testing.T) {
	h := openTestHandler(t)
	if got := h.Ancestry(1, nil); got != (consensus.Digest{}) {
		t.Fatalf("expected zero digest for empty ancestry, got %v", got)
	}
}

func TestFinalizedAppliesRewardAndFeedsAggregation(t *testing.T) {
	h := openTestHandler(t)
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint64(payload, 100)
	block := consensus.Block{View: 1, Digest: consensus.Digest{7}, Payload: payload}

	h.Finalized(block)

	if h.house.StakingRewardCarry != 100 {
		t.Fatalf("expected reward carried (zero voting power), got %d", h.house.StakingRewardCarry)
	}

	feed := h.Feed()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	height, digest, ok := feed.NextFinalized(ctx)
	if !ok {
		t.Fatal("expected a finalized entry on the feed")
	}
	if height != 1 || digest != block.Digest {
		t.Fatalf("unexpected feed entry: height=%d digest=%v", height, digest)
	}
}

func TestFinalizedPersistsStateAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "application.bbolt")
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		t.Fatalf("open bbolt: %v", err)
	}
	defer db.Close()

	h, err := New(db, nil, 1_000_000, 2_000_000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint64(payload, 50)
	h.Finalized(consensus.Block{View: 1, Digest: consensus.Digest{1}, Payload: payload})

	reloaded, err := New(db, nil, 1_000_000, 2_000_000)
	if err != nil {
		t.Fatalf("New (reload): %v", err)
	}
	if reloaded.house.StakingRewardCarry != 50 {
		t.Fatalf("expected persisted carry of 50, got %d", reloaded.house.StakingRewardCarry)
	}
}

func TestGenesisDigestStable(t *testing.T) {
	h1 := openTestHandler(t)
	h2 := openTestHandler(t)
	if h1.Genesis() != h2.Genesis() {
		t.Fatal("expected genesis digest to be a fixed constant across handlers")
	}
}

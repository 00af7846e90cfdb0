package marshal

import (
	"path/filepath"
	"testing"

	"go.etcd.io/bbolt"

	"nhbchain/consensus"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "marshal.bbolt")
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		t.Fatalf("open bbolt: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store, err := Open(db, FreezerConfig{TableResizeFrequency: 1000, TableResizeChunkSize: 128}, 8, 10)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return store
}

func TestEncodeDecodeBlockRoundTrip(t *testing.T) {
	block := consensus.Block{
		View:    42,
		Digest:  consensus.Digest{1, 2, 3},
		Parent:  consensus.Digest{4, 5, 6},
		Payload: []byte("hello world"),
	}
	encoded := encodeBlock(block)
	decoded, err := decodeBlock(encoded)
	if err != nil {
		t.Fatalf("decodeBlock: %v", err)
	}
	if decoded != block {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, block)
	}
}

func TestDecodeBlockTruncatedPrefix(t *testing.T) {
	if _, err := decodeBlock([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for truncated prefix")
	}
}

func TestDecodeBlockTruncatedPayload(t *testing.T) {
	block := consensus.Block{View: 1, Payload: []byte("0123456789")}
	encoded := encodeBlock(block)
	truncated := encoded[:len(encoded)-5]
	if _, err := decodeBlock(truncated); err == nil {
		t.Fatal("expected error for truncated payload")
	}
}

func TestAppendAndFinalize(t *testing.T) {
	store := openTestStore(t)
	block := consensus.Block{View: 1, Digest: consensus.Digest{9}}
	store.Append(block)

	if _, ok := store.ByDigest(block.Digest); !ok {
		t.Fatal("expected block reachable via unfinalized log before finalize")
	}

	if err := store.Finalize(1, block); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	got, ok, err := store.ByHeight(1)
	if err != nil {
		t.Fatalf("ByHeight: %v", err)
	}
	if !ok || got.Digest != block.Digest {
		t.Fatalf("expected finalized block at height 1, got %+v ok=%v", got, ok)
	}
}

func TestAncestryWalksBackToGenesis(t *testing.T) {
	store := openTestStore(t)
	genesis := consensus.Block{View: 0, Digest: consensus.Digest{1}}
	child := consensus.Block{View: 1, Digest: consensus.Digest{2}, Parent: genesis.Digest}
	grandchild := consensus.Block{View: 2, Digest: consensus.Digest{3}, Parent: child.Digest}

	store.Append(genesis)
	store.Append(child)
	store.Append(grandchild)

	chain := store.Ancestry(grandchild.Digest)
	if len(chain) != 3 {
		t.Fatalf("expected chain of 3 blocks, got %d", len(chain))
	}
	if chain[0].Digest != grandchild.Digest || chain[2].Digest != genesis.Digest {
		t.Fatalf("unexpected ancestry order: %+v", chain)
	}
}

func TestAncestryBoundedByMaxRepair(t *testing.T) {
	store := openTestStore(t)
	store.maxRepair = 2

	var prev consensus.Digest
	var tip consensus.Digest
	for i := 0; i < 5; i++ {
		var d consensus.Digest
		d[0] = byte(i + 1)
		block := consensus.Block{View: consensus.View(i), Digest: d, Parent: prev}
		store.Append(block)
		prev = d
		tip = d
	}

	chain := store.Ancestry(tip)
	if len(chain) > 2 {
		t.Fatalf("expected ancestry bounded to 2 entries, got %d", len(chain))
	}
}

func TestPruneBelowRetentionWindow(t *testing.T) {
	store := openTestStore(t)
	old := consensus.Block{View: 1, Digest: consensus.Digest{1}}
	recent := consensus.Block{View: 50, Digest: consensus.Digest{2}}
	store.Append(old)
	store.Append(recent)

	store.PruneBelow(50)

	if _, ok := store.ByDigest(old.Digest); ok {
		t.Fatal("expected old unfinalized block pruned")
	}
	if _, ok := store.ByDigest(recent.Digest); !ok {
		t.Fatal("expected recent unfinalized block retained")
	}
}

func TestPruneBelowNoopWhenBelowRetention(t *testing.T) {
	store := openTestStore(t)
	block := consensus.Block{View: 1, Digest: consensus.Digest{1}}
	store.Append(block)

	store.PruneBelow(5) // retention is 10, currentView < retention: no-op

	if _, ok := store.ByDigest(block.Digest); !ok {
		t.Fatal("expected block retained when currentView is below the retention window")
	}
}

func TestByHeightMissing(t *testing.T) {
	store := openTestStore(t)
	_, ok, err := store.ByHeight(999)
	if err != nil {
		t.Fatalf("ByHeight: %v", err)
	}
	if ok {
		t.Fatal("expected no block at unfinalized height")
	}
}

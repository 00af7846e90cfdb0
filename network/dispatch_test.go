package network

import (
	"context"
	"log/slog"
	"net"
	"os"
	"testing"

	"go.etcd.io/bbolt"

	"nhbchain/aggregator"
	"nhbchain/consensus"
	"nhbchain/consensus/automaton"
	"nhbchain/crypto"
	"nhbchain/marshal"
	"nhbchain/p2p"
	"nhbchain/seeder"
)

type fakeScheme struct{ threshold int }

func (f *fakeScheme) Share(msg []byte) ([]byte, error)                { return []byte("share"), nil }
func (f *fakeScheme) Recover(msg []byte, shares [][]byte) ([]byte, error) { return []byte("combined"), nil }
func (f *fakeScheme) Threshold() int                                  { return f.threshold }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func newHarness(t *testing.T) (*Dispatcher, *marshal.Store, *seeder.Seeder, *aggregator.Aggregator, *p2p.Server) {
	t.Helper()
	dbPath := t.TempDir() + "/dispatch.bbolt"
	db, err := bbolt.Open(dbPath, 0o600, nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := marshal.Open(db, marshal.FreezerConfig{TableResizeFrequency: 10, TableResizeChunkSize: 10}, 8, consensus.View(100))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	stopped := make(chan struct{})
	t.Cleanup(func() { close(stopped) })
	mailbox := automaton.NewMailbox(16, consensus.Digest{}, stopped, testLogger())

	sd := seeder.New(&fakeScheme{threshold: 2}, mailbox, 4, testLogger())

	agg, err := aggregator.New(db, &fakeScheme{threshold: 2}, testLogger())
	if err != nil {
		t.Fatalf("open aggregator: %v", err)
	}

	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	server := p2p.NewServer(freeAddr(t), nil, key, 1)

	d := New(server, store, sd, agg, mailbox, []string{"validator-0", "validator-1"}, testLogger())
	server.SetHandler(d)
	return d, store, sd, agg, server
}

func mustMessage(t *testing.T, msg *p2p.Message, err error) *p2p.Message {
	t.Helper()
	if err != nil {
		t.Fatalf("build message: %v", err)
	}
	return msg
}

func TestDispatcherPendingAppendsToStore(t *testing.T) {
	d, store, _, _, _ := newHarness(t)
	digest := consensus.Digest{0x01}
	block := consensus.Block{View: 1, Digest: digest}
	msg := mustMessage(t, p2p.NewPendingMessage(p2p.PendingPayload{View: 1, Block: block}))

	if err := d.HandleMessageFrom("peer-a", msg); err != nil {
		t.Fatalf("handle pending: %v", err)
	}
	if _, ok := store.ByDigest(digest); !ok {
		t.Fatal("expected pending block appended to store")
	}
}

func TestDispatcherRecoveredAppendsToStore(t *testing.T) {
	d, store, _, _, _ := newHarness(t)
	digest := consensus.Digest{0x02}
	block := consensus.Block{View: 3, Digest: digest}
	msg := mustMessage(t, p2p.NewRecoveredMessage(p2p.RecoveredPayload{Height: 3, Block: block}))

	if err := d.HandleMessageFrom("peer-a", msg); err != nil {
		t.Fatalf("handle recovered: %v", err)
	}
	if _, ok := store.ByDigest(digest); !ok {
		t.Fatal("expected recovered block appended to store")
	}
}

func TestDispatcherResolverResponseInsertsFoundBlock(t *testing.T) {
	d, store, _, _, _ := newHarness(t)
	digest := consensus.Digest{0x03}
	block := consensus.Block{View: 1, Digest: digest}
	msg := mustMessage(t, p2p.NewResolverResponseMessage(p2p.ResolverResponsePayload{
		Digest: digest, Block: block, Found: true,
	}))

	if err := d.HandleMessageFrom("peer-a", msg); err != nil {
		t.Fatalf("handle resolver response: %v", err)
	}
	if _, ok := store.ByDigest(digest); !ok {
		t.Fatal("expected resolved block inserted into store")
	}
}

func TestDispatcherResolverResponseIgnoresNotFound(t *testing.T) {
	d, store, _, _, _ := newHarness(t)
	digest := consensus.Digest{0x04}
	msg := mustMessage(t, p2p.NewResolverResponseMessage(p2p.ResolverResponsePayload{
		Digest: digest, Found: false,
	}))

	if err := d.HandleMessageFrom("peer-a", msg); err != nil {
		t.Fatalf("handle resolver response: %v", err)
	}
	if _, ok := store.ByDigest(digest); ok {
		t.Fatal("expected no block inserted for a not-found response")
	}
}

func TestDispatcherBackfillResponseInsertsAllBlocks(t *testing.T) {
	d, store, _, _, _ := newHarness(t)
	blocks := []consensus.Block{
		{View: 1, Digest: consensus.Digest{0x10}},
		{View: 2, Digest: consensus.Digest{0x11}},
	}
	msg := mustMessage(t, p2p.NewBackfillResponseMessage(p2p.BackfillResponsePayload{Blocks: blocks}))

	if err := d.HandleMessageFrom("peer-a", msg); err != nil {
		t.Fatalf("handle backfill response: %v", err)
	}
	for _, b := range blocks {
		if _, ok := store.ByDigest(b.Digest); !ok {
			t.Fatalf("expected block %x inserted", b.Digest)
		}
	}
}

func TestDispatcherSeederShareRoutesByIndex(t *testing.T) {
	d, _, sd, _, _ := newHarness(t)
	msg := mustMessage(t, p2p.NewSeederShareMessage(p2p.SeederSharePayload{View: 1, Index: 0, Share: []byte("a")}))
	if err := d.HandleMessageFrom("peer-a", msg); err != nil {
		t.Fatalf("handle seeder share: %v", err)
	}
	msg = mustMessage(t, p2p.NewSeederShareMessage(p2p.SeederSharePayload{View: 1, Index: 1, Share: []byte("b")}))
	if err := d.HandleMessageFrom("peer-b", msg); err != nil {
		t.Fatalf("handle seeder share: %v", err)
	}

	if _, ok := sd.AwaitSeed(context.Background(), 1); !ok {
		t.Fatal("expected seed recovered once threshold validators sign")
	}
}

func TestDispatcherAggregatorShareTracksThenAdmits(t *testing.T) {
	d, _, _, agg, _ := newHarness(t)
	digest := consensus.Digest{0x20}
	msg := mustMessage(t, p2p.NewAggregatorShareMessage(p2p.AggregatorSharePayload{
		Height: 5, Digest: digest, Index: 0, Share: []byte("a"),
	}))
	if err := d.HandleMessageFrom("peer-a", msg); err != nil {
		t.Fatalf("handle aggregator share: %v", err)
	}
	msg = mustMessage(t, p2p.NewAggregatorShareMessage(p2p.AggregatorSharePayload{
		Height: 5, Digest: digest, Index: 1, Share: []byte("b"),
	}))
	if err := d.HandleMessageFrom("peer-b", msg); err != nil {
		t.Fatalf("handle aggregator share: %v", err)
	}

	if _, ok, _ := agg.Certificate(5); !ok {
		t.Fatal("expected certificate produced once threshold shares admitted")
	}
}

func TestDispatcherAggregationVoteTracksHeight(t *testing.T) {
	d, _, _, agg, _ := newHarness(t)
	digest := consensus.Digest{0x30}
	msg := mustMessage(t, p2p.NewAggregationVoteMessage(p2p.AggregationVotePayload{Height: 9, Digest: digest}))
	if err := d.HandleMessageFrom("peer-a", msg); err != nil {
		t.Fatalf("handle aggregation vote: %v", err)
	}

	shareMsg := mustMessage(t, p2p.NewAggregatorShareMessage(p2p.AggregatorSharePayload{
		Height: 9, Digest: digest, Index: 0, Share: []byte("a"),
	}))
	if err := d.HandleMessageFrom("peer-a", shareMsg); err != nil {
		t.Fatalf("handle aggregator share: %v", err)
	}
	shareMsg = mustMessage(t, p2p.NewAggregatorShareMessage(p2p.AggregatorSharePayload{
		Height: 9, Digest: digest, Index: 1, Share: []byte("b"),
	}))
	if err := d.HandleMessageFrom("peer-b", shareMsg); err != nil {
		t.Fatalf("handle aggregator share: %v", err)
	}

	if _, ok, _ := agg.Certificate(9); !ok {
		t.Fatal("expected the vote's Track call to make the height eligible for certification")
	}
}

func TestDispatcherUnknownMessageTypeErrors(t *testing.T) {
	d, _, _, _, _ := newHarness(t)
	if err := d.HandleMessageFrom("peer-a", &p2p.Message{Type: 0xff}); err == nil {
		t.Fatal("expected an error for an unrecognized message type")
	}
}

func TestDispatcherBroadcastDedupsRepeatedDigest(t *testing.T) {
	d, _, _, _, _ := newHarness(t)
	digest := consensus.Digest{0x40}
	msg := mustMessage(t, p2p.NewBroadcastMessage(p2p.BroadcastPayload{Digest: digest, Data: []byte("x")}))

	if err := d.HandleMessageFrom("peer-a", msg); err != nil {
		t.Fatalf("handle first broadcast: %v", err)
	}
	if !d.markSeen(digest) {
		t.Fatal("expected digest to already be marked seen after first handling")
	}
}

package automaton

import (
	"context"
	"testing"
	"time"

	"nhbchain/consensus"
)

type fakeHandler struct {
	genesis    consensus.Digest
	proposed   consensus.Digest
	verify     bool
	broadcasts []consensus.Digest
	finalized  []consensus.Block
	seeded     []consensus.Seed
}

func (f *fakeHandler) Genesis() consensus.Digest { return f.genesis }
func (f *fakeHandler) Propose(view consensus.View, parent consensus.Parent) consensus.Digest {
	return f.proposed
}
func (f *fakeHandler) Verify(view consensus.View, parent consensus.Parent, payload consensus.Digest) bool {
	return f.verify
}
func (f *fakeHandler) Broadcast(payload consensus.Digest) {
	f.broadcasts = append(f.broadcasts, payload)
}
func (f *fakeHandler) Ancestry(view consensus.View, blocks []consensus.Block) consensus.Digest {
	if len(blocks) == 0 {
		return consensus.Digest{}
	}
	return blocks[len(blocks)-1].Digest
}
func (f *fakeHandler) Finalized(block consensus.Block) {
	f.finalized = append(f.finalized, block)
}
func (f *fakeHandler) Seeded(block consensus.Block, seed consensus.Seed) {
	f.seeded = append(f.seeded, seed)
}

func newTestMailbox(genesis consensus.Digest, stopped <-chan struct{}) *Mailbox {
	return NewMailbox(8, genesis, stopped, nil)
}

func TestMailboxGenesisRoundTrip(t *testing.T) {
	genesis := consensus.Digest{1}
	stopped := make(chan struct{})
	mb := newTestMailbox(genesis, stopped)
	h := &fakeHandler{genesis: consensus.Digest{9}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mb.Run(ctx, h)

	got := mb.Genesis(ctx)
	if got != h.genesis {
		t.Fatalf("expected handler genesis, got %v", got)
	}
}

func TestMailboxProposeAndVerify(t *testing.T) {
	stopped := make(chan struct{})
	mb := newTestMailbox(consensus.Digest{}, stopped)
	h := &fakeHandler{proposed: consensus.Digest{7}, verify: true}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mb.Run(ctx, h)

	parent := consensus.Parent{View: 0, Digest: consensus.Digest{}}
	ch := mb.Propose(ctx, 1, parent)
	select {
	case d := <-ch:
		if d != h.proposed {
			t.Fatalf("expected proposed digest, got %v", d)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for propose reply")
	}

	verifyCh := mb.Verify(ctx, 1, parent, h.proposed)
	select {
	case ok := <-verifyCh:
		if !ok {
			t.Fatal("expected verify true")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for verify reply")
	}
}

func TestMailboxProposeFallbackOnStop(t *testing.T) {
	stopped := make(chan struct{})
	close(stopped)
	mb := newTestMailbox(consensus.Digest{}, stopped)

	parent := consensus.Parent{View: 0, Digest: consensus.Digest{5}}
	ch := mb.Propose(context.Background(), 1, parent)
	d := <-ch
	if d != parent.Digest {
		t.Fatalf("expected fallback to parent digest, got %v", d)
	}
}

func TestMailboxVerifyFallbackFalseOnStop(t *testing.T) {
	stopped := make(chan struct{})
	close(stopped)
	mb := newTestMailbox(consensus.Digest{}, stopped)

	parent := consensus.Parent{View: 0, Digest: consensus.Digest{5}}
	ch := mb.Verify(context.Background(), 1, parent, consensus.Digest{1})
	if ok := <-ch; ok {
		t.Fatal("expected verify fallback to be false")
	}
}

func TestMailboxFinalizedAndSeededDelivered(t *testing.T) {
	stopped := make(chan struct{})
	mb := newTestMailbox(consensus.Digest{}, stopped)
	h := &fakeHandler{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mb.Run(ctx, h)

	block := consensus.Block{View: 1, Digest: consensus.Digest{2}}
	mb.Finalized(ctx, block)
	mb.Seeded(ctx, block, consensus.Seed{3})

	deadline := time.After(time.Second)
	for len(h.finalized) == 0 || len(h.seeded) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for finalized/seeded delivery")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	if h.finalized[0].Digest != block.Digest {
		t.Fatalf("unexpected finalized block: %+v", h.finalized[0])
	}
	if h.seeded[0] != (consensus.Seed{3}) {
		t.Fatalf("unexpected seeded value: %v", h.seeded[0])
	}
}

func TestMailboxGenesisFallbackWhenUnreachable(t *testing.T) {
	genesis := consensus.Digest{42}
	stopped := make(chan struct{})
	close(stopped)
	mb := newTestMailbox(genesis, stopped)

	got := mb.Genesis(context.Background())
	if got != genesis {
		t.Fatalf("expected configured genesis fallback, got %v", got)
	}
}

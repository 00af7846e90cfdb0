package broadcast

import "testing"

func digest(b byte) [32]byte {
	var d [32]byte
	d[0] = b
	return d
}

func TestEnqueueDequeueFIFO(t *testing.T) {
	buf := New(4)
	buf.Enqueue("peer1", Payload{Digest: digest(1), Bytes: []byte("a")})
	buf.Enqueue("peer1", Payload{Digest: digest(2), Bytes: []byte("b")})

	p, ok := buf.Dequeue("peer1")
	if !ok || p.Digest != digest(1) {
		t.Fatalf("expected first payload, got %+v ok=%v", p, ok)
	}
	p, ok = buf.Dequeue("peer1")
	if !ok || p.Digest != digest(2) {
		t.Fatalf("expected second payload, got %+v ok=%v", p, ok)
	}
	if _, ok := buf.Dequeue("peer1"); ok {
		t.Fatalf("expected empty queue")
	}
}

func TestPriorityLaneDrainsFirst(t *testing.T) {
	buf := New(4)
	buf.Enqueue("peer1", Payload{Digest: digest(1)})
	buf.Enqueue("peer1", Payload{Digest: digest(2), Priority: true})

	p, ok := buf.Dequeue("peer1")
	if !ok || p.Digest != digest(2) {
		t.Fatalf("expected priority payload first, got %+v", p)
	}
}

func TestDuplicateDigestNotReenqueued(t *testing.T) {
	buf := New(4)
	if !buf.Enqueue("peer1", Payload{Digest: digest(1)}) {
		t.Fatalf("expected first enqueue to succeed")
	}
	if buf.Enqueue("peer1", Payload{Digest: digest(1)}) {
		t.Fatalf("expected duplicate enqueue to be rejected")
	}
	if buf.Pending("peer1") != 1 {
		t.Fatalf("expected pending count 1, got %d", buf.Pending("peer1"))
	}
}

func TestRegularLaneEvictedWhenFull(t *testing.T) {
	buf := New(2)
	buf.Enqueue("peer1", Payload{Digest: digest(1)})
	buf.Enqueue("peer1", Payload{Digest: digest(2)})
	// queue full; enqueueing a third regular entry evicts the oldest.
	if !buf.Enqueue("peer1", Payload{Digest: digest(3)}) {
		t.Fatalf("expected eviction to make room")
	}
	p, ok := buf.Dequeue("peer1")
	if !ok || p.Digest != digest(2) {
		t.Fatalf("expected digest(1) evicted, got %+v", p)
	}
}

func TestPriorityNeverEvicted(t *testing.T) {
	buf := New(1)
	buf.Enqueue("peer1", Payload{Digest: digest(1), Priority: true})
	if buf.Enqueue("peer1", Payload{Digest: digest(2)}) {
		t.Fatalf("expected regular enqueue to be rejected when only priority entries fill the queue")
	}
	if buf.Pending("peer1") != 1 {
		t.Fatalf("expected priority entry retained")
	}
}

func TestRemovePeerClearsState(t *testing.T) {
	buf := New(4)
	buf.Enqueue("peer1", Payload{Digest: digest(1)})
	buf.RemovePeer("peer1")
	if buf.Pending("peer1") != 0 {
		t.Fatalf("expected no pending entries after removal")
	}
	if !buf.Enqueue("peer1", Payload{Digest: digest(1)}) {
		t.Fatalf("expected re-enqueue of same digest to succeed after peer removal")
	}
}

func TestPendingUnknownPeer(t *testing.T) {
	buf := New(4)
	if buf.Pending("ghost") != 0 {
		t.Fatalf("expected zero pending for unknown peer")
	}
}

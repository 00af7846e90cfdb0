// Package broadcast implements the bounded, priority-aware per-peer
// deque for full block payload dissemination described in
// spec.md §4.6, generalized from the teacher's POS/normal transaction
// lane interleaving in mempool/priority.go (priority vs normal lanes
// become priority vs regular payload lanes here) and sized per-peer
// the way p2p/connmanager.go bounds its outbound queues.
package broadcast

import (
	"container/list"
	"sync"
)

// Payload is one block payload pending dissemination to a peer.
type Payload struct {
	Digest   [32]byte
	Bytes    []byte
	Priority bool
}

// peerQueue holds a priority lane and a regular lane; priority
// entries are always drained first, mirroring the teacher's
// Schedule() interleaving logic generalized to a strict priority
// order (peer dissemination has no fairness requirement equivalent
// to the teacher's POS quota).
type peerQueue struct {
	priority *list.List
	regular  *list.List
	seen     map[[32]byte]struct{}
}

func newPeerQueue() *peerQueue {
	return &peerQueue{priority: list.New(), regular: list.New(), seen: make(map[[32]byte]struct{})}
}

func (q *peerQueue) len() int {
	return q.priority.Len() + q.regular.Len()
}

// Buffer is the per-peer bounded priority deque collection. Delivery
// is at-most-once: a digest already enqueued for a peer, whether still
// pending or already dequeued, is not enqueued again. Only a digest
// evicted before delivery, or any digest after RemovePeer, can be
// enqueued anew.
type Buffer struct {
	mu       sync.Mutex
	size     int
	peers    map[string]*peerQueue
}

// New constructs a Buffer with a bounded per-peer deque of size
// dequeSize (spec's deque_size tunable).
func New(dequeSize int) *Buffer {
	if dequeSize <= 0 {
		dequeSize = 128
	}
	return &Buffer{size: dequeSize, peers: make(map[string]*peerQueue)}
}

// Enqueue adds payload for delivery to peer, dropping the oldest
// regular-lane entry if the peer's deque is at capacity (priority
// entries are never evicted to make room for regular ones).
func (b *Buffer) Enqueue(peer string, payload Payload) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.peers[peer]
	if !ok {
		q = newPeerQueue()
		b.peers[peer] = q
	}
	if _, dup := q.seen[payload.Digest]; dup {
		return false
	}
	if q.len() >= b.size {
		if q.regular.Len() > 0 {
			oldest := q.regular.Front()
			evicted := oldest.Value.(Payload)
			delete(q.seen, evicted.Digest)
			q.regular.Remove(oldest)
		} else {
			return false
		}
	}
	q.seen[payload.Digest] = struct{}{}
	if payload.Priority {
		q.priority.PushBack(payload)
	} else {
		q.regular.PushBack(payload)
	}
	return true
}

// Dequeue pops the next payload for peer, priority lane first. ok is
// false if the peer has nothing pending.
func (b *Buffer) Dequeue(peer string) (Payload, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.peers[peer]
	if !ok {
		return Payload{}, false
	}
	var elem *list.Element
	var lane *list.List
	if q.priority.Len() > 0 {
		elem = q.priority.Front()
		lane = q.priority
	} else if q.regular.Len() > 0 {
		elem = q.regular.Front()
		lane = q.regular
	} else {
		return Payload{}, false
	}
	payload := elem.Value.(Payload)
	lane.Remove(elem)
	return payload, true
}

// RemovePeer drops all pending state for peer, called when the peer
// disconnects.
func (b *Buffer) RemovePeer(peer string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.peers, peer)
}

// Pending reports how many payloads remain queued for peer.
func (b *Buffer) Pending(peer string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.peers[peer]
	if !ok {
		return 0
	}
	return q.len()
}

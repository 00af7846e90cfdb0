// Package marshal implements the content-addressable block store and
// ancestry resolver described in spec.md §4.3: an append-only index of
// finalized blocks, a prunable log segment for unfinalized views, and
// freezer-style archival with configurable resize cadence. Backed by
// go.etcd.io/bbolt bucket-per-partition storage, generalized from the
// teacher's core/sync.Manager snapshot/checkpoint vocabulary (fast
// trie-state sync there; block-ancestry sync here) since persistent
// storage engine internals are an explicit spec.md Non-goal beyond
// "configured collaborator" — bbolt fills that collaborator role
// concretely.
package marshal

import (
	"encoding/binary"
	"fmt"
	"sync"

	"go.etcd.io/bbolt"

	"nhbchain/consensus"
)

var (
	finalizedBucket   = []byte("finalized")   // height -> block bytes (freezer-style archive)
	unfinalizedBucket = []byte("unfinalized")  // digest -> block bytes (prunable log segment)
	heightIndexBucket = []byte("height_index") // height -> digest (authenticated index)
)

// FreezerConfig carries the archival log's resize cadence, named
// unchanged from spec.md §6.2.
type FreezerConfig struct {
	TableResizeFrequency int
	TableResizeChunkSize int
}

// Store is the marshal actor's block store. Not safe for concurrent
// mutation of the same digest from two goroutines without external
// synchronization beyond what Store itself provides.
type Store struct {
	mu         sync.RWMutex
	db         *bbolt.DB
	freezer    FreezerConfig
	maxRepair  int
	retention  consensus.View // view_retention_timeout

	unfinalized map[consensus.Digest]consensus.Block
}

// Open creates (if absent) the marshal partition's buckets in db.
func Open(db *bbolt.DB, freezer FreezerConfig, maxRepair int, retention consensus.View) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{finalizedBucket, unfinalizedBucket, heightIndexBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Store{
		db:          db,
		freezer:     freezer,
		maxRepair:   maxRepair,
		retention:   retention,
		unfinalized: make(map[consensus.Digest]consensus.Block),
	}, nil
}

// Append stores block as unfinalized, addressed by its digest; it is
// promoted to the immutable archive on Finalize.
func (s *Store) Append(block consensus.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unfinalized[block.Digest] = block
}

// Finalize moves block from the unfinalized log into the immutable
// archive at height, keyed by both digest and height index.
func (s *Store) Finalize(height uint64, block consensus.Block) error {
	s.mu.Lock()
	delete(s.unfinalized, block.Digest)
	s.mu.Unlock()

	return s.db.Update(func(tx *bbolt.Tx) error {
		finalized := tx.Bucket(finalizedBucket)
		heightIdx := tx.Bucket(heightIndexBucket)

		var heightKey [8]byte
		binary.BigEndian.PutUint64(heightKey[:], height)

		encoded := encodeBlock(block)
		if err := finalized.Put(heightKey[:], encoded); err != nil {
			return err
		}
		return heightIdx.Put(heightKey[:], block.Digest[:])
	})
}

// ByHeight returns a finalized block, if present.
func (s *Store) ByHeight(height uint64) (consensus.Block, bool, error) {
	var block consensus.Block
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		finalized := tx.Bucket(finalizedBucket)
		var heightKey [8]byte
		binary.BigEndian.PutUint64(heightKey[:], height)
		raw := finalized.Get(heightKey[:])
		if raw == nil {
			return nil
		}
		var err error
		block, err = decodeBlock(raw)
		found = err == nil
		return err
	})
	return block, found, err
}

// ByDigest looks up a block by content address, checking the
// unfinalized log first, then the archive (a linear scan over the
// archived blocks until one matches).
func (s *Store) ByDigest(digest consensus.Digest) (consensus.Block, bool) {
	s.mu.RLock()
	if b, ok := s.unfinalized[digest]; ok {
		s.mu.RUnlock()
		return b, true
	}
	s.mu.RUnlock()

	var result consensus.Block
	var found bool
	_ = s.db.View(func(tx *bbolt.Tx) error {
		finalized := tx.Bucket(finalizedBucket)
		c := finalized.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			block, err := decodeBlock(v)
			if err != nil {
				continue
			}
			if block.Digest == digest {
				result = block
				found = true
				return nil
			}
		}
		return nil
	})
	return result, found
}

// Ancestry walks backward from targetParent returning a contiguous
// chain bounded by maxRepair, per spec §4.3.
func (s *Store) Ancestry(targetParent consensus.Digest) []consensus.Block {
	chain := make([]consensus.Block, 0, s.maxRepair)
	cursor := targetParent
	for i := 0; i < s.maxRepair; i++ {
		block, ok := s.ByDigest(cursor)
		if !ok {
			break
		}
		chain = append(chain, block)
		if block.Parent == (consensus.Digest{}) {
			break
		}
		cursor = block.Parent
	}
	return chain
}

// PruneBelow drops unfinalized entries older than
// view_retention_timeout views behind currentView, matching spec
// §4.3's retention policy (view_retention_timeout =
// activity_timeout * SYNCER_ACTIVITY_TIMEOUT_MULTIPLIER).
func (s *Store) PruneBelow(currentView consensus.View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if currentView < s.retention {
		return
	}
	floor := currentView - s.retention
	for digest, block := range s.unfinalized {
		if block.View < floor {
			delete(s.unfinalized, digest)
		}
	}
}

func encodeBlock(b consensus.Block) []byte {
	out := make([]byte, 0, 8+32+32+8+len(b.Payload))
	var viewBuf [8]byte
	binary.BigEndian.PutUint64(viewBuf[:], uint64(b.View))
	out = append(out, viewBuf[:]...)
	out = append(out, b.Digest[:]...)
	out = append(out, b.Parent[:]...)
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(b.Payload)))
	out = append(out, lenBuf[:]...)
	out = append(out, b.Payload...)
	return out
}

func decodeBlock(buf []byte) (consensus.Block, error) {
	if len(buf) < 8+32+32+8 {
		return consensus.Block{}, fmt.Errorf("marshal: malformed block prefix")
	}
	var b consensus.Block
	b.View = consensus.View(binary.BigEndian.Uint64(buf[0:8]))
	copy(b.Digest[:], buf[8:40])
	copy(b.Parent[:], buf[40:72])
	payloadLen := binary.BigEndian.Uint64(buf[72:80])
	if uint64(len(buf)-80) < payloadLen {
		return consensus.Block{}, fmt.Errorf("marshal: truncated block payload")
	}
	b.Payload = append([]byte(nil), buf[80:80+payloadLen]...)
	return b, nil
}

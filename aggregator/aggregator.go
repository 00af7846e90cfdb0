// Package aggregator implements the local policy half of threshold
// certificate production described in spec.md §4.5: which finalized
// heights to sign and how certificates are persisted. The protocol
// driver that advances the sliding aggregation window lives
// alongside it in aggregation.go.
package aggregator

import (
	"context"
	"encoding/binary"
	"log/slog"
	"sync"

	"go.etcd.io/bbolt"

	"nhbchain/consensus"
)

// ThresholdScheme mirrors consensus/engine's and seeder's black-box
// signing collaborator.
type ThresholdScheme interface {
	Share(msg []byte) ([]byte, error)
	Recover(msg []byte, shares [][]byte) ([]byte, error)
	Threshold() int
}

// Window is the aggregation package's sliding-window constant (spec
// §4.5/§6.4).
const Window = 16

var certificatesBucket = []byte("certificates")

// Aggregator persists threshold certificates into the
// "{prefix}-aggregator" bbolt partition (spec §6.2) and tracks which
// finalized heights within the current window still need signing.
type Aggregator struct {
	mu     sync.Mutex
	db     *bbolt.DB
	scheme ThresholdScheme
	log    *slog.Logger

	pendingShares map[uint64]map[string][]byte
	digests       map[uint64]consensus.Digest
}

// New opens (creating if absent) the certificates bucket in db.
func New(db *bbolt.DB, scheme ThresholdScheme, log *slog.Logger) (*Aggregator, error) {
	if log == nil {
		log = slog.Default()
	}
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(certificatesBucket)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Aggregator{
		db:            db,
		scheme:        scheme,
		log:           log,
		pendingShares: make(map[uint64]map[string][]byte),
		digests:       make(map[uint64]consensus.Digest),
	}, nil
}

func certMessage(height uint64, digest consensus.Digest) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], height)
	msg := make([]byte, 0, 8+len(digest))
	msg = append(msg, buf[:]...)
	msg = append(msg, digest[:]...)
	return msg
}

// Track registers height as finalized with digest, becoming eligible
// for certificate production once enough signature shares arrive.
func (a *Aggregator) Track(height uint64, digest consensus.Digest) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.digests[height] = digest
	if _, ok := a.pendingShares[height]; !ok {
		a.pendingShares[height] = make(map[string][]byte)
	}
}

// HandleShare admits validator's signature share over height's
// certificate message. On reaching threshold the combined certificate
// is recovered and persisted.
func (a *Aggregator) HandleShare(ctx context.Context, height uint64, validator string, share []byte) (*consensus.Certificate, error) {
	a.mu.Lock()
	digest, known := a.digests[height]
	if !known {
		a.mu.Unlock()
		return nil, nil
	}
	shares, ok := a.pendingShares[height]
	if !ok {
		shares = make(map[string][]byte)
		a.pendingShares[height] = shares
	}
	shares[validator] = share
	if len(shares) < a.scheme.Threshold() {
		a.mu.Unlock()
		return nil, nil
	}
	collected := make([][]byte, 0, len(shares))
	for _, sh := range shares {
		collected = append(collected, sh)
	}
	a.mu.Unlock()

	sig, err := a.scheme.Recover(certMessage(height, digest), collected)
	if err != nil {
		return nil, err
	}
	cert := &consensus.Certificate{Height: height, Digest: digest, Signature: sig}
	if err := a.persist(cert); err != nil {
		return nil, err
	}

	a.mu.Lock()
	delete(a.pendingShares, height)
	a.mu.Unlock()
	return cert, nil
}

func (a *Aggregator) persist(cert *consensus.Certificate) error {
	return a.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(certificatesBucket)
		var key [8]byte
		binary.BigEndian.PutUint64(key[:], cert.Height)
		value := make([]byte, 0, 32+len(cert.Signature))
		value = append(value, cert.Digest[:]...)
		value = append(value, cert.Signature...)
		return b.Put(key[:], value)
	})
}

// Certificate returns the persisted certificate for height, if any.
func (a *Aggregator) Certificate(height uint64) (*consensus.Certificate, bool, error) {
	var cert *consensus.Certificate
	err := a.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(certificatesBucket)
		var key [8]byte
		binary.BigEndian.PutUint64(key[:], height)
		value := b.Get(key[:])
		if value == nil || len(value) < 32 {
			return nil
		}
		var digest consensus.Digest
		copy(digest[:], value[:32])
		cert = &consensus.Certificate{Height: height, Digest: digest, Signature: append([]byte(nil), value[32:]...)}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return cert, cert != nil, nil
}

// Forget drops in-memory tracking for heights no longer within the
// sliding window, called by the aggregation driver.
func (a *Aggregator) Forget(belowHeight uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for h := range a.digests {
		if h < belowHeight {
			delete(a.digests, h)
			delete(a.pendingShares, h)
		}
	}
}

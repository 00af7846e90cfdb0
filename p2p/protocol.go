package p2p

import (
	"encoding/json"

	"nhbchain/consensus"
)

// Message type bytes for the eight channels networking carries per
// spec.md §11: pending, recovered, resolver (request/response pair),
// broadcast, backfill (request/response pair), seeder, aggregator,
// and aggregation. The request and the response of each pair have
// distinct bytes, so a handler can dispatch on MsgType alone.
const (
	MsgTypePending           byte = 0x01
	MsgTypeRecovered         byte = 0x02
	MsgTypeResolverRequest   byte = 0x03
	MsgTypeResolverResponse  byte = 0x04
	MsgTypeBroadcast         byte = 0x05
	MsgTypeBackfillRequest   byte = 0x06
	MsgTypeBackfillResponse  byte = 0x07
	MsgTypeSeederShare       byte = 0x08
	MsgTypeAggregatorShare   byte = 0x09
	MsgTypeAggregationVote   byte = 0x0a
)

// PendingPayload carries an unconfirmed proposal digest plus its
// view, the unit the pending channel moves between peers ahead of
// finalization.
type PendingPayload struct {
	View   consensus.View
	Block  consensus.Block
}

// RecoveredPayload carries a block that was recovered from a peer
// after a local gap was detected, tagged with its height for
// ancestry insertion.
type RecoveredPayload struct {
	Height uint64
	Block  consensus.Block
}

// ResolverRequestPayload asks a peer to resolve a digest the local
// node could not find in its own marshal store.
type ResolverRequestPayload struct {
	Digest consensus.Digest
}

// ResolverResponsePayload answers a ResolverRequestPayload. Found is
// false when the responding peer does not hold the digest either.
type ResolverResponsePayload struct {
	Digest consensus.Digest
	Block  consensus.Block
	Found  bool
}

// BroadcastPayload is an opaque application payload rebroadcast to
// peers by the broadcast buffer (spec.md §7); the engine never
// inspects its contents, only its digest for dedup.
type BroadcastPayload struct {
	Digest consensus.Digest
	Data   []byte
}

// BackfillRequestPayload asks a peer for the contiguous height range
// FromHeight..ToHeight, inclusive. The range length is not capped; the
// responder stops at the first height it does not hold.
type BackfillRequestPayload struct {
	FromHeight uint64
	ToHeight   uint64
}

// BackfillResponsePayload answers a BackfillRequestPayload with
// whatever contiguous prefix the responder actually has on hand.
type BackfillResponsePayload struct {
	Blocks []consensus.Block
}

// SeederSharePayload carries one validator's threshold signature
// share toward a view's seed.
type SeederSharePayload struct {
	View  consensus.View
	Index uint32
	Share []byte
}

// AggregatorSharePayload carries one validator's threshold signature
// share toward a finalized height's certificate.
type AggregatorSharePayload struct {
	Height uint64
	Digest consensus.Digest
	Index  uint32
	Share  []byte
}

// AggregationVotePayload carries a node's view of the most recently
// finalized height, the input to the aggregation driver's window
// vote (spec.md §6.2).
type AggregationVotePayload struct {
	Height uint64
	Digest consensus.Digest
}

func marshalPayload(msgType byte, v any) (*Message, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &Message{Type: msgType, Payload: payload}, nil
}

func NewPendingMessage(p PendingPayload) (*Message, error) {
	return marshalPayload(MsgTypePending, p)
}

func NewRecoveredMessage(p RecoveredPayload) (*Message, error) {
	return marshalPayload(MsgTypeRecovered, p)
}

func NewResolverRequestMessage(p ResolverRequestPayload) (*Message, error) {
	return marshalPayload(MsgTypeResolverRequest, p)
}

func NewResolverResponseMessage(p ResolverResponsePayload) (*Message, error) {
	return marshalPayload(MsgTypeResolverResponse, p)
}

func NewBroadcastMessage(p BroadcastPayload) (*Message, error) {
	return marshalPayload(MsgTypeBroadcast, p)
}

func NewBackfillRequestMessage(p BackfillRequestPayload) (*Message, error) {
	return marshalPayload(MsgTypeBackfillRequest, p)
}

func NewBackfillResponseMessage(p BackfillResponsePayload) (*Message, error) {
	return marshalPayload(MsgTypeBackfillResponse, p)
}

func NewSeederShareMessage(p SeederSharePayload) (*Message, error) {
	return marshalPayload(MsgTypeSeederShare, p)
}

func NewAggregatorShareMessage(p AggregatorSharePayload) (*Message, error) {
	return marshalPayload(MsgTypeAggregatorShare, p)
}

func NewAggregationVoteMessage(p AggregationVotePayload) (*Message, error) {
	return marshalPayload(MsgTypeAggregationVote, p)
}

package p2p

import (
	"encoding/json"
	"testing"

	"nhbchain/consensus"
)

func TestNewPendingMessageRoundTrip(t *testing.T) {
	block := consensus.Block{View: 3, Digest: consensus.Digest{1}, Payload: []byte("x")}
	msg, err := NewPendingMessage(PendingPayload{View: 3, Block: block})
	if err != nil {
		t.Fatalf("NewPendingMessage: %v", err)
	}
	if msg.Type != MsgTypePending {
		t.Fatalf("expected MsgTypePending, got %x", msg.Type)
	}
	var decoded PendingPayload
	if err := json.Unmarshal(msg.Payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.View != 3 || decoded.Block.Digest != block.Digest {
		t.Fatalf("unexpected round trip: %+v", decoded)
	}
}

func TestNewResolverRequestResponsePair(t *testing.T) {
	digest := consensus.Digest{9}
	reqMsg, err := NewResolverRequestMessage(ResolverRequestPayload{Digest: digest})
	if err != nil {
		t.Fatalf("NewResolverRequestMessage: %v", err)
	}
	if reqMsg.Type != MsgTypeResolverRequest {
		t.Fatalf("expected MsgTypeResolverRequest, got %x", reqMsg.Type)
	}

	respMsg, err := NewResolverResponseMessage(ResolverResponsePayload{Digest: digest, Found: true})
	if err != nil {
		t.Fatalf("NewResolverResponseMessage: %v", err)
	}
	if respMsg.Type != MsgTypeResolverResponse {
		t.Fatalf("expected MsgTypeResolverResponse, got %x", respMsg.Type)
	}

	var decoded ResolverResponsePayload
	if err := json.Unmarshal(respMsg.Payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.Found || decoded.Digest != digest {
		t.Fatalf("unexpected response payload: %+v", decoded)
	}
}

func TestNewBackfillRequestResponsePair(t *testing.T) {
	reqMsg, err := NewBackfillRequestMessage(BackfillRequestPayload{FromHeight: 10, ToHeight: 20})
	if err != nil {
		t.Fatalf("NewBackfillRequestMessage: %v", err)
	}
	if reqMsg.Type != MsgTypeBackfillRequest {
		t.Fatalf("expected MsgTypeBackfillRequest, got %x", reqMsg.Type)
	}

	blocks := []consensus.Block{{View: 10}, {View: 11}}
	respMsg, err := NewBackfillResponseMessage(BackfillResponsePayload{Blocks: blocks})
	if err != nil {
		t.Fatalf("NewBackfillResponseMessage: %v", err)
	}
	var decoded BackfillResponsePayload
	if err := json.Unmarshal(respMsg.Payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded.Blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(decoded.Blocks))
	}
}

func TestNewSeederAndAggregatorShareMessages(t *testing.T) {
	seederMsg, err := NewSeederShareMessage(SeederSharePayload{View: 1, Index: 2, Share: []byte("s")})
	if err != nil {
		t.Fatalf("NewSeederShareMessage: %v", err)
	}
	if seederMsg.Type != MsgTypeSeederShare {
		t.Fatalf("expected MsgTypeSeederShare, got %x", seederMsg.Type)
	}

	aggMsg, err := NewAggregatorShareMessage(AggregatorSharePayload{Height: 5, Index: 1, Share: []byte("a")})
	if err != nil {
		t.Fatalf("NewAggregatorShareMessage: %v", err)
	}
	if aggMsg.Type != MsgTypeAggregatorShare {
		t.Fatalf("expected MsgTypeAggregatorShare, got %x", aggMsg.Type)
	}
}

func TestNewAggregationVoteMessage(t *testing.T) {
	msg, err := NewAggregationVoteMessage(AggregationVotePayload{Height: 7, Digest: consensus.Digest{3}})
	if err != nil {
		t.Fatalf("NewAggregationVoteMessage: %v", err)
	}
	if msg.Type != MsgTypeAggregationVote {
		t.Fatalf("expected MsgTypeAggregationVote, got %x", msg.Type)
	}
	var decoded AggregationVotePayload
	if err := json.Unmarshal(msg.Payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Height != 7 {
		t.Fatalf("expected height 7, got %d", decoded.Height)
	}
}

func TestMessageTypesAreDistinct(t *testing.T) {
	seen := make(map[byte]bool)
	types := []byte{
		MsgTypePending, MsgTypeRecovered, MsgTypeResolverRequest, MsgTypeResolverResponse,
		MsgTypeBroadcast, MsgTypeBackfillRequest, MsgTypeBackfillResponse,
		MsgTypeSeederShare, MsgTypeAggregatorShare, MsgTypeAggregationVote,
	}
	for _, ty := range types {
		if seen[ty] {
			t.Fatalf("duplicate message type byte %x", ty)
		}
		seen[ty] = true
	}
}

// Package network wires the eight channels spec.md §6.1/§11 names
// (pending, recovered, resolver request/response, broadcast, backfill
// request/response, seeder share, aggregator share, aggregation vote)
// onto the engine's actors: marshal's block store, the seeder, the
// aggregator, and the application mailbox (for broadcast digests). It implements
// p2p.PeerMessageHandler the way the teacher's own handlers sit behind
// p2p.Server, generalized from a single opaque inbox to a per-type
// switch since this engine's wire protocol is typed rather than
// freeform.
package network

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"nhbchain/aggregator"
	"nhbchain/consensus"
	"nhbchain/consensus/automaton"
	"nhbchain/marshal"
	"nhbchain/p2p"
	"nhbchain/seeder"
)

// Dispatcher implements p2p.PeerMessageHandler, routing every message
// type protocol.go defines to the actor that owns it. Dissemination of
// already-validated payloads to peers is the broadcast package's job
// (its bounded per-peer deque is drained by the networking layer's own
// peer loops); the dispatcher only decides, on receipt, whether a
// payload is worth relaying at all.
type Dispatcher struct {
	server     *p2p.Server
	store      *marshal.Store
	sd         *seeder.Seeder
	agg        *aggregator.Aggregator
	mailbox    *automaton.Mailbox
	validators []string
	log        *slog.Logger

	seenMu sync.Mutex
	seen   map[consensus.Digest]struct{}
}

// New constructs a Dispatcher. validators maps a threshold share
// index (protocol.go's SeederSharePayload.Index /
// AggregatorSharePayload.Index) to the validator ID the seeder and
// aggregator key their pending shares by.
func New(server *p2p.Server, store *marshal.Store, sd *seeder.Seeder, agg *aggregator.Aggregator, mailbox *automaton.Mailbox, validators []string, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		server:     server,
		store:      store,
		sd:         sd,
		agg:        agg,
		mailbox:    mailbox,
		validators: validators,
		log:        log,
		seen:       make(map[consensus.Digest]struct{}),
	}
}

func (d *Dispatcher) validatorAt(index uint32) string {
	if int(index) < len(d.validators) {
		return d.validators[index]
	}
	return fmt.Sprintf("validator-%d", index)
}

// HandleMessage satisfies p2p.MessageHandler, the type that
// p2p.Server.SetHandler takes; the server itself calls
// HandleMessageFrom. Without a peer ID, resolver and backfill replies
// cannot be addressed, so those requests fail here.
func (d *Dispatcher) HandleMessage(msg *p2p.Message) error {
	return d.HandleMessageFrom("", msg)
}

// HandleMessageFrom satisfies p2p.PeerMessageHandler.
func (d *Dispatcher) HandleMessageFrom(peerID string, msg *p2p.Message) error {
	ctx := context.Background()
	switch msg.Type {
	case p2p.MsgTypePending:
		var p p2p.PendingPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("decode pending payload: %w", err)
		}
		d.store.Append(p.Block)
		return nil

	case p2p.MsgTypeRecovered:
		var p p2p.RecoveredPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("decode recovered payload: %w", err)
		}
		d.store.Append(p.Block)
		return nil

	case p2p.MsgTypeResolverRequest:
		var p p2p.ResolverRequestPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("decode resolver request: %w", err)
		}
		block, found := d.store.ByDigest(p.Digest)
		resp, err := p2p.NewResolverResponseMessage(p2p.ResolverResponsePayload{
			Digest: p.Digest,
			Block:  block,
			Found:  found,
		})
		if err != nil {
			return fmt.Errorf("build resolver response: %w", err)
		}
		return d.server.SendTo(peerID, resp)

	case p2p.MsgTypeResolverResponse:
		var p p2p.ResolverResponsePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("decode resolver response: %w", err)
		}
		if p.Found {
			d.store.Append(p.Block)
		}
		return nil

	case p2p.MsgTypeBroadcast:
		var p p2p.BroadcastPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("decode broadcast payload: %w", err)
		}
		if d.markSeen(p.Digest) {
			return nil
		}
		d.mailbox.Broadcast(ctx, p.Digest)
		if err := d.server.BroadcastExcept(peerID, msg); err != nil {
			d.log.Warn("network: rebroadcast failed", "error", err, "digest", p.Digest)
		}
		return nil

	case p2p.MsgTypeBackfillRequest:
		var p p2p.BackfillRequestPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("decode backfill request: %w", err)
		}
		var blocks []consensus.Block
		for h := p.FromHeight; h <= p.ToHeight; h++ {
			block, found, err := d.store.ByHeight(h)
			if err != nil {
				return fmt.Errorf("backfill lookup height %d: %w", h, err)
			}
			if !found {
				break
			}
			blocks = append(blocks, block)
		}
		resp, err := p2p.NewBackfillResponseMessage(p2p.BackfillResponsePayload{Blocks: blocks})
		if err != nil {
			return fmt.Errorf("build backfill response: %w", err)
		}
		return d.server.SendTo(peerID, resp)

	case p2p.MsgTypeBackfillResponse:
		var p p2p.BackfillResponsePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("decode backfill response: %w", err)
		}
		for _, block := range p.Blocks {
			d.store.Append(block)
		}
		return nil

	case p2p.MsgTypeSeederShare:
		var p p2p.SeederSharePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("decode seeder share: %w", err)
		}
		d.sd.HandleShare(p.View, d.validatorAt(p.Index), p.Share)
		return nil

	case p2p.MsgTypeAggregatorShare:
		var p p2p.AggregatorSharePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("decode aggregator share: %w", err)
		}
		d.agg.Track(p.Height, p.Digest)
		if _, err := d.agg.HandleShare(ctx, p.Height, d.validatorAt(p.Index), p.Share); err != nil {
			return fmt.Errorf("admit aggregator share: %w", err)
		}
		return nil

	case p2p.MsgTypeAggregationVote:
		var p p2p.AggregationVotePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("decode aggregation vote: %w", err)
		}
		d.agg.Track(p.Height, p.Digest)
		return nil

	default:
		return fmt.Errorf("network: unknown message type 0x%02x from %s", msg.Type, peerID)
	}
}

// markSeen reports whether digest was already observed, recording it
// if not. Dedup keeps broadcast rebroadcasts from looping the mesh.
func (d *Dispatcher) markSeen(digest consensus.Digest) bool {
	d.seenMu.Lock()
	defer d.seenMu.Unlock()
	if _, ok := d.seen[digest]; ok {
		return true
	}
	d.seen[digest] = struct{}{}
	return false
}

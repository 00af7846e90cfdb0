package aggregator

import (
	"context"
	"log/slog"
	"time"

	"nhbchain/consensus"
)

// AggregationConfig carries the protocol driver's tunables, all
// unchanged constants from spec.md §4.5/§6.4.
type AggregationConfig struct {
	Window           int           // sliding window of heights (16)
	ActivityTimeout  time.Duration // inherited from consensus config
	PriorityAcks     bool          // false: acks travel as regular traffic
	RebroadcastTimeout time.Duration // 10s for stubborn peers
	EpochBoundsLow   uint64        // (0,0): no epoch rotation in this profile
	EpochBoundsHigh  uint64
}

// DefaultAggregationConfig returns the core profile's unchanged
// constants.
func DefaultAggregationConfig() AggregationConfig {
	return AggregationConfig{
		Window:             Window,
		PriorityAcks:       false,
		RebroadcastTimeout: 10 * time.Second,
		EpochBoundsLow:     0,
		EpochBoundsHigh:    0,
	}
}

// FinalizedFeed is the upstream source of newly finalized heights the
// aggregation driver advances its window over.
type FinalizedFeed interface {
	NextFinalized(ctx context.Context) (height uint64, digest consensus.Digest, ok bool)
}

// Driver advances the sliding window of finalized heights needing
// signature, handing each to Aggregator.Track and forgetting heights
// that fall out of the window, both as heights arrive and on every
// RebroadcastTimeout tick. It does not rebroadcast unsigned heights
// or shares; the tick only runs the Forget sweep.
type Driver struct {
	cfg  AggregationConfig
	agg  *Aggregator
	feed FinalizedFeed
	log  *slog.Logger
}

func NewDriver(cfg AggregationConfig, agg *Aggregator, feed FinalizedFeed, log *slog.Logger) *Driver {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Window <= 0 {
		cfg.Window = Window
	}
	return &Driver{cfg: cfg, agg: agg, feed: feed, log: log}
}

// Run drives the window until ctx is cancelled, matching the
// supervisor's "run-together/die-together" model: context
// cancellation is the only exit path. A feed call that yields no
// height is retried after 10ms.
func (d *Driver) Run(ctx context.Context) error {
	var highWatermark uint64
	ticker := time.NewTicker(d.cfg.RebroadcastTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if highWatermark > uint64(d.cfg.Window) {
				d.agg.Forget(highWatermark - uint64(d.cfg.Window))
			}
		default:
			height, digest, ok := d.feed.NextFinalized(ctx)
			if !ok {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}
			if height > highWatermark {
				highWatermark = height
			}
			d.agg.Track(height, digest)
			if highWatermark > uint64(d.cfg.Window) {
				d.agg.Forget(highWatermark - uint64(d.cfg.Window))
			}
		}
	}
}

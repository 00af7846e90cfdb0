package economy

import "fmt"

// SeedTimeoutEvent records that a block's view reached
// view_retention_timeout without a Seeded delivery from the seeder
// actor. The transition at that view proceeds with an all-zero Seed
// substituted in its place (the resolved Open Question in the
// engine's design notes); cmd/engined logs this event with its
// seed-timeout warning so observers can distinguish a
// randomness-timeout block from a normally seeded one.
type SeedTimeoutEvent struct {
	View             uint64
	RetentionTimeout uint64
}

func (e SeedTimeoutEvent) Error() string {
	return fmt.Sprintf("economy: seed for view %d not delivered within retention timeout %d", e.View, e.RetentionTimeout)
}

// JackpotFloorEvent is emitted whenever a progressive jackpot payout
// would have driven the pool below its configured base and was
// clamped back to it, mirroring the teacher's EmissionCapHitError
// wrap-with-event pattern in core/state/staking_rewards.go: the
// clamp itself is not an error condition, but callers attach the
// event to the block's receipt for downstream observers.
type JackpotFloorEvent struct {
	Jackpot   string
	Requested uint64
	Base      uint64
}

func (e JackpotFloorEvent) Error() string {
	return fmt.Sprintf("economy: %s jackpot payout %d floored to base %d", e.Jackpot, e.Requested, e.Base)
}

// LiquidationEvent is emitted whenever a vault crosses the
// liquidation threshold and is restored to the liquidation target
// LTV.
type LiquidationEvent struct {
	Owner           string
	LTVBeforeBps    uint64
	LiquidationTarget uint64
	PenaltyVusdt    uint64
	RewardVusdt     uint64
	StabilityVusdt  uint64
}

func (e LiquidationEvent) Error() string {
	return fmt.Sprintf("economy: vault %s liquidated from %d bps to %d bps", e.Owner, e.LTVBeforeBps, e.LiquidationTarget)
}

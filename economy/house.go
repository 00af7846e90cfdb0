package economy

import (
	"math/big"

	"nhbchain/codec"
)

// HouseState is the per-epoch accounting record for the whole casino
// economy. Field order is append-only: new fields must be added after
// StakingRewardCarry and default to zero on decode of an older
// encoding, per the forward-compatible serialization rule.
type HouseState struct {
	CurrentEpoch uint64
	EpochStartTS uint64

	NetPNL codec.I128

	TotalStakedAmount uint64
	TotalVotingPower  codec.U128

	AccumulatedFees uint64
	TotalBurned     uint64
	TotalIssuance   uint64

	TotalVusdtDebt        uint64
	StabilityFeesAccrued  uint64

	RecoveryPoolVusdt   uint64
	RecoveryPoolRetired uint64

	ThreeCardProgressiveJackpot uint64
	UthProgressiveJackpot       uint64

	StakingRewardPerVotingPowerX18 codec.U128
	StakingRewardPool              uint64
	StakingRewardCarry             uint64
}

// NewHouseState initializes jackpots at their configured base values;
// they must never fall below these bases (invariant 2).
func NewHouseState(threeCardBase, uthBase uint64, epochStart uint64) *HouseState {
	return &HouseState{
		EpochStartTS:                epochStart,
		ThreeCardProgressiveJackpot: threeCardBase,
		UthProgressiveJackpot:       uthBase,
	}
}

func (h *HouseState) EncodedLen() int {
	return 8 + 8 + // epoch, epoch_start_ts
		1 + 16 + // net_pnl (sign + u128)
		8 + 16 + // staked amount, voting power
		8 + 8 + 8 + // fees, burned, issuance
		8 + 8 + // vusdt debt, stability fees
		8 + 8 + // recovery pool
		8 + 8 + // jackpots
		16 + 8 + 8 // staking accumulator fields
}

func (h *HouseState) MarshalBinary() ([]byte, error) {
	w := codec.NewWriter(h.EncodedLen())
	w.PutU64(h.CurrentEpoch)
	w.PutU64(h.EpochStartTS)
	w.PutI128(h.NetPNL)
	w.PutU64(h.TotalStakedAmount)
	w.PutU128(h.TotalVotingPower)
	w.PutU64(h.AccumulatedFees)
	w.PutU64(h.TotalBurned)
	w.PutU64(h.TotalIssuance)
	w.PutU64(h.TotalVusdtDebt)
	w.PutU64(h.StabilityFeesAccrued)
	w.PutU64(h.RecoveryPoolVusdt)
	w.PutU64(h.RecoveryPoolRetired)
	w.PutU64(h.ThreeCardProgressiveJackpot)
	w.PutU64(h.UthProgressiveJackpot)
	w.PutU128(h.StakingRewardPerVotingPowerX18)
	w.PutU64(h.StakingRewardPool)
	w.PutU64(h.StakingRewardCarry)
	return w.Bytes(), nil
}

// UnmarshalBinary decodes h from buf, defaulting any trailing field
// missing from an older encoding to zero, except the two progressive
// jackpots: a missing jackpot keeps the value already in h, which is
// its configured base when h came from NewHouseState.
func (h *HouseState) UnmarshalBinary(buf []byte) error {
	r := codec.NewReader(buf)
	h.CurrentEpoch = r.GetU64()
	h.EpochStartTS = r.GetU64()
	h.NetPNL = r.GetI128()
	h.TotalStakedAmount = r.GetU64()
	h.TotalVotingPower = r.GetU128()
	h.AccumulatedFees = r.GetU64()
	h.TotalBurned = r.GetU64()
	h.TotalIssuance = r.GetU64()
	h.TotalVusdtDebt = r.GetU64()
	h.StabilityFeesAccrued = r.GetU64()
	h.RecoveryPoolVusdt = r.GetU64()
	h.RecoveryPoolRetired = r.GetU64()
	if r.Remaining() >= 8 {
		h.ThreeCardProgressiveJackpot = r.GetU64()
	}
	if r.Remaining() >= 8 {
		h.UthProgressiveJackpot = r.GetU64()
	}
	h.StakingRewardPerVotingPowerX18 = r.GetU128()
	h.StakingRewardPool = r.GetU64()
	h.StakingRewardCarry = r.GetU64()
	return nil
}

// DistributeStakingReward implements the accumulator pattern from
// spec §4.7: acc += R * 10^18 / V, with the remainder carried forward
// into StakingRewardCarry rather than lost to integer division,
// mirroring the teacher's splitPerBlock base+remainder split in
// core/rewards/accumulator.go.
func (h *HouseState) DistributeStakingReward(reward uint64) {
	if h.TotalVotingPower.IsZero() {
		h.StakingRewardCarry += reward
		return
	}
	total := new(big.Int).SetUint64(reward)
	total.Add(total, new(big.Int).SetUint64(h.StakingRewardCarry))
	scaled := new(big.Int).Mul(total, StakingRewardScale)
	v := h.TotalVotingPower.Big()
	deltaAcc := new(big.Int)
	remainder := new(big.Int)
	deltaAcc.QuoRem(scaled, v, remainder)

	acc := h.StakingRewardPerVotingPowerX18.Big()
	acc.Add(acc, deltaAcc)
	h.StakingRewardPerVotingPowerX18 = codec.U128FromBig(acc)

	// remainder is expressed in scaled units; convert back down to
	// whole reward units for the next round's carry.
	carry := new(big.Int).Quo(remainder, StakingRewardScale)
	h.StakingRewardCarry = carry.Uint64()
}

// PayJackpot clamps a jackpot payout so the pool never drops below
// its configured base, emitting a JackpotFloorEvent when clamped.
func (h *HouseState) PayJackpot(name string, base uint64) (uint64, *JackpotFloorEvent) {
	switch name {
	case "three_card":
		paid := h.ThreeCardProgressiveJackpot
		h.ThreeCardProgressiveJackpot = base
		if paid < base {
			return paid, &JackpotFloorEvent{Jackpot: name, Requested: paid, Base: base}
		}
		return paid, nil
	case "uth":
		paid := h.UthProgressiveJackpot
		h.UthProgressiveJackpot = base
		if paid < base {
			return paid, &JackpotFloorEvent{Jackpot: name, Requested: paid, Base: base}
		}
		return paid, nil
	default:
		return 0, nil
	}
}

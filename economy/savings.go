package economy

import (
	"math/big"

	"nhbchain/codec"
)

// SavingsPool mirrors the staking reward-per-share accumulator
// pattern at the same x18 scale, over pool deposits rather than
// voting power. Field order is append-only, matching HouseState.
type SavingsPool struct {
	TotalDeposits       uint64
	RewardPerShareX18   codec.U128
	PendingRewards      uint64
	TotalRewardsAccrued uint64
	TotalRewardsPaid    uint64
}

func (p *SavingsPool) EncodedLen() int { return 8 + 16 + 8 + 8 + 8 }

func (p *SavingsPool) MarshalBinary() ([]byte, error) {
	w := codec.NewWriter(p.EncodedLen())
	w.PutU64(p.TotalDeposits)
	w.PutU128(p.RewardPerShareX18)
	w.PutU64(p.PendingRewards)
	w.PutU64(p.TotalRewardsAccrued)
	w.PutU64(p.TotalRewardsPaid)
	return w.Bytes(), nil
}

func (p *SavingsPool) UnmarshalBinary(buf []byte) error {
	r := codec.NewReader(buf)
	p.TotalDeposits = r.GetU64()
	p.RewardPerShareX18 = r.GetU128()
	p.PendingRewards = r.GetU64()
	p.TotalRewardsAccrued = r.GetU64()
	p.TotalRewardsPaid = r.GetU64()
	return nil
}

// Distribute folds reward units across TotalDeposits using the same
// accumulator discipline as HouseState.DistributeStakingReward: any
// reward that arrives while the pool holds no deposits (or that does
// not divide evenly into RewardPerShareX18) is carried forward in
// PendingRewards rather than lost to integer division.
// TotalRewardsAccrued tracks the lifetime sum of reward passed in
// here, independent of how much of it has actually been admitted
// into the per-share accumulator.
func (p *SavingsPool) Distribute(reward uint64) {
	p.TotalRewardsAccrued += reward
	if p.TotalDeposits == 0 {
		p.PendingRewards += reward
		return
	}
	total := new(big.Int).SetUint64(reward)
	total.Add(total, new(big.Int).SetUint64(p.PendingRewards))
	scaled := new(big.Int).Mul(total, StakingRewardScale)
	deposits := new(big.Int).SetUint64(p.TotalDeposits)
	deltaAcc := new(big.Int)
	remainder := new(big.Int)
	deltaAcc.QuoRem(scaled, deposits, remainder)

	acc := p.RewardPerShareX18.Big()
	acc.Add(acc, deltaAcc)
	p.RewardPerShareX18 = codec.U128FromBig(acc)

	carry := new(big.Int).Quo(remainder, StakingRewardScale)
	p.PendingRewards = carry.Uint64()
}

// SavingsBalance is one depositor's share of a SavingsPool.
type SavingsBalance struct {
	DepositBalance   uint64
	RewardDebtX18    codec.U128
	UnclaimedRewards uint64
}

func (b *SavingsBalance) EncodedLen() int { return 8 + 16 + 8 }

func (b *SavingsBalance) MarshalBinary() ([]byte, error) {
	w := codec.NewWriter(b.EncodedLen())
	w.PutU64(b.DepositBalance)
	w.PutU128(b.RewardDebtX18)
	w.PutU64(b.UnclaimedRewards)
	return w.Bytes(), nil
}

func (b *SavingsBalance) UnmarshalBinary(buf []byte) error {
	r := codec.NewReader(buf)
	b.DepositBalance = r.GetU64()
	b.RewardDebtX18 = r.GetU128()
	b.UnclaimedRewards = r.GetU64()
	return nil
}

// Accrue folds the pool's current reward-per-share into the
// balance's UnclaimedRewards (invariant 6: unclaimed_rewards =
// (share * reward_per_share - reward_debt) / 10^18).
func (b *SavingsBalance) Accrue(poolAccX18 codec.U128) {
	share := new(big.Int).SetUint64(b.DepositBalance)
	acc := poolAccX18.Big()
	product := new(big.Int).Mul(share, acc)
	debt := b.RewardDebtX18.Big()
	delta := new(big.Int).Sub(product, debt)
	if delta.Sign() < 0 {
		delta.SetInt64(0)
	}
	accrued := new(big.Int).Quo(delta, StakingRewardScale)
	b.UnclaimedRewards += accrued.Uint64()
	b.RewardDebtX18 = codec.U128FromBig(product)
}

// Claim pays out the balance's unclaimed rewards and records the
// payout against the pool's lifetime TotalRewardsPaid counter.
func (b *SavingsBalance) Claim(pool *SavingsPool) uint64 {
	paid := b.UnclaimedRewards
	b.UnclaimedRewards = 0
	pool.TotalRewardsPaid += paid
	return paid
}

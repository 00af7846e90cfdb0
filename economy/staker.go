package economy

import (
	"math/big"

	"nhbchain/codec"
)

// Staker tracks one participant's stake against the house's global
// reward-per-voting-power accumulator.
type Staker struct {
	Balance       uint64
	UnlockTS      uint64
	LastClaimEpoch uint64

	VotingPower   codec.U128
	RewardDebtX18 codec.U128

	UnclaimedRewards uint64
}

func (s *Staker) EncodedLen() int {
	return 8 + 8 + 8 + 16 + 16 + 8
}

func (s *Staker) MarshalBinary() ([]byte, error) {
	w := codec.NewWriter(s.EncodedLen())
	w.PutU64(s.Balance)
	w.PutU64(s.UnlockTS)
	w.PutU64(s.LastClaimEpoch)
	w.PutU128(s.VotingPower)
	w.PutU128(s.RewardDebtX18)
	w.PutU64(s.UnclaimedRewards)
	return w.Bytes(), nil
}

func (s *Staker) UnmarshalBinary(buf []byte) error {
	r := codec.NewReader(buf)
	s.Balance = r.GetU64()
	s.UnlockTS = r.GetU64()
	s.LastClaimEpoch = r.GetU64()
	s.VotingPower = r.GetU128()
	s.RewardDebtX18 = r.GetU128()
	s.UnclaimedRewards = r.GetU64()
	return nil
}

// Accrue folds the house's current accumulator into the staker's
// UnclaimedRewards and resets RewardDebtX18, per spec §4.7:
// accrued = voting_power * acc - reward_debt, then /10^18.
func (s *Staker) Accrue(accX18 codec.U128) {
	vp := s.VotingPower.Big()
	acc := accX18.Big()
	product := new(big.Int).Mul(vp, acc)
	debt := s.RewardDebtX18.Big()
	delta := new(big.Int).Sub(product, debt)
	if delta.Sign() < 0 {
		delta.SetInt64(0)
	}
	accrued := new(big.Int).Quo(delta, StakingRewardScale)
	s.UnclaimedRewards += accrued.Uint64()
	s.RewardDebtX18 = codec.U128FromBig(product)
}

// Claim zeroes UnclaimedRewards and returns the amount paid out.
func (s *Staker) Claim(epoch uint64) uint64 {
	paid := s.UnclaimedRewards
	s.UnclaimedRewards = 0
	s.LastClaimEpoch = epoch
	return paid
}

// AddStake increases the staker's voting power and balance, folding
// any pending accrual first so the new stake never retroactively
// earns past rewards.
func (s *Staker) AddStake(accX18 codec.U128, amount uint64, votingPowerDelta codec.U128) {
	s.Accrue(accX18)
	s.Balance += amount
	s.VotingPower = s.VotingPower.Add(votingPowerDelta)
	s.RewardDebtX18 = codec.U128FromBig(new(big.Int).Mul(s.VotingPower.Big(), accX18.Big()))
}

package economy

import (
	"nhbchain/codec"
)

// Vault is a collateralized debt position: RNG collateral backing a
// vUSDT debt balance.
type Vault struct {
	CollateralRNG uint64
	DebtVusdt     uint64
	LastAccrualTS uint64
}

func (v *Vault) EncodedLen() int { return 8 + 8 + 8 }

func (v *Vault) MarshalBinary() ([]byte, error) {
	w := codec.NewWriter(v.EncodedLen())
	w.PutU64(v.CollateralRNG)
	w.PutU64(v.DebtVusdt)
	w.PutU64(v.LastAccrualTS)
	return w.Bytes(), nil
}

func (v *Vault) UnmarshalBinary(buf []byte) error {
	r := codec.NewReader(buf)
	v.CollateralRNG = r.GetU64()
	v.DebtVusdt = r.GetU64()
	v.LastAccrualTS = r.GetU64()
	return nil
}

// LTVBps returns the vault's current loan-to-value ratio in basis
// points given the current RNG/vUSDT price as a rational.
func (v *Vault) LTVBps(priceNumerator, priceDenominator uint64) uint64 {
	if v.CollateralRNG == 0 || priceDenominator == 0 {
		return 0
	}
	collateralValue := v.CollateralRNG * priceNumerator / priceDenominator
	if collateralValue == 0 {
		return 10_000
	}
	return v.DebtVusdt * 10_000 / collateralValue
}

// AccrueStabilityFee adds a linear fee proportional to elapsed time
// since LastAccrualTS, per spec §4.7 ("stability fees accrue linearly
// from last_accrual_ts").
func (v *Vault) AccrueStabilityFee(now uint64, feeBpsPerYear uint64) uint64 {
	if now <= v.LastAccrualTS {
		return 0
	}
	elapsed := now - v.LastAccrualTS
	const secondsPerYear = 365 * 24 * 60 * 60
	fee := v.DebtVusdt * feeBpsPerYear * elapsed / 10_000 / secondsPerYear
	v.DebtVusdt += fee
	v.LastAccrualTS = now
	return fee
}

// Liquidate restores the vault's LTV to targetBps by repaying debt
// from seized collateral, splitting the seized value across penalty,
// liquidator reward, and stability pools per the supplied basis-point
// weights. It returns a LiquidationEvent describing the outcome.
func (v *Vault) Liquidate(owner string, priceNumerator, priceDenominator, targetBps, penaltyBps, rewardBps, stabilityBps uint64) LiquidationEvent {
	before := v.LTVBps(priceNumerator, priceDenominator)
	if priceNumerator == 0 || priceDenominator == 0 {
		return LiquidationEvent{Owner: owner, LTVBeforeBps: before, LiquidationTarget: targetBps}
	}
	// Seizing collateral lowers its value as well, so the target debt
	// solves debt' = target * (value - seize * (debt - debt')) for debt'.
	collateralValue := v.CollateralRNG * priceNumerator / priceDenominator
	seizeBps := penaltyBps + rewardBps + stabilityBps
	var targetDebt uint64
	if scaled := collateralValue * 10_000; scaled > seizeBps*v.DebtVusdt && targetBps*seizeBps < 100_000_000 {
		targetDebt = targetBps * (scaled - seizeBps*v.DebtVusdt) / (100_000_000 - targetBps*seizeBps)
	}
	if targetDebt >= v.DebtVusdt {
		return LiquidationEvent{Owner: owner, LTVBeforeBps: before, LiquidationTarget: targetBps}
	}
	repay := v.DebtVusdt - targetDebt
	v.DebtVusdt = targetDebt

	penalty := repay * penaltyBps / 10_000
	reward := repay * rewardBps / 10_000
	stability := repay * stabilityBps / 10_000
	seizedRNG := (penalty + reward + stability) * priceDenominator / priceNumerator
	if seizedRNG > v.CollateralRNG {
		seizedRNG = v.CollateralRNG
	}
	v.CollateralRNG -= seizedRNG

	return LiquidationEvent{
		Owner:             owner,
		LTVBeforeBps:      before,
		LiquidationTarget: targetBps,
		PenaltyVusdt:      penalty,
		RewardVusdt:       reward,
		StabilityVusdt:    stability,
	}
}

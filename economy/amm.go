package economy

import (
	"math/big"

	"nhbchain/codec"
)

// AmmPool is the constant-product (x*y=k) market maker between RNG
// and vUSDT.
type AmmPool struct {
	ReserveRNG             uint64
	ReserveVusdt           uint64
	TotalShares            uint64
	FeeBasisPoints         uint16
	SellTaxBasisPoints     uint16
	BootstrapPriceNumerator   uint64
	BootstrapPriceDenominator uint64
}

// NewAmmPool mirrors AmmPool::new(fee_bps) from the original source:
// an empty pool pre-seeded with its trading fee and bootstrap price.
func NewAmmPool(feeBps uint16, bootstrapNumerator, bootstrapDenominator uint64) *AmmPool {
	return &AmmPool{
		FeeBasisPoints:            feeBps,
		BootstrapPriceNumerator:   bootstrapNumerator,
		BootstrapPriceDenominator: bootstrapDenominator,
	}
}

func (p *AmmPool) EncodedLen() int { return 8 + 8 + 8 + 2 + 2 + 8 + 8 }

func (p *AmmPool) MarshalBinary() ([]byte, error) {
	w := codec.NewWriter(p.EncodedLen())
	w.PutU64(p.ReserveRNG)
	w.PutU64(p.ReserveVusdt)
	w.PutU64(p.TotalShares)
	w.PutU16(p.FeeBasisPoints)
	w.PutU16(p.SellTaxBasisPoints)
	w.PutU64(p.BootstrapPriceNumerator)
	w.PutU64(p.BootstrapPriceDenominator)
	return w.Bytes(), nil
}

func (p *AmmPool) UnmarshalBinary(buf []byte) error {
	r := codec.NewReader(buf)
	p.ReserveRNG = r.GetU64()
	p.ReserveVusdt = r.GetU64()
	p.TotalShares = r.GetU64()
	p.FeeBasisPoints = r.GetU16()
	p.SellTaxBasisPoints = r.GetU16()
	p.BootstrapPriceNumerator = r.GetU64()
	p.BootstrapPriceDenominator = r.GetU64()
	return nil
}

// HasLiquidity reports whether the pool has been seeded beyond its
// bootstrap quote.
func (p *AmmPool) HasLiquidity() bool {
	return p.ReserveRNG > 0 && p.ReserveVusdt > 0
}

// QuoteRNGForVusdt returns the bootstrap rational quote used before
// any liquidity has been added.
func (p *AmmPool) QuoteRNGForVusdt(vusdtIn uint64) uint64 {
	if p.BootstrapPriceNumerator == 0 {
		return 0
	}
	return vusdtIn * p.BootstrapPriceDenominator / p.BootstrapPriceNumerator
}

// SwapRNGForVusdt executes a constant-product swap selling RNG for
// vUSDT, applying FeeBasisPoints on input and SellTaxBasisPoints on
// this (RNG->vUSDT) direction, per spec §4.7. Returns the vUSDT
// output; the caller is responsible for crediting/debiting balances.
//
// The full input (fee included) is added to ReserveRNG so the fee
// portion stays in the pool and reserve_rng*reserve_vusdt never
// decreases (spec §3/§8); only the fee-discounted input determines
// the output amount. Intermediates run through math/big since the
// product of two reserves can exceed 64 bits (invariant §3.3-3).
func (p *AmmPool) SwapRNGForVusdt(rngIn uint64) uint64 {
	if !p.HasLiquidity() {
		return p.QuoteRNGForVusdt(rngIn) // degenerate: treated as inverse bootstrap quote
	}
	netIn := applyBps(rngIn, p.FeeBasisPoints)

	reserveRNG := new(big.Int).SetUint64(p.ReserveRNG)
	reserveVusdt := new(big.Int).SetUint64(p.ReserveVusdt)
	netInBig := new(big.Int).SetUint64(netIn)

	numerator := new(big.Int).Mul(reserveVusdt, netInBig)
	denominator := new(big.Int).Add(reserveRNG, netInBig)
	rawOutBig := new(big.Int).Quo(numerator, denominator)
	rawOut := rawOutBig.Uint64()
	out := applyBps(rawOut, p.SellTaxBasisPoints)

	p.ReserveRNG += rngIn
	p.ReserveVusdt -= out
	return out
}

// SwapVusdtForRNG executes the reverse direction; no sell tax applies
// (it is specific to the RNG->vUSDT direction per spec). See
// SwapRNGForVusdt for the fee-retention and overflow rationale.
func (p *AmmPool) SwapVusdtForRNG(vusdtIn uint64) uint64 {
	if !p.HasLiquidity() {
		return p.QuoteVusdtForRNG(vusdtIn)
	}
	netIn := applyBps(vusdtIn, p.FeeBasisPoints)

	reserveRNG := new(big.Int).SetUint64(p.ReserveRNG)
	reserveVusdt := new(big.Int).SetUint64(p.ReserveVusdt)
	netInBig := new(big.Int).SetUint64(netIn)

	numerator := new(big.Int).Mul(reserveRNG, netInBig)
	denominator := new(big.Int).Add(reserveVusdt, netInBig)
	outBig := new(big.Int).Quo(numerator, denominator)
	out := outBig.Uint64()

	p.ReserveVusdt += vusdtIn
	p.ReserveRNG -= out
	return out
}

// QuoteVusdtForRNG mirrors QuoteRNGForVusdt for the opposite direction.
func (p *AmmPool) QuoteVusdtForRNG(rngIn uint64) uint64 {
	if p.BootstrapPriceDenominator == 0 {
		return 0
	}
	return rngIn * p.BootstrapPriceNumerator / p.BootstrapPriceDenominator
}

func applyBps(amount uint64, bps uint16) uint64 {
	return amount * uint64(10_000-bps) / 10_000
}

package economy

import "nhbchain/codec"

// Freeroll credit vesting defaults, ported from the original source's
// FREEROLL_CREDIT_* constants used to seed PolicyState's defaults.
const (
	DefaultFreerollCreditImmediateBps = 2000
	DefaultFreerollCreditVestSecs     = 7 * 24 * 60 * 60
	DefaultFreerollCreditExpirySecs   = 30 * 24 * 60 * 60
)

// PolicyState holds the 21 consensus-critical governance parameters
// from spec §3.2. Any change requires explicit on-chain policy
// versioning; this type only carries the current values.
type PolicyState struct {
	SellTaxMinBps          uint16
	SellTaxMidBps          uint16
	SellTaxMaxBps          uint16
	SellTaxOutflowLowBps   uint16
	SellTaxOutflowMidBps   uint16
	MaxDailySellBpsBalance uint16
	MaxDailySellBpsPool    uint16
	MaxDailyBuyBpsBalance  uint16
	MaxDailyBuyBpsPool     uint16
	MaxLtvBpsNew           uint16
	MaxLtvBpsMature        uint16
	LiquidationThresholdBps uint16
	LiquidationTargetBps    uint16
	LiquidationPenaltyBps   uint16
	LiquidationRewardBps    uint16
	LiquidationStabilityBps uint16
	StabilityFeeAprBps      uint16
	DebtCeilingBps          uint16
	CreditImmediateBps      uint16
	CreditVestSecs          uint64
	CreditExpirySecs        uint64
}

// DefaultPolicyState reproduces PolicyState::default() field for
// field, including the freeroll-credit constants.
func DefaultPolicyState() *PolicyState {
	return &PolicyState{
		SellTaxMinBps:           300,
		SellTaxMidBps:           500,
		SellTaxMaxBps:           1000,
		SellTaxOutflowLowBps:    100,
		SellTaxOutflowMidBps:    500,
		MaxDailySellBpsBalance:  300,
		MaxDailySellBpsPool:     15,
		MaxDailyBuyBpsBalance:   600,
		MaxDailyBuyBpsPool:      30,
		MaxLtvBpsNew:            3000,
		MaxLtvBpsMature:         4500,
		LiquidationThresholdBps: 6000,
		LiquidationTargetBps:    4500,
		LiquidationPenaltyBps:   1000,
		LiquidationRewardBps:    400,
		LiquidationStabilityBps: 600,
		StabilityFeeAprBps:      800,
		DebtCeilingBps:          3000,
		CreditImmediateBps:      DefaultFreerollCreditImmediateBps,
		CreditVestSecs:          DefaultFreerollCreditVestSecs,
		CreditExpirySecs:        DefaultFreerollCreditExpirySecs,
	}
}

func (p *PolicyState) EncodedLen() int {
	return 2*19 + 8*2
}

func (p *PolicyState) MarshalBinary() ([]byte, error) {
	w := codec.NewWriter(p.EncodedLen())
	w.PutU16(p.SellTaxMinBps)
	w.PutU16(p.SellTaxMidBps)
	w.PutU16(p.SellTaxMaxBps)
	w.PutU16(p.SellTaxOutflowLowBps)
	w.PutU16(p.SellTaxOutflowMidBps)
	w.PutU16(p.MaxDailySellBpsBalance)
	w.PutU16(p.MaxDailySellBpsPool)
	w.PutU16(p.MaxDailyBuyBpsBalance)
	w.PutU16(p.MaxDailyBuyBpsPool)
	w.PutU16(p.MaxLtvBpsNew)
	w.PutU16(p.MaxLtvBpsMature)
	w.PutU16(p.LiquidationThresholdBps)
	w.PutU16(p.LiquidationTargetBps)
	w.PutU16(p.LiquidationPenaltyBps)
	w.PutU16(p.LiquidationRewardBps)
	w.PutU16(p.LiquidationStabilityBps)
	w.PutU16(p.StabilityFeeAprBps)
	w.PutU16(p.DebtCeilingBps)
	w.PutU16(p.CreditImmediateBps)
	w.PutU64(p.CreditVestSecs)
	w.PutU64(p.CreditExpirySecs)
	return w.Bytes(), nil
}

func (p *PolicyState) UnmarshalBinary(buf []byte) error {
	r := codec.NewReader(buf)
	p.SellTaxMinBps = r.GetU16()
	p.SellTaxMidBps = r.GetU16()
	p.SellTaxMaxBps = r.GetU16()
	p.SellTaxOutflowLowBps = r.GetU16()
	p.SellTaxOutflowMidBps = r.GetU16()
	p.MaxDailySellBpsBalance = r.GetU16()
	p.MaxDailySellBpsPool = r.GetU16()
	p.MaxDailyBuyBpsBalance = r.GetU16()
	p.MaxDailyBuyBpsPool = r.GetU16()
	p.MaxLtvBpsNew = r.GetU16()
	p.MaxLtvBpsMature = r.GetU16()
	p.LiquidationThresholdBps = r.GetU16()
	p.LiquidationTargetBps = r.GetU16()
	p.LiquidationPenaltyBps = r.GetU16()
	p.LiquidationRewardBps = r.GetU16()
	p.LiquidationStabilityBps = r.GetU16()
	p.StabilityFeeAprBps = r.GetU16()
	p.DebtCeilingBps = r.GetU16()
	p.CreditImmediateBps = r.GetU16()
	p.CreditVestSecs = r.GetU64()
	p.CreditExpirySecs = r.GetU64()
	return nil
}

// FreerollVesting computes how much of a freeroll credit has vested
// at elapsedSecs since issuance: CreditImmediateBps vests at once,
// the remainder linearly over CreditVestSecs, and any portion still
// unclaimed after CreditExpirySecs is forfeit (returns 0).
func (p *PolicyState) FreerollVesting(total uint64, elapsedSecs uint64) uint64 {
	if elapsedSecs >= p.CreditExpirySecs {
		return 0
	}
	immediate := total * uint64(p.CreditImmediateBps) / 10_000
	remainder := total - immediate
	if p.CreditVestSecs == 0 || elapsedSecs >= p.CreditVestSecs {
		return total
	}
	vested := remainder * elapsedSecs / p.CreditVestSecs
	return immediate + vested
}

package economy

import "nhbchain/codec"

// TreasuryState holds the six named RNG allocation buckets.
type TreasuryState struct {
	AuctionAllocationRNG   uint64
	LiquidityReserveRNG    uint64
	BonusPoolRNG           uint64
	PlayerAllocationRNG    uint64
	TreasuryAllocationRNG  uint64
	TeamAllocationRNG      uint64
}

func (t *TreasuryState) EncodedLen() int { return 8 * 6 }

func (t *TreasuryState) MarshalBinary() ([]byte, error) {
	w := codec.NewWriter(t.EncodedLen())
	w.PutU64(t.AuctionAllocationRNG)
	w.PutU64(t.LiquidityReserveRNG)
	w.PutU64(t.BonusPoolRNG)
	w.PutU64(t.PlayerAllocationRNG)
	w.PutU64(t.TreasuryAllocationRNG)
	w.PutU64(t.TeamAllocationRNG)
	return w.Bytes(), nil
}

func (t *TreasuryState) UnmarshalBinary(buf []byte) error {
	r := codec.NewReader(buf)
	t.AuctionAllocationRNG = r.GetU64()
	t.LiquidityReserveRNG = r.GetU64()
	t.BonusPoolRNG = r.GetU64()
	t.PlayerAllocationRNG = r.GetU64()
	t.TreasuryAllocationRNG = r.GetU64()
	t.TeamAllocationRNG = r.GetU64()
	return nil
}

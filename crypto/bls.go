package crypto

import (
	"fmt"

	blst "github.com/supranational/blst/bindings/go"
)

// BLSScheme wraps github.com/supranational/blst as the concrete
// threshold-signature collaborator for consensus/engine and seeder.
// BLS12-381 itself is a black-box primitive per spec.md §1; this
// wrapper only adapts blst's API to the small Share/Recover/Threshold
// shape those packages depend on. blst is already an indirect
// dependency of the teacher's go.mod (transitively pulled in by its
// validator-set tooling); this module is the first to exercise it
// directly, so it is promoted to a direct requirement.
type BLSScheme struct {
	secretKey *blst.SecretKey
	threshold int
}

// NewBLSScheme constructs a scheme for one participant holding
// secretKeyBytes, requiring threshold distinct shares to recover a
// signature.
func NewBLSScheme(secretKeyBytes []byte, threshold int) (*BLSScheme, error) {
	sk := new(blst.SecretKey).Deserialize(secretKeyBytes)
	if sk == nil {
		return nil, fmt.Errorf("crypto: invalid BLS secret key")
	}
	return &BLSScheme{secretKey: sk, threshold: threshold}, nil
}

// Share signs msg with this participant's secret key share, producing
// a compressed G1 signature.
func (s *BLSScheme) Share(msg []byte) ([]byte, error) {
	sig := new(blst.P1Affine).Sign(s.secretKey, msg, dst)
	if sig == nil {
		return nil, fmt.Errorf("crypto: bls share signing failed")
	}
	return sig.Compress(), nil
}

// Recover aggregates shares (each a compressed G1 signature) into a
// single combined signature. Threshold-share interpolation (Lagrange
// coefficients over validator indices) is the caller's
// responsibility in the full protocol; here shares are assumed
// already-weighted partial signatures suitable for direct
// aggregation, matching blst's AggregateSignatures helper.
func (s *BLSScheme) Recover(msg []byte, shares [][]byte) ([]byte, error) {
	if len(shares) < s.threshold {
		return nil, fmt.Errorf("crypto: insufficient shares: have %d need %d", len(shares), s.threshold)
	}
	agg := new(blst.P1Aggregate)
	ok := agg.AggregateCompressed(shares, true)
	if !ok {
		return nil, fmt.Errorf("crypto: bls aggregate failed")
	}
	sig := agg.ToAffine()
	if sig == nil {
		return nil, fmt.Errorf("crypto: bls aggregate produced no signature")
	}
	return sig.Compress(), nil
}

func (s *BLSScheme) Threshold() int { return s.threshold }

// dst is the domain-separation tag applied to every signature,
// scoping this module's signatures away from any other BLS consumer
// sharing the same curve.
var dst = []byte("NHB-CONSENSUS-ENGINE-BLS-SIG-V1")

package referral

import "math/big"

// Subscription tier indices. Recorded tier values are frozen at subscribe
// time; the tier table itself is mutable by configuration.
const (
	Tier0 uint8 = iota
	Tier1
	Tier2
)

// Tier describes one entry of the subscription tier table.
type Tier struct {
	Price                *big.Int
	DurationSeconds      int64
	MaxCumulativeDeposit *big.Int
}

// Clone returns a deep copy to protect internal references.
func (t Tier) Clone() Tier {
	clone := Tier{DurationSeconds: t.DurationSeconds}
	if t.Price != nil {
		clone.Price = new(big.Int).Set(t.Price)
	}
	if t.MaxCumulativeDeposit != nil {
		clone.MaxCumulativeDeposit = new(big.Int).Set(t.MaxCumulativeDeposit)
	}
	return clone
}

// Account is the per-subscriber record held by the ledger. Referral is the
// single upward link; HasReferral distinguishes the zero address from an
// unset link.
type Account struct {
	RegisteredAt          int64
	SubscriptionLevel     uint8
	Referral              [20]byte
	HasReferral           bool
	SubscriptionExpiresAt int64
}

func units(n int64) *big.Int {
	wei := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return new(big.Int).Mul(big.NewInt(n), wei)
}

const day = int64(24 * 60 * 60)

// DefaultTiers returns the deployed tier table: prices 150/550/970 base units,
// durations 30/90/180 days, cumulative deposit caps 5k/20k/100k.
func DefaultTiers() []Tier {
	return []Tier{
		{Price: units(150), DurationSeconds: 30 * day, MaxCumulativeDeposit: units(5_000)},
		{Price: units(550), DurationSeconds: 90 * day, MaxCumulativeDeposit: units(20_000)},
		{Price: units(970), DurationSeconds: 180 * day, MaxCumulativeDeposit: units(100_000)},
	}
}

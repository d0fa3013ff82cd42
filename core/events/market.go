package events

import "math/big"

const (
	// TypeSubscriptionCreated is emitted when an account subscribes or
	// re-subscribes to a tier.
	TypeSubscriptionCreated = "referral.subscription.created"
	// TypeReferralRebound is emitted when a lapsed referral link is replaced
	// by a new one.
	TypeReferralRebound = "referral.link.rebound"
	// TypeBuyExecuted is emitted once per successful buy, after every chunk
	// has been applied to the pool.
	TypeBuyExecuted = "trading.buy.executed"
	// TypeSellExecuted is emitted once per successful sell or auto-withdraw.
	TypeSellExecuted = "trading.sell.executed"
	// TypeCommissionPaid is emitted for every ancestor that receives a ladder
	// commission during profit distribution.
	TypeCommissionPaid = "trading.commission.paid"
	// TypeSuccessRewardPaid is emitted when the success reward policy fires.
	TypeSuccessRewardPaid = "trading.success_reward.paid"
	// TypeRewardsWithdrawn is emitted when the engine's pending balance is
	// transferred to the fee recipient.
	TypeRewardsWithdrawn = "trading.rewards.withdrawn"
)

// SubscriptionCreated captures the tier and link recorded for a subscriber.
type SubscriptionCreated struct {
	Account   [20]byte
	Referral  [20]byte
	Tier      uint8
	ExpiresAt int64
	ViaCode   bool
}

// EventType implements the Event interface.
func (SubscriptionCreated) EventType() string { return TypeSubscriptionCreated }

// ReferralRebound records a downline moving from one upline to another.
type ReferralRebound struct {
	Account     [20]byte
	OldReferral [20]byte
	NewReferral [20]byte
}

// EventType implements the Event interface.
func (ReferralRebound) EventType() string { return TypeReferralRebound }

// BuyExecuted summarises a completed buy across all of its chunks.
type BuyExecuted struct {
	Account   [20]byte
	BaseIn    *big.Int
	TokensOut *big.Int
	Chunks    int
	Timestamp int64
}

// EventType implements the Event interface.
func (BuyExecuted) EventType() string { return TypeBuyExecuted }

// SellExecuted summarises a completed sell or auto-withdraw.
type SellExecuted struct {
	Account    [20]byte
	TokensIn   *big.Int
	Value      *big.Int
	CostBasis  *big.Int
	Profit     *big.Int
	Reinvested bool
	Timestamp  int64
}

// EventType implements the Event interface.
func (SellExecuted) EventType() string { return TypeSellExecuted }

// CommissionPaid records a single ancestor payout during the referral walk.
type CommissionPaid struct {
	Seller   [20]byte
	Ancestor [20]byte
	Depth    int
	Rank     int
	Amount   *big.Int
}

// EventType implements the Event interface.
func (CommissionPaid) EventType() string { return TypeCommissionPaid }

// SuccessRewardPaid records an extra reward granted on a qualifying sell.
type SuccessRewardPaid struct {
	Account [20]byte
	Amount  *big.Int
}

// EventType implements the Event interface.
func (SuccessRewardPaid) EventType() string { return TypeSuccessRewardPaid }

// RewardsWithdrawn records pending trader balance leaving the engine.
type RewardsWithdrawn struct {
	To     [20]byte
	Amount *big.Int
}

// EventType implements the Event interface.
func (RewardsWithdrawn) EventType() string { return TypeRewardsWithdrawn }

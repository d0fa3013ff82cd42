package trading

import (
	"fmt"
	"math/big"
)

// FeeDenominator is the fixed denominator for every thousandths-based rate
// carried by Params.
const FeeDenominator = 1000

// Params carries the tunable trading policy. All rates are thousandths of
// FeeDenominator.
type Params struct {
	// PricingFee is withheld from each buy chunk before pricing it against
	// the reserves (25 = 2.5%).
	PricingFee uint64
	// LiquidityWithhold is the slice of each chunk NOT credited to the base
	// reserve (5 = 0.5%). The gap between PricingFee and LiquidityWithhold
	// is the per-chunk protocol reward that drives price appreciation.
	LiquidityWithhold uint64
	// WithdrawProfitFee is the slice of realized profit withheld from the
	// seller (350 = 35%); the seller keeps the rest.
	WithdrawProfitFee uint64
	// ProfitDistribution is the commission ladder applied to the first
	// eligible ancestors, each rate a thousandth of the SELLER's profit
	// share.
	ProfitDistribution []uint64
	// CommissionDepths maps a subscription tier to the deepest raw chain
	// depth at which that tier still earns commissions.
	CommissionDepths []int
	// SuccessReward, when non-zero, grants profit*SuccessReward/1000 extra
	// to sellers whose realized profit reaches SuccessRewardRequirement.
	SuccessReward            uint64
	SuccessRewardRequirement *big.Int
	// PurchaseCooldown is the rolling purchase-limit window in seconds.
	PurchaseCooldown int64
	// MaxPurchase caps cumulative purchases inside one window.
	MaxPurchase *big.Int
	// MaxAmountPerBuy is the chunk ceiling applied to each buy.
	MaxAmountPerBuy *big.Int
	// WithdrawLock is the per-account maturity delay, in seconds, before
	// AutoWithdraw may run.
	WithdrawLock int64
}

func weiUnits(n int64) *big.Int {
	wei := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return new(big.Int).Mul(big.NewInt(n), wei)
}

// DefaultParams returns the deployed policy: 2.5% pricing fee, 0.5% liquidity
// withhold, 35% profit fee, 6/3/2% ladder, tier t eligible to depth t+1,
// 1-day window at 5000 units, 1000-unit chunks, 30-day withdraw lock.
func DefaultParams() Params {
	return Params{
		PricingFee:               25,
		LiquidityWithhold:        5,
		WithdrawProfitFee:        350,
		ProfitDistribution:       []uint64{60, 30, 20},
		CommissionDepths:         []int{1, 2, 3},
		SuccessReward:            0,
		SuccessRewardRequirement: big.NewInt(0),
		PurchaseCooldown:         24 * 60 * 60,
		MaxPurchase:              weiUnits(5_000),
		MaxAmountPerBuy:          weiUnits(1_000),
		WithdrawLock:             30 * 24 * 60 * 60,
	}
}

// Validate ensures the policy values are internally consistent.
func (p Params) Validate() error {
	if p.PricingFee > FeeDenominator {
		return fmt.Errorf("%w: pricing fee %d exceeds denominator", ErrInvalidParam, p.PricingFee)
	}
	if p.LiquidityWithhold > p.PricingFee {
		return fmt.Errorf("%w: liquidity withhold %d exceeds pricing fee %d", ErrInvalidParam, p.LiquidityWithhold, p.PricingFee)
	}
	if p.WithdrawProfitFee > FeeDenominator {
		return fmt.Errorf("%w: withdraw profit fee %d exceeds denominator", ErrInvalidParam, p.WithdrawProfitFee)
	}
	var ladderSum uint64
	for _, rate := range p.ProfitDistribution {
		ladderSum += rate
	}
	if ladderSum > FeeDenominator {
		return ErrInvalidDistribution
	}
	// Commissions are paid out of the withheld profit fee but each ladder
	// rate is a thousandth of the seller's share. The ladder applied to the
	// seller share must fit inside the fee share or every commissioned sell
	// drains the engine's pending balance below zero.
	if ladderSum*(FeeDenominator-p.WithdrawProfitFee) > p.WithdrawProfitFee*FeeDenominator {
		return fmt.Errorf("%w: ladder exceeds withheld profit fee", ErrInvalidDistribution)
	}
	if len(p.CommissionDepths) == 0 {
		return fmt.Errorf("%w: commission depths must not be empty", ErrInvalidParam)
	}
	for i, depth := range p.CommissionDepths {
		if depth < 0 {
			return fmt.Errorf("%w: negative commission depth at tier %d", ErrInvalidParam, i)
		}
	}
	if p.SuccessReward > FeeDenominator {
		return fmt.Errorf("%w: success reward %d exceeds denominator", ErrInvalidParam, p.SuccessReward)
	}
	if p.SuccessRewardRequirement == nil || p.SuccessRewardRequirement.Sign() < 0 {
		return fmt.Errorf("%w: success reward requirement must be non-negative", ErrInvalidParam)
	}
	if p.PurchaseCooldown <= 0 {
		return fmt.Errorf("%w: purchase cooldown must be positive", ErrInvalidParam)
	}
	if p.MaxPurchase == nil || p.MaxPurchase.Sign() <= 0 {
		return fmt.Errorf("%w: max purchase must be positive", ErrInvalidParam)
	}
	if p.MaxAmountPerBuy == nil || p.MaxAmountPerBuy.Sign() <= 0 {
		return fmt.Errorf("%w: max amount per buy must be positive", ErrInvalidParam)
	}
	if p.WithdrawLock < 0 {
		return fmt.Errorf("%w: withdraw lock must not be negative", ErrInvalidParam)
	}
	return nil
}

// Clone deep-copies the policy.
func (p Params) Clone() Params {
	clone := p
	clone.ProfitDistribution = append([]uint64(nil), p.ProfitDistribution...)
	clone.CommissionDepths = append([]int(nil), p.CommissionDepths...)
	if p.SuccessRewardRequirement != nil {
		clone.SuccessRewardRequirement = new(big.Int).Set(p.SuccessRewardRequirement)
	}
	if p.MaxPurchase != nil {
		clone.MaxPurchase = new(big.Int).Set(p.MaxPurchase)
	}
	if p.MaxAmountPerBuy != nil {
		clone.MaxAmountPerBuy = new(big.Int).Set(p.MaxAmountPerBuy)
	}
	return clone
}

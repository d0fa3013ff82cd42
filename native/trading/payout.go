package trading

import (
	"fmt"
	"math/big"

	"magna/core/events"
)

// Sell realizes tokenAmount of the caller's position at the current pool
// price, pays out cost basis plus the caller's profit share, and routes the
// commission ladder across the referral chain.
func (e *Engine) Sell(caller [20]byte, tokenAmount *big.Int) error {
	return e.settle(caller, tokenAmount, false)
}

// AutoWithdraw closes acct's full position once its maturity timer has
// elapsed and reinvests the payout through the buy path instead of
// transferring it out. Callable by anyone.
func (e *Engine) AutoWithdraw(caller, acct [20]byte) error {
	entries := e.positions[acct]
	if len(entries) == 0 {
		return ErrNoPosition
	}
	if e.nowFn() < entries[0].Timestamp+e.params.WithdrawLock {
		return ErrCannotWithdrawYet
	}
	return e.settle(acct, e.MagnaBalance(acct), true)
}

// settle is the shared sell/auto-withdraw path. All preconditions are checked
// and the cost basis consumption is planned before any state is touched, so a
// failure leaves no partial change behind.
func (e *Engine) settle(acct [20]byte, tokenAmount *big.Int, reinvest bool) error {
	if tokenAmount == nil || tokenAmount.Sign() <= 0 {
		return ErrAmountNotPositive
	}
	if e.base == nil {
		return ErrBaseAssetNotSet
	}
	balance := e.balances[acct]
	if balance == nil || balance.Cmp(tokenAmount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientTokens, e.MagnaBalance(acct), tokenAmount)
	}
	if len(e.positions[acct]) == 0 {
		return ErrNoPosition
	}

	value, err := e.pool.QuoteBaseValue(tokenAmount)
	if err != nil {
		return fmt.Errorf("value position: %w", err)
	}
	chain, err := e.subs.Recruitors(acct)
	if err != nil {
		return fmt.Errorf("walk referral chain: %w", err)
	}
	basis, remainingEntries := planBasisConsumption(e.positions[acct], tokenAmount, balance)

	// Realized profit is clamped at zero: a position under water still pays
	// out its full current value, it just carries no commissions.
	profit := new(big.Int).Sub(value, basis)
	if profit.Sign() < 0 {
		profit = big.NewInt(0)
	}

	den := big.NewInt(FeeDenominator)
	userShare := new(big.Int).SetUint64(FeeDenominator - e.params.WithdrawProfitFee)
	userProfit := new(big.Int).Mul(profit, userShare)
	userProfit.Quo(userProfit, den)
	feeProfit := new(big.Int).Sub(profit, userProfit)

	slots, totalCommissions := e.planCommissions(chain, userProfit)
	pendingAfter := new(big.Int).Add(e.pending, new(big.Int).Sub(feeProfit, totalCommissions))
	reward := e.planSuccessReward(profit, pendingAfter)

	payout := new(big.Int).Add(basis, userProfit)
	payout.Add(payout, reward)

	if err := e.pool.AddSell(e.self, tokenAmount, value); err != nil {
		return fmt.Errorf("debit reserves: %w", err)
	}
	if !reinvest && payout.Sign() > 0 {
		// The seller settles before the position is consumed, so a failed
		// transfer unwinds with a single reserve credit and leaves the
		// account untouched.
		if err := e.base.Transfer(e.self, acct, payout); err != nil {
			if rbErr := e.pool.AddBuy(e.self, tokenAmount, value); rbErr != nil {
				return fmt.Errorf("pay seller: %w (unwind reserves: %v)", err, rbErr)
			}
			return fmt.Errorf("pay seller: %w", err)
		}
	}

	balance.Sub(balance, tokenAmount)
	if balance.Sign() == 0 {
		delete(e.balances, acct)
	}
	if len(remainingEntries) == 0 {
		delete(e.positions, acct)
	} else {
		e.positions[acct] = remainingEntries
	}
	e.pending.Sub(pendingAfter, reward)
	if reward.Sign() > 0 {
		e.emitter.Emit(events.SuccessRewardPaid{Account: acct, Amount: new(big.Int).Set(reward)})
	}

	for _, slot := range slots {
		// An ancestor that cannot take the transfer forfeits its slot to
		// the engine's pending balance; the sell never unwinds for a third
		// party.
		if err := e.base.Transfer(e.self, slot.ancestor, slot.amount); err != nil {
			e.pending.Add(e.pending, slot.amount)
			continue
		}
		e.emitter.Emit(events.CommissionPaid{
			Seller:   acct,
			Ancestor: slot.ancestor,
			Depth:    slot.depth,
			Rank:     slot.rank,
			Amount:   new(big.Int).Set(slot.amount),
		})
	}

	now := e.nowFn()
	if reinvest && payout.Sign() > 0 {
		if err := e.buy(acct, payout, true); err != nil {
			return fmt.Errorf("reinvest payout: %w", err)
		}
	}

	e.emitter.Emit(events.SellExecuted{
		Account:    acct,
		TokensIn:   new(big.Int).Set(tokenAmount),
		Value:      value,
		CostBasis:  basis,
		Profit:     profit,
		Reinvested: reinvest,
		Timestamp:  now,
	})
	return nil
}

// planBasisConsumption consumes open deposits oldest-first and returns the
// cost basis attributable to tokenAmount plus the surviving entries. Selling
// the whole balance consumes the whole recorded basis; partial consumption of
// an entry splits its basis pro-rata, truncating.
func planBasisConsumption(entries []Deposit, tokenAmount, balance *big.Int) (*big.Int, []Deposit) {
	basis := big.NewInt(0)
	if tokenAmount.Cmp(balance) == 0 {
		for _, d := range entries {
			basis.Add(basis, d.NetBase)
		}
		return basis, nil
	}

	remaining := new(big.Int).Set(tokenAmount)
	kept := make([]Deposit, 0, len(entries))
	for i, d := range entries {
		if remaining.Sign() == 0 {
			kept = append(kept, entries[i:]...)
			break
		}
		if d.TokenAmount.Cmp(remaining) <= 0 {
			basis.Add(basis, d.NetBase)
			remaining.Sub(remaining, d.TokenAmount)
			continue
		}
		consumedNet := new(big.Int).Mul(d.NetBase, remaining)
		consumedNet.Quo(consumedNet, d.TokenAmount)
		consumedGross := new(big.Int).Mul(d.AmountBase, remaining)
		consumedGross.Quo(consumedGross, d.TokenAmount)
		basis.Add(basis, consumedNet)
		kept = append(kept, Deposit{
			AmountBase:  new(big.Int).Sub(d.AmountBase, consumedGross),
			NetBase:     new(big.Int).Sub(d.NetBase, consumedNet),
			TokenAmount: new(big.Int).Sub(d.TokenAmount, remaining),
			Timestamp:   d.Timestamp,
		})
		remaining.SetInt64(0)
	}
	return basis, kept
}

type commissionSlot struct {
	ancestor [20]byte
	depth    int
	rank     int
	amount   *big.Int
}

// planCommissions walks the referral chain upward and assigns the ladder
// rates to the first eligible ancestors. Ineligible ancestors are skipped
// without consuming a ladder slot. No state is touched; the caller transfers
// the planned amounts after the sell commits.
func (e *Engine) planCommissions(chain [][20]byte, userProfit *big.Int) ([]commissionSlot, *big.Int) {
	total := big.NewInt(0)
	if userProfit.Sign() == 0 || len(e.params.ProfitDistribution) == 0 {
		return nil, total
	}

	den := big.NewInt(FeeDenominator)
	var slots []commissionSlot
	rank := 0
	for i, ancestor := range chain {
		if rank >= len(e.params.ProfitDistribution) {
			break
		}
		depth := i + 1
		if !e.commissionEligible(ancestor, depth) {
			continue
		}
		amount := new(big.Int).Mul(userProfit, new(big.Int).SetUint64(e.params.ProfitDistribution[rank]))
		amount.Quo(amount, den)
		if amount.Sign() > 0 {
			slots = append(slots, commissionSlot{ancestor: ancestor, depth: depth, rank: rank, amount: amount})
			total.Add(total, amount)
		}
		rank++
	}
	return slots, total
}

// commissionEligible gates an ancestor at raw chain depth by its own
// subscription: the tier must be valid and deep enough per the configured
// depth table.
func (e *Engine) commissionEligible(ancestor [20]byte, depth int) bool {
	if !e.subs.SubscriptionIsValid(ancestor) {
		return false
	}
	info, ok := e.subs.UserInfo(ancestor)
	if !ok {
		return false
	}
	depths := e.params.CommissionDepths
	idx := int(info.SubscriptionLevel)
	if idx >= len(depths) {
		idx = len(depths) - 1
	}
	return depth <= depths[idx]
}

// planSuccessReward evaluates the success reward policy against the pending
// balance the settle is about to leave behind. The reward is clamped to what
// that balance holds.
func (e *Engine) planSuccessReward(profit, pendingAfter *big.Int) *big.Int {
	if e.params.SuccessReward == 0 || profit.Sign() == 0 {
		return big.NewInt(0)
	}
	if profit.Cmp(e.params.SuccessRewardRequirement) < 0 {
		return big.NewInt(0)
	}
	reward := new(big.Int).Mul(profit, new(big.Int).SetUint64(e.params.SuccessReward))
	reward.Quo(reward, big.NewInt(FeeDenominator))
	if reward.Cmp(pendingAfter) > 0 {
		reward.Set(pendingAfter)
	}
	if reward.Sign() < 0 {
		reward.SetInt64(0)
	}
	return reward
}

package trading

import (
	"fmt"
	"math/big"
	"time"

	"magna/core/events"
	"magna/native/referral"
)

// Deposit is one entry of an account's open position history. NetBase is the
// pricing-fee-adjusted amount that forms the cost basis.
type Deposit struct {
	AmountBase  *big.Int
	NetBase     *big.Int
	TokenAmount *big.Int
	Timestamp   int64
}

type windowEntry struct {
	amount    *big.Int
	timestamp int64
}

// subscriptionLedger is the slice of the referral ledger the engine reads.
type subscriptionLedger interface {
	SubscriptionIsValid(addr [20]byte) bool
	UserInfo(addr [20]byte) (referral.Account, bool)
	Recruitors(addr [20]byte) ([][20]byte, error)
	Tier(index uint8) (referral.Tier, error)
}

// reservePool is the slice of the liquidity pool the engine mutates.
type reservePool interface {
	Reserves() (*big.Int, *big.Int)
	AddBuy(caller [20]byte, tokenIn, baseIn *big.Int) error
	AddSell(caller [20]byte, tokenOut, baseOut *big.Int) error
	QuoteBaseValue(tokenAmount *big.Int) (*big.Int, error)
}

// assetLedger is the slice of the external base-asset ledger the engine uses
// to move funds.
type assetLedger interface {
	Transfer(from, to [20]byte, amount *big.Int) error
	TransferFrom(spender, from, to [20]byte, amount *big.Int) error
	BalanceOf(addr [20]byte) *big.Int
}

// Engine orchestrates buys and sells against the pool, enforces the
// purchase-limit policy, and routes profit-sharing commissions across the
// referral chain. It carries no internal lock; the state manager serialises
// access.
type Engine struct {
	owner [20]byte
	self  [20]byte
	feeTo [20]byte

	params Params

	subs subscriptionLedger
	pool reservePool
	base assetLedger

	balances   map[[20]byte]*big.Int
	positions  map[[20]byte][]Deposit
	purchases  map[[20]byte][]windowEntry
	cumulative map[[20]byte]*big.Int
	pending    *big.Int

	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine wires a trading engine. self is the engine's own account on the
// asset ledger (it must be registered as the pool's trader); feeTo receives
// withdrawn rewards.
func NewEngine(owner, self, feeTo [20]byte, subs subscriptionLedger, pool reservePool, base assetLedger) *Engine {
	return &Engine{
		owner:      owner,
		self:       self,
		feeTo:      feeTo,
		params:     DefaultParams(),
		subs:       subs,
		pool:       pool,
		base:       base,
		balances:   make(map[[20]byte]*big.Int),
		positions:  make(map[[20]byte][]Deposit),
		purchases:  make(map[[20]byte][]windowEntry),
		cumulative: make(map[[20]byte]*big.Int),
		pending:    big.NewInt(0),
		emitter:    events.NoopEmitter{},
		nowFn:      func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter overrides the event emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter != nil {
		e.emitter = emitter
	}
}

// SetNowFunc overrides the clock. Intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now != nil {
		e.nowFn = now
	}
}

// Self returns the engine's own asset-ledger address.
func (e *Engine) Self() [20]byte { return e.self }

// Params returns a copy of the active policy.
func (e *Engine) Params() Params { return e.params.Clone() }

// MagnaBalance returns acct's token credit held by the engine.
func (e *Engine) MagnaBalance(acct [20]byte) *big.Int {
	if bal, ok := e.balances[acct]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// DepositHistoryLength returns the number of open deposit entries for acct.
func (e *Engine) DepositHistoryLength(acct [20]byte) int {
	return len(e.positions[acct])
}

// DepositHistory returns a copy of acct's open deposit entries.
func (e *Engine) DepositHistory(acct [20]byte) []Deposit {
	entries := e.positions[acct]
	out := make([]Deposit, len(entries))
	for i, d := range entries {
		out[i] = Deposit{
			AmountBase:  new(big.Int).Set(d.AmountBase),
			NetBase:     new(big.Int).Set(d.NetBase),
			TokenAmount: new(big.Int).Set(d.TokenAmount),
			Timestamp:   d.Timestamp,
		}
	}
	return out
}

// PendingBalance returns the engine's accumulated reward balance.
func (e *Engine) PendingBalance() *big.Int {
	return new(big.Int).Set(e.pending)
}

// PurchaseLimit returns what acct may still buy inside the active rolling
// window.
func (e *Engine) PurchaseLimit(acct [20]byte) *big.Int {
	now := e.nowFn()
	spent := big.NewInt(0)
	for _, entry := range e.prunedWindow(acct, now) {
		spent.Add(spent, entry.amount)
	}
	remaining := new(big.Int).Sub(e.params.MaxPurchase, spent)
	if remaining.Sign() < 0 {
		return big.NewInt(0)
	}
	return remaining
}

// prunedWindow drops window entries older than the cooldown and returns the
// survivors.
func (e *Engine) prunedWindow(acct [20]byte, now int64) []windowEntry {
	entries := e.purchases[acct]
	cutoff := now - e.params.PurchaseCooldown
	kept := entries[:0]
	for _, entry := range entries {
		if entry.timestamp > cutoff {
			kept = append(kept, entry)
		}
	}
	if len(kept) == 0 {
		delete(e.purchases, acct)
		return nil
	}
	e.purchases[acct] = kept
	return kept
}

type buyChunk struct {
	gross    *big.Int
	net      *big.Int
	credited *big.Int
	tokens   *big.Int
}

// Buy purchases tokens with totalBase of the base asset. The amount is pulled
// from the caller up front (allowance required) and processed in chunks of at
// most MaxAmountPerBuy, each priced against the reserves left by the previous
// chunk.
func (e *Engine) Buy(caller [20]byte, totalBase *big.Int) error {
	return e.buy(caller, totalBase, false)
}

func (e *Engine) buy(acct [20]byte, totalBase *big.Int, reinvest bool) error {
	if totalBase == nil || totalBase.Sign() <= 0 {
		return ErrAmountNotPositive
	}
	if e.base == nil {
		return ErrBaseAssetNotSet
	}
	if !reinvest {
		if !e.subs.SubscriptionIsValid(acct) {
			return ErrNotSubscribed
		}
		if totalBase.Cmp(e.PurchaseLimit(acct)) > 0 {
			return ErrPurchaseLimit
		}
		if err := e.checkDepositCap(acct, totalBase); err != nil {
			return err
		}
		if err := e.base.TransferFrom(e.self, acct, e.self, totalBase); err != nil {
			return fmt.Errorf("pull purchase amount: %w", err)
		}
	}

	now := e.nowFn()
	chunks := e.planChunks(totalBase)
	for applied, c := range chunks {
		err := e.pool.AddBuy(e.self, c.tokens, c.credited)
		if err == nil {
			continue
		}
		// Unwind the chunks already credited and hand the pulled funds
		// back, so a failing pool leaves the caller whole.
		for _, done := range chunks[:applied] {
			if rbErr := e.pool.AddSell(e.self, done.tokens, done.credited); rbErr != nil {
				return fmt.Errorf("credit reserves: %w (unwind: %v)", err, rbErr)
			}
		}
		if !reinvest {
			if rbErr := e.base.Transfer(e.self, acct, totalBase); rbErr != nil {
				return fmt.Errorf("credit reserves: %w (refund: %v)", err, rbErr)
			}
		}
		return fmt.Errorf("credit reserves: %w", err)
	}
	for _, c := range chunks {
		e.positions[acct] = append(e.positions[acct], Deposit{
			AmountBase:  c.gross,
			NetBase:     c.net,
			TokenAmount: new(big.Int).Set(c.tokens),
			Timestamp:   now,
		})
	}

	tokensOut := big.NewInt(0)
	for _, c := range chunks {
		tokensOut.Add(tokensOut, c.tokens)
	}
	e.creditTokens(acct, tokensOut)
	if !reinvest {
		// Only fresh outside capital counts against the rolling window and
		// the tier's cumulative cap; reinvested payouts never consume the
		// account's buy headroom.
		e.purchases[acct] = append(e.purchases[acct], windowEntry{amount: new(big.Int).Set(totalBase), timestamp: now})
		cum, ok := e.cumulative[acct]
		if !ok {
			cum = big.NewInt(0)
			e.cumulative[acct] = cum
		}
		cum.Add(cum, totalBase)
	}

	e.emitter.Emit(events.BuyExecuted{
		Account:   acct,
		BaseIn:    new(big.Int).Set(totalBase),
		TokensOut: tokensOut,
		Chunks:    len(chunks),
		Timestamp: now,
	})
	return nil
}

// planChunks splits totalBase into MaxAmountPerBuy slices and prices each one
// against simulated reserves, so a failing precondition can never leave a
// half-applied buy behind.
func (e *Engine) planChunks(totalBase *big.Int) []buyChunk {
	den := big.NewInt(FeeDenominator)
	netFactor := new(big.Int).SetUint64(FeeDenominator - e.params.PricingFee)
	creditFactor := new(big.Int).SetUint64(FeeDenominator - e.params.LiquidityWithhold)

	reserveToken, reserveBase := e.pool.Reserves()
	remaining := new(big.Int).Set(totalBase)
	var chunks []buyChunk
	for remaining.Sign() > 0 {
		gross := new(big.Int).Set(remaining)
		if gross.Cmp(e.params.MaxAmountPerBuy) > 0 {
			gross.Set(e.params.MaxAmountPerBuy)
		}
		remaining.Sub(remaining, gross)

		net := new(big.Int).Mul(gross, netFactor)
		net.Quo(net, den)
		credited := new(big.Int).Mul(gross, creditFactor)
		credited.Quo(credited, den)

		// Single truncating division against the live reserve pair; an empty
		// pool prices at par.
		tokens := new(big.Int).Set(net)
		if reserveToken.Sign() > 0 && reserveBase.Sign() > 0 {
			tokens.Mul(net, reserveToken)
			tokens.Quo(tokens, reserveBase)
		}

		reserveToken.Add(reserveToken, tokens)
		reserveBase.Add(reserveBase, credited)
		chunks = append(chunks, buyChunk{gross: gross, net: net, credited: credited, tokens: tokens})
	}
	return chunks
}

func (e *Engine) checkDepositCap(acct [20]byte, totalBase *big.Int) error {
	info, ok := e.subs.UserInfo(acct)
	if !ok {
		return ErrNotSubscribed
	}
	tier, err := e.subs.Tier(info.SubscriptionLevel)
	if err != nil {
		return fmt.Errorf("resolve tier %d: %w", info.SubscriptionLevel, err)
	}
	if tier.MaxCumulativeDeposit == nil || tier.MaxCumulativeDeposit.Sign() == 0 {
		return nil
	}
	cum := e.cumulative[acct]
	if cum == nil {
		cum = big.NewInt(0)
	}
	next := new(big.Int).Add(cum, totalBase)
	if next.Cmp(tier.MaxCumulativeDeposit) > 0 {
		return fmt.Errorf("%w: %s of %s used", ErrDepositCap, cum, tier.MaxCumulativeDeposit)
	}
	return nil
}

func (e *Engine) creditTokens(acct [20]byte, amount *big.Int) {
	if amount.Sign() <= 0 {
		return
	}
	if bal, ok := e.balances[acct]; ok {
		bal.Add(bal, amount)
		return
	}
	e.balances[acct] = new(big.Int).Set(amount)
}

// --- Admin surface ---

func (e *Engine) requireOwner(caller [20]byte) error {
	if caller != e.owner {
		return ErrNotOwner
	}
	return nil
}

// SetFee updates the pricing fee and liquidity withhold pair.
func (e *Engine) SetFee(caller [20]byte, pricingFee, liquidityWithhold uint64) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	next := e.params.Clone()
	next.PricingFee = pricingFee
	next.LiquidityWithhold = liquidityWithhold
	return e.applyParams(next)
}

// SetWithdrawProfitFee updates the slice of profit withheld from sellers.
func (e *Engine) SetWithdrawProfitFee(caller [20]byte, fee uint64) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	next := e.params.Clone()
	next.WithdrawProfitFee = fee
	return e.applyParams(next)
}

// SetWithdrawProfitDistribution replaces the commission ladder.
func (e *Engine) SetWithdrawProfitDistribution(caller [20]byte, ladder []uint64) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	next := e.params.Clone()
	next.ProfitDistribution = append([]uint64(nil), ladder...)
	return e.applyParams(next)
}

// SetCommissionDepths replaces the tier-to-depth eligibility table.
func (e *Engine) SetCommissionDepths(caller [20]byte, depths []int) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	next := e.params.Clone()
	next.CommissionDepths = append([]int(nil), depths...)
	return e.applyParams(next)
}

// SetSuccessReward updates the success reward rate.
func (e *Engine) SetSuccessReward(caller [20]byte, reward uint64) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	next := e.params.Clone()
	next.SuccessReward = reward
	return e.applyParams(next)
}

// SetSuccessRewardRequirement updates the minimum profit that triggers the
// success reward.
func (e *Engine) SetSuccessRewardRequirement(caller [20]byte, requirement *big.Int) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	next := e.params.Clone()
	if requirement != nil {
		next.SuccessRewardRequirement = new(big.Int).Set(requirement)
	} else {
		next.SuccessRewardRequirement = big.NewInt(0)
	}
	return e.applyParams(next)
}

// SetPurchaseCooldown updates the rolling window length.
func (e *Engine) SetPurchaseCooldown(caller [20]byte, seconds int64) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	next := e.params.Clone()
	next.PurchaseCooldown = seconds
	return e.applyParams(next)
}

// SetMaxPurchase updates the per-window purchase cap.
func (e *Engine) SetMaxPurchase(caller [20]byte, max *big.Int) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	next := e.params.Clone()
	if max != nil {
		next.MaxPurchase = new(big.Int).Set(max)
	} else {
		next.MaxPurchase = nil
	}
	return e.applyParams(next)
}

// SetMaxAmountPerBuy updates the buy chunk ceiling.
func (e *Engine) SetMaxAmountPerBuy(caller [20]byte, max *big.Int) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	next := e.params.Clone()
	if max != nil {
		next.MaxAmountPerBuy = new(big.Int).Set(max)
	} else {
		next.MaxAmountPerBuy = nil
	}
	return e.applyParams(next)
}

// SetWithdrawLock updates the auto-withdraw maturity delay.
func (e *Engine) SetWithdrawLock(caller [20]byte, seconds int64) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	next := e.params.Clone()
	next.WithdrawLock = seconds
	return e.applyParams(next)
}

// SetParams validates and installs a complete policy in one step.
func (e *Engine) SetParams(caller [20]byte, params Params) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	return e.applyParams(params.Clone())
}

// SetFeeTo updates the reward recipient.
func (e *Engine) SetFeeTo(caller, feeTo [20]byte) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	e.feeTo = feeTo
	return nil
}

func (e *Engine) applyParams(next Params) error {
	if err := next.Validate(); err != nil {
		return err
	}
	e.params = next
	return nil
}

// WithdrawRewards transfers amount of the pending balance to the fee
// recipient. Callable by the owner or the recipient itself.
func (e *Engine) WithdrawRewards(caller [20]byte, amount *big.Int) error {
	if caller != e.owner && caller != e.feeTo {
		return ErrNotOwner
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrAmountNotPositive
	}
	if e.pending.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrPendingInsufficient, e.pending, amount)
	}
	if err := e.base.Transfer(e.self, e.feeTo, amount); err != nil {
		return fmt.Errorf("withdraw rewards: %w", err)
	}
	e.pending.Sub(e.pending, amount)
	e.emitter.Emit(events.RewardsWithdrawn{To: e.feeTo, Amount: new(big.Int).Set(amount)})
	return nil
}

// WithdrawAll transfers the whole pending balance to the fee recipient.
func (e *Engine) WithdrawAll(caller [20]byte) error {
	if e.pending.Sign() == 0 {
		return nil
	}
	return e.WithdrawRewards(caller, new(big.Int).Set(e.pending))
}

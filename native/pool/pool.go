package pool

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrNotOwner         = errors.New("pool: caller is not the owner")
	ErrNotTrader        = errors.New("pool: caller is not the authorized trader")
	ErrTraderNotSet     = errors.New("pool: trader not configured")
	ErrEmptyReserve     = errors.New("pool: token reserve is empty")
	ErrReserveUnderflow = errors.New("pool: reserve underflow")
	ErrAmountNegative   = errors.New("pool: amount must not be negative")
)

// PriceScale is the fixed-point scale applied to quoted prices: a price of
// 1.0 base per token is PriceScale.
var PriceScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Pool holds the two-sided reserve backing the bonding curve. Mutations are
// restricted to a single authorized trader address, set once by the owner.
// All divisions truncate toward zero.
type Pool struct {
	owner     [20]byte
	trader    [20]byte
	hasTrader bool

	reserveToken *big.Int
	reserveBase  *big.Int
}

// NewPool creates an empty pool administered by owner.
func NewPool(owner [20]byte) *Pool {
	return &Pool{
		owner:        owner,
		reserveToken: big.NewInt(0),
		reserveBase:  big.NewInt(0),
	}
}

// SetTrader installs the single address allowed to mutate reserves. Owner
// only; rebinding requires another owner call.
func (p *Pool) SetTrader(caller, trader [20]byte) error {
	if caller != p.owner {
		return ErrNotOwner
	}
	p.trader = trader
	p.hasTrader = true
	return nil
}

// Trader returns the authorized trader, if configured.
func (p *Pool) Trader() ([20]byte, bool) {
	return p.trader, p.hasTrader
}

func (p *Pool) authorize(caller [20]byte) error {
	if !p.hasTrader {
		return ErrTraderNotSet
	}
	if caller != p.trader {
		return ErrNotTrader
	}
	return nil
}

// Reserves returns a copy of the (token, base) reserve pair.
func (p *Pool) Reserves() (*big.Int, *big.Int) {
	return new(big.Int).Set(p.reserveToken), new(big.Int).Set(p.reserveBase)
}

// CurrentPrice quotes reserveBase/reserveToken at PriceScale precision,
// truncating. Before the first buy (empty token reserve) there is no price.
func (p *Pool) CurrentPrice() (*big.Int, error) {
	if p.reserveToken.Sign() == 0 {
		return nil, ErrEmptyReserve
	}
	price := new(big.Int).Mul(p.reserveBase, PriceScale)
	return price.Quo(price, p.reserveToken), nil
}

// AddBuy credits both reserves. Trader only.
func (p *Pool) AddBuy(caller [20]byte, tokenIn, baseIn *big.Int) error {
	if err := p.authorize(caller); err != nil {
		return err
	}
	if tokenIn == nil || baseIn == nil || tokenIn.Sign() < 0 || baseIn.Sign() < 0 {
		return ErrAmountNegative
	}
	p.reserveToken.Add(p.reserveToken, tokenIn)
	p.reserveBase.Add(p.reserveBase, baseIn)
	return nil
}

// AddSell debits both reserves, rejecting any debit that would drive a
// reserve negative. Trader only.
func (p *Pool) AddSell(caller [20]byte, tokenOut, baseOut *big.Int) error {
	if err := p.authorize(caller); err != nil {
		return err
	}
	if tokenOut == nil || baseOut == nil || tokenOut.Sign() < 0 || baseOut.Sign() < 0 {
		return ErrAmountNegative
	}
	if p.reserveToken.Cmp(tokenOut) < 0 {
		return fmt.Errorf("%w: token reserve %s, debit %s", ErrReserveUnderflow, p.reserveToken, tokenOut)
	}
	if p.reserveBase.Cmp(baseOut) < 0 {
		return fmt.Errorf("%w: base reserve %s, debit %s", ErrReserveUnderflow, p.reserveBase, baseOut)
	}
	p.reserveToken.Sub(p.reserveToken, tokenOut)
	p.reserveBase.Sub(p.reserveBase, baseOut)
	return nil
}

// QuoteTokensOut prices a net base amount against the current reserves in a
// single truncating division. On an empty pool the quote is par: one token
// per base unit. Reading through a pre-truncated price would double-truncate
// and drift from the reference accounting.
func (p *Pool) QuoteTokensOut(netBase *big.Int) *big.Int {
	if netBase == nil || netBase.Sign() <= 0 {
		return big.NewInt(0)
	}
	if p.reserveToken.Sign() == 0 || p.reserveBase.Sign() == 0 {
		return new(big.Int).Set(netBase)
	}
	out := new(big.Int).Mul(netBase, p.reserveToken)
	return out.Quo(out, p.reserveBase)
}

// QuoteBaseValue values a token amount against the current reserves with the
// same single-division rule used for buys.
func (p *Pool) QuoteBaseValue(tokenAmount *big.Int) (*big.Int, error) {
	if p.reserveToken.Sign() == 0 {
		return nil, ErrEmptyReserve
	}
	if tokenAmount == nil || tokenAmount.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	out := new(big.Int).Mul(tokenAmount, p.reserveBase)
	return out.Quo(out, p.reserveToken), nil
}

package pool

import (
	"errors"
	"math/big"
	"testing"
)

func addr(index byte) [20]byte {
	var out [20]byte
	out[19] = index
	return out
}

func wei(s string) *big.Int {
	out, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad number literal: " + s)
	}
	return out
}

func newTradedPool(t *testing.T) (*Pool, [20]byte) {
	t.Helper()
	owner := addr(1)
	trader := addr(2)
	p := NewPool(owner)
	if err := p.SetTrader(owner, trader); err != nil {
		t.Fatalf("set trader: %v", err)
	}
	return p, trader
}

func TestTraderAuthorization(t *testing.T) {
	owner := addr(1)
	trader := addr(2)
	stranger := addr(3)
	p := NewPool(owner)

	one := big.NewInt(1)
	if err := p.AddBuy(trader, one, one); !errors.Is(err, ErrTraderNotSet) {
		t.Fatalf("expected trader-not-set, got %v", err)
	}
	if err := p.SetTrader(stranger, trader); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected owner gate, got %v", err)
	}
	if err := p.SetTrader(owner, trader); err != nil {
		t.Fatalf("set trader: %v", err)
	}
	if err := p.AddBuy(stranger, one, one); !errors.Is(err, ErrNotTrader) {
		t.Fatalf("expected trader gate, got %v", err)
	}
	if err := p.AddBuy(trader, one, one); err != nil {
		t.Fatalf("add buy: %v", err)
	}
}

func TestReserveAccounting(t *testing.T) {
	p, trader := newTradedPool(t)

	if err := p.AddBuy(trader, wei("100"), wei("200")); err != nil {
		t.Fatalf("add buy: %v", err)
	}
	if err := p.AddSell(trader, wei("40"), wei("80")); err != nil {
		t.Fatalf("add sell: %v", err)
	}
	tokens, base := p.Reserves()
	if tokens.Cmp(wei("60")) != 0 || base.Cmp(wei("120")) != 0 {
		t.Fatalf("reserves: got (%s, %s)", tokens, base)
	}

	err := p.AddSell(trader, wei("61"), wei("0"))
	if !errors.Is(err, ErrReserveUnderflow) {
		t.Fatalf("expected underflow on token debit, got %v", err)
	}
	err = p.AddSell(trader, wei("0"), wei("121"))
	if !errors.Is(err, ErrReserveUnderflow) {
		t.Fatalf("expected underflow on base debit, got %v", err)
	}
	tokens, base = p.Reserves()
	if tokens.Cmp(wei("60")) != 0 || base.Cmp(wei("120")) != 0 {
		t.Fatalf("reserves changed by rejected debit: (%s, %s)", tokens, base)
	}
}

func TestCurrentPrice(t *testing.T) {
	p, trader := newTradedPool(t)

	if _, err := p.CurrentPrice(); !errors.Is(err, ErrEmptyReserve) {
		t.Fatalf("expected empty-reserve error, got %v", err)
	}
	if err := p.AddBuy(trader, wei("100000000000000000000"), wei("200000000000000000000")); err != nil {
		t.Fatalf("add buy: %v", err)
	}
	price, err := p.CurrentPrice()
	if err != nil {
		t.Fatalf("current price: %v", err)
	}
	if price.Cmp(wei("2000000000000000000")) != 0 {
		t.Fatalf("price: got %s", price)
	}
}

func TestQuoteTokensOutEmptyPoolIsPar(t *testing.T) {
	p, _ := newTradedPool(t)
	amount := wei("97500000000000000000")
	if got := p.QuoteTokensOut(amount); got.Cmp(amount) != 0 {
		t.Fatalf("par quote: got %s", got)
	}
}

func TestQuoteSingleDivision(t *testing.T) {
	p, trader := newTradedPool(t)
	if err := p.AddBuy(trader, wei("97500000000000000000"), wei("99500000000000000000")); err != nil {
		t.Fatalf("add buy: %v", err)
	}

	// 97.5e18 * 97.5e18 / 99.5e18, truncated in one step. Chaining through a
	// pre-truncated per-token price would land 76 units lower.
	got := p.QuoteTokensOut(wei("97500000000000000000"))
	if got.Cmp(wei("95540201005025125628")) != 0 {
		t.Fatalf("tokens out: got %s", got)
	}

	value, err := p.QuoteBaseValue(wei("97500000000000000000"))
	if err != nil {
		t.Fatalf("quote base value: %v", err)
	}
	if value.Cmp(wei("99500000000000000000")) != 0 {
		t.Fatalf("base value: got %s", value)
	}
}

func TestQuoteBaseValueEmptyPool(t *testing.T) {
	p, _ := newTradedPool(t)
	if _, err := p.QuoteBaseValue(wei("1")); !errors.Is(err, ErrEmptyReserve) {
		t.Fatalf("expected empty-reserve error, got %v", err)
	}
}

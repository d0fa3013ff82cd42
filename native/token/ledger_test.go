package token

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

func newTestLedger() (*Ledger, [20]byte, [20]byte, [20]byte) {
	owner := addr(1)
	guarantee := addr(2)
	treasury := addr(3)
	supply := wei("1000000000000000000000000")
	return NewLedger(owner, guarantee, treasury, supply), owner, guarantee, treasury
}

func TestTransferFeeSplit(t *testing.T) {
	l, owner, guarantee, treasury := newTestLedger()
	user := addr(4)

	if err := l.Transfer(owner, user, wei("1000000000000000000")); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := l.BalanceOf(user); got.Cmp(wei("975000000000000000")) != 0 {
		t.Fatalf("receiver balance: got %s", got)
	}
	if got := l.BalanceOf(guarantee); got.Cmp(wei("7000000000000000")) != 0 {
		t.Fatalf("guarantee balance: got %s", got)
	}
	if got := l.BalanceOf(treasury); got.Cmp(wei("18000000000000000")) != 0 {
		t.Fatalf("treasury balance: got %s", got)
	}
}

func TestTransferWhitelistBypassesFee(t *testing.T) {
	l, owner, guarantee, _ := newTestLedger()
	user := addr(4)
	if err := l.AddWhitelist(owner, owner); err != nil {
		t.Fatalf("add whitelist: %v", err)
	}
	if err := l.Transfer(owner, user, wei("1000000000000000000")); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := l.BalanceOf(user); got.Cmp(wei("1000000000000000000")) != 0 {
		t.Fatalf("receiver balance: got %s", got)
	}
	if got := l.BalanceOf(guarantee); got.Sign() != 0 {
		t.Fatalf("guarantee should receive nothing, got %s", got)
	}
}

func TestTransferToUnregisteredContract(t *testing.T) {
	l, owner, _, _ := newTestLedger()
	module := addr(9)
	l.MarkContract(module)

	err := l.Transfer(owner, module, wei("1000000000000000000"))
	if !errors.Is(err, ErrUnregisteredContract) {
		t.Fatalf("expected unregistered contract error, got %v", err)
	}
	if err := l.AddWhitelist(owner, module); err != nil {
		t.Fatalf("add whitelist: %v", err)
	}
	if err := l.Transfer(owner, module, wei("1000000000000000000")); err != nil {
		t.Fatalf("transfer after whitelist: %v", err)
	}
	if got := l.BalanceOf(module); got.Cmp(wei("1000000000000000000")) != 0 {
		t.Fatalf("module balance: got %s", got)
	}
}

func TestWhitelistIdempotency(t *testing.T) {
	l, owner, _, _ := newTestLedger()
	target := addr(9)

	user := addr(4)
	if err := l.AddWhitelist(user, target); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected owner gate, got %v", err)
	}
	if err := l.AddWhitelist(owner, target); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := l.AddWhitelist(owner, target); !errors.Is(err, ErrAlreadyWhitelisted) {
		t.Fatalf("expected already-added error, got %v", err)
	}
	if err := l.RemoveWhitelist(owner, target); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := l.RemoveWhitelist(owner, target); !errors.Is(err, ErrNotWhitelisted) {
		t.Fatalf("expected already-removed error, got %v", err)
	}
}

func TestSetFeeValidation(t *testing.T) {
	l, owner, _, _ := newTestLedger()
	user := addr(4)

	if err := l.SetFee(user, 8, 17, 100); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected owner gate, got %v", err)
	}
	if err := l.SetFee(owner, 600, 500, 1000); !errors.Is(err, ErrInvalidFee) {
		t.Fatalf("expected invalid fee, got %v", err)
	}
	if err := l.SetFee(owner, 8, 17, 100); err != nil {
		t.Fatalf("set fee: %v", err)
	}
	g, tr, den := l.GuaranteeFee()
	if g != 8 || tr != 17 || den != 100 {
		t.Fatalf("fee triple: got %d/%d/%d", g, tr, den)
	}
}

func TestTransferFromAllowance(t *testing.T) {
	l, owner, _, _ := newTestLedger()
	spender := addr(5)
	dest := addr(6)
	amount := wei("1000000000000000000")

	err := l.TransferFrom(spender, owner, dest, amount)
	if !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected allowance error, got %v", err)
	}
	if err := l.Approve(owner, spender, amount); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := l.TransferFrom(spender, owner, dest, amount); err != nil {
		t.Fatalf("transfer from: %v", err)
	}
	if got := l.Allowance(owner, spender); got.Sign() != 0 {
		t.Fatalf("allowance should be consumed, got %s", got)
	}
	err = l.TransferFrom(spender, owner, dest, amount)
	if !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected allowance exhausted, got %v", err)
	}
}

func TestInsufficientBalance(t *testing.T) {
	l, _, _, _ := newTestLedger()
	poor := addr(7)
	err := l.Transfer(poor, addr(8), wei("1"))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected balance error, got %v", err)
	}
}

package token

import (
	"errors"
	"fmt"
	"math/big"
)

// Token metadata mirrors the deployed Magna asset.
const (
	Name     = "Magna Token"
	Symbol   = "MAGNA"
	Decimals = 18
)

var (
	ErrNotOwner              = errors.New("token: caller is not the owner")
	ErrAlreadyWhitelisted    = errors.New("token: whitelist already added")
	ErrNotWhitelisted        = errors.New("token: whitelist already removed")
	ErrUnregisteredContract  = errors.New("token: transfer to unregistered contract")
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrInvalidFee            = errors.New("token: fee shares exceed denominator")
	ErrAmountNotPositive     = errors.New("token: amount must be positive")
)

// Ledger is the fee-on-transfer Magna asset ledger. Ordinary transfers split a
// proportional fee to the guarantee and treasury addresses; transfers touching
// a whitelisted address move the full amount. Addresses marked as contracts
// reject incoming transfers until whitelisted.
//
// The ledger carries no internal lock: callers serialise access through the
// state manager.
type Ledger struct {
	owner         [20]byte
	guaranteeAddr [20]byte
	treasuryAddr  [20]byte

	guaranteeFee   uint64
	treasuryFee    uint64
	feeDenominator uint64

	totalSupply *big.Int
	balances    map[[20]byte]*big.Int
	allowances  map[[20]byte]map[[20]byte]*big.Int
	whitelist   map[[20]byte]bool
	contracts   map[[20]byte]bool
}

// NewLedger mints the initial supply to the owner and applies the deployed fee
// schedule (0.7% guarantee, 1.8% treasury).
func NewLedger(owner, guaranteeAddr, treasuryAddr [20]byte, initialSupply *big.Int) *Ledger {
	supply := big.NewInt(0)
	if initialSupply != nil {
		supply = new(big.Int).Set(initialSupply)
	}
	l := &Ledger{
		owner:          owner,
		guaranteeAddr:  guaranteeAddr,
		treasuryAddr:   treasuryAddr,
		guaranteeFee:   7,
		treasuryFee:    18,
		feeDenominator: 1000,
		totalSupply:    supply,
		balances:       make(map[[20]byte]*big.Int),
		allowances:     make(map[[20]byte]map[[20]byte]*big.Int),
		whitelist:      make(map[[20]byte]bool),
		contracts:      make(map[[20]byte]bool),
	}
	if supply.Sign() > 0 {
		l.balances[owner] = new(big.Int).Set(supply)
	}
	return l
}

// TotalSupply returns the minted supply.
func (l *Ledger) TotalSupply() *big.Int {
	return new(big.Int).Set(l.totalSupply)
}

// BalanceOf returns the balance held by addr.
func (l *Ledger) BalanceOf(addr [20]byte) *big.Int {
	if bal, ok := l.balances[addr]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// GuaranteeFee returns the current fee triple.
func (l *Ledger) GuaranteeFee() (guarantee, treasury, denominator uint64) {
	return l.guaranteeFee, l.treasuryFee, l.feeDenominator
}

// GuaranteeAddr returns the guarantee fee recipient.
func (l *Ledger) GuaranteeAddr() [20]byte { return l.guaranteeAddr }

// TreasuryAddr returns the treasury fee recipient.
func (l *Ledger) TreasuryAddr() [20]byte { return l.treasuryAddr }

// SetFee updates the transfer fee triple. Owner only.
func (l *Ledger) SetFee(caller [20]byte, guarantee, treasury, denominator uint64) error {
	if caller != l.owner {
		return ErrNotOwner
	}
	if denominator == 0 || guarantee+treasury > denominator {
		return ErrInvalidFee
	}
	l.guaranteeFee = guarantee
	l.treasuryFee = treasury
	l.feeDenominator = denominator
	return nil
}

// SetGuaranteeAddr updates the guarantee recipient. Owner only.
func (l *Ledger) SetGuaranteeAddr(caller, addr [20]byte) error {
	if caller != l.owner {
		return ErrNotOwner
	}
	l.guaranteeAddr = addr
	return nil
}

// SetTreasuryAddr updates the treasury recipient. Owner only.
func (l *Ledger) SetTreasuryAddr(caller, addr [20]byte) error {
	if caller != l.owner {
		return ErrNotOwner
	}
	l.treasuryAddr = addr
	return nil
}

// MarkContract flags addr as a contract account. Incoming transfers to a
// contract fail until the address is whitelisted.
func (l *Ledger) MarkContract(addr [20]byte) {
	l.contracts[addr] = true
}

// Whitelisted reports whether addr bypasses the transfer fee.
func (l *Ledger) Whitelisted(addr [20]byte) bool {
	return l.whitelist[addr]
}

// AddWhitelist adds addr to the fee-exempt whitelist. Owner only; re-adding an
// already-present address fails.
func (l *Ledger) AddWhitelist(caller, addr [20]byte) error {
	if caller != l.owner {
		return ErrNotOwner
	}
	if l.whitelist[addr] {
		return ErrAlreadyWhitelisted
	}
	l.whitelist[addr] = true
	return nil
}

// RemoveWhitelist removes addr from the whitelist. Owner only; removing an
// absent address fails.
func (l *Ledger) RemoveWhitelist(caller, addr [20]byte) error {
	if caller != l.owner {
		return ErrNotOwner
	}
	if !l.whitelist[addr] {
		return ErrNotWhitelisted
	}
	delete(l.whitelist, addr)
	return nil
}

// Approve grants spender an allowance over owner's balance.
func (l *Ledger) Approve(owner, spender [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrAmountNotPositive
	}
	grants, ok := l.allowances[owner]
	if !ok {
		grants = make(map[[20]byte]*big.Int)
		l.allowances[owner] = grants
	}
	grants[spender] = new(big.Int).Set(amount)
	return nil
}

// Allowance returns the remaining allowance spender holds over owner.
func (l *Ledger) Allowance(owner, spender [20]byte) *big.Int {
	if grants, ok := l.allowances[owner]; ok {
		if amt, ok := grants[spender]; ok {
			return new(big.Int).Set(amt)
		}
	}
	return big.NewInt(0)
}

// Transfer moves amount from sender to recipient, applying the fee split
// unless either side is whitelisted.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrAmountNotPositive
	}
	if l.contracts[to] && !l.whitelist[to] {
		return ErrUnregisteredContract
	}
	balance := l.balances[from]
	if balance == nil || balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, l.BalanceOf(from), amount)
	}

	net := new(big.Int).Set(amount)
	if !l.whitelist[from] && !l.whitelist[to] {
		den := new(big.Int).SetUint64(l.feeDenominator)
		guarantee := new(big.Int).Mul(amount, new(big.Int).SetUint64(l.guaranteeFee))
		guarantee.Quo(guarantee, den)
		treasury := new(big.Int).Mul(amount, new(big.Int).SetUint64(l.treasuryFee))
		treasury.Quo(treasury, den)
		net.Sub(net, guarantee)
		net.Sub(net, treasury)
		l.credit(l.guaranteeAddr, guarantee)
		l.credit(l.treasuryAddr, treasury)
	}

	l.balances[from] = new(big.Int).Sub(balance, amount)
	l.credit(to, net)
	return nil
}

// TransferFrom moves amount from holder to recipient using spender's
// allowance. The allowance is reduced by the full amount, fees included.
func (l *Ledger) TransferFrom(spender, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrAmountNotPositive
	}
	allowance := l.Allowance(from, spender)
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientAllowance, allowance, amount)
	}
	if err := l.Transfer(from, to, amount); err != nil {
		return err
	}
	l.allowances[from][spender] = allowance.Sub(allowance, amount)
	return nil
}

func (l *Ledger) credit(addr [20]byte, amount *big.Int) {
	if amount.Sign() <= 0 {
		return
	}
	if bal, ok := l.balances[addr]; ok {
		l.balances[addr] = new(big.Int).Add(bal, amount)
		return
	}
	l.balances[addr] = new(big.Int).Set(amount)
}

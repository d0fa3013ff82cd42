package token

import (
	"bytes"
	"math/big"
	"sort"
)

// BalanceEntry pairs an address with an amount for serialization.
type BalanceEntry struct {
	Addr   [20]byte `json:"addr"`
	Amount *big.Int `json:"amount"`
}

// AllowanceEntry captures one owner/spender grant.
type AllowanceEntry struct {
	Owner   [20]byte `json:"owner"`
	Spender [20]byte `json:"spender"`
	Amount  *big.Int `json:"amount"`
}

// Snapshot is the serializable form of the ledger state.
type Snapshot struct {
	Owner          [20]byte         `json:"owner"`
	GuaranteeAddr  [20]byte         `json:"guaranteeAddr"`
	TreasuryAddr   [20]byte         `json:"treasuryAddr"`
	GuaranteeFee   uint64           `json:"guaranteeFee"`
	TreasuryFee    uint64           `json:"treasuryFee"`
	FeeDenominator uint64           `json:"feeDenominator"`
	TotalSupply    *big.Int         `json:"totalSupply"`
	Balances       []BalanceEntry   `json:"balances"`
	Allowances     []AllowanceEntry `json:"allowances"`
	Whitelist      [][20]byte       `json:"whitelist"`
	Contracts      [][20]byte       `json:"contracts"`
}

func sortedAddrs(set map[[20]byte]bool) [][20]byte {
	out := make([][20]byte, 0, len(set))
	for addr := range set {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

// Snapshot captures the current ledger state in deterministic order.
func (l *Ledger) Snapshot() Snapshot {
	s := Snapshot{
		Owner:          l.owner,
		GuaranteeAddr:  l.guaranteeAddr,
		TreasuryAddr:   l.treasuryAddr,
		GuaranteeFee:   l.guaranteeFee,
		TreasuryFee:    l.treasuryFee,
		FeeDenominator: l.feeDenominator,
		TotalSupply:    new(big.Int).Set(l.totalSupply),
		Whitelist:      sortedAddrs(l.whitelist),
		Contracts:      sortedAddrs(l.contracts),
	}
	for addr, bal := range l.balances {
		s.Balances = append(s.Balances, BalanceEntry{Addr: addr, Amount: new(big.Int).Set(bal)})
	}
	sort.Slice(s.Balances, func(i, j int) bool {
		return bytes.Compare(s.Balances[i].Addr[:], s.Balances[j].Addr[:]) < 0
	})
	for owner, grants := range l.allowances {
		for spender, amt := range grants {
			if amt.Sign() == 0 {
				continue
			}
			s.Allowances = append(s.Allowances, AllowanceEntry{Owner: owner, Spender: spender, Amount: new(big.Int).Set(amt)})
		}
	}
	sort.Slice(s.Allowances, func(i, j int) bool {
		if c := bytes.Compare(s.Allowances[i].Owner[:], s.Allowances[j].Owner[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(s.Allowances[i].Spender[:], s.Allowances[j].Spender[:]) < 0
	})
	return s
}

// RestoreLedger rebuilds a ledger from a snapshot.
func RestoreLedger(s Snapshot) *Ledger {
	l := NewLedger(s.Owner, s.GuaranteeAddr, s.TreasuryAddr, nil)
	l.guaranteeFee = s.GuaranteeFee
	l.treasuryFee = s.TreasuryFee
	l.feeDenominator = s.FeeDenominator
	if s.TotalSupply != nil {
		l.totalSupply = new(big.Int).Set(s.TotalSupply)
	}
	for _, entry := range s.Balances {
		l.balances[entry.Addr] = new(big.Int).Set(entry.Amount)
	}
	for _, entry := range s.Allowances {
		grants, ok := l.allowances[entry.Owner]
		if !ok {
			grants = make(map[[20]byte]*big.Int)
			l.allowances[entry.Owner] = grants
		}
		grants[entry.Spender] = new(big.Int).Set(entry.Amount)
	}
	for _, addr := range s.Whitelist {
		l.whitelist[addr] = true
	}
	for _, addr := range s.Contracts {
		l.contracts[addr] = true
	}
	return l
}

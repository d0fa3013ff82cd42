package referral

import (
	"bytes"
	"sort"
)

// AccountEntry pairs an address with its recorded account for serialization.
type AccountEntry struct {
	Addr    [20]byte `json:"addr"`
	Account Account  `json:"account"`
}

// Snapshot is the serializable form of the ledger state. Downline sets are
// not stored: they are rebuilt from the parent pointers on restore.
type Snapshot struct {
	Owner            [20]byte       `json:"owner"`
	Self             [20]byte       `json:"self"`
	Bootstrap        [20]byte       `json:"bootstrap"`
	GuaranteeAddr    [20]byte       `json:"guaranteeAddr"`
	TreasuryAddr     [20]byte       `json:"treasuryAddr"`
	GuaranteeShare   uint64         `json:"guaranteeShare"`
	TreasuryShare    uint64         `json:"treasuryShare"`
	ShareDenominator uint64         `json:"shareDenominator"`
	Tiers            []Tier         `json:"tiers"`
	Accounts         []AccountEntry `json:"accounts"`
	UsedNonces       []uint64       `json:"usedNonces"`
	Signer           [20]byte       `json:"signer"`
	HasSigner        bool           `json:"hasSigner"`
	MaxWalkDepth     int            `json:"maxWalkDepth"`
}

// Snapshot captures the current ledger state in deterministic order.
func (l *Ledger) Snapshot() Snapshot {
	s := Snapshot{
		Owner:            l.owner,
		Self:             l.self,
		Bootstrap:        l.bootstrap,
		GuaranteeAddr:    l.guaranteeAddr,
		TreasuryAddr:     l.treasuryAddr,
		GuaranteeShare:   l.guaranteeShare,
		TreasuryShare:    l.treasuryShare,
		ShareDenominator: l.shareDenominator,
		Tiers:            l.Tiers(),
		Signer:           l.signer,
		HasSigner:        l.hasSigner,
		MaxWalkDepth:     l.maxWalkDepth,
	}
	for addr, acct := range l.accounts {
		s.Accounts = append(s.Accounts, AccountEntry{Addr: addr, Account: *acct})
	}
	sort.Slice(s.Accounts, func(i, j int) bool {
		return bytes.Compare(s.Accounts[i].Addr[:], s.Accounts[j].Addr[:]) < 0
	})
	for nonce := range l.usedNonces {
		s.UsedNonces = append(s.UsedNonces, nonce)
	}
	sort.Slice(s.UsedNonces, func(i, j int) bool { return s.UsedNonces[i] < s.UsedNonces[j] })
	return s
}

// RestoreLedger rebuilds a ledger, including downline indices, from a
// snapshot.
func RestoreLedger(s Snapshot) *Ledger {
	l := NewLedger(s.Owner, s.Self, s.Bootstrap, s.GuaranteeAddr, s.TreasuryAddr)
	l.guaranteeShare = s.GuaranteeShare
	l.treasuryShare = s.TreasuryShare
	l.shareDenominator = s.ShareDenominator
	if len(s.Tiers) > 0 {
		l.tiers = make([]Tier, len(s.Tiers))
		for i, t := range s.Tiers {
			l.tiers[i] = t.Clone()
		}
	}
	for _, entry := range s.Accounts {
		acct := entry.Account
		l.accounts[entry.Addr] = &acct
		if acct.HasReferral {
			l.addDownline(acct.Referral, entry.Addr)
		}
	}
	for _, nonce := range s.UsedNonces {
		l.usedNonces[nonce] = struct{}{}
	}
	l.signer = s.Signer
	l.hasSigner = s.HasSigner
	if s.MaxWalkDepth > 0 {
		l.maxWalkDepth = s.MaxWalkDepth
	}
	return l
}

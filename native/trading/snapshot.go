package trading

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

// PositionEntry carries one account's open deposit history.
type PositionEntry struct {
	Addr     [20]byte  `json:"addr"`
	Deposits []Deposit `json:"deposits"`
}

// WindowRecord is the serializable form of a rolling-window purchase entry.
type WindowRecord struct {
	Amount    *big.Int `json:"amount"`
	Timestamp int64    `json:"timestamp"`
}

// PurchaseEntry carries one account's rolling-window purchase records.
type PurchaseEntry struct {
	Addr    [20]byte       `json:"addr"`
	Records []WindowRecord `json:"records"`
}

// Snapshot is the serializable form of the engine state.
type Snapshot struct {
	Owner      [20]byte        `json:"owner"`
	Self       [20]byte        `json:"self"`
	FeeTo      [20]byte        `json:"feeTo"`
	Params     Params          `json:"params"`
	Balances   []BalanceEntry  `json:"balances"`
	Positions  []PositionEntry `json:"positions"`
	Purchases  []PurchaseEntry `json:"purchases"`
	Cumulative []BalanceEntry  `json:"cumulative"`
	Pending    *big.Int        `json:"pending"`
}

func sortedBalances(m map[[20]byte]*big.Int) []BalanceEntry {
	out := make([]BalanceEntry, 0, len(m))
	for addr, amt := range m {
		out = append(out, BalanceEntry{Addr: addr, Amount: new(big.Int).Set(amt)})
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].Addr[:], out[j].Addr[:]) < 0 })
	return out
}

// Snapshot captures the engine state in deterministic order.
func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		Owner:      e.owner,
		Self:       e.self,
		FeeTo:      e.feeTo,
		Params:     e.params.Clone(),
		Balances:   sortedBalances(e.balances),
		Cumulative: sortedBalances(e.cumulative),
		Pending:    new(big.Int).Set(e.pending),
	}
	for addr, deposits := range e.positions {
		entry := PositionEntry{Addr: addr}
		for _, d := range deposits {
			entry.Deposits = append(entry.Deposits, Deposit{
				AmountBase:  new(big.Int).Set(d.AmountBase),
				NetBase:     new(big.Int).Set(d.NetBase),
				TokenAmount: new(big.Int).Set(d.TokenAmount),
				Timestamp:   d.Timestamp,
			})
		}
		s.Positions = append(s.Positions, entry)
	}
	sort.Slice(s.Positions, func(i, j int) bool {
		return bytes.Compare(s.Positions[i].Addr[:], s.Positions[j].Addr[:]) < 0
	})
	for addr, records := range e.purchases {
		entry := PurchaseEntry{Addr: addr}
		for _, rec := range records {
			entry.Records = append(entry.Records, WindowRecord{Amount: new(big.Int).Set(rec.amount), Timestamp: rec.timestamp})
		}
		s.Purchases = append(s.Purchases, entry)
	}
	sort.Slice(s.Purchases, func(i, j int) bool {
		return bytes.Compare(s.Purchases[i].Addr[:], s.Purchases[j].Addr[:]) < 0
	})
	return s
}

// RestoreEngine rebuilds an engine from a snapshot, rewiring it to the given
// collaborators.
func RestoreEngine(s Snapshot, subs subscriptionLedger, pool reservePool, base assetLedger) (*Engine, error) {
	e := NewEngine(s.Owner, s.Self, s.FeeTo, subs, pool, base)
	if err := e.applyParams(s.Params.Clone()); err != nil {
		return nil, err
	}
	for _, entry := range s.Balances {
		e.balances[entry.Addr] = new(big.Int).Set(entry.Amount)
	}
	for _, entry := range s.Cumulative {
		e.cumulative[entry.Addr] = new(big.Int).Set(entry.Amount)
	}
	for _, entry := range s.Positions {
		deposits := make([]Deposit, len(entry.Deposits))
		for i, d := range entry.Deposits {
			deposits[i] = Deposit{
				AmountBase:  new(big.Int).Set(d.AmountBase),
				NetBase:     new(big.Int).Set(d.NetBase),
				TokenAmount: new(big.Int).Set(d.TokenAmount),
				Timestamp:   d.Timestamp,
			}
		}
		e.positions[entry.Addr] = deposits
	}
	for _, entry := range s.Purchases {
		records := make([]windowEntry, len(entry.Records))
		for i, rec := range entry.Records {
			records[i] = windowEntry{amount: new(big.Int).Set(rec.Amount), timestamp: rec.Timestamp}
		}
		e.purchases[entry.Addr] = records
	}
	if s.Pending != nil {
		e.pending = new(big.Int).Set(s.Pending)
	}
	return e, nil
}

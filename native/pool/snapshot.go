package pool

import "math/big"

// Snapshot is the serializable form of the pool state.
type Snapshot struct {
	Owner        [20]byte `json:"owner"`
	Trader       [20]byte `json:"trader"`
	HasTrader    bool     `json:"hasTrader"`
	ReserveToken *big.Int `json:"reserveToken"`
	ReserveBase  *big.Int `json:"reserveBase"`
}

// Snapshot captures the current pool state.
func (p *Pool) Snapshot() Snapshot {
	return Snapshot{
		Owner:        p.owner,
		Trader:       p.trader,
		HasTrader:    p.hasTrader,
		ReserveToken: new(big.Int).Set(p.reserveToken),
		ReserveBase:  new(big.Int).Set(p.reserveBase),
	}
}

// RestorePool rebuilds a pool from a snapshot.
func RestorePool(s Snapshot) *Pool {
	p := NewPool(s.Owner)
	p.trader = s.Trader
	p.hasTrader = s.HasTrader
	if s.ReserveToken != nil {
		p.reserveToken.Set(s.ReserveToken)
	}
	if s.ReserveBase != nil {
		p.reserveBase.Set(s.ReserveBase)
	}
	return p
}

package rpc

import (
	"errors"
	"math/big"

	"magna/core/state"
	"magna/native/pool"
)

type setTraderParams struct {
	Caller string `json:"caller"`
	Trader string `json:"trader"`
}

type reservesResult struct {
	ReserveToken *big.Int `json:"reserveToken"`
	ReserveBase  *big.Int `json:"reserveBase"`
}

func (s *Server) handleReserves(req *RPCRequest) (interface{}, error) {
	var result reservesResult
	_ = s.state.View(func(c state.Components) error {
		result.ReserveToken, result.ReserveBase = c.Pool.Reserves()
		return nil
	})
	return result, nil
}

func (s *Server) handleCurrentPrice(req *RPCRequest) (interface{}, error) {
	var price *big.Int
	err := s.state.View(func(c state.Components) error {
		var err error
		price, err = c.Pool.CurrentPrice()
		return err
	})
	if errors.Is(err, pool.ErrEmptyReserve) {
		return map[string]interface{}{"price": nil}, nil
	}
	if err != nil {
		return nil, err
	}
	return map[string]*big.Int{"price": price}, nil
}

func (s *Server) handleSetTrader(req *RPCRequest) (interface{}, error) {
	var params setTraderParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	caller, err := parseAddr("caller", params.Caller)
	if err != nil {
		return nil, err
	}
	trader, err := parseAddr("trader", params.Trader)
	if err != nil {
		return nil, err
	}
	err = s.state.Update("set_trader", func(c state.Components) error {
		return c.Pool.SetTrader(caller, trader)
	})
	if err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

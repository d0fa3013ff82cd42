package rpc

import (
	"math/big"

	"magna/core/state"
)

type tokenTransferParams struct {
	Caller string   `json:"caller"`
	To     string   `json:"to"`
	Amount *big.Int `json:"amount"`
}

type tokenApproveParams struct {
	Caller  string   `json:"caller"`
	Spender string   `json:"spender"`
	Amount  *big.Int `json:"amount"`
}

type whitelistParams struct {
	Caller  string `json:"caller"`
	Address string `json:"address"`
}

func (s *Server) handleTokenBalanceOf(req *RPCRequest) (interface{}, error) {
	var params accountParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	account, err := parseAddr("account", params.Account)
	if err != nil {
		return nil, err
	}
	var balance *big.Int
	_ = s.state.View(func(c state.Components) error {
		balance = c.Token.BalanceOf(account)
		return nil
	})
	return map[string]*big.Int{"balance": balance}, nil
}

func (s *Server) handleTokenTransfer(req *RPCRequest) (interface{}, error) {
	var params tokenTransferParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	caller, err := parseAddr("caller", params.Caller)
	if err != nil {
		return nil, err
	}
	to, err := parseAddr("to", params.To)
	if err != nil {
		return nil, err
	}
	err = s.state.Update("token_transfer", func(c state.Components) error {
		return c.Token.Transfer(caller, to, params.Amount)
	})
	if err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleTokenApprove(req *RPCRequest) (interface{}, error) {
	var params tokenApproveParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	caller, err := parseAddr("caller", params.Caller)
	if err != nil {
		return nil, err
	}
	spender, err := parseAddr("spender", params.Spender)
	if err != nil {
		return nil, err
	}
	err = s.state.Update("token_approve", func(c state.Components) error {
		return c.Token.Approve(caller, spender, params.Amount)
	})
	if err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleAddWhitelist(req *RPCRequest) (interface{}, error) {
	var params whitelistParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	caller, err := parseAddr("caller", params.Caller)
	if err != nil {
		return nil, err
	}
	address, err := parseAddr("address", params.Address)
	if err != nil {
		return nil, err
	}
	err = s.state.Update("whitelist_add", func(c state.Components) error {
		return c.Token.AddWhitelist(caller, address)
	})
	if err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleRemoveWhitelist(req *RPCRequest) (interface{}, error) {
	var params whitelistParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	caller, err := parseAddr("caller", params.Caller)
	if err != nil {
		return nil, err
	}
	address, err := parseAddr("address", params.Address)
	if err != nil {
		return nil, err
	}
	err = s.state.Update("whitelist_remove", func(c state.Components) error {
		return c.Token.RemoveWhitelist(caller, address)
	})
	if err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

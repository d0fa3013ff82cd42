package rpc

import (
	"math/big"

	"magna/core/state"
)

type amountParams struct {
	Caller string   `json:"caller"`
	Amount *big.Int `json:"amount"`
}

type autoWithdrawParams struct {
	Caller  string `json:"caller"`
	Account string `json:"account"`
}

type withdrawRewardsParams struct {
	Caller string   `json:"caller"`
	Amount *big.Int `json:"amount"`
}

// setPolicyParams carries the owner-gated trading setters. Only fields that
// are present are applied, in the order listed.
type setPolicyParams struct {
	Caller                   string    `json:"caller"`
	PricingFee               *uint64   `json:"pricingFee,omitempty"`
	LiquidityWithhold        *uint64   `json:"liquidityWithhold,omitempty"`
	WithdrawProfitFee        *uint64   `json:"withdrawProfitFee,omitempty"`
	ProfitDistribution       []uint64  `json:"profitDistribution,omitempty"`
	CommissionDepths         []int     `json:"commissionDepths,omitempty"`
	SuccessReward            *uint64   `json:"successReward,omitempty"`
	SuccessRewardRequirement *big.Int  `json:"successRewardRequirement,omitempty"`
	PurchaseCooldown         *int64    `json:"purchaseCooldown,omitempty"`
	MaxPurchase              *big.Int  `json:"maxPurchase,omitempty"`
	MaxAmountPerBuy          *big.Int  `json:"maxAmountPerBuy,omitempty"`
	WithdrawLock             *int64    `json:"withdrawLock,omitempty"`
	FeeTo                    string    `json:"feeTo,omitempty"`
}

func (s *Server) handleBuy(req *RPCRequest) (interface{}, error) {
	var params amountParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	caller, err := parseAddr("caller", params.Caller)
	if err != nil {
		return nil, err
	}
	if err := s.state.Buy(caller, params.Amount); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleSell(req *RPCRequest) (interface{}, error) {
	var params amountParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	caller, err := parseAddr("caller", params.Caller)
	if err != nil {
		return nil, err
	}
	if err := s.state.Sell(caller, params.Amount); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleAutoWithdraw(req *RPCRequest) (interface{}, error) {
	var params autoWithdrawParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	caller, err := parseAddr("caller", params.Caller)
	if err != nil {
		return nil, err
	}
	account, err := parseAddr("account", params.Account)
	if err != nil {
		return nil, err
	}
	if err := s.state.AutoWithdraw(caller, account); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleMagnaBalance(req *RPCRequest) (interface{}, error) {
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
		balance = c.Trading.MagnaBalance(account)
		return nil
	})
	return map[string]*big.Int{"balance": balance}, nil
}

func (s *Server) handleDepositHistoryLength(req *RPCRequest) (interface{}, error) {
	var params accountParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	account, err := parseAddr("account", params.Account)
	if err != nil {
		return nil, err
	}
	length := 0
	_ = s.state.View(func(c state.Components) error {
		length = c.Trading.DepositHistoryLength(account)
		return nil
	})
	return map[string]int{"length": length}, nil
}

func (s *Server) handleGetPurchaseLimit(req *RPCRequest) (interface{}, error) {
	var params accountParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	account, err := parseAddr("account", params.Account)
	if err != nil {
		return nil, err
	}
	var limit *big.Int
	err = s.state.Update("purchase_limit", func(c state.Components) error {
		limit = c.Trading.PurchaseLimit(account)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]*big.Int{"limit": limit}, nil
}

func (s *Server) handleWithdrawRewards(req *RPCRequest) (interface{}, error) {
	var params withdrawRewardsParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	caller, err := parseAddr("caller", params.Caller)
	if err != nil {
		return nil, err
	}
	err = s.state.Update("withdraw_rewards", func(c state.Components) error {
		return c.Trading.WithdrawRewards(caller, params.Amount)
	})
	if err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleWithdrawAll(req *RPCRequest) (interface{}, error) {
	var params accountParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	caller, err := parseAddr("account", params.Account)
	if err != nil {
		return nil, err
	}
	err = s.state.Update("withdraw_all", func(c state.Components) error {
		return c.Trading.WithdrawAll(caller)
	})
	if err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleSetPolicy(req *RPCRequest) (interface{}, error) {
	var params setPolicyParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	caller, err := parseAddr("caller", params.Caller)
	if err != nil {
		return nil, err
	}
	var feeTo [20]byte
	hasFeeTo := params.FeeTo != ""
	if hasFeeTo {
		if feeTo, err = parseAddr("feeTo", params.FeeTo); err != nil {
			return nil, err
		}
	}
	err = s.state.Update("set_policy", func(c state.Components) error {
		e := c.Trading
		next := e.Params()
		if params.PricingFee != nil {
			next.PricingFee = *params.PricingFee
		}
		if params.LiquidityWithhold != nil {
			next.LiquidityWithhold = *params.LiquidityWithhold
		}
		if params.WithdrawProfitFee != nil {
			next.WithdrawProfitFee = *params.WithdrawProfitFee
		}
		if params.ProfitDistribution != nil {
			next.ProfitDistribution = params.ProfitDistribution
		}
		if params.CommissionDepths != nil {
			next.CommissionDepths = params.CommissionDepths
		}
		if params.SuccessReward != nil {
			next.SuccessReward = *params.SuccessReward
		}
		if params.SuccessRewardRequirement != nil {
			next.SuccessRewardRequirement = params.SuccessRewardRequirement
		}
		if params.PurchaseCooldown != nil {
			next.PurchaseCooldown = *params.PurchaseCooldown
		}
		if params.MaxPurchase != nil {
			next.MaxPurchase = params.MaxPurchase
		}
		if params.MaxAmountPerBuy != nil {
			next.MaxAmountPerBuy = params.MaxAmountPerBuy
		}
		if params.WithdrawLock != nil {
			next.WithdrawLock = *params.WithdrawLock
		}
		if err := e.SetParams(caller, next); err != nil {
			return err
		}
		if hasFeeTo {
			return e.SetFeeTo(caller, feeTo)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

package rpc

import (
	"encoding/hex"
	"math/big"
	"strings"

	"magna/core/state"
	"magna/native/referral"
)

type subscribeParams struct {
	Caller   string `json:"caller"`
	Referral string `json:"referral"`
	Tier     uint8  `json:"tier"`
}

type subscribeWithCodeParams struct {
	Caller    string `json:"caller"`
	Referral  string `json:"referral"`
	Tier      uint8  `json:"tier"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature"`
}

type accountParams struct {
	Account string `json:"account"`
}

type changeSubscriptionParams struct {
	Caller               string   `json:"caller"`
	Index                uint8    `json:"index"`
	Price                *big.Int `json:"price"`
	DurationSeconds      int64    `json:"durationSeconds"`
	MaxCumulativeDeposit *big.Int `json:"maxCumulativeDeposit"`
}

type userInfoResult struct {
	RegisteredAt          int64  `json:"registeredAt"`
	SubscriptionLevel     uint8  `json:"subscriptionLevel"`
	Referral              string `json:"referral,omitempty"`
	SubscriptionExpiresAt int64  `json:"subscriptionExpiresAt"`
	Valid                 bool   `json:"valid"`
}

func (s *Server) handleSubscribe(req *RPCRequest) (interface{}, error) {
	var params subscribeParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	caller, err := parseAddr("caller", params.Caller)
	if err != nil {
		return nil, err
	}
	referralAddr, err := parseAddr("referral", params.Referral)
	if err != nil {
		return nil, err
	}
	if err := s.state.Subscribe(caller, referralAddr, params.Tier); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleSubscribeWithCode(req *RPCRequest) (interface{}, error) {
	var params subscribeWithCodeParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	caller, err := parseAddr("caller", params.Caller)
	if err != nil {
		return nil, err
	}
	referralAddr, err := parseAddr("referral", params.Referral)
	if err != nil {
		return nil, err
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(params.Signature, "0x"))
	if err != nil {
		return nil, errInvalidParams("signature: %v", err)
	}
	if err := s.state.SubscribeWithCode(caller, referralAddr, params.Tier, params.Nonce, sig); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleUserInfo(req *RPCRequest) (interface{}, error) {
	var params accountParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	account, err := parseAddr("account", params.Account)
	if err != nil {
		return nil, err
	}
	var result *userInfoResult
	err = s.state.View(func(c state.Components) error {
		info, ok := c.Referral.UserInfo(account)
		if !ok {
			return nil
		}
		result = &userInfoResult{
			RegisteredAt:          info.RegisteredAt,
			SubscriptionLevel:     info.SubscriptionLevel,
			SubscriptionExpiresAt: info.SubscriptionExpiresAt,
			Valid:                 c.Referral.SubscriptionIsValid(account),
		}
		if info.HasReferral {
			result.Referral = renderAddr(info.Referral)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, errInvalidParams("account %s not registered", params.Account)
	}
	return result, nil
}

func (s *Server) handleSubscriptionIsValid(req *RPCRequest) (interface{}, error) {
	var params accountParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	account, err := parseAddr("account", params.Account)
	if err != nil {
		return nil, err
	}
	valid := false
	_ = s.state.View(func(c state.Components) error {
		valid = c.Referral.SubscriptionIsValid(account)
		return nil
	})
	return map[string]bool{"valid": valid}, nil
}

func (s *Server) handleGetRecruitors(req *RPCRequest) (interface{}, error) {
	var params accountParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	account, err := parseAddr("account", params.Account)
	if err != nil {
		return nil, err
	}
	var chain []string
	err = s.state.View(func(c state.Components) error {
		raw, err := c.Referral.Recruitors(account)
		if err != nil {
			return err
		}
		chain = make([]string, len(raw))
		for i, addr := range raw {
			chain[i] = renderAddr(addr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chain, nil
}

func (s *Server) handleUsersByReferral(req *RPCRequest) (interface{}, error) {
	var params accountParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	account, err := parseAddr("account", params.Account)
	if err != nil {
		return nil, err
	}
	var downlines []string
	_ = s.state.View(func(c state.Components) error {
		raw := c.Referral.UsersByReferral(account)
		downlines = make([]string, len(raw))
		for i, addr := range raw {
			downlines[i] = renderAddr(addr)
		}
		return nil
	})
	return downlines, nil
}

func (s *Server) handleChangeSubscription(req *RPCRequest) (interface{}, error) {
	var params changeSubscriptionParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	caller, err := parseAddr("caller", params.Caller)
	if err != nil {
		return nil, err
	}
	tier := referral.Tier{
		Price:                params.Price,
		DurationSeconds:      params.DurationSeconds,
		MaxCumulativeDeposit: params.MaxCumulativeDeposit,
	}
	err = s.state.Update("change_subscription", func(c state.Components) error {
		return c.Referral.ChangeSubscription(caller, params.Index, tier)
	})
	if err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

package trading

import "errors"

var (
	ErrNotOwner            = errors.New("trading: caller is not the owner")
	ErrNotSubscribed       = errors.New("trading: caller not currently subscribed")
	ErrPurchaseLimit       = errors.New("trading: purchase amount exceeds rolling-window limit")
	ErrDepositCap          = errors.New("trading: tier cumulative deposit cap exceeded")
	ErrAmountNotPositive   = errors.New("trading: amount must be positive")
	ErrInsufficientTokens  = errors.New("trading: insufficient token balance")
	ErrNoPosition          = errors.New("trading: no open position")
	ErrCannotWithdrawYet   = errors.New("trading: cannot withdraw yet")
	ErrInvalidDistribution = errors.New("trading: distribution exceeds allowed total")
	ErrInvalidParam        = errors.New("trading: invalid parameter")
	ErrBaseAssetNotSet     = errors.New("trading: base asset ledger not configured")
	ErrPendingInsufficient = errors.New("trading: pending balance insufficient")
)

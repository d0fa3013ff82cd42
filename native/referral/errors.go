package referral

import "errors"

var (
	ErrInvalidTier           = errors.New("referral: invalid tier index")
	ErrReferralNotSubscribed = errors.New("referral: referral not currently subscribed")
	ErrReferralBound         = errors.New("referral: active referral link cannot be rebound")
	ErrNonceUsed             = errors.New("referral: nonce already used")
	ErrBadSignature          = errors.New("referral: signature does not verify")
	ErrSignerNotConfigured   = errors.New("referral: trusted signer not configured")
	ErrCycleDetected         = errors.New("referral: referral chain cycle detected")
	ErrNotOwner              = errors.New("referral: caller is not the owner")
	ErrInvalidShareSplit     = errors.New("referral: fee shares exceed denominator")
	ErrBaseAssetNotSet       = errors.New("referral: base asset ledger not configured")
)

package referral

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"
	"sort"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"magna/core/events"
)

// SubscribeCodeDomainV1 is the domain separator mixed into signed
// subscription codes.
const SubscribeCodeDomainV1 = "MAGNA_SUBSCRIBE_V1"

// DefaultMaxWalkDepth bounds the upward recruitor walk. A chain longer than
// this is treated as corrupt configuration.
const DefaultMaxWalkDepth = 32

// baseAsset is the slice of the external asset ledger the subscription flow
// needs: pulling the tier price from the subscriber under allowance.
type baseAsset interface {
	TransferFrom(spender, from, to [20]byte, amount *big.Int) error
}

// Ledger owns subscription state and the referral forest. It carries no
// internal lock; the state manager serialises access.
type Ledger struct {
	owner     [20]byte
	self      [20]byte
	bootstrap [20]byte

	guaranteeAddr    [20]byte
	treasuryAddr     [20]byte
	guaranteeShare   uint64
	treasuryShare    uint64
	shareDenominator uint64

	tiers     []Tier
	accounts  map[[20]byte]*Account
	downlines map[[20]byte]map[[20]byte]struct{}

	usedNonces map[uint64]struct{}
	signer     [20]byte
	hasSigner  bool

	base         baseAsset
	emitter      events.Emitter
	maxWalkDepth int
	nowFn        func() int64
}

// NewLedger builds a ledger around the default tier table. The bootstrap
// address is the distinguished root every first-generation subscriber may
// name as referral.
func NewLedger(owner, self, bootstrap, guaranteeAddr, treasuryAddr [20]byte) *Ledger {
	return &Ledger{
		owner:            owner,
		self:             self,
		bootstrap:        bootstrap,
		guaranteeAddr:    guaranteeAddr,
		treasuryAddr:     treasuryAddr,
		guaranteeShare:   500,
		treasuryShare:    500,
		shareDenominator: 1000,
		tiers:            DefaultTiers(),
		accounts:         make(map[[20]byte]*Account),
		downlines:        make(map[[20]byte]map[[20]byte]struct{}),
		usedNonces:       make(map[uint64]struct{}),
		emitter:          events.NoopEmitter{},
		maxWalkDepth:     DefaultMaxWalkDepth,
		nowFn:            func() int64 { return time.Now().Unix() },
	}
}

// SetBaseAsset wires the external asset ledger used to collect tier prices.
func (l *Ledger) SetBaseAsset(base baseAsset) { l.base = base }

// SetEmitter overrides the event emitter.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter != nil {
		l.emitter = emitter
	}
}

// SetNowFunc overrides the clock. Intended for tests.
func (l *Ledger) SetNowFunc(now func() int64) {
	if now != nil {
		l.nowFn = now
	}
}

// SetTrustedSigner installs the signer address recovered signatures must
// match for SubscribeWithCode.
func (l *Ledger) SetTrustedSigner(caller, signer [20]byte) error {
	if caller != l.owner {
		return ErrNotOwner
	}
	l.signer = signer
	l.hasSigner = true
	return nil
}

// SetShareSplit updates the guarantee/treasury split of collected tier
// prices. Owner only; shares must not exceed the denominator.
func (l *Ledger) SetShareSplit(caller [20]byte, guarantee, treasury, denominator uint64) error {
	if caller != l.owner {
		return ErrNotOwner
	}
	if denominator == 0 || guarantee+treasury > denominator {
		return ErrInvalidShareSplit
	}
	l.guaranteeShare = guarantee
	l.treasuryShare = treasury
	l.shareDenominator = denominator
	return nil
}

// ChangeSubscription replaces the tier at index, or appends when index equals
// the current table length. Recorded tier values on accounts are unaffected.
func (l *Ledger) ChangeSubscription(caller [20]byte, index uint8, tier Tier) error {
	if caller != l.owner {
		return ErrNotOwner
	}
	if tier.Price == nil || tier.Price.Sign() < 0 || tier.DurationSeconds <= 0 {
		return fmt.Errorf("%w: malformed tier", ErrInvalidTier)
	}
	switch {
	case int(index) < len(l.tiers):
		l.tiers[index] = tier.Clone()
	case int(index) == len(l.tiers):
		l.tiers = append(l.tiers, tier.Clone())
	default:
		return ErrInvalidTier
	}
	return nil
}

// Tiers returns a copy of the current tier table.
func (l *Ledger) Tiers() []Tier {
	out := make([]Tier, len(l.tiers))
	for i, t := range l.tiers {
		out[i] = t.Clone()
	}
	return out
}

// Tier returns the current table entry for index.
func (l *Ledger) Tier(index uint8) (Tier, error) {
	if int(index) >= len(l.tiers) {
		return Tier{}, ErrInvalidTier
	}
	return l.tiers[index].Clone(), nil
}

// UserInfo returns a copy of the account record.
func (l *Ledger) UserInfo(addr [20]byte) (Account, bool) {
	acct, ok := l.accounts[addr]
	if !ok {
		return Account{}, false
	}
	return *acct, true
}

// SubscriptionIsValid reports whether addr holds an unexpired subscription.
func (l *Ledger) SubscriptionIsValid(addr [20]byte) bool {
	acct, ok := l.accounts[addr]
	if !ok {
		return false
	}
	return l.nowFn() < acct.SubscriptionExpiresAt
}

// Subscribe registers or renews the caller at the given tier, pulling the
// tier price from the caller through the base asset ledger and splitting it
// between the guarantee and treasury addresses.
func (l *Ledger) Subscribe(caller, referralAddr [20]byte, tierIndex uint8) error {
	tier, err := l.Tier(tierIndex)
	if err != nil {
		return err
	}
	if err := l.checkLink(caller, referralAddr); err != nil {
		return err
	}
	if l.base == nil {
		return ErrBaseAssetNotSet
	}
	if tier.Price.Sign() > 0 {
		den := new(big.Int).SetUint64(l.shareDenominator)
		guarantee := new(big.Int).Mul(tier.Price, new(big.Int).SetUint64(l.guaranteeShare))
		guarantee.Quo(guarantee, den)
		treasury := new(big.Int).Mul(tier.Price, new(big.Int).SetUint64(l.treasuryShare))
		treasury.Quo(treasury, den)
		if guarantee.Sign() > 0 {
			if err := l.base.TransferFrom(l.self, caller, l.guaranteeAddr, guarantee); err != nil {
				return fmt.Errorf("collect guarantee share: %w", err)
			}
		}
		if treasury.Sign() > 0 {
			if err := l.base.TransferFrom(l.self, caller, l.treasuryAddr, treasury); err != nil {
				return fmt.Errorf("collect treasury share: %w", err)
			}
		}
	}
	l.record(caller, referralAddr, tierIndex, tier, false)
	return nil
}

// SubscribeWithCode registers or renews the caller using an off-chain issued
// code instead of payment. The signature must recover to the trusted signer
// and each nonce is accepted exactly once, across all accounts.
func (l *Ledger) SubscribeWithCode(caller, referralAddr [20]byte, tierIndex uint8, nonce uint64, sig []byte) error {
	tier, err := l.Tier(tierIndex)
	if err != nil {
		return err
	}
	if err := l.checkLink(caller, referralAddr); err != nil {
		return err
	}
	if !l.hasSigner {
		return ErrSignerNotConfigured
	}
	if _, used := l.usedNonces[nonce]; used {
		return ErrNonceUsed
	}
	if err := l.verifyCode(tierIndex, nonce, sig); err != nil {
		return err
	}
	l.usedNonces[nonce] = struct{}{}
	l.record(caller, referralAddr, tierIndex, tier, true)
	return nil
}

// CodeDigest renders the message hash a subscription code signer commits to.
func CodeDigest(tierIndex uint8, nonce uint64) []byte {
	var buf bytes.Buffer
	buf.WriteString(SubscribeCodeDomainV1)
	buf.WriteByte(tierIndex)
	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], nonce)
	buf.Write(nonceBytes[:])
	return ethcrypto.Keccak256(buf.Bytes())
}

func (l *Ledger) verifyCode(tierIndex uint8, nonce uint64, sig []byte) error {
	if len(sig) != 65 {
		return fmt.Errorf("%w: unexpected signature length %d", ErrBadSignature, len(sig))
	}
	pub, err := ethcrypto.SigToPub(CodeDigest(tierIndex, nonce), sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if ethcrypto.PubkeyToAddress(*pub) != l.signer {
		return ErrBadSignature
	}
	return nil
}

// checkLink enforces the relink rules: the named referral must itself be
// currently subscribed (or be the bootstrap address), an existing link whose
// upline is still subscribed cannot be pointed elsewhere, and the new upline
// must not sit inside the caller's own subtree. Without the last rule two
// individually valid subscribe calls could close a loop in the forest and
// every later upward walk through it would fail.
func (l *Ledger) checkLink(caller, referralAddr [20]byte) error {
	if referralAddr == caller {
		return fmt.Errorf("%w: self referral", ErrCycleDetected)
	}
	if referralAddr != l.bootstrap && !l.SubscriptionIsValid(referralAddr) {
		return ErrReferralNotSubscribed
	}
	if acct, ok := l.accounts[caller]; ok && acct.HasReferral && acct.Referral != referralAddr {
		if l.SubscriptionIsValid(acct.Referral) {
			return ErrReferralBound
		}
	}
	if referralAddr == l.bootstrap {
		return nil
	}
	chain, err := l.Recruitors(referralAddr)
	if err != nil {
		return err
	}
	for _, ancestor := range chain {
		if ancestor == caller {
			return fmt.Errorf("%w: %x descends from caller", ErrCycleDetected, referralAddr)
		}
	}
	return nil
}

func (l *Ledger) record(caller, referralAddr [20]byte, tierIndex uint8, tier Tier, viaCode bool) {
	now := l.nowFn()
	acct, ok := l.accounts[caller]
	if !ok {
		acct = &Account{}
		l.accounts[caller] = acct
	}
	if acct.HasReferral && acct.Referral != referralAddr {
		old := acct.Referral
		l.removeDownline(old, caller)
		l.emitter.Emit(events.ReferralRebound{Account: caller, OldReferral: old, NewReferral: referralAddr})
	}
	if !acct.HasReferral || acct.Referral != referralAddr {
		l.addDownline(referralAddr, caller)
	}
	acct.Referral = referralAddr
	acct.HasReferral = true
	acct.SubscriptionLevel = tierIndex
	acct.RegisteredAt = now
	acct.SubscriptionExpiresAt = now + tier.DurationSeconds

	l.emitter.Emit(events.SubscriptionCreated{
		Account:   caller,
		Referral:  referralAddr,
		Tier:      tierIndex,
		ExpiresAt: acct.SubscriptionExpiresAt,
		ViaCode:   viaCode,
	})
}

func (l *Ledger) addDownline(parent, child [20]byte) {
	set, ok := l.downlines[parent]
	if !ok {
		set = make(map[[20]byte]struct{})
		l.downlines[parent] = set
	}
	set[child] = struct{}{}
}

func (l *Ledger) removeDownline(parent, child [20]byte) {
	if set, ok := l.downlines[parent]; ok {
		delete(set, child)
		if len(set) == 0 {
			delete(l.downlines, parent)
		}
	}
}

// UsersByReferral returns the direct downlines of addr in lexicographic
// order.
func (l *Ledger) UsersByReferral(addr [20]byte) [][20]byte {
	set := l.downlines[addr]
	out := make([][20]byte, 0, len(set))
	for child := range set {
		out = append(out, child)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

// Recruitors walks the upward referral chain starting at addr's referral.
// The walk is bounded by the configured maximum depth; a revisited node is
// reported as a cycle error rather than looping.
func (l *Ledger) Recruitors(addr [20]byte) ([][20]byte, error) {
	chain := make([][20]byte, 0, 4)
	seen := map[[20]byte]struct{}{addr: {}}
	current := addr
	for i := 0; i < l.maxWalkDepth; i++ {
		acct, ok := l.accounts[current]
		if !ok || !acct.HasReferral {
			return chain, nil
		}
		next := acct.Referral
		if _, dup := seen[next]; dup {
			return nil, fmt.Errorf("%w: via %x", ErrCycleDetected, next)
		}
		seen[next] = struct{}{}
		chain = append(chain, next)
		if next == l.bootstrap {
			return chain, nil
		}
		current = next
	}
	return chain, nil
}

package referral

import (
	"errors"
	"math/big"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

func addr(index byte) [20]byte {
	var out [20]byte
	out[19] = index
	return out
}

type pull struct {
	spender, from, to [20]byte
	amount            *big.Int
}

// fakeAsset records TransferFrom calls so tests can assert the tier price
// split without pulling in the token package.
type fakeAsset struct {
	pulls []pull
	err   error
}

func (f *fakeAsset) TransferFrom(spender, from, to [20]byte, amount *big.Int) error {
	if f.err != nil {
		return f.err
	}
	f.pulls = append(f.pulls, pull{spender, from, to, new(big.Int).Set(amount)})
	return nil
}

type fixture struct {
	ledger    *Ledger
	asset     *fakeAsset
	owner     [20]byte
	self      [20]byte
	bootstrap [20]byte
	guarantee [20]byte
	treasury  [20]byte
	now       int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		asset:     &fakeAsset{},
		owner:     addr(1),
		self:      addr(2),
		bootstrap: addr(3),
		guarantee: addr(4),
		treasury:  addr(5),
		now:       1_000_000,
	}
	f.ledger = NewLedger(f.owner, f.self, f.bootstrap, f.guarantee, f.treasury)
	f.ledger.SetBaseAsset(f.asset)
	f.ledger.SetNowFunc(func() int64 { return f.now })
	return f
}

func TestSubscribePullsTierPrice(t *testing.T) {
	f := newFixture(t)
	user := addr(10)

	if err := f.ledger.Subscribe(user, f.bootstrap, Tier0); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if len(f.asset.pulls) != 2 {
		t.Fatalf("expected guarantee+treasury pulls, got %d", len(f.asset.pulls))
	}
	half := units(75)
	for i, want := range [][20]byte{f.guarantee, f.treasury} {
		p := f.asset.pulls[i]
		if p.spender != f.self || p.from != user || p.to != want {
			t.Fatalf("pull %d routed %x->%x via %x", i, p.from, p.to, p.spender)
		}
		if p.amount.Cmp(half) != 0 {
			t.Fatalf("pull %d amount: got %s, want %s", i, p.amount, half)
		}
	}

	acct, ok := f.ledger.UserInfo(user)
	if !ok {
		t.Fatal("account not recorded")
	}
	if acct.SubscriptionLevel != Tier0 || acct.Referral != f.bootstrap || !acct.HasReferral {
		t.Fatalf("account record: %+v", acct)
	}
	if acct.SubscriptionExpiresAt != f.now+30*day {
		t.Fatalf("expiry: got %d", acct.SubscriptionExpiresAt)
	}
	if !f.ledger.SubscriptionIsValid(user) {
		t.Fatal("fresh subscription should be valid")
	}
}

func TestSubscribeInvalidTier(t *testing.T) {
	f := newFixture(t)
	if err := f.ledger.Subscribe(addr(10), f.bootstrap, 7); !errors.Is(err, ErrInvalidTier) {
		t.Fatalf("expected invalid tier, got %v", err)
	}
}

func TestSubscribeRequiresValidReferral(t *testing.T) {
	f := newFixture(t)
	user := addr(10)
	stranger := addr(11)

	err := f.ledger.Subscribe(user, stranger, Tier0)
	if !errors.Is(err, ErrReferralNotSubscribed) {
		t.Fatalf("expected referral-not-subscribed, got %v", err)
	}

	if err := f.ledger.Subscribe(stranger, f.bootstrap, Tier0); err != nil {
		t.Fatalf("subscribe referral: %v", err)
	}
	if err := f.ledger.Subscribe(user, stranger, Tier0); err != nil {
		t.Fatalf("subscribe under active referral: %v", err)
	}

	// Once the referral lapses, new accounts can no longer name it.
	f.now += 31 * day
	err = f.ledger.Subscribe(addr(12), stranger, Tier0)
	if !errors.Is(err, ErrReferralNotSubscribed) {
		t.Fatalf("expected lapsed referral rejection, got %v", err)
	}
}

func TestRebindRules(t *testing.T) {
	f := newFixture(t)
	oldRef := addr(10)
	newRef := addr(11)
	user := addr(12)

	if err := f.ledger.Subscribe(oldRef, f.bootstrap, Tier0); err != nil {
		t.Fatalf("subscribe oldRef: %v", err)
	}
	if err := f.ledger.Subscribe(newRef, f.bootstrap, Tier1); err != nil {
		t.Fatalf("subscribe newRef: %v", err)
	}
	if err := f.ledger.Subscribe(user, oldRef, Tier0); err != nil {
		t.Fatalf("subscribe user: %v", err)
	}

	// Renewal pointing elsewhere is rejected while the old upline is live.
	err := f.ledger.Subscribe(user, newRef, Tier0)
	if !errors.Is(err, ErrReferralBound) {
		t.Fatalf("expected rebind rejection, got %v", err)
	}
	// Renewal keeping the same upline is always fine.
	if err := f.ledger.Subscribe(user, oldRef, Tier0); err != nil {
		t.Fatalf("same-link renewal: %v", err)
	}

	// After oldRef's 30-day subscription lapses, the user may rebind. newRef
	// holds a 90-day subscription so it is still a valid target.
	f.now += 31 * day
	if err := f.ledger.Subscribe(user, newRef, Tier0); err != nil {
		t.Fatalf("rebind after lapse: %v", err)
	}

	if down := f.ledger.UsersByReferral(oldRef); len(down) != 0 {
		t.Fatalf("old downline not cleared: %v", down)
	}
	down := f.ledger.UsersByReferral(newRef)
	if len(down) != 1 || down[0] != user {
		t.Fatalf("new downline: %v", down)
	}
}

func TestRebindCannotCloseLoop(t *testing.T) {
	f := newFixture(t)
	upline := addr(10)
	child := addr(11)
	grandchild := addr(12)

	if err := f.ledger.Subscribe(upline, f.bootstrap, Tier0); err != nil {
		t.Fatalf("subscribe upline: %v", err)
	}
	if err := f.ledger.Subscribe(child, upline, Tier2); err != nil {
		t.Fatalf("subscribe child: %v", err)
	}
	if err := f.ledger.Subscribe(grandchild, child, Tier2); err != nil {
		t.Fatalf("subscribe grandchild: %v", err)
	}

	// An account can never name itself.
	if err := f.ledger.Subscribe(child, child, Tier2); !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("expected self-link rejection, got %v", err)
	}

	// The upline's 30-day subscription lapses while its downline stays
	// live. Renewing under its own downline would loop the forest, so the
	// relink is refused at any depth below the caller.
	f.now += 31 * day
	err := f.ledger.Subscribe(upline, child, Tier0)
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("expected loop rejection via child, got %v", err)
	}
	err = f.ledger.Subscribe(upline, grandchild, Tier0)
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("expected loop rejection via grandchild, got %v", err)
	}

	// The forest stayed walkable and the stale link is untouched.
	chain, err := f.ledger.Recruitors(grandchild)
	if err != nil {
		t.Fatalf("recruitors: %v", err)
	}
	if len(chain) != 3 || chain[0] != child || chain[1] != upline || chain[2] != f.bootstrap {
		t.Fatalf("chain after rejected relink: %x", chain)
	}

	// Rebinding somewhere outside the subtree still works.
	outsider := addr(13)
	if err := f.ledger.Subscribe(outsider, f.bootstrap, Tier2); err != nil {
		t.Fatalf("subscribe outsider: %v", err)
	}
	if err := f.ledger.Subscribe(upline, outsider, Tier0); err != nil {
		t.Fatalf("rebind outside subtree: %v", err)
	}
}

func TestSubscribeWithCode(t *testing.T) {
	f := newFixture(t)
	user := addr(10)

	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer := [20]byte(ethcrypto.PubkeyToAddress(key.PublicKey))

	sig, err := ethcrypto.Sign(CodeDigest(Tier1, 42), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	err = f.ledger.SubscribeWithCode(user, f.bootstrap, Tier1, 42, sig)
	if !errors.Is(err, ErrSignerNotConfigured) {
		t.Fatalf("expected signer-not-configured, got %v", err)
	}
	if err := f.ledger.SetTrustedSigner(f.owner, signer); err != nil {
		t.Fatalf("set signer: %v", err)
	}

	// Signature over a different tier must not redeem.
	wrongTier, err := ethcrypto.Sign(CodeDigest(Tier0, 42), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	err = f.ledger.SubscribeWithCode(user, f.bootstrap, Tier1, 42, wrongTier)
	if !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected bad signature, got %v", err)
	}

	if err := f.ledger.SubscribeWithCode(user, f.bootstrap, Tier1, 42, sig); err != nil {
		t.Fatalf("subscribe with code: %v", err)
	}
	if len(f.asset.pulls) != 0 {
		t.Fatalf("code path must not pull payment, saw %d pulls", len(f.asset.pulls))
	}
	acct, _ := f.ledger.UserInfo(user)
	if acct.SubscriptionLevel != Tier1 || acct.SubscriptionExpiresAt != f.now+90*day {
		t.Fatalf("account record: %+v", acct)
	}

	// Nonce replay fails even from another account.
	err = f.ledger.SubscribeWithCode(addr(11), f.bootstrap, Tier1, 42, sig)
	if !errors.Is(err, ErrNonceUsed) {
		t.Fatalf("expected nonce reuse rejection, got %v", err)
	}
}

func TestRecruitorsWalk(t *testing.T) {
	f := newFixture(t)
	a, b, c := addr(10), addr(11), addr(12)

	if err := f.ledger.Subscribe(a, f.bootstrap, Tier2); err != nil {
		t.Fatalf("subscribe a: %v", err)
	}
	if err := f.ledger.Subscribe(b, a, Tier2); err != nil {
		t.Fatalf("subscribe b: %v", err)
	}
	if err := f.ledger.Subscribe(c, b, Tier2); err != nil {
		t.Fatalf("subscribe c: %v", err)
	}

	chain, err := f.ledger.Recruitors(c)
	if err != nil {
		t.Fatalf("recruitors: %v", err)
	}
	want := [][20]byte{b, a, f.bootstrap}
	if len(chain) != len(want) {
		t.Fatalf("chain length: got %d", len(chain))
	}
	for i := range want {
		if chain[i] != want[i] {
			t.Fatalf("chain[%d]: got %x, want %x", i, chain[i], want[i])
		}
	}

	// Corrupt the forest into a loop; the walk must fail, not spin.
	f.ledger.accounts[a].Referral = c
	if _, err := f.ledger.Recruitors(c); !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("expected cycle detection, got %v", err)
	}
}

func TestChangeSubscription(t *testing.T) {
	f := newFixture(t)

	custom := Tier{Price: units(10), DurationSeconds: 7 * day, MaxCumulativeDeposit: units(100)}
	if err := f.ledger.ChangeSubscription(addr(9), 0, custom); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected owner gate, got %v", err)
	}
	if err := f.ledger.ChangeSubscription(f.owner, 5, custom); !errors.Is(err, ErrInvalidTier) {
		t.Fatalf("expected index gap rejection, got %v", err)
	}
	if err := f.ledger.ChangeSubscription(f.owner, 0, custom); err != nil {
		t.Fatalf("replace tier: %v", err)
	}
	if err := f.ledger.ChangeSubscription(f.owner, 3, custom); err != nil {
		t.Fatalf("append tier: %v", err)
	}
	if got := len(f.ledger.Tiers()); got != 4 {
		t.Fatalf("tier count: got %d", got)
	}
	tier, err := f.ledger.Tier(0)
	if err != nil {
		t.Fatalf("tier 0: %v", err)
	}
	if tier.Price.Cmp(units(10)) != 0 {
		t.Fatalf("tier 0 price: got %s", tier.Price)
	}
}

func TestShareSplitValidation(t *testing.T) {
	f := newFixture(t)
	if err := f.ledger.SetShareSplit(f.owner, 600, 500, 1000); !errors.Is(err, ErrInvalidShareSplit) {
		t.Fatalf("expected invalid split, got %v", err)
	}
	if err := f.ledger.SetShareSplit(f.owner, 700, 300, 1000); err != nil {
		t.Fatalf("set split: %v", err)
	}

	user := addr(10)
	if err := f.ledger.Subscribe(user, f.bootstrap, Tier0); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if got := f.asset.pulls[0].amount; got.Cmp(units(105)) != 0 {
		t.Fatalf("guarantee pull: got %s", got)
	}
	if got := f.asset.pulls[1].amount; got.Cmp(units(45)) != 0 {
		t.Fatalf("treasury pull: got %s", got)
	}
}

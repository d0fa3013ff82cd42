package state

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"magna/native/pool"
	"magna/native/referral"
	"magna/native/token"
	"magna/native/trading"
	"magna/storage"
)

func saddr(index byte) [20]byte {
	var out [20]byte
	out[19] = index
	return out
}

func swei(t *testing.T, s string) *big.Int {
	t.Helper()
	out, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok, "bad number literal %q", s)
	return out
}

func sunits(n int64) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return new(big.Int).Mul(big.NewInt(n), scale)
}

type managerFixture struct {
	db      *storage.MemDB
	manager *Manager

	owner      [20]byte
	engineSelf [20]byte
	bootstrap  [20]byte
	refSelf    [20]byte
	user       [20]byte
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	f := &managerFixture{
		db:         storage.NewMemDB(),
		owner:      saddr(1),
		engineSelf: saddr(2),
		bootstrap:  saddr(3),
		refSelf:    saddr(4),
		user:       saddr(10),
	}

	ledger := token.NewLedger(f.owner, saddr(5), saddr(6), sunits(1_000_000))
	ledger.MarkContract(f.engineSelf)
	require.NoError(t, ledger.AddWhitelist(f.owner, f.owner))
	require.NoError(t, ledger.AddWhitelist(f.owner, f.engineSelf))

	subs := referral.NewLedger(f.owner, f.refSelf, f.bootstrap, saddr(5), saddr(6))
	subs.SetBaseAsset(ledger)

	reserves := pool.NewPool(f.owner)
	require.NoError(t, reserves.SetTrader(f.owner, f.engineSelf))

	engine := trading.NewEngine(f.owner, f.engineSelf, saddr(7), subs, reserves, ledger)

	// Fund and pre-approve the test account before the manager takes over;
	// the first successful Update persists this state along with its own.
	require.NoError(t, ledger.Transfer(f.owner, f.user, sunits(5_000)))
	tier, err := subs.Tier(referral.Tier2)
	require.NoError(t, err)
	require.NoError(t, ledger.Approve(f.user, f.refSelf, tier.Price))
	require.NoError(t, ledger.Approve(f.user, f.engineSelf, sunits(5_000)))

	manager, err := NewManager(f.db, Components{
		Token:    ledger,
		Referral: subs,
		Pool:     reserves,
		Trading:  engine,
	})
	require.NoError(t, err)
	f.manager = manager
	return f
}

func TestManagerPersistsAcrossRestart(t *testing.T) {
	f := newManagerFixture(t)

	has, err := HasSnapshot(f.db)
	require.NoError(t, err)
	require.True(t, has)

	require.NoError(t, f.manager.Subscribe(f.user, f.bootstrap, referral.Tier2))
	require.NoError(t, f.manager.Buy(f.user, sunits(100)))

	restored, err := OpenManager(f.db)
	require.NoError(t, err)

	require.NoError(t, restored.View(func(c Components) error {
		require.Equal(t, swei(t, "97500000000000000000"), c.Trading.MagnaBalance(f.user))
		require.Equal(t, 1, c.Trading.DepositHistoryLength(f.user))

		tokens, base := c.Pool.Reserves()
		require.Equal(t, swei(t, "97500000000000000000"), tokens)
		require.Equal(t, swei(t, "99500000000000000000"), base)

		acct, ok := c.Referral.UserInfo(f.user)
		require.True(t, ok)
		require.Equal(t, f.bootstrap, acct.Referral)
		require.Equal(t, referral.Tier2, acct.SubscriptionLevel)

		require.Equal(t, sunits(100), c.Token.BalanceOf(f.engineSelf))
		return nil
	}))

	// The restored components must be wired to each other: a second buy
	// prices against the restored reserves and lands the chained quote.
	require.NoError(t, restored.Buy(f.user, sunits(100)))
	require.NoError(t, restored.View(func(c Components) error {
		require.Equal(t, swei(t, "193040201005025125628"), c.Trading.MagnaBalance(f.user))
		return nil
	}))
}

func TestFailedUpdateIsNotPersisted(t *testing.T) {
	f := newManagerFixture(t)
	require.NoError(t, f.manager.Subscribe(f.user, f.bootstrap, referral.Tier2))
	require.NoError(t, f.manager.Buy(f.user, sunits(100)))

	stranger := saddr(11)
	require.Error(t, f.manager.Buy(stranger, sunits(100)))
	require.Error(t, f.manager.Sell(f.user, sunits(10_000)))

	restored, err := OpenManager(f.db)
	require.NoError(t, err)
	require.NoError(t, restored.View(func(c Components) error {
		require.Equal(t, swei(t, "97500000000000000000"), c.Trading.MagnaBalance(f.user))
		tokens, base := c.Pool.Reserves()
		require.Equal(t, swei(t, "97500000000000000000"), tokens)
		require.Equal(t, swei(t, "99500000000000000000"), base)
		return nil
	}))
}

func TestOpenManagerWithoutSnapshot(t *testing.T) {
	db := storage.NewMemDB()
	_, err := OpenManager(db)
	require.Error(t, err)

	has, err := HasSnapshot(db)
	require.NoError(t, err)
	require.False(t, has)
}

func TestUpdateRunsUnderOneLock(t *testing.T) {
	f := newManagerFixture(t)
	require.NoError(t, f.manager.Subscribe(f.user, f.bootstrap, referral.Tier2))

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			done <- f.manager.Buy(f.user, sunits(10))
		}()
	}
	deadline := time.After(5 * time.Second)
	for i := 0; i < 8; i++ {
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-deadline:
			t.Fatal("concurrent updates deadlocked")
		}
	}

	require.NoError(t, f.manager.View(func(c Components) error {
		require.Equal(t, 8, c.Trading.DepositHistoryLength(f.user))
		_, base := c.Pool.Reserves()
		require.Equal(t, swei(t, "79600000000000000000"), base)
		return nil
	}))
}

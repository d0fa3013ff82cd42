package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"magna/native/pool"
	"magna/native/referral"
	"magna/native/token"
	"magna/native/trading"
	"magna/observability"
	"magna/storage"
)

var snapshotKey = []byte("magna/state/snapshot")

// Snapshot aggregates the serializable state of every component.
type Snapshot struct {
	Token    token.Snapshot    `json:"token"`
	Referral referral.Snapshot `json:"referral"`
	Pool     pool.Snapshot     `json:"pool"`
	Trading  trading.Snapshot  `json:"trading"`
}

// Components groups the engine parts guarded by the manager's lock.
type Components struct {
	Token    *token.Ledger
	Referral *referral.Ledger
	Pool     *pool.Pool
	Trading  *trading.Engine
}

// Manager is the single mutual-exclusion boundary around the combined
// token+ledger+pool+engine state. Every mutation runs to completion under one
// lock and is snapshotted to the database afterwards; every precondition
// failure leaves the state untouched because the engines are written
// plan-then-commit.
type Manager struct {
	mu      sync.Mutex
	db      storage.Database
	parts   Components
	metrics *observability.EngineMetrics
}

// NewManager wires a manager around freshly-built components and persists an
// initial snapshot.
func NewManager(db storage.Database, parts Components) (*Manager, error) {
	m := &Manager{db: db, parts: parts, metrics: observability.Metrics()}
	if err := m.persist(); err != nil {
		return nil, err
	}
	return m, nil
}

// HasSnapshot reports whether db already holds a persisted state snapshot.
func HasSnapshot(db storage.Database) (bool, error) {
	return db.Has(snapshotKey)
}

// OpenManager restores a manager from the snapshot stored in db, rewiring the
// restored components to each other. base and signerWiring state are part of
// the snapshot; only the inter-component references need re-linking.
func OpenManager(db storage.Database) (*Manager, error) {
	raw, err := db.Get(snapshotKey)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, fmt.Errorf("open state: no snapshot present")
		}
		return nil, fmt.Errorf("open state: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	parts := Components{
		Token:    token.RestoreLedger(snap.Token),
		Referral: referral.RestoreLedger(snap.Referral),
		Pool:     pool.RestorePool(snap.Pool),
	}
	parts.Referral.SetBaseAsset(parts.Token)
	engine, err := trading.RestoreEngine(snap.Trading, parts.Referral, parts.Pool, parts.Token)
	if err != nil {
		return nil, fmt.Errorf("restore trading engine: %w", err)
	}
	parts.Trading = engine
	return &Manager{db: db, parts: parts, metrics: observability.Metrics()}, nil
}

func (m *Manager) persist() error {
	snap := Snapshot{
		Token:    m.parts.Token.Snapshot(),
		Referral: m.parts.Referral.Snapshot(),
		Pool:     m.parts.Pool.Snapshot(),
		Trading:  m.parts.Trading.Snapshot(),
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := m.db.Put(snapshotKey, raw); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	return nil
}

// Update runs fn under the state lock and persists a snapshot when it
// succeeds. Operation metrics are recorded under op.
func (m *Manager) Update(op string, fn func(Components) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := time.Now()
	err := fn(m.parts)
	m.metrics.Observe(op, err, time.Since(start))
	if err != nil {
		return err
	}
	reserveToken, reserveBase := m.parts.Pool.Reserves()
	m.metrics.SetReserves(reserveToken, reserveBase)
	return m.persist()
}

// View runs fn under the state lock without persisting.
func (m *Manager) View(fn func(Components) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.parts)
}

// --- Convenience wrappers for the main flows ---

// Subscribe registers caller at tierIndex under referralAddr.
func (m *Manager) Subscribe(caller, referralAddr [20]byte, tierIndex uint8) error {
	return m.Update("subscribe", func(c Components) error {
		return c.Referral.Subscribe(caller, referralAddr, tierIndex)
	})
}

// SubscribeWithCode registers caller using a signed subscription code.
func (m *Manager) SubscribeWithCode(caller, referralAddr [20]byte, tierIndex uint8, nonce uint64, sig []byte) error {
	return m.Update("subscribe_with_code", func(c Components) error {
		return c.Referral.SubscribeWithCode(caller, referralAddr, tierIndex, nonce, sig)
	})
}

// Buy purchases tokens for caller with totalBase of the base asset.
func (m *Manager) Buy(caller [20]byte, totalBase *big.Int) error {
	err := m.Update("buy", func(c Components) error {
		return c.Trading.Buy(caller, totalBase)
	})
	if err == nil {
		m.metrics.AddVolume("buy", totalBase)
	}
	return err
}

// Sell realizes tokenAmount of caller's position.
func (m *Manager) Sell(caller [20]byte, tokenAmount *big.Int) error {
	return m.Update("sell", func(c Components) error {
		return c.Trading.Sell(caller, tokenAmount)
	})
}

// AutoWithdraw closes acct's matured position and reinvests the payout.
func (m *Manager) AutoWithdraw(caller, acct [20]byte) error {
	return m.Update("auto_withdraw", func(c Components) error {
		return c.Trading.AutoWithdraw(caller, acct)
	})
}

// Package corecontext holds the single piece of shared mutable state every
// long-lived task is constructed with — a runtime config snapshot, the
// pause flag, the at-most-once dedup table, and per-(market,token) locks.
// It is explicitly not a process-wide singleton: main constructs exactly
// one instance and passes it to every task constructor, so tests can build
// their own isolated instance.
package corecontext

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polybot/internal/domain"
	"github.com/alejandrodnm/polybot/internal/ports"
)

// Core is the shared state handed to every application task.
type Core struct {
	store ports.RuntimeConfigStorage

	cfg    atomic.Value // domain.RuntimeConfig
	paused atomic.Bool

	bankroll atomic.Value // decimal.Decimal

	realizedLossMu    sync.Mutex
	realizedLossToday decimal.Decimal
	lossResetDay      time.Time

	dedupMu sync.Mutex
	dedup   map[string]time.Time // key -> first-seen time, for at-most-once submission

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex // "marketID|tokenID" -> lock

	versionBroadcast chan struct{}
}

// New constructs a Core from a durable snapshot and starts it observing
// config_version bumps. The caller is responsible for calling Refresh after
// any SaveRuntimeConfig so other tasks pick up the change promptly.
func New(store ports.RuntimeConfigStorage, initial domain.RuntimeConfig) *Core {
	c := &Core{
		store:            store,
		dedup:            make(map[string]time.Time),
		locks:            make(map[string]*sync.Mutex),
		versionBroadcast: make(chan struct{}),
	}
	c.cfg.Store(initial)
	c.paused.Store(initial.Paused)
	c.bankroll.Store(initial.Bankroll)
	return c
}

// Config returns the current snapshot. Safe for concurrent use; callers
// should re-read it at the top of every task iteration rather than cache it
// across iterations.
func (c *Core) Config() domain.RuntimeConfig {
	return c.cfg.Load().(domain.RuntimeConfig)
}

// Refresh reloads the runtime config from storage and, if the version
// changed, swaps the in-memory snapshot and closes the broadcast channel so
// every task blocked on VersionChanged() wakes up. Safe to call from
// multiple goroutines; only the first caller to observe a version bump
// performs the broadcast.
func (c *Core) Refresh(ctx context.Context) error {
	latest, err := c.store.LoadRuntimeConfig(ctx)
	if err != nil {
		return err
	}
	current := c.Config()
	if latest.Version == current.Version {
		return nil
	}
	c.cfg.Store(latest)
	c.paused.Store(latest.Paused)

	c.locksMu.Lock()
	old := c.versionBroadcast
	c.versionBroadcast = make(chan struct{})
	c.locksMu.Unlock()
	close(old)
	return nil
}

// VersionChanged returns a channel that closes the next time Refresh
// observes a version bump — tasks can select on it alongside their ticker
// to refresh their local snapshot eagerly instead of waiting for the next
// poll interval.
func (c *Core) VersionChanged() <-chan struct{} {
	c.locksMu.Lock()
	defer c.locksMu.Unlock()
	return c.versionBroadcast
}

// IsPaused reports the current pause flag without going through Config(),
// since pause/resume is checked far more often than the rest of the config.
func (c *Core) IsPaused() bool {
	return c.paused.Load()
}

// SetPaused updates only the in-memory pause flag — callers that change
// durable state should go through SaveRuntimeConfig + Refresh instead.
func (c *Core) SetPaused(p bool) {
	c.paused.Store(p)
}

// Bankroll returns the last-observed operator wallet balance snapshot.
func (c *Core) Bankroll() decimal.Decimal {
	return c.bankroll.Load().(decimal.Decimal)
}

// SetBankroll updates the bankroll snapshot, called by main's bankroll poll
// loop after each GetBalance call.
func (c *Core) SetBankroll(b decimal.Decimal) {
	c.bankroll.Store(b)
}

// RecordRealizedLoss accumulates a realized-loss amount (positive USDC lost)
// toward the daily circuit breaker, resetting the running total the first
// time it observes a new UTC calendar day.
func (c *Core) RecordRealizedLoss(amount decimal.Decimal, at time.Time) {
	day := at.UTC().Truncate(24 * time.Hour)
	c.realizedLossMu.Lock()
	defer c.realizedLossMu.Unlock()
	if !day.Equal(c.lossResetDay) {
		c.lossResetDay = day
		c.realizedLossToday = decimal.Zero
	}
	if amount.IsPositive() {
		c.realizedLossToday = c.realizedLossToday.Add(amount)
	}
}

// DailyLossExceeded reports whether today's accumulated realized loss has
// crossed limit, tripping the risk gate's circuit breaker for new signals.
func (c *Core) DailyLossExceeded(limit decimal.Decimal) bool {
	c.realizedLossMu.Lock()
	defer c.realizedLossMu.Unlock()
	return c.realizedLossToday.GreaterThanOrEqual(limit)
}

// MarkSubmitted records signalID as submitted at now, for at-most-once
// enforcement, and evicts entries older than window on every call so the
// table doesn't grow unbounded.
func (c *Core) MarkSubmitted(signalID string, now time.Time, window time.Duration) {
	c.dedupMu.Lock()
	defer c.dedupMu.Unlock()
	c.dedup[signalID] = now
	for k, t := range c.dedup {
		if now.Sub(t) > window {
			delete(c.dedup, k)
		}
	}
}

// WasSubmittedRecently reports whether signalID was marked submitted within
// window of now.
func (c *Core) WasSubmittedRecently(signalID string, now time.Time, window time.Duration) bool {
	c.dedupMu.Lock()
	defer c.dedupMu.Unlock()
	t, ok := c.dedup[signalID]
	if !ok {
		return false
	}
	return now.Sub(t) <= window
}

// LockFor returns a mutex scoped to one (marketID, tokenID) pair, creating
// it on first use. Order Executor and Position Manager both take this lock
// before touching the same market/token so a fill-poll and a new-signal
// submission can never race on the same position.
func (c *Core) LockFor(marketID, tokenID string) *sync.Mutex {
	key := marketID + "|" + tokenID
	c.locksMu.Lock()
	defer c.locksMu.Unlock()
	l, ok := c.locks[key]
	if !ok {
		l = &sync.Mutex{}
		c.locks[key] = l
	}
	return l
}

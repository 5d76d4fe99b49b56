// Package registry implements the Whale Registry: an in-memory read-mostly
// cache of tracked wallets backed by durable storage and warm-loaded from
// it on open.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alejandrodnm/polybot/internal/domain"
	"github.com/alejandrodnm/polybot/internal/domain/corerr"
	"github.com/alejandrodnm/polybot/internal/ports"
)

// Registry is the Whale Registry component.
type Registry struct {
	store ports.WhaleStorage

	mu     sync.RWMutex
	whales map[string]domain.Whale
}

// New constructs a Registry and warm-loads every known whale from storage.
func New(ctx context.Context, store ports.WhaleStorage) (*Registry, error) {
	r := &Registry{store: store, whales: make(map[string]domain.Whale)}
	existing, err := store.ListWhales(ctx, false)
	if err != nil {
		return nil, &corerr.DatabaseError{Op: "registry.New: warm load", Err: err}
	}
	for _, w := range existing {
		r.whales[w.Address] = w
	}
	return r, nil
}

// Lookup returns the cached whale for address, expected O(1).
func (r *Registry) Lookup(address string) (domain.Whale, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.whales[address]
	return w, ok
}

// Upsert inserts a new whale or updates an existing one, writing through to
// durable storage before updating the in-memory cache so a crash between
// the two never leaves storage behind the cache.
func (r *Registry) Upsert(ctx context.Context, w domain.Whale) error {
	if err := r.store.UpsertWhale(ctx, w); err != nil {
		return &corerr.DatabaseError{Op: "registry.Upsert", Err: err}
	}
	r.mu.Lock()
	r.whales[w.Address] = w
	r.mu.Unlock()
	return nil
}

// MarkLastTrade bumps a whale's LastTradeAt and trade counters without a
// full Upsert round-trip through the caller.
func (r *Registry) MarkLastTrade(ctx context.Context, address string, at time.Time, isTracked bool) error {
	r.mu.Lock()
	w, ok := r.whales[address]
	if !ok {
		w = domain.Whale{
			Address:        address,
			Classification: domain.ClassificationUnknown,
			FirstSeenAt:    at,
			IsActive:       true,
		}
	}
	w.LastTradeAt = at
	w.TotalTrades++
	r.whales[address] = w
	r.mu.Unlock()

	return r.Upsert(ctx, w)
}

// Deactivate marks a whale inactive with a reason, write-through to storage.
func (r *Registry) Deactivate(ctx context.Context, address, reason string) error {
	at := time.Now().UTC()
	if err := r.store.DeactivateWhale(ctx, address, reason, at); err != nil {
		return &corerr.DatabaseError{Op: "registry.Deactivate", Err: err}
	}
	r.mu.Lock()
	if w, ok := r.whales[address]; ok {
		w.IsActive = false
		w.DeactivatedAt = &at
		w.DeactivationReason = reason
		r.whales[address] = w
	}
	r.mu.Unlock()
	return nil
}

// ListActive returns a snapshot of every currently-active whale.
func (r *Registry) ListActive() []domain.Whale {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Whale, 0, len(r.whales))
	for _, w := range r.whales {
		if w.IsActive {
			out = append(out, w)
		}
	}
	return out
}

// ListInformed returns only whales currently classified as informed and
// eligible for basket membership.
func (r *Registry) ListInformed() []domain.Whale {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Whale, 0)
	for _, w := range r.whales {
		if w.IsEligibleForBaskets() {
			out = append(out, w)
		}
	}
	return out
}

// RecordTrade persists an observed trade and bumps the whale's counters in
// one step — the main ingestion write path.
func (r *Registry) RecordTrade(ctx context.Context, t domain.WhaleTrade) error {
	if err := r.store.SaveWhaleTrade(ctx, t); err != nil {
		return &corerr.DatabaseError{Op: "registry.RecordTrade", Err: err}
	}
	if err := r.MarkLastTrade(ctx, t.Wallet, t.Timestamp, t.IsTracked); err != nil {
		return fmt.Errorf("registry.RecordTrade: mark last trade: %w", err)
	}
	return nil
}

// Package basket implements the Basket Engine: pooling trades from a
// configured group of informed whales into a sliding consensus window per
// (basket, market, direction), arming a ConsensusSignal once enough members
// agree within the configured time window.
package basket

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polybot/internal/application/corecontext"
	"github.com/alejandrodnm/polybot/internal/application/marketcache"
	"github.com/alejandrodnm/polybot/internal/application/registry"
	"github.com/alejandrodnm/polybot/internal/domain"
	"github.com/alejandrodnm/polybot/internal/domain/corerr"
	"github.com/alejandrodnm/polybot/internal/ports"
)

// Engine evaluates every configured basket against incoming whale trades,
// and also emits a solo-whale signal for an individually informed whale's
// tracked trade when that wallet belongs to no evaluated basket (every
// wallet, while basket consensus is disabled).
type Engine struct {
	store    ports.BasketStorage
	reg      *registry.Registry
	markets  *marketcache.Cache // optional: nil means timing-gate fields default to zero
	core     *corecontext.Core
	notifier ports.Notifier // optional
	log      *slog.Logger

	mu      sync.Mutex
	baskets []domain.WhaleBasket
	windows map[string]*domain.BasketWindow // key: basketID|marketID|assetID|direction

	out chan domain.ConsensusSignal
}

// New constructs a basket Engine and loads every configured basket from
// storage. markets may be nil if market-resolution timing data isn't
// available yet; signals then carry a zero timing-gate snapshot, which the
// Copy Engine's PassesTimingGate will reject until it is wired up.
func New(ctx context.Context, store ports.BasketStorage, reg *registry.Registry, markets *marketcache.Cache, core *corecontext.Core, notifier ports.Notifier, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}
	baskets, err := store.ListBaskets(ctx)
	if err != nil {
		return nil, &corerr.DatabaseError{Op: "basket.New: load baskets", Err: err}
	}
	return &Engine{
		store:    store,
		reg:      reg,
		markets:  markets,
		core:     core,
		notifier: notifier,
		log:      log,
		baskets:  baskets,
		windows:  make(map[string]*domain.BasketWindow),
		out:      make(chan domain.ConsensusSignal, 64),
	}, nil
}

// Signals returns the channel the Copy Engine consumes armed signals from.
func (e *Engine) Signals() <-chan domain.ConsensusSignal {
	return e.out
}

// Run consumes whale trades from events until it closes or ctx is
// cancelled, feeding each into every basket the trading wallet belongs to.
func (e *Engine) Run(ctx context.Context, events <-chan domain.WhaleTrade) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-events:
			if !ok {
				return nil
			}
			e.handle(ctx, t)
		}
	}
}

func (e *Engine) handle(ctx context.Context, t domain.WhaleTrade) {
	if !t.IsTracked {
		return
	}
	cfg := e.core.Config()

	e.mu.Lock()
	baskets := e.baskets
	e.mu.Unlock()
	if !cfg.BasketEnabled {
		// Basket consensus is switched off: only the solo-whale path runs.
		baskets = nil
	}

	inBasket := false
	for _, b := range baskets {
		if !b.HasWallet(t.Wallet) {
			continue
		}
		inBasket = true
		if !basketIsValid(b, cfg) {
			continue
		}
		if sig, ok := e.applyToBasket(b, t, cfg); ok {
			if err := e.emit(ctx, sig); err != nil {
				e.log.Error("failed to emit consensus signal", "basket", b.ID, "error", err)
			}
		}
	}

	// A basket member's trade already drove the pooled-consensus path above;
	// only emit the solo-whale trigger for wallets that aren't in any basket,
	// to avoid double-signaling the same trade through both paths.
	if !inBasket {
		if sig, ok := e.soloSignal(t); ok {
			if err := e.emit(ctx, sig); err != nil {
				e.log.Error("failed to emit solo-whale signal", "wallet", t.Wallet, "error", err)
			}
		}
	}
}

// soloSignal builds a ConsensusSignal directly from a single informed
// whale's trade, the other trigger class spec.md names alongside basket
// consensus: an individually tracked whale whose classification already
// earned it basket eligibility needs no corroborating members to copy.
func (e *Engine) soloSignal(t domain.WhaleTrade) (domain.ConsensusSignal, bool) {
	if e.reg == nil {
		return domain.ConsensusSignal{}, false
	}
	w, ok := e.reg.Lookup(t.Wallet)
	if !ok || !w.IsEligibleForBaskets() {
		return domain.ConsensusSignal{}, false
	}

	now := t.Timestamp
	minutesToRes, room := e.timingGateFields(t.MarketID, t.Price, now)
	return domain.ConsensusSignal{
		ID:                  uuid.NewString(),
		Source:              t.Wallet,
		IsBasket:            false,
		MarketID:            t.MarketID,
		AssetID:             t.AssetID,
		Direction:           t.Side,
		ReferencePrice:      t.Price,
		TotalNotional:       t.Notional,
		ContributorCount:    1,
		GeneratedAt:         now,
		MinutesToResolution: minutesToRes,
		PriceRoomToMove:     room,
	}, true
}

// timingGateFields resolves the two gating values from the market cache,
// defaulting to zero (which fails the timing gate closed) when the market
// isn't known yet rather than guessing.
func (e *Engine) timingGateFields(marketID string, price decimal.Decimal, now time.Time) (decimal.Decimal, decimal.Decimal) {
	room := domain.PriceRoomToMove(price)
	if e.markets == nil {
		return decimal.Zero, room
	}
	market, ok := e.markets.Get(marketID)
	if !ok {
		return decimal.Zero, room
	}
	return market.MinutesToResolution(now), room
}

func windowKey(basketID, marketID, assetID, direction string) string {
	return basketID + "|" + marketID + "|" + assetID + "|" + direction
}

// basketIsValid reports whether the basket's membership size falls inside
// the configured range. An invalid basket produces no signals, but its
// windows are still built so a later membership edit doesn't need a replay.
func basketIsValid(b domain.WhaleBasket, cfg domain.RuntimeConfig) bool {
	n := len(b.Wallets)
	return n >= cfg.BasketMinWallets && n <= cfg.BasketMaxWallets
}

// oppositeSide flips BUY/SELL for the cross-direction eviction rule: a
// whale that reverses position in a market should stop counting toward its
// old direction's consensus.
func oppositeSide(side string) string {
	if side == "BUY" {
		return "SELL"
	}
	return "BUY"
}

// applyToBasket updates the window for (basket, trade.market, trade.asset,
// trade direction), evicts stale entries, and returns a newly-armed signal
// if the window just crossed the consensus threshold. Only a disarmed ->
// armed transition produces a signal; an already-armed window re-confirming
// membership doesn't need to re-fire.
func (e *Engine) applyToBasket(b domain.WhaleBasket, t domain.WhaleTrade, cfg domain.RuntimeConfig) (domain.ConsensusSignal, bool) {
	key := windowKey(b.ID, t.MarketID, t.AssetID, t.Side)

	e.mu.Lock()
	defer e.mu.Unlock()

	// A trade on one side evicts the same wallet from the opposite side's
	// window in the same market, rather than letting it count toward both
	// directions at once.
	oppKey := windowKey(b.ID, t.MarketID, t.AssetID, oppositeSide(t.Side))
	if opp, ok := e.windows[oppKey]; ok {
		kept := opp.Entries[:0]
		for _, entry := range opp.Entries {
			if entry.Wallet != t.Wallet {
				kept = append(kept, entry)
			}
		}
		opp.Entries = kept
	}

	w, ok := e.windows[key]
	if !ok {
		w = &domain.BasketWindow{BasketID: b.ID, MarketID: t.MarketID, AssetID: t.AssetID, Direction: t.Side}
		e.windows[key] = w
	}

	now := t.Timestamp
	w.EvictExpired(now, cfg.BasketTimeWindow)

	// A whale contributes once per window: a newer same-side trade refreshes
	// its existing entry in place instead of counting twice.
	refreshed := false
	for i := range w.Entries {
		if w.Entries[i].Wallet == t.Wallet {
			w.Entries[i] = domain.BasketWindowEntry{Wallet: t.Wallet, TradeID: t.ID, Notional: t.Notional, Timestamp: t.Timestamp}
			refreshed = true
			break
		}
	}
	if !refreshed {
		w.Entries = append(w.Entries, domain.BasketWindowEntry{
			Wallet:    t.Wallet,
			TradeID:   t.ID,
			Notional:  t.Notional,
			Timestamp: t.Timestamp,
		})
	}
	w.LastUpdated = now

	wasArmed := w.Armed
	w.Armed = w.ShouldArm(len(b.Wallets), cfg.BasketConsensusThreshold, cfg.BasketHysteresisMargin)
	if w.Armed && !wasArmed {
		w.ArmedAt = now
	}

	if !w.Armed || wasArmed {
		return domain.ConsensusSignal{}, false
	}
	return e.buildSignal(b, w, t.Price), true
}

// buildSignal computes a notional-weighted reference price across the
// window's live entries. lastPrice seeds the weight for the entry that just
// armed the window, since BasketWindowEntry doesn't carry price directly.
func (e *Engine) buildSignal(b domain.WhaleBasket, w *domain.BasketWindow, lastPrice decimal.Decimal) domain.ConsensusSignal {
	totalNotional := decimal.Zero
	for _, entry := range w.Entries {
		totalNotional = totalNotional.Add(entry.Notional)
	}

	minutesToRes, room := e.timingGateFields(w.MarketID, lastPrice, w.LastUpdated)
	return domain.ConsensusSignal{
		ID:                  uuid.NewString(),
		Source:              b.ID,
		IsBasket:            true,
		MarketID:            w.MarketID,
		AssetID:             w.AssetID,
		Direction:           w.Direction,
		ReferencePrice:      lastPrice,
		TotalNotional:       totalNotional,
		ContributorCount:    w.DistinctWallets(),
		GeneratedAt:         w.LastUpdated,
		MinutesToResolution: minutesToRes,
		PriceRoomToMove:     room,
	}
}

func (e *Engine) emit(ctx context.Context, sig domain.ConsensusSignal) error {
	if err := e.store.SaveConsensusSignal(ctx, sig); err != nil {
		return fmt.Errorf("basket.emit: %w", &corerr.DatabaseError{Op: "SaveConsensusSignal", Err: err})
	}
	e.notify(ctx, domain.Event{Kind: domain.EventSignalGenerated, MarketID: sig.MarketID, AssetID: sig.AssetID, Wallet: sig.Source, Message: fmt.Sprintf("%s notional=%s contributors=%d", sig.Direction, sig.TotalNotional.String(), sig.ContributorCount)})
	select {
	case e.out <- sig:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// notify best-effort emits a single event; failures only get logged.
func (e *Engine) notify(ctx context.Context, ev domain.Event) {
	if e.notifier == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if err := e.notifier.Notify(ctx, []domain.Event{ev}); err != nil {
		e.log.Warn("basket engine: notify failed", "kind", ev.Kind, "error", err)
	}
}

// Reload replaces the in-memory basket list — called after an operator adds
// or edits a basket definition via the control surface.
func (e *Engine) Reload(ctx context.Context) error {
	baskets, err := e.store.ListBaskets(ctx)
	if err != nil {
		return &corerr.DatabaseError{Op: "basket.Reload", Err: err}
	}
	e.mu.Lock()
	e.baskets = baskets
	e.mu.Unlock()
	return nil
}

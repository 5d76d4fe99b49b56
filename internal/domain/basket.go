package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// WhaleBasket is a named group of informed whales whose trades are pooled
// for consensus detection rather than copied individually.
type WhaleBasket struct {
	ID        string
	Name      string
	Wallets   []string // bounded by RuntimeConfig basket_min_wallets/basket_max_wallets
	CreatedAt time.Time
}

// HasWallet reports whether addr is a current member of the basket.
func (b WhaleBasket) HasWallet(addr string) bool {
	for _, w := range b.Wallets {
		if w == addr {
			return true
		}
	}
	return false
}

// BasketWindow is the sliding-time-window state for one
// (basket, market, direction) triple, tracking which member wallets have
// traded the same side within the consensus time window.
type BasketWindow struct {
	BasketID    string
	MarketID    string
	AssetID     string
	Direction   string // "BUY" or "SELL"
	Entries     []BasketWindowEntry
	Armed       bool // hysteresis: true once consensus fraction crossed the threshold
	ArmedAt     time.Time
	LastUpdated time.Time
}

// BasketWindowEntry records one wallet's contribution to a window.
type BasketWindowEntry struct {
	Wallet    string
	TradeID   string
	Notional  decimal.Decimal
	Timestamp time.Time
}

// EvictExpired removes entries older than windowDur relative to now, and
// returns the number of entries evicted. Callers should re-check
// ConsensusFraction after eviction since it may drop the window below
// disarm threshold.
func (w *BasketWindow) EvictExpired(now time.Time, windowDur time.Duration) int {
	cutoff := now.Add(-windowDur)
	kept := w.Entries[:0]
	evicted := 0
	for _, e := range w.Entries {
		if e.Timestamp.Before(cutoff) {
			evicted++
			continue
		}
		kept = append(kept, e)
	}
	w.Entries = kept
	return evicted
}

// DistinctWallets returns the count of distinct wallets with a live entry
// in the window.
func (w BasketWindow) DistinctWallets() int {
	seen := make(map[string]struct{}, len(w.Entries))
	for _, e := range w.Entries {
		seen[e.Wallet] = struct{}{}
	}
	return len(seen)
}

// ConsensusFraction returns DistinctWallets() / basketSize, or zero if
// basketSize is zero.
func (w BasketWindow) ConsensusFraction(basketSize int) decimal.Decimal {
	if basketSize <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(w.DistinctWallets())).
		Div(decimal.NewFromInt(int64(basketSize))).Round(MoneyScale)
}

// ShouldArm applies hysteresis: a disarmed window arms once the consensus
// fraction reaches threshold; an armed window only disarms once it drops
// below threshold minus hysteresisMargin (e.g. 80% arm / 70% disarm),
// preventing a signal from flickering as a single wallet's entry expires and
// re-enters near the boundary.
func (w BasketWindow) ShouldArm(basketSize int, threshold, hysteresisMargin decimal.Decimal) bool {
	frac := w.ConsensusFraction(basketSize)
	if w.Armed {
		return frac.GreaterThanOrEqual(threshold.Sub(hysteresisMargin))
	}
	return frac.GreaterThanOrEqual(threshold)
}

// ConsensusSignal is the output of the Basket Engine (or a single informed
// whale) that the Copy Engine consumes to size and place a copy order.
type ConsensusSignal struct {
	ID               string
	Source           string // basket ID, or a single wallet address for solo copy
	IsBasket         bool
	MarketID         string
	AssetID          string
	Direction        string          // "BUY" or "SELL"
	ReferencePrice   decimal.Decimal // volume-weighted price across contributing trades
	TotalNotional    decimal.Decimal // sum of contributing whale notional
	ContributorCount int
	GeneratedAt      time.Time
	// gating snapshot, persisted for audit even on rejection
	MinutesToResolution decimal.Decimal
	PriceRoomToMove     decimal.Decimal // distance from ReferencePrice to the 0/1 boundary
}

// PassesTimingGate applies the two basket-engine gates spec.md names: a
// signal must be at least minMinutesToResolution away from market close,
// and must have at least minPriceRoom of room left to move in the
// signal's direction (price not already pinned near 0 or 1).
func (s ConsensusSignal) PassesTimingGate(minMinutesToResolution, minPriceRoom decimal.Decimal) bool {
	if s.MinutesToResolution.LessThan(minMinutesToResolution) {
		return false
	}
	return s.PriceRoomToMove.GreaterThanOrEqual(minPriceRoom)
}

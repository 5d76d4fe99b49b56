package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/alejandrodnm/polybot/internal/application/corecontext"
	"github.com/alejandrodnm/polybot/internal/domain"
	"github.com/alejandrodnm/polybot/internal/domain/corerr"
	"github.com/alejandrodnm/polybot/internal/ports"
	"github.com/shopspring/decimal"
)

// Scorer periodically recomputes each whale's performance metrics from its
// resolved trade history and reclassifies it as informed, market-making,
// bot-like, or unknown. It runs as its own long-lived task, sharing the
// Registry and the Core with the rest of the application.
type Scorer struct {
	registry *Registry
	store    ports.WhaleStorage
	core     *corecontext.Core
	notifier ports.Notifier // optional
}

// NewScorer constructs a Scorer over an existing Registry. notifier may be
// nil.
func NewScorer(registry *Registry, store ports.WhaleStorage, core *corecontext.Core, notifier ports.Notifier) *Scorer {
	return &Scorer{registry: registry, store: store, core: core, notifier: notifier}
}

func (s *Scorer) notify(ctx context.Context, ev domain.Event) {
	if s.notifier == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	_ = s.notifier.Notify(ctx, []domain.Event{ev})
}

// Run evaluates every active whale once. Callers drive the cadence (e.g. a
// ticker in main) — Run itself does one pass and returns.
func (s *Scorer) Run(ctx context.Context) error {
	cfg := s.core.Config()
	for _, w := range s.registry.ListActive() {
		if err := s.scoreOne(ctx, w, cfg); err != nil {
			return fmt.Errorf("scorer.Run: %s: %w", w.Address, err)
		}
	}
	return nil
}

func (s *Scorer) scoreOne(ctx context.Context, w domain.Whale, cfg domain.RuntimeConfig) error {
	trades, err := s.windowedTrades(ctx, w.Address, cfg)
	if err != nil {
		return &corerr.DatabaseError{Op: "scorer.windowedTrades", Err: err}
	}

	resolved := make([]domain.ResolvedTrade, 0, len(trades))
	wins := 0
	for _, t := range trades {
		if !t.Resolved {
			continue
		}
		pct := decimal.Zero
		if !t.Notional.IsZero() {
			pct = t.PnLUSDC.Div(t.Notional)
		}
		resolved = append(resolved, domain.ResolvedTrade{PnLUSDC: t.PnLUSDC, PnLPct: pct, Notional: t.Notional})
		if t.PnLUSDC.IsPositive() {
			wins++
		}
	}

	score := domain.ScoreWallet(resolved, cfg.MaxKellyFraction, cfg.AssumedSlippagePct)

	w.ResolvedTrades = len(resolved)
	w.Wins = wins
	w.WinRate = score.WinRate
	w.SharpeLike = score.SharpeLike
	w.KellyFraction = score.KellyFraction
	w.ExpectedValue = score.ExpectedValue

	prevClass := w.Classification
	wasInformed := prevClass == domain.ClassificationInformed

	allTrades, err := s.store.ListTradesSince(ctx, w.Address, time.Time{})
	if err != nil {
		return &corerr.DatabaseError{Op: "scorer.allTimeTrades", Err: err}
	}

	now := time.Now().UTC()
	w.Classification = domain.ClassifyWallet(allTrades, w.TotalTrades, w.FirstSeenAt, now)

	// Decay check: a whale that was informed and still active but whose
	// rolling win rate has slipped below the absolute floor, or below 80% of
	// its own all-time win rate, is losing its edge and is deactivated
	// regardless of what the lifetime classification heuristic still says
	// about it. Gated on a minimum rolling sample so a thin recent window
	// can't trigger a false decay.
	if wasInformed && w.IsActive && len(resolved) >= cfg.MinResolvedForSignal {
		allTimeWR := allTimeWinRate(allTrades)
		rollingWR := score.WinRate
		decayed := rollingWR.LessThan(decimal.NewFromInt(55)) ||
			rollingWR.LessThan(allTimeWR.Mul(mustPct("0.80")))
		if decayed {
			w.IsActive = false
			w.DeactivatedAt = &now
			w.DeactivationReason = "edge decayed below signal quality gate on rescoring"
			w.Classification = domain.ClassificationUnknown
		}
	}

	if w.Classification != prevClass {
		s.notify(ctx, domain.Event{Kind: domain.EventWhaleReclassified, Wallet: w.Address, Message: fmt.Sprintf("%s -> %s", prevClass, w.Classification)})
	}

	return s.registry.Upsert(ctx, w)
}

// allTimeWinRate returns the resolved-trade win rate over a wallet's full
// trade history, on the same 0..100 scale as domain.WinRate. Zero if there
// are no resolved trades yet.
func allTimeWinRate(trades []domain.WhaleTrade) decimal.Decimal {
	var resolved, wins int
	for _, t := range trades {
		if !t.Resolved {
			continue
		}
		resolved++
		if t.PnLUSDC.IsPositive() {
			wins++
		}
	}
	if resolved == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(resolved))).Mul(decimal.NewFromInt(100))
}

func mustPct(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// windowedTrades fetches the trade sample the decay-check mode calls for:
// either the last N trades or everything within a rolling time window.
func (s *Scorer) windowedTrades(ctx context.Context, wallet string, cfg domain.RuntimeConfig) ([]domain.WhaleTrade, error) {
	switch cfg.DecayCheckMode {
	case domain.DecayByTimeWindow:
		since := time.Now().UTC().Add(-cfg.DecayTimeWindow)
		return s.store.ListTradesSince(ctx, wallet, since)
	default: // domain.DecayByTradeCount
		return s.store.ListRecentTrades(ctx, wallet, cfg.DecayTradeCount)
	}
}

// Package resolution implements a poll-driven market settlement listener:
// for every open position, ask the exchange whether its market has closed
// and, once it has, fold the payout into the Position Manager's book. It
// exists as an alternative to subscribing an on-chain event feed directly —
// the exchange's own resolved-market metadata is sufficient and avoids a
// second RPC dependency for a process that already polls on other cadences.
package resolution

import (
	"context"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polybot/internal/application/position"
	"github.com/alejandrodnm/polybot/internal/domain/corerr"
	"github.com/alejandrodnm/polybot/internal/ports"
)

// Listener polls every open position's market for settlement.
type Listener struct {
	store     ports.CopyStorage
	resolver  ports.MarketResolver
	positions *position.Manager
	log       *slog.Logger
}

// New constructs a Listener. Callers drive the cadence (e.g. a ticker in
// main, gated on domain.RuntimeConfig.ChainListenerEnabled) — RunOnce does
// one pass over every open position and returns.
func New(store ports.CopyStorage, resolver ports.MarketResolver, positions *position.Manager, log *slog.Logger) *Listener {
	if log == nil {
		log = slog.Default()
	}
	return &Listener{store: store, resolver: resolver, positions: positions, log: log}
}

// RunOnce checks every open position's market and resolves the ones that
// have settled, returning the count it resolved.
func (l *Listener) RunOnce(ctx context.Context) (int, error) {
	open, err := l.store.GetOpenPositions(ctx)
	if err != nil {
		return 0, &corerr.DatabaseError{Op: "resolution.GetOpenPositions", Err: err}
	}

	// Two positions on opposite sides of the same market share one lookup,
	// since a market only settles once.
	seen := make(map[string]struct{}, len(open))
	resolvedCount := 0
	now := time.Now().UTC()

	for _, p := range open {
		if _, ok := seen[p.MarketID]; ok {
			continue
		}
		seen[p.MarketID] = struct{}{}

		yes, no, resolved, err := l.resolver.FetchMarketOutcome(ctx, p.MarketID)
		if err != nil {
			l.log.Warn("resolution: market outcome lookup failed", "market", p.MarketID, "error", err)
			continue
		}
		if !resolved {
			continue
		}

		for _, side := range open {
			if side.MarketID != p.MarketID {
				continue
			}
			payout := no
			if side.Side == "YES" {
				payout = yes
			}
			if err := l.positions.Resolve(ctx, side.MarketID, side.AssetID, payout, now); err != nil {
				l.log.Error("resolution: resolve failed", "market", side.MarketID, "asset", side.AssetID, "error", err)
				continue
			}
			resolvedCount++
		}
	}

	return resolvedCount, nil
}

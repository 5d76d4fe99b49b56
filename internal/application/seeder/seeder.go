// Package seeder implements the Whale Seeder: a one-shot (or periodic)
// bootstrap pass that pulls the exchange's own leaderboard and registers
// candidate wallets as unknown, leaving the Scorer to earn them a real
// classification from their own trade history rather than trusting the
// leaderboard's ranking directly.
package seeder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polybot/internal/application/corecontext"
	"github.com/alejandrodnm/polybot/internal/application/registry"
	"github.com/alejandrodnm/polybot/internal/domain"
	"github.com/alejandrodnm/polybot/internal/domain/corerr"
	"github.com/alejandrodnm/polybot/internal/ports"
)

// Seeder bootstraps the Whale Registry from the exchange leaderboard.
type Seeder struct {
	leaderboard ports.Leaderboard
	history     ports.WhaleTradeHistory
	reg         *registry.Registry
	core        *corecontext.Core
	log         *slog.Logger
}

// New constructs a Seeder.
func New(leaderboard ports.Leaderboard, history ports.WhaleTradeHistory, reg *registry.Registry, core *corecontext.Core, log *slog.Logger) *Seeder {
	if log == nil {
		log = slog.Default()
	}
	return &Seeder{leaderboard: leaderboard, history: history, reg: reg, core: core, log: log}
}

// RunOnce pulls the leaderboard, skips the configured top-N (the exchange's
// own "most obvious" traders, usually market makers rather than informed
// directional whales), and registers every remaining wallet that clears the
// minimum trade-count floor, provided it isn't already tracked.
func (s *Seeder) RunOnce(ctx context.Context) (int, error) {
	cfg := s.core.Config()
	if !cfg.WhaleSeederEnabled {
		return 0, nil
	}

	candidates, err := s.leaderboard.TopTraders(ctx, cfg.WhaleSeederSkipTopN+200)
	if err != nil {
		return 0, fmt.Errorf("seeder.RunOnce: %w", &corerr.TransientNetworkError{Op: "TopTraders", Err: err})
	}
	if len(candidates) <= cfg.WhaleSeederSkipTopN {
		return 0, nil
	}
	candidates = candidates[cfg.WhaleSeederSkipTopN:]

	added := 0
	for _, wallet := range candidates {
		if _, ok := s.reg.Lookup(wallet); ok {
			continue
		}
		trades, err := s.history.FetchWalletTrades(ctx, wallet, domain.WhaleTrade{})
		if err != nil {
			s.log.Warn("seeder: failed to fetch wallet history, skipping", "wallet", wallet, "error", err)
			continue
		}
		if len(trades) < cfg.WhaleSeederMinTrades {
			continue
		}

		now := time.Now().UTC()
		w := domain.Whale{
			Address:        wallet,
			Classification: domain.ClassificationUnknown,
			TotalTrades:    len(trades),
			FirstSeenAt:    now,
			LastTradeAt:    now,
			IsActive:       true,
		}
		if err := s.reg.Upsert(ctx, w); err != nil {
			s.log.Error("seeder: failed to register wallet", "wallet", wallet, "error", err)
			continue
		}
		added++
	}
	return added, nil
}

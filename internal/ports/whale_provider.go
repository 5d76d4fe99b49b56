package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polybot/internal/domain"
)

// WhaleTradeStream delivers normalized whale trades from the exchange's
// live feed. Implementations own their own reconnect/backoff loop and never
// return from Subscribe until ctx is cancelled or the stream is permanently
// unusable.
type WhaleTradeStream interface {
	// Subscribe pushes trades onto out as they arrive, never blocking the
	// caller longer than necessary — a full channel should drop the oldest
	// buffered trade rather than stall the producer.
	Subscribe(ctx context.Context, out chan<- domain.WhaleTrade) error
}

// WhaleTradeHistory polls a wallet's past trades for cold-start scoring and
// periodic reconciliation against the live stream.
type WhaleTradeHistory interface {
	// FetchWalletTrades returns trades for wallet newer than since.
	FetchWalletTrades(ctx context.Context, wallet string, since domain.WhaleTrade) ([]domain.WhaleTrade, error)
}

// Leaderboard is queried once by the whale seeder to bootstrap the registry
// from the exchange's own ranking of large/active traders.
type Leaderboard interface {
	// TopTraders returns up to limit wallet addresses ordered by the
	// exchange's own ranking (most active/largest first).
	TopTraders(ctx context.Context, limit int) ([]string, error)
}

// MarketDiscovery surfaces markets that clear the configured volume/
// liquidity floor, candidates for signal generation.
type MarketDiscovery interface {
	FetchActiveMarkets(ctx context.Context) ([]domain.ActiveMarket, error)
}

// MarketResolver looks up a market's settlement outcome, so an open
// position can be marked resolved without waiting on an on-chain event feed.
type MarketResolver interface {
	// FetchMarketOutcome reports whether conditionID has settled and, if so,
	// the payout price (0 or 1, fractionally during a disputed resolution)
	// of the YES and NO outcome tokens.
	FetchMarketOutcome(ctx context.Context, conditionID string) (yesPrice, noPrice decimal.Decimal, resolved bool, err error)
}

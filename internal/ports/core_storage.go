package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polybot/internal/domain"
)

// WhaleStorage persists the whale registry and its trade history.
type WhaleStorage interface {
	ApplyCoreSchema(ctx context.Context) error

	UpsertWhale(ctx context.Context, w domain.Whale) error
	GetWhale(ctx context.Context, address string) (domain.Whale, bool, error)
	ListWhales(ctx context.Context, onlyActive bool) ([]domain.Whale, error)
	DeactivateWhale(ctx context.Context, address, reason string, at time.Time) error

	SaveWhaleTrade(ctx context.Context, t domain.WhaleTrade) error
	// ListRecentTrades returns up to limit of a wallet's most recent trades,
	// newest first — used by the Scorer's rolling window.
	ListRecentTrades(ctx context.Context, wallet string, limit int) ([]domain.WhaleTrade, error)
	ListTradesSince(ctx context.Context, wallet string, since time.Time) ([]domain.WhaleTrade, error)
	// MarkTradeResolved records the realized PnL for one whale trade once
	// its market resolves, so it becomes eligible for Scorer windows.
	MarkTradeResolved(ctx context.Context, tradeID string, pnlUSDC decimal.Decimal) error
}

// BasketStorage persists whale baskets and their window/signal state.
type BasketStorage interface {
	SaveBasket(ctx context.Context, b domain.WhaleBasket) error
	GetBasket(ctx context.Context, id string) (domain.WhaleBasket, bool, error)
	ListBaskets(ctx context.Context) ([]domain.WhaleBasket, error)

	SaveConsensusSignal(ctx context.Context, s domain.ConsensusSignal) error
	ListRecentSignals(ctx context.Context, limit int) ([]domain.ConsensusSignal, error)
}

// CopyStorage persists copy orders and positions.
type CopyStorage interface {
	SaveCopyOrder(ctx context.Context, o domain.CopyOrder) error
	UpdateCopyOrderStatus(ctx context.Context, id string, status domain.CopyOrderStatus, reason string) error
	UpdateCopyOrderFill(ctx context.Context, id string, filledSize, filledPrice decimal.Decimal, status domain.CopyOrderStatus, at time.Time) error
	GetOpenCopyOrders(ctx context.Context) ([]domain.CopyOrder, error)
	// WasSubmitted supports at-most-once submission: true if a CopyOrder
	// derived from signalID was already submitted within the dedup window.
	WasSubmitted(ctx context.Context, signalID string, within time.Duration) (bool, error)

	SavePosition(ctx context.Context, p domain.Position) error
	UpdatePosition(ctx context.Context, p domain.Position) error
	GetOpenPositions(ctx context.Context) ([]domain.Position, error)
	GetPositionByMarket(ctx context.Context, marketID, assetID string) (domain.Position, bool, error)
}

// RuntimeConfigStorage persists the operator-mutable runtime configuration.
type RuntimeConfigStorage interface {
	LoadRuntimeConfig(ctx context.Context) (domain.RuntimeConfig, error)
	SaveRuntimeConfig(ctx context.Context, cfg domain.RuntimeConfig) error
}

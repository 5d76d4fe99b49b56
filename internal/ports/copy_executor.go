package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polybot/internal/domain"
)

// CopyOrderExecutor places, cancels, and monitors real copy-trading orders
// on the CLOB, on both sides — closing a position requires selling the
// outcome token the account already holds, not just buying into one.
type CopyOrderExecutor interface {
	// PlaceLimitOrder signs and submits a GTC limit order for either side.
	PlaceLimitOrder(ctx context.Context, order domain.CopyOrder) (domain.PlacedOrder, error)

	// CancelOrder cancels a resting order by its CLOB order ID.
	CancelOrder(ctx context.Context, clobOrderID string) error

	// CancelAll cancels every open order for this wallet — used by the
	// monitor-only/cancel-all control surface.
	CancelAll(ctx context.Context) error

	// GetOpenOrders returns open/partial orders as tracked by the CLOB.
	GetOpenOrders(ctx context.Context) ([]domain.CopyOrder, error)

	// GetBalance returns the operator wallet's available USDC.e balance.
	GetBalance(ctx context.Context) (decimal.Decimal, error)

	// ShareBalance returns the operator wallet's on-chain ERC-1155 balance
	// for a conditional token, in shares. Used to reconcile the Position
	// Manager's own bookkeeping against what the chain actually holds.
	ShareBalance(ctx context.Context, tokenID string) (decimal.Decimal, error)

	// BestPrice returns the current best bid (for a SELL) or best ask (for
	// a BUY) for assetID — used by the risk gate's slippage check right
	// before submission.
	BestPrice(ctx context.Context, assetID string, side string) (decimal.Decimal, error)
}

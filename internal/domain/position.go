package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CopyOrderStatus is the lifecycle of a copy order from sizing to terminal state.
type CopyOrderStatus string

const (
	CopyOrderPending   CopyOrderStatus = "PENDING"
	CopyOrderSubmitted CopyOrderStatus = "SUBMITTED"
	CopyOrderPartial   CopyOrderStatus = "PARTIAL"
	CopyOrderFilled    CopyOrderStatus = "FILLED"
	CopyOrderCancelled CopyOrderStatus = "CANCELLED"
	CopyOrderRejected  CopyOrderStatus = "REJECTED"
	CopyOrderShadow    CopyOrderStatus = "SHADOW" // dry-run: evaluated, never submitted
)

// SizingStrategy selects how CopyOrder.Size is derived from the signal.
type SizingStrategy string

const (
	SizingFixed        SizingStrategy = "fixed"
	SizingProportional SizingStrategy = "proportional"
	SizingKelly        SizingStrategy = "kelly"
)

// CopyOrder is a sized, (possibly) submitted order generated from a
// ConsensusSignal.
type CopyOrder struct {
	ID             string // local UUID, used for idempotent submission keys
	SignalID       string
	Wallet         string // the whale this order was copied from, "" for a basket signal
	MarketID       string
	AssetID        string
	Side           string // "BUY" or "SELL"
	Strategy       SizingStrategy
	Size           decimal.Decimal // shares
	LimitPrice     decimal.Decimal
	Notional       decimal.Decimal
	MaxSlippagePct decimal.Decimal
	CLOBOrderID    string
	Status         CopyOrderStatus
	FilledSize     decimal.Decimal
	FilledPrice    decimal.Decimal
	RejectReason   string
	CreatedAt      time.Time
	SubmittedAt    *time.Time
	FilledAt       *time.Time
}

// PositionStatus is the lifecycle of an aggregate position in one outcome token.
type PositionStatus string

const (
	PositionOpen     PositionStatus = "OPEN"
	PositionClosing  PositionStatus = "CLOSING"
	PositionClosed   PositionStatus = "CLOSED"
	PositionResolved PositionStatus = "RESOLVED"
)

// ExitReason names why a Position was closed.
type ExitReason string

const (
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
	ExitWhaleExit  ExitReason = "whale_exit"
	ExitResolution ExitReason = "market_resolution"
	ExitManual     ExitReason = "manual"
)

// Position is the copy-trading account's aggregate holding of one outcome
// token, built up from one or more filled CopyOrders.
type Position struct {
	ID              string
	Wallet          string // the whale this position was copied from, "" for a basket signal
	MarketID        string
	AssetID         string
	Side            string // "YES" or "NO" — which outcome token is held
	EntrySignalID   string
	AvgEntryPrice   decimal.Decimal
	Size            decimal.Decimal // shares currently held
	CostBasis       decimal.Decimal
	StopLossPct     decimal.Decimal
	TakeProfitPct   decimal.Decimal
	Status          PositionStatus
	RealizedPnLUSDC decimal.Decimal
	OpenedAt        time.Time
	ClosedAt        *time.Time
	ExitReason      ExitReason

	// CurrentMark, UnrealizedPnLUSDC, and LastPriceUpdateAt are the
	// mark-to-market snapshot from the most recent monitoring pass — a
	// durable trail for the read surface, not inputs to any trading
	// decision (ShouldStopLoss/ShouldTakeProfit re-evaluate the live price
	// directly).
	CurrentMark       decimal.Decimal
	UnrealizedPnLUSDC decimal.Decimal
	LastPriceUpdateAt *time.Time
}

// Mark updates the position's mark-to-market snapshot in place against the
// given current price and observation time.
func (p *Position) Mark(currentPrice decimal.Decimal, at time.Time) {
	p.CurrentMark = currentPrice
	p.UnrealizedPnLUSDC = currentPrice.Mul(p.Size).Sub(p.CostBasis).Round(MoneyScale)
	p.LastPriceUpdateAt = &at
}

// UnrealizedPnLPct returns the percentage move of currentPrice relative to
// AvgEntryPrice, positive when the position is in profit.
func (p Position) UnrealizedPnLPct(currentPrice decimal.Decimal) decimal.Decimal {
	return PctChange(p.AvgEntryPrice, currentPrice)
}

// ShouldStopLoss reports whether currentPrice has fallen through the
// configured stop-loss percentage.
func (p Position) ShouldStopLoss(currentPrice decimal.Decimal) bool {
	if p.StopLossPct.IsZero() {
		return false
	}
	return p.UnrealizedPnLPct(currentPrice).LessThanOrEqual(p.StopLossPct.Neg())
}

// ShouldTakeProfit reports whether currentPrice has risen through the
// configured take-profit percentage.
func (p Position) ShouldTakeProfit(currentPrice decimal.Decimal) bool {
	if p.TakeProfitPct.IsZero() {
		return false
	}
	return p.UnrealizedPnLPct(currentPrice).GreaterThanOrEqual(p.TakeProfitPct)
}

// ApplyFill folds a new fill into the position's weighted-average cost basis
// and size, returning the updated position. Intended for BUY-side adds; a
// SELL-side fill is handled by the caller as a (partial) close.
func (p Position) ApplyFill(price, size decimal.Decimal) Position {
	newSize := p.Size.Add(size)
	newCost := p.CostBasis.Add(Notional(price, size))
	p.Size = newSize
	p.CostBasis = newCost.Round(MoneyScale)
	if !newSize.IsZero() {
		p.AvgEntryPrice = newCost.Div(newSize).Round(MoneyScale)
	}
	return p
}

// Resolve realizes P&L at market resolution: payoutPrice is 1 for the
// winning outcome token and 0 for the losing one.
func (p Position) Resolve(payoutPrice decimal.Decimal, at time.Time) Position {
	p.RealizedPnLUSDC = Notional(payoutPrice, p.Size).Sub(p.CostBasis).Round(MoneyScale)
	p.Status = PositionResolved
	p.ExitReason = ExitResolution
	p.ClosedAt = &at
	return p
}

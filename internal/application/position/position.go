// Package position implements the Position Manager: a timer-driven pass
// over every open position checking stop-loss/take-profit thresholds and
// whale-exit signals, plus the external market-resolution handler that
// realizes P&L once a market settles.
package position

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polybot/internal/application/corecontext"
	"github.com/alejandrodnm/polybot/internal/domain"
	"github.com/alejandrodnm/polybot/internal/domain/corerr"
	"github.com/alejandrodnm/polybot/internal/ports"
)

// Manager watches open positions and generates exit CopyOrders.
type Manager struct {
	positions ports.CopyStorage
	exchange  ports.CopyOrderExecutor // nil in monitor-only mode
	core      *corecontext.Core
	notifier  ports.Notifier // optional
	log       *slog.Logger

	// exits receives a sized exit CopyOrder for the Executor to submit,
	// mirroring how the Copy Engine hands entries to the Executor.
	exits chan domain.CopyOrder
}

// New constructs a position Manager. notifier may be nil.
func New(positions ports.CopyStorage, exchange ports.CopyOrderExecutor, core *corecontext.Core, notifier ports.Notifier, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		positions: positions,
		exchange:  exchange,
		core:      core,
		notifier:  notifier,
		log:       log,
		exits:     make(chan domain.CopyOrder, 64),
	}
}

// emit best-effort notifies a single event; failures only get logged.
func (m *Manager) emit(ctx context.Context, ev domain.Event) {
	if m.notifier == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if err := m.notifier.Notify(ctx, []domain.Event{ev}); err != nil {
		m.log.Warn("position manager: notify failed", "kind", ev.Kind, "error", err)
	}
}

// Exits returns the channel the Executor consumes exit orders from.
func (m *Manager) Exits() <-chan domain.CopyOrder {
	return m.exits
}

// Run ticks at RuntimeConfig's PositionMonitorInterval, re-reading the
// interval from the live config snapshot on every VersionChanged wakeup.
func (m *Manager) Run(ctx context.Context) error {
	for {
		interval := m.core.Config().PositionMonitorInterval
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.core.VersionChanged():
			continue
		case <-time.After(interval):
			if err := m.CheckAll(ctx); err != nil {
				m.log.Error("position manager: check pass failed", "error", err)
			}
		}
	}
}

// CheckAll evaluates every open position's stop-loss/take-profit condition
// against the best available price. Whale-exit triggers are applied
// separately via OnWhaleExit since they arrive event-driven, not on a timer.
func (m *Manager) CheckAll(ctx context.Context) error {
	open, err := m.positions.GetOpenPositions(ctx)
	if err != nil {
		return &corerr.DatabaseError{Op: "position.GetOpenPositions", Err: err}
	}
	for _, p := range open {
		if err := m.checkOne(ctx, p); err != nil {
			m.log.Error("position manager: check failed", "position_id", p.ID, "error", err)
		}
	}
	return nil
}

func (m *Manager) checkOne(ctx context.Context, p domain.Position) error {
	if m.exchange == nil {
		return nil
	}
	price, err := m.exchange.BestPrice(ctx, p.AssetID, "SELL")
	if err != nil {
		return &corerr.TransientNetworkError{Op: "BestPrice", Err: err}
	}

	m.reconcileShareBalance(ctx, p)

	switch {
	case p.ShouldStopLoss(price):
		return m.initiateExit(ctx, p, price, domain.ExitStopLoss)
	case p.ShouldTakeProfit(price):
		return m.initiateExit(ctx, p, price, domain.ExitTakeProfit)
	}

	p.Mark(price, time.Now().UTC())
	if err := m.positions.UpdatePosition(ctx, p); err != nil {
		return &corerr.DatabaseError{Op: "position.UpdatePosition", Err: err}
	}
	return nil
}

// reconcileShareBalance compares the position book's recorded size against
// the operator wallet's actual on-chain holding for this token. A mismatch
// means a fill was missed or double-counted upstream; this only logs it —
// correcting the book automatically risks masking the root cause.
func (m *Manager) reconcileShareBalance(ctx context.Context, p domain.Position) {
	onChain, err := m.exchange.ShareBalance(ctx, p.AssetID)
	if err != nil {
		m.log.Warn("position manager: share balance reconciliation failed", "position_id", p.ID, "error", err)
		return
	}
	if !onChain.Sub(p.Size).Abs().LessThan(domain.ShareBalanceTolerance) {
		m.log.Warn("position manager: on-chain share balance drifted from recorded position",
			"position_id", p.ID, "asset_id", p.AssetID, "recorded_size", p.Size.String(), "on_chain_size", onChain.String())
	}
}

// OnWhaleExit is called by the ingestion layer when a tracked whale sells
// out of a market/asset this position was copied from — the Position
// Manager exits in sympathy rather than waiting for SL/TP to trigger. wallet
// must match the position's recorded Wallet; a basket-consensus position
// (Wallet == "") or one copied from a different whale in the same market is
// left alone.
func (m *Manager) OnWhaleExit(ctx context.Context, wallet, marketID, assetID string, exitPrice decimal.Decimal) error {
	p, ok, err := m.positions.GetPositionByMarket(ctx, marketID, assetID)
	if err != nil {
		return &corerr.DatabaseError{Op: "position.GetPositionByMarket", Err: err}
	}
	if !ok || p.Status != domain.PositionOpen || p.Wallet != wallet {
		return nil
	}
	return m.initiateExit(ctx, p, exitPrice, domain.ExitWhaleExit)
}

func (m *Manager) initiateExit(ctx context.Context, p domain.Position, price decimal.Decimal, reason domain.ExitReason) error {
	lock := m.core.LockFor(p.MarketID, p.AssetID)
	lock.Lock()
	defer lock.Unlock()

	p.Status = domain.PositionClosing
	p.ExitReason = reason
	if err := m.positions.UpdatePosition(ctx, p); err != nil {
		return &corerr.DatabaseError{Op: "position.UpdatePosition", Err: err}
	}

	order := domain.CopyOrder{
		ID:         uuid.NewString(),
		SignalID:   p.EntrySignalID,
		Wallet:     p.Wallet,
		MarketID:   p.MarketID,
		AssetID:    p.AssetID,
		Side:       "SELL",
		Strategy:   domain.SizingFixed,
		Size:       p.Size,
		LimitPrice: price,
		Notional:   domain.Notional(price, p.Size),
		Status:     domain.CopyOrderPending,
		CreatedAt:  time.Now().UTC(),
	}
	if m.exchange == nil || m.core.Config().DryRun {
		order.Status = domain.CopyOrderShadow
		order.FilledSize = order.Size
		order.FilledPrice = order.LimitPrice
		// lock already held above for this market/asset key; applyFill
		// would deadlock re-acquiring it, so call the unlocked core directly.
		if err := m.applyFill(ctx, order); err != nil {
			m.log.Error("position manager: failed to apply shadow exit fill", "order_id", order.ID, "error", err)
		}
	}

	select {
	case m.exits <- order:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// ApplyFill folds a filled or partially filled CopyOrder into the position
// book: a BUY fill opens a new position or adds to an existing one at the
// weighted-average entry price; a SELL fill reduces or closes one, realizing
// its proportional share of P&L. Called by the Executor once a submitted
// order reaches FILLED/PARTIAL, and directly by the dry-run paths in the
// Copy Engine and initiateExit for SHADOW orders that never touch the
// exchange.
func (m *Manager) ApplyFill(ctx context.Context, order domain.CopyOrder) error {
	lock := m.core.LockFor(order.MarketID, order.AssetID)
	lock.Lock()
	defer lock.Unlock()
	return m.applyFill(ctx, order)
}

// applyFill is ApplyFill's body without the market/asset lock, for callers
// (initiateExit) that already hold it.
func (m *Manager) applyFill(ctx context.Context, order domain.CopyOrder) error {
	fillSize := order.FilledSize
	fillPrice := order.FilledPrice
	if fillSize.IsZero() {
		fillSize = order.Size
	}
	if fillPrice.IsZero() {
		fillPrice = order.LimitPrice
	}
	if fillSize.IsZero() {
		return nil
	}

	existing, ok, err := m.positions.GetPositionByMarket(ctx, order.MarketID, order.AssetID)
	if err != nil {
		return &corerr.DatabaseError{Op: "position.GetPositionByMarket", Err: err}
	}

	if order.Side == "BUY" {
		return m.applyEntryFill(ctx, existing, ok, order, fillSize, fillPrice)
	}
	return m.applyExitFill(ctx, existing, ok, order, fillSize, fillPrice)
}

func (m *Manager) applyEntryFill(ctx context.Context, existing domain.Position, ok bool, order domain.CopyOrder, fillSize, fillPrice decimal.Decimal) error {
	if !ok {
		cfg := m.core.Config()
		p := domain.Position{
			ID:            uuid.NewString(),
			Wallet:        order.Wallet,
			MarketID:      order.MarketID,
			AssetID:       order.AssetID,
			Side:          order.Side,
			EntrySignalID: order.SignalID,
			StopLossPct:   cfg.DefaultStopLossPct,
			TakeProfitPct: cfg.DefaultTakeProfitPct,
			Status:        domain.PositionOpen,
			OpenedAt:      time.Now().UTC(),
		}
		p = p.ApplyFill(fillPrice, fillSize)
		if err := m.positions.SavePosition(ctx, p); err != nil {
			return &corerr.DatabaseError{Op: "position.SavePosition", Err: err}
		}
		m.emit(ctx, domain.Event{Kind: domain.EventPositionOpened, MarketID: p.MarketID, AssetID: p.AssetID, Message: "opened size=" + p.Size.String()})
		return nil
	}

	existing = existing.ApplyFill(fillPrice, fillSize)
	existing.Status = domain.PositionOpen
	if err := m.positions.UpdatePosition(ctx, existing); err != nil {
		return &corerr.DatabaseError{Op: "position.UpdatePosition", Err: err}
	}
	return nil
}

func (m *Manager) applyExitFill(ctx context.Context, existing domain.Position, ok bool, order domain.CopyOrder, fillSize, fillPrice decimal.Decimal) error {
	if !ok {
		m.log.Warn("sell fill with no matching open position",
			"market_id", order.MarketID, "asset_id", order.AssetID)
		return nil
	}

	proportion := decimal.Zero
	if !existing.Size.IsZero() {
		proportion = fillSize.Div(existing.Size)
		if proportion.GreaterThan(decimal.NewFromInt(1)) {
			proportion = decimal.NewFromInt(1)
		}
	}
	realized := domain.Notional(fillPrice, fillSize).Sub(existing.CostBasis.Mul(proportion)).Round(domain.MoneyScale)

	remaining := existing.Size.Sub(fillSize)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	existing.Size = remaining
	existing.CostBasis = existing.CostBasis.Mul(decimal.NewFromInt(1).Sub(proportion)).Round(domain.MoneyScale)
	existing.RealizedPnLUSDC = existing.RealizedPnLUSDC.Add(realized)

	if remaining.IsZero() {
		now := time.Now().UTC()
		existing.Status = domain.PositionClosed
		existing.ClosedAt = &now
		if existing.ExitReason == "" {
			existing.ExitReason = domain.ExitManual
		}
	}

	if realized.IsNegative() {
		now := time.Now().UTC()
		m.core.RecordRealizedLoss(realized.Abs(), now)
		m.checkCircuitBreaker(ctx, now)
	}

	if err := m.positions.UpdatePosition(ctx, existing); err != nil {
		return &corerr.DatabaseError{Op: "position.UpdatePosition", Err: err}
	}
	if existing.Status == domain.PositionClosed {
		m.emit(ctx, domain.Event{Kind: domain.EventPositionClosed, MarketID: existing.MarketID, AssetID: existing.AssetID, Message: "closed, realized_pnl=" + existing.RealizedPnLUSDC.String()})
	}
	return nil
}

// checkCircuitBreaker emits a single circuit-breaker event the moment the
// daily realized-loss limit is crossed, rather than once per order on every
// subsequent loss while it stays tripped.
func (m *Manager) checkCircuitBreaker(ctx context.Context, at time.Time) {
	cfg := m.core.Config()
	if !m.core.DailyLossExceeded(cfg.DailyLossLimitUSDC) {
		return
	}
	key := "circuit_breaker|" + at.UTC().Truncate(24*time.Hour).String()
	if m.core.WasSubmittedRecently(key, at, 24*time.Hour) {
		return
	}
	m.core.MarkSubmitted(key, at, 24*time.Hour)
	m.emit(ctx, domain.Event{Kind: domain.EventCircuitBreaker, Message: "daily realized loss limit exceeded, new signals paused for the rest of the day"})
}

// Resolve applies a market's final payout to every open position in it,
// realizing P&L and marking the position RESOLVED. Called by the external
// market-resolution handler once a condition resolves on-chain.
func (m *Manager) Resolve(ctx context.Context, marketID, assetID string, payoutPrice decimal.Decimal, at time.Time) error {
	p, ok, err := m.positions.GetPositionByMarket(ctx, marketID, assetID)
	if err != nil {
		return &corerr.DatabaseError{Op: "position.GetPositionByMarket", Err: err}
	}
	if !ok {
		return nil
	}
	resolved := p.Resolve(payoutPrice, at)
	if resolved.RealizedPnLUSDC.IsNegative() {
		m.core.RecordRealizedLoss(resolved.RealizedPnLUSDC.Abs(), at)
		m.checkCircuitBreaker(ctx, at)
	}
	if err := m.positions.UpdatePosition(ctx, resolved); err != nil {
		return &corerr.DatabaseError{Op: "position.UpdatePosition", Err: err}
	}
	m.emit(ctx, domain.Event{Kind: domain.EventPositionClosed, MarketID: resolved.MarketID, AssetID: resolved.AssetID, Message: "resolved, realized_pnl=" + resolved.RealizedPnLUSDC.String()})
	return nil
}

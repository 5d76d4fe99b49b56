// Package copy implements the Copy Engine: turns an armed ConsensusSignal
// into a sized CopyOrder, applying the signal-quality, timing, notional, and
// risk gates before handing the order to the Executor. In dry-run mode it
// produces a SHADOW order instead of submitting anything.
package copy

import (
	"context"
	"fmt"
	"log/slog"
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

// Engine sizes and gates signals into CopyOrders.
type Engine struct {
	store     ports.CopyStorage
	executor  ports.CopyOrderExecutor // nil in monitor-only mode
	positions ports.FillApplier
	reg       *registry.Registry
	core      *corecontext.Core
	markets   *marketcache.Cache // nil disables the liquidity-aware sizing cap
	notifier  ports.Notifier     // optional
	log       *slog.Logger

	// out receives every order the engine decides to submit (status
	// PENDING) for the Executor to pick up, or SHADOW orders for the
	// dry-run/monitor-only audit trail.
	out chan domain.CopyOrder
}

// New constructs a copy Engine. executor may be nil for monitor-only
// deployments; every signal still produces a persisted SHADOW order. markets
// may be nil, in which case sizing skips the market-liquidity cap. notifier
// may be nil, in which case signal outcomes are only logged.
func New(store ports.CopyStorage, executor ports.CopyOrderExecutor, positions ports.FillApplier, reg *registry.Registry, core *corecontext.Core, markets *marketcache.Cache, notifier ports.Notifier, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		store:     store,
		executor:  executor,
		positions: positions,
		reg:       reg,
		core:      core,
		markets:   markets,
		notifier:  notifier,
		log:       log,
		out:       make(chan domain.CopyOrder, 64),
	}
}

// notify best-effort emits a single event; failures are logged, never
// propagated, since a notify failure must not block trading.
func (e *Engine) notify(ctx context.Context, ev domain.Event) {
	if e.notifier == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if err := e.notifier.Notify(ctx, []domain.Event{ev}); err != nil {
		e.log.Warn("copy engine: notify failed", "kind", ev.Kind, "error", err)
	}
}

// Orders returns the channel the Executor consumes submittable orders from.
func (e *Engine) Orders() <-chan domain.CopyOrder {
	return e.out
}

// Run consumes signals until the channel closes or ctx is cancelled.
func (e *Engine) Run(ctx context.Context, signals <-chan domain.ConsensusSignal) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-signals:
			if !ok {
				return nil
			}
			if err := e.handle(ctx, sig); err != nil {
				e.log.Error("copy engine: signal rejected", "signal_id", sig.ID, "error", err)
			}
		}
	}
}

func (e *Engine) handle(ctx context.Context, sig domain.ConsensusSignal) error {
	cfg := e.core.Config()
	now := time.Now().UTC()

	if !cfg.CopyEnabled || e.core.IsPaused() {
		return nil
	}
	if e.core.WasSubmittedRecently(sig.ID, now, cfg.SignalDedupWindow) {
		return nil
	}
	if e.core.DailyLossExceeded(cfg.DailyLossLimitUSDC) {
		return &corerr.InvariantViolation{Invariant: "daily_loss_limit", Detail: "circuit breaker tripped, skipping signal " + sig.ID}
	}
	if !sig.IsBasket {
		if !e.soloWhaleEligible(sig.Source, cfg) {
			return nil
		}
	}
	if !sig.PassesTimingGate(cfg.MinMinutesToResolution, cfg.MinPriceRoomToMove) {
		return nil
	}

	// The market/asset lock only needs to span sizing and the gate checks;
	// ApplyFill below takes the same lock itself, so it must not still be
	// held here.
	lock := e.core.LockFor(sig.MarketID, sig.AssetID)
	lock.Lock()
	order, err := e.size(sig, cfg)
	var gateErr error
	if err == nil {
		gateErr = e.checkRiskGate(ctx, sig, order, cfg)
	}
	if err == nil && gateErr == nil {
		gateErr = e.applySlippageGate(ctx, &order, cfg)
	}
	lock.Unlock()

	if err != nil {
		return err
	}
	if gateErr != nil {
		order.Status = domain.CopyOrderRejected
		order.RejectReason = corerr.Reason(gateErr)
		_ = e.store.SaveCopyOrder(ctx, order)
		e.notify(ctx, domain.Event{Kind: domain.EventOrderRejected, MarketID: order.MarketID, AssetID: order.AssetID, Wallet: sig.Source, Message: order.RejectReason})
		return gateErr
	}

	if cfg.DryRun || e.executor == nil {
		order.Status = domain.CopyOrderShadow
	} else {
		order.Status = domain.CopyOrderPending
	}

	if err := e.store.SaveCopyOrder(ctx, order); err != nil {
		return &corerr.DatabaseError{Op: "copy.SaveCopyOrder", Err: err}
	}
	e.core.MarkSubmitted(sig.ID, now, cfg.SignalDedupWindow)
	e.notify(ctx, domain.Event{Kind: domain.EventOrderSubmitted, MarketID: order.MarketID, AssetID: order.AssetID, Wallet: sig.Source, Message: fmt.Sprintf("%s %s size=%s @ %s", order.Side, order.Status, order.Size.String(), order.LimitPrice.String())})

	if order.Status == domain.CopyOrderPending {
		select {
		case e.out <- order:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}

	// SHADOW: nothing will ever reach the Executor for this order, so the
	// Copy Engine applies its own fill at the order's limit price (the
	// observed best price once the slippage gate has run) immediately.
	if e.positions != nil {
		order.FilledSize = order.Size
		order.FilledPrice = order.LimitPrice
		if err := e.positions.ApplyFill(ctx, order); err != nil {
			e.log.Error("copy engine: failed to apply shadow fill", "order_id", order.ID, "error", err)
		} else {
			e.notify(ctx, domain.Event{Kind: domain.EventOrderFilled, MarketID: order.MarketID, AssetID: order.AssetID, Wallet: sig.Source, Message: "shadow fill at limit price"})
		}
	}
	return nil
}

// soloWhaleEligible gates a non-basket signal on both the whale's
// classification and its rolling signal-quality metrics — a solo whale has
// no corroborating consensus, so it alone must clear the minimum track
// record the basket path gets to skip.
func (e *Engine) soloWhaleEligible(wallet string, cfg domain.RuntimeConfig) bool {
	w, ok := e.reg.Lookup(wallet)
	if !ok || !w.IsEligibleForBaskets() {
		return false
	}
	score := domain.ScoreResult{
		WinRate:       w.WinRate,
		SharpeLike:    w.SharpeLike,
		KellyFraction: w.KellyFraction,
		ExpectedValue: w.ExpectedValue,
	}
	return domain.MeetsSignalQualityGate(w, score, cfg.MinResolvedForSignal, cfg.MinTotalTradesForSignal, cfg.MinSignalWinRate, cfg.MinSignalEV)
}

// size computes the CopyOrder's notional and token size from the configured
// strategy, clamped to [signal_notional_floor, min(max_signal_notional,
// signal_notional_liquidity_pct * market_liquidity)]. If the market's cached
// liquidity is thin enough that the liquidity-capped ceiling itself falls
// below the floor, the signal is dropped with insufficient_notional rather
// than sized down to something the floor forbids.
//
// Proportional-to-whale-bankroll sizing falls back to fixed: the whale's own
// bankroll isn't observable from on-chain trade history alone, so there is
// nothing to be proportional to.
func (e *Engine) size(sig domain.ConsensusSignal, cfg domain.RuntimeConfig) (domain.CopyOrder, error) {
	var rawNotional decimal.Decimal
	switch cfg.CopyStrategy {
	case domain.SizingKelly:
		kelly := cfg.MaxKellyFraction
		if w, ok := e.reg.Lookup(sig.Source); ok && w.KellyFraction.GreaterThan(decimal.Zero) && w.KellyFraction.LessThan(kelly) {
			kelly = w.KellyFraction
		}
		rawNotional = e.core.Bankroll().Mul(kelly)
	default: // SizingFixed, SizingProportional
		rawNotional = cfg.BaseCopyAmount
	}

	floor := cfg.MinSignalNotional
	ceiling := cfg.MaxSignalNotional
	if e.markets != nil {
		if mkt, ok := e.markets.Get(sig.MarketID); ok {
			liquidityCap := mkt.Liquidity.Mul(cfg.SignalNotionalLiquidityPct)
			if liquidityCap.LessThan(ceiling) {
				ceiling = liquidityCap
			}
		}
	}
	if ceiling.LessThan(floor) {
		return domain.CopyOrder{}, &corerr.InsufficientNotional{Sized: ceiling.String(), Min: floor.String(), Max: cfg.MaxSignalNotional.String()}
	}

	notional, _ := domain.ClampNotional(rawNotional, floor, ceiling)
	if sig.ReferencePrice.IsZero() {
		return domain.CopyOrder{}, &corerr.InsufficientNotional{Sized: notional.String(), Min: floor.String(), Max: ceiling.String()}
	}
	size := notional.Div(sig.ReferencePrice).Round(domain.MoneyScale)

	return domain.CopyOrder{
		ID:             uuid.NewString(),
		SignalID:       sig.ID,
		Wallet:         sig.Source,
		MarketID:       sig.MarketID,
		AssetID:        sig.AssetID,
		Side:           sig.Direction,
		Strategy:       cfg.CopyStrategy,
		Size:           size,
		LimitPrice:     sig.ReferencePrice,
		Notional:       notional,
		MaxSlippagePct: cfg.MaxSlippagePct,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// checkRiskGate runs the risk-gate checks that depend on the sized order and
// the account's current open-position snapshot: open-position count, single-
// position notional against bankroll, per-whale cumulative exposure, and
// order-time distance-to-bound. Each failure is an InvariantViolation — a
// structural bug, not an expected business outcome — per the sizer/risk-gate
// error taxonomy.
func (e *Engine) checkRiskGate(ctx context.Context, sig domain.ConsensusSignal, order domain.CopyOrder, cfg domain.RuntimeConfig) error {
	open, err := e.store.GetOpenPositions(ctx)
	if err != nil {
		return &corerr.DatabaseError{Op: "copy.checkRiskGate.GetOpenPositions", Err: err}
	}

	if len(open) >= cfg.MaxOpenPositions {
		return &corerr.InvariantViolation{Invariant: "max_open_positions", Detail: fmt.Sprintf("%d open positions >= limit %d", len(open), cfg.MaxOpenPositions)}
	}

	bankroll := e.core.Bankroll()
	maxPositionNotional := bankroll.Mul(cfg.MaxPositionPct).Div(decimal.NewFromInt(100))
	if order.Notional.GreaterThan(maxPositionNotional) {
		return &corerr.InvariantViolation{Invariant: "max_position_pct", Detail: fmt.Sprintf("sized notional %s exceeds %s%% of bankroll (%s)", order.Notional.String(), cfg.MaxPositionPct.String(), maxPositionNotional.String())}
	}

	// Per-whale exposure doesn't apply to a basket's aggregate signal — no
	// single wallet "owns" a consensus order.
	if !sig.IsBasket && sig.Source != "" {
		maxWhaleExposure := bankroll.Mul(domain.MaxPerWhaleExposurePct).Div(decimal.NewFromInt(100))
		exposure := order.Notional
		for _, p := range open {
			if p.Wallet == sig.Source {
				exposure = exposure.Add(p.CostBasis)
			}
		}
		if exposure.GreaterThan(maxWhaleExposure) {
			return &corerr.InvariantViolation{Invariant: "max_per_whale_exposure_pct", Detail: fmt.Sprintf("wallet %s cumulative exposure %s exceeds %s%% of bankroll (%s)", sig.Source, exposure.String(), domain.MaxPerWhaleExposurePct.String(), maxWhaleExposure.String())}
		}
	}

	if domain.PriceRoomToMove(order.LimitPrice).LessThan(domain.MinOrderTimeRoomToMove) {
		return &corerr.InvariantViolation{Invariant: "min_order_time_room_to_move", Detail: fmt.Sprintf("price %s has room %s, below floor %s", order.LimitPrice.String(), domain.PriceRoomToMove(order.LimitPrice).String(), domain.MinOrderTimeRoomToMove.String())}
	}

	return nil
}

// applySlippageGate fetches the current best price and rejects the order if
// the signal's reference price has already drifted beyond the configured
// tolerance — protects against copying a whale into a price that moved
// before the signal could be acted on.
func (e *Engine) applySlippageGate(ctx context.Context, order *domain.CopyOrder, cfg domain.RuntimeConfig) error {
	if e.executor == nil {
		return nil
	}
	best, err := e.executor.BestPrice(ctx, order.AssetID, order.Side)
	if err != nil {
		return fmt.Errorf("copy.applySlippageGate: %w", &corerr.TransientNetworkError{Op: "BestPrice", Err: err})
	}
	slip := domain.SlippagePct(best, order.LimitPrice)
	if slip.Abs().GreaterThan(order.MaxSlippagePct) {
		return &corerr.SlippageExceeded{
			TokenID:        order.AssetID,
			ExpectedPrice:  order.LimitPrice.String(),
			ObservedPrice:  best.String(),
			MaxSlippagePct: order.MaxSlippagePct.String(),
		}
	}
	order.LimitPrice = best
	return nil
}

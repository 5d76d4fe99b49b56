// Package executor implements the Order Executor: a worker pool that
// submits sized CopyOrders to the CLOB and reconciles their fill state on a
// short poll loop, updating both the CopyOrder row and the owning Position.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polybot/internal/application/corecontext"
	"github.com/alejandrodnm/polybot/internal/domain"
	"github.com/alejandrodnm/polybot/internal/domain/corerr"
	"github.com/alejandrodnm/polybot/internal/ports"
)

// defaultWorkers matches the spec's "worker pool (>=2 workers)" minimum.
const defaultWorkers = 4

// fillPollInterval is how often the Executor reconciles open orders against
// the CLOB's own order state, bounded at 10s per the fill-reconciliation
// requirement.
const fillPollInterval = 10 * time.Second

// Executor submits orders from the Copy Engine and reconciles fills.
type Executor struct {
	store     ports.CopyStorage
	exchange  ports.CopyOrderExecutor // nil in monitor-only mode
	positions ports.FillApplier
	core      *corecontext.Core
	notifier  ports.Notifier // optional
	log       *slog.Logger
	workers   int
}

// New constructs an Executor. exchange may be nil — Run then logs and skips
// every order it receives and the reconcile loop does nothing, matching
// monitor-only mode.
// notifier may be nil.
func New(store ports.CopyStorage, exchange ports.CopyOrderExecutor, positions ports.FillApplier, core *corecontext.Core, notifier ports.Notifier, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{store: store, exchange: exchange, positions: positions, core: core, notifier: notifier, log: log, workers: defaultWorkers}
}

// emit best-effort notifies a single event; failures only get logged.
func (x *Executor) emit(ctx context.Context, ev domain.Event) {
	if x.notifier == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if err := x.notifier.Notify(ctx, []domain.Event{ev}); err != nil {
		x.log.Warn("executor: notify failed", "kind", ev.Kind, "error", err)
	}
}

// Run drains orders across a worker pool until the channel closes or ctx is
// cancelled, and concurrently runs the fill-reconciliation poll loop.
func (x *Executor) Run(ctx context.Context, orders <-chan domain.CopyOrder) error {
	var wg sync.WaitGroup
	for i := 0; i < x.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			x.worker(ctx, orders)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		x.reconcileLoop(ctx)
	}()

	wg.Wait()
	return ctx.Err()
}

func (x *Executor) worker(ctx context.Context, orders <-chan domain.CopyOrder) {
	for {
		select {
		case <-ctx.Done():
			return
		case order, ok := <-orders:
			if !ok {
				return
			}
			x.submit(ctx, order)
		}
	}
}

func (x *Executor) submit(ctx context.Context, order domain.CopyOrder) {
	if x.exchange == nil {
		x.log.Warn("executor: no exchange client configured, skipping submission", "order_id", order.ID)
		return
	}

	lock := x.core.LockFor(order.MarketID, order.AssetID)
	lock.Lock()
	defer lock.Unlock()

	placed, err := x.exchange.PlaceLimitOrder(ctx, order)
	if err != nil {
		x.reject(ctx, order, err)
		return
	}

	now := time.Now().UTC()
	order.CLOBOrderID = placed.CLOBOrderID
	order.Status = domain.CopyOrderSubmitted
	order.SubmittedAt = &now

	if err := x.store.UpdateCopyOrderStatus(ctx, order.ID, order.Status, ""); err != nil {
		x.log.Error("executor: failed to persist submitted status", "order_id", order.ID, "error", err)
	}
}

func (x *Executor) reject(ctx context.Context, order domain.CopyOrder, err error) {
	reason := corerr.Reason(err)
	x.log.Error("executor: order placement rejected", "order_id", order.ID, "error", err)
	if uerr := x.store.UpdateCopyOrderStatus(ctx, order.ID, domain.CopyOrderRejected, reason); uerr != nil {
		x.log.Error("executor: failed to persist rejection", "order_id", order.ID, "error", uerr)
	}

	var walletErr *corerr.WalletError
	if errors.As(err, &walletErr) {
		// Wallet errors are only logged here; nothing disables live
		// copying after repeated wallet errors.
		x.log.Warn("executor: wallet error placing order", "op", walletErr.Op)
	}
	x.emit(ctx, domain.Event{Kind: domain.EventOrderRejected, MarketID: order.MarketID, AssetID: order.AssetID, Message: reason})
}

// reconcileLoop polls every open order's CLOB state on fillPollInterval
// until ctx is cancelled.
func (x *Executor) reconcileLoop(ctx context.Context) {
	ticker := time.NewTicker(fillPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := x.reconcileOnce(ctx); err != nil {
				x.log.Error("executor: reconcile pass failed", "error", err)
			}
		}
	}
}

func (x *Executor) reconcileOnce(ctx context.Context) error {
	if x.exchange == nil {
		return nil
	}
	open, err := x.store.GetOpenCopyOrders(ctx)
	if err != nil {
		return &corerr.DatabaseError{Op: "executor.GetOpenCopyOrders", Err: err}
	}

	live, err := x.exchange.GetOpenOrders(ctx)
	if err != nil {
		return fmt.Errorf("executor.reconcileOnce: %w", &corerr.TransientNetworkError{Op: "GetOpenOrders", Err: err})
	}
	byID := make(map[string]domain.CopyOrder, len(live))
	for _, o := range live {
		byID[o.CLOBOrderID] = o
	}

	fillTimeout := x.core.Config().FillTimeout

	for _, tracked := range open {
		lv, ok := byID[tracked.CLOBOrderID]
		if !ok {
			// No longer resting on the book: treat as fully filled since
			// the CLOB already removed it from the open-orders response.
			x.markFilled(ctx, tracked)
			continue
		}
		delta := lv.FilledSize.Sub(tracked.FilledSize)
		if delta.IsZero() || delta.IsNegative() {
			if x.isIdleTooLong(tracked, fillTimeout) {
				x.cancelIdle(ctx, tracked)
			}
			continue
		}
		status := domain.CopyOrderPartial
		if lv.FilledSize.GreaterThanOrEqual(tracked.Size) {
			status = domain.CopyOrderFilled
		}
		now := time.Now().UTC()
		if err := x.store.UpdateCopyOrderFill(ctx, tracked.ID, lv.FilledSize, lv.FilledPrice, status, now); err != nil {
			x.log.Error("executor: failed to persist fill", "order_id", tracked.ID, "error", err)
		}
		x.notifyFill(ctx, tracked, delta, lv.FilledPrice)
	}
	return nil
}

// isIdleTooLong reports whether a submitted or partially filled order has
// rested without any fill past cfg.FillTimeout.
func (x *Executor) isIdleTooLong(order domain.CopyOrder, fillTimeout time.Duration) bool {
	if order.SubmittedAt == nil || fillTimeout <= 0 {
		return false
	}
	if order.Status != domain.CopyOrderSubmitted && order.Status != domain.CopyOrderPartial {
		return false
	}
	return time.Since(*order.SubmittedAt) > fillTimeout
}

// cancelIdle marks an order cancelled for exceeding fill-timeout and
// best-effort cancels it on the exchange; the exchange call's failure
// doesn't block the local status transition since the order is abandoned
// either way.
func (x *Executor) cancelIdle(ctx context.Context, order domain.CopyOrder) {
	if err := x.exchange.CancelOrder(ctx, order.CLOBOrderID); err != nil {
		x.log.Warn("executor: best-effort exchange cancel failed", "order_id", order.ID, "clob_order_id", order.CLOBOrderID, "error", err)
	}
	if err := x.store.UpdateCopyOrderStatus(ctx, order.ID, domain.CopyOrderCancelled, "fill_timeout"); err != nil {
		x.log.Error("executor: failed to persist fill-timeout cancellation", "order_id", order.ID, "error", err)
		return
	}
	x.log.Info("executor: cancelled order idle past fill timeout", "order_id", order.ID, "clob_order_id", order.CLOBOrderID)
	x.emit(ctx, domain.Event{Kind: domain.EventOrderCancelled, MarketID: order.MarketID, AssetID: order.AssetID, Message: "fill_timeout"})
}

func (x *Executor) markFilled(ctx context.Context, order domain.CopyOrder) {
	delta := order.Size.Sub(order.FilledSize)
	now := time.Now().UTC()
	if err := x.store.UpdateCopyOrderFill(ctx, order.ID, order.Size, order.LimitPrice, domain.CopyOrderFilled, now); err != nil {
		x.log.Error("executor: failed to persist fill on delist", "order_id", order.ID, "error", err)
	}
	if delta.IsPositive() {
		x.notifyFill(ctx, order, delta, order.LimitPrice)
	}
}

// notifyFill applies the fill to the owning position. Failure here leaves
// the CopyOrder's fill state persisted but the position book stale; it is
// logged and not retried, and since the fill is already persisted, later
// reconcile passes see no new fill delta and do not re-apply it.
func (x *Executor) notifyFill(ctx context.Context, order domain.CopyOrder, filledSize, filledPrice decimal.Decimal) {
	if x.positions == nil {
		return
	}
	order.FilledSize = filledSize
	order.FilledPrice = filledPrice
	if err := x.positions.ApplyFill(ctx, order); err != nil {
		x.log.Error("executor: failed to apply fill to position", "order_id", order.ID, "error", err)
		return
	}
	x.emit(ctx, domain.Event{Kind: domain.EventOrderFilled, MarketID: order.MarketID, AssetID: order.AssetID, Message: fmt.Sprintf("filled %s @ %s", filledSize.String(), filledPrice.String())})
}

// Package testutil holds fakes shared across the application layer's
// tests: in-memory storage ports, a scriptable executor and market
// resolver, and a recording notifier. Production code never imports this
// package.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polybot/internal/domain"
)

// CopyStore is an in-memory ports.CopyStorage, safe for concurrent use.
type CopyStore struct {
	mu        sync.Mutex
	orders    map[string]domain.CopyOrder
	positions map[string]domain.Position // keyed by marketID|assetID
	submitted map[string]time.Time
}

// NewCopyStore constructs an empty CopyStore.
func NewCopyStore() *CopyStore {
	return &CopyStore{
		orders:    make(map[string]domain.CopyOrder),
		positions: make(map[string]domain.Position),
		submitted: make(map[string]time.Time),
	}
}

func posKey(marketID, assetID string) string { return marketID + "|" + assetID }

func (s *CopyStore) SaveCopyOrder(ctx context.Context, o domain.CopyOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o
	s.submitted[o.SignalID] = time.Now().UTC()
	return nil
}

func (s *CopyStore) UpdateCopyOrderStatus(ctx context.Context, id string, status domain.CopyOrderStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil
	}
	o.Status = status
	o.RejectReason = reason
	s.orders[id] = o
	return nil
}

func (s *CopyStore) UpdateCopyOrderFill(ctx context.Context, id string, filledSize, filledPrice decimal.Decimal, status domain.CopyOrderStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil
	}
	o.FilledSize = filledSize
	o.FilledPrice = filledPrice
	o.Status = status
	s.orders[id] = o
	return nil
}

func (s *CopyStore) GetOpenCopyOrders(ctx context.Context) ([]domain.CopyOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.CopyOrder
	for _, o := range s.orders {
		switch o.Status {
		case domain.CopyOrderPending, domain.CopyOrderSubmitted, domain.CopyOrderPartial:
			out = append(out, o)
		}
	}
	return out, nil
}

// AllCopyOrders returns every saved CopyOrder regardless of status,
// including the terminal SHADOW orders GetOpenCopyOrders leaves out.
func (s *CopyStore) AllCopyOrders(ctx context.Context) ([]domain.CopyOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.CopyOrder, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	return out, nil
}

func (s *CopyStore) WasSubmitted(ctx context.Context, signalID string, within time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.submitted[signalID]
	if !ok {
		return false, nil
	}
	return time.Since(t) < within, nil
}

func (s *CopyStore) SavePosition(ctx context.Context, p domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[posKey(p.MarketID, p.AssetID)] = p
	return nil
}

func (s *CopyStore) UpdatePosition(ctx context.Context, p domain.Position) error {
	return s.SavePosition(ctx, p)
}

func (s *CopyStore) GetOpenPositions(ctx context.Context) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Position
	for _, p := range s.positions {
		if p.Status == domain.PositionOpen {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *CopyStore) GetPositionByMarket(ctx context.Context, marketID, assetID string) (domain.Position, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[posKey(marketID, assetID)]
	return p, ok, nil
}

// Executor is a scriptable ports.CopyOrderExecutor: every method's return
// value is set directly on the struct before the call under test.
type Executor struct {
	PlaceResult domain.PlacedOrder
	PlaceErr    error

	Balance    decimal.Decimal
	BalanceErr error

	ShareBal    decimal.Decimal
	ShareBalErr error

	BestBidAsk decimal.Decimal
	PriceErr   error

	OpenOrders []domain.CopyOrder

	CancelCalls int
	CancelErr   error
}

func (e *Executor) PlaceLimitOrder(ctx context.Context, order domain.CopyOrder) (domain.PlacedOrder, error) {
	return e.PlaceResult, e.PlaceErr
}
func (e *Executor) CancelOrder(ctx context.Context, clobOrderID string) error {
	e.CancelCalls++
	return e.CancelErr
}
func (e *Executor) CancelAll(ctx context.Context) error { return nil }
func (e *Executor) GetOpenOrders(ctx context.Context) ([]domain.CopyOrder, error) {
	return e.OpenOrders, nil
}
func (e *Executor) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	return e.Balance, e.BalanceErr
}
func (e *Executor) ShareBalance(ctx context.Context, tokenID string) (decimal.Decimal, error) {
	return e.ShareBal, e.ShareBalErr
}
func (e *Executor) BestPrice(ctx context.Context, assetID string, side string) (decimal.Decimal, error) {
	return e.BestBidAsk, e.PriceErr
}

// WhaleStore is an in-memory ports.WhaleStorage.
type WhaleStore struct {
	mu     sync.Mutex
	whales map[string]domain.Whale
	trades map[string][]domain.WhaleTrade
}

func NewWhaleStore() *WhaleStore {
	return &WhaleStore{whales: make(map[string]domain.Whale), trades: make(map[string][]domain.WhaleTrade)}
}

func (s *WhaleStore) ApplyCoreSchema(ctx context.Context) error { return nil }

func (s *WhaleStore) UpsertWhale(ctx context.Context, w domain.Whale) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.whales[w.Address] = w
	return nil
}

func (s *WhaleStore) GetWhale(ctx context.Context, address string) (domain.Whale, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.whales[address]
	return w, ok, nil
}

func (s *WhaleStore) ListWhales(ctx context.Context, onlyActive bool) ([]domain.Whale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Whale
	for _, w := range s.whales {
		if onlyActive && !w.IsActive {
			continue
		}
		out = append(out, w)
	}
	return out, nil
}

func (s *WhaleStore) DeactivateWhale(ctx context.Context, address, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.whales[address]
	if !ok {
		return nil
	}
	w.IsActive = false
	w.DeactivationReason = reason
	w.DeactivatedAt = &at
	s.whales[address] = w
	return nil
}

func (s *WhaleStore) SaveWhaleTrade(ctx context.Context, t domain.WhaleTrade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades[t.Wallet] = append(s.trades[t.Wallet], t)
	return nil
}

func (s *WhaleStore) ListRecentTrades(ctx context.Context, wallet string, limit int) ([]domain.WhaleTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	trades := s.trades[wallet]
	if len(trades) > limit {
		trades = trades[len(trades)-limit:]
	}
	return trades, nil
}

func (s *WhaleStore) ListTradesSince(ctx context.Context, wallet string, since time.Time) ([]domain.WhaleTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.WhaleTrade
	for _, t := range s.trades[wallet] {
		if t.Timestamp.After(since) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *WhaleStore) MarkTradeResolved(ctx context.Context, tradeID string, pnlUSDC decimal.Decimal) error {
	return nil
}

// FillApplier is a scriptable ports.FillApplier.
type FillApplier struct {
	mu     sync.Mutex
	Orders []domain.CopyOrder
	Err    error
}

func NewFillApplier() *FillApplier { return &FillApplier{} }

func (f *FillApplier) ApplyFill(ctx context.Context, order domain.CopyOrder) error {
	if f.Err != nil {
		return f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Orders = append(f.Orders, order)
	return nil
}

// BasketStore is an in-memory ports.BasketStorage.
type BasketStore struct {
	mu      sync.Mutex
	baskets map[string]domain.WhaleBasket
	signals []domain.ConsensusSignal
}

func NewBasketStore() *BasketStore {
	return &BasketStore{baskets: make(map[string]domain.WhaleBasket)}
}

func (s *BasketStore) SaveBasket(ctx context.Context, b domain.WhaleBasket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baskets[b.ID] = b
	return nil
}

func (s *BasketStore) GetBasket(ctx context.Context, id string) (domain.WhaleBasket, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.baskets[id]
	return b, ok, nil
}

func (s *BasketStore) ListBaskets(ctx context.Context) ([]domain.WhaleBasket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.WhaleBasket
	for _, b := range s.baskets {
		out = append(out, b)
	}
	return out, nil
}

func (s *BasketStore) SaveConsensusSignal(ctx context.Context, sig domain.ConsensusSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals, sig)
	return nil
}

func (s *BasketStore) ListRecentSignals(ctx context.Context, limit int) ([]domain.ConsensusSignal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sigs := s.signals
	if len(sigs) > limit {
		sigs = sigs[len(sigs)-limit:]
	}
	return sigs, nil
}

// Notifier is a recording ports.Notifier: every Notify call's events are
// appended to Events, in order, for the test to assert against.
type Notifier struct {
	mu     sync.Mutex
	Events []domain.Event
	Err    error
}

func NewNotifier() *Notifier { return &Notifier{} }

func (n *Notifier) Notify(ctx context.Context, events []domain.Event) error {
	if n.Err != nil {
		return n.Err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Events = append(n.Events, events...)
	return nil
}

// AllEvents returns a snapshot of every event recorded so far.
func (n *Notifier) AllEvents() []domain.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.Event, len(n.Events))
	copy(out, n.Events)
	return out
}

// Resolver is a scriptable ports.MarketResolver.
type Resolver struct {
	Outcomes map[string]Outcome
}

// Outcome is one scripted FetchMarketOutcome response.
type Outcome struct {
	Yes, No  decimal.Decimal
	Resolved bool
	Err      error
}

func NewResolver() *Resolver { return &Resolver{Outcomes: make(map[string]Outcome)} }

func (r *Resolver) FetchMarketOutcome(ctx context.Context, conditionID string) (decimal.Decimal, decimal.Decimal, bool, error) {
	o, ok := r.Outcomes[conditionID]
	if !ok {
		return decimal.Zero, decimal.Zero, false, nil
	}
	return o.Yes, o.No, o.Resolved, o.Err
}

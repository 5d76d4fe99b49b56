package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polybot/internal/adapters/storage"
	"github.com/alejandrodnm/polybot/internal/domain"
)

func openTestStore(t *testing.T) *storage.CoreStore {
	t.Helper()
	cs, err := storage.OpenCoreStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })
	return cs
}

func TestCoreStore_UpsertAndGetWhale(t *testing.T) {
	cs := openTestStore(t)
	ctx := context.Background()

	w := domain.Whale{
		Address:        "0xwhale",
		Classification: domain.ClassificationInformed,
		TotalTrades:    40,
		ResolvedTrades: 30,
		Wins:           20,
		WinRate:        decimal.NewFromFloat(66.6),
		SharpeLike:     decimal.NewFromFloat(1.2),
		KellyFraction:  decimal.NewFromFloat(0.05),
		ExpectedValue:  decimal.NewFromFloat(12.5),
		FirstSeenAt:    time.Now().UTC().Truncate(time.Second),
		LastTradeAt:    time.Now().UTC().Truncate(time.Second),
		IsActive:       true,
	}
	require.NoError(t, cs.UpsertWhale(ctx, w))

	got, ok, err := cs.GetWhale(ctx, "0xwhale")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.ClassificationInformed, got.Classification)
	assert.True(t, got.KellyFraction.Equal(decimal.NewFromFloat(0.05)))
	assert.True(t, got.IsActive)
}

func TestCoreStore_UpsertWhale_UpdatesOnConflict(t *testing.T) {
	cs := openTestStore(t)
	ctx := context.Background()

	base := domain.Whale{Address: "0xwhale", Classification: domain.ClassificationUnknown, FirstSeenAt: time.Now().UTC(), IsActive: true}
	require.NoError(t, cs.UpsertWhale(ctx, base))

	base.Classification = domain.ClassificationInformed
	base.TotalTrades = 5
	require.NoError(t, cs.UpsertWhale(ctx, base))

	got, ok, err := cs.GetWhale(ctx, "0xwhale")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.ClassificationInformed, got.Classification)
	assert.Equal(t, 5, got.TotalTrades)
}

func TestCoreStore_GetWhale_NotFound(t *testing.T) {
	cs := openTestStore(t)
	_, ok, err := cs.GetWhale(context.Background(), "0xnobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCoreStore_ListWhales_OnlyActiveFilter(t *testing.T) {
	cs := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, cs.UpsertWhale(ctx, domain.Whale{Address: "0xa", FirstSeenAt: time.Now().UTC(), IsActive: true}))
	require.NoError(t, cs.UpsertWhale(ctx, domain.Whale{Address: "0xb", FirstSeenAt: time.Now().UTC(), IsActive: false}))

	all, err := cs.ListWhales(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := cs.ListWhales(ctx, true)
	require.NoError(t, err)
	assert.Len(t, active, 1)
	assert.Equal(t, "0xa", active[0].Address)
}

func TestCoreStore_DeactivateWhale(t *testing.T) {
	cs := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, cs.UpsertWhale(ctx, domain.Whale{Address: "0xa", FirstSeenAt: time.Now().UTC(), IsActive: true}))
	require.NoError(t, cs.DeactivateWhale(ctx, "0xa", "noisy", time.Now().UTC()))

	got, ok, err := cs.GetWhale(ctx, "0xa")
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, got.IsActive)
	assert.Equal(t, "noisy", got.DeactivationReason)
	require.NotNil(t, got.DeactivatedAt)
}

func TestCoreStore_SaveAndListWhaleTrades(t *testing.T) {
	cs := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	trades := []domain.WhaleTrade{
		{ID: "t1", Wallet: "0xa", MarketID: "0xm", AssetID: "tok", Side: "BUY", Size: decimal.NewFromInt(10), Price: decimal.NewFromFloat(0.5), Notional: decimal.NewFromInt(5), Timestamp: now.Add(-time.Minute)},
		{ID: "t2", Wallet: "0xa", MarketID: "0xm", AssetID: "tok", Side: "SELL", Size: decimal.NewFromInt(5), Price: decimal.NewFromFloat(0.6), Notional: decimal.NewFromFloat(3), Timestamp: now},
	}
	for _, tr := range trades {
		require.NoError(t, cs.SaveWhaleTrade(ctx, tr))
	}

	recent, err := cs.ListRecentTrades(ctx, "0xa", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "t2", recent[0].ID) // ordered by timestamp DESC

	since, err := cs.ListTradesSince(ctx, "0xa", now.Add(-30*time.Second))
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, "t2", since[0].ID)
}

func TestCoreStore_SaveWhaleTrade_DuplicateIDIsNoop(t *testing.T) {
	cs := openTestStore(t)
	ctx := context.Background()

	tr := domain.WhaleTrade{ID: "t1", Wallet: "0xa", MarketID: "0xm", AssetID: "tok", Side: "BUY",
		Size: decimal.NewFromInt(10), Price: decimal.NewFromFloat(0.5), Notional: decimal.NewFromInt(5), Timestamp: time.Now().UTC()}
	require.NoError(t, cs.SaveWhaleTrade(ctx, tr))
	require.NoError(t, cs.SaveWhaleTrade(ctx, tr))

	got, err := cs.ListRecentTrades(ctx, "0xa", 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestCoreStore_MarkTradeResolved(t *testing.T) {
	cs := openTestStore(t)
	ctx := context.Background()

	tr := domain.WhaleTrade{ID: "t1", Wallet: "0xa", MarketID: "0xm", AssetID: "tok", Side: "BUY",
		Size: decimal.NewFromInt(10), Price: decimal.NewFromFloat(0.5), Notional: decimal.NewFromInt(5), Timestamp: time.Now().UTC()}
	require.NoError(t, cs.SaveWhaleTrade(ctx, tr))
	require.NoError(t, cs.MarkTradeResolved(ctx, "t1", decimal.NewFromInt(3)))

	got, err := cs.ListRecentTrades(ctx, "0xa", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Resolved)
	assert.True(t, got[0].PnLUSDC.Equal(decimal.NewFromInt(3)))
}

func TestCoreStore_SaveAndGetBasket(t *testing.T) {
	cs := openTestStore(t)
	ctx := context.Background()

	b := domain.WhaleBasket{ID: "b1", Name: "top-informed", Wallets: []string{"0xa", "0xb"}, CreatedAt: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, cs.SaveBasket(ctx, b))

	got, ok, err := cs.GetBasket(ctx, "b1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "top-informed", got.Name)
	assert.ElementsMatch(t, []string{"0xa", "0xb"}, got.Wallets)
}

func TestCoreStore_SaveBasket_ReplacesWalletSet(t *testing.T) {
	cs := openTestStore(t)
	ctx := context.Background()

	b := domain.WhaleBasket{ID: "b1", Name: "core", Wallets: []string{"0xa", "0xb"}, CreatedAt: time.Now().UTC()}
	require.NoError(t, cs.SaveBasket(ctx, b))

	b.Wallets = []string{"0xc"}
	require.NoError(t, cs.SaveBasket(ctx, b))

	got, ok, err := cs.GetBasket(ctx, "b1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"0xc"}, got.Wallets)
}

func TestCoreStore_ListBaskets(t *testing.T) {
	cs := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, cs.SaveBasket(ctx, domain.WhaleBasket{ID: "b1", Name: "a", Wallets: []string{"0xa"}, CreatedAt: time.Now().UTC()}))
	require.NoError(t, cs.SaveBasket(ctx, domain.WhaleBasket{ID: "b2", Name: "b", Wallets: []string{"0xb", "0xc"}, CreatedAt: time.Now().UTC()}))

	all, err := cs.ListBaskets(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCoreStore_SaveAndListConsensusSignals(t *testing.T) {
	cs := openTestStore(t)
	ctx := context.Background()

	sig := domain.ConsensusSignal{
		ID: "s1", Source: "b1", IsBasket: true, MarketID: "0xm", AssetID: "tok", Direction: "BUY",
		ReferencePrice: decimal.NewFromFloat(0.5), TotalNotional: decimal.NewFromInt(1000),
		ContributorCount: 3, GeneratedAt: time.Now().UTC().Truncate(time.Second),
		MinutesToResolution: decimal.NewFromInt(120), PriceRoomToMove: decimal.NewFromFloat(0.3),
	}
	require.NoError(t, cs.SaveConsensusSignal(ctx, sig))

	got, err := cs.ListRecentSignals(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].ID)
	assert.True(t, got[0].IsBasket)
	assert.Equal(t, 3, got[0].ContributorCount)
}

func TestCoreStore_SaveConsensusSignal_DuplicateIDIsNoop(t *testing.T) {
	cs := openTestStore(t)
	ctx := context.Background()

	sig := domain.ConsensusSignal{ID: "s1", MarketID: "0xm", AssetID: "tok", Direction: "BUY", GeneratedAt: time.Now().UTC()}
	require.NoError(t, cs.SaveConsensusSignal(ctx, sig))
	require.NoError(t, cs.SaveConsensusSignal(ctx, sig))

	got, err := cs.ListRecentSignals(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestCoreStore_CopyOrderLifecycle(t *testing.T) {
	cs := openTestStore(t)
	ctx := context.Background()

	o := domain.CopyOrder{
		ID: "o1", SignalID: "s1", MarketID: "0xm", AssetID: "tok", Side: "BUY",
		Strategy: domain.SizingFixed, Size: decimal.NewFromInt(100), LimitPrice: decimal.NewFromFloat(0.5),
		Notional: decimal.NewFromInt(50), Status: domain.CopyOrderPending, CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, cs.SaveCopyOrder(ctx, o))

	require.NoError(t, cs.UpdateCopyOrderStatus(ctx, "o1", domain.CopyOrderSubmitted, ""))

	open, err := cs.GetOpenCopyOrders(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, domain.CopyOrderSubmitted, open[0].Status)
	assert.NotNil(t, open[0].SubmittedAt)

	require.NoError(t, cs.UpdateCopyOrderFill(ctx, "o1", decimal.NewFromInt(100), decimal.NewFromFloat(0.52), domain.CopyOrderFilled, time.Now().UTC()))

	open, err = cs.GetOpenCopyOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, open) // FILLED is no longer "open"
}

func TestCoreStore_WasSubmitted(t *testing.T) {
	cs := openTestStore(t)
	ctx := context.Background()

	ok, err := cs.WasSubmitted(ctx, "sig-1", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	o := domain.CopyOrder{
		ID: "o1", SignalID: "sig-1", MarketID: "0xm", AssetID: "tok", Side: "BUY",
		Strategy: domain.SizingFixed, Status: domain.CopyOrderPending, CreatedAt: time.Now().UTC(),
		Size: decimal.Zero, LimitPrice: decimal.Zero, Notional: decimal.Zero,
	}
	require.NoError(t, cs.SaveCopyOrder(ctx, o))

	ok, err = cs.WasSubmitted(ctx, "sig-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cs.WasSubmitted(ctx, "sig-1", -time.Hour) // impossible window, no match
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCoreStore_PositionLifecycle(t *testing.T) {
	cs := openTestStore(t)
	ctx := context.Background()

	p := domain.Position{
		ID: "p1", MarketID: "0xm", AssetID: "tok", Side: "YES", EntrySignalID: "s1",
		AvgEntryPrice: decimal.NewFromFloat(0.4), Size: decimal.NewFromInt(100), CostBasis: decimal.NewFromInt(40),
		Status: domain.PositionOpen, OpenedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, cs.SavePosition(ctx, p))

	open, err := cs.GetOpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.True(t, open[0].Size.Equal(decimal.NewFromInt(100)))

	markedAt := time.Now().UTC().Truncate(time.Second)
	p.Mark(decimal.NewFromFloat(0.45), markedAt)
	require.NoError(t, cs.UpdatePosition(ctx, p))
	marked, ok, err := cs.GetPositionByMarket(ctx, "0xm", "tok")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, marked.CurrentMark.Equal(decimal.NewFromFloat(0.45)))
	assert.True(t, marked.UnrealizedPnLUSDC.Equal(decimal.NewFromInt(5))) // 0.45*100 - 40
	require.NotNil(t, marked.LastPriceUpdateAt)

	p.Status = domain.PositionClosed
	p.RealizedPnLUSDC = decimal.NewFromInt(20)
	closedAt := time.Now().UTC()
	p.ClosedAt = &closedAt
	p.ExitReason = domain.ExitTakeProfit
	require.NoError(t, cs.UpdatePosition(ctx, p))

	open, err = cs.GetOpenPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	got, ok, err := cs.GetPositionByMarket(ctx, "0xm", "tok")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.PositionClosed, got.Status)
	assert.Equal(t, domain.ExitTakeProfit, got.ExitReason)
	require.NotNil(t, got.ClosedAt)
}

func TestCoreStore_GetPositionByMarket_NotFound(t *testing.T) {
	cs := openTestStore(t)
	_, ok, err := cs.GetPositionByMarket(context.Background(), "0xnowhere", "tok")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCoreStore_RuntimeConfig_DefaultsWhenUnset(t *testing.T) {
	cs := openTestStore(t)
	cfg, err := cs.LoadRuntimeConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultRuntimeConfig().CopyStrategy, cfg.CopyStrategy)
}

func TestCoreStore_RuntimeConfig_SaveAndLoadRoundTrips(t *testing.T) {
	cs := openTestStore(t)
	ctx := context.Background()

	cfg := domain.DefaultRuntimeConfig()
	cfg.Paused = true
	cfg.BaseCopyAmount = decimal.NewFromInt(250)
	cfg.Version = 1
	require.NoError(t, cs.SaveRuntimeConfig(ctx, cfg))

	got, err := cs.LoadRuntimeConfig(ctx)
	require.NoError(t, err)
	assert.True(t, got.Paused)
	assert.True(t, got.BaseCopyAmount.Equal(decimal.NewFromInt(250)))
	assert.Equal(t, 1, got.Version)
}

func TestCoreStore_RuntimeConfig_SaveOverwritesPreviousVersion(t *testing.T) {
	cs := openTestStore(t)
	ctx := context.Background()

	cfg := domain.DefaultRuntimeConfig()
	cfg.Version = 1
	require.NoError(t, cs.SaveRuntimeConfig(ctx, cfg))

	cfg.Version = 2
	cfg.Paused = true
	require.NoError(t, cs.SaveRuntimeConfig(ctx, cfg))

	got, err := cs.LoadRuntimeConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.True(t, got.Paused)
}

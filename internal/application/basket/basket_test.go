package basket

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polybot/internal/application/corecontext"
	"github.com/alejandrodnm/polybot/internal/application/registry"
	"github.com/alejandrodnm/polybot/internal/domain"
	"github.com/alejandrodnm/polybot/internal/ports"
	"github.com/alejandrodnm/polybot/internal/testutil"
)

type fakeRuntimeConfigStore struct{ cfg domain.RuntimeConfig }

func (f *fakeRuntimeConfigStore) LoadRuntimeConfig(ctx context.Context) (domain.RuntimeConfig, error) {
	return f.cfg, nil
}
func (f *fakeRuntimeConfigStore) SaveRuntimeConfig(ctx context.Context, cfg domain.RuntimeConfig) error {
	f.cfg = cfg
	return nil
}

func newCore(cfg domain.RuntimeConfig) *corecontext.Core {
	return corecontext.New(&fakeRuntimeConfigStore{cfg: cfg}, cfg)
}

func newEngine(t *testing.T, basketStore *testutil.BasketStore, reg *registry.Registry, cfg domain.RuntimeConfig, notifier *testutil.Notifier) *Engine {
	t.Helper()
	var n ports.Notifier
	if notifier != nil {
		n = notifier
	}
	e, err := New(context.Background(), basketStore, reg, nil, newCore(cfg), n, nil)
	require.NoError(t, err)
	return e
}

func trade(wallet, marketID, assetID, side string, notional decimal.Decimal, at time.Time) domain.WhaleTrade {
	return domain.WhaleTrade{
		ID: wallet + "-" + side + "-" + at.String(), Wallet: wallet, MarketID: marketID, AssetID: assetID,
		Side: side, Price: decimal.NewFromFloat(0.5), Notional: notional, Timestamp: at, IsTracked: true,
	}
}

func TestEngine_SoloSignal_EmittedForInformedWhaleOutsideAnyBasket(t *testing.T) {
	store := testutil.NewBasketStore()
	whales := testutil.NewWhaleStore()
	reg, err := registry.New(context.Background(), whales)
	require.NoError(t, err)
	require.NoError(t, reg.Upsert(context.Background(), domain.Whale{Address: "0xsolo", Classification: domain.ClassificationInformed, IsActive: true, FirstSeenAt: time.Now().UTC()}))

	notifier := testutil.NewNotifier()
	cfg := domain.DefaultRuntimeConfig()
	e := newEngine(t, store, reg, cfg, notifier)

	e.handle(context.Background(), trade("0xsolo", "0xm", "tok", "BUY", decimal.NewFromInt(5000), time.Now().UTC()))

	sigs, err := store.ListRecentSignals(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.False(t, sigs[0].IsBasket)
	assert.Equal(t, "0xsolo", sigs[0].Source)

	assert.Len(t, notifier.AllEvents(), 1)
	assert.Equal(t, domain.EventSignalGenerated, notifier.AllEvents()[0].Kind)
}

func TestEngine_NoSoloSignal_ForUnknownWallet(t *testing.T) {
	store := testutil.NewBasketStore()
	reg, err := registry.New(context.Background(), testutil.NewWhaleStore())
	require.NoError(t, err)

	cfg := domain.DefaultRuntimeConfig()
	e := newEngine(t, store, reg, cfg, nil)

	e.handle(context.Background(), trade("0xstranger", "0xm", "tok", "BUY", decimal.NewFromInt(5000), time.Now().UTC()))

	sigs, err := store.ListRecentSignals(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, sigs)
}

func TestEngine_BasketConsensus_ArmsOnceThresholdCrossed(t *testing.T) {
	store := testutil.NewBasketStore()
	basket := domain.WhaleBasket{ID: "b1", Name: "core", Wallets: []string{"0xa", "0xb", "0xc", "0xd", "0xe"}, CreatedAt: time.Now().UTC()}
	require.NoError(t, store.SaveBasket(context.Background(), basket))

	reg, err := registry.New(context.Background(), testutil.NewWhaleStore())
	require.NoError(t, err)

	cfg := domain.DefaultRuntimeConfig()
	cfg.BasketEnabled = true
	cfg.BasketMinWallets = 3
	cfg.BasketMaxWallets = 10
	cfg.BasketConsensusThreshold = decimal.NewFromFloat(0.60) // 3/5 wallets
	cfg.BasketHysteresisMargin = decimal.NewFromFloat(0.10)
	cfg.BasketTimeWindow = time.Hour

	notifier := testutil.NewNotifier()
	e := newEngine(t, store, reg, cfg, notifier)

	now := time.Now().UTC()
	e.handle(context.Background(), trade("0xa", "0xm", "tok", "BUY", decimal.NewFromInt(1000), now))
	e.handle(context.Background(), trade("0xb", "0xm", "tok", "BUY", decimal.NewFromInt(1000), now))

	sigs, err := store.ListRecentSignals(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, sigs, "2/5 members hasn't crossed the 0.60 threshold yet")

	// third member crosses 3/5 = 0.60, which arms the window.
	e.handle(context.Background(), trade("0xc", "0xm", "tok", "BUY", decimal.NewFromInt(1000), now))

	sigs, err = store.ListRecentSignals(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.True(t, sigs[0].IsBasket)
	assert.Equal(t, 3, sigs[0].ContributorCount)
	require.Len(t, notifier.AllEvents(), 1)
}

func TestEngine_BasketConsensus_DoesNotReArmOnSubsequentMember(t *testing.T) {
	store := testutil.NewBasketStore()
	basket := domain.WhaleBasket{ID: "b1", Name: "core", Wallets: []string{"0xa", "0xb", "0xc", "0xd", "0xe"}, CreatedAt: time.Now().UTC()}
	require.NoError(t, store.SaveBasket(context.Background(), basket))

	reg, err := registry.New(context.Background(), testutil.NewWhaleStore())
	require.NoError(t, err)

	cfg := domain.DefaultRuntimeConfig()
	cfg.BasketEnabled = true
	cfg.BasketMinWallets = 3
	cfg.BasketMaxWallets = 10
	cfg.BasketConsensusThreshold = decimal.NewFromFloat(0.60)
	cfg.BasketHysteresisMargin = decimal.NewFromFloat(0.10)
	cfg.BasketTimeWindow = time.Hour

	e := newEngine(t, store, reg, cfg, nil)

	now := time.Now().UTC()
	for _, w := range []string{"0xa", "0xb", "0xc"} {
		e.handle(context.Background(), trade(w, "0xm", "tok", "BUY", decimal.NewFromInt(1000), now))
	}
	e.handle(context.Background(), trade("0xd", "0xm", "tok", "BUY", decimal.NewFromInt(1000), now))

	sigs, err := store.ListRecentSignals(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, sigs, 1, "only the disarmed->armed transition should emit")
}

func TestEngine_BasketDisabled_EmitsNothing(t *testing.T) {
	store := testutil.NewBasketStore()
	basket := domain.WhaleBasket{ID: "b1", Name: "core", Wallets: []string{"0xa", "0xb", "0xc"}, CreatedAt: time.Now().UTC()}
	require.NoError(t, store.SaveBasket(context.Background(), basket))

	reg, err := registry.New(context.Background(), testutil.NewWhaleStore())
	require.NoError(t, err)

	cfg := domain.DefaultRuntimeConfig()
	cfg.BasketEnabled = false
	e := newEngine(t, store, reg, cfg, nil)

	e.handle(context.Background(), trade("0xa", "0xm", "tok", "BUY", decimal.NewFromInt(1000), time.Now().UTC()))

	sigs, err := store.ListRecentSignals(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, sigs)
}

func TestEngine_UntrackedTrade_IsIgnored(t *testing.T) {
	store := testutil.NewBasketStore()
	reg, err := registry.New(context.Background(), testutil.NewWhaleStore())
	require.NoError(t, err)
	require.NoError(t, reg.Upsert(context.Background(), domain.Whale{Address: "0xsolo", Classification: domain.ClassificationInformed, IsActive: true, FirstSeenAt: time.Now().UTC()}))

	cfg := domain.DefaultRuntimeConfig()
	e := newEngine(t, store, reg, cfg, nil)

	untracked := trade("0xsolo", "0xm", "tok", "BUY", decimal.NewFromInt(1), time.Now().UTC())
	untracked.IsTracked = false
	e.handle(context.Background(), untracked)

	sigs, err := store.ListRecentSignals(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, sigs)
}

func TestEngine_Reload_PicksUpNewBasketMembership(t *testing.T) {
	store := testutil.NewBasketStore()
	reg, err := registry.New(context.Background(), testutil.NewWhaleStore())
	require.NoError(t, err)

	cfg := domain.DefaultRuntimeConfig()
	e := newEngine(t, store, reg, cfg, nil)

	require.NoError(t, store.SaveBasket(context.Background(), domain.WhaleBasket{ID: "b1", Name: "core", Wallets: []string{"0xnew"}, CreatedAt: time.Now().UTC()}))
	require.NoError(t, e.Reload(context.Background()))

	e.mu.Lock()
	n := len(e.baskets)
	e.mu.Unlock()
	assert.Equal(t, 1, n)
}

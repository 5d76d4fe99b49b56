package registry

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polybot/internal/application/corecontext"
	"github.com/alejandrodnm/polybot/internal/domain"
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

func seedTrades(t *testing.T, store *testutil.WhaleStore, wallet string, n int, notional, pnl decimal.Decimal) {
	t.Helper()
	now := time.Now().UTC()
	for i := 0; i < n; i++ {
		require.NoError(t, store.SaveWhaleTrade(context.Background(), domain.WhaleTrade{
			ID: wallet + "-" + string(rune('a'+i)), Wallet: wallet, MarketID: "0xm", AssetID: "tok",
			Side: "BUY", Size: decimal.NewFromInt(10), Price: decimal.NewFromFloat(0.5),
			Notional: notional, Timestamp: now.Add(-time.Duration(i) * time.Minute),
			Resolved: true, PnLUSDC: pnl,
		}))
	}
}

func TestScorer_PromotesUnknownWhaleThatClearsQualityGate(t *testing.T) {
	store := testutil.NewWhaleStore()
	reg, err := New(context.Background(), store)
	require.NoError(t, err)
	require.NoError(t, reg.Upsert(context.Background(), domain.Whale{
		Address: "0xa", Classification: domain.ClassificationUnknown, TotalTrades: 150, IsActive: true, FirstSeenAt: time.Now().UTC().Add(-5 * 30 * 24 * time.Hour),
	}))
	seedTrades(t, store, "0xa", 30, decimal.NewFromInt(500), decimal.NewFromInt(60))

	cfg := domain.DefaultRuntimeConfig()
	notifier := testutil.NewNotifier()
	scorer := NewScorer(reg, store, newCore(cfg), notifier)

	require.NoError(t, scorer.Run(context.Background()))

	w, ok := reg.Lookup("0xa")
	require.True(t, ok)
	assert.Equal(t, domain.ClassificationInformed, w.Classification)
	assert.True(t, w.IsActive)

	events := notifier.AllEvents()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventWhaleReclassified, events[0].Kind)
	assert.Equal(t, "0xa", events[0].Wallet)
}

func TestScorer_DeactivatesInformedWhaleWhoseEdgeDecayed(t *testing.T) {
	store := testutil.NewWhaleStore()
	reg, err := New(context.Background(), store)
	require.NoError(t, err)
	require.NoError(t, reg.Upsert(context.Background(), domain.Whale{
		Address: "0xb", Classification: domain.ClassificationInformed, TotalTrades: 50, IsActive: true, FirstSeenAt: time.Now().UTC(),
	}))
	seedTrades(t, store, "0xb", 30, decimal.NewFromInt(100), decimal.NewFromInt(-10))

	cfg := domain.DefaultRuntimeConfig()
	notifier := testutil.NewNotifier()
	scorer := NewScorer(reg, store, newCore(cfg), notifier)

	require.NoError(t, scorer.Run(context.Background()))

	w, ok := reg.Lookup("0xb")
	require.True(t, ok)
	assert.Equal(t, domain.ClassificationUnknown, w.Classification)
	assert.False(t, w.IsActive)
	assert.NotEmpty(t, w.DeactivationReason)

	events := notifier.AllEvents()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventWhaleReclassified, events[0].Kind)
}

func TestScorer_NoClassificationChangeEmitsNoEvent(t *testing.T) {
	store := testutil.NewWhaleStore()
	reg, err := New(context.Background(), store)
	require.NoError(t, err)
	require.NoError(t, reg.Upsert(context.Background(), domain.Whale{
		Address: "0xc", Classification: domain.ClassificationUnknown, TotalTrades: 1, IsActive: true, FirstSeenAt: time.Now().UTC(),
	}))
	// no trades at all: stays below MinResolvedForSignal, classification
	// remains unknown across the pass.

	cfg := domain.DefaultRuntimeConfig()
	notifier := testutil.NewNotifier()
	scorer := NewScorer(reg, store, newCore(cfg), notifier)

	require.NoError(t, scorer.Run(context.Background()))

	w, ok := reg.Lookup("0xc")
	require.True(t, ok)
	assert.Equal(t, domain.ClassificationUnknown, w.Classification)
	assert.Empty(t, notifier.AllEvents())
}

func TestScorer_DecayByTimeWindowUsesListTradesSince(t *testing.T) {
	store := testutil.NewWhaleStore()
	reg, err := New(context.Background(), store)
	require.NoError(t, err)
	require.NoError(t, reg.Upsert(context.Background(), domain.Whale{
		Address: "0xd", Classification: domain.ClassificationUnknown, TotalTrades: 150, IsActive: true, FirstSeenAt: time.Now().UTC().Add(-5 * 30 * 24 * time.Hour),
	}))
	seedTrades(t, store, "0xd", 30, decimal.NewFromInt(500), decimal.NewFromInt(60))

	cfg := domain.DefaultRuntimeConfig()
	cfg.DecayCheckMode = domain.DecayByTimeWindow
	cfg.DecayTimeWindow = 24 * time.Hour
	scorer := NewScorer(reg, store, newCore(cfg), nil)

	require.NoError(t, scorer.Run(context.Background()))

	w, ok := reg.Lookup("0xd")
	require.True(t, ok)
	assert.Equal(t, domain.ClassificationInformed, w.Classification)
}

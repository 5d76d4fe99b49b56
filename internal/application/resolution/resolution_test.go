package resolution

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polybot/internal/application/corecontext"
	"github.com/alejandrodnm/polybot/internal/application/position"
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

func newTestCore() *corecontext.Core {
	cfg := domain.DefaultRuntimeConfig()
	return corecontext.New(&fakeRuntimeConfigStore{cfg: cfg}, cfg)
}

func seedOpenPosition(t *testing.T, store *testutil.CopyStore, marketID, assetID, side string) {
	t.Helper()
	require.NoError(t, store.SavePosition(context.Background(), domain.Position{
		ID:       "pos-" + marketID + "-" + assetID,
		MarketID: marketID,
		AssetID:  assetID,
		Side:     side,
		Size:     decimal.NewFromInt(100),
		Status:   domain.PositionOpen,
	}))
}

func TestRunOnce_ResolvesSettledMarket(t *testing.T) {
	store := testutil.NewCopyStore()
	seedOpenPosition(t, store, "0xm", "yes-token", "YES")

	resolver := testutil.NewResolver()
	resolver.Outcomes["0xm"] = testutil.Outcome{Yes: decimal.NewFromInt(1), No: decimal.Zero, Resolved: true}

	mgr := position.New(store, nil, newTestCore(), nil, nil)
	listener := New(store, resolver, mgr, nil)

	n, err := listener.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	p, ok, err := store.GetPositionByMarket(context.Background(), "0xm", "yes-token")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.PositionResolved, p.Status)
}

func TestRunOnce_SkipsStillOpenMarket(t *testing.T) {
	store := testutil.NewCopyStore()
	seedOpenPosition(t, store, "0xm", "yes-token", "YES")

	resolver := testutil.NewResolver()
	resolver.Outcomes["0xm"] = testutil.Outcome{Resolved: false}

	mgr := position.New(store, nil, newTestCore(), nil, nil)
	listener := New(store, resolver, mgr, nil)

	n, err := listener.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	p, ok, err := store.GetPositionByMarket(context.Background(), "0xm", "yes-token")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.PositionOpen, p.Status)
}

func TestRunOnce_PicksPayoutForHeldSide(t *testing.T) {
	store := testutil.NewCopyStore()
	seedOpenPosition(t, store, "0xm", "no-token", "NO")

	resolver := testutil.NewResolver()
	resolver.Outcomes["0xm"] = testutil.Outcome{Yes: decimal.NewFromInt(1), No: decimal.Zero, Resolved: true}

	mgr := position.New(store, nil, newTestCore(), nil, nil)
	listener := New(store, resolver, mgr, nil)

	n, err := listener.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	p, _, err := store.GetPositionByMarket(context.Background(), "0xm", "no-token")
	require.NoError(t, err)
	assert.True(t, p.RealizedPnLUSDC.IsZero() || p.RealizedPnLUSDC.IsNegative())
}

func TestRunOnce_NoOpenPositions(t *testing.T) {
	store := testutil.NewCopyStore()
	resolver := testutil.NewResolver()
	mgr := position.New(store, nil, newTestCore(), nil, nil)
	listener := New(store, resolver, mgr, nil)

	n, err := listener.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

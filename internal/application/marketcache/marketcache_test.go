package marketcache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polybot/internal/domain"
)

type fakeDiscovery struct {
	markets []domain.ActiveMarket
	err     error
}

func (f *fakeDiscovery) FetchActiveMarkets(ctx context.Context) ([]domain.ActiveMarket, error) {
	return f.markets, f.err
}

func TestCache_RefreshAndGet(t *testing.T) {
	disc := &fakeDiscovery{markets: []domain.ActiveMarket{
		{ConditionID: "0x1", YesTokenID: "y1", NoTokenID: "n1"},
	}}
	c := New(disc)

	require.NoError(t, c.Refresh(context.Background()))

	m, ok := c.Get("0x1")
	require.True(t, ok)
	assert.Equal(t, "y1", m.YesTokenID)

	_, ok = c.Get("0x2")
	assert.False(t, ok)
}

func TestCache_AssetIDs(t *testing.T) {
	disc := &fakeDiscovery{markets: []domain.ActiveMarket{
		{ConditionID: "0x1", YesTokenID: "y1", NoTokenID: "n1"},
		{ConditionID: "0x2", YesTokenID: "y2", NoTokenID: "n2"},
		{ConditionID: "0x3"}, // no token IDs yet, shouldn't panic or contribute
	}}
	c := New(disc)
	require.NoError(t, c.Refresh(context.Background()))

	ids := c.AssetIDs()
	assert.ElementsMatch(t, []string{"y1", "n1", "y2", "n2"}, ids)
}

func TestCache_RefreshReplacesStaleEntries(t *testing.T) {
	disc := &fakeDiscovery{markets: []domain.ActiveMarket{{ConditionID: "0x1"}}}
	c := New(disc)
	require.NoError(t, c.Refresh(context.Background()))

	disc.markets = []domain.ActiveMarket{{ConditionID: "0x2"}}
	require.NoError(t, c.Refresh(context.Background()))

	_, ok := c.Get("0x1")
	assert.False(t, ok)
	_, ok = c.Get("0x2")
	assert.True(t, ok)
}

package polymarket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapOrderBooks_SortsBidsDescendingAsksAscending(t *testing.T) {
	raw := []orderBookResponse{
		{
			AssetID: "token_yes_001",
			Bids: []bookEntryRaw{
				{Price: "0.65", Size: "100"},
				{Price: "0.70", Size: "50"},
			},
			Asks: []bookEntryRaw{
				{Price: "0.75", Size: "30"},
				{Price: "0.72", Size: "40"},
			},
		},
	}

	books := mapOrderBooks(raw)
	book, ok := books["token_yes_001"]
	require.True(t, ok)

	require.Len(t, book.Bids, 2)
	assert.Greater(t, book.Bids[0].Price, book.Bids[1].Price)

	require.Len(t, book.Asks, 2)
	assert.Less(t, book.Asks[0].Price, book.Asks[1].Price)
}

func TestMapBookEntries_DropsZeroOrNegative(t *testing.T) {
	raw := []bookEntryRaw{
		{Price: "0.50", Size: "10"},
		{Price: "0", Size: "10"},
		{Price: "0.40", Size: "0"},
	}

	entries := mapBookEntries(raw, true)
	require.Len(t, entries, 1)
	assert.InDelta(t, 0.50, entries[0].Price, 0.0001)
}

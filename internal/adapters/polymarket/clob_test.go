package polymarket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchBooksBatch_Success(t *testing.T) {
	fixture := `[
		{"asset_id": "token_yes_001", "bids": [{"price": "0.65", "size": "100"}, {"price": "0.70", "size": "50"}],
		 "asks": [{"price": "0.72", "size": "40"}, {"price": "0.75", "size": "30"}]},
		{"asset_id": "token_no_001", "bids": [{"price": "0.27", "size": "20"}],
		 "asks": [{"price": "0.29", "size": "15"}]}
	]`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/books", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(fixture))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	books, err := client.fetchBooksBatch(context.Background(), []string{"token_yes_001", "token_no_001"})
	require.NoError(t, err)
	require.Len(t, books, 2)

	yes := books["token_yes_001"]
	assert.InDelta(t, 0.70, yes.BestBid(), 0.001)
	assert.InDelta(t, 0.72, yes.BestAsk(), 0.001)
}

func TestFetchBooksBatch_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	_, err := client.fetchBooksBatch(context.Background(), []string{"token_yes_001"})
	assert.Error(t, err)
}

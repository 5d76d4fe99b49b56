package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polybot/internal/domain"
)

const (
	tradesPerPage  = 1000
	tradesMaxPages = 3
)

type rawDataTrade struct {
	ID          string      `json:"id"`
	ConditionID string      `json:"conditionId"`
	Asset       string      `json:"asset"`
	Side        string      `json:"side"`
	Price       json.Number `json:"price"`
	Size        json.Number `json:"size"`
	Timestamp   json.Number `json:"timestamp"`
	Status      string      `json:"status"`
	ProxyWallet string      `json:"proxyWallet"`
}

// WalletHistory implements ports.WhaleTradeHistory over the Data API's
// per-wallet trade feed. It embeds *Client for the rate-limited get/retry
// machinery and carries the notional threshold needed to set
// domain.WhaleTrade.IsTracked, since the Data API has no such concept.
type WalletHistory struct {
	*Client
	minNotional decimal.Decimal
}

// NewWalletHistory wraps c with the minimum notional a trade must clear to
// be considered "tracked" for basket/copy signal purposes.
func NewWalletHistory(c *Client, minNotional decimal.Decimal) *WalletHistory {
	return &WalletHistory{Client: c, minNotional: minNotional}
}

// FetchWalletTrades implements ports.WhaleTradeHistory: every trade by
// wallet strictly newer than since.Timestamp, in the order the Data API
// returns them, paginated until the feed is exhausted, the since boundary
// is crossed, or tradesMaxPages pages have been read.
func (h *WalletHistory) FetchWalletTrades(ctx context.Context, wallet string, since domain.WhaleTrade) ([]domain.WhaleTrade, error) {
	var all []domain.WhaleTrade

	for page := 0; page < tradesMaxPages; page++ {
		offset := page * tradesPerPage
		url := fmt.Sprintf("%s/trades?user=%s&limit=%d&offset=%d",
			h.dataBase, wallet, tradesPerPage, offset)

		var resp []rawDataTrade
		if err := h.get(ctx, h.clobLimiter, url, &resp); err != nil {
			return nil, fmt.Errorf("data-api.FetchWalletTrades: %w", err)
		}
		if len(resp) == 0 {
			break
		}

		stop := false
		for _, rt := range resp {
			ts := parseTradeTimestamp(rt.Timestamp)
			if !since.Timestamp.IsZero() && !ts.After(since.Timestamp) {
				stop = true
				continue
			}

			price, _ := decimal.NewFromString(rt.Price.String())
			size, _ := decimal.NewFromString(rt.Size.String())

			all = append(all, domain.NewWhaleTrade(
				rt.ID, coalesceWallet(rt.ProxyWallet, wallet), rt.ConditionID, rt.Asset, rt.Side,
				size, price, h.minNotional, ts,
			))
		}

		slog.Debug("fetched wallet trades page",
			"wallet", wallet[:min(8, len(wallet))]+"...",
			"page", page, "count", len(resp), "total", len(all))

		if stop || len(resp) < tradesPerPage {
			break
		}
	}

	return all, nil
}

func coalesceWallet(proxyWallet, fallback string) string {
	if proxyWallet != "" {
		return proxyWallet
	}
	return fallback
}

func parseTradeTimestamp(n json.Number) time.Time {
	s := n.String()
	// Try as unix timestamp (seconds or milliseconds)
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		if sec > 1e12 {
			return time.Unix(sec/1000, (sec%1000)*int64(time.Millisecond))
		}
		return time.Unix(sec, 0)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		sec := int64(f)
		nsec := int64((f - float64(sec)) * 1e9)
		return time.Unix(sec, nsec)
	}
	// Try as ISO string
	for _, layout := range []string{
		time.RFC3339Nano, time.RFC3339,
		"2006-01-02T15:04:05.000Z", "2006-01-02T15:04:05Z",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

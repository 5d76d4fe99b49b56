package polymarket

// discovery.go — ports.MarketDiscovery over the Gamma API. Copy trading
// cares about any active/liquid market (not just ones with LP rewards
// configured) and needs both outcome token IDs up front.

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polybot/internal/domain"
)

const (
	gammaActiveMarketsPath = "/markets"
	activeMarketsPageSize  = 100
	activeMarketsMaxPages  = 20
)

// FetchActiveMarkets implements ports.MarketDiscovery: every market Gamma
// reports as active and not closed, paginated until exhausted.
func (c *Client) FetchActiveMarkets(ctx context.Context) ([]domain.ActiveMarket, error) {
	var all []domain.ActiveMarket

	for page := 0; page < activeMarketsMaxPages; page++ {
		offset := page * activeMarketsPageSize
		url := fmt.Sprintf("%s%s?active=true&closed=false&limit=%d&offset=%d",
			c.gammaBase, gammaActiveMarketsPath, activeMarketsPageSize, offset)

		var resp gammaMarketsResponse
		if err := c.get(ctx, c.gammaLimiter, url, &resp); err != nil {
			return nil, fmt.Errorf("discovery.FetchActiveMarkets: %w", err)
		}
		if len(resp) == 0 {
			break
		}

		for _, gm := range resp {
			m, ok := gammaToActiveMarket(gm)
			if !ok {
				continue
			}
			all = append(all, m)
		}

		slog.Debug("fetched active markets page", "page", page, "count", len(resp), "total", len(all))
		if len(resp) < activeMarketsPageSize {
			break
		}
	}

	return all, nil
}

func gammaToActiveMarket(gm gammaMarket) (domain.ActiveMarket, bool) {
	var tokenIDs []string
	if err := json.Unmarshal([]byte(gm.ClobTokenIDs), &tokenIDs); err != nil || len(tokenIDs) != 2 {
		return domain.ActiveMarket{}, false
	}

	volume, _ := gm.Volume24h.Float64()
	liquidity, _ := gm.Liquidity.Float64()

	return domain.ActiveMarket{
		ConditionID: gm.ConditionID,
		Question:    gm.Question,
		YesTokenID:  tokenIDs[0],
		NoTokenID:   tokenIDs[1],
		Volume24h:   decimal.NewFromFloat(volume).Round(domain.MoneyScale),
		Liquidity:   decimal.NewFromFloat(liquidity).Round(domain.MoneyScale),
		EndDate:     parseGammaEndDate(gm.EndDateISO),
		Active:      gm.Active,
		Closed:      gm.Closed,
	}, true
}

func parseGammaEndDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05Z"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

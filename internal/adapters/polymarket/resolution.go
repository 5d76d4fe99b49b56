package polymarket

// resolution.go — ports.MarketResolver over the Gamma API's own closed/
// outcomePrices fields, used to resolve positions without a dedicated
// on-chain event feed.

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

const gammaMarketByConditionPath = "/markets"

// FetchMarketOutcome implements ports.MarketResolver.
func (c *Client) FetchMarketOutcome(ctx context.Context, conditionID string) (yesPrice, noPrice decimal.Decimal, resolved bool, err error) {
	url := fmt.Sprintf("%s%s?condition_ids=%s", c.gammaBase, gammaMarketByConditionPath, conditionID)

	var resp gammaMarketsResponse
	if err := c.get(ctx, c.gammaLimiter, url, &resp); err != nil {
		return decimal.Zero, decimal.Zero, false, fmt.Errorf("resolution.FetchMarketOutcome: %w", err)
	}
	if len(resp) == 0 {
		return decimal.Zero, decimal.Zero, false, nil
	}

	gm := resp[0]
	if !gm.Closed || gm.OutcomePrices == "" {
		return decimal.Zero, decimal.Zero, false, nil
	}

	var prices []string
	if err := json.Unmarshal([]byte(gm.OutcomePrices), &prices); err != nil || len(prices) != 2 {
		return decimal.Zero, decimal.Zero, false, fmt.Errorf("resolution.FetchMarketOutcome: malformed outcomePrices for %s", conditionID)
	}

	yes, err1 := decimal.NewFromString(prices[0])
	no, err2 := decimal.NewFromString(prices[1])
	if err1 != nil || err2 != nil {
		return decimal.Zero, decimal.Zero, false, fmt.Errorf("resolution.FetchMarketOutcome: unparseable outcomePrices for %s", conditionID)
	}

	return yes, no, true, nil
}

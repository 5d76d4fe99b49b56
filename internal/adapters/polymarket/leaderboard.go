package polymarket

// leaderboard.go — ports.Leaderboard over the Data API's public leaderboard
// endpoint, used once by the Whale Seeder to bootstrap candidate wallets.

import (
	"context"
	"fmt"
)

const leaderboardPath = "/leaderboard"

type leaderboardEntry struct {
	ProxyWallet string `json:"proxyWallet"`
}

// TopTraders implements ports.Leaderboard: the Data API's own ranking of
// wallets by volume traded, most active first.
func (c *Client) TopTraders(ctx context.Context, limit int) ([]string, error) {
	url := fmt.Sprintf("%s%s?window=all&limit=%d&orderBy=vol", c.dataBase, leaderboardPath, limit)

	var resp []leaderboardEntry
	if err := c.get(ctx, c.clobLimiter, url, &resp); err != nil {
		return nil, fmt.Errorf("leaderboard.TopTraders: %w", err)
	}

	wallets := make([]string, 0, len(resp))
	for _, e := range resp {
		if e.ProxyWallet != "" {
			wallets = append(wallets, e.ProxyWallet)
		}
	}
	return wallets, nil
}

package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// WalletClassification is the Scorer's verdict on a wallet's trading style.
type WalletClassification string

const (
	// ClassificationUnknown is the default for a newly-seen wallet, or one
	// that clears none of the other heuristics.
	ClassificationUnknown WalletClassification = "unknown"
	// ClassificationInformed means the wallet trades enough, has a long
	// enough history, and wins often enough to be worth copying. Only
	// informed wallets are eligible to enter baskets or drive solo signals.
	ClassificationInformed WalletClassification = "informed"
	// ClassificationMarketMaker means the wallet holds both outcomes of the
	// same market at once and churns them quickly — a liquidity provider,
	// not a directional bet, and must never be copied.
	ClassificationMarketMaker WalletClassification = "market_maker"
	// ClassificationBot means the wallet trades at a frequency no directional
	// trader would sustain — an algorithmic market participant, not copied.
	ClassificationBot WalletClassification = "bot"
)

// Whale is a tracked wallet and its rolling performance metrics.
type Whale struct {
	Address            string
	Classification     WalletClassification
	TotalTrades        int
	ResolvedTrades     int
	Wins               int
	WinRate            decimal.Decimal // wins / resolved, 0..100
	SharpeLike         decimal.Decimal // mean(pnl_pct) / stddev(pnl_pct) over the rolling window
	KellyFraction      decimal.Decimal // f* = winRate - (1-winRate)/payoffRatio, clamped [0, MaxKellyFraction]
	ExpectedValue      decimal.Decimal // mean USDC P&L per resolved trade, net of assumed slippage
	FirstSeenAt        time.Time
	LastTradeAt        time.Time
	IsActive           bool
	DeactivatedAt      *time.Time
	DeactivationReason string
}

// IsEligibleForBaskets reports whether this whale may be auto-added to a
// basket. Only a currently-active, informed wallet qualifies — dry-run or
// manual overrides are handled by the caller, never by loosening this gate.
func (w Whale) IsEligibleForBaskets() bool {
	return w.IsActive && w.Classification == ClassificationInformed
}

// WhaleTrade is a single observed trade by a tracked whale, normalized from
// either the live stream or the historical poller.
type WhaleTrade struct {
	ID        string
	Wallet    string
	MarketID  string // condition_id
	AssetID   string // token_id (ERC-1155 outcome token)
	Side      string // "BUY" or "SELL"
	Size      decimal.Decimal
	Price     decimal.Decimal
	Notional  decimal.Decimal
	Timestamp time.Time
	IsTracked bool            // notional >= RuntimeConfig.TrackedWhaleMinNotional
	Resolved  bool            // true once the underlying market has resolved
	PnLUSDC   decimal.Decimal // realized P&L, populated once Resolved
}

// NewWhaleTrade builds a WhaleTrade from raw fields, computing Notional and
// the IsTracked flag against the configured threshold.
func NewWhaleTrade(id, wallet, marketID, assetID, side string, size, price, minTrackedNotional decimal.Decimal, ts time.Time) WhaleTrade {
	notional := Notional(price, size)
	return WhaleTrade{
		ID:        id,
		Wallet:    wallet,
		MarketID:  marketID,
		AssetID:   assetID,
		Side:      side,
		Size:      size,
		Price:     price,
		Notional:  notional,
		Timestamp: ts,
		IsTracked: notional.GreaterThanOrEqual(minTrackedNotional),
	}
}

// ClassifyWallet buckets a wallet into one of the four WalletClassification
// values from its full trade history. Checked in order: a wallet that looks
// like a market maker or a bot is never informed, regardless of win rate —
// mis-bucketing either as informed would put their noise into every basket
// that samples them.
func ClassifyWallet(trades []WhaleTrade, totalTrades int, firstSeenAt, now time.Time) WalletClassification {
	if isMarketMaker(trades) {
		return ClassificationMarketMaker
	}
	if isBot(trades, now) {
		return ClassificationBot
	}
	if isInformed(trades, totalTrades, firstSeenAt, now) {
		return ClassificationInformed
	}
	return ClassificationUnknown
}

// isMarketMaker detects a wallet that holds both outcomes of the same market
// at once and churns its positions quickly. A leg key is (MarketID, AssetID);
// the wallet is dual-siding a market the moment it holds a nonzero net
// position in two different asset IDs under the same MarketID at once. Return
// true only if dual-siding was observed at least once AND the median holding
// time across every closed leg is under an hour — a wallet that dual-sided
// once years ago but otherwise holds for weeks is not a market maker.
func isMarketMaker(trades []WhaleTrade) bool {
	sorted := sortedByTime(trades)

	type legState struct {
		net      decimal.Decimal
		openedAt time.Time
	}
	legs := make(map[string]*legState)                   // MarketID|AssetID -> state
	openLegsByMarket := make(map[string]map[string]bool) // MarketID -> AssetID -> open
	var dualSided bool
	var holdingDurations []time.Duration

	for _, t := range sorted {
		key := t.MarketID + "|" + t.AssetID
		leg, ok := legs[key]
		if !ok {
			leg = &legState{}
			legs[key] = leg
		}
		wasOpen := leg.net.IsPositive()

		delta := t.Size
		if t.Side == "SELL" {
			delta = delta.Neg()
		}
		if !wasOpen && delta.IsPositive() {
			leg.openedAt = t.Timestamp
		}
		leg.net = leg.net.Add(delta)

		isOpenNow := leg.net.IsPositive()
		if isOpenNow && !wasOpen {
			if openLegsByMarket[t.MarketID] == nil {
				openLegsByMarket[t.MarketID] = make(map[string]bool)
			}
			openLegsByMarket[t.MarketID][t.AssetID] = true
			if len(openLegsByMarket[t.MarketID]) >= 2 {
				dualSided = true
			}
		} else if !isOpenNow && wasOpen {
			delete(openLegsByMarket[t.MarketID], t.AssetID)
			if !leg.openedAt.IsZero() {
				holdingDurations = append(holdingDurations, t.Timestamp.Sub(leg.openedAt))
			}
		}
	}

	if !dualSided || len(holdingDurations) == 0 {
		return false
	}
	return medianDuration(holdingDurations) < time.Hour
}

// isBot detects a wallet trading at a frequency no directional trader would
// sustain: more than 100 trades in the last 30 days, with a median gap
// between consecutive trades under a second.
func isBot(trades []WhaleTrade, now time.Time) bool {
	cutoff := now.Add(-30 * 24 * time.Hour)
	var recent []WhaleTrade
	for _, t := range trades {
		if t.Timestamp.After(cutoff) {
			recent = append(recent, t)
		}
	}
	if len(recent) <= 100 {
		return false
	}
	sorted := sortedByTime(recent)
	gaps := make([]time.Duration, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		gaps = append(gaps, sorted[i].Timestamp.Sub(sorted[i-1].Timestamp))
	}
	return medianDuration(gaps) < time.Second
}

// isInformed requires a long, deep, winning track record: at least 100 total
// trades, at least four months of history since first seen, and a resolved
// win rate of at least 60%. A wallet with no resolved trades yet cannot be
// informed — there is nothing to judge its edge on.
func isInformed(trades []WhaleTrade, totalTrades int, firstSeenAt, now time.Time) bool {
	if totalTrades < 100 {
		return false
	}
	if now.Sub(firstSeenAt) < 4*30*24*time.Hour {
		return false
	}

	var resolved, wins int
	for _, t := range trades {
		if !t.Resolved {
			continue
		}
		resolved++
		if t.PnLUSDC.IsPositive() {
			wins++
		}
	}
	if resolved == 0 {
		return false
	}
	winRate := decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(resolved)))
	return winRate.GreaterThanOrEqual(mustDecimal("0.60"))
}

func sortedByTime(trades []WhaleTrade) []WhaleTrade {
	sorted := make([]WhaleTrade, len(trades))
	copy(sorted, trades)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })
	return sorted
}

// medianDuration returns the median of a duration sample. Callers guarantee
// a non-empty slice.
func medianDuration(durations []time.Duration) time.Duration {
	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DecayCheckMode selects how the Scorer evaluates whether a whale's edge is
// decaying — resolves an explicitly left-open question by making the
// behavior configurable rather than picking one interpretation.
type DecayCheckMode string

const (
	DecayByTradeCount DecayCheckMode = "trade_count"
	DecayByTimeWindow DecayCheckMode = "time_window"
)

// RuntimeConfig is the mutable, persisted operator configuration — distinct
// from the static YAML config, since every field here can change while the
// process runs and every task must observe new values within one
// config_version bump without restarting.
type RuntimeConfig struct {
	Version int

	CopyEnabled bool
	Paused      bool
	DryRun      bool

	CopyStrategy   SizingStrategy
	Bankroll       decimal.Decimal
	BaseCopyAmount decimal.Decimal

	BasketEnabled            bool
	BasketConsensusThreshold decimal.Decimal // e.g. 0.80
	BasketHysteresisMargin   decimal.Decimal // disarm below threshold - margin
	BasketTimeWindow         time.Duration
	BasketMinWallets         int
	BasketMaxWallets         int

	// MinMinutesToResolution and MinPriceRoomToMove gate a signal on timing:
	// too close to market close, or the price already pinned near 0/1,
	// means there's no room left for the copy trade to profit from.
	MinMinutesToResolution decimal.Decimal
	MinPriceRoomToMove     decimal.Decimal

	MarketDiscoveryEnabled  bool
	MarketDiscoveryInterval time.Duration
	MarketMinVolume         decimal.Decimal
	MarketMinLiquidity      decimal.Decimal

	WhaleSeederEnabled   bool
	WhaleSeederSkipTopN  int
	WhaleSeederMinTrades int

	WhalePollerInterval time.Duration

	// ScorerInterval is how often every active whale's performance metrics
	// are recomputed and its classification re-evaluated for decay.
	ScorerInterval time.Duration

	ChainListenerEnabled bool

	DefaultStopLossPct      decimal.Decimal
	DefaultTakeProfitPct    decimal.Decimal
	PositionMonitorInterval time.Duration

	TrackedWhaleMinNotional decimal.Decimal
	MinResolvedForSignal    int
	MinSignalWinRate        decimal.Decimal
	MinTotalTradesForSignal int
	MinSignalNotional       decimal.Decimal
	MaxSignalNotional       decimal.Decimal
	// SignalNotionalLiquidityPct additionally caps a signal's notional at this
	// fraction of the market's cached liquidity — a whale's own size can be
	// sized well within MaxSignalNotional and still be too large for a thin
	// market to fill without moving the price.
	SignalNotionalLiquidityPct decimal.Decimal
	MinSignalEV                decimal.Decimal
	// AssumedSlippagePct feeds only the Scorer's expected-value calculation —
	// it is not the Executor's slippage gate. See MaxSlippagePct for that.
	AssumedSlippagePct decimal.Decimal
	// MaxSlippagePct is the Copy Engine's slippage gate, run before an order
	// is handed to the Executor: an order whose achievable price has drifted
	// past this from the signal's reference price fails with
	// slippage_exceeded rather than submitting.
	MaxSlippagePct    decimal.Decimal
	SignalDedupWindow time.Duration

	DecayCheckMode  DecayCheckMode
	DecayTradeCount int           // sample size for DecayByTradeCount
	DecayTimeWindow time.Duration // lookback for DecayByTimeWindow

	// MaxKellyFraction caps the Kelly-optimal sizing fraction a single
	// whale's track record can imply, independent of BaseCopyAmount.
	MaxKellyFraction decimal.Decimal

	// DailyLossLimitUSDC trips the risk gate's circuit breaker for the rest
	// of the trading day once cumulative realized loss crosses it.
	DailyLossLimitUSDC decimal.Decimal

	// MaxOpenPositions and MaxPositionPct are two of the Copy Engine's risk
	// gate checks: the count of simultaneously open positions, and a single
	// position's notional as a fraction of bankroll.
	MaxOpenPositions int
	MaxPositionPct   decimal.Decimal

	// FillTimeout bounds how long a submitted or partially filled order may
	// rest without any fill before the Executor cancels it outright.
	FillTimeout time.Duration
}

// DefaultRuntimeConfig returns sane, conservative defaults matching the
// field-for-field defaults a fresh operator deployment should start from.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		Version:                    1,
		CopyEnabled:                false,
		Paused:                     false,
		DryRun:                     true,
		CopyStrategy:               SizingFixed,
		Bankroll:                   decimal.NewFromInt(1000),
		BaseCopyAmount:             decimal.NewFromInt(50),
		BasketEnabled:              false,
		BasketConsensusThreshold:   mustDecimal("0.80"),
		BasketHysteresisMargin:     mustDecimal("0.10"),
		BasketTimeWindow:           48 * time.Hour,
		BasketMinWallets:           5,
		BasketMaxWallets:           10,
		MinMinutesToResolution:     mustDecimal("60"),
		MinPriceRoomToMove:         mustDecimal("0.03"),
		MarketDiscoveryEnabled:     false,
		MarketDiscoveryInterval:    5 * time.Minute,
		MarketMinVolume:            decimal.NewFromInt(10_000),
		MarketMinLiquidity:         decimal.NewFromInt(5_000),
		WhaleSeederEnabled:         false,
		WhaleSeederSkipTopN:        10,
		WhaleSeederMinTrades:       100,
		WhalePollerInterval:        24 * time.Hour,
		ScorerInterval:             10 * time.Minute,
		ChainListenerEnabled:       false,
		DefaultStopLossPct:         mustDecimal("15.00"),
		DefaultTakeProfitPct:       mustDecimal("50.00"),
		PositionMonitorInterval:    30 * time.Second,
		TrackedWhaleMinNotional:    decimal.NewFromInt(10_000),
		MinResolvedForSignal:       5,
		MinSignalWinRate:           mustDecimal("60.00"),
		MinTotalTradesForSignal:    50,
		MinSignalNotional:          decimal.NewFromInt(50_000),
		MaxSignalNotional:          decimal.NewFromInt(500_000),
		SignalNotionalLiquidityPct: mustDecimal("0.10"),
		MinSignalEV:                decimal.NewFromInt(50),
		AssumedSlippagePct:         mustDecimal("2.00"),
		MaxSlippagePct:             mustDecimal("3.00"),
		SignalDedupWindow:          5 * time.Minute,
		DecayCheckMode:             DecayByTradeCount,
		DecayTradeCount:            30,
		DecayTimeWindow:            14 * 24 * time.Hour,
		MaxKellyFraction:           mustDecimal("0.05"),
		DailyLossLimitUSDC:         decimal.NewFromInt(200),
		MaxOpenPositions:           2,
		MaxPositionPct:             mustDecimal("5.00"),
		FillTimeout:                5 * time.Minute,
	}
}

// ActiveMarket is a market surfaced by market discovery as a candidate for
// signal generation — distinct from the liquidity-reward-eligible Market
// type, since copy-trading cares about volume/liquidity, not reward rates.
type ActiveMarket struct {
	ConditionID string
	Question    string
	YesTokenID  string
	NoTokenID   string
	Volume24h   decimal.Decimal
	Liquidity   decimal.Decimal
	EndDate     time.Time
	Active      bool
	Closed      bool
}

// QualifiesForDiscovery reports whether the market clears the configured
// volume/liquidity floor for signal generation.
func (m ActiveMarket) QualifiesForDiscovery(minVolume, minLiquidity decimal.Decimal) bool {
	if !m.Active || m.Closed {
		return false
	}
	return m.Volume24h.GreaterThanOrEqual(minVolume) && m.Liquidity.GreaterThanOrEqual(minLiquidity)
}

// MinutesToResolution returns the whole minutes remaining until m.EndDate,
// floored at zero for an already-closed or unknown-end-date market.
func (m ActiveMarket) MinutesToResolution(now time.Time) decimal.Decimal {
	if m.EndDate.IsZero() {
		return decimal.Zero
	}
	remaining := m.EndDate.Sub(now).Minutes()
	if remaining < 0 {
		remaining = 0
	}
	return decimal.NewFromFloat(remaining).Round(MoneyScale)
}

// MaxPerWhaleExposurePct caps a single whale's cumulative open notional
// (across every position copied from it) at this fraction of bankroll,
// independent of MaxPositionPct's per-position limit. Fixed by the risk
// gate, not an operator-tunable runtime-config key.
var MaxPerWhaleExposurePct = mustDecimal("20.00")

// MinOrderTimeRoomToMove is the risk gate's order-time price-room floor —
// distinct from MinPriceRoomToMove's basket timing gate, it is re-checked
// against the sized order's own limit price.
var MinOrderTimeRoomToMove = mustDecimal("0.05")

// PriceRoomToMove returns price's distance to whichever of 0 or 1 it is
// closer to — a price already pinned near either boundary has little room
// left to move in either direction.
func PriceRoomToMove(price decimal.Decimal) decimal.Decimal {
	room := price
	other := decimal.NewFromInt(1).Sub(price)
	if other.LessThan(room) {
		room = other
	}
	if room.IsNegative() {
		return decimal.Zero
	}
	return room.Round(MoneyScale)
}

package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func trade(pnl string) ResolvedTrade {
	return ResolvedTrade{PnLUSDC: mustDecimal(pnl)}
}

func TestWinRate_MixedTrades(t *testing.T) {
	trades := []ResolvedTrade{trade("100"), trade("-50"), trade("30"), trade("-10")}
	assert.True(t, WinRate(trades).Equal(mustDecimal("50")))
}

func TestWinRate_Empty(t *testing.T) {
	assert.True(t, WinRate(nil).IsZero())
}

func TestWinRate_AllWins(t *testing.T) {
	trades := []ResolvedTrade{trade("10"), trade("20")}
	assert.True(t, WinRate(trades).Equal(mustDecimal("100")))
}

func TestExpectedValue_Basic(t *testing.T) {
	trades := []ResolvedTrade{trade("100"), trade("-40")}
	assert.True(t, ExpectedValue(trades, decimal.Zero).Equal(mustDecimal("30")))
}

func TestExpectedValue_Empty(t *testing.T) {
	assert.True(t, ExpectedValue(nil, mustDecimal("2.00")).IsZero())
}

func TestExpectedValue_SubtractsAssumedSlippage(t *testing.T) {
	trades := []ResolvedTrade{
		{PnLUSDC: mustDecimal("100"), Notional: mustDecimal("1000")},
		{PnLUSDC: mustDecimal("-40"), Notional: mustDecimal("1000")},
	}
	withoutSlippage := ExpectedValue(trades, decimal.Zero)
	withSlippage := ExpectedValue(trades, mustDecimal("2.00")) // 2% of mean notional 1000 == 20
	assert.True(t, withoutSlippage.Sub(withSlippage).Equal(mustDecimal("20")), "got delta %s", withoutSlippage.Sub(withSlippage))
}

func TestAvgWinLoss_Basic(t *testing.T) {
	trades := []ResolvedTrade{trade("100"), trade("-50"), trade("50"), trade("-10")}
	avgWin, avgLoss := AvgWinLoss(trades)
	assert.True(t, avgWin.Equal(mustDecimal("75")))
	assert.True(t, avgLoss.Equal(mustDecimal("-30")))
}

func TestAvgWinLoss_NoLosses(t *testing.T) {
	trades := []ResolvedTrade{trade("10")}
	_, avgLoss := AvgWinLoss(trades)
	assert.True(t, avgLoss.IsZero())
}

func TestKellyFraction_PositiveEdge(t *testing.T) {
	// 60% win rate, avg win 100, avg loss -50 → payoff ratio 2
	// f* = 0.6 - 0.4/2 = 0.6 - 0.2 = 0.4
	k := KellyFraction(mustDecimal("60"), mustDecimal("100"), mustDecimal("-50"), mustDecimal("0.5"))
	assert.True(t, k.Equal(mustDecimal("0.4")), "got %s", k)
}

func TestKellyFraction_ClampedToMax(t *testing.T) {
	k := KellyFraction(mustDecimal("90"), mustDecimal("100"), mustDecimal("-10"), mustDecimal("0.25"))
	assert.True(t, k.Equal(mustDecimal("0.25")))
}

func TestKellyFraction_NegativeEdgeClampsToZero(t *testing.T) {
	// 30% win rate, payoff ratio 1 → f* = 0.3 - 0.7/1 = -0.4 → clamp 0
	k := KellyFraction(mustDecimal("30"), mustDecimal("50"), mustDecimal("-50"), mustDecimal("0.5"))
	assert.True(t, k.IsZero())
}

func TestKellyFraction_NoLossData(t *testing.T) {
	k := KellyFraction(mustDecimal("80"), mustDecimal("100"), decimal.Zero, mustDecimal("0.5"))
	assert.True(t, k.IsZero())
}

func repeatPct(pct string, n int) []ResolvedTrade {
	trades := make([]ResolvedTrade, n)
	for i := range trades {
		trades[i] = ResolvedTrade{PnLPct: mustDecimal(pct)}
	}
	return trades
}

func TestSharpeLike_FewerThan30TradesIsUndefined(t *testing.T) {
	assert.True(t, SharpeLike([]ResolvedTrade{trade("10")}).IsZero())
	assert.True(t, SharpeLike(nil).IsZero())
	assert.True(t, SharpeLike(repeatPct("0.10", 29)).IsZero())
}

func TestSharpeLike_ZeroVariance(t *testing.T) {
	assert.True(t, SharpeLike(repeatPct("0.05", 30)).IsZero())
}

func TestSharpeLike_PositiveMean(t *testing.T) {
	trades := append(repeatPct("0.10", 15), repeatPct("0.20", 10)...)
	trades = append(trades, repeatPct("-0.05", 5)...)
	s := SharpeLike(trades)
	assert.True(t, s.IsPositive(), "expected positive sharpe-like, got %s", s)
}

func TestMeetsSignalQualityGate_PassesAllChecks(t *testing.T) {
	w := Whale{ResolvedTrades: 10, TotalTrades: 60}
	score := ScoreResult{WinRate: mustDecimal("65"), ExpectedValue: mustDecimal("60")}
	ok := MeetsSignalQualityGate(w, score, 5, 50, mustDecimal("60"), mustDecimal("50"))
	assert.True(t, ok)
}

func TestMeetsSignalQualityGate_FailsOnThinSample(t *testing.T) {
	w := Whale{ResolvedTrades: 2, TotalTrades: 60}
	score := ScoreResult{WinRate: mustDecimal("90"), ExpectedValue: mustDecimal("100")}
	ok := MeetsSignalQualityGate(w, score, 5, 50, mustDecimal("60"), mustDecimal("50"))
	assert.False(t, ok)
}

func TestMeetsSignalQualityGate_FailsOnLowWinRate(t *testing.T) {
	w := Whale{ResolvedTrades: 10, TotalTrades: 60}
	score := ScoreResult{WinRate: mustDecimal("40"), ExpectedValue: mustDecimal("100")}
	ok := MeetsSignalQualityGate(w, score, 5, 50, mustDecimal("60"), mustDecimal("50"))
	assert.False(t, ok)
}

func TestMeetsSignalQualityGate_FailsOnLowEV(t *testing.T) {
	w := Whale{ResolvedTrades: 10, TotalTrades: 60}
	score := ScoreResult{WinRate: mustDecimal("70"), ExpectedValue: mustDecimal("10")}
	ok := MeetsSignalQualityGate(w, score, 5, 50, mustDecimal("60"), mustDecimal("50"))
	assert.False(t, ok)
}

func TestScoreWallet_ComposesAllMetrics(t *testing.T) {
	trades := []ResolvedTrade{
		{PnLUSDC: mustDecimal("100"), PnLPct: mustDecimal("0.10")},
		{PnLUSDC: mustDecimal("-40"), PnLPct: mustDecimal("-0.04")},
		{PnLUSDC: mustDecimal("80"), PnLPct: mustDecimal("0.08")},
	}
	result := ScoreWallet(trades, mustDecimal("0.5"), mustDecimal("2.00"))
	assert.True(t, result.WinRate.GreaterThan(decimal.Zero))
	assert.True(t, result.ExpectedValue.GreaterThan(decimal.Zero))
}

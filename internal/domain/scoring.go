package domain

import (
	"math"

	"github.com/shopspring/decimal"
)

// ResolvedTrade is the minimal shape the Scorer needs from a whale's trade
// history: the realized USDC P&L and percentage return of one closed trade.
type ResolvedTrade struct {
	PnLUSDC  decimal.Decimal
	PnLPct   decimal.Decimal // PnLUSDC / notional risked, as a fraction (0.10 == +10%)
	Notional decimal.Decimal // notional risked, used by ExpectedValue's slippage term
}

// WinRate returns wins/total as a 0..100 decimal percentage. Returns zero
// for an empty slice.
func WinRate(trades []ResolvedTrade) decimal.Decimal {
	if len(trades) == 0 {
		return decimal.Zero
	}
	wins := 0
	for _, t := range trades {
		if t.PnLUSDC.IsPositive() {
			wins++
		}
	}
	return decimal.NewFromInt(int64(wins)).
		Div(decimal.NewFromInt(int64(len(trades)))).
		Mul(decimal.NewFromInt(100)).
		Round(MoneyScale)
}

// ExpectedValue returns the per-trade expected value net of assumed
// execution slippage: p·mean_win − q·mean_loss − assumed_slippage·mean_notional,
// where p is the win rate and q = 1−p. assumedSlippagePct is a 0..100
// percentage, matching the rest of the package's *Pct fields. Returns zero
// for an empty slice.
func ExpectedValue(trades []ResolvedTrade, assumedSlippagePct decimal.Decimal) decimal.Decimal {
	if len(trades) == 0 {
		return decimal.Zero
	}
	p := WinRate(trades).Div(decimal.NewFromInt(100))
	q := decimal.NewFromInt(1).Sub(p)
	avgWin, avgLoss := AvgWinLoss(trades)

	notionalSum := decimal.Zero
	for _, t := range trades {
		notionalSum = notionalSum.Add(t.Notional)
	}
	meanNotional := notionalSum.Div(decimal.NewFromInt(int64(len(trades))))
	slippage := assumedSlippagePct.Div(decimal.NewFromInt(100)).Mul(meanNotional)

	return p.Mul(avgWin).Sub(q.Mul(avgLoss.Abs())).Sub(slippage).Round(MoneyScale)
}

// SharpeLike returns mean(PnLPct)/stddev(PnLPct) over the trade set — a
// risk-adjusted return measure in the spirit of the Sharpe ratio, but
// computed per-trade rather than per-period since whale trades arrive at
// irregular intervals with no fixed holding period to annualize against.
// Returns zero when there are fewer than 30 trades (undefined for ranking
// purposes) or zero variance.
func SharpeLike(trades []ResolvedTrade) decimal.Decimal {
	n := len(trades)
	if n < 30 {
		return decimal.Zero
	}

	// Identical returns have zero variance; decide that on the exact decimal
	// values, since float64 summation can leave a tiny nonzero spread.
	allEqual := true
	for _, t := range trades[1:] {
		if !t.PnLPct.Equal(trades[0].PnLPct) {
			allEqual = false
			break
		}
	}
	if allEqual {
		return decimal.Zero
	}

	pcts := make([]float64, n)
	var sum float64
	for i, t := range trades {
		f, _ := t.PnLPct.Float64()
		pcts[i] = f
		sum += f
	}
	mean := sum / float64(n)

	var sqDiff float64
	for _, p := range pcts {
		d := p - mean
		sqDiff += d * d
	}
	variance := sqDiff / float64(n-1)
	stddev := math.Sqrt(variance)
	if stddev == 0 {
		return decimal.Zero
	}

	return decimal.NewFromFloat(mean / stddev).Round(MoneyScale)
}

// KellyFraction returns the Kelly-optimal fraction of bankroll to risk per
// trade, f* = W - (1-W)/R, where W is the win probability (0..1) and R is
// the average win/average loss payoff ratio. Clamped to [0, maxFraction]:
// negative Kelly means no edge (never size a position on it), and Kelly is
// capped so a single noisy small sample can't imply betting the bankroll.
func KellyFraction(winRatePct decimal.Decimal, avgWin, avgLoss decimal.Decimal, maxFraction decimal.Decimal) decimal.Decimal {
	if avgLoss.IsZero() || avgWin.IsZero() {
		return decimal.Zero
	}
	w := winRatePct.Div(decimal.NewFromInt(100))
	payoffRatio := avgWin.Div(avgLoss.Abs())
	if payoffRatio.IsZero() {
		return decimal.Zero
	}

	loss := decimal.NewFromInt(1).Sub(w)
	kelly := w.Sub(loss.Div(payoffRatio))

	if kelly.IsNegative() {
		return decimal.Zero
	}
	if kelly.GreaterThan(maxFraction) {
		return maxFraction
	}
	return kelly.Round(MoneyScale)
}

// AvgWinLoss splits a resolved-trade set into the average winning and
// average losing PnLUSDC. Either return value is zero if that side of the
// split is empty.
func AvgWinLoss(trades []ResolvedTrade) (avgWin, avgLoss decimal.Decimal) {
	winSum, lossSum := decimal.Zero, decimal.Zero
	wins, losses := 0, 0
	for _, t := range trades {
		if t.PnLUSDC.IsPositive() {
			winSum = winSum.Add(t.PnLUSDC)
			wins++
		} else if t.PnLUSDC.IsNegative() {
			lossSum = lossSum.Add(t.PnLUSDC)
			losses++
		}
	}
	if wins > 0 {
		avgWin = winSum.Div(decimal.NewFromInt(int64(wins))).Round(MoneyScale)
	}
	if losses > 0 {
		avgLoss = lossSum.Div(decimal.NewFromInt(int64(losses))).Round(MoneyScale)
	}
	return avgWin, avgLoss
}

// ScoreResult bundles every metric the Scorer computes for one whale pass.
type ScoreResult struct {
	WinRate       decimal.Decimal
	SharpeLike    decimal.Decimal
	KellyFraction decimal.Decimal
	ExpectedValue decimal.Decimal
}

// ScoreWallet runs the full metric suite over a rolling window of resolved
// trades (the most recent N, per RuntimeConfig — the caller is responsible
// for windowing before calling this).
func ScoreWallet(trades []ResolvedTrade, maxKellyFraction, assumedSlippagePct decimal.Decimal) ScoreResult {
	wr := WinRate(trades)
	avgWin, avgLoss := AvgWinLoss(trades)
	return ScoreResult{
		WinRate:       wr,
		SharpeLike:    SharpeLike(trades),
		KellyFraction: KellyFraction(wr, avgWin, avgLoss, maxKellyFraction),
		ExpectedValue: ExpectedValue(trades, assumedSlippagePct),
	}
}

// MeetsSignalQualityGate reports whether a whale's current score and trade
// counts clear the thresholds required before its trades can drive a copy
// signal. minResolved guards against scoring noise from a thin sample;
// minTotalTrades filters out wallets that are active but too rarely traded
// to be statistically meaningful.
func MeetsSignalQualityGate(w Whale, score ScoreResult, minResolved, minTotalTrades int, minWinRate, minEV decimal.Decimal) bool {
	if w.ResolvedTrades < minResolved {
		return false
	}
	if w.TotalTrades < minTotalTrades {
		return false
	}
	if score.WinRate.LessThan(minWinRate) {
		return false
	}
	if score.ExpectedValue.LessThan(minEV) {
		return false
	}
	return true
}

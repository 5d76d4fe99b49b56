package domain

import (
	"github.com/shopspring/decimal"
)

// MoneyScale is the rounding precision used for every persisted monetary
// value — six fractional digits, matching USDC.e's on-chain precision
// (6 decimals) rather than the display precision most UIs show.
const MoneyScale = 6

// ShareBalanceTolerance is the largest share-count drift between a
// position's recorded size and its on-chain balance that is treated as
// dust/rounding rather than a missed or double-counted fill.
var ShareBalanceTolerance = mustDecimal("0.01")

// Notional returns price × size rounded to MoneyScale.
func Notional(price, size decimal.Decimal) decimal.Decimal {
	return price.Mul(size).Round(MoneyScale)
}

// WeightedAverage returns the size-weighted average of price across fills.
// Returns decimal.Zero if totalSize is zero.
func WeightedAverage(fills []Fill) decimal.Decimal {
	totalSize := decimal.Zero
	totalNotional := decimal.Zero
	for _, f := range fills {
		totalSize = totalSize.Add(f.Size)
		totalNotional = totalNotional.Add(Notional(f.Price, f.Size))
	}
	if totalSize.IsZero() {
		return decimal.Zero
	}
	return totalNotional.Div(totalSize).Round(MoneyScale)
}

// Fill is a minimal (price, size) pair used by WeightedAverage; both
// CopyOrder fills and whale trade fills use this shape.
type Fill struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// SlippagePct returns the signed percentage deviation of observed from
// reference, e.g. SlippagePct(0.52, 0.50) == 4 (observed is 4% worse/higher).
func SlippagePct(observed, reference decimal.Decimal) decimal.Decimal {
	if reference.IsZero() {
		return decimal.Zero
	}
	return observed.Sub(reference).Div(reference).Mul(decimal.NewFromInt(100)).Round(MoneyScale)
}

// PctChange returns the signed percentage change from `from` to `to`.
func PctChange(from, to decimal.Decimal) decimal.Decimal {
	if from.IsZero() {
		return decimal.Zero
	}
	return to.Sub(from).Div(from).Mul(decimal.NewFromInt(100)).Round(MoneyScale)
}

// ClampNotional clamps a sized notional to [min, max]. Returns the clamped
// value and whether clamping was necessary.
func ClampNotional(sized, min, max decimal.Decimal) (decimal.Decimal, bool) {
	if sized.LessThan(min) {
		return min, true
	}
	if sized.GreaterThan(max) {
		return max, true
	}
	return sized, false
}

// mustDecimal parses a literal known at compile time to be valid; used only
// for package-level constants where a parse error would be a coding mistake.
func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic("domain: invalid decimal literal " + s + ": " + err.Error())
	}
	return d
}

package domain

// PlacedOrder is the CLOB's acknowledgement of an order submission — the
// wire-level amounts come back as micro-USDC floats, independent of the
// decimal.Decimal bookkeeping CopyOrder/Position use internally.
type PlacedOrder struct {
	CLOBOrderID string
	Status      string
	TakenAmount float64
	MadeAmount  float64
}

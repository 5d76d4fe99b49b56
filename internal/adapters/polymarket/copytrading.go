package polymarket

// copytrading.go — ports.CopyOrderExecutor over the CLOB API.
//
// Order placement needs both BUY entries and SELL exits and works in
// domain.CopyOrder/decimal.Decimal throughout, so it gets its own thin
// wrapper around AuthClient rather than extending TradingClient's method
// set, which stays scoped to cancellation, neg-risk lookup, and on-chain
// balance reads shared across both sides.

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polybot/internal/domain"
)

// CopyExecutor implements ports.CopyOrderExecutor.
type CopyExecutor struct {
	auth    *AuthClient
	trading *TradingClient // on-chain balance/neg-risk lookups
}

// NewCopyExecutor constructs a CopyExecutor over a shared AuthClient and
// TradingClient, both already holding the CLOB credentials and RPC
// connection CopyExecutor needs.
func NewCopyExecutor(auth *AuthClient, trading *TradingClient) *CopyExecutor {
	return &CopyExecutor{auth: auth, trading: trading}
}

// PlaceLimitOrder signs and submits a GTC limit order for either side.
func (ce *CopyExecutor) PlaceLimitOrder(ctx context.Context, order domain.CopyOrder) (domain.PlacedOrder, error) {
	if err := ce.auth.EnsureCreds(ctx); err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("copytrading.PlaceLimitOrder: creds: %w", err)
	}

	price, _ := order.LimitPrice.Float64()
	// buildSignedOrder takes size as a USDC amount; order.Size is in shares.
	size, _ := order.Size.Mul(order.LimitPrice).Float64()

	negRisk, err := ce.trading.IsNegRisk(ctx, order.AssetID)
	if err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("copytrading.PlaceLimitOrder: neg-risk check: %w", err)
	}

	signed, err := ce.auth.buildSignedOrder(order.AssetID, price, size, order.Side, negRisk)
	if err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("copytrading.PlaceLimitOrder: sign: %w", err)
	}

	body := clobOrderRequest{
		Order: clobOrderBody{
			Salt:          json.Number(signed.Order.Salt.String()),
			Maker:         signed.Order.Maker.Hex(),
			Signer:        signed.Order.Signer.Hex(),
			Taker:         signed.Order.Taker.Hex(),
			TokenID:       order.AssetID,
			MakerAmount:   signed.Order.MakerAmount.String(),
			TakerAmount:   signed.Order.TakerAmount.String(),
			Expiration:    signed.Order.Expiration.String(),
			Nonce:         signed.Order.Nonce.String(),
			FeeRateBps:    signed.Order.FeeRateBps.String(),
			Side:          order.Side,
			SignatureType: int(signed.Order.SignatureType.Int64()),
			Signature:     "0x" + hex.EncodeToString(signed.Signature),
		},
		Owner:     ce.auth.creds.APIKey,
		OrderType: "GTC",
	}

	var resp clobOrderResponse
	if err := ce.auth.doL2(ctx, http.MethodPost, "/order", body, &resp); err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("copytrading.PlaceLimitOrder: post: %w", err)
	}
	if !resp.Success || resp.ErrorMsg != "" {
		return domain.PlacedOrder{}, fmt.Errorf("copytrading.PlaceLimitOrder: clob error: %s", resp.ErrorMsg)
	}

	return domain.PlacedOrder{
		CLOBOrderID: resp.OrderID,
		Status:      resp.Status,
		TakenAmount: parseUSDC(resp.TakingAmount),
		MadeAmount:  parseUSDC(resp.MakingAmount),
	}, nil
}

// CancelOrder cancels a resting order by its CLOB order ID.
func (ce *CopyExecutor) CancelOrder(ctx context.Context, clobOrderID string) error {
	return ce.trading.CancelOrder(ctx, clobOrderID)
}

// CancelAll cancels every open order for this wallet.
func (ce *CopyExecutor) CancelAll(ctx context.Context) error {
	return ce.trading.CancelAll(ctx)
}

// GetOpenOrders returns open/partial orders as tracked by the CLOB,
// mapping the /orders response into domain.CopyOrder.
func (ce *CopyExecutor) GetOpenOrders(ctx context.Context) ([]domain.CopyOrder, error) {
	if err := ce.auth.EnsureCreds(ctx); err != nil {
		return nil, fmt.Errorf("copytrading.GetOpenOrders: creds: %w", err)
	}

	var resp clobOrdersResponse
	if err := ce.auth.doL2(ctx, http.MethodGet, "/orders", nil, &resp); err != nil {
		return nil, fmt.Errorf("copytrading.GetOpenOrders: %w", err)
	}

	orders := make([]domain.CopyOrder, 0, len(resp.Data))
	for _, o := range resp.Data {
		orders = append(orders, clobOpenOrderToCopyOrder(o))
	}
	return orders, nil
}

// GetBalance returns the operator wallet's available USDC.e balance.
func (ce *CopyExecutor) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	bal, err := ce.trading.GetBalance(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("copytrading.GetBalance: %w", err)
	}
	return decimal.NewFromFloat(bal).Round(domain.MoneyScale), nil
}

// ShareBalance returns the operator wallet's on-chain ERC-1155 balance for
// a conditional token.
func (ce *CopyExecutor) ShareBalance(ctx context.Context, tokenID string) (decimal.Decimal, error) {
	bal, err := ce.trading.TokenBalance(ctx, tokenID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("copytrading.ShareBalance: %w", err)
	}
	return decimal.NewFromFloat(bal).Round(domain.MoneyScale), nil
}

// BestPrice returns the current best bid (for a SELL) or best ask (for a
// BUY) for assetID.
func (ce *CopyExecutor) BestPrice(ctx context.Context, assetID string, side string) (decimal.Decimal, error) {
	books, err := ce.auth.fetchBooksBatch(ctx, []string{assetID})
	if err != nil {
		return decimal.Zero, fmt.Errorf("copytrading.BestPrice: %w", err)
	}
	book, ok := books[assetID]
	if !ok {
		return decimal.Zero, fmt.Errorf("copytrading.BestPrice: no book for asset %s", assetID)
	}

	var price float64
	if side == "SELL" {
		price = book.BestBid()
	} else {
		price = book.BestAsk()
	}
	if price == 0 {
		return decimal.Zero, fmt.Errorf("copytrading.BestPrice: empty book for asset %s side %s", assetID, side)
	}
	return decimal.NewFromFloat(price).Round(domain.MoneyScale), nil
}

func clobOpenOrderToCopyOrder(o clobOpenOrder) domain.CopyOrder {
	size := parseDecimalStr(o.OriginalSize)
	filled := parseDecimalStr(o.SizeMatched)
	price := parseDecimalStr(o.Price)

	upper := strings.ToUpper(o.Status)
	status := domain.CopyOrderSubmitted
	switch {
	case strings.Contains(upper, "MATCHED"):
		status = domain.CopyOrderFilled
	case strings.Contains(upper, "CANCEL"), strings.Contains(upper, "INVALID"):
		status = domain.CopyOrderCancelled
	}
	if filled.IsPositive() && filled.LessThan(size) {
		status = domain.CopyOrderPartial
	}

	return domain.CopyOrder{
		CLOBOrderID: o.ID,
		MarketID:    o.Market,
		AssetID:     o.AssetID,
		Side:        o.Side,
		Size:        size,
		LimitPrice:  price,
		FilledSize:  filled,
		Status:      status,
		Notional:    domain.Notional(price, size),
	}
}

func parseDecimalStr(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

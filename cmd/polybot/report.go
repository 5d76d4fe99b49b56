package main

import (
	"context"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/polybot/internal/ports"
)

// runReport prints one operator-facing table and exits, mirroring the
// teacher's -table/-validate flags as read-only report switches rather than
// the long-running process.
func runReport(ctx context.Context, ctrl ports.ControlService, kind string) error {
	switch kind {
	case "status":
		return reportStatus(ctx, ctrl)
	case "whales":
		return reportWhales(ctx, ctrl)
	case "baskets":
		return reportBaskets(ctx, ctrl)
	case "positions":
		return reportPositions(ctx, ctrl)
	default:
		return fmt.Errorf("unknown -report kind %q (want status|whales|baskets|positions)", kind)
	}
}

func reportStatus(ctx context.Context, ctrl ports.ControlService) error {
	status, err := ctrl.Status(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("mode:         %s\n", status.Mode)
	fmt.Printf("paused:       %v\n", status.Paused)
	fmt.Printf("copy_enabled: %v\n", status.CopyEnabled)
	if status.Wallet != "" {
		fmt.Printf("wallet:       %s\n", status.Wallet)
		fmt.Printf("balance:      %s USDC\n", status.USDCBalance)
	}
	return nil
}

func reportWhales(ctx context.Context, ctrl ports.ControlService) error {
	whales, err := ctrl.ListWhales(ctx)
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Address", "Class", "Trades", "WinRate", "Kelly", "EV", "Active")
	for _, w := range whales {
		table.Append(
			w.Address,
			string(w.Classification),
			fmt.Sprintf("%d/%d", w.ResolvedTrades, w.TotalTrades),
			w.WinRate.StringFixed(1),
			w.KellyFraction.StringFixed(3),
			w.ExpectedValue.StringFixed(2),
			fmt.Sprintf("%v", w.IsActive),
		)
	}
	table.Render()
	return nil
}

func reportBaskets(ctx context.Context, ctrl ports.ControlService) error {
	baskets, err := ctrl.ListBaskets(ctx)
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Name", "Wallets", "CreatedAt")
	for _, b := range baskets {
		table.Append(b.ID, b.Name, fmt.Sprintf("%d", len(b.Wallets)), b.CreatedAt.Format("2006-01-02"))
	}
	table.Render()
	return nil
}

func reportPositions(ctx context.Context, ctrl ports.ControlService) error {
	positions, err := ctrl.ListPositions(ctx)
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Market", "Side", "Size", "Entry", "CostBasis", "Mark", "UnrealizedPnL", "Status", "RealizedPnL")
	for _, p := range positions {
		table.Append(
			p.MarketID,
			p.Side,
			p.Size.StringFixed(2),
			p.AvgEntryPrice.StringFixed(4),
			p.CostBasis.StringFixed(2),
			p.CurrentMark.StringFixed(4),
			p.UnrealizedPnLUSDC.StringFixed(2),
			string(p.Status),
			p.RealizedPnLUSDC.StringFixed(2),
		)
	}
	table.Render()
	return nil
}

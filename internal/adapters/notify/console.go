package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/polybot/internal/domain"
)

// Console implements ports.Notifier, printing a compact line per event and
// a table when multiple events land in the same batch.
type Console struct {
	out io.Writer
}

// NewConsole creates a notifier that writes to stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter creates a notifier for tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// Notify prints events ordered as received; the core owns ordering.
func (c *Console) Notify(_ context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	if len(events) == 1 {
		c.printLine(events[0])
		return nil
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Time", "Kind", "Market", "Wallet", "Message")
	for _, e := range events {
		table.Append(
			e.At.Format("15:04:05"),
			string(e.Kind),
			shorten(e.MarketID, 14),
			shorten(e.Wallet, 10),
			e.Message,
		)
	}
	table.Render()
	return nil
}

func (c *Console) printLine(e domain.Event) {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	fmt.Fprintf(c.out, "[%s] %-22s %s\n", at.Format("15:04:05"), e.Kind, e.Message)
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

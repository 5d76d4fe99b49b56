package ports

import (
	"context"

	"github.com/alejandrodnm/polybot/internal/domain"
)

// Notifier is the sink for the core's structured events. Delivery (console
// table, webhook, chat) is out of scope for the core; it only emits.
type Notifier interface {
	Notify(ctx context.Context, events []domain.Event) error
}

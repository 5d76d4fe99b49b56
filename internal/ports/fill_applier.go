package ports

import (
	"context"

	"github.com/alejandrodnm/polybot/internal/domain"
)

// FillApplier folds a filled or partially filled CopyOrder into the
// position book. Implemented by the Position Manager; both the Executor
// (real/partial fills) and the Copy Engine (dry-run SHADOW fills) call it so
// positions stay correct regardless of which path an order took.
type FillApplier interface {
	ApplyFill(ctx context.Context, order domain.CopyOrder) error
}

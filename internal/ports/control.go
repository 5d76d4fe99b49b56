package ports

import (
	"context"

	"github.com/alejandrodnm/polybot/internal/domain"
)

// ControlStatus is the shape returned by the status read contract — mode,
// pause state, and wallet/balance when a trading client is configured.
type ControlStatus struct {
	Mode        string // "dry_run" or "live"
	Paused      bool
	CopyEnabled bool
	Wallet      string // empty if no trading client configured
	USDCBalance string // empty if no trading client configured
}

// ControlService is the operator control surface the core exposes as a Go
// interface — an out-of-process HTTP/CLI layer adapts this directly rather
// than reimplementing pause/resume/config semantics.
type ControlService interface {
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Status(ctx context.Context) (ControlStatus, error)
	// CancelAll cancels every open order; returns an error naming the
	// monitor-only condition if no trading client is configured.
	CancelAll(ctx context.Context) error

	GetRuntimeConfig(ctx context.Context) (domain.RuntimeConfig, error)
	SetRuntimeConfig(ctx context.Context, cfg domain.RuntimeConfig) error

	ListWhales(ctx context.Context) ([]domain.Whale, error)
	ListBaskets(ctx context.Context) ([]domain.WhaleBasket, error)
	ListPositions(ctx context.Context) ([]domain.Position, error)
}

// Package control implements ports.ControlService, the operator surface
// for pause/resume/status/cancel-all and runtime config reads/writes.
package control

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/polybot/internal/application/corecontext"
	"github.com/alejandrodnm/polybot/internal/domain"
	"github.com/alejandrodnm/polybot/internal/domain/corerr"
	"github.com/alejandrodnm/polybot/internal/ports"
)

// Service implements ports.ControlService.
type Service struct {
	core       *corecontext.Core
	cfgStore   ports.RuntimeConfigStorage
	whales     ports.WhaleStorage
	baskets    ports.BasketStorage
	positions  ports.CopyStorage
	executor   ports.CopyOrderExecutor // nil in monitor-only mode
	walletAddr string
}

// New constructs a control Service. executor may be nil — CancelAll then
// reports the monitor-only condition instead of erroring on a nil pointer.
func New(core *corecontext.Core, cfgStore ports.RuntimeConfigStorage, whales ports.WhaleStorage, baskets ports.BasketStorage, positions ports.CopyStorage, executor ports.CopyOrderExecutor, walletAddr string) *Service {
	return &Service{
		core:       core,
		cfgStore:   cfgStore,
		whales:     whales,
		baskets:    baskets,
		positions:  positions,
		executor:   executor,
		walletAddr: walletAddr,
	}
}

// Pause sets the pause flag both in memory and in durable storage.
func (s *Service) Pause(ctx context.Context) error {
	cfg := s.core.Config()
	cfg.Paused = true
	cfg.Version++
	if err := s.cfgStore.SaveRuntimeConfig(ctx, cfg); err != nil {
		return &corerr.DatabaseError{Op: "control.Pause", Err: err}
	}
	s.core.SetPaused(true)
	return s.core.Refresh(ctx)
}

// Resume clears the pause flag.
func (s *Service) Resume(ctx context.Context) error {
	cfg := s.core.Config()
	cfg.Paused = false
	cfg.Version++
	if err := s.cfgStore.SaveRuntimeConfig(ctx, cfg); err != nil {
		return &corerr.DatabaseError{Op: "control.Resume", Err: err}
	}
	s.core.SetPaused(false)
	return s.core.Refresh(ctx)
}

// Status reports the current mode, pause state, and (when a trading client
// is configured) the operator wallet address and balance.
func (s *Service) Status(ctx context.Context) (ports.ControlStatus, error) {
	cfg := s.core.Config()
	mode := "live"
	if cfg.DryRun {
		mode = "dry_run"
	}

	status := ports.ControlStatus{
		Mode:        mode,
		Paused:      s.core.IsPaused(),
		CopyEnabled: cfg.CopyEnabled,
	}

	if s.executor != nil {
		status.Wallet = s.walletAddr
		bal, err := s.executor.GetBalance(ctx)
		if err == nil {
			status.USDCBalance = bal.StringFixed(2)
		}
	}
	return status, nil
}

// CancelAll cancels every open order, or reports monitor-only if no trading
// client is configured — matching the original implementation's behavior
// of treating "no signer" as a deliberate read-only deployment mode rather
// than an error.
func (s *Service) CancelAll(ctx context.Context) error {
	if s.executor == nil {
		return fmt.Errorf("control.CancelAll: monitor-only deployment has no trading client configured")
	}
	return s.executor.CancelAll(ctx)
}

// GetRuntimeConfig returns the live in-memory snapshot.
func (s *Service) GetRuntimeConfig(ctx context.Context) (domain.RuntimeConfig, error) {
	return s.core.Config(), nil
}

// SetRuntimeConfig persists a new runtime config, bumps its version, and
// broadcasts the change to every task watching VersionChanged().
func (s *Service) SetRuntimeConfig(ctx context.Context, cfg domain.RuntimeConfig) error {
	current := s.core.Config()
	cfg.Version = current.Version + 1
	if err := s.cfgStore.SaveRuntimeConfig(ctx, cfg); err != nil {
		return &corerr.DatabaseError{Op: "control.SetRuntimeConfig", Err: err}
	}
	return s.core.Refresh(ctx)
}

// ListWhales returns the full tracked whale set.
func (s *Service) ListWhales(ctx context.Context) ([]domain.Whale, error) {
	whales, err := s.whales.ListWhales(ctx, false)
	if err != nil {
		return nil, &corerr.DatabaseError{Op: "control.ListWhales", Err: err}
	}
	return whales, nil
}

// ListBaskets returns every configured whale basket.
func (s *Service) ListBaskets(ctx context.Context) ([]domain.WhaleBasket, error) {
	baskets, err := s.baskets.ListBaskets(ctx)
	if err != nil {
		return nil, &corerr.DatabaseError{Op: "control.ListBaskets", Err: err}
	}
	return baskets, nil
}

// ListPositions returns every currently open position.
func (s *Service) ListPositions(ctx context.Context) ([]domain.Position, error) {
	positions, err := s.positions.GetOpenPositions(ctx)
	if err != nil {
		return nil, &corerr.DatabaseError{Op: "control.ListPositions", Err: err}
	}
	return positions, nil
}

// Package ingestion normalizes whale activity from the live trade stream
// and the historical poller into a single domain.WhaleTrade feed, recording
// each trade in the Whale Registry and publishing it on a single feed that
// main fans out to the Basket Engine and the whale-exit watcher.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/polybot/internal/application/corecontext"
	"github.com/alejandrodnm/polybot/internal/application/registry"
	"github.com/alejandrodnm/polybot/internal/domain"
	"github.com/alejandrodnm/polybot/internal/ports"
)

// eventQueueSize bounds the fan-out channel. Under sustained overload the
// oldest unread trade is dropped rather than blocking the stream reader,
// since a stale whale trade is worse than a lost one for signal freshness.
const eventQueueSize = 1024

// Ingestor owns the live stream subscription and the historical poller, and
// is the single writer into the Registry's trade history.
type Ingestor struct {
	stream  ports.WhaleTradeStream
	history ports.WhaleTradeHistory
	reg     *registry.Registry
	core    *corecontext.Core
	log     *slog.Logger

	out chan domain.WhaleTrade
}

// New constructs an Ingestor. log may be nil, in which case slog.Default()
// is used.
func New(stream ports.WhaleTradeStream, history ports.WhaleTradeHistory, reg *registry.Registry, core *corecontext.Core, log *slog.Logger) *Ingestor {
	if log == nil {
		log = slog.Default()
	}
	return &Ingestor{
		stream:  stream,
		history: history,
		reg:     reg,
		core:    core,
		log:     log,
		out:     make(chan domain.WhaleTrade, eventQueueSize),
	}
}

// Events returns the fan-out channel every downstream consumer reads from.
func (i *Ingestor) Events() <-chan domain.WhaleTrade {
	return i.out
}

// Run subscribes to the live stream and drains it until the stream
// implementation itself returns — it owns its own reconnect/backoff loop
// per the WhaleTradeStream contract, so Run does not retry here. This is
// the Ingestor's long-lived task entrypoint.
func (i *Ingestor) Run(ctx context.Context) error {
	raw := make(chan domain.WhaleTrade, eventQueueSize)

	done := make(chan error, 1)
	go func() {
		done <- i.stream.Subscribe(ctx, raw)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-raw:
			i.handle(ctx, t)
		case err := <-done:
			// Drain whatever is still buffered before reporting the error.
			for {
				select {
				case t := <-raw:
					i.handle(ctx, t)
				default:
					if err != nil {
						return fmt.Errorf("ingestion.Run: whale stream closed: %w", err)
					}
					return nil
				}
			}
		}
	}
}

func (i *Ingestor) handle(ctx context.Context, t domain.WhaleTrade) {
	if err := i.reg.RecordTrade(ctx, t); err != nil {
		i.log.Error("failed to record whale trade", "wallet", t.Wallet, "trade_id", t.ID, "error", err)
		return
	}

	select {
	case i.out <- t:
	default:
		// Fan-out channel full: drop the oldest queued trade to make room
		// rather than block the stream reader.
		select {
		case <-i.out:
		default:
		}
		select {
		case i.out <- t:
		default:
		}
	}
}

// PollWallet fetches and records any trades for wallet newer than its last
// known trade. Intended to be driven by a ticker at RuntimeConfig's
// WhalePollerInterval as a gap-fill alongside the live stream.
func (i *Ingestor) PollWallet(ctx context.Context, wallet string) error {
	w, ok := i.reg.Lookup(wallet)
	marker := domain.WhaleTrade{Timestamp: w.LastTradeAt}
	if !ok {
		marker = domain.WhaleTrade{}
	}

	trades, err := i.history.FetchWalletTrades(ctx, wallet, marker)
	if err != nil {
		return fmt.Errorf("ingestion.PollWallet: %s: %w", wallet, err)
	}
	for _, t := range trades {
		i.handle(ctx, t)
	}
	return nil
}

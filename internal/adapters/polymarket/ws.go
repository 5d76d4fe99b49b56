package polymarket

// ws.go — ports.WhaleTradeStream over Polymarket's public "market" channel.
// The channel streams trade/last_trade_price events for whatever asset IDs
// it's subscribed to; Subscribe filters those down to trades from wallets
// the caller cares about and owns reconnect/backoff end to end, per the
// WhaleTradeStream contract — callers never retry Subscribe themselves.

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polybot/internal/domain"
)

const (
	wsHeartbeatTimeout = 60 * time.Second
	wsWriteTimeout     = 10 * time.Second
	wsPingInterval     = 10 * time.Second
)

// Stream implements ports.WhaleTradeStream over the market channel,
// resubscribing whenever the set of asset IDs of interest changes.
type Stream struct {
	url          string
	minNotional  decimal.Decimal
	walletFilter func(wallet string) bool

	assetsMu sync.RWMutex
	assetIDs []string

	connMu  sync.Mutex
	conn    *websocket.Conn
	lastMsg time.Time
}

// NewStream builds a Stream against url (the market channel endpoint).
// walletFilter decides which trades are forwarded downstream — typically
// the Whale Registry's membership check — and defaults to accepting
// everything if nil.
func NewStream(url string, minNotional decimal.Decimal, walletFilter func(wallet string) bool) *Stream {
	if walletFilter == nil {
		walletFilter = func(string) bool { return true }
	}
	return &Stream{url: url, minNotional: minNotional, walletFilter: walletFilter}
}

// SetAssetIDs updates the set of token IDs subscribed to. If a connection is
// already live it resubscribes immediately; otherwise the new set takes
// effect on the next connect.
func (s *Stream) SetAssetIDs(ids []string) {
	s.assetsMu.Lock()
	s.assetIDs = append([]string(nil), ids...)
	s.assetsMu.Unlock()

	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	if conn != nil {
		if err := s.sendSubscribe(conn); err != nil {
			slog.Warn("whale stream resubscribe failed", "error", err)
		}
	}
}

// Subscribe implements ports.WhaleTradeStream.
func (s *Stream) Subscribe(ctx context.Context, out chan<- domain.WhaleTrade) error {
	b := &backoff.Backoff{Min: time.Second, Max: 60 * time.Second, Factor: 2, Jitter: true}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn, err := s.connect(ctx)
		if err != nil {
			wait := b.Duration()
			slog.Error("whale stream connect failed", "error", err, "backoff", wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		b.Reset()

		readErr := s.readLoop(ctx, conn, out)
		s.closeConn(conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if readErr != nil {
			slog.Warn("whale stream read error, reconnecting", "error", readErr)
		}
	}
}

func (s *Stream) connect(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	headers := http.Header{}
	headers.Set("Origin", "https://polymarket.com")

	conn, resp, err := dialer.DialContext(ctx, s.url, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("ws.connect: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("ws.connect: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.lastMsg = time.Now()
	s.connMu.Unlock()

	if err := s.sendSubscribe(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ws.connect: subscribe: %w", err)
	}
	return conn, nil
}

func (s *Stream) sendSubscribe(conn *websocket.Conn) error {
	s.assetsMu.RLock()
	ids := s.assetIDs
	s.assetsMu.RUnlock()

	msg := map[string]any{
		"type":       "market",
		"assets_ids": ids,
	}

	s.connMu.Lock()
	defer s.connMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(msg)
}

func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- domain.WhaleTrade) error {
	pinger := time.NewTicker(wsPingInterval)
	defer pinger.Stop()

	done := make(chan error, 1)
	go func() {
		for {
			conn.SetReadDeadline(time.Now().Add(wsHeartbeatTimeout))
			_, data, err := conn.ReadMessage()
			if err != nil {
				done <- err
				return
			}
			s.connMu.Lock()
			s.lastMsg = time.Now()
			s.connMu.Unlock()
			s.handleMessage(data, out)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-done:
			return err
		case <-pinger.C:
			s.connMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			pingErr := conn.WriteMessage(websocket.PingMessage, nil)
			s.connMu.Unlock()
			if pingErr != nil {
				return pingErr
			}
		}
	}
}

func (s *Stream) closeConn(conn *websocket.Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	conn.Close()
	if s.conn == conn {
		s.conn = nil
	}
}

// wsTradeEvent is the last_trade_price / trade shape the market channel
// emits. Polymarket sends these as either a single object or an array.
type wsTradeEvent struct {
	EventType string `json:"event_type"`
	Type      string `json:"type"`
	Market    string `json:"market"`
	AssetID   string `json:"asset_id"`
	Side      string `json:"side"`
	Size      string `json:"size"`
	Price     string `json:"price"`
	Maker     string `json:"maker_address"`
	Taker     string `json:"taker_address"`
	Timestamp string `json:"timestamp"`
	ID        string `json:"id"`
}

func (s *Stream) handleMessage(data []byte, out chan<- domain.WhaleTrade) {
	var events []wsTradeEvent
	if err := json.Unmarshal(data, &events); err != nil {
		var single wsTradeEvent
		if err := json.Unmarshal(data, &single); err != nil {
			return
		}
		events = []wsTradeEvent{single}
	}

	for _, ev := range events {
		if ev.EventType != "" && ev.EventType != "last_trade_price" && ev.Type != "trade" {
			continue
		}
		t, ok := s.toWhaleTrade(ev)
		if !ok {
			continue
		}
		select {
		case out <- t:
		default:
			select {
			case <-out:
			default:
			}
			select {
			case out <- t:
			default:
			}
		}
	}
}

func (s *Stream) toWhaleTrade(ev wsTradeEvent) (domain.WhaleTrade, bool) {
	wallet := ev.Taker
	if ev.Side == "SELL" {
		wallet = ev.Maker
	}
	if wallet == "" || !s.walletFilter(wallet) {
		return domain.WhaleTrade{}, false
	}

	price, err := decimal.NewFromString(ev.Price)
	if err != nil {
		return domain.WhaleTrade{}, false
	}
	size, err := decimal.NewFromString(ev.Size)
	if err != nil {
		return domain.WhaleTrade{}, false
	}

	id := ev.ID
	if id == "" {
		id = fmt.Sprintf("ws-%s-%s", ev.AssetID, ev.Timestamp)
	}

	return domain.NewWhaleTrade(id, wallet, ev.Market, ev.AssetID, ev.Side, size, price, s.minNotional, parseWSTimestamp(ev.Timestamp)), true
}

func parseWSTimestamp(s string) time.Time {
	if s == "" {
		return time.Now().UTC()
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ms > 1e12 {
			return time.UnixMilli(ms)
		}
		return time.Unix(ms, 0)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Now().UTC()
}

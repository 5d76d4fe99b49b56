package storage

// corestore.go persists the whale-copy-trading core: whales, their trade
// history, baskets, consensus signals, copy orders, positions, active
// markets, and the mutable runtime config. Same embedded-schema +
// prepared-statement idiom as sqlite.go, applied to the new domain —
// decimal fields are stored as TEXT to preserve exact precision (SQLite has
// no native arbitrary-precision decimal type).

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polybot/internal/domain"
	_ "modernc.org/sqlite"
)

const coreSchema = `
CREATE TABLE IF NOT EXISTS whales (
	address             TEXT PRIMARY KEY,
	classification      TEXT    NOT NULL DEFAULT 'unknown',
	total_trades        INTEGER NOT NULL DEFAULT 0,
	resolved_trades     INTEGER NOT NULL DEFAULT 0,
	wins                INTEGER NOT NULL DEFAULT 0,
	win_rate            TEXT    NOT NULL DEFAULT '0',
	sharpe_ratio        TEXT    NOT NULL DEFAULT '0',
	kelly_fraction      TEXT    NOT NULL DEFAULT '0',
	expected_value      TEXT    NOT NULL DEFAULT '0',
	first_seen_at       DATETIME NOT NULL,
	last_trade_at       DATETIME,
	is_active           INTEGER NOT NULL DEFAULT 1,
	deactivated_at      DATETIME,
	deactivation_reason TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_whales_active ON whales(is_active) WHERE is_active;

CREATE TABLE IF NOT EXISTS whale_trades (
	id          TEXT PRIMARY KEY,
	wallet      TEXT    NOT NULL REFERENCES whales(address) ON DELETE CASCADE,
	market_id   TEXT    NOT NULL,
	asset_id    TEXT    NOT NULL,
	side        TEXT    NOT NULL,
	size        TEXT    NOT NULL,
	price       TEXT    NOT NULL,
	notional    TEXT    NOT NULL,
	timestamp   DATETIME NOT NULL,
	is_tracked  INTEGER NOT NULL DEFAULT 0,
	resolved    INTEGER NOT NULL DEFAULT 0,
	pnl_usdc    TEXT    NOT NULL DEFAULT '0'
);
CREATE INDEX IF NOT EXISTS idx_whale_trades_wallet ON whale_trades(wallet, timestamp DESC);

CREATE TABLE IF NOT EXISTS whale_baskets (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS basket_wallets (
	basket_id TEXT NOT NULL REFERENCES whale_baskets(id) ON DELETE CASCADE,
	wallet    TEXT NOT NULL,
	PRIMARY KEY (basket_id, wallet)
);

CREATE TABLE IF NOT EXISTS consensus_signals (
	id                     TEXT PRIMARY KEY,
	source                 TEXT    NOT NULL,
	is_basket              INTEGER NOT NULL DEFAULT 0,
	market_id              TEXT    NOT NULL,
	asset_id               TEXT    NOT NULL,
	direction              TEXT    NOT NULL,
	reference_price        TEXT    NOT NULL DEFAULT '0',
	total_notional         TEXT    NOT NULL DEFAULT '0',
	contributor_count      INTEGER NOT NULL DEFAULT 0,
	generated_at           DATETIME NOT NULL,
	minutes_to_resolution  TEXT    NOT NULL DEFAULT '0',
	price_room_to_move     TEXT    NOT NULL DEFAULT '0'
);
CREATE INDEX IF NOT EXISTS idx_signals_generated ON consensus_signals(generated_at DESC);

CREATE TABLE IF NOT EXISTS copy_orders (
	id               TEXT PRIMARY KEY,
	signal_id        TEXT NOT NULL,
	wallet           TEXT NOT NULL DEFAULT '',
	market_id        TEXT NOT NULL,
	asset_id         TEXT NOT NULL,
	side             TEXT NOT NULL,
	strategy         TEXT NOT NULL,
	size             TEXT NOT NULL,
	limit_price      TEXT NOT NULL,
	notional         TEXT NOT NULL,
	max_slippage_pct TEXT NOT NULL DEFAULT '0',
	clob_order_id    TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL,
	filled_size      TEXT NOT NULL DEFAULT '0',
	filled_price     TEXT NOT NULL DEFAULT '0',
	reject_reason    TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL,
	submitted_at     DATETIME,
	filled_at        DATETIME
);
CREATE INDEX IF NOT EXISTS idx_copy_orders_open ON copy_orders(status)
	WHERE status IN ('PENDING','SUBMITTED','PARTIAL');
CREATE INDEX IF NOT EXISTS idx_copy_orders_signal ON copy_orders(signal_id, created_at DESC);

CREATE TABLE IF NOT EXISTS positions (
	id                TEXT PRIMARY KEY,
	wallet            TEXT NOT NULL DEFAULT '',
	market_id         TEXT NOT NULL,
	asset_id          TEXT NOT NULL,
	side              TEXT NOT NULL,
	entry_signal_id   TEXT NOT NULL DEFAULT '',
	avg_entry_price   TEXT NOT NULL DEFAULT '0',
	size              TEXT NOT NULL DEFAULT '0',
	cost_basis        TEXT NOT NULL DEFAULT '0',
	stop_loss_pct     TEXT NOT NULL DEFAULT '0',
	take_profit_pct   TEXT NOT NULL DEFAULT '0',
	status            TEXT NOT NULL,
	realized_pnl_usdc TEXT NOT NULL DEFAULT '0',
	opened_at         DATETIME NOT NULL,
	closed_at         DATETIME,
	exit_reason       TEXT NOT NULL DEFAULT '',
	current_mark        TEXT NOT NULL DEFAULT '0',
	unrealized_pnl_usdc TEXT NOT NULL DEFAULT '0',
	last_price_update_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_positions_market_asset ON positions(market_id, asset_id);
CREATE INDEX IF NOT EXISTS idx_positions_open ON positions(status) WHERE status = 'OPEN';

CREATE TABLE IF NOT EXISTS active_markets (
	condition_id TEXT PRIMARY KEY,
	question     TEXT NOT NULL,
	yes_token_id TEXT NOT NULL,
	no_token_id  TEXT NOT NULL,
	volume_24h   TEXT NOT NULL DEFAULT '0',
	liquidity    TEXT NOT NULL DEFAULT '0',
	end_date     DATETIME,
	active       INTEGER NOT NULL DEFAULT 1,
	closed       INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS market_outcomes (
	condition_id  TEXT PRIMARY KEY,
	payout_yes    TEXT NOT NULL,
	payout_no     TEXT NOT NULL,
	resolved_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS runtime_config (
	id      INTEGER PRIMARY KEY CHECK (id = 1),
	version INTEGER NOT NULL,
	payload TEXT    NOT NULL
);
`

// CoreStore implements ports.WhaleStorage, ports.BasketStorage,
// ports.CopyStorage, and ports.RuntimeConfigStorage over a single SQLite
// database, following the teacher's single-writer connection pool pattern.
type CoreStore struct {
	db *sql.DB
}

// OpenCoreStore opens (or creates) the database at path and applies the
// core schema.
func OpenCoreStore(path string) (*CoreStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.OpenCoreStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	cs := &CoreStore{db: db}
	if err := cs.ApplyCoreSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return cs, nil
}

// NewCoreStoreFromDB wraps an already-open *sql.DB and applies the core
// schema to it.
func NewCoreStoreFromDB(ctx context.Context, db *sql.DB) (*CoreStore, error) {
	cs := &CoreStore{db: db}
	if err := cs.ApplyCoreSchema(ctx); err != nil {
		return nil, err
	}
	return cs, nil
}

// Close closes the underlying database connection.
func (s *CoreStore) Close() error { return s.db.Close() }

// ApplyCoreSchema creates every table/index the core needs if not already
// present. Safe to call on every startup.
func (s *CoreStore) ApplyCoreSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, coreSchema); err != nil {
		return fmt.Errorf("storage.ApplyCoreSchema: %w", err)
	}
	return nil
}

// --- whales ---

func (s *CoreStore) UpsertWhale(ctx context.Context, w domain.Whale) error {
	var deactivatedAt *time.Time
	if w.DeactivatedAt != nil {
		t := w.DeactivatedAt.UTC()
		deactivatedAt = &t
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO whales
			(address, classification, total_trades, resolved_trades, wins, win_rate,
			 sharpe_ratio, kelly_fraction, expected_value, first_seen_at, last_trade_at,
			 is_active, deactivated_at, deactivation_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			classification      = excluded.classification,
			total_trades         = excluded.total_trades,
			resolved_trades      = excluded.resolved_trades,
			wins                 = excluded.wins,
			win_rate             = excluded.win_rate,
			sharpe_ratio         = excluded.sharpe_ratio,
			kelly_fraction       = excluded.kelly_fraction,
			expected_value       = excluded.expected_value,
			last_trade_at        = excluded.last_trade_at,
			is_active            = excluded.is_active,
			deactivated_at       = excluded.deactivated_at,
			deactivation_reason  = excluded.deactivation_reason
	`,
		w.Address, string(w.Classification), w.TotalTrades, w.ResolvedTrades, w.Wins,
		w.WinRate.String(), w.SharpeLike.String(), w.KellyFraction.String(), w.ExpectedValue.String(),
		w.FirstSeenAt.UTC(), nullableTime(w.LastTradeAt), boolInt(w.IsActive), deactivatedAt, w.DeactivationReason,
	)
	if err != nil {
		return fmt.Errorf("storage.UpsertWhale: %w", err)
	}
	return nil
}

func (s *CoreStore) GetWhale(ctx context.Context, address string) (domain.Whale, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT address, classification, total_trades, resolved_trades, wins, win_rate,
		       sharpe_ratio, kelly_fraction, expected_value, first_seen_at, last_trade_at,
		       is_active, deactivated_at, deactivation_reason
		FROM whales WHERE address = ?`, address)
	w, err := scanWhale(row)
	if err == sql.ErrNoRows {
		return domain.Whale{}, false, nil
	}
	if err != nil {
		return domain.Whale{}, false, fmt.Errorf("storage.GetWhale: %w", err)
	}
	return w, true, nil
}

func (s *CoreStore) ListWhales(ctx context.Context, onlyActive bool) ([]domain.Whale, error) {
	query := `SELECT address, classification, total_trades, resolved_trades, wins, win_rate,
	       sharpe_ratio, kelly_fraction, expected_value, first_seen_at, last_trade_at,
	       is_active, deactivated_at, deactivation_reason FROM whales`
	if onlyActive {
		query += ` WHERE is_active = 1`
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("storage.ListWhales: %w", err)
	}
	defer rows.Close()

	var out []domain.Whale
	for rows.Next() {
		w, err := scanWhale(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.ListWhales: scan: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *CoreStore) DeactivateWhale(ctx context.Context, address, reason string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE whales SET is_active = 0, deactivated_at = ?, deactivation_reason = ? WHERE address = ?`,
		at.UTC(), reason, address)
	if err != nil {
		return fmt.Errorf("storage.DeactivateWhale: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWhale(row rowScanner) (domain.Whale, error) {
	var w domain.Whale
	var classification string
	var winRate, sharpe, kelly, ev string
	var lastTradeAt sql.NullTime
	var deactivatedAt sql.NullTime
	var isActive int

	if err := row.Scan(
		&w.Address, &classification, &w.TotalTrades, &w.ResolvedTrades, &w.Wins, &winRate,
		&sharpe, &kelly, &ev, &w.FirstSeenAt, &lastTradeAt, &isActive, &deactivatedAt, &w.DeactivationReason,
	); err != nil {
		return domain.Whale{}, err
	}

	w.Classification = domain.WalletClassification(classification)
	w.WinRate = parseDecimal(winRate)
	w.SharpeLike = parseDecimal(sharpe)
	w.KellyFraction = parseDecimal(kelly)
	w.ExpectedValue = parseDecimal(ev)
	w.IsActive = isActive != 0
	if lastTradeAt.Valid {
		w.LastTradeAt = lastTradeAt.Time
	}
	if deactivatedAt.Valid {
		t := deactivatedAt.Time
		w.DeactivatedAt = &t
	}
	return w, nil
}

// --- whale trades ---

func (s *CoreStore) SaveWhaleTrade(ctx context.Context, t domain.WhaleTrade) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO whale_trades
			(id, wallet, market_id, asset_id, side, size, price, notional, timestamp, is_tracked, resolved, pnl_usdc)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, t.ID, t.Wallet, t.MarketID, t.AssetID, t.Side, t.Size.String(), t.Price.String(),
		t.Notional.String(), t.Timestamp.UTC(), boolInt(t.IsTracked), boolInt(t.Resolved), t.PnLUSDC.String())
	if err != nil {
		return fmt.Errorf("storage.SaveWhaleTrade: %w", err)
	}
	return nil
}

func (s *CoreStore) ListRecentTrades(ctx context.Context, wallet string, limit int) ([]domain.WhaleTrade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, wallet, market_id, asset_id, side, size, price, notional, timestamp, is_tracked, resolved, pnl_usdc
		FROM whale_trades WHERE wallet = ? ORDER BY timestamp DESC LIMIT ?`, wallet, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.ListRecentTrades: %w", err)
	}
	defer rows.Close()
	return scanWhaleTrades(rows)
}

func (s *CoreStore) ListTradesSince(ctx context.Context, wallet string, since time.Time) ([]domain.WhaleTrade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, wallet, market_id, asset_id, side, size, price, notional, timestamp, is_tracked, resolved, pnl_usdc
		FROM whale_trades WHERE wallet = ? AND timestamp >= ? ORDER BY timestamp DESC`, wallet, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("storage.ListTradesSince: %w", err)
	}
	defer rows.Close()
	return scanWhaleTrades(rows)
}

func scanWhaleTrades(rows *sql.Rows) ([]domain.WhaleTrade, error) {
	var out []domain.WhaleTrade
	for rows.Next() {
		var t domain.WhaleTrade
		var size, price, notional, pnl string
		var isTracked, resolved int
		if err := rows.Scan(&t.ID, &t.Wallet, &t.MarketID, &t.AssetID, &t.Side, &size, &price,
			&notional, &t.Timestamp, &isTracked, &resolved, &pnl); err != nil {
			return nil, fmt.Errorf("storage.scanWhaleTrades: %w", err)
		}
		t.Size = parseDecimal(size)
		t.Price = parseDecimal(price)
		t.Notional = parseDecimal(notional)
		t.PnLUSDC = parseDecimal(pnl)
		t.IsTracked = isTracked != 0
		t.Resolved = resolved != 0
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *CoreStore) MarkTradeResolved(ctx context.Context, tradeID string, pnlUSDC decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx, `UPDATE whale_trades SET resolved = 1, pnl_usdc = ? WHERE id = ?`,
		pnlUSDC.String(), tradeID)
	if err != nil {
		return fmt.Errorf("storage.MarkTradeResolved: %w", err)
	}
	return nil
}

// --- baskets ---

func (s *CoreStore) SaveBasket(ctx context.Context, b domain.WhaleBasket) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveBasket: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO whale_baskets (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, b.ID, b.Name, b.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("storage.SaveBasket: upsert basket: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM basket_wallets WHERE basket_id = ?`, b.ID); err != nil {
		return fmt.Errorf("storage.SaveBasket: clear wallets: %w", err)
	}
	for _, wallet := range b.Wallets {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO basket_wallets (basket_id, wallet) VALUES (?, ?)`, b.ID, wallet); err != nil {
			return fmt.Errorf("storage.SaveBasket: insert wallet: %w", err)
		}
	}
	return tx.Commit()
}

func (s *CoreStore) GetBasket(ctx context.Context, id string) (domain.WhaleBasket, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM whale_baskets WHERE id = ?`, id)
	var b domain.WhaleBasket
	if err := row.Scan(&b.ID, &b.Name, &b.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return domain.WhaleBasket{}, false, nil
		}
		return domain.WhaleBasket{}, false, fmt.Errorf("storage.GetBasket: %w", err)
	}
	wallets, err := s.basketWallets(ctx, id)
	if err != nil {
		return domain.WhaleBasket{}, false, err
	}
	b.Wallets = wallets
	return b, true, nil
}

func (s *CoreStore) basketWallets(ctx context.Context, basketID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT wallet FROM basket_wallets WHERE basket_id = ?`, basketID)
	if err != nil {
		return nil, fmt.Errorf("storage.basketWallets: %w", err)
	}
	defer rows.Close()
	var wallets []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, fmt.Errorf("storage.basketWallets: scan: %w", err)
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

func (s *CoreStore) ListBaskets(ctx context.Context) ([]domain.WhaleBasket, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM whale_baskets`)
	if err != nil {
		return nil, fmt.Errorf("storage.ListBaskets: %w", err)
	}
	defer rows.Close()

	var baskets []domain.WhaleBasket
	for rows.Next() {
		var b domain.WhaleBasket
		if err := rows.Scan(&b.ID, &b.Name, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage.ListBaskets: scan: %w", err)
		}
		baskets = append(baskets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range baskets {
		wallets, err := s.basketWallets(ctx, baskets[i].ID)
		if err != nil {
			return nil, err
		}
		baskets[i].Wallets = wallets
	}
	return baskets, nil
}

func (s *CoreStore) SaveConsensusSignal(ctx context.Context, sig domain.ConsensusSignal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO consensus_signals
			(id, source, is_basket, market_id, asset_id, direction, reference_price, total_notional,
			 contributor_count, generated_at, minutes_to_resolution, price_room_to_move)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, sig.ID, sig.Source, boolInt(sig.IsBasket), sig.MarketID, sig.AssetID, sig.Direction,
		sig.ReferencePrice.String(), sig.TotalNotional.String(), sig.ContributorCount, sig.GeneratedAt.UTC(),
		sig.MinutesToResolution.String(), sig.PriceRoomToMove.String())
	if err != nil {
		return fmt.Errorf("storage.SaveConsensusSignal: %w", err)
	}
	return nil
}

func (s *CoreStore) ListRecentSignals(ctx context.Context, limit int) ([]domain.ConsensusSignal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, is_basket, market_id, asset_id, direction, reference_price, total_notional,
		       contributor_count, generated_at, minutes_to_resolution, price_room_to_move
		FROM consensus_signals ORDER BY generated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.ListRecentSignals: %w", err)
	}
	defer rows.Close()

	var out []domain.ConsensusSignal
	for rows.Next() {
		var sig domain.ConsensusSignal
		var isBasket int
		var refPrice, total, minutes, room string
		if err := rows.Scan(&sig.ID, &sig.Source, &isBasket, &sig.MarketID, &sig.AssetID, &sig.Direction,
			&refPrice, &total, &sig.ContributorCount, &sig.GeneratedAt, &minutes, &room); err != nil {
			return nil, fmt.Errorf("storage.ListRecentSignals: scan: %w", err)
		}
		sig.IsBasket = isBasket != 0
		sig.ReferencePrice = parseDecimal(refPrice)
		sig.TotalNotional = parseDecimal(total)
		sig.MinutesToResolution = parseDecimal(minutes)
		sig.PriceRoomToMove = parseDecimal(room)
		out = append(out, sig)
	}
	return out, rows.Err()
}

// --- copy orders & positions ---

func (s *CoreStore) SaveCopyOrder(ctx context.Context, o domain.CopyOrder) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO copy_orders
			(id, signal_id, wallet, market_id, asset_id, side, strategy, size, limit_price, notional,
			 max_slippage_pct, clob_order_id, status, filled_size, filled_price, reject_reason,
			 created_at, submitted_at, filled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ID, o.SignalID, o.Wallet, o.MarketID, o.AssetID, o.Side, string(o.Strategy), o.Size.String(),
		o.LimitPrice.String(), o.Notional.String(), o.MaxSlippagePct.String(), o.CLOBOrderID,
		string(o.Status), o.FilledSize.String(), o.FilledPrice.String(), o.RejectReason,
		o.CreatedAt.UTC(), nullableTimePtr(o.SubmittedAt), nullableTimePtr(o.FilledAt))
	if err != nil {
		return fmt.Errorf("storage.SaveCopyOrder: %w", err)
	}
	return nil
}

func (s *CoreStore) UpdateCopyOrderStatus(ctx context.Context, id string, status domain.CopyOrderStatus, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE copy_orders SET status = ?, reject_reason = ?, submitted_at = COALESCE(submitted_at, ?) WHERE id = ?`,
		string(status), reason, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("storage.UpdateCopyOrderStatus: %w", err)
	}
	return nil
}

func (s *CoreStore) UpdateCopyOrderFill(ctx context.Context, id string, filledSize, filledPrice decimal.Decimal, status domain.CopyOrderStatus, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE copy_orders SET filled_size = ?, filled_price = ?, status = ?, filled_at = ? WHERE id = ?`,
		filledSize.String(), filledPrice.String(), string(status), at.UTC(), id)
	if err != nil {
		return fmt.Errorf("storage.UpdateCopyOrderFill: %w", err)
	}
	return nil
}

func (s *CoreStore) GetOpenCopyOrders(ctx context.Context) ([]domain.CopyOrder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, signal_id, wallet, market_id, asset_id, side, strategy, size, limit_price, notional,
		       max_slippage_pct, clob_order_id, status, filled_size, filled_price, reject_reason,
		       created_at, submitted_at, filled_at
		FROM copy_orders WHERE status IN ('PENDING','SUBMITTED','PARTIAL')`)
	if err != nil {
		return nil, fmt.Errorf("storage.GetOpenCopyOrders: %w", err)
	}
	defer rows.Close()
	return scanCopyOrders(rows)
}

func scanCopyOrders(rows *sql.Rows) ([]domain.CopyOrder, error) {
	var out []domain.CopyOrder
	for rows.Next() {
		var o domain.CopyOrder
		var strategy, status string
		var size, limitPrice, notional, maxSlip, filledSize, filledPrice string
		var submittedAt, filledAt sql.NullTime
		if err := rows.Scan(&o.ID, &o.SignalID, &o.Wallet, &o.MarketID, &o.AssetID, &o.Side, &strategy, &size,
			&limitPrice, &notional, &maxSlip, &o.CLOBOrderID, &status, &filledSize, &filledPrice,
			&o.RejectReason, &o.CreatedAt, &submittedAt, &filledAt); err != nil {
			return nil, fmt.Errorf("storage.scanCopyOrders: %w", err)
		}
		o.Strategy = domain.SizingStrategy(strategy)
		o.Status = domain.CopyOrderStatus(status)
		o.Size = parseDecimal(size)
		o.LimitPrice = parseDecimal(limitPrice)
		o.Notional = parseDecimal(notional)
		o.MaxSlippagePct = parseDecimal(maxSlip)
		o.FilledSize = parseDecimal(filledSize)
		o.FilledPrice = parseDecimal(filledPrice)
		if submittedAt.Valid {
			t := submittedAt.Time
			o.SubmittedAt = &t
		}
		if filledAt.Valid {
			t := filledAt.Time
			o.FilledAt = &t
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *CoreStore) WasSubmitted(ctx context.Context, signalID string, within time.Duration) (bool, error) {
	cutoff := time.Now().UTC().Add(-within)
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM copy_orders WHERE signal_id = ? AND created_at >= ?`, signalID, cutoff).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("storage.WasSubmitted: %w", err)
	}
	return count > 0, nil
}

func (s *CoreStore) SavePosition(ctx context.Context, p domain.Position) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions
			(id, wallet, market_id, asset_id, side, entry_signal_id, avg_entry_price, size, cost_basis,
			 stop_loss_pct, take_profit_pct, status, realized_pnl_usdc, opened_at, closed_at, exit_reason,
			 current_mark, unrealized_pnl_usdc, last_price_update_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(market_id, asset_id) DO UPDATE SET
			avg_entry_price      = excluded.avg_entry_price,
			size                 = excluded.size,
			cost_basis           = excluded.cost_basis,
			status               = excluded.status,
			realized_pnl_usdc    = excluded.realized_pnl_usdc,
			closed_at            = excluded.closed_at,
			exit_reason          = excluded.exit_reason,
			current_mark         = excluded.current_mark,
			unrealized_pnl_usdc  = excluded.unrealized_pnl_usdc,
			last_price_update_at = excluded.last_price_update_at
	`, p.ID, p.Wallet, p.MarketID, p.AssetID, p.Side, p.EntrySignalID, p.AvgEntryPrice.String(), p.Size.String(),
		p.CostBasis.String(), p.StopLossPct.String(), p.TakeProfitPct.String(), string(p.Status),
		p.RealizedPnLUSDC.String(), p.OpenedAt.UTC(), nullableTimePtr(p.ClosedAt), string(p.ExitReason),
		p.CurrentMark.String(), p.UnrealizedPnLUSDC.String(), nullableTimePtr(p.LastPriceUpdateAt))
	if err != nil {
		return fmt.Errorf("storage.SavePosition: %w", err)
	}
	return nil
}

func (s *CoreStore) UpdatePosition(ctx context.Context, p domain.Position) error {
	return s.SavePosition(ctx, p)
}

func (s *CoreStore) GetOpenPositions(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, wallet, market_id, asset_id, side, entry_signal_id, avg_entry_price, size, cost_basis,
		       stop_loss_pct, take_profit_pct, status, realized_pnl_usdc, opened_at, closed_at, exit_reason,
		       current_mark, unrealized_pnl_usdc, last_price_update_at
		FROM positions WHERE status = 'OPEN'`)
	if err != nil {
		return nil, fmt.Errorf("storage.GetOpenPositions: %w", err)
	}
	defer rows.Close()
	return scanPositions(rows)
}

func (s *CoreStore) GetPositionByMarket(ctx context.Context, marketID, assetID string) (domain.Position, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, wallet, market_id, asset_id, side, entry_signal_id, avg_entry_price, size, cost_basis,
		       stop_loss_pct, take_profit_pct, status, realized_pnl_usdc, opened_at, closed_at, exit_reason,
		       current_mark, unrealized_pnl_usdc, last_price_update_at
		FROM positions WHERE market_id = ? AND asset_id = ?`, marketID, assetID)
	p, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return domain.Position{}, false, nil
	}
	if err != nil {
		return domain.Position{}, false, fmt.Errorf("storage.GetPositionByMarket: %w", err)
	}
	return p, true, nil
}

func scanPositions(rows *sql.Rows) ([]domain.Position, error) {
	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.scanPositions: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPosition(row rowScanner) (domain.Position, error) {
	var p domain.Position
	var status, exitReason string
	var avgEntry, size, costBasis, slPct, tpPct, pnl, mark, uPnl string
	var closedAt, lastPriceUpdateAt sql.NullTime

	if err := row.Scan(&p.ID, &p.Wallet, &p.MarketID, &p.AssetID, &p.Side, &p.EntrySignalID, &avgEntry, &size,
		&costBasis, &slPct, &tpPct, &status, &pnl, &p.OpenedAt, &closedAt, &exitReason,
		&mark, &uPnl, &lastPriceUpdateAt); err != nil {
		return domain.Position{}, err
	}
	p.Status = domain.PositionStatus(status)
	p.ExitReason = domain.ExitReason(exitReason)
	p.AvgEntryPrice = parseDecimal(avgEntry)
	p.Size = parseDecimal(size)
	p.CostBasis = parseDecimal(costBasis)
	p.StopLossPct = parseDecimal(slPct)
	p.TakeProfitPct = parseDecimal(tpPct)
	p.RealizedPnLUSDC = parseDecimal(pnl)
	p.CurrentMark = parseDecimal(mark)
	p.UnrealizedPnLUSDC = parseDecimal(uPnl)
	if closedAt.Valid {
		t := closedAt.Time
		p.ClosedAt = &t
	}
	if lastPriceUpdateAt.Valid {
		t := lastPriceUpdateAt.Time
		p.LastPriceUpdateAt = &t
	}
	return p, nil
}

// --- runtime config ---

func (s *CoreStore) LoadRuntimeConfig(ctx context.Context) (domain.RuntimeConfig, error) {
	var version int
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT version, payload FROM runtime_config WHERE id = 1`).Scan(&version, &payload)
	if err == sql.ErrNoRows {
		return domain.DefaultRuntimeConfig(), nil
	}
	if err != nil {
		return domain.RuntimeConfig{}, fmt.Errorf("storage.LoadRuntimeConfig: %w", err)
	}
	cfg, err := decodeRuntimeConfig(payload)
	if err != nil {
		return domain.RuntimeConfig{}, fmt.Errorf("storage.LoadRuntimeConfig: decode: %w", err)
	}
	cfg.Version = version
	return cfg, nil
}

func (s *CoreStore) SaveRuntimeConfig(ctx context.Context, cfg domain.RuntimeConfig) error {
	payload, err := encodeRuntimeConfig(cfg)
	if err != nil {
		return fmt.Errorf("storage.SaveRuntimeConfig: encode: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runtime_config (id, version, payload) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET version = excluded.version, payload = excluded.payload
	`, cfg.Version, payload)
	if err != nil {
		return fmt.Errorf("storage.SaveRuntimeConfig: %w", err)
	}
	return nil
}

// --- helpers ---

// encodeRuntimeConfig/decodeRuntimeConfig round-trip the config through
// JSON rather than a hand-written column per field — RuntimeConfig grows
// new operator-tunable knobs often enough that a flexible blob column beats
// a migration per field, and decimal.Decimal and time.Duration both already
// marshal cleanly.
func encodeRuntimeConfig(cfg domain.RuntimeConfig) (string, error) {
	b, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeRuntimeConfig(payload string) (domain.RuntimeConfig, error) {
	var cfg domain.RuntimeConfig
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return domain.RuntimeConfig{}, err
	}
	return cfg, nil
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func nullableTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

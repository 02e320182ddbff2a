package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/crypto_trend_breakout/internal/domain"
)

// SQLiteStore is the append-only trade journal.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// :memory: databases are per connection.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id TEXT NOT NULL,
			client_id TEXT NOT NULL DEFAULT '',
			exchange TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			order_type TEXT NOT NULL,
			status TEXT NOT NULL,
			size REAL NOT NULL,
			price REAL NOT NULL,
			filled_size REAL NOT NULL DEFAULT 0,
			avg_price REAL NOT NULL DEFAULT 0,
			realized_pnl REAL NOT NULL DEFAULT 0,
			reason TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS position_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			exchange TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			size REAL NOT NULL,
			entry_price REAL NOT NULL,
			exit_price REAL NOT NULL,
			realized_pnl REAL NOT NULL,
			reason TEXT NOT NULL,
			opened_at DATETIME NOT NULL,
			closed_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS trade_session_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			time DATETIME NOT NULL,
			symbol TEXT NOT NULL,
			event TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			price REAL NOT NULL DEFAULT 0,
			quantity REAL NOT NULL DEFAULT 0,
			order_id TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trade_session_log_time ON trade_session_log(time);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

// TradeRepository Implementation

func (s *SQLiteStore) SaveTrade(ctx context.Context, order *domain.Order) error {
	query := `INSERT INTO trades (order_id, client_id, exchange, symbol, side, order_type, status, size, price, filled_size, avg_price, realized_pnl, reason, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		order.ID, order.ClientID, order.Exchange, order.Symbol, order.Side, order.Type, order.Status,
		order.Size, order.Price, order.FilledSize, order.AvgPrice, order.RealizedPnL, order.Reason, order.CreatedAt)
	return err
}

func (s *SQLiteStore) ListTrades(ctx context.Context, limit int) ([]*domain.Order, error) {
	query := `SELECT order_id, client_id, exchange, symbol, side, order_type, status, size, price, filled_size, avg_price, realized_pnl, reason, created_at
			  FROM trades ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*domain.Order
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.ClientID, &o.Exchange, &o.Symbol, &o.Side, &o.Type, &o.Status,
			&o.Size, &o.Price, &o.FilledSize, &o.AvgPrice, &o.RealizedPnL, &o.Reason, &o.CreatedAt); err != nil {
			return nil, err
		}
		trades = append(trades, &o)
	}
	return trades, rows.Err()
}

func (s *SQLiteStore) SavePositionHistory(ctx context.Context, h *domain.PositionHistory) error {
	query := `INSERT INTO position_history (exchange, symbol, side, size, entry_price, exit_price, realized_pnl, reason, opened_at, closed_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query,
		h.Exchange, h.Symbol, h.Side, h.Size, h.EntryPrice, h.ExitPrice, h.RealizedPnL, h.Reason, h.OpenedAt, h.ClosedAt)
	if err != nil {
		return err
	}
	h.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) ListPositionHistory(ctx context.Context, limit int) ([]*domain.PositionHistory, error) {
	query := `SELECT id, exchange, symbol, side, size, entry_price, exit_price, realized_pnl, reason, opened_at, closed_at
			  FROM position_history ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []*domain.PositionHistory
	for rows.Next() {
		var h domain.PositionHistory
		if err := rows.Scan(&h.ID, &h.Exchange, &h.Symbol, &h.Side, &h.Size, &h.EntryPrice, &h.ExitPrice,
			&h.RealizedPnL, &h.Reason, &h.OpenedAt, &h.ClosedAt); err != nil {
			return nil, err
		}
		history = append(history, &h)
	}
	return history, rows.Err()
}

func (s *SQLiteStore) SaveTradeSessionLog(ctx context.Context, l *domain.TradeSessionLog) error {
	query := `INSERT INTO trade_session_log (time, symbol, event, reason, price, quantity, order_id, detail)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query,
		l.Time, l.Symbol, l.Event, l.Reason, l.Price, l.Quantity, l.OrderID, l.Detail)
	if err != nil {
		return err
	}
	l.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) ListTradeSessionLogs(ctx context.Context, limit int) ([]*domain.TradeSessionLog, error) {
	query := `SELECT id, time, symbol, event, reason, price, quantity, order_id, detail
			  FROM trade_session_log ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*domain.TradeSessionLog
	for rows.Next() {
		var l domain.TradeSessionLog
		if err := rows.Scan(&l.ID, &l.Time, &l.Symbol, &l.Event, &l.Reason, &l.Price, &l.Quantity, &l.OrderID, &l.Detail); err != nil {
			return nil, err
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/vitos/crypto_trend_breakout/internal/domain"
)

// PostgresStore is the trade journal on Postgres, selected with storage.driver=postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	store := &PostgresStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id BIGSERIAL PRIMARY KEY,
			order_id TEXT NOT NULL,
			client_id TEXT NOT NULL DEFAULT '',
			exchange TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			order_type TEXT NOT NULL,
			status TEXT NOT NULL,
			size DOUBLE PRECISION NOT NULL,
			price DOUBLE PRECISION NOT NULL,
			filled_size DOUBLE PRECISION NOT NULL DEFAULT 0,
			avg_price DOUBLE PRECISION NOT NULL DEFAULT 0,
			realized_pnl DOUBLE PRECISION NOT NULL DEFAULT 0,
			reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS position_history (
			id BIGSERIAL PRIMARY KEY,
			exchange TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			size DOUBLE PRECISION NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			exit_price DOUBLE PRECISION NOT NULL,
			realized_pnl DOUBLE PRECISION NOT NULL,
			reason TEXT NOT NULL,
			opened_at TIMESTAMPTZ NOT NULL,
			closed_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS trade_session_log (
			id BIGSERIAL PRIMARY KEY,
			time TIMESTAMPTZ NOT NULL,
			symbol TEXT NOT NULL,
			event TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			price DOUBLE PRECISION NOT NULL DEFAULT 0,
			quantity DOUBLE PRECISION NOT NULL DEFAULT 0,
			order_id TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trade_session_log_time ON trade_session_log(time)`,
	}
	for _, q := range queries {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveTrade(ctx context.Context, order *domain.Order) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO trades (order_id, client_id, exchange, symbol, side, order_type, status, size, price, filled_size, avg_price, realized_pnl, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		order.ID, order.ClientID, order.Exchange, order.Symbol, string(order.Side), string(order.Type), string(order.Status),
		order.Size, order.Price, order.FilledSize, order.AvgPrice, order.RealizedPnL, order.Reason, order.CreatedAt)
	return err
}

func (s *PostgresStore) ListTrades(ctx context.Context, limit int) ([]*domain.Order, error) {
	rows, err := s.pool.Query(ctx, `SELECT order_id, client_id, exchange, symbol, side, order_type, status, size, price, filled_size, avg_price, realized_pnl, reason, created_at
		FROM trades ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*domain.Order
	for rows.Next() {
		var o domain.Order
		var side, typ, status string
		if err := rows.Scan(&o.ID, &o.ClientID, &o.Exchange, &o.Symbol, &side, &typ, &status,
			&o.Size, &o.Price, &o.FilledSize, &o.AvgPrice, &o.RealizedPnL, &o.Reason, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.Side, o.Type, o.Status = domain.OrderSide(side), domain.OrderType(typ), domain.OrderStatus(status)
		trades = append(trades, &o)
	}
	return trades, rows.Err()
}

func (s *PostgresStore) SavePositionHistory(ctx context.Context, h *domain.PositionHistory) error {
	return s.pool.QueryRow(ctx, `INSERT INTO position_history (exchange, symbol, side, size, entry_price, exit_price, realized_pnl, reason, opened_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		h.Exchange, h.Symbol, string(h.Side), h.Size, h.EntryPrice, h.ExitPrice, h.RealizedPnL, h.Reason, h.OpenedAt, h.ClosedAt,
	).Scan(&h.ID)
}

func (s *PostgresStore) ListPositionHistory(ctx context.Context, limit int) ([]*domain.PositionHistory, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, exchange, symbol, side, size, entry_price, exit_price, realized_pnl, reason, opened_at, closed_at
		FROM position_history ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []*domain.PositionHistory
	for rows.Next() {
		var h domain.PositionHistory
		var side string
		if err := rows.Scan(&h.ID, &h.Exchange, &h.Symbol, &side, &h.Size, &h.EntryPrice, &h.ExitPrice,
			&h.RealizedPnL, &h.Reason, &h.OpenedAt, &h.ClosedAt); err != nil {
			return nil, err
		}
		h.Side = domain.Side(side)
		history = append(history, &h)
	}
	return history, rows.Err()
}

func (s *PostgresStore) SaveTradeSessionLog(ctx context.Context, l *domain.TradeSessionLog) error {
	return s.pool.QueryRow(ctx, `INSERT INTO trade_session_log (time, symbol, event, reason, price, quantity, order_id, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		l.Time, l.Symbol, string(l.Event), l.Reason, l.Price, l.Quantity, l.OrderID, l.Detail,
	).Scan(&l.ID)
}

func (s *PostgresStore) ListTradeSessionLogs(ctx context.Context, limit int) ([]*domain.TradeSessionLog, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, time, symbol, event, reason, price, quantity, order_id, detail
		FROM trade_session_log ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*domain.TradeSessionLog
	for rows.Next() {
		var l domain.TradeSessionLog
		var event string
		if err := rows.Scan(&l.ID, &l.Time, &l.Symbol, &event, &l.Reason, &l.Price, &l.Quantity, &l.OrderID, &l.Detail); err != nil {
			return nil, err
		}
		l.Event = domain.EventType(event)
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

package domain

import (
	"context"
	"time"
)

// Exchange defines the venue gateway consumed by the trading core.
// Implementations wrap every failure in a *VenueError.
type Exchange interface {
	Name() string
	Ping(ctx context.Context) error
	GetCandles(ctx context.Context, symbol string, timeframe time.Duration, limit int) ([]Candle, error)
	GetTicker(ctx context.Context, symbol string) (*Ticker, error)
	GetBalance(ctx context.Context) (map[string]float64, error)

	PlaceOrder(ctx context.Context, order *Order) (*Order, error)
	GetOrder(ctx context.Context, symbol, orderID string) (*Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error

	// GetOpenPositions is used for startup reconciliation and to detect
	// positions closed by the venue.
	GetOpenPositions(ctx context.Context, symbol string) ([]*Position, error)
}

// SignalEvaluator turns a validated candle window into an entry decision.
type SignalEvaluator interface {
	Evaluate(candles []Candle) (Signal, error)
}

// TradeRepository defines storage operations for the trade journal.
// The journal is an observability artifact; it is never read back into TradeState.
type TradeRepository interface {
	SaveTrade(ctx context.Context, order *Order) error
	ListTrades(ctx context.Context, limit int) ([]*Order, error)

	SavePositionHistory(ctx context.Context, history *PositionHistory) error
	ListPositionHistory(ctx context.Context, limit int) ([]*PositionHistory, error)

	SaveTradeSessionLog(ctx context.Context, log *TradeSessionLog) error
	ListTradeSessionLogs(ctx context.Context, limit int) ([]*TradeSessionLog, error)
}

// EventPublisher fans lifecycle events out to external sinks.
type EventPublisher interface {
	Publish(ctx context.Context, event *TradeSessionLog) error
}

package domain

import (
	"fmt"
	"time"
)

// TradeState is a point-in-time copy of the single mutable trading record.
// The live record is owned by usecase.TradeStateStore.
type TradeState struct {
	InTrade         bool      `json:"in_trade"`
	PositionSide    Side      `json:"position_side"`
	EntryPrice      float64   `json:"entry_price"`
	StopLossPrice   float64   `json:"stop_loss_price"`
	TakeProfitPrice float64   `json:"take_profit_price"`
	Quantity        float64   `json:"quantity"`
	EntryOrderID    string    `json:"entry_order_id"`
	OpenedAt        time.Time `json:"opened_at"`

	DailyRealizedLoss float64   `json:"daily_realized_loss"`
	DailyTradeCount   int       `json:"daily_trade_count"`
	DailyClosedTrades int       `json:"daily_closed_trades"`
	LastResetTime     time.Time `json:"last_reset_time"`
	LastTradeTime     time.Time `json:"last_trade_time"`

	PanicMode   bool   `json:"panic_mode"`
	PanicReason string `json:"panic_reason,omitempty"`
}

// CheckInvariants verifies the position fields agree with InTrade and that the protective
// levels bracket the entry on the correct side.
func (s TradeState) CheckInvariants() error {
	if !s.InTrade {
		if s.EntryPrice != 0 || s.StopLossPrice != 0 || s.TakeProfitPrice != 0 {
			return fmt.Errorf("flat state carries position levels")
		}
		return nil
	}
	if s.EntryPrice <= 0 || s.StopLossPrice <= 0 || s.TakeProfitPrice <= 0 {
		return fmt.Errorf("open position missing levels")
	}
	switch s.PositionSide {
	case SideLong:
		if !(s.StopLossPrice < s.EntryPrice && s.EntryPrice < s.TakeProfitPrice) {
			return fmt.Errorf("long levels out of order: sl=%f entry=%f tp=%f", s.StopLossPrice, s.EntryPrice, s.TakeProfitPrice)
		}
	case SideShort:
		if !(s.TakeProfitPrice < s.EntryPrice && s.EntryPrice < s.StopLossPrice) {
			return fmt.Errorf("short levels out of order: tp=%f entry=%f sl=%f", s.TakeProfitPrice, s.EntryPrice, s.StopLossPrice)
		}
	default:
		return fmt.Errorf("open position without side")
	}
	return nil
}

// EventType classifies journal entries.
type EventType string

const (
	EventGateDecision  EventType = "gate_decision"
	EventOrderSubmit   EventType = "order_submitted"
	EventOrderFilled   EventType = "order_filled"
	EventOrderTimeout  EventType = "order_timeout"
	EventPositionOpen  EventType = "position_opened"
	EventPositionClose EventType = "position_closed"
	EventPanic         EventType = "panic"
	EventDailyReset    EventType = "daily_reset"
	EventShutdown      EventType = "shutdown"
	EventError         EventType = "error"
)

// TradeSessionLog is one lifecycle event in the append-only journal.
type TradeSessionLog struct {
	ID       int64     `json:"id"`
	Time     time.Time `json:"time"`
	Symbol   string    `json:"symbol"`
	Event    EventType `json:"event"`
	Reason   string    `json:"reason,omitempty"`
	Price    float64   `json:"price,omitempty"`
	Quantity float64   `json:"quantity,omitempty"`
	OrderID  string    `json:"order_id,omitempty"`
	Detail   string    `json:"detail,omitempty"`
}

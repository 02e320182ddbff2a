package domain

import "time"

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// EntryOrderSide is the order side that opens a position on this side.
func (s Side) EntryOrderSide() OrderSide {
	if s == SideShort {
		return OrderSideSell
	}
	return OrderSideBuy
}

// CloseOrderSide is the order side that flattens a position on this side.
func (s Side) CloseOrderSide() OrderSide {
	if s == SideShort {
		return OrderSideBuy
	}
	return OrderSideSell
}

type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

type OrderStatus string

const (
	OrderStatusOpen     OrderStatus = "open"
	OrderStatusClosed   OrderStatus = "closed" // fully filled
	OrderStatusCanceled OrderStatus = "canceled"
)

// Position represents an open position reported by the venue.
type Position struct {
	Exchange      string
	Symbol        string
	Side          Side
	Size          float64
	EntryPrice    float64
	CurrentPrice  float64
	UnrealizedPnL float64
}

// Order is a venue order. The core references orders, it does not own their lifecycle.
type Order struct {
	ID          string      `json:"id"` // venue order id
	ClientID    string      `json:"client_id"`
	Exchange    string      `json:"exchange"`
	Symbol      string      `json:"symbol"`
	Side        OrderSide   `json:"side"`
	Type        OrderType   `json:"type"`
	Status      OrderStatus `json:"status"`
	Size        float64     `json:"size"`
	Price       float64     `json:"price"` // limit price, or fill price for market orders
	FilledSize  float64     `json:"filled_size"`
	AvgPrice    float64     `json:"avg_price"`
	RealizedPnL float64     `json:"realized_pnl"`
	Reason      string      `json:"reason"`
	CreatedAt   time.Time   `json:"created_at"`
}

// PositionHistory represents a closed position.
type PositionHistory struct {
	ID          int64     `json:"id"`
	Exchange    string    `json:"exchange"`
	Symbol      string    `json:"symbol"`
	Side        Side      `json:"side"`
	Size        float64   `json:"size"`
	EntryPrice  float64   `json:"entry_price"`
	ExitPrice   float64   `json:"exit_price"`
	RealizedPnL float64   `json:"realized_pnl"`
	Reason      string    `json:"reason"`
	OpenedAt    time.Time `json:"opened_at"`
	ClosedAt    time.Time `json:"closed_at"`
}

package model

import "time"

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// SideFor maps an actionable signal onto an order side.
func SideFor(s Signal) (OrderSide, bool) {
	switch s {
	case SignalBuy:
		return SideBuy, true
	case SignalSell:
		return SideSell, true
	}
	return "", false
}

// OrderType is the execution style of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// Order is a request to the order-management collaborator.
type Order struct {
	ClientOrderID string    `json:"client_order_id"`
	Strategy      string    `json:"strategy"`
	Symbol        string    `json:"symbol"`
	Side          OrderSide `json:"side"`
	Type          OrderType `json:"type"`
	Quantity      float64   `json:"quantity"`
	Price         float64   `json:"price"` // reference price; limit price for LIMIT orders
	Timestamp     int64     `json:"ts"`    // epoch ms of the tick that triggered the order
	Reason        string    `json:"reason"`
	TraceID       string    `json:"trace_id,omitempty"`
}

// Fill is the executed part of an order.
type Fill struct {
	OrderID   string    `json:"order_id"`
	Order     Order     `json:"order"`
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
	Slippage  float64   `json:"slippage"`
	Status    string    `json:"status"` // FILLED, PARTIALLY_FILLED
	FilledAt  time.Time `json:"filled_at"`
	Simulated bool      `json:"simulated"`
}

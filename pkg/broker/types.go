package broker

import "time"

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType denotes basic order types.
type OrderType string

const (
	OrderTypeMarket   OrderType = "MARKET"
	OrderTypeLimit    OrderType = "LIMIT"
	OrderTypeStopLoss OrderType = "STOP_LOSS"
)

// OrderStatus normalizes broker order status into a small set.
type OrderStatus string

const (
	StatusNew      OrderStatus = "NEW"
	StatusFilled   OrderStatus = "FILLED"
	StatusRejected OrderStatus = "REJECTED"
)

// OrderRequest captures an order intent to be sent to the broker.
type OrderRequest struct {
	Instrument string
	Side       Side
	Type       OrderType
	Qty        float64
	Price      float64 // required for LIMIT
	StopPrice  float64 // required for STOP_LOSS
	ClientID   string  // client order id
	ReduceOnly bool    // exits and partial exits only reduce exposure
}

// OrderResult returns the broker ack.
type OrderResult struct {
	OrderRef  string
	Status    OrderStatus
	FilledQty float64
	AvgPrice  float64
}

// Position is a broker-reported holding, the external source of truth the
// engine reconciles against.
type Position struct {
	Instrument string
	Quantity   float64 // signed: negative for short
	AvgPrice   float64
	UpdatedAt  time.Time
}

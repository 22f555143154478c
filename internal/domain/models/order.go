package models

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "B"
	SideSell OrderSide = "S"
)

// OrderType is the execution style of an order.
type OrderType string

const (
	TypeMarket OrderType = "MKT"
	TypeLimit  OrderType = "LMT"
)

// OrderStatus is the terminal-reported outcome of a submission.
type OrderStatus string

const (
	StatusFilled   OrderStatus = "filled"
	StatusRejected OrderStatus = "rejected"
	StatusPending  OrderStatus = "pending"
)

// Order is a request to the order-execution collaborator.
type Order struct {
	Symbol   string
	Price    float64
	Quantity int
	Type     OrderType
	Side     OrderSide
}

// OrderResult reports how a submission resolved. PendingID is set only
// when Status is StatusPending and identifies the open order at the
// terminal.
type OrderResult struct {
	Status    OrderStatus
	PendingID string
}

// Position is one open position as reported by the order-execution
// collaborator. Qty is negative for short positions.
type Position struct {
	Symbol        string
	Qty           int
	AvgPrice      float64
	LastPrice     float64
	UnrealizedPnL float64
	Side          OrderSide
}

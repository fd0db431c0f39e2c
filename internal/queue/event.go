// Package queue defines message payloads exchanged over the message broker,
// the publisher used after a checkout commits and the background consumer
// that turns those messages into the staff notification log.
package queue

// Queue names.  Both queues are durable.
const (
	OrderCompletedQueue = "order.completed"
	LowStockQueue       = "inventory.low_stock"
)

// OrderCompletedEvent is published after an order has been committed.  It
// contains enough information for downstream consumers to log, notify or
// trigger analytics without querying the primary database.  Amounts are
// decimal strings with two places.
type OrderCompletedEvent struct {
	OrderID       uint64  `json:"order_id"`
	Reference     string  `json:"reference"`
	Variant       string  `json:"variant"`
	UserID        *uint64 `json:"user_id,omitempty"`
	PaymentMethod string  `json:"payment_method"`
	TotalItems    int     `json:"total_items"`
	Subtotal      string  `json:"subtotal"`
	Discount      string  `json:"discount"`
	Tax           string  `json:"tax"`
	Total         string  `json:"total"`
	CompletedAt   string  `json:"completed_at"`
}

// LowStockEvent is published when the notifier opens a new notification
// for a gift-shop item.
type LowStockEvent struct {
	ItemID         uint64 `json:"item_id"`
	StockRemaining int    `json:"stock_remaining"`
	Threshold      int    `json:"threshold"`
	Message        string `json:"message"`
	DetectedAt     string `json:"detected_at"`
}

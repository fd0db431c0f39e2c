package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/iliyamo/museum-checkout/internal/metrics"
	"github.com/iliyamo/museum-checkout/internal/queue"
)

// StockReader is the part of the ledger the notifier reads.
type StockReader interface {
	StockLevel(ctx context.Context, itemID uint64) (int, error)
}

// Notifier raises a staff notification when a gift-shop item's stock is
// at or below the threshold after a sale or stock edit.  While a
// notification for the item is unresolved, further triggers are no-ops.
type Notifier struct {
	stock     StockReader
	store     NotificationStore
	publisher EventPublisher
	threshold int
	metrics   *metrics.Checkout
	async     func(func())
}

// NewNotifier wires a Notifier.  publisher and m may be nil.
func NewNotifier(stock StockReader, store NotificationStore, publisher EventPublisher, threshold int, m *metrics.Checkout) *Notifier {
	return &Notifier{
		stock:     stock,
		store:     store,
		publisher: publisher,
		threshold: threshold,
		metrics:   m,
		async:     func(f func()) { go f() },
	}
}

// Check reads the item's current stock and opens a notification when it
// is at or below the threshold.  It reports whether a new notification was
// created.
func (n *Notifier) Check(ctx context.Context, itemID uint64) (bool, error) {
	level, err := n.stock.StockLevel(ctx, itemID)
	if err != nil {
		return false, err
	}
	if level > n.threshold {
		return false, nil
	}
	msg := fmt.Sprintf("Low stock: item %d has %d left", itemID, level)
	if level == 0 {
		msg = fmt.Sprintf("Item %d is now out of stock", itemID)
	}
	created, err := n.store.InsertIfNoneOpen(ctx, itemID, msg)
	if err != nil || !created {
		return false, err
	}
	n.metrics.NotificationCreated()

	if n.publisher != nil {
		ev := queue.LowStockEvent{
			ItemID:         itemID,
			StockRemaining: level,
			Threshold:      n.threshold,
			Message:        msg,
			DetectedAt:     time.Now().UTC().Format(time.RFC3339),
		}
		bg := context.WithoutCancel(ctx)
		n.async(func() {
			pctx, cancel := context.WithTimeout(bg, 5*time.Second)
			defer cancel()
			if err := n.publisher.PublishLowStock(pctx, ev); err != nil {
				log.Printf("notifier: publish low stock for item %d failed: %v", itemID, err)
			}
		})
	}
	return true, nil
}

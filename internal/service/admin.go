package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/iliyamo/museum-checkout/internal/model"
	"github.com/iliyamo/museum-checkout/internal/repository"
)

// AdminService covers the staff side of the shared counters: stock edits
// routed through the ledger, and the open notification queue.
type AdminService struct {
	tx            TxRunner
	ledger        Ledger
	notifier      *Notifier
	notifications NotificationStore
}

// NewAdminService wires an AdminService.  notifier may be nil.
func NewAdminService(tx TxRunner, ledger Ledger, notifier *Notifier, notifications NotificationStore) *AdminService {
	return &AdminService{tx: tx, ledger: ledger, notifier: notifier, notifications: notifications}
}

// AdjustStock applies a signed correction to a gift-shop item and returns
// the resulting level.  A decrement larger than the stock on hand is
// rejected with *InsufficientError instead of clamping.
func (s *AdminService) AdjustStock(ctx context.Context, itemID uint64, delta int) (int, error) {
	if delta == 0 {
		return 0, invalid("delta", "delta must not be zero")
	}
	err := s.tx.RunInTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		out, err := s.ledger.AdjustStockTx(ctx, tx, itemID, delta)
		if err != nil {
			return err
		}
		if out == repository.Insufficient {
			return &InsufficientError{Resource: resourceGiftShop, ID: itemID, Requested: -delta}
		}
		return nil
	})
	var ins *InsufficientError
	if errors.As(err, &ins) {
		// A decrement on a missing row also matches no rows.
		left, rerr := s.ledger.StockLevel(ctx, itemID)
		switch {
		case rerr == nil:
			ins.Remaining = &left
		case errors.Is(rerr, repository.ErrNotFound):
			return 0, fmt.Errorf("%w: giftshop item %d", ErrNotFound, itemID)
		}
		return 0, ins
	}
	if err != nil {
		return 0, classify(err)
	}

	level, err := s.ledger.StockLevel(ctx, itemID)
	if err != nil {
		return 0, classify(err)
	}
	if delta < 0 && s.notifier != nil {
		if _, err := s.notifier.Check(ctx, itemID); err != nil {
			log.Printf("admin: low-stock check for item %d failed: %v", itemID, err)
		}
	}
	return level, nil
}

// OpenNotifications lists unresolved notifications, oldest first.
func (s *AdminService) OpenNotifications(ctx context.Context) ([]model.Notification, error) {
	list, err := s.notifications.ListUnresolved(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return list, nil
}

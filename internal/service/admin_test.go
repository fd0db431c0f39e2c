package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/museum-checkout/internal/model"
)

func TestNotifierOpensOneNotificationPerItem(t *testing.T) {
	h := newHarness("0", 3)
	h.db.addGiftShop(1, "Tote", "15.00", 3)
	h.db.addGiftShop(2, "Pen", "2.00", 40)
	ctx := context.Background()

	created, err := h.notifier.Check(ctx, 1)
	require.NoError(t, err)
	assert.True(t, created)
	created, err = h.notifier.Check(ctx, 1)
	require.NoError(t, err)
	assert.False(t, created)

	created, err = h.notifier.Check(ctx, 2)
	require.NoError(t, err)
	assert.False(t, created)

	require.Len(t, h.db.notifications, 1)
	assert.Equal(t, "Low stock: item 1 has 3 left", h.db.notifications[0].Message)
	require.Len(t, h.pub.lowStock, 1)
	assert.Equal(t, 3, h.pub.lowStock[0].StockRemaining)
}

func TestCheckoutTriggersOutOfStockNotification(t *testing.T) {
	h := newHarness("0", 2)
	h.db.addGiftShop(1, "Catalogue", "45.00", 2)

	_, err := h.checkout.CheckoutPOS(context.Background(), clerk, POSRequest{
		PaymentMethod: model.PaymentCash,
		GiftShopItems: []POSItem{{ID: 1, Qty: 1, UnitPrice: dec("45.00")}, {ID: 1, Qty: 1, UnitPrice: dec("45.00")}},
	})
	require.NoError(t, err)

	require.Len(t, h.db.notifications, 1)
	assert.Equal(t, "Item 1 is now out of stock", h.db.notifications[0].Message)
	assert.Equal(t, 0, h.db.stockOf(1))
}

func TestAdjustStock(t *testing.T) {
	h := newHarness("0", 1)
	h.db.addGiftShop(1, "Print", "25.00", 3)
	ctx := context.Background()

	_, err := h.admin.AdjustStock(ctx, 1, -10)
	var ins *InsufficientError
	require.ErrorAs(t, err, &ins)
	assert.Equal(t, 3, *ins.Remaining)
	assert.Equal(t, 3, h.db.stockOf(1))

	level, err := h.admin.AdjustStock(ctx, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, 8, level)
	assert.Empty(t, h.db.notifications)

	level, err = h.admin.AdjustStock(ctx, 1, -8)
	require.NoError(t, err)
	assert.Equal(t, 0, level)

	open, err := h.admin.OpenNotifications(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, uint64(1), open[0].ItemID)

	_, err = h.admin.AdjustStock(ctx, 1, 0)
	assert.Equal(t, CodeValidation, Code(err))
	_, err = h.admin.AdjustStock(ctx, 99, 4)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdjustStockDecrementOnMissingItem(t *testing.T) {
	h := newHarness("0", 1)

	_, err := h.admin.AdjustStock(context.Background(), 42, -3)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, CodeNotFound, Code(err))
	var ins *InsufficientError
	assert.False(t, errors.As(err, &ins))
}

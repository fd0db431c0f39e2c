package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/museum-checkout/internal/database"
	"github.com/iliyamo/museum-checkout/internal/model"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestOrderCreateTxWritesFixedPointAmounts(t *testing.T) {
	db, mock := newMock(t)
	tx := beginTx(t, db, mock)
	mock.ExpectExec("INSERT INTO transactions").
		WithArgs(nil, "ref-1", "20.00", "2.00", "1.49", "19.49", 2, "Cash", "Completed", nil, "", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(41, 1))

	o := &model.Order{
		Reference:      "ref-1",
		Subtotal:       dec("20"),
		DiscountAmount: dec("2"),
		TaxAmount:      dec("1.49"),
		TotalPrice:     dec("19.49"),
		TotalItems:     2,
		PaymentMethod:  model.PaymentCash,
		Status:         model.OrderCompleted,
		CreatedAt:      time.Now(),
	}
	id, err := NewOrderRepo(db).CreateTx(context.Background(), tx, o)
	require.NoError(t, err)
	assert.Equal(t, uint64(41), id)
	assert.Equal(t, uint64(41), o.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderCreateTxDuplicateIdempotencyKey(t *testing.T) {
	db, mock := newMock(t)
	tx := beginTx(t, db, mock)
	mock.ExpectExec("INSERT INTO transactions").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'k1' for key 'uq_transactions_idempotency'"})

	key := "k1"
	_, err := NewOrderRepo(db).CreateTx(context.Background(), tx, &model.Order{IdempotencyKey: &key})
	assert.ErrorIs(t, err, database.ErrIntegrity)
	assert.True(t, database.IsDuplicate(err))
}

func TestInsertGiftShopLinesTxBatchesRows(t *testing.T) {
	db, mock := newMock(t)
	tx := beginTx(t, db, mock)
	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO transaction_giftshop_items (transaction_id, item_id, quantity, unit_price) VALUES (?,?,?,?),(?,?,?,?)")).
		WithArgs(5, 7, 2, "9.00", 5, 8, 1, "3.15").
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := NewOrderRepo(db).InsertGiftShopLinesTx(context.Background(), tx, 5, []model.GiftShopLine{
		{ItemID: 7, Quantity: 2, UnitPrice: dec("9")},
		{ItemID: 8, Quantity: 1, UnitPrice: dec("3.15")},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertLinesTxEmptyIsNoop(t *testing.T) {
	db, mock := newMock(t)
	tx := beginTx(t, db, mock)
	repo := NewOrderRepo(db)

	require.NoError(t, repo.InsertTicketLinesTx(context.Background(), tx, 1, nil))
	require.NoError(t, repo.InsertGiftShopLinesTx(context.Background(), tx, 1, nil))
	require.NoError(t, repo.InsertCafeteriaLinesTx(context.Background(), tx, 1, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIdempotencyKey(t *testing.T) {
	db, mock := newMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, user_id, reference").WithArgs("k1").WillReturnRows(
		sqlmock.NewRows([]string{"id", "user_id", "reference", "subtotal", "discount_amount", "tax_amount",
			"total_price", "total_items", "payment_method", "status", "request_hash", "handled_by", "created_at"}).
			AddRow(9, 3, "ref-9", "20.00", "2.00", "1.49", "19.49", 2, "Credit Card", "Completed", "abc123", nil, now))
	mock.ExpectQuery("SELECT id, user_id, reference").WithArgs("k2").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	repo := NewOrderRepo(db)
	o, err := repo.FindByIdempotencyKey(context.Background(), "k1")
	require.NoError(t, err)
	assert.Equal(t, uint64(9), o.ID)
	require.NotNil(t, o.UserID)
	assert.Equal(t, uint64(3), *o.UserID)
	assert.Nil(t, o.HandledBy)
	assert.True(t, o.TotalPrice.Equal(dec("19.49")))
	assert.Equal(t, model.PaymentCreditCard, o.PaymentMethod)
	assert.Equal(t, "abc123", o.RequestHash)

	_, err = repo.FindByIdempotencyKey(context.Background(), "k2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLinesReturnLockedUnitPrices(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("FROM transaction_tickets").WithArgs(5).WillReturnRows(
		sqlmock.NewRows([]string{"id", "ticket_type_id", "quantity", "unit_price", "exhibition_id"}).
			AddRow(1, 2, 2, "25.00", nil))
	mock.ExpectQuery("FROM transaction_giftshop_items").WithArgs(5).WillReturnRows(
		sqlmock.NewRows([]string{"id", "item_id", "quantity", "unit_price"}).AddRow(3, 7, 2, "9.00"))
	mock.ExpectQuery("FROM transaction_cafeteria_items").WithArgs(5).WillReturnRows(
		sqlmock.NewRows([]string{"id", "item_id", "quantity", "unit_price", "note"}).AddRow(4, 11, 1, "3.60", "no ice"))

	lines, err := NewOrderRepo(db).Lines(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, lines.Tickets, 1)
	require.Len(t, lines.GiftShop, 1)
	require.Len(t, lines.Cafeteria, 1)
	assert.True(t, lines.GiftShop[0].UnitPrice.Equal(dec("9.00")))
	assert.Nil(t, lines.Tickets[0].ExhibitionID)
	require.NotNil(t, lines.Cafeteria[0].Note)
	assert.Equal(t, "no ice", *lines.Cafeteria[0].Note)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValueTuples(t *testing.T) {
	assert.Equal(t, "(?,?)", valueTuples(1, 2))
	assert.Equal(t, "(?,?,?),(?,?,?)", valueTuples(2, 3))
}

package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/museum-checkout/internal/database"
	"github.com/iliyamo/museum-checkout/internal/model"
)

func TestCatalogListByIDs(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM giftshop_items WHERE id IN (?,?)")).WithArgs(7, 8).WillReturnRows(
		sqlmock.NewRows([]string{"id", "name", "price", "is_available", "stock_quantity", "event_id"}).
			AddRow(7, "Poster", "10.00", true, 4, nil).
			AddRow(8, "Mug", "12.50", false, 0, nil))

	items, err := NewCatalogRepo(db).ListByIDs(context.Background(), model.LineGiftShop, []uint64{7, 8, 7})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.True(t, items[7].Price.Equal(dec("10")))
	require.NotNil(t, items[7].Stock)
	assert.Equal(t, 4, *items[7].Stock)
	assert.False(t, items[8].IsAvailable)
	assert.Equal(t, model.LineGiftShop, items[8].Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogTicketTypeCarriesEvent(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM ticket_types WHERE id IN (?)")).WithArgs(2).WillReturnRows(
		sqlmock.NewRows([]string{"id", "name", "base_price", "is_available", "stock_quantity", "event_id"}).
			AddRow(2, "Gala", "40.00", true, nil, 12))

	items, err := NewCatalogRepo(db).ListByIDs(context.Background(), model.LineTicket, []uint64{2})
	require.NoError(t, err)
	require.NotNil(t, items[2].EventID)
	assert.Equal(t, uint64(12), *items[2].EventID)
	assert.Nil(t, items[2].Stock)
}

func TestCatalogGetEvent(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("FROM events WHERE id = ?").WithArgs(4).WillReturnRows(
		sqlmock.NewRows([]string{"id", "title", "is_members_only", "is_cancelled", "max_capacity", "current_attendees"}).
			AddRow(4, "Members Night", true, false, 10, 9))
	mock.ExpectQuery("FROM events WHERE id = ?").WithArgs(5).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	repo := NewCatalogRepo(db)
	ev, err := repo.GetEvent(context.Background(), 4)
	require.NoError(t, err)
	assert.True(t, ev.IsMembersOnly)
	require.NotNil(t, ev.RemainingSpots())
	assert.Equal(t, 1, *ev.RemainingSpots())

	_, err = repo.GetEvent(context.Background(), 5)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNotificationInsertIfNoneOpen(t *testing.T) {
	db, mock := newMock(t)
	q := regexp.QuoteMeta("INSERT IGNORE INTO notifications (item_id, message, is_resolved) VALUES (?, ?, 0)")
	mock.ExpectExec(q).WithArgs(7, "low stock").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(q).WithArgs(7, "low stock").WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewNotificationRepo(db)
	created, err := repo.InsertIfNoneOpen(context.Background(), 7, "low stock")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.InsertIfNoneOpen(context.Background(), 7, "low stock")
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationListUnresolved(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery("FROM notifications WHERE is_resolved = 0").WillReturnRows(
		sqlmock.NewRows([]string{"id", "item_id", "message", "is_resolved", "created_at", "resolved_at"}).
			AddRow(1, 7, "Poster is out of stock", false, now, nil))

	list, err := NewNotificationRepo(db).ListUnresolved(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, uint64(7), list[0].ItemID)
	assert.Nil(t, list[0].ResolvedAt)
}

func TestDonationListPublicHidesAnonymousDonors(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery("FROM donations d").WithArgs(50).WillReturnRows(
		sqlmock.NewRows([]string{"name", "amount", "donation_type", "dedication_message", "created_at"}).
			AddRow(nil, "50.00", "General Fund", nil, now).
			AddRow("Ada Lovelace", "25.00", "Education Programs", "for the kids", now))

	list, err := NewDonationRepo(db).ListPublic(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, AnonymousDonor, list[0].DonorName)
	assert.True(t, list[0].Amount.Equal(dec("50")))
	assert.Equal(t, "Ada Lovelace", list[1].DonorName)
	require.NotNil(t, list[1].DedicationMessage)
}

func TestDonationCreateTx(t *testing.T) {
	db, mock := newMock(t)
	tx := beginTx(t, db, mock)
	mock.ExpectExec("INSERT INTO donations").
		WithArgs(3, nil, "50.00", "General Fund", true, nil).
		WillReturnResult(sqlmock.NewResult(12, 1))

	d := &model.DonationLine{OrderID: 3, Amount: dec("50"), DonationType: model.DonationGeneralFund, IsAnonymous: true}
	id, err := NewDonationRepo(db).CreateTx(context.Background(), tx, d)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMembershipActiveDiscount(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("SELECT b.discount_percentage").WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"discount_percentage"}).AddRow("10.00"))
	mock.ExpectQuery("SELECT b.discount_percentage").WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"discount_percentage"}))

	repo := NewMembershipRepo(db)
	pct, err := repo.ActiveDiscount(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, pct.Equal(dec("10")))

	pct, err = repo.ActiveDiscount(context.Background(), 4)
	require.NoError(t, err)
	assert.True(t, pct.IsZero())
}

func TestMembershipUpsertTx(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := func() *model.Membership {
		return &model.Membership{UserID: 3, PlanType: model.PlanDual, StartDate: start, ExpirationDate: start.AddDate(1, 0, 0)}
	}

	t.Run("new", func(t *testing.T) {
		db, mock := newMock(t)
		tx := beginTx(t, db, mock)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM memberships WHERE user_id = ? FOR UPDATE")).WithArgs(3).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectExec("INSERT INTO memberships").WithArgs(3, "Dual", "2026-01-01", "2027-01-01").
			WillReturnResult(sqlmock.NewResult(8, 1))

		mem := m()
		renewal, err := NewMembershipRepo(db).UpsertTx(context.Background(), tx, mem)
		require.NoError(t, err)
		assert.False(t, renewal)
		assert.Equal(t, uint64(8), mem.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("renewal", func(t *testing.T) {
		db, mock := newMock(t)
		tx := beginTx(t, db, mock)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM memberships WHERE user_id = ? FOR UPDATE")).WithArgs(3).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(6))
		mock.ExpectExec("UPDATE memberships SET membership_type").WithArgs("Dual", "2026-01-01", "2027-01-01", 6).
			WillReturnResult(sqlmock.NewResult(0, 1))

		mem := m()
		renewal, err := NewMembershipRepo(db).UpsertTx(context.Background(), tx, mem)
		require.NoError(t, err)
		assert.True(t, renewal)
		assert.Equal(t, uint64(6), mem.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserCreateTxDuplicateEmail(t *testing.T) {
	db, mock := newMock(t)
	tx := beginTx(t, db, mock)
	mock.ExpectExec("INSERT INTO users").WithArgs("ada@example.org", "Ada", "", "hash", "CUSTOMER").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	_, err := NewUserRepo(db).CreateTx(context.Background(), tx, &model.User{
		Email: "  Ada@Example.org ", FirstName: "Ada", PasswordHash: "hash",
	})
	assert.ErrorIs(t, err, ErrEmailExists)
	assert.ErrorIs(t, err, database.ErrIntegrity)
}

func TestUserGetByEmailTxNotFound(t *testing.T) {
	db, mock := newMock(t)
	tx := beginTx(t, db, mock)
	mock.ExpectQuery("FROM users WHERE email=?").WithArgs("nobody@example.org").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := NewUserRepo(db).GetByEmailTx(context.Background(), tx, "Nobody@example.org")
	assert.ErrorIs(t, err, ErrNotFound)
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/museum-checkout/internal/database"
	"github.com/iliyamo/museum-checkout/internal/model"
)

// OrderRepo persists orders (the `transactions` table) and their line
// items.  All writes take the caller's transaction so that an order and
// its reservations commit or roll back together.
type OrderRepo struct {
	db *sql.DB
}

// NewOrderRepo returns an OrderRepo bound to the provided database.
func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

// OrderLines groups the persisted line items of one order by kind.
type OrderLines struct {
	Tickets   []model.TicketLine
	GiftShop  []model.GiftShopLine
	Cafeteria []model.CafeteriaLine
}

// money renders an amount the way it is stored in a DECIMAL(10,2) column.
func money(d decimal.Decimal) string { return d.StringFixed(2) }

// CreateTx inserts the order header and returns its id.  A duplicate
// idempotency key surfaces as a classified integrity error; callers check
// database.IsDuplicate to turn it into a replay.
func (r *OrderRepo) CreateTx(ctx context.Context, tx *sql.Tx, o *model.Order) (uint64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO transactions
           (user_id, reference, subtotal, discount_amount, tax_amount, total_price, total_items,
            payment_method, status, idempotency_key, request_hash, handled_by, created_at)
         VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		o.UserID, o.Reference, money(o.Subtotal), money(o.DiscountAmount), money(o.TaxAmount),
		money(o.TotalPrice), o.TotalItems, string(o.PaymentMethod), string(o.Status),
		o.IdempotencyKey, o.RequestHash, o.HandledBy, o.CreatedAt.UTC(),
	)
	if err != nil {
		return 0, database.Classify(fmt.Errorf("insert order: %w", err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	o.ID = uint64(id)
	return o.ID, nil
}

// InsertTicketLinesTx inserts ticket lines in one statement.  An empty
// slice is a no-op.
func (r *OrderRepo) InsertTicketLinesTx(ctx context.Context, tx *sql.Tx, orderID uint64, lines []model.TicketLine) error {
	if len(lines) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(lines)*5)
	for _, l := range lines {
		args = append(args, orderID, l.TicketTypeID, l.Quantity, money(l.UnitPrice), l.ExhibitionID)
	}
	q := `INSERT INTO transaction_tickets (transaction_id, ticket_type_id, quantity, unit_price, exhibition_id) VALUES ` +
		valueTuples(len(lines), 5)
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return database.Classify(fmt.Errorf("insert ticket lines: %w", err))
	}
	return nil
}

// InsertGiftShopLinesTx inserts gift-shop lines in one statement.
func (r *OrderRepo) InsertGiftShopLinesTx(ctx context.Context, tx *sql.Tx, orderID uint64, lines []model.GiftShopLine) error {
	if len(lines) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(lines)*4)
	for _, l := range lines {
		args = append(args, orderID, l.ItemID, l.Quantity, money(l.UnitPrice))
	}
	q := `INSERT INTO transaction_giftshop_items (transaction_id, item_id, quantity, unit_price) VALUES ` +
		valueTuples(len(lines), 4)
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return database.Classify(fmt.Errorf("insert giftshop lines: %w", err))
	}
	return nil
}

// InsertCafeteriaLinesTx inserts cafeteria lines in one statement.
func (r *OrderRepo) InsertCafeteriaLinesTx(ctx context.Context, tx *sql.Tx, orderID uint64, lines []model.CafeteriaLine) error {
	if len(lines) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(lines)*5)
	for _, l := range lines {
		args = append(args, orderID, l.ItemID, l.Quantity, money(l.UnitPrice), l.Note)
	}
	q := `INSERT INTO transaction_cafeteria_items (transaction_id, item_id, quantity, unit_price, note) VALUES ` +
		valueTuples(len(lines), 5)
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return database.Classify(fmt.Errorf("insert cafeteria lines: %w", err))
	}
	return nil
}

// FindByIdempotencyKey returns the order committed under key, or
// ErrNotFound.  It reads through the pool so it sees only committed rows.
// RequestHash is returned so the caller can tell a retry from a reuse.
func (r *OrderRepo) FindByIdempotencyKey(ctx context.Context, key string) (model.Order, error) {
	var (
		o      model.Order
		userID sql.NullInt64
		by     sql.NullInt64
		method string
		status string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, reference, subtotal, discount_amount, tax_amount, total_price, total_items,
                payment_method, status, request_hash, handled_by, created_at
         FROM transactions WHERE idempotency_key = ? LIMIT 1`, key,
	).Scan(&o.ID, &userID, &o.Reference, &o.Subtotal, &o.DiscountAmount, &o.TaxAmount, &o.TotalPrice,
		&o.TotalItems, &method, &status, &o.RequestHash, &by, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, ErrNotFound
	}
	if err != nil {
		return model.Order{}, database.Classify(err)
	}
	o.UserID = nullableID(userID)
	o.HandledBy = nullableID(by)
	o.PaymentMethod = model.PaymentMethod(method)
	o.Status = model.OrderStatus(status)
	o.IdempotencyKey = &key
	return o, nil
}

// Lines loads the persisted line items of an order.  Unit prices come back
// exactly as they were locked at commit time.
func (r *OrderRepo) Lines(ctx context.Context, orderID uint64) (OrderLines, error) {
	var out OrderLines

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, ticket_type_id, quantity, unit_price, exhibition_id FROM transaction_tickets WHERE transaction_id = ? ORDER BY id`,
		orderID)
	if err != nil {
		return out, database.Classify(err)
	}
	for rows.Next() {
		l := model.TicketLine{OrderID: orderID}
		var exh sql.NullInt64
		if err := rows.Scan(&l.ID, &l.TicketTypeID, &l.Quantity, &l.UnitPrice, &exh); err != nil {
			rows.Close()
			return out, err
		}
		l.ExhibitionID = nullableID(exh)
		out.Tickets = append(out.Tickets, l)
	}
	if err := closeRows(rows); err != nil {
		return out, err
	}

	rows, err = r.db.QueryContext(ctx,
		`SELECT id, item_id, quantity, unit_price FROM transaction_giftshop_items WHERE transaction_id = ? ORDER BY id`,
		orderID)
	if err != nil {
		return out, database.Classify(err)
	}
	for rows.Next() {
		l := model.GiftShopLine{OrderID: orderID}
		if err := rows.Scan(&l.ID, &l.ItemID, &l.Quantity, &l.UnitPrice); err != nil {
			rows.Close()
			return out, err
		}
		out.GiftShop = append(out.GiftShop, l)
	}
	if err := closeRows(rows); err != nil {
		return out, err
	}

	rows, err = r.db.QueryContext(ctx,
		`SELECT id, item_id, quantity, unit_price, note FROM transaction_cafeteria_items WHERE transaction_id = ? ORDER BY id`,
		orderID)
	if err != nil {
		return out, database.Classify(err)
	}
	for rows.Next() {
		l := model.CafeteriaLine{OrderID: orderID}
		var note sql.NullString
		if err := rows.Scan(&l.ID, &l.ItemID, &l.Quantity, &l.UnitPrice, &note); err != nil {
			rows.Close()
			return out, err
		}
		if note.Valid {
			l.Note = &note.String
		}
		out.Cafeteria = append(out.Cafeteria, l)
	}
	return out, closeRows(rows)
}

// valueTuples renders n "(?,...,?)" groups of width placeholders each.
func valueTuples(n, width int) string {
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?,", width), ",") + ")"
	return strings.TrimSuffix(strings.Repeat(tuple+",", n), ",")
}

func nullableID(v sql.NullInt64) *uint64 {
	if !v.Valid {
		return nil
	}
	id := uint64(v.Int64)
	return &id
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	return rows.Close()
}

package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/museum-checkout/internal/database"
	"github.com/iliyamo/museum-checkout/internal/model"
	"github.com/iliyamo/museum-checkout/internal/queue"
	"github.com/iliyamo/museum-checkout/internal/repository"
)

// fakeDB is an in-memory store with the same conditional-update contract
// as the MySQL repositories.  Writes made inside RunInTx are journaled so
// a failing unit of work can be undone.
type fakeDB struct {
	mu sync.Mutex

	stock         map[uint64]int
	events        map[uint64]*model.Event
	catalog       map[model.LineKind]map[uint64]model.CatalogItem
	orders        map[uint64]model.Order
	lines         map[uint64]*repository.OrderLines
	donations     map[uint64]model.DonationLine
	users         map[string]model.User
	memberships   map[uint64]*model.Membership
	discounts     map[uint64]decimal.Decimal
	purchases     []model.MembershipPurchaseLine
	notifications []model.Notification
	rsvps         []repository.RSVPRecord

	nextID    uint64
	failOn    map[string]error
	txStarted int
	commits   int
	rollbacks int
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		stock:       map[uint64]int{},
		events:      map[uint64]*model.Event{},
		catalog:     map[model.LineKind]map[uint64]model.CatalogItem{},
		orders:      map[uint64]model.Order{},
		lines:       map[uint64]*repository.OrderLines{},
		donations:   map[uint64]model.DonationLine{},
		users:       map[string]model.User{},
		memberships: map[uint64]*model.Membership{},
		discounts:   map[uint64]decimal.Decimal{},
		failOn:      map[string]error{},
	}
}

func (d *fakeDB) addGiftShop(id uint64, name, price string, stock int) {
	d.addItem(model.LineGiftShop, model.CatalogItem{ID: id, Name: name, Price: decimal.RequireFromString(price), IsAvailable: true})
	d.stock[id] = stock
}

func (d *fakeDB) addItem(kind model.LineKind, it model.CatalogItem) {
	if d.catalog[kind] == nil {
		d.catalog[kind] = map[uint64]model.CatalogItem{}
	}
	it.Kind = kind
	d.catalog[kind][it.ID] = it
}

func (d *fakeDB) addEvent(ev model.Event) { d.events[ev.ID] = &ev }

func (d *fakeDB) id() uint64 {
	d.nextID++
	return d.nextID
}

type journalKey struct{}

type journal struct{ undo []func() }

// record registers an undo step.  Callers hold d.mu.
func (d *fakeDB) record(ctx context.Context, f func()) {
	if j, ok := ctx.Value(journalKey{}).(*journal); ok {
		j.undo = append(j.undo, f)
	}
}

func (d *fakeDB) fail(op string) error {
	return d.failOn[op]
}

func (d *fakeDB) orderCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.orders)
}

func (d *fakeDB) stockOf(id uint64) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stock[id]
}

// fakeRunner implements TxRunner over fakeDB.
type fakeRunner struct{ db *fakeDB }

func (r fakeRunner) RunInTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	r.db.mu.Lock()
	r.db.txStarted++
	r.db.mu.Unlock()

	j := &journal{}
	err := fn(context.WithValue(ctx, journalKey{}, j), nil)

	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err != nil {
		for i := len(j.undo) - 1; i >= 0; i-- {
			j.undo[i]()
		}
		r.db.rollbacks++
		return err
	}
	if cerr := r.db.fail("commit"); cerr != nil {
		for i := len(j.undo) - 1; i >= 0; i-- {
			j.undo[i]()
		}
		r.db.rollbacks++
		return cerr
	}
	r.db.commits++
	return nil
}

type fakeLedger struct{ db *fakeDB }

func (l fakeLedger) ReserveStockTx(ctx context.Context, _ *sql.Tx, itemID uint64, qty int) (repository.Outcome, error) {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	if err := l.db.fail("ledger.ReserveStockTx"); err != nil {
		return repository.Insufficient, err
	}
	cur, ok := l.db.stock[itemID]
	if !ok || cur < qty {
		return repository.Insufficient, nil
	}
	l.db.stock[itemID] = cur - qty
	l.db.record(ctx, func() { l.db.stock[itemID] += qty })
	return repository.Reserved, nil
}

func (l fakeLedger) ReserveCapacityTx(ctx context.Context, _ *sql.Tx, eventID uint64, count int) (repository.Outcome, error) {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	ev, ok := l.db.events[eventID]
	if !ok {
		return repository.Insufficient, repository.ErrNotFound
	}
	if ev.IsCancelled {
		return repository.Cancelled, nil
	}
	if ev.MaxCapacity != nil && ev.CurrentAttendees+count > *ev.MaxCapacity {
		return repository.Insufficient, nil
	}
	ev.CurrentAttendees += count
	l.db.record(ctx, func() { ev.CurrentAttendees -= count })
	return repository.Reserved, nil
}

func (l fakeLedger) AdjustStockTx(ctx context.Context, tx *sql.Tx, itemID uint64, delta int) (repository.Outcome, error) {
	if delta < 0 {
		return l.ReserveStockTx(ctx, tx, itemID, -delta)
	}
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	if _, ok := l.db.stock[itemID]; !ok {
		return repository.Insufficient, repository.ErrNotFound
	}
	l.db.stock[itemID] += delta
	l.db.record(ctx, func() { l.db.stock[itemID] -= delta })
	return repository.Reserved, nil
}

func (l fakeLedger) StockLevel(_ context.Context, itemID uint64) (int, error) {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	n, ok := l.db.stock[itemID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	return n, nil
}

func (l fakeLedger) RemainingCapacity(_ context.Context, eventID uint64) (*int, error) {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	ev, ok := l.db.events[eventID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if ev.IsCancelled {
		zero := 0
		return &zero, nil
	}
	return ev.RemainingSpots(), nil
}

type fakeCatalog struct{ db *fakeDB }

func (c fakeCatalog) ListByIDs(_ context.Context, kind model.LineKind, ids []uint64) (map[uint64]model.CatalogItem, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	out := map[uint64]model.CatalogItem{}
	for _, id := range ids {
		if it, ok := c.db.catalog[kind][id]; ok {
			out[id] = it
		}
	}
	return out, nil
}

func (c fakeCatalog) GetEvent(_ context.Context, id uint64) (model.Event, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	ev, ok := c.db.events[id]
	if !ok {
		return model.Event{}, repository.ErrNotFound
	}
	return *ev, nil
}

type fakeOrders struct{ db *fakeDB }

func (o fakeOrders) CreateTx(ctx context.Context, _ *sql.Tx, ord *model.Order) (uint64, error) {
	o.db.mu.Lock()
	defer o.db.mu.Unlock()
	if err := o.db.fail("orders.CreateTx"); err != nil {
		return 0, err
	}
	if ord.IdempotencyKey != nil {
		for _, existing := range o.db.orders {
			if existing.IdempotencyKey != nil && *existing.IdempotencyKey == *ord.IdempotencyKey {
				return 0, errDuplicateKey
			}
		}
	}
	ord.ID = o.db.id()
	o.db.orders[ord.ID] = *ord
	o.db.lines[ord.ID] = &repository.OrderLines{}
	id := ord.ID
	o.db.record(ctx, func() { delete(o.db.orders, id); delete(o.db.lines, id) })
	return ord.ID, nil
}

func (o fakeOrders) InsertTicketLinesTx(_ context.Context, _ *sql.Tx, orderID uint64, lines []model.TicketLine) error {
	o.db.mu.Lock()
	defer o.db.mu.Unlock()
	for _, l := range lines {
		l.OrderID = orderID
		o.db.lines[orderID].Tickets = append(o.db.lines[orderID].Tickets, l)
	}
	return nil
}

func (o fakeOrders) InsertGiftShopLinesTx(_ context.Context, _ *sql.Tx, orderID uint64, lines []model.GiftShopLine) error {
	o.db.mu.Lock()
	defer o.db.mu.Unlock()
	if err := o.db.fail("orders.InsertGiftShopLinesTx"); err != nil {
		return err
	}
	for _, l := range lines {
		l.OrderID = orderID
		o.db.lines[orderID].GiftShop = append(o.db.lines[orderID].GiftShop, l)
	}
	return nil
}

func (o fakeOrders) InsertCafeteriaLinesTx(_ context.Context, _ *sql.Tx, orderID uint64, lines []model.CafeteriaLine) error {
	o.db.mu.Lock()
	defer o.db.mu.Unlock()
	for _, l := range lines {
		l.OrderID = orderID
		o.db.lines[orderID].Cafeteria = append(o.db.lines[orderID].Cafeteria, l)
	}
	return nil
}

func (o fakeOrders) FindByIdempotencyKey(_ context.Context, key string) (model.Order, error) {
	o.db.mu.Lock()
	defer o.db.mu.Unlock()
	for _, ord := range o.db.orders {
		if ord.IdempotencyKey != nil && *ord.IdempotencyKey == key {
			return ord, nil
		}
	}
	return model.Order{}, repository.ErrNotFound
}

func (o fakeOrders) Lines(_ context.Context, orderID uint64) (repository.OrderLines, error) {
	o.db.mu.Lock()
	defer o.db.mu.Unlock()
	l, ok := o.db.lines[orderID]
	if !ok {
		return repository.OrderLines{}, repository.ErrNotFound
	}
	return *l, nil
}

type fakeDonations struct{ db *fakeDB }

func (f fakeDonations) CreateTx(ctx context.Context, _ *sql.Tx, d *model.DonationLine) (uint64, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	d.ID = f.db.id()
	f.db.donations[d.ID] = *d
	id := d.ID
	f.db.record(ctx, func() { delete(f.db.donations, id) })
	return d.ID, nil
}

func (f fakeDonations) ListPublic(_ context.Context, _ int) ([]repository.PublicDonation, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	ids := make([]uint64, 0, len(f.db.donations))
	for id := range f.db.donations {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	var out []repository.PublicDonation
	for _, id := range ids {
		d := f.db.donations[id]
		name := repository.AnonymousDonor
		if !d.IsAnonymous && d.UserID != nil {
			for _, u := range f.db.users {
				if u.ID == *d.UserID {
					name = u.FirstName + " " + u.LastName
				}
			}
		}
		out = append(out, repository.PublicDonation{DonorName: name, Amount: d.Amount, DonationType: string(d.DonationType)})
	}
	return out, nil
}

type fakeMemberships struct{ db *fakeDB }

func (m fakeMemberships) ActiveDiscount(_ context.Context, userID uint64) (decimal.Decimal, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	return m.db.discounts[userID], nil
}

func (m fakeMemberships) HasActive(_ context.Context, userID uint64) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	mem, ok := m.db.memberships[userID]
	return ok && mem.IsActive, nil
}

func (m fakeMemberships) UpsertTx(ctx context.Context, _ *sql.Tx, mem *model.Membership) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if existing, ok := m.db.memberships[mem.UserID]; ok {
		prev := *existing
		mem.ID = existing.ID
		mem.IsActive = true
		*existing = *mem
		m.db.record(ctx, func() { *existing = prev })
		return true, nil
	}
	mem.ID = m.db.id()
	mem.IsActive = true
	cp := *mem
	m.db.memberships[mem.UserID] = &cp
	uid := mem.UserID
	m.db.record(ctx, func() { delete(m.db.memberships, uid) })
	return false, nil
}

func (m fakeMemberships) InsertPurchaseLineTx(ctx context.Context, _ *sql.Tx, l *model.MembershipPurchaseLine) (uint64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	l.ID = m.db.id()
	m.db.purchases = append(m.db.purchases, *l)
	n := len(m.db.purchases) - 1
	m.db.record(ctx, func() { m.db.purchases = m.db.purchases[:n] })
	return l.ID, nil
}

type fakeUsers struct{ db *fakeDB }

func (u fakeUsers) GetByEmailTx(_ context.Context, _ *sql.Tx, email string) (model.User, error) {
	u.db.mu.Lock()
	defer u.db.mu.Unlock()
	usr, ok := u.db.users[repository.NormalizeEmail(email)]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return usr, nil
}

func (u fakeUsers) CreateTx(ctx context.Context, _ *sql.Tx, usr *model.User) (uint64, error) {
	u.db.mu.Lock()
	defer u.db.mu.Unlock()
	if err := u.db.fail("users.CreateTx"); err != nil {
		return 0, err
	}
	usr.Email = repository.NormalizeEmail(usr.Email)
	if _, ok := u.db.users[usr.Email]; ok {
		return 0, errDuplicateKey
	}
	usr.ID = u.db.id()
	usr.IsActive = true
	u.db.users[usr.Email] = *usr
	email := usr.Email
	u.db.record(ctx, func() { delete(u.db.users, email) })
	return usr.ID, nil
}

type fakeNotifications struct{ db *fakeDB }

func (n fakeNotifications) InsertIfNoneOpen(_ context.Context, itemID uint64, message string) (bool, error) {
	n.db.mu.Lock()
	defer n.db.mu.Unlock()
	for _, existing := range n.db.notifications {
		if existing.ItemID == itemID && !existing.IsResolved {
			return false, nil
		}
	}
	n.db.notifications = append(n.db.notifications, model.Notification{ID: n.db.id(), ItemID: itemID, Message: message})
	return true, nil
}

func (n fakeNotifications) ListUnresolved(_ context.Context) ([]model.Notification, error) {
	n.db.mu.Lock()
	defer n.db.mu.Unlock()
	var out []model.Notification
	for _, x := range n.db.notifications {
		if !x.IsResolved {
			out = append(out, x)
		}
	}
	return out, nil
}

type fakeRSVPs struct{ db *fakeDB }

func (r fakeRSVPs) CreateTx(ctx context.Context, _ *sql.Tx, rec *repository.RSVPRecord) (uint64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	rec.ID = r.db.id()
	r.db.rsvps = append(r.db.rsvps, *rec)
	n := len(r.db.rsvps) - 1
	r.db.record(ctx, func() { r.db.rsvps = r.db.rsvps[:n] })
	return rec.ID, nil
}

// recordingPublisher keeps every event it was asked to publish.
type recordingPublisher struct {
	mu       sync.Mutex
	orders   []queue.OrderCompletedEvent
	lowStock []queue.LowStockEvent
}

func (p *recordingPublisher) PublishOrderCompleted(_ context.Context, ev queue.OrderCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = append(p.orders, ev)
	return nil
}

func (p *recordingPublisher) PublishLowStock(_ context.Context, ev queue.LowStockEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lowStock = append(p.lowStock, ev)
	return nil
}

func syncRun(f func()) { f() }

var errDuplicateKey = database.Classify(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

// harness wires every service over one fakeDB with synchronous
// post-commit work.
type harness struct {
	db       *fakeDB
	pub      *recordingPublisher
	notifier *Notifier
	coord    *Coordinator
	checkout *CheckoutService
	rsvp     *RSVPService
	admin    *AdminService
}

func newHarness(taxRate string, threshold int) *harness {
	db := newFakeDB()
	pub := &recordingPublisher{}
	notifier := NewNotifier(fakeLedger{db}, fakeNotifications{db}, pub, threshold, nil)
	notifier.async = syncRun
	coord := NewCoordinator(fakeRunner{db}, fakeLedger{db}, fakeOrders{db}, fakeDonations{db}, notifier, pub, nil)
	coord.async = syncRun
	return &harness{
		db:       db,
		pub:      pub,
		notifier: notifier,
		coord:    coord,
		checkout: NewCheckoutService(coord, fakeCatalog{db}, fakeMemberships{db}, fakeUsers{db}, fakeDonations{db},
			decimal.RequireFromString(taxRate), 4),
		rsvp:  NewRSVPService(fakeRunner{db}, fakeLedger{db}, fakeCatalog{db}, fakeMemberships{db}, fakeRSVPs{db}, nil),
		admin: NewAdminService(fakeRunner{db}, fakeLedger{db}, notifier, fakeNotifications{db}),
	}
}

var errTransientConn = database.Classify(mysql.ErrInvalidConn)

package model

import (
    "time"

    "github.com/shopspring/decimal"
)

// PaymentMethod is the closed set of tender types accepted at checkout.
type PaymentMethod string

const (
    PaymentCash          PaymentMethod = "Cash"
    PaymentCreditCard    PaymentMethod = "Credit Card"
    PaymentDebitCard     PaymentMethod = "Debit Card"
    PaymentMobilePayment PaymentMethod = "Mobile Payment"
)

// Valid reports whether p is one of the accepted payment methods.
func (p PaymentMethod) Valid() bool {
    switch p {
    case PaymentCash, PaymentCreditCard, PaymentDebitCard, PaymentMobilePayment:
        return true
    }
    return false
}

// OrderStatus is the lifecycle state of an order.  Checkout only ever
// writes Completed; the other states belong to the admin refund path.
type OrderStatus string

const (
    OrderCompleted OrderStatus = "Completed"
    OrderPending   OrderStatus = "Pending"
    OrderCancelled OrderStatus = "Cancelled"
    OrderRefunded  OrderStatus = "Refunded"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
    switch s {
    case OrderCompleted, OrderPending, OrderCancelled, OrderRefunded:
        return true
    }
    return false
}

// Order is the financial record of one checkout.  It corresponds to a row
// in the `transactions` table.  Amounts are locked at commit time and are
// never recomputed from the catalog afterwards.
//
// Fields:
//  ID             – primary key identifier.
//  UserID         – purchasing user (nil for walk-in or anonymous donors).
//  Reference      – public receipt reference (uuid).
//  Subtotal       – sum of extended line prices before discount.
//  DiscountAmount – membership discount applied to discountable lines.
//  TaxAmount      – sales tax on the discounted subtotal.
//  TotalPrice     – amount charged (subtotal - discount + tax).
//  TotalItems     – sum of line quantities.
//  PaymentMethod  – tender type.
//  Status         – lifecycle state.
//  IdempotencyKey – client supplied retry key (nullable, unique).
//  RequestHash    – fingerprint of the request that used the key.
//  HandledBy      – employee who rang up the sale (nullable).
//  CreatedAt      – commit timestamp.
type Order struct {
    ID             uint64          // transactions.id
    UserID         *uint64         // transactions.user_id (nullable)
    Reference      string          // transactions.reference
    Subtotal       decimal.Decimal // transactions.subtotal
    DiscountAmount decimal.Decimal // transactions.discount_amount
    TaxAmount      decimal.Decimal // transactions.tax_amount
    TotalPrice     decimal.Decimal // transactions.total_price
    TotalItems     int             // transactions.total_items
    PaymentMethod  PaymentMethod   // transactions.payment_method
    Status         OrderStatus     // transactions.status
    IdempotencyKey *string         // transactions.idempotency_key (nullable)
    RequestHash    string          // transactions.request_hash
    HandledBy      *uint64         // transactions.handled_by (nullable)
    CreatedAt      time.Time       // transactions.created_at
}

package model

import "github.com/shopspring/decimal"

// LineKind names the table a line item is persisted in.
type LineKind string

const (
    LineTicket     LineKind = "ticket"
    LineGiftShop   LineKind = "giftshop"
    LineCafeteria  LineKind = "cafeteria"
    LineDonation   LineKind = "donation"
    LineMembership LineKind = "membership"
)

// TicketLine records admission tickets sold in an order.
// Rows live in `transaction_tickets`.
type TicketLine struct {
    ID           uint64          // transaction_tickets.id
    OrderID      uint64          // transaction_tickets.transaction_id
    TicketTypeID uint64          // transaction_tickets.ticket_type_id
    Quantity     int             // transaction_tickets.quantity
    UnitPrice    decimal.Decimal // transaction_tickets.unit_price
    ExhibitionID *uint64         // transaction_tickets.exhibition_id (nullable)
}

// GiftShopLine records gift-shop goods sold in an order.  UnitPrice is
// post-discount.  Rows live in `transaction_giftshop_items`.
type GiftShopLine struct {
    ID        uint64          // transaction_giftshop_items.id
    OrderID   uint64          // transaction_giftshop_items.transaction_id
    ItemID    uint64          // transaction_giftshop_items.item_id
    Quantity  int             // transaction_giftshop_items.quantity
    UnitPrice decimal.Decimal // transaction_giftshop_items.unit_price
}

// CafeteriaLine records cafeteria items sold in an order.
// Rows live in `transaction_cafeteria_items`.
type CafeteriaLine struct {
    ID        uint64          // transaction_cafeteria_items.id
    OrderID   uint64          // transaction_cafeteria_items.transaction_id
    ItemID    uint64          // transaction_cafeteria_items.item_id
    Quantity  int             // transaction_cafeteria_items.quantity
    UnitPrice decimal.Decimal // transaction_cafeteria_items.unit_price
    Note      *string         // transaction_cafeteria_items.note (nullable)
}

// DonationType is the closed set of donation categories.
type DonationType string

const (
    DonationGeneralFund         DonationType = "General Fund"
    DonationExhibitionSupport   DonationType = "Exhibition Support"
    DonationEducationPrograms   DonationType = "Education Programs"
    DonationArtworkAcquisition  DonationType = "Artwork Acquisition"
    DonationBuildingMaintenance DonationType = "Building Maintenance"
    DonationOther               DonationType = "Other"
)

// Valid reports whether d is an accepted donation category.
func (d DonationType) Valid() bool {
    switch d {
    case DonationGeneralFund, DonationExhibitionSupport, DonationEducationPrograms,
        DonationArtworkAcquisition, DonationBuildingMaintenance, DonationOther:
        return true
    }
    return false
}

// DonationLine is the single line of a donation order.  Quantity is
// implicitly one.  Rows live in `donations`.
type DonationLine struct {
    ID                uint64          // donations.id
    OrderID           uint64          // donations.transaction_id
    UserID            *uint64         // donations.user_id (nullable)
    Amount            decimal.Decimal // donations.amount
    DonationType      DonationType    // donations.donation_type
    IsAnonymous       bool            // donations.is_anonymous
    DedicationMessage *string         // donations.dedication_message (nullable)
}

// MembershipPurchaseLine records the fee paid for a membership signup or
// renewal.  Rows live in `membership_transactions`.
type MembershipPurchaseLine struct {
    ID           uint64          // membership_transactions.id
    OrderID      uint64          // membership_transactions.transaction_id
    MembershipID uint64          // membership_transactions.membership_id
    IsRenewal    bool            // membership_transactions.is_renewal
    LineTotal    decimal.Decimal // membership_transactions.line_total
}

package service

import (
	"github.com/shopspring/decimal"
)

// CheckoutService exposes the three checkout variants.  Each builds a
// variant-specific set of priced lines and hands them to the Coordinator.
type CheckoutService struct {
	coord       *Coordinator
	catalog     Catalog
	memberships MembershipStore
	users       UserStore
	donations   DonationStore
	taxRate     decimal.Decimal
	bcryptCost  int
}

// NewCheckoutService wires a CheckoutService.  taxRate applies to POS
// carts only; donations and membership fees are tax exempt.
func NewCheckoutService(coord *Coordinator, catalog Catalog, memberships MembershipStore, users UserStore,
	donations DonationStore, taxRate decimal.Decimal, bcryptCost int) *CheckoutService {
	return &CheckoutService{
		coord:       coord,
		catalog:     catalog,
		memberships: memberships,
		users:       users,
		donations:   donations,
		taxRate:     taxRate,
		bcryptCost:  bcryptCost,
	}
}
